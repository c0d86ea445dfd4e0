package query

// Role decides how a resolved value is escaped into the output
type Role int

const (
	RoleStringLiteral Role = iota + 1
	RoleRawIdentifier
	RoleRawNumeric
	RoleListLiteral
)

func (r Role) String() string {
	switch r {
	case RoleStringLiteral:
		return "string_literal"
	case RoleRawIdentifier:
		return "raw_identifier"
	case RoleRawNumeric:
		return "raw_numeric"
	case RoleListLiteral:
		return "list_literal"
	default:
		return "unknown"
	}
}

// Node is one element of a compiled template
type Node interface {
	node()
}

// Literal is passthrough text
type Literal struct {
	Text string
}

// Substitution is a {{ expr | filters }} placeholder. Role is fixed at
// parse time from the placeholder's position in the source.
type Substitution struct {
	Expr *Pipeline
	Role Role
	Line int
}

// Branch is one if/elif arm
type Branch struct {
	Predicate *Pipeline
	Body      []Node
}

// Conditional selects the first branch whose predicate is truthy, then Else
type Conditional struct {
	Branches []Branch
	Else     []Node
	HasElse  bool
	Line     int
}

// Loop renders Body once per element of Iterable
type Loop struct {
	Iterable *Pipeline
	Binding  string
	Body     []Node
	Line     int
}

func (*Literal) node()      {}
func (*Substitution) node() {}
func (*Conditional) node()  {}
func (*Loop) node()         {}

// Template is an immutable compiled node tree
type Template struct {
	Domain string
	Nodes  []Node
}

// Walk visits every node depth-first in document order
func Walk(nodes []Node, fn func(Node)) {
	for _, n := range nodes {
		fn(n)
		switch x := n.(type) {
		case *Conditional:
			for _, b := range x.Branches {
				Walk(b.Body, fn)
			}
			Walk(x.Else, fn)
		case *Loop:
			Walk(x.Body, fn)
		}
	}
}

// Parameters returns the distinct free parameter names referenced by the
// template in order of first appearance. Loop bindings are excluded inside
// their loop bodies.
func (t *Template) Parameters() []string {
	seen := make(map[string]bool)
	var names []string
	var visit func(nodes []Node, bound map[string]bool)
	add := func(p *Pipeline, bound map[string]bool) {
		if p == nil {
			return
		}
		for _, name := range p.identifiers() {
			if bound[name] || seen[name] {
				continue
			}
			seen[name] = true
			names = append(names, name)
		}
	}
	visit = func(nodes []Node, bound map[string]bool) {
		for _, n := range nodes {
			switch x := n.(type) {
			case *Substitution:
				add(x.Expr, bound)
			case *Conditional:
				for _, b := range x.Branches {
					add(b.Predicate, bound)
					visit(b.Body, bound)
				}
				visit(x.Else, bound)
			case *Loop:
				add(x.Iterable, bound)
				inner := make(map[string]bool, len(bound)+2)
				for k := range bound {
					inner[k] = true
				}
				inner[x.Binding] = true
				inner[indexBinding] = true
				visit(x.Body, inner)
			}
		}
	}
	visit(t.Nodes, map[string]bool{})
	return names
}

// QueryTypes returns the string literals compared against query_type in the
// template's top-level conditionals, in document order.
func (t *Template) QueryTypes() []string {
	seen := make(map[string]bool)
	var types []string
	for _, n := range t.Nodes {
		c, ok := n.(*Conditional)
		if !ok {
			continue
		}
		for _, b := range c.Branches {
			for _, lit := range b.Predicate.selectorLiterals(QueryTypeParam) {
				if !seen[lit] {
					seen[lit] = true
					types = append(types, lit)
				}
			}
		}
	}
	return types
}

// QueryTypeParam is the selector parameter name
const QueryTypeParam = "query_type"

// indexBinding is the 1-based loop position available inside loop bodies
const indexBinding = "index"
