package query

import "strings"

// Output is a successful render
type Output struct {
	Text string
	// Selected is false when the template has top-level conditionals keyed on
	// query_type and none of them picked a branch.
	Selected bool
}

// Render evaluates the template against ctx. The context is never modified
// and no text is returned on error.
func Render(t *Template, ctx Context) (string, error) {
	out, err := t.Execute(ctx)
	if err != nil {
		return "", err
	}
	return out.Text, nil
}

// Execute renders the template and reports selector matching
func (t *Template) Execute(ctx Context) (Output, error) {
	var (
		b         strings.Builder
		selectors int
		selected  bool
	)
	for _, n := range t.Nodes {
		cond, ok := n.(*Conditional)
		if !ok {
			if err := renderNode(&b, n, ctx); err != nil {
				return Output{}, err
			}
			continue
		}
		matched, err := renderConditional(&b, cond, ctx)
		if err != nil {
			return Output{}, err
		}
		if cond.keyedOn(QueryTypeParam) {
			selectors++
			selected = selected || matched
		}
	}
	return Output{Text: b.String(), Selected: selectors == 0 || selected}, nil
}

func (c *Conditional) keyedOn(param string) bool {
	for _, br := range c.Branches {
		for _, name := range br.Predicate.identifiers() {
			if name == param {
				return true
			}
		}
	}
	return false
}

func renderNodes(b *strings.Builder, nodes []Node, ctx Context) error {
	for _, n := range nodes {
		if err := renderNode(b, n, ctx); err != nil {
			return err
		}
	}
	return nil
}

func renderNode(b *strings.Builder, n Node, ctx Context) error {
	switch x := n.(type) {
	case *Literal:
		b.WriteString(x.Text)
	case *Substitution:
		text, err := substitute(x, ctx)
		if err != nil {
			return err
		}
		b.WriteString(text)
	case *Conditional:
		_, err := renderConditional(b, x, ctx)
		return err
	case *Loop:
		return renderLoop(b, x, ctx)
	}
	return nil
}

// renderConditional renders the first truthy branch, or else. The returned
// flag is true when a branch or an else body was selected.
func renderConditional(b *strings.Builder, c *Conditional, ctx Context) (bool, error) {
	for _, br := range c.Branches {
		ok, err := evalPredicate(br.Predicate, ctx)
		if err != nil {
			return false, err
		}
		if ok {
			return true, renderNodes(b, br.Body, ctx)
		}
	}
	if c.HasElse {
		return true, renderNodes(b, c.Else, ctx)
	}
	return false, nil
}

func renderLoop(b *strings.Builder, l *Loop, ctx Context) error {
	name := l.Iterable.BaseName()
	if name == "" {
		name = l.Iterable.Text
	}
	r, err := l.Iterable.root.eval(ctx)
	if err != nil {
		return err
	}
	if r.form != formPlain {
		return &RenderError{Kind: TypeMismatch, Name: name, Detail: "cannot iterate a serialized list"}
	}
	switch r.v.kind {
	case KindUndefined:
		return &RenderError{Kind: UndefinedIterable, Name: name}
	case KindStringList:
	default:
		return &RenderError{Kind: TypeMismatch, Name: name, Value: r.v.Text(), Detail: "loop over a non-list value"}
	}

	for i, item := range r.v.list {
		inner := ctx.With(map[string]Value{
			l.Binding:    String(item),
			indexBinding: Integer(int64(i + 1)),
		})
		if err := renderNodes(b, l.Body, inner); err != nil {
			return err
		}
	}
	return nil
}

func substitute(s *Substitution, ctx Context) (string, error) {
	name := s.Expr.BaseName()
	if name == "" {
		name = s.Expr.Text
	}
	r, err := s.Expr.root.eval(ctx)
	if err != nil {
		return "", err
	}
	if r.form == formPlain && r.v.kind == KindUndefined {
		return "", &RenderError{Kind: MissingParameter, Name: name}
	}
	return escapeResult(r, s.Role, name)
}
