package query

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// Pipeline is a parsed expression as it appears inside {{ }} or a directive
type Pipeline struct {
	Text string
	root expr
}

// BaseName returns the parameter the pipeline starts from, or "" when the
// base is a literal or compound expression.
func (p *Pipeline) BaseName() string {
	e := p.root
	if f, ok := e.(*filterExpr); ok {
		e = f.base
	}
	if id, ok := e.(*identExpr); ok {
		return id.name
	}
	return ""
}

// Filters returns the filter names applied at the top level, in order
func (p *Pipeline) Filters() []string {
	f, ok := p.root.(*filterExpr)
	if !ok {
		return nil
	}
	names := make([]string, len(f.calls))
	for i, c := range f.calls {
		names[i] = c.name
	}
	return names
}

func (p *Pipeline) identifiers() []string {
	var names []string
	collectIdents(p.root, &names)
	return names
}

// selectorLiterals returns string literals compared with the named
// parameter via == anywhere in the expression.
func (p *Pipeline) selectorLiterals(param string) []string {
	var out []string
	var visit func(e expr)
	visit = func(e expr) {
		switch x := e.(type) {
		case *binaryExpr:
			if x.op == "==" {
				if lit, ok := comparedLiteral(x.left, x.right, param); ok {
					out = append(out, lit)
				}
			}
			visit(x.left)
			visit(x.right)
		case *notExpr:
			visit(x.x)
		}
	}
	visit(p.root)
	return out
}

func comparedLiteral(l, r expr, param string) (string, bool) {
	if id, ok := l.(*identExpr); ok && id.name == param {
		if lit, ok := r.(*literalExpr); ok && lit.v.isTextual() {
			return lit.v.s, true
		}
	}
	if id, ok := r.(*identExpr); ok && id.name == param {
		if lit, ok := l.(*literalExpr); ok && lit.v.isTextual() {
			return lit.v.s, true
		}
	}
	return "", false
}

// expr is a node of the closed expression grammar
type expr interface {
	eval(ctx Context) (result, error)
}

type identExpr struct{ name string }

type literalExpr struct{ v Value }

type listExpr struct{ items []expr }

type notExpr struct{ x expr }

type binaryExpr struct {
	op          string
	left, right expr
}

type filterCall struct {
	name string
	args []expr
}

type filterExpr struct {
	base  expr
	calls []filterCall
}

func collectIdents(e expr, out *[]string) {
	switch x := e.(type) {
	case *identExpr:
		*out = append(*out, x.name)
	case *listExpr:
		for _, it := range x.items {
			collectIdents(it, out)
		}
	case *notExpr:
		collectIdents(x.x, out)
	case *binaryExpr:
		collectIdents(x.left, out)
		collectIdents(x.right, out)
	case *filterExpr:
		collectIdents(x.base, out)
		for _, c := range x.calls {
			for _, a := range c.args {
				collectIdents(a, out)
			}
		}
	}
}

// Expression tokens

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokString
	tokNumber
	tokOp
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

func tokenize(src string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '\'' || c == '"':
			s, n, err := scanQuoted(src[i:])
			if err != nil {
				return nil, err
			}
			toks = append(toks, token{kind: tokString, text: s, pos: i})
			i += n
		case c >= '0' && c <= '9':
			start := i
			for i < len(src) && (src[i] >= '0' && src[i] <= '9' || src[i] == '.') {
				i++
			}
			toks = append(toks, token{kind: tokNumber, text: src[start:i], pos: start})
		case c == '_' || unicode.IsLetter(rune(c)):
			start := i
			for i < len(src) && (src[i] == '_' || src[i] == '.' || unicode.IsLetter(rune(src[i])) || src[i] >= '0' && src[i] <= '9') {
				i++
			}
			toks = append(toks, token{kind: tokIdent, text: src[start:i], pos: start})
		case strings.HasPrefix(src[i:], "==") || strings.HasPrefix(src[i:], "!="):
			toks = append(toks, token{kind: tokOp, text: src[i : i+2], pos: i})
			i += 2
		case strings.ContainsRune("|()[],-", rune(c)):
			toks = append(toks, token{kind: tokOp, text: string(c), pos: i})
			i++
		default:
			return nil, fmt.Errorf("unexpected character %q", c)
		}
	}
	toks = append(toks, token{kind: tokEOF, pos: len(src)})
	return toks, nil
}

// scanQuoted reads a quoted literal with backslash escapes and returns the
// decoded text and the number of bytes consumed.
func scanQuoted(s string) (string, int, error) {
	quote := s[0]
	var b strings.Builder
	for i := 1; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\\' && i+1 < len(s):
			i++
			switch s[i] {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			default:
				b.WriteByte(s[i])
			}
		case c == quote:
			return b.String(), i + 1, nil
		default:
			b.WriteByte(c)
		}
	}
	return "", 0, fmt.Errorf("unterminated string literal")
}

// exprParser is a recursive descent parser over the token stream.
//
//	or      := and ("or" and)*
//	and     := not ("and" not)*
//	not     := "not" not | compare
//	compare := filtered (("==" | "!=") filtered)?
//	filtered:= primary ("|" ident ("(" args ")")?)*
//	primary := ident | string | number | bool | none | list | "(" or ")"
type exprParser struct {
	toks     []token
	pos      int
	defaults map[string]Value
}

// ParseExpression compiles a standalone expression
func ParseExpression(src string, defaults map[string]Value) (*Pipeline, error) {
	toks, err := tokenize(src)
	if err != nil {
		return nil, err
	}
	if toks[0].kind == tokEOF {
		return nil, fmt.Errorf("empty expression")
	}
	p := &exprParser{toks: toks, defaults: defaults}
	root, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, fmt.Errorf("unexpected %q at offset %d", t.text, t.pos)
	}
	return &Pipeline{Text: strings.TrimSpace(src), root: root}, nil
}

func (p *exprParser) peek() token { return p.toks[p.pos] }

func (p *exprParser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *exprParser) isKeyword(word string) bool {
	t := p.peek()
	return t.kind == tokIdent && t.text == word
}

func (p *exprParser) isOp(op string) bool {
	t := p.peek()
	return t.kind == tokOp && t.text == op
}

func (p *exprParser) expectOp(op string) error {
	if !p.isOp(op) {
		t := p.peek()
		if t.kind == tokEOF {
			return fmt.Errorf("expected %q, got end of expression", op)
		}
		return fmt.Errorf("expected %q, got %q", op, t.text)
	}
	p.next()
	return nil
}

func (p *exprParser) parseOr() (expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.isKeyword("or") {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &binaryExpr{op: "or", left: left, right: right}
	}
	return left, nil
}

func (p *exprParser) parseAnd() (expr, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.isKeyword("and") {
		p.next()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &binaryExpr{op: "and", left: left, right: right}
	}
	return left, nil
}

func (p *exprParser) parseNot() (expr, error) {
	if p.isKeyword("not") {
		p.next()
		x, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &notExpr{x: x}, nil
	}
	return p.parseCompare()
}

func (p *exprParser) parseCompare() (expr, error) {
	left, err := p.parseFiltered()
	if err != nil {
		return nil, err
	}
	if p.isOp("==") || p.isOp("!=") {
		op := p.next().text
		right, err := p.parseFiltered()
		if err != nil {
			return nil, err
		}
		return &binaryExpr{op: op, left: left, right: right}, nil
	}
	return left, nil
}

func (p *exprParser) parseFiltered() (expr, error) {
	base, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	if !p.isOp("|") {
		return base, nil
	}
	f := &filterExpr{base: base}
	for p.isOp("|") {
		p.next()
		t := p.next()
		if t.kind != tokIdent {
			return nil, fmt.Errorf("expected filter name after '|'")
		}
		call := filterCall{name: t.text}
		if p.isOp("(") {
			p.next()
			args, err := p.parseArgs(")")
			if err != nil {
				return nil, err
			}
			call.args = args
		}
		if err := p.checkFilter(&call, base); err != nil {
			return nil, err
		}
		f.calls = append(f.calls, call)
	}
	return f, nil
}

func (p *exprParser) parseArgs(closing string) ([]expr, error) {
	var args []expr
	if p.isOp(closing) {
		p.next()
		return args, nil
	}
	for {
		a, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		args = append(args, a)
		if p.isOp(",") {
			p.next()
			continue
		}
		if err := p.expectOp(closing); err != nil {
			return nil, err
		}
		return args, nil
	}
}

func (p *exprParser) parsePrimary() (expr, error) {
	t := p.next()
	switch t.kind {
	case tokString:
		return &literalExpr{v: String(t.text)}, nil
	case tokNumber:
		return parseNumber(t.text, false)
	case tokIdent:
		switch t.text {
		case "true", "True":
			return &literalExpr{v: Boolean(true)}, nil
		case "false", "False":
			return &literalExpr{v: Boolean(false)}, nil
		case "none", "None":
			return &literalExpr{v: Undefined()}, nil
		case "and", "or", "not":
			return nil, fmt.Errorf("unexpected keyword %q", t.text)
		case "loop.index":
			return &identExpr{name: indexBinding}, nil
		}
		if strings.Contains(t.text, ".") {
			return nil, fmt.Errorf("member access %q is not supported", t.text)
		}
		return &identExpr{name: t.text}, nil
	case tokOp:
		switch t.text {
		case "(":
			inner, err := p.parseOr()
			if err != nil {
				return nil, err
			}
			if err := p.expectOp(")"); err != nil {
				return nil, err
			}
			return inner, nil
		case "[":
			items, err := p.parseArgs("]")
			if err != nil {
				return nil, err
			}
			return &listExpr{items: items}, nil
		case "-":
			n := p.next()
			if n.kind != tokNumber {
				return nil, fmt.Errorf("expected number after '-'")
			}
			return parseNumber(n.text, true)
		}
		return nil, fmt.Errorf("unexpected %q", t.text)
	}
	return nil, fmt.Errorf("unexpected end of expression")
}

func parseNumber(text string, negative bool) (expr, error) {
	if negative {
		text = "-" + text
	}
	if !strings.Contains(text, ".") {
		i, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", text)
		}
		return &literalExpr{v: Integer(i)}, nil
	}
	f, err := parseFiniteFloat(text)
	if err != nil {
		return nil, err
	}
	return &literalExpr{v: Float(f)}, nil
}

// Evaluation

func (e *identExpr) eval(ctx Context) (result, error) {
	return plain(ctx.Lookup(e.name)), nil
}

func (e *literalExpr) eval(Context) (result, error) {
	return plain(e.v), nil
}

func (e *listExpr) eval(ctx Context) (result, error) {
	items := make([]string, 0, len(e.items))
	for _, it := range e.items {
		r, err := it.eval(ctx)
		if err != nil {
			return result{}, err
		}
		v := r.value()
		if v.kind == KindUndefined || v.kind == KindStringList {
			return result{}, &RenderError{Kind: TypeMismatch, Detail: "list literal elements must be scalars"}
		}
		items = append(items, v.Text())
	}
	return plain(StringList(items...)), nil
}

func (e *notExpr) eval(ctx Context) (result, error) {
	r, err := e.x.eval(ctx)
	if err != nil {
		return result{}, err
	}
	return plain(Boolean(!r.value().Truthy())), nil
}

func (e *binaryExpr) eval(ctx Context) (result, error) {
	l, err := e.left.eval(ctx)
	if err != nil {
		return result{}, err
	}
	switch e.op {
	case "and":
		if !l.value().Truthy() {
			return plain(Boolean(false)), nil
		}
	case "or":
		if l.value().Truthy() {
			return plain(Boolean(true)), nil
		}
	}
	r, err := e.right.eval(ctx)
	if err != nil {
		return result{}, err
	}
	switch e.op {
	case "==":
		return plain(Boolean(l.value().Equal(r.value()))), nil
	case "!=":
		return plain(Boolean(!l.value().Equal(r.value()))), nil
	default:
		return plain(Boolean(r.value().Truthy())), nil
	}
}

func (e *filterExpr) eval(ctx Context) (result, error) {
	cur, err := e.base.eval(ctx)
	if err != nil {
		return result{}, err
	}
	name := ""
	if id, ok := e.base.(*identExpr); ok {
		name = id.name
	}
	for _, call := range e.calls {
		args := make([]Value, len(call.args))
		for i, a := range call.args {
			r, err := a.eval(ctx)
			if err != nil {
				return result{}, err
			}
			args[i] = r.value()
		}
		cur, err = applyFilter(call.name, name, cur, args)
		if err != nil {
			return result{}, err
		}
	}
	return cur, nil
}

// evalPredicate evaluates a directive predicate to its truthiness
func evalPredicate(p *Pipeline, ctx Context) (bool, error) {
	r, err := p.root.eval(ctx)
	if err != nil {
		return false, err
	}
	return r.value().Truthy(), nil
}
