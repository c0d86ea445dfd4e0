package query

import (
	"fmt"
	"regexp"
	"strings"
)

// Option configures Parse
type Option func(*parseOptions)

type parseOptions struct {
	defaults map[string]Value
	kinds    map[string]Kind
}

// WithDefaults sets the per-parameter default table consulted by a bare
// `default` filter.
func WithDefaults(defaults map[string]Value) Option {
	return func(o *parseOptions) { o.defaults = defaults }
}

// WithKinds declares parameter kinds, used to pick the role of unquoted
// placeholders.
func WithKinds(kinds map[string]Kind) Option {
	return func(o *parseOptions) { o.kinds = kinds }
}

type tagKind int

const (
	tagExpr tagKind = iota
	tagBlock
	tagComment
)

var tagClosers = map[tagKind]string{
	tagExpr:    "}}",
	tagBlock:   "%}",
	tagComment: "#}",
}

// openBlock is an if or for awaiting its end tag
type openBlock struct {
	cond   *Conditional
	loop   *Loop
	inElse bool
}

func (b *openBlock) body() *[]Node {
	switch {
	case b.loop != nil:
		return &b.loop.Body
	case b.inElse:
		return &b.cond.Else
	default:
		return &b.cond.Branches[len(b.cond.Branches)-1].Body
	}
}

func (b *openBlock) line() int {
	if b.loop != nil {
		return b.loop.Line
	}
	return b.cond.Line
}

type parser struct {
	domain string
	src    string
	opts   parseOptions
	root   []Node
	stack  []*openBlock
	sql    sqlScanner
}

// Parse compiles template source into a node tree. Blocks are trimmed the
// way trim_blocks and lstrip_blocks do and the trailing newline is kept.
func Parse(domain, source string, opts ...Option) (*Template, error) {
	p := &parser{domain: domain, src: source}
	for _, opt := range opts {
		opt(&p.opts)
	}
	if err := p.run(); err != nil {
		return nil, err
	}
	return &Template{Domain: domain, Nodes: p.root}, nil
}

func (p *parser) errorf(kind ParseErrorKind, line int, format string, args ...any) error {
	return &ParseError{Kind: kind, Domain: p.domain, Line: line, Detail: fmt.Sprintf(format, args...)}
}

func (p *parser) lineAt(pos int) int {
	return strings.Count(p.src[:pos], "\n") + 1
}

func (p *parser) append(n Node) {
	if len(p.stack) == 0 {
		p.root = append(p.root, n)
		return
	}
	body := p.stack[len(p.stack)-1].body()
	*body = append(*body, n)
}

func (p *parser) run() error {
	var (
		pos         int
		trimNext    bool // previous tag ended with -
		dropNewline bool // previous tag was a block or comment
	)

	for {
		start, kind := nextTag(p.src, pos)
		if start < 0 {
			p.literal(pos, len(p.src), trimNext, dropNewline, false, false)
			break
		}

		line := p.lineAt(start)
		open := start + 2
		trimLeft := open < len(p.src) && p.src[open] == '-'
		if trimLeft {
			open++
		}
		end := findClose(p.src, open, tagClosers[kind])
		if end < 0 {
			return p.errorf(UnterminatedBlock, line, "tag opened here is never closed")
		}
		inner := p.src[open:end]
		trimRight := strings.HasSuffix(inner, "-")
		if trimRight {
			inner = inner[:len(inner)-1]
		}

		p.literal(pos, start, trimNext, dropNewline, trimLeft, kind != tagExpr)

		switch kind {
		case tagExpr:
			if err := p.substitution(inner, start, line); err != nil {
				return err
			}
		case tagBlock:
			if err := p.directive(strings.TrimSpace(inner), line); err != nil {
				return err
			}
		}

		pos = end + 2
		trimNext = trimRight
		dropNewline = kind != tagExpr
	}

	if len(p.stack) > 0 {
		top := p.stack[len(p.stack)-1]
		what := "if"
		if top.loop != nil {
			what = "for"
		}
		return p.errorf(UnterminatedBlock, top.line(), "%s block is never closed", what)
	}
	return nil
}

// literal emits the source text between two tags after whitespace control
func (p *parser) literal(from, to int, trimLeading, dropNewline, trimTrailing, lstrip bool) {
	raw := p.src[from:to]
	p.sql.feed(raw)

	text := raw
	switch {
	case trimLeading:
		text = strings.TrimLeft(text, " \t\r\n")
	case dropNewline:
		if strings.HasPrefix(text, "\r\n") {
			text = text[2:]
		} else if strings.HasPrefix(text, "\n") {
			text = text[1:]
		}
	}

	switch {
	case trimTrailing:
		text = strings.TrimRight(text, " \t\r\n")
	case lstrip:
		if indent, ok := p.lineIndent(from, raw); ok && strings.HasSuffix(text, indent) {
			text = text[:len(text)-len(indent)]
		}
	}

	if text != "" {
		p.append(&Literal{Text: text})
	}
}

// lineIndent returns the whitespace between the start of the line and the
// tag that follows raw, when nothing else precedes the tag on that line.
func (p *parser) lineIndent(from int, raw string) (string, bool) {
	i := strings.LastIndexByte(raw, '\n')
	if i < 0 && from > 0 && p.src[from-1] != '\n' {
		return "", false
	}
	indent := raw[i+1:]
	if strings.Trim(indent, " \t") != "" {
		return "", false
	}
	return indent, true
}

func (p *parser) substitution(inner string, start, line int) error {
	pipe, err := ParseExpression(inner, p.opts.defaults)
	if err != nil {
		return p.errorf(MalformedExpression, line, "{{ %s }}: %v", strings.TrimSpace(inner), err)
	}
	role, err := p.inferRole(pipe, start)
	if err != nil {
		return p.errorf(MalformedExpression, line, "{{ %s }}: %v", pipe.Text, err)
	}
	p.append(&Substitution{Expr: pipe, Role: role, Line: line})
	return nil
}

var forPattern = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*)\s+in\s+(.+)$`)

func (p *parser) directive(content string, line int) error {
	keyword, rest := content, ""
	if i := strings.IndexAny(content, " \t\r\n"); i >= 0 {
		keyword, rest = content[:i], strings.TrimSpace(content[i:])
	}

	switch keyword {
	case "if":
		pred, err := p.predicate(rest, line)
		if err != nil {
			return err
		}
		cond := &Conditional{Branches: []Branch{{Predicate: pred}}, Line: line}
		p.append(cond)
		p.stack = append(p.stack, &openBlock{cond: cond})
	case "elif":
		top, err := p.openIf(keyword, line)
		if err != nil {
			return err
		}
		pred, err := p.predicate(rest, line)
		if err != nil {
			return err
		}
		top.cond.Branches = append(top.cond.Branches, Branch{Predicate: pred})
	case "else":
		if rest != "" {
			return p.errorf(MalformedExpression, line, "else takes no expression")
		}
		top, err := p.openIf(keyword, line)
		if err != nil {
			return err
		}
		top.inElse = true
		top.cond.HasElse = true
	case "endif", "endfor":
		if rest != "" {
			return p.errorf(MalformedExpression, line, "%s takes no expression", keyword)
		}
		if len(p.stack) == 0 {
			return p.errorf(UnmatchedClose, line, "%s without an open block", keyword)
		}
		top := p.stack[len(p.stack)-1]
		if (keyword == "endif") != (top.cond != nil) {
			return p.errorf(UnmatchedClose, line, "%s closes a block opened at line %d", keyword, top.line())
		}
		p.stack = p.stack[:len(p.stack)-1]
	case "for":
		m := forPattern.FindStringSubmatch(rest)
		if m == nil {
			return p.errorf(MalformedExpression, line, "expected 'for <name> in <expr>'")
		}
		if m[1] == indexBinding || m[1] == "loop" {
			return p.errorf(MalformedExpression, line, "%q is reserved inside loops", m[1])
		}
		iter, err := p.predicate(m[2], line)
		if err != nil {
			return err
		}
		loop := &Loop{Iterable: iter, Binding: m[1], Line: line}
		p.append(loop)
		p.stack = append(p.stack, &openBlock{loop: loop})
	default:
		if keyword == "" {
			return p.errorf(UnknownDirective, line, "empty directive")
		}
		return p.errorf(UnknownDirective, line, "unknown directive %q", keyword)
	}
	return nil
}

func (p *parser) predicate(src string, line int) (*Pipeline, error) {
	pipe, err := ParseExpression(src, p.opts.defaults)
	if err != nil {
		return nil, p.errorf(MalformedExpression, line, "%v", err)
	}
	return pipe, nil
}

func (p *parser) openIf(keyword string, line int) (*openBlock, error) {
	if len(p.stack) == 0 {
		return nil, p.errorf(UnmatchedClose, line, "%s without an open if", keyword)
	}
	top := p.stack[len(p.stack)-1]
	if top.cond == nil {
		return nil, p.errorf(UnmatchedClose, line, "%s inside a for block", keyword)
	}
	if top.inElse {
		return nil, p.errorf(UnmatchedClose, line, "%s after else", keyword)
	}
	return top, nil
}

// nextTag finds the next tag opener at or after pos
func nextTag(src string, pos int) (int, tagKind) {
	for i := pos; i+1 < len(src); i++ {
		if src[i] != '{' {
			continue
		}
		switch src[i+1] {
		case '{':
			return i, tagExpr
		case '%':
			return i, tagBlock
		case '#':
			return i, tagComment
		}
	}
	return -1, tagExpr
}

// findClose returns the index of closer, skipping quoted strings inside the tag
func findClose(src string, pos int, closer string) int {
	var quote byte
	for i := pos; i < len(src); i++ {
		c := src[i]
		switch {
		case quote != 0:
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
		case (c == '\'' || c == '"') && closer != "#}":
			quote = c
		case strings.HasPrefix(src[i:], closer):
			return i
		}
	}
	return -1
}
