package query

import (
	"fmt"
	"strings"
)

// form tracks what a filter chain has produced so far. Serializing filters
// turn a list into escaped SQL, after which the value is no longer plain.
type form int

const (
	formPlain  form = iota
	formQuoted      // escaped, quoted list elements
	formRaw         // a finished SQL fragment
)

type result struct {
	form  form
	v     Value
	items []string
	raw   string
}

func plain(v Value) result { return result{form: formPlain, v: v} }

// value views the result as a Value for truthiness and comparisons
func (r result) value() Value {
	switch r.form {
	case formQuoted:
		return StringList(r.items...)
	case formRaw:
		return String(r.raw)
	default:
		return r.v
	}
}

// filterSpec describes one entry of the closed filter registry
type filterSpec struct {
	minArgs, maxArgs int
	serializes       bool
}

var filters = map[string]filterSpec{
	"default": {minArgs: 0, maxArgs: 1},
	"join":    {minArgs: 0, maxArgs: 1, serializes: true},
	"tojson":  {minArgs: 0, maxArgs: 0, serializes: true},
	"map":     {minArgs: 1, maxArgs: 1, serializes: true},
}

const defaultJoinSeparator = ", "

// checkFilter validates a filter call at parse time and resolves a bare
// default against the declared default table.
func (p *exprParser) checkFilter(call *filterCall, base expr) error {
	spec, ok := filters[call.name]
	if !ok {
		return fmt.Errorf("unknown filter %q", call.name)
	}
	if n := len(call.args); n < spec.minArgs || n > spec.maxArgs {
		return fmt.Errorf("filter %q takes %d to %d arguments, got %d", call.name, spec.minArgs, spec.maxArgs, n)
	}

	switch call.name {
	case "default":
		if len(call.args) == 1 {
			return nil
		}
		id, ok := base.(*identExpr)
		if !ok {
			return fmt.Errorf("default without argument needs a parameter name")
		}
		v, ok := p.defaults[id.name]
		if !ok {
			return fmt.Errorf("no declared default for %q", id.name)
		}
		call.args = []expr{&literalExpr{v: v}}
	case "join":
		if len(call.args) == 1 {
			lit, ok := call.args[0].(*literalExpr)
			if !ok || lit.v.kind != KindString {
				return fmt.Errorf("join separator must be a string literal")
			}
		}
	case "map":
		lit, ok := call.args[0].(*literalExpr)
		if !ok || lit.v.kind != KindString || lit.v.s != "tojson" {
			return fmt.Errorf("map only supports 'tojson'")
		}
	}
	return nil
}

// serializes reports whether the pipeline contains a list serializing filter
func (p *Pipeline) serializes() bool {
	for _, name := range p.Filters() {
		if filters[name].serializes {
			return true
		}
	}
	return false
}

func applyFilter(name, param string, in result, args []Value) (result, error) {
	switch name {
	case "default":
		if in.form == formPlain && in.v.isEmpty() {
			return plain(args[0]), nil
		}
		return in, nil
	case "join":
		sep := defaultJoinSeparator
		if len(args) == 1 {
			sep = args[0].s
		}
		items, err := quotedItems(param, in)
		if err != nil {
			return result{}, err
		}
		if len(items) == 0 {
			return result{form: formRaw, raw: emptyListMarker}, nil
		}
		return result{form: formRaw, raw: strings.Join(items, sep)}, nil
	case "tojson", "map":
		items, err := quotedItems(param, in)
		if err != nil {
			return result{}, err
		}
		return result{form: formQuoted, items: items}, nil
	}
	return result{}, fmt.Errorf("unknown filter %q", name)
}

// quotedItems serializes the input as quoted string literals
func quotedItems(param string, in result) ([]string, error) {
	switch in.form {
	case formQuoted:
		return in.items, nil
	case formRaw:
		return nil, &RenderError{Kind: TypeMismatch, Name: param, Detail: "value is already serialized"}
	}
	switch in.v.kind {
	case KindUndefined:
		return nil, &RenderError{Kind: MissingParameter, Name: param}
	case KindStringList:
		items := make([]string, len(in.v.list))
		for i, s := range in.v.list {
			items[i] = quoteLiteral(s)
		}
		return items, nil
	case KindBoolean:
		return nil, &RenderError{Kind: TypeMismatch, Name: param, Value: in.v.Text(), Detail: "cannot serialize boolean as list"}
	default:
		return []string{quoteLiteral(in.v.Text())}, nil
	}
}
