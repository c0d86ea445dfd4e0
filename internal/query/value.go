package query

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Kind identifies the variant held by a Value
type Kind int

const (
	// KindUndefined marks an absent or explicitly null parameter
	KindUndefined Kind = iota
	KindString
	KindInteger
	KindFloat
	KindBoolean
	KindDate
	KindStringList
)

// String returns the manifest spelling of the kind
func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInteger:
		return "integer"
	case KindFloat:
		return "float"
	case KindBoolean:
		return "boolean"
	case KindDate:
		return "date"
	case KindStringList:
		return "string[]"
	default:
		return "undefined"
	}
}

// ParseKind parses a manifest kind name
func ParseKind(name string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "string", "str":
		return KindString, nil
	case "integer", "int":
		return KindInteger, nil
	case "float", "decimal", "number":
		return KindFloat, nil
	case "boolean", "bool":
		return KindBoolean, nil
	case "date":
		return KindDate, nil
	case "string[]", "list", "strings":
		return KindStringList, nil
	default:
		return KindUndefined, fmt.Errorf("unknown parameter kind %q", name)
	}
}

// Value is a typed template parameter. The zero value is Undefined.
type Value struct {
	kind Kind
	s    string
	i    int64
	f    float64
	b    bool
	list []string
}

// Undefined returns the undefined value
func Undefined() Value { return Value{} }

// String returns a string value
func String(s string) Value { return Value{kind: KindString, s: s} }

// Integer returns an integer value
func Integer(i int64) Value { return Value{kind: KindInteger, i: i} }

// Float returns a float value
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }

// Boolean returns a boolean value
func Boolean(b bool) Value { return Value{kind: KindBoolean, b: b} }

// Date returns a date value rendered as YYYY-MM-DD
func Date(t time.Time) Value { return Value{kind: KindDate, s: t.Format(dateLayout)} }

// StringList returns a list value. The slice is copied.
func StringList(items ...string) Value {
	list := make([]string, len(items))
	copy(list, items)
	return Value{kind: KindStringList, list: list}
}

const dateLayout = "2006-01-02"

var datePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// ParseDate validates a YYYY-MM-DD string and returns a date value
func ParseDate(s string) (Value, error) {
	s = strings.TrimSpace(s)
	if !datePattern.MatchString(s) {
		return Value{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", s)
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Value{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return Date(t), nil
}

// Kind returns the variant tag
func (v Value) Kind() Kind { return v.kind }

// IsUndefined reports whether the value is Undefined
func (v Value) IsUndefined() bool { return v.kind == KindUndefined }

// List returns a copy of the list elements, or nil for non-list values
func (v Value) List() []string {
	if v.kind != KindStringList {
		return nil
	}
	out := make([]string, len(v.list))
	copy(out, v.list)
	return out
}

// Truthy applies template truthiness
func (v Value) Truthy() bool {
	switch v.kind {
	case KindBoolean:
		return v.b
	case KindString, KindDate:
		return v.s != ""
	case KindStringList:
		return len(v.list) > 0
	case KindInteger:
		return v.i != 0
	case KindFloat:
		return v.f != 0
	default:
		return false
	}
}

// isEmpty reports whether the default filter should replace the value
func (v Value) isEmpty() bool {
	switch v.kind {
	case KindUndefined:
		return true
	case KindString, KindDate:
		return v.s == ""
	case KindStringList:
		return len(v.list) == 0
	default:
		return false
	}
}

// Text returns the unescaped textual form of a scalar value
func (v Value) Text() string {
	switch v.kind {
	case KindString, KindDate:
		return v.s
	case KindInteger:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'f', -1, 64)
	case KindBoolean:
		return strconv.FormatBool(v.b)
	case KindStringList:
		return strings.Join(v.list, ",")
	default:
		return ""
	}
}

// Native converts the value into a plain Go value (nil for Undefined)
func (v Value) Native() any {
	switch v.kind {
	case KindString, KindDate:
		return v.s
	case KindInteger:
		return v.i
	case KindFloat:
		return v.f
	case KindBoolean:
		return v.b
	case KindStringList:
		return v.List()
	default:
		return nil
	}
}

// String implements fmt.Stringer for diagnostics
func (v Value) String() string {
	switch v.kind {
	case KindUndefined:
		return "<undefined>"
	case KindStringList:
		return "[" + strings.Join(v.list, ", ") + "]"
	default:
		return v.Text()
	}
}

// Equal compares two values. Strings and dates compare by text; integers
// and floats compare numerically; Undefined equals only Undefined.
func (v Value) Equal(o Value) bool {
	if v.isTextual() && o.isTextual() {
		return v.s == o.s
	}
	if v.isNumeric() && o.isNumeric() {
		return v.number() == o.number()
	}
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindUndefined:
		return true
	case KindBoolean:
		return v.b == o.b
	case KindStringList:
		if len(v.list) != len(o.list) {
			return false
		}
		for i := range v.list {
			if v.list[i] != o.list[i] {
				return false
			}
		}
		return true
	}
	return false
}

func (v Value) isTextual() bool { return v.kind == KindString || v.kind == KindDate }

func (v Value) isNumeric() bool { return v.kind == KindInteger || v.kind == KindFloat }

func (v Value) number() float64 {
	if v.kind == KindInteger {
		return float64(v.i)
	}
	return v.f
}

// FromAny infers a Value from a Go value as produced by JSON decoding,
// YAML decoding or direct construction.
func FromAny(raw any) (Value, error) {
	switch x := raw.(type) {
	case nil:
		return Undefined(), nil
	case Value:
		return x, nil
	case string:
		return String(x), nil
	case bool:
		return Boolean(x), nil
	case int:
		return Integer(int64(x)), nil
	case int32:
		return Integer(int64(x)), nil
	case int64:
		return Integer(x), nil
	case uint:
		return Integer(int64(x)), nil
	case uint32:
		return Integer(int64(x)), nil
	case uint64:
		if x > math.MaxInt64 {
			return Value{}, fmt.Errorf("integer %d out of range", x)
		}
		return Integer(int64(x)), nil
	case float32:
		return fromFloat(float64(x)), nil
	case float64:
		return fromFloat(x), nil
	case time.Time:
		return Date(x), nil
	case []string:
		return StringList(x...), nil
	case []any:
		items := make([]string, 0, len(x))
		for i, item := range x {
			s, ok := item.(string)
			if !ok {
				return Value{}, fmt.Errorf("list element %d: expected string, got %T", i, item)
			}
			items = append(items, s)
		}
		return StringList(items...), nil
	default:
		return Value{}, fmt.Errorf("unsupported parameter type %T", raw)
	}
}

// fromFloat keeps integral JSON numbers as integers
func fromFloat(f float64) Value {
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return Integer(int64(f))
	}
	return Float(f)
}

// Coerce converts a raw value into the declared kind. Strings are parsed,
// which makes CLI flags and stream payloads usable as typed parameters.
func Coerce(raw any, kind Kind) (Value, error) {
	v, err := FromAny(raw)
	if err != nil {
		return Value{}, err
	}
	if v.kind == KindUndefined || v.kind == kind {
		return v, nil
	}

	switch kind {
	case KindString:
		if v.kind == KindStringList {
			return Value{}, fmt.Errorf("cannot use list as string")
		}
		return String(v.Text()), nil
	case KindInteger:
		switch v.kind {
		case KindString:
			i, err := strconv.ParseInt(strings.TrimSpace(v.s), 10, 64)
			if err != nil {
				return Value{}, fmt.Errorf("invalid integer %q", v.s)
			}
			return Integer(i), nil
		case KindFloat:
			if v.f != math.Trunc(v.f) || math.Abs(v.f) >= 1<<63 {
				return Value{}, fmt.Errorf("invalid integer %v", v.f)
			}
			return Integer(int64(v.f)), nil
		}
	case KindFloat:
		switch v.kind {
		case KindString:
			f, err := parseFiniteFloat(v.s)
			if err != nil {
				return Value{}, err
			}
			return Float(f), nil
		case KindInteger:
			return Float(float64(v.i)), nil
		}
	case KindBoolean:
		if v.kind == KindString {
			b, err := strconv.ParseBool(strings.TrimSpace(v.s))
			if err != nil {
				return Value{}, fmt.Errorf("invalid boolean %q", v.s)
			}
			return Boolean(b), nil
		}
	case KindDate:
		if v.kind == KindString {
			return ParseDate(v.s)
		}
	case KindStringList:
		if v.kind == KindString {
			if strings.TrimSpace(v.s) == "" {
				return StringList(), nil
			}
			parts := strings.Split(v.s, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			return StringList(parts...), nil
		}
	}

	return Value{}, fmt.Errorf("cannot convert %s to %s", v.kind, kind)
}

func parseFiniteFloat(s string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("invalid number %q", s)
	}
	return f, nil
}

// Context maps parameter names to values for one render call
type Context map[string]Value

// Lookup returns the named value, Undefined when absent
func (c Context) Lookup(name string) Value {
	return c[name]
}

// With returns a copy of the context extended with the given bindings.
// The receiver is never modified.
func (c Context) With(bindings map[string]Value) Context {
	next := make(Context, len(c)+len(bindings))
	for k, v := range c {
		next[k] = v
	}
	for k, v := range bindings {
		next[k] = v
	}
	return next
}
