package query

import "fmt"

// ParseErrorKind classifies template compilation failures
type ParseErrorKind int

const (
	UnknownDirective ParseErrorKind = iota + 1
	UnterminatedBlock
	UnmatchedClose
	MalformedExpression
)

func (k ParseErrorKind) String() string {
	switch k {
	case UnknownDirective:
		return "unknown_directive"
	case UnterminatedBlock:
		return "unterminated_block"
	case UnmatchedClose:
		return "unmatched_close"
	case MalformedExpression:
		return "malformed_expression"
	default:
		return "parse_error"
	}
}

// ParseError is returned when a template source cannot be compiled
type ParseError struct {
	Kind   ParseErrorKind
	Domain string
	Line   int
	Detail string
}

func (e *ParseError) Error() string {
	if e.Domain == "" {
		return fmt.Sprintf("%s at line %d: %s", e.Kind, e.Line, e.Detail)
	}
	return fmt.Sprintf("%s: %s at line %d: %s", e.Domain, e.Kind, e.Line, e.Detail)
}

// Is matches another ParseError of the same kind, so the sentinels below
// work with errors.Is.
func (e *ParseError) Is(target error) bool {
	t, ok := target.(*ParseError)
	return ok && t.Kind == e.Kind && t.Line == 0
}

// RenderErrorKind classifies failures while rendering a compiled template
type RenderErrorKind int

const (
	MissingParameter RenderErrorKind = iota + 1
	UndefinedIterable
	UnsafeIdentifier
	InvalidNumeric
	UnknownQueryType
	TypeMismatch
	GuardViolation
)

func (k RenderErrorKind) String() string {
	switch k {
	case MissingParameter:
		return "missing_parameter"
	case UndefinedIterable:
		return "undefined_iterable"
	case UnsafeIdentifier:
		return "unsafe_identifier"
	case InvalidNumeric:
		return "invalid_numeric"
	case UnknownQueryType:
		return "unknown_query_type"
	case TypeMismatch:
		return "type_mismatch"
	case GuardViolation:
		return "guard_violation"
	default:
		return "render_error"
	}
}

// RenderError is returned when a render call fails. Name carries the
// parameter involved and Value the offending value, when known.
type RenderError struct {
	Kind   RenderErrorKind
	Name   string
	Value  string
	Detail string
}

func (e *RenderError) Error() string {
	msg := e.Kind.String()
	if e.Name != "" {
		msg += fmt.Sprintf(" %q", e.Name)
	}
	if e.Value != "" {
		msg += fmt.Sprintf(" (value %q)", e.Value)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// Is matches another RenderError of the same kind
func (e *RenderError) Is(target error) bool {
	t, ok := target.(*RenderError)
	return ok && t.Kind == e.Kind && t.Name == "" && t.Value == ""
}

// Sentinels for errors.Is
var (
	ErrUnknownDirective    = &ParseError{Kind: UnknownDirective}
	ErrUnterminatedBlock   = &ParseError{Kind: UnterminatedBlock}
	ErrUnmatchedClose      = &ParseError{Kind: UnmatchedClose}
	ErrMalformedExpression = &ParseError{Kind: MalformedExpression}

	ErrMissingParameter  = &RenderError{Kind: MissingParameter}
	ErrUndefinedIterable = &RenderError{Kind: UndefinedIterable}
	ErrUnsafeIdentifier  = &RenderError{Kind: UnsafeIdentifier}
	ErrInvalidNumeric    = &RenderError{Kind: InvalidNumeric}
	ErrUnknownQueryType  = &RenderError{Kind: UnknownQueryType}
	ErrTypeMismatch      = &RenderError{Kind: TypeMismatch}
	ErrGuardViolation    = &RenderError{Kind: GuardViolation}
)
