package query

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.]*$`)

// emptyListMarker is what an empty list renders as in list position
const emptyListMarker = "NULL"

// Escape renders a value for the given role. It is pure: the same value and
// role always produce the same text.
func Escape(v Value, role Role) (string, error) {
	return escapeResult(plain(v), role, "")
}

// IsSafeIdentifier reports whether s may be spliced as a raw identifier.
// Dotted paths are allowed, empty segments are not.
func IsSafeIdentifier(s string) bool {
	if !identifierPattern.MatchString(s) {
		return false
	}
	return !strings.Contains(s, "..") && !strings.HasSuffix(s, ".")
}

func quoteLiteral(s string) string {
	return "'" + escapeString(s) + "'"
}

// literalEscaper doubles quotes and backslashes. BigQuery reads \ as an
// escape inside '...', so a lone backslash could otherwise end the literal.
var literalEscaper = strings.NewReplacer(`\`, `\\`, `'`, `''`)

func escapeString(s string) string {
	return literalEscaper.Replace(s)
}

func escapeResult(r result, role Role, name string) (string, error) {
	if role == RoleListLiteral {
		return escapeList(r, name)
	}
	if r.form != formPlain {
		return "", &RenderError{Kind: TypeMismatch, Name: name, Detail: "serialized list in " + role.String() + " position"}
	}

	v := r.v
	switch v.kind {
	case KindUndefined:
		return "", &RenderError{Kind: MissingParameter, Name: name}
	case KindStringList:
		return "", &RenderError{Kind: TypeMismatch, Name: name, Value: v.String(), Detail: "list in " + role.String() + " position"}
	}

	switch role {
	case RoleStringLiteral:
		return escapeString(v.Text()), nil
	case RoleRawIdentifier:
		text := v.Text()
		if !IsSafeIdentifier(text) {
			return "", &RenderError{Kind: UnsafeIdentifier, Name: name, Value: text}
		}
		return text, nil
	case RoleRawNumeric:
		return canonicalNumber(v, name)
	}
	return "", &RenderError{Kind: TypeMismatch, Name: name, Detail: "unknown role"}
}

func canonicalNumber(v Value, name string) (string, error) {
	switch v.kind {
	case KindInteger:
		return strconv.FormatInt(v.i, 10), nil
	case KindFloat:
		if math.IsNaN(v.f) || math.IsInf(v.f, 0) {
			break
		}
		return strconv.FormatFloat(v.f, 'f', -1, 64), nil
	case KindString:
		s := strings.TrimSpace(v.s)
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return strconv.FormatInt(i, 10), nil
		}
		if f, err := parseFiniteFloat(s); err == nil {
			return strconv.FormatFloat(f, 'f', -1, 64), nil
		}
	}
	return "", &RenderError{Kind: InvalidNumeric, Name: name, Value: v.Text()}
}

func escapeList(r result, name string) (string, error) {
	switch r.form {
	case formRaw:
		return r.raw, nil
	case formQuoted:
		return joinQuoted(r.items), nil
	}
	items, err := quotedItems(name, r)
	if err != nil {
		return "", err
	}
	return joinQuoted(items), nil
}

func joinQuoted(items []string) string {
	if len(items) == 0 {
		return emptyListMarker
	}
	return strings.Join(items, ", ")
}
