package query

import (
	"fmt"
	"strings"
)

type sqlState int

const (
	sqlCode sqlState = iota
	sqlSingleQuote
	sqlDoubleQuote
	sqlBacktick
	sqlLineComment
	sqlBlockComment
)

// sqlScanner follows quoting and comments across the literal text of a
// template so each placeholder knows which SQL region it sits in.
type sqlScanner struct {
	state sqlState
}

func (s *sqlScanner) feed(text string) {
	for i := 0; i < len(text); i++ {
		c := text[i]
		switch s.state {
		case sqlCode:
			switch {
			case c == '\'':
				s.state = sqlSingleQuote
			case c == '"':
				s.state = sqlDoubleQuote
			case c == '`':
				s.state = sqlBacktick
			case c == '-' && i+1 < len(text) && text[i+1] == '-':
				s.state = sqlLineComment
				i++
			case c == '/' && i+1 < len(text) && text[i+1] == '*':
				s.state = sqlBlockComment
				i++
			}
		case sqlSingleQuote:
			if c == '\\' {
				i++
			} else if c == '\'' {
				s.state = sqlCode
			}
		case sqlDoubleQuote:
			if c == '\\' {
				i++
			} else if c == '"' {
				s.state = sqlCode
			}
		case sqlBacktick:
			if c == '`' {
				s.state = sqlCode
			}
		case sqlLineComment:
			if c == '\n' {
				s.state = sqlCode
			}
		case sqlBlockComment:
			if c == '*' && i+1 < len(text) && text[i+1] == '/' {
				s.state = sqlCode
				i++
			}
		}
	}
}

var numericKeywords = map[string]bool{
	"LIMIT":    true,
	"OFFSET":   true,
	"THEN":     true,
	"INTERVAL": true,
}

// inferRole fixes how a placeholder at offset start will be escaped
func (p *parser) inferRole(pipe *Pipeline, start int) (Role, error) {
	if pipe.serializes() {
		return RoleListLiteral, nil
	}

	switch p.sql.state {
	case sqlSingleQuote:
		return RoleStringLiteral, nil
	case sqlBacktick:
		return RoleRawIdentifier, nil
	case sqlDoubleQuote:
		return 0, fmt.Errorf("placeholders inside double-quoted literals are not supported")
	}

	name := pipe.BaseName()
	if name == indexBinding {
		return RoleRawNumeric, nil
	}
	if kind, ok := p.opts.kinds[name]; ok {
		switch kind {
		case KindInteger, KindFloat:
			return RoleRawNumeric, nil
		case KindStringList:
			return RoleListLiteral, nil
		default:
			return RoleRawIdentifier, nil
		}
	}
	if lit, ok := pipe.root.(*literalExpr); ok && lit.v.isNumeric() {
		return RoleRawNumeric, nil
	}
	if numericContext(p.src[:start]) {
		return RoleRawNumeric, nil
	}
	return RoleRawIdentifier, nil
}

// numericContext reports whether the SQL before a placeholder expects a number
func numericContext(before string) bool {
	before = strings.TrimRight(before, " \t\r\n")
	if before == "" {
		return false
	}
	if strings.ContainsRune("+-*/%<>=", rune(before[len(before)-1])) {
		return true
	}
	end := len(before)
	i := end
	for i > 0 && isWordByte(before[i-1]) {
		i--
	}
	return i < end && numericKeywords[strings.ToUpper(before[i:end])]
}

func isWordByte(c byte) bool {
	return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}
