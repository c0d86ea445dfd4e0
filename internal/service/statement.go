package service

import (
	"errors"
	"strings"
)

// ErrMultipleStatements is returned when rendered SQL holds more than one statement
var ErrMultipleStatements = errors.New("multiple SQL statements not allowed")

// normalizeStatement trims the rendered SQL and a single trailing semicolon,
// then rejects any semicolon left outside literals and comments.
func normalizeStatement(sql string) (string, error) {
	sql = strings.TrimSpace(sql)
	if strings.HasSuffix(sql, ";") {
		sql = strings.TrimRight(strings.TrimSuffix(sql, ";"), " \t\r\n")
	}
	if hasSemicolonOutsideStrings(sql) {
		return "", ErrMultipleStatements
	}
	return sql, nil
}

func hasSemicolonOutsideStrings(sql string) bool {
	const (
		stateNormal = iota
		stateSingleQuote
		stateDoubleQuote
		stateBacktick
		stateLineComment
		stateBlockComment
	)

	state := stateNormal
	for i := 0; i < len(sql); i++ {
		c := sql[i]
		switch state {
		case stateNormal:
			switch {
			case c == ';':
				return true
			case c == '\'':
				state = stateSingleQuote
			case c == '"':
				state = stateDoubleQuote
			case c == '`':
				state = stateBacktick
			case c == '-' && i+1 < len(sql) && sql[i+1] == '-':
				state = stateLineComment
			case c == '/' && i+1 < len(sql) && sql[i+1] == '*':
				state = stateBlockComment
				i++
			}
		case stateSingleQuote:
			// A doubled quote exits and re-enters, which keeps us in the string
			if c == '\\' {
				i++
			} else if c == '\'' {
				state = stateNormal
			}
		case stateDoubleQuote:
			if c == '\\' {
				i++
			} else if c == '"' {
				state = stateNormal
			}
		case stateBacktick:
			if c == '`' {
				state = stateNormal
			}
		case stateLineComment:
			if c == '\n' {
				state = stateNormal
			}
		case stateBlockComment:
			if c == '*' && i+1 < len(sql) && sql[i+1] == '/' {
				state = stateNormal
				i++
			}
		}
	}
	return false
}
