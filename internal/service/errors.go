package service

import (
	"errors"

	"github.com/aescanero/dago-node-sqltemplate/internal/query"
	"github.com/aescanero/dago-node-sqltemplate/internal/registry"
)

// ErrorKind returns a stable label for err, used in metrics and result payloads
func ErrorKind(err error) string {
	var renderErr *query.RenderError
	if errors.As(err, &renderErr) {
		return renderErr.Kind.String()
	}
	var parseErr *query.ParseError
	if errors.As(err, &parseErr) {
		return parseErr.Kind.String()
	}
	switch {
	case errors.Is(err, registry.ErrUnknownDomain):
		return "unknown_domain"
	case errors.Is(err, ErrMultipleStatements):
		return "multiple_statements"
	default:
		return "internal"
	}
}

// ErrorParameter returns the parameter or guard name carried by err, if any
func ErrorParameter(err error) string {
	var renderErr *query.RenderError
	if errors.As(err, &renderErr) {
		return renderErr.Name
	}
	return ""
}
