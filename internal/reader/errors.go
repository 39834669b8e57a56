package reader

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformed marks structurally invalid documents.
	ErrMalformed = errors.New("malformed document")
	// ErrEncoding marks input that cannot be decoded as text.
	ErrEncoding = errors.New("undecodable encoding")
)

// ParseError is a file-scoped failure raised while reading a document.
type ParseError struct {
	Path string
	Line int64
	Kind error
	Err  error
}

func (e *ParseError) Error() string {
	loc := e.Path
	if e.Line > 0 {
		loc = fmt.Sprintf("%s:%d", e.Path, e.Line)
	}
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", loc, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", loc, e.Kind, e.Err)
}

// Unwrap exposes both the kind sentinel and the cause.
func (e *ParseError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func parseError(path string, line int64, kind, err error) error {
	var pe *ParseError
	if errors.As(err, &pe) {
		if pe.Path == "" {
			pe.Path = path
		}
		return pe
	}
	return &ParseError{Path: path, Line: line, Kind: kind, Err: err}
}
