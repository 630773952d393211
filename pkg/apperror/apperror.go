// Package apperror classifies business failures so the transport layer can
// map them to status codes without knowing about individual use cases.
package apperror

import (
	"errors"
	"sort"
	"strings"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindConflict
	KindValidation
	KindUnauthorized
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindValidation:
		return "validation"
	case KindUnauthorized:
		return "unauthorized"
	default:
		return "unknown"
	}
}

// Error is a classified business error. Two errors are considered the same
// (errors.Is) when their codes match, so sentinels can be enriched with
// per-field details and still be recognised by callers.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Fields  map[string]string
}

func (e *Error) Error() string {
	if len(e.Fields) == 0 {
		return e.Code + ": " + e.Message
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+" "+e.Fields[k])
	}
	return e.Code + ": " + e.Message + " (" + strings.Join(parts, "; ") + ")"
}

func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// WithFields returns a copy of e carrying the given per-field messages.
func (e *Error) WithFields(fields map[string]string) *Error {
	cp := *e
	cp.Fields = make(map[string]string, len(fields))
	for k, v := range fields {
		cp.Fields[k] = v
	}
	return &cp
}

func newError(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

func NotFound(code, msg string) *Error     { return newError(KindNotFound, code, msg) }
func Conflict(code, msg string) *Error     { return newError(KindConflict, code, msg) }
func Validation(code, msg string) *Error   { return newError(KindValidation, code, msg) }
func Unauthorized(code, msg string) *Error { return newError(KindUnauthorized, code, msg) }

// KindOf reports the kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// As is a shorthand for errors.As with an *Error target.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
