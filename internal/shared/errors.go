package shared

import "errors"

// Kind classifies failures for callers of the core.
type Kind string

const (
	KindUnknown      Kind = ""
	KindUnauthorized Kind = "unauthorized"
	KindForbidden    Kind = "forbidden"
	KindNotFound     Kind = "not_found"
	KindBadRequest   Kind = "bad_request"
	KindConflict     Kind = "conflict"
	KindInvalidState Kind = "invalid_state"
)

// Error is a sentinel carrying a machine readable kind.
type Error struct {
	Kind    Kind
	Message string
}

// NewError constructs a kinded sentinel.
func NewError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func (e *Error) Error() string {
	return e.Message
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var kerr *Error
	if errors.As(err, &kerr) {
		return kerr.Kind
	}
	return KindUnknown
}

// ErrUnauthorized indicates no authenticated caller.
var ErrUnauthorized = NewError(KindUnauthorized, "authentication required")
