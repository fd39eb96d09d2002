package escrow

import (
	"errors"
	"fmt"
)

// Kind classifies a business failure. Every core operation either succeeds
// or returns an *Error carrying one of these kinds; the controller layer
// maps kinds to HTTP status classes. Infrastructure faults (store down,
// broker down) are wrapped and propagated as plain errors instead.
type Kind string

const (
	KindNotAuthorized   Kind = "not_authorized"
	KindInvalidState    Kind = "invalid_state"
	KindAlreadyExists   Kind = "already_exists"
	KindInvalidArgument Kind = "invalid_argument"
	KindNotFound        Kind = "not_found"
	KindTooEarly        Kind = "too_early"
	KindSystemPaused    Kind = "system_paused"
	KindNoChange        Kind = "no_change"
	// KindContention is returned when a bounded lock wait expires. Callers
	// may retry.
	KindContention Kind = "contention"
)

type Error struct {
	Kind Kind
	Op   string
	Msg  string
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Msg)
}

// Errf builds a typed business error.
func Errf(kind Kind, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// KindOf extracts the kind from an error chain, or "" for plain errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
