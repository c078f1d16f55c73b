package wabbitlearn

import (
	"errors"
	"fmt"
)

// Kind classifies an Error so callers (in particular the serving loop
// and the training driver) can decide whether to recover or abort.
type Kind int

const (
	_ Kind = iota
	ConfigError
	ParseError
	UnknownNamespace
	IoError
	CacheIncompatible
	SnapshotIncompatible
	ArithmeticError
	ProtocolError
)

func (k Kind) String() string {
	switch k {
	case ConfigError:
		return "ConfigError"
	case ParseError:
		return "ParseError"
	case UnknownNamespace:
		return "UnknownNamespace"
	case IoError:
		return "IoError"
	case CacheIncompatible:
		return "CacheIncompatible"
	case SnapshotIncompatible:
		return "SnapshotIncompatible"
	case ArithmeticError:
		return "ArithmeticError"
	case ProtocolError:
		return "ProtocolError"
	default:
		return "Unknown"
	}
}

// Error wraps one of the Kind values from spec with a message and an
// optional underlying cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf reports the Kind carried by err, walking the Unwrap chain so
// callers can inspect errors returned wrapped by fmt.Errorf("%w", ...).
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

func newErr(k Kind, msg string, cause error) *Error {
	return &Error{Kind: k, Msg: msg, Err: cause}
}

func newErrf(k Kind, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: k, Msg: fmt.Sprintf(format, args...), Err: cause}
}
