package client

import (
	"errors"
	"fmt"
)

// Kind classifies a failed API call.
type Kind int

const (
	KindNetwork Kind = iota + 1
	KindServer
	KindValidation
	KindNotFound
	KindUnauthorized
)

var (
	ErrNetwork      = errors.New("network error")
	ErrServer       = errors.New("server error")
	ErrValidation   = errors.New("validation error")
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindServer:
		return "server"
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindUnauthorized:
		return "unauthorized"
	default:
		return "unknown"
	}
}

func (k Kind) sentinel() error {
	switch k {
	case KindNetwork:
		return ErrNetwork
	case KindServer:
		return ErrServer
	case KindValidation:
		return ErrValidation
	case KindNotFound:
		return ErrNotFound
	case KindUnauthorized:
		return ErrUnauthorized
	default:
		return nil
	}
}

// Error is returned by every Client method that fails. Use errors.Is with
// the Err* sentinels to branch on the kind.
type Error struct {
	Kind    Kind
	Op      string
	Status  int    // HTTP status, zero for transport failures
	Message string // server supplied text, if any
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Status != 0 {
		return fmt.Sprintf("%s: %s (%d): %s", e.Op, e.Kind, e.Status, msg)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, msg)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	return target != nil && target == e.Kind.sentinel()
}

// KindOf reports the kind of err, or zero when err did not come from a
// Client call.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

func kindForStatus(code int) Kind {
	switch {
	case code == 400 || code == 422:
		return KindValidation
	case code == 401 || code == 403:
		return KindUnauthorized
	case code == 404:
		return KindNotFound
	default:
		return KindServer
	}
}
