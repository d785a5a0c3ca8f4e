package statesync

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidKey   = errors.New("statesync: invalid key")
	ErrClosed       = errors.New("statesync: closed")
	ErrTypeMismatch = errors.New("statesync: key already holds a value of another type")
	ErrNilFetch     = errors.New("statesync: fetch function is required")
)

// TransportError is a network or connection failure: the request never
// produced a usable response.
type TransportError struct {
	Op  string // e.g. "GET", "decode"
	URL string
	Err error
}

func (e *TransportError) Error() string {
	if e.URL == "" {
		return fmt.Sprintf("transport: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("transport: %s %s: %v", e.Op, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ApplicationError is a non-success response carrying a server message.
// Error returns the message unchanged so it can be shown to the user as is.
type ApplicationError struct {
	Status  int
	Message string
}

func (e *ApplicationError) Error() string { return e.Message }

// IsTransport reports whether err is or wraps a *TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// AsApplication returns the *ApplicationError in err's chain, if any.
func AsApplication(err error) (*ApplicationError, bool) {
	var ae *ApplicationError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// IsApplication reports whether err is or wraps an *ApplicationError.
func IsApplication(err error) bool {
	_, ok := AsApplication(err)
	return ok
}

// PanicError is returned when a fetch or mutation function panics.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string { return fmt.Sprintf("statesync: function panicked: %v", e.Value) }

// InvalidateError reports persistence failures during Invalidate. The
// in-memory invalidation and any refetches still happened.
type InvalidateError struct {
	Key     string
	BumpErr error
	DelErr  error
}

func (e *InvalidateError) Error() string {
	switch {
	case e.BumpErr != nil && e.DelErr != nil:
		return fmt.Sprintf("invalidate %s: gen bump and delete failed: bump=%v; delete=%v",
			e.Key, e.BumpErr, e.DelErr)
	case e.BumpErr != nil:
		return fmt.Sprintf("invalidate %s: gen bump failed: %v", e.Key, e.BumpErr)
	case e.DelErr != nil:
		return fmt.Sprintf("invalidate %s: delete failed: %v", e.Key, e.DelErr)
	default:
		return fmt.Sprintf("invalidate %s: unknown error", e.Key)
	}
}

func (e *InvalidateError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.BumpErr != nil {
		errs = append(errs, e.BumpErr)
	}
	if e.DelErr != nil {
		errs = append(errs, e.DelErr)
	}
	return errs
}
