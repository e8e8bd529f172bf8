// Package errs defines the request-facing error kinds every gateway
// endpoint reports and their HTTP status mapping.
package errs

import (
	"fmt"
	"net/http"
)

// Kind is one of the error kinds a client-facing operation can fail with.
type Kind int

const (
	Internal Kind = iota
	Validation
	Unauthorized
	Forbidden
	NotFound
	Conflict
	RateLimited
	Storage
	Timeout
)

func (k Kind) String() string {
	switch k {
	case Validation:
		return "validation_error"
	case Unauthorized:
		return "unauthorized"
	case Forbidden:
		return "forbidden"
	case NotFound:
		return "not_found"
	case Conflict:
		return "conflict"
	case RateLimited:
		return "rate_limited"
	case Storage:
		return "storage_error"
	case Timeout:
		return "timeout"
	default:
		return "internal_error"
	}
}

// Status returns the HTTP status code the gateway maps this kind onto.
func (k Kind) Status() int {
	switch k {
	case Validation:
		return http.StatusBadRequest
	case Unauthorized:
		return http.StatusUnauthorized
	case Forbidden:
		return http.StatusForbidden
	case NotFound:
		return http.StatusNotFound
	case Conflict:
		return http.StatusConflict
	case RateLimited:
		return http.StatusTooManyRequests
	case Storage:
		return http.StatusServiceUnavailable
	case Timeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// E is an error carrying a request-facing Kind and an optional cause.
type E struct {
	Kind  Kind
	Msg   string
	Cause error
}

func (e *E) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *E) Unwrap() error { return e.Cause }

// New builds an *E of the given kind with a formatted message.
func New(k Kind, format string, args ...interface{}) *E {
	return &E{Kind: k, Msg: fmt.Sprintf(format, args...)}
}

// Wrap builds an *E of the given kind, carrying cause for %w-style unwrapping.
func Wrap(k Kind, cause error, format string, args ...interface{}) *E {
	return &E{Kind: k, Msg: fmt.Sprintf(format, args...), Cause: cause}
}

// KindOf returns the Kind of err if it is (or wraps) an *E, else Internal.
func KindOf(err error) Kind {
	var e *E
	for err != nil {
		if x, ok := err.(*E); ok {
			e = x
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	if e == nil {
		return Internal
	}
	return e.Kind
}
