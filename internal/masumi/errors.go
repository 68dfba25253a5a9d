package masumi

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrServiceError   = errors.New("payment service error")
	ErrNetwork        = errors.New("network error")
)

const maxErrorBody = 512

// Error describes a failed call to the payment service. Err is one of the
// package sentinels; Cause carries the transport error, if any.
type Error struct {
	Op         string
	StatusCode int
	Body       string
	Err        error
	Cause      error
}

func (e *Error) Error() string {
	switch {
	case e.Cause != nil:
		return fmt.Sprintf("masumi %s: %v: %v", e.Op, e.Err, e.Cause)
	case e.Body != "":
		return fmt.Sprintf("masumi %s: %v (status %d): %s", e.Op, e.Err, e.StatusCode, e.Body)
	default:
		return fmt.Sprintf("masumi %s: %v (status %d)", e.Op, e.Err, e.StatusCode)
	}
}

func (e *Error) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Err, e.Cause}
	}
	return []error{e.Err}
}

func statusError(op string, code int, body []byte) *Error {
	var sentinel error
	switch code {
	case http.StatusBadRequest:
		sentinel = ErrInvalidRequest
	case http.StatusUnauthorized:
		sentinel = ErrUnauthorized
	default:
		sentinel = ErrServiceError
	}
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	return &Error{Op: op, StatusCode: code, Body: string(body), Err: sentinel}
}

func networkError(op string, cause error) *Error {
	return &Error{Op: op, Err: ErrNetwork, Cause: cause}
}
