// Package apierr defines the error codes returned by the HTTP API and the
// JSON envelope every response uses.
package apierr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"aqua-launchpad/internal/storage"
)

// Code is a stable machine-readable error code.
type Code string

const (
	CodeInvalidRequest         Code = "INVALID_REQUEST"
	CodeUnauthorized           Code = "UNAUTHORIZED"
	CodeForbidden              Code = "FORBIDDEN"
	CodeNotFound               Code = "NOT_FOUND"
	CodeConflict               Code = "CONFLICT"
	CodeRateLimited            Code = "RATE_LIMITED"
	CodeClaimInProgress        Code = "CLAIM_IN_PROGRESS"
	CodeBelowMinimum           Code = "BELOW_MINIMUM"
	CodeCooldownActive         Code = "COOLDOWN_ACTIVE"
	CodeConcurrentModification Code = "CONCURRENT_MODIFICATION"
	CodePayoutFailed           Code = "PAYOUT_FAILED"
	CodeInsufficientFunds      Code = "INSUFFICIENT_FUNDS"
	CodePriceUnavailable       Code = "PRICE_UNAVAILABLE"
	CodeUpstream               Code = "UPSTREAM_ERROR"
	CodeInternal               Code = "INTERNAL"
)

// Error is an error with an HTTP status and a public message.
type Error struct {
	Status  int
	Code    Code
	Message string
	Err     error // internal cause, never sent to clients

	base *Error // the sentinel this error was derived from
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel an error was derived from with WithCause or WithMessage.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && e.base != nil && e.base == t
}

// WithCause returns a copy of e carrying an internal cause.
func (e *Error) WithCause(err error) *Error {
	c := e.derive()
	c.Err = err
	return c
}

// WithMessage returns a copy of e with a more specific public message.
func (e *Error) WithMessage(msg string) *Error {
	c := e.derive()
	c.Message = msg
	return c
}

func (e *Error) derive() *Error {
	c := *e
	if e.base == nil {
		c.base = e
	}
	return &c
}

// New creates an Error.
func New(status int, code Code, msg string) *Error {
	return &Error{Status: status, Code: code, Message: msg}
}

// Wrap creates an Error carrying an internal cause.
func Wrap(status int, code Code, msg string, err error) *Error {
	return &Error{Status: status, Code: code, Message: msg, Err: err}
}

// Constructors for common cases.
func BadRequest(msg string) *Error   { return New(http.StatusBadRequest, CodeInvalidRequest, msg) }
func Unauthorized(msg string) *Error { return New(http.StatusUnauthorized, CodeUnauthorized, msg) }
func Forbidden(msg string) *Error    { return New(http.StatusForbidden, CodeForbidden, msg) }
func NotFound(msg string) *Error     { return New(http.StatusNotFound, CodeNotFound, msg) }
func Upstream(msg string, err error) *Error {
	return Wrap(http.StatusBadGateway, CodeUpstream, msg, err)
}

// From maps any error to an *Error. Errors that already carry a code keep it;
// storage sentinels map to their natural status; everything else is INTERNAL.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return Wrap(http.StatusNotFound, CodeNotFound, "not found", err)
	case errors.Is(err, storage.ErrDuplicateKey):
		return Wrap(http.StatusConflict, CodeConflict, "already exists", err)
	case errors.Is(err, storage.ErrInvalidInput):
		return Wrap(http.StatusBadRequest, CodeInvalidRequest, "invalid input", err)
	case errors.Is(err, storage.ErrConflict):
		return Wrap(http.StatusConflict, CodeConcurrentModification, "record modified concurrently, retry", err)
	case errors.Is(err, context.DeadlineExceeded):
		return Wrap(http.StatusGatewayTimeout, CodeUpstream, "request timed out", err)
	}
	return Wrap(http.StatusInternalServerError, CodeInternal, "internal error", err)
}

// Envelope is the body of every API response.
type Envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Code    Code        `json:"code,omitempty"`
}

// WriteJSON writes a success envelope.
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	write(w, status, Envelope{Success: true, Data: data})
}

// WriteError writes a failure envelope for err and returns the mapped error.
func WriteError(w http.ResponseWriter, err error) *Error {
	e := From(err)
	write(w, e.Status, Envelope{Success: false, Error: e.Message, Code: e.Code})
	return e
}

func write(w http.ResponseWriter, status int, body Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
