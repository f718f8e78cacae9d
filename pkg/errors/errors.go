package errors

import (
	"errors"
	"fmt"
)

// ErrorType classifies failures coming out of the Weibo client
type ErrorType string

const (
	ErrorTypeNetwork     ErrorType = "network"
	ErrorTypeRateLimit   ErrorType = "rate_limit"
	ErrorTypeAPI         ErrorType = "api"
	ErrorTypeAuth        ErrorType = "auth"
	ErrorTypeParsing     ErrorType = "parsing"
	ErrorTypeNotFound    ErrorType = "not_found"
	ErrorTypeServerError ErrorType = "server_error"
	ErrorTypeConfig      ErrorType = "config"
	ErrorTypeUnknown     ErrorType = "unknown"
)

// Vendor error codes that mean "slow down" rather than "give up".
const (
	CodeIPRateLimit       = 10022
	CodeUserRateLimit     = 10023
	CodeResourceRateLimit = 10024
)

// Error is the typed error returned by the transport and the harvest layers.
// Code carries either the HTTP status or the vendor error_code.
type Error struct {
	Type     ErrorType
	Message  string
	Code     int
	Endpoint string
	Err      error
}

func (e *Error) Error() string {
	if e.Endpoint != "" {
		return fmt.Sprintf("weibo %s error (code %d) on %s: %s", e.Type, e.Code, e.Endpoint, e.Message)
	}
	return fmt.Sprintf("weibo %s error (code %d): %s", e.Type, e.Code, e.Message)
}

// Unwrap exposes the underlying cause, if any
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a typed error
func New(t ErrorType, code int, msg string) *Error {
	return &Error{Type: t, Code: code, Message: msg}
}

// Wrap creates a typed error around a cause
func Wrap(t ErrorType, err error, msg string) *Error {
	return &Error{Type: t, Message: fmt.Sprintf("%s: %v", msg, err), Err: err}
}

// Config reports an invalid harvest request or configuration. Never retried.
func Config(format string, args ...interface{}) *Error {
	return &Error{Type: ErrorTypeConfig, Message: fmt.Sprintf(format, args...)}
}

// IsRateLimitCode reports whether a vendor error_code is one of the rate-limit codes
func IsRateLimitCode(code int) bool {
	switch code {
	case CodeIPRateLimit, CodeUserRateLimit, CodeResourceRateLimit:
		return true
	}
	return false
}

// TypeOf returns the ErrorType carried by err, or ErrorTypeUnknown
func TypeOf(err error) ErrorType {
	var e *Error
	if errors.As(err, &e) {
		return e.Type
	}
	return ErrorTypeUnknown
}

// IsRateLimit reports whether err should be resolved by the backoff policy
func IsRateLimit(err error) bool {
	return err != nil && TypeOf(err) == ErrorTypeRateLimit
}

// IsNetwork reports whether err is a connection level failure
func IsNetwork(err error) bool {
	return err != nil && TypeOf(err) == ErrorTypeNetwork
}

// IsConfig reports whether err is a fatal configuration error
func IsConfig(err error) bool {
	return err != nil && TypeOf(err) == ErrorTypeConfig
}

// IsRetryable reports whether an error type may succeed on a later attempt
func IsRetryable(t ErrorType) bool {
	switch t {
	case ErrorTypeNetwork, ErrorTypeRateLimit, ErrorTypeServerError, ErrorTypeNotFound:
		return true
	default:
		return false
	}
}
