// Package overpass implements a client for the Overpass API: query
// construction, slot-gated admission, bounded-concurrency execution with
// retry on transient failures, and result shaping.
package overpass

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode classifies failures of the Overpass query subsystem.
type ErrorCode string

// Standard error codes
const (
	// Query construction errors
	ErrInvalidQuery ErrorCode = "INVALID_QUERY"
	ErrInvalidInput ErrorCode = "INVALID_INPUT"

	// Admission and service errors
	ErrSlotTimeout        ErrorCode = "SLOT_TIMEOUT"
	ErrRateLimit          ErrorCode = "RATE_LIMIT"
	ErrServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	ErrServiceTimeout     ErrorCode = "SERVICE_TIMEOUT"
	ErrNetworkError       ErrorCode = "NETWORK_ERROR"

	// Data errors
	ErrParseError    ErrorCode = "PARSE_ERROR"
	ErrInternalError ErrorCode = "INTERNAL_ERROR"
)

// Error is a structured error for Overpass operations
type Error struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Query    string `json:"query,omitempty"`
	Guidance string `json:"guidance,omitempty"`
}

// Error implements the error interface
func (e Error) Error() string {
	if e.Guidance != "" {
		return fmt.Sprintf("%s: %s. %s", e.Code, e.Message, e.Guidance)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewError creates a new Error with the given code and message
func NewError(code ErrorCode, message string) *Error {
	return &Error{
		Code:    string(code),
		Message: message,
	}
}

// WithQuery adds the offending query text to the error
func (e *Error) WithQuery(query string) *Error {
	e.Query = query
	return e
}

// WithGuidance adds guidance information to the error
func (e *Error) WithGuidance(guidance string) *Error {
	e.Guidance = guidance
	return e
}

// ServiceError creates an error for an Overpass response status
func ServiceError(statusCode int, message string) *Error {
	var code ErrorCode
	var guidance string

	switch statusCode {
	case http.StatusTooManyRequests:
		code = ErrRateLimit
		guidance = "The Overpass API is rate-limited. Please try again in a few moments."
	case http.StatusGatewayTimeout, http.StatusRequestTimeout:
		code = ErrServiceTimeout
		guidance = "The request timed out. Try reducing the search area or simplifying the query."
	case http.StatusBadRequest:
		code = ErrInvalidInput
		guidance = "The query was rejected. Check the tag filters and location selector."
	case http.StatusInternalServerError, http.StatusServiceUnavailable:
		code = ErrServiceUnavailable
		guidance = "The Overpass API is temporarily unavailable. Please try again later."
	default:
		code = ErrServiceUnavailable
		guidance = "Please try again later or modify the query parameters."
	}

	return NewError(code, message).WithGuidance(guidance)
}

// IsCode reports whether err is an *Error carrying the given code
func IsCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == string(code)
	}
	return false
}

// retryableStatus reports whether an HTTP status is worth another attempt.
// Anything else non-2xx is terminal and consumes no retry budget.
func retryableStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusServiceUnavailable:
		return true
	}
	return false
}
