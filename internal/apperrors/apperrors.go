// Package apperrors defines the pipeline's error taxonomy. Every
// failure that can surface to a caller carries one of these codes; the
// HTTP boundary maps codes to status lines in exactly one place.
package apperrors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Code identifies a failure class on the wire.
type Code string

const (
	CodeInvalidImage        Code = "INVALID_IMAGE"
	CodeRateLimited         Code = "RATE_LIMITED"
	CodeUpstreamRateLimited Code = "UPSTREAM_RATE_LIMITED"
	CodeUpstreamAuth        Code = "UPSTREAM_AUTH"
	CodeUpstreamMalformed   Code = "UPSTREAM_MALFORMED"
	CodeUpstreamEmpty       Code = "UPSTREAM_EMPTY"
	CodeTimeout             Code = "TIMEOUT"
	CodeServerConfig        Code = "SERVER_CONFIG"
	CodeUnexpected          Code = "UNEXPECTED"
)

// Error pairs a taxonomy code with a caller-safe message and an
// optional wrapped cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New builds a coded error without a cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap builds a coded error around a cause.
func Wrap(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// CodeOf extracts the taxonomy code from err. Context cancellation and
// deadline expiry count as timeouts; anything uncoded is unexpected.
func CodeOf(err error) Code {
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Code
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return CodeTimeout
	}
	return CodeUnexpected
}

// MessageOf returns the caller-safe message for err.
func MessageOf(err error) string {
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Message
	}
	if CodeOf(err) == CodeTimeout {
		return "request timed out"
	}
	return "internal server error"
}

// HTTPStatus maps a taxonomy code to its response status.
func HTTPStatus(code Code) int {
	switch code {
	case CodeInvalidImage:
		return http.StatusBadRequest
	case CodeRateLimited, CodeUpstreamRateLimited:
		return http.StatusTooManyRequests
	case CodeUpstreamAuth:
		return http.StatusUnauthorized
	case CodeUpstreamMalformed, CodeUpstreamEmpty:
		return http.StatusBadGateway
	case CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
