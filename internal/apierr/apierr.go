// Package apierr defines the closed failure taxonomy shared by the relay
// pipeline and the two wire-level error translators.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind identifies one of the closed failure categories.
type Kind string

const (
	KindValidation     Kind = "validation"
	KindModelNotFound  Kind = "model_not_found"
	KindAuthentication Kind = "authentication"
	KindRateLimit      Kind = "rate_limit"
	KindAPI            Kind = "api"
)

// Failure is a typed relay failure. Every pipeline error that should reach
// the caller is one of these; anything else is treated as an internal fault.
type Failure struct {
	Kind    Kind
	Message string
	Param   string
	Code    string
	Status  int
}

func (f *Failure) Error() string {
	return f.Message
}

// Validation builds a client error for a malformed or unsupported request.
func Validation(message string) *Failure {
	return &Failure{
		Kind:    KindValidation,
		Message: message,
		Status:  http.StatusBadRequest,
	}
}

// ValidationField builds a validation failure tagged with the offending
// request field and a machine-readable code.
func ValidationField(message, param, code string) *Failure {
	return &Failure{
		Kind:    KindValidation,
		Message: message,
		Param:   param,
		Code:    code,
		Status:  http.StatusBadRequest,
	}
}

// ModelNotFound reports a model id absent from the catalog.
func ModelNotFound(model string) *Failure {
	return &Failure{
		Kind:    KindModelNotFound,
		Message: fmt.Sprintf("model %q does not exist", model),
		Param:   "model",
		Code:    "model_not_found",
		Status:  http.StatusNotFound,
	}
}

// Authentication reports missing or invalid credentials.
func Authentication(message string) *Failure {
	return &Failure{
		Kind:    KindAuthentication,
		Message: message,
		Status:  http.StatusUnauthorized,
	}
}

// RateLimit reports an exhausted upstream or local quota.
func RateLimit(message string) *Failure {
	return &Failure{
		Kind:    KindRateLimit,
		Message: message,
		Status:  http.StatusTooManyRequests,
	}
}

// API wraps a generic upstream failure. The wrapped status is kept when it
// is an error status; anything else degrades to 502.
func API(status int, message string) *Failure {
	if status < http.StatusBadRequest || status > 599 {
		status = http.StatusBadGateway
	}
	return &Failure{
		Kind:    KindAPI,
		Message: message,
		Status:  status,
	}
}

// AsFailure extracts a typed failure from an error chain.
func AsFailure(err error) (*Failure, bool) {
	var f *Failure
	if errors.As(err, &f) && f != nil {
		return f, true
	}
	return nil, false
}

func safeStatus(status int) int {
	if status < 100 || status > 599 {
		return http.StatusInternalServerError
	}
	return status
}
