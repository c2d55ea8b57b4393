// Package errors defines the service error taxonomy shared across the token
// layer: coded errors that carry an HTTP status and optional detail fields.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode identifies a class of service error.
type ErrorCode string

const (
	CodeInvalidInput     ErrorCode = "invalid_input"
	CodeNotFound         ErrorCode = "not_found"
	CodeConflict         ErrorCode = "conflict"
	CodeUnauthorized     ErrorCode = "unauthorized"
	CodeForbidden        ErrorCode = "forbidden"
	CodeRateLimited      ErrorCode = "rate_limited"
	CodeValidationFailed ErrorCode = "validation_failed"
	CodeGatewayError     ErrorCode = "gateway_error"
	CodeDependency       ErrorCode = "dependency_error"
	CodeInternal         ErrorCode = "internal"
)

// ServiceError is the concrete error type returned across service boundaries.
type ServiceError struct {
	Code       ErrorCode              `json:"code"`
	Message    string                 `json:"message"`
	HTTPStatus int                    `json:"-"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Err        error                  `json:"-"`
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the wrapped cause for errors.Is / errors.As chains.
func (e *ServiceError) Unwrap() error {
	return e.Err
}

// WithDetails attaches a detail field and returns the error for chaining.
func (e *ServiceError) WithDetails(key string, value interface{}) *ServiceError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

func newError(code ErrorCode, status int, message string, err error) *ServiceError {
	return &ServiceError{Code: code, Message: message, HTTPStatus: status, Err: err}
}

// InvalidInput reports a malformed or missing request parameter.
func InvalidInput(message string) *ServiceError {
	return newError(CodeInvalidInput, http.StatusBadRequest, message, nil)
}

// NotFound reports a missing resource.
func NotFound(resource, id string) *ServiceError {
	msg := fmt.Sprintf("%s not found", resource)
	if id != "" {
		msg = fmt.Sprintf("%s %s not found", resource, id)
	}
	return newError(CodeNotFound, http.StatusNotFound, msg, nil)
}

// Conflict reports a state conflict, such as a concurrent operation in flight.
func Conflict(message string) *ServiceError {
	return newError(CodeConflict, http.StatusConflict, message, nil)
}

// Unauthorized reports missing or invalid credentials.
func Unauthorized(message string) *ServiceError {
	return newError(CodeUnauthorized, http.StatusUnauthorized, message, nil)
}

// Forbidden reports a valid identity lacking access.
func Forbidden(message string) *ServiceError {
	return newError(CodeForbidden, http.StatusForbidden, message, nil)
}

// RateLimitExceeded reports a throttled request.
func RateLimitExceeded(limit int, window string) *ServiceError {
	return newError(CodeRateLimited, http.StatusTooManyRequests,
		fmt.Sprintf("rate limit of %d requests per %s exceeded", limit, window), nil)
}

// ValidationFailed reports a policy validation result that blocks execution.
func ValidationFailed(message string) *ServiceError {
	return newError(CodeValidationFailed, http.StatusUnprocessableEntity, message, nil)
}

// GatewayError reports a transaction gateway failure.
func GatewayError(message string, err error) *ServiceError {
	return newError(CodeGatewayError, http.StatusBadGateway, message, err)
}

// Dependency reports a failure in an external collaborator.
func Dependency(service string, err error) *ServiceError {
	return newError(CodeDependency, http.StatusServiceUnavailable,
		fmt.Sprintf("%s unavailable", service), err)
}

// Internal reports an unexpected failure.
func Internal(message string, err error) *ServiceError {
	return newError(CodeInternal, http.StatusInternalServerError, message, err)
}

// InvalidToken reports an unusable bearer token.
func InvalidToken(err error) *ServiceError {
	return newError(CodeUnauthorized, http.StatusUnauthorized, "invalid token", err)
}

// GetServiceError returns the ServiceError in err's chain, or nil.
func GetServiceError(err error) *ServiceError {
	var svcErr *ServiceError
	if stderrors.As(err, &svcErr) {
		return svcErr
	}
	return nil
}

// IsCode reports whether err carries the given error code.
func IsCode(err error, code ErrorCode) bool {
	svcErr := GetServiceError(err)
	return svcErr != nil && svcErr.Code == code
}

// IsNotFound reports whether err is a not-found service error.
func IsNotFound(err error) bool {
	return IsCode(err, CodeNotFound)
}

// IsConflict reports whether err is a conflict service error.
func IsConflict(err error) bool {
	return IsCode(err, CodeConflict)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As finds the first error in err's chain matching target's type.
func As(err error, target interface{}) bool {
	return stderrors.As(err, target)
}
