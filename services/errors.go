package services

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType represents the type/category of error
type ErrorType string

const (
	ErrorTypeInvalidInput         ErrorType = "invalid_input"
	ErrorTypeInvalidCredentials   ErrorType = "invalid_credentials"
	ErrorTypeAuthenticationFailed ErrorType = "authentication_failed"
	ErrorTypeSessionInvalid       ErrorType = "session_invalid"
	ErrorTypeUnknownRole          ErrorType = "unknown_role"
	ErrorTypeUnauthorized         ErrorType = "unauthorized"
	ErrorTypeForbidden            ErrorType = "forbidden"
	ErrorTypeNotFound             ErrorType = "not_found"
	ErrorTypeInternal             ErrorType = "internal"
)

// DomainError represents a structured error with additional context.
// Status is only meaningful for internal errors mapped from an upstream response.
type DomainError struct {
	Type    ErrorType
	Message string
	Err     error
	Status  int
	Details map[string]interface{}
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// WithDetail adds a detail to the error
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewDomainError creates a new domain error
func NewDomainError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

// Domain error variables. Compare with errors.Is; never mutate them.
var (
	ErrInvalidInput         = NewDomainError(ErrorTypeInvalidInput, "email and password are required", nil)
	ErrInvalidCredentials   = NewDomainError(ErrorTypeInvalidCredentials, "invalid email or password", nil)
	ErrAuthenticationFailed = NewDomainError(ErrorTypeAuthenticationFailed, "authentication failed", nil)
	ErrSessionInvalid       = NewDomainError(ErrorTypeSessionInvalid, "session invalid or expired", nil)
	ErrUnknownRole          = NewDomainError(ErrorTypeUnknownRole, "role has no portal", nil)
	ErrUnauthorized         = NewDomainError(ErrorTypeUnauthorized, "authentication required", nil)
	ErrForbidden            = NewDomainError(ErrorTypeForbidden, "access forbidden", nil)
	ErrNotFound             = NewDomainError(ErrorTypeNotFound, "resource not found", nil)
)

// Error type checking helper functions

func hasType(err error, t ErrorType) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == t
	}
	return false
}

// IsInvalidInputError checks if an error is an invalid input error
func IsInvalidInputError(err error) bool { return hasType(err, ErrorTypeInvalidInput) }

// IsInvalidCredentialsError checks if an error is a rejected login
func IsInvalidCredentialsError(err error) bool { return hasType(err, ErrorTypeInvalidCredentials) }

// IsAuthenticationFailedError checks if an error is a failed login or profile lookup
func IsAuthenticationFailedError(err error) bool {
	return hasType(err, ErrorTypeAuthenticationFailed)
}

// IsSessionInvalidError checks if an error is a session decode failure
func IsSessionInvalidError(err error) bool { return hasType(err, ErrorTypeSessionInvalid) }

// IsUnknownRoleError checks if an error is an unknown role error
func IsUnknownRoleError(err error) bool { return hasType(err, ErrorTypeUnknownRole) }

// IsUnauthorizedError checks if an error is an unauthorized error
func IsUnauthorizedError(err error) bool { return hasType(err, ErrorTypeUnauthorized) }

// IsForbiddenError checks if an error is a forbidden error
func IsForbiddenError(err error) bool { return hasType(err, ErrorTypeForbidden) }

// IsNotFoundError checks if an error is a not found error
func IsNotFoundError(err error) bool { return hasType(err, ErrorTypeNotFound) }

// IsInternalError checks if an error is an internal error
func IsInternalError(err error) bool { return hasType(err, ErrorTypeInternal) }

// GetErrorType returns the ErrorType of a domain error, or empty string if not a domain error
func GetErrorType(err error) ErrorType {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type
	}
	return ""
}

// GetErrorMessage returns the caller-safe message of a domain error
func GetErrorMessage(err error) string {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Message
	}
	return ""
}

// GetErrorDetails returns the details map of a domain error, or nil if not a domain error
func GetErrorDetails(err error) map[string]interface{} {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Details
	}
	return nil
}

// GetErrorStatus returns the HTTP status carried by an internal error, defaulting to 500
func GetErrorStatus(err error) int {
	var domainErr *DomainError
	if errors.As(err, &domainErr) && domainErr.Status >= 400 && domainErr.Status <= 599 {
		return domainErr.Status
	}
	return http.StatusInternalServerError
}

// WrapInternal wraps an error as an internal error
func WrapInternal(message string, err error) error {
	return NewDomainError(ErrorTypeInternal, message, err)
}

// WrapAuthenticationFailed wraps a login or profile lookup failure
func WrapAuthenticationFailed(err error) error {
	return NewDomainError(ErrorTypeAuthenticationFailed, ErrAuthenticationFailed.Message, err)
}

// WrapSessionInvalid wraps a session decode failure
func WrapSessionInvalid(err error) error {
	return NewDomainError(ErrorTypeSessionInvalid, ErrSessionInvalid.Message, err)
}

// NewUpstreamError builds an internal error that preserves the upstream status
func NewUpstreamError(status int, err error) *DomainError {
	e := NewDomainError(ErrorTypeInternal, "upstream request failed", err)
	e.Status = status
	return e
}
