// Package errors provides application-level error types and utilities.
// It defines the coordinator's error taxonomy: rate limiting, funding,
// authorization, host transport, ledger, and invariant errors.
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrorType represents the type of error
type ErrorType string

const (
	ErrorTypeValidation          ErrorType = "validation_error"
	ErrorTypeNotFound            ErrorType = "not_found"
	ErrorTypeConflict            ErrorType = "conflict"
	ErrorTypeInternal            ErrorType = "internal_error"
	ErrorTypeRateLimited         ErrorType = "rate_limited"
	ErrorTypeInsufficientFunds   ErrorType = "insufficient_funds"
	ErrorTypeAuthorizationDenied ErrorType = "authorization_denied"
	ErrorTypeHostUnavailable     ErrorType = "host_unavailable"
	ErrorTypeLedgerTimeout       ErrorType = "ledger_timeout"
	ErrorTypeInvariantViolation  ErrorType = "invariant_violation"
)

// AppError represents an application error with additional context
type AppError struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
	Code    int       `json:"code"`
	Details string    `json:"details,omitempty"`

	// RetryAfter is set on rate-limit errors: the instant the caller may retry.
	RetryAfter time.Time `json:"retry_after,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Type, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Retryable reports whether the caller may retry the same operation locally.
// Rate-limit and host errors are recoverable; ledger and authorization errors
// surface to the caller with the session in a well-defined state.
func (e *AppError) Retryable() bool {
	return e.Type == ErrorTypeRateLimited || e.Type == ErrorTypeHostUnavailable
}

func newError(t ErrorType, code int, message string, details ...string) *AppError {
	detail := ""
	if len(details) > 0 {
		detail = details[0]
	}
	return &AppError{
		Type:    t,
		Message: message,
		Code:    code,
		Details: detail,
	}
}

// NewValidationError creates a new validation error
func NewValidationError(message string, details ...string) *AppError {
	return newError(ErrorTypeValidation, http.StatusBadRequest, message, details...)
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(message string, details ...string) *AppError {
	return newError(ErrorTypeNotFound, http.StatusNotFound, message, details...)
}

// NewConflictError creates a new conflict error
func NewConflictError(message string, details ...string) *AppError {
	return newError(ErrorTypeConflict, http.StatusConflict, message, details...)
}

// NewInternalError creates a new internal error
func NewInternalError(message string, details ...string) *AppError {
	return newError(ErrorTypeInternal, http.StatusInternalServerError, message, details...)
}

// NewRateLimitedError creates a rate-limit error. retryAfter is the window
// reset instant; denial never extends the window.
func NewRateLimitedError(message string, retryAfter time.Time, details ...string) *AppError {
	err := newError(ErrorTypeRateLimited, http.StatusTooManyRequests, message, details...)
	err.RetryAfter = retryAfter
	return err
}

// NewInsufficientFundsError indicates the client must deposit or top up before retrying.
func NewInsufficientFundsError(message string, details ...string) *AppError {
	return newError(ErrorTypeInsufficientFunds, http.StatusPaymentRequired, message, details...)
}

// NewAuthorizationDeniedError indicates the user rejected the signer prompt.
// Not retried automatically.
func NewAuthorizationDeniedError(message string, details ...string) *AppError {
	return newError(ErrorTypeAuthorizationDenied, http.StatusForbidden, message, details...)
}

// NewHostUnavailableError indicates a host transport failure. Retryable;
// session state is unaffected.
func NewHostUnavailableError(message string, details ...string) *AppError {
	return newError(ErrorTypeHostUnavailable, http.StatusBadGateway, message, details...)
}

// NewLedgerTimeoutError indicates the ledger could not confirm within the
// bounded retry budget.
func NewLedgerTimeoutError(message string, details ...string) *AppError {
	return newError(ErrorTypeLedgerTimeout, http.StatusGatewayTimeout, message, details...)
}

// NewInvariantViolationError indicates a money-safety invariant was breached.
// Always fatal to the current session, never silently clamped.
func NewInvariantViolationError(message string, details ...string) *AppError {
	return newError(ErrorTypeInvariantViolation, http.StatusConflict, message, details...)
}

// IsAppError checks if the error is an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// GetAppError extracts AppError from error
func GetAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return nil
}

func isType(err error, t ErrorType) bool {
	appErr := GetAppError(err)
	return appErr != nil && appErr.Type == t
}

// IsNotFoundError checks if the error is a not found error
func IsNotFoundError(err error) bool {
	return isType(err, ErrorTypeNotFound)
}

// IsValidationError checks if the error is a validation error
func IsValidationError(err error) bool {
	return isType(err, ErrorTypeValidation)
}

// IsConflictError checks if the error is a conflict error
func IsConflictError(err error) bool {
	return isType(err, ErrorTypeConflict)
}

// IsRateLimitedError checks if the error is a rate-limit error
func IsRateLimitedError(err error) bool {
	return isType(err, ErrorTypeRateLimited)
}

// IsInsufficientFundsError checks if the error is an insufficient-funds error
func IsInsufficientFundsError(err error) bool {
	return isType(err, ErrorTypeInsufficientFunds)
}

// IsAuthorizationDeniedError checks if the error is a signer rejection
func IsAuthorizationDeniedError(err error) bool {
	return isType(err, ErrorTypeAuthorizationDenied)
}

// IsHostUnavailableError checks if the error is a host transport failure
func IsHostUnavailableError(err error) bool {
	return isType(err, ErrorTypeHostUnavailable)
}

// IsLedgerTimeoutError checks if the error is a ledger confirmation timeout
func IsLedgerTimeoutError(err error) bool {
	return isType(err, ErrorTypeLedgerTimeout)
}

// IsInvariantViolationError checks if the error is an invariant violation
func IsInvariantViolationError(err error) bool {
	return isType(err, ErrorTypeInvariantViolation)
}

// IsRetryable reports whether the error is locally retryable by the caller.
func IsRetryable(err error) bool {
	appErr := GetAppError(err)
	return appErr != nil && appErr.Retryable()
}
