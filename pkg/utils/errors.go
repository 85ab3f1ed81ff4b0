package utils

import (
	"errors"
	"fmt"
	"runtime"
)

// AppError represents an application error with context
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
	cause   error
}

func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches on error code, so a sentinel AppError matches any error of the same kind.
func (e *AppError) Is(target error) bool {
	var t *AppError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

func (e *AppError) Unwrap() error {
	return e.cause
}

// NewAppError creates a new application error
func NewAppError(code, message string, details ...string) *AppError {
	_, file, line, _ := runtime.Caller(1)

	err := &AppError{
		Code:    code,
		Message: message,
		File:    file,
		Line:    line,
	}

	if len(details) > 0 {
		err.Details = details[0]
	}

	return err
}

// WrapError creates an application error carrying cause's text as details.
func WrapError(code, message string, cause error) *AppError {
	_, file, line, _ := runtime.Caller(1)
	err := &AppError{
		Code:    code,
		Message: message,
		File:    file,
		Line:    line,
		cause:   cause,
	}
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

// CodeOf returns the AppError code in err's chain, or ErrCodeInternal.
func CodeOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeInternal
}

// Common error codes
const (
	ErrCodeConnection    = "CONNECTION_ERROR"
	ErrCodeDatabase      = "DATABASE_ERROR"
	ErrCodeValidation    = "VALIDATION_ERROR"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeInternal      = "INTERNAL_ERROR"
	ErrCodeBlockchain    = "BLOCKCHAIN_ERROR"
	ErrCodeConfiguration = "CONFIGURATION_ERROR"
	ErrCodeTransaction   = "TRANSACTION_ERROR"
	ErrCodeAmbiguous     = "AMBIGUOUS_OUTCOME"
	ErrCodeState         = "INVALID_STATE"
	ErrCodeUnauthorized  = "UNAUTHORIZED"
	ErrCodeNotConnected  = "NOT_CONNECTED"
)

// Sentinels for errors.Is checks against the codes above.
var (
	ErrConfiguration    = &AppError{Code: ErrCodeConfiguration, Message: "configuration error"}
	ErrValidation       = &AppError{Code: ErrCodeValidation, Message: "validation failed"}
	ErrTransaction      = &AppError{Code: ErrCodeTransaction, Message: "transaction failed"}
	ErrAmbiguousOutcome = &AppError{Code: ErrCodeAmbiguous, Message: "transaction succeeded but could not confirm effect"}
	ErrInvalidState     = &AppError{Code: ErrCodeState, Message: "action not available in current state"}
	ErrNotConnected     = &AppError{Code: ErrCodeNotConnected, Message: "wallet not connected"}
	ErrUnauthorized     = &AppError{Code: ErrCodeUnauthorized, Message: "caller lacks required role"}
)
