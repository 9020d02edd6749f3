package errors

import (
	"net/http"

	"flagfeed/internal/errors"
)

// AppError defines the interface for application-specific errors
type AppError interface {
	error
	HTTPCode() int     // HTTP status code
	ErrorCode() string // Business error code
	Message() string   // User-facing error message
	Details() string   // Detailed error information (optional)
}

// BaseError is a basic error structure that implements the AppError interface
type BaseError struct {
	httpCode  int
	errorCode string
	message   string
	details   string
}

// NewBaseError creates a new base error
func NewBaseError(httpCode int, errorCode, message, details string) *BaseError {
	return &BaseError{
		httpCode:  httpCode,
		errorCode: errorCode,
		message:   message,
		details:   details,
	}
}

// Error implements the error interface
func (e *BaseError) Error() string {
	return e.message
}

// WrapMessage wraps the error with additional context message
func (e *BaseError) WrapMessage(message string) error {
	return errors.Wrap(e, message)
}

// HTTPCode returns the HTTP status code
func (e *BaseError) HTTPCode() int {
	return e.httpCode
}

// ErrorCode returns the business error code
func (e *BaseError) ErrorCode() string {
	return e.errorCode
}

// Message returns the user-facing error message
func (e *BaseError) Message() string {
	return e.message
}

// Details returns detailed error information
func (e *BaseError) Details() string {
	return e.details
}

// Is matches errors that share the same business error code, so copies
// carrying details still match their predefined sentinel.
func (e *BaseError) Is(target error) bool {
	var appErr AppError
	if !errors.As(target, &appErr) {
		return false
	}

	return e.errorCode == appErr.ErrorCode()
}

// WithDetails adds detailed error information
func (e *BaseError) WithDetails(details string) *BaseError {
	return &BaseError{
		httpCode:  e.httpCode,
		errorCode: e.errorCode,
		message:   e.message,
		details:   details,
	}
}

// Predefined error types
var (
	// Auth errors. The credential failures carry distinct user-facing
	// messages so the form layer can surface each case separately.
	ErrInvalidCredential = NewBaseError(
		http.StatusUnauthorized,
		"INVALID_CREDENTIAL",
		"Invalid email or password",
		"",
	)

	ErrUserNotFound = NewBaseError(
		http.StatusNotFound,
		"USER_NOT_FOUND",
		"No account found with this email",
		"",
	)

	ErrWrongPassword = NewBaseError(
		http.StatusUnauthorized,
		"WRONG_PASSWORD",
		"Incorrect password",
		"",
	)

	ErrEmailAlreadyInUse = NewBaseError(
		http.StatusConflict,
		"EMAIL_ALREADY_IN_USE",
		"Email already in use",
		"",
	)

	ErrWeakPassword = NewBaseError(
		http.StatusBadRequest,
		"WEAK_PASSWORD",
		"Password is too weak",
		"",
	)

	ErrRequiresRecentLogin = NewBaseError(
		http.StatusUnauthorized,
		"REQUIRES_RECENT_LOGIN",
		"Please sign in again to complete this action",
		"",
	)

	ErrSessionNotFound = NewBaseError(
		http.StatusUnauthorized,
		"SESSION_NOT_FOUND",
		"No active session",
		"",
	)

	ErrAuthFailed = NewBaseError(
		http.StatusUnauthorized,
		"AUTH_FAILED",
		"Authentication failed. Please try again.",
		"",
	)

	// Validation errors
	ErrValidationFailed = NewBaseError(
		http.StatusBadRequest,
		"VALIDATION_FAILED",
		"Input validation failed",
		"",
	)

	ErrGenderRequired = NewBaseError(
		http.StatusBadRequest,
		"GENDER_REQUIRED",
		"Gender selection is required",
		"",
	)

	// Store errors
	ErrStoreRead = NewBaseError(
		http.StatusInternalServerError,
		"STORE_READ_FAILED",
		"Failed to read data. Please try again.",
		"",
	)

	ErrStoreWrite = NewBaseError(
		http.StatusInternalServerError,
		"STORE_WRITE_FAILED",
		"Failed to save data. Please try again.",
		"",
	)

	ErrStoreSubscribe = NewBaseError(
		http.StatusInternalServerError,
		"STORE_SUBSCRIBE_FAILED",
		"Failed to listen for updates",
		"",
	)

	// Upload errors
	ErrUploadFailed = NewBaseError(
		http.StatusBadGateway,
		"UPLOAD_FAILED",
		"Image upload failed. Please try again.",
		"",
	)

	ErrUploadResponseInvalid = NewBaseError(
		http.StatusBadGateway,
		"UPLOAD_RESPONSE_INVALID",
		"Image host returned an unexpected response",
		"",
	)

	ErrFileTooLarge = NewBaseError(
		http.StatusBadRequest,
		"FILE_TOO_LARGE",
		"File size must be less than 5MB",
		"",
	)

	ErrFileTypeNotAllowed = NewBaseError(
		http.StatusBadRequest,
		"FILE_TYPE_NOT_ALLOWED",
		"Only JPEG, PNG, GIF, and WebP images are allowed",
		"",
	)

	// Feed errors
	ErrFeedNotActive = NewBaseError(
		http.StatusForbidden,
		"FEED_NOT_ACTIVE",
		"Your account is not approved yet",
		"",
	)

	// General errors
	ErrInternalError = NewBaseError(
		http.StatusInternalServerError,
		"INTERNAL_ERROR",
		"Internal server error",
		"",
	)

	ErrForbidden = NewBaseError(
		http.StatusForbidden,
		"FORBIDDEN",
		"Access denied",
		"",
	)

	ErrNotFound = NewBaseError(
		http.StatusNotFound,
		"NOT_FOUND",
		"Resource not found",
		"",
	)

	ErrConflict = NewBaseError(
		http.StatusConflict,
		"CONFLICT",
		"Resource conflict",
		"",
	)
)
