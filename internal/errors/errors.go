package errors

import "fmt"

// ErrorCode represents a transferbot error code.
type ErrorCode string

const (
	ErrInvalidRequest ErrorCode = "INVALID_REQUEST" // 400
	ErrNotFound       ErrorCode = "NOT_FOUND"       // 404
	ErrFileNotFound   ErrorCode = "FILE_NOT_FOUND"  // 404
	ErrConflict       ErrorCode = "CONFLICT"        // 409
	ErrInputTooLarge  ErrorCode = "INPUT_TOO_LARGE" // 413
	ErrCancelled      ErrorCode = "CANCELLED"       // 499
	ErrInternal       ErrorCode = "INTERNAL"        // 500
)

// TransferError represents a structured error with code, status, and details.
type TransferError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
}

// Error implements the error interface.
func (e *TransferError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *TransferError {
	return &TransferError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewNotFound creates a 404 error for when a session cannot be found.
func NewNotFound(sessionID string) *TransferError {
	return &TransferError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("session not found: %s", sessionID),
		Details: map[string]any{"session_id": sessionID},
	}
}

// NewFileNotFound creates a 404 error for a missing file on disk.
func NewFileNotFound(path string) *TransferError {
	return &TransferError{
		Code:    ErrFileNotFound,
		Status:  404,
		Message: fmt.Sprintf("file not found: %s", path),
		Details: map[string]any{"path": path},
	}
}

// NewConflict creates a 409 error when a write lost a concurrent update race.
func NewConflict(msg string) *TransferError {
	return &TransferError{
		Code:    ErrConflict,
		Status:  409,
		Message: msg,
	}
}

// NewInputTooLarge creates a 413 error when a session buffer would exceed the size limit.
func NewInputTooLarge(max, actual int) *TransferError {
	return &TransferError{
		Code:    ErrInputTooLarge,
		Status:  413,
		Message: fmt.Sprintf("input exceeds maximum size: %d chars (max %d)", actual, max),
		Details: map[string]any{"max_chars": max, "actual_chars": actual},
	}
}

// NewCancelled creates a 499 error when the caller went away mid-operation.
func NewCancelled(operation string) *TransferError {
	return &TransferError{
		Code:    ErrCancelled,
		Status:  499,
		Message: fmt.Sprintf("%s cancelled", operation),
		Details: map[string]any{"operation": operation},
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *TransferError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &TransferError{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
	}
}

// Is checks if an error is a TransferError with the given code.
func Is(err error, code ErrorCode) bool {
	if tErr, ok := err.(*TransferError); ok {
		return tErr.Code == code
	}
	return false
}
