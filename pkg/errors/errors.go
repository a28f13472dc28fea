package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
)

// ErrorCode identifies a class of gateway failure
type ErrorCode string

const (
	// Record store faults
	ErrCodeStorageConnection     ErrorCode = "STORAGE_CONNECTION"
	ErrCodeStorageTimeout        ErrorCode = "STORAGE_TIMEOUT"
	ErrCodeStorageInitialization ErrorCode = "STORAGE_INITIALIZATION"
	ErrCodeStorageQuery          ErrorCode = "STORAGE_QUERY"
	ErrCodeStorageEncoding       ErrorCode = "STORAGE_ENCODING"
	ErrCodeStorageClosed         ErrorCode = "STORAGE_CLOSED"

	// Input validation
	ErrCodeValidationRequired ErrorCode = "VALIDATION_REQUIRED"
	ErrCodeValidationInvalid  ErrorCode = "VALIDATION_INVALID"
	ErrCodeValidationFormat   ErrorCode = "VALIDATION_FORMAT"
	ErrCodeValidationRange    ErrorCode = "VALIDATION_RANGE"
	ErrCodeValidationSize     ErrorCode = "VALIDATION_SIZE"

	// Registry
	ErrCodeServerNotFound ErrorCode = "SERVER_NOT_FOUND"
	ErrCodeEventType      ErrorCode = "EVENT_TYPE_UNKNOWN"

	// JSON-RPC protocol
	ErrCodeProtocolParse          ErrorCode = "PROTOCOL_PARSE"
	ErrCodeProtocolInvalidRequest ErrorCode = "PROTOCOL_INVALID_REQUEST"
	ErrCodeProtocolMethodNotFound ErrorCode = "PROTOCOL_METHOD_NOT_FOUND"
	ErrCodeProtocolToolNotFound   ErrorCode = "PROTOCOL_TOOL_NOT_FOUND"
	ErrCodeProtocolInvalidParams  ErrorCode = "PROTOCOL_INVALID_PARAMS"
	ErrCodeProtocolMarshal        ErrorCode = "PROTOCOL_MARSHAL"

	// Push channel
	ErrCodeStreamUnsupported ErrorCode = "STREAM_UNSUPPORTED"
	ErrCodeStreamWrite       ErrorCode = "STREAM_WRITE"
	ErrCodeQuotaExceeded     ErrorCode = "QUOTA_EXCEEDED"

	// System
	ErrCodeInternal           ErrorCode = "INTERNAL_ERROR"
	ErrCodePanic              ErrorCode = "PANIC_RECOVERED"
	ErrCodeContextCanceled    ErrorCode = "CONTEXT_CANCELED"
	ErrCodeContextTimeout     ErrorCode = "CONTEXT_TIMEOUT"
	ErrCodeConfiguration      ErrorCode = "CONFIGURATION_ERROR"
	ErrCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
)

// AppError is the error type shared by every gateway component
type AppError struct {
	Code     ErrorCode   `json:"code"`
	Message  string      `json:"message"`
	Details  interface{} `json:"details,omitempty"`
	Internal error       `json:"-"`
}

func (e *AppError) Error() string {
	if e.Internal != nil {
		return e.Message + ": " + e.Internal.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Internal
}

// WithDetails attaches client-visible details
func (e *AppError) WithDetails(details interface{}) *AppError {
	e.Details = details
	return e
}

// ToJSON returns the client-safe representation
func (e *AppError) ToJSON() ([]byte, error) {
	return json.Marshal(struct {
		Code    ErrorCode   `json:"code"`
		Message string      `json:"message"`
		Details interface{} `json:"details,omitempty"`
	}{e.Code, e.Message, e.Details})
}

func New(code ErrorCode, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

func Newf(code ErrorCode, format string, args ...interface{}) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap returns nil when err is nil
func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{Code: code, Message: message, Internal: err}
}

func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *AppError {
	if err == nil {
		return nil
	}
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

// As finds the outermost AppError in the chain
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// Is reports whether the outermost AppError in err carries code
func Is(err error, code ErrorCode) bool {
	appErr, ok := As(err)
	return ok && appErr.Code == code
}

func IsAny(err error, codes ...ErrorCode) bool {
	for _, code := range codes {
		if Is(err, code) {
			return true
		}
	}
	return false
}

// GetCode returns ErrCodeInternal for foreign errors
func GetCode(err error) ErrorCode {
	if err == nil {
		return ""
	}
	if appErr, ok := As(err); ok {
		return appErr.Code
	}
	switch {
	case stderrors.Is(err, context.Canceled):
		return ErrCodeContextCanceled
	case stderrors.Is(err, context.DeadlineExceeded):
		return ErrCodeContextTimeout
	}
	return ErrCodeInternal
}

// GetMessage returns a message safe to hand to clients
func GetMessage(err error) string {
	if err == nil {
		return ""
	}
	if appErr, ok := As(err); ok {
		return appErr.Message
	}
	return "An internal error occurred"
}

func NotFound(resource string) *AppError {
	return Newf(ErrCodeServerNotFound, "%s not found", resource)
}

func ValidationRequired(field string) *AppError {
	return Newf(ErrCodeValidationRequired, "%s is required", field)
}

func ValidationInvalid(field, reason string) *AppError {
	return Newf(ErrCodeValidationInvalid, "%s is invalid: %s", field, reason)
}

// Internal hides err behind a generic message
func Internal(err error) *AppError {
	return Wrap(err, ErrCodeInternal, "An internal error occurred")
}
