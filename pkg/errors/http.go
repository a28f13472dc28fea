package errors

import (
	"net/http"
	"strings"
)

// HTTPStatusCode returns the status the side channel and health endpoints answer with
func HTTPStatusCode(err error) int {
	if err == nil {
		return http.StatusOK
	}
	return HTTPStatusFromCode(GetCode(err))
}

// HTTPStatusFromCode maps an error code to an HTTP status
func HTTPStatusFromCode(code ErrorCode) int {
	switch code {
	case ErrCodeValidationRequired,
		ErrCodeValidationInvalid,
		ErrCodeValidationFormat,
		ErrCodeValidationRange,
		ErrCodeEventType,
		ErrCodeProtocolParse,
		ErrCodeProtocolInvalidRequest,
		ErrCodeProtocolInvalidParams:
		return http.StatusBadRequest

	case ErrCodeValidationSize:
		return http.StatusRequestEntityTooLarge

	case ErrCodeServerNotFound,
		ErrCodeProtocolMethodNotFound,
		ErrCodeProtocolToolNotFound:
		return http.StatusNotFound

	case ErrCodeStorageTimeout, ErrCodeContextTimeout:
		return http.StatusGatewayTimeout

	// Store faults are transient from the caller's point of view
	case ErrCodeStorageConnection,
		ErrCodeStorageClosed,
		ErrCodeServiceUnavailable:
		return http.StatusServiceUnavailable

	case ErrCodeStreamUnsupported:
		return http.StatusNotImplemented

	// 499 Client Closed Request (non-standard)
	case ErrCodeContextCanceled:
		return 499

	case ErrCodeInternal,
		ErrCodePanic,
		ErrCodeStorageInitialization,
		ErrCodeStorageQuery,
		ErrCodeStorageEncoding,
		ErrCodeProtocolMarshal,
		ErrCodeConfiguration:
		return http.StatusInternalServerError
	}

	codeStr := string(code)
	switch {
	case strings.HasPrefix(codeStr, "VALIDATION_"), strings.HasPrefix(codeStr, "PROTOCOL_"):
		return http.StatusBadRequest
	case strings.HasPrefix(codeStr, "STORAGE_"):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// HTTPError is the JSON body of a failed side-channel submission
type HTTPError struct {
	Success bool        `json:"success"`
	Status  int         `json:"-"`
	Code    ErrorCode   `json:"code"`
	Error   string      `json:"error"`
	Details interface{} `json:"details,omitempty"`
}

// ToHTTPError converts err into a response body and status
func ToHTTPError(err error) HTTPError {
	if err == nil {
		return HTTPError{Success: true, Status: http.StatusOK}
	}
	appErr, ok := As(err)
	if !ok {
		appErr = Internal(err)
	}
	return HTTPError{
		Status:  HTTPStatusFromCode(appErr.Code),
		Code:    appErr.Code,
		Error:   appErr.Message,
		Details: appErr.Details,
	}
}

func IsClientError(err error) bool {
	status := HTTPStatusCode(err)
	return status >= 400 && status < 500
}

func IsServerError(err error) bool {
	status := HTTPStatusCode(err)
	return status >= 500 && status < 600
}
