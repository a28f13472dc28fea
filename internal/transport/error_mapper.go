package transport

import (
	"encoding/json"
	stderrors "errors"
	"fmt"

	"github.com/JamesPrial/mcp-registry-gateway/pkg/errors"
)

// JSONRPCCode maps an AppError code to its JSON-RPC error code
func JSONRPCCode(code errors.ErrorCode) int {
	switch code {
	case errors.ErrCodeProtocolParse:
		return ParseError
	case errors.ErrCodeProtocolInvalidRequest:
		return InvalidRequest
	case errors.ErrCodeProtocolMethodNotFound, errors.ErrCodeProtocolToolNotFound:
		return MethodNotFound

	// Caller-supplied arguments
	case errors.ErrCodeProtocolInvalidParams,
		errors.ErrCodeValidationRequired, errors.ErrCodeValidationInvalid,
		errors.ErrCodeValidationFormat, errors.ErrCodeValidationRange,
		errors.ErrCodeValidationSize, errors.ErrCodeEventType:
		return InvalidParams

	default:
		return InternalError
	}
}

// ToJSONRPCError converts any error into a JSON-RPC error object. Internal errors
// carry the full error text as data.
func ToJSONRPCError(err error) *JSONRPCError {
	if err == nil {
		return nil
	}
	var rpcErr *JSONRPCError
	if stderrors.As(err, &rpcErr) {
		return rpcErr
	}

	code := errors.GetCode(err)
	rpcCode := JSONRPCCode(code)
	if rpcCode == InternalError {
		return &JSONRPCError{Code: rpcCode, Message: "Internal error", Data: err.Error()}
	}

	out := &JSONRPCError{Code: rpcCode, Message: errors.GetMessage(err)}
	if appErr, ok := errors.As(err); ok && appErr.Details != nil {
		out.Data = appErr.Details
	}
	return out
}

// ToJSONRPCResponse creates the error response for a failed request; err must be non-nil
func ToJSONRPCResponse(id json.RawMessage, err error) *JSONRPCResponse {
	return &JSONRPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: ToJSONRPCError(err)}
}

// LoggableError returns the full error details for logging (including internal error)
func LoggableError(err error) error {
	if err == nil {
		return nil
	}
	if appErr, ok := errors.As(err); ok && appErr.Internal != nil {
		return fmt.Errorf("error_code=%s message=%s internal=%v",
			appErr.Code, appErr.Message, appErr.Internal)
	}
	return fmt.Errorf("error_code=%s message=%s", errors.GetCode(err), errors.GetMessage(err))
}
