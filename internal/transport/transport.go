package transport

import (
	"bytes"
	"context"
	"encoding/json"
)

const jsonRPCVersion = "2.0"

// JSONRPCRequest represents a JSON-RPC 2.0 request. ID keeps its raw encoding so
// string and numeric ids round-trip unchanged; an absent or null id marks a notification.
type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// IsNotification reports whether the caller expects no response
func (r *JSONRPCRequest) IsNotification() bool {
	return len(r.ID) == 0 || bytes.Equal(r.ID, []byte("null"))
}

// JSONRPCResponse represents a JSON-RPC 2.0 response. A nil ID encodes as null.
type JSONRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *JSONRPCError   `json:"error,omitempty"`
}

// JSONRPCError represents a JSON-RPC 2.0 error
type JSONRPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *JSONRPCError) Error() string {
	return e.Message
}

// Handler turns one raw inbound message into at most one response
type Handler interface {
	// HandleMessage returns nil for notifications
	HandleMessage(ctx context.Context, raw []byte) *JSONRPCResponse
}

// HandlerFunc adapts a function to Handler
type HandlerFunc func(ctx context.Context, raw []byte) *JSONRPCResponse

func (f HandlerFunc) HandleMessage(ctx context.Context, raw []byte) *JSONRPCResponse {
	return f(ctx, raw)
}

// Transport defines the interface for different transport mechanisms
type Transport interface {
	// Start serves until ctx is done or Stop is called
	Start(ctx context.Context, handler Handler) error

	// Stop gracefully shuts down the transport
	Stop(ctx context.Context) error

	// Name returns the name of the transport
	Name() string
}

// Common JSON-RPC error codes
const (
	ParseError     = -32700
	InvalidRequest = -32600
	MethodNotFound = -32601
	InvalidParams  = -32602
	InternalError  = -32603
)

// NewResultResponse wraps a successful result
func NewResultResponse(id json.RawMessage, result interface{}) *JSONRPCResponse {
	return &JSONRPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
}

// NewErrorResponse wraps an error object
func NewErrorResponse(id json.RawMessage, code int, message string, data interface{}) *JSONRPCResponse {
	return &JSONRPCResponse{
		JSONRPC: jsonRPCVersion,
		ID:      id,
		Error:   &JSONRPCError{Code: code, Message: message, Data: data},
	}
}

// NewParseError creates a parse error response
func NewParseError(detail string) *JSONRPCResponse {
	return NewErrorResponse(nil, ParseError, "Parse error", detail)
}

// NewInvalidRequestError creates an invalid request error response
func NewInvalidRequestError(id json.RawMessage, detail string) *JSONRPCResponse {
	return NewErrorResponse(id, InvalidRequest, "Invalid Request", detail)
}

// NewInternalError creates an internal error response; detail becomes data
func NewInternalError(id json.RawMessage, detail string) *JSONRPCResponse {
	return NewErrorResponse(id, InternalError, "Internal error", detail)
}

// DecodeRequest checks that raw is a well-formed JSON-RPC request object. On failure
// it returns the error response to send; malformed messages are always answered.
func DecodeRequest(raw []byte) (*JSONRPCRequest, *JSONRPCResponse) {
	raw = bytes.TrimSpace(raw)
	if !json.Valid(raw) {
		return nil, NewParseError("invalid JSON")
	}
	if len(raw) == 0 || raw[0] != '{' {
		return nil, NewInvalidRequestError(nil, "request must be a JSON object")
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, NewInvalidRequestError(nil, "request must be a JSON object")
	}

	req := &JSONRPCRequest{ID: fields["id"], Params: fields["params"]}
	if !validID(req.ID) {
		return nil, NewInvalidRequestError(nil, "id must be a string, number or null")
	}

	if v, ok := fields["jsonrpc"]; ok {
		if err := json.Unmarshal(v, &req.JSONRPC); err != nil || req.JSONRPC != jsonRPCVersion {
			return nil, NewInvalidRequestError(req.ID, `jsonrpc must be "2.0"`)
		}
	}
	req.JSONRPC = jsonRPCVersion

	method, ok := fields["method"]
	if !ok {
		return nil, NewInvalidRequestError(req.ID, "method is required")
	}
	if err := json.Unmarshal(method, &req.Method); err != nil || req.Method == "" {
		return nil, NewInvalidRequestError(req.ID, "method must be a non-empty string")
	}
	return req, nil
}

func validID(id json.RawMessage) bool {
	if len(id) == 0 {
		return true
	}
	switch id[0] {
	case '"', 'n', '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		return true
	}
	return false
}

// SerializeResponse converts a JSONRPCResponse to JSON bytes
func SerializeResponse(resp *JSONRPCResponse) ([]byte, error) {
	return json.Marshal(resp)
}
