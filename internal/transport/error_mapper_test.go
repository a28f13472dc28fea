package transport

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JamesPrial/mcp-registry-gateway/pkg/errors"
)

func TestToJSONRPCError(t *testing.T) {
	tests := []struct {
		name            string
		err             error
		expectedCode    int
		expectedMessage string
		expectedData    interface{}
	}{
		{
			name:            "method not found",
			err:             errors.New(errors.ErrCodeProtocolMethodNotFound, "Method not found: nope"),
			expectedCode:    MethodNotFound,
			expectedMessage: "Method not found: nope",
		},
		{
			name:            "unknown tool",
			err:             errors.New(errors.ErrCodeProtocolToolNotFound, "Unknown tool: does_not_exist"),
			expectedCode:    MethodNotFound,
			expectedMessage: "Unknown tool: does_not_exist",
		},
		{
			name:            "validation carries details",
			err:             errors.New(errors.ErrCodeProtocolInvalidParams, "invalid arguments").WithDetails("limit: minimum 1"),
			expectedCode:    InvalidParams,
			expectedMessage: "invalid arguments",
			expectedData:    "limit: minimum 1",
		},
		{
			name:            "unknown event type",
			err:             errors.New(errors.ErrCodeEventType, "unknown event type"),
			expectedCode:    InvalidParams,
			expectedMessage: "unknown event type",
		},
		{
			name:            "storage failure is internal with message as data",
			err:             errors.Wrap(fmt.Errorf("disk full"), errors.ErrCodeStorageQuery, "failed to list"),
			expectedCode:    InternalError,
			expectedMessage: "Internal error",
			expectedData:    "failed to list: disk full",
		},
		{
			name:            "plain error is internal",
			err:             fmt.Errorf("boom"),
			expectedCode:    InternalError,
			expectedMessage: "Internal error",
			expectedData:    "boom",
		},
		{
			name:            "rpc error passes through",
			err:             fmt.Errorf("wrapped: %w", &JSONRPCError{Code: ParseError, Message: "Parse error"}),
			expectedCode:    ParseError,
			expectedMessage: "Parse error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ToJSONRPCError(tt.err)
			require.NotNil(t, result)
			assert.Equal(t, tt.expectedCode, result.Code)
			assert.Equal(t, tt.expectedMessage, result.Message)
			assert.Equal(t, tt.expectedData, result.Data)
		})
	}

	assert.Nil(t, ToJSONRPCError(nil))
}

func TestToJSONRPCResponse(t *testing.T) {
	id := json.RawMessage(`"42"`)

	resp := ToJSONRPCResponse(id, errors.New(errors.ErrCodeValidationRequired, "name is required"))
	assert.Equal(t, "2.0", resp.JSONRPC)
	assert.Equal(t, id, resp.ID)
	assert.Nil(t, resp.Result)
	require.NotNil(t, resp.Error)
	assert.Equal(t, InvalidParams, resp.Error.Code)
}

func TestLoggableError(t *testing.T) {
	internal := errors.Wrap(fmt.Errorf("disk quota"), errors.ErrCodeStorageConnection, "store unavailable")

	assert.Equal(t, "error_code=STORAGE_CONNECTION message=store unavailable internal=disk quota", LoggableError(internal).Error())
	assert.Equal(t, "error_code=VALIDATION_REQUIRED message=correlationId is required",
		LoggableError(errors.ValidationRequired("correlationId")).Error())
	assert.Nil(t, LoggableError(nil))
}
