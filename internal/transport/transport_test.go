package transport

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeRequest(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		wantCode   int
		wantMethod string
		wantID     string
	}{
		{name: "string id", raw: `{"jsonrpc":"2.0","id":"42","method":"ping"}`, wantMethod: "ping", wantID: `"42"`},
		{name: "numeric id", raw: `{"jsonrpc":"2.0","id":7,"method":"tools/list"}`, wantMethod: "tools/list", wantID: `7`},
		{name: "jsonrpc omitted", raw: `{"id":1,"method":"ping"}`, wantMethod: "ping", wantID: `1`},
		{name: "notification", raw: `{"jsonrpc":"2.0","method":"notifications/initialized"}`, wantMethod: "notifications/initialized"},
		{name: "surrounding whitespace", raw: "  \n{\"id\":1,\"method\":\"ping\"}\n", wantMethod: "ping", wantID: `1`},
		{name: "malformed json", raw: `{"id":1,"method":`, wantCode: ParseError},
		{name: "empty body", raw: ``, wantCode: ParseError},
		{name: "array", raw: `[{"id":1,"method":"ping"}]`, wantCode: InvalidRequest},
		{name: "scalar", raw: `"ping"`, wantCode: InvalidRequest},
		{name: "missing method", raw: `{"id":1}`, wantCode: InvalidRequest},
		{name: "method not a string", raw: `{"id":1,"method":5}`, wantCode: InvalidRequest},
		{name: "empty method", raw: `{"id":1,"method":""}`, wantCode: InvalidRequest},
		{name: "object id", raw: `{"id":{},"method":"ping"}`, wantCode: InvalidRequest},
		{name: "wrong version", raw: `{"jsonrpc":"1.0","id":1,"method":"ping"}`, wantCode: InvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, errResp := DecodeRequest([]byte(tt.raw))
			if tt.wantCode != 0 {
				require.NotNil(t, errResp)
				assert.Nil(t, req)
				assert.Equal(t, tt.wantCode, errResp.Error.Code)
				assert.Equal(t, jsonRPCVersion, errResp.JSONRPC)
				return
			}
			require.Nil(t, errResp)
			require.NotNil(t, req)
			assert.Equal(t, tt.wantMethod, req.Method)
			assert.Equal(t, tt.wantID, string(req.ID))
			assert.Equal(t, tt.wantID == "", req.IsNotification())
		})
	}
}

func TestParseErrorHasNullID(t *testing.T) {
	_, errResp := DecodeRequest([]byte(`not json`))
	require.NotNil(t, errResp)

	data, err := SerializeResponse(errResp)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	id, present := decoded["id"]
	assert.True(t, present)
	assert.Nil(t, id)
	assert.NotContains(t, decoded, "result")
}

func TestIsNotification_NullID(t *testing.T) {
	req := &JSONRPCRequest{ID: json.RawMessage("null"), Method: "ping"}
	assert.True(t, req.IsNotification())
}
