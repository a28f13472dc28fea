// Package dispatcher routes one JSON-RPC message to the MCP method or registry tool it
// names and always produces a response (nil only for notifications). It holds no
// per-session state, so every operation is a read-only query safe to retry.
package dispatcher

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/JamesPrial/mcp-registry-gateway/internal/registry"
	"github.com/JamesPrial/mcp-registry-gateway/internal/transport"
	"github.com/JamesPrial/mcp-registry-gateway/pkg/errors"
	"github.com/JamesPrial/mcp-registry-gateway/pkg/logging"
)

// ProtocolVersion is the MCP revision advertised by initialize
const ProtocolVersion = "2024-11-05"

// MCP methods
const (
	MethodInitialize  = "initialize"
	MethodInitialized = "notifications/initialized"
	MethodPing        = "ping"
	MethodToolsList   = "tools/list"
	MethodToolsCall   = "tools/call"
)

// Info identifies the server in the initialize result
type Info struct {
	Name    string
	Version string
}

// Dispatcher implements transport.Handler
type Dispatcher struct {
	catalog     *catalog
	info        Info
	logger      *slog.Logger
	errLogger   *errors.Logger
	interceptor *logging.RequestInterceptor
}

// New builds a dispatcher over querier. It fails only if a built-in tool schema does not compile.
func New(querier registry.Querier, info Info) (*Dispatcher, error) {
	if info.Name == "" {
		info.Name = "mcp-registry-gateway"
	}
	if info.Version == "" {
		info.Version = "dev"
	}
	c, err := newCatalog(querier)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfiguration, "failed to build tool catalog")
	}

	logger := logging.GetGlobalLogger("dispatcher")
	return &Dispatcher{
		catalog:     c,
		info:        info,
		logger:      logger,
		errLogger:   errors.NewLoggerWithSlog(logger, "dispatcher"),
		interceptor: logging.NewRequestInterceptor(logger),
	}, nil
}

// Tools returns the static tool catalog
func (d *Dispatcher) Tools() []*mcpsdk.Tool {
	return d.catalog.tools()
}

// HandleMessage decodes raw and dispatches it. Malformed messages are answered
// with -32700 or -32600.
func (d *Dispatcher) HandleMessage(ctx context.Context, raw []byte) *transport.JSONRPCResponse {
	req, errResp := transport.DecodeRequest(raw)
	if errResp != nil {
		logging.GetGlobalMetricsCollector().RecordRPC("invalid", "error", 0)
		d.logger.DebugContext(ctx, "Rejected malformed message",
			slog.Int("code", errResp.Error.Code),
			slog.Any("detail", errResp.Error.Data),
		)
		return errResp
	}
	return d.HandleRequest(ctx, req)
}

// HandleRequest runs one decoded request. Handler errors and panics become -32603
// responses; the dispatcher never propagates them.
func (d *Dispatcher) HandleRequest(ctx context.Context, req *transport.JSONRPCRequest) *transport.JSONRPCResponse {
	start := time.Now()
	ctx, span := logging.StartSpan(ctx, "dispatcher."+req.Method, logging.AttrRPCMethod.String(req.Method))
	defer span.End()

	var result interface{}
	err := d.run(ctx, req, &result)
	logging.RecordError(span, err)

	outcome := "ok"
	var resp *transport.JSONRPCResponse
	if err != nil {
		outcome = "error"
		resp = transport.ToJSONRPCResponse(req.ID, err)
	} else {
		resp = transport.NewResultResponse(req.ID, result)
	}
	logging.GetGlobalMetricsCollector().RecordRPC(methodLabel(req.Method), outcome, time.Since(start))

	if req.IsNotification() {
		return nil
	}
	return resp
}

func (d *Dispatcher) run(ctx context.Context, req *transport.JSONRPCRequest, result *interface{}) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = d.errLogger.LogPanic(ctx, recovered, req.Method)
		}
	}()

	return d.interceptor.InterceptRequest(ctx, req.Method, func(ctx context.Context) error {
		var routeErr error
		*result, routeErr = d.route(ctx, req)
		return routeErr
	})
}

func (d *Dispatcher) route(ctx context.Context, req *transport.JSONRPCRequest) (interface{}, error) {
	switch req.Method {
	case MethodInitialize:
		return d.initialize(), nil
	case MethodInitialized:
		return struct{}{}, nil
	case MethodPing:
		return struct{}{}, nil
	case MethodToolsList:
		return &mcpsdk.ListToolsResult{Tools: d.catalog.tools()}, nil
	case MethodToolsCall:
		return d.callTool(ctx, req.Params)
	default:
		return nil, errors.Newf(errors.ErrCodeProtocolMethodNotFound, "Method not found: %s", req.Method)
	}
}

func (d *Dispatcher) initialize() *mcpsdk.InitializeResult {
	return &mcpsdk.InitializeResult{
		ProtocolVersion: ProtocolVersion,
		Capabilities: &mcpsdk.ServerCapabilities{
			Tools: &mcpsdk.ToolCapabilities{},
		},
		ServerInfo: &mcpsdk.Implementation{
			Name:    d.info.Name,
			Version: d.info.Version,
		},
	}
}

type callParams struct {
	Name      json.RawMessage `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

func (d *Dispatcher) callTool(ctx context.Context, rawParams json.RawMessage) (*mcpsdk.CallToolResult, error) {
	if len(rawParams) == 0 {
		return nil, errors.New(errors.ErrCodeProtocolInvalidParams, "params are required")
	}
	var params callParams
	if err := json.Unmarshal(rawParams, &params); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeProtocolInvalidParams, "params must be an object")
	}

	var name string
	if len(params.Name) == 0 {
		return nil, errors.New(errors.ErrCodeProtocolInvalidParams, "params.name is required")
	}
	if err := json.Unmarshal(params.Name, &name); err != nil || name == "" {
		return nil, errors.New(errors.ErrCodeProtocolInvalidParams, "params.name must be a non-empty string")
	}

	def, ok := d.catalog.byName[name]
	if !ok {
		return nil, errors.Newf(errors.ErrCodeProtocolToolNotFound, "Unknown tool: %s", name)
	}

	rawArgs := params.Arguments
	if len(rawArgs) == 0 || string(rawArgs) == "null" {
		rawArgs = json.RawMessage("{}")
	}
	args, err := def.validate(rawArgs)
	if err != nil {
		return nil, err
	}

	ctx, span := logging.StartSpan(ctx, "dispatcher.tool."+name, logging.AttrToolName.String(name))
	defer span.End()
	result, err := def.handler(ctx, args)
	logging.RecordError(span, err)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// methodLabel bounds metric label cardinality
func methodLabel(method string) string {
	switch method {
	case MethodInitialize, MethodInitialized, MethodPing, MethodToolsList, MethodToolsCall:
		return method
	}
	return "unknown"
}
