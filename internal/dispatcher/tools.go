package dispatcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/mitchellh/mapstructure"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/JamesPrial/mcp-registry-gateway/internal/registry"
	"github.com/JamesPrial/mcp-registry-gateway/pkg/errors"
	"github.com/JamesPrial/mcp-registry-gateway/pkg/mcp"
)

const (
	// DefaultLimit applies when a tool call omits limit
	DefaultLimit = 10
	// MaxLimit caps every result list
	MaxLimit = 50
)

// Tool names
const (
	ToolSearchServers = "search_servers"
	ToolGetServer     = "get_server"
	ToolListTrending  = "list_trending"
	ToolEcho          = "test_echo"
)

type toolHandler func(ctx context.Context, args map[string]interface{}) (*mcpsdk.CallToolResult, error)

type toolDef struct {
	tool    *mcpsdk.Tool
	schema  *jsonschema.Schema
	handler toolHandler
}

type toolSpec struct {
	name        string
	description string
	schema      string
}

var toolSpecs = []toolSpec{
	{
		name:        ToolSearchServers,
		description: "Search the registry by free text, tags and type. Matching is case-insensitive substring containment; all filters must match.",
		schema: `{
			"type": "object",
			"properties": {
				"query": {"type": "string", "description": "Text matched against name, description and tags"},
				"tags": {"type": "array", "items": {"type": "string"}, "description": "Every tag must be present"},
				"type": {"type": "string", "description": "Capability type: tools, resources or prompts"},
				"limit": {"type": "integer", "minimum": 1, "description": "Maximum results (default 10, capped at 50)"}
			},
			"additionalProperties": false
		}`,
	},
	{
		name:        ToolGetServer,
		description: "Fetch one server by its exact, case-sensitive name.",
		schema: `{
			"type": "object",
			"properties": {
				"name": {"type": "string", "minLength": 1}
			},
			"required": ["name"],
			"additionalProperties": false
		}`,
	},
	{
		name:        ToolListTrending,
		description: "List the top servers in registry order (most stars first).",
		schema: `{
			"type": "object",
			"properties": {
				"limit": {"type": "integer", "minimum": 1, "description": "Maximum results (default 10, capped at 50)"}
			},
			"additionalProperties": false
		}`,
	},
	{
		name:        ToolEcho,
		description: "Echo a message back unchanged. Used to verify connectivity.",
		schema: `{
			"type": "object",
			"properties": {
				"message": {"type": "string"}
			},
			"required": ["message"],
			"additionalProperties": false
		}`,
	},
}

// catalog is the ordered, immutable tool set
type catalog struct {
	ordered []*toolDef
	byName  map[string]*toolDef
}

func newCatalog(querier registry.Querier) (*catalog, error) {
	handlers := map[string]toolHandler{
		ToolSearchServers: searchServers(querier),
		ToolGetServer:     getServer(querier),
		ToolListTrending:  listTrending(querier),
		ToolEcho:          echo,
	}

	c := &catalog{byName: make(map[string]*toolDef, len(toolSpecs))}
	compiler := jsonschema.NewCompiler()
	for _, spec := range toolSpecs {
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader([]byte(spec.schema)))
		if err != nil {
			return nil, fmt.Errorf("tool %s: invalid schema: %w", spec.name, err)
		}
		url := spec.name + ".schema.json"
		if err := compiler.AddResource(url, doc); err != nil {
			return nil, fmt.Errorf("tool %s: %w", spec.name, err)
		}
		schema, err := compiler.Compile(url)
		if err != nil {
			return nil, fmt.Errorf("tool %s: %w", spec.name, err)
		}

		var inputSchema map[string]interface{}
		if err := json.Unmarshal([]byte(spec.schema), &inputSchema); err != nil {
			return nil, fmt.Errorf("tool %s: %w", spec.name, err)
		}

		def := &toolDef{
			tool: &mcpsdk.Tool{
				Name:        spec.name,
				Description: spec.description,
				InputSchema: inputSchema,
			},
			schema:  schema,
			handler: handlers[spec.name],
		}
		c.ordered = append(c.ordered, def)
		c.byName[spec.name] = def
	}
	return c, nil
}

func (c *catalog) tools() []*mcpsdk.Tool {
	out := make([]*mcpsdk.Tool, 0, len(c.ordered))
	for _, def := range c.ordered {
		out = append(out, def.tool)
	}
	return out
}

// validate checks raw arguments against the tool schema and decodes them to a map
func (d *toolDef) validate(raw json.RawMessage) (map[string]interface{}, error) {
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeProtocolInvalidParams, "arguments must be valid JSON")
	}
	if err := d.schema.Validate(inst); err != nil {
		return nil, errors.Wrapf(err, errors.ErrCodeProtocolInvalidParams,
			"invalid arguments for tool %s", d.tool.Name).WithDetails(err.Error())
	}

	var args map[string]interface{}
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeProtocolInvalidParams, "arguments must be an object")
	}
	return args, nil
}

func decodeArgs(args map[string]interface{}, out interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName: "mapstructure",
		Result:  out,
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(args); err != nil {
		return errors.Wrap(err, errors.ErrCodeProtocolInvalidParams, "failed to decode arguments")
	}
	return nil
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	}
	return limit
}

// jsonResult renders v as the single text content and as structured content
func jsonResult(v interface{}) (*mcpsdk.CallToolResult, error) {
	text, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeProtocolMarshal, "failed to encode tool result")
	}
	return &mcpsdk.CallToolResult{
		Content:           []mcpsdk.Content{&mcpsdk.TextContent{Text: string(text)}},
		StructuredContent: v,
	}, nil
}

// ServerList is the structured result of the list-returning tools
type ServerList struct {
	Servers []mcp.ServerRecord `json:"servers"`
	Count   int                `json:"count"`
}

func searchServers(querier registry.Querier) toolHandler {
	return func(ctx context.Context, args map[string]interface{}) (*mcpsdk.CallToolResult, error) {
		var filters registry.Filters
		if err := decodeArgs(args, &filters); err != nil {
			return nil, err
		}
		filters.Limit = clampLimit(filters.Limit)

		records, err := querier.Search(ctx, filters)
		if err != nil {
			return nil, err
		}
		return jsonResult(ServerList{Servers: records, Count: len(records)})
	}
}

func getServer(querier registry.Querier) toolHandler {
	return func(ctx context.Context, args map[string]interface{}) (*mcpsdk.CallToolResult, error) {
		var in struct {
			Name string `mapstructure:"name"`
		}
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}

		record, err := querier.GetByName(ctx, in.Name)
		if err != nil {
			return nil, err
		}
		if record == nil {
			return &mcpsdk.CallToolResult{
				Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: fmt.Sprintf("Server %q not found", in.Name)}},
			}, nil
		}
		return jsonResult(record)
	}
}

func listTrending(querier registry.Querier) toolHandler {
	return func(ctx context.Context, args map[string]interface{}) (*mcpsdk.CallToolResult, error) {
		var in struct {
			Limit int `mapstructure:"limit"`
		}
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}

		records, err := querier.Trending(ctx, clampLimit(in.Limit))
		if err != nil {
			return nil, err
		}
		return jsonResult(ServerList{Servers: records, Count: len(records)})
	}
}

func echo(_ context.Context, args map[string]interface{}) (*mcpsdk.CallToolResult, error) {
	var in struct {
		Message string `mapstructure:"message"`
	}
	if err := decodeArgs(args, &in); err != nil {
		return nil, err
	}
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: in.Message}},
	}, nil
}
