package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/lokutor-ai/voxrunner/pkg/agent"
)

// MCPConfig configures a stdio-transport MCP tool server (spec §3/§4.6's
// "tools may be external processes" supplemented feature). Grounded on
// kadirpekel-hector's mcptoolset.Config, trimmed to the stdio path this
// runtime needs — job-executor children are themselves subprocesses, so an
// MCP server is launched the same way.
type MCPConfig struct {
	Name    string
	Command string
	Args    []string
	Env     map[string]string
	Filter  []string // empty means "expose everything"
}

// MCPBridge owns one MCP stdio client connection and exposes its tools as
// agent.Tool values.
type MCPBridge struct {
	cfg MCPConfig

	mu     sync.Mutex
	client *client.Client
}

// NewMCPBridge connects to an MCP stdio server and returns a bridge ready
// to enumerate its tools.
func NewMCPBridge(ctx context.Context, cfg MCPConfig) (*MCPBridge, error) {
	mcpClient, err := client.NewStdioMCPClient(cfg.Command, envSlice(cfg.Env), cfg.Args...)
	if err != nil {
		return nil, fmt.Errorf("tools: creating MCP client %q: %w", cfg.Name, err)
	}
	if err := mcpClient.Start(ctx); err != nil {
		return nil, fmt.Errorf("tools: starting MCP client %q: %w", cfg.Name, err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ClientInfo = mcp.Implementation{Name: "voxrunner", Version: "0.1.0"}
	initReq.Params.ProtocolVersion = "2024-11-05"
	if _, err := mcpClient.Initialize(ctx, initReq); err != nil {
		mcpClient.Close()
		return nil, fmt.Errorf("tools: initializing MCP client %q: %w", cfg.Name, err)
	}

	return &MCPBridge{cfg: cfg, client: mcpClient}, nil
}

// Tools lists the server's tools, filtered by cfg.Filter if set, as
// agent.Tool values whose Handler round-trips through the MCP connection.
func (b *MCPBridge) Tools(ctx context.Context) ([]agent.Tool, error) {
	b.mu.Lock()
	c := b.client
	b.mu.Unlock()
	if c == nil {
		return nil, fmt.Errorf("tools: MCP bridge %q is closed", b.cfg.Name)
	}

	var filter map[string]bool
	if len(b.cfg.Filter) > 0 {
		filter = make(map[string]bool, len(b.cfg.Filter))
		for _, n := range b.cfg.Filter {
			filter[n] = true
		}
	}

	resp, err := c.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("tools: listing MCP tools for %q: %w", b.cfg.Name, err)
	}

	out := make([]agent.Tool, 0, len(resp.Tools))
	for _, t := range resp.Tools {
		if filter != nil && !filter[t.Name] {
			continue
		}
		schema, err := json.Marshal(t.InputSchema)
		if err != nil {
			schema = []byte("{}")
		}
		name := t.Name
		out = append(out, agent.Tool{
			Definition: agent.ToolDefinition{
				Name:             name,
				Description:      t.Description,
				ParamsJSONSchema: string(schema),
			},
			Handler: b.handlerFor(name),
		})
	}
	return out, nil
}

// handlerFor builds an agent.ToolHandler that forwards a call to the MCP
// server and flattens its result into the single string agent.Tool.Handler
// contracts on.
func (b *MCPBridge) handlerFor(name string) agent.ToolHandler {
	return func(callCtx agent.ToolCallContext, args string) (interface{}, error) {
		b.mu.Lock()
		c := b.client
		b.mu.Unlock()
		if c == nil {
			return nil, agent.NewToolError("tool server is not connected")
		}

		var params map[string]any
		if args != "" {
			if err := json.Unmarshal([]byte(args), &params); err != nil {
				return nil, agent.NewToolError("invalid tool arguments: " + err.Error())
			}
		}

		req := mcp.CallToolRequest{}
		req.Params.Name = name
		req.Params.Arguments = params

		resp, err := c.CallTool(callCtx.Ctx, req)
		if err != nil {
			return nil, fmt.Errorf("tools: calling MCP tool %q: %w", name, err)
		}

		var texts []string
		for _, content := range resp.Content {
			if tc, ok := content.(mcp.TextContent); ok {
				texts = append(texts, tc.Text)
			}
		}
		result := joinTexts(texts)
		if resp.IsError {
			return nil, agent.NewToolError(result)
		}
		return result, nil
	}
}

// Close disconnects from the MCP server.
func (b *MCPBridge) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.client == nil {
		return nil
	}
	err := b.client.Close()
	b.client = nil
	return err
}

func envSlice(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}

func joinTexts(texts []string) string {
	switch len(texts) {
	case 0:
		return ""
	case 1:
		return texts[0]
	default:
		out := texts[0]
		for _, t := range texts[1:] {
			out += "\n" + t
		}
		return out
	}
}
