// Package tools provides tool construction helpers for agent.Agent: an
// in-process registry for Go-native handlers, and an MCP-backed bridge that
// exposes an external MCP server's tools through the same agent.Tool shape
// (spec §3's tool registry, §4.6 step 7's tool-call loop).
package tools

import "github.com/lokutor-ai/voxrunner/pkg/agent"

// New builds an in-process agent.Tool from a name/description/schema and a
// Go handler — the common case for tools that don't need an external
// process (spec §3's tool registry, simple path).
func New(name, description, paramsJSONSchema string, handler agent.ToolHandler) agent.Tool {
	return agent.Tool{
		Definition: agent.ToolDefinition{
			Name:             name,
			Description:      description,
			ParamsJSONSchema: paramsJSONSchema,
		},
		Handler: handler,
	}
}
