package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/lokutor-ai/voxrunner/pkg/agent"
)

// AnthropicLLM calls Anthropic's /v1/messages endpoint with streaming
// enabled, generalizing the teacher's single-shot Complete into agent.LLM's
// streaming, tool-call-aware Chat.
type AnthropicLLM struct {
	apiKey string
	url    string
	model  string
}

// NewAnthropicLLM constructs an AnthropicLLM.
func NewAnthropicLLM(apiKey string, model string) *AnthropicLLM {
	if model == "" {
		model = "claude-3-5-sonnet-20240620"
	}
	return &AnthropicLLM{
		apiKey: apiKey,
		url:    "https://api.anthropic.com/v1/messages",
		model:  model,
	}
}

// Name implements agent.LLM.
func (l *AnthropicLLM) Name() string {
	return "anthropic-llm"
}

type anthropicEvent struct {
	Type  string `json:"type"`
	Index int    `json:"index"`
	Delta struct {
		Type        string `json:"type"`
		Text        string `json:"text"`
		PartialJSON string `json:"partial_json"`
	} `json:"delta"`
	ContentBlock struct {
		Type string `json:"type"`
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"content_block"`
}

// Chat implements agent.LLM by streaming Anthropic's content-block SSE
// events: text deltas are forwarded as they arrive, tool_use blocks are
// accumulated across their partial_json deltas and surfaced as a single
// completed agent.ToolCall once their content_block_stop arrives.
func (l *AnthropicLLM) Chat(ctx context.Context, req agent.ChatRequest, onChunk func(agent.ChatChunk) error) error {
	var system string
	var messages []map[string]string
	for _, it := range req.Items {
		switch it.Role {
		case agent.RoleSystem:
			system = it.Content
		case agent.RoleToolCall:
			messages = append(messages, map[string]string{"role": "assistant", "content": it.Content})
		case agent.RoleToolOut:
			messages = append(messages, map[string]string{"role": "user", "content": it.Content})
		default:
			messages = append(messages, map[string]string{"role": string(it.Role), "content": it.Content})
		}
	}

	payload := map[string]interface{}{
		"model":      l.model,
		"messages":   messages,
		"max_tokens": 1024,
		"stream":     true,
	}
	if system != "" {
		payload["system"] = system
	}
	if len(req.Tools) > 0 {
		payload["tools"] = toAnthropicTools(req.Tools)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", l.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", l.apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp interface{}
		json.NewDecoder(resp.Body).Decode(&errResp)
		return fmt.Errorf("anthropic llm error (status %d): %v", resp.StatusCode, errResp)
	}

	type pendingToolUse struct {
		id, name, args string
	}
	blocks := map[int]*pendingToolUse{}

	return scanSSEEvents(resp.Body, func(data string) error {
		var ev anthropicEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			return nil
		}
		switch ev.Type {
		case "content_block_start":
			if ev.ContentBlock.Type == "tool_use" {
				blocks[ev.Index] = &pendingToolUse{id: ev.ContentBlock.ID, name: ev.ContentBlock.Name}
			}
		case "content_block_delta":
			switch ev.Delta.Type {
			case "text_delta":
				if ev.Delta.Text != "" {
					return onChunk(agent.ChatChunk{Delta: agent.ChatDelta{Role: agent.RoleAssistant, Content: ev.Delta.Text}})
				}
			case "input_json_delta":
				if b, ok := blocks[ev.Index]; ok {
					b.args += ev.Delta.PartialJSON
				}
			}
		case "content_block_stop":
			if b, ok := blocks[ev.Index]; ok {
				delete(blocks, ev.Index)
				return onChunk(agent.ChatChunk{Delta: agent.ChatDelta{
					Role:      agent.RoleAssistant,
					ToolCalls: []agent.ToolCall{{ID: b.id, Name: b.name, Args: b.args}},
				}})
			}
		}
		return nil
	})
}

func toAnthropicTools(defs []agent.ToolDefinition) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(defs))
	for _, d := range defs {
		schema := json.RawMessage(d.ParamsJSONSchema)
		if len(schema) == 0 {
			schema = json.RawMessage(`{"type":"object"}`)
		}
		out = append(out, map[string]interface{}{
			"name":         d.Name,
			"description":  d.Description,
			"input_schema": schema,
		})
	}
	return out
}

var _ agent.LLM = (*AnthropicLLM)(nil)
