package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/lokutor-ai/voxrunner/pkg/agent"
)

// OpenAILLM calls OpenAI's /v1/chat/completions endpoint with streaming
// enabled, generalizing the teacher's single-shot Complete into agent.LLM's
// streaming, tool-call-aware Chat (spec §4.6).
type OpenAILLM struct {
	apiKey string
	url    string
	model  string
}

// NewOpenAILLM constructs an OpenAILLM.
func NewOpenAILLM(apiKey string, model string) *OpenAILLM {
	if model == "" {
		model = "gpt-4o"
	}
	return &OpenAILLM{
		apiKey: apiKey,
		url:    "https://api.openai.com/v1/chat/completions",
		model:  model,
	}
}

// Name implements agent.LLM.
func (l *OpenAILLM) Name() string {
	return "openai-llm"
}

type openAIMessage struct {
	Role       string            `json:"role"`
	Content    string            `json:"content,omitempty"`
	ToolCallID string            `json:"tool_call_id,omitempty"`
	ToolCalls  []openAIToolCallOut `json:"tool_calls,omitempty"`
}

type openAIToolCallOut struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type openAIStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content   string `json:"content"`
			ToolCalls []struct {
				Index    int    `json:"index"`
				ID       string `json:"id"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
}

// Chat implements agent.LLM by streaming OpenAI's chat-completions SSE
// response, emitting one ChatChunk per content delta and a final ChatChunk
// carrying the fully assembled tool calls (OpenAI fragments tool-call
// arguments across many deltas; this method reassembles them before
// handing anything to onChunk, matching the invariant the rest of this
// codebase relies on that a ChatChunk's ToolCalls are always complete).
func (l *OpenAILLM) Chat(ctx context.Context, req agent.ChatRequest, onChunk func(agent.ChatChunk) error) error {
	messages := toOpenAIMessages(req.Items)

	payload := map[string]interface{}{
		"model":    l.model,
		"messages": messages,
		"stream":   true,
	}
	if len(req.Tools) > 0 {
		payload["tools"] = toOpenAITools(req.Tools)
		if req.ToolChoice != "" {
			payload["tool_choice"] = req.ToolChoice
		}
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
	httpReq.Header.Set("Authorization", "Bearer "+l.apiKey)
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp interface{}
		json.NewDecoder(resp.Body).Decode(&errResp)
		return fmt.Errorf("openai llm error (status %d): %v", resp.StatusCode, errResp)
	}

	type pendingCall struct {
		id, name, args string
	}
	pending := map[int]*pendingCall{}
	var order []int

	err = scanSSEEvents(resp.Body, func(data string) error {
		var chunk openAIStreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return nil // tolerate unparseable keep-alive frames
		}
		if len(chunk.Choices) == 0 {
			return nil
		}
		delta := chunk.Choices[0].Delta

		if delta.Content != "" {
			if err := onChunk(agent.ChatChunk{Delta: agent.ChatDelta{Role: agent.RoleAssistant, Content: delta.Content}}); err != nil {
				return err
			}
		}
		for _, tc := range delta.ToolCalls {
			pc, ok := pending[tc.Index]
			if !ok {
				pc = &pendingCall{}
				pending[tc.Index] = pc
				order = append(order, tc.Index)
			}
			if tc.ID != "" {
				pc.id = tc.ID
			}
			if tc.Function.Name != "" {
				pc.name = tc.Function.Name
			}
			pc.args += tc.Function.Arguments
		}
		return nil
	})
	if err != nil {
		return err
	}

	if len(order) > 0 {
		calls := make([]agent.ToolCall, 0, len(order))
		for _, idx := range order {
			pc := pending[idx]
			calls = append(calls, agent.ToolCall{ID: pc.id, Name: pc.name, Args: pc.args})
		}
		if err := onChunk(agent.ChatChunk{Delta: agent.ChatDelta{Role: agent.RoleAssistant, ToolCalls: calls}}); err != nil {
			return err
		}
	}
	return nil
}

func toOpenAIMessages(items []agent.ChatItem) []openAIMessage {
	out := make([]openAIMessage, 0, len(items))
	for _, it := range items {
		switch it.Role {
		case agent.RoleToolCall:
			out = append(out, openAIMessage{
				Role: "assistant",
				ToolCalls: []openAIToolCallOut{{
					ID:   it.ToolCallID,
					Type: "function",
					Function: struct {
						Name      string `json:"name"`
						Arguments string `json:"arguments"`
					}{Name: it.ToolName, Arguments: it.ToolArgs},
				}},
			})
		case agent.RoleToolOut:
			out = append(out, openAIMessage{Role: "tool", Content: it.Content, ToolCallID: it.ToolCallID})
		default:
			out = append(out, openAIMessage{Role: string(it.Role), Content: it.Content})
		}
	}
	return out
}

func toOpenAITools(defs []agent.ToolDefinition) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(defs))
	for _, d := range defs {
		schema := json.RawMessage(d.ParamsJSONSchema)
		if len(schema) == 0 {
			schema = json.RawMessage("{}")
		}
		out = append(out, map[string]interface{}{
			"type": "function",
			"function": map[string]interface{}{
				"name":        d.Name,
				"description": d.Description,
				"parameters":  schema,
			},
		})
	}
	return out
}

var _ agent.LLM = (*OpenAILLM)(nil)
