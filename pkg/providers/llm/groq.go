package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/lokutor-ai/voxrunner/pkg/agent"
)

// GroqLLM calls Groq's OpenAI-compatible /openai/v1/chat/completions
// endpoint with streaming enabled. The wire shape is identical to
// OpenAILLM's, so Chat reuses the same request/response types.
type GroqLLM struct {
	apiKey string
	url    string
	model  string
}

// NewGroqLLM constructs a GroqLLM.
func NewGroqLLM(apiKey string, model string) *GroqLLM {
	if model == "" {
		model = "llama-3.3-70b-versatile"
	}
	return &GroqLLM{
		apiKey: apiKey,
		url:    "https://api.groq.com/openai/v1/chat/completions",
		model:  model,
	}
}

// Name implements agent.LLM.
func (l *GroqLLM) Name() string {
	return "groq-llm"
}

// Chat implements agent.LLM by streaming Groq's chat-completions SSE
// response, identical in shape to OpenAI's.
func (l *GroqLLM) Chat(ctx context.Context, req agent.ChatRequest, onChunk func(agent.ChatChunk) error) error {
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
		return fmt.Errorf("groq llm error (status %d): %v", resp.StatusCode, errResp)
	}

	type pendingCall struct {
		id, name, args string
	}
	pending := map[int]*pendingCall{}
	var order []int

	err = scanSSEEvents(resp.Body, func(data string) error {
		var chunk openAIStreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return nil
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

var _ agent.LLM = (*GroqLLM)(nil)
