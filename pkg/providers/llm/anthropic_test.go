package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/lokutor-ai/voxrunner/pkg/agent"
)

func TestAnthropicLLMChatStreamsContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var req struct {
			System string `json:"system,omitempty"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if req.System != "system instructions" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		writeSSE(w,
			`{"type":"content_block_start","index":0,"content_block":{"type":"text"}}`,
			`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"hello "}}`,
			`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"from anthropic"}}`,
			`{"type":"content_block_stop","index":0}`,
		)
	}))
	defer server.Close()

	l := &AnthropicLLM{apiKey: "test-key", url: server.URL, model: "claude-3"}

	var got string
	req := agent.ChatRequest{Items: []agent.ChatItem{
		{Role: agent.RoleSystem, Content: "system instructions"},
		{Role: agent.RoleUser, Content: "hi"},
	}}
	err := l.Chat(context.Background(), req, func(c agent.ChatChunk) error {
		got += c.Delta.Content
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "hello from anthropic" {
		t.Errorf("expected 'hello from anthropic', got %q", got)
	}
	if l.Name() != "anthropic-llm" {
		t.Errorf("expected anthropic-llm, got %s", l.Name())
	}
}

func TestAnthropicLLMChatAccumulatesToolUseBlock(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		writeSSE(w,
			`{"type":"content_block_start","index":0,"content_block":{"type":"tool_use","id":"call_1","name":"get_weather"}}`,
			`{"type":"content_block_delta","index":0,"delta":{"type":"input_json_delta","partial_json":"{\"city\":"}}`,
			`{"type":"content_block_delta","index":0,"delta":{"type":"input_json_delta","partial_json":"\"ny\"}"}}`,
			`{"type":"content_block_stop","index":0}`,
		)
	}))
	defer server.Close()

	l := &AnthropicLLM{apiKey: "test-key", url: server.URL, model: "claude-3"}

	var calls []agent.ToolCall
	req := agent.ChatRequest{Items: []agent.ChatItem{{Role: agent.RoleUser, Content: "weather?"}}}
	err := l.Chat(context.Background(), req, func(c agent.ChatChunk) error {
		calls = append(calls, c.Delta.ToolCalls...)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(calls) != 1 {
		t.Fatalf("expected exactly one tool call, got %d", len(calls))
	}
	if calls[0].Name != "get_weather" || calls[0].ID != "call_1" || calls[0].Args != `{"city":"ny"}` {
		t.Errorf("unexpected tool call: %+v", calls[0])
	}
}
