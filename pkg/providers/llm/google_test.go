package llm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/lokutor-ai/voxrunner/pkg/agent"
)

func TestGoogleLLMChatStreamsContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.RawQuery, "key=test-key") {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		writeSSE(w,
			`{"candidates":[{"content":{"parts":[{"text":"hello "}]}}]}`,
			`{"candidates":[{"content":{"parts":[{"text":"from google"}]}}]}`,
		)
	}))
	defer server.Close()

	l := &GoogleLLM{apiKey: "test-key", url: server.URL, model: "gemini"}

	var got string
	req := agent.ChatRequest{Items: []agent.ChatItem{{Role: agent.RoleUser, Content: "hi"}}}
	err := l.Chat(context.Background(), req, func(c agent.ChatChunk) error {
		got += c.Delta.Content
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "hello from google" {
		t.Errorf("expected 'hello from google', got %q", got)
	}
	if l.Name() != "google-llm" {
		t.Errorf("expected google-llm, got %s", l.Name())
	}
}

func TestGoogleLLMChatDeliversFunctionCallAsCompleteToolCall(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		writeSSE(w,
			`{"candidates":[{"content":{"parts":[{"functionCall":{"name":"get_weather","args":{"city":"ny"}}}]}}]}`,
		)
	}))
	defer server.Close()

	l := &GoogleLLM{apiKey: "test-key", url: server.URL, model: "gemini"}

	var calls []agent.ToolCall
	req := agent.ChatRequest{Items: []agent.ChatItem{{Role: agent.RoleUser, Content: "weather?"}}}
	err := l.Chat(context.Background(), req, func(c agent.ChatChunk) error {
		calls = append(calls, c.Delta.ToolCalls...)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(calls) != 1 || calls[0].Name != "get_weather" {
		t.Fatalf("unexpected tool calls: %+v", calls)
	}
	if !strings.Contains(calls[0].Args, `"city":"ny"`) {
		t.Errorf("unexpected args: %s", calls[0].Args)
	}
}
