package llm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/lokutor-ai/voxrunner/pkg/agent"
)

func TestGroqLLMChatStreamsContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		writeSSE(w,
			`{"choices":[{"delta":{"content":"hello "}}]}`,
			`{"choices":[{"delta":{"content":"from groq"}}]}`,
		)
	}))
	defer server.Close()

	l := &GroqLLM{apiKey: "test-key", url: server.URL, model: "llama3-70b"}

	var got string
	req := agent.ChatRequest{Items: []agent.ChatItem{{Role: agent.RoleUser, Content: "hi"}}}
	err := l.Chat(context.Background(), req, func(c agent.ChatChunk) error {
		got += c.Delta.Content
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "hello from groq" {
		t.Errorf("expected 'hello from groq', got %q", got)
	}
	if l.Name() != "groq-llm" {
		t.Errorf("expected groq-llm, got %s", l.Name())
	}
}
