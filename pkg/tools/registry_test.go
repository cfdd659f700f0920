package tools

import (
	"testing"

	"github.com/lokutor-ai/voxrunner/pkg/agent"
)

func TestNewToolInvokesHandler(t *testing.T) {
	called := false
	tool := New("echo", "echoes its input", `{"type":"object"}`, func(callCtx agent.ToolCallContext, args string) (interface{}, error) {
		called = true
		return args, nil
	})

	if tool.Definition.Name != "echo" {
		t.Fatalf("unexpected name: %s", tool.Definition.Name)
	}

	result, err := tool.Handler(agent.ToolCallContext{}, `{"x":1}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatal("expected handler to be invoked")
	}
	if result != `{"x":1}` {
		t.Fatalf("unexpected result: %v", result)
	}
}
