package agent

import "testing"

func TestChatContextAppendOrder(t *testing.T) {
	c := NewChatContext(0)
	c.Append(RoleSystem, "you are a helpful agent")
	c.Append(RoleUser, "hello")
	c.Append(RoleAssistant, "hi there")

	items := c.Items()
	if len(items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(items))
	}
	if items[1].Role != RoleUser || items[1].Content != "hello" {
		t.Fatalf("unexpected second item: %+v", items[1])
	}
	if c.LastUserText() != "hello" {
		t.Fatalf("LastUserText = %q", c.LastUserText())
	}
	if c.LastAssistantText() != "hi there" {
		t.Fatalf("LastAssistantText = %q", c.LastAssistantText())
	}
}

func TestChatContextTrimKeepsSystemItems(t *testing.T) {
	c := NewChatContext(2)
	c.Append(RoleSystem, "system prompt")
	c.Append(RoleUser, "one")
	c.Append(RoleAssistant, "two")
	c.Append(RoleUser, "three")

	items := c.Items()
	if len(items) != 2 {
		t.Fatalf("expected trim to 2 items, got %d: %+v", len(items), items)
	}
	if items[0].Role != RoleSystem {
		t.Fatalf("expected system item retained first, got %+v", items[0])
	}
	if items[1].Content != "three" {
		t.Fatalf("expected most recent item retained, got %+v", items[1])
	}
}

func TestChatContextTruncate(t *testing.T) {
	c := NewChatContext(0)
	first := c.Append(RoleUser, "hello")
	c.Append(RoleAssistant, "partial respo")
	c.Append(RoleUser, "should be cut")

	c.Truncate(first.ID)

	items := c.Items()
	if len(items) != 1 || items[0].ID != first.ID {
		t.Fatalf("expected only the first item to survive, got %+v", items)
	}
}

func TestChatContextToolRoundTrip(t *testing.T) {
	c := NewChatContext(0)
	call := c.AppendToolCall("get_weather", `{"city":"nyc"}`, "call-1")
	out := c.AppendToolOutput("call-1", "sunny, 75F")

	items := c.Items()
	if items[0].ID != call.ID || items[0].Role != RoleToolCall {
		t.Fatalf("unexpected tool call item: %+v", items[0])
	}
	if items[1].ID != out.ID || items[1].Role != RoleToolOut || items[1].ToolCallID != "call-1" {
		t.Fatalf("unexpected tool output item: %+v", items[1])
	}
}
