package agent

import "context"

// ToolCallContext is passed to a tool handler (spec §4.6 step 7:
// "(args, {ctx, toolCallId, abortSignal})").
type ToolCallContext struct {
	Ctx        context.Context
	ToolCallID string
	Session    *AgentSession
}

// Handoff is a tool result that atomically swaps the session's current
// agent (spec §4.6 step 7, GLOSSARY "Handoff").
type Handoff struct {
	Agent   *Agent
	Returns string
}

// ToolHandler executes one tool call. Its return value is either a plain
// string (appended as a tool-output item) or a *Handoff. Returning a
// *ToolError surfaces that message as the tool's output per spec §7;
// any other error surfaces as an ErrorEvent and the output becomes "tool
// execution failed".
type ToolHandler func(callCtx ToolCallContext, args string) (interface{}, error)

// Tool pairs a capability definition with its handler.
type Tool struct {
	Definition ToolDefinition
	Handler    ToolHandler
}

// Agent is spec §3's Agent entity: instructions, tools, lifecycle hooks,
// and optional per-agent capability overrides.
type Agent struct {
	Instructions string
	Tools        map[string]Tool

	// OnEnter/OnExit implement the handoff hook sequence (spec §4.6 step
	// 7, GLOSSARY "Handoff"): OnEnter runs when this agent becomes
	// current, OnExit when it is replaced.
	OnEnter func(session *AgentSession)
	OnExit  func(session *AgentSession)

	// OnEndOfTurn gates whether a detected end-of-turn is actually
	// committed to the chat context (spec §4.4's onEndOfTurn output hook).
	// A nil hook commits unconditionally; a hook returning false leaves
	// the accumulated transcript buffered rather than clearing it, so a
	// host can reject a turn it judges incomplete.
	OnEndOfTurn func(session *AgentSession, info EndOfTurnInfo) bool

	// Per-agent overrides; nil means "use the session's default".
	STT STT
	LLM LLM
	TTS TTS
	VAD VAD
}

// EndOfTurnInfo describes a candidate user turn about to be committed to
// the chat context, passed to Agent.OnEndOfTurn (spec §4.4).
type EndOfTurnInfo struct {
	Text string
}

// NewAgent constructs an Agent with an empty tool registry.
func NewAgent(instructions string) *Agent {
	return &Agent{Instructions: instructions, Tools: make(map[string]Tool)}
}

// AddTool registers a tool, unique within the agent (spec §3 invariant).
func (a *Agent) AddTool(t Tool) {
	if a.Tools == nil {
		a.Tools = make(map[string]Tool)
	}
	a.Tools[t.Definition.Name] = t
}

// ToolDefinitions returns the schema set the generation pipeline sends to
// the LLM for this agent (spec §4.6 step 1).
func (a *Agent) ToolDefinitions() []ToolDefinition {
	defs := make([]ToolDefinition, 0, len(a.Tools))
	for _, t := range a.Tools {
		defs = append(defs, t.Definition)
	}
	return defs
}
