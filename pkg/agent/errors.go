package agent

import "errors"

var (
	ErrEmptyTranscription  = errors.New("agent: transcription returned empty text")
	ErrTranscriptionFailed = errors.New("agent: speech-to-text transcription failed")
	ErrLLMFailed           = errors.New("agent: language model generation failed")
	ErrTTSFailed           = errors.New("agent: text-to-speech synthesis failed")
	ErrNilProvider         = errors.New("agent: required provider is nil")
	ErrContextCancelled    = errors.New("agent: operation cancelled by context")

	// ErrToolStepsExceeded is raised when the tool-call <-> LLM loop in
	// the generation pipeline exceeds maxToolSteps (SPEC_FULL.md's
	// supplemented tool-step budget).
	ErrToolStepsExceeded = errors.New("agent: exceeded maximum tool call steps")

	// ErrUninterruptible names the logic error of interrupting a handle
	// with AllowInterruptions=false. Nothing in this package returns it:
	// SpeechHandle.Interrupt reports that case by returning false and
	// leaves the handle's state unchanged.
	ErrUninterruptible = errors.New("agent: speech handle does not allow interruption")
)

// ToolError is returned by a tool handler to signal a recoverable failure
// whose message should be surfaced to the model as the tool's own output
// (spec §4.6/§7), as opposed to any other error, which becomes an
// ErrorEvent and a generic "tool execution failed" output.
type ToolError struct {
	Msg string
}

func (e *ToolError) Error() string { return e.Msg }

// NewToolError constructs a ToolError.
func NewToolError(msg string) *ToolError { return &ToolError{Msg: msg} }
