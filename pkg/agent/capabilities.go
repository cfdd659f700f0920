package agent

import "context"

// Voice/Language are plain string aliases, so provider adapters need not
// import pkg/config for them.
type Voice = string
type Language = string

// SpeechAlternative is one STT hypothesis (spec §6.2).
type SpeechAlternative struct {
	Text       string
	Language   Language
	StartTime  float64
	EndTime    float64
	Confidence float64
}

type STTEventType string

const (
	STTInterimTranscript STTEventType = "INTERIM_TRANSCRIPT"
	STTFinalTranscript   STTEventType = "FINAL_TRANSCRIPT"
	STTStartOfSpeech     STTEventType = "START_OF_SPEECH"
	STTEndOfSpeech       STTEventType = "END_OF_SPEECH"
)

type SpeechEvent struct {
	Type         STTEventType
	Alternatives []SpeechAlternative
}

// STT is the speech-to-text capability contract.
type STT interface {
	Name() string
	Recognize(ctx context.Context, audio []byte, lang Language) (SpeechEvent, error)
	// Stream starts a streaming recognition session; sending []byte on
	// the returned channel's paired writer feeds audio, and events are
	// delivered through onEvent. The returned function stops the stream.
	Stream(ctx context.Context, lang Language, onEvent func(SpeechEvent)) (audioIn chan<- []byte, stop func(), err error)
}

// ToolDefinition/ToolCall/ChatChunk model the LLM capability's function
// calling surface (spec §6.2, §4.6).
type ToolDefinition struct {
	Name        string
	Description string
	ParamsJSONSchema string
}

type ToolCall struct {
	ID   string
	Name string
	Args string // JSON
}

type ChatDelta struct {
	Role      Role
	Content   string
	ToolCalls []ToolCall
}

type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

type ChatChunk struct {
	ID    string
	Delta ChatDelta
	Usage *Usage
}

// ChatRequest is what the generation pipeline builds for each LLM call
// (spec §4.6 step 1-2).
type ChatRequest struct {
	Items      []ChatItem
	Tools      []ToolDefinition
	ToolChoice string // "auto" | "none" | a specific tool name
}

// LLM is the chat-completion capability contract, generalizing the
// teacher's single-shot Complete(ctx, messages) into a streaming,
// tool-call-aware interface per spec §4.6.
type LLM interface {
	Name() string
	// Chat opens a streaming completion; onChunk is invoked for every
	// ChatChunk until the stream ends or ctx is cancelled.
	Chat(ctx context.Context, req ChatRequest, onChunk func(ChatChunk) error) error
}

// TTS is the text-to-speech capability contract.
type TTS interface {
	Name() string
	Synthesize(ctx context.Context, text string, voice Voice, lang Language) ([]byte, error)
	StreamSynthesize(ctx context.Context, text string, voice Voice, lang Language, onChunk func([]byte) error) error
	// Abort cancels any in-flight streaming synthesis — the teacher's own
	// managed_stream.go already calls this; the interface simply declares
	// what was already being relied upon.
	Abort() error
}

type VADEventType string

const (
	VADSpeechStart VADEventType = "SPEECH_START"
	VADInferenceDone VADEventType = "INFERENCE_DONE"
	VADSpeechEnd     VADEventType = "SPEECH_END"
)

type VADEvent struct {
	Type            VADEventType
	Timestamp       int64
	SilenceDuration float64
	SpeechDuration  float64
}

// VAD is the voice-activity-detection capability contract, kept
// compatible with the teacher's orchestrator.VADProvider shape (Process/
// Reset/Clone/Name) since RMSVAD is carried forward unchanged.
type VAD interface {
	Process(chunk []byte) (*VADEvent, error)
	Reset()
	Clone() VAD
	Name() string
}

// TurnDetector estimates end-of-turn probability (spec §6.2, §4.4).
type TurnDetector interface {
	SupportsLanguage(lang Language) bool
	UnlikelyThreshold(lang Language) (float64, bool)
	PredictEndOfTurn(ctx context.Context, items []ChatItem) (float64, error)
}
