package agent

import "time"

// EventType generalizes the teacher's orchestrator.EventType, adding
// BotResponse (the teacher's managed_stream.go already emits it even
// though its own EventType const block never declared it) and the
// handoff/metrics events this spec's session introduces.
type EventType string

const (
	UserSpeaking      EventType = "USER_SPEAKING"
	UserStopped       EventType = "USER_STOPPED"
	TranscriptPartial EventType = "TRANSCRIPT_PARTIAL"
	TranscriptFinal   EventType = "TRANSCRIPT_FINAL"
	BotThinking       EventType = "BOT_THINKING"
	BotSpeaking       EventType = "BOT_SPEAKING"
	BotResponse       EventType = "BOT_RESPONSE"
	Interrupted       EventType = "INTERRUPTED"
	AudioChunk        EventType = "AUDIO_CHUNK"
	ErrorEvent        EventType = "ERROR"
	AgentHandoff      EventType = "AGENT_HANDOFF"
	TurnMetricsEvent  EventType = "TURN_METRICS"
	PlaybackFinished  EventType = "PLAYBACK_FINISHED"
)

// Event is the single tagged-sum type the session emits everything
// through, replacing the source's per-kind event-emitter listeners (spec
// §9 "event emitters -> typed channels").
type Event struct {
	Type      EventType
	SessionID string
	Data      interface{}
}

// TurnMetrics is the payload shape declared for TurnMetricsEvent, holding
// per-turn STT/LLM/TTS stage timings. The session does not emit
// TurnMetricsEvent or fill this struct; it records only each turn's total
// duration, through its metrics recorder.
type TurnMetrics struct {
	SpeechHandleID  string
	STTDuration     time.Duration
	LLMDuration     time.Duration
	TTSTimeToFirstByte time.Duration
	TTSDuration     time.Duration
}

// PlaybackFinishedData accompanies PlaybackFinished events.
type PlaybackFinishedData struct {
	SpeechHandleID string
	Position       int
	Interrupted    bool
}
