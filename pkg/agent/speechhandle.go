package agent

import "sync"

// Priority mirrors spec §4.5's three canonical priorities.
type Priority int

const (
	PriorityLow    Priority = 0
	PriorityNormal Priority = 5
	PriorityHigh   Priority = 10
)

// Source tags why a SpeechHandle was created.
type Source string

const (
	SourceSay          Source = "say"
	SourceGenerateReply Source = "generate_reply"
	SourceToolResponse Source = "tool_response"
)

// HandleState is spec §3's SpeechHandle state machine:
// created -> authorized -> playing -> done, with an interrupted branch
// taken from created, authorized or playing.
type HandleState int

const (
	HandleCreated HandleState = iota
	HandleAuthorized
	HandlePlaying
	HandleInterrupted
	HandleDone
)

// SpeechHandle is one planned/ongoing assistant utterance (spec §3).
type SpeechHandle struct {
	ID                 string
	Priority           Priority
	AllowInterruptions bool
	EnqueueSeq         uint64
	UserInitiated      bool
	Source             Source
	ParentID           string

	// AssociatedChatItemID is set once the assistant message this handle
	// produces has been appended to the chat context.
	AssociatedChatItemID string

	// FixedText holds the literal utterance for Source==SourceSay; unused
	// for generate_reply/tool_response handles.
	FixedText string

	mu       sync.Mutex
	state    HandleState
	waiters  []chan struct{}
	interrupted bool
	playbackPosition int // bytes of audio acknowledged played
}

// NewSpeechHandle constructs a handle in HandleCreated.
func NewSpeechHandle(priority Priority, allowInterruptions bool, source Source, parentID string) *SpeechHandle {
	return &SpeechHandle{
		ID:                 newID("speech"),
		Priority:           priority,
		AllowInterruptions: allowInterruptions,
		Source:             source,
		ParentID:           parentID,
		state:              HandleCreated,
	}
}

func (h *SpeechHandle) State() HandleState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Authorize transitions created -> authorized. No-op if already past it.
func (h *SpeechHandle) Authorize() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state == HandleCreated {
		h.state = HandleAuthorized
	}
}

// MarkPlaying transitions authorized -> playing.
func (h *SpeechHandle) MarkPlaying() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state == HandleAuthorized {
		h.state = HandlePlaying
	}
}

// Interrupt marks the handle interrupted if AllowInterruptions permits it
// and it has not already reached a terminal state. Returns true if this
// call performed the transition.
func (h *SpeechHandle) Interrupt() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.AllowInterruptions {
		return false
	}
	if h.state == HandleDone || h.state == HandleInterrupted {
		return false
	}
	h.interrupted = true
	h.state = HandleInterrupted
	return true
}

// IsInterrupted reports whether Interrupt succeeded on this handle.
func (h *SpeechHandle) IsInterrupted() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.interrupted
}

// MarkDone transitions to done (from any state) and wakes every waiter.
// Idempotent.
func (h *SpeechHandle) MarkDone(playbackPosition int) {
	h.mu.Lock()
	if h.state == HandleDone {
		h.mu.Unlock()
		return
	}
	h.state = HandleDone
	h.playbackPosition = playbackPosition
	waiters := h.waiters
	h.waiters = nil
	h.mu.Unlock()

	for _, w := range waiters {
		close(w)
	}
}

// WaitForPlayout blocks until MarkDone is called.
func (h *SpeechHandle) WaitForPlayout() {
	h.mu.Lock()
	if h.state == HandleDone {
		h.mu.Unlock()
		return
	}
	ch := make(chan struct{})
	h.waiters = append(h.waiters, ch)
	h.mu.Unlock()
	<-ch
}

// PlaybackPosition returns the byte offset reached when MarkDone fired.
func (h *SpeechHandle) PlaybackPosition() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.playbackPosition
}
