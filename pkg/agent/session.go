package agent

import (
	"context"
	"sync"

	"github.com/lokutor-ai/voxrunner/pkg/concurrency"
	"github.com/lokutor-ai/voxrunner/pkg/config"
	"github.com/lokutor-ai/voxrunner/pkg/metrics"
	"github.com/lokutor-ai/voxrunner/pkg/room"
)

// AgentSession is spec §3/§4.4-§4.7's central coordinator: it owns the
// ChatContext, the output Scheduler, the current Agent, and the
// recognition/generation goroutines that tie a Room's audio to STT/LLM/TTS.
// Grounded on the teacher's ManagedStream for the concurrency shape (one
// owning goroutine per concern, coordinated through channels) and on
// chriscow-livekit-agents-go's AgentSession for the session/handoff surface
// this spec's distillation is named after.
type AgentSession struct {
	cfg  config.Session
	room room.Room

	defaultSTT          STT
	defaultLLM          LLM
	defaultTTS          TTS
	defaultVAD          VAD
	defaultTurnDetector TurnDetector

	metrics *metrics.Metrics // optional; nil disables observation

	chat      *ChatContext
	scheduler *Scheduler
	audioOut  chan room.AudioFrame

	mu      sync.RWMutex
	current *Agent

	events chan Event

	stop       <-chan struct{}
	stopCancel context.CancelFunc
	closed     sync.Once

	tasks []*concurrency.Task

	// userTurnBuf accumulates committed final transcripts since the last
	// user turn was committed to the chat context (spec §4.4's manual
	// commit / clearUserTurn surface).
	turnMu        sync.Mutex
	userTurnBuf   string
	eotGeneration uint64
}

// Deps bundles the capability providers a session is constructed with.
type Deps struct {
	STT          STT
	LLM          LLM
	TTS          TTS
	VAD          VAD
	TurnDetector TurnDetector // may be nil: vad/manual modes don't need one
	Metrics      *metrics.Metrics // optional; nil disables observation
}

// NewAgentSession constructs a session bound to one Room, not yet started.
func NewAgentSession(cfg config.Session, rm room.Room, deps Deps) *AgentSession {
	return &AgentSession{
		cfg:                 cfg,
		room:                rm,
		defaultSTT:          deps.STT,
		defaultLLM:          deps.LLM,
		defaultTTS:          deps.TTS,
		defaultVAD:          deps.VAD,
		defaultTurnDetector: deps.TurnDetector,
		metrics:             deps.Metrics,
		chat:                NewChatContext(cfg.MaxContextMessages),
		scheduler:           NewScheduler(),
		events:              make(chan Event, 64),
	}
}

// Events exposes the session's single outbound event stream (spec §9
// "event emitters -> typed channels").
func (s *AgentSession) Events() <-chan Event { return s.events }

// ChatContext returns the session's conversation state.
func (s *AgentSession) ChatContext() *ChatContext { return s.chat }

func (s *AgentSession) emit(typ EventType, data interface{}) {
	select {
	case s.events <- Event{Type: typ, Data: data}:
	default:
		// Drop rather than block the pipeline on a slow/absent consumer,
		// matching the teacher's buffered-emit-or-drop discipline.
	}
}

// CurrentAgent returns the agent currently driving generation.
func (s *AgentSession) CurrentAgent() *Agent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// stt/llm/tts/vad resolve the effective capability: the current agent's
// override if set, else the session default (spec §3 "per-agent capability
// overrides").
func (s *AgentSession) stt() STT {
	if a := s.CurrentAgent(); a != nil && a.STT != nil {
		return a.STT
	}
	return s.defaultSTT
}

func (s *AgentSession) llm() LLM {
	if a := s.CurrentAgent(); a != nil && a.LLM != nil {
		return a.LLM
	}
	return s.defaultLLM
}

func (s *AgentSession) tts() TTS {
	if a := s.CurrentAgent(); a != nil && a.TTS != nil {
		return a.TTS
	}
	return s.defaultTTS
}

func (s *AgentSession) vad() VAD {
	if a := s.CurrentAgent(); a != nil && a.VAD != nil {
		return a.VAD
	}
	return s.defaultVAD
}

// Start activates entry, begins audio recognition from the room's first
// participant's published track, and starts the playout loop that drains
// the scheduler (spec §4.4 "session lifecycle").
func (s *AgentSession) Start(ctx context.Context, entry *Agent) error {
	s.mu.Lock()
	s.current = entry
	s.mu.Unlock()

	if entry.OnEnter != nil {
		entry.OnEnter(s)
	}

	participant, err := s.room.WaitForParticipant(ctx, "")
	if err != nil {
		return err
	}
	audioIn, err := s.room.SubscribeAudioTrack(ctx, participant.Identity)
	if err != nil {
		return err
	}

	s.audioOut = make(chan room.AudioFrame, 64)

	// The three pipeline goroutines share a derived context that Close can
	// cancel independently of the caller's ctx, so a session can be torn
	// down mid-call without the host having to cancel its own context.
	taskCtx, cancel := context.WithCancel(ctx)
	s.stop = taskCtx.Done()
	s.stopCancel = cancel

	publish := concurrency.Go(taskCtx, func(tctx context.Context) error {
		if err := s.room.PublishAudioTrack(tctx, s.audioOut); err != nil {
			s.emit(ErrorEvent, err)
			return err
		}
		return nil
	})
	recognize := concurrency.Go(taskCtx, func(tctx context.Context) error {
		s.runRecognition(tctx, audioIn)
		return nil
	})
	playout := concurrency.Go(taskCtx, func(tctx context.Context) error {
		s.runPlayoutLoop(tctx)
		return nil
	})
	s.tasks = []*concurrency.Task{publish, recognize, playout}
	return nil
}

// UpdateAgent performs a handoff (spec §4.6 step 7, GLOSSARY "Handoff"):
// the outgoing agent's OnExit runs, the pointer swap is atomic under the
// session's lock, then the incoming agent's OnEnter runs.
func (s *AgentSession) UpdateAgent(next *Agent) {
	s.mu.Lock()
	prev := s.current
	s.current = next
	s.mu.Unlock()

	if prev != nil && prev.OnExit != nil {
		prev.OnExit(s)
	}
	if next.OnEnter != nil {
		next.OnEnter(s)
	}
	s.emit(AgentHandoff, next)
}

// Say enqueues a fixed utterance, bypassing the LLM entirely (spec §4.6
// "say" entry point). priority and allowInterrupt are used as given.
func (s *AgentSession) Say(text string, priority Priority, allowInterrupt bool) *SpeechHandle {
	h := NewSpeechHandle(priority, allowInterrupt, SourceSay, "")
	h.FixedText = text
	s.scheduler.Enqueue(h)
	return h
}

// GenerateReply enqueues an LLM-driven reply generation over the current
// chat context (spec §4.6 "generate_reply" entry point).
func (s *AgentSession) GenerateReply(priority Priority, allowInterrupt bool) *SpeechHandle {
	h := NewSpeechHandle(priority, allowInterrupt, SourceGenerateReply, "")
	s.scheduler.Enqueue(h)
	return h
}

// Interrupt interrupts the currently playing handle, if any and if it
// permits interruption (spec §4.5). Any audio already queued for output
// but not yet delivered is drained to the room's clearBuffer callback.
func (s *AgentSession) Interrupt() *SpeechHandle {
	h := s.scheduler.Interrupt()
	if h != nil {
		s.clearAudioBuffer()
	}
	return h
}

// clearAudioBuffer drains any frames still sitting in audioOut and asks
// the room to flush whatever it hasn't emitted yet (spec §4.5 "drain its
// output buffer to the clearBuffer() sink callback").
func (s *AgentSession) clearAudioBuffer() {
	for {
		select {
		case <-s.audioOut:
		default:
			if s.room != nil {
				_ = s.room.ClearBuffer()
			}
			return
		}
	}
}

// runPlayoutLoop pulls authorized handles off the scheduler and runs each
// through the generation pipeline one at a time (spec §4.5 "at most one
// handle playing").
func (s *AgentSession) runPlayoutLoop(ctx context.Context) {
	for {
		h := s.scheduler.Next(s.stop)
		if h == nil {
			return
		}
		s.runSpeech(ctx, h)
		s.scheduler.Release(h)
	}
}

// Close stops the session's goroutines and releases the room. Idempotent.
func (s *AgentSession) Close() error {
	var err error
	s.closed.Do(func() {
		if s.stopCancel != nil {
			s.stopCancel()
		}
		for _, t := range s.tasks {
			concurrency.GracefullyCancel(t)
		}
		close(s.events)
		err = s.room.Close()
	})
	return err
}
