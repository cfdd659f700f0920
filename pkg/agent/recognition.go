package agent

import (
	"context"
	"strings"
	"time"

	"github.com/lokutor-ai/voxrunner/pkg/room"
)

// runRecognition fans inbound audio frames out to the VAD and the STT
// stream concurrently (spec §4.4 "recognition fans one input out to VAD +
// STT"), reacts to VAD speech-start as a barge-in signal, and schedules
// end-of-turn detection off VAD speech-end in "vad" turn-detection mode and
// off STT final transcripts (handleSTTEvent) in "stt" mode. Grounded on the
// teacher's ManagedStream.processAudioChunk, generalized from its single
// RMSVAD call into the VAD/STT/TurnDetector capability trio.
func (s *AgentSession) runRecognition(ctx context.Context, audioIn <-chan room.AudioFrame) {
	sttAudio := make(chan []byte, 32)
	defer close(sttAudio)

	onSTTEvent := func(ev SpeechEvent) {
		s.handleSTTEvent(ctx, ev)
	}

	var stopSTT func()
	if st := s.stt(); st != nil {
		audioOut, stop, err := st.Stream(ctx, s.cfg.Language, onSTTEvent)
		if err != nil {
			s.emit(ErrorEvent, err)
		} else {
			stopSTT = stop
			go func() {
				for chunk := range sttAudio {
					select {
					case audioOut <- chunk:
					case <-ctx.Done():
						return
					}
				}
			}()
		}
	}
	if stopSTT != nil {
		defer stopSTT()
	}

	v := s.vad()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case frame, ok := <-audioIn:
			if !ok {
				return
			}
			select {
			case sttAudio <- frame.Data:
			default:
			}

			if v == nil {
				continue
			}
			ev, err := v.Process(frame.Data)
			if err != nil {
				s.emit(ErrorEvent, err)
				continue
			}
			if ev == nil {
				continue
			}
			switch ev.Type {
			case VADSpeechStart:
				s.handleBargeIn()
				s.emit(UserSpeaking, nil)
			case VADSpeechEnd:
				s.emit(UserStopped, nil)
				if s.cfg.TurnDetectionMode == "vad" {
					s.scheduleEndOfTurn(ctx, 0)
				}
			}
		}
	}
}

// handleBargeIn reacts to a VAD speech start (spec §4.4 "barge-in honors
// MinWordsToInterrupt"). When the current handle is UserInitiated and
// MinWordsToInterrupt > 0, a speech start does not interrupt: the word
// count is only known once a transcript arrives, so handleSTTEvent's check
// on final transcripts decides. Otherwise any speech start interrupts.
func (s *AgentSession) handleBargeIn() {
	cur := s.scheduler.Current()
	if cur == nil {
		return
	}
	if cur.UserInitiated && s.cfg.MinWordsToInterrupt > 0 {
		// Final-transcript word-count gating (handleSTTEvent) is
		// authoritative; a bare VAD speech-start does not yet interrupt.
		return
	}
	s.Interrupt()
	s.emit(Interrupted, cur.ID)
}

func (s *AgentSession) handleSTTEvent(ctx context.Context, ev SpeechEvent) {
	switch ev.Type {
	case STTInterimTranscript:
		if len(ev.Alternatives) > 0 {
			s.emit(TranscriptPartial, ev.Alternatives[0].Text)
		}
	case STTFinalTranscript:
		if len(ev.Alternatives) == 0 {
			return
		}
		text := ev.Alternatives[0].Text
		s.emit(TranscriptFinal, text)

		if words := len(strings.Fields(text)); words >= s.cfg.MinWordsToInterrupt {
			if cur := s.scheduler.Current(); cur != nil {
				s.Interrupt()
				s.emit(Interrupted, cur.ID)
			}
		}

		s.turnMu.Lock()
		if s.userTurnBuf == "" {
			s.userTurnBuf = text
		} else {
			s.userTurnBuf = s.userTurnBuf + " " + text
		}
		s.turnMu.Unlock()

		if s.cfg.TurnDetectionMode == "stt" {
			s.scheduleEndOfTurn(ctx, 0)
		}
	}
}

// scheduleEndOfTurn implements spec §4.4's endpointing delay: it waits
// MinEndpointingDelay (widened toward MaxEndpointingDelay when a configured
// TurnDetector predicts a low end-of-turn probability), then commits the
// accumulated user turn, unless a newer call to scheduleEndOfTurn or
// clearUserTurn has since superseded it.
func (s *AgentSession) scheduleEndOfTurn(ctx context.Context, _ time.Duration) {
	s.turnMu.Lock()
	s.eotGeneration++
	gen := s.eotGeneration
	s.turnMu.Unlock()

	delay := s.cfg.MinEndpointingDelay

	if td := s.defaultTurnDetector; td != nil && td.SupportsLanguage(s.cfg.Language) {
		threshold, ok := td.UnlikelyThreshold(s.cfg.Language)
		if ok {
			prob, err := td.PredictEndOfTurn(ctx, s.chat.Items())
			if err == nil && prob < threshold {
				delay = s.cfg.MaxEndpointingDelay
			}
		}
	}

	go func() {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		}

		s.turnMu.Lock()
		if s.eotGeneration != gen {
			s.turnMu.Unlock()
			return
		}
		text := s.userTurnBuf
		s.turnMu.Unlock()

		if text == "" {
			return
		}

		if ag := s.CurrentAgent(); ag != nil && ag.OnEndOfTurn != nil {
			if !ag.OnEndOfTurn(s, EndOfTurnInfo{Text: text}) {
				// Rejected: leave the buffer in place for a future
				// end-of-turn attempt to reconsider, rather than
				// discarding the transcript.
				return
			}
		}

		s.turnMu.Lock()
		if s.eotGeneration != gen {
			// Superseded while OnEndOfTurn ran; a newer attempt owns
			// the buffer now.
			s.turnMu.Unlock()
			return
		}
		s.userTurnBuf = ""
		s.turnMu.Unlock()
		s.commitUserTurn(text)
	}()
}

// commitUserTurn appends the accumulated transcript to the chat context and
// enqueues a reply generation (spec §4.4's end-of-turn action). With
// DiscardAudioIfUninterruptible set, a turn that ends while an
// uninterruptible handle is current is dropped instead of committed.
func (s *AgentSession) commitUserTurn(text string) {
	if s.cfg.DiscardAudioIfUninterruptible {
		if cur := s.scheduler.Current(); cur != nil && !cur.AllowInterruptions {
			return
		}
	}
	s.chat.Append(RoleUser, text)
	h := s.GenerateReply(PriorityNormal, true)
	h.UserInitiated = true
}

// clearUserTurn discards any transcript accumulated since the last commit
// without generating a reply (spec §4.4, used by manual turn-detection
// mode's explicit cancel path).
func (s *AgentSession) clearUserTurn() {
	s.turnMu.Lock()
	s.eotGeneration++
	s.userTurnBuf = ""
	s.turnMu.Unlock()
}

// CommitUserTurn is the public manual-mode entry point (spec §4.4
// "manual" turn detection: host decides when a turn ends).
func (s *AgentSession) CommitUserTurn() {
	s.turnMu.Lock()
	text := s.userTurnBuf
	s.userTurnBuf = ""
	s.eotGeneration++
	s.turnMu.Unlock()
	if text != "" {
		s.commitUserTurn(text)
	}
}

// ClearUserTurn is the public manual-mode entry point mirroring clearUserTurn.
func (s *AgentSession) ClearUserTurn() { s.clearUserTurn() }
