package agent

import (
	"context"
	"strings"
	"time"

	"github.com/lokutor-ai/voxrunner/pkg/room"
)

// runSpeech executes one authorized SpeechHandle end to end: for a "say"
// handle it synthesizes fixed text directly; for generate_reply/
// tool_response it drives the full LLM -> tool-loop -> TTS pipeline (spec
// §4.6). It always ends by calling MarkDone; runPlayoutLoop then releases
// the handle so the scheduler can advance.
func (s *AgentSession) runSpeech(ctx context.Context, h *SpeechHandle) {
	h.MarkPlaying()
	s.emit(BotSpeaking, h.ID)
	started := time.Now()

	var position int
	switch h.Source {
	case SourceSay:
		position = s.speak(ctx, h, h.FixedText)
	default:
		position = s.runGenerationLoop(ctx, h)
	}

	interrupted := h.IsInterrupted()
	h.MarkDone(position)
	if s.metrics != nil {
		outcome := "completed"
		if interrupted {
			outcome = "interrupted"
		}
		s.metrics.ObserveTurnDuration(outcome, time.Since(started).Seconds())
	}
	s.emit(PlaybackFinished, PlaybackFinishedData{SpeechHandleID: h.ID, Position: position, Interrupted: interrupted})
}

// runGenerationLoop is spec §4.6's numbered pipeline: build request, stream
// the model, split text/tool-calls, speak text as it arrives, execute tool
// calls and feed results back, repeating until the model stops requesting
// tools or maxToolSteps is exceeded (SPEC_FULL.md's supplemented budget).
func (s *AgentSession) runGenerationLoop(ctx context.Context, h *SpeechHandle) int {
	llm := s.llm()
	if llm == nil {
		s.emit(ErrorEvent, ErrNilProvider)
		return 0
	}

	totalPosition := 0
	steps := 0
	maxSteps := s.cfg.MaxToolSteps
	if maxSteps <= 0 {
		maxSteps = 8
	}

	for {
		if steps >= maxSteps {
			s.emit(ErrorEvent, ErrToolStepsExceeded)
			return totalPosition
		}
		steps++

		ag := s.CurrentAgent()
		req := ChatRequest{
			Items:      s.buildPromptItems(ag),
			Tools:      ag.ToolDefinitions(),
			ToolChoice: "auto",
		}

		toolCalls, spoken, err := s.streamAndSpeak(ctx, llm, req, h)
		totalPosition += spoken
		if err != nil {
			s.emit(ErrorEvent, err)
			return totalPosition
		}

		if h.IsInterrupted() {
			if h.AssociatedChatItemID != "" {
				s.chat.Truncate(h.AssociatedChatItemID)
			}
			return totalPosition
		}

		if len(toolCalls) == 0 {
			return totalPosition
		}

		s.runToolCalls(ctx, h, ag, toolCalls)
		// Loop again: the model sees the tool outputs appended to chat
		// context and may respond with more text, more calls, or stop.
		// After a handoff the next step rebuilds the request from the
		// new current agent's instructions and tools.
	}
}

// buildPromptItems prepends the current agent's instructions as a system
// item ahead of the chat context's items (spec §4.6 step 1).
func (s *AgentSession) buildPromptItems(a *Agent) []ChatItem {
	items := s.chat.Items()
	if a == nil || a.Instructions == "" {
		return items
	}
	sys := ChatItem{ID: "instructions", Role: RoleSystem, Content: a.Instructions}
	return append([]ChatItem{sys}, items...)
}

// streamAndSpeak drives one LLM.Chat call and speaks each sentence as soon
// as it completes in the token stream, concurrently with the model still
// producing the rest of the reply (spec §4.6 steps 2-5's streaming
// text-to-TTS pipeline). The chat context gains a single assistant item for
// this step, grown in place sentence by sentence via ChatContext.UpdateContent
// so that, if h is interrupted partway through, the item already holds
// exactly the text that was handed to TTS — nothing more. Returns the tool
// calls the model requested and the number of audio bytes queued.
func (s *AgentSession) streamAndSpeak(ctx context.Context, llm LLM, req ChatRequest, h *SpeechHandle) ([]ToolCall, int, error) {
	var pending strings.Builder
	var spokenText strings.Builder
	var calls []ToolCall
	var itemID string
	position := 0

	flush := func(sentence string) {
		if sentence == "" {
			return
		}
		if spokenText.Len() > 0 {
			spokenText.WriteByte(' ')
		}
		spokenText.WriteString(sentence)
		if itemID == "" {
			item := s.chat.Append(RoleAssistant, spokenText.String())
			itemID = item.ID
			h.AssociatedChatItemID = itemID
		} else {
			s.chat.UpdateContent(itemID, spokenText.String())
		}
		s.emit(BotResponse, sentence)
		position += s.speak(ctx, h, sentence)
	}

	err := llm.Chat(ctx, req, func(chunk ChatChunk) error {
		if h.IsInterrupted() {
			return context.Canceled
		}
		if chunk.Delta.Content != "" {
			pending.WriteString(chunk.Delta.Content)
			complete, rest := extractSentences(pending.String())
			pending.Reset()
			pending.WriteString(rest)
			for _, sentence := range complete {
				flush(sentence)
				if h.IsInterrupted() {
					return context.Canceled
				}
			}
		}
		calls = append(calls, chunk.Delta.ToolCalls...)
		return nil
	})
	if err != nil && err != context.Canceled {
		return calls, position, err
	}

	// Whatever's left never reached a sentence terminator. Speak it too,
	// unless the handle was interrupted — in that case only text already
	// flushed above counts as emitted.
	if !h.IsInterrupted() {
		if rest := strings.TrimSpace(pending.String()); rest != "" {
			flush(rest)
		}
	}
	return calls, position, nil
}

// runToolCalls executes every tool call the model requested in this step,
// appending call/output pairs to the chat context (spec §4.6 step 7). It
// returns true if a handoff occurred; the generation loop then continues
// with the new agent's instructions and tools.
func (s *AgentSession) runToolCalls(ctx context.Context, h *SpeechHandle, a *Agent, calls []ToolCall) bool {
	for _, call := range calls {
		s.chat.AppendToolCall(call.Name, call.Args, call.ID)

		tool, ok := a.Tools[call.Name]
		if !ok {
			s.chat.AppendToolOutput(call.ID, "unknown tool: "+call.Name)
			s.incToolCall(call.Name, "unknown_tool")
			continue
		}

		result, err := tool.Handler(ToolCallContext{Ctx: ctx, ToolCallID: call.ID, Session: s}, call.Args)
		if err != nil {
			if te, ok := err.(*ToolError); ok {
				s.chat.AppendToolOutput(call.ID, te.Error())
				s.incToolCall(call.Name, "tool_error")
			} else {
				s.emit(ErrorEvent, err)
				s.chat.AppendToolOutput(call.ID, "tool execution failed")
				s.incToolCall(call.Name, "error")
			}
			continue
		}

		switch v := result.(type) {
		case *Handoff:
			s.chat.AppendToolOutput(call.ID, v.Returns)
			s.incToolCall(call.Name, "handoff")
			s.UpdateAgent(v.Agent)
			return true
		case string:
			s.chat.AppendToolOutput(call.ID, v)
			s.incToolCall(call.Name, "ok")
		default:
			s.chat.AppendToolOutput(call.ID, "")
			s.incToolCall(call.Name, "ok")
		}
	}
	return false
}

func (s *AgentSession) incToolCall(tool, outcome string) {
	if s.metrics != nil {
		s.metrics.IncToolCall(tool, outcome)
	}
}

// speak synthesizes text through the current TTS provider and publishes
// the resulting audio to the room, sentence by sentence, so speech starts
// before the entire text has been synthesized (spec §4.6 step 5's
// streaming-TTS requirement). It stops early if h is interrupted, returning
// the number of audio bytes successfully queued for playout.
func (s *AgentSession) speak(ctx context.Context, h *SpeechHandle, text string) int {
	tts := s.tts()
	if tts == nil || text == "" {
		return 0
	}

	position := 0
	for _, sentence := range splitSentences(text) {
		if h.IsInterrupted() {
			break
		}
		err := tts.StreamSynthesize(ctx, sentence, Voice(s.cfg.VoiceStyle), Language(s.cfg.Language), func(chunk []byte) error {
			if h.IsInterrupted() {
				return context.Canceled
			}
			frame := room.AudioFrame{Data: chunk, SampleRate: defaultSampleRate, Channels: 1}
			select {
			case s.audioOut <- frame:
				position += len(chunk)
			case <-ctx.Done():
				return ctx.Err()
			}
			return nil
		})
		if err != nil && err != context.Canceled {
			s.emit(ErrorEvent, err)
			break
		}
	}
	if h.IsInterrupted() {
		_ = tts.Abort()
	}
	return position
}

const defaultSampleRate = 44100

// splitSentences breaks text on sentence-ending punctuation, matching the
// teacher's managed_stream.go sentence tokenizer used to start TTS before
// the whole LLM response has arrived.
func splitSentences(text string) []string {
	var sentences []string
	var cur strings.Builder
	for _, r := range text {
		cur.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			sentences = append(sentences, strings.TrimSpace(cur.String()))
			cur.Reset()
		}
	}
	if rest := strings.TrimSpace(cur.String()); rest != "" {
		sentences = append(sentences, rest)
	}
	return sentences
}

// extractSentences is splitSentences' incremental counterpart: given text
// buffered so far from a token stream, it returns every sentence that has
// reached a terminator and the unterminated remainder, so a caller can feed
// growing chunks in and speak each sentence the moment it completes.
func extractSentences(buffered string) (complete []string, remainder string) {
	var cur strings.Builder
	for _, r := range buffered {
		cur.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			complete = append(complete, strings.TrimSpace(cur.String()))
			cur.Reset()
		}
	}
	return complete, cur.String()
}
