// Package stt provides STT capability adapters over batch (single-shot)
// transcription HTTP APIs, generalized onto agent.STT's streaming contract
// via a silence-gated segmenter.
package stt

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/lokutor-ai/voxrunner/pkg/agent"
	"github.com/lokutor-ai/voxrunner/pkg/providers/vad"
)

// transcriber is the shape every batch HTTP provider in this package
// implements: submit a whole utterance, get text back.
type transcriber interface {
	Name() string
	Transcribe(ctx context.Context, audioPCM []byte, lang agent.Language) (string, error)
}

// segmentingSTT adapts a batch transcriber to agent.STT's streaming
// interface by running an internal RMS VAD over the incoming audio and
// submitting each confirmed utterance as one Transcribe call — the same
// buffer-until-silence strategy the teacher's ManagedStream used before
// calling a provider's Transcribe, now pushed down into the provider
// adapter itself so every batch-API STT shares it.
type segmentingSTT struct {
	t            transcriber
	threshold    float64
	silenceLimit time.Duration
}

func newSegmentingSTT(t transcriber, threshold float64, silenceLimit time.Duration) *segmentingSTT {
	return &segmentingSTT{t: t, threshold: threshold, silenceLimit: silenceLimit}
}

func (s *segmentingSTT) Name() string { return s.t.Name() }

// Recognize implements agent.STT's one-shot path directly against the
// wrapped batch transcriber.
func (s *segmentingSTT) Recognize(ctx context.Context, audioPCM []byte, lang agent.Language) (agent.SpeechEvent, error) {
	text, err := s.t.Transcribe(ctx, audioPCM, lang)
	if err != nil {
		return agent.SpeechEvent{}, err
	}
	return agent.SpeechEvent{
		Type:         agent.STTFinalTranscript,
		Alternatives: []agent.SpeechAlternative{{Text: text, Language: lang}},
	}, nil
}

// Stream implements agent.STT by buffering audio behind an internal VAD
// and flushing one Transcribe call per confirmed utterance.
func (s *segmentingSTT) Stream(ctx context.Context, lang agent.Language, onEvent func(agent.SpeechEvent)) (chan<- []byte, func(), error) {
	in := make(chan []byte, 64)
	stop := make(chan struct{})
	var stopOnce sync.Once

	go func() {
		detector := vad.NewRMSVAD(s.threshold, s.silenceLimit)
		var buf bytes.Buffer

		for {
			select {
			case chunk, ok := <-in:
				if !ok {
					return
				}
				ev, _ := detector.Process(chunk)
				buf.Write(chunk)

				if ev == nil {
					continue
				}
				switch ev.Type {
				case agent.VADSpeechStart:
					onEvent(agent.SpeechEvent{Type: agent.STTStartOfSpeech})
				case agent.VADSpeechEnd:
					onEvent(agent.SpeechEvent{Type: agent.STTEndOfSpeech})
					segment := make([]byte, buf.Len())
					copy(segment, buf.Bytes())
					buf.Reset()

					go func() {
						text, err := s.t.Transcribe(ctx, segment, lang)
						if err != nil || text == "" {
							return
						}
						onEvent(agent.SpeechEvent{
							Type:         agent.STTFinalTranscript,
							Alternatives: []agent.SpeechAlternative{{Text: text, Language: lang}},
						})
					}()
				}
			case <-stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	stopFn := func() {
		stopOnce.Do(func() { close(stop) })
	}
	return in, stopFn, nil
}
