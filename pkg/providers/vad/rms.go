// Package vad adapts the runtime's voice-activity-detection providers to
// the agent.VAD capability interface.
package vad

import (
	"math"
	"time"

	"github.com/lokutor-ai/voxrunner/pkg/agent"
)

// RMSVAD is a lightweight, dependency-free root-mean-square voice-activity
// detector, kept from the teacher's orchestrator.RMSVAD with its hysteresis
// (consecutiveFrames/minConfirmed) unchanged and generalized onto the
// agent.VAD interface — where the teacher's per-chunk "silence" signal had
// no listener beyond logging, recognition.go only acts on speech-start/end,
// so Process here returns (nil, nil) on an ordinary below-threshold chunk
// instead of synthesizing an event nothing consumes.
type RMSVAD struct {
	threshold    float64
	silenceLimit time.Duration
	isSpeaking   bool
	silenceStart time.Time

	consecutiveFrames int
	minConfirmed      int
	lastRMS           float64
}

// NewRMSVAD constructs an RMSVAD with the given threshold and silence
// duration required to confirm speech end.
func NewRMSVAD(threshold float64, silenceLimit time.Duration) *RMSVAD {
	return &RMSVAD{
		threshold:    threshold,
		silenceLimit: silenceLimit,
		minConfirmed: 7, // ~70-100ms of continuous sound for snappy barge-in
	}
}

// SetMinConfirmed sets the number of consecutive above-threshold frames
// needed to confirm speech start.
func (v *RMSVAD) SetMinConfirmed(count int) { v.minConfirmed = count }

// SetThreshold updates the RMS threshold.
func (v *RMSVAD) SetThreshold(threshold float64) { v.threshold = threshold }

// Threshold returns the current RMS threshold.
func (v *RMSVAD) Threshold() float64 { return v.threshold }

// LastRMS returns the RMS computed for the most recently processed chunk.
func (v *RMSVAD) LastRMS() float64 { return v.lastRMS }

// IsSpeaking reports whether speech is currently considered ongoing.
func (v *RMSVAD) IsSpeaking() bool { return v.isSpeaking }

// Process implements agent.VAD.
func (v *RMSVAD) Process(chunk []byte) (*agent.VADEvent, error) {
	rms := v.calculateRMS(chunk)
	v.lastRMS = rms
	now := time.Now()

	if rms > v.threshold {
		v.consecutiveFrames++
		if !v.isSpeaking {
			if v.consecutiveFrames >= v.minConfirmed {
				v.isSpeaking = true
				return &agent.VADEvent{Type: agent.VADSpeechStart, Timestamp: now.UnixMilli()}, nil
			}
			return nil, nil
		}
		v.silenceStart = time.Time{}
		return nil, nil
	}

	v.consecutiveFrames = 0

	if v.isSpeaking {
		if v.silenceStart.IsZero() {
			v.silenceStart = now
		}
		if now.Sub(v.silenceStart) >= v.silenceLimit {
			v.isSpeaking = false
			duration := now.Sub(v.silenceStart)
			v.silenceStart = time.Time{}
			return &agent.VADEvent{Type: agent.VADSpeechEnd, Timestamp: now.UnixMilli(), SilenceDuration: duration.Seconds()}, nil
		}
	}

	return nil, nil
}

// Name implements agent.VAD.
func (v *RMSVAD) Name() string { return "rms_vad" }

// Reset implements agent.VAD.
func (v *RMSVAD) Reset() {
	v.isSpeaking = false
	v.silenceStart = time.Time{}
	v.consecutiveFrames = 0
}

// Clone implements agent.VAD, returning a fresh detector sharing
// configuration but not hysteresis state — used when a job hands each
// participant its own VAD instance.
func (v *RMSVAD) Clone() agent.VAD {
	return &RMSVAD{
		threshold:    v.threshold,
		silenceLimit: v.silenceLimit,
		minConfirmed: v.minConfirmed,
	}
}

func (v *RMSVAD) calculateRMS(chunk []byte) float64 {
	if len(chunk) == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < len(chunk)-1; i += 2 {
		sample := int16(chunk[i]) | (int16(chunk[i+1]) << 8)
		f := float64(sample) / 32768.0
		sum += f * f
	}
	return math.Sqrt(sum / float64(len(chunk)/2))
}
