package vad

import (
	"math"
	"testing"
	"time"

	"github.com/lokutor-ai/voxrunner/pkg/agent"
)

func loudFrame(n int) []byte {
	buf := make([]byte, n*2)
	for i := 0; i < n; i++ {
		s := int16(20000 * math.Sin(float64(i)))
		if s == 0 {
			s = 20000
		}
		buf[i*2] = byte(s)
		buf[i*2+1] = byte(s >> 8)
	}
	return buf
}

func silentFrame(n int) []byte {
	return make([]byte, n*2)
}

func TestRMSVADConfirmsSpeechAfterMinFrames(t *testing.T) {
	v := NewRMSVAD(0.1, 200*time.Millisecond)
	v.SetMinConfirmed(3)

	var ev *agent.VADEvent
	for i := 0; i < 3; i++ {
		e, err := v.Process(loudFrame(160))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if e != nil {
			ev = e
		}
	}
	if ev == nil || ev.Type != agent.VADSpeechStart {
		t.Fatalf("expected speech start after minConfirmed frames, got %+v", ev)
	}
	if !v.IsSpeaking() {
		t.Fatal("expected IsSpeaking true after confirmed speech")
	}
}

func TestRMSVADSpeechEndAfterSilenceLimit(t *testing.T) {
	v := NewRMSVAD(0.1, 10*time.Millisecond)
	v.SetMinConfirmed(1)

	if _, err := v.Process(loudFrame(160)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !v.IsSpeaking() {
		t.Fatal("expected speaking after first loud frame")
	}

	time.Sleep(15 * time.Millisecond)
	ev, err := v.Process(silentFrame(160))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev == nil || ev.Type != agent.VADSpeechEnd {
		t.Fatalf("expected speech end once silence exceeds the limit, got %+v", ev)
	}
	if v.IsSpeaking() {
		t.Fatal("expected speaking to be false after speech end")
	}
}

func TestRMSVADResetClearsState(t *testing.T) {
	v := NewRMSVAD(0.1, 200*time.Millisecond)
	v.SetMinConfirmed(1)
	if _, err := v.Process(loudFrame(160)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	v.Reset()
	if v.IsSpeaking() {
		t.Fatal("expected Reset to clear isSpeaking")
	}
}
