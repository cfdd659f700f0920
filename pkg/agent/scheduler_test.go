package agent

import (
	"testing"
	"time"
)

func TestSchedulerPriorityOrdering(t *testing.T) {
	s := NewScheduler()
	stop := make(chan struct{})
	defer close(stop)

	low := NewSpeechHandle(PriorityLow, true, SourceGenerateReply, "")
	high := NewSpeechHandle(PriorityHigh, true, SourceGenerateReply, "")
	normal := NewSpeechHandle(PriorityNormal, true, SourceGenerateReply, "")

	s.Enqueue(low)
	s.Enqueue(high)
	s.Enqueue(normal)

	first := s.Next(stop)
	if first != high {
		t.Fatalf("expected high priority handle first, got %+v", first)
	}
	s.Release(first)

	second := s.Next(stop)
	if second != normal {
		t.Fatalf("expected normal priority handle second, got %+v", second)
	}
	s.Release(second)

	third := s.Next(stop)
	if third != low {
		t.Fatalf("expected low priority handle third, got %+v", third)
	}
}

func TestSchedulerFIFOWithinSamePriority(t *testing.T) {
	s := NewScheduler()
	stop := make(chan struct{})
	defer close(stop)

	a := NewSpeechHandle(PriorityNormal, true, SourceGenerateReply, "")
	b := NewSpeechHandle(PriorityNormal, true, SourceGenerateReply, "")

	s.Enqueue(a)
	s.Enqueue(b)

	first := s.Next(stop)
	if first != a {
		t.Fatalf("expected FIFO order to hand out a first, got %+v", first)
	}
}

func TestSchedulerOnlyOneHandlePlayingAtATime(t *testing.T) {
	s := NewScheduler()
	stop := make(chan struct{})
	defer close(stop)

	a := NewSpeechHandle(PriorityNormal, true, SourceGenerateReply, "")
	b := NewSpeechHandle(PriorityNormal, true, SourceGenerateReply, "")
	s.Enqueue(a)
	s.Enqueue(b)

	first := s.Next(stop)
	if first == nil {
		t.Fatal("expected a handle")
	}

	done := make(chan *SpeechHandle, 1)
	go func() {
		done <- s.Next(stop)
	}()

	select {
	case <-done:
		t.Fatal("Next must not hand out a second handle while one is still current")
	case <-time.After(50 * time.Millisecond):
	}

	s.Release(first)
	select {
	case h := <-done:
		if h != b {
			t.Fatalf("expected b after release, got %+v", h)
		}
	case <-time.After(time.Second):
		t.Fatal("Next did not return after Release")
	}
}

func TestSchedulerInterrupt(t *testing.T) {
	s := NewScheduler()
	stop := make(chan struct{})
	defer close(stop)

	h := NewSpeechHandle(PriorityNormal, true, SourceGenerateReply, "")
	s.Enqueue(h)
	cur := s.Next(stop)
	cur.MarkPlaying()

	interrupted := s.Interrupt()
	if interrupted != h {
		t.Fatalf("expected Interrupt to return the current handle, got %+v", interrupted)
	}
	if !h.IsInterrupted() {
		t.Fatal("expected handle to be marked interrupted")
	}
}

func TestSchedulerInterruptNoneCurrent(t *testing.T) {
	s := NewScheduler()
	if s.Interrupt() != nil {
		t.Fatal("expected Interrupt to return nil when nothing is current")
	}
}
