package agent

import (
	"container/heap"
	"sync"
)

// schedHeap orders pending handles by (priority desc, enqueueSeq asc) —
// spec §4.5's queue discipline. container/heap is standard library; no
// example in the pack targets priority scheduling specifically, so this
// one data structure is stdlib by necessity rather than by choice.
type schedHeap []*SpeechHandle

func (h schedHeap) Len() int { return len(h) }
func (h schedHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority > h[j].Priority
	}
	return h[i].EnqueueSeq < h[j].EnqueueSeq
}
func (h schedHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *schedHeap) Push(x interface{}) { *h = append(*h, x.(*SpeechHandle)) }
func (h *schedHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Scheduler serializes output utterances: at most one SpeechHandle is in
// HandlePlaying at a time (spec §4.5). Priority orders only the pending
// handles: a newly enqueued handle, whatever its priority, waits until the
// current handle is released, and Enqueue never interrupts the current
// handle.
type Scheduler struct {
	mu      sync.Mutex
	pending schedHeap
	seq     uint64
	current *SpeechHandle
	notify  chan struct{}
}

// NewScheduler constructs an empty scheduler.
func NewScheduler() *Scheduler {
	s := &Scheduler{notify: make(chan struct{}, 1)}
	heap.Init(&s.pending)
	return s
}

// Enqueue adds a handle to the pending queue in HandleCreated and returns
// its assigned sequence number.
func (s *Scheduler) Enqueue(h *SpeechHandle) uint64 {
	s.mu.Lock()
	s.seq++
	h.EnqueueSeq = s.seq
	heap.Push(&s.pending, h)
	s.mu.Unlock()
	s.wake()
	return h.EnqueueSeq
}

func (s *Scheduler) wake() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Next blocks until a handle is authorized and ready to run through the
// generation pipeline, or until stop is closed.
func (s *Scheduler) Next(stop <-chan struct{}) *SpeechHandle {
	for {
		s.mu.Lock()
		if s.current == nil && len(s.pending) > 0 {
			h := heap.Pop(&s.pending).(*SpeechHandle)
			h.Authorize()
			s.current = h
			s.mu.Unlock()
			return h
		}
		s.mu.Unlock()

		select {
		case <-s.notify:
		case <-stop:
			return nil
		}
	}
}

// Release clears the current handle once its generation pipeline has
// finished (done or interrupted), allowing Next to hand out the following
// highest-priority pending handle.
func (s *Scheduler) Release(h *SpeechHandle) {
	s.mu.Lock()
	if s.current == h {
		s.current = nil
	}
	s.mu.Unlock()
	s.wake()
}

// Current returns the handle currently authorized/playing, if any.
func (s *Scheduler) Current() *SpeechHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Interrupt interrupts the currently playing handle, if one exists and
// permits interruption. Returns the interrupted handle, or nil.
func (s *Scheduler) Interrupt() *SpeechHandle {
	s.mu.Lock()
	cur := s.current
	s.mu.Unlock()
	if cur == nil {
		return nil
	}
	if cur.Interrupt() {
		return cur
	}
	return nil
}

// Pending reports how many handles are queued but not yet authorized.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}
