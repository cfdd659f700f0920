package concurrency

import (
	"testing"
	"time"
)

func TestMailbox_PutGetPreservesOrder(t *testing.T) {
	mb := NewMailbox[string](0)
	mb.Put("a")
	mb.Put("b")
	mb.Put("c")

	for _, want := range []string{"a", "b", "c"} {
		got, ok := mb.Get()
		if !ok {
			t.Fatalf("expected ok=true")
		}
		if got != want {
			t.Errorf("got %q, want %q", got, want)
		}
	}
}

func TestMailbox_CloseUnblocksWaiters(t *testing.T) {
	mb := NewMailbox[int](0)
	done := make(chan struct{})
	go func() {
		_, ok := mb.Get()
		if ok {
			t.Error("expected ok=false after close")
		}
		close(done)
	}()

	mb.Close()
	<-done
}

func TestMailbox_CloseIsIdempotent(t *testing.T) {
	mb := NewMailbox[int](1)
	mb.Close()
	mb.Close()
}

func TestMailbox_ItemsQueuedBeforeCloseStillDelivered(t *testing.T) {
	mb := NewMailbox[int](0)
	mb.Put(1)
	mb.Put(2)
	mb.Close()

	got, ok := mb.Get()
	if !ok || got != 1 {
		t.Fatalf("expected (1,true), got (%v,%v)", got, ok)
	}
	got, ok = mb.Get()
	if !ok || got != 2 {
		t.Fatalf("expected (2,true), got (%v,%v)", got, ok)
	}
	_, ok = mb.Get()
	if ok {
		t.Fatalf("expected drained mailbox to report ok=false")
	}
}

func TestMailbox_BoundedCapacityBlocksPut(t *testing.T) {
	mb := NewMailbox[int](1)
	mb.Put(1)

	putDone := make(chan struct{})
	go func() {
		mb.Put(2)
		close(putDone)
	}()

	select {
	case <-putDone:
		t.Fatal("Put on a full mailbox should block until a Get frees capacity")
	case <-time.After(50 * time.Millisecond):
	}

	mb.Get()
	<-putDone
}
