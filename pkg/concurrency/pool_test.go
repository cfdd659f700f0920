package concurrency

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeHandle struct{ id int }

func TestPool_WithConnectionErrorClosesExactlyOnce(t *testing.T) {
	closes := 0
	p := NewPool[*fakeHandle](PoolOptions[*fakeHandle]{
		Connect: func(ctx context.Context) (*fakeHandle, error) { return &fakeHandle{id: 1}, nil },
		Close:   func(h *fakeHandle) { closes++ },
	})

	err := p.WithConnection(context.Background(), func(ctx context.Context, h *fakeHandle) error {
		return errors.New("boom")
	})
	if err == nil {
		t.Fatal("expected error to propagate")
	}
	if closes != 1 {
		t.Fatalf("expected exactly one Close call, got %d", closes)
	}

	// Idle set should be unaffected: a subsequent Get must dial again, not
	// reuse the failed handle.
	dials := 0
	p2 := NewPool[*fakeHandle](PoolOptions[*fakeHandle]{
		Connect: func(ctx context.Context) (*fakeHandle, error) { dials++; return &fakeHandle{id: dials}, nil },
		Close:   func(h *fakeHandle) {},
	})
	h, _ := p2.Get(context.Background())
	p2.Remove(h)
	h2, _ := p2.Get(context.Background())
	if h2.id == h.id {
		t.Fatalf("expected a fresh dial after Remove")
	}
}

func TestPool_GetPutReusesHandle(t *testing.T) {
	dials := 0
	p := NewPool[*fakeHandle](PoolOptions[*fakeHandle]{
		Connect: func(ctx context.Context) (*fakeHandle, error) { dials++; return &fakeHandle{id: dials}, nil },
		Close:   func(h *fakeHandle) {},
	})

	h1, err := p.Get(context.Background())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	p.Put(h1)

	h2, err := p.Get(context.Background())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if h2 != h1 {
		t.Fatalf("expected Get to return the handle Put back, dials=%d", dials)
	}
	if dials != 1 {
		t.Fatalf("expected exactly one dial, got %d", dials)
	}
}

func TestPool_InvalidateThenCloseClosesEveryIdleEntryOnce(t *testing.T) {
	closes := map[int]int{}
	p := NewPool[*fakeHandle](PoolOptions[*fakeHandle]{
		Connect: func(ctx context.Context) (*fakeHandle, error) { return nil, nil },
		Close:   func(h *fakeHandle) { closes[h.id]++ },
	})

	p.Put(&fakeHandle{id: 1})
	p.Put(&fakeHandle{id: 2})

	p.Invalidate()
	p.Put(&fakeHandle{id: 3}) // invalidated pool closes instead of keeping idle

	p.Close()

	for id, n := range closes {
		if n != 1 {
			t.Errorf("handle %d closed %d times, want 1", id, n)
		}
	}
	if len(closes) != 3 {
		t.Fatalf("expected all 3 handles closed, got %v", closes)
	}
}

func TestPool_MaxSessionDurationEvictsStaleIdleHandle(t *testing.T) {
	dials, closes := 0, 0
	p := NewPool[*fakeHandle](PoolOptions[*fakeHandle]{
		Connect:            func(ctx context.Context) (*fakeHandle, error) { dials++; return &fakeHandle{id: dials}, nil },
		Close:              func(h *fakeHandle) { closes++ },
		MaxSessionDuration: time.Millisecond,
	})

	h1, err := p.Get(context.Background())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	p.Put(h1)

	time.Sleep(5 * time.Millisecond)

	h2, err := p.Get(context.Background())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if h2.id == h1.id {
		t.Fatalf("expected the stale idle handle to be evicted and a fresh one dialed")
	}
	if closes != 1 {
		t.Fatalf("expected exactly one eviction close, got %d", closes)
	}
}

func TestPool_CloseIsIdempotent(t *testing.T) {
	p := NewPool[*fakeHandle](PoolOptions[*fakeHandle]{
		Connect: func(ctx context.Context) (*fakeHandle, error) { return nil, nil },
		Close:   func(h *fakeHandle) {},
	})
	p.Close()
	p.Close()
}
