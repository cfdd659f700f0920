package concurrency

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// entryState mirrors spec §3's ConnPoolEntry.state.
type entryState int

const (
	stateBuilding entryState = iota
	stateIdle
	stateInUse
	stateInvalid
)

type poolEntry[H any] struct {
	handle     H
	state      entryState
	connectedAt time.Time
	lastUsedAt  time.Time
}

// PoolOptions configures a Pool, matching spec §4.8's connection-pool
// parameters.
type PoolOptions[H any] struct {
	Connect            func(ctx context.Context) (H, error)
	Close              func(h H)
	MaxSessionDuration time.Duration // 0 = unbounded
	MarkRefreshedOnGet bool
}

// Pool is a keyless connection pool of opaque handles, grounded on
// msgworker.MessageWorkerPool's atomic-counter/mutex bookkeeping but
// generalized from a sharded worker set into a generic handle pool per
// spec §4.8. Build-per-call is serialized by buildMu so concurrent Get
// calls never race to dial twice when the idle set is empty. H must be
// comparable so a handle's original connect time can be tracked across
// repeated Get/Put cycles, for MaxSessionDuration eviction.
type Pool[H comparable] struct {
	opts PoolOptions[H]

	mu          sync.Mutex
	idle        []*poolEntry[H]
	connectedAt map[H]time.Time
	buildMu     sync.Mutex
	invalidate  bool
	closed      bool
}

// NewPool constructs a pool. Connect and Close must be non-nil.
func NewPool[H comparable](opts PoolOptions[H]) *Pool[H] {
	return &Pool[H]{opts: opts, connectedAt: make(map[H]time.Time)}
}

// Get returns a handle at most once per call: it first tries the idle
// set, otherwise builds a fresh one via Connect. The returned handle's
// bookkeeping entry is tracked in-use until Put or Remove.
func (p *Pool[H]) Get(ctx context.Context) (H, error) {
	if h, ok, err := p.tryIdle(); err != nil || ok {
		return h, err
	}

	p.buildMu.Lock()
	defer p.buildMu.Unlock()

	// Re-check idle set: another caller may have put a handle back while
	// we waited for buildMu.
	if h, ok, err := p.tryIdle(); err != nil || ok {
		return h, err
	}

	h, err := p.opts.Connect(ctx)
	if err != nil {
		var zero H
		return zero, err
	}
	p.mu.Lock()
	p.connectedAt[h] = time.Now()
	p.mu.Unlock()
	return h, nil
}

// tryIdle pops handles off the idle set, closing and discarding any whose
// connectedAt has exceeded MaxSessionDuration (spec §3 "evicted on ...
// max-session-duration"), until it returns a live one or finds the idle
// set empty. After Invalidate it hands out nothing: the idle handles are
// left for Close.
func (p *Pool[H]) tryIdle() (h H, ok bool, err error) {
	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			var zero H
			return zero, false, fmt.Errorf("concurrency: pool closed")
		}
		n := len(p.idle)
		if n == 0 || p.invalidate {
			p.mu.Unlock()
			var zero H
			return zero, false, nil
		}
		e := p.idle[n-1]
		p.idle = p.idle[:n-1]
		stale := p.opts.MaxSessionDuration > 0 && time.Since(e.connectedAt) >= p.opts.MaxSessionDuration
		if stale {
			delete(p.connectedAt, e.handle)
		} else {
			e.state = stateInUse
			if p.opts.MarkRefreshedOnGet {
				e.lastUsedAt = time.Now()
			}
		}
		p.mu.Unlock()

		if stale {
			p.opts.Close(e.handle)
			continue
		}
		return e.handle, true, nil
	}
}

// Put returns a handle to the idle set, keyed by reference semantics (the
// caller must not use the handle again after Put unless it calls Get and
// receives it back).
func (p *Pool[H]) Put(h H) {
	p.mu.Lock()
	closed := p.closed || p.invalidate
	if !closed {
		now := time.Now()
		connectedAt, ok := p.connectedAt[h]
		if !ok {
			connectedAt = now
			p.connectedAt[h] = now
		}
		p.idle = append(p.idle, &poolEntry[H]{handle: h, state: stateIdle, connectedAt: connectedAt, lastUsedAt: now})
	} else {
		delete(p.connectedAt, h)
	}
	p.mu.Unlock()

	if closed {
		p.opts.Close(h)
	}
}

// Remove closes h unconditionally; used after an error or abort.
func (p *Pool[H]) Remove(h H) {
	p.mu.Lock()
	delete(p.connectedAt, h)
	p.mu.Unlock()
	p.opts.Close(h)
}

// WithConnection acquires a handle, runs fn, and Puts on success or
// Removes on error (including ctx cancellation observed via ctx.Err()
// after fn returns).
func (p *Pool[H]) WithConnection(ctx context.Context, fn func(ctx context.Context, h H) error) error {
	h, err := p.Get(ctx)
	if err != nil {
		return err
	}
	err = fn(ctx, h)
	if err != nil || ctx.Err() != nil {
		p.Remove(h)
		if err != nil {
			return err
		}
		return ctx.Err()
	}
	p.Put(h)
	return nil
}

// Prewarm builds one handle in the background if the idle set is empty.
func (p *Pool[H]) Prewarm(ctx context.Context) {
	p.mu.Lock()
	empty := len(p.idle) == 0
	p.mu.Unlock()
	if !empty {
		return
	}
	go func() {
		h, err := p.opts.Connect(ctx)
		if err != nil {
			return
		}
		p.Put(h)
	}()
}

// Invalidate marks all currently-idle handles (and any returned from now
// on) to be closed rather than kept.
func (p *Pool[H]) Invalidate() {
	p.mu.Lock()
	p.invalidate = true
	p.mu.Unlock()
}

// Close closes every idle handle exactly once. Idempotent.
func (p *Pool[H]) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	idle := p.idle
	p.idle = nil
	p.connectedAt = make(map[H]time.Time)
	p.mu.Unlock()

	for _, e := range idle {
		p.opts.Close(e.handle)
	}
}
