package concurrency

import (
	"errors"
	"sync"
)

// ErrSourceAlreadySet is raised synchronously by SetSource when a source
// has already been attached — spec §7's "logic error" class, which must
// not propagate to silently corrupt state.
var ErrSourceAlreadySet = errors.New("concurrency: deferred stream source already set")

// DeferredStream is readable immediately; reads suspend until SetSource is
// called. SetSource may only be called once. DetachSource releases the
// current source reader without terminating the output stream — after
// detach, reads return any items already buffered and then complete as
// done, and the original source may be
// reattached to a fresh DeferredStream.
type DeferredStream[T any] struct {
	mu        sync.Mutex
	source    <-chan T
	attached  bool
	detached  bool
	cancel    chan struct{}
	pumpDone  chan struct{}
	out       chan T
	closeOnce sync.Once
}

// NewDeferredStream constructs a deferred stream with the given output
// buffer depth.
func NewDeferredStream[T any](bufferSize int) *DeferredStream[T] {
	return &DeferredStream[T]{
		out: make(chan T, bufferSize),
	}
}

// SetSource attaches src as the upstream. Returns ErrSourceAlreadySet if a
// source was already attached (even if since detached).
func (d *DeferredStream[T]) SetSource(src <-chan T) error {
	d.mu.Lock()
	if d.attached {
		d.mu.Unlock()
		return ErrSourceAlreadySet
	}
	d.attached = true
	d.source = src
	d.cancel = make(chan struct{})
	d.pumpDone = make(chan struct{})
	cancel := d.cancel
	pumpDone := d.pumpDone
	d.mu.Unlock()

	go d.pump(src, cancel, pumpDone)
	return nil
}

// pump proxies src into out until src closes or cancel fires. The read
// from src is itself raced against cancel, so a detach that lands while
// pump is waiting on an empty src stops it without taking an item (later
// items stay on src for whoever attaches next). An item already taken from
// src when the detach lands, or taken because src and cancel were ready at
// the same moment, is dropped if out cannot accept it.
func (d *DeferredStream[T]) pump(src <-chan T, cancel, done chan struct{}) {
	defer close(done)
	for {
		var v T
		var ok bool
		select {
		case v, ok = <-src:
		case <-cancel:
			return
		}
		if !ok {
			d.closeOut()
			return
		}

		select {
		case d.out <- v:
		case <-cancel:
			// Already pulled off src with nowhere left to deliver it:
			// this one item is lost, same as any in-flight value would
			// be if its consumer vanished mid-send.
			return
		}
	}
}

func (d *DeferredStream[T]) closeOut() {
	d.closeOnce.Do(func() { close(d.out) })
}

// DetachSource stops proxying the current source into Read without
// closing the underlying source channel; it is the caller's job to hand
// that same channel to a new DeferredStream if they want to keep reading
// it. Reads on this stream first return any items the pump had already
// buffered, then complete as done.
func (d *DeferredStream[T]) DetachSource() {
	d.mu.Lock()
	if d.detached {
		d.mu.Unlock()
		return
	}
	d.detached = true
	cancel := d.cancel
	pumpDone := d.pumpDone
	d.mu.Unlock()
	if cancel != nil {
		close(cancel)
		// Wait for the pump to stop so it cannot send on out after
		// out is closed below.
		<-pumpDone
	}
	d.closeOut()
}

// Read returns the next item, or ok=false once the source ends or is
// detached.
func (d *DeferredStream[T]) Read() (item T, ok bool) {
	item, ok = <-d.out
	return item, ok
}

// Chan exposes the raw output channel for use in select statements (e.g.
// the merge primitive).
func (d *DeferredStream[T]) Chan() <-chan T {
	return d.out
}
