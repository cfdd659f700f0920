package concurrency

import (
	"context"
	"errors"
)

// ErrCancelled is the cancellation error a Task's Wait returns when it was
// cancelled rather than completed normally.
var ErrCancelled = errors.New("concurrency: task cancelled")

// Task is a future paired with an abort signal. Cancel is cooperative: fn
// receives a context that is cancelled on Cancel, and must check it at
// suspension points, same as every long-lived loop in pkg/agent and
// pkg/pool does.
type Task struct {
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// Go runs fn in a new goroutine under a context derived from parent, and
// returns a Task handle.
func Go(parent context.Context, fn func(ctx context.Context) error) *Task {
	ctx, cancel := context.WithCancel(parent)
	t := &Task{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(t.done)
		t.err = fn(ctx)
	}()
	return t
}

// Cancel requests cancellation; it does not wait for fn to observe it.
func (t *Task) Cancel() {
	t.cancel()
}

// Wait blocks until fn returns and reports its error (ErrCancelled if fn's
// error wraps context.Canceled, whether from Cancel or from the parent
// context; fn's own error otherwise).
func (t *Task) Wait() error {
	<-t.done
	if errors.Is(t.err, context.Canceled) {
		return ErrCancelled
	}
	return t.err
}

// Done reports whether fn has returned.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// GracefullyCancel cancels t and awaits it, swallowing the resulting
// cancellation error — spec §5's gracefullyCancel helper.
func GracefullyCancel(t *Task) {
	if t == nil {
		return
	}
	t.Cancel()
	if err := t.Wait(); err != nil && !errors.Is(err, ErrCancelled) {
		// fn finished with a non-cancellation error anyway; that is the
		// caller's business, not this helper's — gracefullyCancel only
		// promises the cancellation error itself is swallowed.
		_ = err
	}
}
