package concurrency

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestTask_CancelSurfacesAsErrCancelled(t *testing.T) {
	started := make(chan struct{})
	task := Go(context.Background(), func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})

	<-started
	task.Cancel()

	if err := task.Wait(); !errors.Is(err, ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
}

func TestTask_NormalCompletionReturnsFnError(t *testing.T) {
	want := errors.New("boom")
	task := Go(context.Background(), func(ctx context.Context) error {
		return want
	})

	if err := task.Wait(); !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
}

func TestGracefullyCancel_SwallowsCancellation(t *testing.T) {
	task := Go(context.Background(), func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	done := make(chan struct{})
	go func() {
		GracefullyCancel(task)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("GracefullyCancel did not return")
	}
}
