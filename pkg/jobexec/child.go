package jobexec

import (
	"context"
	"fmt"
	"sync"

	"github.com/lokutor-ai/voxrunner/pkg/ipc"
	"github.com/lokutor-ai/voxrunner/pkg/logging"
	"github.com/lokutor-ai/voxrunner/pkg/room"
)

// JobContext is what an EntryFunc receives: the connected room and the
// job metadata the parent assigned.
type JobContext struct {
	Ctx context.Context
	Job ipc.RunningJob
	Rm  room.Room
}

// EntryFunc is the agent module's job entry point, invoked once per
// startJobRequest (spec §4.3).
type EntryFunc func(jc JobContext) error

// PrewarmFunc runs once per initializeRequest, before the first job is
// accepted — the hook for loading models or warming connection pools.
type PrewarmFunc func(ctx context.Context) error

// ShutdownFunc is a callback registered by the agent module and run, in
// registration order, when a shutdownRequest arrives.
type ShutdownFunc func(ctx context.Context)

// Child is the child-side runtime: it speaks the same ipc.Codec protocol
// Executor drives from the parent side, translating commands into calls
// against the configured agent module.
type Child struct {
	codec  *ipc.Codec
	logger logging.Logger

	entry    EntryFunc
	prewarm  PrewarmFunc
	newRoom  func() room.Room

	mu        sync.Mutex
	shutdowns []ShutdownFunc
	jobCancel context.CancelFunc
}

// NewChild constructs a Child. newRoom builds a fresh Room implementation
// per job (typically room.NewWebRTCRoom); entry is the agent's job logic.
func NewChild(codec *ipc.Codec, newRoom func() room.Room, entry EntryFunc, prewarm PrewarmFunc, logger logging.Logger) *Child {
	return &Child{
		codec:   codec,
		logger:  logging.Or(logger),
		entry:   entry,
		prewarm: prewarm,
		newRoom: newRoom,
	}
}

// OnShutdown registers a callback run during a shutdownRequest, in
// registration order.
func (c *Child) OnShutdown(fn ShutdownFunc) {
	c.mu.Lock()
	c.shutdowns = append(c.shutdowns, fn)
	c.mu.Unlock()
}

// Run reads envelopes from the parent until the connection closes or a
// shutdownRequest completes the drain sequence. It returns nil once
// "done" has been sent.
func (c *Child) Run(ctx context.Context) error {
	for {
		env, err := c.codec.ReadEnvelope()
		if err != nil {
			return fmt.Errorf("jobexec: child read: %w", err)
		}

		switch env.Variant {
		case ipc.InitializeRequest:
			var p ipc.InitializeRequestPayload
			_ = ipc.Decode(env, &p)
			c.handleInitialize(ctx, p)

		case ipc.PingRequest:
			var p ipc.PingRequestPayload
			_ = ipc.Decode(env, &p)
			c.handlePing(p)

		case ipc.StartJobRequest:
			var p ipc.StartJobRequestPayload
			_ = ipc.Decode(env, &p)
			go c.handleStartJob(ctx, p.RunningJob)

		case ipc.ShutdownRequest:
			var p ipc.ShutdownRequestPayload
			_ = ipc.Decode(env, &p)
			c.handleShutdown(ctx, p.Reason)
			return nil
		}
	}
}

func (c *Child) handleInitialize(ctx context.Context, p ipc.InitializeRequestPayload) {
	var errMsg string
	if c.prewarm != nil {
		if err := c.prewarm(ctx); err != nil {
			errMsg = err.Error()
			c.logger.Error("jobexec: prewarm failed", "error", err)
		}
	}
	env, _ := ipc.NewInitializeResponse(ipc.InitializeResponsePayload{Error: errMsg})
	_ = c.codec.WriteEnvelope(env)
}

func (c *Child) handlePing(p ipc.PingRequestPayload) {
	env, _ := ipc.NewPongResponse(ipc.PongResponsePayload{
		LastTimestamp: p.Timestamp,
	})
	_ = c.codec.WriteEnvelope(env)
}

func (c *Child) handleStartJob(ctx context.Context, job ipc.RunningJob) {
	jobCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.jobCancel = cancel
	c.mu.Unlock()
	defer cancel()

	rm := c.newRoom()
	if err := rm.Connect(jobCtx, job.URL, job.Token, nil); err != nil {
		c.logger.Error("jobexec: room connect failed", "job_id", job.ID, "error", err)
		return
	}
	defer rm.Close()

	if err := c.entry(JobContext{Ctx: jobCtx, Job: job, Rm: rm}); err != nil {
		c.logger.Error("jobexec: job entry returned error", "job_id", job.ID, "error", err)
	}
}

func (c *Child) handleShutdown(ctx context.Context, reason string) {
	c.mu.Lock()
	if c.jobCancel != nil {
		c.jobCancel()
	}
	callbacks := append([]ShutdownFunc(nil), c.shutdowns...)
	c.mu.Unlock()

	for _, fn := range callbacks {
		fn(ctx)
	}

	exiting, _ := ipc.NewExiting(reason)
	_ = c.codec.WriteEnvelope(exiting)
	done, _ := ipc.NewDone()
	_ = c.codec.WriteEnvelope(done)
}
