package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"

	"github.com/lokutor-ai/voxrunner/pkg/concurrency"
	"github.com/lokutor-ai/voxrunner/pkg/config"
	"github.com/lokutor-ai/voxrunner/pkg/ipc"
	"github.com/lokutor-ai/voxrunner/pkg/jobexec"
	"github.com/lokutor-ai/voxrunner/pkg/logging"
)

// Launcher is the subset of *pool.Pool the Worker depends on, so tests
// can hand in a fake without spawning real subprocesses.
type Launcher interface {
	Launch(ctx context.Context, job ipc.RunningJob) (*jobexec.Executor, error)
	IdleCount() int
	Capacity() int
}

// Worker maintains one authenticated duplex control connection to a
// dispatch server (spec §4.1): it registers, then concurrently pings,
// reads assignments/terminations, and reports load as the pool's idle
// count changes.
type Worker struct {
	cfg    config.Worker
	pool   Launcher
	logger logging.Logger

	mu                 sync.Mutex
	unrecoverableCount int
	lastIdleCount      int
}

// New constructs a Worker.
func New(cfg config.Worker, pool Launcher, logger logging.Logger) *Worker {
	return &Worker{
		cfg:    cfg,
		pool:   pool,
		logger: logging.Or(logger),
	}
}

// Run connects and serves until ctx is cancelled, the worker exceeds
// MaxUnrecoverableErrors, or the reconnect backoff runs past
// ReconnectMaxElapsedTime, reconnecting with exponential backoff on
// transport failure in between (spec §4.1's failure policy).
func (w *Worker) Run(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 0 // no wall-clock cap unless ReconnectMaxElapsedTime is set
	if w.cfg.ReconnectMaxElapsedTime > 0 {
		bo.MaxElapsedTime = w.cfg.ReconnectMaxElapsedTime
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := w.runOnce(ctx)
		if err == nil {
			return nil // clean shutdown via ctx cancellation inside runOnce
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		w.mu.Lock()
		w.unrecoverableCount++
		count := w.unrecoverableCount
		w.mu.Unlock()

		w.logger.Error("dispatch: connection failed, will reconnect", "error", err, "attempt", count)
		if w.cfg.MaxUnrecoverableErrors > 0 && count >= w.cfg.MaxUnrecoverableErrors {
			return fmt.Errorf("dispatch: exceeded max unrecoverable errors (%d): %w", w.cfg.MaxUnrecoverableErrors, err)
		}

		wait := bo.NextBackOff()
		if wait == backoff.Stop {
			return fmt.Errorf("dispatch: reconnect backoff exhausted: %w", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// runOnce performs one connect-register-serve cycle. A nil return means
// ctx was cancelled cleanly; any other return is a transport failure
// eligible for reconnect.
func (w *Worker) runOnce(ctx context.Context) error {
	conn, _, err := websocket.Dial(ctx, w.cfg.DispatchURL, nil)
	if err != nil {
		return fmt.Errorf("dispatch: dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "worker closing")

	reg, err := newMessage(MsgRegister, RegisterPayload{
		AgentName:  w.cfg.AgentName,
		WorkerType: w.cfg.WorkerType,
	})
	if err != nil {
		return err
	}
	if err := wsjson.Write(ctx, conn, reg); err != nil {
		return fmt.Errorf("dispatch: register: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// The three loops below are independent fallible sources: whichever
	// fails first should end the connection. concurrency.Merge fans their
	// one-shot error channels into a single output rather than having each
	// loop race to write into a shared channel directly.
	merge := concurrency.NewMerge[error](3)
	defer merge.Close()

	pingErrs := make(chan error, 1)
	availErrs := make(chan error, 1)
	readErrs := make(chan error, 1)
	merge.AddInputStream(pingErrs)
	merge.AddInputStream(availErrs)
	merge.AddInputStream(readErrs)

	go w.pingLoop(runCtx, conn, pingErrs)
	go w.availabilityLoop(runCtx, conn, availErrs)
	go w.readLoop(runCtx, conn, readErrs)

	select {
	case <-ctx.Done():
		return nil
	case err := <-merge.Output():
		return err
	}
}

func (w *Worker) pingLoop(ctx context.Context, conn *websocket.Conn, errs chan<- error) {
	interval := w.cfg.PingInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ts := time.Now().UnixMilli()
			msg, err := newMessage(MsgPing, PingPayload{Timestamp: ts})
			if err != nil {
				continue
			}
			if err := wsjson.Write(ctx, conn, msg); err != nil {
				select {
				case errs <- fmt.Errorf("dispatch: ping write: %w", err):
				default:
				}
				return
			}
		}
	}
}

func (w *Worker) availabilityLoop(ctx context.Context, conn *websocket.Conn, errs chan<- error) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			idle := w.pool.IdleCount()
			w.mu.Lock()
			changed := idle != w.lastIdleCount
			w.lastIdleCount = idle
			w.mu.Unlock()
			if !changed {
				continue
			}
			msg, err := newMessage(MsgAvailability, AvailabilityPayload{Load: w.load(idle)})
			if err != nil {
				continue
			}
			if err := wsjson.Write(ctx, conn, msg); err != nil {
				select {
				case errs <- fmt.Errorf("dispatch: availability write: %w", err):
				default:
				}
				return
			}
		}
	}
}

// load turns an idle count into the occupancy fraction reported in
// AvailabilityPayload (spec §4.1 "load in [0,1]"). A pool with no
// configured capacity is reported fully saturated rather than dividing by
// zero.
func (w *Worker) load(idle int) float64 {
	total := w.pool.Capacity()
	if total <= 0 {
		return 1
	}
	load := 1 - float64(idle)/float64(total)
	if load < 0 {
		return 0
	}
	if load > 1 {
		return 1
	}
	return load
}

func (w *Worker) readLoop(ctx context.Context, conn *websocket.Conn, errs chan<- error) {
	for {
		var msg Message
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			select {
			case errs <- fmt.Errorf("dispatch: read: %w", err):
			default:
			}
			return
		}

		switch msg.Type {
		case MsgAssignment:
			var p AssignmentPayload
			if err := json.Unmarshal(msg.Payload, &p); err != nil {
				w.logger.Error("dispatch: malformed assignment", "error", err)
				continue
			}
			w.handleAssignment(ctx, conn, p)
		case MsgTermination:
			var p TerminationPayload
			if err := json.Unmarshal(msg.Payload, &p); err != nil {
				w.logger.Error("dispatch: malformed termination", "error", err)
				continue
			}
			w.logger.Info("dispatch: termination received", "job_id", p.JobID, "reason", p.Reason)
		case MsgPong:
			// RTT accounting lives at the jobexec level for child pings;
			// the dispatch-level pong is purely a liveness signal here.
		}
	}
}

func (w *Worker) handleAssignment(ctx context.Context, conn *websocket.Conn, p AssignmentPayload) {
	job := ipc.RunningJob{
		ID:       p.JobID,
		RoomName: p.RoomName,
		URL:      p.URL,
		Token:    p.Token,
		AgentName: w.cfg.AgentName,
		AcceptArguments: ipc.AcceptArguments{
			Identity:   p.Identity,
			Metadata:   p.Metadata,
			Attributes: p.Attributes,
		},
		WorkerID: w.cfg.AgentName + "-" + uuid.NewString(),
	}

	if _, err := w.pool.Launch(ctx, job); err != nil {
		w.logger.Error("dispatch: launch failed, reporting unavailable", "job_id", job.ID, "error", err)
		msg, merr := newMessage(MsgAvailability, AvailabilityPayload{Load: 1})
		if merr == nil {
			_ = wsjson.Write(ctx, conn, msg)
		}
	}
}
