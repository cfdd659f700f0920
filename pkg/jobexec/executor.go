package jobexec

import (
	"context"
	"fmt"
	"os/exec"
	"sync"
	"time"

	"github.com/lokutor-ai/voxrunner/pkg/ipc"
	"github.com/lokutor-ai/voxrunner/pkg/logging"
	"github.com/lokutor-ai/voxrunner/pkg/metrics"
)

// Options configures one Executor, matching spec §4.3/§5's timeout knobs.
type Options struct {
	ChildPath         string // binary to exec, re-invoked in child mode
	ChildArgs         []string
	PingInterval      time.Duration
	PingTimeout       time.Duration
	HighPingThreshold time.Duration
	InitializeTimeout time.Duration
	CloseTimeout      time.Duration
	MemoryWarnMB      int
	MemoryLimitMB     int
	SampleEvery       time.Duration
	Logger            logging.Logger
	Metrics           *metrics.Metrics // optional; nil disables observation
}

// Executor owns one child process and its IPC channel (spec §4.3).
type Executor struct {
	opts Options

	mu    sync.Mutex
	state State
	job   *ipc.RunningJob

	cmd   *exec.Cmd
	codec *ipc.Codec

	jobStartedAt time.Time

	pongs    chan ipc.PongResponsePayload
	initDone chan error
	exited   chan struct{}
	memStop  chan struct{}

	onExit func(reason string)
}

// New constructs an Executor in StateSpawning; call Start to actually
// fork the child process.
func New(opts Options) *Executor {
	if opts.Logger == nil {
		opts.Logger = &logging.NoOpLogger{}
	}
	return &Executor{
		opts:     opts,
		state:    StateSpawning,
		pongs:    make(chan ipc.PongResponsePayload, 1),
		initDone: make(chan error, 1),
		exited:   make(chan struct{}),
	}
}

// State returns the current lifecycle state.
func (e *Executor) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Executor) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

// Start forks the child process and begins the read pump. It does not
// block on initialization; call Initialize next.
func (e *Executor) Start(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, e.opts.ChildPath, e.opts.ChildArgs...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("jobexec: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("jobexec: stdout pipe: %w", err)
	}
	cmd.Stderr = nil

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("jobexec: start child: %w", err)
	}

	e.cmd = cmd
	e.codec = ipc.NewCodec(&pipePair{r: stdout, w: stdin})

	go e.readLoop()
	go func() {
		_ = cmd.Wait()
		e.mu.Lock()
		started := e.jobStartedAt
		e.mu.Unlock()
		if e.opts.Metrics != nil && !started.IsZero() {
			e.opts.Metrics.ObserveJobDuration(time.Since(started).Seconds())
		}
		close(e.exited)
		e.setState(StateDead)
	}()

	return nil
}

// PID returns the child process id, or 0 if not started.
func (e *Executor) PID() int {
	if e.cmd == nil || e.cmd.Process == nil {
		return 0
	}
	return e.cmd.Process.Pid
}

func (e *Executor) readLoop() {
	for {
		env, err := e.codec.ReadEnvelope()
		if err != nil {
			return
		}
		switch env.Variant {
		case ipc.InitializeResponse:
			var p ipc.InitializeResponsePayload
			_ = ipc.Decode(env, &p)
			if p.Error != "" {
				e.initDone <- fmt.Errorf("child init failed: %s", p.Error)
			} else {
				e.initDone <- nil
			}
		case ipc.PongResponse:
			var p ipc.PongResponsePayload
			_ = ipc.Decode(env, &p)
			select {
			case e.pongs <- p:
			default:
			}
		case ipc.Exiting:
			var p ipc.ExitingPayload
			_ = ipc.Decode(env, &p)
			e.opts.Logger.Info("child exiting", "reason", p.Reason)
		case ipc.Done:
			e.setState(StateDead)
		}
	}
}

// Initialize sends initializeRequest and waits for initializeResponse or
// InitializeTimeout.
func (e *Executor) Initialize(ctx context.Context, loggerOpts ipc.LoggerOptions) error {
	e.setState(StateInitializing)
	env, err := ipc.NewInitializeRequest(ipc.InitializeRequestPayload{
		LoggerOptions:     loggerOpts,
		PingIntervalMS:    e.opts.PingInterval.Milliseconds(),
		PingTimeoutMS:     e.opts.PingTimeout.Milliseconds(),
		HighPingThreshold: e.opts.HighPingThreshold.Milliseconds(),
	})
	if err != nil {
		return err
	}
	if err := e.codec.WriteEnvelope(env); err != nil {
		return fmt.Errorf("jobexec: send initializeRequest: %w", err)
	}

	timeout := e.opts.InitializeTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	select {
	case err := <-e.initDone:
		if e.opts.Metrics != nil {
			e.opts.Metrics.ObserveInitialization(err == nil)
		}
		if err != nil {
			return err
		}
		e.setState(StateIdle)
		go e.pingLoop(ctx)
		e.memStop = make(chan struct{})
		go e.watchMemory(e.memStop)
		return nil
	case <-time.After(timeout):
		e.kill()
		if e.opts.Metrics != nil {
			e.opts.Metrics.ObserveInitialization(false)
		}
		return fmt.Errorf("jobexec: initialize timed out after %s", timeout)
	case <-ctx.Done():
		e.kill()
		if e.opts.Metrics != nil {
			e.opts.Metrics.ObserveInitialization(false)
		}
		return ctx.Err()
	}
}

func (e *Executor) pingLoop(ctx context.Context) {
	interval := e.opts.PingInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.exited:
			return
		case <-ticker.C:
			ts := time.Now().UnixMilli()
			env, _ := ipc.NewPingRequest(ts)
			if err := e.codec.WriteEnvelope(env); err != nil {
				return
			}
			timeout := e.opts.PingTimeout
			if timeout <= 0 {
				timeout = 5 * time.Second
			}
			select {
			case pong := <-e.pongs:
				rtt := time.Duration(time.Now().UnixMilli()-pong.LastTimestamp) * time.Millisecond
				if e.opts.Metrics != nil {
					e.opts.Metrics.ObservePingRTT(rtt.Seconds())
				}
				if e.opts.HighPingThreshold > 0 && rtt > e.opts.HighPingThreshold {
					e.opts.Logger.Warn("ping RTT above threshold", "rtt", rtt, "pid", e.PID())
				}
			case <-time.After(timeout):
				e.opts.Logger.Error("missed pong, killing child", "pid", e.PID())
				if e.opts.Metrics != nil {
					e.opts.Metrics.IncPingTimeout()
				}
				e.kill()
				return
			}
		}
	}
}

// LaunchJob sends startJobRequest and transitions to StateRunning.
func (e *Executor) LaunchJob(job ipc.RunningJob) error {
	env, err := ipc.NewStartJobRequest(job)
	if err != nil {
		return err
	}
	if err := e.codec.WriteEnvelope(env); err != nil {
		return fmt.Errorf("jobexec: send startJobRequest: %w", err)
	}
	e.mu.Lock()
	e.job = &job
	e.state = StateRunning
	e.jobStartedAt = time.Now()
	e.mu.Unlock()
	if e.opts.Metrics != nil {
		e.opts.Metrics.ObserveJobLaunched()
	}
	return nil
}

// Shutdown sends shutdownRequest and waits up to CloseTimeout for the
// child to exit on its own, escalating to a kill (SIGKILL) otherwise.
func (e *Executor) Shutdown(reason string) error {
	e.setState(StateDraining)
	env, _ := ipc.NewShutdownRequest(reason)
	_ = e.codec.WriteEnvelope(env)

	timeout := e.opts.CloseTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	select {
	case <-e.exited:
		return nil
	case <-time.After(timeout):
		e.opts.Logger.Warn("close timeout exceeded, escalating to kill", "pid", e.PID())
		e.kill()
		return nil
	}
}

func (e *Executor) kill() {
	if e.cmd != nil && e.cmd.Process != nil {
		_ = e.cmd.Process.Kill()
	}
	e.setState(StateDead)
}

// Exited reports a channel closed when the child process has exited.
func (e *Executor) Exited() <-chan struct{} {
	return e.exited
}

// Job returns the currently running job, if any.
func (e *Executor) Job() (ipc.RunningJob, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.job == nil {
		return ipc.RunningJob{}, false
	}
	return *e.job, true
}
