// Package pool implements spec §4.2's process pool: it keeps a fixed
// number of warm job-executor processes on hand, serializes spawning
// through a bounded initialization budget, and hands a warm executor to
// each launch request with O(1) pickup. There is no teacher analogue for
// a literal OS-process warm pool; the supervision-loop/semaphore shape is
// grounded on AzielCF-az-wap's worker-pool pattern (bounded concurrent
// workers pulling off a shared channel) generalized from goroutines to
// subprocesses.
package pool

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/lokutor-ai/voxrunner/pkg/ipc"
	"github.com/lokutor-ai/voxrunner/pkg/jobexec"
	"github.com/lokutor-ai/voxrunner/pkg/logging"
	"github.com/lokutor-ai/voxrunner/pkg/metrics"
)

// Options configures one Pool.
type Options struct {
	NumIdleProcesses           int
	MaxConcurrentInitializations int
	ExecutorOptions            jobexec.Options
	LoggerOptions              ipc.LoggerOptions
	Logger                     logging.Logger
	Metrics                    *metrics.Metrics // optional; nil disables observation
}

// Pool keeps NumIdleProcesses warm *jobexec.Executor instances available,
// spawning replacements in the background as they're handed out or die.
type Pool struct {
	opts Options

	procSem *semaphore.Weighted // one slot per warm-process budget
	initSem *semaphore.Weighted // bounds concurrent initializations
	warmQ   chan *jobexec.Executor

	mu      sync.Mutex
	active  map[*jobexec.Executor]struct{}

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs a Pool. Call Start to begin warming processes.
func New(opts Options) *Pool {
	if opts.NumIdleProcesses <= 0 {
		opts.NumIdleProcesses = 1
	}
	if opts.MaxConcurrentInitializations <= 0 {
		opts.MaxConcurrentInitializations = 1
	}
	opts.Logger = logging.Or(opts.Logger)
	return &Pool{
		opts:    opts,
		procSem: semaphore.NewWeighted(int64(opts.NumIdleProcesses)),
		initSem: semaphore.NewWeighted(int64(opts.MaxConcurrentInitializations)),
		warmQ:   make(chan *jobexec.Executor, opts.NumIdleProcesses),
		active:  make(map[*jobexec.Executor]struct{}),
	}
}

// Start launches the background supervision loop, which immediately
// warms NumIdleProcesses processes since procSem starts unacquired.
func (p *Pool) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	for i := 0; i < p.opts.NumIdleProcesses; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.superviseLoop(ctx)
		}()
	}
}

// superviseLoop repeatedly acquires one procSem slot and runs a
// supervision cycle; it blocks again on procSem until Launch picks up the
// prior cycle's executor and releases its slot, so a replacement warms
// after pickup rather than before (spec §5's ordering guarantee).
func (p *Pool) superviseLoop(ctx context.Context) {
	for {
		if err := p.procSem.Acquire(ctx, 1); err != nil {
			return
		}
		p.superviseOne(ctx)
	}
}

func (p *Pool) superviseOne(ctx context.Context) {
	exec := jobexec.New(p.opts.ExecutorOptions)

	if err := p.initSem.Acquire(ctx, 1); err != nil {
		p.procSem.Release(1)
		return
	}

	ok := p.warmOne(ctx, exec)
	p.initSem.Release(1)

	if !ok {
		p.procSem.Release(1)
		return
	}

	p.mu.Lock()
	p.active[exec] = struct{}{}
	p.mu.Unlock()

	select {
	case p.warmQ <- exec:
		p.reportOccupancy()
	case <-ctx.Done():
		// Never published, so Launch will never pop it and release
		// procSem on our behalf — release it ourselves.
		p.procSem.Release(1)
		_ = exec.Shutdown("pool-closing")
		p.cleanupActive(exec)
		return
	}

	// procSem is released by Launch, immediately after it pops exec from
	// warmQ (spec §4.2 step 2 / §5's replace-after-pickup ordering): a
	// replacement must start warming as soon as this slot's executor is
	// handed out, not once the job it runs finally exits. We only track
	// this executor's eventual exit here to keep the active-set accurate
	// for Close.
	go func() {
		<-exec.Exited()
		p.cleanupActive(exec)
	}()
}

func (p *Pool) cleanupActive(exec *jobexec.Executor) {
	p.mu.Lock()
	delete(p.active, exec)
	p.mu.Unlock()
	p.reportOccupancy()
}

// reportOccupancy publishes the pool's current idle/active counts, if a
// Metrics sink was configured. "active" is every warmed executor not
// currently sitting in warmQ — i.e. handed out and running a job.
func (p *Pool) reportOccupancy() {
	if p.opts.Metrics == nil {
		return
	}
	idle := len(p.warmQ)
	p.mu.Lock()
	total := len(p.active)
	p.mu.Unlock()
	active := total - idle
	if active < 0 {
		active = 0
	}
	p.opts.Metrics.SetPoolOccupancy(idle, active)
}

func (p *Pool) warmOne(ctx context.Context, exec *jobexec.Executor) bool {
	if err := exec.Start(ctx); err != nil {
		p.opts.Logger.Error("pool: failed to start executor", "error", err)
		return false
	}
	if err := exec.Initialize(ctx, p.opts.LoggerOptions); err != nil {
		p.opts.Logger.Error("pool: failed to initialize executor", "error", err, "pid", exec.PID())
		return false
	}
	return true
}

// Launch hands the next warm executor job, blocking until one is
// available or ctx is cancelled.
func (p *Pool) Launch(ctx context.Context, job ipc.RunningJob) (*jobexec.Executor, error) {
	select {
	case exec := <-p.warmQ:
		// Release the slot the moment this executor is handed out, so a
		// replacement can start warming while the job we're about to
		// launch is still running (spec §4.2 step 2 / §5).
		p.procSem.Release(1)
		p.reportOccupancy()
		if err := exec.LaunchJob(job); err != nil {
			return nil, fmt.Errorf("pool: launch job: %w", err)
		}
		return exec, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// IdleCount reports how many warm executors are immediately available —
// the "load" signal the worker publishes (spec §4.1).
func (p *Pool) IdleCount() int {
	return len(p.warmQ)
}

// Capacity reports the pool's total warm-process budget, the denominator
// the worker uses to turn IdleCount into an occupancy fraction (spec §4.1
// "load in [0,1]").
func (p *Pool) Capacity() int {
	return p.opts.NumIdleProcesses
}

// Close cancels the supervision loop, shuts down every active executor,
// and waits for all supervision goroutines to exit.
func (p *Pool) Close() error {
	if p.cancel != nil {
		p.cancel()
	}

	p.mu.Lock()
	executors := make([]*jobexec.Executor, 0, len(p.active))
	for e := range p.active {
		executors = append(executors, e)
	}
	p.mu.Unlock()

	var wg sync.WaitGroup
	for _, e := range executors {
		wg.Add(1)
		go func(e *jobexec.Executor) {
			defer wg.Done()
			_ = e.Shutdown("pool-closing")
		}(e)
	}
	wg.Wait()

	p.wg.Wait()
	return nil
}
