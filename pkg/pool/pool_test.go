package pool

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/lokutor-ai/voxrunner/pkg/ipc"
	"github.com/lokutor-ai/voxrunner/pkg/jobexec"
)

// TestMain re-execs this test binary as a bare IPC-speaking child when
// voxrunnerTestChildEnv is set, standing in for a real job-executor
// binary so Pool tests can exercise real subprocess spawning.
func TestMain(m *testing.M) {
	if os.Getenv(voxrunnerTestChildEnv) == "1" {
		runTestChild()
		return
	}
	os.Exit(m.Run())
}

const voxrunnerTestChildEnv = "VOXRUNNER_TEST_CHILD"

type stdioRW struct{}

func (stdioRW) Read(p []byte) (int, error)  { return os.Stdin.Read(p) }
func (stdioRW) Write(p []byte) (int, error) { return os.Stdout.Write(p) }

func runTestChild() {
	codec := ipc.NewCodec(stdioRW{})
	for {
		env, err := codec.ReadEnvelope()
		if err != nil {
			return
		}
		switch env.Variant {
		case ipc.InitializeRequest:
			out, _ := ipc.NewInitializeResponse(ipc.InitializeResponsePayload{})
			_ = codec.WriteEnvelope(out)
		case ipc.PingRequest:
			var p ipc.PingRequestPayload
			_ = ipc.Decode(env, &p)
			out, _ := ipc.NewPongResponse(ipc.PongResponsePayload{LastTimestamp: p.Timestamp})
			_ = codec.WriteEnvelope(out)
		case ipc.ShutdownRequest:
			exiting, _ := ipc.NewExiting("shutdown")
			_ = codec.WriteEnvelope(exiting)
			done, _ := ipc.NewDone()
			_ = codec.WriteEnvelope(done)
			return
		}
	}
}

func testOptions(t *testing.T, numIdle int) Options {
	t.Helper()
	self, err := os.Executable()
	if err != nil {
		t.Fatalf("os.Executable: %v", err)
	}
	os.Setenv(voxrunnerTestChildEnv, "1")
	t.Cleanup(func() { os.Unsetenv(voxrunnerTestChildEnv) })

	return Options{
		NumIdleProcesses:              numIdle,
		MaxConcurrentInitializations: 2,
		ExecutorOptions: jobexec.Options{
			ChildPath:         self,
			ChildArgs:         []string{"-test.run=^$"},
			PingInterval:      time.Second,
			PingTimeout:       time.Second,
			InitializeTimeout: 2 * time.Second,
			CloseTimeout:      time.Second,
		},
	}
}

func waitForIdle(t *testing.T, p *Pool, n int, timeout time.Duration) {
	t.Helper()
	deadline := time.After(timeout)
	for {
		if p.IdleCount() >= n {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %d idle processes, got %d", n, p.IdleCount())
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestPoolWarmsConfiguredIdleCount(t *testing.T) {
	p := New(testOptions(t, 2))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p.Start(ctx)
	defer p.Close()

	waitForIdle(t, p, 2, 5*time.Second)
}

func TestPoolLaunchHandsOutWarmExecutorAndReplaces(t *testing.T) {
	p := New(testOptions(t, 1))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p.Start(ctx)
	defer p.Close()

	waitForIdle(t, p, 1, 5*time.Second)

	job := ipc.RunningJob{ID: "job-1", RoomName: "room-1", URL: "ws://example", Token: "tok"}
	exec, err := p.Launch(ctx, job)
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}
	if exec.State() != jobexec.StateRunning {
		t.Fatalf("expected launched executor to be running, got %v", exec.State())
	}

	// A replacement should warm back up to the configured idle count.
	waitForIdle(t, p, 1, 5*time.Second)

	_ = exec.Shutdown("test-done")
}

func TestPoolCloseShutsDownActiveExecutors(t *testing.T) {
	p := New(testOptions(t, 1))
	ctx := context.Background()

	p.Start(ctx)
	waitForIdle(t, p, 1, 5*time.Second)

	job := ipc.RunningJob{ID: "job-1", RoomName: "room-1", URL: "ws://example", Token: "tok"}
	exec, err := p.Launch(ctx, job)
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- p.Close() }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Close: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not return in time")
	}

	select {
	case <-exec.Exited():
	case <-time.After(time.Second):
		t.Fatal("launched executor did not exit after pool Close")
	}
}
