package dispatch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/lokutor-ai/voxrunner/pkg/config"
	"github.com/lokutor-ai/voxrunner/pkg/ipc"
	"github.com/lokutor-ai/voxrunner/pkg/jobexec"
)

type fakeLauncher struct {
	mu       sync.Mutex
	launched []ipc.RunningJob
	idle     int
	capacity int
	launchErr error
}

func (f *fakeLauncher) Launch(ctx context.Context, job ipc.RunningJob) (*jobexec.Executor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.launchErr != nil {
		return nil, f.launchErr
	}
	f.launched = append(f.launched, job)
	return jobexec.New(jobexec.Options{}), nil
}

func (f *fakeLauncher) IdleCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.idle
}

func (f *fakeLauncher) Capacity() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.capacity == 0 {
		return 1
	}
	return f.capacity
}

func TestWorkerRegistersAndHandlesAssignment(t *testing.T) {
	assigned := make(chan struct{})
	var gotRegister Message

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "done")

		if err := wsjson.Read(r.Context(), conn, &gotRegister); err != nil {
			return
		}

		assignment, _ := newMessage(MsgAssignment, AssignmentPayload{
			JobID:    "job-1",
			RoomName: "room-1",
			URL:      "ws://livekit",
			Token:    "tok",
		})
		if err := wsjson.Write(r.Context(), conn, assignment); err != nil {
			return
		}
		close(assigned)

		// keep the connection open until the test cancels the context
		<-r.Context().Done()
	}))
	defer server.Close()

	launcher := &fakeLauncher{}
	cfg := config.Worker{
		DispatchURL:  "ws" + strings.TrimPrefix(server.URL, "http") + "/",
		AgentName:    "test-agent",
		WorkerType:   "ROOM",
		PingInterval: 50 * time.Millisecond,
	}
	w := New(cfg, launcher, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	select {
	case <-assigned:
	case <-time.After(2 * time.Second):
		t.Fatal("server never received registration / sent assignment")
	}

	deadline := time.After(2 * time.Second)
	for {
		launcher.mu.Lock()
		n := len(launcher.launched)
		launcher.mu.Unlock()
		if n == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("worker never launched the assigned job")
		case <-time.After(10 * time.Millisecond):
		}
	}

	if gotRegister.Type != MsgRegister {
		t.Fatalf("expected register message, got %s", gotRegister.Type)
	}

	launcher.mu.Lock()
	job := launcher.launched[0]
	launcher.mu.Unlock()
	if job.ID != "job-1" || job.RoomName != "room-1" {
		t.Fatalf("unexpected launched job: %+v", job)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}

func TestWorkerExceedsMaxUnrecoverableErrors(t *testing.T) {
	cfg := config.Worker{
		DispatchURL:             "ws://127.0.0.1:1/unreachable",
		AgentName:               "test-agent",
		WorkerType:              "ROOM",
		PingInterval:            time.Second,
		MaxUnrecoverableErrors:  2,
		ReconnectMaxElapsedTime: time.Second,
	}
	w := New(cfg, &fakeLauncher{}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := w.Run(ctx)
	if err == nil {
		t.Fatal("expected an error after exceeding max unrecoverable errors")
	}
}
