package concurrency

import (
	"testing"
	"time"
)

func TestMerge_FansInMultipleInputs(t *testing.T) {
	m := NewMerge[int](8)

	a := make(chan int, 2)
	b := make(chan int, 2)
	a <- 1
	a <- 2
	close(a)
	b <- 3
	b <- 4
	close(b)

	if _, err := m.AddInputStream(a); err != nil {
		t.Fatalf("AddInputStream a: %v", err)
	}
	if _, err := m.AddInputStream(b); err != nil {
		t.Fatalf("AddInputStream b: %v", err)
	}

	got := map[int]bool{}
	for i := 0; i < 4; i++ {
		select {
		case v := <-m.Output():
			got[v] = true
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for merged output")
		}
	}
	for _, want := range []int{1, 2, 3, 4} {
		if !got[want] {
			t.Errorf("missing %d in merged output: %v", want, got)
		}
	}
}

func TestMerge_InputCountConvergesToZero(t *testing.T) {
	m := NewMerge[int](4)
	a := make(chan int)
	id, err := m.AddInputStream(a)
	if err != nil {
		t.Fatalf("AddInputStream: %v", err)
	}
	if m.InputCount() != 1 {
		t.Fatalf("expected InputCount()==1, got %d", m.InputCount())
	}

	close(a)
	deadline := time.Now().Add(time.Second)
	for m.InputCount() != 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if m.InputCount() != 0 {
		t.Fatalf("expected InputCount() to converge to 0 after source closed, got %d", m.InputCount())
	}

	m.RemoveInputStream(id) // removing an already-gone id must not panic
}

func TestMerge_CloseIsIdempotent(t *testing.T) {
	m := NewMerge[int](1)
	m.Close()
	m.Close()
}

func TestMerge_RemovedInputStopsContributing(t *testing.T) {
	m := NewMerge[int](4)
	a := make(chan int, 4)
	id, _ := m.AddInputStream(a)

	a <- 1
	select {
	case v := <-m.Output():
		if v != 1 {
			t.Fatalf("expected 1, got %d", v)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out")
	}

	m.RemoveInputStream(id)
	time.Sleep(20 * time.Millisecond)
	a <- 2

	select {
	case v := <-m.Output():
		t.Fatalf("did not expect further output after removal, got %d", v)
	case <-time.After(50 * time.Millisecond):
	}
}
