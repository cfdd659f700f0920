package concurrency

import (
	"testing"
	"time"
)

func TestDeferredStream_EmptySourceYieldsDoneImmediately(t *testing.T) {
	src := make(chan string)
	close(src)

	d := NewDeferredStream[string](4)
	if err := d.SetSource(src); err != nil {
		t.Fatalf("SetSource: %v", err)
	}

	_, ok := d.Read()
	if ok {
		t.Fatal("expected done on empty source")
	}
}

func TestDeferredStream_SetSourceTwiceFails(t *testing.T) {
	d := NewDeferredStream[int](1)
	src1 := make(chan int)
	src2 := make(chan int)
	defer close(src1)
	defer close(src2)

	if err := d.SetSource(src1); err != nil {
		t.Fatalf("first SetSource: %v", err)
	}
	if err := d.SetSource(src2); err != ErrSourceAlreadySet {
		t.Fatalf("expected ErrSourceAlreadySet, got %v", err)
	}
}

func TestDeferredStream_DetachThenReattachResumes(t *testing.T) {
	src := make(chan string)
	go func() {
		for _, v := range []string{"a", "b", "c", "d"} {
			src <- v
			time.Sleep(20 * time.Millisecond)
		}
		close(src)
	}()

	d1 := NewDeferredStream[string](4)
	if err := d1.SetSource(src); err != nil {
		t.Fatalf("SetSource: %v", err)
	}

	first, ok := d1.Read()
	if !ok || first != "a" {
		t.Fatalf("expected (a,true), got (%v,%v)", first, ok)
	}
	second, ok := d1.Read()
	if !ok || second != "b" {
		t.Fatalf("expected (b,true), got (%v,%v)", second, ok)
	}

	d1.DetachSource()
	if _, ok := d1.Read(); ok {
		t.Fatal("expected done after detach")
	}

	d2 := NewDeferredStream[string](4)
	if err := d2.SetSource(src); err != nil {
		t.Fatalf("SetSource on d2: %v", err)
	}

	var got []string
	for {
		v, ok := d2.Read()
		if !ok {
			break
		}
		got = append(got, v)
	}

	want := []string{"c", "d"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i, v := range want {
		if got[i] != v {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}
