package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestAfterRunsOnce(t *testing.T) {
	s, err := New()
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	s.Start()
	defer s.Stop()

	var runs atomic.Int32
	done := make(chan struct{}, 1)
	if err := s.After("once", 50*time.Millisecond, func(context.Context) error {
		runs.Add(1)
		done <- struct{}{}
		return nil
	}); err != nil {
		t.Fatalf("after: %v", err)
	}

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatalf("job did not run")
	}
	time.Sleep(200 * time.Millisecond)
	if got := runs.Load(); got != 1 {
		t.Fatalf("runs = %d", got)
	}
}

func TestAfterReplacesPending(t *testing.T) {
	s, err := New()
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	s.Start()
	defer s.Stop()

	var first, second atomic.Int32
	_ = s.After("loop", time.Hour, func(context.Context) error {
		first.Add(1)
		return nil
	})
	if !s.Pending("loop") {
		t.Fatalf("expected pending job")
	}
	done := make(chan struct{}, 1)
	_ = s.After("loop", 20*time.Millisecond, func(context.Context) error {
		second.Add(1)
		done <- struct{}{}
		return errors.New("ignored")
	})

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatalf("replacement did not run")
	}
	if first.Load() != 0 || second.Load() != 1 {
		t.Fatalf("first=%d second=%d", first.Load(), second.Load())
	}
}

func TestEveryRepeats(t *testing.T) {
	s, err := New()
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := s.Every("tick", 50*time.Millisecond, func(context.Context) error { return nil }); err != nil {
		t.Fatalf("every: %v", err)
	}
	var runs atomic.Int32
	if err := s.Every("count", 50*time.Millisecond, func(context.Context) error {
		runs.Add(1)
		return nil
	}); err != nil {
		t.Fatalf("every: %v", err)
	}
	s.Start()
	defer s.Stop()

	deadline := time.Now().Add(3 * time.Second)
	for runs.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if got := runs.Load(); got < 2 {
		t.Fatalf("runs = %d", got)
	}
}
