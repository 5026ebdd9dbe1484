package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestTriggerRunsJob(t *testing.T) {
	var runs atomic.Int32
	s := New()
	s.Add("promote", time.Hour, func(ctx context.Context) error {
		runs.Add(1)
		return nil
	})

	if !s.Trigger(context.Background(), "promote") {
		t.Fatal("expected trigger to run")
	}
	if runs.Load() != 1 {
		t.Fatalf("expected 1 run, got %d", runs.Load())
	}
	if s.Trigger(context.Background(), "missing") {
		t.Fatal("unknown job must not run")
	}
}

func TestSingleFlightPerJob(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var runs atomic.Int32

	s := New()
	s.Add("evaluate", time.Hour, func(ctx context.Context) error {
		runs.Add(1)
		close(started)
		<-release
		return nil
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.Trigger(context.Background(), "evaluate")
	}()

	<-started
	// A second trigger while the first run is in flight must be skipped.
	if s.Trigger(context.Background(), "evaluate") {
		t.Fatal("overlapping run was not skipped")
	}
	close(release)
	wg.Wait()

	if runs.Load() != 1 {
		t.Fatalf("expected exactly 1 run, got %d", runs.Load())
	}
}

func TestStartStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := New()
	s.Add("noop", 10*time.Millisecond, func(ctx context.Context) error { return nil })
	s.Start(ctx)

	time.Sleep(30 * time.Millisecond)
	cancel()

	done := make(chan struct{})
	go func() {
		s.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop after cancel")
	}
}
