package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	logx "watchdog/pkg/logx"
)

func noopJob(ctx context.Context) error { return nil }

func TestAddScheduleUpsertsByName(t *testing.T) {
	t.Parallel()
	s := New(Config{Enabled: true}, logx.Nop(), nil)

	if _, err := s.AddSchedule("trim", "@hourly", time.Minute, TaskOptions{}, noopJob); err != nil {
		t.Fatalf("AddSchedule: %v", err)
	}
	if _, err := s.AddSchedule("trim", "30m", time.Minute, TaskOptions{}, noopJob); err != nil {
		t.Fatalf("re-register: %v", err)
	}

	snap := s.Snapshot()
	if len(snap.Schedules) != 1 {
		t.Fatalf("got %d schedules after upsert, want 1", len(snap.Schedules))
	}
	if snap.Schedules[0].Spec != "@every 30m0s" {
		t.Fatalf("spec = %q, want the re-registered interval", snap.Schedules[0].Spec)
	}
}

func TestRemoveSchedule(t *testing.T) {
	t.Parallel()
	s := New(Config{Enabled: true}, logx.Nop(), nil)

	if _, err := s.AddSchedule("a", "5m", 0, TaskOptions{}, noopJob); err != nil {
		t.Fatalf("AddSchedule: %v", err)
	}
	if _, err := s.AddSchedule("b", "10m", 0, TaskOptions{}, noopJob); err != nil {
		t.Fatalf("AddSchedule: %v", err)
	}
	s.Remove("a")
	s.Remove("missing") // no-op

	snap := s.Snapshot()
	if len(snap.Schedules) != 1 || snap.Schedules[0].Name != "b" {
		t.Fatalf("schedules = %+v, want only b", snap.Schedules)
	}
}

func TestAddScheduleRejectsBadInput(t *testing.T) {
	t.Parallel()
	s := New(Config{}, logx.Nop(), nil)

	if _, err := s.AddSchedule("", "5m", 0, TaskOptions{}, noopJob); err == nil {
		t.Fatal("expected error for empty name")
	}
	if _, err := s.AddSchedule("x", "banana", 0, TaskOptions{}, noopJob); err == nil {
		t.Fatal("expected error for unparseable schedule")
	}
	if _, err := s.AddInterval("x", -time.Second, 0, TaskOptions{}, noopJob); err == nil {
		t.Fatal("expected error for negative interval")
	}
}

func TestRemoveDoesNotRedirectSurvivingSchedules(t *testing.T) {
	t.Parallel()
	s := New(Config{Enabled: true, Workers: 1}, logx.Nop(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	t.Cleanup(func() {
		sctx, scancel := context.WithTimeout(context.Background(), time.Second)
		defer scancel()
		s.Stop(sctx)
	})

	ran := make(chan string, 32)
	record := func(name string) func(ctx context.Context) error {
		return func(ctx context.Context) error {
			select {
			case ran <- name:
			default:
			}
			return nil
		}
	}

	// Removing "filler" shifts "keep" within the registry, and "stray"
	// then reuses the vacated position. Only keep's job may fire.
	if _, err := s.AddInterval("filler", time.Hour, time.Second, TaskOptions{}, record("filler")); err != nil {
		t.Fatalf("AddInterval: %v", err)
	}
	if _, err := s.AddInterval("keep", 50*time.Millisecond, time.Second, TaskOptions{}, record("keep")); err != nil {
		t.Fatalf("AddInterval: %v", err)
	}
	s.Remove("filler")
	if _, err := s.AddInterval("stray", time.Hour, time.Second, TaskOptions{}, record("stray")); err != nil {
		t.Fatalf("AddInterval: %v", err)
	}

	deadline := time.After(3 * time.Second)
	for seen := 0; seen < 3; {
		select {
		case name := <-ran:
			if name != "keep" {
				t.Fatalf("ran %q, want only keep to fire", name)
			}
			seen++
		case <-deadline:
			t.Fatal("keep never ran")
		}
	}
}

func TestOverlapSkipsTickWhileRunning(t *testing.T) {
	t.Parallel()
	s := New(Config{Enabled: true, Workers: 2}, logx.Nop(), nil)

	var starts atomic.Int32
	first := make(chan struct{})
	release := make(chan struct{})
	_, err := s.AddInterval("slow", 50*time.Millisecond, 5*time.Second, TaskOptions{}, func(ctx context.Context) error {
		if starts.Add(1) == 1 {
			close(first)
		}
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	})
	if err != nil {
		t.Fatalf("AddInterval: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	t.Cleanup(func() {
		sctx, scancel := context.WithTimeout(context.Background(), time.Second)
		defer scancel()
		s.Stop(sctx)
	})

	select {
	case <-first:
	case <-time.After(3 * time.Second):
		t.Fatal("task never started")
	}

	// Several ticks elapse while the first run is still blocked; each
	// must be skipped, not queued behind it.
	time.Sleep(300 * time.Millisecond)
	if got := starts.Load(); got != 1 {
		t.Fatalf("task started %d times while a run was in flight, want 1", got)
	}

	close(release)
	resume := time.After(3 * time.Second)
	for starts.Load() < 2 {
		select {
		case <-resume:
			t.Fatal("task did not run again after the slow run finished")
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
}

func TestSchedulerRunsIntervalTask(t *testing.T) {
	t.Parallel()
	s := New(Config{Enabled: true, Workers: 1}, logx.Nop(), nil)

	var runs atomic.Int32
	done := make(chan struct{})
	_, err := s.AddInterval("tick", 50*time.Millisecond, time.Second, TaskOptions{}, func(ctx context.Context) error {
		if runs.Add(1) == 1 {
			close(done)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("AddInterval: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	t.Cleanup(func() {
		sctx, scancel := context.WithTimeout(context.Background(), time.Second)
		defer scancel()
		s.Stop(sctx)
	})

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("interval task never ran")
	}

	snap := s.Snapshot()
	if len(snap.Schedules) != 1 || snap.Schedules[0].Prev.IsZero() {
		t.Fatalf("snapshot did not record the run: %+v", snap.Schedules)
	}
}
