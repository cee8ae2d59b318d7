package scheduler

import (
	"context"
	"math/rand"
	"time"

	logx "watchdog/pkg/logx"
)

func (s *Service) enqueue(t task) {
	s.mu.Lock()
	q := s.queue
	s.mu.Unlock()
	if q == nil {
		s.log.Debug("scheduler not running; dropping task", logx.String("task", t.name))
		return
	}

	// Overlap control happens at enqueue time so a slow task never piles
	// up duplicate queue entries.
	if t.opt.Overlap == OverlapSkipIfRunning && t.state != nil {
		t.state.mu.Lock()
		busy := t.state.running
		t.state.mu.Unlock()
		if busy {
			s.log.Debug("task still running; skipping tick", logx.String("task", t.name))
			s.met.TaskRun(t.name, "skipped")
			return
		}
	}

	select {
	case q <- t:
	default:
		s.log.Warn("scheduler queue full; dropping task",
			logx.String("task", t.name), logx.Int("queue_len", len(q)), logx.Int("queue_cap", cap(q)))
		s.met.TaskRun(t.name, "dropped")
	}
}

func (s *Service) worker(ctx context.Context, stopCh <-chan struct{}, queue <-chan task) {
	for {
		// Fast-exit check so a closed stopCh wins over queued work.
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		default:
		}

		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case t := <-queue:
			s.runTask(ctx, stopCh, t)
		}
	}
}

func (s *Service) runTask(ctx context.Context, stopCh <-chan struct{}, t task) {
	if t.state != nil {
		t.state.mu.Lock()
		t.state.running = true
		t.state.mu.Unlock()
		defer func() {
			t.state.mu.Lock()
			t.state.running = false
			t.state.mu.Unlock()
		}()
	}

	s.mu.Lock()
	cfg := s.cfg
	s.mu.Unlock()
	retry := t.opt.Retry.withDefaults(cfg)

	started := time.Now()
	attempts, err := s.attempt(ctx, stopCh, t, retry)
	took := time.Since(started)

	item := HistoryItem{ID: t.id, Name: t.name, Started: started, Duration: took}
	if err != nil {
		item.Error = err.Error()
		s.log.Warn("task failed",
			logx.String("task", t.name), logx.Err(err), logx.Duration("dur", took), logx.Int("attempts", attempts))
		s.met.TaskRun(t.name, "error")
	} else {
		// Frequent fast tasks stay at debug; only slow ones are worth INFO.
		done := s.log.Debug
		if took >= 750*time.Millisecond {
			done = s.log.Info
		}
		done("task completed", logx.String("task", t.name), logx.Duration("dur", took), logx.Int("attempts", attempts))
		s.met.TaskRun(t.name, "ok")
	}
	s.recordHistory(item, cfg.HistorySize)
}

// attempt runs t up to 1+retry.Max times with backoff between failures.
// Each attempt gets its own timeout so a hung first attempt cannot eat
// the retries' budget.
func (s *Service) attempt(ctx context.Context, stopCh <-chan struct{}, t task, retry RetryPolicy) (int, error) {
	var err error
	for n := 1; ; n++ {
		runCtx := ctx
		cancel := func() {}
		if t.timeout > 0 {
			runCtx, cancel = context.WithTimeout(ctx, t.timeout)
		}
		err = t.run(runCtx)
		cancel()

		if err == nil || n > retry.Max {
			return n, err
		}

		delay := retry.delay(n)
		s.log.Debug("task retry scheduled",
			logx.String("task", t.name), logx.Int("attempt", n+1), logx.Duration("delay", delay), logx.Err(err))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return n, ctx.Err()
		case <-stopCh:
			timer.Stop()
			return n, err
		case <-timer.C:
		}
	}
}

func (s *Service) recordHistory(item HistoryItem, size int) {
	// Unset history_size would grow without bound on a long-running
	// daemon, so cap it.
	if size <= 0 {
		size = 200
	}
	s.hmu.Lock()
	defer s.hmu.Unlock()
	s.history = append(s.history, item)
	if excess := len(s.history) - size; excess > 0 {
		s.history = s.history[excess:]
	}
}

// delay computes the backoff before retry n (n starts at 1): exponential
// growth from Base capped at MaxDelay, spread by ±Jitter.
func (r RetryPolicy) delay(n int) time.Duration {
	d := r.Base
	for i := 1; i < n && d < r.MaxDelay; i++ {
		d *= 2
	}
	if d > r.MaxDelay {
		d = r.MaxDelay
	}
	spread := 1 + (rand.Float64()*2-1)*r.Jitter
	d = time.Duration(float64(d) * spread)
	if d < 0 {
		d = 0
	}
	if d > r.MaxDelay {
		d = r.MaxDelay
	}
	return d
}
