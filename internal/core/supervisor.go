package core

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	logx "watchdog/pkg/logx"
)

// Supervisor runs named goroutines under a shared context, recovers
// panics, remembers the first failure and can optionally cancel the rest
// of the group when one member fails.
type Supervisor struct {
	ctx    context.Context
	cancel context.CancelFunc

	log         logx.Logger
	cancelOnErr bool

	wg sync.WaitGroup

	errMu    sync.Mutex
	firstErr error
}

type SupervisorOption func(*Supervisor)

func WithLogger(log logx.Logger) SupervisorOption {
	return func(s *Supervisor) { s.log = log }
}

// WithCancelOnError makes the first non-nil goroutine error cancel the
// supervisor context.
func WithCancelOnError(enabled bool) SupervisorOption {
	return func(s *Supervisor) { s.cancelOnErr = enabled }
}

func NewSupervisor(parent context.Context, opts ...SupervisorOption) *Supervisor {
	ctx, cancel := context.WithCancel(parent)
	s := &Supervisor{ctx: ctx, cancel: cancel, log: logx.Nop()}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Supervisor) Context() context.Context { return s.ctx }

// Cancel cancels the group context without waiting for members to exit.
func (s *Supervisor) Cancel() { s.cancel() }

// Err returns the first error any member reported, or nil.
func (s *Supervisor) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.firstErr
}

// Go starts fn as a named member of the group. The name only shows up in
// logs; it carries no uniqueness requirement.
func (s *Supervisor) Go(name string, fn func(ctx context.Context) error) {
	if fn == nil {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.fail(name, s.run(name, fn))
	}()
}

func (s *Supervisor) run(name string, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in %s: %v", name, r)
			s.log.Error("goroutine panicked",
				logx.String("name", name), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
		}
	}()
	return fn(s.ctx)
}

func (s *Supervisor) fail(name string, err error) {
	if err == nil || errors.Is(err, context.Canceled) {
		return
	}
	s.log.Warn("goroutine exited with error", logx.String("name", name), logx.Err(err))

	s.errMu.Lock()
	if s.firstErr == nil {
		s.firstErr = err
	}
	s.errMu.Unlock()

	if s.cancelOnErr {
		s.cancel()
	}
}

// Wait blocks until every member exits or ctx is done.
func (s *Supervisor) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return s.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}
