package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"watchdog/internal/metrics"
	logx "watchdog/pkg/logx"
)

type Service struct {
	mu sync.Mutex

	log logx.Logger
	met *metrics.Metrics
	cfg Config
	loc *time.Location

	parser cron.Parser
	c      *cron.Cron
	defs   []scheduleDef

	queue  chan task
	stopCh chan struct{}

	hmu     sync.Mutex
	history []HistoryItem

	workerWG sync.WaitGroup
}

func New(cfg Config, log logx.Logger, met *metrics.Metrics) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg: cfg,
		log: log,
		met: met,
		// SecondOptional allows both 5-field and 6-field (with seconds) cron specs.
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

// Enabled reports the current config flag. (Thread-safe; Apply() may run concurrently.)
func (s *Service) Enabled() bool {
	s.mu.Lock()
	en := s.cfg.Enabled
	s.mu.Unlock()
	return en
}

func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	oldTZ := strings.TrimSpace(s.cfg.Timezone)
	newTZ := strings.TrimSpace(cfg.Timezone)
	s.cfg = cfg

	if s.stopCh == nil {
		return
	}
	if oldTZ != newTZ {
		// restart cron with the new location and re-register definitions
		s.restartLocked()
	}
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopCh != nil {
		return
	}
	s.stopCh = make(chan struct{})

	workers := s.cfg.Workers
	if workers <= 0 {
		workers = 2
	}
	// Fresh queue per run so stale enqueued tasks never execute after a stop/start toggle.
	s.queue = make(chan task, 256)

	loc := s.loadLocationLocked()
	s.loc = loc
	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(loc))

	// re-register existing defs (if any)
	for i := range s.defs {
		_ = s.addCronLocked(&s.defs[i])
	}

	stopCh := s.stopCh
	queue := s.queue

	s.workerWG.Add(workers)
	for i := 0; i < workers; i++ {
		idx := i
		go func() {
			defer s.workerWG.Done()
			defer func() {
				if r := recover(); r != nil {
					s.log.Error("panic in scheduler worker", logx.Int("worker", idx), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
				}
			}()
			s.worker(ctx, stopCh, queue)
		}()
	}
	s.c.Start()
	s.log.Info("scheduler started", logx.Int("workers", workers), logx.String("tz", loc.String()), logx.Int("schedules", len(s.defs)))
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	if s.stopCh == nil {
		s.mu.Unlock()
		return
	}
	stopCh := s.stopCh
	s.stopCh = nil
	c := s.c
	s.c = nil
	s.queue = nil
	s.mu.Unlock()

	close(stopCh)
	if c != nil {
		<-c.Stop().Done()
	}

	done := make(chan struct{})
	go func() {
		s.workerWG.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		// workers finish in the background
	}
	s.log.Info("scheduler stopped")
}

// AddSchedule parses schedule and registers either a cron or interval task.
//
// Supported schedule formats:
//   - Cron: "*/5 * * * *", "55 * * * *", "@hourly", "@every 55m"
//   - Interval duration: "55m", "2h30m"
//   - Interval HH:MM: "00:50" (50 minutes), "02:30" (2 hours 30 minutes)
func (s *Service) AddSchedule(name, schedule string, timeout time.Duration, opt TaskOptions, job func(ctx context.Context) error) (string, error) {
	ps, err := ParseSchedule(schedule)
	if err != nil {
		return "", err
	}
	switch ps.Kind {
	case SpecCron:
		return s.AddCron(name, ps.Cron, timeout, opt, job)
	case SpecInterval:
		return s.AddInterval(name, ps.Every, timeout, opt, job)
	default:
		return "", fmt.Errorf("unsupported schedule kind")
	}
}

func (s *Service) AddCron(name, spec string, timeout time.Duration, opt TaskOptions, job func(ctx context.Context) error) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if strings.TrimSpace(name) == "" {
		return "", errors.New("name required")
	}
	// Upsert by name: remove any previous schedule with the same name to
	// prevent duplicates across hot-reloads or repeated registrations.
	s.removeLocked(name)
	id := fmt.Sprintf("cron:%d", time.Now().UnixNano())
	d := scheduleDef{
		id:      id,
		name:    name,
		spec:    spec,
		timeout: s.resolveTimeoutLocked(timeout),
		job:     job,
		opt:     opt.withDefaults(s.cfg),
		state:   &runState{},
	}
	s.defs = append(s.defs, d)
	if s.c == nil {
		// Scheduler not started/enabled yet: keep the definition and
		// register when Start() runs.
		return id, nil
	}
	if err := s.addCronLocked(&s.defs[len(s.defs)-1]); err != nil {
		s.log.Error("schedule register failed", logx.String("name", name), logx.String("spec", spec), logx.Err(err))
		return id, err
	}
	s.log.Debug("schedule registered", logx.String("name", name), logx.String("spec", spec), logx.Duration("timeout", d.timeout))
	return id, nil
}

func (s *Service) AddInterval(name string, every time.Duration, timeout time.Duration, opt TaskOptions, job func(ctx context.Context) error) (string, error) {
	if every <= 0 {
		return "", errors.New("interval must be > 0")
	}
	return s.AddCron(name, fmt.Sprintf("@every %s", every.String()), timeout, opt, job)
}

// Remove drops a schedule by name. Unknown names are a no-op.
func (s *Service) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(name)
}

func (s *Service) removeLocked(name string) {
	for i := range s.defs {
		if s.defs[i].name != name {
			continue
		}
		if s.c != nil && s.defs[i].entryID != 0 {
			s.c.Remove(s.defs[i].entryID)
		}
		s.defs = append(s.defs[:i], s.defs[i+1:]...)
		return
	}
}

func (s *Service) addCronLocked(d *scheduleDef) error {
	// Copy the task out of the defs slice before capturing it: the cron
	// closure outlives slice reshuffles from Remove, so it must not
	// alias the slot d points into.
	t := task{id: d.id, name: d.name, timeout: d.timeout, run: d.job, opt: d.opt, state: d.state}
	id, err := s.c.AddFunc(d.spec, func() { s.enqueue(t) })
	if err != nil {
		return err
	}
	d.entryID = id
	return nil
}

func (s *Service) restartLocked() {
	if s.c != nil {
		<-s.c.Stop().Done()
	}
	loc := s.loadLocationLocked()
	s.loc = loc
	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(loc))
	for i := range s.defs {
		_ = s.addCronLocked(&s.defs[i])
	}
	s.c.Start()
	s.log.Info("scheduler restarted", logx.String("tz", loc.String()))
}

func (s *Service) loadLocationLocked() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone, falling back to Local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}

func (s *Service) resolveTimeoutLocked(t time.Duration) time.Duration {
	if t > 0 {
		return t
	}
	return s.cfg.DefaultTimeout
}
