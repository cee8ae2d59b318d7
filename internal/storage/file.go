package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"watchdog/internal/eventlog"
	logx "watchdog/pkg/logx"
)

// fileStore is a dependency-free persistence backend.
//
// Files:
//   - <prefix>.events.jsonl (append-only JSON Lines journal)
//
// Each line is either an event record or a trim marker
// ({"trim_before": id}). The journal is compacted in place once trimmed
// entries outnumber live ones; ranked lookups are served from an
// in-memory index rebuilt on open.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	path    string
	journal *os.File

	events []eventlog.Event // ascending id order
	nextID int64
	// journal lines since last compaction that no longer map to live events
	deadLines int
}

type journalLine struct {
	Event      *eventlog.Event `json:"event,omitempty"`
	TrimBefore int64           `json:"trim_before,omitempty"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	dir := filepath.Dir(path)
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(filepath.Base(path)))
	journalPath := filepath.Join(dir, base+".events.jsonl")

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	s := &fileStore{log: log, path: journalPath, nextID: 1}
	if err := s.replay(journalPath); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	s.journal = f
	return s, nil
}

func (s *fileStore) replay(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var jl journalLine
		if err := json.Unmarshal([]byte(line), &jl); err != nil {
			// Tolerate a torn trailing write; anything else is corruption
			// we surface rather than silently drop history.
			s.log.Warn("skipping unreadable journal line", logx.Err(err))
			continue
		}
		switch {
		case jl.Event != nil:
			s.events = append(s.events, *jl.Event)
			if jl.Event.ID >= s.nextID {
				s.nextID = jl.Event.ID + 1
			}
		case jl.TrimBefore > 0:
			s.dropBefore(jl.TrimBefore)
			s.deadLines++
		}
	}
	return sc.Err()
}

// dropBefore removes in-memory events with id < threshold.
// Events are kept in ascending id order, so this is a prefix cut.
func (s *fileStore) dropBefore(threshold int64) {
	i := 0
	for i < len(s.events) && s.events[i].ID < threshold {
		i++
	}
	if i > 0 {
		s.deadLines += i
		s.events = append(s.events[:0:0], s.events[i:]...)
	}
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return nil
	}
	err := s.journal.Close()
	s.journal = nil
	return err
}

func (s *fileStore) Append(ctx context.Context, e eventlog.Event) (int64, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return 0, unavailable(errors.New("journal closed"))
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	e.ID = s.nextID

	if err := s.writeLine(journalLine{Event: &e}); err != nil {
		return 0, unavailable(err)
	}
	s.nextID++
	s.events = append(s.events, e)
	return e.ID, nil
}

func (s *fileStore) NthNewestID(ctx context.Context, n int) (int64, bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if n < 1 || n > len(s.events) {
		return 0, false, nil
	}
	return s.events[len(s.events)-n].ID, true, nil
}

func (s *fileStore) DeleteBefore(ctx context.Context, threshold int64) (int64, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return 0, unavailable(errors.New("journal closed"))
	}

	before := len(s.events)
	s.dropBefore(threshold)
	removed := before - len(s.events)
	if removed == 0 {
		return 0, nil
	}

	if err := s.writeLine(journalLine{TrimBefore: threshold}); err != nil {
		return 0, unavailable(err)
	}
	s.deadLines++

	// Compact once trimmed lines dominate the journal.
	if s.deadLines > len(s.events) {
		if err := s.compactLocked(); err != nil {
			s.log.Warn("journal compaction failed", logx.Err(err))
		}
	}
	return int64(removed), nil
}

func (s *fileStore) compactLocked() error {
	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for i := range s.events {
		if err := enc.Encode(journalLine{Event: &s.events[i]}); err != nil {
			_ = f.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	if s.journal != nil {
		_ = s.journal.Close()
		s.journal = nil
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return err
	}
	nf, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	s.journal = nf
	s.deadLines = 0
	return nil
}

func (s *fileStore) Recent(ctx context.Context, limit int) ([]eventlog.Event, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit < 1 {
		return nil, nil
	}
	if limit > len(s.events) {
		limit = len(s.events)
	}
	out := make([]eventlog.Event, 0, limit)
	for i := len(s.events) - 1; i >= len(s.events)-limit; i-- {
		out = append(out, s.events[i])
	}
	return out, nil
}

func (s *fileStore) Count(ctx context.Context) (int64, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.events)), nil
}

func (s *fileStore) writeLine(jl journalLine) error {
	enc := json.NewEncoder(s.journal)
	return enc.Encode(jl)
}
