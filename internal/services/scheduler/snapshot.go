package scheduler

import "time"

// Snapshot returns a consistent view of the scheduler state for the
// admin surface: registered schedules with next/previous fire times,
// queue depth and the bounded run history.
func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	snap := Snapshot{
		Enabled:  s.cfg.Enabled,
		Timezone: s.cfg.Timezone,
		Workers:  s.cfg.Workers,
	}
	if s.queue != nil {
		snap.QueueLen = len(s.queue)
	}
	defs := append([]scheduleDef(nil), s.defs...)
	c := s.c
	loc := s.loc
	s.mu.Unlock()

	if loc == nil {
		loc = time.Local
	}
	if snap.Timezone == "" {
		snap.Timezone = loc.String()
	}
	if snap.Workers <= 0 {
		snap.Workers = 2
	}

	snap.Schedules = make([]ScheduleInfo, 0, len(defs))
	for _, d := range defs {
		info := ScheduleInfo{ID: d.id, Name: d.name, Spec: d.spec, Timeout: d.timeout}
		if c != nil && d.entryID != 0 {
			entry := c.Entry(d.entryID)
			info.Next, info.Prev = entry.Next, entry.Prev
		}
		snap.Schedules = append(snap.Schedules, info)
	}

	s.hmu.Lock()
	snap.History = append([]HistoryItem(nil), s.history...)
	s.hmu.Unlock()
	return snap
}
