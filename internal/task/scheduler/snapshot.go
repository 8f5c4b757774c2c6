package scheduler

// Snapshot copies the queue and cursor state; safe to call from any goroutine.
func (s *Scheduler) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		Running:   s.isRunningLocked(),
		Stopping:  s.stopping,
		Online:    s.opts.Online,
		Cursor:    s.cursor,
		Committed: s.committed,
		Pending:   make([]TaskInfo, 0, len(s.queue)),
	}
	if s.inflight != nil {
		ti := s.inflight.info()
		snap.InFlight = &ti
	}
	for _, t := range s.queue {
		snap.Pending = append(snap.Pending, t.info())
	}
	if s.lastErr != nil {
		snap.LastErr = s.lastErr.Error()
	}
	return snap
}
