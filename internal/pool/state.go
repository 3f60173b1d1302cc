package pool

import "time"

// state holds the pool's three credential collections plus the affinity
// cache. It is only ever touched from inside the actor goroutine, so it
// carries no locking of its own.
type state struct {
	// active is a FIFO ring: Acquire pops the front and pushes it to the
	// back, giving round-robin selection over whatever is currently
	// eligible.
	active []*Credential
	// cooling holds credentials pulled out of rotation after a rate
	// limit or restriction, keyed by token for O(1) membership checks.
	cooling map[string]*Credential
	// dead holds permanently retired tokens and the reason they were
	// retired.
	dead map[string]DeadReason

	affinity *affinityCache

	cfg Config
}

func newState(cfg Config) *state {
	return &state{
		cooling:  make(map[string]*Credential),
		dead:     make(map[string]DeadReason),
		affinity: newAffinityCache(cfg.AffinityCapacity, cfg.AffinityIdleTTL),
		cfg:      cfg,
	}
}

// location reports which collection currently holds token, if any.
func (s *state) location(token string) (inActive, inCooling, inDead bool) {
	for _, c := range s.active {
		if c.Token == token {
			inActive = true
			break
		}
	}
	_, inCooling = s.cooling[token]
	_, inDead = s.dead[token]
	return
}

// popFront removes and returns the credential at the head of active.
func (s *state) popFront() *Credential {
	if len(s.active) == 0 {
		return nil
	}
	c := s.active[0]
	s.active = s.active[1:]
	return c
}

// pushBack appends c to the tail of active.
func (s *state) pushBack(c *Credential) {
	s.active = append(s.active, c)
}

// removeActive deletes the credential matching token from active, if
// present, and reports whether it found one.
func (s *state) removeActive(token string) (*Credential, bool) {
	for i, c := range s.active {
		if c.Token == token {
			s.active = append(s.active[:i], s.active[i+1:]...)
			return c, true
		}
	}
	return nil, false
}

// findActive returns the credential matching token from active without
// removing it.
func (s *state) findActive(token string) (*Credential, bool) {
	for _, c := range s.active {
		if c.Token == token {
			return c, true
		}
	}
	return nil, false
}

// snapshot returns a deep-cloned StatusInfo safe to hand to callers.
func (s *state) snapshot() StatusInfo {
	info := StatusInfo{}
	for _, c := range s.active {
		info.Valid = append(info.Valid, c.Clone())
	}
	for _, c := range s.cooling {
		info.Cooling = append(info.Cooling, c.Clone())
	}
	for token, reason := range s.dead {
		info.Dead = append(info.Dead, DeadCredential{Token: token, Reason: reason})
	}
	return info
}

// resetIfDue zeroes w's usage counter and advances its reset time by
// window once the previously recorded reset time has elapsed. It mirrors
// the upstream's own rolling-window bookkeeping locally, so the pool
// never needs a round trip just to know a window rolled over.
func resetIfDue(w *UsageWindow, window time.Duration, now time.Time) bool {
	if !w.HasReset || now.Before(w.ResetsAt) {
		return false
	}
	w.Usage = 0
	w.ResetsAt = w.ResetsAt.Add(window)
	return true
}

// refreshWindows runs resetIfDue across all four of a credential's
// windows, returning true if anything changed.
func refreshWindows(c *Credential, now time.Time, cfg Config) bool {
	changed := resetIfDue(&c.Session, cfg.SessionWindow, now)
	changed = resetIfDue(&c.Weekly, cfg.WeeklyWindow, now) || changed
	changed = resetIfDue(&c.WeeklyOpus, cfg.WeeklyOpusWindow, now) || changed
	changed = resetIfDue(&c.WeeklySonnet, cfg.WeeklySonnetWindow, now) || changed
	return changed
}
