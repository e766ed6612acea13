package domain

import (
	"sync"
	"time"
)

// State is the process-wide refresh bookkeeping shared by the scheduler
// and the management commands. The zero value is not usable; use NewState.
type State struct {
	mu       sync.Mutex
	last     map[string]int64
	resets   map[string]uint64
	inFlight map[string]*sync.Mutex
}

func NewState() *State {
	return &State{
		last:     make(map[string]int64),
		resets:   make(map[string]uint64),
		inFlight: make(map[string]*sync.Mutex),
	}
}

// LastRefresh returns the unix seconds of the last successful refresh, 0 if never
func (s *State) LastRefresh(channelID string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last[channelID]
}

func (s *State) MarkRefreshed(channelID string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last[channelID] = at.Unix()
}

// Generation counts the resets of a channel so far
func (s *State) Generation(channelID string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resets[channelID]
}

// MarkRefreshedSince records a refresh that started at generation gen. It is
// dropped when the channel was reset in the meantime, keeping it due.
func (s *State) MarkRefreshedSince(channelID string, gen uint64, at time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.resets[channelID] != gen {
		return false
	}
	s.last[channelID] = at.Unix()
	return true
}

// Reset makes the channel due on the next tick
func (s *State) Reset(channelID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last[channelID] = 0
	s.resets[channelID]++
}

// IsDue reports whether the interval has elapsed since the last refresh
func (s *State) IsDue(channelID string, intervalMinutes int, now time.Time) bool {
	last := s.LastRefresh(channelID)
	if last == 0 {
		return true
	}
	return now.Unix()-last >= int64(intervalMinutes)*60
}

// TryAcquire takes the channel's in-flight guard without waiting
func (s *State) TryAcquire(channelID string) bool {
	return s.guard(channelID).TryLock()
}

// Acquire blocks until the channel's in-flight guard is free
func (s *State) Acquire(channelID string) {
	s.guard(channelID).Lock()
}

func (s *State) Release(channelID string) {
	s.guard(channelID).Unlock()
}

func (s *State) guard(channelID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.inFlight[channelID]
	if !ok {
		m = &sync.Mutex{}
		s.inFlight[channelID] = m
	}
	return m
}
