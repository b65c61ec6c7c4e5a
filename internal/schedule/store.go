package schedule

import (
	"fmt"
	"sync"
	"time"
)

// Store holds the current WeeklySchedule and its version.
// Replace swaps both under a single lock, so readers observe either the old
// or the new schedule in full.
type Store struct {
	mu        sync.RWMutex
	weekly    WeeklySchedule
	version   int64
	updatedAt time.Time
}

// NewStore creates an empty store at version 0.
func NewStore() *Store {
	return &Store{}
}

// Replace installs weekly as the current schedule at the given version
// (seconds since epoch). It returns ErrStaleSchedule if version is not
// greater than the stored one, or a *ValidationError if any slot is invalid.
// On error the store is unchanged.
func (s *Store) Replace(weekly WeeklySchedule, version int64, now time.Time) error {
	if err := weekly.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if version <= s.version {
		return fmt.Errorf("%w: got %d, have %d", ErrStaleSchedule, version, s.version)
	}
	s.weekly = weekly.Clone()
	s.version = version
	s.updatedAt = now
	return nil
}

// Version returns the version of the stored schedule, 0 if none was received.
func (s *Store) Version() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// UpdatedAt returns the local time of the last successful Replace.
func (s *Store) UpdatedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updatedAt
}

// Snapshot returns a copy of the stored schedule and its version.
func (s *Store) Snapshot() (WeeklySchedule, int64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.weekly.Clone(), s.version
}

// ActiveAt reports whether the stored schedule calls for watering at t.
func (s *Store) ActiveAt(t time.Time) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return ActiveAt(&s.weekly, t)
}
