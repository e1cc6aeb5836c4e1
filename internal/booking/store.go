package booking

import (
	"context"
	"sync"
	"time"

	"luxurystay/internal/availability"
)

// DefaultProposalTimeout is used when a store is created without a timeout.
const DefaultProposalTimeout = 30 * time.Minute

// Key identifies a proposal: one per user and room.
type Key struct {
	UserID int64
	RoomID int64
}

// Store keeps in-progress proposals in memory.
type Store struct {
	proposals map[Key]*Proposal
	mu        sync.RWMutex
	timeout   time.Duration
	now       func() time.Time
}

// NewStore creates a proposal store. now may be nil.
func NewStore(timeout time.Duration, now func() time.Time) *Store {
	if timeout <= 0 {
		timeout = DefaultProposalTimeout
	}
	if now == nil {
		now = time.Now
	}
	return &Store{
		proposals: make(map[Key]*Proposal),
		timeout:   timeout,
		now:       now,
	}
}

// Now returns the store's clock reading.
func (s *Store) Now() time.Time {
	return s.now()
}

// Get returns the live proposal for key.
func (s *Store) Get(key Key) (*Proposal, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.proposals[key]
	if !ok || p.IsExpired(s.timeout) {
		return nil, false
	}
	return p, true
}

// GetOrCreate returns the live proposal for key or starts a new one for room.
// A confirmed proposal is replaced so the user can book the room again.
func (s *Store) GetOrCreate(key Key, room *availability.Room) *Proposal {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.proposals[key]
	if ok && !p.IsExpired(s.timeout) && p.State() != StateConfirmed {
		return p
	}

	p = NewProposal(key.UserID, room, s.now)
	s.proposals[key] = p
	return p
}

// Delete removes a proposal. A proposal with a submission in flight is kept.
func (s *Store) Delete(key Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.proposals[key]
	if !ok {
		return false
	}
	if p.guard.Busy() {
		return false
	}
	delete(s.proposals, key)
	return true
}

// Len returns the number of stored proposals.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.proposals)
}

// Cleanup removes expired proposals.
func (s *Store) Cleanup() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, p := range s.proposals {
		if p.IsExpired(s.timeout) {
			delete(s.proposals, key)
			removed++
		}
	}
	return removed
}

// StartCleanup runs Cleanup every interval until ctx is done.
func (s *Store) StartCleanup(ctx context.Context, interval time.Duration, onRemoved func(int)) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := s.Cleanup(); n > 0 && onRemoved != nil {
					onRemoved(n)
				}
			}
		}
	}()
}
