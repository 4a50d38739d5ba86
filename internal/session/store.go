package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/egregors/plantdash/log"
)

const defaultTTL = 30 * time.Minute

type Option func(s *Store)

// WithTTL sets how long an untouched session survives a Sweep.
// Zero disables expiry.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// Store keeps one isolated State per browsing session.
type Store struct {
	mu       *sync.RWMutex
	sessions map[string]*State
	ttl      time.Duration
	now      func() time.Time
}

func New(opts ...Option) *Store {
	s := &Store{
		mu:       &sync.RWMutex{},
		sessions: make(map[string]*State),
		ttl:      defaultTTL,
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Get returns the session with the given id and marks it as used.
func (s *Store) Get(id string) (*State, bool) {
	s.mu.RLock()
	st, ok := s.sessions[id]
	s.mu.RUnlock()

	if ok {
		st.touch(s.now())
	}

	return st, ok
}

// Create starts a new session with all relays OFF and no image.
func (s *Store) Create() (string, *State) {
	id := newID()
	st := NewState()
	st.touch(s.now())

	s.mu.Lock()
	s.sessions[id] = st
	s.mu.Unlock()

	log.Debg.Printf("session %s created", id)

	return id, st
}

// GetOrCreate returns the session for id, or a fresh one when id is
// unknown or expired. The returned id is the one the caller must keep.
func (s *Store) GetOrCreate(id string) (string, *State, bool) {
	if id != "" {
		if st, ok := s.Get(id); ok {
			return id, st, false
		}
	}

	fresh, st := s.Create()

	return fresh, st, true
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.sessions)
}

// Sweep drops sessions idle for longer than the TTL and reports how many went away.
func (s *Store) Sweep(now time.Time) int {
	if s.ttl == 0 {
		return 0
	}

	cutoff := now.Add(-s.ttl)

	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int
	for id, st := range s.sessions {
		if st.idleSince().Before(cutoff) {
			delete(s.sessions, id)
			removed++
		}
	}

	return removed
}

func newID() string {
	if id, err := uuid.NewV7(); err == nil {
		return id.String()
	}

	return uuid.NewString()
}
