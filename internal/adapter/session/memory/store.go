// Package memory implements the session store as a process-local map with
// lazy TTL eviction. State is advisory conversation memory, so losing it on
// restart is acceptable; multi-instance deployments should use the Redis
// store instead.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aurorael/chat-backend/internal/adapter/observability"
	"github.com/aurorael/chat-backend/internal/domain"
)

// Store is an in-memory domain.SessionStore. All mutation happens under the
// store lock so concurrent requests sharing a session id cannot lose updates.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*domain.Session
	ttl      time.Duration
	now      func() time.Time
}

// New constructs a Store with the given time-to-live.
func New(ttl time.Duration) *Store {
	return &Store{sessions: make(map[string]*domain.Session), ttl: ttl, now: time.Now}
}

// WithClock overrides the store clock. Test hook.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// GetOrCreate returns a snapshot of the session for id, evicting it first when
// expired. An empty, unknown, or expired id yields a fresh session with a new
// uuid.
func (s *Store) GetOrCreate(_ context.Context, id string) (domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id != "" {
		if sess, ok := s.sessions[id]; ok {
			if !sess.Expired(s.now(), s.ttl) {
				return snapshot(sess), nil
			}
			delete(s.sessions, id)
			observability.SessionsActive.Dec()
		}
	}

	sess := &domain.Session{ID: uuid.NewString(), CreatedAt: s.now()}
	s.sessions[sess.ID] = sess
	observability.SessionsActive.Inc()
	return snapshot(sess), nil
}

// AppendHistory appends turns to the stored history. Storage is unbounded;
// capping happens when the outbound model context is prepared.
func (s *Store) AppendHistory(_ context.Context, id string, msgs ...domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return fmt.Errorf("op=memory.AppendHistory id=%s: %w", id, domain.ErrInternal)
	}
	sess.History = append(sess.History, msgs...)
	return nil
}

// SetLastLocation remembers the most recently resolved location.
func (s *Store) SetLastLocation(_ context.Context, id, location string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return fmt.Errorf("op=memory.SetLastLocation id=%s: %w", id, domain.ErrInternal)
	}
	sess.LastLocation = location
	return nil
}

// SetPendingLocation marks whether the session awaits a location answer.
func (s *Store) SetPendingLocation(_ context.Context, id string, pending bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return fmt.Errorf("op=memory.SetPendingLocation id=%s: %w", id, domain.ErrInternal)
	}
	sess.PendingLocation = pending
	return nil
}

func snapshot(sess *domain.Session) domain.Session {
	out := *sess
	out.History = append([]domain.Message(nil), sess.History...)
	return out
}
