// Package redisstore implements the session store on Redis so several
// instances can share conversation state. Sessions are stored as one JSON
// value per id with the TTL enforced by Redis itself.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/aurorael/chat-backend/internal/domain"
)

const keyPrefix = "chat:session:"

// Store is a Redis-backed domain.SessionStore.
// Mutations are read-modify-write; like the original single-process runtime,
// the store assumes one in-flight request per session id. Lost updates under
// deliberate concurrent writes to one session are an accepted limitation.
type Store struct {
	rdb *redis.Client
	ttl time.Duration
	now func() time.Time
}

// New constructs a Store on an existing Redis client.
func New(rdb *redis.Client, ttl time.Duration) *Store {
	return &Store{rdb: rdb, ttl: ttl, now: time.Now}
}

// Ping reports Redis connectivity for readiness checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// GetOrCreate returns the stored session for id or creates a fresh one. Redis
// expiry makes aged-out sessions behave as absent without a sweep.
func (s *Store) GetOrCreate(ctx context.Context, id string) (domain.Session, error) {
	if id != "" {
		raw, err := s.rdb.Get(ctx, keyPrefix+id).Bytes()
		switch {
		case err == nil:
			var sess domain.Session
			if jsonErr := json.Unmarshal(raw, &sess); jsonErr == nil && !sess.Expired(s.now(), s.ttl) {
				return sess, nil
			}
			// corrupt or stale payload: drop it and fall through to create
			_ = s.rdb.Del(ctx, keyPrefix+id).Err()
		case errors.Is(err, redis.Nil):
			// absent or expired by Redis
		default:
			return domain.Session{}, fmt.Errorf("op=redisstore.GetOrCreate: %w", err)
		}
	}

	sess := domain.Session{ID: uuid.NewString(), CreatedAt: s.now()}
	if err := s.save(ctx, sess); err != nil {
		return domain.Session{}, err
	}
	return sess, nil
}

// AppendHistory appends turns to the stored history.
func (s *Store) AppendHistory(ctx context.Context, id string, msgs ...domain.Message) error {
	return s.update(ctx, id, func(sess *domain.Session) {
		sess.History = append(sess.History, msgs...)
	})
}

// SetLastLocation remembers the most recently resolved location.
func (s *Store) SetLastLocation(ctx context.Context, id, location string) error {
	return s.update(ctx, id, func(sess *domain.Session) {
		sess.LastLocation = location
	})
}

// SetPendingLocation marks whether the session awaits a location answer.
func (s *Store) SetPendingLocation(ctx context.Context, id string, pending bool) error {
	return s.update(ctx, id, func(sess *domain.Session) {
		sess.PendingLocation = pending
	})
}

func (s *Store) update(ctx context.Context, id string, mutate func(*domain.Session)) error {
	raw, err := s.rdb.Get(ctx, keyPrefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return fmt.Errorf("op=redisstore.update id=%s: %w", id, domain.ErrInternal)
		}
		return fmt.Errorf("op=redisstore.update: %w", err)
	}
	var sess domain.Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return fmt.Errorf("op=redisstore.update decode: %w", err)
	}
	mutate(&sess)
	return s.save(ctx, sess)
}

func (s *Store) save(ctx context.Context, sess domain.Session) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("op=redisstore.save encode: %w", err)
	}
	// TTL counts from creation, not last write.
	remaining := s.ttl - s.now().Sub(sess.CreatedAt)
	if remaining <= 0 {
		remaining = time.Second
	}
	if err := s.rdb.Set(ctx, keyPrefix+sess.ID, raw, remaining).Err(); err != nil {
		return fmt.Errorf("op=redisstore.save: %w", err)
	}
	return nil
}
