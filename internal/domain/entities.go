// Package domain holds the entities, ports, and error taxonomy shared by the
// chat backend. Adapters implement the ports; usecases consume them.
package domain

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Error taxonomy (sentinels)
var (
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrLocationNotFound  = errors.New("location not found")
	ErrUpstreamTimeout   = errors.New("upstream timeout")
	ErrUpstreamRateLimit = errors.New("upstream rate limit")
	ErrUpstream          = errors.New("upstream error")
	ErrInternal          = errors.New("internal error")
)

// RateLimitError carries the provider's retry hint alongside the rate-limit
// sentinel. All rate-limit/quota conditions across providers normalize to this
// single type.
type RateLimitError struct {
	RetryAfter time.Duration // zero when the provider gave no hint
	Message    string
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited (retry after %s): %s", e.RetryAfter, e.Message)
	}
	return "rate limited: " + e.Message
}

func (e *RateLimitError) Unwrap() error { return ErrUpstreamRateLimit }

// Message roles
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one conversation turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Session is a server-held, time-limited record of one user's conversation
// state, keyed by a client-supplied opaque identifier.
// Stored history is unbounded; capping happens only when the outbound model
// context is prepared.
type Session struct {
	ID              string    `json:"id"`
	History         []Message `json:"history"`
	LastLocation    string    `json:"last_location,omitempty"`
	PendingLocation bool      `json:"pending_location,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// Expired reports whether the session has outlived ttl at instant now.
func (s Session) Expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(s.CreatedAt) >= ttl
}

// SessionStore is the port for session state. Implementations synchronize
// internally; callers get snapshots and mutate through the store so that
// concurrent requests sharing a session id cannot lose updates.
type SessionStore interface {
	// GetOrCreate returns the non-expired session for id, or a fresh session
	// with a newly generated id when id is empty, unknown, or expired.
	GetOrCreate(ctx context.Context, id string) (Session, error)
	// AppendHistory appends turns to the stored history.
	AppendHistory(ctx context.Context, id string, msgs ...Message) error
	// SetLastLocation remembers the most recently resolved location.
	SetLastLocation(ctx context.Context, id, location string) error
	// SetPendingLocation marks whether the session is waiting for the user to
	// supply a location.
	SetPendingLocation(ctx context.Context, id string, pending bool) error
}

// WeatherReport is the normalized weather provider response.
type WeatherReport struct {
	Name        string
	Country     string
	Description string
	TempC       float64
	FeelsLikeC  float64
	// TZOffsetSec is the location's UTC offset in seconds, used to render
	// local time and date answers.
	TZOffsetSec int
}

// WeatherProvider is the port for the external weather service.
type WeatherProvider interface {
	Fetch(ctx context.Context, location string) (WeatherReport, error)
}

// ModelResult is a successful completion.
type ModelResult struct {
	Text         string
	UsedFallback bool
}

// CompletionOptions tune a single model call. Zero values mean the client's
// configured defaults.
type CompletionOptions struct {
	MaxOutputTokens int
	Temperature     float64
}

// ModelProvider is the port for the language-model service. Failures are
// classified through the error taxonomy: *RateLimitError for quota/429,
// ErrUpstreamTimeout for exhausted transient failures, ErrUpstream otherwise.
type ModelProvider interface {
	Complete(ctx context.Context, msgs []Message, opts CompletionOptions) (ModelResult, error)
}
