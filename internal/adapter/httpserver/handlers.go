package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/aurorael/chat-backend/internal/config"
	"github.com/aurorael/chat-backend/internal/domain"
	"github.com/aurorael/chat-backend/internal/usecase"
)

// Server aggregates handler dependencies.
type Server struct {
	Cfg  config.Config
	Chat *usecase.ChatService
	// SessionsCheck probes the session backend for readiness. Nil means the
	// in-memory store is in use and the probe always passes.
	SessionsCheck func(ctx context.Context) error
}

// NewServer constructs an HTTP server with all handlers wired.
func NewServer(cfg config.Config, chat *usecase.ChatService, sessionsCheck func(ctx context.Context) error) *Server {
	return &Server{Cfg: cfg, Chat: chat, SessionsCheck: sessionsCheck}
}

var (
	vldOnce sync.Once
	vld     *validator.Validate
)

func getValidator() *validator.Validate {
	vldOnce.Do(func() { vld = validator.New() })
	return vld
}

// ChatHandler accepts one prompt and returns the routed reply.
func (s *Server) ChatHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if a := r.Header.Get("Accept"); a != "" && a != "*/*" && !strings.Contains(a, "application/json") {
			writeError(w, r, "", fmt.Errorf("%w: not acceptable", domain.ErrInvalidArgument), map[string]string{"accept": a})
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB
		var req struct {
			Prompt    string `json:"prompt" validate:"max=16000"`
			SessionID string `json:"sessionId" validate:"omitempty,max=64"`
			Location  string `json:"location" validate:"omitempty,max=120"`
			TimeZone  string `json:"timeZone" validate:"omitempty,max=64"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, r, "", fmt.Errorf("%w: invalid json", domain.ErrInvalidArgument), nil)
			return
		}
		if err := getValidator().Struct(req); err != nil {
			verrs := map[string]string{}
			if ve, ok := err.(validator.ValidationErrors); ok {
				for _, fe := range ve {
					verrs[strings.ToLower(fe.Field())] = fe.Tag()
				}
			}
			writeError(w, r, "", fmt.Errorf("%w: validation failed", domain.ErrInvalidArgument), verrs)
			return
		}

		reply, err := s.Chat.Handle(r.Context(), usecase.ChatRequest{
			Prompt:    req.Prompt,
			SessionID: req.SessionID,
			Location:  req.Location,
			TimeZone:  req.TimeZone,
		})
		if err != nil {
			LoggerFrom(r).Warn("chat request failed", "error", err, "session_id", reply.SessionID)
			writeError(w, r, reply.SessionID, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, chatResponse{
			Result:       reply.Text,
			SessionID:    reply.SessionID,
			VideoID:      reply.VideoID,
			UsedFallback: reply.UsedFallback,
		})
	}
}

// HealthHandler reports process liveness. It also answers GET on the chat
// route, which only accepts POST for conversation.
func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "OK"})
	}
}

// ReadyzHandler probes the session backend and the provider credentials.
func (s *Server) ReadyzHandler() http.HandlerFunc {
	type check struct {
		Name    string `json:"name"`
		OK      bool   `json:"ok"`
		Details string `json:"details,omitempty"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		checks := make([]check, 0, 3)
		if s.SessionsCheck != nil {
			if err := s.SessionsCheck(ctx); err != nil {
				checks = append(checks, check{Name: "sessions", OK: false, Details: err.Error()})
			} else {
				checks = append(checks, check{Name: "sessions", OK: true})
			}
		} else {
			checks = append(checks, check{Name: "sessions", OK: true, Details: "memory"})
		}
		checks = append(checks, check{Name: "model", OK: s.Cfg.OpenAIAPIKey != ""})
		checks = append(checks, check{Name: "weather", OK: s.Cfg.OpenWeatherAPIKey != ""})

		st := http.StatusOK
		for _, c := range checks {
			if !c.OK {
				st = http.StatusServiceUnavailable
				break
			}
		}
		writeJSON(w, st, map[string]interface{}{"checks": checks})
	}
}
