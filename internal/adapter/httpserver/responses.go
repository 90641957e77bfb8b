// Package httpserver contains HTTP handlers and middleware.
//
// It exposes the chat endpoint plus health and readiness probes, and keeps
// HTTP concerns separate from the routing logic in usecase.
package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/aurorael/chat-backend/internal/domain"
)

// chatResponse is the success envelope. VideoID is present only on the
// author-identity reply; UsedFallback only when the fallback model answered.
type chatResponse struct {
	Result       string `json:"result"`
	SessionID    string `json:"sessionId"`
	VideoID      string `json:"videoId,omitempty"`
	UsedFallback bool   `json:"usedFallback,omitempty"`
}

// errorEnvelope always carries the session id when one exists, so a client
// whose request failed can still keep its conversation key.
type errorEnvelope struct {
	Error     string      `json:"error"`
	SessionID string      `json:"sessionId,omitempty"`
	Detail    interface{} `json:"detalle,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, _ *http.Request, sessionID string, err error, detail interface{}) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrUpstreamRateLimit):
		status = http.StatusTooManyRequests
		var rl *domain.RateLimitError
		if errors.As(err, &rl) && rl.RetryAfter > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(int(rl.RetryAfter.Seconds())))
		}
	case errors.Is(err, domain.ErrUpstreamTimeout):
		status = http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrUpstream):
		status = http.StatusBadGateway
	}
	writeJSON(w, status, errorEnvelope{Error: err.Error(), SessionID: sessionID, Detail: detail})
}
