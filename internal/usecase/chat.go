// Package usecase contains application business logic services.
package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aurorael/chat-backend/internal/adapter/ai/tokencount"
	"github.com/aurorael/chat-backend/internal/config"
	"github.com/aurorael/chat-backend/internal/domain"
	"github.com/aurorael/chat-backend/internal/intent"
	"github.com/aurorael/chat-backend/pkg/textx"
)

// ChatRequest is one inbound prompt with its optional session context.
type ChatRequest struct {
	Prompt    string
	SessionID string
	Location  string
	TimeZone  string // IANA zone supplied by the client, used for time/date only
}

// ChatReply is the terminal outcome of one routed prompt.
type ChatReply struct {
	Text         string
	SessionID    string
	VideoID      string
	UsedFallback bool
}

// ChatService routes each prompt: author-keyword short-circuit, then the
// weather/time/date branch, then the general model completion. It owns all
// session mutation.
type ChatService struct {
	Cfg      config.Config
	Sessions domain.SessionStore
	Weather  domain.WeatherProvider
	Model    domain.ModelProvider
	Tokens   *tokencount.Counter
	now      func() time.Time
}

// NewChatService constructs a ChatService with its dependencies.
func NewChatService(cfg config.Config, sessions domain.SessionStore, weather domain.WeatherProvider, model domain.ModelProvider) *ChatService {
	return &ChatService{
		Cfg:      cfg,
		Sessions: sessions,
		Weather:  weather,
		Model:    model,
		Tokens:   tokencount.NewCounter(),
		now:      time.Now,
	}
}

// WithClock overrides the service clock. Test hook.
func (s *ChatService) WithClock(now func() time.Time) *ChatService {
	s.now = now
	return s
}

// Handle processes one prompt. The returned reply always carries a session id,
// even alongside an error, so clients can keep their conversation key.
func (s *ChatService) Handle(ctx context.Context, req ChatRequest) (ChatReply, error) {
	sess, err := s.Sessions.GetOrCreate(ctx, strings.TrimSpace(req.SessionID))
	if err != nil {
		return ChatReply{}, fmt.Errorf("%w: session store: %v", domain.ErrInternal, err)
	}
	reply := ChatReply{SessionID: sess.ID}

	prompt := textx.Sanitize(req.Prompt)
	if prompt == "" {
		return reply, fmt.Errorf("%w: empty prompt", domain.ErrInvalidArgument)
	}

	lang := intent.DetectLanguage(prompt)

	if s.isAuthorQuestion(prompt) {
		reply.Text = authorReply
		reply.VideoID = s.Cfg.AuthorVideoID
		return reply, nil
	}

	it := intent.Classify(prompt)
	if it != intent.General || sess.PendingLocation {
		return s.handleLookup(ctx, sess, prompt, lang, it, req)
	}
	return s.handleGeneral(ctx, sess, prompt, lang)
}

// isAuthorQuestion matches the configured keywords against the normalized
// prompt, so case and diacritics never hide a match.
func (s *ChatService) isAuthorQuestion(prompt string) bool {
	clean := textx.Normalize(prompt)
	for _, kw := range s.Cfg.AuthorKeywords {
		if kw = textx.Normalize(strings.TrimSpace(kw)); kw != "" && strings.Contains(clean, kw) {
			return true
		}
	}
	return false
}

// handleLookup answers weather/time/date questions, asking for a location
// first when none can be resolved.
func (s *ChatService) handleLookup(ctx context.Context, sess domain.Session, prompt, lang string, it intent.Intent, req ChatRequest) (ChatReply, error) {
	reply := ChatReply{SessionID: sess.ID}

	// A session waiting on a location treats this prompt as the answer: the
	// pending intent is re-derived from the last classifiable user turn.
	if sess.PendingLocation && it == intent.General {
		it = pendingIntent(sess.History)
	}

	loc := strings.TrimSpace(req.Location)
	if loc == "" {
		// Prompt-extracted locations are trusted only in "City, Country" form;
		// a bare place name gets the localized ask instead, which is also what
		// the ask message tells the user to send.
		if extracted := intent.ExtractLocation(prompt); strings.Contains(extracted, ",") {
			loc = extracted
		}
	}
	if loc == "" && sess.PendingLocation && intent.Classify(prompt) == intent.General {
		// bare "Paris, France" style follow-up
		loc = strings.TrimSpace(prompt)
	}
	if loc == "" {
		loc = sess.LastLocation
	}

	// Time and date can be answered from a client-supplied IANA zone without
	// any location at all. Weather cannot.
	if loc == "" && req.TimeZone != "" && it != intent.Weather {
		if tz, err := time.LoadLocation(req.TimeZone); err == nil {
			text := s.formatClock(it, lang, req.TimeZone, s.now().In(tz))
			return s.respond(ctx, sess, reply, prompt, text, "")
		}
		slog.Warn("ignoring invalid client time zone", slog.String("time_zone", req.TimeZone))
	}

	if loc == "" {
		if err := s.Sessions.SetPendingLocation(ctx, sess.ID, true); err != nil {
			return reply, fmt.Errorf("%w: %v", domain.ErrInternal, err)
		}
		ask := askLocation[lang]
		if err := s.Sessions.AppendHistory(ctx, sess.ID,
			domain.Message{Role: domain.RoleUser, Content: prompt},
			domain.Message{Role: domain.RoleAssistant, Content: ask},
		); err != nil {
			return reply, fmt.Errorf("%w: %v", domain.ErrInternal, err)
		}
		reply.Text = ask
		return reply, nil
	}

	w, err := s.Weather.Fetch(ctx, loc)
	if err != nil {
		// session history and remembered location stay intact
		return reply, fmt.Errorf("%w: %s", domain.ErrLocationNotFound, locationError[lang])
	}

	var text string
	switch it {
	case intent.Weather:
		text = s.formatWeather(lang, w)
	default:
		local := s.now().UTC().Add(time.Duration(w.TZOffsetSec) * time.Second)
		text = s.formatClock(it, lang, w.Name, local)
	}
	return s.respond(ctx, sess, reply, prompt, text, loc)
}

// respond persists the exchange, remembers the location, clears the pending
// flag, and returns the composed reply.
func (s *ChatService) respond(ctx context.Context, sess domain.Session, reply ChatReply, prompt, text, loc string) (ChatReply, error) {
	if err := s.Sessions.AppendHistory(ctx, sess.ID,
		domain.Message{Role: domain.RoleUser, Content: prompt},
		domain.Message{Role: domain.RoleAssistant, Content: text},
	); err != nil {
		return reply, fmt.Errorf("%w: %v", domain.ErrInternal, err)
	}
	if loc != "" {
		if err := s.Sessions.SetLastLocation(ctx, sess.ID, loc); err != nil {
			return reply, fmt.Errorf("%w: %v", domain.ErrInternal, err)
		}
	}
	if sess.PendingLocation {
		if err := s.Sessions.SetPendingLocation(ctx, sess.ID, false); err != nil {
			return reply, fmt.Errorf("%w: %v", domain.ErrInternal, err)
		}
	}
	reply.Text = text
	return reply, nil
}

// handleGeneral sends the conversation to the model and records both turns.
func (s *ChatService) handleGeneral(ctx context.Context, sess domain.Session, prompt, lang string) (ChatReply, error) {
	reply := ChatReply{SessionID: sess.ID}

	msgs := []domain.Message{{Role: domain.RoleSystem, Content: persona[lang]}}
	if sess.LastLocation != "" {
		msgs = append(msgs, domain.Message{Role: domain.RoleSystem, Content: locationNote[lang] + sess.LastLocation})
	}
	msgs = append(msgs, s.prepareHistory(sess.History)...)
	msgs = append(msgs, domain.Message{Role: domain.RoleUser, Content: textx.Truncate(prompt, s.Cfg.MaxPromptChars)})
	msgs = s.capByTokens(msgs)

	res, err := s.Model.Complete(ctx, msgs, domain.CompletionOptions{})
	if err != nil {
		return reply, err
	}

	if err := s.Sessions.AppendHistory(ctx, sess.ID,
		domain.Message{Role: domain.RoleUser, Content: prompt},
		domain.Message{Role: domain.RoleAssistant, Content: res.Text},
	); err != nil {
		return reply, fmt.Errorf("%w: %v", domain.ErrInternal, err)
	}

	reply.Text = res.Text
	reply.UsedFallback = res.UsedFallback
	return reply, nil
}

// prepareHistory caps the outbound context window: last MaxHistory turns, each
// truncated to its role's character budget. Stored history is never trimmed.
func (s *ChatService) prepareHistory(history []domain.Message) []domain.Message {
	if s.Cfg.MaxHistory > 0 && len(history) > s.Cfg.MaxHistory {
		history = history[len(history)-s.Cfg.MaxHistory:]
	}
	out := make([]domain.Message, 0, len(history))
	for _, m := range history {
		budget := s.Cfg.MaxCharsUser
		if m.Role == domain.RoleAssistant {
			budget = s.Cfg.MaxCharsAssistant
		}
		out = append(out, domain.Message{Role: m.Role, Content: textx.Truncate(m.Content, budget)})
	}
	return out
}

// capByTokens drops the oldest history turns until the outbound context fits
// the token budget. System prompts and the current user prompt always stay.
func (s *ChatService) capByTokens(msgs []domain.Message) []domain.Message {
	if s.Cfg.ContextTokenBudget <= 0 || len(msgs) < 3 {
		return msgs
	}
	total := 0
	for _, m := range msgs {
		total += s.Tokens.CountMessage(m.Role, m.Content, s.Cfg.ModelPrimary)
	}
	// index of the first droppable (history) message
	first := 1
	if len(msgs) > 1 && msgs[1].Role == domain.RoleSystem {
		first = 2
	}
	for total > s.Cfg.ContextTokenBudget && len(msgs) > first+1 {
		total -= s.Tokens.CountMessage(msgs[first].Role, msgs[first].Content, s.Cfg.ModelPrimary)
		msgs = append(msgs[:first], msgs[first+1:]...)
	}
	return msgs
}

// pendingIntent re-derives what a waiting session originally asked for by
// scanning history for the newest classifiable user turn.
func pendingIntent(history []domain.Message) intent.Intent {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role != domain.RoleUser {
			continue
		}
		if it := intent.Classify(history[i].Content); it != intent.General {
			return it
		}
	}
	return intent.Weather
}
