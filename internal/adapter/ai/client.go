// Package ai implements the model provider port against an OpenAI-compatible
// chat API with a primary/fallback model strategy: transient failures retry
// the primary with exponential backoff, rate-limit failures return
// immediately, anything else gets one shot at the fallback model.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/aurorael/chat-backend/internal/adapter/observability"
	"github.com/aurorael/chat-backend/internal/config"
	"github.com/aurorael/chat-backend/internal/domain"
	"github.com/aurorael/chat-backend/pkg/textx"
)

// Client implements domain.ModelProvider.
type Client struct {
	cfg config.Config
	hc  *http.Client
}

// New constructs a Client. The HTTP client carries no timeout of its own;
// every attempt is bounded by a per-attempt context deadline instead.
func New(cfg config.Config) *Client {
	return &Client{
		cfg: cfg,
		hc:  &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}
}

var _ domain.ModelProvider = (*Client)(nil)

// providerError is a classified single-attempt failure.
type providerError struct {
	status     int
	code       string
	message    string
	rateLimit  bool
	transient  bool
	retryAfter time.Duration
}

func (e *providerError) Error() string {
	return fmt.Sprintf("provider status %d code %q: %s", e.status, e.code, e.message)
}

// Complete calls the primary model, retrying transient failures up to the
// configured cap, then tries the fallback model exactly once. Rate-limit
// failures from either model surface as *domain.RateLimitError without
// touching the fallback.
func (c *Client) Complete(ctx context.Context, msgs []domain.Message, opts domain.CompletionOptions) (domain.ModelResult, error) {
	if c.cfg.OpenAIAPIKey == "" {
		return domain.ModelResult{}, fmt.Errorf("%w: OPENAI_API_KEY missing", domain.ErrInvalidArgument)
	}

	var primaryErr *providerError
	text, err := c.callWithRetry(ctx, c.cfg.ModelPrimary, msgs, opts)
	if err == nil {
		return domain.ModelResult{Text: text}, nil
	}
	if !errors.As(err, &primaryErr) {
		// context cancelled above the attempt level
		return domain.ModelResult{}, fmt.Errorf("%w: %v", domain.ErrUpstream, err)
	}
	if primaryErr.rateLimit {
		return domain.ModelResult{}, &domain.RateLimitError{RetryAfter: primaryErr.retryAfter, Message: primaryErr.message}
	}

	slog.Warn("primary model unusable, trying fallback",
		slog.String("primary", c.cfg.ModelPrimary),
		slog.String("fallback", c.cfg.ModelFallback),
		slog.Any("error", primaryErr))

	text, err = c.callOnce(ctx, c.cfg.ModelFallback, msgs, opts)
	if err == nil {
		observability.AIRequestsTotal.WithLabelValues(c.cfg.ModelFallback, "fallback_ok").Inc()
		return domain.ModelResult{Text: text, UsedFallback: true}, nil
	}
	var fbErr *providerError
	if errors.As(err, &fbErr) && fbErr.rateLimit {
		return domain.ModelResult{}, &domain.RateLimitError{RetryAfter: fbErr.retryAfter, Message: fbErr.message}
	}
	if primaryErr.transient {
		return domain.ModelResult{}, fmt.Errorf("%w: primary %v; fallback %v", domain.ErrUpstreamTimeout, primaryErr, err)
	}
	return domain.ModelResult{}, fmt.Errorf("%w: primary %v; fallback %v", domain.ErrUpstream, primaryErr, err)
}

// callWithRetry retries model strictly for transient failures, with
// exponential backoff starting at the configured initial interval.
func (c *Client) callWithRetry(ctx context.Context, model string, msgs []domain.Message, opts domain.CompletionOptions) (string, error) {
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = c.cfg.GetModelBackoffInitial()
	expo.Multiplier = 2
	expo.RandomizationFactor = 0
	expo.MaxElapsedTime = 0

	var text string
	op := func() error {
		out, err := c.callOnce(ctx, model, msgs, opts)
		if err != nil {
			var pe *providerError
			if errors.As(err, &pe) && pe.transient {
				return err // retryable
			}
			return backoff.Permanent(err)
		}
		text = out
		return nil
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(expo, uint64(c.cfg.ModelMaxRetries)), ctx)
	if err := backoff.Retry(op, bo); err != nil {
		return "", err
	}
	return text, nil
}

// callOnce performs a single bounded attempt against one model.
func (c *Client) callOnce(ctx context.Context, model string, msgs []domain.Message, opts domain.CompletionOptions) (string, error) {
	maxTokens := opts.MaxOutputTokens
	if maxTokens <= 0 {
		maxTokens = c.cfg.ModelMaxOutputTok
	}
	temperature := opts.Temperature
	if temperature == 0 {
		temperature = c.cfg.ModelTemperature
	}

	payload := map[string]any{
		"model":       model,
		"temperature": temperature,
		"max_tokens":  maxTokens,
		"messages":    msgs,
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return "", backoff.Permanent(err)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.ModelTimeout)
	defer cancel()

	start := time.Now()
	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, c.cfg.OpenAIBaseURL+"/chat/completions", bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.OpenAIAPIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	observability.AIRequestDuration.WithLabelValues(model).Observe(time.Since(start).Seconds())
	if err != nil {
		observability.AIRequestsTotal.WithLabelValues(model, "transport_error").Inc()
		// Timeouts, resets, and other transport failures are all worth a
		// retry; an aborted in-flight call is transient, not a rate limit.
		return "", &providerError{transient: true, message: err.Error()}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		observability.AIRequestsTotal.WithLabelValues(model, "transport_error").Inc()
		return "", &providerError{transient: true, message: err.Error()}
	}

	if pe := classifyStatus(resp, body); pe != nil {
		outcome := "error"
		switch {
		case pe.rateLimit:
			outcome = "rate_limit"
		case pe.transient:
			outcome = "transient"
		}
		observability.AIRequestsTotal.WithLabelValues(model, outcome).Inc()
		slog.Warn("model call failed",
			slog.String("model", model),
			slog.Int("status", pe.status),
			slog.String("code", pe.code),
			slog.String("outcome", outcome))
		return "", pe
	}

	observability.AIRequestsTotal.WithLabelValues(model, "ok").Inc()
	return extractText(body), nil
}

// apiErrorBody matches the error envelope of OpenAI-compatible providers.
type apiErrorBody struct {
	Error struct {
		Message    string  `json:"message"`
		Type       string  `json:"type"`
		Code       string  `json:"code"`
		RetryAfter float64 `json:"retry_after"`
	} `json:"error"`
}

// classifyStatus normalizes a non-2xx response into a providerError, nil for
// success. Rate-limit detection checks the status, provider error codes, and
// message heuristics so quota exhaustion is never mistaken for a server fault.
func classifyStatus(resp *http.Response, body []byte) *providerError {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	var eb apiErrorBody
	_ = json.Unmarshal(body, &eb)
	message := eb.Error.Message
	if message == "" {
		message = textx.Truncate(string(body), 256)
	}
	code := eb.Error.Code
	if code == "" {
		code = eb.Error.Type
	}

	pe := &providerError{status: resp.StatusCode, code: code, message: message}
	switch {
	case resp.StatusCode == http.StatusTooManyRequests || isRateLimitCode(code) || isRateLimitMessage(message):
		pe.rateLimit = true
		pe.retryAfter = retryAfterOf(resp, eb)
	case resp.StatusCode == http.StatusBadGateway,
		resp.StatusCode == http.StatusServiceUnavailable,
		resp.StatusCode == http.StatusGatewayTimeout:
		pe.transient = true
	}
	return pe
}

func isRateLimitCode(code string) bool {
	switch code {
	case "insufficient_quota", "rate_limit", "rate_limit_exceeded", "429":
		return true
	}
	return false
}

func isRateLimitMessage(msg string) bool {
	lower := textx.Normalize(msg)
	for _, marker := range []string{"rate limit", "rate_limit", "too many requests", "insufficient_quota", "quota"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func retryAfterOf(resp *http.Response, eb apiErrorBody) time.Duration {
	if ra := resp.Header.Get("Retry-After"); ra != "" {
		if secs, err := strconv.Atoi(ra); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	if eb.Error.RetryAfter > 0 {
		return time.Duration(eb.Error.RetryAfter * float64(time.Second))
	}
	return 0
}

// extractText pulls the assistant text out of any of the provider response
// shapes seen in the wild: the Responses API nested output array, a direct
// output_text field, or the chat-completions choice/message/content shape.
// Unknown shapes degrade to a truncated JSON dump rather than an error.
func extractText(body []byte) string {
	var responses struct {
		OutputText string `json:"output_text"`
		Output     []struct {
			Content []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"content"`
		} `json:"output"`
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &responses); err == nil {
		for _, out := range responses.Output {
			for _, item := range out.Content {
				if item.Text != "" {
					return item.Text
				}
			}
		}
		if responses.OutputText != "" {
			return responses.OutputText
		}
		if len(responses.Choices) > 0 && responses.Choices[0].Message.Content != "" {
			return responses.Choices[0].Message.Content
		}
	}
	return textx.Truncate(string(body), 400)
}
