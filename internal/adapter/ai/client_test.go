package ai_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aurorael/chat-backend/internal/adapter/ai"
	"github.com/aurorael/chat-backend/internal/config"
	"github.com/aurorael/chat-backend/internal/domain"
)

func testConfig(baseURL string) config.Config {
	return config.Config{
		AppEnv:              "test",
		OpenAIAPIKey:        "test-key",
		OpenAIBaseURL:       baseURL,
		ModelPrimary:        "gpt-4.1-mini",
		ModelFallback:       "gpt-4o-mini",
		ModelTimeout:        2 * time.Second,
		ModelMaxRetries:     2,
		ModelBackoffInitial: 50 * time.Millisecond,
		ModelMaxOutputTok:   800,
		ModelTemperature:    0.8,
	}
}

func chatJSON(content string) string {
	b, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{{"message": map[string]string{"content": content}}},
	})
	return string(b)
}

func modelOf(t *testing.T, r *http.Request) string {
	t.Helper()
	var body struct {
		Model string `json:"model"`
	}
	require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
	return body.Model
}

func TestComplete_PrimarySuccess(t *testing.T) {
	t.Parallel()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "gpt-4.1-mini", modelOf(t, r))
		_, _ = w.Write([]byte(chatJSON("hola mundo")))
	}))
	defer ts.Close()

	c := ai.New(testConfig(ts.URL))
	res, err := c.Complete(context.Background(), []domain.Message{{Role: domain.RoleUser, Content: "hola"}}, domain.CompletionOptions{})
	require.NoError(t, err)
	assert.Equal(t, "hola mundo", res.Text)
	assert.False(t, res.UsedFallback)
}

func TestComplete_RateLimitNeverFallsBack(t *testing.T) {
	t.Parallel()
	var calls int64
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
		w.Header().Set("Retry-After", "17")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"Too many requests","type":"rate_limit_exceeded"}}`))
	}))
	defer ts.Close()

	c := ai.New(testConfig(ts.URL))
	_, err := c.Complete(context.Background(), []domain.Message{{Role: domain.RoleUser, Content: "x"}}, domain.CompletionOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUpstreamRateLimit)

	var rle *domain.RateLimitError
	require.True(t, errors.As(err, &rle))
	assert.Equal(t, 17*time.Second, rle.RetryAfter)
	assert.EqualValues(t, 1, atomic.LoadInt64(&calls), "rate limit must not retry or fall back")
}

func TestComplete_InsufficientQuotaIsRateLimit(t *testing.T) {
	t.Parallel()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"message":"You exceeded your current quota","code":"insufficient_quota"}}`))
	}))
	defer ts.Close()

	c := ai.New(testConfig(ts.URL))
	_, err := c.Complete(context.Background(), []domain.Message{{Role: domain.RoleUser, Content: "x"}}, domain.CompletionOptions{})
	assert.ErrorIs(t, err, domain.ErrUpstreamRateLimit)
}

func TestComplete_TransientRetriesThenSucceeds(t *testing.T) {
	t.Parallel()
	var calls int64
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if atomic.AddInt64(&calls, 1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(chatJSON("back up")))
	}))
	defer ts.Close()

	cfg := testConfig(ts.URL)
	cfg.AppEnv = "prod" // use the configured 50ms backoff, not the test shortcut
	c := ai.New(cfg)

	start := time.Now()
	res, err := c.Complete(context.Background(), []domain.Message{{Role: domain.RoleUser, Content: "x"}}, domain.CompletionOptions{})
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, "back up", res.Text)
	assert.False(t, res.UsedFallback)
	assert.EqualValues(t, 3, atomic.LoadInt64(&calls))
	// two retries with 50ms then 100ms exponential backoff
	assert.GreaterOrEqual(t, elapsed, 150*time.Millisecond)
}

func TestComplete_TransientExhaustedFallsBack(t *testing.T) {
	t.Parallel()
	var primaryCalls, fallbackCalls int64
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if modelOf(t, r) == "gpt-4.1-mini" {
			atomic.AddInt64(&primaryCalls, 1)
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		atomic.AddInt64(&fallbackCalls, 1)
		_, _ = w.Write([]byte(chatJSON("fallback says hi")))
	}))
	defer ts.Close()

	c := ai.New(testConfig(ts.URL))
	res, err := c.Complete(context.Background(), []domain.Message{{Role: domain.RoleUser, Content: "x"}}, domain.CompletionOptions{})
	require.NoError(t, err)
	assert.True(t, res.UsedFallback)
	assert.Equal(t, "fallback says hi", res.Text)
	assert.EqualValues(t, 3, atomic.LoadInt64(&primaryCalls), "initial attempt plus two retries")
	assert.EqualValues(t, 1, atomic.LoadInt64(&fallbackCalls))
}

func TestComplete_NonTransientFailureFallsBackImmediately(t *testing.T) {
	t.Parallel()
	var primaryCalls int64
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if modelOf(t, r) == "gpt-4.1-mini" {
			atomic.AddInt64(&primaryCalls, 1)
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"message":"bad request"}}`))
			return
		}
		_, _ = w.Write([]byte(chatJSON("rescued")))
	}))
	defer ts.Close()

	c := ai.New(testConfig(ts.URL))
	res, err := c.Complete(context.Background(), []domain.Message{{Role: domain.RoleUser, Content: "x"}}, domain.CompletionOptions{})
	require.NoError(t, err)
	assert.True(t, res.UsedFallback)
	assert.EqualValues(t, 1, atomic.LoadInt64(&primaryCalls), "non-transient failures must not retry the primary")
}

func TestComplete_FallbackRateLimitPropagates(t *testing.T) {
	t.Parallel()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if modelOf(t, r) == "gpt-4.1-mini" {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":{"message":"boom"}}`))
			return
		}
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"slow down","retry_after":5}}`))
	}))
	defer ts.Close()

	c := ai.New(testConfig(ts.URL))
	_, err := c.Complete(context.Background(), []domain.Message{{Role: domain.RoleUser, Content: "x"}}, domain.CompletionOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUpstreamRateLimit)
	var rle *domain.RateLimitError
	require.True(t, errors.As(err, &rle))
	assert.Equal(t, 5*time.Second, rle.RetryAfter)
}

func TestComplete_BothFailSurfacesUpstreamError(t *testing.T) {
	t.Parallel()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"server exploded"}}`))
	}))
	defer ts.Close()

	c := ai.New(testConfig(ts.URL))
	_, err := c.Complete(context.Background(), []domain.Message{{Role: domain.RoleUser, Content: "x"}}, domain.CompletionOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUpstream)
	assert.Contains(t, err.Error(), "server exploded")
}

func TestComplete_TimeoutIsTransient(t *testing.T) {
	t.Parallel()
	var primaryCalls int64
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if modelOf(t, r) == "gpt-4.1-mini" {
			atomic.AddInt64(&primaryCalls, 1)
			time.Sleep(200 * time.Millisecond)
			_, _ = w.Write([]byte(chatJSON("too late")))
			return
		}
		_, _ = w.Write([]byte(chatJSON("fallback fast")))
	}))
	defer ts.Close()

	cfg := testConfig(ts.URL)
	cfg.ModelTimeout = 50 * time.Millisecond
	cfg.ModelMaxRetries = 1
	c := ai.New(cfg)

	res, err := c.Complete(context.Background(), []domain.Message{{Role: domain.RoleUser, Content: "x"}}, domain.CompletionOptions{})
	require.NoError(t, err)
	assert.True(t, res.UsedFallback)
	assert.EqualValues(t, 2, atomic.LoadInt64(&primaryCalls), "timeout retries as transient before fallback")
}

func TestComplete_MissingAPIKey(t *testing.T) {
	t.Parallel()
	c := ai.New(config.Config{OpenAIBaseURL: "http://unused", ModelTimeout: time.Second})
	_, err := c.Complete(context.Background(), nil, domain.CompletionOptions{})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}
