// Package tokencount estimates token counts for outbound model context
// budgeting. It uses tiktoken-go, the Go port of OpenAI's tokenizer, with a
// rough chars-per-token estimate when an encoding cannot be loaded (tiktoken
// may need to download encoding data on first use).
package tokencount

import (
	"strings"
	"sync"

	"log/slog"

	tiktoken "github.com/pkoukk/tiktoken-go"
)

// Counter provides thread-safe token counting for chat models.
type Counter struct {
	mu    sync.RWMutex
	cache map[string]*tiktoken.Tiktoken
}

// NewCounter creates a token counter.
func NewCounter() *Counter {
	return &Counter{cache: make(map[string]*tiktoken.Tiktoken)}
}

func (c *Counter) encodingFor(model string) (*tiktoken.Tiktoken, error) {
	normalized := normalizeModelName(model)

	c.mu.RLock()
	enc, ok := c.cache[normalized]
	c.mu.RUnlock()
	if ok {
		return enc, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if enc, ok := c.cache[normalized]; ok {
		return enc, nil
	}

	enc, err := tiktoken.EncodingForModel(normalized)
	if err != nil {
		slog.Debug("falling back to cl100k_base encoding", slog.String("model", model), slog.Any("error", err))
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, err
		}
	}
	c.cache[normalized] = enc
	return enc, nil
}

// normalizeModelName maps model ids to tiktoken-compatible names. The gpt-4
// encoding is a reasonable approximation for every model this backend talks to.
func normalizeModelName(model string) string {
	model = strings.ToLower(model)
	switch {
	case strings.Contains(model, "gpt-3.5"):
		return "gpt-3.5-turbo"
	default:
		return "gpt-4"
	}
}

// Count returns the token count of text for model, or a chars/4 estimate when
// no encoding is available.
func (c *Counter) Count(text, model string) int {
	enc, err := c.encodingFor(model)
	if err != nil {
		return len(text) / 4
	}
	return len(enc.Encode(text, nil, nil))
}

// CountMessage returns the token cost of one chat turn including the
// per-message framing overhead used by OpenAI-compatible APIs.
func (c *Counter) CountMessage(role, content, model string) int {
	// 3 tokens per message plus 1 for the role field.
	return 4 + c.Count(role, model) + c.Count(content, model)
}
