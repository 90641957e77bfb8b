package textx_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aurorael/chat-backend/pkg/textx"
)

func TestNormalize_StripsDiacriticsAndCase(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "espana", textx.Normalize("España"))
	assert.Equal(t, "rio de janeiro", textx.Normalize("Río de Janeiro"))
	assert.Equal(t, "¿quien te creo?", textx.Normalize("¿Quién te creó?"))
}

func TestNormalize_PreservesPlainASCII(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "who made you", textx.Normalize("Who Made You"))
}

func TestTruncate(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "", textx.Truncate("", 10))
	assert.Equal(t, "short", textx.Truncate("short", 10))
	got := textx.Truncate(strings.Repeat("a", 20), 5)
	assert.Equal(t, "aaaaa…", got)
	// rune-safe: multibyte input must not be cut mid-rune
	assert.Equal(t, "ñañ…", textx.Truncate("ñañaña", 3))
}

func TestSanitize(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "hola", textx.Sanitize("  hola\x00\x01  "))
	assert.Equal(t, "a\nb", textx.Sanitize("a\nb"))
}
