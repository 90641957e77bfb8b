// Package intent classifies prompts by language and question type using
// keyword and regex heuristics. These are best-effort cues, not NLP: a false
// positive on an ambiguous prompt is accepted behavior.
package intent

import (
	"regexp"
	"strings"
)

// Intent is the resolved question type for one prompt.
type Intent int

const (
	General Intent = iota
	Weather
	Time
	Date
)

func (i Intent) String() string {
	switch i {
	case Weather:
		return "weather"
	case Time:
		return "time"
	case Date:
		return "date"
	default:
		return "general"
	}
}

var (
	englishMarkers = []string{"who", "what", "how", "why", "time", "weather", "date"}
	spanishMarkers = []string{"que", "como", "quien", "hora", "clima", "fecha", "tiempo"}

	weatherRe = regexp.MustCompile(`clima|temperatura|frio|frío|weather|cold|hot`)
	timeRe    = regexp.MustCompile(`hora|what time|current time`)
	dateRe    = regexp.MustCompile(`fecha|qué día|what date|today`)

	// "en <frase>" keeps the accented character class; "in <phrase>" is plain
	// ASCII. Both capture 2-80 chars of place-like text.
	locationEsRe = regexp.MustCompile(`\ben\s+([a-záéíóúñü0-9 ,.-]{2,80})`)
	locationEnRe = regexp.MustCompile(`\bin\s+([a-z0-9 ,.-]{2,80})`)

	trailingPunct = regexp.MustCompile(`[?¡!]+$`)
)

// DetectLanguage returns "en" when the text contains an English marker word
// and no Spanish marker; everything else, including ties, defaults to "es".
func DetectLanguage(text string) string {
	lower := strings.ToLower(text)
	hasAny := func(words []string) bool {
		for _, w := range words {
			if strings.Contains(lower, w) {
				return true
			}
		}
		return false
	}
	if hasAny(englishMarkers) && !hasAny(spanishMarkers) {
		return "en"
	}
	return "es"
}

// IsWeatherQuestion reports whether t asks about weather conditions.
func IsWeatherQuestion(t string) bool { return weatherRe.MatchString(strings.ToLower(t)) }

// IsTimeQuestion reports whether t asks for the current time.
func IsTimeQuestion(t string) bool { return timeRe.MatchString(strings.ToLower(t)) }

// IsDateQuestion reports whether t asks for today's date.
func IsDateQuestion(t string) bool { return dateRe.MatchString(strings.ToLower(t)) }

// Classify resolves one intent per prompt. A prompt can match several
// predicates; precedence is weather, then time, then date.
func Classify(prompt string) Intent {
	switch {
	case IsWeatherQuestion(prompt):
		return Weather
	case IsTimeQuestion(prompt):
		return Time
	case IsDateQuestion(prompt):
		return Date
	default:
		return General
	}
}

// ExtractLocation pulls a location phrase from the first "en <frase>" or
// "in <phrase>" occurrence, stripping trailing punctuation. Returns "" when
// nothing matches. This is a heuristic, not a geocoder.
func ExtractLocation(prompt string) string {
	lower := strings.ToLower(prompt)
	m := locationEsRe.FindStringSubmatch(lower)
	if m == nil {
		m = locationEnRe.FindStringSubmatch(lower)
	}
	if m == nil {
		return ""
	}
	return trailingPunct.ReplaceAllString(strings.TrimSpace(m[1]), "")
}
