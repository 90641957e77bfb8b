package usecase

import (
	"fmt"
	"time"

	"github.com/aurorael/chat-backend/internal/domain"
	"github.com/aurorael/chat-backend/internal/intent"
)

// Fixed author-identity reply. Returned verbatim for any configured keyword
// match; the model is never consulted for it.
const authorReply = "AURORAEL fue creada por **Adrian Corro** en un proyecto filosófico-crítico. Si deseas ver su origen metafísico, te muestro un video."

var persona = map[string]string{
	"es": "Eres AURORAEL, una IA filósofa crítico-teórica (Frankfurt + Žižek + Lacan). Responde con precisión, profundidad y claridad.",
	"en": "You are AURORAEL, a critical-theory philosophical system. Respond with depth and precision.",
}

var locationNote = map[string]string{
	"es": "Ubicación conocida del usuario: ",
	"en": "Known user location: ",
}

var askLocation = map[string]string{
	"es": "¿De qué ciudad hablas? (Ciudad, País)",
	"en": "Which city do you mean? (City, Country)",
}

var locationError = map[string]string{
	"es": "No pude resolver esa ubicación. Intenta con \"Ciudad, País\".",
	"en": "I could not resolve that location. Try \"City, Country\".",
}

// weatherRemark returns the one-line reflective remark appended to weather
// answers, keyed by temperature band.
func weatherRemark(lang string, tempC float64) string {
	switch {
	case tempC < 10:
		if lang == "en" {
			return "The cold invites contemplation."
		}
		return "El frío invita a la contemplación."
	case tempC > 28:
		if lang == "en" {
			return "Heat dissolves certainties."
		}
		return "El calor disuelve las certezas."
	default:
		if lang == "en" {
			return "A mild day for clear thought."
		}
		return "Un día templado para el pensamiento claro."
	}
}

func (s *ChatService) formatWeather(lang string, w domain.WeatherReport) string {
	if lang == "en" {
		return fmt.Sprintf("In %s, %s: Temp %.1f°C, feels like %.1f°C. %s. %s",
			w.Name, w.Country, w.TempC, w.FeelsLikeC, w.Description, weatherRemark(lang, w.TempC))
	}
	return fmt.Sprintf("En %s, %s: Temp %.1f°C, sensación %.1f°C. %s. %s",
		w.Name, w.Country, w.TempC, w.FeelsLikeC, w.Description, weatherRemark(lang, w.TempC))
}

var (
	spanishWeekdays = [...]string{"domingo", "lunes", "martes", "miércoles", "jueves", "viernes", "sábado"}
	spanishMonths   = [...]string{"enero", "febrero", "marzo", "abril", "mayo", "junio",
		"julio", "agosto", "septiembre", "octubre", "noviembre", "diciembre"}
)

// spanishDate renders a full date; the time package only localizes to English.
func spanishDate(t time.Time) string {
	return fmt.Sprintf("%s, %d de %s de %d",
		spanishWeekdays[t.Weekday()], t.Day(), spanishMonths[t.Month()-1], t.Year())
}

// formatClock renders a time or date answer for a place name at a local
// instant.
func (s *ChatService) formatClock(it intent.Intent, lang, place string, local time.Time) string {
	if it == intent.Date {
		if lang == "en" {
			return fmt.Sprintf("Local date in %s: %s", place, local.Format("Monday, January 2, 2006"))
		}
		return fmt.Sprintf("Fecha local en %s: %s", place, spanishDate(local))
	}
	if lang == "en" {
		return fmt.Sprintf("Local time in %s: %s", place, local.Format("15:04:05"))
	}
	return fmt.Sprintf("Hora local en %s: %s", place, local.Format("15:04:05"))
}
