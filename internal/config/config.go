// Package config defines configuration parsing and helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds all application configuration parsed from environment variables.
type Config struct {
	AppEnv string `env:"APP_ENV" envDefault:"dev"`
	Port   int    `env:"PORT" envDefault:"8080"`

	// Model provider
	OpenAIAPIKey        string        `env:"OPENAI_API_KEY"`
	OpenAIBaseURL       string        `env:"OPENAI_BASE_URL" envDefault:"https://api.openai.com/v1"`
	ModelPrimary        string        `env:"MODEL_PRIMARY" envDefault:"gpt-4.1-mini"`
	ModelFallback       string        `env:"MODEL_FALLBACK" envDefault:"gpt-4o-mini"`
	ModelTimeout        time.Duration `env:"MODEL_TIMEOUT" envDefault:"30s"`
	ModelMaxRetries     int           `env:"MODEL_MAX_RETRIES" envDefault:"2"`
	ModelBackoffInitial time.Duration `env:"MODEL_BACKOFF_INITIAL" envDefault:"300ms"`
	ModelMaxOutputTok   int           `env:"MODEL_MAX_OUTPUT_TOKENS" envDefault:"800"`
	ModelTemperature    float64       `env:"MODEL_TEMPERATURE" envDefault:"0.8"`

	// Weather provider
	OpenWeatherAPIKey  string        `env:"OPENWEATHER_API_KEY"`
	OpenWeatherBaseURL string        `env:"OPENWEATHER_BASE_URL" envDefault:"https://api.openweathermap.org"`
	WeatherTimeout     time.Duration `env:"WEATHER_TIMEOUT" envDefault:"10s"`

	// Sessions. RedisAddr empty selects the in-memory store; set it to share
	// sessions across instances.
	SessionTTL time.Duration `env:"SESSION_TTL" envDefault:"72h"`
	RedisAddr  string        `env:"REDIS_ADDR"`

	// Outbound model context shaping
	MaxHistory         int `env:"MAX_HISTORY" envDefault:"50"`
	MaxCharsUser       int `env:"MAX_CHARS_USER" envDefault:"9000"`
	MaxCharsAssistant  int `env:"MAX_CHARS_ASSISTANT" envDefault:"9000"`
	MaxPromptChars     int `env:"MAX_PROMPT_CHARS" envDefault:"1600"`
	ContextTokenBudget int `env:"CONTEXT_TOKEN_BUDGET" envDefault:"6000"`

	// HTTP surface
	MaxInflight           int           `env:"MAX_INFLIGHT" envDefault:"6"`
	RateLimitPerMin       int           `env:"RATE_LIMIT_PER_MIN" envDefault:"30"`
	CORSAllowOrigins      string        `env:"CORS_ALLOW_ORIGINS" envDefault:"https://aurorael.vercel.app,http://localhost:3000,http://127.0.0.1:3000"`
	HTTPReadTimeout       time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"15s"`
	HTTPWriteTimeout      time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"60s"`
	HTTPIdleTimeout       time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"60s"`
	ServerShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// Observability
	OTLPEndpoint    string `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:""`
	OTELServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"chat-backend"`

	// AuthorKeywords triggers the fixed author-identity reply on any
	// diacritic/case-insensitive substring match. Comma separated.
	AuthorKeywords []string `env:"AUTHOR_KEYWORDS" envSeparator:"," envDefault:"quien te creo,quien te hizo,tu creador,who made you,who created you,your creator,adrian corro"`
	// AuthorVideoID accompanies the author reply.
	AuthorVideoID string `env:"AUTHOR_VIDEO_ID" envDefault:"jOSO3AAIUzM"`
}

// Load parses environment variables into a Config.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("op=config.Load: %w", err)
	}
	return cfg, nil
}

// IsDev reports whether the app is running in development mode.
func (c Config) IsDev() bool { return strings.ToLower(c.AppEnv) == "dev" }

// IsProd reports whether the app is running in production mode.
func (c Config) IsProd() bool { return strings.ToLower(c.AppEnv) == "prod" }

// IsTest reports whether the app is running in test mode.
func (c Config) IsTest() bool { return strings.ToLower(c.AppEnv) == "test" }

// GetModelBackoffInitial returns the first transient-retry delay, shortened in
// test environments so suites stay fast.
func (c Config) GetModelBackoffInitial() time.Duration {
	if c.IsTest() {
		return 10 * time.Millisecond
	}
	return c.ModelBackoffInitial
}
