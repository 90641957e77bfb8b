// Package weather implements the weather provider port against the
// OpenWeather API, escalating through three lookup strategies before giving
// up: direct name query, country-code rewritten query, then geocoding plus a
// coordinate query.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/aurorael/chat-backend/internal/adapter/observability"
	"github.com/aurorael/chat-backend/internal/config"
	"github.com/aurorael/chat-backend/internal/domain"
)

// Client implements domain.WeatherProvider.
type Client struct {
	baseURL string
	apiKey  string
	hc      *http.Client
}

// New constructs a Client from configuration.
func New(cfg config.Config) *Client {
	return &Client{
		baseURL: cfg.OpenWeatherBaseURL,
		apiKey:  cfg.OpenWeatherAPIKey,
		hc: &http.Client{
			Timeout:   cfg.WeatherTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

type currentWeather struct {
	Name string `json:"name"`
	Sys  struct {
		Country string `json:"country"`
	} `json:"sys"`
	Main struct {
		Temp      float64 `json:"temp"`
		FeelsLike float64 `json:"feels_like"`
	} `json:"main"`
	Weather []struct {
		Description string `json:"description"`
	} `json:"weather"`
	Timezone int    `json:"timezone"`
	Message  string `json:"message"`
}

type geoMatch struct {
	Name    string  `json:"name"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	Country string  `json:"country"`
}

// Fetch resolves location to a weather report, escalating through the lookup
// chain. The final error combines the direct-query and geocoding failures for
// diagnostics.
func (c *Client) Fetch(ctx context.Context, location string) (domain.WeatherReport, error) {
	if c.apiKey == "" {
		return domain.WeatherReport{}, fmt.Errorf("%w: OPENWEATHER_API_KEY missing", domain.ErrInvalidArgument)
	}

	rep, directErr := c.byName(ctx, location)
	if directErr == nil {
		observability.WeatherLookupsTotal.WithLabelValues("direct", "ok").Inc()
		return rep, nil
	}
	observability.WeatherLookupsTotal.WithLabelValues("direct", "error").Inc()

	if place, code, ok := splitPlaceCountry(location); ok {
		rep, err := c.byName(ctx, place+","+code)
		if err == nil {
			observability.WeatherLookupsTotal.WithLabelValues("country_code", "ok").Inc()
			return rep, nil
		}
		observability.WeatherLookupsTotal.WithLabelValues("country_code", "error").Inc()
	}

	rep, geoErr := c.byGeocoding(ctx, location)
	if geoErr == nil {
		observability.WeatherLookupsTotal.WithLabelValues("geocode", "ok").Inc()
		return rep, nil
	}
	observability.WeatherLookupsTotal.WithLabelValues("geocode", "error").Inc()

	slog.Warn("weather lookup exhausted",
		slog.String("location", location),
		slog.Any("direct_error", directErr),
		slog.Any("geocode_error", geoErr))
	return domain.WeatherReport{}, fmt.Errorf("%w: direct: %v; geocode: %v", domain.ErrLocationNotFound, directErr, geoErr)
}

func (c *Client) byName(ctx context.Context, q string) (domain.WeatherReport, error) {
	v := url.Values{"q": {q}, "units": {"metric"}, "appid": {c.apiKey}}
	return c.current(ctx, v)
}

func (c *Client) byCoords(ctx context.Context, lat, lon float64) (domain.WeatherReport, error) {
	v := url.Values{
		"lat":   {strconv.FormatFloat(lat, 'f', -1, 64)},
		"lon":   {strconv.FormatFloat(lon, 'f', -1, 64)},
		"units": {"metric"},
		"appid": {c.apiKey},
	}
	return c.current(ctx, v)
}

func (c *Client) byGeocoding(ctx context.Context, location string) (domain.WeatherReport, error) {
	v := url.Values{"q": {location}, "limit": {"1"}, "appid": {c.apiKey}}
	body, err := c.get(ctx, c.baseURL+"/geo/1.0/direct?"+v.Encode())
	if err != nil {
		return domain.WeatherReport{}, err
	}
	var matches []geoMatch
	if err := json.Unmarshal(body, &matches); err != nil {
		return domain.WeatherReport{}, fmt.Errorf("geocoding non-JSON body: %w", err)
	}
	if len(matches) == 0 {
		return domain.WeatherReport{}, fmt.Errorf("geocoding found no match for %q", location)
	}
	return c.byCoords(ctx, matches[0].Lat, matches[0].Lon)
}

func (c *Client) current(ctx context.Context, v url.Values) (domain.WeatherReport, error) {
	body, err := c.get(ctx, c.baseURL+"/data/2.5/weather?"+v.Encode())
	if err != nil {
		return domain.WeatherReport{}, err
	}
	var cw currentWeather
	if err := json.Unmarshal(body, &cw); err != nil {
		return domain.WeatherReport{}, fmt.Errorf("weather non-JSON body: %w", err)
	}
	rep := domain.WeatherReport{
		Name:        cw.Name,
		Country:     cw.Sys.Country,
		TempC:       cw.Main.Temp,
		FeelsLikeC:  cw.Main.FeelsLike,
		TZOffsetSec: cw.Timezone,
	}
	if len(cw.Weather) > 0 {
		rep.Description = cw.Weather[0].Description
	}
	return rep, nil
}

// get performs one HTTP call and returns the body for 2xx responses. Non-2xx
// responses become errors carrying the status and the provider's message.
func (c *Client) get(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var e struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(body, &e) != nil || e.Message == "" {
			return nil, fmt.Errorf("weather api status %d (non-JSON body)", resp.StatusCode)
		}
		return nil, fmt.Errorf("weather api status %d: %s", resp.StatusCode, e.Message)
	}
	return body, nil
}

var _ domain.WeatherProvider = (*Client)(nil)
