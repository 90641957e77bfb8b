package weather_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aurorael/chat-backend/internal/adapter/weather"
	"github.com/aurorael/chat-backend/internal/config"
	"github.com/aurorael/chat-backend/internal/domain"
)

const madridJSON = `{
	"name": "Madrid",
	"sys": {"country": "ES"},
	"main": {"temp": 21.5, "feels_like": 20.1},
	"weather": [{"description": "cielo claro"}],
	"timezone": 3600
}`

func newClient(t *testing.T, h http.HandlerFunc) *weather.Client {
	t.Helper()
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)
	cfg := config.Config{OpenWeatherBaseURL: ts.URL, OpenWeatherAPIKey: "test-key", WeatherTimeout: 2 * time.Second}
	return weather.New(cfg)
}

func TestFetch_DirectQuery(t *testing.T) {
	t.Parallel()
	var gotQ string
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/data/2.5/weather", r.URL.Path)
		gotQ = r.URL.Query().Get("q")
		assert.Equal(t, "metric", r.URL.Query().Get("units"))
		assert.Equal(t, "test-key", r.URL.Query().Get("appid"))
		_, _ = w.Write([]byte(madridJSON))
	})

	rep, err := c.Fetch(context.Background(), "Madrid")
	require.NoError(t, err)
	assert.Equal(t, "Madrid", gotQ)
	assert.Equal(t, "Madrid", rep.Name)
	assert.Equal(t, "ES", rep.Country)
	assert.InDelta(t, 21.5, rep.TempC, 0.001)
	assert.InDelta(t, 20.1, rep.FeelsLikeC, 0.001)
	assert.Equal(t, "cielo claro", rep.Description)
	assert.Equal(t, 3600, rep.TZOffsetSec)
}

func TestFetch_CountryCodeRetryWithoutGeocoding(t *testing.T) {
	t.Parallel()
	var queries []string
	geocodeCalls := 0
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/geo/1.0/direct" {
			geocodeCalls++
			_, _ = w.Write([]byte(`[]`))
			return
		}
		q := r.URL.Query().Get("q")
		queries = append(queries, q)
		if q == "Madrid,ES" {
			_, _ = w.Write([]byte(madridJSON))
			return
		}
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"cod":"404","message":"city not found"}`))
	})

	rep, err := c.Fetch(context.Background(), "Madrid, España")
	require.NoError(t, err)
	assert.Equal(t, "Madrid", rep.Name)
	assert.Equal(t, []string{"Madrid, España", "Madrid,ES"}, queries)
	assert.Zero(t, geocodeCalls, "country-code path must not invoke geocoding")
}

func TestFetch_GeocodingFallback(t *testing.T) {
	t.Parallel()
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/geo/1.0/direct":
			_, _ = w.Write([]byte(`[{"name":"Madrid","lat":40.4168,"lon":-3.7038,"country":"ES"}]`))
		case "/data/2.5/weather":
			if r.URL.Query().Get("lat") != "" {
				assert.Equal(t, "40.4168", r.URL.Query().Get("lat"))
				_, _ = w.Write([]byte(madridJSON))
				return
			}
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"cod":"404","message":"city not found"}`))
		}
	})

	rep, err := c.Fetch(context.Background(), "Villa de Madrid")
	require.NoError(t, err)
	assert.Equal(t, "Madrid", rep.Name)
}

func TestFetch_AllPathsFail_CombinedError(t *testing.T) {
	t.Parallel()
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/geo/1.0/direct" {
			_, _ = w.Write([]byte(`[]`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"cod":"404","message":"city not found"}`))
	})

	_, err := c.Fetch(context.Background(), "Nowhereville")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrLocationNotFound)
	assert.Contains(t, err.Error(), "city not found")
	assert.Contains(t, err.Error(), "no match")
}

func TestFetch_NonJSONBodyIsFailure(t *testing.T) {
	t.Parallel()
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/geo/1.0/direct" {
			_, _ = w.Write([]byte(`[]`))
			return
		}
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`<html>bad gateway</html>`))
	})

	_, err := c.Fetch(context.Background(), "Madrid")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestFetch_MissingAPIKey(t *testing.T) {
	t.Parallel()
	c := weather.New(config.Config{OpenWeatherBaseURL: "http://unused", WeatherTimeout: time.Second})
	_, err := c.Fetch(context.Background(), "Madrid")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}
