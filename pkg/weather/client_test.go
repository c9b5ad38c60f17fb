package weather

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCurrent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/data/2.5/weather", r.URL.Path)
		assert.Equal(t, "Boston", r.URL.Query().Get("q"))
		assert.Equal(t, "test-key", r.URL.Query().Get("appid"))
		assert.Equal(t, "imperial", r.URL.Query().Get("units"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"name":"Boston","main":{"temp":71.6},"weather":[{"description":"clear sky"},{"description":"haze"}]}`))
	}))
	defer server.Close()

	client := NewClient("test-key", server.URL, time.Second)
	cond, err := client.Current(context.Background(), " Boston ")
	require.NoError(t, err)

	assert.Equal(t, "Boston", cond.Place)
	assert.InDelta(t, 71.6, cond.Temperature, 0.001)
	assert.Equal(t, "clear sky", cond.Description)
	assert.Equal(t, "°F", cond.Symbol())
}

func TestCurrentUnits(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "metric", r.URL.Query().Get("units"))
		_, _ = w.Write([]byte(`{"name":"Paris","main":{"temp":20},"weather":[{"description":"rain"}]}`))
	}))
	defer server.Close()

	cond, err := NewClient("k", server.URL, time.Second, WithUnits("metric")).Current(context.Background(), "Paris")
	require.NoError(t, err)
	assert.Equal(t, "°C", cond.Symbol())
}

func TestCurrentErrors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		notFound bool
	}{
		{"unknown city", http.StatusNotFound, `{"cod":"404","message":"city not found"}`, true},
		{"bad key", http.StatusUnauthorized, `{"cod":401,"message":"Invalid API key"}`, false},
		{"malformed body", http.StatusOK, `not json`, false},
		{"no conditions", http.StatusOK, `{"name":"X","main":{"temp":1},"weather":[]}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := NewClient("k", server.URL, time.Second).Current(context.Background(), "Nowhere")
			require.Error(t, err)
			assert.Equal(t, tt.notFound, errors.Is(err, ErrLocationNotFound))
		})
	}
}

func TestCurrentEmptyPlace(t *testing.T) {
	_, err := NewClient("k", "", time.Second).Current(context.Background(), "  ")
	assert.Error(t, err)
}

func TestCurrentHonoursContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := NewClient("k", server.URL, 5*time.Second).Current(ctx, "Boston")
	assert.Error(t, err)
}
