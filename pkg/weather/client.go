// Package weather fetches current conditions from the OpenWeatherMap API.
package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultBaseURL is the public OpenWeatherMap endpoint
const DefaultBaseURL = "https://api.openweathermap.org"

// ErrLocationNotFound is returned when the service does not know the place
var ErrLocationNotFound = errors.New("location not found")

// Conditions is the current weather at a place
type Conditions struct {
	Place       string  `json:"place"`
	Temperature float64 `json:"temperature"`
	Units       string  `json:"units"`
	Description string  `json:"description"`
}

// Symbol returns the temperature unit symbol for the conditions' unit system
func (c Conditions) Symbol() string {
	switch c.Units {
	case "metric":
		return "°C"
	case "standard":
		return "K"
	default:
		return "°F"
	}
}

// Client calls the current weather endpoint
type Client struct {
	apiKey     string
	baseURL    string
	units      string
	httpClient *http.Client
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithUnits sets the unit system (imperial, metric, standard)
func WithUnits(units string) Option {
	return func(c *Client) {
		if units != "" {
			c.units = units
		}
	}
}

// NewClient creates a weather client
func NewClient(apiKey, baseURL string, timeout time.Duration, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	c := &Client{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		units:      "imperial",
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type currentResponse struct {
	Name string `json:"name"`
	Main struct {
		Temp float64 `json:"temp"`
	} `json:"main"`
	Weather []struct {
		Description string `json:"description"`
	} `json:"weather"`
	Message string `json:"message"`
}

// Current returns current conditions for a place name
func (c *Client) Current(ctx context.Context, place string) (*Conditions, error) {
	place = strings.TrimSpace(place)
	if place == "" {
		return nil, fmt.Errorf("place cannot be empty")
	}

	q := url.Values{}
	q.Set("q", place)
	q.Set("appid", c.apiKey)
	q.Set("units", c.units)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/data/2.5/weather?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call weather API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrLocationNotFound, place)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("weather API error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var result currentResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(result.Weather) == 0 {
		return nil, fmt.Errorf("weather API returned no conditions for %s", place)
	}

	return &Conditions{
		Place:       result.Name,
		Temperature: result.Main.Temp,
		Units:       c.units,
		Description: result.Weather[0].Description,
	}, nil
}
