package actions

import (
	"context"
	"fmt"
	"math"

	"github.com/harun/shinimi/pkg/conversation"
	"github.com/rs/zerolog"
)

// ForecastFailure is written to the forecast key when the lookup fails.
const ForecastFailure = "Mission unaccomplished. Bad Shinimi :(. Please try again."

// Forecast is the getForecast action.
type Forecast struct {
	weather WeatherService
	logger  zerolog.Logger
}

// NewForecast creates the getForecast action.
func NewForecast(weather WeatherService, logger zerolog.Logger) *Forecast {
	return &Forecast{weather: weather, logger: logger}
}

// Definition implements Action.
func (a *Forecast) Definition() Definition {
	return Definition{
		Name:        "getForecast",
		Description: "Look up the current weather for a location",
		Kind:        KindTransformer,
		Entities:    []string{EntityLocation},
		Writes:      []string{KeyForecast, KeyMissingLocation},
	}
}

// Transform implements Transformer.
func (a *Forecast) Transform(ctx context.Context, req Request) (conversation.Context, error) {
	c := req.Context
	loc, ok := req.Entities.FirstValue(EntityLocation)
	if !ok {
		c.Set(KeyMissingLocation, true)
		c.Delete(KeyForecast)
		return c, nil
	}

	c.Delete(KeyMissingLocation)
	cond, err := a.weather.Current(ctx, loc)
	if err != nil {
		a.logger.Warn().Err(err).Str("location", loc).Msg("Weather lookup failed")
		c.Set(KeyForecast, ForecastFailure)
		return c, nil
	}

	c.Set(KeyForecast, fmt.Sprintf("%d%s with %s in %s", int(math.Round(cond.Temperature)), cond.Symbol(), cond.Description, loc))
	return c, nil
}
