package actions

import (
	"context"
	"fmt"
	"time"

	"github.com/harun/shinimi/pkg/corpus"
	"github.com/harun/shinimi/pkg/translate"
	"github.com/harun/shinimi/pkg/weather"
	"github.com/rs/zerolog"
)

// LinePicker returns a random line of a named corpus file.
type LinePicker interface {
	Pick(name string) (string, error)
}

// LanguageTable maps a language name to its code.
type LanguageTable interface {
	LanguageCode(language string) (code string, found bool, err error)
}

// WeatherService looks up current conditions for a place.
type WeatherService interface {
	Current(ctx context.Context, place string) (*weather.Conditions, error)
}

// TimeSource returns the current time in the zone of a place.
type TimeSource interface {
	Now(place string) (time.Time, error)
}

// Translator translates text into a target language code.
type Translator interface {
	Translate(ctx context.Context, text, target string) (*translate.Result, error)
}

// Dependencies are the collaborators of the built-in actions.
type Dependencies struct {
	Corpus     LinePicker
	Languages  LanguageTable
	Weather    WeatherService
	Clock      TimeSource
	Translator Translator
	Deliverer  Deliverer
	Sessions   SessionLookup
	Logger     zerolog.Logger
}

// RegisterBuiltins registers greet, tellJokes, getForecast, getCurrentTime,
// translate and send.
func RegisterBuiltins(r *Registry, deps Dependencies) error {
	builtins := []Action{
		NewCorpusLine("greet", "Pick a greeting to say to the user", corpus.Greetings, KeyGreetings, deps.Corpus),
		NewCorpusLine("tellJokes", "Pick a joke to tell the user", corpus.Jokes, KeyJokes, deps.Corpus),
		NewForecast(deps.Weather, deps.Logger),
		NewCurrentTime(deps.Clock, deps.Logger),
		NewTranslate(deps.Languages, deps.Translator, deps.Logger),
		NewSend(deps.Sessions, deps.Deliverer, deps.Logger),
	}
	for _, a := range builtins {
		if err := r.Register(a); err != nil {
			return fmt.Errorf("failed to register builtin actions: %w", err)
		}
	}
	return nil
}
