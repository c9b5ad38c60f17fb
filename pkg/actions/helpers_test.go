package actions

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/harun/shinimi/pkg/clock"
	"github.com/harun/shinimi/pkg/corpus"
	"github.com/harun/shinimi/pkg/session"
	"github.com/harun/shinimi/pkg/translate"
	"github.com/harun/shinimi/pkg/weather"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

var (
	greetingLines = []string{"Hi there!", "Hello friend.", "Hey, good to see you."}
	jokeLines     = []string{"Joke one.", "Joke two.", "Joke three.", "Joke four."}
)

func writeCorpus(t *testing.T) *corpus.Corpus {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		corpus.Greetings: "Hi there!\nHello friend.\nHey, good to see you.\n",
		corpus.Jokes:     "Joke one.\nJoke two.\nJoke three.\nJoke four.\n",
		corpus.Languages: "French,fr\nGerman,de\nSpanish,es\n",
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
	}
	return corpus.New(dir)
}

type fakeWeather struct {
	cond  *weather.Conditions
	err   error
	calls []string
}

func (f *fakeWeather) Current(_ context.Context, place string) (*weather.Conditions, error) {
	f.calls = append(f.calls, place)
	if f.err != nil {
		return nil, f.err
	}
	return f.cond, nil
}

type fakeTranslator struct {
	err    error
	target string
	text   string
}

func (f *fakeTranslator) Translate(_ context.Context, text, target string) (*translate.Result, error) {
	f.text, f.target = text, target
	if f.err != nil {
		return nil, f.err
	}
	return &translate.Result{Text: "[" + target + "] " + text}, nil
}

type delivery struct {
	recipient string
	text      string
}

type fakeDeliverer struct {
	mu        sync.Mutex
	err       error
	delivered []delivery
}

func (f *fakeDeliverer) Deliver(_ context.Context, recipientID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delivered = append(f.delivered, delivery{recipient: recipientID, text: text})
	return f.err
}

func (f *fakeDeliverer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.delivered)
}

var errUpstream = errors.New("upstream unavailable")

func fixedClock() *clock.Resolver {
	at := time.Date(2024, time.January, 15, 17, 30, 0, 0, time.UTC)
	return clock.NewResolver(clock.WithNow(func() time.Time { return at }))
}

func newTestRegistry(t *testing.T, w WeatherService, tr Translator, d Deliverer) (*Registry, *session.Store) {
	t.Helper()
	store := session.NewStore(session.WithLogger(zerolog.Nop()))
	c := writeCorpus(t)
	reg := NewRegistry(zerolog.Nop())
	require.NoError(t, RegisterBuiltins(reg, Dependencies{
		Corpus:     c,
		Languages:  c,
		Weather:    w,
		Clock:      fixedClock(),
		Translator: tr,
		Deliverer:  d,
		Sessions:   store,
		Logger:     zerolog.Nop(),
	}))
	return reg, store
}
