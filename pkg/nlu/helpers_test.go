package nlu

import (
	"context"
	"fmt"
	"sync"

	"github.com/harun/shinimi/pkg/actions"
)

type call struct {
	name     string
	entities map[string]string
	text     string
}

// fakeExecutor mimics the built-in actions closely enough for engine tests.
type fakeExecutor struct {
	mu    sync.Mutex
	calls []call
}

func (f *fakeExecutor) Definitions() []actions.Definition {
	return []actions.Definition{
		{Name: "getForecast", Description: "weather", Kind: actions.KindTransformer, Entities: []string{actions.EntityLocation}},
		{Name: "greet", Description: "greet", Kind: actions.KindTransformer},
		{Name: "send", Description: "send", Kind: actions.KindSender},
	}
}

func (f *fakeExecutor) Execute(_ context.Context, name string, req actions.Request) (actions.Result, error) {
	values := map[string]string{}
	for k := range req.Entities {
		v, _ := req.Entities.FirstValue(k)
		values[k] = v
	}
	f.mu.Lock()
	f.calls = append(f.calls, call{name: name, entities: values, text: req.Text})
	f.mu.Unlock()

	c := req.Context.Clone()
	switch name {
	case "send":
		return actions.Result{Context: req.Context, Done: true}, nil
	case "greet":
		c.Set(actions.KeyGreetings, "Hello friend.")
	case "tellJokes":
		c.Set(actions.KeyJokes, "A joke.")
	case "getForecast":
		loc, ok := req.Entities.FirstValue(actions.EntityLocation)
		if !ok {
			c.Set(actions.KeyMissingLocation, true)
			c.Delete(actions.KeyForecast)
			break
		}
		c.Delete(actions.KeyMissingLocation)
		c.Set(actions.KeyForecast, "54°F with light rain in "+loc)
	case "getCurrentTime":
		if _, ok := req.Entities.FirstValue(actions.EntityLocation); !ok {
			c.Set(actions.KeyMissingTimeZone, true)
			break
		}
		c.Set(actions.KeyCurrentTime, "12:30 PM (-05:00)")
	case "translate":
		phrase, _ := req.Entities.FirstValue(actions.EntityPhrase)
		lang, _ := req.Entities.FirstValue(actions.EntityLanguage)
		c.Set(actions.KeyNewVersion, fmt.Sprintf("%s (%s)", phrase, lang))
	default:
		return actions.Result{Context: req.Context}, fmt.Errorf("%w: %s", actions.ErrUnknownAction, name)
	}
	return actions.Result{Context: c}, nil
}

func (f *fakeExecutor) names() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		out = append(out, c.name)
	}
	return out
}

func (f *fakeExecutor) last(name string) (call, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.calls) - 1; i >= 0; i-- {
		if f.calls[i].name == name {
			return f.calls[i], true
		}
	}
	return call{}, false
}

var _ Executor = (*fakeExecutor)(nil)
