package actions

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/harun/shinimi/pkg/conversation"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type funcTransformer struct {
	name string
	fn   func(req Request) (conversation.Context, error)
}

func (f funcTransformer) Definition() Definition { return Definition{Name: f.name} }

func (f funcTransformer) Transform(_ context.Context, req Request) (conversation.Context, error) {
	return f.fn(req)
}

type notAnAction struct{}

func (notAnAction) Definition() Definition { return Definition{Name: "bogus"} }

func TestRegistry_Register(t *testing.T) {
	reg := NewRegistry(zerolog.Nop())
	noop := funcTransformer{name: "noop", fn: func(req Request) (conversation.Context, error) { return req.Context, nil }}

	require.NoError(t, reg.Register(noop))
	assert.True(t, reg.Has("noop"))
	assert.Error(t, reg.Register(noop), "duplicate name")
	assert.Error(t, reg.Register(funcTransformer{}), "empty name")
	assert.Error(t, reg.Register(notAnAction{}), "neither kind")
	assert.False(t, reg.Has("bogus"))
}

func TestRegistry_Definitions(t *testing.T) {
	reg, _ := newTestRegistry(t, &fakeWeather{}, &fakeTranslator{}, &fakeDeliverer{})

	defs := reg.Definitions()
	names := make([]string, 0, len(defs))
	kinds := map[string]Kind{}
	for _, d := range defs {
		names = append(names, d.Name)
		kinds[d.Name] = d.Kind
	}

	assert.Equal(t, []string{"getCurrentTime", "getForecast", "greet", "send", "tellJokes", "translate"}, names)
	assert.Equal(t, KindSender, kinds["send"])
	assert.Equal(t, KindTransformer, kinds["greet"])
}

func TestRegistry_UnknownAction(t *testing.T) {
	reg := NewRegistry(zerolog.Nop())
	c := conversation.Context{"k": "v"}

	res, err := reg.Execute(context.Background(), "missing", Request{Context: c})
	assert.ErrorIs(t, err, ErrUnknownAction)
	assert.Equal(t, c, res.Context)
}

func TestRegistry_FailedTransformLeavesContextUntouched(t *testing.T) {
	reg := NewRegistry(zerolog.Nop())
	require.NoError(t, reg.Register(funcTransformer{name: "half", fn: func(req Request) (conversation.Context, error) {
		req.Context.Set("partial", true)
		return nil, errors.New("boom")
	}}))

	original := conversation.Context{"forecast": "sunny"}
	res, err := reg.Execute(context.Background(), "half", Request{Context: original})

	require.Error(t, err)
	assert.False(t, original.Has("partial"))
	assert.Equal(t, original, res.Context)
}

func TestRegistry_RecoversPanics(t *testing.T) {
	reg := NewRegistry(zerolog.Nop())
	require.NoError(t, reg.Register(funcTransformer{name: "explode", fn: func(Request) (conversation.Context, error) {
		panic("kaboom")
	}}))

	_, err := reg.Execute(context.Background(), "explode", Request{Context: conversation.New()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kaboom")
}

func TestRegistry_NilContextFromTransformer(t *testing.T) {
	reg := NewRegistry(zerolog.Nop())
	require.NoError(t, reg.Register(funcTransformer{name: "nil", fn: func(Request) (conversation.Context, error) {
		return nil, nil
	}}))

	res, err := reg.Execute(context.Background(), "nil", Request{Context: conversation.Context{"a": 1}})
	require.NoError(t, err)
	assert.NotNil(t, res.Context)
	assert.Empty(t, res.Context)
}

func TestRegistry_Observers(t *testing.T) {
	reg, _ := newTestRegistry(t, &fakeWeather{}, &fakeTranslator{}, &fakeDeliverer{})

	var mu sync.Mutex
	var seen []Execution
	reg.Observe(func(e Execution) {
		mu.Lock()
		seen = append(seen, e)
		mu.Unlock()
	})

	_, err := reg.Execute(context.Background(), "greet", Request{SessionID: "s1", Context: conversation.New()})
	require.NoError(t, err)

	require.Len(t, seen, 1)
	assert.Equal(t, "greet", seen[0].Name)
	assert.Equal(t, KindTransformer, seen[0].Kind)
	assert.Equal(t, "s1", seen[0].SessionID)
	assert.NoError(t, seen[0].Err)
}
