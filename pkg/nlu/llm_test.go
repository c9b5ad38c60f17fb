package nlu

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/harun/shinimi/pkg/actions"
	"github.com/harun/shinimi/pkg/conversation"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedProvider struct {
	mu        sync.Mutex
	responses []*LLMResponse
	err       error
	requests  []LLMRequest
}

func (p *scriptedProvider) Provider() string { return "scripted" }

func (p *scriptedProvider) Call(_ context.Context, req LLMRequest) (*LLMResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, req)
	if p.err != nil {
		return nil, p.err
	}
	i := len(p.requests) - 1
	if i >= len(p.responses) {
		i = len(p.responses) - 1
	}
	return p.responses[i], nil
}

func TestLLMRunner_ToolLoop(t *testing.T) {
	provider := &scriptedProvider{responses: []*LLMResponse{
		{ToolCalls: []ToolCall{{ID: "call_1", Name: "getForecast", Parameters: map[string]interface{}{"location": "Boston"}}}},
		{Content: "It's 54°F with light rain in Boston."},
	}}
	exec := &fakeExecutor{}
	runner := NewLLMRunner(provider, Options{Model: "test-model", MaxTokens: 256}, exec, zerolog.Nop())

	final, err := runner.RunActions(context.Background(), "s1", "weather in Boston?", conversation.New())
	require.NoError(t, err)

	assert.Equal(t, "54°F with light rain in Boston", final[actions.KeyForecast])
	assert.Equal(t, []string{"getForecast", "send"}, exec.names())
	sent, _ := exec.last("send")
	assert.Equal(t, "It's 54°F with light rain in Boston.", sent.text)

	require.Len(t, provider.requests, 2)
	first := provider.requests[0]
	assert.Equal(t, "test-model", first.Model)
	assert.Equal(t, 256, first.MaxTokens)

	var toolNames []string
	for _, tool := range first.Tools {
		toolNames = append(toolNames, tool.Name)
	}
	assert.Equal(t, []string{"getForecast", "greet"}, toolNames, "senders are not offered as tools")

	second := provider.requests[1]
	require.Len(t, second.Messages, 3)
	assert.Equal(t, RoleAssistant, second.Messages[1].Role)
	assert.Equal(t, RoleTool, second.Messages[2].Role)
	assert.Equal(t, "call_1", second.Messages[2].ToolCallID)
	assert.Contains(t, second.Messages[2].Content, "light rain")
	assert.Contains(t, second.SystemPrompt, "light rain")
}

func TestLLMRunner_ToolErrorsGoBackToModel(t *testing.T) {
	provider := &scriptedProvider{responses: []*LLMResponse{
		{ToolCalls: []ToolCall{{ID: "c1", Name: "bookFlight"}}},
		{Content: "I can't book flights."},
	}}
	exec := &fakeExecutor{}
	runner := NewLLMRunner(provider, Options{}, exec, zerolog.Nop())

	_, err := runner.RunActions(context.Background(), "s1", "book a flight", conversation.New())
	require.NoError(t, err)

	require.Len(t, provider.requests, 2)
	assert.Contains(t, provider.requests[1].Messages[2].Content, "error:")
}

func TestLLMRunner_EmptyReplySendsNothing(t *testing.T) {
	provider := &scriptedProvider{responses: []*LLMResponse{{Content: "  "}}}
	exec := &fakeExecutor{}
	runner := NewLLMRunner(provider, Options{}, exec, zerolog.Nop())

	_, err := runner.RunActions(context.Background(), "s1", "...", conversation.New())
	require.NoError(t, err)
	assert.Empty(t, exec.names())
}

func TestLLMRunner_StepLimit(t *testing.T) {
	provider := &scriptedProvider{responses: []*LLMResponse{
		{ToolCalls: []ToolCall{{ID: "c", Name: "greet"}}},
	}}
	runner := NewLLMRunner(provider, Options{MaxSteps: 2}, &fakeExecutor{}, zerolog.Nop())

	_, err := runner.RunActions(context.Background(), "s1", "hi", conversation.New())
	assert.ErrorIs(t, err, ErrTooManySteps)
	assert.Len(t, provider.requests, 2)
}

func TestLLMRunner_ProviderError(t *testing.T) {
	provider := &scriptedProvider{err: errors.New("rate limited")}
	runner := NewLLMRunner(provider, Options{}, &fakeExecutor{}, zerolog.Nop())

	final, err := runner.RunActions(context.Background(), "s1", "hi", conversation.New())
	assert.Error(t, err)
	assert.Nil(t, final)
}

func TestToolEntities(t *testing.T) {
	entities, err := toolEntities(map[string]interface{}{"location": "Paris", "language": "", "count": 3})
	require.NoError(t, err)

	loc, ok := entities.FirstValue("location")
	assert.True(t, ok)
	assert.Equal(t, "Paris", loc)
	_, ok = entities.FirstValue("language")
	assert.False(t, ok)
	count, _ := entities.FirstValue("count")
	assert.Equal(t, "3", count)

	empty, err := toolEntities(nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
