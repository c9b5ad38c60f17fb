package nlu

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/harun/shinimi/pkg/actions"
	"github.com/harun/shinimi/pkg/conversation"
	"github.com/rs/zerolog"
)

// DefaultMaxSteps bounds the engine round trips for one message.
const DefaultMaxSteps = 5

// ErrTooManySteps is returned when an engine keeps selecting actions past the
// step limit.
var ErrTooManySteps = errors.New("too many steps")

// Runner drives the action sequence for one inbound message.
type Runner interface {
	RunActions(ctx context.Context, sessionID, text string, c conversation.Context) (conversation.Context, error)
}

// Executor is the part of the action registry the engines use.
type Executor interface {
	Execute(ctx context.Context, name string, req actions.Request) (actions.Result, error)
	Definitions() []actions.Definition
}

// Steps counts engine round trips for one run.
type Steps struct {
	Max   int
	taken int
}

// Next consumes one step.
func (s *Steps) Next() error {
	limit := s.Max
	if limit <= 0 {
		limit = DefaultMaxSteps
	}
	if s.taken >= limit {
		return fmt.Errorf("%w: limit %d", ErrTooManySteps, limit)
	}
	s.taken++
	return nil
}

// Taken returns the number of steps consumed.
func (s *Steps) Taken() int {
	return s.taken
}

// Options selects and configures an engine.
type Options struct {
	Provider  string
	Token     string
	Model     string
	BaseURL   string
	MaxSteps  int
	MaxTokens int
	Timeout   time.Duration
}

// New builds the engine named by opts.Provider.
func New(opts Options, exec Executor, logger zerolog.Logger) (Runner, error) {
	switch opts.Provider {
	case "wit":
		return NewWitRunner(opts, exec, logger), nil
	case "anthropic":
		return NewLLMRunner(NewAnthropicProvider(opts.Token, opts.BaseURL, opts.Timeout), opts, exec, logger), nil
	case "openai":
		return NewLLMRunner(NewOpenAIProvider(opts.Token, opts.BaseURL, opts.Timeout), opts, exec, logger), nil
	case "pattern":
		return NewPatternRunner(exec, logger), nil
	default:
		return nil, fmt.Errorf("unsupported nlu provider: %s", opts.Provider)
	}
}
