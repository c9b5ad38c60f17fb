package actions

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/harun/shinimi/internal/observability"
	"github.com/harun/shinimi/internal/tracing"
	"github.com/harun/shinimi/pkg/conversation"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

// Execution is reported to observers after every action invocation.
type Execution struct {
	Name      string
	Kind      Kind
	SessionID string
	Duration  time.Duration
	Err       error
}

// Observer receives Execution reports.
type Observer func(Execution)

// Registry holds the named actions.
type Registry struct {
	mu        sync.RWMutex
	actions   map[string]Action
	observers []Observer
	logger    zerolog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger zerolog.Logger) *Registry {
	observability.EnsureRegistered()
	return &Registry{
		actions: make(map[string]Action),
		logger:  logger.With().Str("component", "actions").Logger(),
	}
}

// Register adds an action. The action must be a Transformer or a Sender and
// its name must be unused.
func (r *Registry) Register(action Action) error {
	def := action.Definition()
	if def.Name == "" {
		return fmt.Errorf("action name cannot be empty")
	}

	switch action.(type) {
	case Transformer, Sender:
	default:
		return fmt.Errorf("action %s is neither a transformer nor a sender", def.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.actions[def.Name]; exists {
		return fmt.Errorf("action %s already registered", def.Name)
	}
	r.actions[def.Name] = action
	r.logger.Debug().Str("action", def.Name).Str("kind", string(kindOf(action))).Msg("Action registered")
	return nil
}

// Observe adds an observer called after every execution.
func (r *Registry) Observe(fn Observer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers = append(r.observers, fn)
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.actions[name]
	return ok
}

// Definitions returns every registered definition sorted by name.
func (r *Registry) Definitions() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]Definition, 0, len(r.actions))
	for _, a := range r.actions {
		def := a.Definition()
		def.Kind = kindOf(a)
		defs = append(defs, def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Execute runs the named action. Transformers get a private copy of the
// request Context; on error the caller's Context is the one to keep. Senders
// return the request Context unchanged with Done set.
func (r *Registry) Execute(ctx context.Context, name string, req Request) (Result, error) {
	r.mu.RLock()
	action, ok := r.actions[name]
	observers := append([]Observer(nil), r.observers...)
	r.mu.RUnlock()

	if !ok {
		r.logger.Warn().Str("action", name).Str("session_id", req.SessionID).Msg("Unknown action requested")
		return Result{Context: req.Context}, fmt.Errorf("%w: %s", ErrUnknownAction, name)
	}

	kind := kindOf(action)
	ctx, span := tracing.StartSpan(ctx, tracing.TracerActions, "action."+name,
		attribute.String("action", name),
		attribute.String("kind", string(kind)),
		attribute.String("session_id", req.SessionID),
	)
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, r.logger).With().Str("action", name).Logger()

	start := time.Now()
	result, err := invoke(ctx, action, req)
	duration := time.Since(start)

	observability.RecordAction(name, duration, err == nil)
	if err != nil {
		tracing.RecordError(span, err)
		logger.Error().Err(err).Dur("duration", duration).Msg("Action failed")
		result = Result{Context: req.Context}
	} else {
		logger.Debug().Dur("duration", duration).Msg("Action executed")
	}

	exec := Execution{Name: name, Kind: kind, SessionID: req.SessionID, Duration: duration, Err: err}
	for _, fn := range observers {
		fn(exec)
	}
	return result, err
}

func invoke(ctx context.Context, action Action, req Request) (result Result, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("action %s panicked: %v", action.Definition().Name, rec)
		}
	}()

	switch a := action.(type) {
	case Transformer:
		local := req
		local.Context = req.Context.Clone()
		next, err := a.Transform(ctx, local)
		if err != nil {
			return Result{}, err
		}
		if next == nil {
			next = conversation.New()
		}
		return Result{Context: next}, nil
	case Sender:
		if err := a.Send(ctx, req); err != nil {
			return Result{}, err
		}
		return Result{Context: req.Context, Done: true}, nil
	default:
		return Result{}, fmt.Errorf("action %s has unsupported type %T", action.Definition().Name, action)
	}
}

func kindOf(action Action) Kind {
	if _, ok := action.(Transformer); ok {
		return KindTransformer
	}
	return KindSender
}
