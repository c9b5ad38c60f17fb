package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/harun/shinimi/internal/observability"
	"github.com/harun/shinimi/internal/tracing"
	"github.com/harun/shinimi/pkg/actions"
	"github.com/harun/shinimi/pkg/commandqueue"
	"github.com/harun/shinimi/pkg/conversation"
	"github.com/harun/shinimi/pkg/dedup"
	"github.com/harun/shinimi/pkg/events"
	"github.com/harun/shinimi/pkg/nlu"
	"github.com/harun/shinimi/pkg/session"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

// FallbackReply is sent for messages the bot cannot read.
const FallbackReply = "Sorry I can only process text messages for now."

// Outcome classifies how a message was handled.
type Outcome string

const (
	OutcomeProcessed Outcome = "processed"
	OutcomeFallback  Outcome = "fallback"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeFailed    Outcome = "failed"
)

// Inbound is one message from a user.
type Inbound struct {
	SenderID       string
	MessageID      string
	Text           string
	HasAttachments bool
}

// SessionStore is the part of session.Store the dispatcher uses.
type SessionStore interface {
	FindOrCreate(externalUserID string) (id string, created bool)
	Get(id string) (session.Session, error)
	Update(id string, c conversation.Context) error
}

// Publisher receives activity events.
type Publisher interface {
	Publish(event string, data interface{})
}

// Config wires a Dispatcher. Dedup and Publisher are optional.
type Config struct {
	Sessions  SessionStore
	Runner    nlu.Runner
	Deliverer actions.Deliverer
	Lanes     *commandqueue.CommandQueue
	Dedup     dedup.Store
	Publisher Publisher
	// LaneWarnAfter logs a warning when a message waits this long behind
	// earlier messages of the same session.
	LaneWarnAfter time.Duration
	Logger        zerolog.Logger
}

// Dispatcher routes inbound messages through the NLU engine.
type Dispatcher struct {
	sessions      SessionStore
	runner        nlu.Runner
	deliverer     actions.Deliverer
	lanes         *commandqueue.CommandQueue
	dedup         dedup.Store
	publisher     Publisher
	laneWarnAfter time.Duration
	logger        zerolog.Logger
}

// New validates cfg and creates a Dispatcher.
func New(cfg Config) (*Dispatcher, error) {
	observability.EnsureRegistered()

	if cfg.Sessions == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if cfg.Runner == nil {
		return nil, fmt.Errorf("runner is required")
	}
	if cfg.Deliverer == nil {
		return nil, fmt.Errorf("deliverer is required")
	}
	if cfg.Lanes == nil {
		return nil, fmt.Errorf("command queue is required")
	}

	publisher := cfg.Publisher
	if publisher == nil {
		publisher = nopPublisher{}
	}

	return &Dispatcher{
		sessions:      cfg.Sessions,
		runner:        cfg.Runner,
		deliverer:     cfg.Deliverer,
		lanes:         cfg.Lanes,
		dedup:         cfg.Dedup,
		publisher:     publisher,
		laneWarnAfter: cfg.LaneWarnAfter,
		logger:        cfg.Logger.With().Str("component", "dispatch").Logger(),
	}, nil
}

// Dispatch handles one inbound message and blocks until its action sequence
// has finished. The returned error is informational; the session is always
// left consistent.
func (d *Dispatcher) Dispatch(ctx context.Context, msg Inbound) (Outcome, error) {
	if tracing.GetTraceID(ctx) == "" {
		ctx = tracing.NewRequestContext(ctx)
	}
	ctx = tracing.WithSenderID(ctx, msg.SenderID)
	ctx = tracing.WithMessageID(ctx, msg.MessageID)
	ctx, span := tracing.StartSpan(ctx, tracing.TracerDispatch, "dispatch.message",
		attribute.String("sender_id", msg.SenderID),
		attribute.String("message_id", msg.MessageID),
	)
	defer span.End()

	start := time.Now()
	outcome, err := d.dispatch(ctx, msg)
	duration := time.Since(start)

	span.SetAttributes(attribute.String("outcome", string(outcome)))
	tracing.RecordError(span, err)
	observability.RecordDispatch(string(outcome), duration)

	logger := tracing.LoggerFromContext(ctx, d.logger)
	if err != nil {
		logger.Error().Err(err).Str("outcome", string(outcome)).Dur("duration", duration).Msg("Dispatch failed")
	} else {
		logger.Debug().Str("outcome", string(outcome)).Dur("duration", duration).Msg("Dispatch finished")
	}
	return outcome, err
}

func (d *Dispatcher) dispatch(ctx context.Context, msg Inbound) (Outcome, error) {
	if msg.SenderID == "" {
		return OutcomeIgnored, fmt.Errorf("sender id cannot be empty")
	}

	if d.dedup != nil && msg.MessageID != "" {
		logger := tracing.LoggerFromContext(ctx, d.logger)
		duplicate, err := d.dedup.Mark(ctx, msg.MessageID)
		if err != nil {
			logger.Warn().Err(err).Msg("Dedup check failed, processing anyway")
		} else if duplicate {
			observability.RecordDedupHit()
			logger.Info().Msg("Duplicate message skipped")
			return OutcomeDuplicate, nil
		}
	}

	sessionID, created := d.sessions.FindOrCreate(msg.SenderID)
	ctx = tracing.WithSessionID(ctx, sessionID)
	logger := tracing.LoggerFromContext(ctx, d.logger)
	if created {
		logger.Info().Msg("New conversation")
	}

	if msg.HasAttachments {
		if err := d.deliverer.Deliver(ctx, msg.SenderID, FallbackReply); err != nil {
			logger.Error().Err(err).Msg("Failed to send fallback reply")
		}
		return OutcomeFallback, nil
	}

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return OutcomeIgnored, nil
	}

	d.publisher.Publish(events.EventDispatchStarted, map[string]interface{}{
		"session_id": sessionID,
		"message_id": msg.MessageID,
	})

	_, err := d.lanes.Enqueue(ctx, laneName(sessionID), func(taskCtx context.Context) (interface{}, error) {
		return nil, d.run(taskCtx, sessionID, text)
	}, &commandqueue.TaskOptions{WarnAfter: d.laneWarnAfter})
	if err != nil {
		d.publisher.Publish(events.EventDispatchFailed, map[string]interface{}{
			"session_id": sessionID,
			"message_id": msg.MessageID,
			"error":      err.Error(),
		})
		return OutcomeFailed, err
	}

	d.publisher.Publish(events.EventDispatchCompleted, map[string]interface{}{
		"session_id": sessionID,
		"message_id": msg.MessageID,
	})
	return OutcomeProcessed, nil
}

// run executes one action sequence. It is the only writer of the session
// Context and runs inside the session's lane.
func (d *Dispatcher) run(ctx context.Context, sessionID, text string) error {
	sess, err := d.sessions.Get(sessionID)
	if err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}

	final, err := d.runner.RunActions(ctx, sessionID, text, sess.Context)
	if err != nil {
		return fmt.Errorf("failed to run actions: %w", err)
	}
	if final == nil {
		final = conversation.New()
	}

	if err := d.sessions.Update(sessionID, final); err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			return fmt.Errorf("session expired during run: %w", err)
		}
		return fmt.Errorf("failed to store context: %w", err)
	}
	return nil
}

func laneName(sessionID string) string {
	return "session:" + sessionID
}

type nopPublisher struct{}

func (nopPublisher) Publish(string, interface{}) {}
