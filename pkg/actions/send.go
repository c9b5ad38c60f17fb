package actions

import (
	"context"
	"errors"

	"github.com/harun/shinimi/internal/observability"
	"github.com/harun/shinimi/internal/tracing"
	"github.com/harun/shinimi/pkg/session"
	"github.com/rs/zerolog"
)

// SessionLookup resolves a session id to its session.
type SessionLookup interface {
	Get(id string) (session.Session, error)
}

// Send is the send action: it delivers the request text to the user who owns
// the session.
type Send struct {
	sessions  SessionLookup
	deliverer Deliverer
	logger    zerolog.Logger
}

// NewSend creates the send action.
func NewSend(sessions SessionLookup, deliverer Deliverer, logger zerolog.Logger) *Send {
	return &Send{sessions: sessions, deliverer: deliverer, logger: logger}
}

// Definition implements Action.
func (a *Send) Definition() Definition {
	return Definition{
		Name:        "send",
		Description: "Send a text reply to the user",
		Kind:        KindSender,
	}
}

// Send implements Sender. It never returns an error: an unknown session or a
// failed delivery is logged and the action completes.
func (a *Send) Send(ctx context.Context, req Request) error {
	logger := tracing.LoggerFromContext(ctx, a.logger)

	sess, err := a.sessions.Get(req.SessionID)
	if err != nil || sess.ExternalUserID == "" {
		if err == nil {
			err = errors.New("session has no external user id")
		}
		logger.Error().Err(err).Str("session_id", req.SessionID).Msg("Couldn't find user for session")
		return nil
	}
	if req.Text == "" {
		logger.Debug().Str("session_id", req.SessionID).Msg("Nothing to send")
		return nil
	}

	if err := a.deliverer.Deliver(ctx, sess.ExternalUserID, req.Text); err != nil {
		observability.RecordDelivery(false)
		logger.Error().Err(err).Str("recipient_id", sess.ExternalUserID).Msg("Failed to forward response")
		return nil
	}
	observability.RecordDelivery(true)
	return nil
}
