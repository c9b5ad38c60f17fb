package session

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/harun/shinimi/internal/observability"
	"github.com/harun/shinimi/pkg/conversation"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ErrSessionNotFound indicates inconsistent session bookkeeping by the caller
var ErrSessionNotFound = errors.New("session not found")

// Session links an external user to their conversation state
type Session struct {
	ID             string               `json:"id"`
	ExternalUserID string               `json:"external_user_id"`
	Context        conversation.Context `json:"context"`
	CreatedAt      time.Time            `json:"created_at"`
	LastSeen       time.Time            `json:"last_seen"`
}

func (s *Session) snapshot() Session {
	out := *s
	out.Context = s.Context.Clone()
	return out
}

// Store is a process-local, concurrency-safe session registry
type Store struct {
	mu     sync.RWMutex
	byID   map[string]*Session
	byUser map[string]string

	newID  func() string
	now    func() time.Time
	logger zerolog.Logger
}

// Option configures a Store
type Option func(*Store)

// WithIDGenerator overrides the session id generator
func WithIDGenerator(fn func() string) Option {
	return func(s *Store) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// WithClock overrides the time source used for CreatedAt/LastSeen
func WithClock(fn func() time.Time) Option {
	return func(s *Store) {
		if fn != nil {
			s.now = fn
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// NewStore creates an empty store
func NewStore(opts ...Option) *Store {
	observability.EnsureRegistered()

	s := &Store{
		byID:   make(map[string]*Session),
		byUser: make(map[string]string),
		newID:  uuid.NewString,
		now:    time.Now,
		logger: log.Logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FindOrCreate returns the session id for externalUserID, creating a session with
// an empty context on first contact. created reports whether a new session was made.
// An existing session is marked as seen, so it cannot expire while its message is
// being handled.
func (s *Store) FindOrCreate(externalUserID string) (id string, created bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if id, ok := s.byUser[externalUserID]; ok {
		s.byID[id].LastSeen = now
		return id, false
	}

	sess := &Session{
		ID:             s.newID(),
		ExternalUserID: externalUserID,
		Context:        conversation.New(),
		CreatedAt:      now,
		LastSeen:       now,
	}
	s.byID[sess.ID] = sess
	s.byUser[externalUserID] = sess.ID

	observability.RecordSessionCreated()
	observability.SetActiveSessions(len(s.byID))

	s.logger.Debug().
		Str("session_id", sess.ID).
		Str("sender_id", externalUserID).
		Msg("Session created")

	return sess.ID, true
}

// Get returns a snapshot of the session. Mutating the returned Context has no
// effect on the store until it is passed to Update.
func (s *Store) Get(id string) (Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.byID[id]
	if !ok {
		return Session{}, s.notFound("get", id)
	}
	return sess.snapshot(), nil
}

// Update replaces the session context and marks the session as seen
func (s *Store) Update(id string, ctx conversation.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.byID[id]
	if !ok {
		return s.notFound("update", id)
	}
	sess.Context = ctx.Clone()
	sess.LastSeen = s.now()
	return nil
}

// Touch marks the session as seen without changing its context
func (s *Store) Touch(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.byID[id]
	if !ok {
		return s.notFound("touch", id)
	}
	sess.LastSeen = s.now()
	return nil
}

// Delete removes the session. The next message from the same user starts a new one.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.byID[id]
	if !ok {
		return s.notFound("delete", id)
	}
	s.remove(sess)
	observability.SetActiveSessions(len(s.byID))
	return nil
}

// Expire removes sessions not seen since before cutoff and returns their ids
func (s *Store) Expire(cutoff time.Time) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var expired []string
	for _, sess := range s.byID {
		if sess.LastSeen.Before(cutoff) {
			expired = append(expired, sess.ID)
			s.remove(sess)
		}
	}

	if len(expired) > 0 {
		observability.RecordSessionsExpired(len(expired))
		observability.SetActiveSessions(len(s.byID))
	}
	return expired
}

// must be called with mu held
func (s *Store) remove(sess *Session) {
	delete(s.byID, sess.ID)
	if s.byUser[sess.ExternalUserID] == sess.ID {
		delete(s.byUser, sess.ExternalUserID)
	}
}

// Len returns the number of live sessions
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// List returns snapshots of all sessions ordered by creation time
func (s *Store) List() []Session {
	s.mu.RLock()
	out := make([]Session, 0, len(s.byID))
	for _, sess := range s.byID {
		out = append(out, sess.snapshot())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (s *Store) notFound(op, id string) error {
	s.logger.Error().
		Str("op", op).
		Str("session_id", id).
		Msg("Unknown session id")
	return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
}
