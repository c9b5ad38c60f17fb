package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Sweeper periodically expires sessions idle longer than ttl
type Sweeper struct {
	store    *Store
	ttl      time.Duration
	interval time.Duration
	logger   zerolog.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

// NewSweeper creates a sweeper. A zero ttl disables expiry.
func NewSweeper(store *Store, ttl, interval time.Duration, logger zerolog.Logger) *Sweeper {
	return &Sweeper{
		store:    store,
		ttl:      ttl,
		interval: interval,
		logger:   logger.With().Str("component", "session_sweeper").Logger(),
	}
}

// Start schedules Sweep every interval
func (s *Sweeper) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("sweeper is already running")
	}
	if s.ttl <= 0 {
		s.logger.Info().Msg("Session expiry disabled")
		return nil
	}
	if s.interval <= 0 {
		return fmt.Errorf("sweep interval must be positive, got %s", s.interval)
	}

	c := cron.New()
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", s.interval), func() { s.Sweep() }); err != nil {
		return fmt.Errorf("failed to schedule session sweep: %w", err)
	}
	c.Start()

	s.cron = c
	s.running = true

	s.logger.Info().
		Dur("ttl", s.ttl).
		Dur("interval", s.interval).
		Msg("Session sweeper started")

	return nil
}

// Stop cancels the schedule and waits for a running sweep to finish
func (s *Sweeper) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.running = false
	s.mu.Unlock()

	if c == nil {
		return
	}
	<-c.Stop().Done()
	s.logger.Info().Msg("Session sweeper stopped")
}

// Sweep expires idle sessions once and returns how many were removed
func (s *Sweeper) Sweep() int {
	if s.ttl <= 0 {
		return 0
	}

	expired := s.store.Expire(s.store.now().Add(-s.ttl))
	if len(expired) > 0 {
		s.logger.Info().
			Int("expired", len(expired)).
			Int("remaining", s.store.Len()).
			Msg("Expired idle sessions")
	}
	return len(expired)
}
