package daemon

import (
	"context"
	"time"

	"github.com/harun/shinimi/internal/observability"
)

// DefaultEventLoopInterval is how often the event loop refreshes gauges
const DefaultEventLoopInterval = 30 * time.Second

// EventLoop handles periodic maintenance while the daemon runs
type EventLoop struct {
	daemon   *Daemon
	interval time.Duration
}

// NewEventLoop creates a new event loop
func NewEventLoop(d *Daemon) *EventLoop {
	return &EventLoop{
		daemon:   d,
		interval: DefaultEventLoopInterval,
	}
}

// Run runs the event loop until ctx is done
func (e *EventLoop) Run(ctx context.Context) {
	e.daemon.logger.Info().Msg("Event loop started")

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.daemon.logger.Info().Msg("Event loop stopping")
			return

		case <-ticker.C:
			e.processTasks()
		}
	}
}

// processTasks refreshes the session and lane gauges and logs busy lanes
func (e *EventLoop) processTasks() {
	observability.SetActiveSessions(e.daemon.sessions.Len())

	stats := e.daemon.queue.GetStats()
	queued := 0
	for lane, laneStats := range stats {
		queued += laneStats.Queued
		if laneStats.Queued > 0 || laneStats.Running {
			e.daemon.logger.Debug().
				Str("lane", lane).
				Int("queued", laneStats.Queued).
				Bool("running", laneStats.Running).
				Msg("Queue stats")
		}
	}
	observability.SetActiveLanes(len(stats))
	observability.SetLaneQueueSize(queued)
}
