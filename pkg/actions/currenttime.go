package actions

import (
	"context"

	"github.com/harun/shinimi/pkg/clock"
	"github.com/harun/shinimi/pkg/conversation"
	"github.com/rs/zerolog"
)

// CurrentTime is the getCurrentTime action.
type CurrentTime struct {
	clock  TimeSource
	logger zerolog.Logger
}

// NewCurrentTime creates the getCurrentTime action.
func NewCurrentTime(clock TimeSource, logger zerolog.Logger) *CurrentTime {
	return &CurrentTime{clock: clock, logger: logger}
}

// Definition implements Action.
func (a *CurrentTime) Definition() Definition {
	return Definition{
		Name:        "getCurrentTime",
		Description: "Tell the current local time at a place or time zone",
		Kind:        KindTransformer,
		Entities:    []string{EntityLocation},
		Writes:      []string{KeyCurrentTime, KeyMissingTimeZone},
	}
}

// Transform implements Transformer. A location that cannot be resolved to a
// zone is treated like a missing one and also drops any stale currentTime.
func (a *CurrentTime) Transform(_ context.Context, req Request) (conversation.Context, error) {
	c := req.Context
	loc, ok := req.Entities.FirstValue(EntityLocation)
	if !ok {
		c.Set(KeyMissingTimeZone, true)
		return c, nil
	}

	now, err := a.clock.Now(loc)
	if err != nil {
		a.logger.Info().Err(err).Str("location", loc).Msg("Location is not a known time zone")
		c.Set(KeyMissingTimeZone, true)
		c.Delete(KeyCurrentTime)
		return c, nil
	}

	c.Set(KeyCurrentTime, clock.Format(now))
	c.Delete(KeyMissingTimeZone)
	return c, nil
}
