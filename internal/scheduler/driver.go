// Package scheduler drives the fixed-rate tick loop that hosts a sync
// server or client.
package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultRate is the tick frequency used when Rate is zero.
const DefaultRate = 60

var errInvalidRate = errors.New("scheduler: rate must be positive")

// Driver calls a step function at a fixed rate with the measured time
// since the previous call.
type Driver struct {
	// Rate is the tick frequency in Hz.
	Rate int

	now func() time.Time
}

// Interval returns the ticker period for the configured rate.
func (d *Driver) Interval() time.Duration {
	rate := d.Rate
	if rate == 0 {
		rate = DefaultRate
	}
	return time.Second / time.Duration(rate)
}

// Run invokes step until ctx is cancelled. The first delta is one interval.
func (d *Driver) Run(ctx context.Context, step func(delta time.Duration)) error {
	if d.Rate < 0 {
		return errInvalidRate
	}
	now := d.now
	if now == nil {
		now = time.Now
	}

	interval := d.Interval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Debug().Dur("interval", interval).Msg("tick driver started")

	last := now().Add(-interval)
	for {
		select {
		case <-ctx.Done():
			log.Debug().Msg("tick driver stopped")
			return nil
		case <-ticker.C:
			t := now()
			step(t.Sub(last))
			last = t
		}
	}
}
