package app

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/dkeye/Desk/internal/core"
	"github.com/dkeye/Desk/internal/telemetry"
	"github.com/rs/zerolog/log"
)

const (
	DefaultSweepInterval  = 5 * time.Minute
	DefaultSessionTimeout = 30 * time.Minute
)

// Sweeper periodically expires sessions nobody touched for Timeout.
// It is the only place expiry happens.
type Sweeper struct {
	Store     core.SessionStore
	Interval  time.Duration
	Timeout   time.Duration
	OnExpired func([]core.Departure)

	running atomic.Bool
}

func NewSweeper(store core.SessionStore, interval, timeout time.Duration) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if timeout <= 0 {
		timeout = DefaultSessionTimeout
	}
	return &Sweeper{Store: store, Interval: interval, Timeout: timeout}
}

// Run sweeps every Interval until ctx is done.
func (sw *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(sw.Interval)
	defer ticker.Stop()

	log.Info().Str("module", "app.sweeper").Dur("interval", sw.Interval).Dur("timeout", sw.Timeout).Msg("sweeper started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "app.sweeper").Msg("sweeper stopped")
			return nil
		case <-ticker.C:
			// inline, so Run never returns with a pass still notifying;
			// SweepOnce still skips if an outside caller holds the pass
			sw.SweepOnce()
		}
	}
}

// SweepOnce runs a single pass. It returns false without doing anything
// when another pass is still in progress.
func (sw *Sweeper) SweepOnce() bool {
	if !sw.running.CompareAndSwap(false, true) {
		telemetry.SweepSkipped()
		log.Debug().Str("module", "app.sweeper").Msg("sweep already running, skipped")
		return false
	}
	defer sw.running.Store(false)

	expired := sw.Store.Sweep(sw.Timeout)
	telemetry.SweepCompleted(len(expired))
	if len(expired) > 0 {
		log.Info().Str("module", "app.sweeper").Int("expired", len(expired)).Msg("expired idle sessions")
		if sw.OnExpired != nil {
			sw.OnExpired(expired)
		}
	}
	return true
}
