package inventory

import (
	"context"
	"time"
)

const defaultSweepInterval = time.Minute

// RunSweeper calls Sweep every interval until ctx is done. Failures are logged
// and retried on the next tick. A non-positive interval means one minute.
func (l *Ledger) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	l.log.Info().Dur("interval", interval).Msg("hold sweeper started")
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := l.Sweep(ctx); err != nil && ctx.Err() == nil {
				l.log.Error().Err(err).Msg("sweep expired holds")
			}
		}
	}
}
