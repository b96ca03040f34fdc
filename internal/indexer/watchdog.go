package indexer

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/skyfeed/skyfeed/pkg/logging"
)

// Liveness is polled by the watchdog
type Liveness interface {
	IsDelayed() bool
}

// Watchdog calls onDelayed when the probe reports a stalled pipeline.
// Recovery is left to the process supervisor.
type Watchdog struct {
	probe     Liveness
	interval  time.Duration
	onDelayed func()
	logger    *zap.Logger
}

// NewWatchdog creates a watchdog polling probe every interval
func NewWatchdog(probe Liveness, interval time.Duration, onDelayed func()) *Watchdog {
	return &Watchdog{
		probe:     probe,
		interval:  interval,
		onDelayed: onDelayed,
		logger:    logging.WithComponent("watchdog"),
	}
}

// Run polls until ctx is cancelled
func (w *Watchdog) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if w.probe.IsDelayed() {
				w.logger.Error("Ingestion is delayed")
				w.onDelayed()
			}
		}
	}
}
