package alert

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/skyfeed/skyfeed/pkg/logging"
)

// Escalator raises an alert once a run of consecutive failures reaches a threshold.
// While the run continues, further alerts are spaced by an exponentially growing interval.
type Escalator struct {
	name      string
	notifier  Notifier
	threshold int
	now       func() time.Time
	logger    *zap.Logger

	mu        sync.Mutex
	failures  int
	interval  *backoff.ExponentialBackOff
	nextAlert time.Time
}

// NewEscalator creates an escalator for the named operation
func NewEscalator(name string, notifier Notifier, threshold int) *Escalator {
	interval := backoff.NewExponentialBackOff()
	interval.InitialInterval = time.Minute
	interval.MaxInterval = 2 * time.Hour
	interval.Multiplier = 2
	interval.RandomizationFactor = 0
	interval.Reset()

	return &Escalator{
		name:      name,
		notifier:  notifier,
		threshold: threshold,
		now:       time.Now,
		logger:    logging.WithComponent("alert"),
		interval:  interval,
	}
}

// Failure records a failure and reports whether an alert was sent
func (e *Escalator) Failure(ctx context.Context, cause error) bool {
	e.mu.Lock()
	e.failures++
	failures := e.failures
	now := e.now()
	if failures < e.threshold || now.Before(e.nextAlert) {
		e.mu.Unlock()
		return false
	}
	e.nextAlert = now.Add(e.interval.NextBackOff())
	e.mu.Unlock()

	message := fmt.Sprintf("%s failed %d times in a row: %v", e.name, failures, cause)
	if err := e.notifier.Notify(ctx, message); err != nil {
		e.logger.Error("Failed to send alert", zap.String("operation", e.name), zap.Error(err))
	}
	return true
}

// Success ends the current failure run
func (e *Escalator) Success() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failures = 0
	e.nextAlert = time.Time{}
	e.interval.Reset()
}

// Failures returns the length of the current failure run
func (e *Escalator) Failures() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.failures
}
