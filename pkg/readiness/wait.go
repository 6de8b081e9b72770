package readiness

import (
	"context"
	"time"

	"github.com/core-tools/hsu-procset/pkg/errors"
	"github.com/core-tools/hsu-procset/pkg/logging"
)

const minAttemptTimeout = 1 * time.Second

// Wait polls the gate until a check succeeds, the gate timeout elapses
// (TimeoutError) or ctx is cancelled (CancelledError).
func Wait(ctx context.Context, gate Gate, logger logging.Logger) error {
	gate = gate.WithDefaults()

	probe, err := NewProbe(gate)
	if err != nil {
		return err
	}

	waitCtx, cancel := context.WithTimeout(ctx, gate.Timeout)
	defer cancel()

	ticker := time.NewTicker(gate.Interval)
	defer ticker.Stop()

	attemptTimeout := gate.Interval
	if attemptTimeout < minAttemptTimeout {
		attemptTimeout = minAttemptTimeout
	}

	logger.Infof("Waiting for %s, timeout: %v", gate, gate.Timeout)

	start := time.Now()
	var lastErr error
	for attempt := 1; ; attempt++ {
		attemptCtx, cancelAttempt := context.WithTimeout(waitCtx, attemptTimeout)
		lastErr = probe.Check(attemptCtx)
		cancelAttempt()

		if lastErr == nil {
			logger.Infof("Dependency ready: %s, attempts: %d, waited: %v", gate, attempt, time.Since(start).Round(time.Millisecond))
			return nil
		}
		logger.Debugf("Dependency not ready: %s, attempt: %d, error: %v", gate, attempt, lastErr)

		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return errors.NewCancelledError("readiness wait cancelled", ctx.Err()).
					WithContext("gate", gate.String())
			}
			return errors.NewTimeoutError("dependency not ready in time", lastErr).
				WithContext("gate", gate.String()).
				WithContext("attempts", attempt)
		case <-ticker.C:
		}
	}
}
