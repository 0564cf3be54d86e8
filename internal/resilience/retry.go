// Package resilience holds the reconnect-with-backoff and per-worker
// circuit-breaking helpers shared by relaycc's worker and producer,
// adapted from the teacher's coordinator/resilience package: retry.go
// backed producer-side call forwarding there; here the same backoff
// wrapper backs the worker's dial+register reconnect loop instead.
package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
)

// ErrNotRetryable marks an operation's failure as permanent; Reconnect
// stops immediately instead of backing off further.
var ErrNotRetryable = errors.New("resilience: error is not retryable")

// ReconnectConfig controls the exponential backoff used while a worker
// repeatedly dials and registers with the producer. Unlike the teacher's
// RetryConfig, MaxElapsedTime is zero (unbounded) by default: a worker
// that has lost its producer keeps trying indefinitely, per spec's
// "attempts to re-establish the connection" — it never gives up and
// exits.
type ReconnectConfig struct {
	InitialInterval time.Duration
	Multiplier      float64
	MaxInterval     time.Duration
}

// DefaultReconnectConfig returns sensible defaults for the worker
// reconnect loop.
func DefaultReconnectConfig() ReconnectConfig {
	return ReconnectConfig{
		InitialInterval: 500 * time.Millisecond,
		Multiplier:      2.0,
		MaxInterval:     30 * time.Second,
	}
}

// Permanent wraps err so Reconnect stops retrying and returns it
// immediately instead of backing off.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Reconnect runs operation repeatedly with exponential backoff until it
// succeeds, ctx is canceled, or operation returns a Permanent error. It
// never caps the number of attempts.
func Reconnect(ctx context.Context, cfg ReconnectConfig, operation func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.InitialInterval
	b.Multiplier = cfg.Multiplier
	b.MaxInterval = cfg.MaxInterval
	b.MaxElapsedTime = 0 // unbounded

	attempt := 0
	withCtx := backoff.WithContext(b, ctx)
	return backoff.RetryNotify(func() error {
		attempt++
		err := operation()
		if errors.Is(err, ErrNotRetryable) {
			return backoff.Permanent(err)
		}
		return err
	}, withCtx, func(err error, wait time.Duration) {
		log.Warn().
			Int("attempt", attempt).
			Err(err).
			Dur("retry_in", wait).
			Msg("reconnect attempt failed, backing off")
	})
}
