// internal/database/breaker.go
package database

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"librarium/internal/apperr"
)

const (
	breakerTripAfter = 5
	breakerCoolDown  = 10 * time.Second
)

// Breaker fails fast while the database keeps returning infrastructure
// errors. Classified errors (not found, conflict, ...) count as successes.
type Breaker struct {
	cb *gobreaker.CircuitBreaker
}

func NewBreaker(name string, logger *slog.Logger) *Breaker {
	return &Breaker{cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     breakerCoolDown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerTripAfter
		},
		IsSuccessful: func(err error) bool {
			return err == nil ||
				apperr.KindOf(err) != apperr.KindInternal ||
				errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	})}
}

// Do runs fn unless the breaker is open. A nil Breaker always runs fn.
func (b *Breaker) Do(fn func() error) error {
	if b == nil {
		return fn()
	}
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return apperr.Wrap(apperr.KindUnavailable, err, "database unavailable")
	}
	return err
}
