package quote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// GuardConfig tunes the rate limit and circuit breaker around a Source.
type GuardConfig struct {
	RPS   float64
	Burst int
	// ConsecutiveFailures trips the breaker.
	ConsecutiveFailures uint32
	// OpenTimeout is how long the breaker stays open before probing.
	OpenTimeout time.Duration
}

// DefaultGuardConfig returns conservative defaults for public quote APIs.
func DefaultGuardConfig() GuardConfig {
	return GuardConfig{
		RPS:                 5,
		Burst:               5,
		ConsecutiveFailures: 5,
		OpenTimeout:         60 * time.Second,
	}
}

// Guarded wraps a Source with a token-bucket limiter and a circuit breaker,
// so an upstream outage fails fast instead of holding every request until
// its timeout.
type Guarded struct {
	src     Source
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

// NewGuarded wraps src.
func NewGuarded(src Source, cfg GuardConfig) *Guarded {
	if cfg.RPS <= 0 {
		cfg.RPS = DefaultGuardConfig().RPS
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.ConsecutiveFailures == 0 {
		cfg.ConsecutiveFailures = DefaultGuardConfig().ConsecutiveFailures
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = DefaultGuardConfig().OpenTimeout
	}

	st := gobreaker.Settings{
		Name:     src.Name(),
		Interval: 60 * time.Second,
		Timeout:  cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		// A symbol without data says nothing about the source's health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNoQuote)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("source", name).Str("from", from.String()).Str("to", to.String()).Msg("quote breaker state change")
		},
	}
	return &Guarded{
		src:     src,
		limiter: rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst),
		breaker: gobreaker.NewCircuitBreaker(st),
	}
}

func (g *Guarded) Name() string { return g.src.Name() }

// State exposes the breaker state.
func (g *Guarded) State() gobreaker.State { return g.breaker.State() }

func (g *Guarded) Quote(ctx context.Context, symbol string) (float64, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return 0, fmt.Errorf("rate limit %s: %w", symbol, err)
	}
	v, err := g.breaker.Execute(func() (interface{}, error) {
		return g.src.Quote(ctx, symbol)
	})
	if err != nil {
		return 0, err
	}
	return v.(float64), nil
}
