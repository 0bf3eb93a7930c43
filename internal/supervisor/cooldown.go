package supervisor

import (
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// DefaultCooldown is the pause between a browser exit and the next launch
const DefaultCooldown = 2 * time.Second

// Cooldown strategies
const (
	StrategyFixed       = "fixed"
	StrategyExponential = "exponential"
)

// NewCooldown builds the pause policy between launches.
// fixed always waits base. exponential doubles from base up to max and is
// reset by the supervisor once a browser stays up long enough.
func NewCooldown(strategy string, base, max time.Duration) (backoff.BackOff, error) {
	if base <= 0 {
		base = DefaultCooldown
	}

	switch strategy {
	case "", StrategyFixed:
		return backoff.NewConstantBackOff(base), nil
	case StrategyExponential:
		if max < base {
			max = base
		}
		return &backoff.ExponentialBackOff{
			InitialInterval:     base,
			RandomizationFactor: 0,
			Multiplier:          2,
			MaxInterval:         max,
		}, nil
	default:
		return nil, fmt.Errorf("unknown cooldown strategy %q (want %s or %s)", strategy, StrategyFixed, StrategyExponential)
	}
}
