package usecase

import (
	"time"

	"github.com/pancudaniel7/blocksub-ethereum-service/internal/pkg/pattern"
)

// ResubscribeConfig bounds how a failed block stream is re-established.
// Zero values mean a fixed one second interval with no attempt limit.
type ResubscribeConfig struct {
	InitialDelayMS int     `validate:"gte=0"`
	MaxDelayMS     int     `validate:"gte=0"`
	Multiplier     float64 `validate:"omitempty,gte=1"`
	Jitter         float64 `validate:"gte=0,lte=1"`
	// MaxAttempts is the number of consecutive stream failures tolerated
	// before the subscriber gives up. Zero retries forever.
	MaxAttempts int `validate:"gte=0"`
}

type SubscriberConfig struct {
	NodeName    string `validate:"required"`
	Resubscribe ResubscribeConfig
}

func (c ResubscribeConfig) retryConfig() pattern.RetryConfig {
	initial := time.Duration(c.InitialDelayMS) * time.Millisecond
	if initial <= 0 {
		initial = time.Second
	}
	multiplier := c.Multiplier
	if multiplier == 0 {
		multiplier = 1
	}

	return pattern.NewRetryConfig(
		pattern.WithMaxAttempts(c.MaxAttempts),
		pattern.WithInitialDelay(initial),
		pattern.WithMaxDelay(time.Duration(c.MaxDelayMS)*time.Millisecond),
		pattern.WithMultiplier(multiplier),
		pattern.WithJitter(c.Jitter),
	)
}
