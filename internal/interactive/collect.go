package interactive

import (
	"context"
	"time"
)

// Defaults for reply collection. The idle window is deliberately generous:
// the assistant can stall for many seconds mid-reply while it thinks.
const (
	DefaultIdleTimeout  = 30 * time.Second
	DefaultPollInterval = 1 * time.Second
	DefaultMaxWait      = 10 * time.Minute
)

// CollectOptions tune reply detection. Zero values take the defaults above.
type CollectOptions struct {
	// IdleTimeout is how long the output buffer must stop growing before
	// the reply is considered complete.
	IdleTimeout time.Duration
	// PollInterval is how often the buffer length is sampled.
	PollInterval time.Duration
	// MaxWait caps the whole collection regardless of output activity.
	MaxWait time.Duration
}

func (o CollectOptions) withDefaults() CollectOptions {
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = DefaultIdleTimeout
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.MaxWait <= 0 {
		o.MaxWait = DefaultMaxWait
	}
	return o
}

type stopReason int

const (
	stopIdle stopReason = iota
	stopExit
	stopMaxWait
)

// waitIdle polls sample until the observed length stops growing for a full
// idle window, the sampled process dies, or the overall budget runs out.
// sample reports the current output length and whether the process is still
// alive. The loop is factored out of Session so tests can drive it with
// simulated streams.
func waitIdle(ctx context.Context, opts CollectOptions, sample func() (int, bool)) (stopReason, error) {
	opts = opts.withDefaults()

	deadline := time.Now().Add(opts.MaxWait)
	lastLen, alive := sample()
	if !alive {
		return stopExit, nil
	}
	lastGrowth := time.Now()

	ticker := time.NewTicker(opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return stopMaxWait, ctx.Err()
		case <-ticker.C:
		}

		n, alive := sample()
		now := time.Now()
		if n > lastLen {
			lastLen = n
			lastGrowth = now
		}

		if !alive {
			return stopExit, nil
		}
		if now.Sub(lastGrowth) >= opts.IdleTimeout {
			return stopIdle, nil
		}
		if now.After(deadline) {
			return stopMaxWait, nil
		}
	}
}
