package surveil

import "time"

const (
	defaultBackoffInitial = 5 * time.Second
	defaultBackoffMax     = 5 * time.Minute
)

// BackoffConfig bounds the delay between repeated connection failures.
type BackoffConfig struct {
	Initial time.Duration
	Max     time.Duration
}

// backoff is an exponential, capped delay: doubled on each failure,
// reset on the first success. It keeps an offline camera from being
// hammered while keeping recovery latency bounded.
type backoff struct {
	cfg  BackoffConfig
	next time.Duration
}

func newBackoff(cfg BackoffConfig) *backoff {
	if cfg.Initial == 0 {
		cfg.Initial = defaultBackoffInitial
	}
	if cfg.Max == 0 {
		cfg.Max = defaultBackoffMax
	}
	return &backoff{cfg: cfg}
}

// Next returns the delay to wait before the next attempt and advances
// the schedule.
func (b *backoff) Next() time.Duration {
	if b.next == 0 {
		b.next = b.cfg.Initial
	}
	d := b.next
	b.next *= 2
	if b.next > b.cfg.Max {
		b.next = b.cfg.Max
	}
	return d
}

// Reset restores the initial delay after a successful attempt.
func (b *backoff) Reset() {
	b.next = 0
}
