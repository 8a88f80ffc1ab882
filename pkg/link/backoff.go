package link

import (
	"math"
	"math/rand"
	"time"
)

// Backoff computes reconnect delays: base * 2^attempt, capped at Max, with
// up to Jitter of the delay added or removed.
type Backoff struct {
	Base   time.Duration
	Max    time.Duration
	Jitter float64
}

// DefaultBackoff is used for configured peers.
var DefaultBackoff = Backoff{
	Base:   time.Second,
	Max:    5 * time.Minute,
	Jitter: 0.2,
}

// Delay returns the wait before retry number attempt, counting from zero.
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	delay := float64(b.Base) * math.Pow(2, float64(attempt))
	if delay > float64(b.Max) {
		delay = float64(b.Max)
	}

	delay += delay * b.Jitter * (2*rand.Float64() - 1)
	if delay < float64(b.Base) {
		delay = float64(b.Base)
	}
	return time.Duration(delay)
}
