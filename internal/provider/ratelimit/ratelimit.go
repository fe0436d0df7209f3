package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"marketfeed/internal/batch"
)

// Sender wraps a batch.Sender and gates every call on a token bucket.
// Concurrent calls wait for a token, or return early if the context is
// canceled.
type Sender struct {
	S batch.Sender
	L *rate.Limiter
}

// PerMinute allows perMinute calls per minute with the given burst.
func PerMinute(s batch.Sender, perMinute, burst int) *Sender {
	if burst <= 0 {
		burst = 1
	}
	return &Sender{S: s, L: rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), burst)}
}

// MinInterval enforces at least interval between calls.
func MinInterval(s batch.Sender, interval time.Duration) *Sender {
	return &Sender{S: s, L: rate.NewLimiter(rate.Every(interval), 1)}
}

func (s *Sender) Send(ctx context.Context, d batch.Descriptor) ([]byte, error) {
	if s.L != nil {
		if err := s.L.Wait(ctx); err != nil {
			return nil, &batch.TransportError{StatusCode: 429, Message: "rate limit wait aborted", Err: err}
		}
	}
	return s.S.Send(ctx, d)
}

// Wrap applies the configured limit to s: a per-minute token bucket when
// perMinute > 0, otherwise a minimum interval when one is set.
func Wrap(s batch.Sender, perMinute, burst int, minInterval time.Duration) batch.Sender {
	switch {
	case perMinute > 0:
		return PerMinute(s, perMinute, burst)
	case minInterval > 0:
		return MinInterval(s, minInterval)
	default:
		return s
	}
}
