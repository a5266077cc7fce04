// Package retry holds the backoff schedule shared by storage retries and
// remote embedding calls.
package retry

import (
	"context"
	"math/rand/v2"
	"time"
)

// MaxBackoff caps a single wait.
const MaxBackoff = 30 * time.Second

// Backoff returns exponential backoff with jitter. The base delay is
// doubled each attempt and jittered by up to 25% either way.
func Backoff(baseDelay time.Duration, attempt int) time.Duration {
	if attempt <= 0 || baseDelay <= 0 {
		return 0
	}
	if attempt > 30 {
		attempt = 30
	}
	backoff := baseDelay * time.Duration(1<<uint(attempt))
	if backoff > MaxBackoff || backoff <= 0 {
		backoff = MaxBackoff
	}
	half := int64(backoff) / 2
	if half <= 0 {
		return backoff
	}
	jitter := time.Duration(rand.Int64N(half)) - backoff/4
	return backoff + jitter
}

// Sleep waits for the backoff of attempt or until ctx is done.
func Sleep(ctx context.Context, baseDelay time.Duration, attempt int) error {
	d := Backoff(baseDelay, attempt)
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
