package fetch

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

const defaultBackoff = 200 * time.Millisecond

// Retry calls fn up to attempts times, stopping at the first outcome that is
// not transient (timeouts, 5xx and transport faults are). The wait grows
// linearly from backoff between attempts. It returns the last outcome.
func Retry(ctx context.Context, attempts int, backoff time.Duration, fn func() Outcome) Outcome {
	if attempts <= 0 {
		attempts = 1
	}
	if backoff <= 0 {
		backoff = defaultBackoff
	}
	var out Outcome
	for i := 0; i < attempts; i++ {
		out = fn()
		if !out.Transient() || i == attempts-1 {
			return out
		}
		wait := time.Duration(i+1) * backoff
		log.Debug().Str("kind", out.Kind.String()).Int("attempt", i+1).Dur("wait", wait).Msg("retrying transient fetch failure")
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return out
		case <-t.C:
		}
	}
	return out
}
