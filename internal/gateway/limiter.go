package gateway

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// limiterSet holds one token bucket per capability. Buckets refill
// continuously at the configured rate up to the burst size; Wait suspends
// the caller until a token is available instead of spinning.
type limiterSet struct {
	limiters map[Capability]*rate.Limiter
}

// newLimiterSet builds buckets from the policy table.
func newLimiterSet(policies map[Capability]Policy) *limiterSet {
	limiters := make(map[Capability]*rate.Limiter, len(policies))
	for cap, p := range policies {
		limiters[cap] = rate.NewLimiter(rate.Limit(p.RatePerSec), p.Burst)
	}
	return &limiterSet{limiters: limiters}
}

// Wait blocks until a token is available for the capability, then debits one.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - cap: capability whose bucket to debit.
// Returns:
//   - error: non-nil if the context ends before a token is available or the
//     capability is unknown.
func (s *limiterSet) Wait(ctx context.Context, cap Capability) error {
	l, ok := s.limiters[cap]
	if !ok {
		return fmt.Errorf("no rate limiter configured for capability %q", cap)
	}
	return l.Wait(ctx)
}
