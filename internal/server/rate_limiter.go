package server

import (
	"golang.org/x/time/rate"
)

// newAcceptLimiter returns the token bucket the TCP listener waits on before
// each accept. A non-positive rate disables limiting.
func newAcceptLimiter(cfg AcceptLimitConfig) *rate.Limiter {
	if cfg.PerSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}

	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(cfg.PerSecond), burst)
}
