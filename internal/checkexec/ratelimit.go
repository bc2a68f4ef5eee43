package checkexec

import (
	"net/url"
	"sync"

	"golang.org/x/time/rate"
)

// HostRateLimiter hands out a token-bucket limiter per target host so
// HTTP-family executors never hammer one host during an incident storm,
// per spec §4.7/§5 "HTTP-family executors share a per-host rate limiter".
// Grounded on the teacher's manager.go registry-of-handlers pattern
// (map keyed by identifier, built lazily, guarded by a mutex), applied
// here to rate.Limiter instead of Checker.
type HostRateLimiter struct {
	mu       sync.Mutex
	perHost  map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
}

// NewHostRateLimiter builds a limiter factory; an rps of zero or less
// disables rate limiting (every Allow call returns true). With a positive
// rps, a burst of zero rejects every request.
func NewHostRateLimiter(rps float64, burst int) *HostRateLimiter {
	return &HostRateLimiter{
		perHost: make(map[string]*rate.Limiter),
		rps:     rate.Limit(rps),
		burst:   burst,
	}
}

func (h *HostRateLimiter) limiterFor(host string) *rate.Limiter {
	h.mu.Lock()
	defer h.mu.Unlock()
	l, ok := h.perHost[host]
	if !ok {
		l = rate.NewLimiter(h.rps, h.burst)
		h.perHost[host] = l
	}
	return l
}

// Allow reports whether a request to target's host may proceed now,
// never blocking, per spec §4.7 "must never block indefinitely".
func (h *HostRateLimiter) Allow(target string) bool {
	if h.rps <= 0 {
		return true
	}
	return h.limiterFor(hostOf(target)).Allow()
}

func hostOf(target string) string {
	u, err := url.Parse(target)
	if err != nil || u.Host == "" {
		return target
	}
	return u.Host
}
