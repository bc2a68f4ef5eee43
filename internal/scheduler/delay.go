package scheduler

import (
	"math"
	"math/rand"

	"watcherd/internal/domain"
)

// defaultMaxBackoffMs matches spec §4.8's MAX_BACKOFF_MS default of one
// hour, used when config leaves SchedulerConfig.MaxBackoffMs unset.
const defaultMaxBackoffMs = 3_600_000

// computeDelay implements spec §4.8's delay computation: exponential
// backoff capped at MAX_BACKOFF_MS, uniform jitter of +/-10%, floored at
// MIN_CHECK_INTERVAL_MS. Grounded on the teacher's other_examples sibling
// r3e-network-service_layer/infrastructure/resilience/retry.go's
// addJitter+nextDelay shape, adapted from a fixed multiplier into the
// spec's 2^n backoff and a symmetric (not additive-only) jitter window.
func computeDelay(baseMs, attempt, maxBackoffMs int, jitterFraction float64) int {
	if maxBackoffMs <= 0 {
		maxBackoffMs = defaultMaxBackoffMs
	}
	if jitterFraction <= 0 {
		jitterFraction = 0.1
	}

	target := float64(baseMs) * math.Pow(2, float64(attempt))
	capMs := math.Max(float64(baseMs), float64(maxBackoffMs))
	if target > capMs {
		target = capMs
	}

	jitterRange := math.Round(target * jitterFraction)
	offset := (rand.Float64()*2 - 1) * jitterRange
	jittered := target + offset

	delay := math.Max(float64(domain.MinCheckIntervalMs), jittered)
	return int(math.Round(delay))
}

// maxBackoffAttempt bounds backoffAttempt at log2(cap/base), per spec
// §4.8 step 6 "increment (bounded by log2(cap/base))".
func maxBackoffAttempt(baseMs, maxBackoffMs int) int {
	if maxBackoffMs <= 0 {
		maxBackoffMs = defaultMaxBackoffMs
	}
	capMs := math.Max(float64(baseMs), float64(maxBackoffMs))
	if baseMs <= 0 {
		return 0
	}
	n := math.Log2(capMs / float64(baseMs))
	if n < 0 {
		return 0
	}
	return int(math.Ceil(n))
}
