// Package checkexec implements the Check Executors (C7): one stateless,
// side-effect-free function per canonical monitor type, each turning a
// monitor's dynamic field map into a domain.CheckResult.
//
// Grounded on the teacher's internal/checks package: the BaseChecker
// result-building helpers (CreateErrorResult/CreateSuccessResult/
// DetermineErrorStatus) generalized from *storage.CheckHistory into
// domain.CheckResult, and the Checker interface/Manager dispatch pattern
// from checks/manager.go generalized into Registry (see
// internal/monitortypes/registry.go).
package checkexec

import (
	"context"
	"net/http"
	"strings"
	"time"

	"watcherd/internal/domain"
)

// Checker is the contract every monitor type's executor satisfies (spec
// §4.7). Implementations must honor ctx cancellation, never block past
// Config.Timeout, and must not write to storage or emit events directly.
type Checker interface {
	Check(ctx context.Context, fields map[string]string) domain.CheckResult
}

// Config carries the settings a checker factory needs to build a Checker.
// Timeout is per-monitor — the scheduler clones a base Config with each
// monitor's own TimeoutMs before calling Registry.BuildChecker, so a long-
// timeout monitor is never clamped by another monitor's deadline. The
// remaining fields (byte caps, the shared HTTP rate limiter) are
// process-wide (spec §4.7 "HTTP-family executors share a per-host rate
// limiter").
type Config struct {
	Timeout            time.Duration
	KeywordMaxBytes     int64
	UserAgent           string
	Limiter             *HostRateLimiter
	SSLExpiryWindow     time.Duration
}

func (c Config) timeout() time.Duration {
	if c.Timeout <= 0 {
		return 30 * time.Second
	}
	return c.Timeout
}

func (c Config) userAgent() string {
	if c.UserAgent == "" {
		return "watcherd/1.0"
	}
	return c.UserAgent
}

// timeoutDetails reports whether err stems from context cancellation, so
// callers can surface the "timeout" detail spec §4.7 requires, adapted
// from the teacher's BaseChecker.DetermineErrorStatus substring matching
// (collapsed here since domain.HistoryStatus only distinguishes up/down).
func timeoutDetails(err error) string {
	s := strings.ToLower(err.Error())
	if strings.Contains(s, "timeout") || strings.Contains(s, "deadline exceeded") || strings.Contains(s, "context deadline") {
		return "timeout"
	}
	return err.Error()
}

// errorResult builds a standardized down result, adapted from the
// teacher's BaseChecker.CreateErrorResult.
func errorResult(start time.Time, err error, details string) domain.CheckResult {
	if details == "" {
		details = timeoutDetails(err)
	}
	return domain.CheckResult{
		Status:         domain.HistoryDown,
		ResponseTimeMs: int(time.Since(start).Milliseconds()),
		Details:        details,
		Error:          err.Error(),
	}
}

// successResult builds a standardized up result, adapted from the
// teacher's BaseChecker.CreateSuccessResult.
func successResult(start time.Time, details string) domain.CheckResult {
	return domain.CheckResult{
		Status:         domain.HistoryUp,
		ResponseTimeMs: int(time.Since(start).Milliseconds()),
		Details:        details,
	}
}

// withTimeout clamps ctx to cfg's timeout plus a small scheduler-side
// buffer is applied by the caller (scheduler), not here; checkexec only
// enforces its own configured timeout (spec §4.7 "clamp network
// operations to timeoutMs").
func (c Config) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.timeout())
}

// newHTTPClient builds the *http.Client an HTTP-family check uses, mirroring
// the teacher's per-checker *http.Client. A fresh client (on the default
// transport) is built for every check; followRedirects caps redirects at 10
// hops, otherwise the first response is returned as-is.
func newHTTPClient(followRedirects bool, timeout time.Duration) *http.Client {
	client := &http.Client{Timeout: timeout}
	if !followRedirects {
		client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	} else {
		client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return http.ErrUseLastResponse
			}
			return nil
		}
	}
	return client
}
