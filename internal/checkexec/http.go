package checkexec

import (
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"context"

	"github.com/tidwall/gjson"

	"watcherd/internal/domain"
)

// httpChecker is the shared transport for every HTTP-family monitor
// type (spec §4.7 "same transport"). variant selects which response
// predicate applies, grounded on the teacher's HTTPChecker.validateResponse
// switched from a single fixed predicate into one per canonical type.
type httpChecker struct {
	cfg     Config
	variant string
}

// NewHTTPChecker builds the plain `http` executor: up iff the final
// status is in [200, 400).
func NewHTTPChecker(cfg Config) Checker { return &httpChecker{cfg: cfg, variant: "http"} }

// NewHTTPStatusChecker builds `http-status`: up iff status matches the
// monitor's configured list/range.
func NewHTTPStatusChecker(cfg Config) Checker { return &httpChecker{cfg: cfg, variant: "http-status"} }

// NewHTTPKeywordChecker builds `http-keyword`: up iff the body contains
// the configured keyword within the configured byte cap.
func NewHTTPKeywordChecker(cfg Config) Checker { return &httpChecker{cfg: cfg, variant: "http-keyword"} }

// NewHTTPHeaderChecker builds `http-header`: up iff the named response
// header matches the expected value, exact or regex.
func NewHTTPHeaderChecker(cfg Config) Checker { return &httpChecker{cfg: cfg, variant: "http-header"} }

// NewHTTPJSONChecker builds `http-json`: up iff the JSON body resolves
// the configured path to the configured value.
func NewHTTPJSONChecker(cfg Config) Checker { return &httpChecker{cfg: cfg, variant: "http-json"} }

// NewHTTPLatencyChecker builds `http-latency`: up iff the response
// completes within the configured threshold and the status is a
// success.
func NewHTTPLatencyChecker(cfg Config) Checker { return &httpChecker{cfg: cfg, variant: "http-latency"} }

func (h *httpChecker) Check(ctx context.Context, fields map[string]string) domain.CheckResult {
	start := time.Now()
	target := fields["url"]
	if target == "" {
		return errorResult(start, errMissingField("url"), "")
	}
	if !strings.HasPrefix(target, "http://") && !strings.HasPrefix(target, "https://") {
		target = "https://" + target
	}

	if h.cfg.Limiter != nil && !h.cfg.Limiter.Allow(target) {
		return errorResult(start, errRateLimited, "rate limited")
	}

	ctx, cancel := h.cfg.withTimeout(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return errorResult(start, err, "")
	}
	req.Header.Set("User-Agent", h.cfg.userAgent())

	client := newHTTPClient(true, h.cfg.timeout())
	resp, err := client.Do(req)
	if err != nil {
		return errorResult(start, err, "")
	}
	defer resp.Body.Close()

	switch h.variant {
	case "http":
		return h.checkStatusRange(resp, start)
	case "http-status":
		return h.checkStatusList(resp, fields["statusCode"], start)
	case "http-keyword":
		return h.checkKeyword(resp, fields["keyword"], start)
	case "http-header":
		return h.checkHeader(resp, fields["headerName"], fields["expectedValue"], start)
	case "http-json":
		return h.checkJSON(resp, fields["jsonPath"], fields["expectedValue"], start)
	case "http-latency":
		return h.checkLatency(resp, fields["latencyThresholdMs"], start)
	default:
		return h.checkStatusRange(resp, start)
	}
}

func (h *httpChecker) checkStatusRange(resp *http.Response, start time.Time) domain.CheckResult {
	if resp.StatusCode >= 200 && resp.StatusCode < 400 {
		return successResult(start, strconv.Itoa(resp.StatusCode))
	}
	return errorResult(start, errStatusf(resp.StatusCode), strconv.Itoa(resp.StatusCode))
}

func (h *httpChecker) checkStatusList(resp *http.Response, spec string, start time.Time) domain.CheckResult {
	if spec == "" {
		return h.checkStatusRange(resp, start)
	}
	if statusMatches(resp.StatusCode, spec) {
		return successResult(start, strconv.Itoa(resp.StatusCode))
	}
	return errorResult(start, errStatusf(resp.StatusCode), strconv.Itoa(resp.StatusCode))
}

// statusMatches parses a comma-separated list of exact codes and/or
// ranges ("200-299,301,302") per monitor field `statusCode`.
func statusMatches(code int, spec string) bool {
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if lo, hi, ok := strings.Cut(part, "-"); ok {
			loN, err1 := strconv.Atoi(strings.TrimSpace(lo))
			hiN, err2 := strconv.Atoi(strings.TrimSpace(hi))
			if err1 == nil && err2 == nil && code >= loN && code <= hiN {
				return true
			}
			continue
		}
		if n, err := strconv.Atoi(part); err == nil && n == code {
			return true
		}
	}
	return false
}

func (h *httpChecker) checkKeyword(resp *http.Response, keyword string, start time.Time) domain.CheckResult {
	maxBytes := h.cfg.KeywordMaxBytes
	if maxBytes <= 0 {
		maxBytes = 1 << 20
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes))
	if err != nil {
		return errorResult(start, err, "")
	}
	if keyword == "" || strings.Contains(string(body), keyword) {
		return successResult(start, strconv.Itoa(resp.StatusCode))
	}
	return errorResult(start, errKeywordNotFound, "keyword not found")
}

func (h *httpChecker) checkHeader(resp *http.Response, headerName, expected string, start time.Time) domain.CheckResult {
	if headerName == "" {
		return errorResult(start, errMissingField("headerName"), "")
	}
	actual := resp.Header.Get(headerName)
	if matchesExpected(actual, expected) {
		return successResult(start, actual)
	}
	return errorResult(start, errHeaderMismatch, "header "+headerName+" mismatch")
}

func (h *httpChecker) checkJSON(resp *http.Response, path, expected string, start time.Time) domain.CheckResult {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return errorResult(start, err, "")
	}
	if !gjson.ValidBytes(body) {
		return errorResult(start, errInvalidJSON, "invalid json body")
	}
	result := gjson.GetBytes(body, path)
	if !result.Exists() {
		return errorResult(start, errPathNotFound, "json path not found: "+path)
	}
	if matchesExpected(result.String(), expected) {
		return successResult(start, result.String())
	}
	return errorResult(start, errJSONMismatch, "json path value mismatch")
}

func (h *httpChecker) checkLatency(resp *http.Response, thresholdStr string, start time.Time) domain.CheckResult {
	elapsed := time.Since(start)
	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		return errorResult(start, errStatusf(resp.StatusCode), strconv.Itoa(resp.StatusCode))
	}
	threshold, err := strconv.Atoi(thresholdStr)
	if err != nil || threshold <= 0 {
		return successResult(start, elapsed.String())
	}
	if elapsed.Milliseconds() <= int64(threshold) {
		return successResult(start, elapsed.String())
	}
	return errorResult(start, errLatencyExceeded, elapsed.String())
}

// matchesExpected compares actual to expected, treating an "re:" prefix
// on expected as a regular expression, per spec §4.7 "exact or regex as
// configured".
func matchesExpected(actual, expected string) bool {
	if expected == "" {
		return true
	}
	if pattern, ok := strings.CutPrefix(expected, "re:"); ok {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return false
		}
		return re.MatchString(actual)
	}
	return actual == expected
}
