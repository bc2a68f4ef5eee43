package checkexec

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/exec"
	"regexp"
	"runtime"
	"strconv"
	"time"

	"watcherd/internal/domain"
)

// pingChecker implements `ping`: up on any ICMP echo reply. Grounded on
// the teacher's PingChecker, which shells out to the platform's `ping`
// binary (no raw-socket ICMP, which needs CAP_NET_RAW) and parses its
// textual summary; generalized here from the teacher's fixed 3-packet
// default into fields-driven count/packetSize with the same defaults.
type pingChecker struct {
	cfg Config
}

// NewPingChecker builds the `ping` executor.
func NewPingChecker(cfg Config) Checker { return &pingChecker{cfg: cfg} }

func (p *pingChecker) Check(ctx context.Context, fields map[string]string) domain.CheckResult {
	start := time.Now()
	host := fields["host"]
	if host == "" {
		return errorResult(start, errMissingField("host"), "")
	}

	target, err := resolveTarget(host)
	if err != nil {
		return errorResult(start, err, "")
	}

	count := fieldInt(fields, "count", 3)
	packetSize := fieldInt(fields, "packetSize", 56)

	ctx, cancel := p.cfg.withTimeout(ctx)
	defer cancel()

	cmd := buildPingCommand(ctx, target, count, packetSize, p.cfg.timeout())
	output, err := cmd.Output()
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return errorResult(start, fmt.Errorf("timeout: ping deadline exceeded"), "timeout")
		}
		return errorResult(start, fmt.Errorf("ping command failed: %w", err), "")
	}

	received, loss := parsePingOutput(string(output))
	if received == 0 {
		return errorResult(start, fmt.Errorf("100%% packet loss"), "100% packet loss")
	}
	return successResult(start, fmt.Sprintf("%.1f%% packet loss", loss))
}

func resolveTarget(host string) (string, error) {
	if net.ParseIP(host) != nil {
		return host, nil
	}
	ips, err := net.LookupIP(host)
	if err != nil {
		return "", fmt.Errorf("failed to resolve hostname %s: %w", host, err)
	}
	if len(ips) == 0 {
		return "", fmt.Errorf("no IP addresses found for hostname %s", host)
	}
	for _, ip := range ips {
		if ip.To4() != nil {
			return ip.String(), nil
		}
	}
	return ips[0].String(), nil
}

func buildPingCommand(ctx context.Context, target string, count, packetSize int, timeout time.Duration) *exec.Cmd {
	var args []string
	timeoutSec := int(timeout.Seconds())
	if timeoutSec <= 0 {
		timeoutSec = 5
	}

	switch runtime.GOOS {
	case "windows":
		args = []string{"-n", strconv.Itoa(count), "-w", strconv.Itoa(timeoutSec * 1000), "-l", strconv.Itoa(packetSize), target}
	default:
		args = []string{"-c", strconv.Itoa(count), "-s", strconv.Itoa(packetSize), "-W", strconv.Itoa(timeoutSec), target}
	}
	return exec.CommandContext(ctx, "ping", args...)
}

var (
	unixStatsRegex    = regexp.MustCompile(`(\d+) packets transmitted, (\d+) (?:packets )?received, ([\d.]+)% packet loss`)
	windowsStatsRegex = regexp.MustCompile(`Packets: Sent = (\d+), Received = (\d+), Lost = \d+ \(([\d.]+)% loss\)`)
)

func parsePingOutput(output string) (received int, lossPercent float64) {
	re := unixStatsRegex
	if runtime.GOOS == "windows" {
		re = windowsStatsRegex
	}
	if matches := re.FindStringSubmatch(output); matches != nil {
		received, _ = strconv.Atoi(matches[2])
		lossPercent, _ = strconv.ParseFloat(matches[3], 64)
	}
	return received, lossPercent
}

func fieldInt(fields map[string]string, key string, def int) int {
	if v, ok := fields[key]; ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
