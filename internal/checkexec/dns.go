package checkexec

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"watcherd/internal/domain"
)

// dnsChecker implements `dns`: resolves host for recordType, up iff at
// least one record matches expectedValue (when provided) or resolution
// succeeds (when not). Grounded on the teacher PingChecker's
// resolveTarget (net.LookupIP) but generalized across record types since
// the teacher only ever needed a single A/AAAA lookup.
type dnsChecker struct {
	cfg Config
}

// NewDNSChecker builds the `dns` executor.
func NewDNSChecker(cfg Config) Checker { return &dnsChecker{cfg: cfg} }

func (d *dnsChecker) Check(ctx context.Context, fields map[string]string) domain.CheckResult {
	start := time.Now()
	host := fields["host"]
	if host == "" {
		return errorResult(start, errMissingField("host"), "")
	}
	recordType := strings.ToUpper(fields["recordType"])
	if recordType == "" {
		recordType = "A"
	}
	expected := fields["expectedValue"]

	ctx, cancel := d.cfg.withTimeout(ctx)
	defer cancel()

	records, err := resolveRecords(ctx, recordType, host)
	if err != nil {
		return errorResult(start, err, "")
	}
	if len(records) == 0 {
		return errorResult(start, errNoRecords, "no records resolved")
	}
	if expected == "" {
		return successResult(start, strings.Join(records, ","))
	}
	for _, r := range records {
		if r == expected {
			return successResult(start, strings.Join(records, ","))
		}
	}
	return errorResult(start, errNoRecords, strings.Join(records, ","))
}

func resolveRecords(ctx context.Context, recordType, host string) ([]string, error) {
	resolver := net.DefaultResolver
	switch recordType {
	case "A", "AAAA":
		ips, err := resolver.LookupIP(ctx, ipNetwork(recordType), host)
		if err != nil {
			return nil, err
		}
		out := make([]string, len(ips))
		for i, ip := range ips {
			out[i] = ip.String()
		}
		return out, nil
	case "CNAME":
		cname, err := resolver.LookupCNAME(ctx, host)
		if err != nil {
			return nil, err
		}
		return []string{strings.TrimSuffix(cname, ".")}, nil
	case "MX":
		mxs, err := resolver.LookupMX(ctx, host)
		if err != nil {
			return nil, err
		}
		out := make([]string, len(mxs))
		for i, mx := range mxs {
			out[i] = strings.TrimSuffix(mx.Host, ".")
		}
		return out, nil
	case "TXT":
		return resolver.LookupTXT(ctx, host)
	case "NS":
		nss, err := resolver.LookupNS(ctx, host)
		if err != nil {
			return nil, err
		}
		out := make([]string, len(nss))
		for i, ns := range nss {
			out[i] = strings.TrimSuffix(ns.Host, ".")
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported dns record type %q", recordType)
	}
}

func ipNetwork(recordType string) string {
	if recordType == "AAAA" {
		return "ip6"
	}
	return "ip4"
}
