package monitortypes

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"watcherd/internal/checkexec"
)

// RegisterBuiltins populates reg with the ten canonical monitor types
// (spec §4.7), each pairing a FieldDescriptor/Validate schema with a
// checkexec.Checker factory. Grounded on the teacher's
// Manager.registerChecker, generalized from a fixed two-type registration
// call into a data-driven loop over the full canonical set.
func RegisterBuiltins(reg *Registry) {
	reg.Register(httpDescriptor())
	reg.Register(httpStatusDescriptor())
	reg.Register(httpKeywordDescriptor())
	reg.Register(httpHeaderDescriptor())
	reg.Register(httpJSONDescriptor())
	reg.Register(httpLatencyDescriptor())
	reg.Register(portDescriptor())
	reg.Register(pingDescriptor())
	reg.Register(dnsDescriptor())
	reg.Register(sslDescriptor())
}

func requireURL(fields map[string]string, issues *[]ValidationIssue) {
	v := strings.TrimSpace(fields["url"])
	if v == "" {
		*issues = append(*issues, ValidationIssue{Field: "url", Message: "url is required"})
		return
	}
	if !strings.HasPrefix(v, "http://") && !strings.HasPrefix(v, "https://") && !strings.Contains(v, ".") {
		*issues = append(*issues, ValidationIssue{Field: "url", Message: "url does not look like a valid host or URL"})
	}
}

func requireHost(fields map[string]string, issues *[]ValidationIssue) {
	if strings.TrimSpace(fields["host"]) == "" {
		*issues = append(*issues, ValidationIssue{Field: "host", Message: "host is required"})
	}
}

func requirePort(fields map[string]string, issues *[]ValidationIssue) {
	p := fields["port"]
	if p == "" {
		*issues = append(*issues, ValidationIssue{Field: "port", Message: "port is required"})
		return
	}
	n, err := strconv.Atoi(p)
	if err != nil || n < 1 || n > 65535 {
		*issues = append(*issues, ValidationIssue{Field: "port", Message: "port must be an integer between 1 and 65535"})
	}
}

func httpDescriptor() Descriptor {
	return Descriptor{
		Type: "http", DisplayName: "HTTP(S)", Version: "1",
		Description: "Issues an HTTP(S) GET and checks for a successful final status.",
		Fields: []FieldDescriptor{
			{Name: "url", Label: "URL", Kind: FieldURL, Required: true, Placeholder: "https://example.com"},
		},
		Validate: func(fields map[string]string) ValidationResult {
			var issues []ValidationIssue
			requireURL(fields, &issues)
			return ValidationResult{Valid: len(issues) == 0, Issues: issues}
		},
		CheckerFactory: checkexec.NewHTTPChecker,
	}
}

func httpStatusDescriptor() Descriptor {
	return Descriptor{
		Type: "http-status", DisplayName: "HTTP Status Match", Version: "1",
		Description: "Issues an HTTP(S) GET and checks the status against a list/range.",
		Fields: []FieldDescriptor{
			{Name: "url", Label: "URL", Kind: FieldURL, Required: true},
			{Name: "statusCode", Label: "Expected status (e.g. 200-299,301)", Kind: FieldText, Required: true},
		},
		Validate: func(fields map[string]string) ValidationResult {
			var issues []ValidationIssue
			requireURL(fields, &issues)
			if strings.TrimSpace(fields["statusCode"]) == "" {
				issues = append(issues, ValidationIssue{Field: "statusCode", Message: "expected status list/range is required"})
			}
			return ValidationResult{Valid: len(issues) == 0, Issues: issues}
		},
		CheckerFactory: checkexec.NewHTTPStatusChecker,
	}
}

func httpKeywordDescriptor() Descriptor {
	return Descriptor{
		Type: "http-keyword", DisplayName: "HTTP Keyword Match", Version: "1",
		Description: "Issues an HTTP(S) GET and checks the body for a keyword.",
		Fields: []FieldDescriptor{
			{Name: "url", Label: "URL", Kind: FieldURL, Required: true},
			{Name: "keyword", Label: "Keyword", Kind: FieldText, Required: true},
		},
		Validate: func(fields map[string]string) ValidationResult {
			var issues []ValidationIssue
			requireURL(fields, &issues)
			if strings.TrimSpace(fields["keyword"]) == "" {
				issues = append(issues, ValidationIssue{Field: "keyword", Message: "keyword is required"})
			}
			return ValidationResult{Valid: len(issues) == 0, Issues: issues}
		},
		CheckerFactory: checkexec.NewHTTPKeywordChecker,
	}
}

func httpHeaderDescriptor() Descriptor {
	return Descriptor{
		Type: "http-header", DisplayName: "HTTP Header Match", Version: "1",
		Description: "Issues an HTTP(S) GET and checks a response header's value.",
		Fields: []FieldDescriptor{
			{Name: "url", Label: "URL", Kind: FieldURL, Required: true},
			{Name: "headerName", Label: "Header name", Kind: FieldText, Required: true},
			{Name: "expectedValue", Label: "Expected value (prefix re: for regex)", Kind: FieldText, Required: true},
		},
		Validate: func(fields map[string]string) ValidationResult {
			var issues []ValidationIssue
			requireURL(fields, &issues)
			if strings.TrimSpace(fields["headerName"]) == "" {
				issues = append(issues, ValidationIssue{Field: "headerName", Message: "headerName is required"})
			}
			if pattern, ok := strings.CutPrefix(fields["expectedValue"], "re:"); ok {
				if _, err := regexp.Compile(pattern); err != nil {
					issues = append(issues, ValidationIssue{Field: "expectedValue", Message: "invalid regex: " + err.Error()})
				}
			}
			return ValidationResult{Valid: len(issues) == 0, Issues: issues}
		},
		CheckerFactory: checkexec.NewHTTPHeaderChecker,
	}
}

func httpJSONDescriptor() Descriptor {
	return Descriptor{
		Type: "http-json", DisplayName: "HTTP JSON Path Match", Version: "1",
		Description: "Issues an HTTP(S) GET and checks a JSON path's resolved value.",
		Fields: []FieldDescriptor{
			{Name: "url", Label: "URL", Kind: FieldURL, Required: true},
			{Name: "jsonPath", Label: "JSON path", Kind: FieldText, Required: true, Placeholder: "data.status"},
			{Name: "expectedValue", Label: "Expected value", Kind: FieldText, Required: true},
		},
		Validate: func(fields map[string]string) ValidationResult {
			var issues []ValidationIssue
			requireURL(fields, &issues)
			if strings.TrimSpace(fields["jsonPath"]) == "" {
				issues = append(issues, ValidationIssue{Field: "jsonPath", Message: "jsonPath is required"})
			}
			return ValidationResult{Valid: len(issues) == 0, Issues: issues}
		},
		CheckerFactory: checkexec.NewHTTPJSONChecker,
	}
}

func httpLatencyDescriptor() Descriptor {
	return Descriptor{
		Type: "http-latency", DisplayName: "HTTP Latency Threshold", Version: "1",
		Description: "Issues an HTTP(S) GET and checks the response time against a threshold.",
		Fields: []FieldDescriptor{
			{Name: "url", Label: "URL", Kind: FieldURL, Required: true},
			{Name: "latencyThresholdMs", Label: "Latency threshold (ms)", Kind: FieldNumber, Required: true},
		},
		Validate: func(fields map[string]string) ValidationResult {
			var issues []ValidationIssue
			requireURL(fields, &issues)
			if n, err := strconv.Atoi(fields["latencyThresholdMs"]); err != nil || n <= 0 {
				issues = append(issues, ValidationIssue{Field: "latencyThresholdMs", Message: "latencyThresholdMs must be a positive integer"})
			}
			return ValidationResult{Valid: len(issues) == 0, Issues: issues}
		},
		CheckerFactory: checkexec.NewHTTPLatencyChecker,
	}
}

func portDescriptor() Descriptor {
	return Descriptor{
		Type: "port", DisplayName: "TCP Port", Version: "1",
		Description: "Opens a TCP connection to host:port.",
		Fields: []FieldDescriptor{
			{Name: "host", Label: "Host", Kind: FieldText, Required: true},
			{Name: "port", Label: "Port", Kind: FieldNumber, Required: true},
		},
		Validate: func(fields map[string]string) ValidationResult {
			var issues []ValidationIssue
			requireHost(fields, &issues)
			requirePort(fields, &issues)
			return ValidationResult{Valid: len(issues) == 0, Issues: issues}
		},
		CheckerFactory: checkexec.NewPortChecker,
	}
}

func pingDescriptor() Descriptor {
	return Descriptor{
		Type: "ping", DisplayName: "ICMP Ping", Version: "1",
		Description: "Sends ICMP echo requests to host.",
		Fields: []FieldDescriptor{
			{Name: "host", Label: "Host", Kind: FieldText, Required: true},
			{Name: "count", Label: "Packet count", Kind: FieldNumber},
			{Name: "packetSize", Label: "Packet size (bytes)", Kind: FieldNumber},
		},
		Validate: func(fields map[string]string) ValidationResult {
			var issues []ValidationIssue
			requireHost(fields, &issues)
			return ValidationResult{Valid: len(issues) == 0, Issues: issues}
		},
		CheckerFactory: checkexec.NewPingChecker,
	}
}

func dnsDescriptor() Descriptor {
	return Descriptor{
		Type: "dns", DisplayName: "DNS Resolution", Version: "1",
		Description: "Resolves host for a configured record type.",
		Fields: []FieldDescriptor{
			{Name: "host", Label: "Host", Kind: FieldText, Required: true},
			{Name: "recordType", Label: "Record type", Kind: FieldSelect,
				Options: []string{"A", "AAAA", "CNAME", "MX", "TXT", "NS"}},
			{Name: "expectedValue", Label: "Expected value (optional)", Kind: FieldText},
		},
		Validate: func(fields map[string]string) ValidationResult {
			var issues []ValidationIssue
			requireHost(fields, &issues)
			if rt := strings.ToUpper(fields["recordType"]); rt != "" {
				switch rt {
				case "A", "AAAA", "CNAME", "MX", "TXT", "NS":
				default:
					issues = append(issues, ValidationIssue{Field: "recordType", Message: fmt.Sprintf("unsupported record type %q", rt)})
				}
			}
			return ValidationResult{Valid: len(issues) == 0, Issues: issues}
		},
		CheckerFactory: checkexec.NewDNSChecker,
	}
}

func sslDescriptor() Descriptor {
	return Descriptor{
		Type: "ssl", DisplayName: "TLS Certificate", Version: "1",
		Description: "Establishes TLS to host:port and checks certificate validity and expiry.",
		Fields: []FieldDescriptor{
			{Name: "host", Label: "Host", Kind: FieldText, Required: true},
			{Name: "port", Label: "Port", Kind: FieldNumber, Placeholder: "443"},
		},
		Validate: func(fields map[string]string) ValidationResult {
			var issues []ValidationIssue
			requireHost(fields, &issues)
			if p := fields["port"]; p != "" {
				requirePort(fields, &issues)
			}
			return ValidationResult{Valid: len(issues) == 0, Issues: issues}
		},
		CheckerFactory: checkexec.NewSSLChecker,
	}
}
