package checkexec

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"watcherd/internal/domain"
)

// sslChecker implements `ssl`: up iff a TLS handshake to host:port
// succeeds and the leaf certificate is valid and not expiring within the
// configured window. Grounded on the teacher's dial-and-inspect pattern
// from HTTPChecker.createRequest, retargeted at crypto/tls.Dial since
// there is no HTTP semantics involved, only the handshake and the cert
// chain.
type sslChecker struct {
	cfg Config
}

// NewSSLChecker builds the `ssl` executor.
func NewSSLChecker(cfg Config) Checker { return &sslChecker{cfg: cfg} }

func (s *sslChecker) Check(ctx context.Context, fields map[string]string) domain.CheckResult {
	start := time.Now()
	host := fields["host"]
	port := fields["port"]
	if host == "" {
		return errorResult(start, errMissingField("host"), "")
	}
	if port == "" {
		port = "443"
	}

	window := s.cfg.SSLExpiryWindow
	if window <= 0 {
		window = 14 * 24 * time.Hour
	}

	ctx, cancel := s.cfg.withTimeout(ctx)
	defer cancel()

	dialer := &net.Dialer{}
	rawConn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, port))
	if err != nil {
		return errorResult(start, err, "")
	}
	defer rawConn.Close()

	conn := tls.Client(rawConn, &tls.Config{ServerName: host})
	if err := conn.HandshakeContext(ctx); err != nil {
		return errorResult(start, fmt.Errorf("tls handshake failed: %w", err), "")
	}
	defer conn.Close()

	state := conn.ConnectionState()
	if len(state.PeerCertificates) == 0 {
		return errorResult(start, fmt.Errorf("no peer certificates presented"), "")
	}
	cert := state.PeerCertificates[0]

	now := time.Now()
	if now.Before(cert.NotBefore) || now.After(cert.NotAfter) {
		return errorResult(start, errCertExpiring, fmt.Sprintf("certificate invalid, notAfter=%s", cert.NotAfter.Format(time.RFC3339)))
	}
	if cert.NotAfter.Sub(now) < window {
		return errorResult(start, errCertExpiring, fmt.Sprintf("certificate expires %s, within window", cert.NotAfter.Format(time.RFC3339)))
	}

	return successResult(start, fmt.Sprintf("valid until %s", cert.NotAfter.Format(time.RFC3339)))
}
