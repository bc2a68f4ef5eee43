// Package httpapi is the bundled Gin binding of the Host Interface (spec
// §4.11): it turns hostapi.API method calls into REST routes under
// /api/v1, a bearer-token login flow for the single configured operator
// account, and a Server-Sent-Events stream for public bus events.
//
// Grounded on the teacher's internal/api package for its overall shape
// (gin.Engine + route groups + a Response{success,data} envelope + a
// middleware chain run before every route), rebuilt from scratch rather
// than adapted file-by-file: the teacher's server.go calls middleware
// functions (RequestID, PanicRecovery, TimeoutMiddleware, SecurityHeaders,
// ContentType, RateLimit, LoggerMiddleware, ErrorHandler) and an
// auth.TokenManager that are referenced throughout internal/api but were
// never present anywhere in the retrieved reference pack, so there was
// nothing concrete to keep HOW from beyond the shape itself.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"watcherd/internal/config"
	"watcherd/internal/hostapi"
)

// Server is the bundled HTTP adapter. Construct with NewServer once the
// orchestrator has been Initialize'd.
type Server struct {
	cfg    config.ServerConfig
	api    hostapi.API
	router *gin.Engine
	server *http.Server
	auth   *authHandler
	log    zerolog.Logger
}

// NewServer builds the Gin engine, wires the middleware chain, and
// registers every route. The HTTP server itself is not started until
// Start is called.
func NewServer(cfg config.ServerConfig, api hostapi.API, log zerolog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	l := log.With().Str("component", "httpapi").Logger()
	s := &Server{
		cfg:    cfg,
		api:    api,
		router: gin.New(),
		auth:   newAuthHandler(cfg.Admin, cfg.JWT),
		log:    l,
	}

	limiter := rate.NewLimiter(rate.Limit(20), 40)
	s.router.Use(
		requestID(),
		panicRecovery(l),
		timeout(30*time.Second),
		securityHeaders(),
		requireJSONContentType(),
		rateLimit(limiter),
		requestLogger(l),
	)

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

// Start begins serving and blocks until the server is shut down or fails.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.cfg.Addr).Msg("starting http adapter")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http adapter failed: %w", err)
	}
	return nil
}

// Shutdown gracefully drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("shutting down http adapter")
	return s.server.Shutdown(ctx)
}
