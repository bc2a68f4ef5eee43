package httpapi

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestEngine(mw ...gin.HandlerFunc) *gin.Engine {
	e := gin.New()
	e.Use(mw...)
	e.GET("/ping", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": true}) })
	e.POST("/echo", func(c *gin.Context) { c.Status(http.StatusOK) })
	return e
}

func TestRequestIDMiddleware(t *testing.T) {
	t.Run("generates an id when the caller sends none", func(t *testing.T) {
		e := newTestEngine(requestID())
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		e.ServeHTTP(rec, req)
		assert.NotEmpty(t, rec.Header().Get(requestIDHeader))
	})

	t.Run("echoes back a caller-supplied id", func(t *testing.T) {
		e := newTestEngine(requestID())
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.Header.Set(requestIDHeader, "caller-supplied-id")
		e.ServeHTTP(rec, req)
		assert.Equal(t, "caller-supplied-id", rec.Header().Get(requestIDHeader))
	})
}

func TestPanicRecovery(t *testing.T) {
	e := gin.New()
	e.Use(panicRecovery(zerolog.New(io.Discard)))
	e.GET("/boom", func(c *gin.Context) { panic("kaboom") })

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/boom", nil)
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "INTERNAL")
}

func TestSecurityHeaders(t *testing.T) {
	e := newTestEngine(securityHeaders())
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	e.ServeHTTP(rec, req)

	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}

func TestRequireJSONContentType(t *testing.T) {
	t.Run("rejects a non-JSON body on POST", func(t *testing.T) {
		e := newTestEngine(requireJSONContentType())
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/echo", nil)
		req.Header.Set("Content-Type", "text/plain")
		req.ContentLength = 4
		e.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
	})

	t.Run("allows a JSON body on POST", func(t *testing.T) {
		e := newTestEngine(requireJSONContentType())
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/echo", nil)
		req.Header.Set("Content-Type", "application/json")
		req.ContentLength = 2
		e.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("ignores GET requests regardless of content type", func(t *testing.T) {
		e := newTestEngine(requireJSONContentType())
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		e.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestRateLimit(t *testing.T) {
	limiter := rate.NewLimiter(rate.Limit(0), 1)
	e := newTestEngine(rateLimit(limiter))

	rec1 := httptest.NewRecorder()
	e.ServeHTTP(rec1, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusOK, rec1.Code)

	rec2 := httptest.NewRecorder()
	e.ServeHTTP(rec2, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec2.Code)
}

func TestTimeoutMiddlewareAttachesDeadline(t *testing.T) {
	var hadDeadline bool
	e := gin.New()
	e.Use(timeout(50 * time.Millisecond))
	e.GET("/ping", func(c *gin.Context) {
		_, hadDeadline = c.Request.Context().Deadline()
		c.Status(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	e.ServeHTTP(rec, req)

	require.True(t, hadDeadline)
}
