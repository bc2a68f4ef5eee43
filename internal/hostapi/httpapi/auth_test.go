package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"watcherd/internal/config"
)

func jwtCfg() config.JWTConfig {
	return config.JWTConfig{Secret: "test-secret-at-least-32-bytes-long", TTL: time.Minute}
}

func TestTokenManagerMintAndVerify(t *testing.T) {
	tm := newTokenManager(jwtCfg())

	t.Run("mints a token that verifies back to the same username", func(t *testing.T) {
		token, expiresAt, err := tm.mint("operator")
		require.NoError(t, err)
		assert.WithinDuration(t, time.Now().Add(time.Minute), expiresAt, 2*time.Second)

		cl, err := tm.verify(token)
		require.NoError(t, err)
		assert.Equal(t, "operator", cl.Username)
	})

	t.Run("rejects a token signed with a different secret", func(t *testing.T) {
		token, _, err := tm.mint("operator")
		require.NoError(t, err)

		other := newTokenManager(config.JWTConfig{Secret: "a-completely-different-secret-value", TTL: time.Minute})
		_, err = other.verify(token)
		assert.Error(t, err)
	})

	t.Run("rejects an expired token", func(t *testing.T) {
		short := newTokenManager(config.JWTConfig{Secret: jwtCfg().Secret, TTL: -time.Minute})
		token, _, err := short.mint("operator")
		require.NoError(t, err)

		_, err = tm.verify(token)
		assert.Error(t, err)
	})

	t.Run("rejects garbage input", func(t *testing.T) {
		_, err := tm.verify("not-a-jwt")
		assert.Error(t, err)
	})
}

func adminConfig(t *testing.T, password string) config.AdminConfig {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return config.AdminConfig{Username: "admin", PasswordHash: string(hash)}
}

func TestAuthHandlerLogin(t *testing.T) {
	t.Run("correct credentials return a token", func(t *testing.T) {
		h := newAuthHandler(adminConfig(t, "hunter2"), jwtCfg())
		e := gin.New()
		e.POST("/login", h.login)

		body, _ := json.Marshal(loginRequest{Username: "admin", Password: "hunter2"})
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/login", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		e.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		var r Response
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &r))
		assert.True(t, r.Success)
	})

	t.Run("wrong password is unauthorized", func(t *testing.T) {
		h := newAuthHandler(adminConfig(t, "hunter2"), jwtCfg())
		e := gin.New()
		e.POST("/login", h.login)

		body, _ := json.Marshal(loginRequest{Username: "admin", Password: "wrong"})
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/login", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		e.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("unknown username is unauthorized", func(t *testing.T) {
		h := newAuthHandler(adminConfig(t, "hunter2"), jwtCfg())
		e := gin.New()
		e.POST("/login", h.login)

		body, _ := json.Marshal(loginRequest{Username: "nobody", Password: "hunter2"})
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/login", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		e.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestRequireAuth(t *testing.T) {
	h := newAuthHandler(adminConfig(t, "hunter2"), jwtCfg())
	e := gin.New()
	e.GET("/protected", h.requireAuth(), func(c *gin.Context) { c.Status(http.StatusOK) })

	t.Run("missing header is rejected", func(t *testing.T) {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/protected", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("valid bearer token is accepted", func(t *testing.T) {
		token, _, err := h.tokens.mint("admin")
		require.NoError(t, err)

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		e.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("malformed header is rejected", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set("Authorization", "garbage")
		e.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}
