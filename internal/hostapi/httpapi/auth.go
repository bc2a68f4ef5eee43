package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"watcherd/internal/config"
)

// claims is the JWT payload minted on login. Grounded on the shape of
// r3e-network-service_layer's ServiceClaims (a domain claim embedded next
// to jwt.RegisteredClaims), generalized from service-to-service auth to a
// single-operator bearer token: there is one admin account, so the only
// claim worth carrying is its username.
type claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// tokenManager mints and verifies HS256 bearer tokens for the single
// configured admin account. The teacher's own auth.TokenManager was
// referenced by internal/api but never present in the retrieved pack, so
// this is built fresh against golang-jwt/jwt/v5 rather than adapted.
type tokenManager struct {
	secret []byte
	ttl    time.Duration
}

func newTokenManager(cfg config.JWTConfig) *tokenManager {
	return &tokenManager{secret: []byte(cfg.Secret), ttl: cfg.TTL}
}

func (tm *tokenManager) mint(username string) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(tm.ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			Subject:   username,
			Issuer:    "watcherd",
		},
	})
	signed, err := token.SignedString(tm.secret)
	return signed, expiresAt, err
}

func (tm *tokenManager) verify(raw string) (*claims, error) {
	parsed, err := jwt.ParseWithClaims(raw, &claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return tm.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, errors.New("invalid or expired token")
	}
	c, ok := parsed.Claims.(*claims)
	if !ok {
		return nil, errors.New("invalid token claims")
	}
	return c, nil
}

// loginRequest is the login payload. Field names and binding tags mirror
// the teacher's auth.LoginRequest.
type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	Username  string    `json:"username"`
}

// authHandler owns the single configured admin account and the token
// manager, grounded on the shape of the teacher's auth.Handler.
type authHandler struct {
	admin  config.AdminConfig
	tokens *tokenManager
}

func newAuthHandler(admin config.AdminConfig, jwtCfg config.JWTConfig) *authHandler {
	return &authHandler{admin: admin, tokens: newTokenManager(jwtCfg)}
}

func (h *authHandler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: &Error{Code: "VALIDATION", Message: err.Error()}})
		return
	}
	if req.Username != h.admin.Username {
		c.JSON(http.StatusUnauthorized, Response{Success: false, Error: &Error{Code: "VALIDATION", Message: "invalid credentials"}})
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(h.admin.PasswordHash), []byte(req.Password)); err != nil {
		c.JSON(http.StatusUnauthorized, Response{Success: false, Error: &Error{Code: "VALIDATION", Message: "invalid credentials"}})
		return
	}
	token, expiresAt, err := h.tokens.mint(req.Username)
	if err != nil {
		c.JSON(http.StatusInternalServerError, Response{Success: false, Error: &Error{Code: "INTERNAL", Message: "failed to mint token"}})
		return
	}
	c.JSON(http.StatusOK, success(loginResponse{Token: token, ExpiresAt: expiresAt, Username: req.Username}))
}

func (h *authHandler) me(c *gin.Context) {
	c.JSON(http.StatusOK, success(gin.H{"username": c.GetString("username")}))
}

// requireAuth rejects requests without a valid "Bearer <token>" header,
// stashing the verified username for downstream handlers/logging.
func (h *authHandler) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		raw := strings.TrimPrefix(header, "Bearer ")
		if raw == "" || raw == header {
			c.AbortWithStatusJSON(http.StatusUnauthorized, Response{Success: false, Error: &Error{Code: "VALIDATION", Message: "missing bearer token"}})
			return
		}
		cl, err := h.tokens.verify(raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, Response{Success: false, Error: &Error{Code: "VALIDATION", Message: "invalid or expired token"}})
			return
		}
		c.Set("username", cl.Username)
		c.Next()
	}
}
