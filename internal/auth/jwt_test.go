package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"cart-dialer/internal/config"
)

func newManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(config.AuthConfig{JWTSecret: "secret", JWTIssuer: "cart-dialer", AccessTokenTTL: 15 * time.Minute})
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	return m
}

func TestIssueAndVerify(t *testing.T) {
	m := newManager(t)
	now := time.Unix(1700000000, 0).UTC()

	tok, err := m.Issue(now, "ops@store")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := m.Verify(tok, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Operator != "ops@store" || claims.Subject != "ops@store" || claims.Scope != ScopeDial {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if claims.ID == "" {
		t.Fatalf("expected jti")
	}
}

func TestVerifyRejectsExpired(t *testing.T) {
	m := newManager(t)
	now := time.Unix(1700000000, 0).UTC()
	tok, _ := m.Issue(now, "ops")
	if _, err := m.Verify(tok, now.Add(time.Hour)); err == nil {
		t.Fatalf("expected expiry error")
	}
}

func TestVerifyRejectsOtherIssuerAndSecret(t *testing.T) {
	now := time.Now()
	other, _ := NewManager(config.AuthConfig{JWTSecret: "secret", JWTIssuer: "someone-else", AccessTokenTTL: time.Minute})
	tok, _ := other.Issue(now, "ops")
	if _, err := newManager(t).Verify(tok, now); err == nil {
		t.Fatalf("expected issuer mismatch")
	}

	wrong, _ := NewManager(config.AuthConfig{JWTSecret: "nope", JWTIssuer: "cart-dialer", AccessTokenTTL: time.Minute})
	tok, _ = wrong.Issue(now, "ops")
	if _, err := newManager(t).Verify(tok, now); err == nil {
		t.Fatalf("expected signature error")
	}
}

func TestVerifyRejectsMissingScope(t *testing.T) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "cart-dialer",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
		},
		Operator: "ops",
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := newManager(t).Verify(tok, now); err == nil {
		t.Fatalf("expected scope mismatch")
	}
}

func TestIssueRequiresOperator(t *testing.T) {
	if _, err := newManager(t).Issue(time.Now(), "  "); err == nil {
		t.Fatalf("expected error")
	}
}

func TestRequireOperator(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := newManager(t)

	r := gin.New()
	r.GET("/x", RequireOperator(m), func(c *gin.Context) {
		op, err := Operator(c.Request.Context())
		if err != nil {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.String(http.StatusOK, op)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}

	tok, _ := m.Issue(time.Now(), "ops")
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK || w.Body.String() != "ops" {
		t.Fatalf("expected 200 ops, got %d %q", w.Code, w.Body.String())
	}

	if _, err := Operator(context.Background()); err == nil {
		t.Fatalf("expected missing operator error")
	}
}
