package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"survey-dialer/internal/config"

	"github.com/gin-gonic/gin"
)

func TestIssueAndVerify(t *testing.T) {
	m, err := NewManager(config.AuthConfig{
		JWTSecret:   "secret",
		JWTIssuer:   "issuer",
		JWTAudience: "aud",
		TokenTTL:    15 * time.Minute,
	})
	if err != nil {
		t.Fatalf("manager: %v", err)
	}

	now := time.Unix(1700000000, 0).UTC()
	tok, err := m.Issue(now, "ops-1", "admin")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	claims, err := m.Verify(tok, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Operator != "ops-1" || claims.Role != "admin" {
		t.Fatalf("unexpected claims: %+v", claims)
	}

	if _, err := m.Verify(tok, now.Add(time.Hour)); err == nil {
		t.Fatalf("expected expired token to fail")
	}
}

func TestVerifyRejectsForeignSecret(t *testing.T) {
	a, _ := NewManager(config.AuthConfig{JWTSecret: "a"})
	b, _ := NewManager(config.AuthConfig{JWTSecret: "b"})
	tok, err := a.Issue(time.Now(), "ops", "operator")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := b.Verify(tok, time.Now()); err == nil {
		t.Fatalf("expected signature failure")
	}
}

func TestNewManagerRequiresSecret(t *testing.T) {
	if _, err := NewManager(config.AuthConfig{}); err == nil {
		t.Fatalf("expected error without secret")
	}
}

func TestRequireAccessToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m, _ := NewManager(config.AuthConfig{JWTSecret: "secret"})

	r := gin.New()
	r.GET("/x", RequireAccessToken(m), func(c *gin.Context) {
		op, err := Operator(c.Request.Context())
		if err != nil {
			t.Errorf("operator: %v", err)
		}
		c.String(http.StatusOK, op)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}

	tok, _ := m.Issue(time.Now(), "ops-7", "operator")
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK || w.Body.String() != "ops-7" {
		t.Fatalf("expected 200 ops-7, got %d %q", w.Code, w.Body.String())
	}
}
