package app

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func loginFrom(h *harness, remoteAddr string) int {
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login",
		strings.NewReader(`{"email":"ann@example.com","password":"password123"}`))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = remoteAddr
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w.Code
}

func TestLoginRateLimited(t *testing.T) {
	h := newHarness(t)
	h.register("ann@example.com", RolePatient)

	h.app.Limiter = NewLoginLimiter(4, zap.NewNop())
	r := gin.New()
	h.app.Routes(r)
	h.router = r

	assert.Equal(t, http.StatusOK, loginFrom(h, "203.0.113.7:5000"))
	assert.Equal(t, http.StatusTooManyRequests, loginFrom(h, "203.0.113.7:5001"))
	assert.Equal(t, http.StatusOK, loginFrom(h, "203.0.113.8:5000"), "other IPs keep their own budget")
}

func TestNilLoginLimiterPassesThrough(t *testing.T) {
	assert.Nil(t, NewLoginLimiter(0, nil))

	h := newHarness(t)
	h.register("ann@example.com", RolePatient)
	for range 5 {
		assert.Equal(t, http.StatusOK, loginFrom(h, "203.0.113.7:5000"))
	}
}

func TestLoginLimiterForgetsIdleClients(t *testing.T) {
	l := NewLoginLimiter(60, nil)
	now := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	require.True(t, l.allow("203.0.113.1"))
	require.True(t, l.allow("203.0.113.2"))
	assert.Len(t, l.clients, 2)

	now = now.Add(30 * time.Second)
	require.True(t, l.allow("203.0.113.2"))
	assert.Len(t, l.clients, 2, "not idle long enough")

	now = now.Add(45 * time.Second)
	require.True(t, l.allow("203.0.113.3"))
	assert.Len(t, l.clients, 2)
	assert.NotContains(t, l.clients, "203.0.113.1")
	assert.Contains(t, l.clients, "203.0.113.2")
}
