package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func newTestLimiter(rpm, burst int) (*Limiter, *time.Time) {
	l := New(Config{RequestsPerMinute: rpm, BurstSize: burst, IdleTTL: time.Hour})
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	return l, &now
}

func TestLimiterAllow(t *testing.T) {
	limiter, now := newTestLimiter(60, 5)
	defer limiter.Stop()

	for i := 0; i < 5; i++ {
		assert.True(t, limiter.Allow("ip"), "request %d should be within burst", i)
	}
	assert.False(t, limiter.Allow("ip"), "request after burst should be denied")

	// 60/min replenishes one token per second
	*now = now.Add(time.Second)
	assert.True(t, limiter.Allow("ip"))
	assert.False(t, limiter.Allow("ip"))
}

func TestLimiterMultipleClients(t *testing.T) {
	limiter, _ := newTestLimiter(60, 3)
	defer limiter.Stop()

	for i := 0; i < 3; i++ {
		limiter.Allow("client-a")
	}
	assert.False(t, limiter.Allow("client-a"))
	assert.True(t, limiter.Allow("client-b"), "clients have independent buckets")
}

func TestLimiterBurstCap(t *testing.T) {
	limiter, now := newTestLimiter(60, 2)
	defer limiter.Stop()

	limiter.Allow("ip")
	*now = now.Add(time.Hour) // refill is capped at burst
	assert.True(t, limiter.Allow("ip"))
	assert.True(t, limiter.Allow("ip"))
	assert.False(t, limiter.Allow("ip"))
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	limiter, _ := newTestLimiter(30, 1)
	defer limiter.Stop()

	r := gin.New()
	r.Use(limiter.Middleware())
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "2", w.Header().Get("Retry-After")) // 30/min = one token per 2s
	assert.Contains(t, w.Body.String(), "rate_limit_exceeded")
}

func TestMiddleware_CustomKey(t *testing.T) {
	gin.SetMode(gin.TestMode)
	limiter := New(Config{
		RequestsPerMinute: 60,
		BurstSize:         1,
		KeyFunc:           func(c *gin.Context) string { return c.GetHeader("X-User") },
	})
	defer limiter.Stop()

	r := gin.New()
	r.Use(limiter.Middleware())
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	for _, user := range []string{"alice", "bob"} {
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("X-User", user)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code, user)
	}
}

func TestEvictIdle(t *testing.T) {
	limiter, now := newTestLimiter(60, 1)
	defer limiter.Stop()

	assert.True(t, limiter.Allow("stale"))
	assert.False(t, limiter.Allow("stale"))

	*now = now.Add(2 * time.Hour)
	limiter.Allow("fresh")
	limiter.evictIdle()

	limiter.mu.Lock()
	_, staleKept := limiter.buckets["stale"]
	_, freshKept := limiter.buckets["fresh"]
	limiter.mu.Unlock()
	assert.False(t, staleKept)
	assert.True(t, freshKept)
}

func TestStopIdempotent(t *testing.T) {
	limiter := New(DefaultConfig())
	limiter.Stop()
	limiter.Stop()
}
