package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRateLimiter_Middleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	limiter := NewRateLimiter(0.001, 2, zap.NewNop())

	router := gin.New()
	router.Use(limiter.Middleware())
	router.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest("GET", "/ping", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		router.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	// another client has its own bucket
	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/ping", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimiter_EvictsIdleClients(t *testing.T) {
	gin.SetMode(gin.TestMode)
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	limiter := NewRateLimiter(1, 2, zap.NewNop())
	limiter.now = func() time.Time { return now }

	router := gin.New()
	router.Use(limiter.Middleware())
	router.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })
	hit := func(addr string) int {
		w := httptest.NewRecorder()
		req := httptest.NewRequest("GET", "/ping", nil)
		req.RemoteAddr = addr
		router.ServeHTTP(w, req)
		return w.Code
	}

	for i := 0; i < 100; i++ {
		hit(fmt.Sprintf("10.0.%d.%d:1234", i/256, i%256))
	}
	require.Equal(t, 100, limiter.size())

	now = now.Add(limiterIdleTTL - time.Second)
	hit("10.0.0.1:1234")
	assert.Zero(t, limiter.evictIdle())

	now = now.Add(2 * time.Second)
	assert.Equal(t, 99, limiter.evictIdle())
	assert.Equal(t, 1, limiter.size())

	// an evicted client comes back with a fresh bucket
	assert.Equal(t, http.StatusOK, hit("10.0.0.2:1234"))
	assert.Equal(t, 2, limiter.size())
}

func TestRateLimiter_IdleTTLCoversRefill(t *testing.T) {
	slow := NewRateLimiter(0.001, 2, zap.NewNop())
	assert.Equal(t, 2000*time.Second, slow.idleTTL)

	fast := NewRateLimiter(10, 20, zap.NewNop())
	assert.Equal(t, limiterIdleTTL, fast.idleTTL)
}

func TestRateLimiter_RunStopsOnCancel(t *testing.T) {
	limiter := NewRateLimiter(10, 20, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		limiter.Run(ctx, time.Millisecond)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestHealthHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)

	healthy := NewHealthHandler(map[string]Pinger{
		"postgres": PingFunc(func(ctx context.Context) error { return nil }),
	})
	router := gin.New()
	healthy.Register(router)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	unhealthy := NewHealthHandler(map[string]Pinger{
		"postgres": PingFunc(func(ctx context.Context) error { return nil }),
		"redis":    PingFunc(func(ctx context.Context) error { return errors.New("connection refused") }),
	})
	router = gin.New()
	unhealthy.Register(router)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "connection refused")
}
