package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/winfantasy/draft-proxy-server/internal/v1/config"
	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(t *testing.T) (*RateLimiter, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	rc := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	cfg := &config.Config{
		RateLimitWsIP: "5-M", // 5 per minute
	}

	rl, err := NewRateLimiter(cfg, rc)
	require.NoError(t, err)

	return rl, mr
}

func TestNewRateLimiter_Memory(t *testing.T) {
	cfg := &config.Config{RateLimitWsIP: "5-M"}
	rl, err := NewRateLimiter(cfg, nil)
	assert.NoError(t, err)
	assert.NotNil(t, rl)
	assert.Nil(t, rl.redisClient)
}

func TestNewRateLimiter_InvalidRate(t *testing.T) {
	cfg := &config.Config{RateLimitWsIP: "not-a-rate"}
	_, err := NewRateLimiter(cfg, nil)
	assert.Error(t, err)
}

func newCheckContext(ip string) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req := httptest.NewRequest(http.MethodGet, "/yahoo/websocket/connection", nil)
	req.RemoteAddr = ip + ":12345"
	c.Request = req
	return c, w
}

func TestCheckWebSocket_AllowsUnderLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rl, mr := newTestLimiter(t)
	defer mr.Close()

	c, w := newCheckContext("10.0.0.1")
	allowed := rl.CheckWebSocket(c)

	assert.True(t, allowed)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCheckWebSocket_RejectsOverLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rl, mr := newTestLimiter(t)
	defer mr.Close()

	ip := "10.0.0.2"
	for i := 0; i < 5; i++ {
		c, _ := newCheckContext(ip)
		require.True(t, rl.CheckWebSocket(c))
	}

	c, w := newCheckContext(ip)
	allowed := rl.CheckWebSocket(c)

	assert.False(t, allowed)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestCheckWebSocket_SeparateIPsTrackedIndependently(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rl, mr := newTestLimiter(t)
	defer mr.Close()

	for i := 0; i < 5; i++ {
		c, _ := newCheckContext("10.0.0.3")
		require.True(t, rl.CheckWebSocket(c))
	}

	c, w := newCheckContext("10.0.0.4")
	allowed := rl.CheckWebSocket(c)

	assert.True(t, allowed)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCheckWebSocket_FailsOpenWhenStoreUnavailable(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rl, mr := newTestLimiter(t)
	mr.Close() // kill redis before the check runs

	c, _ := newCheckContext("10.0.0.5")
	allowed := rl.CheckWebSocket(c)

	assert.True(t, allowed, "rate limiter should fail open when the store is unreachable")
}
