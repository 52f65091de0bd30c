package middleware

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/bookproxy/internal/config"
	"github.com/vyrodovalexey/bookproxy/internal/observability"
)

var ginTestModeOnce sync.Once

func newTestRouter() *gin.Engine {
	ginTestModeOnce.Do(func() {
		gin.SetMode(gin.TestMode)
	})
	return gin.New()
}

func TestRequestID_Generated(t *testing.T) {
	router := newTestRouter()
	router.Use(RequestID())

	var ctxID string
	router.GET("/", func(c *gin.Context) {
		ctxID = observability.RequestIDFromContext(c.Request.Context())
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	headerID := w.Header().Get(RequestIDHeader)
	require.NotEmpty(t, headerID)
	assert.Equal(t, headerID, ctxID)
}

func TestRequestID_InboundPreserved(t *testing.T) {
	router := newTestRouter()
	router.Use(RequestID())
	router.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set(RequestIDHeader, "given-id")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	assert.Equal(t, "given-id", w.Header().Get(RequestIDHeader))
}

func TestRecovery(t *testing.T) {
	router := newTestRouter()
	router.Use(Recovery(observability.NopLogger()))
	router.GET("/panic", func(c *gin.Context) {
		panic("boom")
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))

	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "internal server error")
}

func TestLogging_PassesThrough(t *testing.T) {
	router := newTestRouter()
	router.Use(Logging(observability.NopLogger(), nil))
	router.GET("/ok", func(c *gin.Context) {
		c.String(http.StatusTeapot, "tea")
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))

	assert.Equal(t, http.StatusTeapot, w.Code)
	assert.Equal(t, "tea", w.Body.String())
}

func TestRateLimiter_Allow(t *testing.T) {
	rl := NewRateLimiter(1, 2)
	defer rl.Stop()

	assert.True(t, rl.Allow("10.0.0.1"))
	assert.True(t, rl.Allow("10.0.0.1"))
	assert.False(t, rl.Allow("10.0.0.1"), "burst exhausted")

	// Separate clients have separate buckets.
	assert.True(t, rl.Allow("10.0.0.2"))
}

func TestRateLimit_Middleware(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	defer rl.Stop()

	router := newTestRouter()
	router.GET("/", RateLimit(rl), func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
}

func TestRateLimitFromConfig_Disabled(t *testing.T) {
	mw, rl := RateLimitFromConfig(config.RateLimitConfig{Enabled: false}, observability.NopLogger())
	assert.Nil(t, rl)

	router := newTestRouter()
	router.GET("/", mw, func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 20; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		require.Equal(t, http.StatusOK, w.Code)
	}
}
