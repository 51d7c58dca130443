package server

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimits(globalMax int64, perIPMax int) *ConnectionLimits {
	// Rate limit wide open so tests exercise one limit at a time.
	return NewConnectionLimits(globalMax, perIPMax, 1000, 1000)
}

func TestConnectionLimits_GlobalCap(t *testing.T) {
	limits := newTestLimits(2, 10)

	ok, _ := limits.Acquire("10.0.0.1")
	require.True(t, ok)
	ok, _ = limits.Acquire("10.0.0.2")
	require.True(t, ok)

	ok, reason := limits.Acquire("10.0.0.3")
	assert.False(t, ok)
	assert.Equal(t, LimitReasonGlobal, reason)

	limits.Release("10.0.0.1")
	ok, _ = limits.Acquire("10.0.0.3")
	assert.True(t, ok)
}

func TestConnectionLimits_PerIPCap(t *testing.T) {
	limits := newTestLimits(100, 2)

	ok, _ := limits.Acquire("10.0.0.1")
	require.True(t, ok)
	ok, _ = limits.Acquire("10.0.0.1")
	require.True(t, ok)

	ok, reason := limits.Acquire("10.0.0.1")
	assert.False(t, ok)
	assert.Equal(t, LimitReasonPerIP, reason)

	// A different IP is unaffected.
	ok, _ = limits.Acquire("10.0.0.2")
	assert.True(t, ok)

	// The per-IP rejection must not leak a global slot.
	limits.Release("10.0.0.1")
	limits.Release("10.0.0.1")
	limits.Release("10.0.0.2")
	for range 100 {
		ok, _ = limits.Acquire("10.0.0.3")
		require.True(t, ok)
		limits.Release("10.0.0.3")
	}
}

func TestConnectionLimits_RateLimit(t *testing.T) {
	limits := NewConnectionLimits(100, 100, 1, 2)

	ok, _ := limits.Acquire("10.0.0.1")
	require.True(t, ok)
	ok, _ = limits.Acquire("10.0.0.1")
	require.True(t, ok)

	// Burst exhausted at 1/sec.
	ok, reason := limits.Acquire("10.0.0.1")
	assert.False(t, ok)
	assert.Equal(t, LimitReasonRate, reason)
}

func TestConnectionLimits_ConcurrentGlobalCap(t *testing.T) {
	limits := newTestLimits(50, 1000)
	var successCount atomic.Int64

	start := make(chan struct{})
	var wg sync.WaitGroup
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if ok, _ := limits.Acquire("10.0.0.1"); ok {
				successCount.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int64(50), successCount.Load())
}

func TestHandleWebSocket_RejectsOverGlobalLimit(t *testing.T) {
	srv := newTestServer()
	srv.limits = newTestLimits(0, 10)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := srv.handleWebSocket(c)

	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandleWebSocket_RejectsOverPerIPLimit(t *testing.T) {
	srv := newTestServer()
	srv.limits = newTestLimits(100, 0)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := srv.handleWebSocket(c)

	require.NoError(t, err)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestHandleWebSocket_ReleasesSlotAfterSession(t *testing.T) {
	srv := newTestServer()
	srv.limits = newTestLimits(1, 1)

	e := echo.New()
	for range 3 {
		req := httptest.NewRequest(http.MethodGet, "/ws", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		require.NoError(t, srv.handleWebSocket(c))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}
