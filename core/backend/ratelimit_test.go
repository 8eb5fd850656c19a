package backend

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func newTestRateLimiter(config RateLimitConfiguration) (*rateLimiter, *fakeClock) {
	clock := &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	rl := newRateLimiter(config)
	rl.now = clock.Now
	return rl, clock
}

func TestRateLimiter_Allow(t *testing.T) {
	rl, clock := newTestRateLimiter(RateLimitConfiguration{PerMinute: 2})

	ok, _ := rl.allow(RouteGet, "10.0.0.1")
	assert.True(t, ok)
	ok, _ = rl.allow(RouteGet, "10.0.0.1")
	assert.True(t, ok)
	ok, delay := rl.allow(RouteGet, "10.0.0.1")
	assert.False(t, ok)
	assert.InDelta(t, float64(30*time.Second), float64(delay), float64(time.Millisecond))

	ok, _ = rl.allow(RouteGet, "10.0.0.2")
	assert.True(t, ok, "clients are limited independently")
	ok, _ = rl.allow(RouteCreate, "10.0.0.1")
	assert.True(t, ok, "routes are limited independently")

	clock.now = clock.now.Add(31 * time.Second)
	ok, _ = rl.allow(RouteGet, "10.0.0.1")
	assert.True(t, ok, "a token is refilled after 30 seconds")
	ok, _ = rl.allow(RouteGet, "10.0.0.1")
	assert.False(t, ok)
}

func TestRateLimiter_RouteOverrides(t *testing.T) {
	rl, _ := newTestRateLimiter(RateLimitConfiguration{
		PerMinute: 1,
		Routes:    map[string]int{RouteList: 3, RouteFilter: 0},
	})

	for i := 0; i < 3; i++ {
		ok, _ := rl.allow(RouteList, "10.0.0.1")
		assert.True(t, ok)
	}
	ok, _ := rl.allow(RouteList, "10.0.0.1")
	assert.False(t, ok)

	for i := 0; i < 10; i++ {
		ok, _ := rl.allow(RouteFilter, "10.0.0.1")
		assert.True(t, ok, "a zero limit disables rate limiting")
	}
}

func TestRateLimiter_Disabled(t *testing.T) {
	rl, _ := newTestRateLimiter(RateLimitConfiguration{})
	for i := 0; i < 100; i++ {
		ok, _ := rl.allow(RouteDelete, "10.0.0.1")
		require.True(t, ok)
	}
	assert.Empty(t, rl.clients)
}

func TestRateLimiter_Cleanup(t *testing.T) {
	rl, clock := newTestRateLimiter(RateLimitConfiguration{PerMinute: 5})

	rl.allow(RouteGet, "10.0.0.1")
	rl.allow(RouteGet, "10.0.0.2")
	assert.Len(t, rl.clients, 2)

	clock.now = clock.now.Add(staleLimiterAge + time.Second)
	rl.allow(RouteGet, "10.0.0.3")
	assert.Len(t, rl.clients, 1)
}

func TestRateLimiter_Middleware(t *testing.T) {
	rl, _ := newTestRateLimiter(RateLimitConfiguration{PerMinute: 1})
	router := mux.NewRouter()
	router.Use(rl.middleware)
	router.HandleFunc("/table/{table_name}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Name(RouteList)

	request := func(remoteAddr string) *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodGet, "/table/customers", nil)
		r.RemoteAddr = remoteAddr
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, r)
		return rec
	}

	assert.Equal(t, http.StatusOK, request("10.0.0.1:1234").Code)
	rec := request("10.0.0.1:5678")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code, "the port is not part of the client")
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"error":"rate limit exceeded"}`, rec.Body.String())
	assert.Equal(t, http.StatusOK, request("10.0.0.2:1234").Code)
}
