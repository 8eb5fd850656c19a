// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

package backend

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/time/rate"

	"github.com/relabs-tech/tablegate/core/logger"
)

// RateLimitConfiguration limits the requests per client IP and route
type RateLimitConfiguration struct {
	// PerMinute is the default number of requests per minute. Zero disables rate limiting.
	PerMinute int
	// Routes overrides PerMinute for single routes, keyed by route name, e.g. "list".
	// A zero value disables rate limiting for that route.
	Routes map[string]int
}

const staleLimiterAge = 10 * time.Minute

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type rateLimiter struct {
	config RateLimitConfiguration
	now    func() time.Time

	mutex       sync.Mutex
	clients     map[string]*clientLimiter
	lastCleanup time.Time
}

func newRateLimiter(config RateLimitConfiguration) *rateLimiter {
	return &rateLimiter{
		config:  config,
		now:     time.Now,
		clients: make(map[string]*clientLimiter),
	}
}

// limit returns the requests per minute for a route
func (rl *rateLimiter) limit(route string) int {
	if n, ok := rl.config.Routes[route]; ok {
		return n
	}
	return rl.config.PerMinute
}

func (rl *rateLimiter) limiter(key string, perMinute int, now time.Time) *rate.Limiter {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	if now.Sub(rl.lastCleanup) > staleLimiterAge {
		for k, cl := range rl.clients {
			if now.Sub(cl.lastSeen) > staleLimiterAge {
				delete(rl.clients, k)
			}
		}
		rl.lastCleanup = now
	}

	if cl, ok := rl.clients[key]; ok {
		cl.lastSeen = now
		return cl.limiter
	}
	limiter := rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute)
	rl.clients[key] = &clientLimiter{limiter: limiter, lastSeen: now}
	return limiter
}

// allow reports whether a request is admitted. If not, it also returns the time to wait.
func (rl *rateLimiter) allow(route, ip string) (bool, time.Duration) {
	perMinute := rl.limit(route)
	if perMinute <= 0 {
		return true, 0
	}
	now := rl.now()
	limiter := rl.limiter(route+"|"+ip, perMinute, now)

	reservation := limiter.ReserveN(now, 1)
	if !reservation.OK() {
		return false, 0
	}
	if delay := reservation.DelayFrom(now); delay > 0 {
		reservation.CancelAt(now)
		return false, delay
	}
	return true, 0
}

func (rl *rateLimiter) middleware(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := ""
		if current := mux.CurrentRoute(r); current != nil {
			route = current.GetName()
		}
		ip := clientIP(r)
		if ok, delay := rl.allow(route, ip); !ok {
			logger.FromContext(r.Context()).Warnf("rate limit exceeded for %s on route %s", ip, route)
			if delay > 0 {
				w.Header().Set("Retry-After", strconv.Itoa(int(delay.Seconds())+1))
			}
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		h.ServeHTTP(w, r)
	})
}

// clientIP is the host part of the remote address. Forwarding headers are not trusted.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
