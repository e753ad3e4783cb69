// Package middleware holds the entry-level HTTP wrappers shared by all routes.
package middleware

import (
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"
)

// TokenBucket is a per-second token bucket. Simplified on purpose: no queueing,
// requests over the budget are dropped with 429. Protects the query engine and
// the redis/postgres backends during traffic spikes.
type TokenBucket struct {
	capacity int
	tokens   int
	lastSec  int64
	mu       sync.Mutex
}

func (tb *TokenBucket) allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	nowSec := time.Now().Unix()
	if tb.lastSec != nowSec {
		tb.lastSec = nowSec
		tb.tokens = tb.capacity
	}
	if tb.tokens > 0 {
		tb.tokens--
		return true
	}
	return false
}

// Wrap applies the env-gated rate limiter. RATE_LIMIT_ENABLED=true turns it
// on, RATE_LIMIT_QPS overrides the default budget of 200 requests per second.
func Wrap(next http.Handler) http.Handler {
	if os.Getenv("RATE_LIMIT_ENABLED") != "true" {
		return next
	}
	qps := 200
	if s := os.Getenv("RATE_LIMIT_QPS"); s != "" {
		if n, e := strconv.Atoi(s); e == nil && n > 0 {
			qps = n
		}
	}
	tb := &TokenBucket{capacity: qps, tokens: qps, lastSec: time.Now().Unix()}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !tb.allow() {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
