package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() (http.Handler, *int) {
	hits := new(int)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*hits++
	}), hits
}

func TestWrapDisabledByDefault(t *testing.T) {
	t.Setenv("RATE_LIMIT_ENABLED", "")
	next, hits := okHandler()
	h := Wrap(next)

	for i := 0; i < 500; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}
	assert.Equal(t, 500, *hits)
}

func TestWrapEnforcesBudget(t *testing.T) {
	t.Setenv("RATE_LIMIT_ENABLED", "true")
	t.Setenv("RATE_LIMIT_QPS", "3")
	next, hits := okHandler()
	h := Wrap(next)

	// The bucket may roll over to a fresh second mid-loop, so over-budget
	// requests can pass at most twice the budget, never all of them.
	codes := map[int]int{}
	for i := 0; i < 10; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		codes[rec.Code]++
	}
	assert.Greater(t, codes[http.StatusTooManyRequests], 0)
	assert.LessOrEqual(t, *hits, 6)
	assert.Equal(t, codes[http.StatusOK], *hits)
}

func TestTokenBucketRefills(t *testing.T) {
	tb := &TokenBucket{capacity: 2, tokens: 0, lastSec: 0}
	// lastSec of zero forces the refill branch on first use.
	assert.True(t, tb.allow())
	assert.True(t, tb.allow())
	assert.False(t, tb.allow())
}
