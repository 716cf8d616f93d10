package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiter_PerClient(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	now := time.Unix(1_700_000_000, 0)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("10.0.0.1"))
	assert.False(t, rl.Allow("10.0.0.1"))
	assert.True(t, rl.Allow("10.0.0.2"), "buckets are per client")

	now = now.Add(time.Second)
	assert.True(t, rl.Allow("10.0.0.1"), "refilled after one second")
}

func TestRateLimiter_Unlimited(t *testing.T) {
	rl := NewRateLimiter(0, 0)
	for i := 0; i < 100; i++ {
		assert.True(t, rl.Allow("10.0.0.1"))
	}
}

func TestRateLimiter_Sweep(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	now := time.Unix(1_700_000_000, 0)
	rl.now = func() time.Time { return now }

	rl.Allow("a")
	now = now.Add(2 * time.Minute)
	rl.Allow("b")
	now = now.Add(2 * time.Minute)

	assert.Equal(t, 1, rl.Sweep())
	assert.Len(t, rl.visitors, 1)
	assert.Contains(t, rl.visitors, "b")
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "192.0.2.7:5555"
	assert.Equal(t, "192.0.2.7", clientIP(r))

	r.RemoteAddr = "[2001:db8::1]"
	assert.Equal(t, "2001:db8::1", clientIP(r))
}

func TestStatusForKind(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, StatusForKind(""))
}
