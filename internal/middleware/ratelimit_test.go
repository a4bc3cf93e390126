package middleware

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiter_allowUpToLimit(t *testing.T) {
	rl := NewRateLimiter(time.Minute, 3)

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow("ip:1.2.3.4"), "request %d within limit", i+1)
	}
	assert.False(t, rl.Allow("ip:1.2.3.4"))

	// Other keys are unaffected.
	assert.True(t, rl.Allow("ip:5.6.7.8"))
}

func TestRateLimiter_windowSlides(t *testing.T) {
	rl := NewRateLimiter(50*time.Millisecond, 1)

	assert.True(t, rl.Allow("k"))
	assert.False(t, rl.Allow("k"))

	time.Sleep(60 * time.Millisecond)
	assert.True(t, rl.Allow("k"))
}

func TestGetIPKey(t *testing.T) {
	req := httptest.NewRequest("POST", "/auth/send-otp", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	assert.Equal(t, "ip:10.0.0.1:1234", GetIPKey(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	assert.Equal(t, "ip:203.0.113.9", GetIPKey(req))
}

func TestGetEmailKey(t *testing.T) {
	assert.Equal(t, "email:user@example.com", GetEmailKey("  User@Example.COM "))
}
