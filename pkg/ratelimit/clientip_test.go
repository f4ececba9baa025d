package ratelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requestFrom(remote string, headers map[string]string) *http.Request {
	r := httptest.NewRequest("POST", "/api/auth/login", nil)
	r.RemoteAddr = remote
	for k, v := range headers {
		r.Header.Set(k, v)
	}
	return r
}

func TestClientIP_NoTrustedProxies(t *testing.T) {
	ips := NewClientIP(nil)

	assert.Equal(t, "192.0.2.10", ips.Resolve(requestFrom("192.0.2.10:51234", nil)))
	assert.Equal(t, "192.0.2.10", ips.Resolve(requestFrom("192.0.2.10:51234", map[string]string{
		"X-Forwarded-For": "203.0.113.5",
		"X-Real-IP":       "198.51.100.7",
	})))
	assert.Equal(t, "2001:db8::1", ips.Resolve(requestFrom("[2001:db8::1]:443", nil)))
	assert.Equal(t, "192.0.2.10", ips.Resolve(requestFrom("[::ffff:192.0.2.10]:443", nil)))

	var unset *ClientIP
	assert.Equal(t, "192.0.2.10", unset.Resolve(requestFrom("192.0.2.10:1", map[string]string{"X-Real-IP": "198.51.100.7"})))
}

func TestClientIP_TrustedProxy(t *testing.T) {
	ips := NewClientIP([]netip.Prefix{
		netip.MustParsePrefix("10.0.0.0/8"),
		netip.MustParsePrefix("172.16.0.1/32"),
	})
	proxy := "10.0.0.2:8080"

	tests := []struct {
		name    string
		remote  string
		headers map[string]string
		want    string
	}{
		{"no headers", proxy, nil, "10.0.0.2"},
		{"real ip", proxy, map[string]string{"X-Real-IP": "198.51.100.7"}, "198.51.100.7"},
		{"single hop", proxy, map[string]string{"X-Forwarded-For": "203.0.113.5"}, "203.0.113.5"},
		{"spoofed prefix ignored", proxy, map[string]string{"X-Forwarded-For": "1.2.3.4, 203.0.113.5"}, "203.0.113.5"},
		{"trusted hops skipped", proxy, map[string]string{"X-Forwarded-For": "203.0.113.5, 172.16.0.1, 10.9.9.9"}, "203.0.113.5"},
		{"garbage falls back", proxy, map[string]string{"X-Forwarded-For": "nonsense", "X-Real-IP": "198.51.100.7"}, "198.51.100.7"},
		{"untrusted peer", "192.0.2.1:51000", map[string]string{"X-Forwarded-For": "203.0.113.5"}, "192.0.2.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ips.Resolve(requestFrom(tt.remote, tt.headers)))
		})
	}
}

// A client that rotates X-Forwarded-For on every attempt still shares one
// counter when it is not behind a trusted proxy.
func TestClientIP_RotatingForwardedForIsThrottled(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	limiter, err := NewMemoryLimiter(Policy{Action: "login", Window: time.Minute, MaxAttempts: 2},
		Options{Now: func() time.Time { return now }})
	require.NoError(t, err)
	t.Cleanup(limiter.Close)

	ips := NewClientIP([]netip.Prefix{netip.MustParsePrefix("10.0.0.0/8")})

	allowed := 0
	for i := 0; i < 50; i++ {
		r := requestFrom("192.0.2.1:51000", map[string]string{"X-Forwarded-For": "10.0.0." + strconv.Itoa(i)})
		d, err := limiter.Allow(context.Background(), ips.Resolve(r))
		require.NoError(t, err)
		if d.Allowed {
			allowed++
		}
	}
	assert.Equal(t, 2, allowed)
}
