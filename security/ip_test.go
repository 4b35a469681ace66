package security

import (
	"net/http/httptest"
	"testing"
)

func TestClientIP(t *testing.T) {
	tests := []struct {
		name         string
		remoteAddr   string
		forwardedFor string
		realIP       string
		trustProxy   bool
		proxyCount   int
		want         string
	}{
		{
			name:       "direct connection",
			remoteAddr: "192.0.2.10:54321",
			want:       "192.0.2.10",
		},
		{
			name:         "proxy headers ignored when untrusted",
			remoteAddr:   "192.0.2.10:54321",
			forwardedFor: "203.0.113.5",
			want:         "192.0.2.10",
		},
		{
			name:         "single trusted proxy",
			remoteAddr:   "10.0.0.1:80",
			forwardedFor: "203.0.113.5, 10.0.0.1",
			trustProxy:   true,
			proxyCount:   1,
			want:         "203.0.113.5",
		},
		{
			name:         "two trusted proxies",
			remoteAddr:   "10.0.0.1:80",
			forwardedFor: "203.0.113.5, 10.0.0.2, 10.0.0.1",
			trustProxy:   true,
			proxyCount:   2,
			want:         "203.0.113.5",
		},
		{
			name:       "x-real-ip fallback",
			remoteAddr: "10.0.0.1:80",
			realIP:     "203.0.113.7",
			trustProxy: true,
			want:       "203.0.113.7",
		},
		{
			name:         "invalid forwarded entry falls through",
			remoteAddr:   "10.0.0.1:80",
			forwardedFor: "not-an-ip, 10.0.0.1",
			trustProxy:   true,
			proxyCount:   1,
			want:         "10.0.0.1",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("POST", "/login", nil)
			r.RemoteAddr = tt.remoteAddr
			if tt.forwardedFor != "" {
				r.Header.Set("X-Forwarded-For", tt.forwardedFor)
			}
			if tt.realIP != "" {
				r.Header.Set("X-Real-IP", tt.realIP)
			}

			if got := ClientIP(r, tt.trustProxy, tt.proxyCount); got != tt.want {
				t.Errorf("ClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}
