package security

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP extracts the originating client IP from a request so callers can
// feed a stable origin key into the lockout and throttle layers.
//
// Only set trustProxy when running behind a reverse proxy you control;
// otherwise X-Forwarded-For is attacker-controlled. trustedProxyCount is how
// many proxies to trust from the right of the X-Forwarded-For chain.
func ClientIP(r *http.Request, trustProxy bool, trustedProxyCount int) string {
	if trustProxy {
		if ip := ipFromForwardedFor(r.Header.Get("X-Forwarded-For"), trustedProxyCount); ip != "" {
			return ip
		}
		if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); net.ParseIP(ip) != nil {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// ipFromForwardedFor picks the client entry from an X-Forwarded-For chain of
// the form "client, proxy1, proxy2" where the rightmost entries are the
// trusted proxies.
func ipFromForwardedFor(xff string, trustedProxyCount int) string {
	if xff == "" {
		return ""
	}
	ips := strings.Split(xff, ",")

	proxyCount := trustedProxyCount
	if proxyCount == 0 {
		proxyCount = 1
	}
	idx := len(ips) - proxyCount - 1
	if idx < 0 {
		idx = 0
	}

	candidate := strings.TrimSpace(ips[idx])
	if net.ParseIP(candidate) != nil {
		return candidate
	}
	return ""
}
