package admission

import (
	"net"
	"net/http"
	"strings"
)

// UnknownClient keys requests whose address cannot be determined.
const UnknownClient = "unknown"

// ClientIP returns the client address used as the admission key. Forwarding
// headers are honored only when trustProxy is set.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if ip := parseForwardedIP(r.Header.Get("X-Forwarded-For")); ip != nil {
			return ip.String()
		}
		if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
			return ip.String()
		}
	}
	remote := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(remote); err == nil {
		remote = host
	}
	if ip := net.ParseIP(remote); ip != nil {
		return ip.String()
	}
	if remote == "" {
		return UnknownClient
	}
	return remote
}

// parseForwardedIP returns the first entry of X-Forwarded-For when it is an IP.
func parseForwardedIP(raw string) net.IP {
	first, _, _ := strings.Cut(raw, ",")
	return net.ParseIP(strings.TrimSpace(first))
}
