package analytics

import (
	"net"
	"strings"

	"github.com/MagnunAVF/shortener-core/internal"
)

// ClientIP prefers the first X-Forwarded-For entry and falls back to the
// peer address without its port.
func ClientIP(meta internal.RequestMeta) string {
	if meta.ForwardedFor != "" {
		first, _, _ := strings.Cut(meta.ForwardedFor, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	addr := strings.TrimSpace(meta.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return strings.Trim(addr, "[]")
}
