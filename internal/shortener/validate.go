package shortener

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/MagnunAVF/shortener-core/internal"
	"github.com/MagnunAVF/shortener-core/internal/codegen"
)

const (
	maxURLLength    = 2048
	maxExpireInDays = 365
	maxBulkItems    = 100
)

var dangerousSchemes = []string{"javascript:", "data:", "vbscript:", "file:"}

// other shorteners are refused so links cannot be chained to hide the target
var blockedDomains = []string{"bit.ly", "tinyurl.com", "goo.gl", "ow.ly"}

// codes that would shadow a route of the HTTP surface
var reservedCodes = map[string]struct{}{
	"api": {}, "health": {}, "metrics": {}, "static": {}, "admin": {},
	"login": {}, "logout": {}, "docs": {}, "favicon.ico": {}, "robots.txt": {},
}

// ValidateURL checks that raw is an absolute http(s) URL pointing at a public host.
func ValidateURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: url is required", internal.ErrInvalidURL)
	}
	if len(raw) > maxURLLength {
		return "", fmt.Errorf("%w: url longer than %d characters", internal.ErrInvalidURL, maxURLLength)
	}

	lower := strings.ToLower(raw)
	for _, scheme := range dangerousSchemes {
		if strings.HasPrefix(lower, scheme) {
			return "", fmt.Errorf("%w: %s urls are not allowed", internal.ErrUnsafeURL, strings.TrimSuffix(scheme, ":"))
		}
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %w", internal.ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: url must start with http:// or https://", internal.ErrInvalidURL)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", fmt.Errorf("%w: url has no host", internal.ErrInvalidURL)
	}

	if host == "localhost" || strings.HasSuffix(host, ".localhost") || strings.HasSuffix(host, ".local") {
		return "", fmt.Errorf("%w: local addresses are not allowed", internal.ErrUnsafeURL)
	}
	if ip := net.ParseIP(host); ip != nil {
		return "", fmt.Errorf("%w: ip address hosts are not allowed", internal.ErrUnsafeURL)
	}
	for _, d := range blockedDomains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return "", fmt.Errorf("%w: links to %s are not allowed", internal.ErrUnsafeURL, d)
		}
	}
	return raw, nil
}

// ValidateCustomCode checks a caller chosen code.
func ValidateCustomCode(code string) error {
	if !codegen.Valid(code) {
		return fmt.Errorf("%w: use 3-20 letters, digits, '-' or '_'", internal.ErrInvalidCode)
	}
	if _, ok := reservedCodes[strings.ToLower(code)]; ok {
		return fmt.Errorf("%w: %q is reserved", internal.ErrInvalidCode, code)
	}
	return nil
}

func validateExpiration(days int) error {
	if days < 0 || days > maxExpireInDays {
		return internal.ErrInvalidExpiration
	}
	return nil
}
