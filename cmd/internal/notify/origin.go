package notify

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"slices"
	"strings"
)

// checkOrigin applies the allowlist before the upgrade.
// Entries match either the full origin or its host, ignoring scheme and port.
func checkOrigin(r *http.Request, allowed []string, required bool) error {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		if required {
			return errors.New("missing origin")
		}
		return nil
	}

	host := hostOnly(origin)
	for _, a := range allowed {
		if a == "*" || a == origin {
			return nil
		}
		if host != "" && host == hostOnly(a) {
			return nil
		}
	}
	return fmt.Errorf("origin not allowed: %s", origin)
}

func hostOnly(s string) string {
	s = strings.TrimSpace(s)
	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return ""
		}
		s = u.Host
	}
	if h, _, err := net.SplitHostPort(s); err == nil {
		s = h
	}
	return strings.ToLower(s)
}

// originPatterns turns the allowlist into websocket.AcceptOptions patterns so
// the library's own cross-origin check agrees with checkOrigin.
func originPatterns(allowed []string) []string {
	var out []string
	for _, a := range allowed {
		h := hostOnly(a)
		if h == "" || h == "*" {
			continue
		}
		out = append(out, h, h+":*")
	}
	slices.Sort(out)
	return slices.Compact(out)
}
