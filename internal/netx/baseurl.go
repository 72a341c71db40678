package netx

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ValidateBaseURL checks an operator supplied endpoint override: absolute,
// no userinfo, query or fragment, host on the allow list. Plain http is
// only accepted for loopback hosts.
func ValidateBaseURL(name, baseURL string, allowedHosts []string) error {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")

	u, err := url.Parse(baseURL)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	if !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("invalid %s %q: absolute URL with host is required", name, baseURL)
	}
	if u.User != nil {
		return fmt.Errorf("invalid %s %q: userinfo is not allowed", name, baseURL)
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return fmt.Errorf("invalid %s %q: query and fragment are not allowed", name, baseURL)
	}

	host := strings.ToLower(u.Hostname())
	switch strings.ToLower(u.Scheme) {
	case "https":
	case "http":
		if !isLoopback(host) {
			return fmt.Errorf("invalid %s %q: https is required", name, baseURL)
		}
		return nil
	default:
		return fmt.Errorf("invalid %s %q: https is required", name, baseURL)
	}

	allowed := normalizeAllowedHosts(allowedHosts)
	if len(allowed) == 0 {
		return nil
	}
	if _, ok := allowed[host]; !ok {
		return fmt.Errorf("invalid %s %q: host %q is not allowed", name, baseURL, host)
	}
	return nil
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func normalizeAllowedHosts(allowedHosts []string) map[string]struct{} {
	out := make(map[string]struct{}, len(allowedHosts))
	for _, h := range allowedHosts {
		v := strings.ToLower(strings.TrimSpace(h))
		v = strings.TrimPrefix(v, "http://")
		v = strings.TrimPrefix(v, "https://")
		v = strings.Trim(v, "/")
		if v == "" {
			continue
		}
		if i := strings.Index(v, ":"); i >= 0 {
			v = v[:i]
		}
		out[v] = struct{}{}
	}
	return out
}
