package videoid

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/forPelevin/scribe/internal/types"
)

// Patterns are tried in order; the first capture group is the identifier.
var patterns = []*regexp.Regexp{
	regexp.MustCompile(`(?:v=|/)([0-9A-Za-z_-]{11})(?:[?&#]|$)`),
	regexp.MustCompile(`(?:youtu\.be/)([0-9A-Za-z_-]{11})`),
	regexp.MustCompile(`(?:embed/)([0-9A-Za-z_-]{11})`),
	regexp.MustCompile(`(?:shorts/)([0-9A-Za-z_-]{11})`),
	regexp.MustCompile(`(?:live/)([0-9A-Za-z_-]{11})`),
}

var bare = regexp.MustCompile(`^[0-9A-Za-z_-]{11}$`)

var defaultAllowedHosts = map[string]struct{}{
	"youtube.com":              {},
	"www.youtube.com":          {},
	"m.youtube.com":            {},
	"music.youtube.com":        {},
	"youtube-nocookie.com":     {},
	"www.youtube-nocookie.com": {},
	"youtu.be":                 {},
	"www.youtu.be":             {},
}

// IsBare reports whether s is already an identifier token.
func IsBare(s string) bool {
	return bare.MatchString(strings.TrimSpace(s))
}

// Resolve extracts the video identifier from any accepted URL shape.
// It performs no validation of the host; see Parse.
func Resolve(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if bare.MatchString(raw) {
		return raw, true
	}
	for _, re := range patterns {
		if m := re.FindStringSubmatch(raw); len(m) == 2 {
			return m[1], true
		}
	}
	return "", false
}

// CheckURL accepts absolute http(s) URLs on the platform hosts. A missing
// scheme is treated as https.
func CheckURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fmt.Errorf("empty url")
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("parse url: %w", err)
	}
	if u.User != nil {
		return fmt.Errorf("url %q: userinfo is not allowed", raw)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return fmt.Errorf("url %q: http or https is required", raw)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return fmt.Errorf("url %q: host is required", raw)
	}
	if _, ok := defaultAllowedHosts[host]; !ok {
		return fmt.Errorf("url %q: host %q is not a supported video host", raw, host)
	}
	return nil
}

// Parse validates raw and resolves its identifier. Bare identifiers skip
// URL validation.
func Parse(raw string) (string, error) {
	if IsBare(raw) {
		return strings.TrimSpace(raw), nil
	}
	if err := CheckURL(raw); err != nil {
		return "", types.NewError(types.ErrURLInvalid, "resolve", err)
	}
	id, ok := Resolve(raw)
	if !ok {
		return "", types.NewError(types.ErrVideoIDUnresolvable, "resolve", fmt.Errorf("no identifier in %q", raw))
	}
	return id, nil
}

// WatchURL is the canonical URL for an identifier.
func WatchURL(id string) string {
	return "https://www.youtube.com/watch?v=" + id
}
