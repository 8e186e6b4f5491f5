package model

import (
	"fmt"
	"net/url"
	"strings"
)

// DefaultServerURL is used when a request does not name a GitLab server.
const DefaultServerURL = "https://gitlab.com"

// ResolveServerURL returns raw trimmed, or fallback when raw is blank. An empty
// fallback resolves to DefaultServerURL.
func ResolveServerURL(raw, fallback string) string {
	if v := strings.TrimSpace(raw); v != "" {
		return v
	}
	if v := strings.TrimSpace(fallback); v != "" {
		return v
	}
	return DefaultServerURL
}

// ParseServerURL parses a server reference and requires both scheme and host.
func ParseServerURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse server url %q: %w", raw, err)
	}
	if u.Scheme == "" || u.Hostname() == "" {
		return nil, fmt.Errorf("server url %q must include scheme and host", raw)
	}
	return u, nil
}
