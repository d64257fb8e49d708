// Package urlutil builds the absolute URLs notefold hands out: share links
// and the canonical address of rendered shared notes.
package urlutil

import (
	"net/http"
	"net/url"
	"strings"
)

// SharePathPrefix is where public share links are served.
const SharePathPrefix = "/s/"

// OriginFromRequest returns scheme://host for r, honoring the first
// X-Forwarded-Proto value behind a proxy. It falls back to fallback when r
// carries no host.
func OriginFromRequest(r *http.Request, fallback string) string {
	if r == nil || strings.TrimSpace(r.Host) == "" {
		return trimBase(fallback)
	}
	return trimBase(scheme(r) + "://" + strings.TrimSpace(r.Host))
}

func scheme(r *http.Request) string {
	proto, _, _ := strings.Cut(r.Header.Get("X-Forwarded-Proto"), ",")
	switch p := strings.ToLower(strings.TrimSpace(proto)); p {
	case "http", "https":
		return p
	}
	if r.TLS != nil {
		return "https"
	}
	return "http"
}

// BuildAbsolute joins base and path. A path that is already absolute is
// returned unchanged.
func BuildAbsolute(base, path string) string {
	base = trimBase(base)
	switch {
	case path == "":
		return base
	case strings.HasPrefix(path, "http://"), strings.HasPrefix(path, "https://"):
		return path
	case strings.HasPrefix(path, "/"):
		return base + path
	default:
		return base + "/" + path
	}
}

// ShareURL is the public address of a share token. html selects the
// rendered page instead of the JSON view.
func ShareURL(base, token string, html bool) string {
	u := BuildAbsolute(base, SharePathPrefix+url.PathEscape(token))
	if html {
		u += "?format=html"
	}
	return u
}

func trimBase(base string) string {
	return strings.TrimRight(strings.TrimSpace(base), "/")
}
