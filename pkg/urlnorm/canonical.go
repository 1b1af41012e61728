// Package urlnorm implements URL canonicalization used as the identity and equality key
// for article deduplication.
package urlnorm

import (
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/idna"
)

// DefaultTrackingPrefixes are query parameter prefixes removed from canonical URLs
var DefaultTrackingPrefixes = []string{"utm_"}

// DefaultTrackingParams are query parameters removed from canonical URLs by exact name
var DefaultTrackingParams = []string{"ref", "fbclid", "gclid", "mc_cid", "mc_eid", "cmpid", "ncid", "guccounter"}

// Canonicalizer turns URLs into canonical form. Two URLs are the same article iff
// their canonical forms are equal. Canonical is idempotent.
type Canonicalizer struct {
	prefixes []string
	exact    map[string]struct{}
}

// New makes a Canonicalizer removing query parameters matching any of prefixes or any of exact names.
// Matching is case-insensitive.
func New(prefixes, exact []string) *Canonicalizer {
	c := &Canonicalizer{exact: make(map[string]struct{}, len(exact))}
	for _, p := range prefixes {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			c.prefixes = append(c.prefixes, p)
		}
	}
	for _, e := range exact {
		if e = strings.ToLower(strings.TrimSpace(e)); e != "" {
			c.exact[e] = struct{}{}
		}
	}
	return c
}

// NewDefault makes a Canonicalizer with the default tracking parameters
func NewDefault() *Canonicalizer {
	return New(DefaultTrackingPrefixes, DefaultTrackingParams)
}

// Canonical returns the canonical form of rawURL:
// lower-cased scheme and host without leading "www." and default port, no fragment,
// no trailing slash or /index.html, no tracking query parameters, sorted query.
// Unparsable or host-less input is returned trimmed and lower-cased.
func (c *Canonicalizer) Canonical(rawURL string) string {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return ""
	}

	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return strings.ToLower(rawURL)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = c.host(u)
	u.Fragment, u.RawFragment = "", ""

	u.Path = trimPath(u.Path)
	u.RawPath = ""

	q := u.Query()
	for k := range q {
		if c.isTracking(k) {
			q.Del(k)
		}
	}
	u.RawQuery = q.Encode()
	u.ForceQuery = false

	return u.String()
}

// Same reports whether two URLs have the same canonical form
func (c *Canonicalizer) Same(a, b string) bool {
	return c.Canonical(a) == c.Canonical(b)
}

func (c *Canonicalizer) host(u *url.URL) string {
	host := strings.ToLower(u.Hostname())
	if ascii, err := idna.Lookup.ToASCII(host); err == nil && ascii != "" {
		host = ascii
	}
	for strings.HasPrefix(host, "www.") {
		host = strings.TrimPrefix(host, "www.")
	}

	port := u.Port()
	if (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
		port = ""
	}
	if port != "" {
		return net.JoinHostPort(host, port)
	}
	if strings.Contains(host, ":") { // ipv6 literal
		return "[" + host + "]"
	}
	return host
}

func (c *Canonicalizer) isTracking(key string) bool {
	key = strings.ToLower(key)
	if _, ok := c.exact[key]; ok {
		return true
	}
	for _, p := range c.prefixes {
		if strings.HasPrefix(key, p) {
			return true
		}
	}
	return false
}

// trimPath strips trailing slashes and /index.html until the path is stable
func trimPath(p string) string {
	for {
		switch {
		case strings.HasSuffix(p, "/index.html"):
			p = strings.TrimSuffix(p, "index.html")
		case strings.HasSuffix(p, "/"):
			p = strings.TrimSuffix(p, "/")
		default:
			return p
		}
	}
}
