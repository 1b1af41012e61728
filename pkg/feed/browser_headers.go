package feed

import (
	"math/rand"
	"net/http"
)

// feedAccept is the Accept header sent for feed requests
const feedAccept = "application/rss+xml, application/xml, text/xml, */*"

// defaultUserAgent used if the rotation pool is empty
const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36"

// acceptLanguages contains common browser Accept-Language values
var acceptLanguages = []string{
	"en-US,en;q=0.9",
	"en-GB,en;q=0.9",
	"en-US,en;q=0.9,es;q=0.8",
	"en-US,en;q=0.9,fr;q=0.8",
	"en-US,en;q=0.9,de;q=0.8",
}

// addBrowserHeaders adds browser-like headers for feed fetching
// feeds are often fetched by browsers too, so we want to look legitimate
func addBrowserHeaders(req *http.Request) {
	req.Header.Set("Accept", feedAccept)
	// don't request compression for feeds - simpler to handle
	req.Header.Set("Cache-Control", "no-cache")

	// randomized language
	req.Header.Set("Accept-Language", acceptLanguages[rand.Intn(len(acceptLanguages))]) //nolint:gosec // non-cryptographic randomness is fine for header variation

	req.Header.Set("Connection", "keep-alive")
}

// pickUserAgent selects one user agent from the pool. Collector calls it once per Collect,
// all feeds of a run share the same agent to keep the fingerprint consistent.
func pickUserAgent(pool []string) string {
	if len(pool) == 0 {
		return defaultUserAgent
	}
	return pool[rand.Intn(len(pool))] //nolint:gosec // non-cryptographic randomness is fine
}
