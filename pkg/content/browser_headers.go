package content

import (
	"math/rand"
	"net/http"
)

// defaultUserAgent used if the rotation pool is empty
const defaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.5 Safari/605.1.15"

// acceptLanguages contains common browser Accept-Language values
var acceptLanguages = []string{
	"en-US,en;q=0.9",
	"en-GB,en;q=0.9",
	"en-US,en;q=0.9,es;q=0.8",
	"en-US,en;q=0.9,fr;q=0.8",
	"en-US,en;q=0.9,de;q=0.8",
	"en-US,en;q=0.9,ja;q=0.8",
	"en-US,en;q=0.9,zh-CN;q=0.8,zh;q=0.7",
	"fr-FR,fr;q=0.9,en;q=0.8",
	"de-DE,de;q=0.9,en;q=0.8",
	"es-ES,es;q=0.9,en;q=0.8",
}

// secFetchModes for different request contexts
var secFetchModes = []string{
	"navigate",
	"no-cors",
	"cors",
}

// addBrowserHeaders adds common browser headers to the request with some randomization.
// Accept-Encoding is left to the transport, so compressed responses are decoded transparently.
func addBrowserHeaders(req *http.Request, userAgents []string) {
	req.Header.Set("User-Agent", rotateUserAgent(userAgents))
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Pragma", "no-cache")
	req.Header.Set("Upgrade-Insecure-Requests", "1")

	// randomized language
	req.Header.Set("Accept-Language", acceptLanguages[rand.Intn(len(acceptLanguages))]) //nolint:gosec // non-cryptographic randomness is fine for header variation

	// dnt - 30% chance of being set
	if rand.Float32() < 0.3 { //nolint:gosec // non-cryptographic randomness is fine
		req.Header.Set("DNT", "1")
	}

	// modern browsers send Sec-Fetch-* headers
	req.Header.Set("Sec-Fetch-Dest", "document")
	req.Header.Set("Sec-Fetch-Mode", secFetchModes[rand.Intn(len(secFetchModes))]) //nolint:gosec // non-cryptographic randomness is fine
	req.Header.Set("Sec-Fetch-Site", "none")
	req.Header.Set("Sec-Fetch-User", "?1")
}

// rotateUserAgent returns a random agent from the pool
func rotateUserAgent(pool []string) string {
	if len(pool) == 0 {
		return defaultUserAgent
	}
	return pool[rand.Intn(len(pool))] //nolint:gosec // non-cryptographic randomness is fine
}
