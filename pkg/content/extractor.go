// Package content extracts full article text from article pages.
package content

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-pkgz/lgr"
	readability "github.com/go-shiori/go-readability"
	"github.com/markusmobius/go-trafilatura"

	"github.com/umputun/newsvault/pkg/domain"
)

// HTTPExtractor fetches article pages and extracts the body text. Extraction falls back
// from trafilatura to readability to a plain paragraph harvest, the longest text wins.
// Articles from skip-listed domains are not fetched, the feed summary is used instead.
type HTTPExtractor struct {
	client        *http.Client
	timeout       time.Duration
	minTextLength int
	maxBodyBytes  int64
	skipDomains   []string
	userAgents    []string
	limiter       *HostLimiter
}

// Params holds HTTPExtractor configuration
type Params struct {
	Timeout       time.Duration // per article
	MinTextLength int           // shorter bodies are failed extractions
	MaxBodyBytes  int64
	SkipDomains   []string // host substrings which bypass extraction
	UserAgents    []string
	Limiter       *HostLimiter // shared per-host throttle, required
}

// NewHTTPExtractor creates a new content extractor
func NewHTTPExtractor(p Params) *HTTPExtractor {
	if p.Timeout <= 0 {
		p.Timeout = 30 * time.Second
	}
	if p.MaxBodyBytes <= 0 {
		p.MaxBodyBytes = 5 * 1024 * 1024
	}
	if p.Limiter == nil {
		p.Limiter = NewHostLimiter(0)
	}
	skip := make([]string, 0, len(p.SkipDomains))
	for _, d := range p.SkipDomains {
		if d = strings.ToLower(strings.TrimSpace(d)); d != "" {
			skip = append(skip, d)
		}
	}
	return &HTTPExtractor{
		client:        &http.Client{Timeout: p.Timeout},
		timeout:       p.Timeout,
		minTextLength: p.MinTextLength,
		maxBodyBytes:  p.MaxBodyBytes,
		skipDomains:   skip,
		userAgents:    p.UserAgents,
		limiter:       p.Limiter,
	}
}

// Extract returns the article with extracted body. It never fails the run: fetch errors,
// timeouts and too short bodies are reported as StatusFailed with the reason in Err.
func (e *HTTPExtractor) Extract(ctx context.Context, article domain.CollectedArticle) domain.ExtractedArticle {
	res := domain.ExtractedArticle{CollectedArticle: article, Status: domain.StatusFailed}

	pageURL, err := url.Parse(article.URL)
	if err != nil || pageURL.Scheme == "" || pageURL.Host == "" {
		res.Err = fmt.Sprintf("invalid URL: %s", article.URL)
		return res
	}

	if e.skipped(pageURL.Hostname()) {
		res.BodyText = article.FeedSummary
		if res.BodyText == "" {
			res.BodyText = article.Title
		}
		res.Status, res.UsedFallback, res.Method = domain.StatusSuccess, true, domain.MethodFeedSummary
		lgr.Printf("[DEBUG] skip-listed domain %s, using feed summary for %s", pageURL.Hostname(), article.URL)
		return res
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	release, err := e.limiter.Acquire(ctx, pageURL.Host)
	if err != nil {
		res.Err = fmt.Sprintf("wait for host %s: %v", pageURL.Host, err)
		return res
	}
	data, err := e.fetch(ctx, article.URL)
	release()
	if err != nil {
		res.Err = err.Error()
		return res
	}

	text, method := e.extractText(data, pageURL)
	if n := utf8.RuneCountInString(text); n < e.minTextLength {
		res.Err = fmt.Sprintf("body too short (%d < %d)", n, e.minTextLength)
		return res
	}

	res.BodyText, res.Method, res.Status = text, method, domain.StatusSuccess
	lgr.Printf("[DEBUG] extracted %d characters with %s from %s", len(text), method, article.URL)
	return res
}

// fetch retrieves the page. Redirects are followed but never change the article identity.
func (e *HTTPExtractor) fetch(ctx context.Context, pageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	addBrowserHeaders(req, e.userAgents)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch URL %s: %w", pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code %d for URL %s", resp.StatusCode, pageURL)
	}
	if final := resp.Request.URL.String(); final != pageURL {
		lgr.Printf("[DEBUG] %s redirected to %s", pageURL, final)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, e.maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body of %s: %w", pageURL, err)
	}
	return data, nil
}

// extractText runs extraction stages until one yields enough text, returns the longest text found
func (e *HTTPExtractor) extractText(data []byte, pageURL *url.URL) (text string, method domain.ExtractionMethod) {
	stages := []struct {
		method domain.ExtractionMethod
		fn     func([]byte, *url.URL) (string, error)
	}{
		{domain.MethodTrafilatura, trafilaturaText},
		{domain.MethodReadability, readabilityText},
		{domain.MethodParagraphs, paragraphsText},
	}

	bestLen := -1
	for _, st := range stages {
		t, err := st.fn(data, pageURL)
		if err != nil {
			lgr.Printf("[DEBUG] %s extraction failed for %s: %v", st.method, pageURL, err)
			continue
		}
		t = strings.TrimSpace(t)
		n := utf8.RuneCountInString(t)
		if n > bestLen {
			text, method, bestLen = t, st.method, n
		}
		if n >= e.minTextLength && n > 0 {
			return text, method
		}
	}
	return text, method
}

func trafilaturaText(data []byte, pageURL *url.URL) (string, error) {
	opts := trafilatura.Options{
		EnableFallback:  true,
		ExcludeComments: true,
		ExcludeTables:   false,
		IncludeImages:   false,
		IncludeLinks:    false,
		Deduplicate:     true,
		OriginalURL:     pageURL,
	}
	result, err := trafilatura.Extract(bytes.NewReader(data), opts)
	if err != nil {
		return "", err
	}
	if result == nil {
		return "", fmt.Errorf("no content extracted")
	}
	return result.ContentText, nil
}

func readabilityText(data []byte, pageURL *url.URL) (string, error) {
	article, err := readability.FromReader(bytes.NewReader(data), pageURL)
	if err != nil {
		return "", err
	}
	return article.TextContent, nil
}

// paragraphsText collects text of paragraphs, preferring article and main containers
func paragraphsText(data []byte, _ *url.URL) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	for _, sel := range []string{"article p", "main p", "p"} {
		var parts []string
		doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
			if t := strings.Join(strings.Fields(s.Text()), " "); t != "" {
				parts = append(parts, t)
			}
		})
		if len(parts) > 0 {
			return strings.Join(parts, "\n\n"), nil
		}
	}
	return "", nil
}

func (e *HTTPExtractor) skipped(host string) bool {
	host = strings.ToLower(host)
	for _, d := range e.skipDomains {
		if strings.Contains(host, d) {
			return true
		}
	}
	return false
}
