package feed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/mmcdole/gofeed"

	"github.com/umputun/newsvault/pkg/domain"
)

// ErrBlocked is returned for responses which look like a bot-defense block
var ErrBlocked = errors.New("blocked by bot protection")

// Parser fetches and parses RSS/Atom feeds into collected articles
type Parser struct {
	client       *http.Client
	maxFeedBytes int64
	sanitizer    *bluemonday.Policy
	now          func() time.Time
}

// NewParser creates a new feed parser
func NewParser(timeout time.Duration, maxFeedBytes int64) *Parser {
	return &Parser{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		maxFeedBytes: maxFeedBytes,
		sanitizer:    bluemonday.StrictPolicy(),
		now:          time.Now,
	}
}

// Parse fetches feed f with the given user agent and converts its entries to collected articles
func (p *Parser) Parse(ctx context.Context, f domain.FeedConfig, userAgent string) ([]domain.CollectedArticle, error) {
	fetchedAt := p.now()
	data, err := p.fetch(ctx, f.URL, userAgent)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}

	parsed, err := gofeed.NewParser().Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	base, _ := url.Parse(f.URL) // already fetched, so it parses
	res := make([]domain.CollectedArticle, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		link := itemLink(item, base)
		if link == "" {
			continue
		}

		article := domain.CollectedArticle{
			URL:          link,
			Title:        strings.TrimSpace(p.plainText(item.Title)),
			PublishedAt:  fetchedAt,
			FeedSource:   f.Name,
			FeedCategory: f.Category,
		}

		// feed-native published time, then updated time, fetch time as the last resort
		switch {
		case item.PublishedParsed != nil:
			article.PublishedAt = *item.PublishedParsed
		case item.UpdatedParsed != nil:
			article.PublishedAt = *item.UpdatedParsed
		}

		article.FeedSummary = p.plainText(item.Description)
		if article.FeedSummary == "" {
			article.FeedSummary = p.plainText(item.Content)
		}

		res = append(res, article)
	}

	return res, nil
}

// fetch retrieves feed content from a URL
func (p *Parser) fetch(ctx context.Context, feedURL, userAgent string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	req.Header.Set("User-Agent", userAgent)
	addBrowserHeaders(req)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch URL: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests ||
		resp.StatusCode == http.StatusServiceUnavailable:
		return nil, fmt.Errorf("%w: status code %d", ErrBlocked, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, p.maxFeedBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(data)) > p.maxFeedBytes {
		return nil, fmt.Errorf("feed exceeds %d bytes", p.maxFeedBytes)
	}
	return data, nil
}

// plainText strips markup from feed text fields
func (p *Parser) plainText(s string) string {
	if s == "" {
		return ""
	}
	return strings.Join(strings.Fields(html.UnescapeString(p.sanitizer.Sanitize(s))), " ")
}

// itemLink returns absolute item link or empty string
func itemLink(item *gofeed.Item, base *url.URL) string {
	link := strings.TrimSpace(item.Link)
	if link == "" && len(item.Links) > 0 {
		link = strings.TrimSpace(item.Links[0])
	}
	if link == "" {
		return ""
	}
	u, err := url.Parse(link)
	if err != nil {
		return ""
	}
	if !u.IsAbs() && base != nil {
		u = base.ResolveReference(u)
	}
	return u.String()
}
