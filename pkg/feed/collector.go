package feed

import (
	"context"
	"time"

	"github.com/go-pkgz/lgr"
	"golang.org/x/sync/errgroup"

	"github.com/umputun/newsvault/pkg/domain"
)

// Collector fetches all configured feeds concurrently. A failure of one feed is recorded
// and never stops collection of the others.
type Collector struct {
	parser        *Parser
	maxConcurrent int
	userAgents    []string
	pickAgent     func(pool []string) string
}

// CollectorParams holds Collector configuration
type CollectorParams struct {
	Timeout       time.Duration // per feed
	MaxConcurrent int
	UserAgents    []string // rotation pool, one agent is picked per Collect call
	MaxFeedBytes  int64
}

// NewCollector makes a Collector
func NewCollector(p CollectorParams) *Collector {
	if p.MaxConcurrent <= 0 {
		p.MaxConcurrent = 5
	}
	if p.Timeout <= 0 {
		p.Timeout = 30 * time.Second
	}
	if p.MaxFeedBytes <= 0 {
		p.MaxFeedBytes = 10 * 1024 * 1024
	}
	return &Collector{
		parser:        NewParser(p.Timeout, p.MaxFeedBytes),
		maxConcurrent: p.MaxConcurrent,
		userAgents:    p.UserAgents,
		pickAgent:     pickUserAgent,
	}
}

// Collect fetches enabled feeds and returns collected articles in feed order with per-feed errors.
// The user agent is picked from the pool once per call and shared by all feeds of the run.
func (c *Collector) Collect(ctx context.Context, feeds []domain.FeedConfig) ([]domain.CollectedArticle, []domain.FeedError) {
	userAgent := c.pickAgent(c.userAgents)
	lgr.Printf("[DEBUG] collecting %d feeds as %q", len(feeds), userAgent)
	articles := make([][]domain.CollectedArticle, len(feeds))
	errs := make([]*domain.FeedError, len(feeds))

	var g errgroup.Group
	g.SetLimit(c.maxConcurrent)

	for i, f := range feeds {
		if !f.Enabled {
			lgr.Printf("[DEBUG] feed %s disabled, skipped", f.Name)
			continue
		}
		g.Go(func() error {
			items, err := c.parser.Parse(ctx, f, userAgent)
			if err != nil {
				lgr.Printf("[WARN] failed to collect feed %s (%s): %v", f.Name, f.URL, err)
				errs[i] = &domain.FeedError{FeedName: f.Name, FeedURL: f.URL, Err: err.Error()}
				return nil
			}
			lgr.Printf("[DEBUG] collected %d items from %s", len(items), f.Name)
			articles[i] = items
			return nil
		})
	}
	_ = g.Wait() // workers never return errors, failures are in errs

	var res []domain.CollectedArticle
	var feedErrs []domain.FeedError
	for i := range feeds {
		res = append(res, articles[i]...)
		if errs[i] != nil {
			feedErrs = append(feedErrs, *errs[i])
		}
	}
	lgr.Printf("[INFO] collected %d articles from %d feeds, %d failed", len(res), len(feeds), len(feedErrs))
	return res, feedErrs
}
