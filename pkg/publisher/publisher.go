// Package publisher creates tracker records for summarized articles, skipping duplicates.
package publisher

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-pkgz/lgr"
	"golang.org/x/sync/errgroup"

	"github.com/umputun/newsvault/pkg/domain"
	"github.com/umputun/newsvault/pkg/urlnorm"
)

//go:generate moq -out mocks/tracker.go -pkg mocks -skip-ensure -fmt goimports . Tracker

// Tracker is the external system where records are published
type Tracker interface {
	CreateRecord(ctx context.Context, rec domain.Record) (string, error)
	ListRecentURLs(ctx context.Context, label string, since time.Time) ([]string, error)
	SetField(ctx context.Context, id, field, value string) error
	Archive(ctx context.Context, id string) error
}

// record fields set after creation
const (
	FieldFeed        = "feed"
	FieldCategory    = "category"
	FieldPublishedAt = "published_at"
	FieldSentiment   = "sentiment"
	FieldTickers     = "tickers"
	FieldExtraction  = "extraction"
)

// Publisher publishes summarized articles to the tracker
type Publisher struct {
	tracker       Tracker
	canon         *urlnorm.Canonicalizer
	label         string
	lookback      time.Duration
	maxConcurrent int
	now           func() time.Time
}

// Params defines publisher settings
type Params struct {
	Label         string        // attached to every record, also scopes the recent records check
	Lookback      time.Duration // how far back the recent records check goes
	MaxConcurrent int
}

// New makes a publisher for the tracker
func New(tracker Tracker, canon *urlnorm.Canonicalizer, p Params) *Publisher {
	if p.MaxConcurrent <= 0 {
		p.MaxConcurrent = 1
	}
	if p.Lookback <= 0 {
		p.Lookback = 48 * time.Hour
	}
	return &Publisher{tracker: tracker, canon: canon, label: p.Label, lookback: p.Lookback,
		maxConcurrent: p.MaxConcurrent, now: time.Now}
}

// PublishBatch publishes articles and returns the terminal state of each one, in input order.
// Articles already in the tracker, or repeated within the batch, are reported as duplicates.
// Error is returned only if the recent records can't be fetched, nothing is published in this case.
func (p *Publisher) PublishBatch(ctx context.Context, articles []domain.SummarizedArticle) ([]domain.PublishedArticle, error) {
	if len(articles) == 0 {
		return []domain.PublishedArticle{}, nil
	}

	recent, err := p.tracker.ListRecentURLs(ctx, p.label, p.now().Add(-p.lookback))
	if err != nil {
		return nil, fmt.Errorf("list recent records: %w", err)
	}
	snapshot := urlnorm.NewURLSet(p.canon, recent)
	batch := &batchSet{claims: make(map[string]*urlClaim)}
	lgr.Printf("[DEBUG] publishing %d articles, %d recent records in tracker", len(articles), snapshot.Len())

	results := make([]domain.PublishedArticle, len(articles))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.maxConcurrent)
	for i, article := range articles {
		g.Go(func() error {
			results[i] = p.publish(gctx, article, snapshot, batch)
			return nil
		})
	}
	_ = g.Wait() // workers never fail

	return results, nil
}

// publish creates a single record unless the article is a duplicate
func (p *Publisher) publish(ctx context.Context, article domain.SummarizedArticle, snapshot urlnorm.URLSet,
	batch *batchSet) domain.PublishedArticle {
	res := domain.PublishedArticle{SummarizedArticle: article, PublicationStatus: domain.PublishFailed}
	key := p.canon.Canonical(article.URL)

	if snapshot.Contains(article.URL) {
		res.PublicationStatus = domain.PublishDuplicate
		lgr.Printf("[DEBUG] %s already in tracker", article.URL)
		return res
	}

	// a sibling holding the claim decides the outcome: created record makes this one a duplicate,
	// failed creation lets this one take over the url
	var c *urlClaim
	for {
		var owned bool
		if c, owned = batch.claim(key); owned {
			break
		}
		select {
		case <-c.done:
		case <-ctx.Done():
			res.Err = ctx.Err().Error()
			return res
		}
		if c.created {
			res.PublicationStatus = domain.PublishDuplicate
			lgr.Printf("[DEBUG] %s from %s duplicates another article in the batch", article.URL, article.FeedSource)
			return res
		}
	}

	if err := ctx.Err(); err != nil {
		batch.finish(key, c, false)
		res.Err = err.Error()
		return res
	}

	id, err := p.tracker.CreateRecord(ctx, p.makeRecord(article))
	if err != nil {
		batch.finish(key, c, false)
		res.Err = fmt.Sprintf("create record: %v", err)
		lgr.Printf("[WARN] can't publish %s: %v", article.URL, err)
		return res
	}
	batch.finish(key, c, true)
	res.RecordID = id

	// the record exists from here, failures keep the claim
	for _, f := range p.fields(article) {
		if err := p.tracker.SetField(ctx, id, f.name, f.value); err != nil {
			res.Err = fmt.Sprintf("set field %s of record %s: %v", f.name, id, err)
			lgr.Printf("[WARN] %s", res.Err)
			return res
		}
	}
	if err := p.tracker.Archive(ctx, id); err != nil {
		res.Err = fmt.Sprintf("archive record %s: %v", id, err)
		lgr.Printf("[WARN] %s", res.Err)
		return res
	}

	res.PublicationStatus = domain.PublishSuccess
	lgr.Printf("[INFO] published %s as record %s", article.URL, id)
	return res
}

// makeRecord renders tracker record for the article
func (p *Publisher) makeRecord(article domain.SummarizedArticle) domain.Record {
	title := article.Summary.Headline
	if title == "" {
		title = article.Title
	}

	var sb strings.Builder
	sb.WriteString(article.Summary.Summary)
	if len(article.Summary.KeyPoints) > 0 {
		sb.WriteString("\n\nKey points:\n")
		for _, kp := range article.Summary.KeyPoints {
			sb.WriteString("- " + kp + "\n")
		}
	}
	if article.Title != "" && article.Title != title {
		sb.WriteString("\nOriginal title: " + article.Title + "\n")
	}

	labels := []string{}
	if p.label != "" {
		labels = append(labels, p.label)
	}
	return domain.Record{
		Title:     title,
		Body:      strings.TrimSpace(sb.String()),
		Labels:    labels,
		SourceURL: article.URL,
		CreatedAt: p.now().UTC(),
	}
}

type field struct {
	name, value string
}

// fields returns non-empty metadata fields of the article
func (p *Publisher) fields(article domain.SummarizedArticle) []field {
	category := article.Summary.Category
	if category == "" {
		category = article.FeedCategory
	}
	extraction := "full"
	if article.UsedFallback {
		extraction = "fallback"
	}
	var published string
	if !article.PublishedAt.IsZero() {
		published = article.PublishedAt.UTC().Format(time.RFC3339)
	}

	all := []field{
		{FieldFeed, article.FeedSource},
		{FieldCategory, category},
		{FieldPublishedAt, published},
		{FieldSentiment, article.Summary.Sentiment},
		{FieldTickers, strings.Join(article.Summary.Tickers, ",")},
		{FieldExtraction, extraction},
	}
	res := make([]field, 0, len(all))
	for _, f := range all {
		if f.value != "" {
			res = append(res, f)
		}
	}
	return res
}

// batchSet holds canonical URLs claimed in the current batch
type batchSet struct {
	mu     sync.Mutex
	claims map[string]*urlClaim
}

// urlClaim is held by the article publishing the url, done is closed once the record is created or creation failed
type urlClaim struct {
	done    chan struct{}
	created bool
}

// claim returns the claim of the url and true if the caller owns it now
func (b *batchSet) claim(canonical string) (*urlClaim, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if c, ok := b.claims[canonical]; ok {
		return c, false
	}
	c := &urlClaim{done: make(chan struct{})}
	b.claims[canonical] = c
	return c, true
}

// finish settles the claim. A claim without created record is released for the siblings.
func (b *batchSet) finish(canonical string, c *urlClaim, created bool) {
	b.mu.Lock()
	c.created = created
	if !created {
		delete(b.claims, canonical)
	}
	b.mu.Unlock()
	close(c.done)
}
