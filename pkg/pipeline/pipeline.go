// Package pipeline runs a single batch of the news pipeline: collection, dedup, extraction,
// summarization and publication, strictly in this order. Every collected article ends up in
// exactly one terminal bucket of the WorkflowResult.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/go-pkgz/lgr"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/umputun/newsvault/pkg/dedup"
	"github.com/umputun/newsvault/pkg/domain"
	"github.com/umputun/newsvault/pkg/urlnorm"
)

//go:generate moq -out mocks/collector.go -pkg mocks -skip-ensure -fmt goimports . Collector
//go:generate moq -out mocks/extractor.go -pkg mocks -skip-ensure -fmt goimports . Extractor
//go:generate moq -out mocks/summarizer.go -pkg mocks -skip-ensure -fmt goimports . Summarizer
//go:generate moq -out mocks/publisher.go -pkg mocks -skip-ensure -fmt goimports . Publisher
//go:generate moq -out mocks/url_source.go -pkg mocks -skip-ensure -fmt goimports . URLSource

// Collector fetches feeds
type Collector interface {
	Collect(ctx context.Context, feeds []domain.FeedConfig) ([]domain.CollectedArticle, []domain.FeedError)
}

// Extractor fetches full article text, never fails the run
type Extractor interface {
	Extract(ctx context.Context, article domain.CollectedArticle) domain.ExtractedArticle
}

// Summarizer makes a structured summary, error is returned for fatal environment problems only
type Summarizer interface {
	Summarize(ctx context.Context, article domain.ExtractedArticle) (domain.SummarizedArticle, error)
}

// Publisher publishes summarized articles to the tracker
type Publisher interface {
	PublishBatch(ctx context.Context, articles []domain.SummarizedArticle) ([]domain.PublishedArticle, error)
}

// URLSource lists source URLs of records already in the tracker
type URLSource interface {
	ListRecentURLs(ctx context.Context, label string, since time.Time) ([]string, error)
}

// Recorder receives the result of every run, including failed ones
type Recorder interface {
	RecordRun(res domain.WorkflowResult, err error)
}

// Limits restricts collected articles before dedup. Zero value means no limit.
type Limits struct {
	MaxAge     time.Duration
	MaxPerFeed int
	MaxTotal   int
}

// Orchestrator wires pipeline stages together
type Orchestrator struct {
	Collector  Collector
	Extractor  Extractor
	Summarizer Summarizer
	Publisher  Publisher
	URLSource  URLSource
	Recorder   Recorder // optional

	params Params
	canon  *urlnorm.Canonicalizer
	now    func() time.Time
}

// Params defines orchestrator settings
type Params struct {
	Canon               *urlnorm.Canonicalizer
	Label               string        // tracker label scoping the dedup snapshot
	DedupLookback       time.Duration // how far back dedup looks for existing records
	TitleSimilarity     float64       // threshold for near-duplicate title warnings, 0 disables
	ExtractConcurrent   int
	SummarizeConcurrent int
}

// New makes an orchestrator. Collaborators are set on the returned struct fields.
func New(p Params) *Orchestrator {
	if p.Canon == nil {
		p.Canon = urlnorm.NewDefault()
	}
	if p.DedupLookback <= 0 {
		p.DedupLookback = 7 * 24 * time.Hour
	}
	if p.ExtractConcurrent <= 0 {
		p.ExtractConcurrent = 5
	}
	if p.SummarizeConcurrent <= 0 {
		p.SummarizeConcurrent = 2
	}
	return &Orchestrator{params: p, canon: p.Canon, now: time.Now}
}

// Run executes one batch. Error is returned for run-aborting failures only: the dedup snapshot
// can't be loaded, the summarizer reports a fatal environment error, or ctx is canceled before
// publication. The partial result is returned in all cases.
func (o *Orchestrator) Run(ctx context.Context, feeds []domain.FeedConfig, limits Limits) (res domain.WorkflowResult, err error) {
	res = domain.WorkflowResult{RunID: uuid.NewString(), StartedAt: o.now().UTC(), FeedsTotal: len(feeds)}
	lgr.Printf("[INFO] run %s started, %d feeds", res.RunID, len(feeds))
	defer func() {
		res.Elapsed = o.now().Sub(res.StartedAt)
		if o.Recorder != nil {
			o.Recorder.RecordRun(res, err)
		}
		if err != nil {
			lgr.Printf("[ERROR] run %s aborted after %v: %v", res.RunID, res.Elapsed, err)
			return
		}
		lgr.Printf("[INFO] run %s completed in %v, published %d", res.RunID, res.Elapsed, res.PublishSuccess)
	}()

	collected, feedErrs := o.Collector.Collect(ctx, feeds)
	res.Collected, res.FeedErrors = len(collected), feedErrs
	lgr.Printf("[INFO] collected %d articles, %d feeds failed", len(collected), len(feedErrs))

	limited := applyLimits(collected, limits, o.now())
	res.Filtered = len(collected) - len(limited)
	if res.Filtered > 0 {
		lgr.Printf("[INFO] %d articles dropped by limits", res.Filtered)
	}

	existing, err := o.URLSource.ListRecentURLs(ctx, o.params.Label, o.now().Add(-o.params.DedupLookback))
	if err != nil {
		return res, fmt.Errorf("list existing records: %w", err)
	}
	kept, removed := dedup.Filter(o.canon, limited, urlnorm.NewURLSet(o.canon, existing))
	res.DedupRemoved = removed
	lgr.Printf("[INFO] dedup removed %d articles, %d left", removed, len(kept))
	for _, pair := range dedup.SimilarTitles(kept, o.params.TitleSimilarity) {
		lgr.Printf("[INFO] possible near-duplicate titles (%.2f): %q (%s) and %q (%s)",
			pair.Score, pair.A.Title, pair.A.URL, pair.B.Title, pair.B.URL)
	}
	if len(kept) == 0 {
		lgr.Printf("[INFO] nothing new to process")
		return res, nil
	}

	extracted := o.extract(ctx, kept)
	toSummarize := make([]domain.ExtractedArticle, 0, len(extracted))
	for _, a := range extracted {
		if a.Status != domain.StatusSuccess {
			res.ExtractionFailures = append(res.ExtractionFailures, failure(a.CollectedArticle, domain.StageExtraction, a.Err))
			continue
		}
		res.ExtractionSuccess++
		if a.UsedFallback {
			res.FallbackUsed++
		}
		toSummarize = append(toSummarize, a)
	}
	lgr.Printf("[INFO] extracted %d articles (%d fallback), %d failed",
		res.ExtractionSuccess, res.FallbackUsed, len(res.ExtractionFailures))

	summarized, err := o.summarize(ctx, toSummarize)
	toPublish := make([]domain.SummarizedArticle, 0, len(summarized))
	for _, a := range summarized {
		res.SummaryRetries += a.Retries
		switch a.Status {
		case domain.StatusSuccess:
			res.SummarySuccess++
			toPublish = append(toPublish, a)
		default:
			res.SummaryFailures = append(res.SummaryFailures, failure(a.CollectedArticle, domain.StageSummarization, a.Err))
		}
	}
	if err == nil && ctx.Err() != nil {
		err = fmt.Errorf("run canceled: %w", ctx.Err())
	}
	if err != nil {
		// summaries already made are not published, each one is reported as a publication failure
		for _, a := range toPublish {
			res.PublishFailures = append(res.PublishFailures, failure(a.CollectedArticle, domain.StagePublication,
				"not published, run aborted"))
			res.Published = append(res.Published, domain.PublishedArticle{SummarizedArticle: a,
				PublicationStatus: domain.PublishFailed, Err: "not published, run aborted"})
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return res, err
		}
		return res, fmt.Errorf("summarize: %w", err)
	}
	lgr.Printf("[INFO] summarized %d articles, %d failed, %d retries",
		res.SummarySuccess, len(res.SummaryFailures), res.SummaryRetries)

	if len(toPublish) == 0 {
		return res, nil
	}
	o.publish(ctx, toPublish, &res)
	return res, nil
}

func (o *Orchestrator) extract(ctx context.Context, articles []domain.CollectedArticle) []domain.ExtractedArticle {
	res := make([]domain.ExtractedArticle, len(articles))
	var g errgroup.Group
	g.SetLimit(o.params.ExtractConcurrent)
	for i, a := range articles {
		g.Go(func() error {
			res[i] = o.Extractor.Extract(ctx, a)
			return nil
		})
	}
	_ = g.Wait() // extraction never fails the run
	return res
}

// summarize returns one result per article. On a fatal error or a canceled context the remaining workers
// stop, articles which were not summarized are returned as failed with the reason.
func (o *Orchestrator) summarize(ctx context.Context, articles []domain.ExtractedArticle) ([]domain.SummarizedArticle, error) {
	res := make([]domain.SummarizedArticle, len(articles))
	done := make([]bool, len(articles))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.params.SummarizeConcurrent)
	for i, a := range articles {
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			sa, err := o.Summarizer.Summarize(gctx, a)
			if err != nil {
				return fmt.Errorf("article %s: %w", a.URL, err)
			}
			res[i], done[i] = sa, true
			return nil
		})
	}
	err := g.Wait()

	for i, a := range articles {
		if done[i] {
			continue
		}
		reason := "not summarized"
		switch {
		case err != nil:
			reason = fmt.Sprintf("not summarized: %v", err)
		case ctx.Err() != nil:
			reason = fmt.Sprintf("not summarized: %v", ctx.Err())
		}
		res[i] = domain.SummarizedArticle{ExtractedArticle: a, Status: domain.StatusFailed, Err: reason}
	}
	return res, err
}

func (o *Orchestrator) publish(ctx context.Context, articles []domain.SummarizedArticle, res *domain.WorkflowResult) {
	published, err := o.Publisher.PublishBatch(ctx, articles)
	if err != nil {
		// publishing blind could create duplicates, everything is failed with the same reason
		lgr.Printf("[WARN] publication skipped: %v", err)
		for _, a := range articles {
			res.PublishFailures = append(res.PublishFailures, failure(a.CollectedArticle, domain.StagePublication, err.Error()))
			res.Published = append(res.Published, domain.PublishedArticle{SummarizedArticle: a,
				PublicationStatus: domain.PublishFailed, Err: err.Error()})
		}
		return
	}

	res.Published = published
	for _, p := range published {
		switch p.PublicationStatus {
		case domain.PublishSuccess:
			res.PublishSuccess++
		case domain.PublishDuplicate:
			res.PublishDuplicates++
		default:
			res.PublishFailures = append(res.PublishFailures, failure(p.CollectedArticle, domain.StagePublication, p.Err))
		}
	}
	lgr.Printf("[INFO] published %d articles, %d duplicates, %d failed",
		res.PublishSuccess, res.PublishDuplicates, len(res.PublishFailures))
}

// applyLimits drops articles older than MaxAge, then keeps the newest MaxPerFeed of each feed
// and the newest MaxTotal overall. Articles without a publication date are never too old.
// Survivors keep their collection order.
func applyLimits(articles []domain.CollectedArticle, limits Limits, now time.Time) []domain.CollectedArticle {
	idx := make([]int, 0, len(articles))
	for i, a := range articles {
		if limits.MaxAge > 0 && !a.PublishedAt.IsZero() && a.PublishedAt.Before(now.Add(-limits.MaxAge)) {
			continue
		}
		idx = append(idx, i)
	}

	// newest first, stable for equal dates
	sort.SliceStable(idx, func(i, j int) bool {
		return articles[idx[i]].PublishedAt.After(articles[idx[j]].PublishedAt)
	})

	if limits.MaxPerFeed > 0 {
		perFeed := make(map[string]int)
		filtered := idx[:0]
		for _, i := range idx {
			feed := articles[i].FeedSource
			if perFeed[feed] >= limits.MaxPerFeed {
				continue
			}
			perFeed[feed]++
			filtered = append(filtered, i)
		}
		idx = filtered
	}

	if limits.MaxTotal > 0 && len(idx) > limits.MaxTotal {
		idx = idx[:limits.MaxTotal]
	}

	sort.Ints(idx)
	res := make([]domain.CollectedArticle, 0, len(idx))
	for _, i := range idx {
		res = append(res, articles[i])
	}
	return res
}

func failure(a domain.CollectedArticle, stage, reason string) domain.StageFailure {
	return domain.StageFailure{URL: a.URL, Title: a.Title, Stage: stage, Reason: reason}
}
