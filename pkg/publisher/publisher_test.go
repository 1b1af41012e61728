package publisher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umputun/newsvault/pkg/domain"
	"github.com/umputun/newsvault/pkg/publisher/mocks"
	"github.com/umputun/newsvault/pkg/urlnorm"
)

func summarized(url, feed string) domain.SummarizedArticle {
	return domain.SummarizedArticle{
		ExtractedArticle: domain.ExtractedArticle{
			CollectedArticle: domain.CollectedArticle{URL: url, Title: "title of " + url, FeedSource: feed, FeedCategory: "finance",
				PublishedAt: time.Date(2024, 6, 12, 10, 0, 0, 0, time.UTC)},
			BodyText: "body",
			Status:   domain.StatusSuccess,
		},
		Summary: domain.Summary{Headline: "headline", Summary: "summary text", KeyPoints: []string{"one", "two"},
			Category: "Markets", Tickers: []string{"AAPL", "MSFT"}, Sentiment: "positive"},
		Status:   domain.StatusSuccess,
		Attempts: 1,
	}
}

// newTracker makes a tracker mock which creates records with sequential ids
func newTracker(recent []string) *mocks.TrackerMock {
	var seq int32
	return &mocks.TrackerMock{
		ListRecentURLsFunc: func(ctx context.Context, label string, since time.Time) ([]string, error) {
			return recent, nil
		},
		CreateRecordFunc: func(ctx context.Context, rec domain.Record) (string, error) {
			return fmt.Sprintf("rec-%d", atomic.AddInt32(&seq, 1)), nil
		},
		SetFieldFunc: func(ctx context.Context, id, field, value string) error { return nil },
		ArchiveFunc:  func(ctx context.Context, id string) error { return nil },
	}
}

func countStatus(res []domain.PublishedArticle) map[domain.PublicationStatus]int {
	counts := map[domain.PublicationStatus]int{}
	for _, r := range res {
		counts[r.PublicationStatus]++
	}
	return counts
}

func TestPublisher_PublishBatch(t *testing.T) {
	tracker := newTracker(nil)
	p := New(tracker, urlnorm.NewDefault(), Params{Label: "news", Lookback: 24 * time.Hour})
	now := time.Date(2024, 6, 12, 12, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return now }

	res, err := p.PublishBatch(context.Background(), []domain.SummarizedArticle{summarized("https://example.com/a", "finance")})
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, domain.PublishSuccess, res[0].PublicationStatus)
	assert.Equal(t, "rec-1", res[0].RecordID)
	assert.Empty(t, res[0].Err)

	require.Len(t, tracker.ListRecentURLsCalls(), 1)
	assert.Equal(t, "news", tracker.ListRecentURLsCalls()[0].Label)
	assert.Equal(t, now.Add(-24*time.Hour), tracker.ListRecentURLsCalls()[0].Since)

	require.Len(t, tracker.CreateRecordCalls(), 1)
	rec := tracker.CreateRecordCalls()[0].Rec
	assert.Equal(t, "headline", rec.Title)
	assert.Equal(t, "https://example.com/a", rec.SourceURL)
	assert.Equal(t, []string{"news"}, rec.Labels)
	assert.Equal(t, now, rec.CreatedAt)
	assert.Contains(t, rec.Body, "summary text")
	assert.Contains(t, rec.Body, "- two")
	assert.Contains(t, rec.Body, "Original title: title of https://example.com/a")

	fields := map[string]string{}
	for _, c := range tracker.SetFieldCalls() {
		assert.Equal(t, "rec-1", c.ID)
		fields[c.Field] = c.Value
	}
	assert.Equal(t, map[string]string{
		FieldFeed:        "finance",
		FieldCategory:    "Markets",
		FieldPublishedAt: "2024-06-12T10:00:00Z",
		FieldSentiment:   "positive",
		FieldTickers:     "AAPL,MSFT",
		FieldExtraction:  "full",
	}, fields)

	require.Len(t, tracker.ArchiveCalls(), 1)
	assert.Equal(t, "rec-1", tracker.ArchiveCalls()[0].ID)
}

func TestPublisher_PublishBatch_DuplicateInBatch(t *testing.T) {
	tracker := newTracker(nil)
	p := New(tracker, urlnorm.NewDefault(), Params{Label: "news"})

	articles := []domain.SummarizedArticle{
		summarized("https://example.com/a", "finance"),
		summarized("https://www.example.com/a/?utm_source=stock", "stock"),
	}
	res, err := p.PublishBatch(context.Background(), articles)
	require.NoError(t, err)
	require.Len(t, res, 2)

	assert.Len(t, tracker.CreateRecordCalls(), 1, "exactly one record created")
	assert.Equal(t, domain.PublishSuccess, res[0].PublicationStatus)
	assert.Equal(t, "finance", res[0].FeedSource)
	assert.Equal(t, domain.PublishDuplicate, res[1].PublicationStatus)
	assert.Equal(t, "stock", res[1].FeedSource)
	assert.Empty(t, res[1].Err, "duplicate is not an error")
}

func TestPublisher_PublishBatch_DuplicateInTracker(t *testing.T) {
	tracker := newTracker([]string{"http://EXAMPLE.com/b/index.html", "https://example.com/other"})
	p := New(tracker, urlnorm.NewDefault(), Params{Label: "news"})

	res, err := p.PublishBatch(context.Background(), []domain.SummarizedArticle{
		summarized("https://example.com/a", "finance"),
		summarized("http://www.example.com/b?fbclid=123", "finance"),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.PublishSuccess, res[0].PublicationStatus)
	assert.Equal(t, domain.PublishDuplicate, res[1].PublicationStatus)
	assert.Len(t, tracker.CreateRecordCalls(), 1)
}

func TestPublisher_PublishBatch_CreateFailureReleasesClaim(t *testing.T) {
	tracker := newTracker(nil)
	var calls int32
	tracker.CreateRecordFunc = func(ctx context.Context, rec domain.Record) (string, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			return "", errors.New("api unavailable")
		}
		return "rec-2", nil
	}
	p := New(tracker, urlnorm.NewDefault(), Params{Label: "news"})

	res, err := p.PublishBatch(context.Background(), []domain.SummarizedArticle{
		summarized("https://example.com/a", "finance"),
		summarized("https://example.com/a", "stock"),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.PublishFailed, res[0].PublicationStatus)
	assert.Contains(t, res[0].Err, "create record: api unavailable")
	assert.Empty(t, res[0].RecordID)
	assert.Equal(t, domain.PublishSuccess, res[1].PublicationStatus, "failed creation does not block the sibling")
	assert.Equal(t, "rec-2", res[1].RecordID)
}

func TestPublisher_PublishBatch_SiblingWaitsForFailedClaim(t *testing.T) {
	tracker := newTracker(nil)
	var calls int32
	tracker.CreateRecordFunc = func(ctx context.Context, rec domain.Record) (string, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			time.Sleep(50 * time.Millisecond) // sibling checks the claim meanwhile
			return "", errors.New("api unavailable")
		}
		return "rec-2", nil
	}
	p := New(tracker, urlnorm.NewDefault(), Params{Label: "news", MaxConcurrent: 2})

	res, err := p.PublishBatch(context.Background(), []domain.SummarizedArticle{
		summarized("https://example.com/a", "finance"),
		summarized("https://www.example.com/a/", "stock"),
	})
	require.NoError(t, err)
	counts := countStatus(res)
	assert.Equal(t, 1, counts[domain.PublishFailed])
	assert.Equal(t, 1, counts[domain.PublishSuccess])
	assert.Equal(t, 0, counts[domain.PublishDuplicate], "no duplicate of a record which was never created")
	assert.Len(t, tracker.CreateRecordCalls(), 2)
}

func TestPublisher_PublishBatch_FailureAfterCreateKeepsClaim(t *testing.T) {
	t.Run("set field", func(t *testing.T) {
		tracker := newTracker(nil)
		tracker.SetFieldFunc = func(ctx context.Context, id, field, value string) error {
			if field == FieldSentiment {
				return errors.New("field rejected")
			}
			return nil
		}
		p := New(tracker, urlnorm.NewDefault(), Params{Label: "news"})

		res, err := p.PublishBatch(context.Background(), []domain.SummarizedArticle{
			summarized("https://example.com/a", "finance"),
			summarized("https://example.com/a", "stock"),
		})
		require.NoError(t, err)
		assert.Equal(t, domain.PublishFailed, res[0].PublicationStatus)
		assert.Equal(t, "rec-1", res[0].RecordID)
		assert.Contains(t, res[0].Err, "set field sentiment of record rec-1")
		assert.Equal(t, domain.PublishDuplicate, res[1].PublicationStatus)
		assert.Len(t, tracker.CreateRecordCalls(), 1)
		assert.Empty(t, tracker.ArchiveCalls())
	})

	t.Run("archive", func(t *testing.T) {
		tracker := newTracker(nil)
		tracker.ArchiveFunc = func(ctx context.Context, id string) error { return errors.New("locked") }
		p := New(tracker, urlnorm.NewDefault(), Params{Label: "news"})

		res, err := p.PublishBatch(context.Background(), []domain.SummarizedArticle{summarized("https://example.com/a", "finance")})
		require.NoError(t, err)
		assert.Equal(t, domain.PublishFailed, res[0].PublicationStatus)
		assert.Equal(t, "rec-1", res[0].RecordID)
		assert.Contains(t, res[0].Err, "archive record rec-1: locked")
	})
}

func TestPublisher_PublishBatch_RecentFailure(t *testing.T) {
	tracker := newTracker(nil)
	tracker.ListRecentURLsFunc = func(ctx context.Context, label string, since time.Time) ([]string, error) {
		return nil, errors.New("tracker down")
	}
	p := New(tracker, urlnorm.NewDefault(), Params{Label: "news"})

	res, err := p.PublishBatch(context.Background(), []domain.SummarizedArticle{summarized("https://example.com/a", "finance")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list recent records: tracker down")
	assert.Nil(t, res)
	assert.Empty(t, tracker.CreateRecordCalls())
}

func TestPublisher_PublishBatch_Empty(t *testing.T) {
	tracker := newTracker(nil)
	p := New(tracker, urlnorm.NewDefault(), Params{})
	res, err := p.PublishBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, res)
	assert.Empty(t, tracker.ListRecentURLsCalls())
}

func TestPublisher_PublishBatch_Fallback(t *testing.T) {
	tracker := newTracker(nil)
	p := New(tracker, urlnorm.NewDefault(), Params{Label: "news"})

	article := summarized("https://example.com/a", "finance")
	article.UsedFallback = true
	article.Summary.Category = ""
	article.Summary.Tickers = nil
	article.Summary.Headline = ""
	_, err := p.PublishBatch(context.Background(), []domain.SummarizedArticle{article})
	require.NoError(t, err)

	fields := map[string]string{}
	for _, c := range tracker.SetFieldCalls() {
		fields[c.Field] = c.Value
	}
	assert.Equal(t, "fallback", fields[FieldExtraction])
	assert.Equal(t, "finance", fields[FieldCategory], "feed category used when summary has none")
	_, hasTickers := fields[FieldTickers]
	assert.False(t, hasTickers, "empty fields are not set")
	assert.Equal(t, "title of https://example.com/a", tracker.CreateRecordCalls()[0].Rec.Title)
}

func TestPublisher_PublishBatch_Concurrent(t *testing.T) {
	tracker := newTracker(nil)
	var mu sync.Mutex
	created := map[string]int{}
	tracker.CreateRecordFunc = func(ctx context.Context, rec domain.Record) (string, error) {
		time.Sleep(time.Millisecond)
		mu.Lock()
		defer mu.Unlock()
		created[rec.SourceURL]++
		return "rec-" + rec.SourceURL, nil
	}
	p := New(tracker, urlnorm.NewDefault(), Params{Label: "news", MaxConcurrent: 8})

	var articles []domain.SummarizedArticle
	for i := 0; i < 50; i++ {
		articles = append(articles, summarized(fmt.Sprintf("https://example.com/%d", i%10), fmt.Sprintf("feed%d", i)))
	}
	res, err := p.PublishBatch(context.Background(), articles)
	require.NoError(t, err)
	require.Len(t, res, 50)

	counts := countStatus(res)
	assert.Equal(t, 10, counts[domain.PublishSuccess])
	assert.Equal(t, 40, counts[domain.PublishDuplicate])
	assert.Equal(t, 0, counts[domain.PublishFailed])
	assert.Len(t, created, 10)
	for u, n := range created {
		assert.Equal(t, 1, n, "one record per url %s", u)
	}
	for i, r := range res {
		assert.Equal(t, articles[i].FeedSource, r.FeedSource, "results keep input order")
	}
}

func TestPublisher_PublishBatch_Canceled(t *testing.T) {
	tracker := newTracker(nil)
	p := New(tracker, urlnorm.NewDefault(), Params{Label: "news"})
	ctx, cancel := context.WithCancel(context.Background())
	tracker.ListRecentURLsFunc = func(context.Context, string, time.Time) ([]string, error) {
		cancel()
		return nil, nil
	}

	res, err := p.PublishBatch(ctx, []domain.SummarizedArticle{summarized("https://example.com/a", "finance")})
	require.NoError(t, err)
	assert.Equal(t, domain.PublishFailed, res[0].PublicationStatus)
	assert.Contains(t, res[0].Err, "context canceled")
	assert.Empty(t, tracker.CreateRecordCalls())
}
