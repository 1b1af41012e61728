package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umputun/newsvault/pkg/domain"
	"github.com/umputun/newsvault/pkg/publisher"
	"github.com/umputun/newsvault/pkg/urlnorm"
)

var _ publisher.Tracker = (*RecordRepository)(nil)

func setupTestDB(t *testing.T) *Repositories {
	t.Helper()
	cfg := Config{DSN: ":memory:", MaxOpenConns: 1, MaxIdleConns: 1, ConnMaxLifetime: 30 * time.Second}
	repos, err := NewRepositories(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, repos.Close()) })
	return repos
}

func TestRepositories_Ping(t *testing.T) {
	repos := setupTestDB(t)
	require.NoError(t, repos.Ping(context.Background()))
}

func TestRecordRepository_CreateAndGet(t *testing.T) {
	repos := setupTestDB(t)
	ctx := context.Background()
	created := time.Date(2024, 6, 12, 10, 30, 0, 0, time.UTC)

	id, err := repos.Record.CreateRecord(ctx, domain.Record{
		Title: "Fed holds rates", Body: "summary", Labels: []string{"news", "macro", "news"},
		SourceURL: "https://example.com/fed", CreatedAt: created,
	})
	require.NoError(t, err)
	assert.Equal(t, "1", id)

	rec, err := repos.Record.GetRecord(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, rec.ID)
	assert.Equal(t, "Fed holds rates", rec.Record.Title)
	assert.Equal(t, "summary", rec.Record.Body)
	assert.Equal(t, "https://example.com/fed", rec.Record.SourceURL)
	assert.Equal(t, []string{"macro", "news"}, rec.Record.Labels)
	assert.True(t, created.Equal(rec.Record.CreatedAt), "got %v", rec.Record.CreatedAt)
	assert.False(t, rec.Archived)
	assert.Empty(t, rec.Fields)

	count, err := repos.Record.CountRecords(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	_, err = repos.Record.GetRecord(ctx, "42")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = repos.Record.GetRecord(ctx, "bad-id")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRecordRepository_ListRecentURLs(t *testing.T) {
	repos := setupTestDB(t)
	ctx := context.Background()
	now := time.Date(2024, 6, 12, 12, 0, 0, 0, time.UTC)

	records := []domain.Record{
		{Title: "old", SourceURL: "https://example.com/old", Labels: []string{"news"}, CreatedAt: now.Add(-72 * time.Hour)},
		{Title: "a", SourceURL: "https://example.com/a", Labels: []string{"news"}, CreatedAt: now.Add(-time.Hour)},
		{Title: "a again", SourceURL: "https://example.com/a", Labels: []string{"news"}, CreatedAt: now.Add(-30 * time.Minute)},
		{Title: "b", SourceURL: "https://example.com/b", Labels: []string{"other"}, CreatedAt: now.Add(-time.Hour)},
		{Title: "c", SourceURL: "https://example.com/c", CreatedAt: now},
	}
	for _, r := range records {
		_, err := repos.Record.CreateRecord(ctx, r)
		require.NoError(t, err)
	}

	tests := []struct {
		name  string
		label string
		since time.Time
		want  []string
	}{
		{name: "label and window", label: "news", since: now.Add(-48 * time.Hour), want: []string{"https://example.com/a"}},
		{name: "label, all time", label: "news", since: time.Time{}, want: []string{"https://example.com/a", "https://example.com/old"}},
		{name: "any label", label: "", since: now.Add(-48 * time.Hour),
			want: []string{"https://example.com/a", "https://example.com/b", "https://example.com/c"}},
		{name: "unknown label", label: "missing", since: time.Time{}, want: []string{}},
		{name: "future window", label: "", since: now.Add(time.Hour), want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			urls, err := repos.Record.ListRecentURLs(ctx, tt.label, tt.since)
			require.NoError(t, err)
			assert.Equal(t, tt.want, urls)
		})
	}
}

func TestRecordRepository_SetField(t *testing.T) {
	repos := setupTestDB(t)
	ctx := context.Background()

	id, err := repos.Record.CreateRecord(ctx, domain.Record{Title: "t", SourceURL: "https://example.com/a"})
	require.NoError(t, err)

	require.NoError(t, repos.Record.SetField(ctx, id, "feed", "finance"))
	require.NoError(t, repos.Record.SetField(ctx, id, "sentiment", "neutral"))
	require.NoError(t, repos.Record.SetField(ctx, id, "sentiment", "positive"))

	rec, err := repos.Record.GetRecord(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"feed": "finance", "sentiment": "positive"}, rec.Fields)

	err = repos.Record.SetField(ctx, "999", "feed", "x")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)

	err = repos.Record.SetField(ctx, "abc", "feed", "x")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRecordRepository_Archive(t *testing.T) {
	repos := setupTestDB(t)
	ctx := context.Background()

	id, err := repos.Record.CreateRecord(ctx, domain.Record{Title: "t", SourceURL: "https://example.com/a"})
	require.NoError(t, err)

	require.NoError(t, repos.Record.Archive(ctx, id))
	rec, err := repos.Record.GetRecord(ctx, id)
	require.NoError(t, err)
	assert.True(t, rec.Archived)
	assert.False(t, rec.ArchivedAt.IsZero())

	// archiving again keeps the first archive time
	archivedAt := rec.ArchivedAt
	require.NoError(t, repos.Record.Archive(ctx, id))
	rec, err = repos.Record.GetRecord(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, archivedAt, rec.ArchivedAt)

	assert.ErrorIs(t, repos.Record.Archive(ctx, "999"), ErrNotFound)
}

func TestRecordRepository_WithPublisher(t *testing.T) {
	repos := setupTestDB(t)
	ctx := context.Background()

	// record from a previous run
	_, err := repos.Record.CreateRecord(ctx, domain.Record{Title: "prev", SourceURL: "https://example.com/prev",
		Labels: []string{"news"}, CreatedAt: time.Now()})
	require.NoError(t, err)

	article := func(url, feed string) domain.SummarizedArticle {
		return domain.SummarizedArticle{
			ExtractedArticle: domain.ExtractedArticle{CollectedArticle: domain.CollectedArticle{URL: url, Title: url, FeedSource: feed}},
			Summary:          domain.Summary{Headline: "h " + url, Summary: "s", Sentiment: "neutral", Category: "Markets"},
			Status:           domain.StatusSuccess,
		}
	}
	pub := publisher.New(repos.Record, urlnorm.NewDefault(), publisher.Params{Label: "news", Lookback: 24 * time.Hour})
	res, err := pub.PublishBatch(ctx, []domain.SummarizedArticle{
		article("https://example.com/a", "finance"),
		article("https://example.com/a", "stock"),
		article("https://www.example.com/prev/?utm_medium=rss", "finance"),
	})
	require.NoError(t, err)
	require.Len(t, res, 3)
	assert.Equal(t, domain.PublishSuccess, res[0].PublicationStatus)
	assert.Equal(t, domain.PublishDuplicate, res[1].PublicationStatus)
	assert.Equal(t, domain.PublishDuplicate, res[2].PublicationStatus)

	count, err := repos.Record.CountRecords(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	rec, err := repos.Record.GetRecord(ctx, res[0].RecordID)
	require.NoError(t, err)
	assert.True(t, rec.Archived)
	assert.Equal(t, "finance", rec.Fields["feed"])
	assert.Equal(t, "Markets", rec.Fields["category"])
	assert.Equal(t, "full", rec.Fields["extraction"])
	assert.Equal(t, []string{"news"}, rec.Record.Labels)
}

func TestRunRepository(t *testing.T) {
	repos := setupTestDB(t)
	ctx := context.Background()

	last, err := repos.Run.LastRun(ctx)
	require.NoError(t, err)
	assert.Nil(t, last)

	first := domain.WorkflowResult{RunID: "run-1", StartedAt: time.Date(2024, 6, 12, 10, 0, 0, 0, time.UTC),
		Elapsed: 3 * time.Second, Collected: 5, PublishSuccess: 2}
	second := domain.WorkflowResult{RunID: "run-2", StartedAt: time.Date(2024, 6, 12, 11, 0, 0, 0, time.UTC),
		Elapsed: time.Second, Collected: 7, PublishSuccess: 4,
		ExtractionFailures: []domain.StageFailure{{URL: "https://example.com/x", Stage: domain.StageExtraction, Reason: "body too short (40 < 100)"}}}
	require.NoError(t, repos.Run.SaveRun(ctx, first))
	require.NoError(t, repos.Run.SaveRun(ctx, second))

	last, err = repos.Run.LastRun(ctx)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, "run-2", last.RunID)
	assert.Equal(t, 7, last.Collected)
	assert.Equal(t, time.Second, last.Elapsed)
	require.Len(t, last.ExtractionFailures, 1)
	assert.Equal(t, "body too short (40 < 100)", last.ExtractionFailures[0].Reason)

	// saving the same run replaces it
	second.PublishSuccess = 5
	require.NoError(t, repos.Run.SaveRun(ctx, second))
	last, err = repos.Run.LastRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, last.PublishSuccess)
}

func TestWithRetry(t *testing.T) {
	t.Run("lock errors retried", func(t *testing.T) {
		calls := 0
		err := withRetry(context.Background(), func() error {
			calls++
			if calls < 3 {
				return errors.New("database is locked (5) (SQLITE_BUSY)")
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("critical error stops retries", func(t *testing.T) {
		calls := 0
		err := withRetry(context.Background(), func() error {
			calls++
			return &criticalError{err: fmt.Errorf("insert: %w", ErrNotFound)}
		})
		require.Error(t, err)
		assert.Equal(t, 1, calls)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.Contains(t, err.Error(), "insert: record not found")
	})
}

func TestIsLockError(t *testing.T) {
	assert.False(t, isLockError(nil))
	assert.True(t, isLockError(errors.New("database is locked")))
	assert.True(t, isLockError(errors.New("SQLITE_BUSY: busy")))
	assert.True(t, isLockError(errors.New("database table is locked: records")))
	assert.False(t, isLockError(errors.New("UNIQUE constraint failed")))
}
