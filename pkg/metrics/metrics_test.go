package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umputun/newsvault/pkg/domain"
)

func scrape(t *testing.T, c *Collector) string {
	t.Helper()
	rr := httptest.NewRecorder()
	c.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))
	require.Equal(t, http.StatusOK, rr.Code)
	return rr.Body.String()
}

func TestCollector_RecordRun(t *testing.T) {
	c, err := NewCollector()
	require.NoError(t, err)

	res := domain.WorkflowResult{
		StartedAt:          time.Date(2024, 6, 12, 10, 0, 0, 0, time.UTC),
		Elapsed:            12 * time.Second,
		FeedErrors:         []domain.FeedError{{FeedName: "broken"}},
		Collected:          10,
		Filtered:           1,
		DedupRemoved:       2,
		ExtractionSuccess:  6,
		ExtractionFailures: []domain.StageFailure{{URL: "https://example.com/x"}},
		FallbackUsed:       1,
		SummarySuccess:     5,
		SummaryFailures:    []domain.StageFailure{{URL: "https://example.com/y"}},
		SummaryRetries:     3,
		PublishSuccess:     4,
		PublishDuplicates:  1,
	}
	c.RecordRun(res, nil)
	c.RecordRun(domain.WorkflowResult{}, errors.New("fatal"))

	body := scrape(t, c)
	assert.Contains(t, body, `newsvault_pipeline_runs_total{status="ok"} 1`)
	assert.Contains(t, body, `newsvault_pipeline_runs_total{status="error"} 1`)
	assert.Contains(t, body, `newsvault_pipeline_articles_total{outcome="collected",stage="collection"} 10`)
	assert.Contains(t, body, `newsvault_pipeline_articles_total{outcome="removed",stage="dedup"} 2`)
	assert.Contains(t, body, `newsvault_pipeline_articles_total{outcome="failed",stage="extraction"} 1`)
	assert.Contains(t, body, `newsvault_pipeline_articles_total{outcome="fallback",stage="extraction"} 1`)
	assert.Contains(t, body, `newsvault_pipeline_articles_total{outcome="duplicate",stage="publication"} 1`)
	assert.NotContains(t, body, `outcome="failed",stage="publication"`, "zero counts are not recorded")
	assert.Contains(t, body, `newsvault_pipeline_feed_errors_total 1`)
	assert.Contains(t, body, `newsvault_pipeline_summary_retries_total 3`)
	assert.Contains(t, body, `newsvault_pipeline_run_duration_seconds_count 2`)
}

func TestCollector_InstrumentHandler(t *testing.T) {
	c, err := NewCollector()
	require.NoError(t, err)

	handler := c.InstrumentHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte("ok"))
	}))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/run", http.NoBody))
	assert.Equal(t, http.StatusAccepted, rr.Code)

	body := scrape(t, c)
	assert.Contains(t, body, `newsvault_http_requests_total{method="POST",path="/api/v1/run",status="202"} 1`)
	assert.Contains(t, body, `newsvault_http_request_duration_seconds_count{method="POST",path="/api/v1/run",status="202"} 1`)
}

func TestCollector_Push(t *testing.T) {
	var gotMethod, gotPath string
	var gotBody []byte
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath = r.Method, r.URL.Path
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	c, err := NewCollector()
	require.NoError(t, err)
	c.RecordRun(domain.WorkflowResult{Collected: 3, Elapsed: time.Second}, nil)

	require.NoError(t, c.Push(context.Background(), ts.URL, "newsvault"))
	assert.Equal(t, http.MethodPut, gotMethod)
	assert.Equal(t, "/metrics/job/newsvault", gotPath)
	assert.NotEmpty(t, gotBody)

	err = c.Push(context.Background(), "http://127.0.0.1:1", "newsvault")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "push metrics")
}
