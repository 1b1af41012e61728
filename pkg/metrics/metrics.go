// Package metrics exposes pipeline and HTTP metrics for Prometheus.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/umputun/newsvault/pkg/domain"
)

const namespace = "newsvault"

// article outcomes used as label values
const (
	OutcomeCollected = "collected"
	OutcomeFiltered  = "filtered"
	OutcomeRemoved   = "removed"
	OutcomeSuccess   = "success"
	OutcomeFailed    = "failed"
	OutcomeFallback  = "fallback"
	OutcomeDuplicate = "duplicate"
)

// Collector keeps pipeline and HTTP metrics in its own registry
type Collector struct {
	registry *prometheus.Registry

	runs           *prometheus.CounterVec
	articles       *prometheus.CounterVec
	feedErrors     prometheus.Counter
	summaryRetries prometheus.Counter
	runDuration    prometheus.Histogram
	lastRun        prometheus.Gauge

	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
}

// NewCollector constructs a collector with pipeline counters and HTTP histograms
func NewCollector() (*Collector, error) {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Total number of pipeline runs by status.",
		}, []string{"status"}),
		articles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "articles_total",
			Help:      "Articles by pipeline stage and outcome.",
		}, []string{"stage", "outcome"}),
		feedErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "feed_errors_total",
			Help:      "Total number of feeds which failed to collect.",
		}),
		summaryRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "summary_retries_total",
			Help:      "Total number of retried summarization calls.",
		}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "run_duration_seconds",
			Help:      "Duration of pipeline runs.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "last_run_timestamp_seconds",
			Help:      "Completion time of the last pipeline run.",
		}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Latency distribution for inbound HTTP requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of inbound HTTP requests.",
		}, []string{"method", "path", "status"}),
	}

	for _, m := range []prometheus.Collector{c.runs, c.articles, c.feedErrors, c.summaryRetries, c.runDuration,
		c.lastRun, c.requestDuration, c.requestTotal} {
		if err := c.registry.Register(m); err != nil {
			return nil, fmt.Errorf("register metric: %w", err)
		}
	}
	return c, nil
}

// RecordRun adds the run result to pipeline metrics. Failed runs are counted, their partial
// stage counts are recorded too.
func (c *Collector) RecordRun(res domain.WorkflowResult, runErr error) {
	status := "ok"
	if runErr != nil {
		status = "error"
	}
	c.runs.WithLabelValues(status).Inc()

	add := func(stage, outcome string, n int) {
		if n > 0 {
			c.articles.WithLabelValues(stage, outcome).Add(float64(n))
		}
	}
	add(domain.StageCollection, OutcomeCollected, res.Collected)
	add(domain.StageFilter, OutcomeFiltered, res.Filtered)
	add(domain.StageDedup, OutcomeRemoved, res.DedupRemoved)
	add(domain.StageExtraction, OutcomeSuccess, res.ExtractionSuccess)
	add(domain.StageExtraction, OutcomeFailed, len(res.ExtractionFailures))
	add(domain.StageExtraction, OutcomeFallback, res.FallbackUsed)
	add(domain.StageSummarization, OutcomeSuccess, res.SummarySuccess)
	add(domain.StageSummarization, OutcomeFailed, len(res.SummaryFailures))
	add(domain.StagePublication, OutcomeSuccess, res.PublishSuccess)
	add(domain.StagePublication, OutcomeDuplicate, res.PublishDuplicates)
	add(domain.StagePublication, OutcomeFailed, len(res.PublishFailures))

	c.feedErrors.Add(float64(len(res.FeedErrors)))
	c.summaryRetries.Add(float64(res.SummaryRetries))
	c.runDuration.Observe(res.Elapsed.Seconds())
	c.lastRun.Set(float64(res.StartedAt.Add(res.Elapsed).Unix()))
}

// Push sends all metrics to the pushgateway, replacing metrics of the job
func (c *Collector) Push(ctx context.Context, gatewayURL, job string) error {
	if err := push.New(gatewayURL, job).Gatherer(c.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics to %s: %w", gatewayURL, err)
	}
	return nil
}

// Handler returns an HTTP handler for exposing Prometheus metrics.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler to record HTTP metrics.
func (c *Collector) InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(rw.status)
		path := r.URL.Path

		c.requestTotal.WithLabelValues(r.Method, path, status).Inc()
		c.requestDuration.WithLabelValues(r.Method, path, status).Observe(duration)
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (w *responseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
