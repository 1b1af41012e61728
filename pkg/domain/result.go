package domain

import "time"

// pipeline stage names used in failure lists and metrics
const (
	StageCollection    = "collection"
	StageFilter        = "filter"
	StageDedup         = "dedup"
	StageExtraction    = "extraction"
	StageSummarization = "summarization"
	StagePublication   = "publication"
)

// StageFailure records an article which failed a pipeline stage
type StageFailure struct {
	URL    string `json:"url"`
	Title  string `json:"title"`
	Stage  string `json:"stage"`
	Reason string `json:"reason"`
}

// WorkflowResult aggregates the outcome of a single pipeline run
type WorkflowResult struct {
	RunID     string        `json:"run_id"`
	StartedAt time.Time     `json:"started_at"`
	Elapsed   time.Duration `json:"elapsed"`

	FeedsTotal int         `json:"feeds_total"`
	FeedErrors []FeedError `json:"feed_errors"`

	Collected    int `json:"collected"`
	Filtered     int `json:"filtered"` // dropped by age and count limits
	DedupRemoved int `json:"dedup_removed"`

	ExtractionSuccess  int            `json:"extraction_success"`
	ExtractionFailures []StageFailure `json:"extraction_failures"`
	FallbackUsed       int            `json:"fallback_used"`

	SummarySuccess  int            `json:"summary_success"`
	SummaryFailures []StageFailure `json:"summary_failures"`
	SummaryRetries  int            `json:"summary_retries"`

	PublishSuccess    int                `json:"publish_success"`
	PublishDuplicates int                `json:"publish_duplicates"`
	PublishFailures   []StageFailure     `json:"publish_failures"`
	Published         []PublishedArticle `json:"-"`
}

// DedupSurvivors returns the number of articles that entered extraction
func (r WorkflowResult) DedupSurvivors() int {
	return r.Collected - r.Filtered - r.DedupRemoved
}

// Accounted returns the number of articles that ended in a terminal bucket
func (r WorkflowResult) Accounted() int {
	return r.Filtered + r.DedupRemoved + len(r.ExtractionFailures) + len(r.SummaryFailures) +
		r.PublishSuccess + r.PublishDuplicates + len(r.PublishFailures)
}
