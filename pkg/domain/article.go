package domain

import "time"

// Status is a per-stage article status
type Status string

// stage statuses
const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// PublicationStatus is the terminal status of the publication stage
type PublicationStatus string

// publication statuses
const (
	PublishSuccess   PublicationStatus = "success"
	PublishDuplicate PublicationStatus = "duplicate"
	PublishFailed    PublicationStatus = "failed"
)

// ExtractionMethod tells which extractor produced the body text
type ExtractionMethod string

// extraction methods, in fallback order
const (
	MethodTrafilatura ExtractionMethod = "trafilatura"
	MethodReadability ExtractionMethod = "readability"
	MethodParagraphs  ExtractionMethod = "paragraphs"
	MethodFeedSummary ExtractionMethod = "feed_summary"
)

// ExtractedArticle is a collected article with its full body text
type ExtractedArticle struct {
	CollectedArticle
	BodyText     string
	Status       Status
	UsedFallback bool // body is the feed summary, extraction was bypassed
	Method       ExtractionMethod
	Err          string
}

// Summary is the structured LLM summary of an article
type Summary struct {
	Headline  string   `json:"headline" jsonschema:"required,description=Short factual headline"`
	Summary   string   `json:"summary" jsonschema:"required,description=Summary of the article in 3-5 sentences"`
	KeyPoints []string `json:"key_points" jsonschema:"description=Key facts and numbers,maxItems=5"`
	Category  string   `json:"category" jsonschema:"description=One of the provided categories"`
	Tickers   []string `json:"tickers" jsonschema:"description=Stock tickers mentioned in the article"`
	Sentiment string   `json:"sentiment" jsonschema:"required,enum=positive,enum=negative,enum=neutral"`
}

// SummarizedArticle is an extracted article with its LLM summary
type SummarizedArticle struct {
	ExtractedArticle
	Summary  Summary
	Status   Status
	Attempts int
	Retries  int
	Err      string // terminal error, if any
}

// PublishedArticle is the terminal state of an article that reached the publisher
type PublishedArticle struct {
	SummarizedArticle
	PublicationStatus PublicationStatus
	RecordID          string
	Err               string
}

// Record is a tracker record created for a published article
type Record struct {
	Title     string
	Body      string
	Labels    []string
	SourceURL string // always the collection-time article URL
	CreatedAt time.Time
}
