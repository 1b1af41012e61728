package domain

import "time"

// FeedConfig describes a single news feed source
type FeedConfig struct {
	Name     string
	URL      string
	Category string
	Enabled  bool
}

// FeedError records a feed that could not be collected
type FeedError struct {
	FeedName string `json:"feed_name"`
	FeedURL  string `json:"feed_url"`
	Err      string `json:"error"`
}

// CollectedArticle is a normalized feed entry. URL is the identity key of the article
// in every pipeline stage and is never replaced.
type CollectedArticle struct {
	URL          string
	Title        string
	PublishedAt  time.Time
	FeedSource   string
	FeedCategory string
	FeedSummary  string // plain text summary from the feed, used as fallback body
}
