package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-pkgz/lgr"
	"gopkg.in/yaml.v3"

	"github.com/umputun/newsvault/pkg/domain"
)

//go:generate go run ../../cmd/schema/main.go schema.json

// tracker types
const (
	TrackerSQLite = "sqlite"
	TrackerGitHub = "github"
)

// DefaultUserAgents is the rotation pool used when collection.user_agents is not set
var DefaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.5 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:127.0) Gecko/20100101 Firefox/127.0",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
}

// Config holds the application configuration
type Config struct {
	Feeds       []Feed            `yaml:"feeds" json:"feeds" jsonschema:"required,description=RSS/Atom feeds to ingest"`
	Categories  []string          `yaml:"categories" json:"categories" jsonschema:"description=Allowed summary categories, any category if empty"`
	Collection  CollectionConfig  `yaml:"collection" json:"collection" jsonschema:"description=Feed collection settings"`
	Dedup       DedupConfig       `yaml:"dedup" json:"dedup" jsonschema:"description=Deduplication settings"`
	Extraction  ExtractionConfig  `yaml:"extraction" json:"extraction" jsonschema:"description=Content extraction configuration"`
	LLM         LLMConfig         `yaml:"llm" json:"llm" jsonschema:"description=LLM configuration for article summarization"`
	Publication PublicationConfig `yaml:"publication" json:"publication" jsonschema:"description=Publication settings"`
	Limits      LimitsConfig      `yaml:"limits" json:"limits" jsonschema:"description=Per-run article limits"`
	Tracker     TrackerConfig     `yaml:"tracker" json:"tracker" jsonschema:"description=Tracker where records are published"`
	Metrics     MetricsConfig     `yaml:"metrics" json:"metrics" jsonschema:"description=Prometheus metrics settings"`

	Server struct {
		Listen  string        `yaml:"listen" json:"listen" jsonschema:"default=:8080,description=HTTP server listen address"`
		Timeout time.Duration `yaml:"timeout" json:"timeout" jsonschema:"default=30s,description=HTTP server timeout"`
	} `yaml:"server" json:"server" jsonschema:"description=Status server configuration, daemon mode only"`
}

// Feed is a single configured feed
type Feed struct {
	Name     string `yaml:"name" json:"name" jsonschema:"description=Feed name, defaults to URL"`
	URL      string `yaml:"url" json:"url" jsonschema:"required,description=Feed URL"`
	Category string `yaml:"category" json:"category" jsonschema:"description=Feed category hint"`
	Enabled  *bool  `yaml:"enabled" json:"enabled,omitempty" jsonschema:"default=true,description=Set to false to skip the feed"`
}

// CollectionConfig holds feed collection settings
type CollectionConfig struct {
	Timeout       time.Duration `yaml:"timeout" json:"timeout" jsonschema:"default=30s,description=Per-feed fetch timeout"`
	MaxConcurrent int           `yaml:"max_concurrent" json:"max_concurrent" jsonschema:"default=5,description=Maximum concurrent feed fetches"`
	UserAgents    []string      `yaml:"user_agents" json:"user_agents" jsonschema:"description=User-Agent rotation pool"`
	MaxFeedBytes  int64         `yaml:"max_feed_bytes" json:"max_feed_bytes" jsonschema:"default=10485760,description=Maximum feed size in bytes"`
}

// DedupConfig holds deduplication settings
type DedupConfig struct {
	LookbackDays          int      `yaml:"lookback_days" json:"lookback_days" jsonschema:"default=7,description=Days of tracker history checked for duplicates"`
	TrackingParamPrefixes []string `yaml:"tracking_param_prefixes" json:"tracking_param_prefixes" jsonschema:"description=Query parameter prefixes removed from URLs"`
	TrackingParams        []string `yaml:"tracking_params" json:"tracking_params" jsonschema:"description=Query parameters removed from URLs"`
	TitleSimilarity       float64  `yaml:"title_similarity" json:"title_similarity" jsonschema:"default=0.8,minimum=0,maximum=1,description=Title similarity reported as a suspected duplicate"`
}

// ExtractionConfig holds content extraction settings
type ExtractionConfig struct {
	Timeout       time.Duration `yaml:"timeout" json:"timeout" jsonschema:"default=30s,description=Extraction timeout per article"`
	MaxConcurrent int           `yaml:"max_concurrent" json:"max_concurrent" jsonschema:"default=5,description=Maximum concurrent extractions"`
	RateLimit     time.Duration `yaml:"rate_limit" json:"rate_limit" jsonschema:"default=1s,description=Minimal interval between requests to the same host"`
	MinTextLength int           `yaml:"min_text_length" json:"min_text_length" jsonschema:"default=100,description=Minimum text length to consider valid"`
	SkipDomains   []string      `yaml:"skip_domains" json:"skip_domains" jsonschema:"description=Domains using the feed summary instead of extraction"`
	MaxBodyBytes  int64         `yaml:"max_body_bytes" json:"max_body_bytes" jsonschema:"default=5242880,description=Maximum page size in bytes"`
}

// LLMConfig holds LLM configuration for article summarization
type LLMConfig struct {
	Endpoint        string        `yaml:"endpoint" json:"endpoint" jsonschema:"description=OpenAI-compatible API endpoint"`
	APIKey          string        `yaml:"api_key" json:"api_key" jsonschema:"description=API key (can use environment variable)"`
	Model           string        `yaml:"model" json:"model" jsonschema:"required,description=Model name (e.g. gpt-4o-mini or llama3)"`
	Temperature     float64       `yaml:"temperature" json:"temperature" jsonschema:"default=0.2,description=Temperature for response generation"`
	MaxTokens       int           `yaml:"max_tokens" json:"max_tokens" jsonschema:"default=800,description=Maximum tokens in response"`
	Timeout         time.Duration `yaml:"timeout" json:"timeout" jsonschema:"default=60s,description=Request timeout"`
	SystemPrompt    string        `yaml:"system_prompt" json:"system_prompt" jsonschema:"description=System prompt for the LLM (optional)"`
	UseJSONMode     bool          `yaml:"use_json_mode" json:"use_json_mode" jsonschema:"default=false,description=Use JSON response format (not all models support this)"`
	MaxInputChars   int           `yaml:"max_input_chars" json:"max_input_chars" jsonschema:"default=12000,description=Article body is truncated to this size"`
	MaxAttempts     int           `yaml:"max_attempts" json:"max_attempts" jsonschema:"default=3,minimum=1,description=Maximum attempts per article"`
	StandardBackoff time.Duration `yaml:"standard_backoff" json:"standard_backoff" jsonschema:"default=2s,description=Base backoff for transient errors"`
	ExtendedBackoff time.Duration `yaml:"extended_backoff" json:"extended_backoff" jsonschema:"default=20s,description=Base backoff for rate limited responses"`
	MaxBackoff      time.Duration `yaml:"max_backoff" json:"max_backoff" jsonschema:"default=2m,description=Backoff cap"`
	MaxConcurrent   int           `yaml:"max_concurrent" json:"max_concurrent" jsonschema:"default=2,description=Maximum concurrent LLM requests"`
}

// PublicationConfig holds publication settings
type PublicationConfig struct {
	Label         string `yaml:"label" json:"label" jsonschema:"default=news,description=Label attached to every record"`
	LookbackDays  int    `yaml:"lookback_days" json:"lookback_days" jsonschema:"default=2,description=Days of tracker history checked before publishing"`
	MaxConcurrent int    `yaml:"max_concurrent" json:"max_concurrent" jsonschema:"default=1,description=Maximum concurrent publications"`
}

// LimitsConfig holds per-run article limits, zero means unlimited
type LimitsConfig struct {
	MaxPerFeed int           `yaml:"max_per_feed" json:"max_per_feed" jsonschema:"description=Newest articles kept per feed"`
	MaxTotal   int           `yaml:"max_total" json:"max_total" jsonschema:"description=Newest articles kept per run"`
	MaxAge     time.Duration `yaml:"max_age" json:"max_age" jsonschema:"description=Older articles are dropped"`
}

// TrackerConfig selects and configures the tracker
type TrackerConfig struct {
	Type   string `yaml:"type" json:"type" jsonschema:"default=sqlite,enum=sqlite,enum=github,description=Tracker type"`
	SQLite struct {
		DSN string `yaml:"dsn" json:"dsn" jsonschema:"default=file:newsvault.db?cache=shared&mode=rwc&_txlock=immediate,description=Database connection string"`
	} `yaml:"sqlite" json:"sqlite" jsonschema:"description=SQLite archive"`
	GitHub struct {
		Owner   string `yaml:"owner" json:"owner" jsonschema:"description=Repository owner"`
		Repo    string `yaml:"repo" json:"repo" jsonschema:"description=Repository name"`
		Token   string `yaml:"token" json:"token" jsonschema:"description=API token (can use environment variable)"`
		BaseURL string `yaml:"base_url" json:"base_url" jsonschema:"description=API base URL for GitHub Enterprise"`
	} `yaml:"github" json:"github" jsonschema:"description=GitHub issues tracker"`
}

// MetricsConfig holds prometheus settings
type MetricsConfig struct {
	PushGateway string `yaml:"push_gateway" json:"push_gateway" jsonschema:"description=Pushgateway URL, metrics are pushed after a batch run"`
	Job         string `yaml:"job" json:"job" jsonschema:"default=newsvault,description=Pushgateway job name"`
}

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // file path comes from CLI flag
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// expand environment variables
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	// verify against embedded schema
	if err := VerifyAgainstEmbeddedSchema(&cfg); err != nil {
		// schema validation is supplementary
		lgr.Printf("[WARN] schema validation failed: %v", err)
	}

	return &cfg, nil
}

func setDefaults(cfg *Config) {
	// set defaults for feeds
	for i := range cfg.Feeds {
		cfg.Feeds[i].URL = strings.TrimSpace(cfg.Feeds[i].URL)
		if cfg.Feeds[i].Name == "" {
			cfg.Feeds[i].Name = cfg.Feeds[i].URL
		}
	}

	// set defaults for server
	if cfg.Server.Listen == "" {
		cfg.Server.Listen = ":8080"
	}
	if cfg.Server.Timeout == 0 {
		cfg.Server.Timeout = 30 * time.Second
	}

	// set defaults for collection
	if cfg.Collection.Timeout == 0 {
		cfg.Collection.Timeout = 30 * time.Second
	}
	if cfg.Collection.MaxConcurrent == 0 {
		cfg.Collection.MaxConcurrent = 5
	}
	if len(cfg.Collection.UserAgents) == 0 {
		cfg.Collection.UserAgents = DefaultUserAgents
	}
	if cfg.Collection.MaxFeedBytes == 0 {
		cfg.Collection.MaxFeedBytes = 10 * 1024 * 1024
	}

	// set defaults for dedup
	if cfg.Dedup.LookbackDays == 0 {
		cfg.Dedup.LookbackDays = 7
	}
	if cfg.Dedup.TrackingParamPrefixes == nil {
		cfg.Dedup.TrackingParamPrefixes = []string{"utm_"}
	}
	if cfg.Dedup.TrackingParams == nil {
		cfg.Dedup.TrackingParams = []string{"ref", "fbclid", "gclid", "mc_cid", "mc_eid", "cmpid", "ncid", "guccounter"}
	}
	if cfg.Dedup.TitleSimilarity == 0 {
		cfg.Dedup.TitleSimilarity = 0.8
	}

	// set defaults for extraction
	if cfg.Extraction.Timeout == 0 {
		cfg.Extraction.Timeout = 30 * time.Second
	}
	if cfg.Extraction.MaxConcurrent == 0 {
		cfg.Extraction.MaxConcurrent = 5
	}
	if cfg.Extraction.RateLimit == 0 {
		cfg.Extraction.RateLimit = 1 * time.Second
	}
	if cfg.Extraction.MinTextLength == 0 {
		cfg.Extraction.MinTextLength = 100
	}
	if cfg.Extraction.MaxBodyBytes == 0 {
		cfg.Extraction.MaxBodyBytes = 5 * 1024 * 1024
	}

	// set defaults for LLM
	if cfg.LLM.Temperature == 0 {
		cfg.LLM.Temperature = 0.2
	}
	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = 800
	}
	if cfg.LLM.Timeout == 0 {
		cfg.LLM.Timeout = 60 * time.Second
	}
	if cfg.LLM.MaxInputChars == 0 {
		cfg.LLM.MaxInputChars = 12000
	}
	if cfg.LLM.MaxAttempts == 0 {
		cfg.LLM.MaxAttempts = 3
	}
	if cfg.LLM.StandardBackoff == 0 {
		cfg.LLM.StandardBackoff = 2 * time.Second
	}
	if cfg.LLM.ExtendedBackoff == 0 {
		cfg.LLM.ExtendedBackoff = 20 * time.Second
	}
	if cfg.LLM.MaxBackoff == 0 {
		cfg.LLM.MaxBackoff = 2 * time.Minute
	}
	if cfg.LLM.MaxConcurrent == 0 {
		cfg.LLM.MaxConcurrent = 2
	}

	// set defaults for publication
	if cfg.Publication.Label == "" {
		cfg.Publication.Label = "news"
	}
	if cfg.Publication.LookbackDays == 0 {
		cfg.Publication.LookbackDays = 2
	}
	if cfg.Publication.MaxConcurrent == 0 {
		cfg.Publication.MaxConcurrent = 1
	}

	// set defaults for tracker
	if cfg.Tracker.Type == "" {
		cfg.Tracker.Type = TrackerSQLite
	}
	if cfg.Tracker.SQLite.DSN == "" {
		cfg.Tracker.SQLite.DSN = "file:newsvault.db?cache=shared&mode=rwc&_txlock=immediate"
	}

	if cfg.Metrics.Job == "" {
		cfg.Metrics.Job = "newsvault"
	}
}

// validate checks configuration for correctness
func validate(cfg *Config) error {
	if len(cfg.Feeds) == 0 {
		return fmt.Errorf("at least one feed is required")
	}
	for i, f := range cfg.Feeds {
		if f.URL == "" {
			return fmt.Errorf("feeds[%d].url is required", i)
		}
		if !strings.HasPrefix(f.URL, "http://") && !strings.HasPrefix(f.URL, "https://") {
			return fmt.Errorf("feeds[%d].url must be http(s), got %q", i, f.URL)
		}
	}

	// validate LLM config
	if cfg.LLM.Model == "" {
		return fmt.Errorf("llm.model is required")
	}
	if cfg.LLM.Temperature < 0 || cfg.LLM.Temperature > 2 {
		return fmt.Errorf("llm.temperature must be between 0 and 2")
	}
	if cfg.LLM.MaxAttempts < 1 {
		return fmt.Errorf("llm.max_attempts must be at least 1")
	}
	if cfg.LLM.MaxBackoff < cfg.LLM.StandardBackoff {
		return fmt.Errorf("llm.max_backoff must not be less than llm.standard_backoff")
	}

	// validate extraction config
	if cfg.Extraction.Timeout < time.Second {
		return fmt.Errorf("extraction timeout must be at least 1 second")
	}
	if cfg.Extraction.MinTextLength < 0 {
		return fmt.Errorf("extraction min_text_length must be non-negative")
	}

	if cfg.Dedup.TitleSimilarity < 0 || cfg.Dedup.TitleSimilarity > 1 {
		return fmt.Errorf("dedup.title_similarity must be between 0 and 1")
	}
	if cfg.Limits.MaxPerFeed < 0 || cfg.Limits.MaxTotal < 0 || cfg.Limits.MaxAge < 0 {
		return fmt.Errorf("limits must be non-negative")
	}

	switch cfg.Tracker.Type {
	case TrackerSQLite:
	case TrackerGitHub:
		if cfg.Tracker.GitHub.Owner == "" || cfg.Tracker.GitHub.Repo == "" {
			return fmt.Errorf("tracker.github.owner and tracker.github.repo are required")
		}
		if cfg.Tracker.GitHub.Token == "" {
			return fmt.Errorf("tracker.github.token is required")
		}
	default:
		return fmt.Errorf("unknown tracker type %q", cfg.Tracker.Type)
	}

	// validate server config
	if cfg.Server.Timeout < time.Second {
		return fmt.Errorf("server timeout must be at least 1 second")
	}

	return nil
}

// FeedConfigs returns configured feeds in pipeline form
func (c *Config) FeedConfigs() []domain.FeedConfig {
	res := make([]domain.FeedConfig, 0, len(c.Feeds))
	for _, f := range c.Feeds {
		res = append(res, domain.FeedConfig{Name: f.Name, URL: f.URL, Category: f.Category, Enabled: f.Enabled == nil || *f.Enabled})
	}
	return res
}

// GetServerConfig returns server configuration
func (c *Config) GetServerConfig() (listen string, timeout time.Duration) {
	return c.Server.Listen, c.Server.Timeout
}
