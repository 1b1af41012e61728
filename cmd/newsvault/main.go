package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/go-pkgz/lgr"
	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"

	"github.com/umputun/newsvault/pkg/config"
	"github.com/umputun/newsvault/pkg/content"
	"github.com/umputun/newsvault/pkg/domain"
	"github.com/umputun/newsvault/pkg/feed"
	"github.com/umputun/newsvault/pkg/issues"
	"github.com/umputun/newsvault/pkg/llm"
	"github.com/umputun/newsvault/pkg/metrics"
	"github.com/umputun/newsvault/pkg/pipeline"
	"github.com/umputun/newsvault/pkg/publisher"
	"github.com/umputun/newsvault/pkg/repository"
	"github.com/umputun/newsvault/pkg/urlnorm"
	"github.com/umputun/newsvault/server"
)

// Opts with all CLI options
type Opts struct {
	Config   string        `short:"c" long:"config" env:"CONFIG" default:"config.yml" description:"configuration file"`
	EnvFile  string        `long:"env-file" env:"ENV_FILE" default:".env" description:"env file, ignored if missing"`
	Once     bool          `long:"once" description:"run a single batch and exit, even if interval is set"`
	Interval time.Duration `short:"i" long:"interval" env:"INTERVAL" description:"run periodically with status server, single batch if not set"`
	Listen   string        `short:"l" long:"listen" env:"LISTEN" description:"status server listen address, overrides config"`

	MaxPerFeed int `long:"max-per-feed" env:"MAX_PER_FEED" description:"newest articles kept per feed, overrides config"`
	MaxTotal   int `long:"max-total" env:"MAX_TOTAL" description:"newest articles kept per run, overrides config"`

	// common options
	Debug   bool `long:"dbg" env:"DEBUG" description:"debug mode"`
	Version bool `short:"V" long:"version" description:"show version info"`
	NoColor bool `long:"no-color" env:"NO_COLOR" description:"disable color output"`
}

var revision = "unknown"

func main() {
	var opts Opts
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	if opts.Version {
		fmt.Printf("Version: %s\nGolang: %s\n", revision, runtime.Version())
		os.Exit(0)
	}

	setupLog(opts.Debug, opts.NoColor)
	log.Printf("[INFO] starting newsvault version %s", revision)

	ctx, cancel := context.WithCancel(context.Background())

	// handle termination signals
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan
		log.Print("[INFO] termination signal received")
		cancel()
	}()

	err := run(ctx, opts)
	cancel()

	if err != nil {
		log.Printf("[ERROR] %v", err)
		os.Exit(1)
	}

	log.Print("[INFO] shutdown complete")
}

// app holds wired components of a single process
type app struct {
	cfg     *config.Config
	repos   *repository.Repositories
	orch    *pipeline.Orchestrator
	metrics *metrics.Collector
	limits  pipeline.Limits
}

func run(ctx context.Context, opts Opts) error {
	if err := godotenv.Load(opts.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load env file %s: %w", opts.EnvFile, err)
	}

	cfg, err := config.Load(opts.Config)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	setupLog(opts.Debug, opts.NoColor, cfg.LLM.APIKey, cfg.Tracker.GitHub.Token)

	if opts.Listen != "" {
		cfg.Server.Listen = opts.Listen
	}

	a, err := newApp(ctx, cfg, opts)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.repos.Close(); err != nil {
			log.Printf("[WARN] failed to close database: %v", err)
		}
	}()

	if opts.Once || opts.Interval <= 0 {
		res, err := a.orch.Run(ctx, cfg.FeedConfigs(), a.limits)
		a.complete(ctx, res, err)
		if err != nil {
			return fmt.Errorf("pipeline run failed: %w", err)
		}
		return nil
	}

	return a.serve(ctx, opts)
}

// newApp opens storage and wires pipeline components
func newApp(ctx context.Context, cfg *config.Config, opts Opts) (*app, error) {
	repos, err := repository.NewRepositories(ctx, repository.Config{DSN: cfg.Tracker.SQLite.DSN})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	tracker, err := makeTracker(cfg, repos)
	if err != nil {
		_ = repos.Close()
		return nil, err
	}

	metricsCollector, err := metrics.NewCollector()
	if err != nil {
		_ = repos.Close()
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}

	canon := urlnorm.New(cfg.Dedup.TrackingParamPrefixes, cfg.Dedup.TrackingParams)
	orch := pipeline.New(pipeline.Params{
		Canon:               canon,
		Label:               cfg.Publication.Label,
		DedupLookback:       days(cfg.Dedup.LookbackDays),
		TitleSimilarity:     cfg.Dedup.TitleSimilarity,
		ExtractConcurrent:   cfg.Extraction.MaxConcurrent,
		SummarizeConcurrent: cfg.LLM.MaxConcurrent,
	})
	orch.Collector = feed.NewCollector(feed.CollectorParams{
		Timeout:       cfg.Collection.Timeout,
		MaxConcurrent: cfg.Collection.MaxConcurrent,
		UserAgents:    cfg.Collection.UserAgents,
		MaxFeedBytes:  cfg.Collection.MaxFeedBytes,
	})
	orch.Extractor = content.NewHTTPExtractor(content.Params{
		Timeout:       cfg.Extraction.Timeout,
		MinTextLength: cfg.Extraction.MinTextLength,
		MaxBodyBytes:  cfg.Extraction.MaxBodyBytes,
		SkipDomains:   cfg.Extraction.SkipDomains,
		UserAgents:    cfg.Collection.UserAgents,
		Limiter:       content.NewHostLimiter(cfg.Extraction.RateLimit),
	})
	orch.Summarizer = llm.NewSummarizer(cfg.LLM, cfg.Categories)
	orch.Publisher = publisher.New(tracker, canon, publisher.Params{
		Label:         cfg.Publication.Label,
		Lookback:      days(cfg.Publication.LookbackDays),
		MaxConcurrent: cfg.Publication.MaxConcurrent,
	})
	orch.URLSource = tracker
	orch.Recorder = metricsCollector

	limits := pipeline.Limits{MaxAge: cfg.Limits.MaxAge, MaxPerFeed: cfg.Limits.MaxPerFeed, MaxTotal: cfg.Limits.MaxTotal}
	if opts.MaxPerFeed > 0 {
		limits.MaxPerFeed = opts.MaxPerFeed
	}
	if opts.MaxTotal > 0 {
		limits.MaxTotal = opts.MaxTotal
	}

	log.Printf("[INFO] %d feeds, tracker %s, model %s", len(cfg.Feeds), cfg.Tracker.Type, cfg.LLM.Model)
	return &app{cfg: cfg, repos: repos, orch: orch, metrics: metricsCollector, limits: limits}, nil
}

// makeTracker selects the tracker records are published to
func makeTracker(cfg *config.Config, repos *repository.Repositories) (publisher.Tracker, error) {
	switch cfg.Tracker.Type {
	case config.TrackerGitHub:
		gh := cfg.Tracker.GitHub
		tracker, err := issues.New(issues.Params{Owner: gh.Owner, Repo: gh.Repo, Token: gh.Token, BaseURL: gh.BaseURL})
		if err != nil {
			return nil, fmt.Errorf("failed to make github tracker: %w", err)
		}
		return tracker, nil
	case config.TrackerSQLite, "":
		return repos.Record, nil
	default:
		return nil, fmt.Errorf("unknown tracker type %q", cfg.Tracker.Type)
	}
}

// serve runs the pipeline periodically together with the status server
func (a *app) serve(ctx context.Context, opts Opts) error {
	last, err := a.repos.Run.LastRun(ctx)
	if err != nil {
		log.Printf("[WARN] failed to load last run: %v", err)
	}

	sched := pipeline.NewScheduler(a.orch, pipeline.SchedulerParams{
		Interval:   opts.Interval,
		Feeds:      a.cfg.FeedConfigs(),
		Limits:     a.limits,
		OnComplete: func(res domain.WorkflowResult, err error) { a.complete(ctx, res, err) },
		Last:       last,
	})
	sched.Start(ctx)
	defer sched.Stop()

	srv := server.New(a.cfg, sched, a.metrics, revision, opts.Debug)
	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// complete stores the run, prints the report and pushes metrics
func (a *app) complete(ctx context.Context, res domain.WorkflowResult, runErr error) {
	// the run is stored even if ctx is canceled, it may be the reason of the failure
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := a.repos.Run.SaveRun(saveCtx, res); err != nil {
		log.Printf("[WARN] failed to save run %s: %v", res.RunID, err)
	}

	report := pipeline.FormatReport(res)
	if runErr != nil {
		report += fmt.Sprintf("\nrun aborted: %v\n", runErr)
	}
	fmt.Print(report)

	if a.cfg.Metrics.PushGateway == "" {
		return
	}
	if err := a.metrics.Push(saveCtx, a.cfg.Metrics.PushGateway, a.cfg.Metrics.Job); err != nil {
		log.Printf("[WARN] %v", err)
	}
}

func days(n int) time.Duration {
	return time.Duration(n) * 24 * time.Hour
}

func setupLog(dbg, noColor bool, secs ...string) {
	logOpts := []lgr.Option{}
	if dbg {
		logOpts = []lgr.Option{lgr.Debug, lgr.CallerFile, lgr.CallerFunc, lgr.Msec, lgr.LevelBraces, lgr.StackTraceOnError}
	}

	if !noColor {
		colorizer := lgr.Mapper{
			ErrorFunc:  func(s string) string { return color.New(color.FgHiRed).Sprint(s) },
			WarnFunc:   func(s string) string { return color.New(color.FgRed).Sprint(s) },
			InfoFunc:   func(s string) string { return color.New(color.FgYellow).Sprint(s) },
			DebugFunc:  func(s string) string { return color.New(color.FgWhite).Sprint(s) },
			CallerFunc: func(s string) string { return color.New(color.FgBlue).Sprint(s) },
			TimeFunc:   func(s string) string { return color.New(color.FgCyan).Sprint(s) },
		}
		logOpts = append(logOpts, lgr.Map(colorizer))
	}

	var secrets []string
	for _, s := range secs {
		if s != "" {
			secrets = append(secrets, s)
		}
	}
	if len(secrets) > 0 {
		logOpts = append(logOpts, lgr.Secret(secrets...))
	}
	lgr.SetupStdLogger(logOpts...)
	lgr.Setup(logOpts...)
}
