package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-pkgz/lgr"

	"github.com/umputun/newsvault/pkg/domain"
)

// ErrRunInProgress returned when a run is requested while another one is active
var ErrRunInProgress = errors.New("run in progress")

// ErrNotStarted returned when a run is requested before the scheduler is started
var ErrNotStarted = errors.New("scheduler not started")

// Runner executes a single pipeline batch
type Runner interface {
	Run(ctx context.Context, feeds []domain.FeedConfig, limits Limits) (domain.WorkflowResult, error)
}

// Scheduler runs the pipeline periodically, one run at a time
type Scheduler struct {
	runner     Runner
	feeds      []domain.FeedConfig
	limits     Limits
	interval   time.Duration
	onComplete func(res domain.WorkflowResult, err error)

	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
	running atomic.Bool

	lock    sync.RWMutex
	last    *domain.WorkflowResult
	lastErr error
}

// SchedulerParams defines scheduler settings
type SchedulerParams struct {
	Interval   time.Duration
	Feeds      []domain.FeedConfig
	Limits     Limits
	OnComplete func(res domain.WorkflowResult, err error) // called after each run, optional
	Last       *domain.WorkflowResult                     // result of a previous run, reported until the first run completes
}

// NewScheduler creates a new scheduler instance
func NewScheduler(runner Runner, p SchedulerParams) *Scheduler {
	if p.Interval <= 0 {
		p.Interval = 30 * time.Minute
	}
	return &Scheduler{runner: runner, feeds: p.Feeds, limits: p.Limits, interval: p.Interval,
		onComplete: p.OnComplete, last: p.Last}
}

// Start begins periodic runs, the first one starts immediately
func (s *Scheduler) Start(ctx context.Context) {
	s.lock.Lock()
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.lock.Unlock()

	s.wg.Add(1)
	go s.worker(s.ctx)
	lgr.Printf("[INFO] scheduler started with interval %v, %d feeds", s.interval, len(s.feeds))
}

// Stop cancels the active run and waits for it to finish
func (s *Scheduler) Stop() {
	lgr.Printf("[INFO] stopping scheduler...")
	s.lock.RLock()
	cancel := s.cancel
	s.lock.RUnlock()
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
	lgr.Printf("[INFO] scheduler stopped")
}

// RunNow starts a run in background unless another run is active
func (s *Scheduler) RunNow() error {
	s.lock.RLock()
	ctx := s.ctx
	s.lock.RUnlock()
	if ctx == nil {
		return ErrNotStarted
	}
	if !s.running.CompareAndSwap(false, true) {
		return ErrRunInProgress
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx)
	}()
	return nil
}

// Running tells if a run is active
func (s *Scheduler) Running() bool {
	return s.running.Load()
}

// LastResult returns the result and error of the last completed run, ok is false if nothing was run yet
func (s *Scheduler) LastResult() (res domain.WorkflowResult, runErr error, ok bool) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	if s.last == nil {
		return domain.WorkflowResult{}, nil, false
	}
	return *s.last, s.lastErr, true
}

func (s *Scheduler) worker(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// run immediately on start
	s.tryRun(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tryRun(ctx)
		}
	}
}

func (s *Scheduler) tryRun(ctx context.Context) {
	if !s.running.CompareAndSwap(false, true) {
		lgr.Printf("[INFO] previous run still active, skipping")
		return
	}
	s.run(ctx)
}

// run expects running flag to be set by the caller
func (s *Scheduler) run(ctx context.Context) {
	defer s.running.Store(false)

	res, err := s.runner.Run(ctx, s.feeds, s.limits)
	if err != nil {
		lgr.Printf("[WARN] scheduled run failed: %v", err)
	}

	s.lock.Lock()
	s.last, s.lastErr = &res, err
	s.lock.Unlock()

	if s.onComplete != nil {
		s.onComplete(res, err)
	}
}
