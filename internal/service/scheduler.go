package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ruslaninoyatov1/calling/internal/callwindow"
	"github.com/ruslaninoyatov1/calling/internal/domain"
	"github.com/ruslaninoyatov1/calling/internal/observability"
	"github.com/ruslaninoyatov1/calling/internal/queue"
	"github.com/ruslaninoyatov1/calling/internal/repository"
	"go.uber.org/zap"
)

const (
	defaultPollInterval = 300 * time.Second
	defaultErrorBackoff = 60 * time.Second
	defaultScanBatch    = 500
	commitTimeout       = 10 * time.Second
)

// Attempter turns one call record into a terminal outcome.
type Attempter interface {
	Attempt(ctx context.Context, record domain.CallRecord, day time.Time) (domain.Outcome, error)
}

// PassRecorder persists pass summaries for the status endpoint.
type PassRecorder interface {
	Record(ctx context.Context, summary domain.PassSummary) error
}

type SchedulerConfig struct {
	Window       callwindow.Window
	PollInterval time.Duration
	ErrorBackoff time.Duration
	BatchSize    int
}

// SchedulerStatus is a point-in-time view of the scheduler.
type SchedulerStatus struct {
	Running        bool
	Window         string
	WindowOpen     bool
	NextEligibleAt time.Time
	LastPass       *domain.PassSummary
}

// Scheduler runs dispatch passes: gate on the call window, scan today's pending calls,
// dispatch them one at a time and commit each outcome before moving on.
type Scheduler struct {
	calls      repository.CallRepository
	dispatcher Attempter
	recorder   PassRecorder
	publisher  queue.Publisher
	logger     *zap.Logger
	metrics    *observability.Metrics

	window       callwindow.Window
	pollInterval time.Duration
	errorBackoff time.Duration
	batchSize    int
	now          func() time.Time
	newID        func() string

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	last   *domain.PassSummary
}

func NewScheduler(
	calls repository.CallRepository,
	dispatcher Attempter,
	cfg SchedulerConfig,
	logger *zap.Logger,
) (*Scheduler, error) {
	if calls == nil {
		return nil, fmt.Errorf("call repository is required")
	}
	if dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = defaultErrorBackoff
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultScanBatch
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Scheduler{
		calls:        calls,
		dispatcher:   dispatcher,
		publisher:    queue.NopPublisher{},
		logger:       logger,
		window:       cfg.Window,
		pollInterval: cfg.PollInterval,
		errorBackoff: cfg.ErrorBackoff,
		batchSize:    cfg.BatchSize,
		now:          time.Now,
		newID:        uuid.NewString,
	}, nil
}

func (s *Scheduler) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

func (s *Scheduler) SetRecorder(recorder PassRecorder) {
	if s == nil {
		return
	}
	s.recorder = recorder
}

func (s *Scheduler) SetPublisher(publisher queue.Publisher) {
	if s == nil || publisher == nil {
		return
	}
	s.publisher = publisher
}

// Start runs passes until ctx is canceled or Stop is called. A pass that fails sleeps the
// error back-off instead of the poll interval.
func (s *Scheduler) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already running")
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	defer func() {
		cancel()
		s.mu.Lock()
		s.cancel = nil
		s.done = nil
		s.mu.Unlock()
		close(done)
	}()

	s.logger.Info("scheduler started",
		zap.String("window", s.window.String()),
		zap.Duration("pollInterval", s.pollInterval),
		zap.Duration("errorBackoff", s.errorBackoff),
	)

	for {
		wait := s.pollInterval
		if _, err := s.RunOnce(ctx); err != nil {
			if ctx.Err() != nil {
				break
			}
			s.logger.Error("dispatch pass failed, backing off",
				zap.Duration("backoff", s.errorBackoff),
				zap.Error(err),
			)
			wait = s.errorBackoff
		}

		if !sleepContext(ctx, wait) {
			break
		}
	}

	s.logger.Info("scheduler stopped")
	return nil
}

// Stop cancels a running Start and waits for the in-flight pass to return.
func (s *Scheduler) Stop() {
	if s == nil {
		return
	}

	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// RunOnce executes a single pass. The returned error is non-nil only for pass-level
// failures: the store could not be read or ctx ended mid-pass.
func (s *Scheduler) RunOnce(ctx context.Context) (domain.PassSummary, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	passID := s.newID()
	ctx = observability.WithPassID(ctx, passID)
	logger := observability.WithContextLogger(s.logger, ctx)

	now := s.now()
	summary := domain.PassSummary{PassID: passID, StartedAt: now}

	if !s.window.Contains(now) {
		summary.Result = domain.PassGated
		summary.NextEligibleAt = s.window.NextEligible(now)
		logger.Debug("outside call window, skipping pass",
			zap.Time("nextEligibleAt", summary.NextEligibleAt),
		)
		s.finish(ctx, summary)
		return summary, nil
	}

	day := s.window.Today(now)
	summary.Day = day

	err := s.dispatchPending(ctx, logger, day, &summary)
	summary.Duration = s.now().Sub(now)
	summary.NextEligibleAt = s.window.NextEligible(s.now())

	if err != nil {
		summary.Result = domain.PassFailed
		summary.Error = err.Error()
		s.finish(ctx, summary)
		return summary, err
	}

	summary.Result = domain.PassCompleted
	logger.Info("dispatch pass finished",
		zap.Int("candidates", summary.Candidates),
		zap.Int("completed", summary.Completed),
		zap.Int("failed", summary.Failed),
		zap.Int("uncommitted", summary.Uncommitted),
		zap.Duration("duration", summary.Duration),
	)
	s.finish(ctx, summary)
	return summary, nil
}

func (s *Scheduler) dispatchPending(ctx context.Context, logger *zap.Logger, day time.Time, summary *domain.PassSummary) error {
	var afterID int64
	for {
		batch, err := s.calls.ListPending(ctx, day, afterID, s.batchSize)
		if err != nil {
			return fmt.Errorf("failed to list pending calls: %w", err)
		}

		for i := range batch {
			record := batch[i]
			afterID = record.ID

			if !record.IsCandidate(day) {
				logger.Debug("skipping non-candidate call", zap.Int64("callId", record.ID))
				continue
			}
			if err := ctx.Err(); err != nil {
				return err
			}

			summary.Candidates++
			if err := s.dispatchOne(ctx, logger, record, day, summary); err != nil {
				return err
			}
		}

		if len(batch) < s.batchSize {
			return nil
		}
	}
}

func (s *Scheduler) dispatchOne(ctx context.Context, logger *zap.Logger, record domain.CallRecord, day time.Time, summary *domain.PassSummary) error {
	outcome, err := s.dispatcher.Attempt(ctx, record, day)
	if err != nil {
		return err
	}

	// The engine already has the call, so the commit must not be cut short by shutdown.
	commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), commitTimeout)
	defer cancel()

	updated, err := s.calls.MarkOutcome(commitCtx, record.ID, outcome)
	if err != nil {
		summary.Uncommitted++
		s.metrics.IncOutcomeCommitFailure()
		logger.Error("failed to commit call outcome",
			zap.Int64("callId", record.ID),
			zap.String("status", outcome.Status.String()),
			zap.Error(err),
		)
		return nil
	}
	if !updated {
		logger.Warn("call left pending state before commit",
			zap.Int64("callId", record.ID),
		)
		return nil
	}

	if outcome.Succeeded() {
		summary.Completed++
	} else {
		summary.Failed++
	}

	passID, _ := observability.PassIDFromContext(ctx)
	event := queue.NewOutcomeEvent(s.newID(), passID, record.ID, outcome, s.now())
	if err := s.publisher.Publish(commitCtx, event); err != nil {
		logger.Warn("failed to publish call outcome",
			zap.Int64("callId", record.ID),
			zap.Error(err),
		)
	}
	return nil
}

func (s *Scheduler) finish(ctx context.Context, summary domain.PassSummary) {
	s.metrics.IncPass(summary.Result.String())
	if summary.Result != domain.PassGated {
		s.metrics.ObservePassDuration(summary.Duration)
		s.metrics.SetCandidates(summary.Candidates)
	}

	s.mu.Lock()
	last := summary
	s.last = &last
	s.mu.Unlock()

	if s.recorder == nil {
		return
	}
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), commitTimeout)
	defer cancel()
	if err := s.recorder.Record(recordCtx, summary); err != nil && !errors.Is(err, context.Canceled) {
		observability.WithContextLogger(s.logger, ctx).Warn("failed to record pass stats", zap.Error(err))
	}
}

// Status reports the gate state at now and the most recent pass run by this process.
func (s *Scheduler) Status(now time.Time) SchedulerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := SchedulerStatus{
		Running:        s.done != nil,
		Window:         s.window.String(),
		WindowOpen:     s.window.Contains(now),
		NextEligibleAt: s.window.NextEligible(now),
	}
	if s.last != nil {
		last := *s.last
		status.LastPass = &last
	}
	return status
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
