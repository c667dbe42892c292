// Package scheduler runs the periodic capacity report.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/powa-team/pgtop/internal/engine"
	"github.com/powa-team/pgtop/internal/logger"
	"github.com/powa-team/pgtop/internal/model"
	"github.com/powa-team/pgtop/internal/notifier"
)

// DefaultReportTimeout bounds a single report delivery.
const DefaultReportTimeout = time.Minute

// StatusProvider exposes the status of the last completed cycle.
type StatusProvider interface {
	Status() model.Status
}

// Options configures a Scheduler.
type Options struct {
	Status   StatusProvider
	Notifier notifier.Notifier
	Logger   logger.Logger

	// WarnPercent is the session usage at which a host is flagged.
	WarnPercent float64
	// TopN is the number of ranked sessions carried by a report.
	TopN int

	// Location interprets the cron expressions; nil means UTC.
	Location *time.Location
	Now      func() time.Time
}

// Scheduler manages the scheduled report job.
type Scheduler struct {
	cron          *cron.Cron
	opts          Options
	log           logger.Logger
	reportTimeout time.Duration

	mu        sync.Mutex
	running   bool
	reporting int32 // atomic flag to prevent overlapping reports
}

// New creates a new Scheduler.
func New(opts Options) *Scheduler {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logger.Noop()
	}
	return &Scheduler{
		cron:          cron.New(cron.WithSeconds(), cron.WithLocation(opts.Location)),
		opts:          opts,
		log:           opts.Logger,
		reportTimeout: DefaultReportTimeout,
	}
}

// SetReportTimeout sets the timeout for report delivery.
func (s *Scheduler) SetReportTimeout(timeout time.Duration) {
	s.reportTimeout = timeout
}

// Schedule adds the report job with the given 6-field cron expression.
func (s *Scheduler) Schedule(cronExpr string) error {
	_, err := s.cron.AddFunc(cronExpr, func() {
		s.runReport()
	})
	return err
}

// Start begins running scheduled jobs.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}

	s.cron.Start()
	s.running = true
	s.log.Info("report scheduler started")
}

// Stop halts all scheduled jobs. The returned context is done once running
// jobs have completed.
func (s *Scheduler) Stop() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return context.Background()
	}

	ctx := s.cron.Stop()
	s.running = false
	s.log.Info("report scheduler stopped")
	return ctx
}

// RunNow triggers an immediate report (bypassing schedule).
func (s *Scheduler) RunNow() {
	s.runReport()
}

// runReport builds a report from the latest status and sends it.
// A run is skipped while the previous one is still in flight.
func (s *Scheduler) runReport() {
	if !atomic.CompareAndSwapInt32(&s.reporting, 0, 1) {
		s.log.Warn("capacity report already in progress, skipping this run")
		return
	}
	defer atomic.StoreInt32(&s.reporting, 0)

	ctx, cancel := context.WithTimeout(context.Background(), s.reportTimeout)
	defer cancel()

	status := s.opts.Status.Status()
	report := engine.BuildReport(&status, s.opts.WarnPercent, s.opts.TopN, s.opts.Now())

	if err := s.opts.Notifier.Send(ctx, report); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			s.log.Error("capacity report timed out after %v", s.reportTimeout)
		} else {
			s.log.Error("capacity report failed: %v", err)
		}
		return
	}

	s.log.Debug("capacity report sent via %s", s.opts.Notifier.Name())
}

// IsRunning returns whether the scheduler is currently active.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// IsReporting returns whether a report is currently being sent.
func (s *Scheduler) IsReporting() bool {
	return atomic.LoadInt32(&s.reporting) == 1
}
