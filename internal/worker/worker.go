// Package worker runs the periodic jobs: expiring unpaid bookings, retrying
// settlements and cleaning old sessions.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"coiffeur-booking/internal/usecase"
	"coiffeur-booking/pkg/utils"
)

const (
	jobTimeout         = 2 * time.Minute
	sessionCleanupSpec = "@daily"
)

type Scheduler struct {
	cron    *cron.Cron
	sweep   usecase.SweepService
	payment usecase.PaymentCoordinator
	log     *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

func NewScheduler(service *usecase.Service, log *zap.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(cron.WithChain(
			cron.SkipIfStillRunning(cron.DiscardLogger),
			cron.Recover(cron.DiscardLogger),
		)),
		sweep:   service.Sweep,
		payment: service.Payment,
		log:     log.With(zap.String("component", "worker")),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Register adds every job with its configured schedule.
func (s *Scheduler) Register(config utils.WorkerConfig) error {
	jobs := []struct {
		name string
		spec string
		run  func(context.Context) error
	}{
		{"expire_pending", config.SweepSpec, s.expirePending},
		{"retry_settlements", config.SettlementSpec, s.retrySettlements},
		{"clean_sessions", sessionCleanupSpec, s.cleanSessions},
	}

	for _, job := range jobs {
		job := job
		if _, err := s.cron.AddFunc(job.spec, func() { s.run(job.name, job.run) }); err != nil {
			return fmt.Errorf("schedule %s (%q): %w", job.name, job.spec, err)
		}
	}
	return nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("Worker scheduler started", zap.Int("jobs", len(s.cron.Entries())))
}

// Stop stops scheduling, cancels running jobs and waits for them to return
// or for ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) {
	s.cancel()

	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.log.Info("Worker scheduler stopped")
	case <-ctx.Done():
		s.log.Warn("Worker scheduler stop timed out")
	}
}

func (s *Scheduler) run(name string, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(s.ctx, jobTimeout)
	defer cancel()

	started := time.Now()
	if err := fn(ctx); err != nil {
		s.log.Error("Job failed", zap.String("job", name), zap.Error(err), zap.Duration("duration", time.Since(started)))
		return
	}
	s.log.Debug("Job finished", zap.String("job", name), zap.Duration("duration", time.Since(started)))
}

func (s *Scheduler) expirePending(ctx context.Context) error {
	_, err := s.sweep.ExpireStalePending(ctx)
	return err
}

func (s *Scheduler) retrySettlements(ctx context.Context) error {
	_, err := s.payment.RetryDue(ctx)
	return err
}

func (s *Scheduler) cleanSessions(ctx context.Context) error {
	_, err := s.sweep.CleanSessions(ctx)
	return err
}
