// Package sweeper runs the periodic payment deadline sweep.
package sweeper

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

// JobName identifies the sweep job, and its distributed lock.
const JobName = "expire-overdue-bookings"

// Expirer cancels bookings whose payment deadline passed.
type Expirer interface {
	ExpireOverdueBookings(ctx context.Context) (int, error)
}

// Sweeper schedules Expirer on a fixed interval. Runs never overlap; with a
// locker only one replica sweeps per tick. Correctness does not depend on the
// lock because every expiry is a conditional update.
type Sweeper struct {
	scheduler gocron.Scheduler
	expirer   Expirer
	interval  time.Duration
	timeout   time.Duration
	logger    *zap.Logger
}

// New creates a sweeper. locker may be nil for single-instance deployments.
func New(expirer Expirer, interval time.Duration, locker gocron.Locker, logger *zap.Logger) (*Sweeper, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("sweep interval must be positive")
	}

	var opts []gocron.SchedulerOption
	if locker != nil {
		opts = append(opts, gocron.WithDistributedLocker(locker))
	}
	sched, err := gocron.NewScheduler(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	return &Sweeper{
		scheduler: sched,
		expirer:   expirer,
		interval:  interval,
		timeout:   interval,
		logger:    logger,
	}, nil
}

// Start registers the sweep job and starts the scheduler. The job stops
// running once ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context) error {
	_, err := s.scheduler.NewJob(
		gocron.DurationJob(s.interval),
		gocron.NewTask(func() { s.RunOnce(ctx) }),
		gocron.WithName(JobName),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule %s: %w", JobName, err)
	}

	s.scheduler.Start()
	s.logger.Info("payment deadline sweeper started", zap.Duration("interval", s.interval))
	return nil
}

// RunOnce performs a single sweep and reports how many bookings expired.
func (s *Sweeper) RunOnce(ctx context.Context) int {
	if ctx.Err() != nil {
		return 0
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	n, err := s.expirer.ExpireOverdueBookings(ctx)
	if err != nil {
		s.logger.Error("payment deadline sweep failed", zap.Int("expired", n), zap.Error(err))
		return n
	}
	if n > 0 {
		s.logger.Info("payment deadline sweep finished", zap.Int("expired", n))
	}
	return n
}

// Stop waits for a running sweep and shuts the scheduler down.
func (s *Sweeper) Stop() error {
	return s.scheduler.Shutdown()
}
