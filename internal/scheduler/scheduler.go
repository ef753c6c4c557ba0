// internal/scheduler/scheduler.go
package scheduler

import (
	"context"
	"sync"
	"time"

	"wakili-service/internal/domain/billing"
	"wakili-service/internal/pkg/metrics"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Sweeper is the slice of the lifecycle engine the scheduler drives.
type Sweeper interface {
	ProcessRenewals(ctx context.Context) (billing.SweepResult, error)
}

// Scheduler fires the renewal sweep once a day at a fixed UTC hour. A Redis
// lock keeps concurrent replicas from double-charging; with no Redis
// configured the deployment is assumed to be single-instance and the sweep
// runs unguarded.
type Scheduler struct {
	sweeper Sweeper
	rdb     *redis.Client
	logger  *zap.Logger

	hour     int
	lockTTL  time.Duration
	stopChan chan struct{}
	stopOnce sync.Once
}

func New(sweeper Sweeper, rdb *redis.Client, hour int, logger *zap.Logger) *Scheduler {
	if hour < 0 || hour > 23 {
		hour = 2
	}
	return &Scheduler{
		sweeper:  sweeper,
		rdb:      rdb,
		logger:   logger,
		hour:     hour,
		lockTTL:  time.Hour,
		stopChan: make(chan struct{}),
	}
}

// Start blocks until Stop is called or the context is cancelled. Run it in
// its own goroutine.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("renewal scheduler started", zap.Int("sweep_hour_utc", s.hour))
	for {
		timer := time.NewTimer(time.Until(s.nextRun(time.Now().UTC())))
		select {
		case <-timer.C:
			s.runGuarded(ctx)
		case <-s.stopChan:
			timer.Stop()
			return
		case <-ctx.Done():
			timer.Stop()
			return
		}
	}
}

// Stop is safe to call more than once.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
}

// nextRun returns the next occurrence of the sweep hour strictly after now.
func (s *Scheduler) nextRun(now time.Time) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), s.hour, 0, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

func (s *Scheduler) runGuarded(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			metrics.RenewalSweeps.WithLabelValues("error").Inc()
			s.logger.Error("renewal sweep panicked", zap.Any("panic", r))
		}
	}()

	if !s.acquireLock(ctx) {
		metrics.RenewalSweeps.WithLabelValues("skipped").Inc()
		s.logger.Info("renewal sweep skipped, another instance holds the lock")
		return
	}

	if _, err := s.RunOnce(ctx); err != nil {
		s.logger.Error("renewal sweep failed", zap.Error(err))
	}
}

// RunOnce executes a single sweep immediately, bypassing the schedule and the
// lock. The manual trigger endpoint calls this.
func (s *Scheduler) RunOnce(ctx context.Context) (billing.SweepResult, error) {
	result, err := s.sweeper.ProcessRenewals(ctx)
	if err != nil {
		metrics.RenewalSweeps.WithLabelValues("error").Inc()
		return result, err
	}
	metrics.RenewalSweeps.WithLabelValues("ok").Inc()
	return result, nil
}

func (s *Scheduler) acquireLock(ctx context.Context) bool {
	if s.rdb == nil {
		return true
	}
	key := "billing:renewal_sweep:" + time.Now().UTC().Format("2006-01-02")
	ok, err := s.rdb.SetNX(ctx, key, 1, s.lockTTL).Result()
	if err != nil {
		s.logger.Warn("renewal sweep lock unavailable, proceeding", zap.Error(err))
		return true
	}
	return ok
}
