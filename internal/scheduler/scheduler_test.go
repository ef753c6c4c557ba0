// internal/scheduler/scheduler_test.go
package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"wakili-service/internal/domain/billing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubSweeper struct {
	calls  int
	result billing.SweepResult
	err    error
}

func (s *stubSweeper) ProcessRenewals(ctx context.Context) (billing.SweepResult, error) {
	s.calls++
	return s.result, s.err
}

func TestNextRunSameDay(t *testing.T) {
	s := New(&stubSweeper{}, nil, 2, zap.NewNop())

	now := time.Date(2026, 1, 10, 1, 30, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 1, 10, 2, 0, 0, 0, time.UTC), s.nextRun(now))
}

func TestNextRunRollsToTomorrow(t *testing.T) {
	s := New(&stubSweeper{}, nil, 2, zap.NewNop())

	// Exactly at the sweep hour: the next run is tomorrow, never now.
	now := time.Date(2026, 1, 10, 2, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 1, 11, 2, 0, 0, 0, time.UTC), s.nextRun(now))

	now = time.Date(2026, 1, 10, 23, 59, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 1, 11, 2, 0, 0, 0, time.UTC), s.nextRun(now))
}

func TestInvalidHourFallsBack(t *testing.T) {
	s := New(&stubSweeper{}, nil, 99, zap.NewNop())
	assert.Equal(t, 2, s.hour)
}

func TestRunOnceReturnsSweepResult(t *testing.T) {
	sweeper := &stubSweeper{result: billing.SweepResult{Processed: 3, Renewed: 2, Failed: 1}}
	s := New(sweeper, nil, 2, zap.NewNop())

	result, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, result.Processed)
	assert.Equal(t, 1, sweeper.calls)
}

func TestRunOncePropagatesError(t *testing.T) {
	sweeper := &stubSweeper{err: errors.New("db down")}
	s := New(sweeper, nil, 2, zap.NewNop())

	_, err := s.RunOnce(context.Background())
	assert.Error(t, err)
}

func TestStopIsIdempotent(t *testing.T) {
	s := New(&stubSweeper{}, nil, 2, zap.NewNop())

	assert.NotPanics(t, func() {
		s.Stop()
		s.Stop()
	})
}

func TestRunGuardedRecoversPanic(t *testing.T) {
	s := New(panickingSweeper{}, nil, 2, zap.NewNop())

	assert.NotPanics(t, func() {
		s.runGuarded(context.Background())
	})
}

type panickingSweeper struct{}

func (panickingSweeper) ProcessRenewals(ctx context.Context) (billing.SweepResult, error) {
	panic("boom")
}
