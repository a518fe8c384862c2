package jobs

import (
	"context"
	"fmt"
	"time"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/vitalbridge/go-healthsync/core"
)

// Scheduler enqueues a periodic event-index refresh so the deletion
// reconciler's local index keeps tracking remote state between tombstone
// batches.
type Scheduler struct {
	enqueuer    core.JobEnqueuer
	interval    time.Duration
	staticTypes []string
	logger      core.Logger
	now         func() time.Time
}

type SchedulerOption func(*Scheduler)

func WithSchedulerLogger(logger core.Logger) SchedulerOption {
	return func(s *Scheduler) {
		if s == nil || logger == nil {
			return
		}
		s.logger = logger
	}
}

// WithBaselineStreams re-checks the named static streams each interval so
// characteristic changes surface without a restart.
func WithBaselineStreams(sourceTypes []string) SchedulerOption {
	return func(s *Scheduler) {
		if s == nil {
			return
		}
		s.staticTypes = append([]string(nil), sourceTypes...)
	}
}

func WithSchedulerClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) {
		if s == nil || now == nil {
			return
		}
		s.now = now
	}
}

func NewScheduler(enqueuer core.JobEnqueuer, interval time.Duration, options ...SchedulerOption) (*Scheduler, error) {
	if enqueuer == nil {
		return nil, fmt.Errorf("jobs: enqueuer is required")
	}
	if interval <= 0 {
		return nil, fmt.Errorf("jobs: refresh interval must be positive")
	}
	scheduler := &Scheduler{
		enqueuer: enqueuer,
		interval: interval,
		now:      time.Now,
	}
	for _, option := range options {
		option(scheduler)
	}
	if scheduler.logger == nil {
		_, scheduler.logger = glog.Resolve("healthsync.jobs.scheduler", nil, nil)
	}
	return scheduler, nil
}

// Run blocks until the context is cancelled, enqueueing one refresh per
// interval. Ticks collapse through the queue's drop policy if a prior
// refresh is still pending.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.enqueueTick(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				s.logger.Warn("scheduled enqueue failed", "error", err)
			}
		}
	}
}

func (s *Scheduler) enqueueTick(ctx context.Context) error {
	bucket := s.now().UTC().Truncate(s.interval).Unix()

	if err := s.enqueuer.Enqueue(ctx, &core.JobExecutionMessage{
		JobID:          core.JobIDRefreshIndex,
		IdempotencyKey: fmt.Sprintf("%s::%d", core.JobIDRefreshIndex, bucket),
		DedupPolicy:    "drop",
	}); err != nil {
		return err
	}

	for _, sourceType := range s.staticTypes {
		if err := s.enqueuer.Enqueue(ctx, &core.JobExecutionMessage{
			JobID:          core.JobIDCheckBaseline,
			Parameters:     map[string]any{"source_type": sourceType},
			IdempotencyKey: fmt.Sprintf("%s::%s::%d", core.JobIDCheckBaseline, sourceType, bucket),
			DedupPolicy:    "drop",
		}); err != nil {
			return err
		}
	}
	return nil
}
