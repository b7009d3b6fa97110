// Package scheduler runs the periodic ingestion and SLA jobs.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/stroudgreenmedical/medicinealerts/internal/logger"
)

// Job is one named periodic task. Run errors are logged, not fatal; the
// job keeps its cadence.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Scheduler drives a set of jobs on independent tickers. Each job runs on
// its own goroutine; a slow run never overlaps the next one for the same
// job because the runner is sequential per ticker.
type Scheduler struct {
	jobs []Job
	wg   sync.WaitGroup
}

func New(jobs ...Job) *Scheduler {
	return &Scheduler{jobs: jobs}
}

// Add registers another job. Not safe to call after Start.
func (s *Scheduler) Add(job Job) {
	s.jobs = append(s.jobs, job)
}

// Start launches every job and blocks until the context is cancelled and
// all in-flight runs have finished. Each job fires once immediately, then
// on its interval.
func (s *Scheduler) Start(ctx context.Context) {
	for _, job := range s.jobs {
		s.wg.Add(1)
		go func(job Job) {
			defer s.wg.Done()
			s.runLoop(ctx, job)
		}(job)
	}

	<-ctx.Done()
	s.wg.Wait()
}

func (s *Scheduler) runLoop(ctx context.Context, job Job) {
	logger.Get().Info().
		Str("job", job.Name).
		Dur("interval", job.Interval).
		Msg("scheduler job started")

	s.runOnce(ctx, job)

	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Get().Info().Str("job", job.Name).Msg("scheduler job stopped")
			return
		case <-ticker.C:
			s.runOnce(ctx, job)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, job Job) {
	start := time.Now()
	if err := job.Run(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		logger.Get().Error().Err(err).Str("job", job.Name).Msg("scheduler job failed")
		return
	}
	logger.Get().Debug().
		Str("job", job.Name).
		Dur("took", time.Since(start)).
		Msg("scheduler job completed")
}

// ParseInterval converts a configured duration string, falling back to the
// given default on empty or malformed input.
func ParseInterval(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		logger.Get().Warn().Str("interval", raw).Msg("invalid interval, using default")
		return fallback
	}
	return d
}
