// Package scheduler runs named jobs on wall-clock intervals. At most one run
// of the same job is active at a time; a tick that arrives while the previous
// run is still going is skipped, which enforces the single-worker-per-job
// assumption structurally rather than by convention.
package scheduler

import (
	"context"
	"sync"
	"time"

	"polisure.org/internal/obs"
)

// Job is a parameterless batch trigger. Failures are logged, never surfaced
// to a caller; the job is simply retried on its next tick.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error

	mu sync.Mutex
}

// Scheduler drives a set of jobs until its context ends.
type Scheduler struct {
	jobs []*Job
	wg   sync.WaitGroup
}

// New constructs an empty Scheduler.
func New() *Scheduler {
	return &Scheduler{}
}

// Add registers a job. Must be called before Start.
func (s *Scheduler) Add(name string, interval time.Duration, run func(ctx context.Context) error) {
	s.jobs = append(s.jobs, &Job{Name: name, Interval: interval, Run: run})
}

// Start launches one ticker goroutine per job and returns immediately.
func (s *Scheduler) Start(ctx context.Context) {
	for _, job := range s.jobs {
		s.wg.Add(1)
		go func(j *Job) {
			defer s.wg.Done()
			ticker := time.NewTicker(j.Interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					s.fire(ctx, j)
				}
			}
		}(job)
	}
}

// Wait blocks until every job goroutine has exited.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// Trigger runs a job once, honoring the single-flight guard. It reports
// whether the run happened (false means a previous run was still active).
func (s *Scheduler) Trigger(ctx context.Context, name string) bool {
	for _, j := range s.jobs {
		if j.Name == name {
			return s.fire(ctx, j)
		}
	}
	return false
}

func (s *Scheduler) fire(ctx context.Context, j *Job) bool {
	if !j.mu.TryLock() {
		obs.Info("scheduler: run still active, tick skipped", map[string]any{"job": j.Name})
		obs.RecordJobRun(j.Name, "skipped", 0)
		return false
	}
	defer j.mu.Unlock()

	start := time.Now()
	err := j.Run(ctx)
	elapsed := time.Since(start)
	if err != nil {
		obs.Error("scheduler: job failed", map[string]any{
			"job":     j.Name,
			"error":   err.Error(),
			"elapsed": elapsed.String(),
		})
		obs.RecordJobRun(j.Name, "error", elapsed)
		return true
	}
	obs.RecordJobRun(j.Name, "ok", elapsed)
	return true
}
