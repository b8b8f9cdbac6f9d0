// ABOUTME: Background job scheduler built on a buffered channel and one worker goroutine
// ABOUTME: Submit never blocks the caller; a full queue drops the job with a log line

package pipeline

import (
	"context"
	"log/slog"

	"github.com/chestscan/modelhub/internal/registry"
)

// Job is one unit of background evaluation work.
type Job struct {
	Version      *registry.ModelVersion
	ClassNames   []string
	MaxEvalCount int
}

// Runner executes a job. Errors are logged by the scheduler and discarded;
// a failed evaluation never affects the already-registered version.
type Runner interface {
	Run(ctx context.Context, job Job) error
}

// Submitter schedules a job for background execution. Submit reports whether
// the job was accepted.
type Submitter interface {
	Submit(job Job) bool
}

// Scheduler feeds submitted jobs to a single worker goroutine through a
// bounded queue.
type Scheduler struct {
	jobs   chan Job
	done   chan struct{}
	runner Runner
	logger *slog.Logger
}

// NewScheduler starts the worker goroutine. queueSize bounds how many jobs
// can be pending; zero or negative falls back to a small default.
func NewScheduler(runner Runner, queueSize int) *Scheduler {
	if queueSize <= 0 {
		queueSize = 16
	}
	s := &Scheduler{
		jobs:   make(chan Job, queueSize),
		done:   make(chan struct{}),
		runner: runner,
		logger: slog.Default().With("component", "scheduler"),
	}
	go s.loop()
	return s
}

func (s *Scheduler) loop() {
	defer close(s.done)
	for job := range s.jobs {
		if err := s.runner.Run(context.Background(), job); err != nil {
			s.logger.Error("evaluation job failed",
				"model", job.Version.Name,
				"version", job.Version.Version,
				"error", err)
			continue
		}
		s.logger.Info("evaluation job finished",
			"model", job.Version.Name,
			"version", job.Version.Version)
	}
}

// Submit enqueues a job without blocking. A full queue drops the job; the
// version then simply stays without metrics.
func (s *Scheduler) Submit(job Job) bool {
	select {
	case s.jobs <- job:
		return true
	default:
		s.logger.Warn("evaluation queue full, dropping job",
			"model", job.Version.Name,
			"version", job.Version.Version)
		return false
	}
}

// Close stops accepting jobs and waits for pending ones to finish.
func (s *Scheduler) Close() {
	close(s.jobs)
	<-s.done
}
