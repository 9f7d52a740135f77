package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Job is a named unit of periodic work run by the Poller.
type Job struct {
	Name string
	// Spec is a cron expression, e.g. "@hourly" or "*/15 * * * *".
	Spec string
	Run  func(ctx context.Context) error
}

// Scheduler is the cron surface the poller needs.
// Satisfied by *cron.Cron.
type Scheduler interface {
	AddFunc(spec string, cmd func()) (cron.EntryID, error)
	Start()
	Stop() context.Context
}

// Poller runs ingestion jobs on cron schedules.
type Poller struct {
	scheduler  Scheduler
	logger     *slog.Logger
	jobTimeout time.Duration
}

const defaultJobTimeout = 10 * time.Minute

// NewPoller creates a poller backed by the given scheduler.
func NewPoller(scheduler Scheduler, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		scheduler:  scheduler,
		logger:     logger,
		jobTimeout: defaultJobTimeout,
	}
}

// Register schedules a job. The job runs with a bounded context and
// failures are logged, not fatal.
func (p *Poller) Register(job Job) error {
	if job.Run == nil {
		return fmt.Errorf("job %q has no run function", job.Name)
	}
	_, err := p.scheduler.AddFunc(job.Spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), p.jobTimeout)
		defer cancel()

		start := time.Now()
		if err := job.Run(ctx); err != nil {
			p.logger.Error("scheduled job failed",
				"job", job.Name,
				"error", err,
				"duration", time.Since(start),
			)
			return
		}
		p.logger.Info("scheduled job complete",
			"job", job.Name,
			"duration", time.Since(start),
		)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule job %q: %w", job.Name, err)
	}
	return nil
}

// Start begins running scheduled jobs in the background.
func (p *Poller) Start() {
	p.scheduler.Start()
}

// Stop halts scheduling and returns a context that is done once any
// in-flight jobs finish.
func (p *Poller) Stop() context.Context {
	return p.scheduler.Stop()
}
