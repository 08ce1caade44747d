package schedule

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// Runner wraps the cron scheduler with a base context for jobs. All specs
// are evaluated in the given location.
type Runner struct {
	cron    *cron.Cron
	baseCtx context.Context
}

// New creates a Runner whose jobs receive baseCtx
func New(baseCtx context.Context, location *time.Location) *Runner {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	return &Runner{
		cron:    cron.New(cron.WithLocation(location)),
		baseCtx: baseCtx,
	}
}

// Add registers a job under a cron spec
func (r *Runner) Add(spec, name string, job func(ctx context.Context)) error {
	_, err := r.cron.AddFunc(spec, func() {
		job(r.baseCtx)
	})
	if err != nil {
		return err
	}
	log.Printf("scheduled %s at %q", name, spec)
	return nil
}

// Start begins firing jobs
func (r *Runner) Start() {
	r.cron.Start()
	log.Printf("scheduler started")
}

// Stop halts the scheduler and waits for running jobs to finish
func (r *Runner) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
	log.Printf("scheduler stopped")
}
