package jobs

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Tanth170203/EduXtend-sub002/internal/observability"
)

type Job func(ctx context.Context) error

type Runner struct {
	ctx context.Context
	log *zap.SugaredLogger
}

func New(ctx context.Context, log *zap.SugaredLogger) *Runner {
	return &Runner{ctx: ctx, log: log}
}

// Every runs fn on a fixed interval until the runner context is cancelled.
// A failing or panicking tick is logged and counted; the next tick still runs,
// so a full-scan failure backs off by one interval instead of tight-looping.
func (r *Runner) Every(interval time.Duration, name string, fn Job) {
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-r.ctx.Done():
				return
			case <-t.C:
				start := time.Now()
				if err := r.runOnce(name, fn); err != nil {
					jobErrors.WithLabelValues(name).Inc()
					r.log.Errorw("job failed", "job", name, "err", err)
				}
				jobRuns.WithLabelValues(name).Inc()
				jobDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
			}
		}
	}()
}

func (r *Runner) runOnce(name string, fn Job) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic in job %s: %v", name, rec)
			observability.CaptureErr(err)
		}
	}()
	return fn(r.ctx)
}
