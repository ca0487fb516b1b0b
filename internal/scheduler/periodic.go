package scheduler

import (
	"context"
	"fmt"
	"time"

	"itou_backend/platform/config"
	"itou_backend/platform/logger"

	"github.com/hibiken/asynq"
)

// Periodic enqueues the recurring tasks on their cron schedule.
type Periodic struct {
	scheduler *asynq.Scheduler
	log       *logger.Logger
}

// NewPeriodic registers the nightly dry-run reconciliation. Cron specs are
// evaluated in Europe/Paris.
func NewPeriodic(cfg config.SchedulerConfig, log *logger.Logger) (*Periodic, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	loc, err := time.LoadLocation("Europe/Paris")
	if err != nil {
		loc = time.UTC
	}

	scheduler := asynq.NewScheduler(opt, &asynq.SchedulerOpts{Location: loc})

	task, err := NewReconcileTask(ReconcilePayload{WetRun: false})
	if err != nil {
		return nil, err
	}
	spec := cfg.GetReconcileCronSpec()
	if _, err := scheduler.Register(spec, task, asynq.Queue(queueName(cfg)), asynq.MaxRetry(0)); err != nil {
		return nil, fmt.Errorf("register reconcile schedule %q: %w", spec, err)
	}
	log.Info("reconciliation scheduled", "cron", spec)

	return &Periodic{scheduler: scheduler, log: log}, nil
}

// Run keeps the schedule alive until ctx is cancelled.
func (p *Periodic) Run(ctx context.Context) error {
	if err := p.scheduler.Start(); err != nil {
		return fmt.Errorf("start periodic scheduler: %w", err)
	}
	<-ctx.Done()
	p.scheduler.Shutdown()
	p.log.Info("periodic scheduler stopped")
	return nil
}
