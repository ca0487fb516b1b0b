package scheduler

import (
	"context"
	"fmt"

	"itou_backend/internal/approvals/reconcile"
	"itou_backend/internal/events"
	"itou_backend/platform/config"
	"itou_backend/platform/logger"

	"github.com/hibiken/asynq"
)

// Reconciler compares converted approvals with the legacy table.
type Reconciler interface {
	Run(ctx context.Context, wetRun bool) (*reconcile.Report, error)
}

// ProlongationNotifier sends the prescriber email for a declared prolongation.
type ProlongationNotifier interface {
	SendProlongationDeclared(ctx context.Context, event events.ProlongationDeclared) error
}

type Worker struct {
	server     *asynq.Server
	mux        *asynq.ServeMux
	reconciler Reconciler
	notifier   ProlongationNotifier
	log        *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, reconciler Reconciler, notifier ProlongationNotifier, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queueName(cfg): 1,
		},
	})

	w := newWorker(reconciler, notifier, log)
	w.server = server
	return w, nil
}

func newWorker(reconciler Reconciler, notifier ProlongationNotifier, log *logger.Logger) *Worker {
	w := &Worker{
		mux:        asynq.NewServeMux(),
		reconciler: reconciler,
		notifier:   notifier,
		log:        log,
	}
	w.mux.HandleFunc(TaskReconcilePoleEmploiApprovals, w.handleReconcile)
	w.mux.HandleFunc(TaskNotifyProlongationDeclared, w.handleProlongationNotify)
	return w
}

// Run processes tasks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil || w.server == nil {
		return nil
	}

	if err := w.server.Start(w.mux); err != nil {
		return fmt.Errorf("start scheduler worker: %w", err)
	}
	<-ctx.Done()
	w.server.Shutdown()
	w.log.Info("scheduler worker stopped")
	return nil
}

func (w *Worker) handleReconcile(ctx context.Context, task *asynq.Task) error {
	if w.reconciler == nil {
		return nil
	}

	payload, err := ParseReconcilePayload(task)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	report, err := w.reconciler.Run(ctx, payload.WetRun)
	if err != nil {
		return err
	}
	w.log.Info("scheduled reconciliation finished",
		"wet_run", report.WetRun,
		"checked", report.Checked,
		"mismatches", len(report.Mismatches),
		"fixed", report.Fixed,
		"failed", report.Failed,
	)
	return nil
}

func (w *Worker) handleProlongationNotify(ctx context.Context, task *asynq.Task) error {
	if w.notifier == nil {
		return nil
	}

	event, err := ParseProlongationNotifyPayload(task)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	if event.PrescriberEmail == "" {
		w.log.Warn("prolongation notification without recipient", "prolongation_id", event.ProlongationID)
		return nil
	}

	return w.notifier.SendProlongationDeclared(ctx, event)
}
