// Command reconcile-pe-approvals compares approvals converted from Pôle
// emploi with the legacy table and, with --wet-run, applies upstream
// corrections.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"itou_backend/internal/approvals/reconcile"
	"itou_backend/internal/approvals/repository"
	"itou_backend/internal/scheduler"
	"itou_backend/platform/config"
	"itou_backend/platform/db"
	"itou_backend/platform/logger"

	"github.com/spf13/pflag"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "reconcile-pe-approvals:", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		wetRun  bool
		enqueue bool
	)

	flagSet := pflag.NewFlagSet("reconcile-pe-approvals", pflag.ContinueOnError)
	flagSet.BoolVar(&wetRun, "wet-run", false, "apply upstream corrections")
	flagSet.BoolVar(&enqueue, "enqueue", false, "hand the run to the scheduler worker instead of running here")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logger.New(cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if enqueue {
		client, err := scheduler.NewClient(cfg)
		if err != nil {
			return err
		}
		defer func() { _ = client.Close() }()
		if err := client.EnqueueReconcile(ctx, wetRun); err != nil {
			return fmt.Errorf("enqueue reconcile: %w", err)
		}
		log.Info("reconciliation enqueued", "wet_run", wetRun)
		return nil
	}

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()

	report, err := reconcile.New(repository.New(pool), cfg.GetApprovalNumberPrefix(), log).Run(ctx, wetRun)
	if err != nil {
		return err
	}

	fmt.Printf("checked=%d source_updated=%d native_adjusted=%d unexplained=%d fixed=%d failed=%d\n",
		report.Checked,
		report.Count(reconcile.CategorySourceUpdated),
		report.Count(reconcile.CategoryNativeAdjusted),
		report.Count(reconcile.CategoryUnexplained),
		report.Fixed,
		report.Failed,
	)
	return nil
}
