// Command import-pe-approvals loads the Pôle emploi approval export into the
// pole_emploi_approvals table. Without --wet-run rows are only validated.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"itou_backend/internal/approvals/peimport"
	"itou_backend/internal/approvals/repository"
	"itou_backend/platform/config"
	"itou_backend/platform/db"
	"itou_backend/platform/logger"

	"github.com/spf13/pflag"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "import-pe-approvals:", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		filePath  string
		sheet     string
		wetRun    bool
		batchSize int
	)

	flagSet := pflag.NewFlagSet("import-pe-approvals", pflag.ContinueOnError)
	flagSet.StringVar(&filePath, "file", "", "path to the XLSX export (required)")
	flagSet.StringVar(&sheet, "sheet", "", "sheet name (default: first sheet)")
	flagSet.BoolVar(&wetRun, "wet-run", false, "write rows to the database")
	flagSet.IntVar(&batchSize, "batch-size", peimport.DefaultBatchSize, "rows per database round trip")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if filePath == "" {
		return errors.New("--file is required")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logger.New(cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()

	log.Info("importing pole emploi approvals", "file", filePath, "sheet", sheet, "wet_run", wetRun)
	importer := peimport.New(repository.New(pool), log, wetRun, peimport.WithBatchSize(batchSize))
	summary, err := importer.ImportFile(ctx, filePath, sheet)
	if err != nil {
		return err
	}

	fmt.Printf("rows=%d valid=%d created=%d updated=%d skipped=%d errors=%d\n",
		summary.Rows, summary.Valid, summary.Created, summary.Updated, summary.Skipped, summary.Errors)
	return nil
}
