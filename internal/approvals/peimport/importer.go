// Package peimport loads the legacy Pôle emploi approval export (XLSX) into
// the pole_emploi_approvals table.
package peimport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"itou_backend/internal/approvals/domain"
	"itou_backend/internal/approvals/repository"
	"itou_backend/platform/logger"

	"github.com/xuri/excelize/v2"
)

// DefaultBatchSize is the number of rows upserted per round trip.
const DefaultBatchSize = 500

const logSource = "pole_emploi_xlsx"

// Store persists parsed rows.
type Store interface {
	UpsertPoleEmploiApprovals(ctx context.Context, items []domain.PoleEmploiApproval) ([]repository.UpsertOutcome, error)
}

// Summary counts what an import did. Skipped rows were already up to date;
// Errors are rows rejected by parsing or by the database.
type Summary struct {
	Rows    int
	Valid   int
	Created int
	Updated int
	Skipped int
	Errors  int
}

// Importer reads an export and upserts its rows in batches.
type Importer struct {
	store     Store
	log       *logger.Logger
	clock     domain.Clock
	batchSize int
	wetRun    bool
}

// Option configures an Importer.
type Option func(*Importer)

// WithBatchSize overrides DefaultBatchSize.
func WithBatchSize(n int) Option {
	return func(i *Importer) {
		if n > 0 {
			i.batchSize = n
		}
	}
}

// WithClock overrides the clock used to repair two-digit birth years.
func WithClock(clock domain.Clock) Option {
	return func(i *Importer) { i.clock = clock }
}

// New creates an importer. Without wetRun rows are only parsed and validated.
func New(store Store, log *logger.Logger, wetRun bool, opts ...Option) *Importer {
	i := &Importer{
		store:     store,
		log:       log,
		clock:     time.Now,
		batchSize: DefaultBatchSize,
		wetRun:    wetRun,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// ImportFile imports the named sheet of the file at path; an empty sheet
// name selects the first sheet.
func (i *Importer) ImportFile(ctx context.Context, path, sheet string) (*Summary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return i.Import(ctx, f, sheet)
}

// Import reads a workbook. Rejected rows are logged and counted; only an
// unreadable workbook or a cancelled context stops the run.
func (i *Importer) Import(ctx context.Context, r io.Reader, sheet string) (*Summary, error) {
	book, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("read workbook: %w", err)
	}
	defer book.Close()

	if sheet == "" {
		sheets := book.GetSheetList()
		if len(sheets) == 0 {
			return nil, errors.New("workbook has no sheet")
		}
		sheet = sheets[0]
	}

	rows, err := book.Rows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	defer rows.Close()

	today := domain.Today(i.clock)
	summary := &Summary{}
	batch := make([]domain.PoleEmploiApproval, 0, i.batchSize)

	line := 0
	for rows.Next() {
		line++
		cols, err := rows.Columns(excelize.Options{RawCellValue: true})
		if err != nil {
			return summary, fmt.Errorf("read row %d: %w", line, err)
		}
		if line == 1 {
			if !isHeader(cols) {
				i.log.Warn("unexpected header row", "source", logSource, "columns", strings.Join(cols, ","))
			}
			continue
		}
		if isBlank(cols) {
			continue
		}

		summary.Rows++
		pe, err := ParseRow(cols, today)
		if err != nil {
			summary.Errors++
			i.log.ImportRowRejected(logSource, line, err.Error())
			continue
		}
		summary.Valid++
		if !i.wetRun {
			continue
		}

		batch = append(batch, pe)
		if len(batch) >= i.batchSize {
			if err := i.flush(ctx, batch, summary); err != nil {
				return summary, err
			}
			batch = batch[:0]
		}
	}
	if err := rows.Error(); err != nil {
		return summary, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	if err := i.flush(ctx, batch, summary); err != nil {
		return summary, err
	}

	i.log.Info("pole emploi import done",
		"wet_run", i.wetRun,
		"rows", summary.Rows,
		"valid", summary.Valid,
		"created", summary.Created,
		"updated", summary.Updated,
		"skipped", summary.Skipped,
		"errors", summary.Errors,
	)
	return summary, nil
}

// flush upserts one batch. A database error rejects the batch's rows and
// the run goes on, unless the context is done.
func (i *Importer) flush(ctx context.Context, batch []domain.PoleEmploiApproval, summary *Summary) error {
	if len(batch) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	outcomes, err := i.store.UpsertPoleEmploiApprovals(ctx, batch)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		summary.Errors += len(batch)
		i.log.DatabaseError("upsert_pole_emploi_approvals", err, "source", logSource, "rows", len(batch))
		return nil
	}

	for _, outcome := range outcomes {
		switch outcome {
		case repository.UpsertCreated:
			summary.Created++
		case repository.UpsertUpdated:
			summary.Updated++
		default:
			summary.Skipped++
		}
	}
	return nil
}

func isHeader(cols []string) bool {
	if len(cols) < len(Header) {
		return false
	}
	for idx, name := range Header {
		if !strings.EqualFold(strings.TrimSpace(cols[idx]), name) {
			return false
		}
	}
	return true
}
