// Package reconcile compares converted approvals with the legacy Pôle emploi
// records they were created from and repairs the differences the import
// history explains.
package reconcile

import (
	"context"
	"fmt"
	"time"

	"itou_backend/internal/approvals/domain"
	"itou_backend/internal/approvals/repository"
	"itou_backend/platform/logger"

	"github.com/google/uuid"
)

// Category explains why a converted approval disagrees with its source.
type Category string

const (
	// CategorySourceUpdated: the approval still holds the first imported
	// value and a later import changed it. The approval can take the new value.
	CategorySourceUpdated Category = "source_updated"
	// CategoryNativeAdjusted: the legacy record never changed, someone edited
	// the approval afterwards.
	CategoryNativeAdjusted Category = "native_adjusted"
	// CategoryUnexplained: neither side matches the first import, or there is no snapshot.
	CategoryUnexplained Category = "unexplained"
)

// Field names a compared date.
type Field string

const (
	FieldStartAt Field = "start_at"
	FieldEndAt   Field = "end_at"
)

// Mismatch is one differing date on one approval.
type Mismatch struct {
	ApprovalID     uuid.UUID
	ApprovalNumber string
	PENumber       string
	Field          Field
	Native         time.Time
	PoleEmploi     time.Time
	Snapshot       *time.Time
	Category       Category
}

// Fixable reports whether the mismatch can be repaired with the legacy value.
func (m Mismatch) Fixable() bool {
	return m.Category == CategorySourceUpdated
}

// Report summarizes a reconciliation run.
type Report struct {
	WetRun     bool
	Checked    int
	Mismatches []Mismatch
	Fixed      int
	Failed     int
}

// Count returns the number of mismatches in category c.
func (r Report) Count(c Category) int {
	n := 0
	for _, m := range r.Mismatches {
		if m.Category == c {
			n++
		}
	}
	return n
}

// Store is the persistence the reconciler needs.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	ListReconciliationCandidates(ctx context.Context, nativePrefix string) ([]repository.ReconciliationCandidate, error)
	LockApproval(ctx context.Context, id uuid.UUID) (*domain.Approval, error)
	SaveApprovalDates(ctx context.Context, a *domain.Approval) error
}

// Reconciler runs the comparison.
type Reconciler struct {
	store        Store
	nativePrefix string
	log          *logger.Logger
}

// New creates a reconciler. Approvals whose number starts with nativePrefix
// were numbered natively and are never compared.
func New(store Store, nativePrefix string, log *logger.Logger) *Reconciler {
	return &Reconciler{store: store, nativePrefix: nativePrefix, log: log}
}

// Run compares every converted approval with its legacy source. Without
// wetRun nothing is written.
func (r *Reconciler) Run(ctx context.Context, wetRun bool) (*Report, error) {
	candidates, err := r.store.ListReconciliationCandidates(ctx, r.nativePrefix)
	if err != nil {
		return nil, fmt.Errorf("list reconciliation candidates: %w", err)
	}

	report := &Report{WetRun: wetRun, Checked: len(candidates)}
	for _, c := range candidates {
		mismatches := Classify(c)
		report.Mismatches = append(report.Mismatches, mismatches...)
		for _, m := range mismatches {
			r.log.Info("approval mismatch",
				"number", m.ApprovalNumber,
				"pe_number", m.PENumber,
				"field", string(m.Field),
				"native", m.Native.Format(time.DateOnly),
				"pole_emploi", m.PoleEmploi.Format(time.DateOnly),
				"category", string(m.Category),
			)
		}

		if !wetRun {
			continue
		}
		fixes := fixable(mismatches)
		if len(fixes) == 0 {
			continue
		}
		if err := r.apply(ctx, c.ApprovalID, fixes); err != nil {
			report.Failed++
			r.log.DatabaseError("fix_reconciled_approval", err, "number", c.ApprovalNumber)
			continue
		}
		report.Fixed++
	}

	r.log.Info("reconciliation done",
		"wet_run", wetRun,
		"checked", report.Checked,
		"source_updated", report.Count(CategorySourceUpdated),
		"native_adjusted", report.Count(CategoryNativeAdjusted),
		"unexplained", report.Count(CategoryUnexplained),
		"fixed", report.Fixed,
		"failed", report.Failed,
	)
	return report, nil
}

// Classify lists the differing dates of a candidate.
func Classify(c repository.ReconciliationCandidate) []Mismatch {
	var out []Mismatch
	if !c.StartAt.Equal(c.PEStartAt) {
		out = append(out, classify(c, FieldStartAt, c.StartAt, c.PEStartAt, c.OrigStartAt))
	}
	if !c.GrantedEndAt.Equal(c.PEEndAt) {
		out = append(out, classify(c, FieldEndAt, c.GrantedEndAt, c.PEEndAt, c.OrigEndAt))
	}
	return out
}

func classify(c repository.ReconciliationCandidate, field Field, native, pe time.Time, snapshot *time.Time) Mismatch {
	m := Mismatch{
		ApprovalID:     c.ApprovalID,
		ApprovalNumber: c.ApprovalNumber,
		PENumber:       c.PENumber,
		Field:          field,
		Native:         native,
		PoleEmploi:     pe,
		Snapshot:       snapshot,
		Category:       CategoryUnexplained,
	}
	if snapshot == nil {
		return m
	}
	switch {
	case native.Equal(*snapshot) && !pe.Equal(*snapshot):
		m.Category = CategorySourceUpdated
	case pe.Equal(*snapshot) && !native.Equal(*snapshot):
		m.Category = CategoryNativeAdjusted
	}
	return m
}

func fixable(mismatches []Mismatch) []Mismatch {
	var out []Mismatch
	for _, m := range mismatches {
		if m.Fixable() {
			out = append(out, m)
		}
	}
	return out
}

// apply copies the legacy values onto the approval and recomputes its end date.
func (r *Reconciler) apply(ctx context.Context, approvalID uuid.UUID, fixes []Mismatch) error {
	return r.store.WithTx(ctx, func(ctx context.Context) error {
		a, err := r.store.LockApproval(ctx, approvalID)
		if err != nil {
			return err
		}
		for _, m := range fixes {
			switch m.Field {
			case FieldStartAt:
				a.StartAt = m.PoleEmploi
			case FieldEndAt:
				a.GrantedEndAt = m.PoleEmploi
			}
		}
		domain.RecomputeEndAt(a)
		if err := a.Clean(); err != nil {
			return err
		}
		if err := r.store.SaveApprovalDates(ctx, a); err != nil {
			return err
		}
		r.log.ApprovalEvent("approval_reconciled", a.Number, "start_at", a.StartAt.Format(time.DateOnly), "end_at", a.EndAt.Format(time.DateOnly))
		return nil
	})
}
