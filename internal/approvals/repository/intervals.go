package repository

import (
	"context"
	"fmt"

	"itou_backend/internal/approvals/domain"
	"itou_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const suspensionColumns = `id, approval_id, start_at, end_at, reason, reason_explanation,
	siae_id, created_by_id, updated_by_id, created_at, updated_at`

const prolongationColumns = `id, approval_id, start_at, end_at, reason, reason_explanation,
	declared_by_id, declared_by_siae_id, validated_by_id, COALESCE(report_file_key, ''),
	require_phone_interview, contact_email, contact_phone, created_at, updated_at`

// ── Suspensions ───────────────────────────────────────────────────────────────

// ListSuspensions returns the suspensions of an approval ordered by start date.
func (r *Repository) ListSuspensions(ctx context.Context, approvalID uuid.UUID) ([]domain.Suspension, error) {
	query := `SELECT ` + suspensionColumns + ` FROM suspensions WHERE approval_id = $1 ORDER BY start_at ASC`

	rows, err := r.db(ctx).Query(ctx, query, approvalID)
	if err != nil {
		return nil, fmt.Errorf("failed to query suspensions: %w", err)
	}
	defer rows.Close()

	var out []domain.Suspension
	for rows.Next() {
		s, err := scanSuspension(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan suspension: %w", err)
		}
		out = append(out, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate suspensions: %w", err)
	}
	return out, nil
}

// GetSuspension retrieves a suspension by ID.
func (r *Repository) GetSuspension(ctx context.Context, id uuid.UUID) (*domain.Suspension, error) {
	query := `SELECT ` + suspensionColumns + ` FROM suspensions WHERE id = $1`
	s, err := scanSuspension(r.db(ctx).QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFoundOr(err, suspensionNotFoundMsg, "get suspension")
	}
	return s, nil
}

// CreateSuspension inserts a suspension.
func (r *Repository) CreateSuspension(ctx context.Context, s *domain.Suspension) error {
	query := `
		INSERT INTO suspensions (` + suspensionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := r.db(ctx).Exec(ctx, query,
		s.ID, s.ApprovalID, s.StartAt, s.EndAt, string(s.Reason), s.ReasonExplanation,
		s.SiaeID, s.CreatedByID, s.UpdatedByID, s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		return mapWriteError("insert suspension", err)
	}
	return nil
}

// UpdateSuspension saves the editable fields of a suspension.
func (r *Repository) UpdateSuspension(ctx context.Context, s *domain.Suspension) error {
	query := `
		UPDATE suspensions
		SET start_at = $2, end_at = $3, reason = $4, reason_explanation = $5,
			updated_by_id = $6, updated_at = $7
		WHERE id = $1`

	result, err := r.db(ctx).Exec(ctx, query,
		s.ID, s.StartAt, s.EndAt, string(s.Reason), s.ReasonExplanation, s.UpdatedByID, s.UpdatedAt,
	)
	if err != nil {
		return mapWriteError("update suspension", err)
	}
	if result.RowsAffected() == 0 {
		return apperr.NotFound(suspensionNotFoundMsg)
	}
	return nil
}

// DeleteSuspension removes a suspension.
func (r *Repository) DeleteSuspension(ctx context.Context, id uuid.UUID) error {
	result, err := r.db(ctx).Exec(ctx, `DELETE FROM suspensions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete suspension: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperr.NotFound(suspensionNotFoundMsg)
	}
	return nil
}

func scanSuspension(row pgx.Row) (*domain.Suspension, error) {
	var s domain.Suspension
	var reason string
	if err := row.Scan(
		&s.ID, &s.ApprovalID, &s.StartAt, &s.EndAt, &reason, &s.ReasonExplanation,
		&s.SiaeID, &s.CreatedByID, &s.UpdatedByID, &s.CreatedAt, &s.UpdatedAt,
	); err != nil {
		return nil, err
	}
	s.Reason = domain.SuspensionReason(reason)
	return &s, nil
}

// ── Prolongations ─────────────────────────────────────────────────────────────

// ListProlongations returns the prolongations of an approval ordered by start date.
func (r *Repository) ListProlongations(ctx context.Context, approvalID uuid.UUID) ([]domain.Prolongation, error) {
	query := `SELECT ` + prolongationColumns + ` FROM prolongations WHERE approval_id = $1 ORDER BY start_at ASC`

	rows, err := r.db(ctx).Query(ctx, query, approvalID)
	if err != nil {
		return nil, fmt.Errorf("failed to query prolongations: %w", err)
	}
	defer rows.Close()

	var out []domain.Prolongation
	for rows.Next() {
		p, err := scanProlongation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan prolongation: %w", err)
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate prolongations: %w", err)
	}
	return out, nil
}

// GetProlongation retrieves a prolongation by ID.
func (r *Repository) GetProlongation(ctx context.Context, id uuid.UUID) (*domain.Prolongation, error) {
	query := `SELECT ` + prolongationColumns + ` FROM prolongations WHERE id = $1`
	p, err := scanProlongation(r.db(ctx).QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFoundOr(err, prolongationNotFoundMsg, "get prolongation")
	}
	return p, nil
}

// CreateProlongation inserts a prolongation. The exclusion constraint on
// overlapping dates turns a concurrent duplicate declaration into a conflict.
func (r *Repository) CreateProlongation(ctx context.Context, p *domain.Prolongation) error {
	query := `
		INSERT INTO prolongations (
			id, approval_id, start_at, end_at, reason, reason_explanation,
			declared_by_id, declared_by_siae_id, validated_by_id, report_file_key,
			require_phone_interview, contact_email, contact_phone, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULLIF($10, ''), $11, $12, $13, $14, $15)`

	_, err := r.db(ctx).Exec(ctx, query,
		p.ID, p.ApprovalID, p.StartAt, p.EndAt, string(p.Reason), p.ReasonExplanation,
		p.DeclaredByID, p.DeclaredBySiaeID, p.ValidatedByID, p.ReportFileKey,
		p.RequirePhoneInterview, p.ContactEmail, p.ContactPhone, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return mapWriteError("insert prolongation", err)
	}
	return nil
}

// UpdateProlongation saves the editable fields of a prolongation.
func (r *Repository) UpdateProlongation(ctx context.Context, p *domain.Prolongation) error {
	query := `
		UPDATE prolongations
		SET end_at = $2, reason_explanation = $3, validated_by_id = $4,
			report_file_key = NULLIF($5, ''), require_phone_interview = $6,
			contact_email = $7, contact_phone = $8, updated_at = $9
		WHERE id = $1`

	result, err := r.db(ctx).Exec(ctx, query,
		p.ID, p.EndAt, p.ReasonExplanation, p.ValidatedByID, p.ReportFileKey,
		p.RequirePhoneInterview, p.ContactEmail, p.ContactPhone, p.UpdatedAt,
	)
	if err != nil {
		return mapWriteError("update prolongation", err)
	}
	if result.RowsAffected() == 0 {
		return apperr.NotFound(prolongationNotFoundMsg)
	}
	return nil
}

// DeleteProlongation removes a prolongation.
func (r *Repository) DeleteProlongation(ctx context.Context, id uuid.UUID) error {
	result, err := r.db(ctx).Exec(ctx, `DELETE FROM prolongations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete prolongation: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperr.NotFound(prolongationNotFoundMsg)
	}
	return nil
}

func scanProlongation(row pgx.Row) (*domain.Prolongation, error) {
	var p domain.Prolongation
	var reason string
	if err := row.Scan(
		&p.ID, &p.ApprovalID, &p.StartAt, &p.EndAt, &reason, &p.ReasonExplanation,
		&p.DeclaredByID, &p.DeclaredBySiaeID, &p.ValidatedByID, &p.ReportFileKey,
		&p.RequirePhoneInterview, &p.ContactEmail, &p.ContactPhone, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	p.Reason = domain.ProlongationReason(reason)
	return &p, nil
}
