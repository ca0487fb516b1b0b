package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"itou_backend/internal/approvals/domain"
	"itou_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const approvalColumns = `id, number, start_at, end_at, granted_end_at, user_id,
	created_by_id, created_at, updated_at, origin`

const lockNumberSequenceQuery = `SELECT pg_advisory_xact_lock(hashtext($1))`

const lastApprovalNumberQuery = `
	SELECT number FROM approvals
	WHERE number LIKE $1 || '%'
	ORDER BY number DESC
	LIMIT 1`

const lockApprovalQuery = `SELECT ` + approvalColumns + ` FROM approvals WHERE id = $1 FOR UPDATE`

const listApprovalsForJobSeekerQuery = `
	SELECT ` + approvalColumns + ` FROM approvals
	WHERE user_id = $1
	ORDER BY start_at DESC, created_at DESC`

// LockNumberSequence serializes number generation for prefix until the
// surrounding transaction ends. It must be called inside WithTx.
func (r *Repository) LockNumberSequence(ctx context.Context, prefix string) error {
	if _, ok := ctx.Value(txKey{}).(pgx.Tx); !ok {
		return fmt.Errorf("failed to lock number sequence: no transaction in context")
	}
	if _, err := r.db(ctx).Exec(ctx, lockNumberSequenceQuery, prefix); err != nil {
		return fmt.Errorf("failed to lock number sequence: %w", err)
	}
	return nil
}

// LastApprovalNumber returns the highest number issued with prefix, or "".
// Suffixes are fixed width so lexical order is numeric order.
func (r *Repository) LastApprovalNumber(ctx context.Context, prefix string) (string, error) {
	var number string
	err := r.db(ctx).QueryRow(ctx, lastApprovalNumberQuery, prefix).Scan(&number)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get last approval number: %w", err)
	}
	return number, nil
}

// ApprovalNumberExists reports whether number is already used.
func (r *Repository) ApprovalNumberExists(ctx context.Context, number string) (bool, error) {
	var exists bool
	err := r.db(ctx).QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM approvals WHERE number = $1)`, number).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check approval number: %w", err)
	}
	return exists, nil
}

// CreateApproval inserts an approval without its intervals.
func (r *Repository) CreateApproval(ctx context.Context, a *domain.Approval) error {
	query := `
		INSERT INTO approvals (` + approvalColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := r.db(ctx).Exec(ctx, query,
		a.ID, a.Number, a.StartAt, a.EndAt, a.GrantedEndAt, a.UserID,
		a.CreatedByID, a.CreatedAt, a.UpdatedAt, string(a.Origin),
	)
	if err != nil {
		return mapWriteError("insert approval", err)
	}
	return nil
}

// SaveApprovalDates persists start, effective end and granted end dates.
func (r *Repository) SaveApprovalDates(ctx context.Context, a *domain.Approval) error {
	query := `
		UPDATE approvals
		SET start_at = $2, end_at = $3, granted_end_at = $4, updated_at = $5
		WHERE id = $1`

	result, err := r.db(ctx).Exec(ctx, query, a.ID, a.StartAt, a.EndAt, a.GrantedEndAt, time.Now())
	if err != nil {
		return mapWriteError("update approval dates", err)
	}
	if result.RowsAffected() == 0 {
		return apperr.NotFound(approvalNotFoundMsg)
	}
	return nil
}

// GetApproval loads an approval with its suspensions and prolongations.
func (r *Repository) GetApproval(ctx context.Context, id uuid.UUID) (*domain.Approval, error) {
	query := `SELECT ` + approvalColumns + ` FROM approvals WHERE id = $1`
	return r.loadApproval(ctx, query, id)
}

// GetApprovalByNumber loads an approval by its number.
func (r *Repository) GetApprovalByNumber(ctx context.Context, number string) (*domain.Approval, error) {
	query := `SELECT ` + approvalColumns + ` FROM approvals WHERE number = $1`
	return r.loadApproval(ctx, query, number)
}

// LockApproval loads an approval and locks its row until the transaction ends.
func (r *Repository) LockApproval(ctx context.Context, id uuid.UUID) (*domain.Approval, error) {
	return r.loadApproval(ctx, lockApprovalQuery, id)
}

// ListApprovalsForJobSeeker returns the job seeker's approvals, latest first.
func (r *Repository) ListApprovalsForJobSeeker(ctx context.Context, userID uuid.UUID) ([]domain.Approval, error) {
	rows, err := r.db(ctx).Query(ctx, listApprovalsForJobSeekerQuery, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query approvals: %w", err)
	}
	defer rows.Close()

	var approvals []domain.Approval
	for rows.Next() {
		a, err := scanApproval(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan approval: %w", err)
		}
		approvals = append(approvals, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate approvals: %w", err)
	}

	for i := range approvals {
		if err := r.loadIntervals(ctx, &approvals[i]); err != nil {
			return nil, err
		}
	}
	return approvals, nil
}

func (r *Repository) loadApproval(ctx context.Context, query string, arg any) (*domain.Approval, error) {
	a, err := scanApproval(r.db(ctx).QueryRow(ctx, query, arg))
	if err != nil {
		return nil, notFoundOr(err, approvalNotFoundMsg, "get approval")
	}
	if err := r.loadIntervals(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

func (r *Repository) loadIntervals(ctx context.Context, a *domain.Approval) error {
	suspensions, err := r.ListSuspensions(ctx, a.ID)
	if err != nil {
		return err
	}
	prolongations, err := r.ListProlongations(ctx, a.ID)
	if err != nil {
		return err
	}
	a.Suspensions = suspensions
	a.Prolongations = prolongations
	return nil
}

func scanApproval(row pgx.Row) (*domain.Approval, error) {
	var a domain.Approval
	var origin string
	if err := row.Scan(
		&a.ID, &a.Number, &a.StartAt, &a.EndAt, &a.GrantedEndAt, &a.UserID,
		&a.CreatedByID, &a.CreatedAt, &a.UpdatedAt, &origin,
	); err != nil {
		return nil, err
	}
	a.Origin = domain.Origin(origin)
	return &a, nil
}
