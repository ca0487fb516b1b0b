package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"itou_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ── Database Models ───────────────────────────────────────────────────────────

// JobSeeker is the beneficiary of an approval.
type JobSeeker struct {
	ID           uuid.UUID  `db:"id"`
	Email        *string    `db:"email"`
	FirstName    string     `db:"first_name"`
	LastName     string     `db:"last_name"`
	Birthdate    *time.Time `db:"birthdate"`
	PoleEmploiID *string    `db:"pole_emploi_id"`
	NIR          *string    `db:"nir"`
	CreatedAt    time.Time  `db:"created_at"`
}

// FullName returns "First Last".
func (j JobSeeker) FullName() string {
	return j.FirstName + " " + j.LastName
}

// Siae is an employer of the inclusion sector.
type Siae struct {
	ID        uuid.UUID `db:"id"`
	Kind      string    `db:"kind"`
	Name      string    `db:"name"`
	Siret     *string   `db:"siret"`
	CreatedAt time.Time `db:"created_at"`
}

// Prescriber is an advisor who may validate prolongations when authorized.
type Prescriber struct {
	ID           uuid.UUID `db:"id"`
	Email        string    `db:"email"`
	FirstName    string    `db:"first_name"`
	LastName     string    `db:"last_name"`
	IsAuthorized bool      `db:"is_authorized"`
	CreatedAt    time.Time `db:"created_at"`
}

// Job application states relevant to approvals.
const (
	JobApplicationStateNew      = "new"
	JobApplicationStateAccepted = "accepted"
)

// JobApplicationOriginPEApproval marks the synthetic application created by a conversion.
const JobApplicationOriginPEApproval = "pe_approval"

// JobApplication links a job seeker to an employer; accepting it grants an approval.
type JobApplication struct {
	ID            uuid.UUID  `db:"id"`
	JobSeekerID   uuid.UUID  `db:"job_seeker_id"`
	ToSiaeID      *uuid.UUID `db:"to_siae_id"`
	ApprovalID    *uuid.UUID `db:"approval_id"`
	State         string     `db:"state"`
	HiringStartAt *time.Time `db:"hiring_start_at"`
	Origin        string     `db:"origin"`
	CreatedAt     time.Time  `db:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at"`
}

// ── Repository ────────────────────────────────────────────────────────────────

const (
	approvalNotFoundMsg       = "approval not found"
	suspensionNotFoundMsg     = "suspension not found"
	prolongationNotFoundMsg   = "prolongation not found"
	jobSeekerNotFoundMsg      = "job seeker not found"
	jobApplicationNotFoundMsg = "job application not found"
	siaeNotFoundMsg           = "siae not found"
	prescriberNotFoundMsg     = "prescriber not found"
	peApprovalNotFoundMsg     = "pole emploi approval not found"
)

// dbtx is satisfied by both *pgxpool.Pool and pgx.Tx.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

type txKey struct{}

// Repository provides database operations for approvals and their intervals.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a new approvals repository
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx runs fn inside a transaction carried by the context it receives.
// Repository calls made with that context join the transaction. Nested calls
// reuse the outer transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return fn(ctx)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (r *Repository) db(ctx context.Context) dbtx {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return r.pool
}

// mapWriteError turns constraint violations into typed domain errors.
func mapWriteError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return apperr.Wrap(apperr.KindConflict, "a record with the same key already exists", err).WithOp(op)
		case "23P01":
			return apperr.Wrap(apperr.KindConflict, "dates overlap an existing record", err).WithOp(op)
		case "23503":
			return apperr.Wrap(apperr.KindValidation, "a referenced record does not exist", err).WithOp(op)
		case "23514":
			return apperr.Wrap(apperr.KindValidation, "dates are inconsistent", err).WithOp(op)
		}
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

func notFoundOr(err error, msg, op string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound(msg)
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}
