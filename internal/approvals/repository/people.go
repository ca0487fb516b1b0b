package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"itou_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const jobSeekerColumns = `id, email, first_name, last_name, birthdate, pole_emploi_id, nir, created_at`

const jobApplicationColumns = `id, job_seeker_id, to_siae_id, approval_id, state,
	hiring_start_at, origin, created_at, updated_at`

const lastHiringSiaeQuery = `
	SELECT to_siae_id FROM job_applications
	WHERE job_seeker_id = $1 AND state = 'accepted' AND to_siae_id IS NOT NULL
	ORDER BY hiring_start_at DESC NULLS LAST, created_at DESC
	LIMIT 1`

// ── Job seekers ───────────────────────────────────────────────────────────────

// GetJobSeeker retrieves a job seeker by ID.
func (r *Repository) GetJobSeeker(ctx context.Context, id uuid.UUID) (*JobSeeker, error) {
	query := `SELECT ` + jobSeekerColumns + ` FROM job_seekers WHERE id = $1`
	js, err := scanJobSeeker(r.db(ctx).QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFoundOr(err, jobSeekerNotFoundMsg, "get job seeker")
	}
	return js, nil
}

// FindJobSeekerByEmail returns the job seeker with email, or nil.
func (r *Repository) FindJobSeekerByEmail(ctx context.Context, email string) (*JobSeeker, error) {
	query := `SELECT ` + jobSeekerColumns + ` FROM job_seekers WHERE lower(email) = lower($1)`
	return r.findJobSeeker(ctx, query, email)
}

// FindJobSeekerByPoleEmploiID returns the job seeker matching the legacy
// identifier and birthdate, or nil.
func (r *Repository) FindJobSeekerByPoleEmploiID(ctx context.Context, poleEmploiID string, birthdate time.Time) (*JobSeeker, error) {
	query := `
		SELECT ` + jobSeekerColumns + ` FROM job_seekers
		WHERE pole_emploi_id = $1 AND birthdate = $2
		ORDER BY created_at ASC
		LIMIT 1`
	return r.findJobSeeker(ctx, query, poleEmploiID, birthdate)
}

func (r *Repository) findJobSeeker(ctx context.Context, query string, args ...any) (*JobSeeker, error) {
	js, err := scanJobSeeker(r.db(ctx).QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find job seeker: %w", err)
	}
	return js, nil
}

// CreateJobSeeker inserts a job seeker.
func (r *Repository) CreateJobSeeker(ctx context.Context, js *JobSeeker) error {
	query := `INSERT INTO job_seekers (` + jobSeekerColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := r.db(ctx).Exec(ctx, query,
		js.ID, js.Email, js.FirstName, js.LastName, js.Birthdate, js.PoleEmploiID, js.NIR, js.CreatedAt,
	)
	if err != nil {
		return mapWriteError("insert job seeker", err)
	}
	return nil
}

func scanJobSeeker(row pgx.Row) (*JobSeeker, error) {
	var js JobSeeker
	if err := row.Scan(
		&js.ID, &js.Email, &js.FirstName, &js.LastName, &js.Birthdate, &js.PoleEmploiID, &js.NIR, &js.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &js, nil
}

// ── Employers and prescribers ─────────────────────────────────────────────────

// GetSiae retrieves an employer by ID.
func (r *Repository) GetSiae(ctx context.Context, id uuid.UUID) (*Siae, error) {
	var s Siae
	query := `SELECT id, kind, name, siret, created_at FROM siaes WHERE id = $1`
	err := r.db(ctx).QueryRow(ctx, query, id).Scan(&s.ID, &s.Kind, &s.Name, &s.Siret, &s.CreatedAt)
	if err != nil {
		return nil, notFoundOr(err, siaeNotFoundMsg, "get siae")
	}
	return &s, nil
}

// GetPrescriber retrieves a prescriber by ID.
func (r *Repository) GetPrescriber(ctx context.Context, id uuid.UUID) (*Prescriber, error) {
	var p Prescriber
	query := `SELECT id, email, first_name, last_name, is_authorized, created_at FROM prescribers WHERE id = $1`
	err := r.db(ctx).QueryRow(ctx, query, id).Scan(&p.ID, &p.Email, &p.FirstName, &p.LastName, &p.IsAuthorized, &p.CreatedAt)
	if err != nil {
		return nil, notFoundOr(err, prescriberNotFoundMsg, "get prescriber")
	}
	return &p, nil
}

// ── Job applications ──────────────────────────────────────────────────────────

// LockJobApplication loads a job application and locks its row.
func (r *Repository) LockJobApplication(ctx context.Context, id uuid.UUID) (*JobApplication, error) {
	query := `SELECT ` + jobApplicationColumns + ` FROM job_applications WHERE id = $1 FOR UPDATE`
	var ja JobApplication
	err := r.db(ctx).QueryRow(ctx, query, id).Scan(
		&ja.ID, &ja.JobSeekerID, &ja.ToSiaeID, &ja.ApprovalID, &ja.State,
		&ja.HiringStartAt, &ja.Origin, &ja.CreatedAt, &ja.UpdatedAt,
	)
	if err != nil {
		return nil, notFoundOr(err, jobApplicationNotFoundMsg, "get job application")
	}
	return &ja, nil
}

// CreateJobApplication inserts a job application.
func (r *Repository) CreateJobApplication(ctx context.Context, ja *JobApplication) error {
	query := `INSERT INTO job_applications (` + jobApplicationColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := r.db(ctx).Exec(ctx, query,
		ja.ID, ja.JobSeekerID, ja.ToSiaeID, ja.ApprovalID, ja.State,
		ja.HiringStartAt, ja.Origin, ja.CreatedAt, ja.UpdatedAt,
	)
	if err != nil {
		return mapWriteError("insert job application", err)
	}
	return nil
}

// MarkJobApplicationAccepted records the hiring and the approval it uses.
func (r *Repository) MarkJobApplicationAccepted(ctx context.Context, id, approvalID uuid.UUID, hiringStartAt time.Time) error {
	query := `
		UPDATE job_applications
		SET state = 'accepted', approval_id = $2, hiring_start_at = $3, updated_at = $4
		WHERE id = $1`
	result, err := r.db(ctx).Exec(ctx, query, id, approvalID, hiringStartAt, time.Now())
	if err != nil {
		return mapWriteError("accept job application", err)
	}
	if result.RowsAffected() == 0 {
		return apperr.NotFound(jobApplicationNotFoundMsg)
	}
	return nil
}

// LastHiringSiaeID returns the employer of the job seeker's latest accepted
// application, or nil.
func (r *Repository) LastHiringSiaeID(ctx context.Context, jobSeekerID uuid.UUID) (*uuid.UUID, error) {
	var siaeID uuid.UUID
	err := r.db(ctx).QueryRow(ctx, lastHiringSiaeQuery, jobSeekerID).Scan(&siaeID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get last hiring siae: %w", err)
	}
	return &siaeID, nil
}
