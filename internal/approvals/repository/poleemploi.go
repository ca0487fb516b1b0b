package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"itou_backend/internal/approvals/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const peApprovalColumns = `id, pe_structure_code, pole_emploi_id, number, first_name, last_name,
	birth_name, birthdate, start_at, end_at, created_at, updated_at`

const upsertPoleEmploiApprovalQuery = `
	INSERT INTO pole_emploi_approvals (` + peApprovalColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)
	ON CONFLICT (number) DO UPDATE SET
		pe_structure_code = EXCLUDED.pe_structure_code,
		pole_emploi_id = EXCLUDED.pole_emploi_id,
		first_name = EXCLUDED.first_name,
		last_name = EXCLUDED.last_name,
		birth_name = EXCLUDED.birth_name,
		birthdate = EXCLUDED.birthdate,
		start_at = EXCLUDED.start_at,
		end_at = EXCLUDED.end_at,
		updated_at = EXCLUDED.updated_at
	WHERE (pole_emploi_approvals.pe_structure_code, pole_emploi_approvals.pole_emploi_id,
		pole_emploi_approvals.first_name, pole_emploi_approvals.last_name,
		pole_emploi_approvals.birth_name, pole_emploi_approvals.birthdate,
		pole_emploi_approvals.start_at, pole_emploi_approvals.end_at)
		IS DISTINCT FROM
		(EXCLUDED.pe_structure_code, EXCLUDED.pole_emploi_id, EXCLUDED.first_name,
		EXCLUDED.last_name, EXCLUDED.birth_name, EXCLUDED.birthdate,
		EXCLUDED.start_at, EXCLUDED.end_at)
	RETURNING (xmax = 0) AS inserted`

const insertOriginalPoleEmploiApprovalQuery = `
	INSERT INTO original_pole_emploi_approvals (
		id, pe_structure_code, pole_emploi_id, number, first_name, last_name,
		birth_name, birthdate, start_at, end_at, created_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	ON CONFLICT (number) DO NOTHING`

const reconciliationCandidatesQuery = `
	SELECT DISTINCT ON (a.id)
		a.id, a.number, a.start_at, a.granted_end_at,
		pe.number, pe.start_at, pe.end_at,
		o.start_at, o.end_at
	FROM approvals a
	JOIN pole_emploi_approvals pe ON left(pe.number, 12) = a.number
	LEFT JOIN original_pole_emploi_approvals o ON o.number = pe.number
	WHERE a.number NOT LIKE $1 || '%'
		AND (a.start_at <> pe.start_at OR a.granted_end_at <> pe.end_at)
	ORDER BY a.id, pe.end_at DESC`

// UpsertOutcome is the result of importing one Pôle emploi approval.
type UpsertOutcome int

const (
	UpsertUnchanged UpsertOutcome = iota
	UpsertCreated
	UpsertUpdated
)

// ReconciliationCandidate pairs a converted approval with the legacy data it came from.
type ReconciliationCandidate struct {
	ApprovalID     uuid.UUID
	ApprovalNumber string
	StartAt        time.Time
	GrantedEndAt   time.Time
	PENumber       string
	PEStartAt      time.Time
	PEEndAt        time.Time
	OrigStartAt    *time.Time
	OrigEndAt      *time.Time
}

// GetPoleEmploiApproval retrieves a legacy approval by ID.
func (r *Repository) GetPoleEmploiApproval(ctx context.Context, id uuid.UUID) (*domain.PoleEmploiApproval, error) {
	query := `SELECT ` + peApprovalColumns + ` FROM pole_emploi_approvals WHERE id = $1`
	pe, err := scanPoleEmploiApproval(r.db(ctx).QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFoundOr(err, peApprovalNotFoundMsg, "get pole emploi approval")
	}
	return pe, nil
}

// SearchPoleEmploiApprovalsByNumber returns legacy approvals whose number
// starts with number, closest end date first.
func (r *Repository) SearchPoleEmploiApprovalsByNumber(ctx context.Context, number string) ([]domain.PoleEmploiApproval, error) {
	query := `
		SELECT ` + peApprovalColumns + ` FROM pole_emploi_approvals
		WHERE number LIKE $1 || '%'
		ORDER BY end_at DESC
		LIMIT 50`
	return r.listPoleEmploiApprovals(ctx, query, number)
}

// FindPoleEmploiApprovalsForJobSeeker returns legacy approvals matching the
// legacy identifier and birthdate, latest first.
func (r *Repository) FindPoleEmploiApprovalsForJobSeeker(ctx context.Context, poleEmploiID string, birthdate time.Time) ([]domain.PoleEmploiApproval, error) {
	query := `
		SELECT ` + peApprovalColumns + ` FROM pole_emploi_approvals
		WHERE pole_emploi_id = $1 AND birthdate = $2
		ORDER BY start_at DESC`
	return r.listPoleEmploiApprovals(ctx, query, poleEmploiID, birthdate)
}

func (r *Repository) listPoleEmploiApprovals(ctx context.Context, query string, args ...any) ([]domain.PoleEmploiApproval, error) {
	rows, err := r.db(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query pole emploi approvals: %w", err)
	}
	defer rows.Close()

	var out []domain.PoleEmploiApproval
	for rows.Next() {
		pe, err := scanPoleEmploiApproval(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pole emploi approval: %w", err)
		}
		out = append(out, *pe)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate pole emploi approvals: %w", err)
	}
	return out, nil
}

// UpsertPoleEmploiApprovals writes a batch of imported rows. The first
// version of each number is also kept in the snapshot table, which later
// imports never modify.
func (r *Repository) UpsertPoleEmploiApprovals(ctx context.Context, items []domain.PoleEmploiApproval) ([]UpsertOutcome, error) {
	if len(items) == 0 {
		return nil, nil
	}

	batch := &pgx.Batch{}
	now := time.Now()
	for _, pe := range items {
		id := pe.ID
		if id == uuid.Nil {
			id = uuid.New()
		}
		batch.Queue(upsertPoleEmploiApprovalQuery,
			id, pe.PeStructureCode, pe.PoleEmploiID, pe.Number, pe.FirstName, pe.LastName,
			pe.BirthName, pe.Birthdate, pe.StartAt, pe.EndAt, now,
		)
		batch.Queue(insertOriginalPoleEmploiApprovalQuery,
			uuid.New(), pe.PeStructureCode, pe.PoleEmploiID, pe.Number, pe.FirstName, pe.LastName,
			pe.BirthName, pe.Birthdate, pe.StartAt, pe.EndAt, now,
		)
	}

	br := r.db(ctx).SendBatch(ctx, batch)
	defer br.Close()

	outcomes := make([]UpsertOutcome, len(items))
	for i := range items {
		var inserted bool
		err := br.QueryRow().Scan(&inserted)
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			outcomes[i] = UpsertUnchanged
		case err != nil:
			return nil, mapWriteError("upsert pole emploi approval", err)
		case inserted:
			outcomes[i] = UpsertCreated
		default:
			outcomes[i] = UpsertUpdated
		}

		if _, err := br.Exec(); err != nil {
			return nil, mapWriteError("insert original pole emploi approval", err)
		}
	}

	if err := br.Close(); err != nil {
		return nil, fmt.Errorf("failed to close batch: %w", err)
	}
	return outcomes, nil
}

// ListReconciliationCandidates returns converted approvals whose start or
// granted end differs from the legacy approval sharing their number.
func (r *Repository) ListReconciliationCandidates(ctx context.Context, nativePrefix string) ([]ReconciliationCandidate, error) {
	rows, err := r.db(ctx).Query(ctx, reconciliationCandidatesQuery, nativePrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to query reconciliation candidates: %w", err)
	}
	defer rows.Close()

	var out []ReconciliationCandidate
	for rows.Next() {
		var c ReconciliationCandidate
		if err := rows.Scan(
			&c.ApprovalID, &c.ApprovalNumber, &c.StartAt, &c.GrantedEndAt,
			&c.PENumber, &c.PEStartAt, &c.PEEndAt,
			&c.OrigStartAt, &c.OrigEndAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan reconciliation candidate: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate reconciliation candidates: %w", err)
	}
	return out, nil
}

func scanPoleEmploiApproval(row pgx.Row) (*domain.PoleEmploiApproval, error) {
	var pe domain.PoleEmploiApproval
	if err := row.Scan(
		&pe.ID, &pe.PeStructureCode, &pe.PoleEmploiID, &pe.Number, &pe.FirstName, &pe.LastName,
		&pe.BirthName, &pe.Birthdate, &pe.StartAt, &pe.EndAt, &pe.CreatedAt, &pe.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &pe, nil
}
