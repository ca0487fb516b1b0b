package service

import (
	"context"
	"strings"
	"time"

	"itou_backend/internal/approvals/domain"
	"itou_backend/internal/approvals/transport"
	"itou_backend/platform/apperr"
	"itou_backend/platform/sanitize"

	"github.com/google/uuid"
)

// CreateSuspension pauses an approval and pushes its end date by the suspension's duration.
func (s *Service) CreateSuspension(ctx context.Context, actor Actor, approvalID uuid.UUID, req transport.SuspensionRequest) (*transport.ApprovalResponse, error) {
	startAt, endAt, reason, err := parseSuspensionRequest(req)
	if err != nil {
		return nil, err
	}
	today := s.today()

	var approval *domain.Approval
	err = s.repo.WithTx(ctx, func(ctx context.Context) error {
		a, err := s.repo.LockApproval(ctx, approvalID)
		if err != nil {
			return err
		}
		if !actor.IsAdmin {
			lastHiring, err := s.repo.LastHiringSiaeID(ctx, a.UserID)
			if err != nil {
				return err
			}
			if actor.SiaeID == nil || !a.CanBeSuspendedBySiae(today, lastHiring, *actor.SiaeID) {
				return apperr.Forbidden("this approval cannot be suspended by your organization")
			}
		}

		now := time.Now()
		suspension := domain.Suspension{
			ID:                uuid.New(),
			ApprovalID:        a.ID,
			StartAt:           startAt,
			EndAt:             endAt,
			Reason:            reason,
			ReasonExplanation: sanitize.Text(req.ReasonExplanation),
			SiaeID:            actor.SiaeID,
			CreatedByID:       &actor.UserID,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		if err := suspension.Clean(a, today, s.rules.Suspension); err != nil {
			return err
		}
		if err := s.repo.CreateSuspension(ctx, &suspension); err != nil {
			return err
		}

		a.Suspensions = append(a.Suspensions, suspension)
		domain.RecomputeEndAt(a)
		if err := s.repo.SaveApprovalDates(ctx, a); err != nil {
			return err
		}
		approval = a
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.ApprovalEvent("suspension_created", approval.Number, "approval_id", approval.ID, "end_at", formatDate(approval.EndAt))
	return s.approvalView(ctx, actor, approval)
}

// UpdateSuspension edits a suspension and shifts the approval's end date by the difference.
func (s *Service) UpdateSuspension(ctx context.Context, actor Actor, id uuid.UUID, req transport.SuspensionRequest) (*transport.ApprovalResponse, error) {
	startAt, endAt, reason, err := parseSuspensionRequest(req)
	if err != nil {
		return nil, err
	}
	today := s.today()

	var approval *domain.Approval
	err = s.repo.WithTx(ctx, func(ctx context.Context) error {
		a, idx, err := s.lockApprovalForSuspension(ctx, actor, id)
		if err != nil {
			return err
		}

		candidate := a.Suspensions[idx]
		candidate.StartAt = startAt
		candidate.EndAt = endAt
		candidate.Reason = reason
		candidate.ReasonExplanation = sanitize.Text(req.ReasonExplanation)
		candidate.UpdatedByID = &actor.UserID
		candidate.UpdatedAt = time.Now()

		if err := candidate.Clean(a, today, s.rules.Suspension); err != nil {
			return err
		}
		if err := s.repo.UpdateSuspension(ctx, &candidate); err != nil {
			return err
		}

		a.Suspensions[idx] = candidate
		domain.RecomputeEndAt(a)
		if err := s.repo.SaveApprovalDates(ctx, a); err != nil {
			return err
		}
		approval = a
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.ApprovalEvent("suspension_updated", approval.Number, "suspension_id", id, "end_at", formatDate(approval.EndAt))
	return s.approvalView(ctx, actor, approval)
}

// DeleteSuspension removes a suspension and moves the approval's end date back.
func (s *Service) DeleteSuspension(ctx context.Context, actor Actor, id uuid.UUID) (*transport.ApprovalResponse, error) {
	var approval *domain.Approval
	err := s.repo.WithTx(ctx, func(ctx context.Context) error {
		a, idx, err := s.lockApprovalForSuspension(ctx, actor, id)
		if err != nil {
			return err
		}
		if err := s.repo.DeleteSuspension(ctx, id); err != nil {
			return err
		}

		a.Suspensions = append(a.Suspensions[:idx], a.Suspensions[idx+1:]...)
		domain.RecomputeEndAt(a)
		if err := s.repo.SaveApprovalDates(ctx, a); err != nil {
			return err
		}
		approval = a
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.ApprovalEvent("suspension_deleted", approval.Number, "suspension_id", id, "end_at", formatDate(approval.EndAt))
	return s.approvalView(ctx, actor, approval)
}

// lockApprovalForSuspension locks the approval owning suspension id and
// checks the actor may modify it. It returns the suspension's index.
func (s *Service) lockApprovalForSuspension(ctx context.Context, actor Actor, id uuid.UUID) (*domain.Approval, int, error) {
	existing, err := s.repo.GetSuspension(ctx, id)
	if err != nil {
		return nil, 0, err
	}
	if !actor.IsAdmin && !sameSiae(actor, existing.SiaeID) {
		return nil, 0, apperr.Forbidden("only the declaring organization can modify this suspension")
	}

	a, err := s.repo.LockApproval(ctx, existing.ApprovalID)
	if err != nil {
		return nil, 0, err
	}
	for i := range a.Suspensions {
		if a.Suspensions[i].ID == id {
			return a, i, nil
		}
	}
	return nil, 0, apperr.NotFound("suspension not found")
}

func parseSuspensionRequest(req transport.SuspensionRequest) (time.Time, time.Time, domain.SuspensionReason, error) {
	startAt, err := parseDate("start_at", req.StartAt)
	if err != nil {
		return time.Time{}, time.Time{}, "", err
	}
	endAt, err := parseDate("end_at", req.EndAt)
	if err != nil {
		return time.Time{}, time.Time{}, "", err
	}
	reason := domain.SuspensionReason(strings.ToUpper(strings.TrimSpace(req.Reason)))
	if !reason.IsKnown() {
		return time.Time{}, time.Time{}, "", apperr.ValidationField("reason", "unknown suspension reason")
	}
	return startAt, endAt, reason, nil
}
