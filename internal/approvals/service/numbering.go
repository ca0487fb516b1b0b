package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"itou_backend/internal/approvals/domain"
	"itou_backend/internal/approvals/transport"
	"itou_backend/internal/events"
	"itou_backend/platform/apperr"

	"github.com/google/uuid"
)

// CreateApprovalParams describes a native approval to deliver.
// A zero EndAt uses the configured default duration.
type CreateApprovalParams struct {
	UserID      uuid.UUID
	StartAt     time.Time
	EndAt       time.Time
	Origin      domain.Origin
	CreatedByID *uuid.UUID
}

// CreateApproval delivers a new approval with the next sequential number.
func (s *Service) CreateApproval(ctx context.Context, params CreateApprovalParams) (*domain.Approval, error) {
	var created *domain.Approval
	err := s.repo.WithTx(ctx, func(ctx context.Context) error {
		if _, err := s.repo.GetJobSeeker(ctx, params.UserID); err != nil {
			return err
		}
		a, err := s.deliverApproval(ctx, params)
		if err != nil {
			return err
		}
		created = a
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publishDelivered(ctx, created)
	return created, nil
}

// DeliverApproval is the admin manual delivery.
func (s *Service) DeliverApproval(ctx context.Context, actor Actor, req transport.CreateApprovalRequest) (*transport.ApprovalResponse, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}

	startAt, err := parseDate("start_at", req.StartAt)
	if err != nil {
		return nil, err
	}
	var endAt time.Time
	if req.EndAt != "" {
		if endAt, err = parseDate("end_at", req.EndAt); err != nil {
			return nil, err
		}
	}

	a, err := s.CreateApproval(ctx, CreateApprovalParams{
		UserID:      req.UserID,
		StartAt:     startAt,
		EndAt:       endAt,
		Origin:      domain.OriginAdmin,
		CreatedByID: &actor.UserID,
	})
	if err != nil {
		return nil, err
	}
	return s.approvalView(ctx, actor, a)
}

// deliverApproval must run inside WithTx: the sequence lock is held until
// the transaction that inserts the number commits.
func (s *Service) deliverApproval(ctx context.Context, params CreateApprovalParams) (*domain.Approval, error) {
	if err := s.repo.LockNumberSequence(ctx, s.rules.NumberPrefix); err != nil {
		return nil, err
	}

	last, err := s.repo.LastApprovalNumber(ctx, s.rules.NumberPrefix)
	if err != nil {
		return nil, err
	}

	number, err := domain.NextNumber(s.rules.NumberPrefix, last)
	if err != nil {
		if errors.Is(err, domain.ErrNumberOverflow) {
			s.log.Error("approval number sequence exhausted", "prefix", s.rules.NumberPrefix, "last", last)
			return nil, apperr.Wrap(apperr.KindInternal, "approval number sequence exhausted", err)
		}
		return nil, fmt.Errorf("compute next approval number: %w", err)
	}

	startAt := domain.DateOf(params.StartAt)
	endAt := domain.DateOf(params.EndAt)
	if endAt.IsZero() {
		endAt = domain.DefaultEndAt(startAt, s.rules.DefaultDuration.Years, s.rules.DefaultDuration.Days)
	}
	origin := params.Origin
	if origin == "" {
		origin = domain.OriginDefault
	}

	now := time.Now()
	a := &domain.Approval{
		ID:           uuid.New(),
		Number:       number,
		StartAt:      startAt,
		EndAt:        endAt,
		GrantedEndAt: endAt,
		UserID:       params.UserID,
		CreatedByID:  params.CreatedByID,
		CreatedAt:    now,
		UpdatedAt:    now,
		Origin:       origin,
	}
	if err := a.Clean(); err != nil {
		return nil, err
	}
	if err := s.repo.CreateApproval(ctx, a); err != nil {
		return nil, err
	}

	s.log.ApprovalEvent("approval_delivered", a.Number, "approval_id", a.ID, "origin", string(a.Origin))
	return a, nil
}

func (s *Service) publishDelivered(ctx context.Context, a *domain.Approval) {
	s.publish(ctx, events.ApprovalDelivered{
		BaseEvent:  events.BaseEventAt(s.clock()),
		ApprovalID: a.ID,
		Number:     a.Number,
		UserID:     a.UserID,
		Origin:     string(a.Origin),
		StartAt:    a.StartAt,
		EndAt:      a.EndAt,
	})
}
