package service

import (
	"context"
	"strings"
	"time"

	"itou_backend/internal/approvals/domain"
	"itou_backend/internal/approvals/repository"
	"itou_backend/internal/approvals/transport"
	"itou_backend/platform/apperr"

	"github.com/google/uuid"
)

// GetApproval returns an approval with its derived state.
func (s *Service) GetApproval(ctx context.Context, actor Actor, id uuid.UUID) (*transport.ApprovalResponse, error) {
	a, err := s.repo.GetApproval(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.approvalView(ctx, actor, a)
}

// GetApprovalByNumber accepts numbers with or without display spaces.
func (s *Service) GetApprovalByNumber(ctx context.Context, actor Actor, number string) (*transport.ApprovalResponse, error) {
	number = strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(number), " ", ""))
	if len(number) != domain.NumberLength {
		return nil, apperr.ValidationField("number", "approval numbers have 12 characters")
	}
	a, err := s.repo.GetApprovalByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	return s.approvalView(ctx, actor, a)
}

// LatestForJobSeeker returns the job seeker's valid native approval, then a
// valid legacy one, then the most recent expired native one.
func (s *Service) LatestForJobSeeker(ctx context.Context, actor Actor, jobSeekerID uuid.UUID) (*transport.LatestApprovalResponse, error) {
	today := s.today()

	approvals, err := s.repo.ListApprovalsForJobSeeker(ctx, jobSeekerID)
	if err != nil {
		return nil, err
	}
	if valid := firstValid(approvals, today); valid != nil {
		view, err := s.approvalView(ctx, actor, valid)
		if err != nil {
			return nil, err
		}
		return &transport.LatestApprovalResponse{Approval: view}, nil
	}

	js, err := s.repo.GetJobSeeker(ctx, jobSeekerID)
	if err != nil {
		return nil, err
	}
	if js.PoleEmploiID != nil && js.Birthdate != nil {
		legacy, err := s.repo.FindPoleEmploiApprovalsForJobSeeker(ctx, *js.PoleEmploiID, *js.Birthdate)
		if err != nil {
			return nil, err
		}
		for i := range legacy {
			if legacy[i].IsValid(today) {
				view := s.poleEmploiView(&legacy[i], today, false)
				return &transport.LatestApprovalResponse{PoleEmploiApproval: &view}, nil
			}
		}
	}

	if len(approvals) > 0 {
		view, err := s.approvalView(ctx, actor, &approvals[0])
		if err != nil {
			return nil, err
		}
		return &transport.LatestApprovalResponse{Approval: view}, nil
	}
	return nil, apperr.NotFound("no approval for this job seeker")
}

// UpdateApprovalDates lets an admin correct the start and effective end
// dates. Suspensions and prolongations keep shifting the end date, so the
// granted end is derived from the requested effective end.
func (s *Service) UpdateApprovalDates(ctx context.Context, actor Actor, id uuid.UUID, req transport.UpdateApprovalDatesRequest) (*transport.ApprovalResponse, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	startAt, err := parseDate("start_at", req.StartAt)
	if err != nil {
		return nil, err
	}
	endAt, err := parseDate("end_at", req.EndAt)
	if err != nil {
		return nil, err
	}

	var updated *domain.Approval
	err = s.repo.WithTx(ctx, func(ctx context.Context) error {
		a, err := s.repo.LockApproval(ctx, id)
		if err != nil {
			return err
		}
		extension := domain.DaysBetween(a.GrantedEndAt, a.EndAt)
		a.StartAt = startAt
		a.GrantedEndAt = domain.AddDays(endAt, -extension)
		domain.RecomputeEndAt(a)
		if err := a.Clean(); err != nil {
			return err
		}
		if err := s.repo.SaveApprovalDates(ctx, a); err != nil {
			return err
		}
		updated = a
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.ApprovalEvent("approval_dates_updated", updated.Number, "approval_id", updated.ID, "actor_id", actor.UserID)
	return s.approvalView(ctx, actor, updated)
}

// AcceptJobApplication records a hiring. The job seeker's valid approval is
// reused, and unsuspended when its current suspension allows it; otherwise a
// new approval starting on the hiring date is delivered.
func (s *Service) AcceptJobApplication(ctx context.Context, actor Actor, jobApplicationID uuid.UUID, req transport.AcceptJobApplicationRequest) (*transport.AcceptJobApplicationResponse, error) {
	hiringStartAt, err := parseDate("hiring_start_at", req.HiringStartAt)
	if err != nil {
		return nil, err
	}

	today := s.today()
	var (
		approval    *domain.Approval
		delivered   bool
		unsuspended bool
	)

	err = s.repo.WithTx(ctx, func(ctx context.Context) error {
		ja, err := s.repo.LockJobApplication(ctx, jobApplicationID)
		if err != nil {
			return err
		}
		if !actor.IsAdmin && !sameSiae(actor, ja.ToSiaeID) {
			return apperr.Forbidden("only the hiring employer can accept this application")
		}
		if ja.State == repository.JobApplicationStateAccepted {
			return apperr.Conflict("job application already accepted")
		}

		approvals, err := s.repo.ListApprovalsForJobSeeker(ctx, ja.JobSeekerID)
		if err != nil {
			return err
		}

		if valid := firstValid(approvals, today); valid != nil {
			approval, err = s.repo.LockApproval(ctx, valid.ID)
			if err != nil {
				return err
			}
			if suspension, removed := approval.Unsuspend(today, hiringStartAt); suspension != nil {
				if removed {
					err = s.repo.DeleteSuspension(ctx, suspension.ID)
				} else {
					suspension.UpdatedByID = &actor.UserID
					suspension.UpdatedAt = time.Now()
					err = s.repo.UpdateSuspension(ctx, suspension)
				}
				if err != nil {
					return err
				}
				if err := s.repo.SaveApprovalDates(ctx, approval); err != nil {
					return err
				}
				unsuspended = true
			}
		} else {
			approval, err = s.deliverApproval(ctx, CreateApprovalParams{
				UserID:      ja.JobSeekerID,
				StartAt:     hiringStartAt,
				Origin:      domain.OriginDefault,
				CreatedByID: &actor.UserID,
			})
			if err != nil {
				return err
			}
			delivered = true
		}

		return s.repo.MarkJobApplicationAccepted(ctx, ja.ID, approval.ID, hiringStartAt)
	})
	if err != nil {
		return nil, err
	}

	if delivered {
		s.publishDelivered(ctx, approval)
	}
	if unsuspended {
		s.log.ApprovalEvent("approval_unsuspended", approval.Number, "approval_id", approval.ID, "hiring_start_at", formatDate(hiringStartAt))
	}

	view, err := s.approvalView(ctx, actor, approval)
	if err != nil {
		return nil, err
	}
	return &transport.AcceptJobApplicationResponse{
		JobApplicationID: jobApplicationID,
		Approval:         *view,
		Delivered:        delivered,
		Unsuspended:      unsuspended,
	}, nil
}

func firstValid(approvals []domain.Approval, today time.Time) *domain.Approval {
	for i := range approvals {
		if approvals[i].IsValid(today) {
			return &approvals[i]
		}
	}
	return nil
}

// approvalView builds the API representation. The employer flags are
// computed for the actor's SIAE, against the job seeker's last hiring.
func (s *Service) approvalView(ctx context.Context, actor Actor, a *domain.Approval) (*transport.ApprovalResponse, error) {
	today := s.today()

	var canSuspend, canProlong bool
	if actor.SiaeID != nil {
		lastHiring, err := s.repo.LastHiringSiaeID(ctx, a.UserID)
		if err != nil {
			return nil, err
		}
		canSuspend = a.CanBeSuspendedBySiae(today, lastHiring, *actor.SiaeID)
		canProlong = a.CanBeProlongedBySiae(today, s.rules.Window, lastHiring, *actor.SiaeID)
	}

	view := &transport.ApprovalResponse{
		ID:                   a.ID,
		Number:               a.Number,
		NumberWithSpaces:     a.NumberWithSpaces(),
		UserID:               a.UserID,
		Origin:               string(a.Origin),
		StartAt:              formatDate(a.StartAt),
		EndAt:                formatDate(a.EndAt),
		GrantedEndAt:         formatDate(a.GrantedEndAt),
		State:                string(a.State(today)),
		IsValid:              a.IsValid(today),
		IsInProgress:         a.IsInProgress(today),
		IsOpenToProlongation: a.IsOpenToProlongation(today, s.rules.Window),
		RemainderDays:        a.Remainder(today),
		CanBeSuspendedBySiae: canSuspend,
		CanBeProlongedBySiae: canProlong,
		CanBeUnsuspended:     a.CanBeUnsuspended(today),
		Suspensions:          make([]transport.SuspensionResponse, 0, len(a.Suspensions)),
		Prolongations:        make([]transport.ProlongationResponse, 0, len(a.Prolongations)),
		CreatedAt:            a.CreatedAt,
	}

	for _, sp := range a.SuspensionsByStartDate() {
		view.Suspensions = append(view.Suspensions, transport.SuspensionResponse{
			ID:                sp.ID,
			StartAt:           formatDate(sp.StartAt),
			EndAt:             formatDate(sp.EndAt),
			Reason:            string(sp.Reason),
			ReasonLabel:       sp.Reason.Label(),
			ReasonExplanation: sp.ReasonExplanation,
			SiaeID:            sp.SiaeID,
			Duration:          sp.Duration(),
			IsInProgress:      sp.IsInProgress(today),
		})
	}
	for _, p := range a.Prolongations {
		view.Prolongations = append(view.Prolongations, transport.ProlongationResponse{
			ID:                    p.ID,
			StartAt:               formatDate(p.StartAt),
			EndAt:                 formatDate(p.EndAt),
			Reason:                string(p.Reason),
			ReasonLabel:           p.Reason.Label(),
			ReasonExplanation:     p.ReasonExplanation,
			DeclaredBySiaeID:      p.DeclaredBySiaeID,
			ValidatedByID:         p.ValidatedByID,
			ReportFileKey:         p.ReportFileKey,
			RequirePhoneInterview: p.RequirePhoneInterview,
			Duration:              p.Duration(),
		})
	}

	return view, nil
}
