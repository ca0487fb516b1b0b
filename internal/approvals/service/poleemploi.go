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

const minSearchNumberLength = 5

// SearchPoleEmploiApprovals finds legacy approvals by number prefix and
// flags those already converted.
func (s *Service) SearchPoleEmploiApprovals(ctx context.Context, actor Actor, number string) ([]transport.PoleEmploiApprovalResponse, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	number = strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(number), " ", ""))
	if len(number) < minSearchNumberLength {
		return nil, apperr.ValidationField("number", "enter at least 5 characters")
	}

	found, err := s.repo.SearchPoleEmploiApprovalsByNumber(ctx, number)
	if err != nil {
		return nil, err
	}

	today := s.today()
	out := make([]transport.PoleEmploiApprovalResponse, 0, len(found))
	for i := range found {
		converted, err := s.repo.ApprovalNumberExists(ctx, found[i].ApprovalNumber())
		if err != nil {
			return nil, err
		}
		out = append(out, s.poleEmploiView(&found[i], today, converted))
	}
	return out, nil
}

// ConvertPoleEmploiApproval turns a legacy approval into a native one. The
// job seeker is found by email, or by legacy identifier and birthdate, or
// created from the legacy record. A synthetic accepted job application
// records the hiring that the legacy approval covered.
func (s *Service) ConvertPoleEmploiApproval(ctx context.Context, actor Actor, peApprovalID uuid.UUID, req transport.ConvertPoleEmploiApprovalRequest) (*transport.ApprovalResponse, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}

	var created *domain.Approval
	err := s.repo.WithTx(ctx, func(ctx context.Context) error {
		pe, err := s.repo.GetPoleEmploiApproval(ctx, peApprovalID)
		if err != nil {
			return err
		}

		number := pe.ApprovalNumber()
		exists, err := s.repo.ApprovalNumberExists(ctx, number)
		if err != nil {
			return err
		}
		if exists {
			return apperr.Conflict("an approval with number " + number + " already exists")
		}

		jobSeeker, err := s.matchOrCreateJobSeeker(ctx, pe, req.Email)
		if err != nil {
			return err
		}

		now := time.Now()
		a := &domain.Approval{
			ID:           uuid.New(),
			Number:       number,
			StartAt:      pe.StartAt,
			EndAt:        pe.EndAt,
			GrantedEndAt: pe.EndAt,
			UserID:       jobSeeker.ID,
			CreatedByID:  &actor.UserID,
			CreatedAt:    now,
			UpdatedAt:    now,
			Origin:       domain.OriginPEApproval,
		}
		if err := a.Clean(); err != nil {
			return err
		}
		if err := s.repo.CreateApproval(ctx, a); err != nil {
			return err
		}

		hiring := pe.StartAt
		if err := s.repo.CreateJobApplication(ctx, &repository.JobApplication{
			ID:            uuid.New(),
			JobSeekerID:   jobSeeker.ID,
			ToSiaeID:      req.ToSiaeID,
			ApprovalID:    &a.ID,
			State:         repository.JobApplicationStateAccepted,
			HiringStartAt: &hiring,
			Origin:        repository.JobApplicationOriginPEApproval,
			CreatedAt:     now,
			UpdatedAt:     now,
		}); err != nil {
			return err
		}

		created = a
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.ApprovalEvent("pe_approval_converted", created.Number, "approval_id", created.ID, "pe_approval_id", peApprovalID)
	s.publishDelivered(ctx, created)
	return s.approvalView(ctx, actor, created)
}

func (s *Service) matchOrCreateJobSeeker(ctx context.Context, pe *domain.PoleEmploiApproval, email string) (*repository.JobSeeker, error) {
	email = strings.TrimSpace(email)
	if email != "" {
		js, err := s.repo.FindJobSeekerByEmail(ctx, email)
		if err != nil || js != nil {
			return js, err
		}
	} else {
		js, err := s.repo.FindJobSeekerByPoleEmploiID(ctx, pe.PoleEmploiID, pe.Birthdate)
		if err != nil || js != nil {
			return js, err
		}
	}

	birthdate := pe.Birthdate
	poleEmploiID := pe.PoleEmploiID
	js := &repository.JobSeeker{
		ID:           uuid.New(),
		FirstName:    pe.FirstName,
		LastName:     pe.LastName,
		Birthdate:    &birthdate,
		PoleEmploiID: &poleEmploiID,
		CreatedAt:    time.Now(),
	}
	if email != "" {
		js.Email = &email
	}
	if err := s.repo.CreateJobSeeker(ctx, js); err != nil {
		return nil, err
	}
	return js, nil
}

func (s *Service) poleEmploiView(pe *domain.PoleEmploiApproval, today time.Time, converted bool) transport.PoleEmploiApprovalResponse {
	return transport.PoleEmploiApprovalResponse{
		ID:               pe.ID,
		Number:           pe.Number,
		NumberWithSpaces: pe.NumberWithSpaces(),
		PoleEmploiID:     pe.PoleEmploiID,
		FirstName:        pe.FirstName,
		LastName:         pe.LastName,
		BirthName:        pe.BirthName,
		Birthdate:        formatDate(pe.Birthdate),
		StartAt:          formatDate(pe.StartAt),
		EndAt:            formatDate(pe.EndAt),
		State:            string(pe.State(today)),
		IsValid:          pe.IsValid(today),
		AlreadyConverted: converted,
	}
}
