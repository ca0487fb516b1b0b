package service

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"itou_backend/internal/approvals/domain"
	"itou_backend/internal/approvals/repository"
	"itou_backend/internal/approvals/transport"
	"itou_backend/internal/events"
	"itou_backend/platform/apperr"
	"itou_backend/platform/phone"
	"itou_backend/platform/sanitize"

	"github.com/google/uuid"
)

const reportFolder = "prolongation_report"

// DeclareProlongation extends an approval from its current end date. The
// validating prescriber, when there is one, is notified through the event bus.
func (s *Service) DeclareProlongation(ctx context.Context, actor Actor, approvalID uuid.UUID, req transport.DeclareProlongationRequest) (*transport.ApprovalResponse, error) {
	endAt, err := parseDate("end_at", req.EndAt)
	if err != nil {
		return nil, err
	}
	reason := domain.ProlongationReason(strings.ToUpper(strings.TrimSpace(req.Reason)))
	if !reason.IsKnown() {
		return nil, apperr.ValidationField("reason", "unknown prolongation reason")
	}
	today := s.today()

	var (
		approval *domain.Approval
		declared *events.ProlongationDeclared
	)
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
			if actor.SiaeID == nil || !a.CanBeProlongedBySiae(today, s.rules.Window, lastHiring, *actor.SiaeID) {
				return apperr.Forbidden("this approval cannot be prolonged by your organization")
			}
		}

		now := time.Now()
		p := domain.Prolongation{
			ID:                    uuid.New(),
			ApprovalID:            a.ID,
			StartAt:               a.EndAt,
			EndAt:                 endAt,
			Reason:                reason,
			ReasonExplanation:     sanitize.Text(req.ReasonExplanation),
			DeclaredByID:          &actor.UserID,
			DeclaredBySiaeID:      actor.SiaeID,
			ValidatedByID:         req.ValidatedByID,
			ReportFileKey:         strings.TrimSpace(req.ReportFileKey),
			RequirePhoneInterview: req.RequirePhoneInterview,
			ContactEmail:          strings.TrimSpace(req.ContactEmail),
			ContactPhone:          phone.NormalizeE164(req.ContactPhone),
			CreatedAt:             now,
			UpdatedAt:             now,
		}
		if err := p.Clean(a); err != nil {
			return err
		}

		event, err := s.buildProlongationDeclared(ctx, a, &p)
		if err != nil {
			return err
		}

		if err := s.repo.CreateProlongation(ctx, &p); err != nil {
			return err
		}
		a.Prolongations = append(a.Prolongations, p)
		domain.RecomputeEndAt(a)
		if err := s.repo.SaveApprovalDates(ctx, a); err != nil {
			return err
		}

		approval = a
		declared = event
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.ApprovalEvent("prolongation_declared", approval.Number, "approval_id", approval.ID, "reason", string(reason), "end_at", formatDate(approval.EndAt))
	if declared != nil {
		s.publish(ctx, *declared)
	}
	return s.approvalView(ctx, actor, approval)
}

// UpdateProlongation edits a prolongation. Only the last prolongation of an
// approval may change its end date.
func (s *Service) UpdateProlongation(ctx context.Context, actor Actor, id uuid.UUID, req transport.UpdateProlongationRequest) (*transport.ApprovalResponse, error) {
	endAt, err := parseDate("end_at", req.EndAt)
	if err != nil {
		return nil, err
	}

	var approval *domain.Approval
	err = s.repo.WithTx(ctx, func(ctx context.Context) error {
		a, idx, err := s.lockApprovalForProlongation(ctx, actor, id)
		if err != nil {
			return err
		}

		candidate := a.Prolongations[idx]
		candidate.EndAt = endAt
		candidate.ReasonExplanation = sanitize.Text(req.ReasonExplanation)
		candidate.ValidatedByID = req.ValidatedByID
		candidate.ReportFileKey = strings.TrimSpace(req.ReportFileKey)
		candidate.RequirePhoneInterview = req.RequirePhoneInterview
		candidate.ContactEmail = strings.TrimSpace(req.ContactEmail)
		candidate.ContactPhone = phone.NormalizeE164(req.ContactPhone)
		candidate.UpdatedAt = time.Now()

		if err := candidate.Clean(a); err != nil {
			return err
		}
		if candidate.ValidatedByID != nil {
			if _, err := s.authorizedPrescriber(ctx, *candidate.ValidatedByID); err != nil {
				return err
			}
		}
		if err := s.repo.UpdateProlongation(ctx, &candidate); err != nil {
			return err
		}

		a.Prolongations[idx] = candidate
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

	s.log.ApprovalEvent("prolongation_updated", approval.Number, "prolongation_id", id, "end_at", formatDate(approval.EndAt))
	return s.approvalView(ctx, actor, approval)
}

// DeleteProlongation removes the last prolongation of an approval.
func (s *Service) DeleteProlongation(ctx context.Context, actor Actor, id uuid.UUID) (*transport.ApprovalResponse, error) {
	var (
		approval  *domain.Approval
		reportKey string
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context) error {
		a, idx, err := s.lockApprovalForProlongation(ctx, actor, id)
		if err != nil {
			return err
		}
		if last := a.LastProlongation(); last.ID != id {
			return apperr.Conflict("only the last prolongation can be deleted")
		}
		if err := s.repo.DeleteProlongation(ctx, id); err != nil {
			return err
		}
		reportKey = a.Prolongations[idx].ReportFileKey

		a.Prolongations = append(a.Prolongations[:idx], a.Prolongations[idx+1:]...)
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

	s.log.ApprovalEvent("prolongation_deleted", approval.Number, "prolongation_id", id, "end_at", formatDate(approval.EndAt))
	if reportKey != "" && s.storage != nil {
		if err := s.storage.DeleteObject(ctx, s.reportBucket, reportKey); err != nil {
			s.log.Warn("failed to delete prolongation report", "file_key", reportKey, "error", err)
		}
	}
	return s.approvalView(ctx, actor, approval)
}

// ProlongationReportUploadURL returns a presigned URL to upload a report
// file before declaring a prolongation on the approval.
func (s *Service) ProlongationReportUploadURL(ctx context.Context, actor Actor, req transport.ReportUploadURLRequest) (*transport.ReportUploadURLResponse, error) {
	if s.storage == nil {
		return nil, apperr.Internal("file storage is not configured")
	}
	if !actor.IsAdmin && actor.SiaeID == nil {
		return nil, apperr.Forbidden("only employers can upload prolongation reports")
	}
	if _, err := s.repo.GetApproval(ctx, req.ApprovalID); err != nil {
		return nil, err
	}

	folder := path.Join(reportFolder, req.ApprovalID.String())
	presigned, err := s.storage.GenerateUploadURL(ctx, s.reportBucket, folder, path.Base(req.FileName), req.ContentType, req.SizeBytes)
	if err != nil {
		return nil, err
	}
	return &transport.ReportUploadURLResponse{
		UploadURL: presigned.URL,
		FileKey:   presigned.FileKey,
		ExpiresAt: presigned.ExpiresAt,
	}, nil
}

// ProlongationReportDownloadURL returns a presigned URL to read the report
// attached to a prolongation.
func (s *Service) ProlongationReportDownloadURL(ctx context.Context, actor Actor, id uuid.UUID) (*transport.ReportDownloadURLResponse, error) {
	if s.storage == nil {
		return nil, apperr.Internal("file storage is not configured")
	}
	p, err := s.repo.GetProlongation(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin && !sameSiae(actor, p.DeclaredBySiaeID) {
		return nil, apperr.Forbidden("only the declaring organization can read this report")
	}
	if p.ReportFileKey == "" {
		return nil, apperr.NotFound("this prolongation has no report")
	}

	presigned, err := s.storage.GenerateDownloadURL(ctx, s.reportBucket, p.ReportFileKey)
	if err != nil {
		return nil, err
	}
	return &transport.ReportDownloadURLResponse{
		URL:       presigned.URL,
		ExpiresAt: presigned.ExpiresAt,
	}, nil
}

func (s *Service) lockApprovalForProlongation(ctx context.Context, actor Actor, id uuid.UUID) (*domain.Approval, int, error) {
	existing, err := s.repo.GetProlongation(ctx, id)
	if err != nil {
		return nil, 0, err
	}
	if !actor.IsAdmin && !sameSiae(actor, existing.DeclaredBySiaeID) {
		return nil, 0, apperr.Forbidden("only the declaring organization can modify this prolongation")
	}

	a, err := s.repo.LockApproval(ctx, existing.ApprovalID)
	if err != nil {
		return nil, 0, err
	}
	for i := range a.Prolongations {
		if a.Prolongations[i].ID == id {
			return a, i, nil
		}
	}
	return nil, 0, apperr.NotFound("prolongation not found")
}

func (s *Service) authorizedPrescriber(ctx context.Context, id uuid.UUID) (*repository.Prescriber, error) {
	prescriber, err := s.repo.GetPrescriber(ctx, id)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return nil, apperr.ValidationField("validated_by", "unknown prescriber")
		}
		return nil, err
	}
	if !prescriber.IsAuthorized {
		return nil, apperr.ValidationField("validated_by", "the prescriber is not authorized to validate prolongations")
	}
	return prescriber, nil
}

// buildProlongationDeclared checks the validating prescriber and prepares
// the notification; it returns nil when nobody has to be notified.
func (s *Service) buildProlongationDeclared(ctx context.Context, a *domain.Approval, p *domain.Prolongation) (*events.ProlongationDeclared, error) {
	if p.ValidatedByID == nil {
		return nil, nil
	}
	prescriber, err := s.authorizedPrescriber(ctx, *p.ValidatedByID)
	if err != nil {
		return nil, err
	}
	jobSeeker, err := s.repo.GetJobSeeker(ctx, a.UserID)
	if err != nil {
		return nil, err
	}

	siaeName := ""
	if p.DeclaredBySiaeID != nil {
		siae, err := s.repo.GetSiae(ctx, *p.DeclaredBySiaeID)
		if err != nil {
			return nil, fmt.Errorf("load declaring siae: %w", err)
		}
		siaeName = siae.Name
	}

	return &events.ProlongationDeclared{
		BaseEvent:         events.BaseEventAt(s.clock()),
		ProlongationID:    p.ID,
		ApprovalID:        a.ID,
		ApprovalNumber:    a.Number,
		JobSeekerName:     jobSeeker.FullName(),
		Reason:            string(p.Reason),
		ReasonLabel:       p.Reason.Label(),
		ReasonExplanation: p.ReasonExplanation,
		StartAt:           p.StartAt,
		EndAt:             p.EndAt,
		DeclaredBySiaeID:  p.DeclaredBySiaeID,
		SiaeName:          siaeName,
		PrescriberEmail:   prescriber.Email,
		PrescriberName:    prescriber.FirstName + " " + prescriber.LastName,
	}, nil
}
