package domain

import (
	"fmt"
	"strings"
	"time"

	"itou_backend/platform/apperr"

	"github.com/google/uuid"
)

// Prolongation extends an approval. Prolongations chain: each one starts on
// the approval's end date at the time it is declared.
type Prolongation struct {
	ID                    uuid.UUID
	ApprovalID            uuid.UUID
	StartAt               time.Time
	EndAt                 time.Time
	Reason                ProlongationReason
	ReasonExplanation     string
	DeclaredByID          *uuid.UUID
	DeclaredBySiaeID      *uuid.UUID
	ValidatedByID         *uuid.UUID
	ReportFileKey         string
	RequirePhoneInterview bool
	ContactEmail          string
	ContactPhone          string
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// Duration is the number of days added to the approval's end date.
func (p *Prolongation) Duration() int {
	return DaysBetween(p.StartAt, p.EndAt)
}

// MaxEndAt is the latest end date a single prolongation for reason may have.
func (p *Prolongation) MaxEndAt() time.Time {
	return AddDays(p.StartAt, p.Reason.SingleMaxDays())
}

// Clean validates p against its approval. A prolongation not yet attached to
// the approval must start on the approval's current end date.
func (p *Prolongation) Clean(approval *Approval) error {
	fields := apperr.FieldErrors{}

	if !p.Reason.IsKnown() {
		fields.Add("reason", "unknown prolongation reason")
		return fields.Err("invalid prolongation")
	}
	if p.StartAt.IsZero() || p.EndAt.IsZero() {
		fields.Add("end_at", "start and end dates are required")
		return fields.Err("invalid prolongation")
	}
	if !p.EndAt.After(p.StartAt) {
		fields.Add("end_at", "end date must be after start date")
	}

	existing := p.existingIn(approval)
	if existing == nil && !p.StartAt.Equal(approval.EndAt) {
		fields.Add("start_at", "start date must equal the approval end date "+approval.EndAt.Format(time.DateOnly))
	}
	if existing != nil && !p.StartAt.Equal(existing.StartAt) {
		fields.Add("start_at", "start date cannot be changed")
	}
	if existing != nil && !p.EndAt.Equal(existing.EndAt) && approval.LastProlongation().ID != p.ID {
		fields.Add("end_at", "only the last prolongation can change its end date")
	}

	if p.EndAt.After(p.MaxEndAt()) {
		fields.Add("end_at", fmt.Sprintf("a single prolongation for this reason cannot exceed %d days", p.Reason.SingleMaxDays()))
	}

	cumulative := p.Duration()
	for i := range approval.Prolongations {
		other := &approval.Prolongations[i]
		if other.Reason != p.Reason || (p.ID != uuid.Nil && other.ID == p.ID) {
			continue
		}
		cumulative += other.Duration()
	}
	if limit := p.Reason.CumulativeCapDays(); cumulative > limit {
		fields.Add("end_at", fmt.Sprintf("prolongations for this reason cannot exceed %d days in total", limit))
	}

	hasReport := strings.TrimSpace(p.ReportFileKey) != ""
	switch {
	case p.Reason.RequiresReport() && !hasReport:
		fields.Add("report_file", "a report file is required for this reason")
	case !p.Reason.RequiresReport() && hasReport:
		fields.Add("report_file", "a report file is not expected for this reason")
	}

	if p.Reason.RequiresPrescriber() && p.ValidatedByID == nil {
		fields.Add("validated_by", "an authorized prescriber must validate this prolongation")
	}

	hasContact := strings.TrimSpace(p.ContactEmail) != "" || strings.TrimSpace(p.ContactPhone) != ""
	if p.Reason.AllowsPhoneInterview() {
		if p.RequirePhoneInterview {
			if strings.TrimSpace(p.ContactEmail) == "" {
				fields.Add("contact_email", "contact email is required for a phone interview")
			}
			if strings.TrimSpace(p.ContactPhone) == "" {
				fields.Add("contact_phone", "contact phone is required for a phone interview")
			}
		}
	} else {
		if p.RequirePhoneInterview {
			fields.Add("require_phone_interview", "a phone interview is not available for this reason")
		}
		if hasContact {
			fields.Add("contact_email", "contact details are not expected for this reason")
		}
	}

	return fields.Err("invalid prolongation")
}

func (p *Prolongation) existingIn(approval *Approval) *Prolongation {
	if p.ID == uuid.Nil {
		return nil
	}
	for i := range approval.Prolongations {
		if approval.Prolongations[i].ID == p.ID {
			return &approval.Prolongations[i]
		}
	}
	return nil
}
