package transport

import (
	"time"

	"github.com/google/uuid"
)

// DateLayout is the wire format of civil dates.
const DateLayout = "2006-01-02"

// ── Requests ──────────────────────────────────────────────────────────────────

// CreateApprovalRequest is the admin request to deliver an approval manually.
// EndAt defaults to the configured approval duration.
type CreateApprovalRequest struct {
	UserID  uuid.UUID `json:"userId" validate:"required"`
	StartAt string    `json:"startAt" validate:"required,datetime=2006-01-02"`
	EndAt   string    `json:"endAt" validate:"omitempty,datetime=2006-01-02"`
}

// UpdateApprovalDatesRequest sets the start and effective end dates of an approval.
type UpdateApprovalDatesRequest struct {
	StartAt string `json:"startAt" validate:"required,datetime=2006-01-02"`
	EndAt   string `json:"endAt" validate:"required,datetime=2006-01-02"`
}

// SuspensionRequest is the body for creating or editing a suspension.
type SuspensionRequest struct {
	StartAt           string `json:"startAt" validate:"required,datetime=2006-01-02"`
	EndAt             string `json:"endAt" validate:"required,datetime=2006-01-02"`
	Reason            string `json:"reason" validate:"required"`
	ReasonExplanation string `json:"reasonExplanation" validate:"max=2000"`
}

// DeclareProlongationRequest is the body for declaring a prolongation.
// The start date is always the approval's current end date.
type DeclareProlongationRequest struct {
	EndAt                 string     `json:"endAt" validate:"required,datetime=2006-01-02"`
	Reason                string     `json:"reason" validate:"required"`
	ReasonExplanation     string     `json:"reasonExplanation" validate:"max=2000"`
	ValidatedByID         *uuid.UUID `json:"validatedById"`
	ReportFileKey         string     `json:"reportFileKey" validate:"max=1000"`
	RequirePhoneInterview bool       `json:"requirePhoneInterview"`
	ContactEmail          string     `json:"contactEmail" validate:"omitempty,email"`
	ContactPhone          string     `json:"contactPhone" validate:"omitempty,frphone"`
}

// UpdateProlongationRequest is the body for editing a prolongation.
type UpdateProlongationRequest struct {
	EndAt                 string     `json:"endAt" validate:"required,datetime=2006-01-02"`
	ReasonExplanation     string     `json:"reasonExplanation" validate:"max=2000"`
	ValidatedByID         *uuid.UUID `json:"validatedById"`
	ReportFileKey         string     `json:"reportFileKey" validate:"max=1000"`
	RequirePhoneInterview bool       `json:"requirePhoneInterview"`
	ContactEmail          string     `json:"contactEmail" validate:"omitempty,email"`
	ContactPhone          string     `json:"contactPhone" validate:"omitempty,frphone"`
}

// ReportUploadURLRequest asks for a presigned URL to upload a prolongation report.
type ReportUploadURLRequest struct {
	ApprovalID  uuid.UUID `json:"approvalId" validate:"required"`
	FileName    string    `json:"fileName" validate:"required,min=1,max=255"`
	ContentType string    `json:"contentType" validate:"required"`
	SizeBytes   int64     `json:"sizeBytes" validate:"required,gt=0"`
}

// AcceptJobApplicationRequest is the body for accepting a job application.
type AcceptJobApplicationRequest struct {
	HiringStartAt string `json:"hiringStartAt" validate:"required,datetime=2006-01-02"`
}

// ConvertPoleEmploiApprovalRequest identifies the job seeker a legacy approval
// is converted for. Without an email, the job seeker is matched on the legacy
// identifier and birthdate, or created from the legacy record.
type ConvertPoleEmploiApprovalRequest struct {
	Email    string     `json:"email" validate:"omitempty,email"`
	ToSiaeID *uuid.UUID `json:"toSiaeId"`
}

// ── Responses ─────────────────────────────────────────────────────────────────

// SuspensionResponse is a suspension as returned by the API.
type SuspensionResponse struct {
	ID                uuid.UUID  `json:"id"`
	StartAt           string     `json:"startAt"`
	EndAt             string     `json:"endAt"`
	Reason            string     `json:"reason"`
	ReasonLabel       string     `json:"reasonLabel"`
	ReasonExplanation string     `json:"reasonExplanation,omitempty"`
	SiaeID            *uuid.UUID `json:"siaeId,omitempty"`
	Duration          int        `json:"durationDays"`
	IsInProgress      bool       `json:"isInProgress"`
}

// ProlongationResponse is a prolongation as returned by the API.
type ProlongationResponse struct {
	ID                    uuid.UUID  `json:"id"`
	StartAt               string     `json:"startAt"`
	EndAt                 string     `json:"endAt"`
	Reason                string     `json:"reason"`
	ReasonLabel           string     `json:"reasonLabel"`
	ReasonExplanation     string     `json:"reasonExplanation,omitempty"`
	DeclaredBySiaeID      *uuid.UUID `json:"declaredBySiaeId,omitempty"`
	ValidatedByID         *uuid.UUID `json:"validatedById,omitempty"`
	ReportFileKey         string     `json:"reportFileKey,omitempty"`
	RequirePhoneInterview bool       `json:"requirePhoneInterview"`
	Duration              int        `json:"durationDays"`
}

// ApprovalResponse is an approval with its derived state.
type ApprovalResponse struct {
	ID                   uuid.UUID              `json:"id"`
	Number               string                 `json:"number"`
	NumberWithSpaces     string                 `json:"numberWithSpaces"`
	UserID               uuid.UUID              `json:"userId"`
	Origin               string                 `json:"origin"`
	StartAt              string                 `json:"startAt"`
	EndAt                string                 `json:"endAt"`
	GrantedEndAt         string                 `json:"grantedEndAt"`
	State                string                 `json:"state"`
	IsValid              bool                   `json:"isValid"`
	IsInProgress         bool                   `json:"isInProgress"`
	IsOpenToProlongation bool                   `json:"isOpenToProlongation"`
	RemainderDays        int                    `json:"remainderDays"`
	CanBeSuspendedBySiae bool                   `json:"canBeSuspendedBySiae"`
	CanBeProlongedBySiae bool                   `json:"canBeProlongedBySiae"`
	CanBeUnsuspended     bool                   `json:"canBeUnsuspended"`
	Suspensions          []SuspensionResponse   `json:"suspensions"`
	Prolongations        []ProlongationResponse `json:"prolongations"`
	CreatedAt            time.Time              `json:"createdAt"`
}

// PoleEmploiApprovalResponse is a legacy approval as returned by the API.
type PoleEmploiApprovalResponse struct {
	ID               uuid.UUID `json:"id"`
	Number           string    `json:"number"`
	NumberWithSpaces string    `json:"numberWithSpaces"`
	PoleEmploiID     string    `json:"poleEmploiId"`
	FirstName        string    `json:"firstName"`
	LastName         string    `json:"lastName"`
	BirthName        string    `json:"birthName,omitempty"`
	Birthdate        string    `json:"birthdate"`
	StartAt          string    `json:"startAt"`
	EndAt            string    `json:"endAt"`
	State            string    `json:"state"`
	IsValid          bool      `json:"isValid"`
	AlreadyConverted bool      `json:"alreadyConverted"`
}

// LatestApprovalResponse is the job seeker's most relevant approval: a native
// one when it exists, otherwise a valid legacy one.
type LatestApprovalResponse struct {
	Approval           *ApprovalResponse           `json:"approval,omitempty"`
	PoleEmploiApproval *PoleEmploiApprovalResponse `json:"poleEmploiApproval,omitempty"`
}

// AcceptJobApplicationResponse describes the approval used by a hiring.
type AcceptJobApplicationResponse struct {
	JobApplicationID uuid.UUID        `json:"jobApplicationId"`
	Approval         ApprovalResponse `json:"approval"`
	Delivered        bool             `json:"delivered"`
	Unsuspended      bool             `json:"unsuspended"`
}

// ReportUploadURLResponse carries the presigned upload URL and the key to
// send back with the prolongation.
type ReportUploadURLResponse struct {
	UploadURL string    `json:"uploadUrl"`
	FileKey   string    `json:"fileKey"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// ReportDownloadURLResponse carries a presigned URL to read a report.
type ReportDownloadURLResponse struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}
