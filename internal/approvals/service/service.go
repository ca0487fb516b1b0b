package service

import (
	"context"
	"strings"
	"time"

	"itou_backend/internal/adapters/storage"
	"itou_backend/internal/approvals/domain"
	"itou_backend/internal/approvals/repository"
	"itou_backend/internal/events"
	"itou_backend/platform/apperr"
	"itou_backend/platform/config"
	"itou_backend/platform/logger"

	"github.com/google/uuid"
)

// Repository is the persistence the approvals service depends on.
// Calls made with the context passed to WithTx's callback share one transaction.
type Repository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error

	LockNumberSequence(ctx context.Context, prefix string) error
	LastApprovalNumber(ctx context.Context, prefix string) (string, error)
	ApprovalNumberExists(ctx context.Context, number string) (bool, error)
	CreateApproval(ctx context.Context, a *domain.Approval) error
	SaveApprovalDates(ctx context.Context, a *domain.Approval) error
	GetApproval(ctx context.Context, id uuid.UUID) (*domain.Approval, error)
	GetApprovalByNumber(ctx context.Context, number string) (*domain.Approval, error)
	LockApproval(ctx context.Context, id uuid.UUID) (*domain.Approval, error)
	ListApprovalsForJobSeeker(ctx context.Context, userID uuid.UUID) ([]domain.Approval, error)

	GetSuspension(ctx context.Context, id uuid.UUID) (*domain.Suspension, error)
	CreateSuspension(ctx context.Context, s *domain.Suspension) error
	UpdateSuspension(ctx context.Context, s *domain.Suspension) error
	DeleteSuspension(ctx context.Context, id uuid.UUID) error

	GetProlongation(ctx context.Context, id uuid.UUID) (*domain.Prolongation, error)
	CreateProlongation(ctx context.Context, p *domain.Prolongation) error
	UpdateProlongation(ctx context.Context, p *domain.Prolongation) error
	DeleteProlongation(ctx context.Context, id uuid.UUID) error

	GetJobSeeker(ctx context.Context, id uuid.UUID) (*repository.JobSeeker, error)
	FindJobSeekerByEmail(ctx context.Context, email string) (*repository.JobSeeker, error)
	FindJobSeekerByPoleEmploiID(ctx context.Context, poleEmploiID string, birthdate time.Time) (*repository.JobSeeker, error)
	CreateJobSeeker(ctx context.Context, js *repository.JobSeeker) error
	GetSiae(ctx context.Context, id uuid.UUID) (*repository.Siae, error)
	GetPrescriber(ctx context.Context, id uuid.UUID) (*repository.Prescriber, error)

	LockJobApplication(ctx context.Context, id uuid.UUID) (*repository.JobApplication, error)
	CreateJobApplication(ctx context.Context, ja *repository.JobApplication) error
	MarkJobApplicationAccepted(ctx context.Context, id, approvalID uuid.UUID, hiringStartAt time.Time) error
	LastHiringSiaeID(ctx context.Context, jobSeekerID uuid.UUID) (*uuid.UUID, error)

	GetPoleEmploiApproval(ctx context.Context, id uuid.UUID) (*domain.PoleEmploiApproval, error)
	SearchPoleEmploiApprovalsByNumber(ctx context.Context, number string) ([]domain.PoleEmploiApproval, error)
	FindPoleEmploiApprovalsForJobSeeker(ctx context.Context, poleEmploiID string, birthdate time.Time) ([]domain.PoleEmploiApproval, error)
}

// ReportStorage holds prolongation report files.
type ReportStorage interface {
	GenerateUploadURL(ctx context.Context, bucket, folder, fileName, contentType string, sizeBytes int64) (*storage.PresignedURL, error)
	GenerateDownloadURL(ctx context.Context, bucket, fileKey string) (*storage.PresignedURL, error)
	DeleteObject(ctx context.Context, bucket, fileKey string) error
}

// Actor is the authenticated user performing an operation.
type Actor struct {
	UserID  uuid.UUID
	IsAdmin bool
	SiaeID  *uuid.UUID
}

// Rules are the configurable business rules of the engine.
type Rules struct {
	NumberPrefix    string
	DefaultDuration config.ApprovalDuration
	Suspension      domain.SuspensionRules
	Window          domain.ProlongationWindow
}

// DefaultRules mirrors the configuration defaults.
var DefaultRules = Rules{
	NumberPrefix:    "XXXXX",
	DefaultDuration: config.ApprovalDuration{Years: 2, Days: -1},
	Suspension:      domain.DefaultSuspensionRules,
	Window:          domain.DefaultProlongationWindow,
}

// RulesFromConfig reads the engine rules from configuration.
func RulesFromConfig(cfg config.ApprovalsConfig) Rules {
	return Rules{
		NumberPrefix:    cfg.GetApprovalNumberPrefix(),
		DefaultDuration: cfg.GetApprovalDefaultDuration(),
		Suspension: domain.SuspensionRules{
			MaxRetroactivityDays: cfg.GetSuspensionMaxRetroactivityDays(),
			MaxDurationMonths:    domain.SuspensionMaxDurationMonths,
		},
		Window: domain.ProlongationWindow{
			MonthsBeforeEnd: cfg.GetProlongationWindowMonthsBeforeEnd(),
			MonthsAfterEnd:  cfg.GetProlongationWindowMonthsAfterEnd(),
		},
	}
}

// Service provides the approval use cases.
type Service struct {
	repo         Repository
	rules        Rules
	log          *logger.Logger
	clock        domain.Clock
	eventBus     events.Bus    // optional
	storage      ReportStorage // optional
	reportBucket string
}

// New creates a new approvals service
func New(repo Repository, rules Rules, log *logger.Logger) *Service {
	return &Service{
		repo:  repo,
		rules: rules,
		log:   log,
		clock: time.Now,
	}
}

// SetEventBus injects the bus used to publish approval events.
func (s *Service) SetEventBus(bus events.Bus) {
	s.eventBus = bus
}

// SetReportStorage injects the object storage holding prolongation reports.
func (s *Service) SetReportStorage(st ReportStorage, bucket string) {
	s.storage = st
	s.reportBucket = bucket
}

// SetClock overrides the clock; used by tests and batch tools replaying a date.
func (s *Service) SetClock(clock domain.Clock) {
	s.clock = clock
}

// Rules returns the rules the service applies.
func (s *Service) Rules() Rules {
	return s.rules
}

func (s *Service) today() time.Time {
	return domain.Today(s.clock)
}

func (s *Service) publish(ctx context.Context, event events.Event) {
	if s.eventBus != nil {
		s.eventBus.Publish(ctx, event)
	}
}

func parseDate(field, value string) (time.Time, error) {
	t, err := time.Parse(domainDateLayout, strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, apperr.ValidationField(field, "invalid date, expected YYYY-MM-DD")
	}
	return domain.DateOf(t), nil
}

const domainDateLayout = time.DateOnly

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(domainDateLayout)
}

func requireAdmin(actor Actor) error {
	if !actor.IsAdmin {
		return apperr.Forbidden("admin access required")
	}
	return nil
}

func sameSiae(actor Actor, siaeID *uuid.UUID) bool {
	return actor.SiaeID != nil && siaeID != nil && *actor.SiaeID == *siaeID
}
