// Package approvals provides the approvals bounded context module: PASS IAE
// numbering, suspensions, prolongations and legacy Pôle emploi approvals.
package approvals

import (
	"itou_backend/internal/approvals/handler"
	"itou_backend/internal/approvals/repository"
	"itou_backend/internal/approvals/service"
	"itou_backend/internal/events"
	apphttp "itou_backend/internal/http"
	"itou_backend/platform/logger"
	"itou_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the approvals bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
	service *service.Service
	repo    *repository.Repository
}

// NewModule creates and initializes the approvals module with all its dependencies.
func NewModule(pool *pgxpool.Pool, eventBus events.Bus, val *validator.Validator, rules service.Rules, log *logger.Logger) *Module {
	repo := repository.New(pool)
	svc := service.New(repo, rules, log)
	svc.SetEventBus(eventBus)

	return &Module{
		handler: handler.New(svc, val),
		service: svc,
		repo:    repo,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "approvals"
}

// Service returns the service layer for external use.
func (m *Module) Service() *service.Service {
	return m.service
}

// Repository returns the repository shared with the batch tools.
func (m *Module) Repository() *repository.Repository {
	return m.repo
}

// SetReportStorage enables presigned uploads of prolongation reports.
func (m *Module) SetReportStorage(st service.ReportStorage, bucket string) {
	m.service.SetReportStorage(st, bucket)
}

// RegisterRoutes mounts approval routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	approvals := ctx.Protected.Group("/approvals")
	approvals.GET("/:id", m.handler.GetApproval)
	approvals.GET("/by-number/:number", m.handler.GetApprovalByNumber)
	approvals.POST("/:id/suspensions", m.handler.CreateSuspension)
	approvals.POST("/:id/prolongations", m.handler.DeclareProlongation)

	ctx.Protected.GET("/job-seekers/:id/approval", m.handler.LatestForJobSeeker)
	ctx.Protected.PUT("/suspensions/:id", m.handler.UpdateSuspension)
	ctx.Protected.DELETE("/suspensions/:id", m.handler.DeleteSuspension)
	ctx.Protected.PUT("/prolongations/:id", m.handler.UpdateProlongation)
	ctx.Protected.DELETE("/prolongations/:id", m.handler.DeleteProlongation)
	ctx.Protected.POST("/prolongations/report-upload-url", m.handler.ReportUploadURL)
	ctx.Protected.GET("/prolongations/:id/report", m.handler.ReportDownloadURL)
	ctx.Protected.POST("/job-applications/:id/accept", m.handler.AcceptJobApplication)

	// Admin-only endpoints
	ctx.Admin.POST("/approvals", m.handler.DeliverApproval)
	ctx.Admin.PUT("/approvals/:id/dates", m.handler.UpdateApprovalDates)
	ctx.Admin.GET("/pole-emploi-approvals", m.handler.SearchPoleEmploiApprovals)
	ctx.Admin.POST("/pole-emploi-approvals/:id/convert", m.handler.ConvertPoleEmploiApproval)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
