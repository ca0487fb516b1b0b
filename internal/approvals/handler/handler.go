package handler

import (
	"net/http"

	"itou_backend/internal/approvals/service"
	"itou_backend/internal/approvals/transport"
	"itou_backend/platform/httpkit"
	"itou_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Handler handles HTTP requests for approvals, suspensions and prolongations.
type Handler struct {
	svc *service.Service
	val *validator.Validator
}

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
	msgInvalidID        = "invalid ID"
)

// New creates a new approvals handler.
func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// GetApproval returns an approval with its derived state.
// GET /api/v1/approvals/:id
func (h *Handler) GetApproval(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	actor, ok := mustGetActor(c)
	if !ok {
		return
	}

	result, err := h.svc.GetApproval(c.Request.Context(), actor, id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// GetApprovalByNumber looks an approval up by its number, spaces allowed.
// GET /api/v1/approvals/by-number/:number
func (h *Handler) GetApprovalByNumber(c *gin.Context) {
	actor, ok := mustGetActor(c)
	if !ok {
		return
	}

	result, err := h.svc.GetApprovalByNumber(c.Request.Context(), actor, c.Param("number"))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// LatestForJobSeeker returns the job seeker's most relevant approval.
// GET /api/v1/job-seekers/:id/approval
func (h *Handler) LatestForJobSeeker(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	actor, ok := mustGetActor(c)
	if !ok {
		return
	}

	result, err := h.svc.LatestForJobSeeker(c.Request.Context(), actor, id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// DeliverApproval delivers an approval manually.
// POST /api/v1/admin/approvals
func (h *Handler) DeliverApproval(c *gin.Context) {
	var req transport.CreateApprovalRequest
	if !h.bindJSON(c, &req) {
		return
	}
	actor, ok := mustGetActor(c)
	if !ok {
		return
	}

	result, err := h.svc.DeliverApproval(c.Request.Context(), actor, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.Created(c, result)
}

// UpdateApprovalDates corrects an approval's dates.
// PUT /api/v1/admin/approvals/:id/dates
func (h *Handler) UpdateApprovalDates(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req transport.UpdateApprovalDatesRequest
	if !h.bindJSON(c, &req) {
		return
	}
	actor, ok := mustGetActor(c)
	if !ok {
		return
	}

	result, err := h.svc.UpdateApprovalDates(c.Request.Context(), actor, id, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// CreateSuspension suspends an approval.
// POST /api/v1/approvals/:id/suspensions
func (h *Handler) CreateSuspension(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req transport.SuspensionRequest
	if !h.bindJSON(c, &req) {
		return
	}
	actor, ok := mustGetActor(c)
	if !ok {
		return
	}

	result, err := h.svc.CreateSuspension(c.Request.Context(), actor, id, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.Created(c, result)
}

// UpdateSuspension edits a suspension.
// PUT /api/v1/suspensions/:id
func (h *Handler) UpdateSuspension(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req transport.SuspensionRequest
	if !h.bindJSON(c, &req) {
		return
	}
	actor, ok := mustGetActor(c)
	if !ok {
		return
	}

	result, err := h.svc.UpdateSuspension(c.Request.Context(), actor, id, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// DeleteSuspension removes a suspension.
// DELETE /api/v1/suspensions/:id
func (h *Handler) DeleteSuspension(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	actor, ok := mustGetActor(c)
	if !ok {
		return
	}

	result, err := h.svc.DeleteSuspension(c.Request.Context(), actor, id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// DeclareProlongation prolongs an approval from its current end date.
// POST /api/v1/approvals/:id/prolongations
func (h *Handler) DeclareProlongation(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req transport.DeclareProlongationRequest
	if !h.bindJSON(c, &req) {
		return
	}
	actor, ok := mustGetActor(c)
	if !ok {
		return
	}

	result, err := h.svc.DeclareProlongation(c.Request.Context(), actor, id, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.Created(c, result)
}

// UpdateProlongation edits a prolongation.
// PUT /api/v1/prolongations/:id
func (h *Handler) UpdateProlongation(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req transport.UpdateProlongationRequest
	if !h.bindJSON(c, &req) {
		return
	}
	actor, ok := mustGetActor(c)
	if !ok {
		return
	}

	result, err := h.svc.UpdateProlongation(c.Request.Context(), actor, id, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// DeleteProlongation removes the last prolongation of an approval.
// DELETE /api/v1/prolongations/:id
func (h *Handler) DeleteProlongation(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	actor, ok := mustGetActor(c)
	if !ok {
		return
	}

	result, err := h.svc.DeleteProlongation(c.Request.Context(), actor, id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// ReportUploadURL issues a presigned URL for a prolongation report.
// POST /api/v1/prolongations/report-upload-url
func (h *Handler) ReportUploadURL(c *gin.Context) {
	var req transport.ReportUploadURLRequest
	if !h.bindJSON(c, &req) {
		return
	}
	actor, ok := mustGetActor(c)
	if !ok {
		return
	}

	result, err := h.svc.ProlongationReportUploadURL(c.Request.Context(), actor, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// ReportDownloadURL issues a presigned URL to read a prolongation report.
// GET /api/v1/prolongations/:id/report
func (h *Handler) ReportDownloadURL(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	actor, ok := mustGetActor(c)
	if !ok {
		return
	}

	result, err := h.svc.ProlongationReportDownloadURL(c.Request.Context(), actor, id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// AcceptJobApplication records a hiring and returns the approval it uses.
// POST /api/v1/job-applications/:id/accept
func (h *Handler) AcceptJobApplication(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req transport.AcceptJobApplicationRequest
	if !h.bindJSON(c, &req) {
		return
	}
	actor, ok := mustGetActor(c)
	if !ok {
		return
	}

	result, err := h.svc.AcceptJobApplication(c.Request.Context(), actor, id, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// SearchPoleEmploiApprovals searches legacy approvals by number.
// GET /api/v1/admin/pole-emploi-approvals?number=
func (h *Handler) SearchPoleEmploiApprovals(c *gin.Context) {
	actor, ok := mustGetActor(c)
	if !ok {
		return
	}

	result, err := h.svc.SearchPoleEmploiApprovals(c.Request.Context(), actor, c.Query("number"))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// ConvertPoleEmploiApproval turns a legacy approval into a native one.
// POST /api/v1/admin/pole-emploi-approvals/:id/convert
func (h *Handler) ConvertPoleEmploiApproval(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req transport.ConvertPoleEmploiApprovalRequest
	if !h.bindJSON(c, &req) {
		return
	}
	actor, ok := mustGetActor(c)
	if !ok {
		return
	}

	result, err := h.svc.ConvertPoleEmploiApproval(c.Request.Context(), actor, id, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.Created(c, result)
}

func (h *Handler) bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return false
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return false
	}
	return true
}

func parseID(c *gin.Context, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(param))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return uuid.Nil, false
	}
	return id, true
}

// mustGetActor aborts with 401 when the request is not authenticated.
func mustGetActor(c *gin.Context) (service.Actor, bool) {
	identity, ok := httpkit.MustGetIdentity(c)
	if !ok {
		return service.Actor{}, false
	}
	return service.Actor{
		UserID:  identity.UserID(),
		IsAdmin: identity.HasRole(httpkit.RoleAdmin),
		SiaeID:  identity.SiaeID(),
	}, true
}
