package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/scholar-admissions-api/internal/dto"
	"github.com/noah-isme/scholar-admissions-api/internal/models"
	"github.com/noah-isme/scholar-admissions-api/pkg/response"
)

type departmentWorkflow interface {
	Approve(ctx context.Context, actor models.Actor, id string) (*models.Scholar, error)
	Reject(ctx context.Context, actor models.Actor, id, reason string) (*models.Scholar, error)
	Query(ctx context.Context, actor models.Actor, id, message string) (*models.Scholar, error)
	ResolveQuery(ctx context.Context, actor models.Actor, id string) (*models.Scholar, error)
	Forward(ctx context.Context, actor models.Actor, id string) (*models.Scholar, error)
	Revert(ctx context.Context, actor models.Actor, id string) (*models.Scholar, error)
	BulkApprove(ctx context.Context, actor models.Actor, ids []string) (*models.BulkResult, error)
	BulkReject(ctx context.Context, actor models.Actor, ids []string, reason string) (*models.BulkResult, error)
	BulkForward(ctx context.Context, actor models.Actor, ids []string) (*models.BulkResult, error)
}

type singleTransition func(ctx context.Context, actor models.Actor, id string) (*models.Scholar, error)

type bulkTransition func(ctx context.Context, actor models.Actor, ids []string) (*models.BulkResult, error)

// DepartmentHandler exposes the department review stage of applications.
type DepartmentHandler struct {
	workflow departmentWorkflow
}

// NewDepartmentHandler constructs the handler.
func NewDepartmentHandler(workflow departmentWorkflow) *DepartmentHandler {
	return &DepartmentHandler{workflow: workflow}
}

// Approve godoc
// @Summary Approve an application
// @Tags Department
// @Produce json
// @Param id path string true "Record ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /department/applications/{id}/approve [post]
func (h *DepartmentHandler) Approve(c *gin.Context) {
	runSingle(c, h.workflow.Approve)
}

// Reject godoc
// @Summary Reject an application with a reason
// @Tags Department
// @Accept json
// @Produce json
// @Param id path string true "Record ID"
// @Param payload body dto.RejectRequest true "Reason"
// @Success 200 {object} response.Envelope
// @Router /department/applications/{id}/reject [post]
func (h *DepartmentHandler) Reject(c *gin.Context) {
	var req dto.RejectRequest
	if !bindJSON(c, &req, "reason required") {
		return
	}
	runSingle(c, func(ctx context.Context, actor models.Actor, id string) (*models.Scholar, error) {
		return h.workflow.Reject(ctx, actor, id, req.Reason)
	})
}

// Query godoc
// @Summary Raise a query on an application
// @Tags Department
// @Accept json
// @Produce json
// @Param id path string true "Record ID"
// @Param payload body dto.QueryRequest true "Query message"
// @Success 200 {object} response.Envelope
// @Router /department/applications/{id}/query [post]
func (h *DepartmentHandler) Query(c *gin.Context) {
	var req dto.QueryRequest
	if !bindJSON(c, &req, "message required") {
		return
	}
	runSingle(c, func(ctx context.Context, actor models.Actor, id string) (*models.Scholar, error) {
		return h.workflow.Query(ctx, actor, id, req.Message)
	})
}

// ResolveQuery godoc
// @Summary Mark a raised query as resolved
// @Tags Department
// @Produce json
// @Param id path string true "Record ID"
// @Success 200 {object} response.Envelope
// @Router /department/applications/{id}/resolve-query [post]
func (h *DepartmentHandler) ResolveQuery(c *gin.Context) {
	runSingle(c, h.workflow.ResolveQuery)
}

// Forward godoc
// @Summary Forward an approved application to its faculty
// @Tags Department
// @Produce json
// @Param id path string true "Record ID"
// @Success 200 {object} response.Envelope
// @Router /department/applications/{id}/forward [post]
func (h *DepartmentHandler) Forward(c *gin.Context) {
	runSingle(c, h.workflow.Forward)
}

// Revert godoc
// @Summary Revert an application to the department
// @Tags Department
// @Produce json
// @Param id path string true "Record ID"
// @Success 200 {object} response.Envelope
// @Router /department/applications/{id}/revert [post]
func (h *DepartmentHandler) Revert(c *gin.Context) {
	runSingle(c, h.workflow.Revert)
}

// BulkApprove godoc
// @Summary Approve many applications
// @Tags Department
// @Accept json
// @Produce json
// @Param payload body dto.IDsRequest true "Record IDs"
// @Success 200 {object} response.Envelope
// @Router /department/applications/bulk/approve [post]
func (h *DepartmentHandler) BulkApprove(c *gin.Context) {
	runBulk(c, h.workflow.BulkApprove)
}

// BulkReject godoc
// @Summary Reject many applications with one reason
// @Tags Department
// @Accept json
// @Produce json
// @Param payload body dto.BulkRejectRequest true "Record IDs and reason"
// @Success 200 {object} response.Envelope
// @Router /department/applications/bulk/reject [post]
func (h *DepartmentHandler) BulkReject(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.BulkRejectRequest
	if !bindJSON(c, &req, "ids and reason required") {
		return
	}
	result, err := h.workflow.BulkReject(c.Request.Context(), actor, req.IDs, req.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}

// BulkForward godoc
// @Summary Forward many applications to their faculties
// @Tags Department
// @Accept json
// @Produce json
// @Param payload body dto.IDsRequest true "Record IDs"
// @Success 200 {object} response.Envelope
// @Router /department/applications/bulk/forward [post]
func (h *DepartmentHandler) BulkForward(c *gin.Context) {
	runBulk(c, h.workflow.BulkForward)
}

func runSingle(c *gin.Context, op singleTransition) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	rec, err := op(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, rec)
}

// runBulk answers 200 with per-item outcomes; only a request-level failure is an error.
func runBulk(c *gin.Context, op bulkTransition) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.IDsRequest
	if !bindJSON(c, &req, "ids required") {
		return
	}
	result, err := op(c.Request.Context(), actor, req.IDs)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}
