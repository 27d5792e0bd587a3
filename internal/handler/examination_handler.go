package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/scholar-admissions-api/internal/dto"
	"github.com/noah-isme/scholar-admissions-api/internal/models"
	appErrors "github.com/noah-isme/scholar-admissions-api/pkg/errors"
	"github.com/noah-isme/scholar-admissions-api/pkg/response"
)

type examinationWorkflow interface {
	ForwardWritten(ctx context.Context, actor models.Actor, id string) (*models.Scholar, error)
	ForwardInterview(ctx context.Context, actor models.Actor, id string) (*models.Scholar, error)
	ForwardToDirector(ctx context.Context, actor models.Actor, id string) (*models.Scholar, error)
	UpdateWrittenMarks(ctx context.Context, actor models.Actor, id, raw string) (*models.Scholar, error)
	UpdateWrittenMarks70(ctx context.Context, actor models.Actor, id, raw string) (*models.Scholar, error)
	UpdateInterviewMarks(ctx context.Context, actor models.Actor, id, raw string) (*models.Scholar, error)
	BulkForwardWritten(ctx context.Context, actor models.Actor, ids []string) (*models.BulkResult, error)
	BulkForwardInterview(ctx context.Context, actor models.Actor, ids []string) (*models.BulkResult, error)
	PublishResults(ctx context.Context, actor models.Actor, faculty string, ids []string) (*models.BulkResult, error)
}

type markEdit func(ctx context.Context, actor models.Actor, id, raw string) (*models.Scholar, error)

// ExaminationHandler exposes the examination stage: forwards, marks and publication.
type ExaminationHandler struct {
	workflow examinationWorkflow
}

// NewExaminationHandler constructs the handler.
func NewExaminationHandler(workflow examinationWorkflow) *ExaminationHandler {
	return &ExaminationHandler{workflow: workflow}
}

// ForwardWritten godoc
// @Summary Forward a record's written examination to its faculty
// @Tags Examinations
// @Produce json
// @Param id path string true "Record ID"
// @Success 200 {object} response.Envelope
// @Router /examinations/{id}/forward-written [post]
func (h *ExaminationHandler) ForwardWritten(c *gin.Context) {
	runSingle(c, h.workflow.ForwardWritten)
}

// ForwardInterview godoc
// @Summary Forward a record's interview to its faculty
// @Tags Examinations
// @Produce json
// @Param id path string true "Record ID"
// @Success 200 {object} response.Envelope
// @Router /examinations/{id}/forward-interview [post]
func (h *ExaminationHandler) ForwardInterview(c *gin.Context) {
	runSingle(c, h.workflow.ForwardInterview)
}

// ForwardToDirector godoc
// @Summary Return interview results to the director
// @Tags Examinations
// @Produce json
// @Param id path string true "Record ID"
// @Success 200 {object} response.Envelope
// @Router /examinations/{id}/forward-director [post]
func (h *ExaminationHandler) ForwardToDirector(c *gin.Context) {
	runSingle(c, h.workflow.ForwardToDirector)
}

// UpdateWrittenMarks godoc
// @Summary Record written marks out of 100
// @Tags Examinations
// @Accept json
// @Produce json
// @Param id path string true "Record ID"
// @Param payload body dto.MarksRequest true "Marks, Ab, or blank"
// @Success 200 {object} response.Envelope
// @Router /examinations/{id}/marks/written [put]
func (h *ExaminationHandler) UpdateWrittenMarks(c *gin.Context) {
	runMarks(c, h.workflow.UpdateWrittenMarks)
}

// UpdateWrittenMarks70 godoc
// @Summary Record scaled written marks out of 70
// @Tags Examinations
// @Accept json
// @Produce json
// @Param id path string true "Record ID"
// @Param payload body dto.MarksRequest true "Marks, Ab, or blank"
// @Success 200 {object} response.Envelope
// @Router /examinations/{id}/marks/written70 [put]
func (h *ExaminationHandler) UpdateWrittenMarks70(c *gin.Context) {
	runMarks(c, h.workflow.UpdateWrittenMarks70)
}

// UpdateInterviewMarks godoc
// @Summary Record interview marks out of 30
// @Tags Examinations
// @Accept json
// @Produce json
// @Param id path string true "Record ID"
// @Param payload body dto.MarksRequest true "Marks, Ab, or blank"
// @Success 200 {object} response.Envelope
// @Router /examinations/{id}/marks/interview [put]
func (h *ExaminationHandler) UpdateInterviewMarks(c *gin.Context) {
	runMarks(c, h.workflow.UpdateInterviewMarks)
}

// BulkForwardWritten godoc
// @Summary Forward many written examinations
// @Tags Examinations
// @Accept json
// @Produce json
// @Param payload body dto.IDsRequest true "Record IDs"
// @Success 200 {object} response.Envelope
// @Router /examinations/bulk/forward-written [post]
func (h *ExaminationHandler) BulkForwardWritten(c *gin.Context) {
	runBulk(c, h.workflow.BulkForwardWritten)
}

// BulkForwardInterview godoc
// @Summary Forward many interviews
// @Tags Examinations
// @Accept json
// @Produce json
// @Param payload body dto.IDsRequest true "Record IDs"
// @Success 200 {object} response.Envelope
// @Router /examinations/bulk/forward-interview [post]
func (h *ExaminationHandler) BulkForwardInterview(c *gin.Context) {
	runBulk(c, h.workflow.BulkForwardInterview)
}

// Publish godoc
// @Summary Publish results of the listed records for a faculty
// @Tags Examinations
// @Accept json
// @Produce json
// @Param payload body dto.PublishRequest true "Faculty and record IDs"
// @Success 200 {object} response.Envelope
// @Router /examinations/publish [post]
func (h *ExaminationHandler) Publish(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.PublishRequest
	if !bindJSON(c, &req, "faculty and ids required") {
		return
	}
	result, err := h.workflow.PublishResults(c.Request.Context(), actor, req.Faculty, req.IDs)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}

func runMarks(c *gin.Context, op markEdit) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.MarksRequest
	if !bindJSON(c, &req, "invalid marks payload") {
		return
	}
	if req.Marks == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "marks is required; send an empty string to clear"))
		return
	}
	rec, err := op(c.Request.Context(), actor, c.Param("id"), *req.Marks)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, rec)
}
