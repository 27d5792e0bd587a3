package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/scholar-admissions-api/internal/dto"
	"github.com/noah-isme/scholar-admissions-api/internal/middleware"
	"github.com/noah-isme/scholar-admissions-api/internal/models"
	appErrors "github.com/noah-isme/scholar-admissions-api/pkg/errors"
	"github.com/noah-isme/scholar-admissions-api/pkg/response"
)

const maxUploadBytes = 10 << 20

type scholarQueries interface {
	ListForRole(ctx context.Context, table models.ScholarTable, actor models.Actor, query dto.ListScholarsQuery) (*dto.ScholarListResponse, error)
	Summary(ctx context.Context, table models.ScholarTable, actor models.Actor, query dto.ListScholarsQuery) (*dto.ScholarSummary, error)
	Get(ctx context.Context, table models.ScholarTable, actor models.Actor, id string) (*models.Scholar, error)
	Create(ctx context.Context, actor models.Actor, req dto.CreateScholarRequest) (*models.Scholar, error)
	BulkDelete(ctx context.Context, table models.ScholarTable, actor models.Actor, ids []string) (*dto.DeleteResponse, error)
}

type sheetImporter interface {
	ImportApplications(ctx context.Context, actor models.Actor, r io.Reader) (*dto.ImportResponse, error)
	ImportMarks(ctx context.Context, actor models.Actor, r io.Reader) (*dto.ImportResponse, error)
}

// ScholarHandler serves role-scoped listings of applications and examination records.
type ScholarHandler struct {
	scholars scholarQueries
	imports  sheetImporter
}

// NewScholarHandler constructs the handler.
func NewScholarHandler(scholars scholarQueries, imports sheetImporter) *ScholarHandler {
	return &ScholarHandler{scholars: scholars, imports: imports}
}

// ListApplications godoc
// @Summary List applications visible to the caller
// @Tags Scholars
// @Produce json
// @Param faculty query string false "Faculty (directors and admins)"
// @Param department query string false "Department (directors and admins)"
// @Param review query string false "Department review state"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /scholars/applications [get]
func (h *ScholarHandler) ListApplications(c *gin.Context) {
	h.list(c, models.TableApplications)
}

// ListExaminations godoc
// @Summary List examination records visible to the caller
// @Tags Examinations
// @Produce json
// @Param faculty query string false "Faculty (directors and admins)"
// @Param department query string false "Department (directors and admins)"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /examinations [get]
func (h *ScholarHandler) ListExaminations(c *gin.Context) {
	h.list(c, models.TableExaminations)
}

func (h *ScholarHandler) list(c *gin.Context, table models.ScholarTable) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var query dto.ListScholarsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid query"))
		return
	}
	page, size, err := pageParams(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	result, err := h.scholars.ListForRole(c.Request.Context(), table, actor, query)
	if err != nil {
		response.Error(c, err)
		return
	}
	records, pagination := paginate(result.Records, page, size)
	middleware.SetMeta(c, "tier", result.Tier)
	middleware.SetCacheHit(c, result.CacheHit)
	response.JSON(c, http.StatusOK, records, pagination, map[string]interface{}{"count": result.Count})
}

// Summary godoc
// @Summary Summarise the caller's application working set
// @Tags Scholars
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /scholars/applications/summary [get]
func (h *ScholarHandler) Summary(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var query dto.ListScholarsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid query"))
		return
	}
	summary, err := h.scholars.Summary(c.Request.Context(), models.TableApplications, actor, query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, summary)
}

// GetApplication godoc
// @Summary Get one application
// @Tags Scholars
// @Produce json
// @Param id path string true "Record ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /scholars/applications/{id} [get]
func (h *ScholarHandler) GetApplication(c *gin.Context) {
	h.get(c, models.TableApplications)
}

// GetExamination godoc
// @Summary Get one examination record
// @Tags Examinations
// @Produce json
// @Param id path string true "Record ID"
// @Success 200 {object} response.Envelope
// @Router /examinations/{id} [get]
func (h *ScholarHandler) GetExamination(c *gin.Context) {
	h.get(c, models.TableExaminations)
}

func (h *ScholarHandler) get(c *gin.Context, table models.ScholarTable) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	rec, err := h.scholars.Get(c.Request.Context(), table, actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, rec)
}

// CreateApplication godoc
// @Summary Add an application manually
// @Tags Scholars
// @Accept json
// @Produce json
// @Param payload body dto.CreateScholarRequest true "Application"
// @Success 201 {object} response.Envelope
// @Router /scholars/applications [post]
func (h *ScholarHandler) CreateApplication(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.CreateScholarRequest
	if !bindJSON(c, &req, "invalid scholar payload") {
		return
	}
	rec, err := h.scholars.Create(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, rec)
}

// DeleteApplications godoc
// @Summary Delete exactly the listed applications
// @Tags Scholars
// @Accept json
// @Produce json
// @Param payload body dto.IDsRequest true "Record IDs"
// @Success 200 {object} response.Envelope
// @Router /scholars/applications [delete]
func (h *ScholarHandler) DeleteApplications(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.IDsRequest
	if !bindJSON(c, &req, "ids required") {
		return
	}
	resp, err := h.scholars.BulkDelete(c.Request.Context(), models.TableApplications, actor, req.IDs)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, resp)
}

// ImportApplications godoc
// @Summary Import applications from a CSV sheet
// @Tags Scholars
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "CSV file with a header row"
// @Success 200 {object} response.Envelope
// @Router /scholars/applications/import [post]
func (h *ScholarHandler) ImportApplications(c *gin.Context) {
	h.importSheet(c, h.imports.ImportApplications)
}

// ImportMarks godoc
// @Summary Import examination marks from a CSV sheet
// @Tags Examinations
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "CSV file with a header row"
// @Success 200 {object} response.Envelope
// @Router /examinations/marks/import [post]
func (h *ScholarHandler) ImportMarks(c *gin.Context) {
	h.importSheet(c, h.imports.ImportMarks)
}

func (h *ScholarHandler) importSheet(c *gin.Context, run func(context.Context, models.Actor, io.Reader) (*dto.ImportResponse, error)) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes)
	header, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "file is required"))
		return
	}
	file, err := header.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "unable to read upload"))
		return
	}
	defer file.Close() //nolint:errcheck

	resp, err := run(c.Request.Context(), actor, file)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, resp)
}
