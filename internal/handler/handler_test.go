package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/scholar-admissions-api/internal/admissions"
	"github.com/noah-isme/scholar-admissions-api/internal/dto"
	"github.com/noah-isme/scholar-admissions-api/internal/middleware"
	"github.com/noah-isme/scholar-admissions-api/internal/models"
	"github.com/noah-isme/scholar-admissions-api/internal/service"
	appErrors "github.com/noah-isme/scholar-admissions-api/pkg/errors"
)

func newGinContext(method, path string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	return c, w
}

func withUser(c *gin.Context, claims *models.JWTClaims) {
	c.Set(middleware.ContextUserKey, claims)
}

func director() *models.JWTClaims {
	return &models.JWTClaims{UserID: "dir-1", Role: models.RoleDirector}
}

func hod() *models.JWTClaims {
	return &models.JWTClaims{UserID: "hod-1", Role: models.RoleDepartment, Faculty: "Engineering", Department: "MECHANICAL ENGINEERING"}
}

type envelope struct {
	Data       json.RawMessage        `json:"data"`
	Error      *appErrors.Error       `json:"error"`
	Pagination *models.Pagination     `json:"pagination"`
	Meta       map[string]interface{} `json:"meta"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

type scholarQueriesMock struct {
	list      *dto.ScholarListResponse
	lastQuery dto.ListScholarsQuery
	lastTable models.ScholarTable
	getErr    error
	deleted   []string
}

func (m *scholarQueriesMock) ListForRole(_ context.Context, table models.ScholarTable, _ models.Actor, query dto.ListScholarsQuery) (*dto.ScholarListResponse, error) {
	m.lastTable = table
	m.lastQuery = query
	return m.list, nil
}

func (m *scholarQueriesMock) Summary(context.Context, models.ScholarTable, models.Actor, dto.ListScholarsQuery) (*dto.ScholarSummary, error) {
	return &dto.ScholarSummary{Total: len(m.list.Records)}, nil
}

func (m *scholarQueriesMock) Get(_ context.Context, table models.ScholarTable, _ models.Actor, id string) (*models.Scholar, error) {
	m.lastTable = table
	if m.getErr != nil {
		return nil, m.getErr
	}
	return &models.Scholar{ID: id}, nil
}

func (m *scholarQueriesMock) Create(_ context.Context, _ models.Actor, req dto.CreateScholarRequest) (*models.Scholar, error) {
	return &models.Scholar{ID: "new", ApplicationNo: req.ApplicationNo}, nil
}

func (m *scholarQueriesMock) BulkDelete(_ context.Context, _ models.ScholarTable, _ models.Actor, ids []string) (*dto.DeleteResponse, error) {
	m.deleted = ids
	return &dto.DeleteResponse{Deleted: len(ids), IDs: ids}, nil
}

type importerMock struct {
	body  string
	actor models.Actor
}

func (m *importerMock) ImportApplications(_ context.Context, actor models.Actor, r io.Reader) (*dto.ImportResponse, error) {
	data, _ := io.ReadAll(r)
	m.body = string(data)
	m.actor = actor
	return &dto.ImportResponse{Rows: 1, SuccessCount: 1}, nil
}

func (m *importerMock) ImportMarks(ctx context.Context, actor models.Actor, r io.Reader) (*dto.ImportResponse, error) {
	return m.ImportApplications(ctx, actor, r)
}

func TestScholarHandlerListPaginates(t *testing.T) {
	records := make([]models.Scholar, 5)
	for i := range records {
		records[i] = models.Scholar{ID: string(rune('a' + i))}
	}
	mock := &scholarQueriesMock{list: &dto.ScholarListResponse{Tier: admissions.TierDepartmentCode, Count: 5, Records: records, CacheHit: true}}
	h := NewScholarHandler(mock, nil)

	c, w := newGinContext(http.MethodGet, "/scholars/applications?review=Approved&page=2&page_size=2", nil)
	withUser(c, hod())
	h.ListApplications(c)

	require.Equal(t, http.StatusOK, w.Code)
	env := decode(t, w)
	var got []models.Scholar
	require.NoError(t, json.Unmarshal(env.Data, &got))
	require.Len(t, got, 2)
	assert.Equal(t, "c", got[0].ID)
	require.NotNil(t, env.Pagination)
	assert.Equal(t, 5, env.Pagination.TotalCount)
	assert.Equal(t, float64(5), env.Meta["count"])
	assert.Equal(t, string(admissions.TierDepartmentCode), env.Meta["tier"])
	assert.Equal(t, true, env.Meta["cache_hit"])
	assert.Equal(t, "Approved", mock.lastQuery.Review)
	assert.Equal(t, models.TableApplications, mock.lastTable)
}

func TestScholarHandlerListRejectsBadPage(t *testing.T) {
	h := NewScholarHandler(&scholarQueriesMock{}, nil)
	c, w := newGinContext(http.MethodGet, "/examinations?page_size=0", nil)
	withUser(c, director())
	h.ListExaminations(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestScholarHandlerRequiresUser(t *testing.T) {
	h := NewScholarHandler(&scholarQueriesMock{}, nil)
	c, w := newGinContext(http.MethodGet, "/examinations/1", nil)
	h.GetExamination(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestScholarHandlerGetMapsErrors(t *testing.T) {
	mock := &scholarQueriesMock{getErr: appErrors.Clone(appErrors.ErrForbidden, "record e-1 is outside your department")}
	h := NewScholarHandler(mock, nil)
	c, w := newGinContext(http.MethodGet, "/examinations/e-1", nil)
	c.Params = gin.Params{{Key: "id", Value: "e-1"}}
	withUser(c, hod())
	h.GetExamination(c)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, appErrors.ErrForbidden.Code, decode(t, w).Error.Code)
	assert.Equal(t, models.TableExaminations, mock.lastTable)
}

func TestScholarHandlerCreateAndDelete(t *testing.T) {
	mock := &scholarQueriesMock{}
	h := NewScholarHandler(mock, nil)

	payload, _ := json.Marshal(dto.CreateScholarRequest{ApplicationNo: "APP-9", Name: "Asha", Program: "Ph.D. - PHYSICS (Full Time)"})
	c, w := newGinContext(http.MethodPost, "/scholars/applications", payload)
	withUser(c, director())
	h.CreateApplication(c)
	assert.Equal(t, http.StatusCreated, w.Code)

	c, w = newGinContext(http.MethodDelete, "/scholars/applications", []byte(`{"ids":["a","b"]}`))
	withUser(c, director())
	h.DeleteApplications(c)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"a", "b"}, mock.deleted)

	c, w = newGinContext(http.MethodDelete, "/scholars/applications", []byte(`{`))
	withUser(c, director())
	h.DeleteApplications(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestScholarHandlerImport(t *testing.T) {
	importer := &importerMock{}
	h := NewScholarHandler(&scholarQueriesMock{}, importer)

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", "applications.csv")
	require.NoError(t, err)
	_, _ = part.Write([]byte("application_no,name,program\nAPP-1,Asha,Ph.D. - PHYSICS (Full Time)\n"))
	require.NoError(t, writer.Close())

	c, w := newGinContext(http.MethodPost, "/scholars/applications/import", body.Bytes())
	c.Request.Header.Set("Content-Type", writer.FormDataContentType())
	withUser(c, director())
	h.ImportApplications(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, importer.body, "APP-1")
	assert.Equal(t, "dir-1", importer.actor.UserID)

	c, w = newGinContext(http.MethodPost, "/examinations/marks/import", nil)
	withUser(c, director())
	h.ImportMarks(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

type workflowMock struct {
	calls  []string
	reason string
	raw    string
	ids    []string
	err    error
}

func (m *workflowMock) record(op, id string) (*models.Scholar, error) {
	m.calls = append(m.calls, op+":"+id)
	if m.err != nil {
		return nil, m.err
	}
	return &models.Scholar{ID: id}, nil
}

func (m *workflowMock) bulk(op string, ids []string) (*models.BulkResult, error) {
	m.calls = append(m.calls, op)
	m.ids = ids
	result := &models.BulkResult{}
	for _, id := range ids {
		result.Add(models.BulkItemResult{ID: id, Success: true})
	}
	return result, nil
}

func (m *workflowMock) Approve(_ context.Context, _ models.Actor, id string) (*models.Scholar, error) {
	return m.record("approve", id)
}

func (m *workflowMock) Reject(_ context.Context, _ models.Actor, id, reason string) (*models.Scholar, error) {
	m.reason = reason
	return m.record("reject", id)
}

func (m *workflowMock) Query(_ context.Context, _ models.Actor, id, message string) (*models.Scholar, error) {
	m.reason = message
	return m.record("query", id)
}

func (m *workflowMock) ResolveQuery(_ context.Context, _ models.Actor, id string) (*models.Scholar, error) {
	return m.record("resolve", id)
}

func (m *workflowMock) Forward(_ context.Context, _ models.Actor, id string) (*models.Scholar, error) {
	return m.record("forward", id)
}

func (m *workflowMock) Revert(_ context.Context, _ models.Actor, id string) (*models.Scholar, error) {
	return m.record("revert", id)
}

func (m *workflowMock) BulkApprove(_ context.Context, _ models.Actor, ids []string) (*models.BulkResult, error) {
	return m.bulk("bulk-approve", ids)
}

func (m *workflowMock) BulkReject(_ context.Context, _ models.Actor, ids []string, reason string) (*models.BulkResult, error) {
	m.reason = reason
	return m.bulk("bulk-reject", ids)
}

func (m *workflowMock) BulkForward(_ context.Context, _ models.Actor, ids []string) (*models.BulkResult, error) {
	return m.bulk("bulk-forward", ids)
}

func (m *workflowMock) ForwardWritten(_ context.Context, _ models.Actor, id string) (*models.Scholar, error) {
	return m.record("forward-written", id)
}

func (m *workflowMock) ForwardInterview(_ context.Context, _ models.Actor, id string) (*models.Scholar, error) {
	return m.record("forward-interview", id)
}

func (m *workflowMock) ForwardToDirector(_ context.Context, _ models.Actor, id string) (*models.Scholar, error) {
	return m.record("forward-director", id)
}

func (m *workflowMock) UpdateWrittenMarks(_ context.Context, _ models.Actor, id, raw string) (*models.Scholar, error) {
	m.raw = raw
	return m.record("written", id)
}

func (m *workflowMock) UpdateWrittenMarks70(_ context.Context, _ models.Actor, id, raw string) (*models.Scholar, error) {
	m.raw = raw
	return m.record("written70", id)
}

func (m *workflowMock) UpdateInterviewMarks(_ context.Context, _ models.Actor, id, raw string) (*models.Scholar, error) {
	m.raw = raw
	return m.record("interview", id)
}

func (m *workflowMock) BulkForwardWritten(_ context.Context, _ models.Actor, ids []string) (*models.BulkResult, error) {
	return m.bulk("bulk-forward-written", ids)
}

func (m *workflowMock) BulkForwardInterview(_ context.Context, _ models.Actor, ids []string) (*models.BulkResult, error) {
	return m.bulk("bulk-forward-interview", ids)
}

func (m *workflowMock) PublishResults(_ context.Context, _ models.Actor, faculty string, ids []string) (*models.BulkResult, error) {
	m.reason = faculty
	return m.bulk("publish", ids)
}

func TestDepartmentHandlerTransitions(t *testing.T) {
	mock := &workflowMock{}
	h := NewDepartmentHandler(mock)

	c, w := newGinContext(http.MethodPost, "/department/applications/s-1/reject", []byte(`{"reason":"incomplete documents"}`))
	c.Params = gin.Params{{Key: "id", Value: "s-1"}}
	withUser(c, hod())
	h.Reject(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "incomplete documents", mock.reason)

	c, w = newGinContext(http.MethodPost, "/department/applications/s-1/approve", nil)
	c.Params = gin.Params{{Key: "id", Value: "s-1"}}
	withUser(c, hod())
	h.Approve(c)
	require.Equal(t, http.StatusOK, w.Code)

	c, w = newGinContext(http.MethodPost, "/department/applications/bulk/reject", []byte(`{"ids":["s-1","s-2"],"reason":"late"}`))
	withUser(c, hod())
	h.BulkReject(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"s-1", "s-2"}, mock.ids)

	assert.Equal(t, []string{"reject:s-1", "approve:s-1", "bulk-reject"}, mock.calls)
}

func TestDepartmentHandlerAlreadyInState(t *testing.T) {
	mock := &workflowMock{err: appErrors.Clone(appErrors.ErrAlreadyInState, "already approved")}
	h := NewDepartmentHandler(mock)
	c, w := newGinContext(http.MethodPost, "/department/applications/s-1/approve", nil)
	c.Params = gin.Params{{Key: "id", Value: "s-1"}}
	withUser(c, hod())
	h.Approve(c)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, appErrors.ErrAlreadyInState.Code, decode(t, w).Error.Code)
}

func TestExaminationHandlerMarksAndPublish(t *testing.T) {
	mock := &workflowMock{}
	h := NewExaminationHandler(mock)

	c, w := newGinContext(http.MethodPut, "/examinations/e-1/marks/written", []byte(`{"marks":"Ab"}`))
	c.Params = gin.Params{{Key: "id", Value: "e-1"}}
	withUser(c, director())
	h.UpdateWrittenMarks(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Ab", mock.raw)

	c, w = newGinContext(http.MethodPut, "/examinations/e-1/marks/interview", []byte(`{"marks":""}`))
	c.Params = gin.Params{{Key: "id", Value: "e-1"}}
	withUser(c, director())
	h.UpdateInterviewMarks(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "", mock.raw)

	c, w = newGinContext(http.MethodPut, "/examinations/e-1/marks/written70", []byte(`{}`))
	c.Params = gin.Params{{Key: "id", Value: "e-1"}}
	withUser(c, director())
	h.UpdateWrittenMarks70(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	c, w = newGinContext(http.MethodPost, "/examinations/publish", []byte(`{"faculty":"Engineering","ids":["e-1"]}`))
	withUser(c, director())
	h.Publish(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Engineering", mock.reason)
	assert.Equal(t, []string{"written:e-1", "interview:e-1", "publish"}, mock.calls)
}

type exportJobsMock struct {
	created  dto.ExportRequest
	status   *dto.ExportStatusResponse
	download *service.ExportDownload
	err      error
}

func (m *exportJobsMock) CreateJob(_ context.Context, _ models.Actor, req dto.ExportRequest) (*dto.ExportJobResponse, error) {
	m.created = req
	return &dto.ExportJobResponse{ID: "job-1", Status: models.ExportStatusQueued}, nil
}

func (m *exportJobsMock) GetStatus(context.Context, models.Actor, string) (*dto.ExportStatusResponse, error) {
	return m.status, m.err
}

func (m *exportJobsMock) ResolveDownload(context.Context, string) (*service.ExportDownload, error) {
	return m.download, m.err
}

func TestExportHandlerCreateAndStatus(t *testing.T) {
	mock := &exportJobsMock{status: &dto.ExportStatusResponse{ID: "job-1", Status: models.ExportStatusFinished, Progress: 100}}
	h := NewExportHandler(mock)

	c, w := newGinContext(http.MethodPost, "/exports", []byte(`{"faculty":"Engineering","format":"csv","publishedOnly":true}`))
	withUser(c, director())
	h.Create(c)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.True(t, mock.created.PublishedOnly)

	c, w = newGinContext(http.MethodGet, "/exports/job-1", nil)
	c.Params = gin.Params{{Key: "id", Value: "job-1"}}
	withUser(c, director())
	h.Status(c)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestExportHandlerDownload(t *testing.T) {
	file, err := os.CreateTemp(t.TempDir(), "results*.csv")
	require.NoError(t, err)
	_, _ = file.WriteString("Application No\nAPP-1\n")
	_, _ = file.Seek(0, 0)

	mock := &exportJobsMock{download: &service.ExportDownload{
		File:      file,
		Filename:  "results.csv",
		Format:    models.ExportFormatCSV,
		ExpiresAt: time.Now().Add(time.Hour),
	}}
	h := NewExportHandler(mock)

	c, w := newGinContext(http.MethodGet, "/exports/download/tok", nil)
	c.Params = gin.Params{{Key: "token", Value: "tok"}}
	h.Download(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "results.csv")
	assert.Equal(t, "text/csv; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Equal(t, "Application No\nAPP-1\n", w.Body.String())

	mock.err = appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")
	c, w = newGinContext(http.MethodGet, "/exports/download/bad", nil)
	c.Params = gin.Params{{Key: "token", Value: "bad"}}
	h.Download(c)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestEventVisibility(t *testing.T) {
	mechanical := &models.Scholar{ID: "s-1", Department: "MECHANICAL ENGINEERING", Faculty: "Engineering And Technology"}
	physics := &models.Scholar{ID: "s-2", Department: "PHYSICS", Faculty: "Science And Humanities"}
	scoped := models.ActorFromClaims(hod())

	assert.True(t, visible(scoped, models.WorkflowEvent{Record: mechanical}))
	assert.False(t, visible(scoped, models.WorkflowEvent{Record: physics}))
	assert.False(t, visible(scoped, models.WorkflowEvent{}))
	assert.True(t, visible(models.ActorFromClaims(director()), models.WorkflowEvent{Record: physics}))
}

func TestMetricsHandlerReady(t *testing.T) {
	h := NewMetricsHandler(service.NewMetricsService(), map[string]Pinger{
		"postgres": PingerFunc(func(context.Context) error { return nil }),
	})
	c, w := newGinContext(http.MethodGet, "/ready", nil)
	h.Ready(c)
	assert.Equal(t, http.StatusOK, w.Code)

	h.checks["redis"] = PingerFunc(func(context.Context) error { return errors.New("connection refused") })
	c, w = newGinContext(http.MethodGet, "/ready", nil)
	h.Ready(c)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "connection refused")
}
