package service

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/scholar-admissions-api/internal/dto"
	"github.com/noah-isme/scholar-admissions-api/internal/models"
	"github.com/noah-isme/scholar-admissions-api/internal/repository"
	appErrors "github.com/noah-isme/scholar-admissions-api/pkg/errors"
	"github.com/noah-isme/scholar-admissions-api/pkg/jobs"
	"github.com/noah-isme/scholar-admissions-api/pkg/storage"
)

type exportRepoStub struct {
	jobs map[string]*models.ExportJob
}

func newExportRepoStub() *exportRepoStub {
	return &exportRepoStub{jobs: map[string]*models.ExportJob{}}
}

func (r *exportRepoStub) Create(ctx context.Context, job *models.ExportJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	r.jobs[job.ID] = job
	return nil
}

func (r *exportRepoStub) GetByID(ctx context.Context, id string) (*models.ExportJob, error) {
	job, ok := r.jobs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return job, nil
}

func (r *exportRepoStub) Update(ctx context.Context, id string, params repository.UpdateExportJobParams) error {
	job, ok := r.jobs[id]
	if !ok {
		return sql.ErrNoRows
	}
	if params.Status != nil {
		job.Status = *params.Status
	}
	if params.Progress != nil {
		job.Progress = *params.Progress
	}
	if params.ResultURL != nil {
		job.ResultURL = params.ResultURL
	}
	if params.ErrorMessage != nil {
		job.ErrorMessage = params.ErrorMessage
	}
	if params.FinishedAt != nil {
		job.FinishedAt = params.FinishedAt
	}
	return nil
}

func (r *exportRepoStub) ListQueued(ctx context.Context, limit int) ([]models.ExportJob, error) {
	var queued []models.ExportJob
	for _, job := range r.jobs {
		if job.Status == models.ExportStatusQueued || job.Status == models.ExportStatusProcessing {
			queued = append(queued, *job)
		}
	}
	return queued, nil
}

func (r *exportRepoStub) ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.ExportJob, error) {
	var out []models.ExportJob
	for _, job := range r.jobs {
		if job.Status == models.ExportStatusFinished && job.FinishedAt != nil && job.FinishedAt.Before(cutoff) {
			out = append(out, *job)
		}
	}
	return out, nil
}

type queueStub struct {
	jobs []jobs.Job
	err  error
}

func (q *queueStub) Enqueue(job jobs.Job) error {
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func resultFixtures() []models.Scholar {
	first := examRecord("r-1")
	first.ApplicationNo = "APP-002"
	first.WrittenMarks = models.Score(49)
	first.InterviewMarks = models.Score(25)
	first.TotalMarks = models.Total(models.Score(74))
	first.ResultDir = models.StrPtr("Published to Engineering")

	second := examRecord("r-2")
	second.ApplicationNo = "APP-001"
	second.Name = "Absent, Scholar"
	second.WrittenMarks = models.Absent()
	second.InterviewMarks = models.Absent()
	second.TotalMarks = models.Total(models.Absent())

	civil := examRecord("r-3")
	civil.ApplicationNo = "APP-003"
	civil.Department = "Civil Engineering"
	civil.Program = "Ph.D. - CIVIL ENGINEERING (Full Time)"

	science := examRecord("r-4")
	science.Institution = "Science And Humanities"
	return []models.Scholar{first, second, civil, science}
}

func newExportServiceForTest(t *testing.T, records ...models.Scholar) (*ExportService, *storage.LocalStorage) {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("secret", time.Hour)
	source := newStubScholarStore(models.TableExaminations, records...)
	svc := NewExportService(source, nil, store, signer, ExportConfig{APIPrefix: "/api/v1", ResultTTL: time.Hour}, zap.NewNop(), nil, nil)
	return svc, store
}

func TestExportServiceBuildDataset(t *testing.T) {
	svc, _ := newExportServiceForTest(t, resultFixtures()...)

	data, title, err := svc.BuildDataset(context.Background(), models.ExportJobParams{Faculty: "Faculty of Engineering & Technology"})
	require.NoError(t, err)
	assert.Equal(t, "Results - Engineering And Technology", title)
	require.Len(t, data.Rows, 3)
	assert.Equal(t, "APP-001", data.Rows[0][colApplicationNo])
	assert.Equal(t, "Ab", data.Rows[0][colWritten])
	assert.Equal(t, models.AbsentTotal, data.Rows[0][colTotal])
	assert.Equal(t, "Absent", data.Rows[0][colResult])
	assert.Equal(t, "74", data.Rows[1][colTotal])
	assert.Equal(t, "Qualified", data.Rows[1][colResult])
	assert.Equal(t, "Pending", data.Rows[2][colResult])

	data, title, err = svc.BuildDataset(context.Background(), models.ExportJobParams{Faculty: "Engineering", Department: "Mechanical Engineering", PublishedOnly: true})
	require.NoError(t, err)
	assert.Equal(t, "Results - Engineering And Technology / Mechanical Engineering", title)
	require.Len(t, data.Rows, 1)
	assert.Equal(t, "APP-002", data.Rows[0][colApplicationNo])

	_, _, err = svc.BuildDataset(context.Background(), models.ExportJobParams{Faculty: "Directorate"})
	assert.True(t, appErrors.IsCode(err, appErrors.ErrValidation.Code))
}

func TestExportServiceGenerateCSV(t *testing.T) {
	svc, store := newExportServiceForTest(t, resultFixtures()...)
	job := &models.ExportJob{ID: "job-1", Params: models.ExportJobParams{Faculty: "Engineering", Format: models.ExportFormatCSV}}

	result, err := svc.Generate(context.Background(), job)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(result.URL, "/api/v1/exports/download/"))
	assert.Equal(t, 3, result.Rows)
	assert.True(t, strings.HasSuffix(result.RelativePath, "job-1.csv"))

	raw, err := os.ReadFile(store.Path(result.RelativePath))
	require.NoError(t, err)
	content := strings.TrimPrefix(string(raw), "\ufeff")
	lines := strings.Split(strings.TrimSpace(content), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "Application No,Name,Department,Program Type,Written (70),Interview (30),Total,Result", lines[0])
	assert.Contains(t, lines[1], `"Absent, Scholar"`)
}

func TestExportServiceGeneratePDF(t *testing.T) {
	svc, store := newExportServiceForTest(t, resultFixtures()...)
	job := &models.ExportJob{ID: "job-2", Params: models.ExportJobParams{Faculty: "Engineering", Format: models.ExportFormatPDF}}

	result, err := svc.Generate(context.Background(), job)
	require.NoError(t, err)
	require.Equal(t, models.ExportFormatPDF, result.Format)

	info, err := os.Stat(filepath.Clean(store.Path(result.RelativePath)))
	require.NoError(t, err)
	require.Greater(t, info.Size(), int64(0))
}

func newExportJobServiceForTest(t *testing.T) (*ExportJobService, *exportRepoStub, *queueStub, *ExportService) {
	t.Helper()
	repo := newExportRepoStub()
	queue := &queueStub{}
	exportSvc, _ := newExportServiceForTest(t, resultFixtures()...)
	svc := NewExportJobService(repo, queue, exportSvc, nil, zap.NewNop(), ExportJobConfig{ResultTTL: time.Hour, CleanupInterval: time.Hour})
	return svc, repo, queue, exportSvc
}

func TestExportJobServiceCreateJob(t *testing.T) {
	svc, repo, queue, _ := newExportJobServiceForTest(t)

	resp, err := svc.CreateJob(context.Background(), directorActor, dto.ExportRequest{Faculty: " Engineering ", Format: models.ExportFormatCSV})
	require.NoError(t, err)
	require.NotEmpty(t, resp.ID)
	require.Len(t, queue.jobs, 1)
	assert.Equal(t, ExportJobType, queue.jobs[0].Type)
	assert.Equal(t, models.ExportStatusQueued, resp.Status)
	assert.Equal(t, "Engineering", repo.jobs[resp.ID].Params.Faculty)
	assert.Equal(t, models.TableExaminations, repo.jobs[resp.ID].Params.Table)
	assert.Equal(t, directorActor.UserID, repo.jobs[resp.ID].CreatedBy)

	_, err = svc.CreateJob(context.Background(), directorActor, dto.ExportRequest{Faculty: "Engineering", Format: "xlsx"})
	assert.True(t, appErrors.IsCode(err, appErrors.ErrValidation.Code))
}

func TestExportJobServiceCreateJobEnqueueFailure(t *testing.T) {
	svc, repo, queue, _ := newExportJobServiceForTest(t)
	queue.err = jobs.ErrQueueFull

	_, err := svc.CreateJob(context.Background(), directorActor, dto.ExportRequest{Faculty: "Science", Format: models.ExportFormatPDF})
	require.Error(t, err)
	require.Len(t, repo.jobs, 1)
	for _, job := range repo.jobs {
		assert.Equal(t, models.ExportStatusFailed, job.Status)
		assert.NotNil(t, job.FinishedAt)
	}
}

func TestExportJobServiceGetStatus(t *testing.T) {
	svc, repo, _, _ := newExportJobServiceForTest(t)
	repo.jobs["job-1"] = &models.ExportJob{ID: "job-1", Status: models.ExportStatusFinished, Progress: 100, CreatedBy: directorActor.UserID}

	resp, err := svc.GetStatus(context.Background(), directorActor, "job-1")
	require.NoError(t, err)
	assert.Equal(t, models.ExportStatusFinished, resp.Status)
	assert.Equal(t, 100, resp.Progress)

	admin := models.Actor{UserID: "admin-1", Role: models.RoleAdmin}
	_, err = svc.GetStatus(context.Background(), admin, "job-1")
	require.NoError(t, err)

	other := models.Actor{UserID: "director-2", Role: models.RoleDirector}
	_, err = svc.GetStatus(context.Background(), other, "job-1")
	assert.True(t, appErrors.IsCode(err, appErrors.ErrForbidden.Code))

	_, err = svc.GetStatus(context.Background(), directorActor, "missing")
	assert.True(t, appErrors.IsCode(err, appErrors.ErrNotFound.Code))
}

func TestExportJobServiceResolveDownload(t *testing.T) {
	svc, repo, _, exportSvc := newExportJobServiceForTest(t)
	job := &models.ExportJob{
		ID:        "job-download",
		Params:    models.ExportJobParams{Faculty: "Engineering", Format: models.ExportFormatCSV},
		Status:    models.ExportStatusProcessing,
		CreatedBy: directorActor.UserID,
	}
	repo.jobs[job.ID] = job
	result, err := exportSvc.Generate(context.Background(), job)
	require.NoError(t, err)
	job.ResultURL = &result.URL

	_, err = svc.ResolveDownload(context.Background(), result.Token)
	assert.True(t, appErrors.IsCode(err, appErrors.ErrForbidden.Code))

	job.Status = models.ExportStatusFinished
	download, err := svc.ResolveDownload(context.Background(), result.Token)
	require.NoError(t, err)
	assert.Equal(t, filepath.Base(result.RelativePath), download.Filename)
	assert.Equal(t, models.ExportFormatCSV, download.Format)
	require.NoError(t, download.File.Close())

	_, err = svc.ResolveDownload(context.Background(), result.Token+"x")
	assert.True(t, appErrors.IsCode(err, appErrors.ErrForbidden.Code))
}

func TestExportJobServiceRecoverAndExhausted(t *testing.T) {
	svc, repo, queue, _ := newExportJobServiceForTest(t)
	repo.jobs["a"] = &models.ExportJob{ID: "a", Status: models.ExportStatusQueued}
	repo.jobs["b"] = &models.ExportJob{ID: "b", Status: models.ExportStatusFinished}

	assert.Equal(t, 1, svc.RecoverPendingJobs(context.Background()))
	require.Len(t, queue.jobs, 1)
	assert.Equal(t, "a", queue.jobs[0].ID)

	svc.MarkExhausted(jobs.Job{ID: "a"}, errors.New("renderer crashed"))
	assert.Equal(t, models.ExportStatusFailed, repo.jobs["a"].Status)
	assert.Equal(t, "renderer crashed", models.Str(repo.jobs["a"].ErrorMessage))
}

func TestExportJobServiceCleanupExpired(t *testing.T) {
	svc, repo, _, exportSvc := newExportJobServiceForTest(t)
	job := &models.ExportJob{ID: "old", Params: models.ExportJobParams{Faculty: "Engineering", Format: models.ExportFormatCSV}}
	result, err := exportSvc.Generate(context.Background(), job)
	require.NoError(t, err)
	finished := time.Now().Add(-2 * time.Hour)
	job.Status = models.ExportStatusFinished
	job.FinishedAt = &finished
	job.ResultURL = &result.URL
	repo.jobs[job.ID] = job

	svc.cleanupExpired(context.Background())
	_, err = exportSvc.Open(result.RelativePath)
	assert.Error(t, err)
}

type exportStub struct {
	result *ExportResult
	err    error
}

func (e exportStub) Generate(ctx context.Context, job *models.ExportJob) (*ExportResult, error) {
	if e.err != nil {
		return nil, e.err
	}
	return e.result, nil
}

func queuedExport(id string) *exportRepoStub {
	return &exportRepoStub{jobs: map[string]*models.ExportJob{
		id: {
			ID:        id,
			Params:    models.ExportJobParams{Faculty: "Engineering", Format: models.ExportFormatCSV},
			Status:    models.ExportStatusQueued,
			CreatedBy: directorActor.UserID,
		},
	}}
}

func TestExportWorkerHandleSuccess(t *testing.T) {
	repo := queuedExport("job-1")
	worker := NewExportWorker(repo, exportStub{result: &ExportResult{URL: "/api/v1/exports/download/token", Rows: 2}}, 3, zap.NewNop())

	require.NoError(t, worker.Handle(context.Background(), jobs.Job{ID: "job-1"}))
	require.Equal(t, models.ExportStatusFinished, repo.jobs["job-1"].Status)
	require.Equal(t, 100, repo.jobs["job-1"].Progress)
	require.Equal(t, "/api/v1/exports/download/token", models.Str(repo.jobs["job-1"].ResultURL))
}

func TestExportWorkerHandleFailureRequeues(t *testing.T) {
	repo := queuedExport("job-1")
	worker := NewExportWorker(repo, exportStub{err: errors.New("boom")}, 2, zap.NewNop())

	require.Error(t, worker.Handle(context.Background(), jobs.Job{ID: "job-1", Attempt: 0}))
	require.Equal(t, models.ExportStatusQueued, repo.jobs["job-1"].Status)
	require.Equal(t, "boom", models.Str(repo.jobs["job-1"].ErrorMessage))

	require.Error(t, worker.Handle(context.Background(), jobs.Job{ID: "job-1", Attempt: 2}))
	require.Equal(t, models.ExportStatusFailed, repo.jobs["job-1"].Status)
	require.NotNil(t, repo.jobs["job-1"].FinishedAt)
}

func TestExportWorkerSkipsFinishedJobs(t *testing.T) {
	repo := queuedExport("job-1")
	repo.jobs["job-1"].Status = models.ExportStatusFinished
	worker := NewExportWorker(repo, exportStub{err: errors.New("must not run")}, 1, zap.NewNop())

	require.NoError(t, worker.Handle(context.Background(), jobs.Job{ID: "job-1"}))
}
