package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/scholar-admissions-api/internal/models"
	appErrors "github.com/noah-isme/scholar-admissions-api/pkg/errors"
)

func newExaminationService(store *stubScholarStore, opts ...WorkflowOption) *ExaminationService {
	return NewExaminationService(store, zap.NewNop(), opts...)
}

func examRecord(id string) models.Scholar {
	rec := mech(id)
	rec.Status = "pending"
	return rec
}

func TestForwardWrittenGuardsAlreadyForwarded(t *testing.T) {
	rec := examRecord("e-1")
	rec.Faculty = "Faculty of Engineering & Technology"
	store := newStubScholarStore(models.TableExaminations, rec)
	svc := newExaminationService(store)

	updated, err := svc.ForwardWritten(context.Background(), directorActor, "e-1")
	require.NoError(t, err)
	assert.Equal(t, "forwarded", updated.Status)
	assert.Equal(t, "Forwarded to Engineering", models.Str(updated.FacultyWritten))

	_, err = svc.ForwardWritten(context.Background(), directorActor, "e-1")
	assert.True(t, appErrors.IsCode(err, appErrors.ErrAlreadyInState.Code))
}

func TestForwardWrittenUsesInstitutionThenDefault(t *testing.T) {
	science := examRecord("e-1")
	science.Institution = "Science And Humanities"
	unknown := examRecord("e-2")
	unknown.Institution = "Directorate"
	store := newStubScholarStore(models.TableExaminations, science, unknown)
	svc := newExaminationService(store)

	updated, err := svc.ForwardWritten(context.Background(), directorActor, "e-1")
	require.NoError(t, err)
	assert.Equal(t, "Forwarded to Science", models.Str(updated.FacultyWritten))

	updated, err = svc.ForwardWritten(context.Background(), directorActor, "e-2")
	require.NoError(t, err)
	assert.Equal(t, "Forwarded to Engineering", models.Str(updated.FacultyWritten))
}

func TestTotalAppearsOnlyAfterBothForwards(t *testing.T) {
	rec := examRecord("e-1")
	rec.WrittenMarks = models.Score(49)
	rec.InterviewMarks = models.Score(25)
	store := newStubScholarStore(models.TableExaminations, rec)
	svc := newExaminationService(store)

	updated, err := svc.ForwardInterview(context.Background(), directorActor, "e-1")
	require.NoError(t, err)
	assert.Equal(t, "Forwarded_To_Engineering", models.Str(updated.FacultyInterview))
	assert.True(t, updated.TotalMarks.IsUnset())

	updated, err = svc.ForwardToDirector(context.Background(), mechHOD, "e-1")
	require.NoError(t, err)
	assert.Equal(t, "Forwarded to Director", models.Str(updated.DirectorInterview))
	assert.Equal(t, models.Score(74), updated.TotalMarks.Mark)

	_, err = svc.ForwardToDirector(context.Background(), mechHOD, "e-1")
	assert.True(t, appErrors.IsCode(err, appErrors.ErrAlreadyInState.Code))
}

func TestUpdateWrittenMarksScalesAndValidates(t *testing.T) {
	rec := examRecord("e-1")
	rec.FacultyInterview = models.StrPtr("Forwarded_To_Engineering")
	rec.DirectorInterview = models.StrPtr("Forwarded to Director")
	rec.InterviewMarks = models.Score(20)
	store := newStubScholarStore(models.TableExaminations, rec)
	svc := newExaminationService(store)

	_, err := svc.UpdateWrittenMarks(context.Background(), directorActor, "e-1", "101")
	assert.True(t, appErrors.IsCode(err, appErrors.ErrValidation.Code))
	_, err = svc.UpdateWrittenMarks(context.Background(), directorActor, "e-1", "abc")
	assert.True(t, appErrors.IsCode(err, appErrors.ErrValidation.Code))
	assert.Zero(t, store.updates)

	updated, err := svc.UpdateWrittenMarks(context.Background(), directorActor, "e-1", "70")
	require.NoError(t, err)
	assert.Equal(t, models.Score(70), updated.WrittenMarks100)
	assert.Equal(t, models.Score(49), updated.WrittenMarks)
	assert.Equal(t, models.Score(69), updated.TotalMarks.Mark)
}

func TestAbsenceRuleThroughService(t *testing.T) {
	rec := examRecord("e-1")
	rec.FacultyInterview = models.StrPtr("Forwarded_To_Engineering")
	rec.DirectorInterview = models.StrPtr("Forwarded to Director")
	store := newStubScholarStore(models.TableExaminations, rec)
	svc := newExaminationService(store)

	_, err := svc.UpdateWrittenMarks(context.Background(), directorActor, "e-1", "Ab")
	require.NoError(t, err)
	updated, err := svc.UpdateInterviewMarks(context.Background(), directorActor, "e-1", "25")
	require.NoError(t, err)
	assert.True(t, updated.TotalMarks.IsUnset())

	updated, err = svc.UpdateInterviewMarks(context.Background(), directorActor, "e-1", "ab")
	require.NoError(t, err)
	assert.True(t, updated.TotalMarks.IsAbsent())

	_, err = svc.UpdateInterviewMarks(context.Background(), directorActor, "e-1", "31")
	assert.True(t, appErrors.IsCode(err, appErrors.ErrValidation.Code))

	updated, err = svc.UpdateWrittenMarks70(context.Background(), directorActor, "e-1", "60")
	require.NoError(t, err)
	assert.True(t, updated.TotalMarks.IsUnset())
}

func TestPublishResultsScopesToVisibleSet(t *testing.T) {
	eng := examRecord("e-1")
	published := examRecord("e-2")
	published.ResultDir = models.StrPtr("Published to Engineering")
	science := examRecord("e-3")
	science.Institution = "Science And Humanities"
	store := newStubScholarStore(models.TableExaminations, eng, published, science)
	svc := newExaminationService(store)

	result, err := svc.PublishResults(context.Background(), directorActor, "Faculty of Engineering & Technology", []string{"e-1", "e-2", "e-3", "e-1"})
	require.NoError(t, err)
	assert.Equal(t, 1, result.SuccessCount)
	assert.Equal(t, 2, result.ErrorCount)
	require.Len(t, result.Items, 3)
	assert.True(t, result.Items[0].Success)
	assert.Equal(t, appErrors.ErrAlreadyInState.Code, result.Items[1].Code)
	assert.Equal(t, appErrors.ErrForbidden.Code, result.Items[2].Code)

	assert.Equal(t, "Published to Engineering", models.Str(store.get("e-1").ResultDir))
	assert.Nil(t, store.get("e-3").ResultDir)
}

func TestPublishResultsRejectsOtherFacultyKeywordMatch(t *testing.T) {
	medical := examRecord("m-1")
	medical.Institution = "Medical And Health Sciences"
	medical.Department = "Pharmacology"
	store := newStubScholarStore(models.TableExaminations, medical)
	svc := newExaminationService(store)

	result, err := svc.PublishResults(context.Background(), directorActor, "Science", []string{"m-1"})
	require.NoError(t, err)
	assert.Equal(t, 0, result.SuccessCount)
	require.Len(t, result.Items, 1)
	assert.Equal(t, appErrors.ErrForbidden.Code, result.Items[0].Code)
	assert.Nil(t, store.get("m-1").ResultDir)
}

func TestPublishResultsValidation(t *testing.T) {
	store := newStubScholarStore(models.TableExaminations, examRecord("e-1"))
	svc := newExaminationService(store)

	_, err := svc.PublishResults(context.Background(), directorActor, "Engineering", nil)
	assert.True(t, appErrors.IsCode(err, appErrors.ErrValidation.Code))
	_, err = svc.PublishResults(context.Background(), directorActor, "Directorate", []string{"e-1"})
	assert.True(t, appErrors.IsCode(err, appErrors.ErrValidation.Code))

	store.selectErr = errors.New("db down")
	_, err = svc.PublishResults(context.Background(), directorActor, "Engineering", []string{"e-1"})
	assert.True(t, appErrors.IsCode(err, appErrors.ErrPersistence.Code))
}

func TestPublishResultsPersistenceFailure(t *testing.T) {
	store := newStubScholarStore(models.TableExaminations, examRecord("e-1"))
	store.failUpdate["e-1"] = errors.New("deadlock")
	svc := newExaminationService(store)

	result, err := svc.PublishResults(context.Background(), directorActor, "Engineering", []string{"e-1"})
	require.NoError(t, err)
	assert.Equal(t, 1, result.ErrorCount)
	assert.Equal(t, appErrors.ErrPersistence.Code, result.Items[0].Code)
}

func TestBulkForwardInterview(t *testing.T) {
	store := newStubScholarStore(models.TableExaminations, examRecord("e-1"), examRecord("e-2"))
	svc := newExaminationService(store, WithBulkConcurrency(2))

	result, err := svc.BulkForwardInterview(context.Background(), directorActor, []string{"e-1", "missing", "e-2"})
	require.NoError(t, err)
	assert.Equal(t, 2, result.SuccessCount)
	assert.Equal(t, appErrors.ErrNotFound.Code, result.Items[1].Code)

	result, err = svc.BulkForwardWritten(context.Background(), directorActor, []string{"e-1", "e-2"})
	require.NoError(t, err)
	assert.Equal(t, 2, result.SuccessCount)
}
