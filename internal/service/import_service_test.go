package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/scholar-admissions-api/internal/models"
	appErrors "github.com/noah-isme/scholar-admissions-api/pkg/errors"
)

func newImportServiceForTest(apps, exams *stubScholarStore, maxRows int) *ImportService {
	exam := NewExaminationService(exams, zap.NewNop())
	return NewImportService(apps, exams, exam, nil, nil, zap.NewNop(), maxRows)
}

func TestImportApplications(t *testing.T) {
	existing := mech("s-1")
	existing.ApplicationNo = "APP-1"
	apps := newStubScholarStore(models.TableApplications, existing)
	svc := newImportServiceForTest(apps, newStubScholarStore(models.TableExaminations), 0)

	sheet := "\ufeffApplication No,Name,Institution,Program,Program Type,Ignored\n" +
		"APP-2,Asha,Engineering And Technology,Ph.D. - MECHANICAL ENGINEERING (Full Time),full time,x\n" +
		"APP-1,Dup Existing,Engineering And Technology,Ph.D. - CIVIL ENGINEERING (Full Time),,\n" +
		"app-2,Dup In File,Engineering And Technology,Ph.D. - CIVIL ENGINEERING (Full Time),,\n" +
		",,,,,\n" +
		"APP-3,,Science And Humanities,Ph.D. - PHYSICS (Full Time),,\n" +
		"APP-4,Ravi,Science And Humanities,Ph.D. - PHYSICS (Part Time),weekend,\n" +
		"APP-5,Meera,Management,Ph.D. - BUSINESS ADMINISTRATION (Part Time External),PTE,\n"

	resp, err := svc.ImportApplications(context.Background(), directorActor, strings.NewReader(sheet))
	require.NoError(t, err)
	assert.Equal(t, 6, resp.Rows)
	assert.Equal(t, 2, resp.SuccessCount)
	assert.Equal(t, 4, resp.ErrorCount)

	codes := map[string]string{}
	for _, e := range resp.Errors {
		codes[e.Key] = e.Code
	}
	assert.Equal(t, appErrors.ErrConflict.Code, codes["APP-1"])
	assert.Equal(t, appErrors.ErrConflict.Code, codes["app-2"])
	assert.Equal(t, appErrors.ErrValidation.Code, codes["APP-3"])
	assert.Equal(t, appErrors.ErrValidation.Code, codes["APP-4"])

	require.Len(t, apps.inserted, 2)
	first := apps.inserted[0]
	assert.Equal(t, "MECHANICAL ENGINEERING", first.Department)
	assert.Equal(t, models.ProgramFullTime, first.ProgramType)
	assert.Equal(t, models.StatusPending, first.Status)
	assert.Equal(t, models.ProgramPartTimeExternal, apps.inserted[1].ProgramType)
}

func TestImportApplicationsRejectsBadSheets(t *testing.T) {
	apps := newStubScholarStore(models.TableApplications)
	svc := newImportServiceForTest(apps, newStubScholarStore(models.TableExaminations), 1)

	_, err := svc.ImportApplications(context.Background(), directorActor, strings.NewReader(""))
	assert.True(t, appErrors.IsCode(err, appErrors.ErrValidation.Code))

	_, err = svc.ImportApplications(context.Background(), directorActor, strings.NewReader("name,program\nA,B\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "application_no")

	_, err = svc.ImportApplications(context.Background(), directorActor, strings.NewReader("application_no,name,program\n"))
	assert.True(t, appErrors.IsCode(err, appErrors.ErrValidation.Code))

	_, err = svc.ImportApplications(context.Background(), directorActor, strings.NewReader("application_no,name,program\nA,B,C\nD,E,F\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds 1 rows")
	assert.Empty(t, apps.inserted)
}

func TestImportMarks(t *testing.T) {
	ready := examRecord("e-1")
	ready.ApplicationNo = "APP-1"
	ready.FacultyInterview = models.StrPtr("Forwarded_To_Engineering")
	ready.DirectorInterview = models.StrPtr("Forwarded to Director")
	partial := examRecord("e-2")
	partial.ApplicationNo = "APP-2"
	partial.InterviewMarks = models.Score(12)
	exams := newStubScholarStore(models.TableExaminations, ready, partial)
	svc := newImportServiceForTest(newStubScholarStore(models.TableApplications), exams, 0)

	sheet := "Application No,Written,Interview\n" +
		"APP-1,80,20\n" +
		"APP-2,Ab,\n" +
		"APP-3,50,10\n" +
		"APP-1,,\n" +
		"APP-2,120,\n"

	resp, err := svc.ImportMarks(context.Background(), directorActor, strings.NewReader(sheet))
	require.NoError(t, err)
	assert.Equal(t, 5, resp.Rows)
	assert.Equal(t, 2, resp.SuccessCount)
	require.Len(t, resp.Errors, 3)
	assert.Equal(t, appErrors.ErrNotFound.Code, resp.Errors[0].Code)
	assert.Equal(t, 3, resp.Errors[0].Row)
	assert.Equal(t, appErrors.ErrValidation.Code, resp.Errors[1].Code)
	assert.Equal(t, appErrors.ErrValidation.Code, resp.Errors[2].Code)

	first := exams.get("e-1")
	assert.Equal(t, models.Score(56), first.WrittenMarks)
	assert.Equal(t, models.Score(76), first.TotalMarks.Mark)

	second := exams.get("e-2")
	assert.True(t, second.WrittenMarks.IsAbsent())
	assert.Equal(t, models.Score(12), second.InterviewMarks)
	assert.True(t, second.TotalMarks.IsUnset())
}

func TestParseProgramType(t *testing.T) {
	cases := map[string]models.ProgramType{
		"":                              "",
		"Full Time":                     models.ProgramFullTime,
		"FT":                            models.ProgramFullTime,
		"part-time internal":            models.ProgramPartTimeInternal,
		"Part Time External (Industry)": models.ProgramPartTimeExternalIndustry,
	}
	for raw, want := range cases {
		got, ok := parseProgramType(raw)
		require.True(t, ok, raw)
		assert.Equal(t, want, got, raw)
	}
	_, ok := parseProgramType("distance")
	assert.False(t, ok)
}
