package admissions

import (
	"fmt"
	"math"
	"strings"

	"github.com/noah-isme/scholar-admissions-api/internal/models"
	appErrors "github.com/noah-isme/scholar-admissions-api/pkg/errors"
)

// Edit bounds per surface.
const (
	MaxWritten100 = 100
	MaxWritten70  = 70
	MaxInterview  = 30
)

// Qualification is the pass/fail outcome derived from the total.
type Qualification string

const (
	Qualified    Qualification = "Qualified"
	NotQualified Qualification = "Not Qualified"
	QualAbsent   Qualification = "Absent"
	QualPending  Qualification = "Pending"
)

// MarkSheet is the mark-related slice of a record.
type MarkSheet struct {
	Written100        models.Mark
	Written           models.Mark
	Interview         models.Mark
	Total             models.Mark
	FacultyInterview  string
	DirectorInterview string
}

// SheetOf extracts the mark sheet of a record.
func SheetOf(s *models.Scholar) MarkSheet {
	return MarkSheet{
		Written100:        s.WrittenMarks100,
		Written:           s.WrittenMarks,
		Interview:         s.InterviewMarks,
		Total:             s.TotalMarks.Mark,
		FacultyInterview:  models.Str(s.FacultyInterview),
		DirectorInterview: models.Str(s.DirectorInterview),
	}
}

// Patch renders the mark columns of the sheet.
func (m MarkSheet) Patch() models.ScholarPatch {
	return models.ScholarPatch{
		"written_marks_100": m.Written100,
		"written_marks":     m.Written,
		"interview_marks":   m.Interview,
		"total_marks":       models.Total(m.Total),
	}
}

// ParseMark parses raw input; see models.ParseMark for the accepted forms.
func ParseMark(raw string) (models.Mark, error) {
	m, err := models.ParseMark(raw)
	if err != nil {
		return m, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	return m, nil
}

// ScaleWritten converts a 0-100 written mark to the 70 scale.
func ScaleWritten(m models.Mark) models.Mark {
	if !m.IsValue() {
		return m
	}
	return models.Score(math.Round(m.Points / 100 * 70))
}

// MarkersSet reports whether both interview-stage forward markers are present.
func MarkersSet(facultyInterview, directorInterview string) bool {
	return strings.Contains(facultyInterview, prefixInterviewForward) &&
		strings.TrimSpace(directorInterview) == textDirector
}

// ComputeTotal derives the total: Absent when both sides are absent, the sum when both are
// numeric and both forward markers are set, unset otherwise.
func ComputeTotal(written, interview models.Mark, facultyInterview, directorInterview string) models.Mark {
	if written.IsAbsent() && interview.IsAbsent() {
		return models.Absent()
	}
	if written.IsValue() && interview.IsValue() && MarkersSet(facultyInterview, directorInterview) {
		return models.Score(written.Points + interview.Points)
	}
	return models.Unset()
}

// Recompute refreshes the total after markers or marks changed.
func (m MarkSheet) Recompute() MarkSheet {
	m.Total = ComputeTotal(m.Written, m.Interview, m.FacultyInterview, m.DirectorInterview)
	return m
}

func parseBounded(raw, field string, max float64) (models.Mark, error) {
	mark, err := ParseMark(raw)
	if err != nil {
		return mark, err
	}
	if mark.IsValue() && (mark.Points < 0 || mark.Points > max) {
		return models.Mark{}, appErrors.Clone(appErrors.ErrValidation,
			fmt.Sprintf("%s must be between 0 and %g or Ab", field, max))
	}
	return mark, nil
}

// ApplyWrittenEdit sets the 0-100 written mark, its 70-scale conversion and the total.
func ApplyWrittenEdit(sheet MarkSheet, raw string) (MarkSheet, error) {
	mark, err := parseBounded(raw, "written_marks_100", MaxWritten100)
	if err != nil {
		return sheet, err
	}
	sheet.Written100 = mark
	sheet.Written = ScaleWritten(mark)
	return sheet.Recompute(), nil
}

// ApplyWritten70Edit sets the 70-scale written mark directly.
func ApplyWritten70Edit(sheet MarkSheet, raw string) (MarkSheet, error) {
	mark, err := parseBounded(raw, "written_marks", MaxWritten70)
	if err != nil {
		return sheet, err
	}
	sheet.Written = mark
	return sheet.Recompute(), nil
}

// ApplyInterviewEdit sets the 0-30 interview mark and the total.
func ApplyInterviewEdit(sheet MarkSheet, raw string) (MarkSheet, error) {
	mark, err := parseBounded(raw, "interview_marks", MaxInterview)
	if err != nil {
		return sheet, err
	}
	sheet.Interview = mark
	return sheet.Recompute(), nil
}

// Qualify classifies a total against the threshold (inclusive).
func Qualify(total models.Mark, threshold float64) Qualification {
	switch {
	case total.IsAbsent():
		return QualAbsent
	case total.IsUnset():
		return QualPending
	case total.Points >= threshold:
		return Qualified
	default:
		return NotQualified
	}
}
