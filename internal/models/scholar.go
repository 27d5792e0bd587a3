package models

import (
	"database/sql/driver"
	"fmt"
	"strings"
	"time"
)

// ScholarTable names the store table a record lives in.
type ScholarTable string

const (
	TableApplications ScholarTable = "scholar_applications"
	TableExaminations ScholarTable = "examination_records"
)

// Valid reports whether the table is one of the known scholar tables.
func (t ScholarTable) Valid() bool {
	return t == TableApplications || t == TableExaminations
}

// DeptReview is the department's decision on an application.
type DeptReview string

const (
	ReviewPending       DeptReview = "Pending"
	ReviewApproved      DeptReview = "Approved"
	ReviewRejected      DeptReview = "Rejected"
	ReviewQuery         DeptReview = "Query"
	ReviewQueryResolved DeptReview = "Query Resolved"
)

// Normalize maps empty values to Pending.
func (r DeptReview) Normalize() DeptReview {
	if strings.TrimSpace(string(r)) == "" {
		return ReviewPending
	}
	return r
}

// Actionable reports whether approve, reject or query may act on the review.
func (r DeptReview) Actionable() bool {
	switch r.Normalize() {
	case ReviewPending, ReviewQueryResolved:
		return true
	default:
		return false
	}
}

// Scan implements sql.Scanner; NULL reads as Pending.
func (r *DeptReview) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*r = ReviewPending
	case []byte:
		*r = DeptReview(v).Normalize()
	case string:
		*r = DeptReview(v).Normalize()
	default:
		return fmt.Errorf("unsupported type %T for DeptReview", src)
	}
	return nil
}

// Value implements driver.Valuer.
func (r DeptReview) Value() (driver.Value, error) {
	return string(r.Normalize()), nil
}

// ProgramType enumerates study modes.
type ProgramType string

const (
	ProgramFullTime                 ProgramType = "Full Time"
	ProgramPartTimeInternal         ProgramType = "Part Time Internal"
	ProgramPartTimeExternal         ProgramType = "Part Time External"
	ProgramPartTimeExternalIndustry ProgramType = "Part Time External (Industry)"
)

// Valid reports whether the program type is known or blank.
func (p ProgramType) Valid() bool {
	switch p {
	case "", ProgramFullTime, ProgramPartTimeInternal, ProgramPartTimeExternal, ProgramPartTimeExternalIndustry:
		return true
	default:
		return false
	}
}

// StatusPending is the initial pipeline marker of a new record.
const StatusPending = "pending"

// Scholar is one applicant row shared by the application and examination phases.
type Scholar struct {
	ID                string      `db:"id" json:"id"`
	ApplicationNo     string      `db:"application_no" json:"application_no"`
	Name              string      `db:"name" json:"name"`
	Faculty           string      `db:"faculty" json:"faculty"`
	Institution       string      `db:"institution" json:"institution"`
	Department        string      `db:"department" json:"department"`
	Program           string      `db:"program" json:"program"`
	ProgramType       ProgramType `db:"program_type" json:"program_type"`
	Status            string      `db:"status" json:"status"`
	FacultyStatus     *string     `db:"faculty_status" json:"faculty_status,omitempty"`
	DeptReview        DeptReview  `db:"dept_review" json:"dept_review"`
	DeptStatus        *string     `db:"dept_status" json:"dept_status,omitempty"`
	DeptQuery         *string     `db:"dept_query" json:"dept_query,omitempty"`
	QueryTimestamp    *time.Time  `db:"query_timestamp" json:"query_timestamp,omitempty"`
	RejectReason      *string     `db:"reject_reason" json:"reject_reason,omitempty"`
	FacultyForward    *string     `db:"faculty_forward" json:"faculty_forward,omitempty"`
	WrittenMarks100   Mark        `db:"written_marks_100" json:"written_marks_100"`
	WrittenMarks      Mark        `db:"written_marks" json:"written_marks"`
	InterviewMarks    Mark        `db:"interview_marks" json:"interview_marks"`
	TotalMarks        TotalMark   `db:"total_marks" json:"total_marks"`
	FacultyWritten    *string     `db:"faculty_written" json:"faculty_written,omitempty"`
	DirectorInterview *string     `db:"director_interview" json:"director_interview,omitempty"`
	FacultyInterview  *string     `db:"faculty_interview" json:"faculty_interview,omitempty"`
	Panel             *string     `db:"panel" json:"panel,omitempty"`
	Examiner1         *string     `db:"examiner1" json:"examiner1,omitempty"`
	Examiner2         *string     `db:"examiner2" json:"examiner2,omitempty"`
	Examiner3         *string     `db:"examiner3" json:"examiner3,omitempty"`
	ResultDir         *string     `db:"result_dir" json:"result_dir,omitempty"`
	CreatedAt         time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time   `db:"updated_at" json:"updated_at"`
}

// ScholarColumns lists the persisted columns in table order.
var ScholarColumns = []string{
	"id", "application_no", "name", "faculty", "institution", "department", "program", "program_type",
	"status", "faculty_status", "dept_review", "dept_status", "dept_query", "query_timestamp",
	"reject_reason", "faculty_forward", "written_marks_100", "written_marks", "interview_marks",
	"total_marks", "faculty_written", "director_interview", "faculty_interview", "panel",
	"examiner1", "examiner2", "examiner3", "result_dir", "created_at", "updated_at",
}

// Str returns the value of an optional text column or "".
func Str(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

// StrPtr returns nil for blank strings.
func StrPtr(v string) *string {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return &v
}

// ConditionOp is the comparison used by a filter condition.
type ConditionOp string

const (
	OpEq     ConditionOp = "eq"
	OpIn     ConditionOp = "in"
	OpILike  ConditionOp = "ilike"
	OpIsNull ConditionOp = "is_null"
)

// Condition is one column predicate.
type Condition struct {
	Column string
	Op     ConditionOp
	Values []interface{}
}

// Eq matches a column exactly.
func Eq(column string, value interface{}) Condition {
	return Condition{Column: column, Op: OpEq, Values: []interface{}{value}}
}

// In matches any of the given values.
func In(column string, values ...interface{}) Condition {
	return Condition{Column: column, Op: OpIn, Values: values}
}

// ILike matches a case-insensitive pattern; callers supply the wildcards.
func ILike(column, pattern string) Condition {
	return Condition{Column: column, Op: OpILike, Values: []interface{}{pattern}}
}

// IsNull matches missing values.
func IsNull(column string) Condition {
	return Condition{Column: column, Op: OpIsNull}
}

// ScholarFilter selects rows: every condition in All must hold, and when AnyOf is non-empty
// at least one of its AND-groups must hold as well.
type ScholarFilter struct {
	All     []Condition
	AnyOf   [][]Condition
	OrderBy string
	Limit   int
}

// Empty reports whether the filter places no constraint.
func (f ScholarFilter) Empty() bool {
	return len(f.All) == 0 && len(f.AnyOf) == 0
}

// ScholarPatch maps column names to new values; nil values clear the column.
type ScholarPatch map[string]interface{}

// Set records a column assignment and returns the patch for chaining.
func (p ScholarPatch) Set(column string, value interface{}) ScholarPatch {
	p[column] = value
	return p
}

// Clear records a NULL assignment.
func (p ScholarPatch) Clear(columns ...string) ScholarPatch {
	for _, column := range columns {
		p[column] = nil
	}
	return p
}
