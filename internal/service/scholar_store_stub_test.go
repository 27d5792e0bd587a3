package service

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/noah-isme/scholar-admissions-api/internal/admissions"
	"github.com/noah-isme/scholar-admissions-api/internal/models"
)

// stubScholarStore is an in-memory scholarStore. Patch values are applied with applyPatch,
// which understands the value types the services write.
type stubScholarStore struct {
	mu         sync.Mutex
	table      models.ScholarTable
	records    map[string]models.Scholar
	order      []string
	failUpdate map[string]error
	selectErr  error
	updates    int
	inserted   []models.Scholar
}

func newStubScholarStore(table models.ScholarTable, records ...models.Scholar) *stubScholarStore {
	s := &stubScholarStore{table: table, records: make(map[string]models.Scholar), failUpdate: make(map[string]error)}
	for _, rec := range records {
		s.records[rec.ID] = rec
		s.order = append(s.order, rec.ID)
	}
	return s
}

func (s *stubScholarStore) Table() models.ScholarTable { return s.table }

func (s *stubScholarStore) get(id string) models.Scholar {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records[id]
}

func (s *stubScholarStore) Select(ctx context.Context, filter models.ScholarFilter) ([]models.Scholar, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selectErr != nil {
		return nil, s.selectErr
	}
	out := make([]models.Scholar, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.records[id])
	}
	return out, nil
}

func (s *stubScholarStore) FindByID(ctx context.Context, id string) (*models.Scholar, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &rec, nil
}

func (s *stubScholarStore) FindByIDs(ctx context.Context, ids []string) ([]models.Scholar, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Scholar, 0, len(ids))
	for _, id := range ids {
		if rec, ok := s.records[id]; ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *stubScholarStore) Update(ctx context.Context, id string, patch models.ScholarPatch) (*models.Scholar, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failUpdate[id]; err != nil {
		return nil, err
	}
	rec, ok := s.records[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	applyPatch(&rec, patch)
	rec.UpdatedAt = time.Now().UTC()
	s.records[id] = rec
	s.updates++
	return &rec, nil
}

func (s *stubScholarStore) UpdateMany(ctx context.Context, ids []string, patch models.ScholarPatch) ([]models.Scholar, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		if err := s.failUpdate[id]; err != nil {
			return nil, err
		}
	}
	out := make([]models.Scholar, 0, len(ids))
	for _, id := range ids {
		rec, ok := s.records[id]
		if !ok {
			continue
		}
		applyPatch(&rec, patch)
		s.records[id] = rec
		s.updates++
		out = append(out, rec)
	}
	return out, nil
}

func (s *stubScholarStore) Insert(ctx context.Context, rows []models.Scholar) ([]models.Scholar, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Scholar, 0, len(rows))
	for i, rec := range rows {
		if rec.ID == "" {
			rec.ID = "new-" + string(rune('a'+len(s.order)+i))
		}
		rec.DeptReview = rec.DeptReview.Normalize()
		s.records[rec.ID] = rec
		s.order = append(s.order, rec.ID)
		s.inserted = append(s.inserted, rec)
		out = append(out, rec)
	}
	return out, nil
}

func (s *stubScholarStore) Delete(ctx context.Context, filter models.ScholarFilter) ([]models.Scholar, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if filter.Empty() {
		return nil, errors.New("refusing unfiltered delete")
	}
	targets := make(map[string]bool)
	for _, cond := range filter.All {
		if cond.Column == "id" {
			for _, v := range cond.Values {
				targets[v.(string)] = true
			}
		}
	}
	var out []models.Scholar
	kept := s.order[:0]
	for _, id := range s.order {
		if targets[id] {
			out = append(out, s.records[id])
			delete(s.records, id)
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept
	return out, nil
}

func optional(v interface{}) *string {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		return &t
	case *string:
		return t
	default:
		return nil
	}
}

func applyPatch(rec *models.Scholar, patch models.ScholarPatch) {
	columns := make([]string, 0, len(patch))
	for c := range patch {
		columns = append(columns, c)
	}
	sort.Strings(columns)
	for _, column := range columns {
		v := patch[column]
		switch column {
		case "status":
			rec.Status = v.(string)
		case "dept_review":
			rec.DeptReview = v.(models.DeptReview)
		case "dept_status":
			rec.DeptStatus = optional(v)
		case "dept_query":
			rec.DeptQuery = optional(v)
		case "query_timestamp":
			if ts, ok := v.(time.Time); ok {
				rec.QueryTimestamp = &ts
			} else {
				rec.QueryTimestamp = nil
			}
		case "reject_reason":
			rec.RejectReason = optional(v)
		case "faculty_forward":
			rec.FacultyForward = optional(v)
		case "faculty_written":
			rec.FacultyWritten = optional(v)
		case "faculty_interview":
			rec.FacultyInterview = optional(v)
		case "director_interview":
			rec.DirectorInterview = optional(v)
		case "result_dir":
			rec.ResultDir = optional(v)
		case "written_marks_100":
			rec.WrittenMarks100 = v.(models.Mark)
		case "written_marks":
			rec.WrittenMarks = v.(models.Mark)
		case "interview_marks":
			rec.InterviewMarks = v.(models.Mark)
		case "total_marks":
			rec.TotalMarks = v.(models.TotalMark)
		}
	}
}

// stubWorkingSets returns a fixed working set for scoped actors.
type stubWorkingSets struct {
	result admissions.MatchResult
	err    error
	calls  int
}

func (s *stubWorkingSets) WorkingSet(ctx context.Context, table models.ScholarTable, actor models.Actor) (admissions.MatchResult, error) {
	s.calls++
	return s.result, s.err
}

type recordingAudit struct {
	mu   sync.Mutex
	logs []*models.AuditLog
}

func (r *recordingAudit) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, log)
	return nil
}

func mech(id string) models.Scholar {
	return models.Scholar{
		ID:          id,
		Name:        "Scholar " + id,
		Institution: "Engineering And Technology",
		Department:  "Mechanical Engineering",
		Program:     "Ph.D. - MECHANICAL ENGINEERING (Full Time)",
		ProgramType: models.ProgramFullTime,
		Status:      models.StatusPending,
		DeptReview:  models.ReviewPending,
	}
}

var (
	directorActor = models.Actor{UserID: "director-1", Role: models.RoleDirector}
	mechHOD       = models.Actor{UserID: "hod-1", Role: models.RoleDepartment, Faculty: "Faculty of Engineering & Technology", Department: "Mechanical Engineering"}
)
