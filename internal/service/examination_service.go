package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/scholar-admissions-api/internal/admissions"
	"github.com/noah-isme/scholar-admissions-api/internal/models"
	appErrors "github.com/noah-isme/scholar-admissions-api/pkg/errors"
)

// MarkEdits carries raw mark input; nil fields are left untouched.
type MarkEdits struct {
	Written100 *string
	Written70  *string
	Interview  *string
}

func (m MarkEdits) empty() bool {
	return m.Written100 == nil && m.Written70 == nil && m.Interview == nil
}

// apply runs the edits against sheet in a fixed order: written (100), written (70), interview.
func (m MarkEdits) apply(sheet admissions.MarkSheet) (admissions.MarkSheet, error) {
	var err error
	if m.Written100 != nil {
		if sheet, err = admissions.ApplyWrittenEdit(sheet, *m.Written100); err != nil {
			return sheet, err
		}
	}
	if m.Written70 != nil {
		if sheet, err = admissions.ApplyWritten70Edit(sheet, *m.Written70); err != nil {
			return sheet, err
		}
	}
	if m.Interview != nil {
		if sheet, err = admissions.ApplyInterviewEdit(sheet, *m.Interview); err != nil {
			return sheet, err
		}
	}
	return sheet, nil
}

// ExaminationService drives the examination phase: forwards, marks and publication.
type ExaminationService struct {
	engine *transitionEngine
	logger *zap.Logger
}

// NewExaminationService constructs the service over the examinations store.
func NewExaminationService(store scholarStore, logger *zap.Logger, opts ...WorkflowOption) *ExaminationService {
	engine := newTransitionEngine(store, logger, opts...)
	return &ExaminationService{engine: engine, logger: engine.logger}
}

// ForwardWritten sends a record to its faculty for the written examination.
func (s *ExaminationService) ForwardWritten(ctx context.Context, actor models.Actor, id string) (*models.Scholar, error) {
	return s.engine.apply(ctx, actor, id, s.forwardWritten())
}

// ForwardInterview sends a record to its faculty for interview and refreshes the total.
func (s *ExaminationService) ForwardInterview(ctx context.Context, actor models.Actor, id string) (*models.Scholar, error) {
	return s.engine.apply(ctx, actor, id, s.forwardInterview())
}

// ForwardToDirector returns an interviewed record to the director and refreshes the total.
func (s *ExaminationService) ForwardToDirector(ctx context.Context, actor models.Actor, id string) (*models.Scholar, error) {
	return s.engine.apply(ctx, actor, id, transition{
		op: models.AuditActionForwardDirector,
		plan: func(rec *models.Scholar) (models.ScholarPatch, error) {
			marker := admissions.DirectorForward().String()
			if strings.TrimSpace(models.Str(rec.DirectorInterview)) == marker {
				return nil, appErrors.Clone(appErrors.ErrAlreadyInState, "record already forwarded to director")
			}
			sheet := admissions.SheetOf(rec)
			sheet.DirectorInterview = marker
			sheet = sheet.Recompute()
			return models.ScholarPatch{}.
				Set("director_interview", marker).
				Set("total_marks", models.Total(sheet.Total)), nil
		},
	})
}

// UpdateWrittenMarks sets the 0-100 written mark and its 70-scale conversion.
func (s *ExaminationService) UpdateWrittenMarks(ctx context.Context, actor models.Actor, id, raw string) (*models.Scholar, error) {
	return s.UpdateMarks(ctx, actor, id, MarkEdits{Written100: &raw})
}

// UpdateWrittenMarks70 sets the 70-scale written mark directly.
func (s *ExaminationService) UpdateWrittenMarks70(ctx context.Context, actor models.Actor, id, raw string) (*models.Scholar, error) {
	return s.UpdateMarks(ctx, actor, id, MarkEdits{Written70: &raw})
}

// UpdateInterviewMarks sets the 0-30 interview mark.
func (s *ExaminationService) UpdateInterviewMarks(ctx context.Context, actor models.Actor, id, raw string) (*models.Scholar, error) {
	return s.UpdateMarks(ctx, actor, id, MarkEdits{Interview: &raw})
}

// UpdateMarks applies edits and writes every mark column together with the recomputed total.
func (s *ExaminationService) UpdateMarks(ctx context.Context, actor models.Actor, id string, edits MarkEdits) (*models.Scholar, error) {
	return s.engine.apply(ctx, actor, id, s.marks(edits))
}

// BulkForwardWritten forwards every id for the written examination.
func (s *ExaminationService) BulkForwardWritten(ctx context.Context, actor models.Actor, ids []string) (*models.BulkResult, error) {
	return s.engine.applyBulk(ctx, actor, models.AuditActionForwardWritten, ids, func(string) transition {
		return s.forwardWritten()
	})
}

// BulkForwardInterview forwards every id for interview.
func (s *ExaminationService) BulkForwardInterview(ctx context.Context, actor models.Actor, ids []string) (*models.BulkResult, error) {
	return s.engine.applyBulk(ctx, actor, models.AuditActionForwardInterview, ids, func(string) transition {
		return s.forwardInterview()
	})
}

// PublishResults sets result_dir to "Published to <Faculty>" for exactly the given ids.
// Ids outside the faculty's visible set, or already published, fail individually.
func (s *ExaminationService) PublishResults(ctx context.Context, actor models.Actor, faculty string, ids []string) (*models.BulkResult, error) {
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "ids must not be empty")
	}
	f, ok := admissions.MatchFaculty(faculty)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown faculty %q", faculty))
	}
	op := models.AuditActionPublish
	s.engine.metrics.ObserveBulk(op, len(ids))

	candidates, err := s.engine.store.Select(ctx, facultyPrefilter(f))
	if err != nil {
		return nil, appErrors.Persistence(err, "publish lookup", "")
	}
	visible := make(map[string]models.Scholar)
	for _, rec := range admissions.InstitutionScope(candidates, string(f)) {
		visible[rec.ID] = rec
	}

	marker := admissions.PublishedTo(f)
	outcome := make(map[string]models.BulkItemResult, len(ids))
	eligible := make([]string, 0, len(ids))
	for _, id := range ids {
		rec, ok := visible[id]
		switch {
		case !ok:
			outcome[id] = failedItem(id, appErrors.Clone(appErrors.ErrForbidden,
				fmt.Sprintf("record %s is not visible to %s", id, f)))
		case models.Str(rec.ResultDir) == marker.String():
			outcome[id] = failedItem(id, appErrors.Clone(appErrors.ErrAlreadyInState, "results already published"))
		default:
			eligible = append(eligible, id)
		}
	}

	if len(eligible) > 0 {
		rows, err := s.engine.store.UpdateMany(ctx, eligible, models.ScholarPatch{}.Set("result_dir", marker.String()))
		if err != nil {
			for _, id := range eligible {
				outcome[id] = failedItem(id, appErrors.Persistence(err, op, id))
			}
		} else {
			stored := make(map[string]*models.Scholar, len(rows))
			for i := range rows {
				stored[rows[i].ID] = &rows[i]
			}
			for _, id := range eligible {
				rec, ok := stored[id]
				if !ok {
					outcome[id] = failedItem(id, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("record %s not found", id)))
					continue
				}
				previous := visible[id]
				s.engine.publish(ctx, op, actor, rec, &previous)
				outcome[id] = models.BulkItemResult{ID: id, Success: true, Record: rec}
			}
		}
	}

	result := &models.BulkResult{Items: make([]models.BulkItemResult, 0, len(ids))}
	for _, id := range ids {
		item := outcome[id]
		if !item.Success {
			s.engine.metrics.RecordTransition(op, s.engine.table(), item.Code)
		}
		result.Add(item)
	}
	return result, nil
}

func (s *ExaminationService) forwardWritten() transition {
	return transition{
		op: models.AuditActionForwardWritten,
		plan: func(rec *models.Scholar) (models.ScholarPatch, error) {
			if admissions.IsForwarded(rec.Status) {
				return nil, appErrors.Clone(appErrors.ErrAlreadyInState, "record already forwarded")
			}
			f, ok := admissions.MatchFaculty(rec.Faculty)
			if !ok {
				f, ok = admissions.MatchFaculty(rec.Institution)
			}
			if !ok {
				s.warnDefaultFaculty(rec, models.AuditActionForwardWritten)
				f = admissions.FacultyEngineering
			}
			return models.ScholarPatch{}.
				Set("status", "forwarded").
				Set("faculty_written", admissions.ForwardedTo(f).String()), nil
		},
	}
}

func (s *ExaminationService) forwardInterview() transition {
	return transition{
		op: models.AuditActionForwardInterview,
		plan: func(rec *models.Scholar) (models.ScholarPatch, error) {
			f, ok := admissions.InterviewFaculty(*rec)
			if !ok {
				s.warnDefaultFaculty(rec, models.AuditActionForwardInterview)
				f = admissions.FacultyEngineering
			}
			marker := admissions.InterviewForward(f).String()
			sheet := admissions.SheetOf(rec)
			sheet.FacultyInterview = marker
			sheet = sheet.Recompute()
			return models.ScholarPatch{}.
				Set("faculty_interview", marker).
				Set("total_marks", models.Total(sheet.Total)), nil
		},
	}
}

func (s *ExaminationService) marks(edits MarkEdits) transition {
	return transition{
		op: models.AuditActionMarksUpdate,
		validate: func() error {
			if edits.empty() {
				return appErrors.Clone(appErrors.ErrValidation, "no marks supplied")
			}
			_, err := edits.apply(admissions.MarkSheet{})
			return err
		},
		plan: func(rec *models.Scholar) (models.ScholarPatch, error) {
			sheet, err := edits.apply(admissions.SheetOf(rec))
			if err != nil {
				return nil, err
			}
			return sheet.Patch(), nil
		},
	}
}

func (s *ExaminationService) warnDefaultFaculty(rec *models.Scholar, op string) {
	s.logger.Warn("faculty unresolved, defaulting to engineering",
		zap.String("operation", op),
		zap.String("scholar_id", rec.ID),
		zap.String("faculty", rec.Faculty),
		zap.String("institution", rec.Institution),
		zap.String("department", rec.Department),
	)
}

// facultyPrefilter narrows a select to rows that can belong to f before the matcher runs.
func facultyPrefilter(f admissions.Faculty) models.ScholarFilter {
	pattern := "%" + f.Keyword() + "%"
	return models.ScholarFilter{AnyOf: [][]models.Condition{
		{models.ILike("institution", pattern)},
		{models.ILike("faculty", pattern)},
	}}
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
