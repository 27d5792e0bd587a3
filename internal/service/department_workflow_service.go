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

// DepartmentWorkflowService drives department review of scholar applications.
type DepartmentWorkflowService struct {
	engine *transitionEngine
	logger *zap.Logger
}

// NewDepartmentWorkflowService constructs the service over the applications store.
func NewDepartmentWorkflowService(store scholarStore, logger *zap.Logger, opts ...WorkflowOption) *DepartmentWorkflowService {
	engine := newTransitionEngine(store, logger, opts...)
	return &DepartmentWorkflowService{engine: engine, logger: engine.logger}
}

// Approve marks an application approved and clears any query or forward markers.
func (s *DepartmentWorkflowService) Approve(ctx context.Context, actor models.Actor, id string) (*models.Scholar, error) {
	return s.engine.apply(ctx, actor, id, s.approve())
}

// Reject marks an application rejected with a mandatory reason.
func (s *DepartmentWorkflowService) Reject(ctx context.Context, actor models.Actor, id, reason string) (*models.Scholar, error) {
	return s.engine.apply(ctx, actor, id, s.reject(reason))
}

// Query raises a query on an application and returns it to the university.
func (s *DepartmentWorkflowService) Query(ctx context.Context, actor models.Actor, id, message string) (*models.Scholar, error) {
	return s.engine.apply(ctx, actor, id, s.query(message))
}

// ResolveQuery moves a queried application to Query Resolved.
func (s *DepartmentWorkflowService) ResolveQuery(ctx context.Context, actor models.Actor, id string) (*models.Scholar, error) {
	return s.engine.apply(ctx, actor, id, transition{
		op: models.AuditActionResolveQuery,
		plan: func(rec *models.Scholar) (models.ScholarPatch, error) {
			switch rec.DeptReview.Normalize() {
			case models.ReviewQuery:
				return models.ScholarPatch{}.Set("dept_review", models.ReviewQueryResolved), nil
			case models.ReviewQueryResolved:
				return nil, appErrors.Clone(appErrors.ErrAlreadyInState, "query already resolved")
			default:
				return nil, appErrors.Clone(appErrors.ErrPreconditionFailed,
					fmt.Sprintf("record has no open query (review is %s)", rec.DeptReview.Normalize()))
			}
		},
	})
}

// Forward returns an approved application to the university with Back_To_<Faculty>.
func (s *DepartmentWorkflowService) Forward(ctx context.Context, actor models.Actor, id string) (*models.Scholar, error) {
	return s.engine.apply(ctx, actor, id, s.forward())
}

// Revert returns an application to Pending, clearing any rejection reason.
func (s *DepartmentWorkflowService) Revert(ctx context.Context, actor models.Actor, id string) (*models.Scholar, error) {
	return s.engine.apply(ctx, actor, id, transition{
		op: models.AuditActionRevert,
		plan: func(rec *models.Scholar) (models.ScholarPatch, error) {
			return models.ScholarPatch{}.
				Set("dept_status", admissions.Revert().String()).
				Set("dept_review", models.ReviewPending).
				Clear("reject_reason"), nil
		},
	})
}

// BulkApprove approves every id independently.
func (s *DepartmentWorkflowService) BulkApprove(ctx context.Context, actor models.Actor, ids []string) (*models.BulkResult, error) {
	return s.engine.applyBulk(ctx, actor, models.AuditActionApprove, ids, func(string) transition {
		return s.approve()
	})
}

// BulkReject rejects every id with the same reason.
func (s *DepartmentWorkflowService) BulkReject(ctx context.Context, actor models.Actor, ids []string, reason string) (*models.BulkResult, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "rejection reason is required")
	}
	return s.engine.applyBulk(ctx, actor, models.AuditActionReject, ids, func(string) transition {
		return s.reject(reason)
	})
}

// BulkForward forwards every id independently.
func (s *DepartmentWorkflowService) BulkForward(ctx context.Context, actor models.Actor, ids []string) (*models.BulkResult, error) {
	return s.engine.applyBulk(ctx, actor, models.AuditActionForward, ids, func(string) transition {
		return s.forward()
	})
}

func (s *DepartmentWorkflowService) approve() transition {
	return transition{
		op: models.AuditActionApprove,
		plan: func(rec *models.Scholar) (models.ScholarPatch, error) {
			if err := requireActionable(rec, models.ReviewApproved); err != nil {
				return nil, err
			}
			return models.ScholarPatch{}.
				Set("dept_review", models.ReviewApproved).
				Clear("dept_query", "query_timestamp", "dept_status", "faculty_forward"), nil
		},
	}
}

func (s *DepartmentWorkflowService) reject(reason string) transition {
	reason = strings.TrimSpace(reason)
	return transition{
		op: models.AuditActionReject,
		validate: func() error {
			if reason == "" {
				return appErrors.Clone(appErrors.ErrValidation, "rejection reason is required")
			}
			return nil
		},
		plan: func(rec *models.Scholar) (models.ScholarPatch, error) {
			if err := requireActionable(rec, models.ReviewRejected); err != nil {
				return nil, err
			}
			return models.ScholarPatch{}.
				Set("dept_review", models.ReviewRejected).
				Set("reject_reason", reason).
				Clear("dept_query", "query_timestamp", "dept_status", "faculty_forward"), nil
		},
	}
}

func (s *DepartmentWorkflowService) query(message string) transition {
	message = strings.TrimSpace(message)
	return transition{
		op: models.AuditActionQuery,
		validate: func() error {
			if message == "" {
				return appErrors.Clone(appErrors.ErrValidation, "query message is required")
			}
			return nil
		},
		plan: func(rec *models.Scholar) (models.ScholarPatch, error) {
			if err := requireActionable(rec, models.ReviewQuery); err != nil {
				return nil, err
			}
			return models.ScholarPatch{}.
				Set("dept_review", models.ReviewQuery).
				Set("dept_query", message).
				Set("query_timestamp", s.engine.now()).
				Set("dept_status", s.queryStatus(rec).String()), nil
		},
	}
}

func (s *DepartmentWorkflowService) forward() transition {
	return transition{
		op: models.AuditActionForward,
		plan: func(rec *models.Scholar) (models.ScholarPatch, error) {
			if rec.DeptReview.Normalize() != models.ReviewApproved {
				return nil, appErrors.Clone(appErrors.ErrPreconditionFailed,
					fmt.Sprintf("only approved records can be forwarded (review is %s)", rec.DeptReview.Normalize()))
			}
			if admissions.ParseMarker(models.Str(rec.DeptStatus)).Kind == admissions.MarkerBackTo {
				return nil, appErrors.Clone(appErrors.ErrAlreadyInState, "record already forwarded to the university")
			}
			marker, resolved := admissions.DeptStatusForForward(rec.Faculty, models.Str(rec.FacultyStatus), rec.Status)
			if !resolved {
				s.warnDefaultFaculty(rec, models.AuditActionForward)
			}
			return models.ScholarPatch{}.Set("dept_status", marker.String()), nil
		},
	}
}

// queryStatus derives Back_To_<Faculty> from the status text, then the department code.
func (s *DepartmentWorkflowService) queryStatus(rec *models.Scholar) admissions.Marker {
	if f, ok := admissions.FacultyFromContexts(rec.Status); ok {
		return admissions.BackTo(f)
	}
	if f, ok := admissions.CodeFaculty(admissions.RecordCode(*rec)); ok {
		return admissions.BackTo(f)
	}
	s.warnDefaultFaculty(rec, models.AuditActionQuery)
	return admissions.BackTo(admissions.FacultyEngineering)
}

func (s *DepartmentWorkflowService) warnDefaultFaculty(rec *models.Scholar, op string) {
	s.logger.Warn("faculty unresolved, defaulting to engineering",
		zap.String("operation", op),
		zap.String("scholar_id", rec.ID),
		zap.String("faculty", rec.Faculty),
		zap.String("status", rec.Status),
		zap.String("department", rec.Department),
	)
}

func requireActionable(rec *models.Scholar, target models.DeptReview) error {
	if rec.DeptReview.Actionable() {
		return nil
	}
	if rec.DeptReview.Normalize() == target {
		return appErrors.Clone(appErrors.ErrAlreadyInState, fmt.Sprintf("record already %s", target))
	}
	return appErrors.Clone(appErrors.ErrAlreadyInState,
		fmt.Sprintf("record review is %s; revert it before changing", rec.DeptReview.Normalize()))
}
