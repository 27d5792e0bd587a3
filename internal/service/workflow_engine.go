package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/scholar-admissions-api/internal/admissions"
	"github.com/noah-isme/scholar-admissions-api/internal/models"
	appErrors "github.com/noah-isme/scholar-admissions-api/pkg/errors"
)

type scholarStore interface {
	Table() models.ScholarTable
	Select(ctx context.Context, filter models.ScholarFilter) ([]models.Scholar, error)
	FindByID(ctx context.Context, id string) (*models.Scholar, error)
	FindByIDs(ctx context.Context, ids []string) ([]models.Scholar, error)
	Update(ctx context.Context, id string, patch models.ScholarPatch) (*models.Scholar, error)
	UpdateMany(ctx context.Context, ids []string, patch models.ScholarPatch) ([]models.Scholar, error)
	Insert(ctx context.Context, rows []models.Scholar) ([]models.Scholar, error)
	Delete(ctx context.Context, filter models.ScholarFilter) ([]models.Scholar, error)
}

type workingSetProvider interface {
	WorkingSet(ctx context.Context, table models.ScholarTable, actor models.Actor) (admissions.MatchResult, error)
}

// transition describes one single-record operation: input validation that runs before any
// store call, and a plan that checks the current row and returns the patch to write.
type transition struct {
	op       string
	validate func() error
	plan     func(rec *models.Scholar) (models.ScholarPatch, error)
}

// WorkflowOption configures the workflow services.
type WorkflowOption func(*transitionEngine)

// WithWorkingSets scopes department actors to the records their matcher working set holds.
func WithWorkingSets(provider workingSetProvider) WorkflowOption {
	return func(e *transitionEngine) {
		e.scope = provider
	}
}

// WithWorkflowEvents publishes committed mutations on the bus.
func WithWorkflowEvents(events *WorkflowEvents) WorkflowOption {
	return func(e *transitionEngine) {
		e.events = events
	}
}

// WithWorkflowMetrics records failed transitions and bulk sizes.
func WithWorkflowMetrics(metrics *MetricsService) WorkflowOption {
	return func(e *transitionEngine) {
		e.metrics = metrics
	}
}

// WithBulkConcurrency bounds the number of in-flight records of a bulk operation.
func WithBulkConcurrency(n int) WorkflowOption {
	return func(e *transitionEngine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithWorkflowClock overrides the time source used for timestamps.
func WithWorkflowClock(now func() time.Time) WorkflowOption {
	return func(e *transitionEngine) {
		if now != nil {
			e.now = now
		}
	}
}

type transitionEngine struct {
	store       scholarStore
	scope       workingSetProvider
	events      *WorkflowEvents
	metrics     *MetricsService
	logger      *zap.Logger
	concurrency int
	now         func() time.Time
}

func newTransitionEngine(store scholarStore, logger *zap.Logger, opts ...WorkflowOption) *transitionEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &transitionEngine{
		store:       store,
		logger:      logger,
		concurrency: 8,
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

func (e *transitionEngine) table() string {
	return string(e.store.Table())
}

// workingSet returns nil for unscoped actors.
func (e *transitionEngine) workingSet(ctx context.Context, actor models.Actor) (*admissions.MatchResult, error) {
	if e.scope == nil || !actor.Scoped() {
		return nil, nil
	}
	ws, err := e.scope.WorkingSet(ctx, e.store.Table(), actor)
	if err != nil {
		return nil, err
	}
	return &ws, nil
}

func (e *transitionEngine) apply(ctx context.Context, actor models.Actor, id string, t transition) (*models.Scholar, error) {
	ws, err := e.workingSet(ctx, actor)
	if err != nil {
		e.fail(t.op, err)
		return nil, err
	}
	return e.run(ctx, actor, id, t, ws)
}

func (e *transitionEngine) run(ctx context.Context, actor models.Actor, id string, t transition, ws *admissions.MatchResult) (*models.Scholar, error) {
	rec, err := e.execute(ctx, actor, id, t, ws)
	if err != nil {
		e.fail(t.op, err)
		return nil, err
	}
	return rec, nil
}

func (e *transitionEngine) execute(ctx context.Context, actor models.Actor, id string, t transition, ws *admissions.MatchResult) (*models.Scholar, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "record id is required")
	}
	if t.validate != nil {
		if err := t.validate(); err != nil {
			return nil, err
		}
	}

	current, err := e.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("record %s not found", id))
		}
		return nil, appErrors.Persistence(err, t.op+" lookup", id)
	}
	if ws != nil && !ws.Contains(id) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, fmt.Sprintf("record %s is outside your department", id))
	}

	patch, err := t.plan(current)
	if err != nil {
		return nil, err
	}

	updated, err := e.store.Update(ctx, id, patch)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("record %s not found", id))
		}
		return nil, appErrors.Persistence(err, t.op, id)
	}

	e.publish(ctx, t.op, actor, updated, current)
	return updated, nil
}

func (e *transitionEngine) publish(ctx context.Context, op string, actor models.Actor, rec, previous *models.Scholar) {
	e.events.Publish(ctx, models.WorkflowEvent{
		Operation: op,
		Table:     e.store.Table(),
		ScholarID: rec.ID,
		ActorID:   actor.UserID,
		Record:    rec,
		Previous:  previous,
		At:        e.now(),
	})
}

func (e *transitionEngine) fail(op string, err error) {
	e.metrics.RecordTransition(op, e.table(), appErrors.FromError(err).Code)
}

// applyBulk runs the transition built for each id concurrently and collects per-item
// outcomes in input order. A failed item never aborts the batch; once ctx is done no
// further items are scheduled.
func (e *transitionEngine) applyBulk(ctx context.Context, actor models.Actor, op string, ids []string, build func(id string) transition) (*models.BulkResult, error) {
	if len(ids) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "ids must not be empty")
	}
	ws, err := e.workingSet(ctx, actor)
	if err != nil {
		return nil, err
	}
	e.metrics.ObserveBulk(op, len(ids))

	items := make([]models.BulkItemResult, len(ids))
	var g errgroup.Group
	g.SetLimit(e.concurrency)
	for i, id := range ids {
		if ctxErr := ctx.Err(); ctxErr != nil {
			for j := i; j < len(ids); j++ {
				items[j] = failedItem(ids[j], appErrors.Wrap(ctxErr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "operation cancelled"))
			}
			break
		}
		i, id := i, id
		g.Go(func() error {
			rec, err := e.run(context.WithoutCancel(ctx), actor, id, build(id), ws)
			if err != nil {
				items[i] = failedItem(id, err)
				return nil
			}
			items[i] = models.BulkItemResult{ID: id, Success: true, Record: rec}
			return nil
		})
	}
	_ = g.Wait()

	result := &models.BulkResult{Items: make([]models.BulkItemResult, 0, len(items))}
	for _, item := range items {
		result.Add(item)
	}
	if result.ErrorCount > 0 {
		e.logger.Info("bulk operation finished with failures",
			zap.String("operation", op),
			zap.Int("success", result.SuccessCount),
			zap.Int("errors", result.ErrorCount),
		)
	}
	return result, nil
}

func failedItem(id string, err error) models.BulkItemResult {
	appErr := appErrors.FromError(err)
	return models.BulkItemResult{ID: id, Success: false, Code: appErr.Code, Error: appErr.Message}
}
