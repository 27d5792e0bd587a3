package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/scholar-admissions-api/internal/admissions"
	"github.com/noah-isme/scholar-admissions-api/internal/dto"
	"github.com/noah-isme/scholar-admissions-api/internal/models"
	appErrors "github.com/noah-isme/scholar-admissions-api/pkg/errors"
)

const workingSetCachePrefix = "scholars"

// ScholarService lists, creates and deletes scholar records and computes role working sets.
type ScholarService struct {
	stores    map[models.ScholarTable]scholarStore
	matcher   *admissions.Matcher
	validator *validator.Validate
	cache     *CacheService
	metrics   *MetricsService
	events    *WorkflowEvents
	logger    *zap.Logger
	threshold float64
}

// ScholarServiceOption configures ScholarService.
type ScholarServiceOption func(*ScholarService)

// WithScholarCache caches department working sets.
func WithScholarCache(cache *CacheService) ScholarServiceOption {
	return func(s *ScholarService) {
		s.cache = cache
	}
}

// WithScholarMetrics records matcher tiers.
func WithScholarMetrics(metrics *MetricsService) ScholarServiceOption {
	return func(s *ScholarService) {
		s.metrics = metrics
	}
}

// WithScholarEvents publishes creates and deletes.
func WithScholarEvents(events *WorkflowEvents) ScholarServiceOption {
	return func(s *ScholarService) {
		s.events = events
	}
}

// WithQualifyThreshold sets the inclusive pass mark used by summaries.
func WithQualifyThreshold(threshold float64) ScholarServiceOption {
	return func(s *ScholarService) {
		if threshold > 0 {
			s.threshold = threshold
		}
	}
}

// NewScholarService constructs the service over the application and examination stores.
func NewScholarService(applications, examinations scholarStore, matcher *admissions.Matcher, validate *validator.Validate, logger *zap.Logger, opts ...ScholarServiceOption) *ScholarService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if matcher == nil {
		matcher = admissions.NewMatcher(admissions.WithMatcherLogger(logger))
	}
	svc := &ScholarService{
		stores:    make(map[models.ScholarTable]scholarStore, 2),
		matcher:   matcher,
		validator: validate,
		logger:    logger,
		threshold: 60,
	}
	if applications != nil {
		svc.stores[models.TableApplications] = applications
	}
	if examinations != nil {
		svc.stores[models.TableExaminations] = examinations
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

func (s *ScholarService) store(table models.ScholarTable) (scholarStore, error) {
	store, ok := s.stores[table]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown table %q", table))
	}
	return store, nil
}

// WorkingSet returns the records actor may see and act on. Department actors are scoped by
// the matcher; other roles see every row.
func (s *ScholarService) WorkingSet(ctx context.Context, table models.ScholarTable, actor models.Actor) (admissions.MatchResult, error) {
	result, _, err := s.workingSet(ctx, table, actor)
	return result, err
}

func (s *ScholarService) workingSet(ctx context.Context, table models.ScholarTable, actor models.Actor) (admissions.MatchResult, bool, error) {
	if !actor.Scoped() {
		result, err := s.match(ctx, table, "", "")
		return result, false, err
	}
	key := workingSetKey(table, actor.Faculty, actor.Department)
	var cached admissions.MatchResult
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return cached, true, nil
	}
	result, err := s.match(ctx, table, actor.Faculty, actor.Department)
	if err != nil {
		return admissions.MatchResult{}, false, err
	}
	_ = s.cache.Set(ctx, key, result, 0)
	return result, false, nil
}

// ListForRole returns the actor's working set, optionally narrowed by the query. Directors
// and admins may scope by faculty and department through the same matcher.
func (s *ScholarService) ListForRole(ctx context.Context, table models.ScholarTable, actor models.Actor, query dto.ListScholarsQuery) (*dto.ScholarListResponse, error) {
	var (
		result   admissions.MatchResult
		cacheHit bool
		err      error
	)
	if actor.Scoped() {
		result, cacheHit, err = s.workingSet(ctx, table, actor)
	} else {
		result, err = s.match(ctx, table, query.Faculty, query.Department)
	}
	if err != nil {
		return nil, err
	}

	records := result.Records
	if review := strings.TrimSpace(query.Review); review != "" {
		filtered := make([]models.Scholar, 0, len(records))
		for _, rec := range records {
			if strings.EqualFold(string(rec.DeptReview.Normalize()), review) {
				filtered = append(filtered, rec)
			}
		}
		records = filtered
	}
	if records == nil {
		records = []models.Scholar{}
	}
	return &dto.ScholarListResponse{Tier: result.Tier, Count: len(records), Records: records, CacheHit: cacheHit}, nil
}

// Get returns one record visible to actor.
func (s *ScholarService) Get(ctx context.Context, table models.ScholarTable, actor models.Actor, id string) (*models.Scholar, error) {
	store, err := s.store(table)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(id) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "record id is required")
	}
	rec, err := store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("record %s not found", id))
		}
		return nil, appErrors.Persistence(err, "get", id)
	}
	if actor.Scoped() {
		ws, err := s.WorkingSet(ctx, table, actor)
		if err != nil {
			return nil, err
		}
		if !ws.Contains(id) {
			return nil, appErrors.Clone(appErrors.ErrForbidden, fmt.Sprintf("record %s is outside your department", id))
		}
	}
	return rec, nil
}

// Create adds an application manually: status pending, review Pending, marks unset.
func (s *ScholarService) Create(ctx context.Context, actor models.Actor, req dto.CreateScholarRequest) (*models.Scholar, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid scholar payload")
	}
	store, err := s.store(models.TableApplications)
	if err != nil {
		return nil, err
	}
	rows, err := store.Insert(ctx, []models.Scholar{NewApplication(req)})
	if err != nil {
		return nil, appErrors.Persistence(err, models.AuditActionScholarCreate, "")
	}
	if len(rows) == 0 {
		return nil, appErrors.Clone(appErrors.ErrInternal, "insert returned no rows")
	}
	created := rows[0]
	s.publish(ctx, models.AuditActionScholarCreate, models.TableApplications, actor, &created, nil)
	return &created, nil
}

// NewApplication builds a pending application row from request fields, deriving the
// department from the program when it is missing.
func NewApplication(req dto.CreateScholarRequest) models.Scholar {
	return models.Scholar{
		ApplicationNo: strings.TrimSpace(req.ApplicationNo),
		Name:          strings.TrimSpace(req.Name),
		Faculty:       strings.TrimSpace(req.Faculty),
		Institution:   strings.TrimSpace(req.Institution),
		Department:    admissions.DeriveDepartment(req.Department, req.Program),
		Program:       strings.TrimSpace(req.Program),
		ProgramType:   req.ProgramType,
		Status:        models.StatusPending,
		DeptReview:    models.ReviewPending,
	}
}

// BulkDelete removes exactly the given ids.
func (s *ScholarService) BulkDelete(ctx context.Context, table models.ScholarTable, actor models.Actor, ids []string) (*dto.DeleteResponse, error) {
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "ids must not be empty")
	}
	store, err := s.store(table)
	if err != nil {
		return nil, err
	}
	values := make([]interface{}, len(ids))
	for i, id := range ids {
		values[i] = id
	}
	deleted, err := store.Delete(ctx, models.ScholarFilter{All: []models.Condition{models.In("id", values...)}})
	if err != nil {
		return nil, appErrors.Persistence(err, models.AuditActionScholarBulkDelete, "")
	}
	resp := &dto.DeleteResponse{Deleted: len(deleted), IDs: make([]string, 0, len(deleted))}
	for i := range deleted {
		resp.IDs = append(resp.IDs, deleted[i].ID)
		s.publish(ctx, models.AuditActionScholarBulkDelete, table, actor, nil, &deleted[i])
	}
	return resp, nil
}

// Summary counts the listed set by review and qualification and groups it by faculty.
func (s *ScholarService) Summary(ctx context.Context, table models.ScholarTable, actor models.Actor, query dto.ListScholarsQuery) (*dto.ScholarSummary, error) {
	list, err := s.ListForRole(ctx, table, actor, query)
	if err != nil {
		return nil, err
	}
	summary := &dto.ScholarSummary{
		Tier:            list.Tier,
		Total:           list.Count,
		ByReview:        make(map[models.DeptReview]int),
		ByQualification: make(map[admissions.Qualification]int),
		Faculties:       []dto.FacultyCount{},
	}
	for _, rec := range list.Records {
		summary.ByReview[rec.DeptReview.Normalize()]++
		summary.ByQualification[admissions.Qualify(rec.TotalMarks.Mark, s.threshold)]++
	}
	for _, group := range admissions.GroupByFaculty(list.Records) {
		summary.Faculties = append(summary.Faculties, dto.FacultyCount{Faculty: group.Faculty, Count: len(group.Records)})
	}
	return summary, nil
}

// CacheInvalidationSubscriber drops cached working sets of the event's table.
func (s *ScholarService) CacheInvalidationSubscriber() WorkflowEventHandler {
	return func(ctx context.Context, event models.WorkflowEvent) error {
		return s.cache.Invalidate(ctx, fmt.Sprintf("%s:%s:*", workingSetCachePrefix, event.Table))
	}
}

func (s *ScholarService) match(ctx context.Context, table models.ScholarTable, faculty, department string) (admissions.MatchResult, error) {
	store, err := s.store(table)
	if err != nil {
		return admissions.MatchResult{}, err
	}
	filter := models.ScholarFilter{}
	if strings.TrimSpace(faculty) != "" {
		f, ok := admissions.DetectFaculty(faculty)
		if !ok {
			s.logger.Warn("faculty unresolved for working set",
				zap.String("faculty", faculty),
				zap.String("department", department),
			)
			s.metrics.RecordMatcherTier(string(admissions.TierNone))
			return admissions.MatchResult{Records: []models.Scholar{}, Tier: admissions.TierNone}, nil
		}
		filter = facultyPrefilter(f)
	}
	records, err := store.Select(ctx, filter)
	if err != nil {
		return admissions.MatchResult{}, appErrors.Persistence(err, "list "+string(table), "")
	}
	result := s.matcher.FilterForRole(records, faculty, department)
	if result.Records == nil {
		result.Records = []models.Scholar{}
	}
	s.metrics.RecordMatcherTier(string(result.Tier))
	return result, nil
}

func (s *ScholarService) publish(ctx context.Context, op string, table models.ScholarTable, actor models.Actor, rec, previous *models.Scholar) {
	id := ""
	switch {
	case rec != nil:
		id = rec.ID
	case previous != nil:
		id = previous.ID
	}
	s.events.Publish(ctx, models.WorkflowEvent{
		Operation: op,
		Table:     table,
		ScholarID: id,
		ActorID:   actor.UserID,
		Record:    rec,
		Previous:  previous,
	})
}

func workingSetKey(table models.ScholarTable, faculty, department string) string {
	return fmt.Sprintf("%s:%s:%s:%s", workingSetCachePrefix, table,
		strings.ReplaceAll(admissions.NormalizeName(faculty), " ", "_"),
		strings.ReplaceAll(admissions.NormalizeName(department), " ", "_"))
}
