package service

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/scholar-admissions-api/internal/dto"
	"github.com/noah-isme/scholar-admissions-api/internal/models"
	appErrors "github.com/noah-isme/scholar-admissions-api/pkg/errors"
)

const insertBatchSize = 500

// Canonical import columns. Headers are matched after lowercasing and collapsing
// punctuation to underscores, then through importAliases.
const (
	fieldApplicationNo = "application_no"
	fieldName          = "name"
	fieldFaculty       = "faculty"
	fieldInstitution   = "institution"
	fieldDepartment    = "department"
	fieldProgram       = "program"
	fieldProgramType   = "program_type"
	fieldWritten100    = "written_marks_100"
	fieldWritten70     = "written_marks"
	fieldInterview     = "interview_marks"
)

var importAliases = map[string]string{
	"application_no":     fieldApplicationNo,
	"application_number": fieldApplicationNo,
	"app_no":             fieldApplicationNo,
	"registration_no":    fieldApplicationNo,
	"name":               fieldName,
	"scholar_name":       fieldName,
	"candidate_name":     fieldName,
	"faculty":            fieldFaculty,
	"institution":        fieldInstitution,
	"institute":          fieldInstitution,
	"department":         fieldDepartment,
	"program":            fieldProgram,
	"programme":          fieldProgram,
	"program_type":       fieldProgramType,
	"type":               fieldProgramType,
	"mode":               fieldProgramType,
	"written_marks_100":  fieldWritten100,
	"written_100":        fieldWritten100,
	"written":            fieldWritten100,
	"written_marks_70":   fieldWritten70,
	"written_marks":      fieldWritten70,
	"written_70":         fieldWritten70,
	"interview_marks":    fieldInterview,
	"interview":          fieldInterview,
	"interview_30":       fieldInterview,
}

type markUpdater interface {
	UpdateMarks(ctx context.Context, actor models.Actor, id string, edits MarkEdits) (*models.Scholar, error)
}

// ImportService loads CSV sheets into the application table and applies mark sheets to
// examination records.
type ImportService struct {
	applications scholarStore
	examinations scholarStore
	marks        markUpdater
	validator    *validator.Validate
	events       *WorkflowEvents
	logger       *zap.Logger
	maxRows      int
}

// NewImportService constructs the service. maxRows bounds the data rows of one file.
func NewImportService(applications, examinations scholarStore, marks markUpdater, validate *validator.Validate, events *WorkflowEvents, logger *zap.Logger, maxRows int) *ImportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if maxRows <= 0 {
		maxRows = 5000
	}
	return &ImportService{
		applications: applications,
		examinations: examinations,
		marks:        marks,
		validator:    validate,
		events:       events,
		logger:       logger,
		maxRows:      maxRows,
	}
}

type importRow struct {
	line   int
	fields map[string]string
}

func (r importRow) get(field string) string {
	return strings.TrimSpace(r.fields[field])
}

// has reports whether the sheet carried the column, so blanks can be told from absence.
func (r importRow) has(field string) bool {
	_, ok := r.fields[field]
	return ok
}

// ImportApplications inserts one pending application per valid row. Rows that fail
// validation, repeat an application number or collide with an existing record are reported
// and skipped.
func (s *ImportService) ImportApplications(ctx context.Context, actor models.Actor, r io.Reader) (*dto.ImportResponse, error) {
	rows, err := s.readSheet(r, fieldApplicationNo, fieldName, fieldProgram)
	if err != nil {
		return nil, err
	}
	resp := &dto.ImportResponse{Rows: len(rows), Errors: []dto.ImportRowError{}}

	existing, err := s.existingApplicationNos(ctx, s.applications, rows)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]int, len(rows))
	pending := make([]models.Scholar, 0, len(rows))
	pendingLines := make([]int, 0, len(rows))
	for _, row := range rows {
		req := dto.CreateScholarRequest{
			ApplicationNo: row.get(fieldApplicationNo),
			Name:          row.get(fieldName),
			Faculty:       row.get(fieldFaculty),
			Institution:   row.get(fieldInstitution),
			Department:    row.get(fieldDepartment),
			Program:       row.get(fieldProgram),
		}
		pt, ok := parseProgramType(row.get(fieldProgramType))
		if !ok {
			resp.Errors = append(resp.Errors, rowError(row, req.ApplicationNo, appErrors.ErrValidation.Code, fmt.Sprintf("unknown program type %q", row.get(fieldProgramType))))
			continue
		}
		req.ProgramType = pt
		if err := s.validator.Struct(req); err != nil {
			resp.Errors = append(resp.Errors, rowError(row, req.ApplicationNo, appErrors.ErrValidation.Code, err.Error()))
			continue
		}
		key := strings.ToUpper(req.ApplicationNo)
		if first, dup := seen[key]; dup {
			resp.Errors = append(resp.Errors, rowError(row, req.ApplicationNo, appErrors.ErrConflict.Code, fmt.Sprintf("duplicate of row %d", first)))
			continue
		}
		seen[key] = row.line
		if existing[key] {
			resp.Errors = append(resp.Errors, rowError(row, req.ApplicationNo, appErrors.ErrConflict.Code, "application already exists"))
			continue
		}
		pending = append(pending, NewApplication(req))
		pendingLines = append(pendingLines, row.line)
	}

	for start := 0; start < len(pending); start += insertBatchSize {
		end := start + insertBatchSize
		if end > len(pending) {
			end = len(pending)
		}
		inserted, err := s.applications.Insert(ctx, pending[start:end])
		if err != nil {
			s.logger.Warn("application import batch failed", zap.Int("from_row", pendingLines[start]), zap.Error(err))
			for i := start; i < end; i++ {
				resp.Errors = append(resp.Errors, dto.ImportRowError{
					Row:     pendingLines[i],
					Key:     pending[i].ApplicationNo,
					Code:    appErrors.ErrPersistence.Code,
					Message: err.Error(),
				})
			}
			continue
		}
		resp.SuccessCount += len(inserted)
		for i := range inserted {
			s.events.Publish(ctx, models.WorkflowEvent{
				Operation: models.AuditActionImport,
				Table:     models.TableApplications,
				ScholarID: inserted[i].ID,
				ActorID:   actor.UserID,
				Record:    &inserted[i],
			})
		}
	}
	resp.ErrorCount = len(resp.Errors)
	s.logger.Info("applications imported",
		zap.String("actor", actor.UserID),
		zap.Int("rows", resp.Rows),
		zap.Int("inserted", resp.SuccessCount),
		zap.Int("rejected", resp.ErrorCount),
	)
	return resp, nil
}

// ImportMarks applies a mark sheet keyed by application number. Present cells are edits
// ("Ab" marks absence); blank cells leave the stored mark untouched. Each row runs through
// the marks engine independently.
func (s *ImportService) ImportMarks(ctx context.Context, actor models.Actor, r io.Reader) (*dto.ImportResponse, error) {
	rows, err := s.readSheet(r, fieldApplicationNo)
	if err != nil {
		return nil, err
	}
	resp := &dto.ImportResponse{Rows: len(rows), Errors: []dto.ImportRowError{}}

	records, err := s.recordsByApplicationNo(ctx, s.examinations, rows)
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			resp.Errors = append(resp.Errors, rowError(row, row.get(fieldApplicationNo), appErrors.ErrInternal.Code, "import cancelled"))
			continue
		}
		appNo := row.get(fieldApplicationNo)
		rec, ok := records[strings.ToUpper(appNo)]
		if !ok {
			resp.Errors = append(resp.Errors, rowError(row, appNo, appErrors.ErrNotFound.Code, "no examination record for application"))
			continue
		}
		edits := MarkEdits{
			Written100: cell(row, fieldWritten100),
			Written70:  cell(row, fieldWritten70),
			Interview:  cell(row, fieldInterview),
		}
		if edits.empty() {
			resp.Errors = append(resp.Errors, rowError(row, appNo, appErrors.ErrValidation.Code, "row carries no marks"))
			continue
		}
		if _, err := s.marks.UpdateMarks(ctx, actor, rec.ID, edits); err != nil {
			appErr := appErrors.FromError(err)
			resp.Errors = append(resp.Errors, rowError(row, appNo, appErr.Code, appErr.Message))
			continue
		}
		resp.SuccessCount++
	}
	resp.ErrorCount = len(resp.Errors)
	s.logger.Info("marks imported",
		zap.String("actor", actor.UserID),
		zap.Int("rows", resp.Rows),
		zap.Int("applied", resp.SuccessCount),
		zap.Int("rejected", resp.ErrorCount),
	)
	return resp, nil
}

func (s *ImportService) readSheet(r io.Reader, required ...string) ([]importRow, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "file is empty")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "unreadable csv header")
	}
	columns := make([]string, len(header))
	present := make(map[string]bool, len(header))
	for i, h := range header {
		if field, ok := importAliases[headerKey(h)]; ok && !present[field] {
			columns[i] = field
			present[field] = true
		}
	}
	for _, field := range required {
		if !present[field] {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("missing required column %q", field))
		}
	}

	rows := make([]importRow, 0)
	line := 0
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, fmt.Sprintf("malformed csv at row %d", line))
		}
		if blankRecord(record) {
			continue
		}
		if len(rows) >= s.maxRows {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("file exceeds %d rows", s.maxRows))
		}
		row := importRow{line: line, fields: make(map[string]string, len(columns))}
		for i, field := range columns {
			if field == "" {
				continue
			}
			if i < len(record) {
				row.fields[field] = record[i]
			} else {
				row.fields[field] = ""
			}
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "file has no data rows")
	}
	return rows, nil
}

func (s *ImportService) recordsByApplicationNo(ctx context.Context, store scholarStore, rows []importRow) (map[string]models.Scholar, error) {
	values := make([]interface{}, 0, len(rows))
	for _, row := range rows {
		if appNo := row.get(fieldApplicationNo); appNo != "" {
			values = append(values, appNo)
		}
	}
	out := make(map[string]models.Scholar, len(values))
	if len(values) == 0 {
		return out, nil
	}
	records, err := store.Select(ctx, models.ScholarFilter{All: []models.Condition{models.In("application_no", values...)}})
	if err != nil {
		return nil, appErrors.Persistence(err, "import lookup", "")
	}
	for _, rec := range records {
		out[strings.ToUpper(strings.TrimSpace(rec.ApplicationNo))] = rec
	}
	return out, nil
}

func (s *ImportService) existingApplicationNos(ctx context.Context, store scholarStore, rows []importRow) (map[string]bool, error) {
	records, err := s.recordsByApplicationNo(ctx, store, rows)
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(records))
	for key := range records {
		out[key] = true
	}
	return out, nil
}

func cell(row importRow, field string) *string {
	if !row.has(field) {
		return nil
	}
	v := row.get(field)
	if v == "" {
		return nil
	}
	return &v
}

func rowError(row importRow, key, code, message string) dto.ImportRowError {
	return dto.ImportRowError{Row: row.line, Key: key, Code: code, Message: message}
}

func headerKey(h string) string {
	h = strings.TrimPrefix(strings.TrimSpace(h), "\ufeff")
	var b strings.Builder
	underscore := false
	for _, r := range strings.ToLower(h) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			underscore = false
			continue
		}
		if !underscore {
			b.WriteByte('_')
			underscore = true
		}
	}
	return strings.Trim(b.String(), "_")
}

func blankRecord(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// parseProgramType accepts the canonical labels case-insensitively plus common short forms.
// Blank input is allowed.
func parseProgramType(raw string) (models.ProgramType, bool) {
	key := headerKey(raw)
	switch key {
	case "":
		return "", true
	case "full_time", "ft", "fulltime":
		return models.ProgramFullTime, true
	case "part_time_internal", "pti", "part_time":
		return models.ProgramPartTimeInternal, true
	case "part_time_external", "pte":
		return models.ProgramPartTimeExternal, true
	case "part_time_external_industry", "industry":
		return models.ProgramPartTimeExternalIndustry, true
	default:
		return "", false
	}
}
