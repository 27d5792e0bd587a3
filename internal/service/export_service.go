package service

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/scholar-admissions-api/internal/admissions"
	"github.com/noah-isme/scholar-admissions-api/internal/models"
	appErrors "github.com/noah-isme/scholar-admissions-api/pkg/errors"
	"github.com/noah-isme/scholar-admissions-api/pkg/export"
	"github.com/noah-isme/scholar-admissions-api/pkg/storage"
)

// Result sheet columns.
const (
	colApplicationNo = "Application No"
	colName          = "Name"
	colDepartment    = "Department"
	colProgramType   = "Program Type"
	colWritten       = "Written (70)"
	colInterview     = "Interview (30)"
	colTotal         = "Total"
	colResult        = "Result"
)

var resultHeaders = []string{colApplicationNo, colName, colDepartment, colProgramType, colWritten, colInterview, colTotal, colResult}

type resultSource interface {
	Select(ctx context.Context, filter models.ScholarFilter) ([]models.Scholar, error)
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix        string
	ResultTTL        time.Duration
	QualifyThreshold float64
}

// ExportResult captures successful generation metadata.
type ExportResult struct {
	RelativePath string
	Token        string
	URL          string
	Format       models.ExportFormat
	Rows         int
	ExpiresAt    time.Time
}

// ExportService renders examination result sheets and stores them behind signed URLs.
type ExportService struct {
	results resultSource
	matcher *admissions.Matcher
	storage fileStorage
	csv     csvRenderer
	pdf     pdfRenderer
	signer  *storage.SignedURLSigner
	logger  *zap.Logger
	cfg     ExportConfig
	now     func() time.Time
}

// NewExportService constructs an ExportService.
func NewExportService(results resultSource, matcher *admissions.Matcher, store fileStorage, signer *storage.SignedURLSigner, cfg ExportConfig, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if matcher == nil {
		matcher = admissions.NewMatcher(admissions.WithMatcherLogger(logger))
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if cfg.QualifyThreshold <= 0 {
		cfg.QualifyThreshold = 60
	}
	if csv == nil {
		csv = export.NewCSVExporter(export.WithUTF8BOM())
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{
		results: results,
		matcher: matcher,
		storage: store,
		csv:     csv,
		pdf:     pdf,
		signer:  signer,
		logger:  logger,
		cfg:     cfg,
		now:     time.Now,
	}
}

// Generate renders the job's result sheet and stores it.
func (s *ExportService) Generate(ctx context.Context, job *models.ExportJob) (*ExportResult, error) {
	if job == nil {
		return nil, fmt.Errorf("job nil")
	}
	dataset, title, err := s.BuildDataset(ctx, job.Params)
	if err != nil {
		return nil, err
	}

	var payload []byte
	switch job.Params.Format {
	case models.ExportFormatCSV:
		payload, err = s.csv.Render(dataset)
	case models.ExportFormatPDF:
		payload, err = s.pdf.Render(dataset, title)
	default:
		err = fmt.Errorf("unsupported format %s", job.Params.Format)
	}
	if err != nil {
		return nil, err
	}

	relPath, err := s.storage.Save(s.buildFilename(job), payload)
	if err != nil {
		return nil, err
	}
	token, expiresAt, err := s.signer.Generate(job.ID, relPath)
	if err != nil {
		return nil, err
	}
	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}

	s.logger.Info("result export generated",
		zap.String("job_id", job.ID),
		zap.String("faculty", job.Params.Faculty),
		zap.String("format", string(job.Params.Format)),
		zap.Int("rows", len(dataset.Rows)),
	)
	return &ExportResult{
		RelativePath: relPath,
		Token:        token,
		URL:          fmt.Sprintf("%s/exports/download/%s", prefix, token),
		Format:       job.Params.Format,
		Rows:         len(dataset.Rows),
		ExpiresAt:    expiresAt,
	}, nil
}

// BuildDataset selects the faculty's examination records, optionally narrowed to a
// department and to published results, ordered by application number.
func (s *ExportService) BuildDataset(ctx context.Context, params models.ExportJobParams) (export.Dataset, string, error) {
	f, ok := admissions.MatchFaculty(params.Faculty)
	if !ok {
		return export.Dataset{}, "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown faculty %q", params.Faculty))
	}
	records, err := s.results.Select(ctx, facultyPrefilter(f))
	if err != nil {
		return export.Dataset{}, "", appErrors.Persistence(err, "export results", "")
	}
	matched := s.matcher.FilterForRole(records, f.Institution(), params.Department)

	rows := make([]models.Scholar, 0, len(matched.Records))
	for _, rec := range matched.Records {
		if params.PublishedOnly && admissions.ParseMarker(models.Str(rec.ResultDir)).Kind != admissions.MarkerPublished {
			continue
		}
		rows = append(rows, rec)
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].ApplicationNo < rows[j].ApplicationNo })

	dataset := export.Dataset{Headers: resultHeaders, Rows: make([]map[string]string, 0, len(rows))}
	for _, rec := range rows {
		dataset.Rows = append(dataset.Rows, map[string]string{
			colApplicationNo: rec.ApplicationNo,
			colName:          rec.Name,
			colDepartment:    rec.Department,
			colProgramType:   string(rec.ProgramType),
			colWritten:       rec.WrittenMarks.String(),
			colInterview:     rec.InterviewMarks.String(),
			colTotal:         rec.TotalMarks.TotalString(),
			colResult:        string(admissions.Qualify(rec.TotalMarks.Mark, s.cfg.QualifyThreshold)),
		})
	}

	title := "Results - " + f.Institution()
	if dept := strings.TrimSpace(params.Department); dept != "" {
		title += " / " + dept
	}
	return dataset, title, nil
}

// ParseToken validates download token metadata.
func (s *ExportService) ParseToken(token string, allowExpired bool) (jobID, relPath string, expiresAt time.Time, err error) {
	return s.signer.Parse(token, allowExpired)
}

// Open returns a handle to the stored file.
func (s *ExportService) Open(relPath string) (*os.File, error) {
	return s.storage.Open(relPath)
}

// Delete removes a stored export file.
func (s *ExportService) Delete(relPath string) error {
	return s.storage.Delete(relPath)
}

// Cleanup removes files older than ttl, or the configured ResultTTL when ttl <= 0.
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(ttl)
}

func (s *ExportService) buildFilename(job *models.ExportJob) string {
	timestamp := s.now().UTC().Format("20060102_150405")
	scope := sanitizeFilename(job.Params.Faculty)
	if job.Params.Department != "" {
		scope += "_" + sanitizeFilename(job.Params.Department)
	}
	return fmt.Sprintf("results/%s_%s_%s.%s", strings.ToLower(scope), timestamp, job.ID, job.Params.Format)
}

func sanitizeFilename(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return "na"
	}
	var b strings.Builder
	lastUnderscore := false
	for _, r := range strings.TrimSpace(raw) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	result := strings.Trim(b.String(), "_")
	if result == "" {
		return "na"
	}
	if len(result) > 60 {
		return result[:60]
	}
	return result
}
