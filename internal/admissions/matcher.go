package admissions

import (
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/scholar-admissions-api/internal/models"
)

// Tier names the stage of the matching chain that produced a working set.
type Tier string

const (
	TierAll                 Tier = "all"
	TierNone                Tier = "none"
	TierInstitution         Tier = "institution"
	TierDepartmentCode      Tier = "department_code"
	TierText                Tier = "text"
	TierInstitutionFallback Tier = "institution_fallback"
)

// MatchQuery is the role scope a working set is computed for.
type MatchQuery struct {
	Faculty    string
	Department string
}

// MatchResult is the working set together with the tier that produced it.
type MatchResult struct {
	Records []models.Scholar
	Tier    Tier
}

// IDs returns the identifiers of the matched records.
func (r MatchResult) IDs() []string {
	ids := make([]string, 0, len(r.Records))
	for _, rec := range r.Records {
		ids = append(ids, rec.ID)
	}
	return ids
}

// Contains reports whether the working set holds id.
func (r MatchResult) Contains(id string) bool {
	for _, rec := range r.Records {
		if rec.ID == id {
			return true
		}
	}
	return false
}

// Strategy is one department-matching tier applied to the institution-scoped records.
type Strategy interface {
	Tier() Tier
	Match(records []models.Scholar, q MatchQuery) []models.Scholar
}

// Matcher scopes records to a role by institution and then by the first department
// strategy that yields a non-empty result.
type Matcher struct {
	strategies          []Strategy
	institutionFallback bool
	logger              *zap.Logger
}

// MatcherOption configures a Matcher.
type MatcherOption func(*Matcher)

// WithInstitutionFallback toggles returning the whole institution set when no strategy matches.
func WithInstitutionFallback(enabled bool) MatcherOption {
	return func(m *Matcher) {
		m.institutionFallback = enabled
	}
}

// WithStrategies replaces the department strategy chain.
func WithStrategies(strategies ...Strategy) MatcherOption {
	return func(m *Matcher) {
		m.strategies = strategies
	}
}

// WithMatcherLogger sets the logger used for fallback warnings.
func WithMatcherLogger(logger *zap.Logger) MatcherOption {
	return func(m *Matcher) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewMatcher builds the default chain: department code, then text containment.
func NewMatcher(opts ...MatcherOption) *Matcher {
	m := &Matcher{
		strategies:          []Strategy{DepartmentCodeStrategy{}, TextStrategy{}},
		institutionFallback: true,
		logger:              zap.NewNop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// FilterForRole computes the working set of a (faculty, department) scope.
func (m *Matcher) FilterForRole(records []models.Scholar, faculty, department string) MatchResult {
	q := MatchQuery{Faculty: faculty, Department: department}
	if strings.TrimSpace(faculty) == "" && strings.TrimSpace(department) == "" {
		return MatchResult{Records: records, Tier: TierAll}
	}

	scoped := records
	if strings.TrimSpace(faculty) != "" {
		scoped = InstitutionScope(records, faculty)
		if len(scoped) == 0 {
			return MatchResult{Records: []models.Scholar{}, Tier: TierNone}
		}
	}
	if strings.TrimSpace(department) == "" {
		return MatchResult{Records: scoped, Tier: TierInstitution}
	}

	for _, strategy := range m.strategies {
		if matched := strategy.Match(scoped, q); len(matched) > 0 {
			return MatchResult{Records: matched, Tier: strategy.Tier()}
		}
	}

	if m.institutionFallback && strings.TrimSpace(faculty) != "" {
		m.logger.Warn("department unresolved, using institution fallback",
			zap.String("faculty", faculty),
			zap.String("department", department),
			zap.Int("records", len(scoped)),
		)
		return MatchResult{Records: scoped, Tier: TierInstitutionFallback}
	}
	return MatchResult{Records: []models.Scholar{}, Tier: TierNone}
}

// InstitutionScope keeps records whose institution matches the faculty's canonical label,
// retrying with a substring match on the label's first keyword. The retry never admits a
// record whose institution names another faculty.
func InstitutionScope(records []models.Scholar, faculty string) []models.Scholar {
	f, ok := DetectFaculty(faculty)
	if !ok {
		return nil
	}
	label := NormalizeName(f.Institution())
	out := make([]models.Scholar, 0)
	for _, rec := range records {
		if NormalizeName(rec.Institution) == label {
			out = append(out, rec)
		}
	}
	if len(out) > 0 {
		return out
	}
	kw := f.Keyword()
	for _, rec := range records {
		if !strings.Contains(strings.ToLower(rec.Institution), kw) {
			continue
		}
		// "Medical And Health Sciences" contains the science keyword.
		if detected, ok := DetectFaculty(rec.Institution); ok && detected != f {
			continue
		}
		out = append(out, rec)
	}
	return out
}

// DepartmentCodeStrategy compares resolved department codes, falling back to the
// department embedded in the program text.
type DepartmentCodeStrategy struct{}

// Tier implements Strategy.
func (DepartmentCodeStrategy) Tier() Tier { return TierDepartmentCode }

// Match implements Strategy.
func (DepartmentCodeStrategy) Match(records []models.Scholar, q MatchQuery) []models.Scholar {
	target := ResolveCode(q.Department, q.Faculty)
	if target == CodeUnknown {
		return nil
	}
	var out []models.Scholar
	for _, rec := range records {
		if RecordCode(rec) == target {
			out = append(out, rec)
		}
	}
	return out
}

// RecordCode resolves a record's own department code.
func RecordCode(rec models.Scholar) DeptCode {
	facultyCtx := rec.Faculty
	if strings.TrimSpace(facultyCtx) == "" {
		facultyCtx = rec.Institution
	}
	if code := ResolveCode(rec.Department, facultyCtx); code != CodeUnknown {
		return code
	}
	return ResolveCode(DepartmentFromProgram(rec.Program), facultyCtx)
}

// InterviewFaculty resolves the faculty an interview forward goes to: from the record's
// department code first, then from faculty keywords in the faculty and institution columns.
func InterviewFaculty(rec models.Scholar) (Faculty, bool) {
	if f, ok := CodeFaculty(RecordCode(rec)); ok {
		return f, true
	}
	return FacultyFromContexts(rec.Faculty, rec.Institution)
}

// TextStrategy matches by mutual containment of normalized department names.
type TextStrategy struct{}

// Tier implements Strategy.
func (TextStrategy) Tier() Tier { return TierText }

// Match implements Strategy.
func (TextStrategy) Match(records []models.Scholar, q MatchQuery) []models.Scholar {
	target := normalizeDepartment(q.Department)
	if target == "" {
		return nil
	}
	var out []models.Scholar
	for _, rec := range records {
		for _, candidate := range []string{rec.Department, DepartmentFromProgram(rec.Program)} {
			c := normalizeDepartment(candidate)
			if c != "" && (strings.Contains(c, target) || strings.Contains(target, c)) {
				out = append(out, rec)
				break
			}
		}
	}
	return out
}

// FacultyGroup is a display bucket of records sharing a faculty.
type FacultyGroup struct {
	Faculty Faculty          `json:"faculty"`
	Records []models.Scholar `json:"records"`
}

// Unassigned groups records whose faculty could not be detected.
const Unassigned Faculty = "Unassigned"

// GroupByFaculty buckets records by detected faculty in display order.
func GroupByFaculty(records []models.Scholar) []FacultyGroup {
	buckets := make(map[Faculty][]models.Scholar)
	for _, rec := range records {
		f, ok := FacultyFromContexts(rec.Faculty, rec.Institution)
		if !ok {
			f = Unassigned
		}
		buckets[f] = append(buckets[f], rec)
	}
	groups := make([]FacultyGroup, 0, len(buckets))
	for _, f := range append(append([]Faculty{}, Faculties...), Unassigned) {
		if recs, ok := buckets[f]; ok {
			groups = append(groups, FacultyGroup{Faculty: f, Records: recs})
		}
	}
	return groups
}
