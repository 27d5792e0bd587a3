package admissions

import "strings"

// Faculty is one of the four top-level academic divisions.
type Faculty string

const (
	FacultyEngineering Faculty = "Engineering"
	FacultyScience     Faculty = "Science"
	FacultyMedical     Faculty = "Medical"
	FacultyManagement  Faculty = "Management"
)

// Faculties lists the divisions in display order.
var Faculties = []Faculty{FacultyEngineering, FacultyScience, FacultyMedical, FacultyManagement}

// Institution returns the canonical institution label stored on records.
func (f Faculty) Institution() string {
	switch f {
	case FacultyEngineering:
		return "Engineering And Technology"
	case FacultyScience:
		return "Science And Humanities"
	case FacultyMedical:
		return "Medical And Health Sciences"
	case FacultyManagement:
		return "Management"
	default:
		return ""
	}
}

// Keyword is the first token of the institution label, used for substring retries.
func (f Faculty) Keyword() string {
	return strings.ToLower(string(f))
}

// facultyKeywords are checked in order; medical comes before science so
// "Medical & Health Sciences" is not read as Science.
var facultyKeywords = []struct {
	faculty  Faculty
	keywords []string
}{
	{FacultyMedical, []string{"medical", "health", "dentistry", "dental"}},
	{FacultyEngineering, []string{"engineering", "technology"}},
	{FacultyManagement, []string{"management", "business"}},
	{FacultyScience, []string{"science", "humanities"}},
}

// DetectFaculty finds the faculty named by free text using keyword containment.
func DetectFaculty(text string) (Faculty, bool) {
	n := NormalizeName(text)
	if n == "" {
		return "", false
	}
	for _, entry := range facultyKeywords {
		for _, kw := range entry.keywords {
			if strings.Contains(n, kw) {
				return entry.faculty, true
			}
		}
	}
	return "", false
}

// MatchFaculty resolves free text to a faculty: an exact match on the faculty name or its
// institution label first, keyword detection second.
func MatchFaculty(text string) (Faculty, bool) {
	n := strings.TrimPrefix(NormalizeName(text), "faculty of ")
	if n == "" {
		return "", false
	}
	for _, f := range Faculties {
		if n == NormalizeName(string(f)) || n == NormalizeName(f.Institution()) {
			return f, true
		}
	}
	return DetectFaculty(n)
}

// DeptCode is the canonical short identifier of a department.
type DeptCode string

// CodeUnknown means resolution failed; callers must treat it as "match nothing".
const CodeUnknown DeptCode = "UNKNOWN"

type codeRule struct {
	contains []string
	code     DeptCode
}

// Rule order is significant: specific names precede the broader names they contain.
var facultyCodeRules = map[Faculty][]codeRule{
	FacultyEngineering: {
		{[]string{"artificial intelligence", "data science"}, "AI"},
		{[]string{"computer science", "computer engineering"}, "CSE"},
		{[]string{"information technology"}, "IT"},
		{[]string{"electronics and communication"}, "ECE"},
		{[]string{"electrical"}, "EEE"},
		{[]string{"mechatronics"}, "MECHATRONICS"},
		{[]string{"mechanical"}, "MECH"},
		{[]string{"civil"}, "CIVIL"},
		{[]string{"biomedical"}, "BME"},
		{[]string{"biotechnology"}, "BIOTECH"},
		{[]string{"chemical engineering"}, "CHEM_ENG"},
		{[]string{"automobile"}, "AUTO"},
		{[]string{"aerospace", "aeronautical"}, "AERO"},
		{[]string{"nanotechnology"}, "NANO"},
		{[]string{"physics"}, "PHYSICS_ENG"},
		{[]string{"chemistry"}, "CHEMISTRY_ENG"},
		{[]string{"mathematics", "maths"}, "MATHS_ENG"},
		{[]string{"english"}, "ENGLISH_ENG"},
	},
	FacultyScience: {
		{[]string{"biochemistry"}, "BIOCHEM_SCI"},
		{[]string{"microbiology"}, "MICRO_SCI"},
		{[]string{"biotechnology"}, "BIOTECH_SCI"},
		{[]string{"chemistry"}, "CHEM_SCI"},
		{[]string{"computer application"}, "MCA"},
		{[]string{"computer science"}, "CS_SCI"},
		{[]string{"mathematics", "maths"}, "MATH_SCI"},
		{[]string{"physics"}, "PHY_SCI"},
		{[]string{"english"}, "ENG_SCI"},
		{[]string{"tamil"}, "TAMIL"},
		{[]string{"commerce"}, "COM"},
		{[]string{"economics"}, "ECO"},
		{[]string{"psychology"}, "PSY"},
		{[]string{"journalism", "mass communication"}, "JMC"},
		{[]string{"visual communication"}, "VISCOM"},
		{[]string{"hotel"}, "HOTEL"},
		{[]string{"fashion"}, "FASHION"},
		{[]string{"defence", "defense"}, "DEF"},
	},
	FacultyMedical: {
		{[]string{"pharmacology"}, "PHARMACOL"},
		{[]string{"pharm"}, "PHARM"},
		{[]string{"nursing"}, "NURS"},
		{[]string{"dental", "dentistry"}, "DENT"},
		{[]string{"physiotherapy"}, "PHYSIO"},
		{[]string{"public health"}, "PH"},
		{[]string{"occupational therapy"}, "OT"},
		{[]string{"biochemistry"}, "BIOCHEM_MED"},
		{[]string{"anatomy"}, "ANAT"},
		{[]string{"physiology"}, "PHYSIOL"},
		{[]string{"microbiology"}, "MICRO_MED"},
		{[]string{"allied health"}, "AHS"},
		{[]string{"medicine", "medical"}, "MED"},
	},
	FacultyManagement: {
		{[]string{"business administration", "mba"}, "MBA"},
		{[]string{"commerce"}, "COM_MGMT"},
		{[]string{"hotel"}, "HOTEL_MGMT"},
		{[]string{"management"}, "MGMT"},
	},
}

// compoundCodeRules apply when no faculty-scoped rule matched.
var compoundCodeRules = []codeRule{
	{[]string{"computer science and engineering"}, "CSE"},
	{[]string{"electronics and communication"}, "ECE"},
	{[]string{"electrical and electronics"}, "EEE"},
	{[]string{"information technology"}, "IT"},
	{[]string{"mechanical engineering"}, "MECH"},
	{[]string{"civil engineering"}, "CIVIL"},
	{[]string{"biomedical engineering"}, "BME"},
	{[]string{"business administration"}, "MBA"},
	{[]string{"hotel management"}, "HOTEL_MGMT"},
	{[]string{"visual communication"}, "VISCOM"},
}

var codeFaculty = func() map[DeptCode]Faculty {
	out := make(map[DeptCode]Faculty)
	for faculty, rules := range facultyCodeRules {
		for _, rule := range rules {
			out[rule.code] = faculty
		}
	}
	return out
}()

// ResolveCode maps a free-text (department, faculty) pair to a department code.
func ResolveCode(department, faculty string) DeptCode {
	dept := normalizeDepartment(department)
	if dept == "" {
		return CodeUnknown
	}
	if f, ok := DetectFaculty(faculty); ok {
		rules := facultyCodeRules[f]
		upper := DeptCode(strings.ToUpper(strings.ReplaceAll(dept, " ", "_")))
		for _, rule := range rules {
			if rule.code == upper {
				return rule.code
			}
		}
		if code, ok := matchRules(dept, rules); ok {
			return code
		}
	}
	if code, ok := matchRules(dept, compoundCodeRules); ok {
		return code
	}
	return CodeUnknown
}

func matchRules(dept string, rules []codeRule) (DeptCode, bool) {
	for _, rule := range rules {
		for _, needle := range rule.contains {
			if strings.Contains(dept, needle) {
				return rule.code, true
			}
		}
	}
	return "", false
}

// CodeFaculty returns the faculty whose table defines code.
func CodeFaculty(code DeptCode) (Faculty, bool) {
	f, ok := codeFaculty[code]
	return f, ok
}
