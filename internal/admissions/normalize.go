package admissions

import (
	"regexp"
	"strings"
)

// NormalizeName lowercases, replaces "&" with "and", collapses whitespace and trims.
func NormalizeName(s string) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, "&", " and ")
	return strings.Join(strings.Fields(s), " ")
}

// normalizeDepartment also drops the "department of" prefix used inconsistently upstream.
func normalizeDepartment(s string) string {
	n := NormalizeName(s)
	n = strings.TrimPrefix(n, "department of ")
	n = strings.TrimPrefix(n, "dept of ")
	n = strings.TrimPrefix(n, "dept. of ")
	return strings.TrimSpace(n)
}

var programDepartment = regexp.MustCompile(`^[^-]*-\s*([^(]+)`)

// DepartmentFromProgram extracts DEPARTMENT from "<degree> - <DEPARTMENT> (...)".
func DepartmentFromProgram(program string) string {
	m := programDepartment.FindStringSubmatch(program)
	if len(m) < 2 {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// DeriveDepartment returns department, or the one embedded in program when blank.
func DeriveDepartment(department, program string) string {
	if d := strings.TrimSpace(department); d != "" {
		return d
	}
	return DepartmentFromProgram(program)
}
