package admissions

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/scholar-admissions-api/internal/models"
)

func TestFilterForRoleInstitutionThenDepartment(t *testing.T) {
	records := []models.Scholar{
		{ID: "1", Institution: "Engineering And Technology", Department: "Mechanical Engineering"},
		{ID: "2", Institution: "Science And Humanities", Department: "Mechanical Engineering"},
	}
	result := NewMatcher().FilterForRole(records, "Faculty of Engineering & Technology", "Mechanical Engineering")
	require.Len(t, result.Records, 1)
	assert.Equal(t, "1", result.Records[0].ID)
	assert.Equal(t, TierDepartmentCode, result.Tier)
}

func TestFilterForRoleInstitutionSubstringRetry(t *testing.T) {
	records := []models.Scholar{
		{ID: "1", Institution: "SRM Engineering Campus", Department: "Civil Engineering"},
		{ID: "2", Institution: "Management Studies", Department: "Civil Engineering"},
	}
	result := NewMatcher().FilterForRole(records, "Engineering & Technology", "Civil Engineering")
	require.Len(t, result.Records, 1)
	assert.Equal(t, "1", result.Records[0].ID)
}

func TestFilterForRoleDerivesDepartmentFromProgram(t *testing.T) {
	records := []models.Scholar{
		{ID: "1", Institution: "Science And Humanities", Program: "Ph.D. - BIOCHEMISTRY (Full Time)"},
		{ID: "2", Institution: "Science And Humanities", Program: "Ph.D. - CHEMISTRY (Full Time)"},
	}
	result := NewMatcher().FilterForRole(records, "Faculty of Science & Humanities", "Biochemistry")
	require.Len(t, result.Records, 1)
	assert.Equal(t, "1", result.Records[0].ID)
	assert.Equal(t, TierDepartmentCode, result.Tier)
}

func TestFilterForRoleTextFallback(t *testing.T) {
	records := []models.Scholar{
		{ID: "1", Institution: "Science And Humanities", Department: "Department of Sanskrit Studies"},
		{ID: "2", Institution: "Science And Humanities", Department: "Tamil"},
	}
	result := NewMatcher().FilterForRole(records, "Science & Humanities", "Sanskrit")
	require.Len(t, result.Records, 1)
	assert.Equal(t, "1", result.Records[0].ID)
	assert.Equal(t, TierText, result.Tier)
}

func TestFilterForRoleInstitutionFallbackToggle(t *testing.T) {
	records := []models.Scholar{
		{ID: "1", Institution: "Science And Humanities", Department: "Tamil"},
		{ID: "2", Institution: "Science And Humanities", Department: "English"},
	}

	result := NewMatcher().FilterForRole(records, "Science & Humanities", "Astrophysics Lab")
	assert.Equal(t, TierInstitutionFallback, result.Tier)
	assert.Len(t, result.Records, 2)

	result = NewMatcher(WithInstitutionFallback(false)).FilterForRole(records, "Science & Humanities", "Astrophysics Lab")
	assert.Equal(t, TierNone, result.Tier)
	assert.Empty(t, result.Records)
}

func TestFilterForRoleKeywordRetryStaysInFaculty(t *testing.T) {
	medical := models.Scholar{ID: "m-1", Institution: "Medical And Health Sciences", Department: "Pharmacology"}
	science := models.Scholar{ID: "s-1", Institution: "SRM Science Campus", Department: "Chemistry"}

	result := NewMatcher().FilterForRole([]models.Scholar{medical}, "Faculty of Science & Humanities", "Chemistry")
	assert.Equal(t, TierNone, result.Tier)
	assert.Empty(t, result.Records)

	result = NewMatcher().FilterForRole([]models.Scholar{medical, science}, "Faculty of Science & Humanities", "Chemistry")
	require.Len(t, result.Records, 1)
	assert.Equal(t, "s-1", result.Records[0].ID)

	scoped := InstitutionScope([]models.Scholar{medical, science}, "Science")
	require.Len(t, scoped, 1)
	assert.Equal(t, "s-1", scoped[0].ID)
}

func TestFilterForRoleScopes(t *testing.T) {
	records := []models.Scholar{
		{ID: "1", Institution: "Management", Department: "MBA"},
		{ID: "2", Institution: "Engineering And Technology", Department: "CSE"},
	}
	m := NewMatcher()

	all := m.FilterForRole(records, "", "")
	assert.Equal(t, TierAll, all.Tier)
	assert.Len(t, all.Records, 2)

	faculty := m.FilterForRole(records, "Faculty of Management", "")
	assert.Equal(t, TierInstitution, faculty.Tier)
	assert.Equal(t, []string{"1"}, faculty.IDs())
	assert.True(t, faculty.Contains("1"))
	assert.False(t, faculty.Contains("2"))

	none := m.FilterForRole(records, "Faculty of Law", "Torts")
	assert.Equal(t, TierNone, none.Tier)
	assert.Empty(t, none.Records)
}

func TestNormalizeName(t *testing.T) {
	assert.Equal(t, "science and humanities", NormalizeName("  Science   &  Humanities "))
	assert.Equal(t, "engineering and technology", NormalizeName("Engineering&Technology"))
	assert.Equal(t, "MECHANICAL ENGINEERING", DepartmentFromProgram("Ph.D. - MECHANICAL ENGINEERING (Part Time)"))
	assert.Equal(t, "Civil", DeriveDepartment(" Civil ", "Ph.D. - MECH (Full Time)"))
	assert.Equal(t, "MECH", DeriveDepartment("", "Ph.D. - MECH (Full Time)"))
	assert.Equal(t, "", DepartmentFromProgram("PhD"))
}

func TestGroupByFaculty(t *testing.T) {
	records := []models.Scholar{
		{ID: "1", Institution: "Management"},
		{ID: "2", Faculty: "Faculty of Engineering & Technology"},
		{ID: "3", Institution: "Unknown"},
		{ID: "4", Institution: "Engineering And Technology"},
	}
	groups := GroupByFaculty(records)
	require.Len(t, groups, 3)
	assert.Equal(t, FacultyEngineering, groups[0].Faculty)
	assert.Len(t, groups[0].Records, 2)
	assert.Equal(t, FacultyManagement, groups[1].Faculty)
	assert.Equal(t, Unassigned, groups[2].Faculty)
}

func TestInterviewFacultyPrefersDepartmentCode(t *testing.T) {
	rec := models.Scholar{Department: "Computer Science and Engineering"}
	f, ok := InterviewFaculty(rec)
	assert.True(t, ok)
	assert.Equal(t, FacultyEngineering, f)

	f, ok = InterviewFaculty(models.Scholar{Institution: "Management", Department: "Unheard Of Studies"})
	assert.True(t, ok)
	assert.Equal(t, FacultyManagement, f)

	_, ok = InterviewFaculty(models.Scholar{Department: "Unheard Of Studies"})
	assert.False(t, ok)
}
