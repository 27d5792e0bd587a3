package admissions

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveCode(t *testing.T) {
	cases := []struct {
		department string
		faculty    string
		want       DeptCode
	}{
		{"Biochemistry", "Faculty of Science & Humanities", "BIOCHEM_SCI"},
		{"Chemistry", "Faculty of Science & Humanities", "CHEM_SCI"},
		{"Mechanical Engineering", "Faculty of Engineering & Technology", "MECH"},
		{"Department of Computer Science and Engineering", "Engineering And Technology", "CSE"},
		{"Electronics & Communication Engineering", "Engineering and Technology", "ECE"},
		{"Pharmacology", "Medical & Health Sciences", "PHARMACOL"},
		{"Pharmaceutics", "Medical & Health Sciences", "PHARM"},
		{"Microbiology", "Faculty of Medical and Health Sciences", "MICRO_MED"},
		{"Microbiology", "Science and Humanities", "MICRO_SCI"},
		{"Business Administration", "Faculty of Management", "MBA"},
		{"mech", "Faculty of Engineering & Technology", "MECH"},
		{"Civil Engineering", "", "CIVIL"},
		{"Underwater Basket Weaving", "Faculty of Science & Humanities", CodeUnknown},
		{"", "Faculty of Engineering & Technology", CodeUnknown},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ResolveCode(tc.department, tc.faculty), "%s / %s", tc.department, tc.faculty)
	}
}

func TestResolveCodeSpecificBeforeBroad(t *testing.T) {
	code := ResolveCode("Biochemistry", "Faculty of Science & Humanities")
	assert.NotEqual(t, DeptCode("CHEM_SCI"), code)
}

func TestDetectFacultyPrefersMedicalOverScience(t *testing.T) {
	f, ok := DetectFaculty("Faculty of Medical & Health Sciences")
	assert.True(t, ok)
	assert.Equal(t, FacultyMedical, f)

	f, ok = DetectFaculty("School of Business")
	assert.True(t, ok)
	assert.Equal(t, FacultyManagement, f)

	_, ok = DetectFaculty("Faculty of Law")
	assert.False(t, ok)
}

func TestCodeFaculty(t *testing.T) {
	f, ok := CodeFaculty("BIOCHEM_MED")
	assert.True(t, ok)
	assert.Equal(t, FacultyMedical, f)

	_, ok = CodeFaculty(CodeUnknown)
	assert.False(t, ok)
}

func TestMatchFaculty(t *testing.T) {
	cases := map[string]Faculty{
		"Engineering":                             FacultyEngineering,
		"Faculty of Engineering & Technology":     FacultyEngineering,
		"science and humanities":                  FacultyScience,
		"Medical And Health Sciences":             FacultyMedical,
		"School of Business":                      FacultyManagement,
		"  Faculty of Medical & Health Sciences ": FacultyMedical,
	}
	for input, want := range cases {
		got, ok := MatchFaculty(input)
		assert.True(t, ok, input)
		assert.Equal(t, want, got, input)
	}

	_, ok := MatchFaculty("Directorate")
	assert.False(t, ok)
}
