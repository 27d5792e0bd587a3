package admissions

import "strings"

// MarkerKind enumerates the workflow status strings written to records.
type MarkerKind int

const (
	MarkerNone MarkerKind = iota
	// MarkerForwardedTo is the faculty-level forward: "Forwarded to <Faculty>".
	MarkerForwardedTo
	// MarkerForwardedToCode is the department-level forward: "FORWARDED_TO_<CODE>".
	MarkerForwardedToCode
	// MarkerBackTo is the department's return to the university: "Back_To_<Faculty>".
	MarkerBackTo
	MarkerRevert
	// MarkerInterviewForward is the interview-stage forward: "Forwarded_To_<Faculty>".
	MarkerInterviewForward
	MarkerDirector
	MarkerPublished
)

const (
	prefixForwardedTo      = "Forwarded to "
	prefixForwardedToCode  = "FORWARDED_TO_"
	prefixBackTo           = "Back_To_"
	prefixInterviewForward = "Forwarded_To_"
	prefixPublished        = "Published to "
	textRevert             = "Revert"
	textDirector           = "Forwarded to Director"
)

// Marker is a parsed status value: a kind plus the faculty or code it refers to.
type Marker struct {
	Kind    MarkerKind
	Faculty Faculty
	Code    DeptCode
}

// String is the single formatter for every status string in the pipeline.
func (m Marker) String() string {
	switch m.Kind {
	case MarkerForwardedTo:
		return prefixForwardedTo + string(m.Faculty)
	case MarkerForwardedToCode:
		return prefixForwardedToCode + string(m.Code)
	case MarkerBackTo:
		return prefixBackTo + string(m.Faculty)
	case MarkerRevert:
		return textRevert
	case MarkerInterviewForward:
		return prefixInterviewForward + string(m.Faculty)
	case MarkerDirector:
		return textDirector
	case MarkerPublished:
		return prefixPublished + string(m.Faculty)
	default:
		return ""
	}
}

// Ptr returns the formatted marker for optional columns; MarkerNone yields nil.
func (m Marker) Ptr() *string {
	if m.Kind == MarkerNone {
		return nil
	}
	s := m.String()
	return &s
}

// Marker constructors.

func ForwardedTo(f Faculty) Marker { return Marker{Kind: MarkerForwardedTo, Faculty: f} }
func ForwardedToCode(c DeptCode) Marker { return Marker{Kind: MarkerForwardedToCode, Code: c} }
func BackTo(f Faculty) Marker { return Marker{Kind: MarkerBackTo, Faculty: f} }
func Revert() Marker { return Marker{Kind: MarkerRevert} }
func InterviewForward(f Faculty) Marker { return Marker{Kind: MarkerInterviewForward, Faculty: f} }
func DirectorForward() Marker { return Marker{Kind: MarkerDirector} }
func PublishedTo(f Faculty) Marker { return Marker{Kind: MarkerPublished, Faculty: f} }

// ParseMarker reads a stored status string back into a Marker.
func ParseMarker(text string) Marker {
	t := strings.TrimSpace(text)
	switch {
	case t == "":
		return Marker{}
	case strings.EqualFold(t, textRevert):
		return Revert()
	case strings.EqualFold(t, textDirector):
		return DirectorForward()
	case strings.HasPrefix(t, prefixForwardedToCode):
		return ForwardedToCode(DeptCode(strings.TrimPrefix(t, prefixForwardedToCode)))
	case strings.HasPrefix(t, prefixInterviewForward):
		return InterviewForward(parseFaculty(strings.TrimPrefix(t, prefixInterviewForward)))
	case strings.HasPrefix(t, prefixBackTo):
		return BackTo(parseFaculty(strings.TrimPrefix(t, prefixBackTo)))
	case hasPrefixFold(t, prefixForwardedTo):
		return ForwardedTo(parseFaculty(t[len(prefixForwardedTo):]))
	case hasPrefixFold(t, prefixPublished):
		return PublishedTo(parseFaculty(t[len(prefixPublished):]))
	default:
		return Marker{}
	}
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}

func parseFaculty(s string) Faculty {
	for _, f := range Faculties {
		if strings.EqualFold(s, string(f)) {
			return f
		}
	}
	if f, ok := DetectFaculty(s); ok {
		return f
	}
	return Faculty(s)
}

// ExpectedStatus returns the faculty-level forward status for a faculty name.
func ExpectedStatus(faculty string) (string, bool) {
	f, ok := DetectFaculty(faculty)
	if !ok {
		return "", false
	}
	return ForwardedTo(f).String(), true
}

// ExpectedFacultyStatus returns the department-level forward status for a code.
func ExpectedFacultyStatus(code DeptCode) string {
	return ForwardedToCode(code).String()
}

// FacultyFromContexts detects the faculty from the first context that names one.
func FacultyFromContexts(contexts ...string) (Faculty, bool) {
	for _, c := range contexts {
		if f, ok := DetectFaculty(c); ok {
			return f, true
		}
	}
	return "", false
}

// DeptStatusForForward builds Back_To_<Faculty> from the given contexts in priority order.
// The bool is false when no context resolved and the Engineering default was used.
func DeptStatusForForward(contexts ...string) (Marker, bool) {
	if f, ok := FacultyFromContexts(contexts...); ok {
		return BackTo(f), true
	}
	return BackTo(FacultyEngineering), false
}

// IsForwarded reports whether an examination status already carries a forward.
func IsForwarded(status string) bool {
	return strings.Contains(strings.ToLower(status), "forwarded")
}
