package source

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"academic-sync-service/internal/retry"
)

var ErrTranscriptsUnsupported = errors.New("source does not accept transcripts")

// validGrades are the letter grades shared by Thai universities plus the pass/fail marks.
var validGrades = map[string]struct{}{
	"A": {}, "B+": {}, "B": {}, "C+": {}, "C": {}, "D+": {}, "D": {}, "F": {},
	"S": {}, "U": {}, "P": {}, "W": {}, "I": {}, "V": {},
}

// TranscriptCourse is one normalized course result, not yet tied to a student.
type TranscriptCourse struct {
	CourseCode   string
	CourseName   string
	Credits      float64
	Grade        string
	Semester     string // "<year>/<term>", e.g. "2566/1"
	AcademicYear int
}

// TranscriptNormalizer is implemented by adapters that can read raw student transcripts.
type TranscriptNormalizer interface {
	NormalizeTranscript(raw json.RawMessage) ([]TranscriptCourse, error)
}

// TranscriptNormalizerFor returns a's transcript normalizer or a permanent error.
func TranscriptNormalizerFor(a Adapter) (TranscriptNormalizer, error) {
	n, ok := a.(TranscriptNormalizer)
	if !ok {
		return nil, retry.Permanent(fmt.Errorf("%w: %s", ErrTranscriptsUnsupported, a.Code()))
	}
	return n, nil
}

// NewTranscriptCourse validates one raw course line. Bad lines are permanent errors:
// the submission will not get better by retrying.
func NewTranscriptCourse(code, name string, credits FlexString, grade string, year, term FlexString) (TranscriptCourse, error) {
	c := TranscriptCourse{
		CourseCode: strings.TrimSpace(code),
		CourseName: strings.TrimSpace(name),
		Grade:      NormalizeGrade(grade),
	}
	if c.CourseCode == "" {
		return c, retry.Permanent(errors.New("invalid input: course code is required"))
	}
	if _, ok := validGrades[c.Grade]; !ok {
		return c, retry.Permanent(fmt.Errorf("invalid input: course %s: grade %q", c.CourseCode, grade))
	}

	cr, err := strconv.ParseFloat(strings.TrimSpace(string(credits)), 64)
	if err != nil || cr < 0 {
		return c, retry.Permanent(fmt.Errorf("invalid input: course %s: credits %q", c.CourseCode, credits))
	}
	c.Credits = cr

	y, err := strconv.Atoi(strings.TrimSpace(string(year)))
	if err != nil || y <= 0 {
		return c, retry.Permanent(fmt.Errorf("invalid input: course %s: academic year %q", c.CourseCode, year))
	}
	t := strings.TrimSpace(string(term))
	if t == "" {
		return c, retry.Permanent(fmt.Errorf("invalid input: course %s: term is required", c.CourseCode))
	}
	c.AcademicYear = y
	c.Semester = fmt.Sprintf("%d/%s", y, t)
	return c, nil
}

func NormalizeGrade(g string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(g), " ", ""))
}
