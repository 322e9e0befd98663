package chula

import (
	"encoding/json"
	"fmt"

	"academic-sync-service/internal/retry"
	"academic-sync-service/internal/source"
)

// transcript is the registrar's flat grade report.
type transcript struct {
	Courses []struct {
		CourseCode   string            `json:"course_code"`
		CourseName   string            `json:"course_name"`
		Credit       source.FlexString `json:"credit"`
		Grade        string            `json:"grade"`
		AcademicYear source.FlexString `json:"academic_year"`
		Semester     source.FlexString `json:"semester"`
	} `json:"courses"`
}

func (a *Adapter) NormalizeTranscript(raw json.RawMessage) ([]source.TranscriptCourse, error) {
	var t transcript
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, retry.Permanent(fmt.Errorf("chula: invalid input: transcript: %w", err))
	}

	out := make([]source.TranscriptCourse, 0, len(t.Courses))
	for _, c := range t.Courses {
		tc, err := source.NewTranscriptCourse(c.CourseCode, c.CourseName, c.Credit, c.Grade, c.AcademicYear, c.Semester)
		if err != nil {
			return nil, err
		}
		out = append(out, tc)
	}
	return out, nil
}
