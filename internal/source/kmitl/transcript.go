package kmitl

import (
	"encoding/json"
	"fmt"

	"academic-sync-service/internal/retry"
	"academic-sync-service/internal/source"
)

// transcript groups subjects by semester, the way the student portal exports them.
type transcript struct {
	Semesters []struct {
		Year     source.FlexString `json:"year"`
		Term     source.FlexString `json:"term"`
		Subjects []struct {
			SubjectID   string            `json:"subject_id"`
			SubjectName string            `json:"subject_name_en"`
			Credit      source.FlexString `json:"credit"`
			Grade       string            `json:"grade"`
		} `json:"subjects"`
	} `json:"semesters"`
}

func (a *Adapter) NormalizeTranscript(raw json.RawMessage) ([]source.TranscriptCourse, error) {
	var t transcript
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, retry.Permanent(fmt.Errorf("kmitl: invalid input: transcript: %w", err))
	}

	var out []source.TranscriptCourse
	for _, sem := range t.Semesters {
		for _, s := range sem.Subjects {
			tc, err := source.NewTranscriptCourse(s.SubjectID, s.SubjectName, s.Credit, s.Grade, sem.Year, sem.Term)
			if err != nil {
				return nil, err
			}
			out = append(out, tc)
		}
	}
	return out, nil
}
