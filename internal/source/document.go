package source

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"academic-sync-service/internal/entity"
	"academic-sync-service/internal/retry"
)

var (
	yearPattern = regexp.MustCompile(`\d{4}`)
	termPattern = regexp.MustCompile(`\((\d+)\)`)
)

// buddhistEraOffset converts a Gregorian year into the Thai calendar year.
const buddhistEraOffset = 543

// Item is the envelope adapters put around one course document.
type Item struct {
	CourseID string          `json:"course_id"`
	Status   int             `json:"status"`
	Data     json.RawMessage `json:"data"`
}

// Document is the syllabus document shape shared by the university exports.
type Document struct {
	Title            string `json:"title"`
	BasicInformation struct {
		CourseNo      string     `json:"course_no"`
		CourseTitleTh string     `json:"course_title_th"`
		CourseTitleEn string     `json:"course_title_en"`
		Credits       FlexString `json:"credits"`
		School        struct {
			SchoolID     int    `json:"school_id"`
			SchoolNameTh string `json:"school_name_th"`
			SchoolNameEn string `json:"school_name_en"`
		} `json:"school"`
		Department struct {
			DepartmentID     int    `json:"department_id"`
			DepartmentNameTh string `json:"department_name_th"`
			DepartmentNameEn string `json:"department_name_en"`
		} `json:"department"`
	} `json:"basic_information"`
	CourseInformation struct {
		AcademicYear FlexString `json:"academic_year"`
	} `json:"course_information"`
}

// FlexString accepts both JSON strings and numbers.
type FlexString string

func (f *FlexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = FlexString(n.String())
	return nil
}

// YearTerm derives the academic year and term. The year comes from course_information,
// then the first four-digit number in the title, then the current Thai year. The term is the
// parenthesized number in the title, "1" by default.
func (d Document) YearTerm(now time.Time) (year, term string) {
	year = string(d.CourseInformation.AcademicYear)
	if year == "" {
		year = yearPattern.FindString(d.Title)
	}
	if year == "" {
		year = strconv.Itoa(now.Year() + buddhistEraOffset)
	}

	term = "1"
	if m := termPattern.FindStringSubmatch(d.Title); m != nil {
		term = m[1]
	}
	return year, term
}

func (d Document) toSyllabus(sourceCode, courseID, year, term string, raw json.RawMessage) entity.Syllabus {
	bi := d.BasicInformation
	return entity.Syllabus{
		SourceCode:       sourceCode,
		CourseID:         courseID,
		CourseNo:         bi.CourseNo,
		CourseTitleTh:    bi.CourseTitleTh,
		CourseTitleEn:    bi.CourseTitleEn,
		Credits:          string(bi.Credits),
		SchoolID:         bi.School.SchoolID,
		SchoolNameTh:     bi.School.SchoolNameTh,
		SchoolNameEn:     bi.School.SchoolNameEn,
		DepartmentID:     bi.Department.DepartmentID,
		DepartmentNameTh: bi.Department.DepartmentNameTh,
		DepartmentNameEn: bi.Department.DepartmentNameEn,
		AcademicYear:     year,
		Term:             term,
		RawData:          entity.RawJSON(raw),
	}
}

// NormalizeItems turns Item envelopes into records. Items whose status is not 1 are skipped,
// as are records outside filters. A malformed item fails the whole page permanently.
func NormalizeItems(sourceCode string, items []json.RawMessage, filters Filters, now time.Time) ([]entity.Syllabus, error) {
	out := make([]entity.Syllabus, 0, len(items))
	for i, raw := range items {
		var it Item
		if err := json.Unmarshal(raw, &it); err != nil {
			return nil, retry.Permanent(fmt.Errorf("invalid input: item %d: %w", i, err))
		}
		if it.Status != 1 || len(it.Data) == 0 {
			continue
		}

		var doc Document
		if err := json.Unmarshal(it.Data, &doc); err != nil {
			return nil, retry.Permanent(fmt.Errorf("invalid input: course %s: %w", it.CourseID, err))
		}

		courseID := it.CourseID
		if courseID == "" {
			courseID = doc.BasicInformation.CourseNo
		}
		if courseID == "" {
			continue
		}

		year, term := doc.YearTerm(now)
		if !filters.Match(year, term) {
			continue
		}
		out = append(out, doc.toSyllabus(sourceCode, courseID, year, term, it.Data))
	}
	return out, nil
}

// EncodeItem wraps one course document in the Item envelope.
func EncodeItem(courseID string, status int, data json.RawMessage) (json.RawMessage, error) {
	return json.Marshal(Item{CourseID: courseID, Status: status, Data: data})
}
