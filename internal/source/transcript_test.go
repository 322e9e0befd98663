package source

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"academic-sync-service/internal/retry"
)

func TestNewTranscriptCourse(t *testing.T) {
	c, err := NewTranscriptCourse(" 2110101 ", "Computer Programming", "3", " b+ ", "2566", "1")
	require.NoError(t, err)
	assert.Equal(t, TranscriptCourse{
		CourseCode:   "2110101",
		CourseName:   "Computer Programming",
		Credits:      3,
		Grade:        "B+",
		Semester:     "2566/1",
		AcademicYear: 2566,
	}, c)

	c, err = NewTranscriptCourse("90641001", "Thai Character", "1.5", "s", "2566", "2")
	require.NoError(t, err)
	assert.InDelta(t, 1.5, c.Credits, 0.001)
	assert.Equal(t, "S", c.Grade)
}

func TestNewTranscriptCourseRejectsBadLines(t *testing.T) {
	cases := map[string][5]FlexString{
		"missing code":  {"", "A", "3", "2566", "1"},
		"unknown grade": {"2110101", "E", "3", "2566", "1"},
		"bad credits":   {"2110101", "A", "three", "2566", "1"},
		"neg credits":   {"2110101", "A", "-1", "2566", "1"},
		"bad year":      {"2110101", "A", "3", "next", "1"},
		"missing term":  {"2110101", "A", "3", "2566", ""},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewTranscriptCourse(string(in[0]), "x", in[2], string(in[1]), in[3], in[4])
			require.Error(t, err)
			assert.True(t, retry.IsPermanent(err))
		})
	}
}

func TestTranscriptNormalizerFor(t *testing.T) {
	_, err := TranscriptNormalizerFor(stubAdapter{"MIT"})
	require.ErrorIs(t, err, ErrTranscriptsUnsupported)
	assert.True(t, retry.IsPermanent(err))
}
