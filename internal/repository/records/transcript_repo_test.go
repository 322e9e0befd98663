package records

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"academic-sync-service/internal/entity"
	"academic-sync-service/internal/repository"
)

func TestSubmissionRepository_Lifecycle(t *testing.T) {
	db := newTestDB(t)
	repo := NewSubmissionRepository(db)
	ctx := context.Background()

	s := &entity.TranscriptSubmission{SourceCode: "CHULA", StudentID: "6430000021", RawData: entity.RawJSON(`{"courses":[]}`)}
	require.NoError(t, repo.Create(ctx, s))
	assert.NotEmpty(t, s.ID)

	got, err := repo.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.IngestionPending, got.Status)
	assert.JSONEq(t, `{"courses":[]}`, string(got.RawData))

	require.NoError(t, repo.MarkProcessing(ctx, s.ID))
	got, err = repo.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.IngestionProcessing, got.Status)

	s.Status = entity.IngestionCompleted
	s.SavedCount = 4
	require.NoError(t, repo.Finish(ctx, s))
	got, err = repo.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.IngestionCompleted, got.Status)
	assert.Equal(t, 4, got.SavedCount)
	assert.NotNil(t, got.ProcessedAt)

	_, err = repo.Get(ctx, "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.ErrorIs(t, repo.MarkProcessing(ctx, "missing"), repository.ErrNotFound)
}

func TestTranscriptRepository_SaveUpsertsPerCourseAndSemester(t *testing.T) {
	db := newTestDB(t)
	repo := NewTranscriptRepository(db)
	ctx := context.Background()

	first := &entity.Transcript{
		SubmissionID: "s-1", SourceCode: "CHULA", StudentID: "6430000021",
		CourseCode: "2110101", Semester: "2566/1", CourseName: "Computer Programming",
		Credits: 3, Grade: "C", AcademicYear: 2566,
	}
	require.NoError(t, repo.Save(ctx, first))

	regrade := &entity.Transcript{
		SubmissionID: "s-2", SourceCode: "CHULA", StudentID: "6430000021",
		CourseCode: "2110101", Semester: "2566/1", CourseName: "Computer Programming",
		Credits: 3, Grade: "B", AcademicYear: 2566,
	}
	require.NoError(t, repo.Save(ctx, regrade))

	retake := &entity.Transcript{
		SubmissionID: "s-2", SourceCode: "CHULA", StudentID: "6430000021",
		CourseCode: "2110101", Semester: "2567/1", CourseName: "Computer Programming",
		Credits: 3, Grade: "A", AcademicYear: 2567,
	}
	require.NoError(t, repo.Save(ctx, retake))

	var n int64
	require.NoError(t, db.Model(&entity.Transcript{}).Count(&n).Error)
	assert.Equal(t, int64(2), n)

	rows, err := repo.ListBySubmission(ctx, "s-2")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "2566/1", rows[0].Semester)
	assert.Equal(t, "B", rows[0].Grade)
	assert.Equal(t, "2567/1", rows[1].Semester)

	old, err := repo.ListBySubmission(ctx, "s-1")
	require.NoError(t, err)
	assert.Empty(t, old)
}
