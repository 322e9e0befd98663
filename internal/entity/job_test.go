package entity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBatchStats_Progress(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		stats    BatchStats
		progress int
		complete bool
	}{
		{name: "empty batch", stats: BatchStats{}, progress: 0, complete: false},
		{name: "nothing done", stats: BatchStats{Total: 4, Pending: 4}, progress: 0, complete: false},
		{name: "partially done", stats: BatchStats{Total: 3, Completed: 1, Pending: 2}, progress: 33, complete: false},
		{name: "failed counts as terminal", stats: BatchStats{Total: 2, Completed: 1, Failed: 1}, progress: 100, complete: true},
		{name: "rounds half up", stats: BatchStats{Total: 8, Completed: 5, Processing: 3}, progress: 63, complete: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.progress, tt.stats.Progress())
			assert.Equal(t, tt.complete, tt.stats.IsComplete())
		})
	}
}

func TestJobIntent_Normalize(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

	in := JobIntent{Type: JobTypeFetchSyllabus}
	in.Normalize(now)

	assert.Equal(t, DefaultMaxAttempts, in.MaxAttempts)
	assert.JSONEq(t, `{}`, string(in.Payload))
	assert.Equal(t, now, in.ScheduledAt)

	later := now.Add(time.Hour)
	kept := JobIntent{Type: JobTypeFetchSyllabus, MaxAttempts: 2, ScheduledAt: later}
	kept.Normalize(now)
	assert.Equal(t, 2, kept.MaxAttempts)
	assert.Equal(t, later, kept.ScheduledAt)
}
