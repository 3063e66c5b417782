package service

import (
	"testing"

	"github.com/Freeeeeet/course_sessions/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeStats(t *testing.T) {
	tests := []struct {
		name                string
		completed, attended int
		projected           int
		threshold           float64
		wantPct             float64
		wantRemaining       int
		wantNear, wantBelow bool
	}{
		{name: "nothing completed yet", completed: 0, attended: 0, projected: 10, threshold: 70, wantPct: 0, wantRemaining: 3},
		{name: "full attendance with reserve", completed: 10, attended: 10, projected: 10, threshold: 70, wantPct: 100, wantRemaining: 6},
		{name: "some absences", completed: 10, attended: 8, projected: 10, threshold: 70, wantPct: 80, wantRemaining: 4},
		{name: "one absence left", completed: 20, attended: 17, projected: 0, threshold: 80, wantPct: 85, wantRemaining: 1, wantNear: true},
		{name: "two of three", completed: 3, attended: 2, projected: 0, threshold: 70, wantPct: 66.7, wantRemaining: 0, wantNear: true, wantBelow: true},
		{name: "over the limit clamps to zero", completed: 10, attended: 6, projected: 0, threshold: 70, wantPct: 60, wantRemaining: 0, wantNear: true, wantBelow: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stats := computeStats(tt.completed, tt.attended, tt.projected, tt.threshold)
			assert.Equal(t, tt.completed, stats.TotalSessions)
			assert.Equal(t, tt.attended, stats.Attended)
			assert.Equal(t, tt.projected, stats.ProjectedSessions)
			assert.InDelta(t, tt.wantPct, stats.Percentage, 1e-9)
			assert.Equal(t, tt.wantRemaining, stats.RemainingAllowedAbsences)
			assert.Equal(t, tt.wantNear, stats.NearLimit)
			assert.Equal(t, tt.wantBelow, stats.BelowThreshold)
			assert.Equal(t, tt.wantNear || tt.wantBelow, stats.Alert())
		})
	}
}

func TestStatisticsThreeMondays(t *testing.T) {
	f := newFixture(t)
	course, students, sessions := enrolledSessions(t, f, 1)
	student := students[0]

	stats, err := f.progress.Statistics(f.ctx, student.ID, course.ID)
	require.NoError(t, err)
	assert.Zero(t, stats.TotalSessions)
	assert.Equal(t, 3, stats.ProjectedSessions)
	assert.False(t, stats.Alert())

	for i, s := range sessions {
		_, err := f.tracker.RecordAttendance(f.ctx, s.ID, course.TeacherID, AttendanceEntry{
			StudentID: student.ID,
			Present:   i < 2,
		})
		require.NoError(t, err)
		_, err = f.tracker.CompleteSession(f.ctx, s.ID)
		require.NoError(t, err)
	}

	stats, err = f.progress.Statistics(f.ctx, student.ID, course.ID)
	require.NoError(t, err)
	assert.Equal(t, student.ID, stats.StudentID)
	assert.Equal(t, course.ID, stats.CourseID)
	assert.Equal(t, 3, stats.TotalSessions)
	assert.Equal(t, 2, stats.Attended)
	assert.Zero(t, stats.ProjectedSessions)
	assert.InDelta(t, 66.7, stats.Percentage, 1e-9)
	assert.Zero(t, stats.RemainingAllowedAbsences)
	assert.True(t, stats.NearLimit)
	assert.True(t, stats.BelowThreshold)

	enrollment, err := f.db.Repos().Enrollments.GetByStudentCourse(f.ctx, student.ID, course.ID)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, enrollment.HoursCompleted, 1e-9)
	assert.InDelta(t, 66.7, enrollment.Percentage, 1e-9)
}

func TestStatisticsUnknownCourse(t *testing.T) {
	f := newFixture(t)
	_, err := f.progress.Statistics(f.ctx, 1, 404)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.progress.CourseAlerts(f.ctx, 404)
	assert.ErrorIs(t, err, ErrNotFound)
}

// tenSessions проводит десять занятий, студент attended[id] присутствует на первых N
func tenSessions(t *testing.T, f *fixture, course *model.Course, attended map[int64]int) {
	t.Helper()

	roster := make([]int64, 0, len(attended))
	for id := range attended {
		roster = append(roster, id)
	}

	for i := 0; i < 10; i++ {
		s := f.seedSession(course, at(6+i, 10, 0), roster...)
		entries := make([]AttendanceEntry, 0, len(roster))
		for _, id := range roster {
			entries = append(entries, AttendanceEntry{StudentID: id, Present: i < attended[id]})
		}
		_, err := f.tracker.RecordAttendanceBatch(f.ctx, s.ID, course.TeacherID, entries, BatchAtomic)
		require.NoError(t, err)
		_, err = f.tracker.CompleteSession(f.ctx, s.ID)
		require.NoError(t, err)
	}
}

func TestAlerts(t *testing.T) {
	f := newFixture(t)
	_, _, course := f.mondayCourse()

	diligent, borderline, failing := f.student(), f.student(), f.student()
	for _, u := range []*model.User{diligent, borderline, failing} {
		_, err := f.courses.Enroll(f.ctx, u.ID, course.ID)
		require.NoError(t, err)
	}

	tenSessions(t, f, course, map[int64]int{
		diligent.ID:   10,
		borderline.ID: 7,
		failing.ID:    6,
	})

	alerts, err := f.progress.CourseAlerts(f.ctx, course.ID)
	require.NoError(t, err)
	require.Len(t, alerts, 2)

	assert.Equal(t, failing.ID, alerts[0].StudentID)
	assert.InDelta(t, 60.0, alerts[0].Percentage, 1e-9)
	assert.True(t, alerts[0].BelowThreshold)

	assert.Equal(t, borderline.ID, alerts[1].StudentID)
	assert.InDelta(t, 70.0, alerts[1].Percentage, 1e-9)
	assert.False(t, alerts[1].BelowThreshold)
	assert.True(t, alerts[1].NearLimit)
	assert.Zero(t, alerts[1].RemainingAllowedAbsences)

	mine, err := f.progress.StudentAlerts(f.ctx, borderline.ID)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, course.ID, mine[0].CourseID)

	none, err := f.progress.StudentAlerts(f.ctx, diligent.ID)
	require.NoError(t, err)
	assert.Empty(t, none)

	require.NoError(t, f.courses.Unenroll(f.ctx, failing.ID, course.ID))
	alerts, err = f.progress.CourseAlerts(f.ctx, course.ID)
	require.NoError(t, err)
	require.Len(t, alerts, 1, "cancelled enrollments are not reported")
	assert.Equal(t, borderline.ID, alerts[0].StudentID)
}
