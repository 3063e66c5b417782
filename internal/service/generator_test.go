package service

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Freeeeeet/course_sessions/internal/model"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func startTimes(sessions []*model.Session) []time.Time {
	out := make([]time.Time, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.StartsAt)
	}
	return out
}

func TestEnsureCourseSessionsThreeMondays(t *testing.T) {
	f := newFixture(t)
	_, _, course := f.mondayCourse()
	student := f.student()
	_, err := f.courses.Enroll(f.ctx, student.ID, course.ID)
	require.NoError(t, err)

	sessions, err := f.gen.EnsureCourseSessions(f.ctx, course.ID)
	require.NoError(t, err)

	require.Len(t, sessions, 3)
	assert.Equal(t, []time.Time{at(5, 9, 0), at(12, 9, 0), at(19, 9, 0)}, startTimes(sessions))
	for _, s := range sessions {
		assert.Equal(t, 60, s.DurationMinutes)
		assert.Equal(t, model.SessionStateScheduled, s.State)
		assert.Equal(t, []int64{student.ID}, s.Roster)
		assert.Equal(t, "to be assigned", s.Room)
		assert.Empty(t, s.MeetingLink)
		assert.NotEqual(t, uuid.Nil, s.CalendarUID)
	}

	require.Eventually(t, func() bool {
		return f.notifier.count(model.SessionEventCreated) == 3
	}, time.Second, 10*time.Millisecond)
}

func TestEnsureCourseSessionsIsIdempotent(t *testing.T) {
	f := newFixture(t)
	_, _, course := f.mondayCourse()

	first, err := f.gen.EnsureCourseSessions(f.ctx, course.ID)
	require.NoError(t, err)
	writes := f.db.Writes()

	second, err := f.gen.EnsureCourseSessions(f.ctx, course.ID)
	require.NoError(t, err)

	assert.Equal(t, writes, f.db.Writes(), "second run must not write")
	assert.Equal(t, first, second)
}

func TestEnsureCourseSessionsStartsFromToday(t *testing.T) {
	tests := []struct {
		name string
		now  time.Time
		want []time.Time
	}{
		{
			name: "before first slot",
			now:  at(5, 8, 0),
			want: []time.Time{at(5, 9, 0), at(12, 9, 0), at(19, 9, 0)},
		},
		{
			name: "same day after slot start",
			now:  at(5, 9, 30),
			want: []time.Time{at(12, 9, 0), at(19, 9, 0)},
		},
		{
			name: "mid week",
			now:  at(14, 12, 0),
			want: []time.Time{at(19, 9, 0)},
		},
		{
			name: "after course end",
			now:  at(20, 0, 0),
			want: []time.Time{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, _, course := f.mondayCourse()
			f.setNow(tt.now)

			sessions, err := f.gen.EnsureCourseSessions(f.ctx, course.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.want, startTimes(sessions))
		})
	}
}

func TestEnsureCourseSessionsModalityPlaceholders(t *testing.T) {
	tests := []struct {
		modality model.Modality
		link     string
		room     string
	}{
		{modality: model.ModalityInPerson, room: "to be assigned"},
		{modality: model.ModalityOnline, link: "pending"},
		{modality: model.ModalityHybrid, link: "pending", room: "to be assigned"},
	}

	for _, tt := range tests {
		t.Run(string(tt.modality), func(t *testing.T) {
			f := newFixture(t)
			teacher := f.teacher()
			slot := f.slot(1, "09:00", "11:00")
			f.grant(teacher.ID, slot)
			course, err := f.courses.CreateCourse(f.ctx, CourseInput{
				TeacherID: teacher.ID,
				Name:      "Course",
				StartDate: model.NewDate(2026, time.January, 5),
				EndDate:   model.NewDate(2026, time.January, 5),
				Capacity:  5,
				Modality:  tt.modality,
				SlotIDs:   []int64{slot.ID},
			})
			require.NoError(t, err)

			sessions, err := f.gen.EnsureCourseSessions(f.ctx, course.ID)
			require.NoError(t, err)
			require.Len(t, sessions, 1)
			assert.Equal(t, tt.link, sessions[0].MeetingLink)
			assert.Equal(t, tt.room, sessions[0].Room)
			// без длительности курса берётся длина слота
			assert.Equal(t, 120, sessions[0].DurationMinutes)
		})
	}
}

func TestEnsureCourseSessionsSkipsUnusableSlot(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	f := newFixtureWithLogger(t, zap.New(core))
	teacher := f.teacher()

	broken := &model.TimeSlot{Weekday: 9, StartTime: "09:00", EndTime: "10:00", Kind: model.SlotKindClass}
	require.NoError(t, f.db.Repos().Slots.Create(f.ctx, broken))

	course := &model.Course{
		TeacherID:    teacher.ID,
		Name:         "Legacy",
		StartDate:    model.NewDate(2026, time.January, 5),
		EndDate:      model.NewDate(2026, time.January, 31),
		LegacySlotID: &broken.ID,
		Capacity:     5,
		Modality:     model.ModalityInPerson,
		Status:       model.CourseStatusActive,
	}
	require.NoError(t, f.db.Repos().Courses.Create(f.ctx, course))

	sessions, err := f.gen.EnsureCourseSessions(f.ctx, course.ID)
	require.NoError(t, err)
	assert.Empty(t, sessions)
	assert.Equal(t, 1, logs.FilterMessage("Skipping unusable slot").Len())
}

func TestEnsureCourseSessionsUsesLegacySlot(t *testing.T) {
	f := newFixture(t)
	teacher := f.teacher()
	slot := f.slot(3, "14:00", "15:30")

	course := &model.Course{
		TeacherID:    teacher.ID,
		Name:         "Legacy",
		StartDate:    model.NewDate(2026, time.January, 5),
		EndDate:      model.NewDate(2026, time.January, 18),
		LegacySlotID: &slot.ID,
		Capacity:     5,
		Modality:     model.ModalityOnline,
		Status:       model.CourseStatusActive,
	}
	require.NoError(t, f.db.Repos().Courses.Create(f.ctx, course))

	sessions, err := f.gen.EnsureCourseSessions(f.ctx, course.ID)
	require.NoError(t, err)
	assert.Equal(t, []time.Time{at(7, 14, 0), at(14, 14, 0)}, startTimes(sessions))
	assert.Equal(t, 90, sessions[0].DurationMinutes)
}

func TestEnsureCourseSessionsInactiveCourseNotGenerated(t *testing.T) {
	f := newFixture(t)
	_, _, course := f.mondayCourse()
	_, err := f.courses.SetCourseStatus(f.ctx, course.ID, model.CourseStatusCancelled)
	require.NoError(t, err)

	sessions, err := f.gen.EnsureCourseSessions(f.ctx, course.ID)
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestEnsureCourseSessionsUnknownCourse(t *testing.T) {
	f := newFixture(t)
	_, err := f.gen.EnsureCourseSessions(f.ctx, 404)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReconcileKeepsMostRecentPristine(t *testing.T) {
	f := newFixture(t)
	_, _, course := f.mondayCourse()

	a := f.seedSession(course, at(12, 9, 0))
	f.advance(time.Minute)
	b := f.seedSession(course, at(12, 9, 0))
	f.advance(time.Minute)
	c := f.seedSession(course, at(12, 9, 0))

	result, err := f.gen.ReconcileDuplicates(f.ctx, course.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{a.ID, b.ID}, result.Deleted)
	assert.Empty(t, result.Conflicts)

	left, err := f.db.Repos().Sessions.ListByCourse(f.ctx, course.ID)
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, c.ID, left[0].ID)
}

func TestReconcileKeeperPriority(t *testing.T) {
	f := newFixture(t)
	_, _, course := f.mondayCourse()
	student := f.student()

	marked := f.seedSession(course, at(12, 9, 0), student.ID)
	require.NoError(t, f.db.Repos().Attendance.Upsert(f.ctx, &model.AttendanceRecord{
		SessionID: marked.ID, StudentID: student.ID, Present: true, RecordedAt: f.clock(),
	}))
	f.advance(time.Hour)
	newer := f.seedSession(course, at(12, 9, 0), student.ID)

	result, err := f.gen.ReconcileDuplicates(f.ctx, course.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{newer.ID}, result.Deleted)

	kept, err := f.db.Repos().Sessions.GetByID(f.ctx, marked.ID)
	require.NoError(t, err)
	require.NotNil(t, kept)
}

func TestReconcileSurfacesRealConflicts(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	f := newFixtureWithLogger(t, zap.New(core))
	_, _, course := f.mondayCourse()
	student := f.student()

	completed := f.seedSession(course, at(12, 9, 0), student.ID)
	ok, err := f.db.Repos().Sessions.TransitionState(f.ctx, completed.ID, model.SessionStateScheduled, model.SessionStateCompleted)
	require.NoError(t, err)
	require.True(t, ok)

	f.advance(time.Minute)
	marked := f.seedSession(course, at(12, 9, 0), student.ID)
	require.NoError(t, f.db.Repos().Attendance.Upsert(f.ctx, &model.AttendanceRecord{
		SessionID: marked.ID, StudentID: student.ID, Present: false,
	}))
	f.advance(time.Minute)
	pristine := f.seedSession(course, at(12, 9, 0))

	result, err := f.gen.ReconcileDuplicates(f.ctx, course.ID)
	require.NoError(t, err)

	assert.Equal(t, []int64{pristine.ID}, result.Deleted)
	require.Len(t, result.Conflicts, 1)
	assert.Equal(t, completed.ID, result.Conflicts[0].KeeperID)
	assert.Equal(t, []int64{marked.ID}, result.Conflicts[0].SessionIDs)
	assert.Equal(t, 1, logs.FilterMessage("Conflicting sessions need manual resolution").Len())

	require.Eventually(t, func() bool {
		return f.notifier.count(model.SessionEventDuplicateConflict) == 1
	}, time.Second, 10*time.Millisecond)

	// повторная сверка ничего не удаляет, конфликт остаётся
	again, err := f.gen.ReconcileDuplicates(f.ctx, course.ID)
	require.NoError(t, err)
	assert.Empty(t, again.Deleted)
	assert.Len(t, again.Conflicts, 1)

	// о том же конфликте не сообщаем на каждом чтении расписания
	for i := 0; i < 3; i++ {
		_, err = f.gen.EnsureCourseSessions(f.ctx, course.ID)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, logs.FilterMessage("Conflicting sessions need manual resolution").Len())
	assert.Never(t, func() bool {
		return f.notifier.count(model.SessionEventDuplicateConflict) > 1
	}, 50*time.Millisecond, 5*time.Millisecond)

	// новый участник конфликта сообщается снова
	second := f.seedSession(course, at(12, 9, 0), student.ID)
	require.NoError(t, f.db.Repos().Attendance.Upsert(f.ctx, &model.AttendanceRecord{
		SessionID: second.ID, StudentID: student.ID, Present: true,
	}))

	grown, err := f.gen.ReconcileDuplicates(f.ctx, course.ID)
	require.NoError(t, err)
	require.Len(t, grown.Conflicts, 1)
	assert.Equal(t, completed.ID, grown.Conflicts[0].KeeperID)
	assert.ElementsMatch(t, []int64{marked.ID, second.ID}, grown.Conflicts[0].SessionIDs)
	assert.Equal(t, 2, logs.FilterMessage("Conflicting sessions need manual resolution").Len())
	require.Eventually(t, func() bool {
		return f.notifier.count(model.SessionEventDuplicateConflict) == 2
	}, time.Second, 10*time.Millisecond)
}

func TestEnsureReconcilesBeforeCreating(t *testing.T) {
	f := newFixture(t)
	_, _, course := f.mondayCourse()

	f.seedSession(course, at(12, 9, 0))
	f.seedSession(course, at(12, 9, 0))

	sessions, err := f.gen.EnsureCourseSessions(f.ctx, course.ID)
	require.NoError(t, err)
	assert.Equal(t, []time.Time{at(5, 9, 0), at(12, 9, 0), at(19, 9, 0)}, startTimes(sessions))
}

func TestEnsureConcurrentCallsConverge(t *testing.T) {
	f := newFixture(t)
	_, _, course := f.mondayCourse()

	// уже существующие дубли от прошлых запусков
	f.seedSession(course, at(19, 9, 0))
	f.seedSession(course, at(19, 9, 0))

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.gen.EnsureCourseSessions(f.ctx, course.ID); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	sessions, err := f.db.Repos().Sessions.ListByCourse(f.ctx, course.ID)
	require.NoError(t, err)
	assert.Equal(t, []time.Time{at(5, 9, 0), at(12, 9, 0), at(19, 9, 0)}, startTimes(sessions))
}

func TestEnsureTeacherSessions(t *testing.T) {
	f := newFixture(t)
	teacher, _, _ := f.mondayCourse()

	friday := f.slot(5, "16:00", "17:00")
	f.grant(teacher.ID, friday)
	f.course(teacher.ID, model.NewDate(2026, time.January, 5), model.NewDate(2026, time.January, 11), friday.ID)

	sessions, err := f.gen.EnsureTeacherSessions(f.ctx, teacher.ID)
	require.NoError(t, err)
	assert.Equal(t, []time.Time{at(5, 9, 0), at(9, 16, 0), at(12, 9, 0), at(19, 9, 0)}, startTimes(sessions))

	_, err = f.gen.EnsureTeacherSessions(f.ctx, 9999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEnsureAllCourses(t *testing.T) {
	f := newFixture(t)
	_, _, course := f.mondayCourse()
	f.seedSession(course, at(12, 9, 0))
	f.seedSession(course, at(12, 9, 0))

	summary, err := f.gen.EnsureAllCourses(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, EnsureSummary{Courses: 1, Created: 2, Deleted: 1}, summary)

	summary, err = f.gen.EnsureAllCourses(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, EnsureSummary{Courses: 1}, summary)
}

func TestRescheduleSession(t *testing.T) {
	f := newFixture(t)
	_, _, course := f.mondayCourse()
	sessions, err := f.gen.EnsureCourseSessions(f.ctx, course.ID)
	require.NoError(t, err)
	target := sessions[1]

	moved, err := f.gen.RescheduleSession(f.ctx, target.ID, at(13, 10, 0), 90)
	require.NoError(t, err)
	assert.Equal(t, at(13, 10, 0), moved.StartsAt)
	assert.Equal(t, 90, moved.DurationMinutes)

	// перенесённое занятие не порождает новое на исходном месте
	writes := f.db.Writes()
	sessions, err = f.gen.EnsureCourseSessions(f.ctx, course.ID)
	require.NoError(t, err)
	assert.Len(t, sessions, 3)
	assert.Equal(t, writes, f.db.Writes())

	_, err = f.gen.RescheduleSession(f.ctx, target.ID, at(19, 9, 0), 60)
	assert.ErrorIs(t, err, ErrConflict, "slot taken by another session")

	_, err = f.gen.RescheduleSession(f.ctx, target.ID, at(13, 10, 0), 20)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.gen.RescheduleSession(f.ctx, target.ID, at(1, 10, 0), 60)
	assert.ErrorIs(t, err, ErrValidation)

	// за пределы дат курса переносить нельзя
	_, err = f.gen.RescheduleSession(f.ctx, target.ID, at(20, 10, 0), 60)
	assert.ErrorIs(t, err, ErrValidation, "past the course end date")

	_, err = f.gen.RescheduleSession(f.ctx, target.ID, at(19, 23, 0), 60)
	require.NoError(t, err, "last course day is allowed")

	require.Eventually(t, func() bool {
		return f.notifier.count(model.SessionEventUpdated) == 2
	}, time.Second, 10*time.Millisecond)
}

func TestCancelSession(t *testing.T) {
	f := newFixture(t)
	_, _, course := f.mondayCourse()
	sessions, err := f.gen.EnsureCourseSessions(f.ctx, course.ID)
	require.NoError(t, err)

	cancelled, err := f.gen.CancelSession(f.ctx, sessions[0].ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStateCancelled, cancelled.State)

	_, err = f.gen.CancelSession(f.ctx, sessions[0].ID)
	assert.ErrorIs(t, err, ErrConflict)

	_, err = f.gen.CancelSession(f.ctx, 12345)
	assert.ErrorIs(t, err, ErrNotFound)

	// отменённое занятие не создаётся заново
	sessions, err = f.gen.EnsureCourseSessions(f.ctx, course.ID)
	require.NoError(t, err)
	assert.Len(t, sessions, 3)
}

func TestNotifierFailureDoesNotFailOperation(t *testing.T) {
	f := newFixture(t)
	f.notifier.err = errors.New("calendar is down")
	_, _, course := f.mondayCourse()

	sessions, err := f.gen.EnsureCourseSessions(f.ctx, course.ID)
	require.NoError(t, err)
	assert.Len(t, sessions, 3)

	require.Eventually(t, func() bool {
		return f.notifier.count(model.SessionEventCreated) == 3
	}, time.Second, 10*time.Millisecond)
}
