package service

import (
	"errors"
	"testing"
	"time"

	"github.com/Freeeeeet/course_sessions/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlotCatalogCreate(t *testing.T) {
	f := newFixture(t)
	f.slot(1, "09:00", "11:00")

	tests := []struct {
		name    string
		in      SlotInput
		wantErr error
	}{
		{name: "adjacent after", in: SlotInput{Weekday: 1, StartTime: "11:00", EndTime: "12:00"}},
		{name: "adjacent before", in: SlotInput{Weekday: 1, StartTime: "08:00", EndTime: "09:00"}},
		{name: "same time other weekday", in: SlotInput{Weekday: 2, StartTime: "09:00", EndTime: "11:00"}},
		{name: "overlaps start", in: SlotInput{Weekday: 1, StartTime: "08:30", EndTime: "09:30"}, wantErr: ErrValidation},
		{name: "inside", in: SlotInput{Weekday: 1, StartTime: "09:30", EndTime: "10:00"}, wantErr: ErrValidation},
		{name: "covers", in: SlotInput{Weekday: 1, StartTime: "07:00", EndTime: "13:00"}, wantErr: ErrValidation},
		{name: "end before start", in: SlotInput{Weekday: 4, StartTime: "10:00", EndTime: "09:00"}, wantErr: ErrValidation},
		{name: "empty interval", in: SlotInput{Weekday: 4, StartTime: "10:00", EndTime: "10:00"}, wantErr: ErrValidation},
		{name: "bad format", in: SlotInput{Weekday: 4, StartTime: "25:00", EndTime: "26:00"}, wantErr: ErrValidation},
		{name: "bad weekday", in: SlotInput{Weekday: 7, StartTime: "09:00", EndTime: "10:00"}, wantErr: ErrValidation},
		{name: "bad kind", in: SlotInput{Weekday: 4, StartTime: "09:00", EndTime: "10:00", Kind: "lunch"}, wantErr: ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := f.db.Writes()
			_, err := f.slots.Create(f.ctx, tt.in)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, before, f.db.Writes(), "rejected input must not write")
				return
			}
			assert.NoError(t, err)
		})
	}

	// ни одна пара слотов одного дня не пересекается
	slots, err := f.slots.List(f.ctx)
	require.NoError(t, err)
	for i, a := range slots {
		for _, b := range slots[i+1:] {
			assert.False(t, a.Overlaps(b), "%v overlaps %v", a, b)
		}
	}
}

func TestSlotCatalogCreateNormalizes(t *testing.T) {
	f := newFixture(t)

	slot, err := f.slots.Create(f.ctx, SlotInput{Name: "Morning", Weekday: 2, StartTime: "9:05", EndTime: "10:30"})
	require.NoError(t, err)
	assert.Equal(t, "09:05", slot.StartTime)
	assert.Equal(t, "10:30", slot.EndTime)
	assert.Equal(t, model.SlotKindClass, slot.Kind)
	assert.Equal(t, 85, slot.NaturalSpanMinutes())
}

func TestSlotCatalogValidationFields(t *testing.T) {
	f := newFixture(t)

	_, err := f.slots.Create(f.ctx, SlotInput{Weekday: 1, StartTime: "noon", EndTime: ""})
	var ve *ValidationError
	require.True(t, errors.As(err, &ve))

	fields := map[string]string{}
	for _, fe := range ve.Fields {
		fields[fe.Field] = fe.Message
	}
	assert.Equal(t, "must be HH:MM", fields["StartTime"])
	assert.Equal(t, "is required", fields["EndTime"])
}

func TestSlotCatalogUpdate(t *testing.T) {
	f := newFixture(t)
	teacher := f.teacher()
	used := f.slot(1, "09:00", "11:00")
	free := f.slot(1, "12:00", "13:00")
	f.grant(teacher.ID, used)
	f.course(teacher.ID, model.NewDate(2026, time.January, 5), model.NewDate(2026, time.January, 19), used.ID)

	t.Run("own interval is not an overlap", func(t *testing.T) {
		updated, err := f.slots.Update(f.ctx, free.ID, SlotInput{Weekday: 1, StartTime: "12:00", EndTime: "13:30"})
		require.NoError(t, err)
		assert.Equal(t, "13:30", updated.EndTime)
	})

	t.Run("overlap with another slot", func(t *testing.T) {
		_, err := f.slots.Update(f.ctx, free.ID, SlotInput{Weekday: 1, StartTime: "10:30", EndTime: "12:30"})
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("slot used by a course cannot move", func(t *testing.T) {
		_, err := f.slots.Update(f.ctx, used.ID, SlotInput{Weekday: 2, StartTime: "09:00", EndTime: "11:00"})
		assert.ErrorIs(t, err, ErrConflict)
	})

	t.Run("slot used by a course can be renamed", func(t *testing.T) {
		updated, err := f.slots.Update(f.ctx, used.ID, SlotInput{Name: "Monday morning", Weekday: 1, StartTime: "09:00", EndTime: "11:00"})
		require.NoError(t, err)
		assert.Equal(t, "Monday morning", updated.Name)
	})

	t.Run("unknown slot", func(t *testing.T) {
		_, err := f.slots.Update(f.ctx, 9999, SlotInput{Weekday: 3, StartTime: "09:00", EndTime: "10:00"})
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestSlotCatalogDeleteCascades(t *testing.T) {
	f := newFixture(t)
	first, second := f.teacher(), f.teacher()
	slot := f.slot(1, "09:00", "11:00")
	other := f.slot(3, "09:00", "11:00")
	f.grant(first.ID, slot, other)
	f.grant(second.ID, slot)
	course := f.course(first.ID, model.NewDate(2026, time.January, 5), model.NewDate(2026, time.January, 19), slot.ID, other.ID)

	result, err := f.slots.Delete(f.ctx, slot.ID)
	require.NoError(t, err)
	assert.Equal(t, &SlotDeletion{SlotID: slot.ID, TeachersImpacted: 2, CoursesImpacted: 1}, result)

	granted, err := f.db.Repos().Grants.SlotIDs(f.ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{other.ID}, granted)

	reloaded, err := f.courses.GetCourse(f.ctx, course.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{other.ID}, reloaded.AssignedSlotIDs())

	gone, err := f.db.Repos().Slots.GetByID(f.ctx, slot.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)

	_, err = f.slots.Delete(f.ctx, slot.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSlotCatalogDeleteDropsUpcomingSessions(t *testing.T) {
	f := newFixture(t)
	_, slot, course := f.mondayCourse()
	student := f.student()
	_, err := f.courses.Enroll(f.ctx, student.ID, course.ID)
	require.NoError(t, err)

	sessions, err := f.gen.EnsureCourseSessions(f.ctx, course.ID)
	require.NoError(t, err)
	require.Len(t, sessions, 3)

	marked := sessions[2]
	_, err = f.tracker.RecordAttendance(f.ctx, marked.ID, course.TeacherID, AttendanceEntry{StudentID: student.ID, Present: true})
	require.NoError(t, err)

	result, err := f.slots.Delete(f.ctx, slot.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.SessionsDeleted)
	assert.Equal(t, int64(1), result.CoursesImpacted)

	remaining, err := f.gen.EnsureCourseSessions(f.ctx, course.ID)
	require.NoError(t, err)
	require.Len(t, remaining, 1, "session with attendance is kept")
	assert.Equal(t, marked.ID, remaining[0].ID)

	reloaded, err := f.courses.GetCourse(f.ctx, course.ID)
	require.NoError(t, err)
	assert.Empty(t, reloaded.AssignedSlotIDs())
}
