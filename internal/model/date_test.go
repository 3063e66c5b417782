package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClock(t *testing.T) {
	tests := []struct {
		in      string
		want    Clock
		wantErr bool
	}{
		{in: "09:05", want: Clock{Hour: 9, Minute: 5}},
		{in: "9:05", want: Clock{Hour: 9, Minute: 5}},
		{in: "23:59", want: Clock{Hour: 23, Minute: 59}},
		{in: "24:00", wantErr: true},
		{in: "12:60", wantErr: true},
		{in: "noon", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseClock(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	assert.Equal(t, "09:05", Clock{Hour: 9, Minute: 5}.String())
}

func TestDate(t *testing.T) {
	d := NewDate(2026, time.February, 28)
	assert.Equal(t, NewDate(2026, time.March, 1), d.AddDays(1))
	assert.Equal(t, NewDate(2026, time.March, 3), NewDate(2026, time.February, 31))
	assert.Equal(t, time.Saturday, d.Weekday())
	assert.True(t, d.Before(d.AddDays(1)))
	assert.True(t, d.AddDays(1).After(d))
	assert.Equal(t, d.AddDays(3), MaxDate(d, d.AddDays(3)))

	parsed, err := ParseDate("2026-02-28")
	require.NoError(t, err)
	assert.Equal(t, d, parsed)
	assert.Equal(t, "2026-02-28", parsed.String())

	_, err = ParseDate("28.02.2026")
	assert.Error(t, err)

	berlin, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)
	// последнее воскресенье марта, в 02:00 часы переводятся на 03:00
	at := NewDate(2026, time.March, 29).At(Clock{Hour: 10}, berlin)
	assert.Equal(t, 10, at.Hour())
	assert.Equal(t, 8, at.UTC().Hour())
}

func TestTimeSlotOverlaps(t *testing.T) {
	base := &TimeSlot{Weekday: 1, StartTime: "09:00", EndTime: "11:00"}

	tests := []struct {
		name  string
		other *TimeSlot
		want  bool
	}{
		{name: "inside", other: &TimeSlot{Weekday: 1, StartTime: "09:30", EndTime: "10:00"}, want: true},
		{name: "crossing end", other: &TimeSlot{Weekday: 1, StartTime: "10:30", EndTime: "12:00"}, want: true},
		{name: "touching end", other: &TimeSlot{Weekday: 1, StartTime: "11:00", EndTime: "12:00"}},
		{name: "touching start", other: &TimeSlot{Weekday: 1, StartTime: "08:00", EndTime: "09:00"}},
		{name: "other weekday", other: &TimeSlot{Weekday: 2, StartTime: "09:00", EndTime: "11:00"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, base.Overlaps(tt.other))
			assert.Equal(t, tt.want, tt.other.Overlaps(base))
		})
	}

	assert.Equal(t, 120, base.NaturalSpanMinutes())
	assert.Zero(t, (&TimeSlot{StartTime: "11:00", EndTime: "09:00"}).NaturalSpanMinutes())
	assert.Zero(t, (&TimeSlot{StartTime: "bad", EndTime: "09:00"}).NaturalSpanMinutes())
	assert.False(t, (&TimeSlot{Weekday: 7}).ValidWeekday())
}

func TestCourseAssignedSlotIDs(t *testing.T) {
	legacy := int64(3)
	c := &Course{SlotIDs: []int64{5, 3, 7, 5}, LegacySlotID: &legacy}

	assert.Equal(t, []int64{3, 5, 7}, c.AssignedSlotIDs())
	assert.True(t, c.HasSlot(3))
	assert.False(t, c.HasSlot(4))

	assert.Empty(t, (&Course{}).AssignedSlotIDs())
}

func TestSessionPristine(t *testing.T) {
	s := &Session{State: SessionStateScheduled, Roster: []int64{1, 2}}
	assert.True(t, s.Pristine())
	assert.True(t, s.InRoster(2))
	assert.Nil(t, s.AttendanceFor(1))

	s.Attendance = []AttendanceRecord{{StudentID: 1, Present: true}}
	assert.False(t, s.Pristine())
	require.NotNil(t, s.AttendanceFor(1))
	assert.True(t, s.AttendanceFor(1).Present)

	done := &Session{State: SessionStateCompleted}
	assert.False(t, done.Pristine())
}
