package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Freeeeeet/course_sessions/internal/model"
	"github.com/Freeeeeet/course_sessions/internal/repository/inmem"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// понедельник
var baseNow = time.Date(2026, time.January, 5, 8, 0, 0, 0, time.UTC)

type recordingNotifier struct {
	mu     sync.Mutex
	events []model.SessionEvent
	err    error
}

func (n *recordingNotifier) Notify(_ context.Context, event model.SessionEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return n.err
}

func (n *recordingNotifier) kinds() []model.SessionEventKind {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]model.SessionEventKind, 0, len(n.events))
	for _, e := range n.events {
		out = append(out, e.Kind)
	}
	return out
}

func (n *recordingNotifier) count(kind model.SessionEventKind) int {
	total := 0
	for _, k := range n.kinds() {
		if k == kind {
			total++
		}
	}
	return total
}

type fixture struct {
	t   *testing.T
	ctx context.Context
	db  *inmem.DB

	mu  sync.Mutex
	now time.Time

	notifier *recordingNotifier
	logger   *zap.Logger

	slots    *SlotCatalog
	avail    *Availability
	courses  *CourseService
	gen      *SessionGenerator
	tracker  *AttendanceTracker
	progress *ProgressService
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWithLogger(t, zap.NewNop())
}

func newFixtureWithLogger(t *testing.T, logger *zap.Logger) *fixture {
	t.Helper()

	f := &fixture{
		t:        t,
		ctx:      context.Background(),
		now:      baseNow,
		notifier: &recordingNotifier{},
		logger:   logger,
	}
	f.db = inmem.New(f.clock)

	opts := Options{
		Location:             time.UTC,
		Now:                  f.clock,
		MinAttendancePercent: 70,
		Notifier:             f.notifier,
		NotifyTimeout:        time.Second,
	}

	f.slots = NewSlotCatalog(f.db, opts, logger)
	f.avail = NewAvailability(f.db, logger)
	f.courses = NewCourseService(f.db, opts, logger)
	f.gen = NewSessionGenerator(f.db, opts, logger)
	f.tracker = NewAttendanceTracker(f.db, opts, logger)
	f.progress = NewProgressService(f.db, opts, logger)
	return f
}

func (f *fixture) clock() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fixture) setNow(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = t
}

func (f *fixture) advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func (f *fixture) teacher() *model.User {
	f.t.Helper()
	u := &model.User{FirstName: "Teacher", IsTeacher: true, TelegramID: 1000}
	require.NoError(f.t, f.db.Repos().Users.Create(f.ctx, u))
	return u
}

func (f *fixture) student() *model.User {
	f.t.Helper()
	u := &model.User{FirstName: "Student"}
	require.NoError(f.t, f.db.Repos().Users.Create(f.ctx, u))
	return u
}

func (f *fixture) slot(weekday int, start, end string) *model.TimeSlot {
	f.t.Helper()
	slot, err := f.slots.Create(f.ctx, SlotInput{Weekday: weekday, StartTime: start, EndTime: end})
	require.NoError(f.t, err)
	return slot
}

func (f *fixture) grant(teacherID int64, slots ...*model.TimeSlot) {
	f.t.Helper()
	for _, s := range slots {
		require.NoError(f.t, f.avail.GrantSlot(f.ctx, teacherID, s.ID))
	}
}

func intPtr(v int) *int { return &v }

func (f *fixture) course(teacherID int64, start, end model.Date, slotIDs ...int64) *model.Course {
	f.t.Helper()
	course, err := f.courses.CreateCourse(f.ctx, CourseInput{
		TeacherID:              teacherID,
		Name:                   "Course",
		StartDate:              start,
		EndDate:                end,
		DefaultDurationMinutes: intPtr(60),
		Capacity:               10,
		Modality:               model.ModalityInPerson,
		SlotIDs:                slotIDs,
	})
	require.NoError(f.t, err)
	return course
}

// mondayCourse курс на три понедельника 5, 12 и 19 января со слотом 09:00-11:00
func (f *fixture) mondayCourse() (*model.User, *model.TimeSlot, *model.Course) {
	f.t.Helper()
	teacher := f.teacher()
	slot := f.slot(1, "09:00", "11:00")
	f.grant(teacher.ID, slot)
	course := f.course(teacher.ID,
		model.NewDate(2026, time.January, 5),
		model.NewDate(2026, time.January, 19),
		slot.ID,
	)
	return teacher, slot, course
}

// seedSession создаёт занятие напрямую в хранилище, минуя генератор
func (f *fixture) seedSession(course *model.Course, startsAt time.Time, roster ...int64) *model.Session {
	f.t.Helper()
	s := &model.Session{
		CourseID:        course.ID,
		TeacherID:       course.TeacherID,
		StartsAt:        startsAt,
		OccurrenceAt:    startsAt,
		DurationMinutes: 60,
		Modality:        course.Modality,
		State:           model.SessionStateScheduled,
		Roster:          roster,
	}
	require.NoError(f.t, f.db.Repos().Sessions.Create(f.ctx, s))
	return s
}

func at(day, hour, minute int) time.Time {
	return time.Date(2026, time.January, day, hour, minute, 0, 0, time.UTC)
}
