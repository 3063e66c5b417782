package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Freeeeeet/course_sessions/internal/model"
	"github.com/Freeeeeet/course_sessions/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DuplicateConflict занятия на одно и то же время, которые нельзя удалить
// автоматически: у них есть статус или отметки. Решаются вручную.
type DuplicateConflict struct {
	CourseID   int64
	StartsAt   time.Time
	KeeperID   int64
	SessionIDs []int64
}

type ReconcileResult struct {
	Deleted   []int64
	Conflicts []DuplicateConflict
}

// EnsureSummary итог прохода по нескольким курсам
type EnsureSummary struct {
	Courses   int
	Created   int
	Deleted   int
	Conflicts int
}

// SessionGenerator разворачивает недельные слоты курса в конкретные занятия.
// Повторный запуск без изменений в расписании ничего не пишет.
type SessionGenerator struct {
	store  repository.Store
	opts   Options
	events *dispatcher
	logger *zap.Logger

	// reported последние конфликты по курсам: keeper_id -> ids остальных занятий
	mu       sync.Mutex
	reported map[int64]map[int64]string
}

func NewSessionGenerator(store repository.Store, opts Options, logger *zap.Logger) *SessionGenerator {
	opts = opts.withDefaults()
	return &SessionGenerator{
		store:    store,
		opts:     opts,
		events:   newDispatcher(opts.Notifier, opts.NotifyTimeout, opts.Now, logger),
		logger:   logger,
		reported: make(map[int64]map[int64]string),
	}
}

// EnsureCourseSessions создаёт недостающие будущие занятия курса, убирает
// дубликаты и возвращает все занятия курса по времени начала
func (g *SessionGenerator) EnsureCourseSessions(ctx context.Context, courseID int64) ([]*model.Session, error) {
	course, err := g.store.Repos().Courses.GetByID(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("get course: %w", err)
	}
	if course == nil {
		return nil, &NotFoundError{Entity: "course", ID: courseID}
	}

	if _, _, err := g.ensure(ctx, course); err != nil {
		return nil, err
	}

	sessions, err := g.store.Repos().Sessions.ListByCourse(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

// EnsureTeacherSessions то же для всех planned/active курсов преподавателя
func (g *SessionGenerator) EnsureTeacherSessions(ctx context.Context, teacherID int64) ([]*model.Session, error) {
	r := g.store.Repos()
	if err := requireTeacher(ctx, r, teacherID); err != nil {
		return nil, err
	}

	courses, err := r.Courses.ListByTeacher(ctx, teacherID, model.CourseStatusPlanned, model.CourseStatusActive)
	if err != nil {
		return nil, fmt.Errorf("list teacher courses: %w", err)
	}
	for _, course := range courses {
		if _, _, err := g.ensure(ctx, course); err != nil {
			return nil, err
		}
	}

	sessions, err := r.Sessions.ListByTeacher(ctx, teacherID)
	if err != nil {
		return nil, fmt.Errorf("list teacher sessions: %w", err)
	}
	return sessions, nil
}

// EnsureAllCourses проходит по всем planned/active курсам. Ошибка одного курса
// не останавливает остальные.
func (g *SessionGenerator) EnsureAllCourses(ctx context.Context) (EnsureSummary, error) {
	var summary EnsureSummary

	courses, err := g.store.Repos().Courses.ListByStatus(ctx, model.CourseStatusPlanned, model.CourseStatusActive)
	if err != nil {
		return summary, fmt.Errorf("list courses: %w", err)
	}

	var errs []error
	for _, course := range courses {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		created, reconciled, err := g.ensure(ctx, course)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		summary.Courses++
		summary.Created += created
		summary.Deleted += len(reconciled.Deleted)
		summary.Conflicts += len(reconciled.Conflicts)
	}

	return summary, errors.Join(errs...)
}

// ReconcileDuplicates схлопывает занятия курса с одинаковым временем начала
func (g *SessionGenerator) ReconcileDuplicates(ctx context.Context, courseID int64) (*ReconcileResult, error) {
	course, err := g.store.Repos().Courses.GetByID(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("get course: %w", err)
	}
	if course == nil {
		return nil, &NotFoundError{Entity: "course", ID: courseID}
	}
	return g.reconcile(ctx, course)
}

func (g *SessionGenerator) ensure(ctx context.Context, course *model.Course) (int, *ReconcileResult, error) {
	runID := uuid.NewString()
	log := g.logger.With(zap.String("run_id", runID), zap.Int64("course_id", course.ID))

	reconciled, err := g.reconcile(ctx, course)
	if err != nil {
		return 0, nil, err
	}

	if !course.Status.ClaimsSlots() {
		return 0, reconciled, nil
	}

	created, err := g.createMissing(ctx, course, log)
	if err != nil {
		return 0, nil, err
	}

	if len(created) > 0 {
		// параллельный вызов мог успеть создать те же занятия
		again, err := g.reconcile(ctx, course)
		if err != nil {
			return 0, nil, err
		}
		reconciled.Deleted = append(reconciled.Deleted, again.Deleted...)
		reconciled.Conflicts = append(reconciled.Conflicts, again.Conflicts...)

		log.Info("Sessions created", zap.Int("count", len(created)))
		for _, session := range created {
			g.events.send(ctx, model.SessionEventCreated, session, nil)
		}
	}

	return len(created), reconciled, nil
}

// candidate будущее занятие, вычисленное из слота
type candidate struct {
	startsAt time.Time
	duration int
}

// candidates все будущие моменты начала по слотам курса
func (g *SessionGenerator) candidates(ctx context.Context, r repository.Repos, course *model.Course, log *zap.Logger) ([]candidate, error) {
	ids := course.AssignedSlotIDs()
	if len(ids) == 0 {
		return nil, nil
	}

	slots, err := r.Slots.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("get course slots: %w", err)
	}
	if len(slots) < len(ids) {
		log.Warn("Course references missing slots", zap.Int64s("slot_ids", ids), zap.Int("found", len(slots)))
	}

	now := g.opts.Now()
	from := model.MaxDate(course.StartDate, model.DateOf(now.In(g.opts.Location)))

	var out []candidate
	for _, slot := range slots {
		starts, err := Occurrences(slot, from, course.EndDate, g.opts.Location)
		if err != nil {
			log.Warn("Skipping unusable slot", zap.Int64("slot_id", slot.ID), zap.Error(err))
			continue
		}
		duration := ResolveDuration(course, slot)
		for _, start := range starts {
			if start.Before(now) {
				continue
			}
			out = append(out, candidate{startsAt: start, duration: duration})
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].startsAt.Before(out[j].startsAt) })
	return out, nil
}

func (g *SessionGenerator) createMissing(ctx context.Context, course *model.Course, log *zap.Logger) ([]*model.Session, error) {
	var created []*model.Session

	err := g.store.WithTx(ctx, func(r repository.Repos) error {
		created = created[:0]

		if err := r.Users.Lock(ctx, course.TeacherID); err != nil {
			return err
		}

		planned, err := g.candidates(ctx, r, course, log)
		if err != nil {
			return err
		}
		if len(planned) == 0 {
			return nil
		}

		enrolled, err := r.Enrollments.ListByCourse(ctx, course.ID, model.EnrollmentStatusConfirmed)
		if err != nil {
			return fmt.Errorf("list enrollments: %w", err)
		}
		roster := make([]int64, 0, len(enrolled))
		for _, e := range enrolled {
			roster = append(roster, e.StudentID)
		}

		for _, c := range planned {
			exists, err := r.Sessions.Exists(ctx, course.ID, course.TeacherID, c.startsAt)
			if err != nil {
				return fmt.Errorf("check session: %w", err)
			}
			if exists {
				continue
			}

			session := g.newSession(course, c, roster)
			if err := r.Sessions.Create(ctx, session); err != nil {
				return err
			}
			created = append(created, session)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("create sessions: %w", err)
	}
	return created, nil
}

func (g *SessionGenerator) newSession(course *model.Course, c candidate, roster []int64) *model.Session {
	session := &model.Session{
		CourseID:        course.ID,
		TeacherID:       course.TeacherID,
		StartsAt:        c.startsAt,
		OccurrenceAt:    c.startsAt,
		DurationMinutes: c.duration,
		Modality:        course.Modality,
		State:           model.SessionStateScheduled,
		CalendarUID:     uuid.New(),
		Roster:          append([]int64(nil), roster...),
	}

	switch course.Modality {
	case model.ModalityOnline:
		session.MeetingLink = g.opts.OnlineLinkPlaceholder
	case model.ModalityHybrid:
		session.MeetingLink = g.opts.OnlineLinkPlaceholder
		session.Room = g.opts.RoomPlaceholder
	default:
		session.Room = g.opts.RoomPlaceholder
	}
	return session
}

// keeperLess true, если b предпочтительнее оставить, чем a
func keeperLess(a, b *model.Session) bool {
	aState, bState := a.State != model.SessionStateScheduled, b.State != model.SessionStateScheduled
	if aState != bState {
		return !aState
	}
	aMarks, bMarks := len(a.Attendance) > 0, len(b.Attendance) > 0
	if aMarks != bMarks {
		return !aMarks
	}
	if !a.UpdatedAt.Equal(b.UpdatedAt) {
		return a.UpdatedAt.Before(b.UpdatedAt)
	}
	return a.ID < b.ID
}

// pickKeeper выбирает занятие, которое остаётся в группе дубликатов
func pickKeeper(group []*model.Session) *model.Session {
	keeper := group[0]
	for _, s := range group[1:] {
		if keeperLess(keeper, s) {
			keeper = s
		}
	}
	return keeper
}

func (g *SessionGenerator) reconcile(ctx context.Context, course *model.Course) (*ReconcileResult, error) {
	result := &ReconcileResult{}
	r := g.store.Repos()

	from := course.StartDate.At(model.Clock{}, g.opts.Location)
	to := course.EndDate.AddDays(1).At(model.Clock{}, g.opts.Location)

	sessions, err := r.Sessions.ListByCourseBetween(ctx, course.ID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	groups := make(map[int64][]*model.Session)
	keepers := make(map[int64]*model.Session)
	var order []int64
	for _, s := range sessions {
		key := s.StartsAt.UnixMicro()
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], s)
	}

	for _, key := range order {
		group := groups[key]
		if len(group) < 2 {
			continue
		}

		keeper := pickKeeper(group)
		var kept []int64
		for _, s := range group {
			if s.ID == keeper.ID {
				continue
			}
			if !s.Pristine() {
				kept = append(kept, s.ID)
				continue
			}

			deleted, err := r.Sessions.DeletePristine(ctx, s.ID)
			if err != nil {
				return nil, fmt.Errorf("delete duplicate session: %w", err)
			}
			if deleted {
				result.Deleted = append(result.Deleted, s.ID)
				g.logger.Info("Duplicate session removed",
					zap.Int64("course_id", course.ID),
					zap.Int64("session_id", s.ID),
					zap.Int64("keeper_id", keeper.ID),
					zap.Time("starts_at", s.StartsAt),
				)
			}
		}

		if len(kept) > 0 {
			result.Conflicts = append(result.Conflicts, DuplicateConflict{
				CourseID:   course.ID,
				StartsAt:   keeper.StartsAt,
				KeeperID:   keeper.ID,
				SessionIDs: kept,
			})
			keepers[keeper.ID] = keeper
		}
	}

	for _, conflict := range g.freshConflicts(course.ID, result.Conflicts) {
		g.logger.Warn("Conflicting sessions need manual resolution",
			zap.Int64("course_id", course.ID),
			zap.Int64("keeper_id", conflict.KeeperID),
			zap.Int64s("session_ids", conflict.SessionIDs),
			zap.Time("starts_at", conflict.StartsAt),
		)
		g.events.send(ctx, model.SessionEventDuplicateConflict, keepers[conflict.KeeperID], conflict.SessionIDs)
	}

	return result, nil
}

// freshConflicts оставляет конфликты, о которых ещё не сообщали. Пока конфликт
// не изменился, повторные сверки о нём молчат; решённые забываются.
func (g *SessionGenerator) freshConflicts(courseID int64, conflicts []DuplicateConflict) []DuplicateConflict {
	g.mu.Lock()
	defer g.mu.Unlock()

	previous := g.reported[courseID]
	current := make(map[int64]string, len(conflicts))
	var fresh []DuplicateConflict
	for _, c := range conflicts {
		members := fmt.Sprint(c.SessionIDs)
		current[c.KeeperID] = members
		if previous[c.KeeperID] != members {
			fresh = append(fresh, c)
		}
	}

	if len(current) == 0 {
		delete(g.reported, courseID)
	} else {
		g.reported[courseID] = current
	}
	return fresh
}

// RescheduleSession переносит запланированное занятие
func (g *SessionGenerator) RescheduleSession(ctx context.Context, sessionID int64, startsAt time.Time, durationMinutes int) (*model.Session, error) {
	if durationMinutes < MinSessionMinutes || durationMinutes > MaxSessionMinutes {
		return nil, newValidationError("DurationMinutes", fmt.Sprintf("must be between %d and %d minutes", MinSessionMinutes, MaxSessionMinutes))
	}
	if !startsAt.After(g.opts.Now()) {
		return nil, newValidationError("StartsAt", "must be in the future")
	}

	r := g.store.Repos()
	session, err := r.Sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if session == nil {
		return nil, &NotFoundError{Entity: "session", ID: sessionID}
	}
	if session.State != model.SessionStateScheduled {
		return nil, conflictf("session %d is %s", sessionID, session.State)
	}

	course, err := r.Courses.GetByID(ctx, session.CourseID)
	if err != nil {
		return nil, fmt.Errorf("get course: %w", err)
	}
	if course == nil {
		return nil, &NotFoundError{Entity: "course", ID: session.CourseID}
	}
	day := model.DateOf(startsAt.In(g.opts.Location))
	if day.Before(course.StartDate) || day.After(course.EndDate) {
		return nil, newValidationError("StartsAt", fmt.Sprintf("must be within course dates %s..%s", course.StartDate, course.EndDate))
	}

	if !session.StartsAt.Equal(startsAt) && !session.OccurrenceAt.Equal(startsAt) {
		taken, err := r.Sessions.Exists(ctx, session.CourseID, session.TeacherID, startsAt)
		if err != nil {
			return nil, fmt.Errorf("check session: %w", err)
		}
		if taken {
			return nil, conflictf("course %d already has a session at %s", session.CourseID, startsAt.Format(time.RFC3339))
		}
	}

	moved, err := r.Sessions.Reschedule(ctx, sessionID, startsAt, durationMinutes)
	if err != nil {
		return nil, fmt.Errorf("reschedule session: %w", err)
	}
	if !moved {
		return nil, conflictf("session %d is no longer scheduled", sessionID)
	}

	session.StartsAt = startsAt
	session.DurationMinutes = durationMinutes

	g.logger.Info("Session rescheduled",
		zap.Int64("session_id", sessionID),
		zap.Time("starts_at", startsAt),
		zap.Int("duration_minutes", durationMinutes),
	)
	g.events.send(ctx, model.SessionEventUpdated, session, nil)

	return session, nil
}

// CancelSession отменяет запланированное занятие
func (g *SessionGenerator) CancelSession(ctx context.Context, sessionID int64) (*model.Session, error) {
	r := g.store.Repos()
	session, err := r.Sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if session == nil {
		return nil, &NotFoundError{Entity: "session", ID: sessionID}
	}

	ok, err := r.Sessions.TransitionState(ctx, sessionID, model.SessionStateScheduled, model.SessionStateCancelled)
	if err != nil {
		return nil, fmt.Errorf("cancel session: %w", err)
	}
	if !ok {
		return nil, conflictf("session %d is %s", sessionID, session.State)
	}
	session.State = model.SessionStateCancelled

	g.logger.Info("Session cancelled", zap.Int64("session_id", sessionID))
	g.events.send(ctx, model.SessionEventCancelled, session, nil)

	return session, nil
}
