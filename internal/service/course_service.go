package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/Freeeeeet/course_sessions/internal/model"
	"github.com/Freeeeeet/course_sessions/internal/repository"
	"go.uber.org/zap"
)

// CourseInput данные нового курса
type CourseInput struct {
	TeacherID              int64          `validate:"required,gt=0"`
	Name                   string         `validate:"required,max=200"`
	StartDate              model.Date     `validate:"-"`
	EndDate                model.Date     `validate:"-"`
	DefaultDurationMinutes *int           `validate:"omitempty,min=30,max=180"`
	Capacity               int            `validate:"min=1"`
	Modality               model.Modality `validate:"required,oneof=in_person online hybrid"`

	SlotIDs   []int64
	Durations map[int64]int
}

// CourseService жизненный цикл курса, назначение слотов и запись студентов
type CourseService struct {
	store  repository.Store
	opts   Options
	events *dispatcher
	logger *zap.Logger
}

func NewCourseService(store repository.Store, opts Options, logger *zap.Logger) *CourseService {
	opts = opts.withDefaults()
	return &CourseService{
		store:  store,
		opts:   opts,
		events: newDispatcher(opts.Notifier, opts.NotifyTimeout, opts.Now, logger),
		logger: logger,
	}
}

func (s *CourseService) GetCourse(ctx context.Context, id int64) (*model.Course, error) {
	course, err := s.store.Repos().Courses.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get course: %w", err)
	}
	if course == nil {
		return nil, &NotFoundError{Entity: "course", ID: id}
	}
	return course, nil
}

// CreateCourse создаёт курс в статусе planned и, если переданы, назначает слоты
func (s *CourseService) CreateCourse(ctx context.Context, in CourseInput) (*model.Course, error) {
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	if in.StartDate.IsZero() || in.EndDate.IsZero() {
		return nil, newValidationError("StartDate", "date range is required")
	}
	if in.EndDate.Before(in.StartDate) {
		return nil, newValidationError("EndDate", "must not be before StartDate")
	}

	course := &model.Course{
		TeacherID:              in.TeacherID,
		Name:                   in.Name,
		StartDate:              in.StartDate,
		EndDate:                in.EndDate,
		DefaultDurationMinutes: in.DefaultDurationMinutes,
		Capacity:               in.Capacity,
		Modality:               in.Modality,
		Status:                 model.CourseStatusPlanned,
	}

	err := s.store.WithTx(ctx, func(r repository.Repos) error {
		if err := r.Users.Lock(ctx, in.TeacherID); err != nil {
			return err
		}
		if err := requireTeacher(ctx, r, in.TeacherID); err != nil {
			return err
		}
		if err := r.Courses.Create(ctx, course); err != nil {
			return err
		}
		if len(in.SlotIDs) == 0 {
			return nil
		}
		return s.assignSlotsTx(ctx, r, course, in.SlotIDs, in.Durations)
	})
	if err != nil {
		return nil, fmt.Errorf("create course: %w", err)
	}

	s.logger.Info("Course created",
		zap.Int64("course_id", course.ID),
		zap.Int64("teacher_id", course.TeacherID),
		zap.Int("slots", len(course.SlotIDs)),
	)

	return course, nil
}

// AssignSlots заменяет список слотов курса целиком. Любое нарушение отменяет
// назначение полностью, курс остаётся без изменений.
func (s *CourseService) AssignSlots(ctx context.Context, courseID, teacherID int64, slotIDs []int64, durations map[int64]int) (*model.Course, error) {
	var course *model.Course
	var removed []*model.TimeSlot

	err := s.store.WithTx(ctx, func(r repository.Repos) error {
		// блокировка преподавателя сериализует проверку занятости слотов
		if err := r.Users.Lock(ctx, teacherID); err != nil {
			return err
		}
		if err := r.Courses.Lock(ctx, courseID); err != nil {
			return err
		}

		var err error
		course, err = r.Courses.GetByID(ctx, courseID)
		if err != nil {
			return fmt.Errorf("get course: %w", err)
		}
		if course == nil {
			return &NotFoundError{Entity: "course", ID: courseID}
		}
		if course.TeacherID != teacherID {
			return newValidationError("TeacherID", fmt.Sprintf("course %d is taught by teacher %d", courseID, course.TeacherID))
		}

		previous := course.AssignedSlotIDs()
		if err := s.assignSlotsTx(ctx, r, course, slotIDs, durations); err != nil {
			return err
		}

		removed, err = droppedSlots(ctx, r, previous, course.SlotIDs)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("assign slots: %w", err)
	}

	s.dropUpcomingSessions(ctx, course, removed)

	s.logger.Info("Course slots assigned",
		zap.Int64("course_id", course.ID),
		zap.Int64s("slot_ids", course.SlotIDs),
	)

	return course, nil
}

// assignSlotsTx проверяет все слоты, собирает нарушения в одну ошибку и только потом пишет
func (s *CourseService) assignSlotsTx(ctx context.Context, r repository.Repos, course *model.Course, slotIDs []int64, durations map[int64]int) error {
	if !course.Status.ClaimsSlots() {
		return conflictf("course %d is %s", course.ID, course.Status)
	}

	ids := uniqueIDs(slotIDs)

	if !sameIDs(ids, course.AssignedSlotIDs()) {
		enrolled, err := r.Enrollments.ListByCourse(ctx, course.ID, model.EnrollmentStatusConfirmed)
		if err != nil {
			return fmt.Errorf("list enrollments: %w", err)
		}
		if len(enrolled) > 0 {
			return conflictf("course %d has %d confirmed enrollment(s), slots cannot change", course.ID, len(enrolled))
		}
	}

	slots, err := r.Slots.GetByIDs(ctx, ids)
	if err != nil {
		return fmt.Errorf("get slots: %w", err)
	}
	byID := make(map[int64]*model.TimeSlot, len(slots))
	for _, slot := range slots {
		byID[slot.ID] = slot
	}
	for _, id := range ids {
		if byID[id] == nil {
			return &NotFoundError{Entity: "time slot", ID: id}
		}
	}

	granted, err := r.Grants.SlotIDs(ctx, course.TeacherID)
	if err != nil {
		return fmt.Errorf("get granted slots: %w", err)
	}
	grantSet := make(map[int64]bool, len(granted))
	for _, id := range granted {
		grantSet[id] = true
	}

	claimed, err := claimedSlots(ctx, r, course.TeacherID, &course.ID)
	if err != nil {
		return err
	}

	ve := &ValidationError{}
	for _, id := range ids {
		field := fmt.Sprintf("SlotIDs[%d]", id)
		if !grantSet[id] {
			ve.Fields = append(ve.Fields, FieldError{Field: field, Message: "slot is not granted to the teacher"})
		}
		if other, taken := claimed[id]; taken {
			ve.Fields = append(ve.Fields, FieldError{Field: field, Message: fmt.Sprintf("slot is already claimed by course %d", other)})
		}
	}

	overrides := make(map[int64]int, len(durations))
	for slotID, minutes := range durations {
		field := fmt.Sprintf("Durations[%d]", slotID)
		slot, assigned := byID[slotID]
		switch {
		case !assigned:
			ve.Fields = append(ve.Fields, FieldError{Field: field, Message: "slot is not in the assignment"})
		case minutes < MinSessionMinutes || minutes > MaxSessionMinutes:
			ve.Fields = append(ve.Fields, FieldError{Field: field, Message: fmt.Sprintf("must be between %d and %d minutes", MinSessionMinutes, MaxSessionMinutes)})
		case minutes > slot.NaturalSpanMinutes():
			ve.Fields = append(ve.Fields, FieldError{Field: field, Message: fmt.Sprintf("exceeds slot length of %d minutes", slot.NaturalSpanMinutes())})
		default:
			overrides[slotID] = minutes
		}
	}
	if len(ve.Fields) > 0 {
		sort.Slice(ve.Fields, func(i, j int) bool { return ve.Fields[i].Field < ve.Fields[j].Field })
		return ve
	}

	if err := r.Courses.ReplaceSlots(ctx, course.ID, ids, overrides); err != nil {
		return err
	}

	course.SlotIDs = ids
	course.DurationOverrides = overrides
	course.LegacySlotID = nil
	return nil
}

// droppedSlots слоты, которые были у курса и пропали после замены
func droppedSlots(ctx context.Context, r repository.Repos, previous, current []int64) ([]*model.TimeSlot, error) {
	keep := make(map[int64]bool, len(current))
	for _, id := range current {
		keep[id] = true
	}
	var gone []int64
	for _, id := range previous {
		if !keep[id] {
			gone = append(gone, id)
		}
	}
	if len(gone) == 0 {
		return nil, nil
	}
	slots, err := r.Slots.GetByIDs(ctx, gone)
	if err != nil {
		return nil, fmt.Errorf("get removed slots: %w", err)
	}
	return slots, nil
}

// dropUpcomingSessions удаляет будущие нетронутые занятия снятых слотов
func (s *CourseService) dropUpcomingSessions(ctx context.Context, course *model.Course, removed []*model.TimeSlot) {
	if len(removed) == 0 {
		return
	}
	if _, err := dropSlotSessions(ctx, s.store.Repos(), course, removed, s.opts.Now(), s.opts.Location); err != nil {
		s.logger.Warn("Failed to drop sessions of removed slots", zap.Int64("course_id", course.ID), zap.Error(err))
	}
}

// dropSlotSessions удаляет будущие scheduled занятия без отметок, созданные из
// слотов removed. Занятие узнаётся по occurrence_at, перенос его не меняет.
func dropSlotSessions(ctx context.Context, r repository.Repos, course *model.Course, removed []*model.TimeSlot, now time.Time, loc *time.Location) ([]int64, error) {
	from := model.MaxDate(course.StartDate, model.DateOf(now.In(loc)))

	sessions, err := r.Sessions.ListByCourse(ctx, course.ID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	stale := make(map[int64]bool)
	for _, slot := range removed {
		starts, err := Occurrences(slot, from, course.EndDate, loc)
		if err != nil {
			continue
		}
		for _, start := range starts {
			for _, session := range sessions {
				if session.OccurrenceAt.Equal(start) && session.StartsAt.After(now) && session.Pristine() {
					stale[session.ID] = true
				}
			}
		}
	}

	var dropped []int64
	for _, session := range sessions {
		if !stale[session.ID] {
			continue
		}
		deleted, err := r.Sessions.DeletePristine(ctx, session.ID)
		if err != nil {
			return dropped, fmt.Errorf("delete session %d: %w", session.ID, err)
		}
		if deleted {
			dropped = append(dropped, session.ID)
		}
	}
	return dropped, nil
}

// ReassignTeacher передаёт курс другому преподавателю, пока на курс никто не записан
func (s *CourseService) ReassignTeacher(ctx context.Context, courseID, teacherID int64) (*model.Course, error) {
	var course *model.Course
	var moved int64

	err := s.store.WithTx(ctx, func(r repository.Repos) error {
		if err := r.Users.Lock(ctx, teacherID); err != nil {
			return err
		}
		if err := r.Courses.Lock(ctx, courseID); err != nil {
			return err
		}

		var err error
		course, err = r.Courses.GetByID(ctx, courseID)
		if err != nil {
			return fmt.Errorf("get course: %w", err)
		}
		if course == nil {
			return &NotFoundError{Entity: "course", ID: courseID}
		}
		if course.TeacherID == teacherID {
			return nil
		}
		if err := requireTeacher(ctx, r, teacherID); err != nil {
			return err
		}

		enrolled, err := r.Enrollments.ListByCourse(ctx, courseID, model.EnrollmentStatusConfirmed)
		if err != nil {
			return fmt.Errorf("list enrollments: %w", err)
		}
		if len(enrolled) > 0 {
			return conflictf("course %d has %d confirmed enrollment(s), teacher cannot change", courseID, len(enrolled))
		}

		if course.Status.ClaimsSlots() {
			granted, err := r.Grants.SlotIDs(ctx, teacherID)
			if err != nil {
				return fmt.Errorf("get granted slots: %w", err)
			}
			grantSet := make(map[int64]bool, len(granted))
			for _, id := range granted {
				grantSet[id] = true
			}
			claimed, err := claimedSlots(ctx, r, teacherID, &course.ID)
			if err != nil {
				return err
			}

			ve := &ValidationError{}
			for _, id := range course.AssignedSlotIDs() {
				field := fmt.Sprintf("SlotIDs[%d]", id)
				if !grantSet[id] {
					ve.Fields = append(ve.Fields, FieldError{Field: field, Message: "slot is not granted to the new teacher"})
				}
				if other, taken := claimed[id]; taken {
					ve.Fields = append(ve.Fields, FieldError{Field: field, Message: fmt.Sprintf("slot is already claimed by course %d", other)})
				}
			}
			if len(ve.Fields) > 0 {
				return ve
			}
		}

		if err := r.Courses.UpdateTeacher(ctx, courseID, teacherID); err != nil {
			return err
		}
		moved, err = r.Sessions.ReassignUpcoming(ctx, courseID, teacherID, s.opts.Now())
		if err != nil {
			return fmt.Errorf("reassign sessions: %w", err)
		}
		course.TeacherID = teacherID
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reassign teacher: %w", err)
	}

	s.logger.Info("Course teacher reassigned",
		zap.Int64("course_id", courseID),
		zap.Int64("teacher_id", teacherID),
		zap.Int64("sessions_moved", moved),
	)

	return course, nil
}

var courseTransitions = map[model.CourseStatus][]model.CourseStatus{
	model.CourseStatusPlanned: {model.CourseStatusActive, model.CourseStatusCancelled},
	model.CourseStatusActive:  {model.CourseStatusCompleted, model.CourseStatusCancelled},
}

// SetCourseStatus переводит курс по жизненному циклу. Отмена курса отменяет
// будущие занятия и освобождает его слоты.
func (s *CourseService) SetCourseStatus(ctx context.Context, courseID int64, status model.CourseStatus) (*model.Course, error) {
	var course *model.Course
	var cancelled []int64

	err := s.store.WithTx(ctx, func(r repository.Repos) error {
		if err := r.Courses.Lock(ctx, courseID); err != nil {
			return err
		}

		var err error
		course, err = r.Courses.GetByID(ctx, courseID)
		if err != nil {
			return fmt.Errorf("get course: %w", err)
		}
		if course == nil {
			return &NotFoundError{Entity: "course", ID: courseID}
		}
		if course.Status == status {
			return nil
		}

		allowed := false
		for _, next := range courseTransitions[course.Status] {
			if next == status {
				allowed = true
				break
			}
		}
		if !allowed {
			return conflictf("course %d cannot move from %s to %s", courseID, course.Status, status)
		}

		if err := r.Courses.UpdateStatus(ctx, courseID, status); err != nil {
			return err
		}
		course.Status = status

		if status == model.CourseStatusCancelled {
			cancelled, err = r.Sessions.CancelUpcoming(ctx, courseID, s.opts.Now())
			if err != nil {
				return fmt.Errorf("cancel sessions: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("set course status: %w", err)
	}

	for _, id := range cancelled {
		session, err := s.store.Repos().Sessions.GetByID(ctx, id)
		if err != nil || session == nil {
			continue
		}
		s.events.send(ctx, model.SessionEventCancelled, session, nil)
	}

	s.logger.Info("Course status changed",
		zap.Int64("course_id", courseID),
		zap.String("status", string(status)),
		zap.Int("sessions_cancelled", len(cancelled)),
	)

	return course, nil
}

// DeleteCourse удаляет курс вместе с занятиями, если на него никто не записан
func (s *CourseService) DeleteCourse(ctx context.Context, courseID int64) error {
	err := s.store.WithTx(ctx, func(r repository.Repos) error {
		if err := r.Courses.Lock(ctx, courseID); err != nil {
			return err
		}
		course, err := r.Courses.GetByID(ctx, courseID)
		if err != nil {
			return fmt.Errorf("get course: %w", err)
		}
		if course == nil {
			return &NotFoundError{Entity: "course", ID: courseID}
		}

		active, err := r.Enrollments.CountActive(ctx, courseID)
		if err != nil {
			return fmt.Errorf("count enrollments: %w", err)
		}
		if active > 0 {
			return conflictf("course %d has %d active enrollment(s)", courseID, active)
		}

		if err := r.Sessions.DeleteByCourse(ctx, courseID); err != nil {
			return err
		}
		if err := r.Enrollments.DeleteByCourse(ctx, courseID); err != nil {
			return err
		}
		return r.Courses.Delete(ctx, courseID)
	})
	if err != nil {
		return fmt.Errorf("delete course: %w", err)
	}

	s.logger.Info("Course deleted", zap.Int64("course_id", courseID))
	return nil
}

// Enroll записывает студента на курс с учётом вместимости и добавляет его
// в состав будущих занятий
func (s *CourseService) Enroll(ctx context.Context, studentID, courseID int64) (*model.Enrollment, error) {
	var enrollment *model.Enrollment

	err := s.store.WithTx(ctx, func(r repository.Repos) error {
		if err := r.Courses.Lock(ctx, courseID); err != nil {
			return err
		}
		course, err := r.Courses.GetByID(ctx, courseID)
		if err != nil {
			return fmt.Errorf("get course: %w", err)
		}
		if course == nil {
			return &NotFoundError{Entity: "course", ID: courseID}
		}
		if !course.Status.ClaimsSlots() {
			return conflictf("course %d is %s", courseID, course.Status)
		}

		student, err := r.Users.GetByID(ctx, studentID)
		if err != nil {
			return fmt.Errorf("get student: %w", err)
		}
		if student == nil {
			return &NotFoundError{Entity: "student", ID: studentID}
		}

		enrollment, err = r.Enrollments.GetByStudentCourse(ctx, studentID, courseID)
		if err != nil {
			return fmt.Errorf("get enrollment: %w", err)
		}
		if enrollment != nil && enrollment.IsActive() {
			return conflictf("student %d is already enrolled in course %d", studentID, courseID)
		}

		count, err := r.Enrollments.CountActive(ctx, courseID)
		if err != nil {
			return fmt.Errorf("count enrollments: %w", err)
		}
		if count >= course.Capacity {
			return conflictf("course %d is full (%d/%d)", courseID, count, course.Capacity)
		}

		if enrollment != nil {
			// повторная запись после отмены сохраняет накопленные часы
			if err := r.Enrollments.UpdateStatus(ctx, enrollment.ID, model.EnrollmentStatusConfirmed); err != nil {
				return err
			}
			enrollment.Status = model.EnrollmentStatusConfirmed
		} else {
			enrollment = &model.Enrollment{
				StudentID: studentID,
				CourseID:  courseID,
				Status:    model.EnrollmentStatusConfirmed,
			}
			if err := r.Enrollments.Create(ctx, enrollment); err != nil {
				return err
			}
		}

		_, err = r.Sessions.AddToUpcomingRosters(ctx, courseID, studentID, s.opts.Now())
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("enroll: %w", err)
	}

	s.logger.Info("Student enrolled",
		zap.Int64("student_id", studentID),
		zap.Int64("course_id", courseID),
		zap.Int64("enrollment_id", enrollment.ID),
	)

	return enrollment, nil
}

// Unenroll отменяет запись и убирает студента из будущих занятий
func (s *CourseService) Unenroll(ctx context.Context, studentID, courseID int64) error {
	err := s.store.WithTx(ctx, func(r repository.Repos) error {
		enrollment, err := r.Enrollments.GetByStudentCourse(ctx, studentID, courseID)
		if err != nil {
			return fmt.Errorf("get enrollment: %w", err)
		}
		if enrollment == nil || !enrollment.IsActive() {
			return &NotFoundError{Entity: "enrollment", ID: courseID}
		}
		if err := r.Enrollments.UpdateStatus(ctx, enrollment.ID, model.EnrollmentStatusCancelled); err != nil {
			return err
		}
		_, err = r.Sessions.RemoveFromUpcomingRosters(ctx, courseID, studentID, s.opts.Now())
		return err
	})
	if err != nil {
		return fmt.Errorf("unenroll: %w", err)
	}

	s.logger.Info("Student unenrolled", zap.Int64("student_id", studentID), zap.Int64("course_id", courseID))
	return nil
}

// uniqueIDs убирает повторы, сохраняя порядок
func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func sameIDs(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[int64]bool, len(a))
	for _, id := range a {
		set[id] = true
	}
	for _, id := range b {
		if !set[id] {
			return false
		}
	}
	return true
}
