package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/Freeeeeet/course_sessions/internal/model"
	"github.com/Freeeeeet/course_sessions/internal/repository"
	"go.uber.org/zap"
)

// AttendanceEntry отметка одного студента
type AttendanceEntry struct {
	StudentID   int64 `validate:"required,gt=0"`
	Present     bool
	MinutesLate int    `validate:"min=0,max=600"`
	Comment     string `validate:"max=1000"`
}

type BatchMode string

const (
	// BatchAtomic либо все отметки, либо ни одной
	BatchAtomic BatchMode = "atomic"
	// BatchPartial каждая отметка применяется независимо
	BatchPartial BatchMode = "partial"
)

type BatchFailure struct {
	StudentID int64
	Err       error
}

type BatchResult struct {
	Recorded int
	Failed   []BatchFailure
}

// AttendanceTracker отметки посещаемости и завершение занятий
type AttendanceTracker struct {
	store  repository.Store
	opts   Options
	events *dispatcher
	logger *zap.Logger
}

func NewAttendanceTracker(store repository.Store, opts Options, logger *zap.Logger) *AttendanceTracker {
	opts = opts.withDefaults()
	return &AttendanceTracker{
		store:  store,
		opts:   opts,
		events: newDispatcher(opts.Notifier, opts.NotifyTimeout, opts.Now, logger),
		logger: logger,
	}
}

func loadSession(ctx context.Context, r repository.Repos, sessionID int64) (*model.Session, error) {
	session, err := r.Sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if session == nil {
		return nil, &NotFoundError{Entity: "session", ID: sessionID}
	}
	return session, nil
}

// checkEntry проверяет отметку против состояния и состава занятия
func checkEntry(session *model.Session, entry AttendanceEntry) error {
	if err := validateStruct(entry); err != nil {
		return err
	}
	if session.State != model.SessionStateScheduled {
		return conflictf("session %d is %s", session.ID, session.State)
	}
	if !session.InRoster(entry.StudentID) {
		return conflictf("student %d is not in the roster of session %d", entry.StudentID, session.ID)
	}
	return nil
}

func (t *AttendanceTracker) upsert(ctx context.Context, r repository.Repos, sessionID, recordedBy int64, entry AttendanceEntry) (*model.AttendanceRecord, error) {
	record := &model.AttendanceRecord{
		SessionID:   sessionID,
		StudentID:   entry.StudentID,
		Present:     entry.Present,
		MinutesLate: entry.MinutesLate,
		Comment:     entry.Comment,
		RecordedBy:  recordedBy,
		RecordedAt:  t.opts.Now(),
	}
	if err := r.Attendance.Upsert(ctx, record); err != nil {
		return nil, fmt.Errorf("upsert attendance: %w", err)
	}
	return record, nil
}

// RecordAttendance ставит или перезаписывает отметку студента в занятии
func (t *AttendanceTracker) RecordAttendance(ctx context.Context, sessionID, recordedBy int64, entry AttendanceEntry) (*model.AttendanceRecord, error) {
	r := t.store.Repos()

	session, err := loadSession(ctx, r, sessionID)
	if err != nil {
		return nil, err
	}
	if err := checkEntry(session, entry); err != nil {
		return nil, err
	}

	record, err := t.upsert(ctx, r, sessionID, recordedBy, entry)
	if err != nil {
		return nil, err
	}

	t.logger.Info("Attendance recorded",
		zap.Int64("session_id", sessionID),
		zap.Int64("student_id", entry.StudentID),
		zap.Bool("present", entry.Present),
		zap.Int64("recorded_by", recordedBy),
	)

	return record, nil
}

// RecordAttendanceBatch отмечает сразу несколько студентов
func (t *AttendanceTracker) RecordAttendanceBatch(ctx context.Context, sessionID, recordedBy int64, entries []AttendanceEntry, mode BatchMode) (*BatchResult, error) {
	if mode == "" {
		mode = BatchPartial
	}
	if mode != BatchAtomic && mode != BatchPartial {
		return nil, newValidationError("Mode", "must be one of atomic partial")
	}

	result := &BatchResult{}

	if mode == BatchAtomic {
		err := t.store.WithTx(ctx, func(r repository.Repos) error {
			session, err := loadSession(ctx, r, sessionID)
			if err != nil {
				return err
			}

			var errs []error
			for _, entry := range entries {
				if err := checkEntry(session, entry); err != nil {
					errs = append(errs, fmt.Errorf("student %d: %w", entry.StudentID, err))
				}
			}
			if len(errs) > 0 {
				return errors.Join(errs...)
			}

			for _, entry := range entries {
				if _, err := t.upsert(ctx, r, sessionID, recordedBy, entry); err != nil {
					return err
				}
				result.Recorded++
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("record attendance batch: %w", err)
		}
	} else {
		r := t.store.Repos()
		session, err := loadSession(ctx, r, sessionID)
		if err != nil {
			return nil, err
		}

		for _, entry := range entries {
			if err := checkEntry(session, entry); err != nil {
				result.Failed = append(result.Failed, BatchFailure{StudentID: entry.StudentID, Err: err})
				continue
			}
			if _, err := t.upsert(ctx, r, sessionID, recordedBy, entry); err != nil {
				result.Failed = append(result.Failed, BatchFailure{StudentID: entry.StudentID, Err: err})
				continue
			}
			result.Recorded++
		}
	}

	t.logger.Info("Attendance batch recorded",
		zap.Int64("session_id", sessionID),
		zap.String("mode", string(mode)),
		zap.Int("recorded", result.Recorded),
		zap.Int("failed", len(result.Failed)),
	)

	return result, nil
}

// CompleteSession завершает занятие и начисляет часы присутствовавшим студентам.
// Без отметок посещаемости занятие завершить нельзя.
func (t *AttendanceTracker) CompleteSession(ctx context.Context, sessionID int64) (*model.Session, error) {
	var session *model.Session
	var credited int

	err := t.store.WithTx(ctx, func(r repository.Repos) error {
		credited = 0

		var err error
		session, err = loadSession(ctx, r, sessionID)
		if err != nil {
			return err
		}
		if session.State != model.SessionStateScheduled {
			return conflictf("session %d is already %s", sessionID, session.State)
		}
		if len(session.Attendance) == 0 {
			return conflictf("session %d has no attendance records", sessionID)
		}

		ok, err := r.Sessions.TransitionState(ctx, sessionID, model.SessionStateScheduled, model.SessionStateCompleted)
		if err != nil {
			return fmt.Errorf("complete session: %w", err)
		}
		if !ok {
			return conflictf("session %d is no longer scheduled", sessionID)
		}
		session.State = model.SessionStateCompleted

		course, err := r.Courses.GetByID(ctx, session.CourseID)
		if err != nil {
			return fmt.Errorf("get course: %w", err)
		}
		if course == nil {
			return &NotFoundError{Entity: "course", ID: session.CourseID}
		}
		slots, err := r.Slots.GetByIDs(ctx, course.AssignedSlotIDs())
		if err != nil {
			return fmt.Errorf("get course slots: %w", err)
		}
		planned := PlannedHours(course, slots, t.opts.Location)
		hours := float64(session.DurationMinutes) / 60

		for _, studentID := range session.Roster {
			rec := session.AttendanceFor(studentID)
			if rec == nil || !rec.Present {
				continue
			}
			if err := r.Enrollments.AddHours(ctx, course.ID, studentID, hours, planned); err != nil {
				return fmt.Errorf("add hours: %w", err)
			}
			credited++
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("complete session: %w", err)
	}

	t.logger.Info("Session completed",
		zap.Int64("session_id", sessionID),
		zap.Int("students_credited", credited),
	)
	t.events.send(ctx, model.SessionEventCompleted, session, nil)

	return session, nil
}
