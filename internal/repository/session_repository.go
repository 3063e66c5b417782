package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Freeeeeet/course_sessions/internal/model"
	"github.com/Freeeeeet/course_sessions/internal/repository/base"
	"github.com/jackc/pgx/v5"
)

type SessionRepository struct {
	q base.Querier
}

func NewSessionRepository(q base.Querier) *SessionRepository {
	return &SessionRepository{q: q}
}

const sessionColumns = `id, course_id, teacher_id, starts_at, occurrence_at, duration_minutes, modality, state,
	meeting_link, room, calendar_uid, created_at, updated_at`

func scanSession(row pgx.Row) (*model.Session, error) {
	var s model.Session
	err := row.Scan(
		&s.ID,
		&s.CourseID,
		&s.TeacherID,
		&s.StartsAt,
		&s.OccurrenceAt,
		&s.DurationMinutes,
		&s.Modality,
		&s.State,
		&s.MeetingLink,
		&s.Room,
		&s.CalendarUID,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *SessionRepository) querySessions(ctx context.Context, query string, args ...any) ([]*model.Session, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	var sessions []*model.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := r.hydrate(ctx, sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

// hydrate подгружает состав и отметки посещения для набора занятий
func (r *SessionRepository) hydrate(ctx context.Context, sessions []*model.Session) error {
	if len(sessions) == 0 {
		return nil
	}

	byID := make(map[int64]*model.Session, len(sessions))
	ids := make([]int64, 0, len(sessions))
	for _, s := range sessions {
		byID[s.ID] = s
		ids = append(ids, s.ID)
	}

	rows, err := r.q.Query(ctx, `
		SELECT session_id, student_id FROM session_roster
		WHERE session_id = ANY($1)
		ORDER BY session_id, student_id
	`, ids)
	if err != nil {
		return fmt.Errorf("load roster: %w", err)
	}
	for rows.Next() {
		var sessionID, studentID int64
		if err := rows.Scan(&sessionID, &studentID); err != nil {
			rows.Close()
			return fmt.Errorf("scan roster: %w", err)
		}
		byID[sessionID].Roster = append(byID[sessionID].Roster, studentID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	records, err := r.q.Query(ctx, `
		SELECT session_id, student_id, present, minutes_late, comment, recorded_by, recorded_at
		FROM attendance_records
		WHERE session_id = ANY($1)
		ORDER BY session_id, student_id
	`, ids)
	if err != nil {
		return fmt.Errorf("load attendance: %w", err)
	}
	defer records.Close()

	for records.Next() {
		var rec model.AttendanceRecord
		err := records.Scan(
			&rec.SessionID,
			&rec.StudentID,
			&rec.Present,
			&rec.MinutesLate,
			&rec.Comment,
			&rec.RecordedBy,
			&rec.RecordedAt,
		)
		if err != nil {
			return fmt.Errorf("scan attendance: %w", err)
		}
		byID[rec.SessionID].Attendance = append(byID[rec.SessionID].Attendance, rec)
	}
	return records.Err()
}

// Create создаёт занятие и его состав
func (r *SessionRepository) Create(ctx context.Context, s *model.Session) error {
	query := `
		INSERT INTO sessions (course_id, teacher_id, starts_at, occurrence_at, duration_minutes, modality, state, meeting_link, room, calendar_uid)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at
	`

	err := r.q.QueryRow(ctx, query,
		s.CourseID,
		s.TeacherID,
		s.StartsAt,
		s.OccurrenceAt,
		s.DurationMinutes,
		s.Modality,
		s.State,
		s.MeetingLink,
		s.Room,
		s.CalendarUID,
	).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}

	if len(s.Roster) > 0 {
		_, err = r.q.Exec(ctx, `
			INSERT INTO session_roster (session_id, student_id)
			SELECT $1, unnest($2::bigint[])
			ON CONFLICT DO NOTHING
		`, s.ID, s.Roster)
		if err != nil {
			return fmt.Errorf("create session roster: %w", err)
		}
	}

	return nil
}

// GetByID получает занятие с составом и отметками
func (r *SessionRepository) GetByID(ctx context.Context, id int64) (*model.Session, error) {
	sessions, err := r.querySessions(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("get session by id: %w", err)
	}
	if len(sessions) == 0 {
		return nil, nil
	}
	return sessions[0], nil
}

// ListByCourse все занятия курса
func (r *SessionRepository) ListByCourse(ctx context.Context, courseID int64) ([]*model.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE course_id = $1 ORDER BY starts_at, id`

	sessions, err := r.querySessions(ctx, query, courseID)
	if err != nil {
		return nil, fmt.Errorf("list sessions by course: %w", err)
	}
	return sessions, nil
}

// ListByCourseBetween занятия курса с началом в [from, to)
func (r *SessionRepository) ListByCourseBetween(ctx context.Context, courseID int64, from, to time.Time) ([]*model.Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM sessions
		WHERE course_id = $1
		  AND starts_at >= $2
		  AND starts_at < $3
		ORDER BY starts_at, id
	`

	sessions, err := r.querySessions(ctx, query, courseID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list sessions by course between: %w", err)
	}
	return sessions, nil
}

// ListByTeacher все занятия преподавателя
func (r *SessionRepository) ListByTeacher(ctx context.Context, teacherID int64) ([]*model.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE teacher_id = $1 ORDER BY starts_at, id`

	sessions, err := r.querySessions(ctx, query, teacherID)
	if err != nil {
		return nil, fmt.Errorf("list sessions by teacher: %w", err)
	}
	return sessions, nil
}

// Exists проверяет наличие занятия по ключу (курс, преподаватель, начало).
// Перенесённое занятие продолжает занимать исходный момент слота.
func (r *SessionRepository) Exists(ctx context.Context, courseID, teacherID int64, startsAt time.Time) (bool, error) {
	query := `
		SELECT EXISTS(
			SELECT 1 FROM sessions
			WHERE course_id = $1 AND teacher_id = $2
			  AND (starts_at = $3 OR occurrence_at = $3)
		)
	`

	var exists bool
	if err := r.q.QueryRow(ctx, query, courseID, teacherID, startsAt).Scan(&exists); err != nil {
		return false, fmt.Errorf("check session exists: %w", err)
	}
	return exists, nil
}

// DeletePristine удаляет занятие, если оно всё ещё scheduled и без отметок.
// Условие проверяется в самом DELETE, поэтому параллельная отметка не потеряется.
func (r *SessionRepository) DeletePristine(ctx context.Context, id int64) (bool, error) {
	query := `
		DELETE FROM sessions s
		WHERE s.id = $1
		  AND s.state = 'scheduled'
		  AND NOT EXISTS (SELECT 1 FROM attendance_records a WHERE a.session_id = s.id)
	`

	affected, err := base.ExecAffected(ctx, r.q, query, id)
	if err != nil {
		return false, fmt.Errorf("delete pristine session: %w", err)
	}
	return affected > 0, nil
}

// TransitionState меняет состояние только из ожидаемого from
func (r *SessionRepository) TransitionState(ctx context.Context, id int64, from, to model.SessionState) (bool, error) {
	affected, err := base.ExecAffected(ctx, r.q, `
		UPDATE sessions SET state = $3, updated_at = NOW()
		WHERE id = $1 AND state = $2
	`, id, from, to)
	if err != nil {
		return false, fmt.Errorf("transition session state: %w", err)
	}
	return affected > 0, nil
}

// Reschedule переносит запланированное занятие
func (r *SessionRepository) Reschedule(ctx context.Context, id int64, startsAt time.Time, durationMinutes int) (bool, error) {
	affected, err := base.ExecAffected(ctx, r.q, `
		UPDATE sessions SET starts_at = $2, duration_minutes = $3, updated_at = NOW()
		WHERE id = $1 AND state = 'scheduled'
	`, id, startsAt, durationMinutes)
	if err != nil {
		return false, fmt.Errorf("reschedule session: %w", err)
	}
	return affected > 0, nil
}

// CancelUpcoming отменяет запланированные занятия курса после after
func (r *SessionRepository) CancelUpcoming(ctx context.Context, courseID int64, after time.Time) ([]int64, error) {
	rows, err := r.q.Query(ctx, `
		UPDATE sessions SET state = 'cancelled', updated_at = NOW()
		WHERE course_id = $1 AND state = 'scheduled' AND starts_at > $2
		RETURNING id
	`, courseID, after)
	if err != nil {
		return nil, fmt.Errorf("cancel upcoming sessions: %w", err)
	}

	ids, err := base.CollectInt64(rows)
	if err != nil {
		return nil, fmt.Errorf("scan cancelled session: %w", err)
	}
	return ids, nil
}

// ReassignUpcoming передаёт будущие занятия курса другому преподавателю.
// Отменённые тоже переходят, иначе их момент слота снова сгенерируется.
// Проведённые остаются за тем, кто их вёл.
func (r *SessionRepository) ReassignUpcoming(ctx context.Context, courseID, teacherID int64, after time.Time) (int64, error) {
	affected, err := base.ExecAffected(ctx, r.q, `
		UPDATE sessions SET teacher_id = $2, updated_at = NOW()
		WHERE course_id = $1 AND teacher_id <> $2 AND state <> 'completed'
		  AND (starts_at >= $3 OR occurrence_at >= $3)
	`, courseID, teacherID, after)
	if err != nil {
		return 0, fmt.Errorf("reassign upcoming sessions: %w", err)
	}
	return affected, nil
}

// AddToUpcomingRosters добавляет студента в будущие занятия курса
func (r *SessionRepository) AddToUpcomingRosters(ctx context.Context, courseID, studentID int64, after time.Time) (int64, error) {
	affected, err := base.ExecAffected(ctx, r.q, `
		INSERT INTO session_roster (session_id, student_id)
		SELECT id, $2 FROM sessions
		WHERE course_id = $1 AND state = 'scheduled' AND starts_at > $3
		ON CONFLICT DO NOTHING
	`, courseID, studentID, after)
	if err != nil {
		return 0, fmt.Errorf("add to upcoming rosters: %w", err)
	}
	return affected, nil
}

// RemoveFromUpcomingRosters убирает студента из будущих занятий курса
func (r *SessionRepository) RemoveFromUpcomingRosters(ctx context.Context, courseID, studentID int64, after time.Time) (int64, error) {
	affected, err := base.ExecAffected(ctx, r.q, `
		DELETE FROM session_roster r
		USING sessions s
		WHERE r.session_id = s.id
		  AND s.course_id = $1
		  AND r.student_id = $2
		  AND s.state = 'scheduled'
		  AND s.starts_at > $3
	`, courseID, studentID, after)
	if err != nil {
		return 0, fmt.Errorf("remove from upcoming rosters: %w", err)
	}
	return affected, nil
}

// DeleteByCourse удаляет все занятия курса (состав и отметки каскадом)
func (r *SessionRepository) DeleteByCourse(ctx context.Context, courseID int64) error {
	if _, err := r.q.Exec(ctx, `DELETE FROM sessions WHERE course_id = $1`, courseID); err != nil {
		return fmt.Errorf("delete sessions by course: %w", err)
	}
	return nil
}
