package repository

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/course_sessions/internal/model"
	"github.com/Freeeeeet/course_sessions/internal/repository/base"
)

type AttendanceRepository struct {
	q base.Querier
}

func NewAttendanceRepository(q base.Querier) *AttendanceRepository {
	return &AttendanceRepository{q: q}
}

// Upsert сохраняет отметку, повторная запись перезаписывает предыдущую
func (r *AttendanceRepository) Upsert(ctx context.Context, rec *model.AttendanceRecord) error {
	query := `
		INSERT INTO attendance_records (session_id, student_id, present, minutes_late, comment, recorded_by, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (session_id, student_id) DO UPDATE
		SET present = EXCLUDED.present,
		    minutes_late = EXCLUDED.minutes_late,
		    comment = EXCLUDED.comment,
		    recorded_by = EXCLUDED.recorded_by,
		    recorded_at = EXCLUDED.recorded_at
	`

	_, err := r.q.Exec(ctx, query,
		rec.SessionID,
		rec.StudentID,
		rec.Present,
		rec.MinutesLate,
		rec.Comment,
		rec.RecordedBy,
		rec.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert attendance: %w", err)
	}

	// отметка меняет приоритет занятия при разборе дублей
	if _, err := r.q.Exec(ctx, `UPDATE sessions SET updated_at = NOW() WHERE id = $1`, rec.SessionID); err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return nil
}
