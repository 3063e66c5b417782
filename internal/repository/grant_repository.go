package repository

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/course_sessions/internal/repository/base"
)

// GrantRepository разрешения преподавателей на слоты (teacher_slot_grants)
type GrantRepository struct {
	q base.Querier
}

func NewGrantRepository(q base.Querier) *GrantRepository {
	return &GrantRepository{q: q}
}

// Grant добавляет разрешение, false если оно уже было
func (r *GrantRepository) Grant(ctx context.Context, teacherID, slotID int64) (bool, error) {
	query := `
		INSERT INTO teacher_slot_grants (teacher_id, time_slot_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`

	affected, err := base.ExecAffected(ctx, r.q, query, teacherID, slotID)
	if err != nil {
		return false, fmt.Errorf("grant slot: %w", err)
	}
	return affected > 0, nil
}

// Revoke снимает разрешение
func (r *GrantRepository) Revoke(ctx context.Context, teacherID, slotID int64) (bool, error) {
	query := `DELETE FROM teacher_slot_grants WHERE teacher_id = $1 AND time_slot_id = $2`

	affected, err := base.ExecAffected(ctx, r.q, query, teacherID, slotID)
	if err != nil {
		return false, fmt.Errorf("revoke slot: %w", err)
	}
	return affected > 0, nil
}

// SlotIDs слоты, разрешённые преподавателю
func (r *GrantRepository) SlotIDs(ctx context.Context, teacherID int64) ([]int64, error) {
	rows, err := r.q.Query(ctx, `
		SELECT time_slot_id FROM teacher_slot_grants
		WHERE teacher_id = $1
		ORDER BY time_slot_id
	`, teacherID)
	if err != nil {
		return nil, fmt.Errorf("get granted slots: %w", err)
	}

	ids, err := base.CollectInt64(rows)
	if err != nil {
		return nil, fmt.Errorf("scan granted slot: %w", err)
	}
	return ids, nil
}

// TeachersBySlot преподаватели, которым разрешён слот
func (r *GrantRepository) TeachersBySlot(ctx context.Context, slotID int64) ([]int64, error) {
	rows, err := r.q.Query(ctx, `
		SELECT teacher_id FROM teacher_slot_grants
		WHERE time_slot_id = $1
		ORDER BY teacher_id
	`, slotID)
	if err != nil {
		return nil, fmt.Errorf("get teachers by slot: %w", err)
	}

	ids, err := base.CollectInt64(rows)
	if err != nil {
		return nil, fmt.Errorf("scan teacher id: %w", err)
	}
	return ids, nil
}

// DeleteBySlot убирает слот у всех преподавателей
func (r *GrantRepository) DeleteBySlot(ctx context.Context, slotID int64) (int64, error) {
	affected, err := base.ExecAffected(ctx, r.q, `DELETE FROM teacher_slot_grants WHERE time_slot_id = $1`, slotID)
	if err != nil {
		return 0, fmt.Errorf("delete grants by slot: %w", err)
	}
	return affected, nil
}
