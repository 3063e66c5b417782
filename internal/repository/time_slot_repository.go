package repository

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/course_sessions/internal/model"
	"github.com/Freeeeeet/course_sessions/internal/repository/base"
	"github.com/jackc/pgx/v5"
)

type TimeSlotRepository struct {
	q base.Querier
}

func NewTimeSlotRepository(q base.Querier) *TimeSlotRepository {
	return &TimeSlotRepository{q: q}
}

const timeSlotColumns = `id, name, weekday, start_time, end_time, kind, created_at, updated_at`

func scanTimeSlot(row pgx.Row) (*model.TimeSlot, error) {
	var slot model.TimeSlot
	err := row.Scan(
		&slot.ID,
		&slot.Name,
		&slot.Weekday,
		&slot.StartTime,
		&slot.EndTime,
		&slot.Kind,
		&slot.CreatedAt,
		&slot.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &slot, nil
}

func collectTimeSlots(rows pgx.Rows) ([]*model.TimeSlot, error) {
	defer rows.Close()

	var slots []*model.TimeSlot
	for rows.Next() {
		slot, err := scanTimeSlot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan time slot: %w", err)
		}
		slots = append(slots, slot)
	}
	return slots, rows.Err()
}

// Create создаёт слот каталога
func (r *TimeSlotRepository) Create(ctx context.Context, slot *model.TimeSlot) error {
	query := `
		INSERT INTO time_slots (name, weekday, start_time, end_time, kind)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`

	err := r.q.QueryRow(ctx, query,
		slot.Name,
		slot.Weekday,
		slot.StartTime,
		slot.EndTime,
		slot.Kind,
	).Scan(&slot.ID, &slot.CreatedAt, &slot.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create time slot: %w", err)
	}

	return nil
}

// Update обновляет слот
func (r *TimeSlotRepository) Update(ctx context.Context, slot *model.TimeSlot) error {
	query := `
		UPDATE time_slots
		SET name = $2, weekday = $3, start_time = $4, end_time = $5, kind = $6, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`

	err := r.q.QueryRow(ctx, query,
		slot.ID,
		slot.Name,
		slot.Weekday,
		slot.StartTime,
		slot.EndTime,
		slot.Kind,
	).Scan(&slot.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update time slot: %w", err)
	}

	return nil
}

// Delete удаляет слот
func (r *TimeSlotRepository) Delete(ctx context.Context, id int64) error {
	_, err := r.q.Exec(ctx, `DELETE FROM time_slots WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete time slot: %w", err)
	}
	return nil
}

// GetByID получает слот по ID
func (r *TimeSlotRepository) GetByID(ctx context.Context, id int64) (*model.TimeSlot, error) {
	query := `SELECT ` + timeSlotColumns + ` FROM time_slots WHERE id = $1`

	slot, err := scanTimeSlot(r.q.QueryRow(ctx, query, id))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get time slot by id: %w", err)
	}
	return slot, nil
}

// GetByIDs получает слоты по списку ID, отсутствующие просто не возвращаются
func (r *TimeSlotRepository) GetByIDs(ctx context.Context, ids []int64) ([]*model.TimeSlot, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := `
		SELECT ` + timeSlotColumns + `
		FROM time_slots
		WHERE id = ANY($1)
		ORDER BY weekday, start_time, id
	`

	rows, err := r.q.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("get time slots by ids: %w", err)
	}
	return collectTimeSlots(rows)
}

// ListByWeekday слоты одного дня недели, используется для проверки пересечений
func (r *TimeSlotRepository) ListByWeekday(ctx context.Context, weekday int) ([]*model.TimeSlot, error) {
	query := `
		SELECT ` + timeSlotColumns + `
		FROM time_slots
		WHERE weekday = $1
		ORDER BY start_time, id
	`

	rows, err := r.q.Query(ctx, query, weekday)
	if err != nil {
		return nil, fmt.Errorf("list time slots by weekday: %w", err)
	}
	return collectTimeSlots(rows)
}

// List весь каталог
func (r *TimeSlotRepository) List(ctx context.Context) ([]*model.TimeSlot, error) {
	query := `SELECT ` + timeSlotColumns + ` FROM time_slots ORDER BY weekday, start_time, id`

	rows, err := r.q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list time slots: %w", err)
	}
	return collectTimeSlots(rows)
}

// slotWeekdayLockBase пространство ключей advisory lock для дней недели
const slotWeekdayLockBase = 7_100_000

// LockWeekday берёт транзакционную advisory блокировку на день недели
func (r *TimeSlotRepository) LockWeekday(ctx context.Context, weekday int) error {
	query := `SELECT pg_advisory_xact_lock($1)`

	if _, err := r.q.Exec(ctx, query, int64(slotWeekdayLockBase+weekday)); err != nil {
		return fmt.Errorf("lock weekday %d: %w", weekday, err)
	}
	return nil
}
