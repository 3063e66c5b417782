package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Freeeeeet/course_sessions/internal/model"
	"github.com/Freeeeeet/course_sessions/internal/repository/base"
	"github.com/jackc/pgx/v5"
)

type CourseRepository struct {
	q base.Querier
}

func NewCourseRepository(q base.Querier) *CourseRepository {
	return &CourseRepository{q: q}
}

const courseColumns = `id, teacher_id, name, start_date, end_date, legacy_slot_id,
	default_duration_minutes, capacity, modality, status, created_at, updated_at`

func scanCourse(row pgx.Row) (*model.Course, error) {
	var (
		course     model.Course
		start, end time.Time
	)
	err := row.Scan(
		&course.ID,
		&course.TeacherID,
		&course.Name,
		&start,
		&end,
		&course.LegacySlotID,
		&course.DefaultDurationMinutes,
		&course.Capacity,
		&course.Modality,
		&course.Status,
		&course.CreatedAt,
		&course.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	course.StartDate = model.DateOf(start)
	course.EndDate = model.DateOf(end)
	course.DurationOverrides = map[int64]int{}
	return &course, nil
}

// queryCourses читает курсы и подгружает их слоты одним дополнительным запросом
func (r *CourseRepository) queryCourses(ctx context.Context, query string, args ...any) ([]*model.Course, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	var courses []*model.Course
	for rows.Next() {
		course, err := scanCourse(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan course: %w", err)
		}
		courses = append(courses, course)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := r.loadSlots(ctx, courses); err != nil {
		return nil, err
	}
	return courses, nil
}

func (r *CourseRepository) loadSlots(ctx context.Context, courses []*model.Course) error {
	if len(courses) == 0 {
		return nil
	}

	byID := make(map[int64]*model.Course, len(courses))
	ids := make([]int64, 0, len(courses))
	for _, c := range courses {
		byID[c.ID] = c
		ids = append(ids, c.ID)
	}

	rows, err := r.q.Query(ctx, `
		SELECT course_id, time_slot_id, duration_minutes
		FROM course_slots
		WHERE course_id = ANY($1)
		ORDER BY course_id, position
	`, ids)
	if err != nil {
		return fmt.Errorf("load course slots: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			courseID, slotID int64
			duration         *int
		)
		if err := rows.Scan(&courseID, &slotID, &duration); err != nil {
			return fmt.Errorf("scan course slot: %w", err)
		}
		c := byID[courseID]
		c.SlotIDs = append(c.SlotIDs, slotID)
		if duration != nil {
			c.DurationOverrides[slotID] = *duration
		}
	}
	return rows.Err()
}

// Create создаёт курс, список слотов назначается отдельно через ReplaceSlots
func (r *CourseRepository) Create(ctx context.Context, course *model.Course) error {
	query := `
		INSERT INTO courses (teacher_id, name, start_date, end_date, legacy_slot_id, default_duration_minutes, capacity, modality, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at
	`

	err := r.q.QueryRow(ctx, query,
		course.TeacherID,
		course.Name,
		course.StartDate.UTCMidnight(),
		course.EndDate.UTCMidnight(),
		course.LegacySlotID,
		course.DefaultDurationMinutes,
		course.Capacity,
		course.Modality,
		course.Status,
	).Scan(&course.ID, &course.CreatedAt, &course.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create course: %w", err)
	}

	return nil
}

// GetByID получает курс со слотами
func (r *CourseRepository) GetByID(ctx context.Context, id int64) (*model.Course, error) {
	courses, err := r.queryCourses(ctx, `SELECT `+courseColumns+` FROM courses WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("get course by id: %w", err)
	}
	if len(courses) == 0 {
		return nil, nil
	}
	return courses[0], nil
}

// Lock блокирует курс, например для проверки вместимости при записи
func (r *CourseRepository) Lock(ctx context.Context, id int64) error {
	var locked int64
	err := r.q.QueryRow(ctx, `SELECT id FROM courses WHERE id = $1 FOR UPDATE`, id).Scan(&locked)
	if err != nil && !base.IsNotFound(err) {
		return fmt.Errorf("lock course: %w", err)
	}
	return nil
}

// ListByTeacher курсы преподавателя, пустой statuses означает все статусы
func (r *CourseRepository) ListByTeacher(ctx context.Context, teacherID int64, statuses ...model.CourseStatus) ([]*model.Course, error) {
	query := `
		SELECT ` + courseColumns + `
		FROM courses
		WHERE teacher_id = $1
		  AND (cardinality($2::text[]) = 0 OR status = ANY($2))
		ORDER BY id
	`

	courses, err := r.queryCourses(ctx, query, teacherID, courseStatusStrings(statuses))
	if err != nil {
		return nil, fmt.Errorf("list courses by teacher: %w", err)
	}
	return courses, nil
}

// ListByStatus курсы в указанных статусах
func (r *CourseRepository) ListByStatus(ctx context.Context, statuses ...model.CourseStatus) ([]*model.Course, error) {
	query := `
		SELECT ` + courseColumns + `
		FROM courses
		WHERE cardinality($1::text[]) = 0 OR status = ANY($1)
		ORDER BY id
	`

	courses, err := r.queryCourses(ctx, query, courseStatusStrings(statuses))
	if err != nil {
		return nil, fmt.Errorf("list courses by status: %w", err)
	}
	return courses, nil
}

// ListBySlot курсы, ссылающиеся на слот через любое из двух полей
func (r *CourseRepository) ListBySlot(ctx context.Context, slotID int64) ([]*model.Course, error) {
	query := `
		SELECT ` + courseColumns + `
		FROM courses c
		WHERE c.legacy_slot_id = $1
		   OR EXISTS (SELECT 1 FROM course_slots cs WHERE cs.course_id = c.id AND cs.time_slot_id = $1)
		ORDER BY c.id
	`

	courses, err := r.queryCourses(ctx, query, slotID)
	if err != nil {
		return nil, fmt.Errorf("list courses by slot: %w", err)
	}
	return courses, nil
}

// ReplaceSlots заменяет слоты курса; вызывать внутри транзакции
func (r *CourseRepository) ReplaceSlots(ctx context.Context, courseID int64, slotIDs []int64, overrides map[int64]int) error {
	if _, err := r.q.Exec(ctx, `DELETE FROM course_slots WHERE course_id = $1`, courseID); err != nil {
		return fmt.Errorf("clear course slots: %w", err)
	}

	for i, slotID := range slotIDs {
		var duration *int
		if d, ok := overrides[slotID]; ok {
			duration = &d
		}
		_, err := r.q.Exec(ctx, `
			INSERT INTO course_slots (course_id, time_slot_id, duration_minutes, position)
			VALUES ($1, $2, $3, $4)
		`, courseID, slotID, duration, i)
		if err != nil {
			return fmt.Errorf("insert course slot: %w", err)
		}
	}

	_, err := r.q.Exec(ctx, `UPDATE courses SET legacy_slot_id = NULL, updated_at = NOW() WHERE id = $1`, courseID)
	if err != nil {
		return fmt.Errorf("touch course: %w", err)
	}
	return nil
}

// RemoveSlotEverywhere убирает слот из всех курсов, возвращает число затронутых курсов
func (r *CourseRepository) RemoveSlotEverywhere(ctx context.Context, slotID int64) (int64, error) {
	query := `
		WITH from_list AS (
			DELETE FROM course_slots WHERE time_slot_id = $1 RETURNING course_id
		), from_legacy AS (
			UPDATE courses SET legacy_slot_id = NULL, updated_at = NOW()
			WHERE legacy_slot_id = $1
			RETURNING id AS course_id
		)
		SELECT COUNT(DISTINCT course_id) FROM (
			SELECT course_id FROM from_list
			UNION ALL
			SELECT course_id FROM from_legacy
		) touched
	`

	var count int64
	if err := r.q.QueryRow(ctx, query, slotID).Scan(&count); err != nil {
		return 0, fmt.Errorf("remove slot from courses: %w", err)
	}
	return count, nil
}

// UpdateTeacher меняет преподавателя курса
func (r *CourseRepository) UpdateTeacher(ctx context.Context, courseID, teacherID int64) error {
	affected, err := base.ExecAffected(ctx, r.q,
		`UPDATE courses SET teacher_id = $2, updated_at = NOW() WHERE id = $1`, courseID, teacherID)
	if err != nil {
		return fmt.Errorf("update course teacher: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("course not found")
	}
	return nil
}

// UpdateStatus меняет статус курса
func (r *CourseRepository) UpdateStatus(ctx context.Context, courseID int64, status model.CourseStatus) error {
	affected, err := base.ExecAffected(ctx, r.q,
		`UPDATE courses SET status = $2, updated_at = NOW() WHERE id = $1`, courseID, status)
	if err != nil {
		return fmt.Errorf("update course status: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("course not found")
	}
	return nil
}

// Delete удаляет курс (слоты курса удалятся каскадом)
func (r *CourseRepository) Delete(ctx context.Context, id int64) error {
	if _, err := r.q.Exec(ctx, `DELETE FROM courses WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete course: %w", err)
	}
	return nil
}

func courseStatusStrings(statuses []model.CourseStatus) []string {
	out := make([]string, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, string(s))
	}
	return out
}
