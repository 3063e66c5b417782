package repository

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/course_sessions/internal/model"
	"github.com/Freeeeeet/course_sessions/internal/repository/base"
	"github.com/jackc/pgx/v5"
)

type EnrollmentRepository struct {
	q base.Querier
}

func NewEnrollmentRepository(q base.Querier) *EnrollmentRepository {
	return &EnrollmentRepository{q: q}
}

const enrollmentColumns = `id, student_id, course_id, status, hours_completed, percentage, created_at, updated_at`

func scanEnrollment(row pgx.Row) (*model.Enrollment, error) {
	var e model.Enrollment
	err := row.Scan(
		&e.ID,
		&e.StudentID,
		&e.CourseID,
		&e.Status,
		&e.HoursCompleted,
		&e.Percentage,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func collectEnrollments(rows pgx.Rows) ([]*model.Enrollment, error) {
	defer rows.Close()

	var out []*model.Enrollment
	for rows.Next() {
		e, err := scanEnrollment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan enrollment: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Create создаёт запись студента на курс
func (r *EnrollmentRepository) Create(ctx context.Context, e *model.Enrollment) error {
	query := `
		INSERT INTO enrollments (student_id, course_id, status)
		VALUES ($1, $2, $3)
		RETURNING id, hours_completed, percentage, created_at, updated_at
	`

	err := r.q.QueryRow(ctx, query, e.StudentID, e.CourseID, e.Status).
		Scan(&e.ID, &e.HoursCompleted, &e.Percentage, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create enrollment: %w", err)
	}
	return nil
}

// GetByStudentCourse запись студента на конкретный курс
func (r *EnrollmentRepository) GetByStudentCourse(ctx context.Context, studentID, courseID int64) (*model.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE student_id = $1 AND course_id = $2`

	e, err := scanEnrollment(r.q.QueryRow(ctx, query, studentID, courseID))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get enrollment: %w", err)
	}
	return e, nil
}

// ListByCourse записи на курс, пустой statuses означает все
func (r *EnrollmentRepository) ListByCourse(ctx context.Context, courseID int64, statuses ...model.EnrollmentStatus) ([]*model.Enrollment, error) {
	query := `
		SELECT ` + enrollmentColumns + `
		FROM enrollments
		WHERE course_id = $1
		  AND (cardinality($2::text[]) = 0 OR status = ANY($2))
		ORDER BY student_id
	`

	rows, err := r.q.Query(ctx, query, courseID, enrollmentStatusStrings(statuses))
	if err != nil {
		return nil, fmt.Errorf("list enrollments by course: %w", err)
	}
	return collectEnrollments(rows)
}

// ListByStudent записи студента
func (r *EnrollmentRepository) ListByStudent(ctx context.Context, studentID int64, statuses ...model.EnrollmentStatus) ([]*model.Enrollment, error) {
	query := `
		SELECT ` + enrollmentColumns + `
		FROM enrollments
		WHERE student_id = $1
		  AND (cardinality($2::text[]) = 0 OR status = ANY($2))
		ORDER BY course_id
	`

	rows, err := r.q.Query(ctx, query, studentID, enrollmentStatusStrings(statuses))
	if err != nil {
		return nil, fmt.Errorf("list enrollments by student: %w", err)
	}
	return collectEnrollments(rows)
}

// CountActive количество не отменённых записей на курс
func (r *EnrollmentRepository) CountActive(ctx context.Context, courseID int64) (int, error) {
	var count int
	err := r.q.QueryRow(ctx, `
		SELECT COUNT(*) FROM enrollments WHERE course_id = $1 AND status <> 'cancelled'
	`, courseID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count enrollments: %w", err)
	}
	return count, nil
}

// UpdateStatus меняет статус записи
func (r *EnrollmentRepository) UpdateStatus(ctx context.Context, id int64, status model.EnrollmentStatus) error {
	affected, err := base.ExecAffected(ctx, r.q,
		`UPDATE enrollments SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("update enrollment status: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("enrollment not found")
	}
	return nil
}

// AddHours начисляет часы и пересчитывает процент прохождения курса
func (r *EnrollmentRepository) AddHours(ctx context.Context, courseID, studentID int64, hours, plannedHours float64) error {
	query := `
		UPDATE enrollments
		SET hours_completed = hours_completed + $3::float8,
		    percentage = CASE
		        WHEN $4::float8 > 0 THEN LEAST(100, ROUND(((hours_completed + $3::float8) / $4::float8 * 100)::numeric, 1))::float8
		        ELSE 0
		    END,
		    updated_at = NOW()
		WHERE course_id = $1 AND student_id = $2 AND status = 'confirmed'
	`

	if _, err := r.q.Exec(ctx, query, courseID, studentID, hours, plannedHours); err != nil {
		return fmt.Errorf("add enrollment hours: %w", err)
	}
	return nil
}

// DeleteByCourse удаляет все записи курса
func (r *EnrollmentRepository) DeleteByCourse(ctx context.Context, courseID int64) error {
	if _, err := r.q.Exec(ctx, `DELETE FROM enrollments WHERE course_id = $1`, courseID); err != nil {
		return fmt.Errorf("delete enrollments by course: %w", err)
	}
	return nil
}

func enrollmentStatusStrings(statuses []model.EnrollmentStatus) []string {
	out := make([]string, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, string(s))
	}
	return out
}
