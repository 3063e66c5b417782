package inmem

import (
	"context"
	"math"
	"sort"

	"github.com/Freeeeeet/course_sessions/internal/model"
)

type enrollmentRepo struct {
	db *DB
}

func enrollmentStatusIn(status model.EnrollmentStatus, statuses []model.EnrollmentStatus) bool {
	if len(statuses) == 0 {
		return true
	}
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

func (r *enrollmentRepo) Create(_ context.Context, e *model.Enrollment) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	for _, existing := range r.db.t.enrollments {
		if existing.StudentID == e.StudentID && existing.CourseID == e.CourseID {
			return errDuplicate("enrollment")
		}
	}

	now := r.db.now()
	e.ID = r.db.nextID()
	e.CreatedAt = now
	e.UpdatedAt = now
	c := *e
	r.db.t.enrollments[e.ID] = &c
	r.db.wrote()
	return nil
}

func (r *enrollmentRepo) GetByStudentCourse(_ context.Context, studentID, courseID int64) (*model.Enrollment, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	for _, e := range r.db.t.enrollments {
		if e.StudentID == studentID && e.CourseID == courseID {
			c := *e
			return &c, nil
		}
	}
	return nil, nil
}

func (r *enrollmentRepo) list(match func(e *model.Enrollment) bool, less func(a, b *model.Enrollment) bool) []*model.Enrollment {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	var out []*model.Enrollment
	for _, e := range r.db.t.enrollments {
		if match(e) {
			c := *e
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

func (r *enrollmentRepo) ListByCourse(_ context.Context, courseID int64, statuses ...model.EnrollmentStatus) ([]*model.Enrollment, error) {
	return r.list(
		func(e *model.Enrollment) bool {
			return e.CourseID == courseID && enrollmentStatusIn(e.Status, statuses)
		},
		func(a, b *model.Enrollment) bool { return a.StudentID < b.StudentID },
	), nil
}

func (r *enrollmentRepo) ListByStudent(_ context.Context, studentID int64, statuses ...model.EnrollmentStatus) ([]*model.Enrollment, error) {
	return r.list(
		func(e *model.Enrollment) bool {
			return e.StudentID == studentID && enrollmentStatusIn(e.Status, statuses)
		},
		func(a, b *model.Enrollment) bool { return a.CourseID < b.CourseID },
	), nil
}

func (r *enrollmentRepo) CountActive(_ context.Context, courseID int64) (int, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	count := 0
	for _, e := range r.db.t.enrollments {
		if e.CourseID == courseID && e.IsActive() {
			count++
		}
	}
	return count, nil
}

func (r *enrollmentRepo) UpdateStatus(_ context.Context, id int64, status model.EnrollmentStatus) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	e, ok := r.db.t.enrollments[id]
	if !ok {
		return errNotFound("enrollment")
	}
	e.Status = status
	e.UpdatedAt = r.db.now()
	r.db.wrote()
	return nil
}

func (r *enrollmentRepo) AddHours(_ context.Context, courseID, studentID int64, hours, plannedHours float64) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	for _, e := range r.db.t.enrollments {
		if e.CourseID != courseID || e.StudentID != studentID || e.Status != model.EnrollmentStatusConfirmed {
			continue
		}
		e.HoursCompleted += hours
		e.Percentage = 0
		if plannedHours > 0 {
			e.Percentage = math.Min(100, math.Round(e.HoursCompleted/plannedHours*1000)/10)
		}
		e.UpdatedAt = r.db.now()
		r.db.wrote()
	}
	return nil
}

func (r *enrollmentRepo) DeleteByCourse(_ context.Context, courseID int64) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	for id, e := range r.db.t.enrollments {
		if e.CourseID == courseID {
			delete(r.db.t.enrollments, id)
		}
	}
	r.db.wrote()
	return nil
}
