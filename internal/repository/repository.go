package repository

import (
	"context"
	"time"

	"github.com/Freeeeeet/course_sessions/internal/model"
)

// Все Get* методы возвращают (nil, nil), если запись не найдена.

type TimeSlots interface {
	Create(ctx context.Context, slot *model.TimeSlot) error
	Update(ctx context.Context, slot *model.TimeSlot) error
	Delete(ctx context.Context, id int64) error
	GetByID(ctx context.Context, id int64) (*model.TimeSlot, error)
	GetByIDs(ctx context.Context, ids []int64) ([]*model.TimeSlot, error)
	ListByWeekday(ctx context.Context, weekday int) ([]*model.TimeSlot, error)
	List(ctx context.Context) ([]*model.TimeSlot, error)
	// LockWeekday сериализует проверку пересечений внутри одного дня недели
	LockWeekday(ctx context.Context, weekday int) error
}

type Grants interface {
	// Grant возвращает false, если разрешение уже было
	Grant(ctx context.Context, teacherID, slotID int64) (bool, error)
	Revoke(ctx context.Context, teacherID, slotID int64) (bool, error)
	SlotIDs(ctx context.Context, teacherID int64) ([]int64, error)
	TeachersBySlot(ctx context.Context, slotID int64) ([]int64, error)
	DeleteBySlot(ctx context.Context, slotID int64) (int64, error)
}

type Courses interface {
	Create(ctx context.Context, course *model.Course) error
	GetByID(ctx context.Context, id int64) (*model.Course, error)
	// Lock блокирует строку курса до конца транзакции
	Lock(ctx context.Context, id int64) error
	ListByTeacher(ctx context.Context, teacherID int64, statuses ...model.CourseStatus) ([]*model.Course, error)
	ListByStatus(ctx context.Context, statuses ...model.CourseStatus) ([]*model.Course, error)
	ListBySlot(ctx context.Context, slotID int64) ([]*model.Course, error)
	// ReplaceSlots заменяет список слотов целиком и очищает legacy поле
	ReplaceSlots(ctx context.Context, courseID int64, slotIDs []int64, overrides map[int64]int) error
	RemoveSlotEverywhere(ctx context.Context, slotID int64) (int64, error)
	UpdateTeacher(ctx context.Context, courseID, teacherID int64) error
	UpdateStatus(ctx context.Context, courseID int64, status model.CourseStatus) error
	Delete(ctx context.Context, id int64) error
}

type Sessions interface {
	// Create сохраняет занятие вместе со списком студентов
	Create(ctx context.Context, session *model.Session) error
	GetByID(ctx context.Context, id int64) (*model.Session, error)
	ListByCourse(ctx context.Context, courseID int64) ([]*model.Session, error)
	// ListByCourseBetween занятия с началом в [from, to)
	ListByCourseBetween(ctx context.Context, courseID int64, from, to time.Time) ([]*model.Session, error)
	ListByTeacher(ctx context.Context, teacherID int64) ([]*model.Session, error)
	Exists(ctx context.Context, courseID, teacherID int64, startsAt time.Time) (bool, error)
	// DeletePristine удаляет занятие, только если оно scheduled и без отметок
	DeletePristine(ctx context.Context, id int64) (bool, error)
	TransitionState(ctx context.Context, id int64, from, to model.SessionState) (bool, error)
	Reschedule(ctx context.Context, id int64, startsAt time.Time, durationMinutes int) (bool, error)
	CancelUpcoming(ctx context.Context, courseID int64, after time.Time) ([]int64, error)
	ReassignUpcoming(ctx context.Context, courseID, teacherID int64, after time.Time) (int64, error)
	AddToUpcomingRosters(ctx context.Context, courseID, studentID int64, after time.Time) (int64, error)
	RemoveFromUpcomingRosters(ctx context.Context, courseID, studentID int64, after time.Time) (int64, error)
	DeleteByCourse(ctx context.Context, courseID int64) error
}

type Attendance interface {
	// Upsert перезаписывает отметку, повторный вызов не суммируется
	Upsert(ctx context.Context, record *model.AttendanceRecord) error
}

type Enrollments interface {
	Create(ctx context.Context, enrollment *model.Enrollment) error
	GetByStudentCourse(ctx context.Context, studentID, courseID int64) (*model.Enrollment, error)
	ListByCourse(ctx context.Context, courseID int64, statuses ...model.EnrollmentStatus) ([]*model.Enrollment, error)
	ListByStudent(ctx context.Context, studentID int64, statuses ...model.EnrollmentStatus) ([]*model.Enrollment, error)
	// CountActive считает не отменённые записи
	CountActive(ctx context.Context, courseID int64) (int, error)
	UpdateStatus(ctx context.Context, id int64, status model.EnrollmentStatus) error
	// AddHours увеличивает hours_completed и пересчитывает процент от plannedHours
	AddHours(ctx context.Context, courseID, studentID int64, hours, plannedHours float64) error
	DeleteByCourse(ctx context.Context, courseID int64) error
}

type Users interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id int64) (*model.User, error)
	// Lock сериализует изменения расписания одного преподавателя
	Lock(ctx context.Context, id int64) error
}

// Repos набор репозиториев, привязанных к пулу или к одной транзакции
type Repos struct {
	Slots       TimeSlots
	Grants      Grants
	Courses     Courses
	Sessions    Sessions
	Attendance  Attendance
	Enrollments Enrollments
	Users       Users
}

type Store interface {
	Repos() Repos
	// WithTx выполняет fn атомарно: либо все записи, либо ни одной
	WithTx(ctx context.Context, fn func(r Repos) error) error
}
