package model

import "time"

type EnrollmentStatus string

const (
	EnrollmentStatusPending   EnrollmentStatus = "pending"
	EnrollmentStatusConfirmed EnrollmentStatus = "confirmed"
	EnrollmentStatusCancelled EnrollmentStatus = "cancelled"
)

type Enrollment struct {
	ID             int64            `json:"id"`
	StudentID      int64            `json:"student_id"`
	CourseID       int64            `json:"course_id"`
	Status         EnrollmentStatus `json:"status"`
	HoursCompleted float64          `json:"hours_completed"`
	Percentage     float64          `json:"percentage"` // от запланированных часов курса
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// IsActive отменённые записи не занимают место на курсе
func (e *Enrollment) IsActive() bool {
	return e.Status != EnrollmentStatusCancelled
}
