package model

import (
	"time"

	"github.com/google/uuid"
)

type SessionState string

const (
	SessionStateScheduled SessionState = "scheduled"
	SessionStateCompleted SessionState = "completed"
	SessionStateCancelled SessionState = "cancelled"
)

// Session конкретное занятие, порождённое недельным слотом курса
type Session struct {
	ID              int64        `json:"id"`
	CourseID        int64        `json:"course_id"`
	TeacherID       int64        `json:"teacher_id"`
	StartsAt        time.Time    `json:"starts_at"`
	OccurrenceAt    time.Time    `json:"occurrence_at"` // момент слота, из которого создано; не меняется при переносе
	DurationMinutes int          `json:"duration_minutes"`
	Modality        Modality     `json:"modality"`
	State           SessionState `json:"state"`
	MeetingLink     string       `json:"meeting_link,omitempty"`
	Room            string       `json:"room,omitempty"`
	CalendarUID     uuid.UUID    `json:"calendar_uid"` // идентификатор события во внешнем календаре
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`

	// Не колонки sessions, подгружаются репозиторием
	Roster     []int64            `json:"roster"`
	Attendance []AttendanceRecord `json:"attendance"`
}

func (s *Session) EndsAt() time.Time {
	return s.StartsAt.Add(time.Duration(s.DurationMinutes) * time.Minute)
}

func (s *Session) InRoster(studentID int64) bool {
	for _, id := range s.Roster {
		if id == studentID {
			return true
		}
	}
	return false
}

// AttendanceFor возвращает отметку студента или nil
func (s *Session) AttendanceFor(studentID int64) *AttendanceRecord {
	for i := range s.Attendance {
		if s.Attendance[i].StudentID == studentID {
			return &s.Attendance[i]
		}
	}
	return nil
}

// Pristine запланированное занятие без отметок, его можно удалить без потерь
func (s *Session) Pristine() bool {
	return s.State == SessionStateScheduled && len(s.Attendance) == 0
}
