package model

import "time"

// AttendanceRecord отметка посещения, одна на пару (занятие, студент)
type AttendanceRecord struct {
	SessionID   int64     `json:"session_id"`
	StudentID   int64     `json:"student_id"`
	Present     bool      `json:"present"`
	MinutesLate int       `json:"minutes_late"`
	Comment     string    `json:"comment"`
	RecordedBy  int64     `json:"recorded_by"`
	RecordedAt  time.Time `json:"recorded_at"`
}
