package model

import "time"

type SessionEventKind string

const (
	SessionEventCreated           SessionEventKind = "created"
	SessionEventUpdated           SessionEventKind = "updated"
	SessionEventCancelled         SessionEventKind = "cancelled"
	SessionEventCompleted         SessionEventKind = "completed"
	SessionEventDuplicateConflict SessionEventKind = "duplicate_conflict"
)

// SessionEvent уведомление для календаря и преподавателя
type SessionEvent struct {
	Kind       SessionEventKind `json:"kind"`
	Session    *Session         `json:"session"`
	Conflicts  []int64          `json:"conflicting_session_ids,omitempty"`
	OccurredAt time.Time        `json:"occurred_at"`
}
