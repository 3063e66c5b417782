package model

import "time"

type CourseStatus string

const (
	CourseStatusPlanned   CourseStatus = "planned"
	CourseStatusActive    CourseStatus = "active"
	CourseStatusCompleted CourseStatus = "completed"
	CourseStatusCancelled CourseStatus = "cancelled"
)

// ClaimsSlots курсы в этих статусах занимают свои слоты у преподавателя
func (s CourseStatus) ClaimsSlots() bool {
	return s == CourseStatusPlanned || s == CourseStatusActive
}

type Modality string

const (
	ModalityInPerson Modality = "in_person"
	ModalityOnline   Modality = "online"
	ModalityHybrid   Modality = "hybrid"
)

type Course struct {
	ID        int64  `json:"id"`
	TeacherID int64  `json:"teacher_id"`
	Name      string `json:"name"`
	StartDate Date   `json:"start_date"`
	EndDate   Date   `json:"end_date"`

	// SlotIDs слоты курса. LegacySlotID - старое поле с одним слотом,
	// новые записи его не заполняют, но при чтении учитываются оба.
	SlotIDs      []int64 `json:"slot_ids"`
	LegacySlotID *int64  `json:"legacy_slot_id,omitempty"`

	DurationOverrides      map[int64]int `json:"duration_overrides"` // slot_id -> минуты
	DefaultDurationMinutes *int          `json:"default_duration_minutes"`
	Capacity               int           `json:"capacity"`
	Modality               Modality      `json:"modality"`
	Status                 CourseStatus  `json:"status"`
	CreatedAt              time.Time     `json:"created_at"`
	UpdatedAt              time.Time     `json:"updated_at"`
}

// AssignedSlotIDs объединяет legacy поле и список слотов без повторов
func (c *Course) AssignedSlotIDs() []int64 {
	ids := make([]int64, 0, len(c.SlotIDs)+1)
	seen := make(map[int64]bool, len(c.SlotIDs)+1)
	if c.LegacySlotID != nil {
		ids = append(ids, *c.LegacySlotID)
		seen[*c.LegacySlotID] = true
	}
	for _, id := range c.SlotIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids
}

// HasSlot учитывает оба представления
func (c *Course) HasSlot(slotID int64) bool {
	for _, id := range c.AssignedSlotIDs() {
		if id == slotID {
			return true
		}
	}
	return false
}
