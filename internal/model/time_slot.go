package model

import "time"

type SlotKind string

const (
	SlotKindClass        SlotKind = "class"
	SlotKindAvailability SlotKind = "availability"
)

// TimeSlot именованный недельный блок времени из каталога
type TimeSlot struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Weekday   int       `json:"weekday"`    // 0 = Sunday, 6 = Saturday
	StartTime string    `json:"start_time"` // HH:MM
	EndTime   string    `json:"end_time"`   // HH:MM
	Kind      SlotKind  `json:"kind"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Bounds разбирает начало и конец слота
func (s *TimeSlot) Bounds() (Clock, Clock, error) {
	start, err := ParseClock(s.StartTime)
	if err != nil {
		return Clock{}, Clock{}, err
	}
	end, err := ParseClock(s.EndTime)
	if err != nil {
		return Clock{}, Clock{}, err
	}
	return start, end, nil
}

// NaturalSpanMinutes длина блока в минутах, 0 для повреждённого слота
func (s *TimeSlot) NaturalSpanMinutes() int {
	start, end, err := s.Bounds()
	if err != nil {
		return 0
	}
	span := end.Minutes() - start.Minutes()
	if span < 0 {
		return 0
	}
	return span
}

// ValidWeekday проверяет что день недели в диапазоне 0..6
func (s *TimeSlot) ValidWeekday() bool {
	return s.Weekday >= 0 && s.Weekday <= 6
}

// Overlaps проверяет пересечение полуоткрытых интервалов [start,end) в один день недели
func (s *TimeSlot) Overlaps(other *TimeSlot) bool {
	if s.Weekday != other.Weekday {
		return false
	}
	aStart, aEnd, err := s.Bounds()
	if err != nil {
		return false
	}
	bStart, bEnd, err := other.Bounds()
	if err != nil {
		return false
	}
	return aStart.Minutes() < bEnd.Minutes() && aEnd.Minutes() > bStart.Minutes()
}

// SlotLess порядок: день недели, затем время начала
func SlotLess(a, b *TimeSlot) bool {
	if a.Weekday != b.Weekday {
		return a.Weekday < b.Weekday
	}
	if a.StartTime != b.StartTime {
		return a.StartTime < b.StartTime
	}
	return a.ID < b.ID
}
