package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/Freeeeeet/course_sessions/internal/model"
)

var errUnusableSlot = errors.New("unusable slot")

// ResolveDuration длительность занятия в слоте: override, затем значение курса,
// затем длина слота. Результат в [30, 180] и не длиннее самого слота.
func ResolveDuration(course *model.Course, slot *model.TimeSlot) int {
	span := slot.NaturalSpanMinutes()

	minutes := span
	if override, ok := course.DurationOverrides[slot.ID]; ok {
		minutes = override
	} else if course.DefaultDurationMinutes != nil {
		minutes = *course.DefaultDurationMinutes
	}

	minutes = min(max(minutes, MinSessionMinutes), MaxSessionMinutes)
	return min(minutes, span)
}

// Occurrences моменты начала слота по всем датам из [from, to], попадающим на его день недели
func Occurrences(slot *model.TimeSlot, from, to model.Date, loc *time.Location) ([]time.Time, error) {
	if !slot.ValidWeekday() || slot.NaturalSpanMinutes() <= 0 {
		return nil, fmt.Errorf("%w %d: weekday %d, %s-%s", errUnusableSlot, slot.ID, slot.Weekday, slot.StartTime, slot.EndTime)
	}
	start, _, err := slot.Bounds()
	if err != nil {
		return nil, fmt.Errorf("%w %d: %v", errUnusableSlot, slot.ID, err)
	}

	if from.After(to) {
		return nil, nil
	}

	offset := (slot.Weekday - int(from.Weekday()) + 7) % 7
	var out []time.Time
	for d := from.AddDays(offset); !d.After(to); d = d.AddDays(7) {
		out = append(out, d.At(start, loc))
	}
	return out, nil
}

// PlannedMinutes сколько минут занятий даёт курс за весь период, без учёта текущего момента
func PlannedMinutes(course *model.Course, slots []*model.TimeSlot, loc *time.Location) int {
	total := 0
	for _, slot := range slots {
		starts, err := Occurrences(slot, course.StartDate, course.EndDate, loc)
		if err != nil {
			continue
		}
		total += len(starts) * ResolveDuration(course, slot)
	}
	return total
}

// PlannedHours PlannedMinutes в часах
func PlannedHours(course *model.Course, slots []*model.TimeSlot, loc *time.Location) float64 {
	return float64(PlannedMinutes(course, slots, loc)) / 60
}
