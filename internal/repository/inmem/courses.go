package inmem

import (
	"context"
	"sort"

	"github.com/Freeeeeet/course_sessions/internal/model"
)

type courseRepo struct {
	db *DB
}

func copyCourse(c *model.Course) *model.Course {
	out := *c
	out.SlotIDs = append([]int64(nil), c.SlotIDs...)
	out.DurationOverrides = make(map[int64]int, len(c.DurationOverrides))
	for k, v := range c.DurationOverrides {
		out.DurationOverrides[k] = v
	}
	if c.LegacySlotID != nil {
		id := *c.LegacySlotID
		out.LegacySlotID = &id
	}
	if c.DefaultDurationMinutes != nil {
		d := *c.DefaultDurationMinutes
		out.DefaultDurationMinutes = &d
	}
	return &out
}

func (r *courseRepo) Create(_ context.Context, course *model.Course) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	now := r.db.now()
	course.ID = r.db.nextID()
	course.CreatedAt = now
	course.UpdatedAt = now
	if course.DurationOverrides == nil {
		course.DurationOverrides = map[int64]int{}
	}
	// слоты назначаются только через ReplaceSlots, legacy поле сохраняется как есть
	stored := copyCourse(course)
	stored.SlotIDs = nil
	stored.DurationOverrides = map[int64]int{}
	r.db.t.courses[course.ID] = stored
	r.db.wrote()
	return nil
}

func (r *courseRepo) GetByID(_ context.Context, id int64) (*model.Course, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	if c, ok := r.db.t.courses[id]; ok {
		return copyCourse(c), nil
	}
	return nil, nil
}

func (r *courseRepo) Lock(context.Context, int64) error {
	return nil
}

func (r *courseRepo) list(match func(c *model.Course) bool) []*model.Course {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	var out []*model.Course
	for _, c := range r.db.t.courses {
		if match(c) {
			out = append(out, copyCourse(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func statusIn(status model.CourseStatus, statuses []model.CourseStatus) bool {
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

func (r *courseRepo) ListByTeacher(_ context.Context, teacherID int64, statuses ...model.CourseStatus) ([]*model.Course, error) {
	return r.list(func(c *model.Course) bool {
		return c.TeacherID == teacherID && statusIn(c.Status, statuses)
	}), nil
}

func (r *courseRepo) ListByStatus(_ context.Context, statuses ...model.CourseStatus) ([]*model.Course, error) {
	return r.list(func(c *model.Course) bool {
		return statusIn(c.Status, statuses)
	}), nil
}

func (r *courseRepo) ListBySlot(_ context.Context, slotID int64) ([]*model.Course, error) {
	return r.list(func(c *model.Course) bool {
		return c.HasSlot(slotID)
	}), nil
}

func (r *courseRepo) ReplaceSlots(_ context.Context, courseID int64, slotIDs []int64, overrides map[int64]int) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	c, ok := r.db.t.courses[courseID]
	if !ok {
		return errNotFound("course")
	}
	c.SlotIDs = append([]int64(nil), slotIDs...)
	c.DurationOverrides = map[int64]int{}
	for _, id := range slotIDs {
		if d, ok := overrides[id]; ok {
			c.DurationOverrides[id] = d
		}
	}
	c.LegacySlotID = nil
	c.UpdatedAt = r.db.now()
	r.db.wrote()
	return nil
}

func (r *courseRepo) RemoveSlotEverywhere(_ context.Context, slotID int64) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	var touched int64
	for _, c := range r.db.t.courses {
		if !c.HasSlot(slotID) {
			continue
		}
		if c.LegacySlotID != nil && *c.LegacySlotID == slotID {
			c.LegacySlotID = nil
		}
		kept := c.SlotIDs[:0]
		for _, id := range c.SlotIDs {
			if id != slotID {
				kept = append(kept, id)
			}
		}
		c.SlotIDs = kept
		delete(c.DurationOverrides, slotID)
		c.UpdatedAt = r.db.now()
		touched++
	}
	if touched > 0 {
		r.db.wrote()
	}
	return touched, nil
}

func (r *courseRepo) UpdateTeacher(_ context.Context, courseID, teacherID int64) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	c, ok := r.db.t.courses[courseID]
	if !ok {
		return errNotFound("course")
	}
	c.TeacherID = teacherID
	c.UpdatedAt = r.db.now()
	r.db.wrote()
	return nil
}

func (r *courseRepo) UpdateStatus(_ context.Context, courseID int64, status model.CourseStatus) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	c, ok := r.db.t.courses[courseID]
	if !ok {
		return errNotFound("course")
	}
	c.Status = status
	c.UpdatedAt = r.db.now()
	r.db.wrote()
	return nil
}

func (r *courseRepo) Delete(_ context.Context, id int64) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	delete(r.db.t.courses, id)
	r.db.wrote()
	return nil
}
