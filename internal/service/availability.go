package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/Freeeeeet/course_sessions/internal/model"
	"github.com/Freeeeeet/course_sessions/internal/repository"
	"go.uber.org/zap"
)

// Availability разрешения преподавателей на слоты и занятость слотов курсами
type Availability struct {
	store  repository.Store
	logger *zap.Logger
}

func NewAvailability(store repository.Store, logger *zap.Logger) *Availability {
	return &Availability{store: store, logger: logger}
}

// GrantSlot разрешает преподавателю вести занятия в слоте
func (a *Availability) GrantSlot(ctx context.Context, teacherID, slotID int64) error {
	r := a.store.Repos()

	if err := requireTeacher(ctx, r, teacherID); err != nil {
		return err
	}
	slot, err := r.Slots.GetByID(ctx, slotID)
	if err != nil {
		return fmt.Errorf("get slot: %w", err)
	}
	if slot == nil {
		return &NotFoundError{Entity: "time slot", ID: slotID}
	}

	added, err := r.Grants.Grant(ctx, teacherID, slotID)
	if err != nil {
		return fmt.Errorf("grant slot: %w", err)
	}
	if !added {
		return conflictf("slot %d is already granted to teacher %d", slotID, teacherID)
	}

	a.logger.Info("Slot granted", zap.Int64("teacher_id", teacherID), zap.Int64("slot_id", slotID))
	return nil
}

// RevokeSlot забирает разрешение. Уже назначенные курсы не меняются
func (a *Availability) RevokeSlot(ctx context.Context, teacherID, slotID int64) error {
	removed, err := a.store.Repos().Grants.Revoke(ctx, teacherID, slotID)
	if err != nil {
		return fmt.Errorf("revoke slot: %w", err)
	}
	if !removed {
		return &NotFoundError{Entity: "slot grant", ID: slotID}
	}

	a.logger.Info("Slot revoked", zap.Int64("teacher_id", teacherID), zap.Int64("slot_id", slotID))
	return nil
}

// ListAvailableSlots разрешённые слоты преподавателя, не занятые его курсами.
// excludeCourseID исключает курс из проверки занятости при его редактировании.
func (a *Availability) ListAvailableSlots(ctx context.Context, teacherID int64, excludeCourseID *int64) ([]*model.TimeSlot, error) {
	r := a.store.Repos()

	if err := requireTeacher(ctx, r, teacherID); err != nil {
		return nil, err
	}

	grantedIDs, err := r.Grants.SlotIDs(ctx, teacherID)
	if err != nil {
		return nil, fmt.Errorf("get granted slots: %w", err)
	}

	claimed, err := claimedSlots(ctx, r, teacherID, excludeCourseID)
	if err != nil {
		return nil, err
	}

	free := make([]int64, 0, len(grantedIDs))
	for _, id := range grantedIDs {
		if _, taken := claimed[id]; !taken {
			free = append(free, id)
		}
	}
	if len(free) == 0 {
		return []*model.TimeSlot{}, nil
	}

	slots, err := r.Slots.GetByIDs(ctx, free)
	if err != nil {
		return nil, fmt.Errorf("get slots: %w", err)
	}
	sortSlots(slots)
	return slots, nil
}

// claimedSlots slot_id -> course_id для planned/active курсов преподавателя.
// Учитывает и список слотов, и legacy поле с одним слотом.
func claimedSlots(ctx context.Context, r repository.Repos, teacherID int64, excludeCourseID *int64) (map[int64]int64, error) {
	courses, err := r.Courses.ListByTeacher(ctx, teacherID, model.CourseStatusPlanned, model.CourseStatusActive)
	if err != nil {
		return nil, fmt.Errorf("list teacher courses: %w", err)
	}

	claimed := make(map[int64]int64)
	for _, course := range courses {
		if excludeCourseID != nil && course.ID == *excludeCourseID {
			continue
		}
		for _, slotID := range course.AssignedSlotIDs() {
			claimed[slotID] = course.ID
		}
	}
	return claimed, nil
}

func requireTeacher(ctx context.Context, r repository.Repos, teacherID int64) error {
	user, err := r.Users.GetByID(ctx, teacherID)
	if err != nil {
		return fmt.Errorf("get teacher: %w", err)
	}
	if user == nil || !user.IsTeacher {
		return &NotFoundError{Entity: "teacher", ID: teacherID}
	}
	return nil
}

func sortSlots(slots []*model.TimeSlot) {
	sort.Slice(slots, func(i, j int) bool { return model.SlotLess(slots[i], slots[j]) })
}
