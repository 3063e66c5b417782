package service

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/course_sessions/internal/model"
	"github.com/Freeeeeet/course_sessions/internal/repository"
	"go.uber.org/zap"
)

// SlotInput данные для создания и изменения слота каталога
type SlotInput struct {
	Name      string         `validate:"max=100"`
	Weekday   int            `validate:"min=0,max=6"`
	StartTime string         `validate:"required,hhmm"`
	EndTime   string         `validate:"required,hhmm"`
	Kind      model.SlotKind `validate:"omitempty,oneof=class availability"`
}

// SlotDeletion последствия удаления слота
type SlotDeletion struct {
	SlotID           int64
	TeachersImpacted int64
	CoursesImpacted  int64
	SessionsDeleted  int64
}

// SlotCatalog ведёт каталог недельных слотов без пересечений внутри дня
type SlotCatalog struct {
	store  repository.Store
	opts   Options
	logger *zap.Logger
}

func NewSlotCatalog(store repository.Store, opts Options, logger *zap.Logger) *SlotCatalog {
	return &SlotCatalog{store: store, opts: opts.withDefaults(), logger: logger}
}

// normalize проверяет формат и приводит время к виду HH:MM
func (in SlotInput) normalize() (*model.TimeSlot, error) {
	if err := validateStruct(in); err != nil {
		return nil, err
	}

	start, _ := model.ParseClock(in.StartTime)
	end, _ := model.ParseClock(in.EndTime)
	if !start.Before(end) {
		return nil, newValidationError("EndTime", "must be after StartTime")
	}

	kind := in.Kind
	if kind == "" {
		kind = model.SlotKindClass
	}

	return &model.TimeSlot{
		Name:      in.Name,
		Weekday:   in.Weekday,
		StartTime: start.String(),
		EndTime:   end.String(),
		Kind:      kind,
	}, nil
}

// checkOverlap ищет пересечения со слотами того же дня, кроме самого слота
func checkOverlap(ctx context.Context, r repository.Repos, slot *model.TimeSlot) error {
	if err := r.Slots.LockWeekday(ctx, slot.Weekday); err != nil {
		return err
	}

	existing, err := r.Slots.ListByWeekday(ctx, slot.Weekday)
	if err != nil {
		return fmt.Errorf("list slots by weekday: %w", err)
	}

	for _, other := range existing {
		if other.ID == slot.ID {
			continue
		}
		if slot.Overlaps(other) {
			return newValidationError("StartTime", fmt.Sprintf(
				"overlaps slot %d (%s-%s)", other.ID, other.StartTime, other.EndTime))
		}
	}
	return nil
}

// Create добавляет слот в каталог
func (c *SlotCatalog) Create(ctx context.Context, in SlotInput) (*model.TimeSlot, error) {
	slot, err := in.normalize()
	if err != nil {
		return nil, err
	}

	err = c.store.WithTx(ctx, func(r repository.Repos) error {
		if err := checkOverlap(ctx, r, slot); err != nil {
			return err
		}
		return r.Slots.Create(ctx, slot)
	})
	if err != nil {
		return nil, fmt.Errorf("create slot: %w", err)
	}

	c.logger.Info("Time slot created",
		zap.Int64("slot_id", slot.ID),
		zap.Int("weekday", slot.Weekday),
		zap.String("start", slot.StartTime),
		zap.String("end", slot.EndTime),
	)

	return slot, nil
}

// Update меняет слот. Слот, на который ссылается курс, можно только переименовать
func (c *SlotCatalog) Update(ctx context.Context, id int64, in SlotInput) (*model.TimeSlot, error) {
	slot, err := in.normalize()
	if err != nil {
		return nil, err
	}
	slot.ID = id

	err = c.store.WithTx(ctx, func(r repository.Repos) error {
		current, err := r.Slots.GetByID(ctx, id)
		if err != nil {
			return fmt.Errorf("get slot: %w", err)
		}
		if current == nil {
			return &NotFoundError{Entity: "time slot", ID: id}
		}

		timingChanged := current.Weekday != slot.Weekday ||
			current.StartTime != slot.StartTime ||
			current.EndTime != slot.EndTime
		if timingChanged {
			courses, err := r.Courses.ListBySlot(ctx, id)
			if err != nil {
				return fmt.Errorf("list courses by slot: %w", err)
			}
			if len(courses) > 0 {
				return conflictf("slot %d is assigned to %d course(s), unassign it first", id, len(courses))
			}
		}

		if err := checkOverlap(ctx, r, slot); err != nil {
			return err
		}
		return r.Slots.Update(ctx, slot)
	})
	if err != nil {
		return nil, fmt.Errorf("update slot: %w", err)
	}

	c.logger.Info("Time slot updated", zap.Int64("slot_id", id))

	return slot, nil
}

// Delete убирает слот из разрешений преподавателей и из курсов, затем удаляет его.
// Операция необратима.
func (c *SlotCatalog) Delete(ctx context.Context, id int64) (*SlotDeletion, error) {
	result := &SlotDeletion{SlotID: id}

	err := c.store.WithTx(ctx, func(r repository.Repos) error {
		slot, err := r.Slots.GetByID(ctx, id)
		if err != nil {
			return fmt.Errorf("get slot: %w", err)
		}
		if slot == nil {
			return &NotFoundError{Entity: "time slot", ID: id}
		}

		// будущие нетронутые занятия слота уходят вместе с ним
		courses, err := r.Courses.ListBySlot(ctx, id)
		if err != nil {
			return fmt.Errorf("list courses by slot: %w", err)
		}
		now := c.opts.Now()
		for _, course := range courses {
			dropped, err := dropSlotSessions(ctx, r, course, []*model.TimeSlot{slot}, now, c.opts.Location)
			if err != nil {
				return err
			}
			result.SessionsDeleted += int64(len(dropped))
		}

		teachers, err := r.Grants.DeleteBySlot(ctx, id)
		if err != nil {
			return fmt.Errorf("delete grants: %w", err)
		}
		impacted, err := r.Courses.RemoveSlotEverywhere(ctx, id)
		if err != nil {
			return fmt.Errorf("remove slot from courses: %w", err)
		}
		if err := r.Slots.Delete(ctx, id); err != nil {
			return err
		}

		result.TeachersImpacted = teachers
		result.CoursesImpacted = impacted
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("delete slot: %w", err)
	}

	c.logger.Warn("Time slot deleted",
		zap.Int64("slot_id", id),
		zap.Int64("teachers_impacted", result.TeachersImpacted),
		zap.Int64("courses_impacted", result.CoursesImpacted),
		zap.Int64("sessions_deleted", result.SessionsDeleted),
	)

	return result, nil
}

// List весь каталог по дню недели и времени начала
func (c *SlotCatalog) List(ctx context.Context) ([]*model.TimeSlot, error) {
	slots, err := c.store.Repos().Slots.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}
	return slots, nil
}
