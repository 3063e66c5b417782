package inmem

import (
	"context"
	"sort"

	"github.com/Freeeeeet/course_sessions/internal/model"
)

type userRepo struct {
	db *DB
}

func (r *userRepo) Create(_ context.Context, user *model.User) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	user.ID = r.db.nextID()
	user.CreatedAt = r.db.now()
	c := *user
	r.db.t.users[user.ID] = &c
	r.db.wrote()
	return nil
}

func (r *userRepo) GetByID(_ context.Context, id int64) (*model.User, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	if u, ok := r.db.t.users[id]; ok {
		c := *u
		return &c, nil
	}
	return nil, nil
}

// Lock транзакции в памяти и так сериализованы
func (r *userRepo) Lock(context.Context, int64) error {
	return nil
}

type slotRepo struct {
	db *DB
}

func (r *slotRepo) Create(_ context.Context, slot *model.TimeSlot) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	now := r.db.now()
	slot.ID = r.db.nextID()
	slot.CreatedAt = now
	slot.UpdatedAt = now
	c := *slot
	r.db.t.slots[slot.ID] = &c
	r.db.wrote()
	return nil
}

func (r *slotRepo) Update(_ context.Context, slot *model.TimeSlot) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	existing, ok := r.db.t.slots[slot.ID]
	if !ok {
		return errNotFound("time slot")
	}
	slot.CreatedAt = existing.CreatedAt
	slot.UpdatedAt = r.db.now()
	c := *slot
	r.db.t.slots[slot.ID] = &c
	r.db.wrote()
	return nil
}

func (r *slotRepo) Delete(_ context.Context, id int64) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	delete(r.db.t.slots, id)
	r.db.wrote()
	return nil
}

func (r *slotRepo) GetByID(_ context.Context, id int64) (*model.TimeSlot, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	if s, ok := r.db.t.slots[id]; ok {
		c := *s
		return &c, nil
	}
	return nil, nil
}

func (r *slotRepo) GetByIDs(_ context.Context, ids []int64) ([]*model.TimeSlot, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	var out []*model.TimeSlot
	seen := map[int64]bool{}
	for _, id := range ids {
		s, ok := r.db.t.slots[id]
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		c := *s
		out = append(out, &c)
	}
	sortSlots(out)
	return out, nil
}

func (r *slotRepo) ListByWeekday(_ context.Context, weekday int) ([]*model.TimeSlot, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	var out []*model.TimeSlot
	for _, s := range r.db.t.slots {
		if s.Weekday == weekday {
			c := *s
			out = append(out, &c)
		}
	}
	sortSlots(out)
	return out, nil
}

func (r *slotRepo) List(_ context.Context) ([]*model.TimeSlot, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	out := make([]*model.TimeSlot, 0, len(r.db.t.slots))
	for _, s := range r.db.t.slots {
		c := *s
		out = append(out, &c)
	}
	sortSlots(out)
	return out, nil
}

// LockWeekday транзакции в памяти и так сериализованы
func (r *slotRepo) LockWeekday(context.Context, int) error {
	return nil
}

func sortSlots(slots []*model.TimeSlot) {
	sort.Slice(slots, func(i, j int) bool { return model.SlotLess(slots[i], slots[j]) })
}

type grantRepo struct {
	db *DB
}

func (r *grantRepo) Grant(_ context.Context, teacherID, slotID int64) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	key := grantKey{teacherID: teacherID, slotID: slotID}
	if _, ok := r.db.t.grants[key]; ok {
		return false, nil
	}
	r.db.t.grants[key] = r.db.now()
	r.db.wrote()
	return true, nil
}

func (r *grantRepo) Revoke(_ context.Context, teacherID, slotID int64) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	key := grantKey{teacherID: teacherID, slotID: slotID}
	if _, ok := r.db.t.grants[key]; !ok {
		return false, nil
	}
	delete(r.db.t.grants, key)
	r.db.wrote()
	return true, nil
}

func (r *grantRepo) SlotIDs(_ context.Context, teacherID int64) ([]int64, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	var ids []int64
	for k := range r.db.t.grants {
		if k.teacherID == teacherID {
			ids = append(ids, k.slotID)
		}
	}
	sortIDs(ids)
	return ids, nil
}

func (r *grantRepo) TeachersBySlot(_ context.Context, slotID int64) ([]int64, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	var ids []int64
	for k := range r.db.t.grants {
		if k.slotID == slotID {
			ids = append(ids, k.teacherID)
		}
	}
	sortIDs(ids)
	return ids, nil
}

func (r *grantRepo) DeleteBySlot(_ context.Context, slotID int64) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	var n int64
	for k := range r.db.t.grants {
		if k.slotID == slotID {
			delete(r.db.t.grants, k)
			n++
		}
	}
	if n > 0 {
		r.db.wrote()
	}
	return n, nil
}

func sortIDs(ids []int64) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
