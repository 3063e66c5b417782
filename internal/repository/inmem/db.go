// Package inmem хранилище в памяти с теми же интерфейсами, что и PgStore.
// Используется в тестах сервисов и для локальной отладки без базы.
package inmem

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Freeeeeet/course_sessions/internal/model"
	"github.com/Freeeeeet/course_sessions/internal/repository"
)

type grantKey struct {
	teacherID int64
	slotID    int64
}

type attendanceKey struct {
	sessionID int64
	studentID int64
}

type tables struct {
	users       map[int64]*model.User
	slots       map[int64]*model.TimeSlot
	grants      map[grantKey]time.Time
	courses     map[int64]*model.Course
	sessions    map[int64]*model.Session
	attendance  map[attendanceKey]*model.AttendanceRecord
	enrollments map[int64]*model.Enrollment
}

func newTables() tables {
	return tables{
		users:       map[int64]*model.User{},
		slots:       map[int64]*model.TimeSlot{},
		grants:      map[grantKey]time.Time{},
		courses:     map[int64]*model.Course{},
		sessions:    map[int64]*model.Session{},
		attendance:  map[attendanceKey]*model.AttendanceRecord{},
		enrollments: map[int64]*model.Enrollment{},
	}
}

type DB struct {
	mu   sync.RWMutex
	txMu sync.Mutex
	now  func() time.Time
	seq  int64
	t    tables

	writes atomic.Int64
}

// New создаёт пустое хранилище; now задаёт время created_at/updated_at
func New(now func() time.Time) *DB {
	if now == nil {
		now = time.Now
	}
	return &DB{now: now, t: newTables()}
}

// Writes количество выполненных изменяющих операций, удобно для проверки идемпотентности
func (db *DB) Writes() int64 {
	return db.writes.Load()
}

func (db *DB) nextID() int64 {
	db.seq++
	return db.seq
}

func (db *DB) wrote() {
	db.writes.Add(1)
}

func (db *DB) Repos() repository.Repos {
	return repository.Repos{
		Slots:       &slotRepo{db: db},
		Grants:      &grantRepo{db: db},
		Courses:     &courseRepo{db: db},
		Sessions:    &sessionRepo{db: db},
		Attendance:  &attendanceRepo{db: db},
		Enrollments: &enrollmentRepo{db: db},
		Users:       &userRepo{db: db},
	}
}

// WithTx сериализует транзакции между собой и откатывает таблицы при ошибке.
// Изменения вне транзакций, сделанные параллельно, при откате теряются.
func (db *DB) WithTx(ctx context.Context, fn func(r repository.Repos) error) error {
	db.txMu.Lock()
	defer db.txMu.Unlock()

	db.mu.RLock()
	snapshot := db.t.clone()
	seq := db.seq
	db.mu.RUnlock()

	if err := fn(db.Repos()); err != nil {
		db.mu.Lock()
		db.t = snapshot
		db.seq = seq
		db.mu.Unlock()
		return err
	}
	return nil
}

func (t tables) clone() tables {
	out := newTables()
	for id, u := range t.users {
		c := *u
		out.users[id] = &c
	}
	for id, s := range t.slots {
		c := *s
		out.slots[id] = &c
	}
	for k, v := range t.grants {
		out.grants[k] = v
	}
	for id, c := range t.courses {
		out.courses[id] = copyCourse(c)
	}
	for id, s := range t.sessions {
		out.sessions[id] = copySession(s)
	}
	for k, a := range t.attendance {
		c := *a
		out.attendance[k] = &c
	}
	for id, e := range t.enrollments {
		c := *e
		out.enrollments[id] = &c
	}
	return out
}

var _ repository.Store = (*DB)(nil)

func errNotFound(entity string) error {
	return fmt.Errorf("%s not found", entity)
}

func errDuplicate(entity string) error {
	return fmt.Errorf("%s already exists", entity)
}
