package repository

import (
	"context"

	"github.com/Freeeeeet/course_sessions/internal/repository/base"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgStore хранилище поверх PostgreSQL
type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

func (s *PgStore) Repos() Repos {
	return newRepos(s.pool)
}

func (s *PgStore) WithTx(ctx context.Context, fn func(r Repos) error) error {
	return base.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(newRepos(tx))
	})
}

func newRepos(q base.Querier) Repos {
	return Repos{
		Slots:       NewTimeSlotRepository(q),
		Grants:      NewGrantRepository(q),
		Courses:     NewCourseRepository(q),
		Sessions:    NewSessionRepository(q),
		Attendance:  NewAttendanceRepository(q),
		Enrollments: NewEnrollmentRepository(q),
		Users:       NewUserRepository(q),
	}
}

var _ Store = (*PgStore)(nil)
