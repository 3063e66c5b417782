package inmem

import (
	"context"
	"sort"
	"time"

	"github.com/Freeeeeet/course_sessions/internal/model"
)

type sessionRepo struct {
	db *DB
}

func copySession(s *model.Session) *model.Session {
	out := *s
	out.Roster = append([]int64(nil), s.Roster...)
	out.Attendance = nil
	return &out
}

// load копия занятия с отметками; вызывать под mu
func (r *sessionRepo) load(s *model.Session) *model.Session {
	out := copySession(s)
	for _, studentID := range out.Roster {
		if a, ok := r.db.t.attendance[attendanceKey{sessionID: s.ID, studentID: studentID}]; ok {
			out.Attendance = append(out.Attendance, *a)
		}
	}
	// отметки студентов, выбывших из состава, тоже остаются в истории
	for k, a := range r.db.t.attendance {
		if k.sessionID == s.ID && !out.InRoster(k.studentID) {
			out.Attendance = append(out.Attendance, *a)
		}
	}
	sort.Slice(out.Attendance, func(i, j int) bool {
		return out.Attendance[i].StudentID < out.Attendance[j].StudentID
	})
	return out
}

func (r *sessionRepo) list(match func(s *model.Session) bool) []*model.Session {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	var out []*model.Session
	for _, s := range r.db.t.sessions {
		if match(s) {
			out = append(out, r.load(s))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartsAt.Equal(out[j].StartsAt) {
			return out[i].StartsAt.Before(out[j].StartsAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (r *sessionRepo) Create(_ context.Context, s *model.Session) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	now := r.db.now()
	s.ID = r.db.nextID()
	s.CreatedAt = now
	s.UpdatedAt = now
	r.db.t.sessions[s.ID] = copySession(s)
	r.db.wrote()
	return nil
}

func (r *sessionRepo) GetByID(_ context.Context, id int64) (*model.Session, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	if s, ok := r.db.t.sessions[id]; ok {
		return r.load(s), nil
	}
	return nil, nil
}

func (r *sessionRepo) ListByCourse(_ context.Context, courseID int64) ([]*model.Session, error) {
	return r.list(func(s *model.Session) bool { return s.CourseID == courseID }), nil
}

func (r *sessionRepo) ListByCourseBetween(_ context.Context, courseID int64, from, to time.Time) ([]*model.Session, error) {
	return r.list(func(s *model.Session) bool {
		return s.CourseID == courseID && !s.StartsAt.Before(from) && s.StartsAt.Before(to)
	}), nil
}

func (r *sessionRepo) ListByTeacher(_ context.Context, teacherID int64) ([]*model.Session, error) {
	return r.list(func(s *model.Session) bool { return s.TeacherID == teacherID }), nil
}

func (r *sessionRepo) Exists(_ context.Context, courseID, teacherID int64, startsAt time.Time) (bool, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	for _, s := range r.db.t.sessions {
		if s.CourseID != courseID || s.TeacherID != teacherID {
			continue
		}
		if s.StartsAt.Equal(startsAt) || s.OccurrenceAt.Equal(startsAt) {
			return true, nil
		}
	}
	return false, nil
}

func (r *sessionRepo) hasAttendance(sessionID int64) bool {
	for k := range r.db.t.attendance {
		if k.sessionID == sessionID {
			return true
		}
	}
	return false
}

func (r *sessionRepo) DeletePristine(_ context.Context, id int64) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	s, ok := r.db.t.sessions[id]
	if !ok || s.State != model.SessionStateScheduled || r.hasAttendance(id) {
		return false, nil
	}
	delete(r.db.t.sessions, id)
	r.db.wrote()
	return true, nil
}

func (r *sessionRepo) TransitionState(_ context.Context, id int64, from, to model.SessionState) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	s, ok := r.db.t.sessions[id]
	if !ok || s.State != from {
		return false, nil
	}
	s.State = to
	s.UpdatedAt = r.db.now()
	r.db.wrote()
	return true, nil
}

func (r *sessionRepo) Reschedule(_ context.Context, id int64, startsAt time.Time, durationMinutes int) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	s, ok := r.db.t.sessions[id]
	if !ok || s.State != model.SessionStateScheduled {
		return false, nil
	}
	s.StartsAt = startsAt
	s.DurationMinutes = durationMinutes
	s.UpdatedAt = r.db.now()
	r.db.wrote()
	return true, nil
}

// upcoming запланированные занятия курса после after; вызывать под mu
func (r *sessionRepo) upcoming(courseID int64, after time.Time) []*model.Session {
	var out []*model.Session
	for _, s := range r.db.t.sessions {
		if s.CourseID == courseID && s.State == model.SessionStateScheduled && s.StartsAt.After(after) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *sessionRepo) CancelUpcoming(_ context.Context, courseID int64, after time.Time) ([]int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	var ids []int64
	for _, s := range r.upcoming(courseID, after) {
		s.State = model.SessionStateCancelled
		s.UpdatedAt = r.db.now()
		ids = append(ids, s.ID)
	}
	if len(ids) > 0 {
		r.db.wrote()
	}
	return ids, nil
}

func (r *sessionRepo) ReassignUpcoming(_ context.Context, courseID, teacherID int64, after time.Time) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	var n int64
	for _, s := range r.db.t.sessions {
		if s.CourseID != courseID || s.TeacherID == teacherID || s.State == model.SessionStateCompleted {
			continue
		}
		if s.StartsAt.Before(after) && s.OccurrenceAt.Before(after) {
			continue
		}
		s.TeacherID = teacherID
		s.UpdatedAt = r.db.now()
		n++
	}
	if n > 0 {
		r.db.wrote()
	}
	return n, nil
}

func (r *sessionRepo) AddToUpcomingRosters(_ context.Context, courseID, studentID int64, after time.Time) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	var n int64
	for _, s := range r.upcoming(courseID, after) {
		if s.InRoster(studentID) {
			continue
		}
		s.Roster = append(s.Roster, studentID)
		sortIDs(s.Roster)
		n++
	}
	if n > 0 {
		r.db.wrote()
	}
	return n, nil
}

func (r *sessionRepo) RemoveFromUpcomingRosters(_ context.Context, courseID, studentID int64, after time.Time) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	var n int64
	for _, s := range r.upcoming(courseID, after) {
		kept := s.Roster[:0]
		for _, id := range s.Roster {
			if id == studentID {
				n++
				continue
			}
			kept = append(kept, id)
		}
		s.Roster = kept
	}
	if n > 0 {
		r.db.wrote()
	}
	return n, nil
}

func (r *sessionRepo) DeleteByCourse(_ context.Context, courseID int64) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	for id, s := range r.db.t.sessions {
		if s.CourseID != courseID {
			continue
		}
		delete(r.db.t.sessions, id)
		for k := range r.db.t.attendance {
			if k.sessionID == id {
				delete(r.db.t.attendance, k)
			}
		}
	}
	r.db.wrote()
	return nil
}

type attendanceRepo struct {
	db *DB
}

func (r *attendanceRepo) Upsert(_ context.Context, rec *model.AttendanceRecord) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	s, ok := r.db.t.sessions[rec.SessionID]
	if !ok {
		return errNotFound("session")
	}
	c := *rec
	r.db.t.attendance[attendanceKey{sessionID: rec.SessionID, studentID: rec.StudentID}] = &c
	s.UpdatedAt = r.db.now()
	r.db.wrote()
	return nil
}
