package service

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/Freeeeeet/course_sessions/internal/model"
	"github.com/Freeeeeet/course_sessions/internal/repository"
	"go.uber.org/zap"
)

// AttendanceStats посещаемость студента на курсе относительно минимального порога
type AttendanceStats struct {
	StudentID                int64   `json:"student_id"`
	CourseID                 int64   `json:"course_id"`
	TotalSessions            int     `json:"total_sessions"`
	Attended                 int     `json:"attended"`
	ProjectedSessions        int     `json:"projected_sessions"`
	Percentage               float64 `json:"percentage"`
	RemainingAllowedAbsences int     `json:"remaining_allowed_absences"`
	NearLimit                bool    `json:"near_limit"`
	BelowThreshold           bool    `json:"below_threshold"`
}

// Alert студент у порога или ниже него
func (s AttendanceStats) Alert() bool {
	return s.NearLimit || s.BelowThreshold
}

type ProgressService struct {
	store  repository.Store
	opts   Options
	logger *zap.Logger
}

func NewProgressService(store repository.Store, opts Options, logger *zap.Logger) *ProgressService {
	return &ProgressService{store: store, opts: opts.withDefaults(), logger: logger}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// computeStats считает процент и запас пропусков.
// projected запланированные, ещё не проведённые занятия студента.
func computeStats(completed, attended, projected int, thresholdPercent float64) AttendanceStats {
	stats := AttendanceStats{
		TotalSessions:     completed,
		Attended:          attended,
		ProjectedSessions: projected,
	}
	if completed > 0 {
		stats.Percentage = round1(float64(attended) / float64(completed) * 100)
	}

	allowed := int(math.Floor((1-thresholdPercent/100)*float64(completed+projected) + 1e-9))
	stats.RemainingAllowedAbsences = max(allowed-(completed-attended), 0)

	if completed > 0 {
		stats.NearLimit = stats.RemainingAllowedAbsences <= 1
		stats.BelowThreshold = stats.Percentage < thresholdPercent
	}
	return stats
}

// statsFor считает статистику студента по занятиям одного курса
func (p *ProgressService) statsFor(studentID, courseID int64, sessions []*model.Session) AttendanceStats {
	var completed, attended, projected int
	for _, s := range sessions {
		if !s.InRoster(studentID) {
			continue
		}
		switch s.State {
		case model.SessionStateCompleted:
			completed++
			if rec := s.AttendanceFor(studentID); rec != nil && rec.Present {
				attended++
			}
		case model.SessionStateScheduled:
			projected++
		}
	}

	stats := computeStats(completed, attended, projected, p.opts.MinAttendancePercent)
	stats.StudentID = studentID
	stats.CourseID = courseID
	return stats
}

// Statistics посещаемость студента на курсе
func (p *ProgressService) Statistics(ctx context.Context, studentID, courseID int64) (*AttendanceStats, error) {
	r := p.store.Repos()

	course, err := r.Courses.GetByID(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("get course: %w", err)
	}
	if course == nil {
		return nil, &NotFoundError{Entity: "course", ID: courseID}
	}

	sessions, err := r.Sessions.ListByCourse(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	stats := p.statsFor(studentID, courseID, sessions)
	return &stats, nil
}

// CourseAlerts студенты курса, у которых посещаемость у порога или ниже
func (p *ProgressService) CourseAlerts(ctx context.Context, courseID int64) ([]AttendanceStats, error) {
	r := p.store.Repos()

	course, err := r.Courses.GetByID(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("get course: %w", err)
	}
	if course == nil {
		return nil, &NotFoundError{Entity: "course", ID: courseID}
	}

	enrollments, err := r.Enrollments.ListByCourse(ctx, courseID, model.EnrollmentStatusConfirmed)
	if err != nil {
		return nil, fmt.Errorf("list enrollments: %w", err)
	}
	sessions, err := r.Sessions.ListByCourse(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	alerts := []AttendanceStats{}
	for _, e := range enrollments {
		if stats := p.statsFor(e.StudentID, courseID, sessions); stats.Alert() {
			alerts = append(alerts, stats)
		}
	}
	sortAlerts(alerts)
	return alerts, nil
}

// StudentAlerts курсы студента, где посещаемость у порога или ниже
func (p *ProgressService) StudentAlerts(ctx context.Context, studentID int64) ([]AttendanceStats, error) {
	r := p.store.Repos()

	enrollments, err := r.Enrollments.ListByStudent(ctx, studentID, model.EnrollmentStatusConfirmed)
	if err != nil {
		return nil, fmt.Errorf("list enrollments: %w", err)
	}

	alerts := []AttendanceStats{}
	for _, e := range enrollments {
		sessions, err := r.Sessions.ListByCourse(ctx, e.CourseID)
		if err != nil {
			return nil, fmt.Errorf("list sessions: %w", err)
		}
		if stats := p.statsFor(studentID, e.CourseID, sessions); stats.Alert() {
			alerts = append(alerts, stats)
		}
	}
	sortAlerts(alerts)
	return alerts, nil
}

func sortAlerts(alerts []AttendanceStats) {
	sort.Slice(alerts, func(i, j int) bool {
		if alerts[i].Percentage != alerts[j].Percentage {
			return alerts[i].Percentage < alerts[j].Percentage
		}
		if alerts[i].CourseID != alerts[j].CourseID {
			return alerts[i].CourseID < alerts[j].CourseID
		}
		return alerts[i].StudentID < alerts[j].StudentID
	})
}
