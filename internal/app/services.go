package app

import (
	"github.com/Freeeeeet/course_sessions/internal/repository"
	"github.com/Freeeeeet/course_sessions/internal/service"
	"go.uber.org/zap"
)

// Services все сервисы движка поверх одного хранилища, их вызывает внешний API слой
type Services struct {
	Slots        *service.SlotCatalog
	Availability *service.Availability
	Courses      *service.CourseService
	Generator    *service.SessionGenerator
	Attendance   *service.AttendanceTracker
	Progress     *service.ProgressService
}

func NewServices(store repository.Store, opts service.Options, logger *zap.Logger) *Services {
	return &Services{
		Slots:        service.NewSlotCatalog(store, opts, logger.Named("slots")),
		Availability: service.NewAvailability(store, logger.Named("availability")),
		Courses:      service.NewCourseService(store, opts, logger.Named("courses")),
		Generator:    service.NewSessionGenerator(store, opts, logger.Named("generator")),
		Attendance:   service.NewAttendanceTracker(store, opts, logger.Named("attendance")),
		Progress:     service.NewProgressService(store, opts, logger.Named("progress")),
	}
}
