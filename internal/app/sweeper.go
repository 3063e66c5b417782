package app

import (
	"context"
	"sync"
	"time"

	"github.com/Freeeeeet/course_sessions/internal/service"
	"go.uber.org/zap"
)

// CourseEnsurer то, что умеет дозаполнять занятия всех курсов
type CourseEnsurer interface {
	EnsureAllCourses(ctx context.Context) (service.EnsureSummary, error)
}

// Sweeper периодически проходит по всем курсам. Необязателен: генерация и так
// запускается при каждом запросе расписания.
type Sweeper struct {
	ensurer  CourseEnsurer
	interval time.Duration
	logger   *zap.Logger

	stopChan chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewSweeper interval <= 0 означает, что фоновый проход выключен
func NewSweeper(ensurer CourseEnsurer, interval time.Duration, logger *zap.Logger) *Sweeper {
	return &Sweeper{
		ensurer:  ensurer,
		interval: interval,
		logger:   logger,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (s *Sweeper) Enabled() bool {
	return s.interval > 0
}

// Start запускает фоновый проход
func (s *Sweeper) Start(ctx context.Context) {
	if !s.Enabled() {
		close(s.done)
		s.logger.Info("Session sweeper disabled")
		return
	}

	s.logger.Info("Starting session sweeper", zap.Duration("interval", s.interval))
	go s.run(ctx)
}

// Stop останавливает проход и ждёт завершения текущей итерации
func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() {
		s.logger.Info("Stopping session sweeper")
		close(s.stopChan)
	})
	<-s.done
}

func (s *Sweeper) run(ctx context.Context) {
	defer close(s.done)

	// Первый запуск сразу при старте
	s.sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep(ctx)
		case <-s.stopChan:
			s.logger.Info("Session sweeper stopped")
			return
		case <-ctx.Done():
			s.logger.Info("Session sweeper cancelled")
			return
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	started := time.Now()

	summary, err := s.ensurer.EnsureAllCourses(ctx)
	if err != nil {
		s.logger.Error("Session sweep finished with errors", zap.Error(err))
	}

	s.logger.Info("Session sweep completed",
		zap.Int("courses", summary.Courses),
		zap.Int("created", summary.Created),
		zap.Int("deleted", summary.Deleted),
		zap.Int("conflicts", summary.Conflicts),
		zap.Duration("took", time.Since(started)),
	)
}
