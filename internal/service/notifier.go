package service

import (
	"context"
	"time"

	"github.com/Freeeeeet/course_sessions/internal/model"
	"go.uber.org/zap"
)

// SessionNotifier календарь или канал уведомлений преподавателя
type SessionNotifier interface {
	Notify(ctx context.Context, event model.SessionEvent) error
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, model.SessionEvent) error { return nil }

// dispatcher отправляет события в фоне, ошибка уведомления не ломает операцию
type dispatcher struct {
	notifier SessionNotifier
	timeout  time.Duration
	now      func() time.Time
	logger   *zap.Logger
}

func newDispatcher(notifier SessionNotifier, timeout time.Duration, now func() time.Time, logger *zap.Logger) *dispatcher {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &dispatcher{notifier: notifier, timeout: timeout, now: now, logger: logger}
}

func (d *dispatcher) send(ctx context.Context, kind model.SessionEventKind, session *model.Session, conflicts []int64) {
	event := model.SessionEvent{
		Kind:       kind,
		Session:    session,
		Conflicts:  conflicts,
		OccurredAt: d.now(),
	}

	ctx = context.WithoutCancel(ctx)
	go func() {
		ctx, cancel := context.WithTimeout(ctx, d.timeout)
		defer cancel()

		if err := d.notifier.Notify(ctx, event); err != nil {
			d.logger.Warn("Failed to notify about session",
				zap.String("kind", string(kind)),
				zap.Int64("session_id", session.ID),
				zap.Error(err),
			)
		}
	}()
}
