// Package notify доставка событий по занятиям: календарь, преподаватель.
package notify

import (
	"context"
	"errors"

	"github.com/Freeeeeet/course_sessions/internal/model"
	"github.com/Freeeeeet/course_sessions/internal/service"
)

// Nop ничего не отправляет
type Nop struct{}

func (Nop) Notify(context.Context, model.SessionEvent) error { return nil }

// Multi рассылает событие всем получателям, ошибки объединяются
type Multi []service.SessionNotifier

func (m Multi) Notify(ctx context.Context, event model.SessionEvent) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var (
	_ service.SessionNotifier = Nop{}
	_ service.SessionNotifier = Multi(nil)
)
