package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Freeeeeet/course_sessions/internal/model"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// MessageSender часть *bot.Bot для отправки сообщений
type MessageSender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

// UserLookup поиск преподавателя по id
type UserLookup interface {
	GetByID(ctx context.Context, id int64) (*model.User, error)
}

// TelegramNotifier пишет преподавателю о его занятиях
type TelegramNotifier struct {
	sender MessageSender
	users  UserLookup
	loc    *time.Location
}

func NewTelegramNotifier(sender MessageSender, users UserLookup, loc *time.Location) *TelegramNotifier {
	if loc == nil {
		loc = time.UTC
	}
	return &TelegramNotifier{sender: sender, users: users, loc: loc}
}

func (n *TelegramNotifier) Notify(ctx context.Context, event model.SessionEvent) error {
	if event.Session == nil {
		return fmt.Errorf("event %s without session", event.Kind)
	}

	teacher, err := n.users.GetByID(ctx, event.Session.TeacherID)
	if err != nil {
		return fmt.Errorf("get teacher: %w", err)
	}
	if teacher == nil || teacher.TelegramID == 0 {
		// преподаватель без Telegram
		return nil
	}

	_, err = n.sender.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: teacher.TelegramID,
		Text:   n.formatEvent(event),
	})
	if err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	return nil
}

func (n *TelegramNotifier) formatEvent(event model.SessionEvent) string {
	s := event.Session
	when := s.StartsAt.In(n.loc).Format("02.01.2006 15:04")

	var b strings.Builder
	switch event.Kind {
	case model.SessionEventCreated:
		fmt.Fprintf(&b, "📅 Новое занятие: %s, %d мин.", when, s.DurationMinutes)
	case model.SessionEventUpdated:
		fmt.Fprintf(&b, "✏️ Занятие перенесено: %s, %d мин.", when, s.DurationMinutes)
	case model.SessionEventCancelled:
		fmt.Fprintf(&b, "❌ Занятие отменено: %s", when)
	case model.SessionEventCompleted:
		fmt.Fprintf(&b, "✅ Занятие проведено: %s", when)
	case model.SessionEventDuplicateConflict:
		fmt.Fprintf(&b, "⚠️ На %s несколько занятий с отметками или статусом.\nОставлено занятие #%d, проверьте вручную:", when, s.ID)
		for _, id := range event.Conflicts {
			fmt.Fprintf(&b, " #%d", id)
		}
	default:
		fmt.Fprintf(&b, "Занятие %s: %s", when, event.Kind)
	}

	if s.Room != "" {
		fmt.Fprintf(&b, "\nАудитория: %s", s.Room)
	}
	if s.MeetingLink != "" {
		fmt.Fprintf(&b, "\nСсылка: %s", s.MeetingLink)
	}
	return b.String()
}
