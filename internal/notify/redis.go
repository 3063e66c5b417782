package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Freeeeeet/course_sessions/internal/model"
	"github.com/redis/go-redis/v9"
)

// Publisher часть *redis.Client, нужная для pub/sub
type Publisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// RedisNotifier публикует события в канал, его читает синхронизация календаря
type RedisNotifier struct {
	client  Publisher
	channel string
}

func NewRedisNotifier(client Publisher, channel string) *RedisNotifier {
	return &RedisNotifier{client: client, channel: channel}
}

type sessionMessage struct {
	Kind            model.SessionEventKind `json:"kind"`
	SessionID       int64                  `json:"session_id"`
	CourseID        int64                  `json:"course_id"`
	TeacherID       int64                  `json:"teacher_id"`
	CalendarUID     string                 `json:"calendar_uid"`
	StartsAt        string                 `json:"starts_at"`
	DurationMinutes int                    `json:"duration_minutes"`
	State           model.SessionState     `json:"state"`
	MeetingLink     string                 `json:"meeting_link,omitempty"`
	Room            string                 `json:"room,omitempty"`
	Conflicts       []int64                `json:"conflicting_session_ids,omitempty"`
	OccurredAt      string                 `json:"occurred_at"`
}

// encodeEvent сообщение без состава и отметок, календарю они не нужны
func encodeEvent(event model.SessionEvent) ([]byte, error) {
	if event.Session == nil {
		return nil, fmt.Errorf("event %s without session", event.Kind)
	}
	s := event.Session

	return json.Marshal(sessionMessage{
		Kind:            event.Kind,
		SessionID:       s.ID,
		CourseID:        s.CourseID,
		TeacherID:       s.TeacherID,
		CalendarUID:     s.CalendarUID.String(),
		StartsAt:        s.StartsAt.UTC().Format(time.RFC3339),
		DurationMinutes: s.DurationMinutes,
		State:           s.State,
		MeetingLink:     s.MeetingLink,
		Room:            s.Room,
		Conflicts:       event.Conflicts,
		OccurredAt:      event.OccurredAt.UTC().Format(time.RFC3339),
	})
}

func (n *RedisNotifier) Notify(ctx context.Context, event model.SessionEvent) error {
	payload, err := encodeEvent(event)
	if err != nil {
		return err
	}
	if err := n.client.Publish(ctx, n.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish session event: %w", err)
	}
	return nil
}
