package service

import "time"

const (
	MinSessionMinutes = 30
	MaxSessionMinutes = 180

	defaultMinAttendancePercent  = 70
	defaultOnlineLinkPlaceholder = "pending"
	defaultRoomPlaceholder       = "to be assigned"
)

// Options общие настройки сервисов
type Options struct {
	// Location зона, в которой время слота прикладывается к дате
	Location *time.Location
	Now      func() time.Time

	MinAttendancePercent  float64
	OnlineLinkPlaceholder string
	RoomPlaceholder       string

	Notifier      SessionNotifier
	NotifyTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.Location == nil {
		o.Location = time.UTC
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.MinAttendancePercent <= 0 || o.MinAttendancePercent > 100 {
		o.MinAttendancePercent = defaultMinAttendancePercent
	}
	if o.OnlineLinkPlaceholder == "" {
		o.OnlineLinkPlaceholder = defaultOnlineLinkPlaceholder
	}
	if o.RoomPlaceholder == "" {
		o.RoomPlaceholder = defaultRoomPlaceholder
	}
	return o
}
