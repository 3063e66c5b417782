package model

import "time"

type User struct {
	ID         int64     `json:"id"`
	TelegramID int64     `json:"telegram_id"` // 0 - уведомления в Telegram не отправляются
	Username   string    `json:"username"`
	FirstName  string    `json:"first_name"`
	LastName   string    `json:"last_name"`
	IsTeacher  bool      `json:"is_teacher"`
	CreatedAt  time.Time `json:"created_at"`
}
