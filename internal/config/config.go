package config

import (
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Environment string `mapstructure:"ENV"`
	DBDSN       string `mapstructure:"DB_DSN"`

	Timezone             string  `mapstructure:"TIMEZONE"`
	MinAttendancePercent float64 `mapstructure:"MIN_ATTENDANCE_PERCENT"`

	TelegramToken string `mapstructure:"TELEGRAM_TOKEN"`

	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisChannel  string `mapstructure:"REDIS_CHANNEL"`

	SweepInterval time.Duration `mapstructure:"SWEEP_INTERVAL"`
	NotifyTimeout time.Duration `mapstructure:"NOTIFY_TIMEOUT"`

	OnlineLinkPlaceholder string `mapstructure:"ONLINE_LINK_PLACEHOLDER"`
	RoomPlaceholder       string `mapstructure:"ROOM_PLACEHOLDER"`

	Location *time.Location `mapstructure:"-"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_DSN", "")
	v.SetDefault("TIMEZONE", "UTC")
	v.SetDefault("MIN_ATTENDANCE_PERCENT", 70.0)
	v.SetDefault("TELEGRAM_TOKEN", "")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_CHANNEL", "course_sessions.events")
	v.SetDefault("SWEEP_INTERVAL", time.Duration(0))
	v.SetDefault("NOTIFY_TIMEOUT", 5*time.Second)
	v.SetDefault("ONLINE_LINK_PLACEHOLDER", "pending")
	v.SetDefault("ROOM_PLACEHOLDER", "to be assigned")
}

func Load() (*Config, error) {
	// Пытаемся загрузить .env файл (игнорируем ошибку, если файла нет)
	if err := godotenv.Load(".env"); err != nil {
		log.Println("⚠️  No .env file found, using environment variables")
	} else {
		log.Println("✅ Loaded configuration from .env file")
	}

	v := viper.New()
	v.SetTypeByDefaultValue(true)
	setDefaults(v)
	v.AutomaticEnv()

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Environment:           v.GetString("ENV"),
		DBDSN:                 v.GetString("DB_DSN"),
		Timezone:              v.GetString("TIMEZONE"),
		MinAttendancePercent:  v.GetFloat64("MIN_ATTENDANCE_PERCENT"),
		TelegramToken:         v.GetString("TELEGRAM_TOKEN"),
		RedisAddr:             v.GetString("REDIS_ADDR"),
		RedisPassword:         v.GetString("REDIS_PASSWORD"),
		RedisChannel:          v.GetString("REDIS_CHANNEL"),
		SweepInterval:         v.GetDuration("SWEEP_INTERVAL"),
		NotifyTimeout:         v.GetDuration("NOTIFY_TIMEOUT"),
		OnlineLinkPlaceholder: v.GetString("ONLINE_LINK_PLACEHOLDER"),
		RoomPlaceholder:       v.GetString("ROOM_PLACEHOLDER"),
	}

	// Проверяем обязательные поля
	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("DB_DSN is required but not set")
	}
	if cfg.MinAttendancePercent <= 0 || cfg.MinAttendancePercent > 100 {
		return nil, fmt.Errorf("MIN_ATTENDANCE_PERCENT must be in (0, 100], got %v", cfg.MinAttendancePercent)
	}
	if cfg.SweepInterval < 0 {
		return nil, fmt.Errorf("SWEEP_INTERVAL must not be negative")
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", cfg.Timezone, err)
	}
	cfg.Location = loc

	return cfg, nil
}

func (c *Config) GetDBDSN() string {
	return c.DBDSN
}
