package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/Freeeeeet/course_sessions/internal/app"
	"github.com/Freeeeeet/course_sessions/internal/config"
	"github.com/Freeeeeet/course_sessions/internal/notify"
	"github.com/Freeeeeet/course_sessions/internal/repository"
	"github.com/Freeeeeet/course_sessions/internal/service"
	"github.com/go-telegram/bot"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := app.NewLogger(cfg.Environment)
	defer logger.Sync()

	logStartup(logger, cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.GetDBDSN())
	if err != nil {
		logger.Fatal("Failed to create pool", zap.Error(err))
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		logger.Fatal("Failed to ping database", zap.Error(err))
	}

	migrator, err := app.NewMigrator(pool, logger)
	if err != nil {
		logger.Fatal("Failed to create migrator", zap.Error(err))
	}
	if err := migrator.Run(ctx); err != nil {
		logger.Fatal("Failed to apply migrations", zap.Error(err))
	}
	if err := migrator.Close(); err != nil {
		logger.Warn("Failed to close migrator", zap.Error(err))
	}

	store := repository.NewPgStore(pool)

	var notifiers notify.Multi

	if cfg.TelegramToken != "" {
		b, err := bot.New(cfg.TelegramToken)
		if err != nil {
			logger.Fatal("Failed to create telegram bot", zap.Error(err))
		}
		notifiers = append(notifiers, notify.NewTelegramNotifier(b, store.Repos().Users, cfg.Location))
		logger.Info("✅ Telegram notifications enabled")
	}

	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			cancel()
			logger.Fatal("Failed to ping redis", zap.Error(err))
		}
		cancel()
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("Failed to close redis", zap.Error(err))
			}
		}()

		notifiers = append(notifiers, notify.NewRedisNotifier(redisClient, cfg.RedisChannel))
		logger.Info("✅ Redis calendar events enabled", zap.String("channel", cfg.RedisChannel))
	}

	opts := service.Options{
		Location:              cfg.Location,
		MinAttendancePercent:  cfg.MinAttendancePercent,
		OnlineLinkPlaceholder: cfg.OnlineLinkPlaceholder,
		RoomPlaceholder:       cfg.RoomPlaceholder,
		Notifier:              notifiers,
		NotifyTimeout:         cfg.NotifyTimeout,
	}

	services := app.NewServices(store, opts, logger)

	sweeper := app.NewSweeper(services.Generator, cfg.SweepInterval, logger.Named("sweeper"))
	sweeper.Start(ctx)

	logger.Info("🚀 Course sessions engine started",
		zap.Float64("min_attendance_percent", cfg.MinAttendancePercent),
	)

	<-ctx.Done()

	sweeper.Stop()
	logger.Info("🛑 Course sessions engine stopped")
}

func logStartup(logger *zap.Logger, cfg *config.Config) {
	logger.Sugar().Infow("🔄 Starting course sessions engine",
		"environment", cfg.Environment,
		"timezone", cfg.Timezone,
		"telegram_enabled", cfg.TelegramToken != "",
		"redis_enabled", cfg.RedisAddr != "")
}
