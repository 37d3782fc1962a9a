// Package scheduler собирает и запускает приложение планировщика уведомлений.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/streadway/amqp"

	"github.com/helpmespeak/helpmespeak-backend/internal/config"
	"github.com/helpmespeak/helpmespeak-backend/internal/lib/rabbitmq"
	"github.com/helpmespeak/helpmespeak-backend/internal/lib/sl"
	schedulerservice "github.com/helpmespeak/helpmespeak-backend/internal/services/scheduler"
	"github.com/helpmespeak/helpmespeak-backend/internal/storage/repository"
)

// App собирает зависимости планировщика.
type App struct {
	channel *amqp.Channel
	conn    *amqp.Connection
	db      *repository.Storage
	logger  *slog.Logger
	service *schedulerservice.Service
}

// New создает приложение планировщика: подключает брокер и хранилище.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	conn, err := rabbitmq.Connect(cfg.RabbitMQURL, cfg.RabbitMQMaxRetries, cfg.RabbitMQRetryDelay)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := rabbitmq.SetupChannel(conn, rabbitmq.GetNotificationQueues())
	if err != nil {
		return nil, fmt.Errorf("failed to setup channel: %w", err)
	}

	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to storage: %w", err)
	}
	if err := waitForDB(ctx, db, logger); err != nil {
		return nil, err
	}

	service := schedulerservice.New(db, logger)

	return &App{
		channel: ch,
		conn:    conn,
		db:      db,
		logger:  logger,
		service: service,
	}, nil
}

// Run запускает периодический поиск истекающих подписок
// и блокируется до отмены контекста.
func (a *App) Run(ctx context.Context) error {
	go a.service.FindExpiringSubscriptions(ctx, a.channel)

	<-ctx.Done()
	a.logger.Info("shutting down scheduler gracefully")
	a.closeResources()
	return nil
}

func (a *App) closeResources() {
	if err := a.channel.Close(); err != nil {
		a.logger.Error("failed to close channel", sl.Err(err))
	}
	if err := a.conn.Close(); err != nil {
		a.logger.Error("failed to close connection", sl.Err(err))
	}
	if err := a.db.DB.Close(); err != nil {
		a.logger.Error("failed to close storage", sl.Err(err))
	}
}

// waitForDB дожидается готовности схемы, миграции применяет основное приложение.
func waitForDB(ctx context.Context, db *repository.Storage, logger *slog.Logger) error {
	for range 10 {
		ready, err := db.CheckDatabaseReady(ctx)
		if err == nil && ready {
			return nil
		}
		logger.Info("database is not ready yet, waiting")
		time.Sleep(3 * time.Second)
	}
	return fmt.Errorf("database is not ready")
}
