// Package sender собирает и запускает приложение отправки писем.
package sender

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/streadway/amqp"

	"github.com/helpmespeak/helpmespeak-backend/internal/config"
	"github.com/helpmespeak/helpmespeak-backend/internal/lib/rabbitmq"
	"github.com/helpmespeak/helpmespeak-backend/internal/lib/sl"
	"github.com/helpmespeak/helpmespeak-backend/internal/lib/smtp"
	senderservice "github.com/helpmespeak/helpmespeak-backend/internal/services/sender"
)

// App собирает зависимости отправителя уведомлений.
type App struct {
	channel *amqp.Channel
	conn    *amqp.Connection
	logger  *slog.Logger
	service *senderservice.Service
}

// New создает приложение отправителя: подключает брокер и SMTP транспорт.
func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	conn, err := rabbitmq.Connect(cfg.RabbitMQURL, cfg.RabbitMQMaxRetries, cfg.RabbitMQRetryDelay)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := rabbitmq.SetupChannel(conn, rabbitmq.GetNotificationQueues())
	if err != nil {
		return nil, fmt.Errorf("failed to setup channel: %w", err)
	}

	transport := smtp.NewTransport(cfg, logger)
	service := senderservice.New(transport, cfg.OTP, logger)

	return &App{
		channel: ch,
		conn:    conn,
		logger:  logger,
		service: service,
	}, nil
}

// Run запускает потребление очередей уведомлений
// и блокируется до отмены контекста.
func (a *App) Run(ctx context.Context) error {
	for _, queue := range rabbitmq.GetNotificationQueues() {
		go func() {
			err := rabbitmq.ConsumerMessage(ctx, a.channel, queue.QueueName,
				a.service.SendExpiringSubscriptionNotice)
			if err != nil {
				a.logger.Error("consumer stopped",
					slog.String("queue", queue.QueueName), sl.Err(err))
			}
		}()
	}

	<-ctx.Done()
	a.logger.Info("shutting down sender gracefully")
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
}
