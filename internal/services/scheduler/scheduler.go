// Package scheduler периодически ищет истекающие подписки и публикует
// напоминания в очередь уведомлений.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/streadway/amqp"

	"github.com/helpmespeak/helpmespeak-backend/internal/lib/rabbitmq"
	"github.com/helpmespeak/helpmespeak-backend/internal/lib/sl"
	"github.com/helpmespeak/helpmespeak-backend/internal/models"
)

// SubscriptionRepository ищет подписки с приближающейся датой продления.
type SubscriptionRepository interface {
	FindSubscriptionsExpiringWithin(ctx context.Context, window time.Duration) ([]*models.ExpiringSubscription, error)
}

// Окно поиска и период обхода.
const (
	expiryWindow = 24 * time.Hour
	scanInterval = 12 * time.Hour
)

// Service реализует периодический поиск истекающих подписок.
type Service struct {
	repo SubscriptionRepository
	log  *slog.Logger
}

// New создает новый экземпляр Service.
func New(repo SubscriptionRepository, log *slog.Logger) *Service {
	return &Service{
		repo: repo,
		log:  log,
	}
}

// FindExpiringSubscriptions запускает обход раз в двенадцать часов
// и публикует найденные подписки в очередь уведомлений.
// Блокируется до отмены контекста.
func (s *Service) FindExpiringSubscriptions(ctx context.Context, channel *amqp.Channel) {
	s.runFindExpiringSubscriptions(ctx, channel)

	ticker := time.NewTicker(scanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.runFindExpiringSubscriptions(ctx, channel)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Service) runFindExpiringSubscriptions(ctx context.Context, channel *amqp.Channel) {
	s.log.Info("starting scan for expiring subscriptions")
	expiring, err := s.repo.FindSubscriptionsExpiringWithin(ctx, expiryWindow)
	if err != nil {
		s.log.Error("failed to find expiring subscriptions", sl.Err(err))
		return
	}
	if len(expiring) == 0 {
		s.log.Info("no expiring subscriptions found")
		return
	}
	s.log.Info("found expiring subscriptions", "count", len(expiring))
	for _, e := range expiring {
		err = rabbitmq.PublishMessage(channel, rabbitmq.ExchangeNotifications, "expiring", e)
		if err != nil {
			s.log.Error("failed to publish message", sl.Err(err))
		}
	}
}
