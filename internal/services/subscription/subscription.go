// Package subscription содержит бизнес-логику жизненного цикла подписок.
package subscription

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/helpmespeak/helpmespeak-backend/internal/config"
	"github.com/helpmespeak/helpmespeak-backend/internal/models"
	"github.com/helpmespeak/helpmespeak-backend/internal/receipts"
)

// Ошибки бизнес-уровня.
var (
	ErrNotFound       = errors.New("subscription not found")
	ErrInvalidReceipt = errors.New("receipt is not valid")
	ErrUnknownProduct = errors.New("unknown store product")
)

// Repository определяет методы для работы с подписками и планами в хранилище.
type Repository interface {
	// ListActivePlans возвращает все активные тарифные планы.
	ListActivePlans(ctx context.Context) ([]*models.Plan, error)
	// GetTrialPlan возвращает пробный план.
	GetTrialPlan(ctx context.Context) (*models.Plan, error)
	// GetActivePlanByProductID возвращает план по идентификатору продукта магазина.
	GetActivePlanByProductID(ctx context.Context, productID string) (*models.Plan, error)
	// CreateSubscription добавляет подписку и возвращает её ID.
	CreateSubscription(ctx context.Context, sub models.Subscription) (int, error)
	// GetSubscriptionByUser возвращает подписку пользователя.
	GetSubscriptionByUser(ctx context.Context, userUID string) (*models.Subscription, error)
	// UpdateSubscription обновляет подписку целиком.
	UpdateSubscription(ctx context.Context, sub models.Subscription) error
	// UpdateSubscriptionStatus меняет только статус подписки.
	UpdateSubscriptionStatus(ctx context.Context, subscriptionID int, status string) error
}

// Cache описывает методы для кэширования данных.
type Cache interface {
	// Get пытается получить значение из кеша по ключу.
	Get(key string, result any) (bool, error)
	// Set сохраняет значение в кеш с временем жизни.
	Set(key string, value any, expiration time.Duration) error
	// Invalidate удаляет значение из кеша по ключу.
	Invalidate(key string) error
}

// ReceiptVerifier проверяет чеки покупок у платёжных платформ.
type ReceiptVerifier interface {
	Verify(ctx context.Context, platform, receipt string) (*receipts.Result, error)
}

// Время жизни кешей сервиса.
const (
	checkCacheTTL = time.Minute
	plansCacheTTL = time.Hour
)

// Service реализует бизнес-логику подписок, включая кеширование.
type Service struct {
	repo     Repository
	cache    Cache
	verifier ReceiptVerifier
	cfg      config.Subscription
	log      *slog.Logger
}

// New создает новый экземпляр Service.
func New(repo Repository, cache Cache, verifier ReceiptVerifier,
	cfg config.Subscription, log *slog.Logger) *Service {
	return &Service{
		repo:     repo,
		cache:    cache,
		verifier: verifier,
		cfg:      cfg,
		log:      log,
	}
}

// CheckResult снимок состояния подписки для клиента.
type CheckResult struct {
	IsValid          bool       `json:"active"`
	NeedSubscription bool       `json:"need_subscription"`
	Status           string     `json:"status,omitempty"`
	PlanName         string     `json:"plan_name,omitempty"`
	RenewalDate      *time.Time `json:"renewal_date,omitempty"`
}

func checkCacheKey(userUID string) string {
	return fmt.Sprintf("subscription:check:%s", userUID)
}

// planDurationDays возвращает длительность периода плана в днях.
// Явная длительность имеет приоритет над интервалом, неизвестный интервал
// отдает пробный период.
func planDurationDays(plan *models.Plan, trialDays int) int {
	if plan.DurationDays > 0 {
		return plan.DurationDays
	}
	switch plan.Interval {
	case "year", "annual":
		return 365
	case "month", "monthly":
		return 30
	case "week", "weekly":
		return 7
	default:
		return trialDays
	}
}

// StartTrial подключает новому пользователю пробный план. Если пробного плана
// в каталоге нет, подписка создается без плана на настроенное число дней.
func (s *Service) StartTrial(ctx context.Context, userUID string) error {
	const op = "subscription.StartTrial"

	days := s.cfg.TrialPeriodDays
	var planID *int
	plan, err := s.repo.GetTrialPlan(ctx)
	if err == nil {
		planID = &plan.ID
		if d := planDurationDays(plan, s.cfg.TrialPeriodDays); d > 0 {
			days = d
		}
	} else if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, err)
	}

	now := time.Now().UTC()
	renewal := now.AddDate(0, 0, days)
	sub := models.Subscription{
		UserUID:     userUID,
		PlanID:      planID,
		Status:      models.SubscriptionStatusTrial,
		StartDate:   now,
		RenewalDate: &renewal,
	}
	if _, err := s.repo.CreateSubscription(ctx, sub); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("started trial", slog.String("uid", userUID), slog.Int("days", days))
	return nil
}

// Activate проверяет чек покупки у платформы и активирует подписку на
// соответствующий план. Платный план даёт статус active с продлением на период
// плана, бесплатный — статус trial с продлением на пробный период. Существующая
// подписка обновляется, отсутствующая создается. Кеш проверки инвалидируется.
func (s *Service) Activate(ctx context.Context, userUID, platform, receipt string) (*models.Subscription, error) {
	const op = "subscription.Activate"

	result, err := s.verifier.Verify(ctx, platform, receipt)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !result.Valid {
		return nil, ErrInvalidReceipt
	}

	plan, err := s.repo.GetActivePlanByProductID(ctx, result.ProductID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUnknownProduct
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	now := time.Now().UTC()
	status := models.SubscriptionStatusActive
	renewal := now.AddDate(0, 0, planDurationDays(plan, s.cfg.TrialPeriodDays))
	if result.ExpiresAt != nil {
		renewal = *result.ExpiresAt
	}
	if plan.Price == 0 {
		status = models.SubscriptionStatusTrial
		renewal = now.AddDate(0, 0, s.cfg.TrialPeriodDays)
	}

	sub, err := s.repo.GetSubscriptionByUser(ctx, userUID)
	if errors.Is(err, sql.ErrNoRows) {
		newSub := models.Subscription{
			UserUID:            userUID,
			PlanID:             &plan.ID,
			Status:             status,
			StartDate:          now,
			RenewalDate:        &renewal,
			LatestReceiptToken: receipt,
			Platform:           platform,
		}
		newID, createErr := s.repo.CreateSubscription(ctx, newSub)
		if createErr != nil {
			return nil, fmt.Errorf("%s: %w", op, createErr)
		}
		newSub.ID = newID
		newSub.PlanName = plan.Name
		sub = &newSub
	} else if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	} else {
		sub.PlanID = &plan.ID
		sub.PlanName = plan.Name
		sub.Status = status
		sub.StartDate = now
		sub.RenewalDate = &renewal
		sub.LatestReceiptToken = receipt
		sub.Platform = platform
		if err := s.repo.UpdateSubscription(ctx, *sub); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	if err := s.cache.Invalidate(checkCacheKey(userUID)); err != nil {
		s.log.Warn("failed to invalidate check cache",
			slog.String("uid", userUID), slog.Any("err", err))
	}

	s.log.Info("activated subscription",
		slog.String("uid", userUID), slog.String("plan", plan.Name),
		slog.String("status", status))
	return sub, nil
}

// IsActiveAndValid возвращает подписку и признак её действительности.
// Действительны только статусы trial и active. Истечение проверяется лениво:
// прошедшая дата продления переводит статус в expired прямо в момент проверки
// и сохраняет его.
func (s *Service) IsActiveAndValid(ctx context.Context, userUID string) (bool, *models.Subscription, error) {
	const op = "subscription.IsActiveAndValid"

	sub, err := s.repo.GetSubscriptionByUser(ctx, userUID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil, nil
		}
		return false, nil, fmt.Errorf("%s: %w", op, err)
	}

	switch sub.Status {
	case models.SubscriptionStatusTrial, models.SubscriptionStatusActive:
	default:
		return false, sub, nil
	}
	if sub.RenewalDate == nil {
		return false, sub, nil
	}
	if time.Now().After(*sub.RenewalDate) {
		if err := s.repo.UpdateSubscriptionStatus(ctx, sub.ID, models.SubscriptionStatusExpired); err != nil {
			return false, sub, fmt.Errorf("%s: %w", op, err)
		}
		sub.Status = models.SubscriptionStatusExpired
		s.log.Info("subscription lazily expired",
			slog.String("uid", userUID), slog.Int("id", sub.ID))
		return false, sub, nil
	}
	return true, sub, nil
}

// Check возвращает снимок состояния подписки, кешируя его на минуту.
func (s *Service) Check(ctx context.Context, userUID string) (*CheckResult, error) {
	const op = "subscription.Check"

	var cached CheckResult
	cacheKey := checkCacheKey(userUID)
	found, err := s.cache.Get(cacheKey, &cached)
	if err != nil {
		s.log.Warn("failed to read check cache", slog.String("key", cacheKey), slog.Any("err", err))
	}
	if found {
		return &cached, nil
	}

	valid, sub, err := s.IsActiveAndValid(ctx, userUID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	result := &CheckResult{IsValid: valid, NeedSubscription: !valid}
	if sub != nil {
		result.Status = sub.Status
		result.PlanName = sub.PlanName
		result.RenewalDate = sub.RenewalDate
	}

	if err := s.cache.Set(cacheKey, result, checkCacheTTL); err != nil {
		s.log.Warn("failed to cache check result", slog.String("key", cacheKey), slog.Any("err", err))
	}
	return result, nil
}

// ListPlans возвращает активные тарифные планы, кешируя каталог на час.
func (s *Service) ListPlans(ctx context.Context) ([]*models.Plan, error) {
	const op = "subscription.ListPlans"

	var cached []*models.Plan
	const cacheKey = "plans:active"
	found, err := s.cache.Get(cacheKey, &cached)
	if err != nil {
		s.log.Warn("failed to read plans cache", slog.Any("err", err))
	}
	if found {
		return cached, nil
	}

	plans, err := s.repo.ListActivePlans(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := s.cache.Set(cacheKey, plans, plansCacheTTL); err != nil {
		s.log.Warn("failed to cache plans", slog.Any("err", err))
	}
	return plans, nil
}

// Cancel отменяет подписку пользователя: статус становится cancelled, дата
// продления очищается, доступ прекращается сразу.
func (s *Service) Cancel(ctx context.Context, userUID string) error {
	const op = "subscription.Cancel"

	sub, err := s.repo.GetSubscriptionByUser(ctx, userUID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	sub.Status = models.SubscriptionStatusCancelled
	sub.RenewalDate = nil
	if err := s.repo.UpdateSubscription(ctx, *sub); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := s.cache.Invalidate(checkCacheKey(userUID)); err != nil {
		s.log.Warn("failed to invalidate check cache",
			slog.String("uid", userUID), slog.Any("err", err))
	}

	s.log.Info("cancelled subscription", slog.String("uid", userUID), slog.Int("id", sub.ID))
	return nil
}
