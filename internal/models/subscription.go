package models

import "time"

// Статусы подписки.
const (
	SubscriptionStatusPending   = "pending"
	SubscriptionStatusTrial     = "trial"
	SubscriptionStatusActive    = "active"
	SubscriptionStatusCancelled = "cancelled"
	SubscriptionStatusExpired   = "expired"
)

// Платформы покупок.
const (
	PlatformApple  = "apple"
	PlatformGoogle = "google"
)

// Plan представляет тарифный план с идентификаторами продуктов в магазинах.
// DurationDays имеет приоритет над Interval при вычислении срока действия.
type Plan struct {
	ID              int     `json:"id"`
	Name            string  `json:"name"`  // monthly, annual, trial и т.п.
	Price           float64 `json:"price"` // Цена за период, 0 означает бесплатный план
	Currency        string  `json:"currency"`
	Interval        string  `json:"interval"`      // month, year, week
	DurationDays    int     `json:"duration_days"` // Явная длительность в днях, 0 — вычислять из Interval
	IsActive        bool    `json:"is_active"`
	AppleProductID  string  `json:"apple_product_id"`
	GoogleProductID string  `json:"google_product_id"`
}

// Subscription представляет подписку пользователя, один к одному с учётной записью.
// Истечение проверяется лениво при чтении: прошедшая RenewalDate переводит
// статус в expired в момент обращения, фонового процесса нет.
type Subscription struct {
	ID                 int        `json:"id"`
	UserUID            string     `json:"user_uid"`
	PlanID             *int       `json:"plan_id,omitempty"`
	PlanName           string     `json:"plan_name,omitempty"` // Название плана, заполняется при чтении из хранилища
	Status             string     `json:"status"`
	StartDate          time.Time  `json:"start_date"`
	RenewalDate        *time.Time `json:"renewal_date,omitempty"`
	LatestReceiptToken string     `json:"-"`                  // Последний чек покупки, для аудита
	Platform           string     `json:"platform,omitempty"` // apple или google
}

// ExpiringSubscription данные для письма-напоминания об истекающей подписке.
type ExpiringSubscription struct {
	Email       string    `json:"email"`
	FullName    string    `json:"full_name"`
	PlanName    string    `json:"plan_name"`
	RenewalDate time.Time `json:"renewal_date"`
}
