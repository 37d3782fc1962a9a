package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/helpmespeak/helpmespeak-backend/internal/models"
)

func scanSubscription(row *sql.Row) (*models.Subscription, error) {
	sub := &models.Subscription{}
	var planID sql.NullInt64
	var planName sql.NullString
	var renewalDate sql.NullTime
	if err := row.Scan(&sub.ID, &sub.UserUID, &planID, &planName, &sub.Status,
		&sub.StartDate, &renewalDate, &sub.LatestReceiptToken, &sub.Platform); err != nil {
		return nil, err
	}
	if planID.Valid {
		id := int(planID.Int64)
		sub.PlanID = &id
	}
	if planName.Valid {
		sub.PlanName = planName.String
	}
	if renewalDate.Valid {
		sub.RenewalDate = &renewalDate.Time
	}
	return sub, nil
}

// CreateSubscription сохраняет подписку пользователя и возвращает её ID.
func (s *Storage) CreateSubscription(ctx context.Context, sub models.Subscription) (int, error) {
	const op = "storage.CreateSubscription"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	var newID int
	query := `INSERT INTO subscriptions (user_uid, plan_id, status, start_date,
			      renewal_date, latest_receipt_token, platform)
			  VALUES ($1, $2, $3, $4, $5, $6, $7)
			  RETURNING id;`
	if err := s.DB.QueryRowContext(ctx, query,
		sub.UserUID, sub.PlanID, sub.Status, sub.StartDate,
		sub.RenewalDate, sub.LatestReceiptToken, sub.Platform).Scan(&newID); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return newID, nil
}

// GetSubscriptionByUser возвращает подписку пользователя вместе с именем плана.
func (s *Storage) GetSubscriptionByUser(ctx context.Context, userUID string) (*models.Subscription, error) {
	const op = "storage.GetSubscriptionByUser"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT s.id, s.user_uid, s.plan_id, p.name, s.status, s.start_date,
			      s.renewal_date, s.latest_receipt_token, s.platform
			  FROM subscriptions s
			  LEFT JOIN plans p ON p.id = s.plan_id
			  WHERE s.user_uid = $1`
	sub, err := scanSubscription(s.DB.QueryRowContext(ctx, query, userUID))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return sub, nil
}

// UpdateSubscription обновляет план, статус, даты и чек подписки.
func (s *Storage) UpdateSubscription(ctx context.Context, sub models.Subscription) error {
	const op = "storage.UpdateSubscription"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE subscriptions
			  SET plan_id = $1, status = $2, start_date = $3, renewal_date = $4,
			      latest_receipt_token = $5, platform = $6
			  WHERE id = $7`
	res, err := s.DB.ExecContext(ctx, query,
		sub.PlanID, sub.Status, sub.StartDate, sub.RenewalDate,
		sub.LatestReceiptToken, sub.Platform, sub.ID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if affected == 0 {
		return fmt.Errorf("%s: %w", op, sql.ErrNoRows)
	}
	return nil
}

// UpdateSubscriptionStatus меняет только статус подписки.
// Используется ленивым истечением и отменой.
func (s *Storage) UpdateSubscriptionStatus(ctx context.Context, subscriptionID int, status string) error {
	const op = "storage.UpdateSubscriptionStatus"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE subscriptions SET status = $1 WHERE id = $2`
	res, err := s.DB.ExecContext(ctx, query, status, subscriptionID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if affected == 0 {
		return fmt.Errorf("%s: %w", op, sql.ErrNoRows)
	}
	return nil
}

// FindSubscriptionsExpiringWithin находит подписки, срок которых истекает
// в ближайший интервал, вместе с данными владельца для письма-напоминания.
func (s *Storage) FindSubscriptionsExpiringWithin(ctx context.Context, window time.Duration) ([]*models.ExpiringSubscription, error) {
	const op = "storage.FindSubscriptionsExpiringWithin"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT u.email, u.full_name, COALESCE(p.name, ''), s.renewal_date
			  FROM subscriptions s
			  JOIN users u ON u.uid = s.user_uid
			  LEFT JOIN plans p ON p.id = s.plan_id
			  WHERE s.status IN ($1, $2)
			      AND s.renewal_date IS NOT NULL
			      AND s.renewal_date > NOW()
			      AND s.renewal_date <= NOW() + $3::interval`
	interval := fmt.Sprintf("%d seconds", int(window.Seconds()))
	rows, err := s.DB.QueryContext(ctx, query,
		models.SubscriptionStatusTrial, models.SubscriptionStatusActive, interval)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.ExpiringSubscription
	for rows.Next() {
		var e models.ExpiringSubscription
		if err = rows.Scan(&e.Email, &e.FullName, &e.PlanName, &e.RenewalDate); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, &e)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}
