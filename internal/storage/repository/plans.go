package repository

import (
	"context"
	"fmt"

	"github.com/helpmespeak/helpmespeak-backend/internal/models"
)

const planColumns = `id, name, price, currency, billing_interval, duration_days, is_active,
			      apple_product_id, google_product_id`

// ListActivePlans возвращает все активные тарифные планы.
func (s *Storage) ListActivePlans(ctx context.Context) ([]*models.Plan, error) {
	const op = "storage.ListActivePlans"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + planColumns + `
			  FROM plans
			  WHERE is_active = TRUE
			  ORDER BY price`
	rows, err := s.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.Plan
	for rows.Next() {
		var p models.Plan
		if err = rows.Scan(&p.ID, &p.Name, &p.Price, &p.Currency, &p.Interval,
			&p.DurationDays, &p.IsActive, &p.AppleProductID, &p.GoogleProductID); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, &p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// GetTrialPlan возвращает пробный план: план с именем trial либо первый
// активный план с нулевой ценой.
func (s *Storage) GetTrialPlan(ctx context.Context) (*models.Plan, error) {
	const op = "storage.GetTrialPlan"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + planColumns + `
			  FROM plans
			  WHERE is_active = TRUE AND (LOWER(name) = 'trial' OR price = 0)
			  ORDER BY (LOWER(name) = 'trial') DESC, id
			  LIMIT 1`
	p := &models.Plan{}
	row := s.DB.QueryRowContext(ctx, query)
	if err := row.Scan(&p.ID, &p.Name, &p.Price, &p.Currency, &p.Interval,
		&p.DurationDays, &p.IsActive, &p.AppleProductID, &p.GoogleProductID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return p, nil
}

// GetActivePlanByProductID возвращает активный план по идентификатору продукта
// в магазине Apple или Google.
func (s *Storage) GetActivePlanByProductID(ctx context.Context, productID string) (*models.Plan, error) {
	const op = "storage.GetActivePlanByProductID"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + planColumns + `
			  FROM plans
			  WHERE is_active = TRUE
			      AND (apple_product_id = $1 OR google_product_id = $1)
			  LIMIT 1`
	p := &models.Plan{}
	row := s.DB.QueryRowContext(ctx, query, productID)
	if err := row.Scan(&p.ID, &p.Name, &p.Price, &p.Currency, &p.Interval,
		&p.DurationDays, &p.IsActive, &p.AppleProductID, &p.GoogleProductID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return p, nil
}
