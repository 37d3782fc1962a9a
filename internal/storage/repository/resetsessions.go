package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/helpmespeak/helpmespeak-backend/internal/models"
)

// CreateResetSession создаёт сессию сброса пароля и возвращает её токен.
// Старые сессии пользователя удаляются, живой может быть только одна.
func (s *Storage) CreateResetSession(ctx context.Context, userUID string) (string, error) {
	const op = "storage.CreateResetSession"
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	query := `DELETE FROM reset_sessions WHERE user_uid = $1`
	if _, err := tx.ExecContext(ctx, query, userUID); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	token := uuid.NewString()
	query = `INSERT INTO reset_sessions (token, user_uid) VALUES ($1, $2)`
	if _, err := tx.ExecContext(ctx, query, token, userUID); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return token, nil
}

// GetResetSession возвращает сессию сброса пароля по токену.
func (s *Storage) GetResetSession(ctx context.Context, token string) (*models.PasswordResetSession, error) {
	const op = "storage.GetResetSession"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT token, user_uid, created_at
			  FROM reset_sessions
			  WHERE token = $1`
	session := &models.PasswordResetSession{}
	row := s.DB.QueryRowContext(ctx, query, token)
	if err := row.Scan(&session.Token, &session.UserUID, &session.CreatedAt); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return session, nil
}

// DeleteResetSession удаляет сессию сброса пароля. Сессия одноразовая,
// удаление происходит и после успешной смены пароля, и при истечении.
func (s *Storage) DeleteResetSession(ctx context.Context, token string) error {
	const op = "storage.DeleteResetSession"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `DELETE FROM reset_sessions WHERE token = $1`
	res, err := s.DB.ExecContext(ctx, query, token)
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
