package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/helpmespeak/helpmespeak-backend/internal/models"
)

const tokenColumns = `t.id, t.user_uid, u.email, t.access_token, t.access_token_expires_at,
			      t.refresh_token, t.refresh_token_expires_at,
			      t.otp, t.otp_expires_at, t.revoked, t.created_at`

func scanTokenPair(row *sql.Row) (*models.TokenPair, error) {
	t := &models.TokenPair{}
	var otpExpires sql.NullTime
	if err := row.Scan(&t.ID, &t.UserUID, &t.Email, &t.AccessToken, &t.AccessTokenExpiresAt,
		&t.RefreshToken, &t.RefreshTokenExpiresAt,
		&t.OTP, &otpExpires, &t.Revoked, &t.CreatedAt); err != nil {
		return nil, err
	}
	if otpExpires.Valid {
		t.OTPExpiresAt = &otpExpires.Time
	}
	return t, nil
}

// CreateTokenPair сохраняет выданную пару токенов, перенося на неё живой
// одноразовый код пользователя, и возвращает её ID.
func (s *Storage) CreateTokenPair(ctx context.Context, pair models.TokenPair) (int, error) {
	const op = "storage.CreateTokenPair"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	var newID int
	query := `INSERT INTO tokens (user_uid, access_token, access_token_expires_at,
			      refresh_token, refresh_token_expires_at, otp, otp_expires_at)
			  SELECT uid, $2, $3, $4, $5,
			      verification_code,
			      verification_code_expires_at
			  FROM users
			  WHERE uid = $1
			  RETURNING id;`
	if err := s.DB.QueryRowContext(ctx, query,
		pair.UserUID, pair.AccessToken, pair.AccessTokenExpiresAt,
		pair.RefreshToken, pair.RefreshTokenExpiresAt).Scan(&newID); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return newID, nil
}

// DeleteTokensByUser удаляет все токены пользователя. Вызывается при входе,
// чтобы в хранилище жила ровно одна пара на пользователя.
func (s *Storage) DeleteTokensByUser(ctx context.Context, userUID string) error {
	const op = "storage.DeleteTokensByUser"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `DELETE FROM tokens WHERE user_uid = $1`
	if _, err := s.DB.ExecContext(ctx, query, userUID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// FindByRefreshToken возвращает неотозванную пару по refresh токену.
func (s *Storage) FindByRefreshToken(ctx context.Context, refreshToken string) (*models.TokenPair, error) {
	const op = "storage.FindByRefreshToken"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + tokenColumns + `
			  FROM tokens t
			  JOIN users u ON u.uid = t.user_uid
			  WHERE t.refresh_token = $1 AND t.revoked = FALSE`
	pair, err := scanTokenPair(s.DB.QueryRowContext(ctx, query, refreshToken))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return pair, nil
}

// FindActiveByAccessToken возвращает неотозванную и неистёкшую пару по access токену.
func (s *Storage) FindActiveByAccessToken(ctx context.Context, accessToken string) (*models.TokenPair, error) {
	const op = "storage.FindActiveByAccessToken"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + tokenColumns + `
			  FROM tokens t
			  JOIN users u ON u.uid = t.user_uid
			  WHERE t.access_token = $1 AND t.revoked = FALSE
			      AND t.access_token_expires_at > NOW()`
	pair, err := scanTokenPair(s.DB.QueryRowContext(ctx, query, accessToken))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return pair, nil
}

// UpdateAccessToken заменяет access токен пары, refresh токен остаётся прежним.
func (s *Storage) UpdateAccessToken(ctx context.Context, pairID int, accessToken string, expiresAt time.Time) error {
	const op = "storage.UpdateAccessToken"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE tokens
			  SET access_token = $1, access_token_expires_at = $2
			  WHERE id = $3 AND revoked = FALSE`
	res, err := s.DB.ExecContext(ctx, query, accessToken, expiresAt, pairID)
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

// RevokeByRefreshToken отзывает одну пару по refresh токену.
func (s *Storage) RevokeByRefreshToken(ctx context.Context, userUID, refreshToken string) error {
	const op = "storage.RevokeByRefreshToken"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE tokens
			  SET revoked = TRUE
			  WHERE user_uid = $1 AND refresh_token = $2 AND revoked = FALSE`
	res, err := s.DB.ExecContext(ctx, query, userUID, refreshToken)
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

// RevokeAllByUser отзывает все пары пользователя.
func (s *Storage) RevokeAllByUser(ctx context.Context, userUID string) error {
	const op = "storage.RevokeAllByUser"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE tokens SET revoked = TRUE WHERE user_uid = $1`
	if _, err := s.DB.ExecContext(ctx, query, userUID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
