package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/helpmespeak/helpmespeak-backend/internal/models"
)

const userColumns = `uid, email, password_hash, role, full_name, gender,
			      is_email_verified, is_active, is_2fa_enabled,
			      verification_code, verification_code_expires_at,
			      reset_code, reset_code_expires_at, created_at`

func scanUser(row *sql.Row) (*models.User, error) {
	u := &models.User{}
	var verificationExpires, resetExpires sql.NullTime
	if err := row.Scan(&u.UID, &u.Email, &u.PasswordHash, &u.Role, &u.FullName,
		&u.Gender, &u.IsEmailVerified, &u.IsActive, &u.Is2FAEnabled,
		&u.VerificationCode, &verificationExpires,
		&u.ResetCode, &resetExpires, &u.CreatedAt); err != nil {
		return nil, err
	}
	if verificationExpires.Valid {
		u.VerificationCodeExpiresAt = &verificationExpires.Time
	}
	if resetExpires.Valid {
		u.ResetCodeExpiresAt = &resetExpires.Time
	}
	return u, nil
}

// CreateUser сохраняет нового пользователя вместе с профилем в одной транзакции
// и возвращает его UID.
func (s *Storage) CreateUser(ctx context.Context, user models.User, employeeID string) (string, error) {
	const op = "storage.CreateUser"
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

	var newUID string
	query := `INSERT INTO users (email, password_hash, role, full_name, gender,
			      is_email_verified, is_active, is_2fa_enabled)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			  RETURNING uid;`
	if err := tx.QueryRowContext(ctx, query,
		user.Email, user.PasswordHash, user.Role, user.FullName, user.Gender,
		user.IsEmailVerified, user.IsActive, user.Is2FAEnabled).Scan(&newUID); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	query = `INSERT INTO profiles (user_uid, employee_id)
			 VALUES ($1, $2);`
	if _, err := tx.ExecContext(ctx, query, newUID, employeeID); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return newUID, nil
}

// GetUserByEmail возвращает пользователя по его email.
func (s *Storage) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	const op = "storage.GetUserByEmail"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + userColumns + `
			  FROM users
			  WHERE email = $1`
	u, err := scanUser(s.DB.QueryRowContext(ctx, query, email))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

// GetUserByUID возвращает пользователя по его UID.
func (s *Storage) GetUserByUID(ctx context.Context, userUID string) (*models.User, error) {
	const op = "storage.GetUserByUID"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + userColumns + `
			  FROM users
			  WHERE uid = $1`
	u, err := scanUser(s.DB.QueryRowContext(ctx, query, userUID))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

// CountAdmins возвращает число администраторов.
func (s *Storage) CountAdmins(ctx context.Context) (int, error) {
	const op = "storage.CountAdmins"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	var count int
	query := `SELECT COUNT(*) FROM users WHERE role = $1`
	if err := s.DB.QueryRowContext(ctx, query, models.RoleAdmin).Scan(&count); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return count, nil
}

// UpdatePasswordHash обновляет хэш пароля пользователя.
func (s *Storage) UpdatePasswordHash(ctx context.Context, userUID, passwordHash string) error {
	const op = "storage.UpdatePasswordHash"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE users SET password_hash = $1 WHERE uid = $2`
	res, err := s.DB.ExecContext(ctx, query, passwordHash, userUID)
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

// UpdateUserInfo обновляет отображаемые данные учётной записи.
func (s *Storage) UpdateUserInfo(ctx context.Context, userUID, fullName, gender string) error {
	const op = "storage.UpdateUserInfo"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE users SET full_name = $1, gender = $2 WHERE uid = $3`
	res, err := s.DB.ExecContext(ctx, query, fullName, gender, userUID)
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

// DeleteUser удаляет пользователя. Профиль, токены, сессии сброса и подписка
// удаляются каскадно на уровне схемы.
func (s *Storage) DeleteUser(ctx context.Context, userUID string) error {
	const op = "storage.DeleteUser"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `DELETE FROM users WHERE uid = $1`
	res, err := s.DB.ExecContext(ctx, query, userUID)
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

// SetVerificationCode записывает код подтверждения почты на пользователя
// и зеркалирует его на активные строки токенов в одной транзакции.
func (s *Storage) SetVerificationCode(ctx context.Context, userUID, code string, expiresAt time.Time) error {
	const op = "storage.SetVerificationCode"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	query := `UPDATE users
			  SET verification_code = $1, verification_code_expires_at = $2
			  WHERE uid = $3`
	if _, err := tx.ExecContext(ctx, query, code, expiresAt, userUID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	query = `UPDATE tokens
			 SET otp = $1, otp_expires_at = $2
			 WHERE user_uid = $3 AND revoked = FALSE`
	if _, err := tx.ExecContext(ctx, query, code, expiresAt, userUID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// SetResetCode записывает код сброса пароля на пользователя
// и зеркалирует его на активные строки токенов в одной транзакции.
func (s *Storage) SetResetCode(ctx context.Context, userUID, code string, expiresAt time.Time) error {
	const op = "storage.SetResetCode"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	query := `UPDATE users
			  SET reset_code = $1, reset_code_expires_at = $2
			  WHERE uid = $3`
	if _, err := tx.ExecContext(ctx, query, code, expiresAt, userUID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	query = `UPDATE tokens
			 SET otp = $1, otp_expires_at = $2
			 WHERE user_uid = $3 AND revoked = FALSE`
	if _, err := tx.ExecContext(ctx, query, code, expiresAt, userUID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// VerifyEmail помечает почту подтверждённой, активирует учётную запись
// и очищает использованный код подтверждения вместе с его зеркалом.
func (s *Storage) VerifyEmail(ctx context.Context, userUID string) error {
	const op = "storage.VerifyEmail"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	query := `UPDATE users
			  SET is_email_verified = TRUE, is_active = TRUE,
			      verification_code = '', verification_code_expires_at = NULL
			  WHERE uid = $1`
	if _, err := tx.ExecContext(ctx, query, userUID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	query = `UPDATE tokens
			 SET otp = '', otp_expires_at = NULL
			 WHERE user_uid = $1`
	if _, err := tx.ExecContext(ctx, query, userUID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// ClearVerificationCode очищает использованный код подтверждения и его зеркало
// без изменения статуса почты. Используется после успешной проверки кода 2FA.
func (s *Storage) ClearVerificationCode(ctx context.Context, userUID string) error {
	const op = "storage.ClearVerificationCode"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	query := `UPDATE users
			  SET verification_code = '', verification_code_expires_at = NULL
			  WHERE uid = $1`
	if _, err := tx.ExecContext(ctx, query, userUID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	query = `UPDATE tokens
			 SET otp = '', otp_expires_at = NULL
			 WHERE user_uid = $1`
	if _, err := tx.ExecContext(ctx, query, userUID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// ClearResetCode очищает использованный код сброса пароля и его зеркало.
func (s *Storage) ClearResetCode(ctx context.Context, userUID string) error {
	const op = "storage.ClearResetCode"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	query := `UPDATE users
			  SET reset_code = '', reset_code_expires_at = NULL
			  WHERE uid = $1`
	if _, err := tx.ExecContext(ctx, query, userUID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	query = `UPDATE tokens
			 SET otp = '', otp_expires_at = NULL
			 WHERE user_uid = $1`
	if _, err := tx.ExecContext(ctx, query, userUID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Set2FAEnabled переключает двухфакторную аутентификацию пользователя.
func (s *Storage) Set2FAEnabled(ctx context.Context, userUID string, enabled bool) error {
	const op = "storage.Set2FAEnabled"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE users SET is_2fa_enabled = $1 WHERE uid = $2`
	res, err := s.DB.ExecContext(ctx, query, enabled, userUID)
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

// GetProfileByUserUID возвращает профиль пользователя.
func (s *Storage) GetProfileByUserUID(ctx context.Context, userUID string) (*models.Profile, error) {
	const op = "storage.GetProfileByUserUID"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT user_uid, employee_id, phone, avatar_url, created_at, updated_at
			  FROM profiles
			  WHERE user_uid = $1`
	p := &models.Profile{}
	row := s.DB.QueryRowContext(ctx, query, userUID)
	if err := row.Scan(&p.UserUID, &p.EmployeeID, &p.Phone, &p.AvatarURL,
		&p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return p, nil
}

// UpdateProfile обновляет телефон и аватар профиля.
func (s *Storage) UpdateProfile(ctx context.Context, profile models.Profile) error {
	const op = "storage.UpdateProfile"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE profiles
			  SET phone = $1, avatar_url = $2, updated_at = NOW()
			  WHERE user_uid = $3`
	res, err := s.DB.ExecContext(ctx, query, profile.Phone, profile.AvatarURL, profile.UserUID)
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
