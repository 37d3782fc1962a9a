// Package otp содержит бизнес-логику выпуска и проверки одноразовых кодов.
package otp

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/helpmespeak/helpmespeak-backend/internal/config"
	"github.com/helpmespeak/helpmespeak-backend/internal/lib/otp"
	"github.com/helpmespeak/helpmespeak-backend/internal/models"
)

// Ошибки бизнес-уровня.
var (
	ErrInvalidCode    = errors.New("invalid or expired code")
	ErrInvalidPurpose = errors.New("unknown code purpose")
)

// UserRepository описывает контракт для хранения одноразовых кодов на пользователе.
type UserRepository interface {
	// GetUserByEmail возвращает пользователя по email.
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	// SetVerificationCode записывает код подтверждения почты или 2FA.
	SetVerificationCode(ctx context.Context, userUID, code string, expiresAt time.Time) error
	// SetResetCode записывает код сброса пароля.
	SetResetCode(ctx context.Context, userUID, code string, expiresAt time.Time) error
	// VerifyEmail подтверждает почту и очищает использованный код.
	VerifyEmail(ctx context.Context, userUID string) error
	// ClearResetCode очищает использованный код сброса.
	ClearResetCode(ctx context.Context, userUID string) error
	// Set2FAEnabled переключает двухфакторную аутентификацию.
	Set2FAEnabled(ctx context.Context, userUID string, enabled bool) error
}

// ResetSessionRepository создает одноразовые сессии сброса пароля.
type ResetSessionRepository interface {
	CreateResetSession(ctx context.Context, userUID string) (string, error)
}

// EmailSender отправляет письма с одноразовыми кодами.
type EmailSender interface {
	SendOTPEmail(email, code, purpose string) error
}

// Service реализует выпуск и проверку одноразовых кодов.
type Service struct {
	users    UserRepository
	sessions ResetSessionRepository
	sender   EmailSender
	cfg      config.OTP
	log      *slog.Logger
}

// New создает новый экземпляр Service.
func New(users UserRepository, sessions ResetSessionRepository, sender EmailSender,
	cfg config.OTP, log *slog.Logger) *Service {
	return &Service{
		users:    users,
		sessions: sessions,
		sender:   sender,
		cfg:      cfg,
		log:      log,
	}
}

// Outcome результат успешной проверки кода. Для кода сброса пароля содержит
// токен одноразовой сессии, которым завершается смена пароля.
type Outcome struct {
	Purpose           string
	ResetSessionToken string
}

// Issue генерирует код с заданным назначением, сохраняет его на пользователе
// и отправляет письмом. Неизвестный email не является ошибкой: ответ не должен
// раскрывать существование учётной записи.
func (s *Service) Issue(ctx context.Context, email, purpose string) error {
	const op = "otp.Issue"

	var ttl time.Duration
	switch purpose {
	case models.OTPPurposeVerification, models.OTPPurpose2FA:
		ttl = s.cfg.VerificationTTL
	case models.OTPPurposeReset:
		ttl = s.cfg.ResetTTL
	default:
		return ErrInvalidPurpose
	}

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.log.Info("otp requested for unknown email", slog.String("purpose", purpose))
			return nil
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	switch purpose {
	case models.OTPPurposeVerification:
		if user.IsEmailVerified {
			return ErrInvalidPurpose
		}
	case models.OTPPurpose2FA:
		if !user.Is2FAEnabled {
			return ErrInvalidPurpose
		}
	}

	code, err := otp.GenerateCode()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	expiresAt := time.Now().UTC().Add(ttl)

	switch purpose {
	case models.OTPPurposeReset:
		err = s.users.SetResetCode(ctx, user.UID, code, expiresAt)
	default:
		err = s.users.SetVerificationCode(ctx, user.UID, code, expiresAt)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := s.sender.SendOTPEmail(user.Email, code, purpose); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("issued otp code",
		slog.String("uid", user.UID), slog.String("purpose", purpose))
	return nil
}

// Verify сверяет код с обоими слотами пользователя. Сначала проверяется слот
// подтверждения почты, затем слот сброса пароля. Совпавший код очищается сразу,
// повторная проверка того же кода невозможна. Для кода сброса создается
// одноразовая сессия смены пароля.
func (s *Service) Verify(ctx context.Context, email, code string) (*Outcome, error) {
	const op = "otp.Verify"

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvalidCode
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	now := time.Now()
	if user.VerificationCode != "" && user.VerificationCode == code {
		if user.VerificationCodeExpiresAt == nil || now.After(*user.VerificationCodeExpiresAt) {
			return nil, ErrInvalidCode
		}
		if err := s.users.VerifyEmail(ctx, user.UID); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		s.log.Info("email verified", slog.String("uid", user.UID))
		return &Outcome{Purpose: models.OTPPurposeVerification}, nil
	}

	if user.ResetCode != "" && user.ResetCode == code {
		if user.ResetCodeExpiresAt == nil || now.After(*user.ResetCodeExpiresAt) {
			return nil, ErrInvalidCode
		}
		token, err := s.sessions.CreateResetSession(ctx, user.UID)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if err := s.users.ClearResetCode(ctx, user.UID); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		s.log.Info("reset code verified", slog.String("uid", user.UID))
		return &Outcome{
			Purpose:           models.OTPPurposeReset,
			ResetSessionToken: token,
		}, nil
	}

	return nil, ErrInvalidCode
}

// Set2FA переключает двухфакторную аутентификацию пользователя.
func (s *Service) Set2FA(ctx context.Context, userUID string, enabled bool) error {
	const op = "otp.Set2FA"

	if err := s.users.Set2FAEnabled(ctx, userUID, enabled); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("2fa toggled", slog.String("uid", userUID), slog.Bool("enabled", enabled))
	return nil
}
