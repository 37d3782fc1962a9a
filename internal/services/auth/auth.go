// Package auth содержит бизнес-логику регистрации, входа и управления токенами.
package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/helpmespeak/helpmespeak-backend/internal/config"
	"github.com/helpmespeak/helpmespeak-backend/internal/lib/jwt"
	"github.com/helpmespeak/helpmespeak-backend/internal/lib/password"
	"github.com/helpmespeak/helpmespeak-backend/internal/lib/sl"
	"github.com/helpmespeak/helpmespeak-backend/internal/models"
)

// Ошибки бизнес-уровня. Обработчики отображают их в HTTP статусы.
var (
	ErrUserExists         = errors.New("user already exists")
	ErrAdminExists        = errors.New("admin account already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailNotVerified   = errors.New("email is not verified")
	ErrTwoFactorRequired  = errors.New("two-factor code required")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrSessionExpired     = errors.New("reset session expired")
	ErrNotFound           = errors.New("not found")
	ErrAdminImmutable     = errors.New("admin account cannot be deleted")
)

// UserRepository описывает контракт для работы с пользователями в базе данных.
type UserRepository interface {
	// CreateUser сохраняет пользователя вместе с профилем и возвращает его UID.
	CreateUser(ctx context.Context, user models.User, employeeID string) (string, error)
	// GetUserByEmail возвращает пользователя по email или ошибку, если не найден.
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	// GetUserByUID возвращает пользователя по UID.
	GetUserByUID(ctx context.Context, userUID string) (*models.User, error)
	// CountAdmins возвращает число администраторов.
	CountAdmins(ctx context.Context) (int, error)
	// UpdatePasswordHash обновляет хэш пароля.
	UpdatePasswordHash(ctx context.Context, userUID, passwordHash string) error
	// DeleteUser удаляет пользователя со всеми связанными данными.
	DeleteUser(ctx context.Context, userUID string) error
	// ClearVerificationCode очищает использованный код подтверждения.
	ClearVerificationCode(ctx context.Context, userUID string) error
	// ClearResetCode очищает использованный код сброса пароля.
	ClearResetCode(ctx context.Context, userUID string) error
	// GetProfileByUserUID возвращает профиль пользователя.
	GetProfileByUserUID(ctx context.Context, userUID string) (*models.Profile, error)
	// UpdateProfile обновляет поля профиля.
	UpdateProfile(ctx context.Context, profile models.Profile) error
}

// TokenRepository описывает контракт для работы с выданными токенами.
type TokenRepository interface {
	// CreateTokenPair сохраняет пару токенов и возвращает её ID.
	CreateTokenPair(ctx context.Context, pair models.TokenPair) (int, error)
	// DeleteTokensByUser удаляет все токены пользователя.
	DeleteTokensByUser(ctx context.Context, userUID string) error
	// FindByRefreshToken возвращает неотозванную пару по refresh токену.
	FindByRefreshToken(ctx context.Context, refreshToken string) (*models.TokenPair, error)
	// FindActiveByAccessToken возвращает живую пару по access токену.
	FindActiveByAccessToken(ctx context.Context, accessToken string) (*models.TokenPair, error)
	// UpdateAccessToken заменяет access токен пары.
	UpdateAccessToken(ctx context.Context, pairID int, accessToken string, expiresAt time.Time) error
	// RevokeByRefreshToken отзывает одну пару.
	RevokeByRefreshToken(ctx context.Context, userUID, refreshToken string) error
	// RevokeAllByUser отзывает все пары пользователя.
	RevokeAllByUser(ctx context.Context, userUID string) error
}

// ResetSessionRepository описывает контракт для сессий сброса пароля.
type ResetSessionRepository interface {
	// GetResetSession возвращает сессию по токену.
	GetResetSession(ctx context.Context, token string) (*models.PasswordResetSession, error)
	// DeleteResetSession удаляет сессию.
	DeleteResetSession(ctx context.Context, token string) error
}

// CodeIssuer выпускает и отправляет одноразовые коды.
type CodeIssuer interface {
	// Issue генерирует код с заданным назначением и отправляет его на почту.
	Issue(ctx context.Context, email, purpose string) error
}

// TrialStarter подключает пробный план новому пользователю.
type TrialStarter interface {
	StartTrial(ctx context.Context, userUID string) error
}

// Service реализует сценарии аутентификации.
type Service struct {
	users    UserRepository
	tokens   TokenRepository
	sessions ResetSessionRepository
	codes    CodeIssuer
	trials   TrialStarter
	jwtMaker jwt.Maker
	tokenCfg config.JWTToken
	otpCfg   config.OTP
	log      *slog.Logger
}

// New создает новый экземпляр Service.
func New(users UserRepository, tokens TokenRepository, sessions ResetSessionRepository,
	codes CodeIssuer, trials TrialStarter, jwtMaker jwt.Maker,
	tokenCfg config.JWTToken, otpCfg config.OTP, log *slog.Logger) *Service {
	return &Service{
		users:    users,
		tokens:   tokens,
		sessions: sessions,
		codes:    codes,
		trials:   trials,
		jwtMaker: jwtMaker,
		tokenCfg: tokenCfg,
		otpCfg:   otpCfg,
		log:      log,
	}
}

// LoginResult результат успешного входа.
type LoginResult struct {
	AccessToken  string
	RefreshToken string
	User         *models.User
}

// newEmployeeID выдает служебный идентификатор формата EMP + 8 hex символов.
func newEmployeeID() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "EMP" + strings.ToUpper(raw[:8])
}

// Register создает нового пользователя с ролью user и подключает пробный план.
// При sendVerificationOTP учётная запись остаётся неактивной до подтверждения
// почты, а сбой отправки письма с кодом возвращается вызывающему. Без флага
// учётная запись создается сразу подтверждённой и активной.
func (s *Service) Register(ctx context.Context, email, rawPassword, fullName, gender string, sendVerificationOTP bool) (string, error) {
	const op = "auth.Register"

	if _, err := s.users.GetUserByEmail(ctx, email); err == nil {
		return "", ErrUserExists
	} else if !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	hashed, err := password.GetHash(rawPassword)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	user := models.User{
		Email:           email,
		PasswordHash:    hashed,
		Role:            models.RoleUser,
		FullName:        fullName,
		Gender:          gender,
		IsEmailVerified: !sendVerificationOTP,
		IsActive:        !sendVerificationOTP,
	}
	uid, err := s.users.CreateUser(ctx, user, newEmployeeID())
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	if err := s.trials.StartTrial(ctx, uid); err != nil {
		s.log.Error("failed to start trial", slog.String("uid", uid), sl.Err(err))
	}
	if sendVerificationOTP {
		if err := s.codes.Issue(ctx, email, models.OTPPurposeVerification); err != nil {
			return "", fmt.Errorf("%s: %w", op, err)
		}
	}

	s.log.Info("registered new user", slog.String("uid", uid))
	return uid, nil
}

// InitialAdminSignup создает первого администратора. Повторный вызов
// отклоняется, пока в системе есть хотя бы один администратор.
// Администратор создается сразу подтверждённым и активным.
func (s *Service) InitialAdminSignup(ctx context.Context, email, rawPassword, fullName string) (string, error) {
	const op = "auth.InitialAdminSignup"

	count, err := s.users.CountAdmins(ctx)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if count > 0 {
		return "", ErrAdminExists
	}
	if _, err := s.users.GetUserByEmail(ctx, email); err == nil {
		return "", ErrUserExists
	} else if !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	hashed, err := password.GetHash(rawPassword)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	user := models.User{
		Email:           email,
		PasswordHash:    hashed,
		Role:            models.RoleAdmin,
		FullName:        fullName,
		IsEmailVerified: true,
		IsActive:        true,
	}
	uid, err := s.users.CreateUser(ctx, user, newEmployeeID())
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("created initial admin", slog.String("uid", uid))
	return uid, nil
}

// issueTokenPair удаляет старые токены пользователя и выпускает новую пару.
// В хранилище в каждый момент живёт не больше одной пары на пользователя.
func (s *Service) issueTokenPair(ctx context.Context, user *models.User, rememberMe bool) (*LoginResult, error) {
	const op = "auth.issueTokenPair"

	refreshTTL := s.tokenCfg.RefreshTokenTTL
	if rememberMe {
		refreshTTL = s.tokenCfg.RememberMeTokenTTL
	}
	accessToken, err := s.jwtMaker.GenerateToken(user.Email, user.Role, user.UID, s.tokenCfg.AccessTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	refreshToken, err := s.jwtMaker.GenerateToken(user.Email, user.Role, user.UID, refreshTTL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := s.tokens.DeleteTokensByUser(ctx, user.UID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	now := time.Now().UTC()
	pair := models.TokenPair{
		UserUID:               user.UID,
		AccessToken:           accessToken,
		AccessTokenExpiresAt:  now.Add(s.tokenCfg.AccessTokenTTL),
		RefreshToken:          refreshToken,
		RefreshTokenExpiresAt: now.Add(refreshTTL),
	}
	if _, err := s.tokens.CreateTokenPair(ctx, pair); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &LoginResult{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		User:         user,
	}, nil
}

// Login проверяет пароль и выпускает пару токенов. Неподтверждённая почта
// отклоняется отдельной ошибкой. При включенной двухфакторной аутентификации
// пара не выпускается: на почту уходит код, а вызывающему возвращается
// ErrTwoFactorRequired.
func (s *Service) Login(ctx context.Context, email, rawPassword string, rememberMe bool) (*LoginResult, error) {
	const op = "auth.Login"

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := password.CompareHash(user.PasswordHash, rawPassword); err != nil {
		return nil, ErrInvalidCredentials
	}
	if !user.IsEmailVerified {
		return nil, ErrEmailNotVerified
	}
	if !user.IsActive {
		return nil, ErrInvalidCredentials
	}

	if user.Is2FAEnabled {
		if err := s.codes.Issue(ctx, user.Email, models.OTPPurpose2FA); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		return nil, ErrTwoFactorRequired
	}

	return s.issueTokenPair(ctx, user, rememberMe)
}

// Complete2FALogin завершает вход с двухфакторной аутентификацией: сверяет код,
// очищает его и выпускает пару токенов.
func (s *Service) Complete2FALogin(ctx context.Context, email, code string, rememberMe bool) (*LoginResult, error) {
	const op = "auth.Complete2FALogin"

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if user.VerificationCode == "" || user.VerificationCode != code {
		return nil, ErrInvalidCredentials
	}
	if user.VerificationCodeExpiresAt == nil || time.Now().After(*user.VerificationCodeExpiresAt) {
		return nil, ErrInvalidCredentials
	}
	if err := s.users.ClearVerificationCode(ctx, user.UID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return s.issueTokenPair(ctx, user, rememberMe)
}

// SocialLogin выполняет вход через внешнего провайдера. Пользователь создается
// при первом входе сразу подтверждённым, двухфакторная проверка не применяется.
// Для Apple при скрытой почте используется адрес вида sub@privaterelay.appleid.com.
// Обновление аватара не критично: его сбой логируется и не срывает вход.
func (s *Service) SocialLogin(ctx context.Context, provider, subject, email, fullName, avatarURL string) (*LoginResult, error) {
	const op = "auth.SocialLogin"

	if email == "" && provider == "apple" {
		email = subject + "@privaterelay.appleid.com"
	}
	if email == "" {
		return nil, ErrInvalidCredentials
	}

	user, err := s.users.GetUserByEmail(ctx, email)
	if errors.Is(err, sql.ErrNoRows) {
		hashed, hashErr := password.GetHash(uuid.NewString())
		if hashErr != nil {
			return nil, fmt.Errorf("%s: %w", op, hashErr)
		}
		newUser := models.User{
			Email:           email,
			PasswordHash:    hashed,
			Role:            models.RoleUser,
			FullName:        fullName,
			IsEmailVerified: true,
			IsActive:        true,
		}
		uid, createErr := s.users.CreateUser(ctx, newUser, newEmployeeID())
		if createErr != nil {
			return nil, fmt.Errorf("%s: %w", op, createErr)
		}
		if trialErr := s.trials.StartTrial(ctx, uid); trialErr != nil {
			s.log.Error("failed to start trial", slog.String("uid", uid), sl.Err(trialErr))
		}
		user, err = s.users.GetUserByUID(ctx, uid)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		s.log.Info("registered user via social login",
			slog.String("uid", uid), slog.String("provider", provider))
	} else if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if avatarURL != "" {
		if profile, profErr := s.users.GetProfileByUserUID(ctx, user.UID); profErr != nil {
			s.log.Error("failed to load profile for avatar update",
				slog.String("uid", user.UID), sl.Err(profErr))
		} else {
			profile.AvatarURL = avatarURL
			if updErr := s.users.UpdateProfile(ctx, *profile); updErr != nil {
				s.log.Error("failed to update avatar",
					slog.String("uid", user.UID), sl.Err(updErr))
			}
		}
	}

	return s.issueTokenPair(ctx, user, false)
}

// Refresh выпускает новый access токен по действующему refresh токену
// и возвращает его вместе со сроком жизни. Refresh токен остаётся прежним.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (string, time.Duration, error) {
	const op = "auth.Refresh"

	pair, err := s.tokens.FindByRefreshToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", 0, ErrUnauthorized
		}
		return "", 0, fmt.Errorf("%s: %w", op, err)
	}
	if time.Now().After(pair.RefreshTokenExpiresAt) {
		return "", 0, ErrUnauthorized
	}

	user, err := s.users.GetUserByUID(ctx, pair.UserUID)
	if err != nil {
		return "", 0, fmt.Errorf("%s: %w", op, err)
	}
	accessToken, err := s.jwtMaker.GenerateToken(user.Email, user.Role, user.UID, s.tokenCfg.AccessTokenTTL)
	if err != nil {
		return "", 0, fmt.Errorf("%s: %w", op, err)
	}
	expiresAt := time.Now().UTC().Add(s.tokenCfg.AccessTokenTTL)
	if err := s.tokens.UpdateAccessToken(ctx, pair.ID, accessToken, expiresAt); err != nil {
		return "", 0, fmt.Errorf("%s: %w", op, err)
	}
	return accessToken, s.tokenCfg.AccessTokenTTL, nil
}

// Revoke отзывает пару по refresh токену либо все пары пользователя при all.
func (s *Service) Revoke(ctx context.Context, userUID, refreshToken string, all bool) error {
	const op = "auth.Revoke"

	if all {
		if err := s.tokens.RevokeAllByUser(ctx, userUID); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		return nil
	}
	if err := s.tokens.RevokeByRefreshToken(ctx, userUID, refreshToken); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// ChangePassword меняет пароль после проверки старого и отзывает все токены.
func (s *Service) ChangePassword(ctx context.Context, userUID, oldPassword, newPassword string) error {
	const op = "auth.ChangePassword"

	user, err := s.users.GetUserByUID(ctx, userUID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := password.CompareHash(user.PasswordHash, oldPassword); err != nil {
		return ErrInvalidCredentials
	}
	hashed, err := password.GetHash(newPassword)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := s.users.UpdatePasswordHash(ctx, userUID, hashed); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := s.tokens.RevokeAllByUser(ctx, userUID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("password changed", slog.String("uid", userUID))
	return nil
}

// ResetPassword завершает сброс пароля по одноразовой сессии. Истёкшая сессия
// удаляется и отклоняется. Успешный сброс удаляет сессию, очищает код сброса
// и отзывает все токены пользователя.
func (s *Service) ResetPassword(ctx context.Context, sessionToken, newPassword string) error {
	const op = "auth.ResetPassword"

	session, err := s.sessions.GetResetSession(ctx, sessionToken)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrUnauthorized
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	if time.Now().After(session.CreatedAt.Add(s.otpCfg.ResetSessionTTL)) {
		if delErr := s.sessions.DeleteResetSession(ctx, sessionToken); delErr != nil {
			s.log.Error("failed to delete expired reset session", sl.Err(delErr))
		}
		return ErrSessionExpired
	}

	hashed, err := password.GetHash(newPassword)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := s.users.UpdatePasswordHash(ctx, session.UserUID, hashed); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := s.sessions.DeleteResetSession(ctx, sessionToken); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := s.users.ClearResetCode(ctx, session.UserUID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := s.tokens.RevokeAllByUser(ctx, session.UserUID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("password reset completed", slog.String("uid", session.UserUID))
	return nil
}

// DeleteAccount удаляет учётную запись после проверки пароля.
// Токены, профиль, сессии и подписка удаляются каскадно.
func (s *Service) DeleteAccount(ctx context.Context, userUID, rawPassword string) error {
	const op = "auth.DeleteAccount"

	user, err := s.users.GetUserByUID(ctx, userUID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if user.Role == models.RoleAdmin {
		return ErrAdminImmutable
	}
	if err := password.CompareHash(user.PasswordHash, rawPassword); err != nil {
		return ErrInvalidCredentials
	}
	if err := s.tokens.RevokeAllByUser(ctx, userUID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := s.users.DeleteUser(ctx, userUID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("account deleted", slog.String("uid", userUID))
	return nil
}

// ValidateAccess проверяет подпись access токена и его строку в хранилище.
// Отозванный или истёкший токен не аутентифицирует запрос, даже если его
// подпись корректна.
func (s *Service) ValidateAccess(ctx context.Context, accessToken string) (*jwt.CustomClaims, error) {
	const op = "auth.ValidateAccess"

	claims, err := s.jwtMaker.ParseToken(accessToken)
	if err != nil {
		return nil, ErrUnauthorized
	}
	if _, err := s.tokens.FindActiveByAccessToken(ctx, accessToken); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return claims, nil
}
