package otp_test

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/helpmespeak/helpmespeak-backend/internal/config"
	"github.com/helpmespeak/helpmespeak-backend/internal/models"
	"github.com/helpmespeak/helpmespeak-backend/internal/services/otp"
)

// Мок для UserRepository
type UserRepoMock struct {
	mock.Mock
}

func (m *UserRepoMock) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *UserRepoMock) SetVerificationCode(ctx context.Context, userUID, code string, expiresAt time.Time) error {
	args := m.Called(ctx, userUID, code, expiresAt)
	return args.Error(0)
}

func (m *UserRepoMock) SetResetCode(ctx context.Context, userUID, code string, expiresAt time.Time) error {
	args := m.Called(ctx, userUID, code, expiresAt)
	return args.Error(0)
}

func (m *UserRepoMock) VerifyEmail(ctx context.Context, userUID string) error {
	args := m.Called(ctx, userUID)
	return args.Error(0)
}

func (m *UserRepoMock) ClearResetCode(ctx context.Context, userUID string) error {
	args := m.Called(ctx, userUID)
	return args.Error(0)
}

func (m *UserRepoMock) Set2FAEnabled(ctx context.Context, userUID string, enabled bool) error {
	args := m.Called(ctx, userUID, enabled)
	return args.Error(0)
}

// Мок для ResetSessionRepository
type SessionRepoMock struct {
	mock.Mock
}

func (m *SessionRepoMock) CreateResetSession(ctx context.Context, userUID string) (string, error) {
	args := m.Called(ctx, userUID)
	return args.String(0), args.Error(1)
}

// Мок для EmailSender
type SenderMock struct {
	mock.Mock
}

func (m *SenderMock) SendOTPEmail(email, code, purpose string) error {
	args := m.Called(email, code, purpose)
	return args.Error(0)
}

func newService(t *testing.T) (*otp.Service, *UserRepoMock, *SessionRepoMock, *SenderMock) {
	t.Helper()
	users := new(UserRepoMock)
	sessions := new(SessionRepoMock)
	sender := new(SenderMock)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.OTP{
		VerificationTTL: 5 * time.Minute,
		ResetTTL:        15 * time.Minute,
		ResetSessionTTL: 15 * time.Minute,
	}
	return otp.New(users, sessions, sender, cfg, logger), users, sessions, sender
}

func TestService_Issue(t *testing.T) {
	sixDigits := mock.MatchedBy(func(code string) bool {
		if len(code) != 6 {
			return false
		}
		for _, c := range code {
			if c < '0' || c > '9' {
				return false
			}
		}
		return true
	})

	t.Run("verification code is stored and emailed", func(t *testing.T) {
		svc, users, _, sender := newService(t)

		users.On("GetUserByEmail", mock.Anything, "user@example.com").
			Return(&models.User{UID: "uid-1", Email: "user@example.com"}, nil).Once()
		users.On("SetVerificationCode", mock.Anything, "uid-1", sixDigits, mock.Anything).
			Return(nil).Once()
		sender.On("SendOTPEmail", "user@example.com", sixDigits, models.OTPPurposeVerification).
			Return(nil).Once()

		err := svc.Issue(context.Background(), "user@example.com", models.OTPPurposeVerification)
		assert.NoError(t, err)
		users.AssertExpectations(t)
		sender.AssertExpectations(t)
	})

	t.Run("reset code uses reset slot", func(t *testing.T) {
		svc, users, _, sender := newService(t)

		users.On("GetUserByEmail", mock.Anything, "user@example.com").
			Return(&models.User{UID: "uid-1", Email: "user@example.com"}, nil).Once()
		users.On("SetResetCode", mock.Anything, "uid-1", sixDigits, mock.Anything).
			Return(nil).Once()
		sender.On("SendOTPEmail", "user@example.com", sixDigits, models.OTPPurposeReset).
			Return(nil).Once()

		err := svc.Issue(context.Background(), "user@example.com", models.OTPPurposeReset)
		assert.NoError(t, err)
		users.AssertExpectations(t)
		sender.AssertExpectations(t)
	})

	t.Run("unknown email does not reveal account absence", func(t *testing.T) {
		svc, users, _, sender := newService(t)

		users.On("GetUserByEmail", mock.Anything, "ghost@example.com").
			Return(nil, sql.ErrNoRows).Once()

		err := svc.Issue(context.Background(), "ghost@example.com", models.OTPPurposeVerification)
		assert.NoError(t, err)
		users.AssertExpectations(t)
		sender.AssertNotCalled(t, "SendOTPEmail", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("unknown purpose is rejected", func(t *testing.T) {
		svc, _, _, _ := newService(t)

		err := svc.Issue(context.Background(), "user@example.com", "backdoor")
		assert.ErrorIs(t, err, otp.ErrInvalidPurpose)
	})

	t.Run("verification purpose rejected for verified user", func(t *testing.T) {
		svc, users, _, sender := newService(t)

		users.On("GetUserByEmail", mock.Anything, "user@example.com").
			Return(&models.User{UID: "uid-1", Email: "user@example.com", IsEmailVerified: true}, nil).Once()

		err := svc.Issue(context.Background(), "user@example.com", models.OTPPurposeVerification)
		assert.ErrorIs(t, err, otp.ErrInvalidPurpose)
		sender.AssertNotCalled(t, "SendOTPEmail", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("2fa purpose rejected when 2fa is disabled", func(t *testing.T) {
		svc, users, _, sender := newService(t)

		users.On("GetUserByEmail", mock.Anything, "user@example.com").
			Return(&models.User{UID: "uid-1", Email: "user@example.com", IsEmailVerified: true}, nil).Once()

		err := svc.Issue(context.Background(), "user@example.com", models.OTPPurpose2FA)
		assert.ErrorIs(t, err, otp.ErrInvalidPurpose)
		sender.AssertNotCalled(t, "SendOTPEmail", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestService_Verify(t *testing.T) {
	future := time.Now().Add(3 * time.Minute)
	past := time.Now().Add(-time.Minute)

	t.Run("verification code confirms email", func(t *testing.T) {
		svc, users, _, _ := newService(t)

		users.On("GetUserByEmail", mock.Anything, "user@example.com").Return(&models.User{
			UID:                       "uid-1",
			Email:                     "user@example.com",
			VerificationCode:          "123456",
			VerificationCodeExpiresAt: &future,
		}, nil).Once()
		users.On("VerifyEmail", mock.Anything, "uid-1").Return(nil).Once()

		outcome, err := svc.Verify(context.Background(), "user@example.com", "123456")
		assert.NoError(t, err)
		assert.Equal(t, models.OTPPurposeVerification, outcome.Purpose)
		assert.Empty(t, outcome.ResetSessionToken)
		users.AssertExpectations(t)
	})

	t.Run("reset code opens a reset session", func(t *testing.T) {
		svc, users, sessions, _ := newService(t)

		users.On("GetUserByEmail", mock.Anything, "user@example.com").Return(&models.User{
			UID:                "uid-1",
			Email:              "user@example.com",
			ResetCode:          "654321",
			ResetCodeExpiresAt: &future,
		}, nil).Once()
		sessions.On("CreateResetSession", mock.Anything, "uid-1").
			Return("session-token", nil).Once()
		users.On("ClearResetCode", mock.Anything, "uid-1").Return(nil).Once()

		outcome, err := svc.Verify(context.Background(), "user@example.com", "654321")
		assert.NoError(t, err)
		assert.Equal(t, models.OTPPurposeReset, outcome.Purpose)
		assert.Equal(t, "session-token", outcome.ResetSessionToken)
		users.AssertExpectations(t)
		sessions.AssertExpectations(t)
	})

	t.Run("expired verification code is rejected", func(t *testing.T) {
		svc, users, _, _ := newService(t)

		users.On("GetUserByEmail", mock.Anything, "user@example.com").Return(&models.User{
			UID:                       "uid-1",
			VerificationCode:          "123456",
			VerificationCodeExpiresAt: &past,
		}, nil).Once()

		outcome, err := svc.Verify(context.Background(), "user@example.com", "123456")
		assert.ErrorIs(t, err, otp.ErrInvalidCode)
		assert.Nil(t, outcome)
		users.AssertExpectations(t)
	})

	t.Run("wrong code matches neither slot", func(t *testing.T) {
		svc, users, _, _ := newService(t)

		users.On("GetUserByEmail", mock.Anything, "user@example.com").Return(&models.User{
			UID:                       "uid-1",
			VerificationCode:          "123456",
			VerificationCodeExpiresAt: &future,
			ResetCode:                 "654321",
			ResetCodeExpiresAt:        &future,
		}, nil).Once()

		outcome, err := svc.Verify(context.Background(), "user@example.com", "000000")
		assert.ErrorIs(t, err, otp.ErrInvalidCode)
		assert.Nil(t, outcome)
		users.AssertExpectations(t)
	})

	t.Run("unknown email is rejected without detail", func(t *testing.T) {
		svc, users, _, _ := newService(t)

		users.On("GetUserByEmail", mock.Anything, "ghost@example.com").
			Return(nil, sql.ErrNoRows).Once()

		outcome, err := svc.Verify(context.Background(), "ghost@example.com", "123456")
		assert.ErrorIs(t, err, otp.ErrInvalidCode)
		assert.Nil(t, outcome)
		users.AssertExpectations(t)
	})
}

func TestService_Set2FA(t *testing.T) {
	svc, users, _, _ := newService(t)

	users.On("Set2FAEnabled", mock.Anything, "uid-1", true).Return(nil).Once()

	err := svc.Set2FA(context.Background(), "uid-1", true)
	assert.NoError(t, err)
	users.AssertExpectations(t)
}
