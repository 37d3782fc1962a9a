package subscription_test

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
	"github.com/helpmespeak/helpmespeak-backend/internal/receipts"
	"github.com/helpmespeak/helpmespeak-backend/internal/services/subscription"
)

// Мок для Repository
type RepoMock struct {
	mock.Mock
}

func (m *RepoMock) ListActivePlans(ctx context.Context) ([]*models.Plan, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Plan), args.Error(1)
}

func (m *RepoMock) GetTrialPlan(ctx context.Context) (*models.Plan, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Plan), args.Error(1)
}

func (m *RepoMock) GetActivePlanByProductID(ctx context.Context, productID string) (*models.Plan, error) {
	args := m.Called(ctx, productID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Plan), args.Error(1)
}

func (m *RepoMock) CreateSubscription(ctx context.Context, sub models.Subscription) (int, error) {
	args := m.Called(ctx, sub)
	return args.Int(0), args.Error(1)
}

func (m *RepoMock) GetSubscriptionByUser(ctx context.Context, userUID string) (*models.Subscription, error) {
	args := m.Called(ctx, userUID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Subscription), args.Error(1)
}

func (m *RepoMock) UpdateSubscription(ctx context.Context, sub models.Subscription) error {
	args := m.Called(ctx, sub)
	return args.Error(0)
}

func (m *RepoMock) UpdateSubscriptionStatus(ctx context.Context, subscriptionID int, status string) error {
	args := m.Called(ctx, subscriptionID, status)
	return args.Error(0)
}

// Мок для Cache
type CacheMock struct {
	mock.Mock
}

func (m *CacheMock) Get(key string, result any) (bool, error) {
	args := m.Called(key, result)
	return args.Bool(0), args.Error(1)
}

func (m *CacheMock) Set(key string, value any, expiration time.Duration) error {
	args := m.Called(key, value, expiration)
	return args.Error(0)
}

func (m *CacheMock) Invalidate(key string) error {
	args := m.Called(key)
	return args.Error(0)
}

// Мок для ReceiptVerifier
type VerifierMock struct {
	mock.Mock
}

func (m *VerifierMock) Verify(ctx context.Context, platform, receipt string) (*receipts.Result, error) {
	args := m.Called(ctx, platform, receipt)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*receipts.Result), args.Error(1)
}

func newService(t *testing.T) (*subscription.Service, *RepoMock, *CacheMock, *VerifierMock) {
	t.Helper()
	repo := new(RepoMock)
	cache := new(CacheMock)
	verifier := new(VerifierMock)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.Subscription{TrialPeriodDays: 7}
	return subscription.New(repo, cache, verifier, cfg, logger), repo, cache, verifier
}

func TestService_StartTrial(t *testing.T) {
	t.Run("uses trial plan duration from catalog", func(t *testing.T) {
		svc, repo, _, _ := newService(t)

		repo.On("GetTrialPlan", mock.Anything).Return(&models.Plan{
			ID:           1,
			Name:         "trial",
			DurationDays: 14,
		}, nil).Once()
		repo.On("CreateSubscription", mock.Anything, mock.MatchedBy(func(sub models.Subscription) bool {
			if sub.Status != models.SubscriptionStatusTrial || sub.PlanID == nil || *sub.PlanID != 1 {
				return false
			}
			wantRenewal := sub.StartDate.AddDate(0, 0, 14)
			return sub.RenewalDate != nil && sub.RenewalDate.Equal(wantRenewal)
		})).Return(1, nil).Once()

		err := svc.StartTrial(context.Background(), "uid-1")
		assert.NoError(t, err)
		repo.AssertExpectations(t)
	})

	t.Run("missing trial plan falls back to configured period", func(t *testing.T) {
		svc, repo, _, _ := newService(t)

		repo.On("GetTrialPlan", mock.Anything).Return(nil, sql.ErrNoRows).Once()
		repo.On("CreateSubscription", mock.Anything, mock.MatchedBy(func(sub models.Subscription) bool {
			wantRenewal := sub.StartDate.AddDate(0, 0, 7)
			return sub.PlanID == nil && sub.RenewalDate != nil && sub.RenewalDate.Equal(wantRenewal)
		})).Return(1, nil).Once()

		err := svc.StartTrial(context.Background(), "uid-1")
		assert.NoError(t, err)
		repo.AssertExpectations(t)
	})
}

func TestService_Activate(t *testing.T) {
	expiresAt := time.Now().UTC().Add(30 * 24 * time.Hour)

	t.Run("valid receipt upgrades existing subscription", func(t *testing.T) {
		svc, repo, cache, verifier := newService(t)

		verifier.On("Verify", mock.Anything, models.PlatformApple, "receipt-data").
			Return(&receipts.Result{
				Valid:     true,
				ProductID: "com.helpmespeak.premium.monthly",
				ExpiresAt: &expiresAt,
			}, nil).Once()
		repo.On("GetActivePlanByProductID", mock.Anything, "com.helpmespeak.premium.monthly").
			Return(&models.Plan{ID: 2, Name: "monthly", Price: 9.99}, nil).Once()
		repo.On("GetSubscriptionByUser", mock.Anything, "uid-1").
			Return(&models.Subscription{ID: 5, UserUID: "uid-1", Status: models.SubscriptionStatusTrial}, nil).Once()
		repo.On("UpdateSubscription", mock.Anything, mock.MatchedBy(func(sub models.Subscription) bool {
			return sub.ID == 5 &&
				sub.Status == models.SubscriptionStatusActive &&
				sub.RenewalDate.Equal(expiresAt) &&
				sub.LatestReceiptToken == "receipt-data" &&
				sub.Platform == models.PlatformApple
		})).Return(nil).Once()
		cache.On("Invalidate", "subscription:check:uid-1").Return(nil).Once()

		sub, err := svc.Activate(context.Background(), "uid-1", models.PlatformApple, "receipt-data")
		assert.NoError(t, err)
		assert.Equal(t, models.SubscriptionStatusActive, sub.Status)
		assert.Equal(t, "monthly", sub.PlanName)
		repo.AssertExpectations(t)
		cache.AssertExpectations(t)
		verifier.AssertExpectations(t)
	})

	t.Run("free plan yields trial with trial period renewal", func(t *testing.T) {
		svc, repo, cache, verifier := newService(t)

		verifier.On("Verify", mock.Anything, models.PlatformGoogle, "receipt-data").
			Return(&receipts.Result{
				Valid:     true,
				ProductID: "com.helpmespeak.free",
				ExpiresAt: &expiresAt,
			}, nil).Once()
		repo.On("GetActivePlanByProductID", mock.Anything, "com.helpmespeak.free").
			Return(&models.Plan{ID: 3, Name: "free", Price: 0, DurationDays: 30}, nil).Once()
		repo.On("GetSubscriptionByUser", mock.Anything, "uid-1").
			Return(nil, sql.ErrNoRows).Once()
		repo.On("CreateSubscription", mock.Anything, mock.MatchedBy(func(sub models.Subscription) bool {
			if sub.Status != models.SubscriptionStatusTrial {
				return false
			}
			wantRenewal := sub.StartDate.AddDate(0, 0, 7)
			return sub.RenewalDate != nil && sub.RenewalDate.Equal(wantRenewal)
		})).Return(8, nil).Once()
		cache.On("Invalidate", "subscription:check:uid-1").Return(nil).Once()

		sub, err := svc.Activate(context.Background(), "uid-1", models.PlatformGoogle, "receipt-data")
		assert.NoError(t, err)
		assert.Equal(t, models.SubscriptionStatusTrial, sub.Status)
		repo.AssertExpectations(t)
	})

	t.Run("invalid receipt is rejected", func(t *testing.T) {
		svc, _, _, verifier := newService(t)

		verifier.On("Verify", mock.Anything, models.PlatformGoogle, "bad-receipt").
			Return(&receipts.Result{Valid: false}, nil).Once()

		sub, err := svc.Activate(context.Background(), "uid-1", models.PlatformGoogle, "bad-receipt")
		assert.ErrorIs(t, err, subscription.ErrInvalidReceipt)
		assert.Nil(t, sub)
		verifier.AssertExpectations(t)
	})

	t.Run("unknown product is rejected", func(t *testing.T) {
		svc, repo, _, verifier := newService(t)

		verifier.On("Verify", mock.Anything, models.PlatformApple, "receipt-data").
			Return(&receipts.Result{Valid: true, ProductID: "com.other.app"}, nil).Once()
		repo.On("GetActivePlanByProductID", mock.Anything, "com.other.app").
			Return(nil, sql.ErrNoRows).Once()

		sub, err := svc.Activate(context.Background(), "uid-1", models.PlatformApple, "receipt-data")
		assert.ErrorIs(t, err, subscription.ErrUnknownProduct)
		assert.Nil(t, sub)
		repo.AssertExpectations(t)
	})
}

func TestService_IsActiveAndValid(t *testing.T) {
	future := time.Now().Add(24 * time.Hour)
	past := time.Now().Add(-24 * time.Hour)

	tests := []struct {
		name       string
		setupMocks func(repo *RepoMock)
		wantValid  bool
	}{
		{
			name: "active subscription before renewal",
			setupMocks: func(repo *RepoMock) {
				repo.On("GetSubscriptionByUser", mock.Anything, "uid-1").
					Return(&models.Subscription{
						ID:          1,
						Status:      models.SubscriptionStatusActive,
						RenewalDate: &future,
					}, nil).Once()
			},
			wantValid: true,
		},
		{
			name: "cancelled subscription is invalid immediately",
			setupMocks: func(repo *RepoMock) {
				repo.On("GetSubscriptionByUser", mock.Anything, "uid-1").
					Return(&models.Subscription{
						ID:          1,
						Status:      models.SubscriptionStatusCancelled,
						RenewalDate: &future,
					}, nil).Once()
			},
			wantValid: false,
		},
		{
			name: "past renewal expires lazily",
			setupMocks: func(repo *RepoMock) {
				repo.On("GetSubscriptionByUser", mock.Anything, "uid-1").
					Return(&models.Subscription{
						ID:          1,
						Status:      models.SubscriptionStatusActive,
						RenewalDate: &past,
					}, nil).Once()
				repo.On("UpdateSubscriptionStatus", mock.Anything, 1, models.SubscriptionStatusExpired).
					Return(nil).Once()
			},
			wantValid: false,
		},
		{
			name: "no subscription at all",
			setupMocks: func(repo *RepoMock) {
				repo.On("GetSubscriptionByUser", mock.Anything, "uid-1").
					Return(nil, sql.ErrNoRows).Once()
			},
			wantValid: false,
		},
		{
			name: "already expired status",
			setupMocks: func(repo *RepoMock) {
				repo.On("GetSubscriptionByUser", mock.Anything, "uid-1").
					Return(&models.Subscription{
						ID:          1,
						Status:      models.SubscriptionStatusExpired,
						RenewalDate: &past,
					}, nil).Once()
			},
			wantValid: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repo, _, _ := newService(t)
			tt.setupMocks(repo)

			valid, _, err := svc.IsActiveAndValid(context.Background(), "uid-1")
			assert.NoError(t, err)
			assert.Equal(t, tt.wantValid, valid)
			repo.AssertExpectations(t)
		})
	}
}

func TestService_Check(t *testing.T) {
	future := time.Now().Add(24 * time.Hour)

	t.Run("cache miss hits repository and caches result", func(t *testing.T) {
		svc, repo, cache, _ := newService(t)

		cache.On("Get", "subscription:check:uid-1", mock.Anything).Return(false, nil).Once()
		repo.On("GetSubscriptionByUser", mock.Anything, "uid-1").
			Return(&models.Subscription{
				ID:          1,
				Status:      models.SubscriptionStatusActive,
				PlanName:    "monthly",
				RenewalDate: &future,
			}, nil).Once()
		cache.On("Set", "subscription:check:uid-1", mock.MatchedBy(func(result *subscription.CheckResult) bool {
			return result.IsValid && result.Status == models.SubscriptionStatusActive
		}), time.Minute).Return(nil).Once()

		result, err := svc.Check(context.Background(), "uid-1")
		assert.NoError(t, err)
		assert.True(t, result.IsValid)
		assert.Equal(t, "monthly", result.PlanName)
		repo.AssertExpectations(t)
		cache.AssertExpectations(t)
	})

	t.Run("cache hit skips repository", func(t *testing.T) {
		svc, repo, cache, _ := newService(t)

		cache.On("Get", "subscription:check:uid-1", mock.Anything).
			Run(func(args mock.Arguments) {
				result := args.Get(1).(*subscription.CheckResult)
				result.IsValid = true
				result.Status = models.SubscriptionStatusTrial
			}).Return(true, nil).Once()

		result, err := svc.Check(context.Background(), "uid-1")
		assert.NoError(t, err)
		assert.True(t, result.IsValid)
		assert.Equal(t, models.SubscriptionStatusTrial, result.Status)
		repo.AssertNotCalled(t, "GetSubscriptionByUser", mock.Anything, mock.Anything)
		cache.AssertExpectations(t)
	})
}

func TestService_Cancel(t *testing.T) {
	t.Run("cancel marks status and clears renewal date", func(t *testing.T) {
		svc, repo, cache, _ := newService(t)

		renewal := time.Now().Add(24 * time.Hour)
		repo.On("GetSubscriptionByUser", mock.Anything, "uid-1").
			Return(&models.Subscription{
				ID:          3,
				Status:      models.SubscriptionStatusActive,
				RenewalDate: &renewal,
			}, nil).Once()
		repo.On("UpdateSubscription", mock.Anything, mock.MatchedBy(func(sub models.Subscription) bool {
			return sub.ID == 3 &&
				sub.Status == models.SubscriptionStatusCancelled &&
				sub.RenewalDate == nil
		})).Return(nil).Once()
		cache.On("Invalidate", "subscription:check:uid-1").Return(nil).Once()

		err := svc.Cancel(context.Background(), "uid-1")
		assert.NoError(t, err)
		repo.AssertExpectations(t)
		cache.AssertExpectations(t)
	})

	t.Run("cancel without subscription", func(t *testing.T) {
		svc, repo, _, _ := newService(t)

		repo.On("GetSubscriptionByUser", mock.Anything, "uid-1").
			Return(nil, sql.ErrNoRows).Once()

		err := svc.Cancel(context.Background(), "uid-1")
		assert.ErrorIs(t, err, subscription.ErrNotFound)
		repo.AssertExpectations(t)
	})
}

func TestService_ListPlans(t *testing.T) {
	svc, repo, cache, _ := newService(t)

	plans := []*models.Plan{
		{ID: 1, Name: "trial", Price: 0},
		{ID: 2, Name: "monthly", Price: 9.99},
	}
	cache.On("Get", "plans:active", mock.Anything).Return(false, nil).Once()
	repo.On("ListActivePlans", mock.Anything).Return(plans, nil).Once()
	cache.On("Set", "plans:active", plans, time.Hour).Return(nil).Once()

	got, err := svc.ListPlans(context.Background())
	assert.NoError(t, err)
	assert.Len(t, got, 2)
	repo.AssertExpectations(t)
	cache.AssertExpectations(t)
}
