package check

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/helpmespeak/helpmespeak-backend/internal/http/middlewarectx"
	"github.com/helpmespeak/helpmespeak-backend/internal/models"
	subservice "github.com/helpmespeak/helpmespeak-backend/internal/services/subscription"
)

type ServiceMock struct {
	mock.Mock
}

func (m *ServiceMock) Check(ctx context.Context, userUID string) (*subservice.CheckResult, error) {
	args := m.Called(ctx, userUID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*subservice.CheckResult), args.Error(1)
}

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

func TestCheckHandler_ServeHTTP(t *testing.T) {
	renewal := time.Now().Add(24 * time.Hour)

	tests := []struct {
		name           string
		userUID        string
		mockResult     *subservice.CheckResult
		mockErr        error
		wantStatusCode int
		wantStatus     string
	}{
		{
			name:    "valid subscription",
			userUID: "uid-1",
			mockResult: &subservice.CheckResult{
				IsValid:     true,
				Status:      models.SubscriptionStatusActive,
				PlanName:    "monthly",
				RenewalDate: &renewal,
			},
			wantStatusCode: http.StatusOK,
			wantStatus:     "OK",
		},
		{
			name:           "no user in context",
			userUID:        "",
			wantStatusCode: http.StatusUnauthorized,
			wantStatus:     "Error",
		},
		{
			name:           "service error",
			userUID:        "uid-1",
			mockErr:        errors.New("db error"),
			wantStatusCode: http.StatusInternalServerError,
			wantStatus:     "Error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			serviceMock := new(ServiceMock)
			handler := New(newNoopLogger(), serviceMock)

			if tt.mockResult != nil || tt.mockErr != nil {
				serviceMock.On("Check", mock.Anything, tt.userUID).
					Return(tt.mockResult, tt.mockErr).Once()
			}

			req := httptest.NewRequest(http.MethodGet, "/subscription/check", nil)
			ctx := context.WithValue(req.Context(), middleware.RequestIDKey, "reqid123")
			if tt.userUID != "" {
				ctx = context.WithValue(ctx, middlewarectx.UserUID, tt.userUID)
			}
			req = req.WithContext(ctx)
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatusCode, rec.Code)

			var resp map[string]any
			assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantStatus, resp["status"])
			if tt.mockResult != nil {
				data := resp["data"].(map[string]any)
				assert.Equal(t, true, data["active"])
				assert.Equal(t, false, data["need_subscription"])
				assert.Equal(t, "monthly", data["plan_name"])
			}
			serviceMock.AssertExpectations(t)
		})
	}
}
