package middlewarectx

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/helpmespeak/helpmespeak-backend/internal/lib/jwt"
)

type ServiceMock struct {
	mock.Mock
}

func (m *ServiceMock) ValidateAccess(ctx context.Context, accessToken string) (*jwt.CustomClaims, error) {
	args := m.Called(ctx, accessToken)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*jwt.CustomClaims), args.Error(1)
}

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

func TestJWTMiddleware(t *testing.T) {
	tests := []struct {
		name           string
		authHeader     string
		setupMocks     func(m *ServiceMock)
		wantStatusCode int
		wantNextCalled bool
	}{
		{
			name:       "valid token passes claims to context",
			authHeader: "Bearer good-token",
			setupMocks: func(m *ServiceMock) {
				m.On("ValidateAccess", mock.Anything, "good-token").
					Return(&jwt.CustomClaims{
						Email:   "user@example.com",
						Role:    "user",
						UserUID: "uid-1",
					}, nil).Once()
			},
			wantStatusCode: http.StatusOK,
			wantNextCalled: true,
		},
		{
			name:           "missing header",
			authHeader:     "",
			setupMocks:     func(m *ServiceMock) {},
			wantStatusCode: http.StatusUnauthorized,
		},
		{
			name:           "header without bearer prefix",
			authHeader:     "Token abc",
			setupMocks:     func(m *ServiceMock) {},
			wantStatusCode: http.StatusUnauthorized,
		},
		{
			name:       "revoked or invalid token",
			authHeader: "Bearer stale-token",
			setupMocks: func(m *ServiceMock) {
				m.On("ValidateAccess", mock.Anything, "stale-token").
					Return(nil, errors.New("unauthorized")).Once()
			},
			wantStatusCode: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			serviceMock := new(ServiceMock)
			tt.setupMocks(serviceMock)

			nextCalled := false
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				nextCalled = true
				assert.Equal(t, "uid-1", r.Context().Value(UserUID))
				assert.Equal(t, "user@example.com", r.Context().Value(Email))
				assert.Equal(t, "user", r.Context().Value(Role))
				w.WriteHeader(http.StatusOK)
			})

			handler := JWTMiddleware(serviceMock, newNoopLogger())(next)

			req := httptest.NewRequest(http.MethodGet, "/protected", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatusCode, rec.Code)
			assert.Equal(t, tt.wantNextCalled, nextCalled)
			serviceMock.AssertExpectations(t)
		})
	}
}
