package update

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/helpmespeak/helpmespeak-backend/internal/http/middlewarectx"
	"github.com/helpmespeak/helpmespeak-backend/internal/models"
)

type ServiceMock struct {
	mock.Mock
}

func (m *ServiceMock) GetUserByUID(ctx context.Context, userUID string) (*models.User, error) {
	args := m.Called(ctx, userUID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *ServiceMock) GetProfileByUserUID(ctx context.Context, userUID string) (*models.Profile, error) {
	args := m.Called(ctx, userUID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Profile), args.Error(1)
}

func (m *ServiceMock) UpdateUserInfo(ctx context.Context, userUID, fullName, gender string) error {
	args := m.Called(ctx, userUID, fullName, gender)
	return args.Error(0)
}

func (m *ServiceMock) UpdateProfile(ctx context.Context, profile models.Profile) error {
	args := m.Called(ctx, profile)
	return args.Error(0)
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func existingUser() *models.User {
	return &models.User{
		UID:      "uid-1",
		Email:    "user@example.com",
		FullName: "Old Name",
		Gender:   "male",
	}
}

func existingProfile() *models.Profile {
	return &models.Profile{
		UserUID:    "uid-1",
		EmployeeID: "EMP0000TEST",
		Phone:      "111",
		AvatarURL:  "https://cdn.example.com/old.png",
	}
}

func TestUpdateHandler(t *testing.T) {
	tests := []struct {
		name           string
		userUID        string
		requestBody    string
		setupMocks     func(m *ServiceMock)
		wantStatusCode int
		wantBody       string
	}{
		{
			name:        "updates only provided fields",
			userUID:     "uid-1",
			requestBody: `{"full_name": "New Name", "phone": "222"}`,
			setupMocks: func(m *ServiceMock) {
				m.On("GetUserByUID", mock.Anything, "uid-1").Return(existingUser(), nil).Once()
				m.On("GetProfileByUserUID", mock.Anything, "uid-1").Return(existingProfile(), nil).Once()
				m.On("UpdateUserInfo", mock.Anything, "uid-1", "New Name", "male").Return(nil).Once()
				m.On("UpdateProfile", mock.Anything, mock.MatchedBy(func(p models.Profile) bool {
					return p.Phone == "222" && p.AvatarURL == "https://cdn.example.com/old.png"
				})).Return(nil).Once()
			},
			wantStatusCode: http.StatusOK,
			wantBody:       `"full_name":"New Name"`,
		},
		{
			name:           "missing user identification",
			userUID:        "",
			requestBody:    `{"full_name": "New Name"}`,
			setupMocks:     func(m *ServiceMock) {},
			wantStatusCode: http.StatusUnauthorized,
			wantBody:       "user identification missing",
		},
		{
			name:           "invalid json",
			userUID:        "uid-1",
			requestBody:    `{"full_name":`,
			setupMocks:     func(m *ServiceMock) {},
			wantStatusCode: http.StatusBadRequest,
			wantBody:       "invalid request body",
		},
		{
			name:           "invalid avatar url",
			userUID:        "uid-1",
			requestBody:    `{"avatar_url": "not a url"}`,
			setupMocks:     func(m *ServiceMock) {},
			wantStatusCode: http.StatusUnprocessableEntity,
		},
		{
			name:        "storage failure",
			userUID:     "uid-1",
			requestBody: `{"phone": "222"}`,
			setupMocks: func(m *ServiceMock) {
				m.On("GetUserByUID", mock.Anything, "uid-1").Return(existingUser(), nil).Once()
				m.On("GetProfileByUserUID", mock.Anything, "uid-1").Return(existingProfile(), nil).Once()
				m.On("UpdateUserInfo", mock.Anything, "uid-1", "Old Name", "male").Return(nil).Once()
				m.On("UpdateProfile", mock.Anything, mock.Anything).
					Return(errors.New("db down")).Once()
			},
			wantStatusCode: http.StatusInternalServerError,
			wantBody:       "failed to update profile",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			serviceMock := new(ServiceMock)
			tt.setupMocks(serviceMock)

			handler := New(newNoopLogger(), serviceMock)

			req := httptest.NewRequest(http.MethodPut, "/profile/me",
				bytes.NewBufferString(tt.requestBody))
			if tt.userUID != "" {
				req = req.WithContext(context.WithValue(req.Context(),
					middlewarectx.UserUID, tt.userUID))
			}
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatusCode, rec.Code)
			if tt.wantBody != "" {
				assert.Contains(t, rec.Body.String(), tt.wantBody)
			}
			serviceMock.AssertExpectations(t)
		})
	}
}
