package register

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/helpmespeak/helpmespeak-backend/internal/services/auth"
)

type ServiceMock struct {
	mock.Mock
}

func (m *ServiceMock) Register(ctx context.Context, email, rawPassword, fullName, gender string, sendVerificationOTP bool) (string, error) {
	args := m.Called(ctx, email, rawPassword, fullName, gender, sendVerificationOTP)
	return args.String(0), args.Error(1)
}

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

func TestRegisterHandler_ServeHTTP(t *testing.T) {
	tests := []struct {
		name           string
		requestBody    any
		mockUID        string
		mockErr        error
		wantStatusCode int
		wantStatus     string
		wantError      string
	}{
		{
			name: "valid registration",
			requestBody: Request{
				Email:               "new@example.com",
				Password:            "password123",
				PasswordConfirm:     "password123",
				FullName:            "New User",
				Gender:              "female",
				SendVerificationOTP: true,
			},
			mockUID:        "uid-1",
			wantStatusCode: http.StatusCreated,
			wantStatus:     "OK",
		},
		{
			name:           "invalid json body",
			requestBody:    "not a json",
			wantStatusCode: http.StatusBadRequest,
			wantStatus:     "Error",
			wantError:      "invalid request body",
		},
		{
			name: "validation error - short password",
			requestBody: Request{
				Email:           "new@example.com",
				Password:        "short",
				PasswordConfirm: "short",
				FullName:        "New User",
			},
			wantStatusCode: http.StatusUnprocessableEntity,
			wantStatus:     "Error",
		},
		{
			name: "password confirmation mismatch",
			requestBody: Request{
				Email:           "new@example.com",
				Password:        "password123",
				PasswordConfirm: "different123",
				FullName:        "New User",
			},
			wantStatusCode: http.StatusUnprocessableEntity,
			wantStatus:     "Error",
			wantError:      "field PasswordConfirm does not match Password",
		},
		{
			name: "duplicate email",
			requestBody: Request{
				Email:           "taken@example.com",
				Password:        "password123",
				PasswordConfirm: "password123",
				FullName:        "New User",
			},
			mockErr:        auth.ErrUserExists,
			wantStatusCode: http.StatusConflict,
			wantStatus:     "Error",
			wantError:      "email already taken",
		},
		{
			name: "service error",
			requestBody: Request{
				Email:           "new@example.com",
				Password:        "password123",
				PasswordConfirm: "password123",
				FullName:        "New User",
			},
			mockErr:        errors.New("db error"),
			wantStatusCode: http.StatusInternalServerError,
			wantStatus:     "Error",
			wantError:      "failed to register user",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			serviceMock := new(ServiceMock)
			handler := New(newNoopLogger(), serviceMock)

			if req, ok := tt.requestBody.(Request); ok && (tt.mockUID != "" || tt.mockErr != nil) {
				serviceMock.On("Register", mock.Anything, req.Email, req.Password, req.FullName, req.Gender,
					req.SendVerificationOTP).Return(tt.mockUID, tt.mockErr).Once()
			}

			var bodyBytes []byte
			switch v := tt.requestBody.(type) {
			case string:
				bodyBytes = []byte(v)
			default:
				var err error
				bodyBytes, err = json.Marshal(tt.requestBody)
				if err != nil {
					t.Fatal(err)
				}
			}

			req := httptest.NewRequest(http.MethodPost, "/auth/register", bytes.NewReader(bodyBytes))
			req = req.WithContext(context.WithValue(req.Context(), middleware.RequestIDKey, "reqid123"))
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatusCode, rec.Code)

			var resp map[string]any
			assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantStatus, resp["status"])
			if tt.wantError != "" {
				assert.Equal(t, tt.wantError, resp["error"])
			}
			if tt.mockUID != "" {
				data := resp["data"].(map[string]any)
				assert.Equal(t, tt.mockUID, data["uid"])
			}
			serviceMock.AssertExpectations(t)
		})
	}
}
