// Package me реализует HTTP-обработчик чтения профиля текущего пользователя.
package me

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/helpmespeak/helpmespeak-backend/internal/http/middlewarectx"
	"github.com/helpmespeak/helpmespeak-backend/internal/http/response"
	"github.com/helpmespeak/helpmespeak-backend/internal/lib/sl"
	"github.com/helpmespeak/helpmespeak-backend/internal/models"
)

// Service описывает интерфейс чтения учётной записи и профиля.
type Service interface {
	GetUserByUID(ctx context.Context, userUID string) (*models.User, error)
	GetProfileByUserUID(ctx context.Context, userUID string) (*models.Profile, error)
}

// Handler управляет HTTP-запросами на чтение профиля.
type Handler struct {
	log     *slog.Logger
	service Service
}

// New создает новый Handler с переданными логгером и сервисом.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary Получить профиль текущего пользователя
// @Description Возвращает учётную запись и профиль пользователя из access токена.
// @Tags Profile
// @Produce  json
// @Success 200 {object} response.Response "Профиль пользователя"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Security BearerAuth
// @Router /profile/me [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.profile.me"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	userUID, ok := r.Context().Value(middlewarectx.UserUID).(string)
	if !ok || userUID == "" {
		log.Error("user identification missing")
		w.WriteHeader(http.StatusUnauthorized)
		render.JSON(w, r, response.Error("user identification missing"))
		return
	}

	user, err := h.service.GetUserByUID(r.Context(), userUID)
	if err != nil {
		log.Error("failed to get user", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("failed to get profile"))
		return
	}
	profile, err := h.service.GetProfileByUserUID(r.Context(), userUID)
	if err != nil {
		log.Error("failed to get profile", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("failed to get profile"))
		return
	}

	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"uid":            user.UID,
		"email":          user.Email,
		"full_name":      user.FullName,
		"gender":         user.Gender,
		"role":           user.Role,
		"is_2fa_enabled": user.Is2FAEnabled,
		"employee_id":    profile.EmployeeID,
		"phone":          profile.Phone,
		"avatar_url":     profile.AvatarURL,
		"created_at":     user.CreatedAt,
	}))
}
