// Package logout реализует HTTP-обработчик выхода: отзыв одной пары токенов
// по refresh токену либо всех пар пользователя сразу.
package logout

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/helpmespeak/helpmespeak-backend/internal/http/middlewarectx"
	"github.com/helpmespeak/helpmespeak-backend/internal/http/response"
	"github.com/helpmespeak/helpmespeak-backend/internal/lib/sl"
	"github.com/helpmespeak/helpmespeak-backend/internal/services/auth"
)

// Request — входные данные для выхода. При all отзываются все пары,
// refresh_token в этом случае не обязателен.
type Request struct {
	RefreshToken string `json:"refresh_token"`
	All          bool   `json:"all"`
}

// Service описывает интерфейс бизнес-логики отзыва токенов.
type Service interface {
	Revoke(ctx context.Context, userUID, refreshToken string, all bool) error
}

// Handler управляет HTTP-запросами на выход.
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
// @Summary Выйти
// @Description Отзывает пару токенов по refresh токену или все пары пользователя при all.
// @Tags Auth
// @Accept  json
// @Produce  json
// @Param request body Request true "Refresh токен или флаг all"
// @Success 200 {object} response.Response "Токены отозваны"
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 404 {object} response.ErrorResponse "Токен не найден"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Security BearerAuth
// @Router /auth/logout [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.logout"
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

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode request", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}
	if !req.All && req.RefreshToken == "" {
		log.Error("refresh token is required")
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("refresh_token is required unless all is set"))
		return
	}

	if err := h.service.Revoke(r.Context(), userUID, req.RefreshToken, req.All); err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			log.Error("refresh token not found")
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error("refresh token not found"))
			return
		}
		log.Error("logout failed", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("failed to logout"))
		return
	}

	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"message": "logged out",
	}))
}
