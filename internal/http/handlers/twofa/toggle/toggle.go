// Package toggle реализует HTTP-обработчик включения и отключения
// двухфакторной аутентификации текущего пользователя.
package toggle

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/helpmespeak/helpmespeak-backend/internal/http/middlewarectx"
	"github.com/helpmespeak/helpmespeak-backend/internal/http/response"
	"github.com/helpmespeak/helpmespeak-backend/internal/lib/sl"
)

// Request — входные данные для переключения 2FA
type Request struct {
	Enabled bool `json:"enabled"`
}

// Service описывает интерфейс бизнес-логики переключения 2FA.
type Service interface {
	Set2FA(ctx context.Context, userUID string, enabled bool) error
}

// Handler управляет HTTP-запросами на переключение 2FA.
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
// @Summary Переключить двухфакторную аутентификацию
// @Description Включает или отключает запрос кода с почты при каждом входе.
// @Tags Auth
// @Accept  json
// @Produce  json
// @Param request body Request true "Желаемое состояние"
// @Success 200 {object} response.Response "Состояние обновлено"
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Security BearerAuth
// @Router /2fa [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.twofa.toggle"
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

	if err := h.service.Set2FA(r.Context(), userUID, req.Enabled); err != nil {
		log.Error("failed to toggle 2fa", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("failed to update two-factor settings"))
		return
	}

	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"is_2fa_enabled": req.Enabled,
	}))
}
