// Package reset реализует HTTP-обработчик завершения сброса пароля
// по одноразовой сессии, выданной при проверке кода сброса.
package reset

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/helpmespeak/helpmespeak-backend/internal/http/response"
	"github.com/helpmespeak/helpmespeak-backend/internal/lib/sl"
	"github.com/helpmespeak/helpmespeak-backend/internal/services/auth"
)

// Request — входные данные для завершения сброса пароля
type Request struct {
	SessionToken       string `json:"session_token" validate:"required,uuid"`
	NewPassword        string `json:"new_password" validate:"required,min=8"`
	NewPasswordConfirm string `json:"new_password_confirm" validate:"required,eqfield=NewPassword"`
}

// Service описывает интерфейс бизнес-логики сброса пароля.
type Service interface {
	ResetPassword(ctx context.Context, sessionToken, newPassword string) error
}

// Handler управляет HTTP-запросами на завершение сброса пароля.
type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// New создает новый Handler с переданными логгером и сервисом.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		validate: validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Завершить сброс пароля
// @Description Меняет пароль по одноразовой сессии сброса и отзывает все токены пользователя.
// @Tags Password
// @Accept  json
// @Produce  json
// @Param request body Request true "Токен сессии и новый пароль"
// @Success 200 {object} response.Response "Пароль изменён"
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 401 {object} response.ErrorResponse "Неизвестная сессия сброса"
// @Failure 410 {object} response.ErrorResponse "Сессия сброса истекла"
// @Failure 422 {object} response.Response "Ошибка валидации"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Router /password/reset [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.password.reset"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode request", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}

	if err := h.validate.Struct(req); err != nil {
		log.Error("validation failed", sl.Err(err))
		w.WriteHeader(http.StatusUnprocessableEntity)
		render.JSON(w, r, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}

	if err := h.service.ResetPassword(r.Context(), req.SessionToken, req.NewPassword); err != nil {
		switch {
		case errors.Is(err, auth.ErrSessionExpired):
			log.Error("reset session expired")
			w.WriteHeader(http.StatusGone)
			render.JSON(w, r, response.Error("reset session expired"))
		case errors.Is(err, auth.ErrUnauthorized):
			log.Error("unknown reset session")
			w.WriteHeader(http.StatusUnauthorized)
			render.JSON(w, r, response.Error("unknown reset session"))
		default:
			log.Error("password reset failed", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error("failed to reset password"))
		}
		return
	}

	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"message": "password has been reset",
	}))
}
