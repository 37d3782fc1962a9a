// Package remove реализует HTTP-обработчик удаления учётной записи.
// Удаление требует подтверждения паролем и необратимо.
package remove

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/helpmespeak/helpmespeak-backend/internal/http/middlewarectx"
	"github.com/helpmespeak/helpmespeak-backend/internal/http/response"
	"github.com/helpmespeak/helpmespeak-backend/internal/lib/sl"
	"github.com/helpmespeak/helpmespeak-backend/internal/services/auth"
)

// Request — входные данные для удаления учётной записи
type Request struct {
	Password string `json:"password" validate:"required"`
}

// Service описывает интерфейс бизнес-логики удаления учётной записи.
type Service interface {
	DeleteAccount(ctx context.Context, userUID, rawPassword string) error
}

// Handler управляет HTTP-запросами на удаление учётной записи.
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
// @Summary Удалить учётную запись
// @Description Удаляет учётную запись вместе с профилем, токенами и подпиской после проверки пароля.
// @Tags Account
// @Accept  json
// @Produce  json
// @Param request body Request true "Пароль для подтверждения"
// @Success 200 {object} response.Response "Учётная запись удалена"
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 403 {object} response.ErrorResponse "Пароль не подошёл"
// @Failure 422 {object} response.Response "Ошибка валидации"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Security BearerAuth
// @Router /account [delete]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.account.remove"
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

	if err := h.validate.Struct(req); err != nil {
		log.Error("validation failed", sl.Err(err))
		w.WriteHeader(http.StatusUnprocessableEntity)
		render.JSON(w, r, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}

	if err := h.service.DeleteAccount(r.Context(), userUID, req.Password); err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			log.Error("password mismatch")
			w.WriteHeader(http.StatusForbidden)
			render.JSON(w, r, response.Error("password is incorrect"))
			return
		}
		if errors.Is(err, auth.ErrAdminImmutable) {
			log.Error("admin account deletion rejected")
			w.WriteHeader(http.StatusForbidden)
			render.JSON(w, r, response.Error("admin account cannot be deleted"))
			return
		}
		log.Error("failed to delete account", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("failed to delete account"))
		return
	}

	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"message": "account deleted",
	}))
}
