// Package login2fa реализует HTTP-обработчик завершения входа с двухфакторной
// аутентификацией: клиент предъявляет код из письма и получает пару токенов.
package login2fa

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

// Request — входные данные для завершения входа
type Request struct {
	Email      string `json:"email" validate:"required,email"`
	Code       string `json:"code" validate:"required,len=6,numeric"`
	RememberMe bool   `json:"remember_me"`
}

// Service описывает интерфейс бизнес-логики завершения входа.
type Service interface {
	Complete2FALogin(ctx context.Context, email, code string, rememberMe bool) (*auth.LoginResult, error)
}

// Handler управляет HTTP-запросами на завершение входа.
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
// @Summary Завершить вход кодом 2FA
// @Description Сверяет код из письма и выдает пару access/refresh токенов.
// @Tags Auth
// @Accept  json
// @Produce  json
// @Param request body Request true "Почта и код"
// @Success 200 {object} response.Response "Пара токенов"
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 401 {object} response.ErrorResponse "Неверный или истёкший код"
// @Failure 422 {object} response.Response "Ошибка валидации"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Router /auth/login/2fa [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.login2fa"
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

	result, err := h.service.Complete2FALogin(r.Context(), req.Email, req.Code, req.RememberMe)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			log.Error("invalid or expired code")
			w.WriteHeader(http.StatusUnauthorized)
			render.JSON(w, r, response.Error("invalid or expired code"))
			return
		}
		log.Error("two-factor login failed", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("failed to login"))
		return
	}

	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"access_token":  result.AccessToken,
		"refresh_token": result.RefreshToken,
		"role":          result.User.Role,
	}))
}
