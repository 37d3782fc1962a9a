// Package login реализует HTTP-обработчик входа по паролю.
//
// При включенной у пользователя двухфакторной аутентификации пара токенов
// не выдается: на почту уходит код, а клиент получает статус 206 и завершает
// вход отдельным запросом с кодом.
package login

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

// Request — входные данные для входа
type Request struct {
	Email      string `json:"email" validate:"required,email"`
	Password   string `json:"password" validate:"required"`
	RememberMe bool   `json:"remember_me"`
}

// Service описывает интерфейс бизнес-логики входа.
type Service interface {
	Login(ctx context.Context, email, rawPassword string, rememberMe bool) (*auth.LoginResult, error)
}

// Handler управляет HTTP-запросами на вход.
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
// @Summary Войти по почте и паролю
// @Description Проверяет пароль и выдает пару access/refresh токенов. При включенной 2FA возвращает 206 и отправляет код на почту.
// @Tags Auth
// @Accept  json
// @Produce  json
// @Param request body Request true "Учётные данные"
// @Success 200 {object} response.Response "Пара токенов"
// @Success 206 {object} response.Response "Требуется код двухфакторной аутентификации"
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 401 {object} response.ErrorResponse "Неверные учётные данные"
// @Failure 403 {object} response.ErrorResponse "Почта не подтверждена"
// @Failure 422 {object} response.Response "Ошибка валидации"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Router /auth/login [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.login"
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

	result, err := h.service.Login(r.Context(), req.Email, req.Password, req.RememberMe)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrTwoFactorRequired):
			log.Info("two-factor code required")
			w.WriteHeader(http.StatusPartialContent)
			render.JSON(w, r, response.StatusOKWithData(map[string]any{
				"two_factor_required": true,
				"message":             "verification code sent to email",
			}))
		case errors.Is(err, auth.ErrEmailNotVerified):
			log.Error("email is not verified")
			w.WriteHeader(http.StatusForbidden)
			render.JSON(w, r, response.Error("email is not verified"))
		case errors.Is(err, auth.ErrInvalidCredentials):
			log.Error("invalid credentials")
			w.WriteHeader(http.StatusUnauthorized)
			render.JSON(w, r, response.Error("invalid credentials"))
		default:
			log.Error("login failed", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error("failed to login"))
		}
		return
	}

	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"access_token":  result.AccessToken,
		"refresh_token": result.RefreshToken,
		"token_type":    "bearer",
		"role":          result.User.Role,
		"user": map[string]any{
			"uid":       result.User.UID,
			"email":     result.User.Email,
			"full_name": result.User.FullName,
			"role":      result.User.Role,
		},
	}))
}
