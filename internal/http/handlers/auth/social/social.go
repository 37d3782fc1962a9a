// Package social реализует HTTP-обработчик входа через внешних провайдеров.
//
// Провайдер передается в пути запроса. Клиент присылает проверенные на своей
// стороне данные профиля: идентификатор субъекта, почту и имя. Пользователь
// создается при первом входе, двухфакторная проверка не применяется.
package social

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/helpmespeak/helpmespeak-backend/internal/http/response"
	"github.com/helpmespeak/helpmespeak-backend/internal/lib/sl"
	"github.com/helpmespeak/helpmespeak-backend/internal/services/auth"
)

// Request — входные данные для входа через провайдера
type Request struct {
	Subject   string `json:"subject" validate:"required"`
	Email     string `json:"email" validate:"omitempty,email"`
	FullName  string `json:"full_name" validate:"omitempty,max=100"`
	AvatarURL string `json:"avatar_url" validate:"omitempty,url"`
}

// Service описывает интерфейс бизнес-логики входа через провайдера.
type Service interface {
	SocialLogin(ctx context.Context, provider, subject, email, fullName, avatarURL string) (*auth.LoginResult, error)
}

// Handler управляет HTTP-запросами на вход через провайдера.
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
// @Summary Войти через внешнего провайдера
// @Description Выполняет вход через google или apple, создавая пользователя при первом входе. Для Apple со скрытой почтой используется адрес приватной пересылки.
// @Tags Auth
// @Accept  json
// @Produce  json
// @Param provider path string true "Провайдер: google или apple"
// @Param request body Request true "Данные профиля провайдера"
// @Success 200 {object} response.Response "Пара токенов"
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON или неизвестный провайдер"
// @Failure 401 {object} response.ErrorResponse "Недостаточно данных профиля"
// @Failure 422 {object} response.Response "Ошибка валидации"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Router /auth/social/{provider} [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.social"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	provider := chi.URLParam(r, "provider")
	if provider != "google" && provider != "apple" {
		log.Error("unknown provider", slog.String("provider", provider))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("unknown provider"))
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

	result, err := h.service.SocialLogin(r.Context(), provider, req.Subject, req.Email, req.FullName, req.AvatarURL)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			log.Error("insufficient profile data")
			w.WriteHeader(http.StatusUnauthorized)
			render.JSON(w, r, response.Error("insufficient profile data"))
			return
		}
		log.Error("social login failed", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("failed to login"))
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
