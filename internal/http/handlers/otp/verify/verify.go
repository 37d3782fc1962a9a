// Package verify реализует HTTP-обработчик проверки одноразового кода.
//
// Совпавший код подтверждения активирует учётную запись. Совпавший код
// сброса возвращает токен одноразовой сессии для завершения смены пароля.
package verify

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
	"github.com/helpmespeak/helpmespeak-backend/internal/models"
	otpservice "github.com/helpmespeak/helpmespeak-backend/internal/services/otp"
)

// Request — входные данные для проверки кода
type Request struct {
	Email string `json:"email" validate:"required,email"`
	Code  string `json:"code" validate:"required,len=6,numeric"`
}

// Service описывает интерфейс бизнес-логики проверки кодов.
type Service interface {
	Verify(ctx context.Context, email, code string) (*otpservice.Outcome, error)
}

// Handler управляет HTTP-запросами на проверку кода.
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
// @Summary Проверить одноразовый код
// @Description Сверяет код с обоими слотами пользователя. Код подтверждения активирует учётную запись, код сброса возвращает токен сессии смены пароля.
// @Tags OTP
// @Accept  json
// @Produce  json
// @Param request body Request true "Почта и код"
// @Success 200 {object} response.Response "Код принят"
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON или неверный код"
// @Failure 422 {object} response.Response "Ошибка валидации"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Router /otp/verify [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.otp.verify"
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

	outcome, err := h.service.Verify(r.Context(), req.Email, req.Code)
	if err != nil {
		if errors.Is(err, otpservice.ErrInvalidCode) {
			log.Error("invalid or expired code")
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error("invalid or expired code"))
			return
		}
		log.Error("verification failed", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("failed to verify code"))
		return
	}

	data := map[string]any{
		"purpose": outcome.Purpose,
	}
	if outcome.Purpose == models.OTPPurposeReset {
		data["reset_session_token"] = outcome.ResetSessionToken
	}
	render.JSON(w, r, response.StatusOKWithData(data))
}
