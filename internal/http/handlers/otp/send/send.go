// Package send реализует HTTP-обработчик выпуска одноразового кода.
//
// Ответ не раскрывает существование учётной записи: для неизвестной почты
// возвращается тот же успешный статус, что и для известной.
package send

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
	"github.com/helpmespeak/helpmespeak-backend/internal/services/otp"
)

// Request — входные данные для выпуска кода
type Request struct {
	Email   string `json:"email" validate:"required,email"`
	Purpose string `json:"purpose" validate:"required,oneof=email_verification password_reset two_factor"`
}

// Service описывает интерфейс бизнес-логики выпуска кодов.
type Service interface {
	Issue(ctx context.Context, email, purpose string) error
}

// Handler управляет HTTP-запросами на выпуск кода.
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
// @Summary Выпустить одноразовый код
// @Description Отправляет на почту код подтверждения или код сброса пароля. Ответ одинаков для известной и неизвестной почты.
// @Tags OTP
// @Accept  json
// @Produce  json
// @Param request body Request true "Почта и назначение кода"
// @Success 200 {object} response.Response "Код отправлен, если почта зарегистрирована"
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 422 {object} response.Response "Ошибка валидации"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Router /otp/send [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.otp.send"
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

	if err := h.service.Issue(r.Context(), req.Email, req.Purpose); err != nil {
		if errors.Is(err, otp.ErrInvalidPurpose) {
			log.Error("invalid code purpose")
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error("code purpose is not applicable"))
			return
		}
		log.Error("failed to issue code", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("failed to send code"))
		return
	}

	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"message": "if the email is registered, a code has been sent",
	}))
}
