// Package validate реализует HTTP-обработчик проверки чека покупки.
// Действительный чек активирует подписку на соответствующий план.
package validate

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
	"github.com/helpmespeak/helpmespeak-backend/internal/models"
	subservice "github.com/helpmespeak/helpmespeak-backend/internal/services/subscription"
)

// Request — входные данные для проверки чека
type Request struct {
	Platform string `json:"platform" validate:"required,oneof=apple google"`
	Receipt  string `json:"receipt" validate:"required"`
}

// Service описывает интерфейс активации подписки по чеку.
type Service interface {
	Activate(ctx context.Context, userUID, platform, receipt string) (*models.Subscription, error)
}

// Handler управляет HTTP-запросами на проверку чека.
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
// @Summary Проверить чек покупки
// @Description Проверяет чек у платёжной платформы и активирует подписку на купленный план.
// @Tags Subscriptions
// @Accept  json
// @Produce  json
// @Param request body Request true "Платформа и чек"
// @Success 200 {object} response.Response "Активированная подписка"
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON или недействительный чек"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 404 {object} response.ErrorResponse "Неизвестный продукт магазина"
// @Failure 422 {object} response.Response "Ошибка валидации"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Security BearerAuth
// @Router /iap/validate [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.iap.validate"
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

	sub, err := h.service.Activate(r.Context(), userUID, req.Platform, req.Receipt)
	if err != nil {
		switch {
		case errors.Is(err, subservice.ErrInvalidReceipt):
			log.Error("invalid receipt")
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error("receipt is not valid"))
		case errors.Is(err, subservice.ErrUnknownProduct):
			log.Error("unknown store product")
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error("unknown store product"))
		default:
			log.Error("failed to validate receipt", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error("failed to validate receipt"))
		}
		return
	}

	render.JSON(w, r, response.StatusOKWithData(sub))
}
