// Package check реализует HTTP-обработчик проверки состояния подписки
// текущего пользователя. Результат кешируется сервисом на минуту.
package check

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/helpmespeak/helpmespeak-backend/internal/http/middlewarectx"
	"github.com/helpmespeak/helpmespeak-backend/internal/http/response"
	"github.com/helpmespeak/helpmespeak-backend/internal/lib/sl"
	subservice "github.com/helpmespeak/helpmespeak-backend/internal/services/subscription"
)

// Service описывает интерфейс проверки подписки.
type Service interface {
	Check(ctx context.Context, userUID string) (*subservice.CheckResult, error)
}

// Handler управляет HTTP-запросами на проверку подписки.
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
// @Summary Проверить подписку
// @Description Возвращает снимок состояния подписки пользователя. Истечение применяется лениво в момент проверки.
// @Tags Subscriptions
// @Produce  json
// @Success 200 {object} response.Response "Состояние подписки"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Security BearerAuth
// @Router /subscription/check [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.subscription.check"
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

	result, err := h.service.Check(r.Context(), userUID)
	if err != nil {
		log.Error("failed to check subscription", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("failed to check subscription"))
		return
	}

	render.JSON(w, r, response.StatusOKWithData(result))
}
