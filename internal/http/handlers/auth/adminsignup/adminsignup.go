// Package adminsignup реализует HTTP-обработчик создания первого
// администратора. Конечная точка закрывается навсегда после того,
// как в системе появляется хотя бы один администратор.
package adminsignup

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

// Request — входные данные для создания администратора
type Request struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	FullName string `json:"full_name" validate:"required,min=2,max=100"`
}

// Service описывает интерфейс бизнес-логики создания администратора.
type Service interface {
	InitialAdminSignup(ctx context.Context, email, rawPassword, fullName string) (string, error)
}

// Handler управляет HTTP-запросами на создание администратора.
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
// @Summary Создать первого администратора
// @Description Создает администратора, пока в системе нет ни одного. Повторные вызовы отклоняются.
// @Tags Auth
// @Accept  json
// @Produce  json
// @Param request body Request true "Данные администратора"
// @Success 201 {object} response.Response "Администратор создан"
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 409 {object} response.ErrorResponse "Администратор уже существует"
// @Failure 422 {object} response.Response "Ошибка валидации"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Router /auth/admin/signup [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.adminsignup"
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

	uid, err := h.service.InitialAdminSignup(r.Context(), req.Email, req.Password, req.FullName)
	if err != nil {
		if errors.Is(err, auth.ErrAdminExists) || errors.Is(err, auth.ErrUserExists) {
			log.Error("admin signup rejected", sl.Err(err))
			w.WriteHeader(http.StatusConflict)
			render.JSON(w, r, response.Error("admin account already exists"))
			return
		}
		log.Error("admin signup failed", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("failed to create admin"))
		return
	}

	w.WriteHeader(http.StatusCreated)
	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"uid":     uid,
		"message": "admin created successfully",
	}))
}
