// Package update реализует HTTP-обработчик частичного обновления профиля
// текущего пользователя. Непереданные поля сохраняют прежние значения,
// employee id не меняется никогда.
package update

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/helpmespeak/helpmespeak-backend/internal/http/middlewarectx"
	"github.com/helpmespeak/helpmespeak-backend/internal/http/response"
	"github.com/helpmespeak/helpmespeak-backend/internal/lib/sl"
	"github.com/helpmespeak/helpmespeak-backend/internal/models"
)

// Request — входные данные для обновления профиля
type Request struct {
	FullName  *string `json:"full_name,omitempty" validate:"omitempty,min=1,max=100"`
	Gender    *string `json:"gender,omitempty" validate:"omitempty,oneof=male female other"`
	Phone     *string `json:"phone,omitempty" validate:"omitempty,max=20"`
	AvatarURL *string `json:"avatar_url,omitempty" validate:"omitempty,url"`
}

// Service описывает интерфейс чтения и обновления учётной записи и профиля.
type Service interface {
	GetUserByUID(ctx context.Context, userUID string) (*models.User, error)
	GetProfileByUserUID(ctx context.Context, userUID string) (*models.Profile, error)
	UpdateUserInfo(ctx context.Context, userUID, fullName, gender string) error
	UpdateProfile(ctx context.Context, profile models.Profile) error
}

// Handler управляет HTTP-запросами на обновление профиля.
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
// @Summary Обновить профиль текущего пользователя
// @Description Частично обновляет имя, пол, телефон и аватар; пропущенные поля не меняются.
// @Tags Profile
// @Accept  json
// @Produce  json
// @Param request body Request true "Обновляемые поля профиля"
// @Success 200 {object} response.Response "Обновлённый профиль"
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 422 {object} response.Response "Ошибка валидации"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Security BearerAuth
// @Router /profile/me [put]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.profile.update"
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

	user, err := h.service.GetUserByUID(r.Context(), userUID)
	if err != nil {
		log.Error("failed to get user", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("failed to update profile"))
		return
	}
	profile, err := h.service.GetProfileByUserUID(r.Context(), userUID)
	if err != nil {
		log.Error("failed to get profile", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("failed to update profile"))
		return
	}

	if req.FullName != nil {
		user.FullName = *req.FullName
	}
	if req.Gender != nil {
		user.Gender = *req.Gender
	}
	if req.Phone != nil {
		profile.Phone = *req.Phone
	}
	if req.AvatarURL != nil {
		profile.AvatarURL = *req.AvatarURL
	}

	if err := h.service.UpdateUserInfo(r.Context(), userUID, user.FullName, user.Gender); err != nil {
		log.Error("failed to update user info", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("failed to update profile"))
		return
	}
	if err := h.service.UpdateProfile(r.Context(), *profile); err != nil {
		log.Error("failed to update profile", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("failed to update profile"))
		return
	}

	log.Info("profile updated", slog.String("user_uid", userUID))

	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"uid":         user.UID,
		"email":       user.Email,
		"full_name":   user.FullName,
		"gender":      user.Gender,
		"employee_id": profile.EmployeeID,
		"phone":       profile.Phone,
		"avatar_url":  profile.AvatarURL,
	}))
}
