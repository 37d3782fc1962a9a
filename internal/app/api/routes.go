// Package api предоставляет маршруты основного приложения.
package api

import (
	"log/slog"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	httpSwagger "github.com/swaggo/http-swagger"

	accountremove "github.com/helpmespeak/helpmespeak-backend/internal/http/handlers/account/remove"
	"github.com/helpmespeak/helpmespeak-backend/internal/http/handlers/auth/adminsignup"
	"github.com/helpmespeak/helpmespeak-backend/internal/http/handlers/auth/login"
	"github.com/helpmespeak/helpmespeak-backend/internal/http/handlers/auth/login2fa"
	"github.com/helpmespeak/helpmespeak-backend/internal/http/handlers/auth/logout"
	"github.com/helpmespeak/helpmespeak-backend/internal/http/handlers/auth/refresh"
	"github.com/helpmespeak/helpmespeak-backend/internal/http/handlers/auth/register"
	"github.com/helpmespeak/helpmespeak-backend/internal/http/handlers/auth/social"
	"github.com/helpmespeak/helpmespeak-backend/internal/http/handlers/health"
	iapvalidate "github.com/helpmespeak/helpmespeak-backend/internal/http/handlers/iap/validate"
	otpsend "github.com/helpmespeak/helpmespeak-backend/internal/http/handlers/otp/send"
	otpverify "github.com/helpmespeak/helpmespeak-backend/internal/http/handlers/otp/verify"
	passwordchange "github.com/helpmespeak/helpmespeak-backend/internal/http/handlers/password/change"
	passwordforgot "github.com/helpmespeak/helpmespeak-backend/internal/http/handlers/password/forgot"
	passwordreset "github.com/helpmespeak/helpmespeak-backend/internal/http/handlers/password/reset"
	profileme "github.com/helpmespeak/helpmespeak-backend/internal/http/handlers/profile/me"
	profileupdate "github.com/helpmespeak/helpmespeak-backend/internal/http/handlers/profile/update"
	subcancel "github.com/helpmespeak/helpmespeak-backend/internal/http/handlers/subscription/cancel"
	subcheck "github.com/helpmespeak/helpmespeak-backend/internal/http/handlers/subscription/check"
	subplans "github.com/helpmespeak/helpmespeak-backend/internal/http/handlers/subscription/plans"
	twofatoggle "github.com/helpmespeak/helpmespeak-backend/internal/http/handlers/twofa/toggle"
	"github.com/helpmespeak/helpmespeak-backend/internal/http/middlewarectx"
	authservice "github.com/helpmespeak/helpmespeak-backend/internal/services/auth"
	otpservice "github.com/helpmespeak/helpmespeak-backend/internal/services/otp"
	subservice "github.com/helpmespeak/helpmespeak-backend/internal/services/subscription"
	"github.com/helpmespeak/helpmespeak-backend/internal/storage/repository"
)

// RegisterRoutes регистрирует все маршруты приложения.
func RegisterRoutes(r chi.Router, logger *slog.Logger,
	authService *authservice.Service, otpService *otpservice.Service,
	subscriptionService *subservice.Service, db *repository.Storage) {
	// Глобальные middleware
	r.Use(
		middleware.RequestID,
		middleware.Logger,
		middleware.Recoverer,
		middleware.URLFormat,
		middlewarectx.MetricsMiddleware,
	)

	r.Route("/api/v1", func(r chi.Router) {
		// Открытые конечные точки
		r.Post("/auth/register", register.New(logger, authService).ServeHTTP)
		r.Post("/auth/admin/signup", adminsignup.New(logger, authService).ServeHTTP)
		r.Post("/auth/refresh", refresh.New(logger, authService).ServeHTTP)
		r.Post("/auth/social/{provider}", social.New(logger, authService).ServeHTTP)
		r.Post("/otp/verify", otpverify.New(logger, otpService).ServeHTTP)
		r.Post("/password/reset", passwordreset.New(logger, authService).ServeHTTP)
		r.Get("/plans", subplans.New(logger, subscriptionService).ServeHTTP)

		// Конечные точки с ограничением частоты: вход и выпуск кодов
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.RateLimitMiddleware(logger))
			r.Post("/auth/login", login.New(logger, authService).ServeHTTP)
			r.Post("/auth/login/2fa", login2fa.New(logger, authService).ServeHTTP)
			r.Post("/otp/send", otpsend.New(logger, otpService).ServeHTTP)
			r.Post("/password/forgot", passwordforgot.New(logger, otpService).ServeHTTP)
		})

		// Группа с JWT аутентификацией
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.JWTMiddleware(authService, logger))
			r.Post("/auth/logout", logout.New(logger, authService).ServeHTTP)
			r.Post("/password/change", passwordchange.New(logger, authService).ServeHTTP)
			r.Get("/profile/me", profileme.New(logger, db).ServeHTTP)
			r.Put("/profile/me", profileupdate.New(logger, db).ServeHTTP)
			r.Patch("/profile/me", profileupdate.New(logger, db).ServeHTTP)
			r.Post("/2fa", twofatoggle.New(logger, otpService).ServeHTTP)
			r.Get("/subscription/check", subcheck.New(logger, subscriptionService).ServeHTTP)
			r.Post("/subscription/cancel", subcancel.New(logger, subscriptionService).ServeHTTP)
			r.Post("/iap/validate", iapvalidate.New(logger, subscriptionService).ServeHTTP)
			r.Delete("/account", accountremove.New(logger, authService).ServeHTTP)
		})
	})

	r.Get("/health", health.New().ServeHTTP)
	r.Handle("/metrics", promhttp.Handler())
	// Swagger docs endpoint
	r.Get("/docs/*", httpSwagger.WrapHandler)
}
