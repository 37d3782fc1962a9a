// Package api собирает и запускает основное HTTP приложение.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"

	"github.com/helpmespeak/helpmespeak-backend/internal/cache"
	"github.com/helpmespeak/helpmespeak-backend/internal/config"
	"github.com/helpmespeak/helpmespeak-backend/internal/lib/jwt"
	"github.com/helpmespeak/helpmespeak-backend/internal/lib/smtp"
	"github.com/helpmespeak/helpmespeak-backend/internal/migrations"
	"github.com/helpmespeak/helpmespeak-backend/internal/receipts"
	authservice "github.com/helpmespeak/helpmespeak-backend/internal/services/auth"
	otpservice "github.com/helpmespeak/helpmespeak-backend/internal/services/otp"
	senderservice "github.com/helpmespeak/helpmespeak-backend/internal/services/sender"
	subservice "github.com/helpmespeak/helpmespeak-backend/internal/services/subscription"
	"github.com/helpmespeak/helpmespeak-backend/internal/storage/repository"
)

// App собирает зависимости HTTP приложения.
type App struct {
	server *http.Server
	logger *slog.Logger
	db     *repository.Storage
}

// New создает приложение: подключает хранилище, применяет миграции,
// инициализирует кеш и сервисы, регистрирует маршруты.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		return nil, err
	}
	if err = migrations.Run(db.DB, cfg.MigrationsPath); err != nil {
		return nil, err
	}

	cacheRedis, err := cache.InitServer(ctx, cfg.RedisConnection)
	if err != nil {
		return nil, err
	}

	jwtMaker := jwt.NewJWTMaker(cfg.JWTSecretKey)
	transport := smtp.NewTransport(cfg, logger)
	senderService := senderservice.New(transport, cfg.OTP, logger)
	receiptsClient := receipts.NewClient(cfg.Receipts)

	subscriptionService := subservice.New(db, cacheRedis, receiptsClient, cfg.Subscription, logger)
	otpService := otpservice.New(db, db, senderService, cfg.OTP, logger)
	authService := authservice.New(db, db, db, otpService, subscriptionService,
		jwtMaker, cfg.JWTToken, cfg.OTP, logger)

	router := chi.NewRouter()
	RegisterRoutes(router, logger, authService, otpService, subscriptionService, db)

	srv := &http.Server{
		Addr:         cfg.AddressHTTP,
		Handler:      router,
		ReadTimeout:  cfg.TimeoutHTTP,
		WriteTimeout: cfg.TimeoutHTTP,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return &App{
		server: srv,
		logger: logger,
		db:     db,
	}, nil
}

// Run запускает HTTP сервер и останавливает его по отмене контекста.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server starting on", slog.String("address", a.server.Addr))
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
		} else {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		timeoutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		a.logger.Info("shutting down HTTP server gracefully")
		err := a.server.Shutdown(timeoutCtx)
		if closeErr := a.db.DB.Close(); closeErr != nil {
			a.logger.Error("failed to close storage", slog.Any("err", closeErr))
		}
		return err
	}
}
