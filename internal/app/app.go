package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hobbystash/account-service/internal/config"
	"github.com/hobbystash/account-service/internal/handler"
	"github.com/hobbystash/account-service/internal/mailqueue"
	"github.com/hobbystash/account-service/internal/notify"
	"github.com/hobbystash/account-service/internal/repository"
	"github.com/hobbystash/account-service/internal/service"
	"github.com/hobbystash/account-service/internal/utils"
	"github.com/hobbystash/account-service/pkg/observability"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
)

const (
	shutdownTimeout = 5 * time.Second

	defaultSessionTTL = 7 * 24 * time.Hour
)

type App struct {
	infra  Infrastructure
	config *config.Config
	router *gin.Engine
	server *http.Server

	sessions   *service.SessionRegistry
	mailWorker *mailqueue.Worker
}

func NewApp(infra Infrastructure, cfg *config.Config) (*App, error) {
	repos := repository.NewRepositories(infra.Postgres())

	jwtManager := utils.NewJWTManager(
		cfg.JWT.Secret,
		cfg.JWT.AccessTokenExpiry.Duration,
	)

	metrics, err := observability.NewAuthMetrics("account-service")
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}

	mailQueue := mailqueue.NewQueue(infra.Redis())
	notifier := notify.NewEmailNotifier(cfg.SMTP, cfg.PublicBaseURL, infra.Logger())
	mailWorker := mailqueue.NewWorker(mailQueue, notifier, infra.Logger())

	sessions := service.NewSessionRegistry(
		repos.Session,
		repos.User,
		jwtManager,
		config.ParseTTL(cfg.Session.TTL, defaultSessionTTL),
		metrics,
		infra.Logger(),
	)

	tokens := service.NewOneTimeTokenFlow(
		repos.User,
		mailQueue,
		cfg.Tokens.VerificationExpiry.Duration,
		cfg.Tokens.ResetExpiry.Duration,
		metrics,
		infra.Logger(),
	)

	authService := service.NewAuthService(
		repos.User,
		sessions,
		tokens,
		jwtManager,
		cfg.Security.BCryptCost,
		metrics,
		infra.Logger(),
	)

	authHandler := handler.NewAuthHandler(authService)
	healthChecker := NewHealthChecker(infra)

	router := gin.Default()
	router.Use(otelgin.Middleware("account-service"))
	router.Use(handler.LoggerMiddleware(infra.Logger()))
	router.Use(handler.CORSMiddleware(cfg.CORS.AllowedOrigins, cfg.CORS.AllowedMethods, cfg.CORS.AllowedHeaders))

	setupRoutes(router, authHandler, authService, healthChecker, infra.MetricsHandler())

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout.Duration,
		WriteTimeout: cfg.Server.WriteTimeout.Duration,
	}

	return &App{
		infra:      infra,
		config:     cfg,
		router:     router,
		server:     srv,
		sessions:   sessions,
		mailWorker: mailWorker,
	}, nil
}

func (a *App) Router() *gin.Engine {
	return a.router
}

func setupRoutes(
	router *gin.Engine,
	authHandler *handler.AuthHandler,
	authService service.AuthService,
	healthChecker *HealthChecker,
	metricsHandler http.Handler,
) {
	router.GET("/metrics", observability.PrometheusHandler(metricsHandler))
	router.GET("/health", healthChecker.Handler)

	api := router.Group("/api/v1")
	{
		auth := api.Group("/auth")
		{
			auth.POST("/register", authHandler.Register)
			auth.POST("/login", authHandler.Login)
			auth.POST("/refresh", authHandler.Refresh)
			auth.POST("/verify-email", authHandler.VerifyEmail)
			auth.POST("/resend-verification", authHandler.ResendVerification)
			auth.POST("/forgot-password", authHandler.ForgotPassword)
			auth.POST("/reset-password", authHandler.ResetPassword)

			auth.POST("/logout", handler.AuthMiddleware(authService), authHandler.Logout)
			auth.POST("/logout-all", handler.AuthMiddleware(authService), authHandler.LogoutAll)
			auth.GET("/sessions", handler.AuthMiddleware(authService), authHandler.ListSessions)
			auth.GET("/me", handler.AuthMiddleware(authService), authHandler.GetMe)
			auth.POST("/change-password", handler.AuthMiddleware(authService), authHandler.ChangePassword)
			auth.DELETE("/account", handler.AuthMiddleware(authService), authHandler.DeleteAccount)
		}
	}
}

func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go a.mailWorker.Run(ctx)
	go a.runSessionJanitor(ctx)

	errChan := make(chan error, 1)

	go func() {
		a.infra.Logger().Info("Application starting",
			zap.String("host", a.config.Server.Host),
			zap.String("port", a.config.Server.Port),
		)

		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.infra.Logger().Error("Server error", zap.Error(err))
			errChan <- err
		}
	}()

	var serverErr error
	select {
	case err := <-errChan:
		a.infra.Logger().Error("Application failed to start", zap.Error(err))
		serverErr = err
	case <-ctx.Done():
		a.infra.Logger().Info("Application stopped by context")
	}

	if err := a.Shutdown(); err != nil {
		a.infra.Logger().Error("Shutdown error", zap.Error(err))
		if serverErr != nil {
			return errors.Join(serverErr, err)
		}
		return err
	}

	return serverErr
}

// runSessionJanitor periodically deletes refresh sessions past their expiry.
// Revoked rows inside their window survive so secret reuse stays detectable.
func (a *App) runSessionJanitor(ctx context.Context) {
	interval := a.config.Session.CleanupInterval.Duration
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.sessions.DeleteExpired(ctx); err != nil {
				a.infra.Logger().Error("Session cleanup failed", zap.Error(err))
			}
		}
	}
}

func (a *App) Shutdown() error {
	a.infra.Logger().Info("Application shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	errs := make(chan error, 2)

	go func() {
		errs <- a.server.Shutdown(ctx)
	}()

	go func() {
		errs <- a.infra.Shutdown(ctx)
	}()

	err := errors.Join(<-errs, <-errs)
	if err != nil {
		a.infra.Logger().Error("Shutdown failed", zap.Error(err))
		return err
	}

	a.infra.Logger().Info("Application exited successfully")
	return nil
}
