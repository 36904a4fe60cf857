package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/joho/godotenv"

	"github.com/iamgideonidoko/signet-match/internal/config"
	"github.com/iamgideonidoko/signet-match/internal/handlers"
	"github.com/iamgideonidoko/signet-match/internal/middleware"
	"github.com/iamgideonidoko/signet-match/internal/repository"
	"github.com/iamgideonidoko/signet-match/internal/services"
	"github.com/iamgideonidoko/signet-match/internal/telemetry"
	"github.com/iamgideonidoko/signet-match/pkg/cache"
	"github.com/iamgideonidoko/signet-match/pkg/logger"
	"github.com/iamgideonidoko/signet-match/pkg/matcher"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("Failed to load config", map[string]any{"error": err.Error()})
		os.Exit(1)
	}

	logger.SetLevel(logger.ParseLevel(cfg.Monitoring.LogLevel))
	log := logger.Default()
	log.Info("Starting Signet match API", map[string]any{
		"algorithm":   matcher.AlgorithmVersion,
		"environment": cfg.API.Environment,
	})

	ctx := context.Background()

	repo, err := repository.Open(ctx, cfg.Database.Driver, cfg.Database.DSN(),
		cfg.Database.MaxConns, cfg.Database.MaxIdleConns, repository.DefaultRetryConfig)
	if err != nil {
		log.Error("Failed to open fingerprint store", map[string]any{"error": err.Error()})
		os.Exit(1)
	}
	defer repo.Close()
	log.Info("Fingerprint store ready", map[string]any{
		"driver": repo.Driver(),
		"host":   cfg.Database.Host(),
	})

	var redisCache *cache.Cache
	err = repository.WithRetry(ctx, repository.DefaultRetryConfig, func() error {
		var retryErr error
		redisCache, retryErr = cache.NewCache(cfg.Redis.URL, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.HintTTL)
		return retryErr
	})
	if err != nil {
		log.Error("Failed to connect to Redis", map[string]any{"error": err.Error()})
		os.Exit(1)
	}
	defer redisCache.Close()
	log.Info("Connected to Redis")

	matcherOpts := []matcher.Option{matcher.WithLogger(log)}
	if cfg.Monitoring.EnableMetrics {
		telemetry.InitMetrics()
		matcherOpts = append(matcherOpts, matcher.WithMetrics(telemetry.Recorder{}))
	}
	m, err := matcher.New(cfg.Matcher.Engine, matcherOpts...)
	if err != nil {
		log.Error("Invalid matcher configuration", map[string]any{"error": err.Error()})
		os.Exit(1)
	}
	defer m.Close()

	service := services.NewRecognitionService(repo, redisCache, m, cfg.Matcher.CandidateLimit,
		services.WithHints(redisCache),
		services.WithServiceLogger(log),
	)

	handler := handlers.NewHandler(service, m, map[string]handlers.Check{
		"database": repo.HealthCheck,
		"redis":    redisCache.Ping,
	}, log)

	app := fiber.New(fiber.Config{
		ServerHeader:            "Signet",
		AppName:                 "Signet Match API",
		BodyLimit:               cfg.API.BodyLimit,
		EnableTrustedProxyCheck: len(cfg.Security.TrustedProxies) > 0,
		TrustedProxies:          cfg.Security.TrustedProxies,
		ProxyHeader:             proxyHeader(cfg.Security.TrustedProxies),
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			var fe *fiber.Error
			if errors.As(err, &fe) {
				code = fe.Code
			}
			log.Error("Request error", map[string]any{
				"error": err.Error(),
				"path":  c.Path(),
				"code":  code,
			})
			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	app.Use(middleware.Recover(log))
	app.Use(middleware.Logger(log))
	app.Use(middleware.CORS(cfg.Security.CORSOrigins))

	handler.Register(app, handlers.RouteOptions{
		RateLimiter:    middleware.NewRateLimiter(redisCache, &cfg.RateLimit, log),
		AdminJWTSecret: cfg.Security.AdminJWTSecret,
		AnonymizeIPs:   cfg.Security.AnonymizeIPs,
		EnableMetrics:  cfg.Monitoring.EnableMetrics,
	})
	if cfg.Security.AdminJWTSecret == "" {
		log.Warn("ADMIN_JWT_SECRET not set, admin API disabled")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info("Shutting down gracefully...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			log.Error("Shutdown error", map[string]any{"error": err.Error()})
		}
	}()

	addr := fmt.Sprintf("%s:%s", cfg.API.Host, cfg.API.Port)
	log.Info("Signet match API listening", map[string]any{"address": addr})

	if err := app.Listen(addr); err != nil {
		log.Error("Server error", map[string]any{"error": err.Error()})
		os.Exit(1)
	}
	log.Info("Server shutdown complete")
}

// proxyHeader trusts X-Forwarded-For only when proxies are configured.
func proxyHeader(trusted []string) string {
	if len(trusted) == 0 {
		return ""
	}
	return fiber.HeaderXForwardedFor
}
