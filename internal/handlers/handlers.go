package handlers

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/iamgideonidoko/signet-match/internal/middleware"
	"github.com/iamgideonidoko/signet-match/internal/models"
	"github.com/iamgideonidoko/signet-match/internal/services"
	"github.com/iamgideonidoko/signet-match/internal/telemetry"
	"github.com/iamgideonidoko/signet-match/pkg/logger"
	"github.com/iamgideonidoko/signet-match/pkg/matcher"
	"github.com/iamgideonidoko/signet-match/pkg/validator"
)

// Check reports the health of one dependency.
type Check func(ctx context.Context) error

type Handler struct {
	service *services.RecognitionService
	matcher *matcher.Matcher
	checks  map[string]Check
	log     *logger.Logger
}

func NewHandler(service *services.RecognitionService, m *matcher.Matcher, checks map[string]Check, log *logger.Logger) *Handler {
	return &Handler{
		service: service,
		matcher: m,
		checks:  checks,
		log:     log,
	}
}

// RouteOptions carries the pieces of configuration the routes need.
type RouteOptions struct {
	RateLimiter    *middleware.RateLimiter
	AdminJWTSecret string
	AnonymizeIPs   bool
	EnableMetrics  bool
}

// Register mounts every route on app.
func (h *Handler) Register(app *fiber.App, opts RouteOptions) {
	app.Get("/health", h.Health)
	app.Get("/stats", h.Stats)
	if opts.EnableMetrics {
		telemetry.InitMetrics()
		app.Get("/metrics", adaptor.HTTPHandler(telemetry.Handler()))
	}

	v1 := app.Group("/v1")

	recognize := []fiber.Handler{}
	if opts.RateLimiter != nil {
		recognize = append(recognize, opts.RateLimiter.LimitByIP())
	}
	recognize = append(recognize, middleware.ParseRecognizeRequest(opts.AnonymizeIPs))
	if opts.RateLimiter != nil {
		recognize = append(recognize, opts.RateLimiter.LimitByFingerprint())
	}
	recognize = append(recognize, h.Recognize)
	v1.Post("/recognize", recognize...)

	match := []fiber.Handler{h.Match}
	if opts.RateLimiter != nil {
		match = append([]fiber.Handler{opts.RateLimiter.LimitByIP()}, match...)
	}
	v1.Post("/match", match...)

	admin := v1.Group("/admin", middleware.AdminAuth(opts.AdminJWTSecret))
	admin.Get("/config", h.GetConfig)
	admin.Patch("/config", h.PatchConfig)
	admin.Post("/cache/clear", h.ClearCache)
}

// Recognize handles POST /v1/recognize.
func (h *Handler) Recognize(c *fiber.Ctx) error {
	req, ok := c.Locals(middleware.LocalRecognizeRequest).(models.RecognizeRequest)
	if !ok {
		return fiber.NewError(fiber.StatusInternalServerError, "recognize request not parsed")
	}

	resp, err := h.service.Recognize(c.UserContext(), req)
	if err != nil {
		h.log.Error("Recognition failed", map[string]any{
			"error":     err.Error(),
			"tenant_id": req.TenantID,
			"ip":        req.IPAddress,
		})
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to recognize device",
		})
	}

	h.log.WithField("request_id", resp.RequestID).Info("Recognition complete", map[string]any{
		"tenant_id":      req.TenantID,
		"fingerprint_id": resp.FingerprintID,
		"recommendation": resp.Recommendation,
		"confidence":     resp.Confidence,
	})
	return c.Status(fiber.StatusOK).JSON(resp)
}

// Match handles POST /v1/match.
func (h *Handler) Match(c *fiber.Ctx) error {
	var req models.MatchRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	validator.SanitizeFingerprint(&req.Current)
	if err := validator.ValidateMatchRequest(req); err != nil {
		return middleware.ValidationFailed(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(h.service.Match(c.UserContext(), req))
}

// GetConfig handles GET /v1/admin/config.
func (h *Handler) GetConfig(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(h.matcher.Config())
}

// PatchConfig handles PATCH /v1/admin/config.
func (h *Handler) PatchConfig(c *fiber.Ctx) error {
	var patch matcher.ConfigPatch
	if err := c.BodyParser(&patch); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if patch.Empty() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Patch changes nothing",
		})
	}

	cfg, err := h.matcher.UpdateConfig(patch)
	if err != nil {
		status := fiber.StatusInternalServerError
		if errors.Is(err, matcher.ErrInvalidConfig) {
			status = fiber.StatusUnprocessableEntity
		}
		return c.Status(status).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	h.log.Info("Matcher config patched", map[string]any{
		"admin": c.Locals(middleware.LocalAdminSubject),
	})
	return c.Status(fiber.StatusOK).JSON(cfg)
}

// ClearCache handles POST /v1/admin/cache/clear.
func (h *Handler) ClearCache(c *fiber.Ctx) error {
	cleared := h.matcher.CacheLen()
	h.matcher.ClearCache()
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"cleared": cleared,
	})
}

// Health handles GET /health.
func (h *Handler) Health(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := "healthy"
	components := make(fiber.Map, len(names))
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			status = "degraded"
			components[name] = err.Error()
			continue
		}
		components[name] = "ok"
	}

	code := fiber.StatusOK
	if status != "healthy" {
		code = fiber.StatusServiceUnavailable
	}
	return c.Status(code).JSON(fiber.Map{
		"status":     status,
		"service":    "signet-match",
		"algorithm":  matcher.AlgorithmVersion,
		"components": components,
	})
}

// Stats handles GET /stats.
func (h *Handler) Stats(c *fiber.Ctx) error {
	stats, err := h.service.Stats(c.UserContext())
	if err != nil {
		h.log.Error("Failed to read stats", map[string]any{"error": err.Error()})
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to read stats",
		})
	}
	telemetry.StoredFingerprints.Set(float64(stats.Stored))
	if db := stats.Database; db != nil {
		telemetry.DatabaseConnections.WithLabelValues("in_use").Set(float64(db.InUse))
		telemetry.DatabaseConnections.WithLabelValues("idle").Set(float64(db.Idle))
	}
	return c.Status(fiber.StatusOK).JSON(stats)
}
