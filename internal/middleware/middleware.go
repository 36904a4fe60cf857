package middleware

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/time/rate"

	"github.com/iamgideonidoko/signet-match/internal/config"
	"github.com/iamgideonidoko/signet-match/internal/models"
	"github.com/iamgideonidoko/signet-match/internal/telemetry"
	"github.com/iamgideonidoko/signet-match/pkg/logger"
	"github.com/iamgideonidoko/signet-match/pkg/similarity"
	"github.com/iamgideonidoko/signet-match/pkg/validator"
)

const (
	LocalRecognizeRequest = "recognize_request"
	LocalCoreHash         = "core_hash"
	LocalAdminSubject     = "admin_subject"
)

// RateStore is a shared counter store; *cache.Cache satisfies it.
type RateStore interface {
	CheckRateLimit(ctx context.Context, identifier string, limit int, window time.Duration) (bool, error)
}

type RateLimiter struct {
	store  RateStore
	config *config.RateLimitConfig
	local  *localLimiters
	log    *logger.Logger
}

// NewRateLimiter limits through store and falls back to in-process token
// buckets when store is nil or erroring.
func NewRateLimiter(store RateStore, config *config.RateLimitConfig, log *logger.Logger) *RateLimiter {
	return &RateLimiter{
		store:  store,
		config: config,
		local:  newLocalLimiters(),
		log:    log,
	}
}

func (rl *RateLimiter) allow(ctx context.Context, identifier string, limit int, window time.Duration) bool {
	if rl.store != nil {
		allowed, err := rl.store.CheckRateLimit(ctx, identifier, limit, window)
		if err == nil {
			return allowed
		}
		rl.log.Warn("Shared rate limit unavailable, using local limiter", map[string]any{
			"error": err.Error(),
		})
	}
	return rl.local.get(identifier, limit, window).Allow()
}

func tooManyRequests(c *fiber.Ctx, msg string, window time.Duration) error {
	c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(window.Seconds())))
	return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
		"error":       msg,
		"retry_after": window.Seconds(),
	})
}

// LimitByIP rate limits requests by IP address.
func (rl *RateLimiter) LimitByIP() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !rl.allow(c.Context(), "ip:"+c.IP(), rl.config.Requests, rl.config.Window) {
			return tooManyRequests(c, "Rate limit exceeded", rl.config.Window)
		}
		return c.Next()
	}
}

// LimitByFingerprint rate limits by the bundle's core hash. It must run after
// ParseRecognizeRequest.
func (rl *RateLimiter) LimitByFingerprint() fiber.Handler {
	return func(c *fiber.Ctx) error {
		coreHash, ok := c.Locals(LocalCoreHash).(string)
		if !ok || coreHash == "" {
			return c.Next()
		}

		if !rl.allow(c.Context(), "fp:"+coreHash, rl.config.RequestsByFingerprint, rl.config.FingerprintWindow) {
			return tooManyRequests(c, "Fingerprint rate limit exceeded", rl.config.FingerprintWindow)
		}
		return c.Next()
	}
}

type localLimiter struct {
	limiter  *rate.Limiter
	lastUsed time.Time
}

// localLimiters holds one token bucket per identifier, refilling limit tokens per window.
type localLimiters struct {
	mu       sync.RWMutex
	limiters map[string]*localLimiter
	maxIdle  time.Duration
}

func newLocalLimiters() *localLimiters {
	return &localLimiters{
		limiters: make(map[string]*localLimiter),
		maxIdle:  time.Hour,
	}
}

func (l *localLimiters) get(key string, limit int, window time.Duration) *rate.Limiter {
	now := time.Now()

	l.mu.RLock()
	entry, exists := l.limiters[key]
	l.mu.RUnlock()
	if exists {
		l.mu.Lock()
		entry.lastUsed = now
		l.mu.Unlock()
		return entry.limiter
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if entry, exists := l.limiters[key]; exists {
		entry.lastUsed = now
		return entry.limiter
	}

	for k, e := range l.limiters {
		if now.Sub(e.lastUsed) > l.maxIdle {
			delete(l.limiters, k)
		}
	}

	every := rate.Inf
	if limit > 0 && window > 0 {
		every = rate.Limit(float64(limit) / window.Seconds())
	}
	entry = &localLimiter{limiter: rate.NewLimiter(every, max(limit, 1)), lastUsed: now}
	l.limiters[key] = entry
	return entry.limiter
}

// ParseRecognizeRequest decodes, sanitizes and validates the recognize body,
// then leaves the request and its core hash in Locals.
func ParseRecognizeRequest(anonymize bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req models.RecognizeRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid request body",
			})
		}

		validator.SanitizeFingerprint(&req.Fingerprint)
		if err := validator.ValidateRecognizeRequest(req); err != nil {
			return ValidationFailed(c, err)
		}

		req.IPAddress = c.IP()
		if anonymize {
			req.IPAddress = AnonymizeIP(req.IPAddress)
		}

		c.Locals(LocalRecognizeRequest, req)
		c.Locals(LocalCoreHash, similarity.ComputeCoreHash(req.Fingerprint))
		return c.Next()
	}
}

// ValidationFailed writes a 400 with field-level details when err carries them.
func ValidationFailed(c *fiber.Ctx, err error) error {
	body := fiber.Map{"error": "Validation failed"}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		body["details"] = verrs
	} else {
		body["error"] = err.Error()
	}
	return c.Status(fiber.StatusBadRequest).JSON(body)
}

// AdminAuth accepts HMAC-signed bearer tokens. An empty secret disables the
// admin API.
func AdminAuth(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if secret == "" {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"error": "Admin API disabled",
			})
		}

		authHeader := c.Get(fiber.HeaderAuthorization)
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Authorization header required",
			})
		}

		tokenString, found := strings.CutPrefix(authHeader, "Bearer ")
		if !found || tokenString == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid authorization header format",
			})
		}

		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return []byte(secret), nil
		}, jwt.WithExpirationRequired())
		if err != nil || !token.Valid {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid or expired token",
			})
		}

		if sub, err := token.Claims.GetSubject(); err == nil && sub != "" {
			c.Locals(LocalAdminSubject, sub)
		}
		return c.Next()
	}
}

func CORS(origins []string) fiber.Handler {
	allowedOrigins := make(map[string]bool)
	for _, origin := range origins {
		allowedOrigins[origin] = true
	}

	return func(c *fiber.Ctx) error {
		origin := c.Get("Origin")

		if origin != "" && (allowedOrigins["*"] || allowedOrigins[origin]) {
			c.Set("Access-Control-Allow-Origin", origin)
			c.Set("Access-Control-Allow-Methods", "GET, POST, PATCH, OPTIONS")
			c.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			c.Set("Access-Control-Max-Age", "3600")
			c.Vary("Origin")
		}

		if c.Method() == fiber.MethodOptions {
			return c.SendStatus(http.StatusNoContent)
		}

		return c.Next()
	}
}

// Logger logs each request and records HTTP metrics.
func Logger(log *logger.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		duration := time.Since(start)

		status := c.Response().StatusCode()
		var fe *fiber.Error
		if errors.As(err, &fe) {
			status = fe.Code
		}

		route := c.Route().Path
		telemetry.HTTPRequests.WithLabelValues(c.Method(), route, strconv.Itoa(status)).Inc()
		telemetry.HTTPDuration.WithLabelValues(c.Method(), route).Observe(duration.Seconds())

		fields := map[string]any{
			"method":      c.Method(),
			"path":        c.Path(),
			"status":      status,
			"duration_ms": float64(duration.Microseconds()) / 1000,
			"ip":          c.IP(),
		}
		if status >= fiber.StatusInternalServerError {
			log.Warn("Request failed", fields)
		} else {
			log.Debug("Request handled", fields)
		}

		return err
	}
}

func Recover(log *logger.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		defer func() {
			if r := recover(); r != nil {
				log.Error("Recovered from panic", map[string]any{
					"panic": fmt.Sprint(r),
					"path":  c.Path(),
				})
				_ = c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
					"error": "Internal server error",
				})
			}
		}()
		return c.Next()
	}
}

// AnonymizeIP zeroes the host part: the last octet of IPv4, everything past /48 of IPv6.
func AnonymizeIP(ip string) string {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return ip
	}
	if v4 := parsed.To4(); v4 != nil {
		return v4.Mask(net.CIDRMask(24, 32)).String()
	}
	return parsed.Mask(net.CIDRMask(48, 128)).String()
}
