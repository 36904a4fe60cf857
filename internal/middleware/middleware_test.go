package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iamgideonidoko/signet-match/internal/config"
	"github.com/iamgideonidoko/signet-match/internal/models"
	"github.com/iamgideonidoko/signet-match/pkg/logger"
	"github.com/iamgideonidoko/signet-match/pkg/similarity"
)

type fakeStore struct {
	counts map[string]int
	err    error
}

func (f *fakeStore) CheckRateLimit(_ context.Context, id string, limit int, _ time.Duration) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	f.counts[id]++
	return f.counts[id] <= limit, nil
}

func ok(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) }

func rateConfig(limit int) *config.RateLimitConfig {
	return &config.RateLimitConfig{
		Requests:              limit,
		Window:                time.Minute,
		RequestsByFingerprint: limit,
		FingerprintWindow:     time.Hour,
	}
}

func TestLimitByIP(t *testing.T) {
	store := &fakeStore{counts: map[string]int{}}
	app := fiber.New()
	app.Get("/", NewRateLimiter(store, rateConfig(2), logger.Nop()).LimitByIP(), ok)

	for i, want := range []int{200, 200, 429} {
		resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
		require.NoError(t, err)
		assert.Equal(t, want, resp.StatusCode, "request %d", i)
		if want == 429 {
			assert.Equal(t, "60", resp.Header.Get("Retry-After"))
		}
	}
}

func TestLimitByIP_FallsBackToLocal(t *testing.T) {
	store := &fakeStore{err: errors.New("redis down")}
	app := fiber.New()
	app.Get("/", NewRateLimiter(store, rateConfig(2), logger.Nop()).LimitByIP(), ok)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
		require.NoError(t, err)
		codes = append(codes, resp.StatusCode)
	}
	assert.Equal(t, []int{200, 200, 429}, codes)
}

func recognizeBody(t *testing.T, req models.RecognizeRequest) io.Reader {
	t.Helper()
	b, err := json.Marshal(req)
	require.NoError(t, err)
	return bytes.NewReader(b)
}

func postJSON(body io.Reader) *http.Request {
	req := httptest.NewRequest("POST", "/", body)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestParseRecognizeRequest(t *testing.T) {
	app := fiber.New()
	var got models.RecognizeRequest
	var hash string
	app.Post("/", ParseRecognizeRequest(true), func(c *fiber.Ctx) error {
		got = c.Locals(LocalRecognizeRequest).(models.RecognizeRequest)
		hash = c.Locals(LocalCoreHash).(string)
		return c.SendStatus(fiber.StatusOK)
	})

	resp, err := app.Test(postJSON(recognizeBody(t, models.RecognizeRequest{
		TenantID:    "acme",
		Fingerprint: models.SampleFingerprint(),
	})))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "acme", got.TenantID)
	assert.NotEmpty(t, got.IPAddress)
	assert.Equal(t, AnonymizeIP(got.IPAddress), got.IPAddress)
	assert.Equal(t, similarity.ComputeCoreHash(models.SampleFingerprint()), hash)
}

func TestParseRecognizeRequest_Rejects(t *testing.T) {
	app := fiber.New()
	app.Post("/", ParseRecognizeRequest(false), ok)

	resp, err := app.Test(postJSON(bytes.NewReader([]byte("{not json"))))
	require.NoError(t, err)
	assert.Equal(t, 400, resp.StatusCode)

	resp, err = app.Test(postJSON(recognizeBody(t, models.RecognizeRequest{Fingerprint: models.SampleFingerprint()})))
	require.NoError(t, err)
	assert.Equal(t, 400, resp.StatusCode)

	var body struct {
		Error   string `json:"error"`
		Details []struct {
			Field string `json:"field"`
		} `json:"details"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Details, 1)
	assert.Equal(t, "tenant_id", body.Details[0].Field)
}

func TestLimitByFingerprint(t *testing.T) {
	store := &fakeStore{counts: map[string]int{}}
	app := fiber.New()
	app.Post("/", ParseRecognizeRequest(false), NewRateLimiter(store, rateConfig(1), logger.Nop()).LimitByFingerprint(), ok)

	send := func() int {
		resp, err := app.Test(postJSON(recognizeBody(t, models.RecognizeRequest{
			TenantID:    "acme",
			Fingerprint: models.SampleFingerprint(),
		})))
		require.NoError(t, err)
		return resp.StatusCode
	}
	assert.Equal(t, 200, send())
	assert.Equal(t, 429, send())
	assert.Equal(t, 1, len(store.counts))
}

func signed(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func TestAdminAuth(t *testing.T) {
	const secret = "test-secret"
	app := fiber.New()
	var subject any
	app.Get("/admin", AdminAuth(secret), func(c *fiber.Ctx) error {
		subject = c.Locals(LocalAdminSubject)
		return c.SendStatus(fiber.StatusOK)
	})

	valid := signed(t, secret, jwt.MapClaims{"sub": "ops", "exp": time.Now().Add(time.Hour).Unix()})
	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", 401},
		{"not bearer", "Basic abc", 401},
		{"wrong secret", "Bearer " + signed(t, "other", jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()}), 401},
		{"expired", "Bearer " + signed(t, secret, jwt.MapClaims{"exp": time.Now().Add(-time.Hour).Unix()}), 401},
		{"no expiry", "Bearer " + signed(t, secret, jwt.MapClaims{"sub": "ops"}), 401},
		{"valid", "Bearer " + valid, 200},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/admin", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
	assert.Equal(t, "ops", subject)
}

func TestAdminAuth_Disabled(t *testing.T) {
	app := fiber.New()
	app.Get("/admin", AdminAuth(""), ok)

	resp, err := app.Test(httptest.NewRequest("GET", "/admin", nil))
	require.NoError(t, err)
	assert.Equal(t, 503, resp.StatusCode)
}

func TestCORS(t *testing.T) {
	app := fiber.New()
	app.Use(CORS([]string{"https://app.example"}))
	app.Get("/", ok)

	req := httptest.NewRequest("OPTIONS", "/", nil)
	req.Header.Set("Origin", "https://app.example")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 204, resp.StatusCode)
	assert.Equal(t, "https://app.example", resp.Header.Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Origin", "https://evil.example")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestRecover(t *testing.T) {
	app := fiber.New()
	app.Use(Recover(logger.Nop()))
	app.Use(Logger(logger.Nop()))
	app.Get("/", func(*fiber.Ctx) error { panic("boom") })

	resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	assert.Equal(t, 500, resp.StatusCode)
}

func TestAnonymizeIP(t *testing.T) {
	assert.Equal(t, "192.168.1.0", AnonymizeIP("192.168.1.77"))
	assert.Equal(t, "2001:db8:abcd::", AnonymizeIP("2001:db8:abcd:12::1"))
	assert.Equal(t, "not-an-ip", AnonymizeIP("not-an-ip"))
}
