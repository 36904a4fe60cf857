package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/iamgideonidoko/signet-match/pkg/matcher"
)

type Config struct {
	API        APIConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Matcher    MatcherConfig
	RateLimit  RateLimitConfig
	Security   SecurityConfig
	Monitoring MonitoringConfig
}

type APIConfig struct {
	Port        string
	Host        string
	Environment string
	BodyLimit   int
}

type DatabaseConfig struct {
	// Driver is "postgres" or "sqlite".
	Driver       string
	URL          string
	MaxConns     int
	MaxIdleConns int
}

type RedisConfig struct {
	URL      string
	Password string
	DB       int
	// HintTTL bounds how long a core hash keeps pointing at a fingerprint id.
	HintTTL time.Duration
}

type MatcherConfig struct {
	// ConfigFile optionally points at a TOML overlay applied after env values.
	ConfigFile string
	Engine     matcher.Config
	// CandidateLimit caps how many stored fingerprints are loaded per recognition.
	// Zero follows the live matcher config (twice max_candidates_evaluated).
	CandidateLimit int
}

type RateLimitConfig struct {
	Requests              int
	Window                time.Duration
	RequestsByFingerprint int
	FingerprintWindow     time.Duration
}

type SecurityConfig struct {
	CORSOrigins    []string
	TrustedProxies []string
	AdminJWTSecret string
	AnonymizeIPs   bool
}

type MonitoringConfig struct {
	EnableMetrics bool
	LogLevel      string
}

func Load() (*Config, error) {
	cfg := &Config{
		API: APIConfig{
			Port:        getEnv("API_PORT", "6969"),
			Host:        getEnv("API_HOST", "0.0.0.0"),
			Environment: getEnv("ENVIRONMENT", "development"),
			BodyLimit:   getEnvInt("API_BODY_LIMIT", 2*1024*1024),
		},
		Database: DatabaseConfig{
			Driver:       getEnv("DATABASE_DRIVER", "postgres"),
			URL:          getEnv("DATABASE_URL", "postgresql://signet:@localhost:5432/signet?sslmode=disable"),
			MaxConns:     getEnvInt("DB_MAX_CONNS", 25),
			MaxIdleConns: getEnvInt("DB_MAX_IDLE_CONNS", 5),
		},
		Redis: RedisConfig{
			URL:      getEnv("REDIS_URL", "redis://localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			HintTTL:  getEnvDuration("REDIS_HINT_TTL", 48*time.Hour),
		},
		Matcher: MatcherConfig{
			ConfigFile: getEnv("MATCHER_CONFIG_FILE", ""),
			Engine:     matcherFromEnv(),
		},
		RateLimit: RateLimitConfig{
			Requests:              getEnvInt("RATE_LIMIT_REQUESTS", 1000),
			Window:                getEnvDuration("RATE_LIMIT_WINDOW", 1*time.Minute),
			RequestsByFingerprint: getEnvInt("RATE_LIMIT_BY_FINGERPRINT", 2000),
			FingerprintWindow:     getEnvDuration("RATE_LIMIT_FINGERPRINT_WINDOW", 1*time.Hour),
		},
		Security: SecurityConfig{
			CORSOrigins:    getEnvSlice("CORS_ORIGINS", []string{"*"}),
			TrustedProxies: getEnvSlice("TRUSTED_PROXIES", []string{}),
			AdminJWTSecret: getEnv("ADMIN_JWT_SECRET", ""),
			AnonymizeIPs:   getEnvBool("ANONYMIZE_IPS", true),
		},
		Monitoring: MonitoringConfig{
			EnableMetrics: getEnvBool("ENABLE_METRICS", true),
			LogLevel:      getEnv("LOG_LEVEL", "info"),
		},
	}

	if cfg.Matcher.ConfigFile != "" {
		patch, err := matcher.LoadPatchFile(cfg.Matcher.ConfigFile)
		if err != nil {
			return nil, err
		}
		cfg.Matcher.Engine = patch.Apply(cfg.Matcher.Engine)
	}
	cfg.Matcher.CandidateLimit = getEnvInt("MATCHER_CANDIDATE_LIMIT", 0)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func matcherFromEnv() matcher.Config {
	m := matcher.DefaultConfig()

	m.Thresholds.HighConfidenceMatch = getEnvFloat("MATCHER_HIGH_CONFIDENCE", m.Thresholds.HighConfidenceMatch)
	m.Thresholds.MediumConfidenceMatch = getEnvFloat("MATCHER_MEDIUM_CONFIDENCE", m.Thresholds.MediumConfidenceMatch)
	m.Thresholds.LowConfidenceMatch = getEnvFloat("MATCHER_LOW_CONFIDENCE", m.Thresholds.LowConfidenceMatch)
	m.Thresholds.MinimumSimilarity = getEnvFloat("MATCHER_MIN_SIMILARITY", m.Thresholds.MinimumSimilarity)

	m.Performance.MaxCandidatesEvaluated = getEnvInt("MATCHER_MAX_CANDIDATES", m.Performance.MaxCandidatesEvaluated)
	m.Performance.EnableParallelProcessing = getEnvBool("MATCHER_PARALLEL", m.Performance.EnableParallelProcessing)
	m.Performance.CacheResults = getEnvBool("MATCHER_CACHE_RESULTS", m.Performance.CacheResults)
	m.Performance.CacheSize = getEnvInt("MATCHER_CACHE_SIZE", m.Performance.CacheSize)
	m.Performance.CacheTTL = matcher.Duration(getEnvDuration("MATCHER_CACHE_TTL", m.Performance.CacheTTL.Std()))
	m.Performance.Workers = getEnvInt("MATCHER_WORKERS", m.Performance.Workers)

	m.Security.MaxMatchAge = matcher.Duration(getEnvDuration("MATCHER_MAX_MATCH_AGE", m.Security.MaxMatchAge.Std()))
	m.Security.RequireBehavioralData = getEnvBool("MATCHER_REQUIRE_BEHAVIORAL", m.Security.RequireBehavioralData)
	m.Security.BlockSuspiciousPatterns = getEnvBool("MATCHER_BLOCK_SUSPICIOUS", m.Security.BlockSuspiciousPatterns)
	return m
}

func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.Database.Driver != "postgres" && c.Database.Driver != "sqlite" {
		return fmt.Errorf("DATABASE_DRIVER must be postgres or sqlite, got %q", c.Database.Driver)
	}
	if err := c.Matcher.Engine.Validate(); err != nil {
		return err
	}
	if c.Matcher.CandidateLimit < 0 {
		return errors.New("MATCHER_CANDIDATE_LIMIT must not be negative")
	}
	if c.API.Environment == "production" && c.Security.AdminJWTSecret == "" {
		return errors.New("ADMIN_JWT_SECRET is required in production")
	}
	return nil
}

// DSN returns the driver-specific connection string.
func (d DatabaseConfig) DSN() string {
	if d.Driver == "sqlite" {
		return strings.TrimPrefix(d.URL, "sqlite://")
	}
	return d.URL
}

// Host returns the database host for logging; empty for sqlite.
func (d DatabaseConfig) Host() string {
	if d.Driver == "sqlite" {
		return ""
	}
	u, err := url.Parse(d.URL)
	if err != nil {
		return ""
	}
	return u.Host
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

// getEnvDuration also accepts whole days ("90d").
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := matcher.ParseDuration(value); err == nil {
			return duration.Std()
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		var result []string
		for _, item := range strings.Split(value, ",") {
			if item = strings.TrimSpace(item); item != "" {
				result = append(result, item)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}
