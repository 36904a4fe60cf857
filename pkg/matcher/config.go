package matcher

import (
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidConfig is wrapped by every Validate failure.
var ErrInvalidConfig = errors.New("invalid matcher config")

// Thresholds are compared against overall×confidence, except MinimumSimilarity
// which gates the raw overall score.
type Thresholds struct {
	HighConfidenceMatch   float64 `json:"high_confidence_match" toml:"high_confidence_match"`
	MediumConfidenceMatch float64 `json:"medium_confidence_match" toml:"medium_confidence_match"`
	LowConfidenceMatch    float64 `json:"low_confidence_match" toml:"low_confidence_match"`
	MinimumSimilarity     float64 `json:"minimum_similarity" toml:"minimum_similarity"`
}

type QualityRequirements struct {
	MinimumComponentsRequired int     `json:"minimum_components_required" toml:"minimum_components_required"`
	MinimumEntropy            float64 `json:"minimum_entropy" toml:"minimum_entropy"`
	MaximumRiskIndicators     int     `json:"maximum_risk_indicators" toml:"maximum_risk_indicators"`
	MinimumQualityScore       float64 `json:"minimum_quality_score" toml:"minimum_quality_score"`
	MinimumConfidence         float64 `json:"minimum_confidence" toml:"minimum_confidence"`
}

type Performance struct {
	MaxCandidatesEvaluated   int      `json:"max_candidates_evaluated" toml:"max_candidates_evaluated"`
	EnableParallelProcessing bool     `json:"enable_parallel_processing" toml:"enable_parallel_processing"`
	CacheResults             bool     `json:"cache_results" toml:"cache_results"`
	CacheSize                int      `json:"cache_size" toml:"cache_size"`
	CacheTTL                 Duration `json:"cache_ttl" toml:"cache_ttl"`
	// Workers sizes the scoring pool; 0 derives it from the CPU count.
	Workers int `json:"workers" toml:"workers"`
}

type Security struct {
	MaxMatchAge               Duration `json:"max_match_age" toml:"max_match_age"`
	RequireBehavioralData     bool     `json:"require_behavioral_data" toml:"require_behavioral_data"`
	BlockSuspiciousPatterns   bool     `json:"block_suspicious_patterns" toml:"block_suspicious_patterns"`
	IdenticalFingerprintLimit int      `json:"identical_fingerprint_limit" toml:"identical_fingerprint_limit"`
}

// Config is the immutable configuration of one Matcher.
type Config struct {
	Thresholds  Thresholds          `json:"thresholds" toml:"thresholds"`
	Quality     QualityRequirements `json:"quality" toml:"quality"`
	Performance Performance         `json:"performance" toml:"performance"`
	Security    Security            `json:"security" toml:"security"`
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Thresholds: Thresholds{
			HighConfidenceMatch:   0.95,
			MediumConfidenceMatch: 0.85,
			LowConfidenceMatch:    0.70,
			MinimumSimilarity:     0.60,
		},
		Quality: QualityRequirements{
			MinimumComponentsRequired: 8,
			MinimumEntropy:            0.7,
			MaximumRiskIndicators:     2,
			MinimumQualityScore:       0.5,
			MinimumConfidence:         0.4,
		},
		Performance: Performance{
			MaxCandidatesEvaluated:   1000,
			EnableParallelProcessing: true,
			CacheResults:             true,
			CacheSize:                10000,
			CacheTTL:                 Duration(10 * time.Minute),
		},
		Security: Security{
			MaxMatchAge:               Duration(90 * 24 * time.Hour),
			RequireBehavioralData:     false,
			BlockSuspiciousPatterns:   true,
			IdenticalFingerprintLimit: 3,
		},
	}
}

// Validate checks threshold ordering and value ranges.
func (c Config) Validate() error {
	t := c.Thresholds
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"high_confidence_match", t.HighConfidenceMatch},
		{"medium_confidence_match", t.MediumConfidenceMatch},
		{"low_confidence_match", t.LowConfidenceMatch},
		{"minimum_similarity", t.MinimumSimilarity},
		{"minimum_entropy", c.Quality.MinimumEntropy},
		{"minimum_quality_score", c.Quality.MinimumQualityScore},
		{"minimum_confidence", c.Quality.MinimumConfidence},
	} {
		// written so NaN fails too
		if !(f.v >= 0 && f.v <= 1) {
			return fmt.Errorf("%w: %s must be within [0,1], got %v", ErrInvalidConfig, f.name, f.v)
		}
	}

	if t.MinimumSimilarity > t.LowConfidenceMatch ||
		t.LowConfidenceMatch > t.MediumConfidenceMatch ||
		t.MediumConfidenceMatch > t.HighConfidenceMatch {
		return fmt.Errorf("%w: thresholds must satisfy minimum_similarity <= low <= medium <= high (got %v <= %v <= %v <= %v)",
			ErrInvalidConfig, t.MinimumSimilarity, t.LowConfidenceMatch, t.MediumConfidenceMatch, t.HighConfidenceMatch)
	}

	if c.Quality.MinimumComponentsRequired <= 0 {
		return fmt.Errorf("%w: minimum_components_required must be positive", ErrInvalidConfig)
	}
	if c.Quality.MinimumEntropy == 0 {
		return fmt.Errorf("%w: minimum_entropy must be positive", ErrInvalidConfig)
	}
	if c.Quality.MaximumRiskIndicators < 0 {
		return fmt.Errorf("%w: maximum_risk_indicators must not be negative", ErrInvalidConfig)
	}
	if c.Performance.MaxCandidatesEvaluated <= 0 {
		return fmt.Errorf("%w: max_candidates_evaluated must be positive", ErrInvalidConfig)
	}
	if c.Performance.CacheResults {
		if c.Performance.CacheSize <= 0 {
			return fmt.Errorf("%w: cache_size must be positive when caching is enabled", ErrInvalidConfig)
		}
		if c.Performance.CacheTTL < 0 {
			return fmt.Errorf("%w: cache_ttl must not be negative", ErrInvalidConfig)
		}
	}
	if c.Performance.Workers < 0 {
		return fmt.Errorf("%w: workers must not be negative", ErrInvalidConfig)
	}
	if c.Security.MaxMatchAge <= 0 {
		return fmt.Errorf("%w: max_match_age must be positive", ErrInvalidConfig)
	}
	if c.Security.IdenticalFingerprintLimit <= 0 {
		return fmt.Errorf("%w: identical_fingerprint_limit must be positive", ErrInvalidConfig)
	}
	return nil
}

// PoolSize resolves the worker count. Zero reserves a quarter of the CPUs.
func (p Performance) PoolSize() int {
	if p.Workers > 0 {
		return p.Workers
	}
	total := runtime.NumCPU()
	reserve := max(1, total/4)
	return max(1, total-reserve)
}

// Duration is a time.Duration that reads and writes as text ("10m", "90d").
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string {
	td := time.Duration(d)
	if td > 0 && td%(24*time.Hour) == 0 {
		return strconv.FormatInt(int64(td/(24*time.Hour)), 10) + "d"
	}
	return td.String()
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// ParseDuration accepts time.ParseDuration syntax plus a whole-day "d" suffix.
func ParseDuration(s string) (Duration, error) {
	s = strings.TrimSpace(s)
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q", s)
		}
		return Duration(time.Duration(n) * 24 * time.Hour), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	return Duration(d), nil
}
