package matcher

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// ConfigPatch is a partial Config. Nil fields keep the current value.
type ConfigPatch struct {
	HighConfidenceMatch   *float64 `json:"high_confidence_match,omitempty" toml:"high_confidence_match,omitempty"`
	MediumConfidenceMatch *float64 `json:"medium_confidence_match,omitempty" toml:"medium_confidence_match,omitempty"`
	LowConfidenceMatch    *float64 `json:"low_confidence_match,omitempty" toml:"low_confidence_match,omitempty"`
	MinimumSimilarity     *float64 `json:"minimum_similarity,omitempty" toml:"minimum_similarity,omitempty"`

	MinimumComponentsRequired *int     `json:"minimum_components_required,omitempty" toml:"minimum_components_required,omitempty"`
	MinimumEntropy            *float64 `json:"minimum_entropy,omitempty" toml:"minimum_entropy,omitempty"`
	MaximumRiskIndicators     *int     `json:"maximum_risk_indicators,omitempty" toml:"maximum_risk_indicators,omitempty"`
	MinimumQualityScore       *float64 `json:"minimum_quality_score,omitempty" toml:"minimum_quality_score,omitempty"`
	MinimumConfidence         *float64 `json:"minimum_confidence,omitempty" toml:"minimum_confidence,omitempty"`

	MaxCandidatesEvaluated   *int      `json:"max_candidates_evaluated,omitempty" toml:"max_candidates_evaluated,omitempty"`
	EnableParallelProcessing *bool     `json:"enable_parallel_processing,omitempty" toml:"enable_parallel_processing,omitempty"`
	CacheResults             *bool     `json:"cache_results,omitempty" toml:"cache_results,omitempty"`
	CacheSize                *int      `json:"cache_size,omitempty" toml:"cache_size,omitempty"`
	CacheTTL                 *Duration `json:"cache_ttl,omitempty" toml:"cache_ttl,omitempty"`

	MaxMatchAge               *Duration `json:"max_match_age,omitempty" toml:"max_match_age,omitempty"`
	RequireBehavioralData     *bool     `json:"require_behavioral_data,omitempty" toml:"require_behavioral_data,omitempty"`
	BlockSuspiciousPatterns   *bool     `json:"block_suspicious_patterns,omitempty" toml:"block_suspicious_patterns,omitempty"`
	IdenticalFingerprintLimit *int      `json:"identical_fingerprint_limit,omitempty" toml:"identical_fingerprint_limit,omitempty"`
}

// Apply returns c with every non-nil patch field written over it.
// Worker count is not patchable; the pool is sized once per Matcher.
func (p ConfigPatch) Apply(c Config) Config {
	setFloat(&c.Thresholds.HighConfidenceMatch, p.HighConfidenceMatch)
	setFloat(&c.Thresholds.MediumConfidenceMatch, p.MediumConfidenceMatch)
	setFloat(&c.Thresholds.LowConfidenceMatch, p.LowConfidenceMatch)
	setFloat(&c.Thresholds.MinimumSimilarity, p.MinimumSimilarity)

	setInt(&c.Quality.MinimumComponentsRequired, p.MinimumComponentsRequired)
	setFloat(&c.Quality.MinimumEntropy, p.MinimumEntropy)
	setInt(&c.Quality.MaximumRiskIndicators, p.MaximumRiskIndicators)
	setFloat(&c.Quality.MinimumQualityScore, p.MinimumQualityScore)
	setFloat(&c.Quality.MinimumConfidence, p.MinimumConfidence)

	setInt(&c.Performance.MaxCandidatesEvaluated, p.MaxCandidatesEvaluated)
	setBool(&c.Performance.EnableParallelProcessing, p.EnableParallelProcessing)
	setBool(&c.Performance.CacheResults, p.CacheResults)
	setInt(&c.Performance.CacheSize, p.CacheSize)
	if p.CacheTTL != nil {
		c.Performance.CacheTTL = *p.CacheTTL
	}

	if p.MaxMatchAge != nil {
		c.Security.MaxMatchAge = *p.MaxMatchAge
	}
	setBool(&c.Security.RequireBehavioralData, p.RequireBehavioralData)
	setBool(&c.Security.BlockSuspiciousPatterns, p.BlockSuspiciousPatterns)
	setInt(&c.Security.IdenticalFingerprintLimit, p.IdenticalFingerprintLimit)
	return c
}

// Empty reports whether the patch changes nothing.
func (p ConfigPatch) Empty() bool {
	return p == ConfigPatch{}
}

func setFloat(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

// LoadPatchFile decodes a TOML matcher tuning file.
func LoadPatchFile(path string) (ConfigPatch, error) {
	var patch ConfigPatch

	file, err := os.Open(path)
	if err != nil {
		return patch, fmt.Errorf("open matcher config: %w", err)
	}
	defer file.Close()

	decoder := toml.NewDecoder(file)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&patch); err != nil {
		return patch, fmt.Errorf("parse matcher config: %w", err)
	}
	return patch, nil
}

// EncodeTOML renders a full config, the format `signetctl config validate` prints.
func EncodeTOML(c Config) ([]byte, error) {
	out, err := toml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode matcher config: %w", err)
	}
	return out, nil
}
