package models

import (
	"maps"
	"slices"
	"time"
)

type Recommendation string

const (
	RecommendAccept    Recommendation = "accept"
	RecommendReview    Recommendation = "review"
	RecommendReject    Recommendation = "reject"
	RecommendNewDevice Recommendation = "new_device"
)

type RiskIndicator string

const (
	RiskAutomationDetected     RiskIndicator = "automation_detected"
	RiskSpoofingDetected       RiskIndicator = "spoofing_detected"
	RiskUnrealisticStability   RiskIndicator = "unrealistic_stability"
	RiskMultipleIdentical      RiskIndicator = "multiple_identical_fingerprints"
	RiskDeviceCategoryMismatch RiskIndicator = "device_category_mismatch"
)

// Suspicious reports whether the indicator belongs to the set that blocks a match
// when suspicious-pattern blocking is enabled.
func (r RiskIndicator) Suspicious() bool {
	switch r {
	case RiskAutomationDetected, RiskSpoofingDetected, RiskUnrealisticStability, RiskMultipleIdentical:
		return true
	}
	return false
}

// Named stability factors reported on a SimilarityScore.
const (
	FactorTemporalDecay     = "temporal_decay"
	FactorEnvironmentChange = "environment_change"
	FactorVisitCount        = "visit_count"
	FactorBrowserChanged    = "browser_changed"
	FactorDaysSinceSeen     = "days_since_last_seen"
	FactorCoverage          = "coverage"
	FactorEntropyRichness   = "entropy_richness"
)

type ComponentScore struct {
	Score       float64 `json:"score"`
	Weight      float64 `json:"weight"`
	Entropy     float64 `json:"entropy"`
	Reliability float64 `json:"reliability"`
	// Exact is set when both sides carried identical raw values.
	Exact bool `json:"exact"`
}

// SimilarityScore is the outcome of comparing one bundle against one stored record.
type SimilarityScore struct {
	Overall         float64                      `json:"overall"`
	Confidence      float64                      `json:"confidence"`
	ComponentScores map[Component]ComponentScore `json:"component_scores"`
	Factors         map[string]float64           `json:"factors"`
	RiskIndicators  []RiskIndicator              `json:"risk_indicators"`
}

// Clone returns a copy that shares no maps or slices with s.
func (s SimilarityScore) Clone() SimilarityScore {
	out := s
	if s.ComponentScores != nil {
		out.ComponentScores = maps.Clone(s.ComponentScores)
	}
	if s.Factors != nil {
		out.Factors = maps.Clone(s.Factors)
	}
	if s.RiskIndicators != nil {
		out.RiskIndicators = slices.Clone(s.RiskIndicators)
	}
	return out
}

// Combined is overall weighted by confidence; ranking and recommendations use it.
func (s SimilarityScore) Combined() float64 {
	return s.Overall * s.Confidence
}

// HasSuspicious reports whether any indicator is in the suspicious subset.
func (s SimilarityScore) HasSuspicious() bool {
	for _, r := range s.RiskIndicators {
		if r.Suspicious() {
			return true
		}
	}
	return false
}

type Match struct {
	FingerprintID  string          `json:"fingerprint_id"`
	UserID         *string         `json:"user_id,omitempty"`
	DeviceCategory DeviceCategory  `json:"device_category"`
	LastSeen       time.Time       `json:"last_seen"`
	Similarity     SimilarityScore `json:"similarity"`
	Combined       float64         `json:"combined"`
}

type AnalysisDetails struct {
	CandidatesProvided  int     `json:"candidates_provided"`
	CandidatesEvaluated int     `json:"candidates_evaluated"`
	ProcessingTimeMs    float64 `json:"processing_time_ms"`
	AlgorithmVersion    string  `json:"algorithm_version"`
	InputQualityScore   float64 `json:"input_quality_score"`
	CacheHits           int     `json:"cache_hits"`
	Error               string  `json:"error,omitempty"`
}

type MatchResult struct {
	PrimaryMatch          *Match          `json:"primary_match,omitempty"`
	AlternativeMatches    []Match         `json:"alternative_matches"`
	IsNewDevice           bool            `json:"is_new_device"`
	RecognitionConfidence float64         `json:"recognition_confidence"`
	Recommendation        Recommendation  `json:"recommendation"`
	AnalysisDetails       AnalysisDetails `json:"analysis_details"`
}
