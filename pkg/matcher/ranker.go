package matcher

import (
	"sort"

	"github.com/iamgideonidoko/signet-match/internal/models"
)

// Scored pairs a candidate with its similarity to the current bundle.
type Scored struct {
	Candidate models.StoredFingerprint
	Score     models.SimilarityScore
}

// Rank applies the quality gates, orders by overall×confidence and, when
// blocking is enabled, removes pairs carrying a suspicious risk indicator.
func Rank(pairs []Scored, cfg Config) []Scored {
	out := make([]Scored, 0, len(pairs))
	for _, p := range pairs {
		if p.Score.Overall < cfg.Thresholds.MinimumSimilarity {
			continue
		}
		if p.Score.Confidence < cfg.Quality.MinimumConfidence {
			continue
		}
		if len(p.Score.RiskIndicators) > cfg.Quality.MaximumRiskIndicators {
			continue
		}
		out = append(out, p)
	}

	sort.SliceStable(out, func(i, j int) bool {
		ci, cj := out[i].Score.Combined(), out[j].Score.Combined()
		if ci != cj {
			return ci > cj
		}
		if !out[i].Candidate.LastSeen.Equal(out[j].Candidate.LastSeen) {
			return out[i].Candidate.LastSeen.After(out[j].Candidate.LastSeen)
		}
		return out[i].Candidate.FingerprintID < out[j].Candidate.FingerprintID
	})

	if !cfg.Security.BlockSuspiciousPatterns {
		return out
	}

	filtered := out[:0]
	for _, p := range out {
		if p.Score.HasSuspicious() {
			continue
		}
		filtered = append(filtered, p)
	}
	return filtered
}

// Recommend derives the advisory outcome for the top-ranked match.
func Recommend(primary Scored, current models.Fingerprint, cfg Config) models.Recommendation {
	combined := primary.Score.Combined()
	risk := float64(len(primary.Score.RiskIndicators)) * 0.1

	var rec models.Recommendation
	switch {
	case combined >= cfg.Thresholds.HighConfidenceMatch && risk < 0.2:
		rec = models.RecommendAccept
	case combined >= cfg.Thresholds.MediumConfidenceMatch:
		rec = models.RecommendReview
	case combined >= cfg.Thresholds.LowConfidenceMatch:
		rec = models.RecommendReview
	default:
		rec = models.RecommendReject
	}

	if rec == models.RecommendAccept && cfg.Security.RequireBehavioralData &&
		(current.Behavioral == nil || primary.Candidate.Signals.Behavioral == nil) {
		rec = models.RecommendReview
	}
	return rec
}
