package matcher

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/iamgideonidoko/signet-match/internal/models"
)

func scored(id string, overall, confidence float64, risks ...models.RiskIndicator) Scored {
	return Scored{
		Candidate: models.StoredFingerprint{FingerprintID: id, LastSeen: testNow},
		Score: models.SimilarityScore{
			Overall:        overall,
			Confidence:     confidence,
			RiskIndicators: risks,
		},
	}
}

func ids(pairs []Scored) []string {
	out := make([]string, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, p.Candidate.FingerprintID)
	}
	return out
}

func TestRank_GatesAndOrder(t *testing.T) {
	pairs := []Scored{
		scored("low-overall", 0.55, 1),
		scored("low-confidence", 0.99, 0.3),
		scored("too-risky", 0.99, 1, models.RiskDeviceCategoryMismatch, models.RiskDeviceCategoryMismatch, models.RiskDeviceCategoryMismatch),
		scored("b", 0.90, 0.9),
		scored("a", 0.95, 1),
		scored("flagged", 0.99, 1, models.RiskAutomationDetected),
		scored("mismatch-only", 0.97, 1, models.RiskDeviceCategoryMismatch),
	}

	got := Rank(pairs, DefaultConfig())
	assert.Equal(t, []string{"mismatch-only", "a", "b"}, ids(got))

	cfg := DefaultConfig()
	cfg.Security.BlockSuspiciousPatterns = false
	got = Rank(pairs, cfg)
	assert.Equal(t, []string{"flagged", "mismatch-only", "a", "b"}, ids(got))
}

func TestRank_TieBreak(t *testing.T) {
	older := scored("older", 0.9, 1)
	older.Candidate.LastSeen = testNow.Add(-time.Hour)
	pairs := []Scored{older, scored("z", 0.9, 1), scored("y", 0.9, 1)}

	got := Rank(pairs, DefaultConfig())
	assert.Equal(t, []string{"y", "z", "older"}, ids(got))
}

func TestRank_MinimumSimilarityMonotone(t *testing.T) {
	var pairs []Scored
	for i := 0; i <= 20; i++ {
		overall := 0.5 + float64(i)*0.025
		pairs = append(pairs, scored(fmt.Sprintf("c%02d", i), overall, 0.9))
	}

	prev := len(pairs) + 1
	for minSim := 0.0; minSim <= 1.0; minSim += 0.05 {
		cfg := DefaultConfig()
		cfg.Thresholds.MinimumSimilarity = minSim
		n := len(Rank(pairs, cfg))
		assert.LessOrEqual(t, n, prev, "minimum_similarity=%.2f", minSim)
		prev = n
	}
}

func TestRecommend(t *testing.T) {
	current := models.SampleFingerprint()
	cfg := DefaultConfig()

	tests := []struct {
		name string
		pair Scored
		want models.Recommendation
	}{
		{"high", scored("x", 0.99, 0.99), models.RecommendAccept},
		{"high with one risk", scored("x", 0.99, 0.99, models.RiskDeviceCategoryMismatch), models.RecommendAccept},
		{"high with two risks", scored("x", 0.99, 0.99, models.RiskDeviceCategoryMismatch, models.RiskSpoofingDetected), models.RecommendReview},
		{"medium", scored("x", 0.90, 1), models.RecommendReview},
		{"low", scored("x", 0.75, 1), models.RecommendReview},
		{"below low", scored("x", 0.65, 1), models.RecommendReject},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Recommend(tt.pair, current, cfg))
		})
	}
}

func TestPrefilter(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Performance.MaxCandidatesEvaluated = 2

	noGPU := models.SampleFingerprint()
	noGPU.Core.WebGL = nil
	intel := models.SampleFingerprint()
	intel.Core.WebGL = &models.WebGLInfo{Vendor: "Intel Inc.", Renderer: "Intel Iris"}

	candidates := []models.StoredFingerprint{
		candidate("stale", models.SampleFingerprint(), 100*24*time.Hour),
		candidate("intel", intel, time.Minute),
		candidate("old", models.SampleFingerprint(), 10*24*time.Hour),
		candidate("no-gpu", noGPU, 2*time.Hour),
		candidate("recent", models.SampleFingerprint(), time.Hour),
	}

	got := Prefilter(models.SampleFingerprint(), candidates, cfg, testNow)
	names := make([]string, 0, len(got))
	for _, c := range got {
		names = append(names, c.FingerprintID)
	}
	assert.Equal(t, []string{"recent", "no-gpu"}, names)
}
