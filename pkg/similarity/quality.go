package similarity

import (
	"strings"

	"github.com/iamgideonidoko/signet-match/internal/models"
)

const (
	coreContribution       = 0.15
	advancedContribution   = 0.05
	behavioralContribution = 0.10
	canvasBonus            = 0.05
	webglPairBonus         = 0.05
)

// AssessQuality scores how much usable signal a bundle carries, in [0,1].
// The sum is deliberately over-subscribable and clamped.
func AssessQuality(f models.Fingerprint) float64 {
	var score float64
	for _, c := range models.CoreComponents {
		if f.Has(c) {
			score += coreContribution
		}
	}
	for _, c := range models.AdvancedComponents {
		if f.Has(c) {
			score += advancedContribution
		}
	}
	if f.Has(models.ComponentBehavioral) {
		score += behavioralContribution
	}
	if f.Core.CanvasHash != "" {
		score += canvasBonus
	}
	if w := f.Core.WebGL; w != nil && strings.TrimSpace(w.Vendor) != "" && strings.TrimSpace(w.Renderer) != "" {
		score += webglPairBonus
	}
	return clamp01(score)
}

// CountComponents returns how many components the bundle carries.
func CountComponents(f models.Fingerprint) int {
	n := 0
	for _, c := range models.AllComponents {
		if f.Has(c) {
			n++
		}
	}
	return n
}
