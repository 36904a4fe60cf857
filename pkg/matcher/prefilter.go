package matcher

import (
	"sort"
	"strings"
	"time"

	"github.com/iamgideonidoko/signet-match/internal/models"
)

// Prefilter drops candidates not worth scoring and bounds the rest.
// It keeps candidates across device categories; those score lower on their own.
func Prefilter(current models.Fingerprint, candidates []models.StoredFingerprint, cfg Config, now time.Time) []models.StoredFingerprint {
	cutoff := now.Add(-cfg.Security.MaxMatchAge.Std())
	vendor := webglVendor(current)

	out := make([]models.StoredFingerprint, 0, len(candidates))
	for _, c := range candidates {
		if c.LastSeen.Before(cutoff) {
			continue
		}
		// different GPU vendors are near-certain non-matches
		if other := webglVendor(c.Signals); vendor != "" && other != "" && vendor != other {
			continue
		}
		out = append(out, c)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LastSeen.After(out[j].LastSeen)
	})

	if limit := cfg.Performance.MaxCandidatesEvaluated; len(out) > limit {
		out = out[:limit]
	}
	return out
}

func webglVendor(f models.Fingerprint) string {
	if f.Core.WebGL == nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(f.Core.WebGL.Vendor))
}
