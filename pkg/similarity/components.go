package similarity

import (
	"math"
	"sort"
	"strings"

	"github.com/iamgideonidoko/signet-match/internal/models"
)

// Params are the a-priori characteristics of a component.
type Params struct {
	Weight      float64
	Entropy     float64
	Reliability float64
}

// NoisyReliability is the reliability below which a component is expected to drift
// between visits of the same device.
const NoisyReliability = 0.6

// placeholderEntropy replaces the base entropy when a side reported a placeholder.
const placeholderEntropy = 0.1

var componentParams = map[models.Component]Params{
	models.ComponentCanvas:       {Weight: 1.00, Entropy: 0.95, Reliability: 0.90},
	models.ComponentWebGL:        {Weight: 1.00, Entropy: 0.90, Reliability: 0.95},
	models.ComponentAudio:        {Weight: 0.90, Entropy: 0.90, Reliability: 0.85},
	models.ComponentFonts:        {Weight: 0.80, Entropy: 0.85, Reliability: 0.80},
	models.ComponentCSSFeatures:  {Weight: 0.60, Entropy: 0.60, Reliability: 0.90},
	models.ComponentTiming:       {Weight: 0.50, Entropy: 0.50, Reliability: 0.50},
	models.ComponentMediaDevices: {Weight: 0.40, Entropy: 0.45, Reliability: 0.70},
	models.ComponentPlugins:      {Weight: 0.35, Entropy: 0.60, Reliability: 0.70},
	models.ComponentSensors:      {Weight: 0.30, Entropy: 0.30, Reliability: 0.90},
	models.ComponentBattery:      {Weight: 0.20, Entropy: 0.15, Reliability: 0.60},
	models.ComponentNetwork:      {Weight: 0.15, Entropy: 0.30, Reliability: 0.30},
	models.ComponentBehavioral:   {Weight: 0.10, Entropy: 0.50, Reliability: 0.40},
}

// ParamsFor returns the parameters of c. Unknown components get the zero value.
func ParamsFor(c models.Component) Params {
	return componentParams[c]
}

// Noisy reports whether c normally varies between visits of one device.
func Noisy(c models.Component) bool {
	return ParamsFor(c).Reliability < NoisyReliability
}

// ScoreComponent compares one component between two bundles.
// ok is false when the component is absent on either side or nothing in it is
// comparable; such components are excluded from aggregation.
func ScoreComponent(c models.Component, a, b models.Fingerprint) (models.ComponentScore, bool) {
	if !a.Has(c) || !b.Has(c) {
		return models.ComponentScore{}, false
	}

	p := ParamsFor(c)
	out := models.ComponentScore{Weight: p.Weight, Reliability: p.Reliability}

	switch c {
	case models.ComponentCanvas:
		out.Score, out.Exact = hashScore(a.Core.CanvasHash, b.Core.CanvasHash)
		out.Entropy = math.Min(valueEntropy(p.Entropy, a.Core.CanvasHash), valueEntropy(p.Entropy, b.Core.CanvasHash))
	case models.ComponentAudio:
		out.Score, out.Exact = hashScore(a.Core.AudioHash, b.Core.AudioHash)
		out.Entropy = math.Min(valueEntropy(p.Entropy, a.Core.AudioHash), valueEntropy(p.Entropy, b.Core.AudioHash))
	case models.ComponentWebGL:
		score, ok := webglScore(a.Core.WebGL, b.Core.WebGL)
		if !ok {
			return models.ComponentScore{}, false
		}
		out.Score = score
		out.Exact = *a.Core.WebGL == *b.Core.WebGL
		out.Entropy = math.Min(webglEntropy(p.Entropy, a.Core.WebGL), webglEntropy(p.Entropy, b.Core.WebGL))
	case models.ComponentFonts:
		out.Score, out.Exact = jaccard(a.Core.Fonts, b.Core.Fonts)
		out.Entropy = math.Min(listEntropy(p.Entropy, len(a.Core.Fonts)), listEntropy(p.Entropy, len(b.Core.Fonts)))
	case models.ComponentPlugins:
		out.Score, out.Exact = jaccard(a.Advanced.Plugins, b.Advanced.Plugins)
		out.Entropy = math.Min(listEntropy(p.Entropy, len(a.Advanced.Plugins)), listEntropy(p.Entropy, len(b.Advanced.Plugins)))
	case models.ComponentCSSFeatures:
		out.Score, out.Exact = flagAgreement(a.Core.CSSFeatures, b.Core.CSSFeatures)
		out.Entropy = p.Entropy
	case models.ComponentSensors:
		out.Score, out.Exact = flagAgreement(a.Advanced.Sensors, b.Advanced.Sensors)
		out.Entropy = p.Entropy
	case models.ComponentTiming:
		out.Score, out.Exact = timingScore(a.Core.Timing, b.Core.Timing)
		out.Entropy = p.Entropy
	case models.ComponentBattery:
		out.Score = batteryScore(a.Advanced.Battery, b.Advanced.Battery)
		out.Exact = *a.Advanced.Battery == *b.Advanced.Battery
		out.Entropy = p.Entropy
	case models.ComponentMediaDevices:
		out.Score = mediaScore(a.Advanced.MediaDevices, b.Advanced.MediaDevices)
		out.Exact = *a.Advanced.MediaDevices == *b.Advanced.MediaDevices
		out.Entropy = p.Entropy
	case models.ComponentNetwork:
		score, ok := networkScore(a.Advanced.Network, b.Advanced.Network)
		if !ok {
			return models.ComponentScore{}, false
		}
		out.Score = score
		out.Exact = *a.Advanced.Network == *b.Advanced.Network
		out.Entropy = p.Entropy
	case models.ComponentBehavioral:
		score, ok := behavioralScore(a.Behavioral, b.Behavioral)
		if !ok {
			return models.ComponentScore{}, false
		}
		out.Score = score
		out.Exact = *a.Behavioral == *b.Behavioral
		out.Entropy = p.Entropy
	default:
		return models.ComponentScore{}, false
	}

	return out, true
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func isPlaceholder(s string) bool {
	switch normalize(s) {
	case "", "unknown", "error", "no_context", "blocked":
		return true
	}
	return false
}

func valueEntropy(base float64, v string) float64 {
	if isPlaceholder(v) {
		return placeholderEntropy
	}
	return base
}

// listEntropy scales entropy by list richness; ten entries saturate.
func listEntropy(base float64, n int) float64 {
	return base * (0.5 + 0.5*math.Min(1, float64(n)/10))
}

func webglEntropy(base float64, w *models.WebGLInfo) float64 {
	if isPlaceholder(w.Vendor) && isPlaceholder(w.Renderer) {
		return placeholderEntropy
	}
	if isPlaceholder(w.Renderer) {
		return base * 0.5
	}
	return base
}

func hashScore(a, b string) (float64, bool) {
	if a == b {
		return 1, true
	}
	return 0, false
}

// webglScore: differing vendors never match; same vendor with a different
// renderer keeps a small share of the weight.
func webglScore(a, b *models.WebGLInfo) (float64, bool) {
	va, vb := normalize(a.Vendor), normalize(b.Vendor)
	ra, rb := normalize(a.Renderer), normalize(b.Renderer)

	vendorComparable := va != "" && vb != ""
	if vendorComparable && va != vb {
		return 0, true
	}
	if ra != "" && rb != "" {
		if ra == rb {
			return 1, true
		}
		return 0.25, true
	}
	if vendorComparable {
		return 1, true
	}
	return 0, false
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, item := range items {
		if v := normalize(item); v != "" {
			set[v] = struct{}{}
		}
	}
	return set
}

func jaccard(a, b []string) (float64, bool) {
	sa, sb := toSet(a), toSet(b)
	if len(sa) == 0 && len(sb) == 0 {
		return 1, true
	}

	var intersection int
	for k := range sa {
		if _, ok := sb[k]; ok {
			intersection++
		}
	}
	union := len(sa) + len(sb) - intersection
	score := float64(intersection) / float64(union)

	return score, score == 1 && sameStrings(a, b)
}

func sameStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	sa := append([]string(nil), a...)
	sb := append([]string(nil), b...)
	sort.Strings(sa)
	sort.Strings(sb)
	for i := range sa {
		if sa[i] != sb[i] {
			return false
		}
	}
	return true
}

// flagAgreement is the share of probes, over the union of probe names, reporting
// the same value on both sides.
func flagAgreement(a, b map[string]bool) (float64, bool) {
	union := make(map[string]struct{}, len(a)+len(b))
	for k := range a {
		union[k] = struct{}{}
	}
	for k := range b {
		union[k] = struct{}{}
	}

	var agree int
	for k := range union {
		va, okA := a[k]
		vb, okB := b[k]
		if okA && okB && va == vb {
			agree++
		}
	}
	score := float64(agree) / float64(len(union))
	return score, agree == len(union)
}

// tolerance maps a relative difference onto [0,1]: full credit up to lo, none from hi.
func tolerance(a, b, lo, hi float64) float64 {
	if a == b {
		return 1
	}
	denom := math.Max(math.Abs(a), math.Abs(b))
	rel := math.Abs(a-b) / denom
	switch {
	case rel <= lo:
		return 1
	case rel >= hi:
		return 0
	default:
		return 1 - (rel-lo)/(hi-lo)
	}
}

func timingScore(a, b map[string]float64) (float64, bool) {
	keys := make(map[string]struct{}, len(a)+len(b))
	for k := range a {
		keys[k] = struct{}{}
	}
	for k := range b {
		keys[k] = struct{}{}
	}

	var sum float64
	exact := true
	for k := range keys {
		va, okA := a[k]
		vb, okB := b[k]
		if !okA || !okB {
			exact = false
			continue
		}
		if va != vb {
			exact = false
		}
		sum += tolerance(va, vb, 0.15, 0.5)
	}
	return sum / float64(len(keys)), exact
}

func batteryScore(a, b *models.BatteryStatus) float64 {
	if !a.Supported && !b.Supported {
		return 1
	}
	if a.Supported != b.Supported {
		return 0
	}
	if a.Charging == b.Charging {
		return 1
	}
	return 0.7
}

func mediaScore(a, b *models.MediaDevices) float64 {
	var equal int
	if a.AudioInputs == b.AudioInputs {
		equal++
	}
	if a.AudioOutputs == b.AudioOutputs {
		equal++
	}
	if a.VideoInputs == b.VideoInputs {
		equal++
	}
	return float64(equal) / 3
}

func networkScore(a, b *models.NetworkHints) (float64, bool) {
	var comparable, equal float64

	for _, pair := range [][2]string{
		{a.ConnectionType, b.ConnectionType},
		{a.EffectiveType, b.EffectiveType},
		{a.WebRTCLocalHash, b.WebRTCLocalHash},
		{a.WebRTCPublicHash, b.WebRTCPublicHash},
	} {
		if pair[0] == "" || pair[1] == "" {
			continue
		}
		comparable++
		if normalize(pair[0]) == normalize(pair[1]) {
			equal++
		}
	}

	for _, pair := range [][2]float64{
		{float64(a.RTT), float64(b.RTT)},
		{a.Downlink, b.Downlink},
	} {
		if pair[0] <= 0 || pair[1] <= 0 {
			continue
		}
		comparable++
		if math.Abs(pair[0]-pair[1])/math.Max(pair[0], pair[1]) <= 0.25 {
			equal++
		}
	}

	if comparable == 0 {
		return 0, false
	}
	return equal / comparable, true
}

func behavioralScore(a, b *models.BehavioralData) (float64, bool) {
	var parts, sum float64

	if a.PointerType != "" && b.PointerType != "" {
		parts++
		if normalize(a.PointerType) == normalize(b.PointerType) {
			sum++
		}
	}

	var rhythm, rhythmPairs float64
	for _, pair := range [][2]float64{
		{a.TypingIntervalMs, b.TypingIntervalMs},
		{a.ClickIntervalMs, b.ClickIntervalMs},
		{a.ScrollVelocity, b.ScrollVelocity},
	} {
		if pair[0] <= 0 || pair[1] <= 0 {
			continue
		}
		rhythmPairs++
		rhythm += tolerance(pair[0], pair[1], 0.25, 0.75)
	}
	if rhythmPairs > 0 {
		parts++
		sum += rhythm / rhythmPairs
	}

	if parts == 0 {
		return 0, false
	}
	return sum / parts, true
}
