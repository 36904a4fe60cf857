package similarity

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/iamgideonidoko/signet-match/internal/models"
)

// Options tune confidence calibration.
type Options struct {
	MinimumComponents int
	MinimumEntropy    float64
	MaxMatchAge       time.Duration
	// IdenticalLimit is how many distinct records may share one core hash
	// before the population looks like a replayed fingerprint.
	IdenticalLimit int
}

var DefaultOptions = Options{
	MinimumComponents: 8,
	MinimumEntropy:    0.7,
	MaxMatchAge:       90 * 24 * time.Hour,
	IdenticalLimit:    3,
}

const (
	// freshWindow is how long a candidate keeps full temporal confidence.
	freshWindow = 7 * 24 * time.Hour
	// temporalFloor is the temporal factor reached at MaxMatchAge.
	temporalFloor = 0.85
	// environmentDamping multiplies confidence when list-valued signals changed size.
	environmentDamping = 0.9
)

// Comparison is one current-bundle versus stored-record pairing.
type Comparison struct {
	Current   models.Fingerprint
	Candidate models.StoredFingerprint
	Now       time.Time
	// IdenticalCount is the number of distinct candidates sharing the current core hash.
	IdenticalCount int
}

// Calculator aggregates component scores into a SimilarityScore.
type Calculator struct {
	opts Options
}

func NewCalculator(opts Options) *Calculator {
	if opts.MinimumComponents <= 0 {
		opts.MinimumComponents = DefaultOptions.MinimumComponents
	}
	if opts.MinimumEntropy <= 0 {
		opts.MinimumEntropy = DefaultOptions.MinimumEntropy
	}
	if opts.MaxMatchAge <= 0 {
		opts.MaxMatchAge = DefaultOptions.MaxMatchAge
	}
	if opts.IdenticalLimit <= 0 {
		opts.IdenticalLimit = DefaultOptions.IdenticalLimit
	}
	return &Calculator{opts: opts}
}

// Compare scores the candidate against the current bundle.
func (c *Calculator) Compare(cmp Comparison) models.SimilarityScore {
	current, stored := cmp.Current, cmp.Candidate.Signals

	scores := make(map[models.Component]models.ComponentScore, len(models.AllComponents))
	var weighted, weights, entropy float64
	for _, comp := range models.AllComponents {
		cs, ok := ScoreComponent(comp, current, stored)
		if !ok {
			continue
		}
		scores[comp] = cs
		weighted += cs.Weight * cs.Score
		weights += cs.Weight
		entropy += cs.Entropy
	}

	out := models.SimilarityScore{
		ComponentScores: scores,
		Factors:         make(map[string]float64, 7),
	}
	if weights == 0 {
		out.RiskIndicators = c.risks(cmp, scores)
		return out
	}
	out.Overall = clamp01(weighted / weights)

	n := float64(len(scores))
	minComponents := float64(c.opts.MinimumComponents)
	coverage := math.Min(1, n/minComponents)
	richness := math.Min(1, entropy/(c.opts.MinimumEntropy*minComponents))

	temporal := c.temporalFactor(cmp.Now.Sub(cmp.Candidate.LastSeen))
	environment := 1.0
	if environmentChanged(current, stored) {
		environment = environmentDamping
		out.Factors[models.FactorEnvironmentChange] = 1
	} else {
		out.Factors[models.FactorEnvironmentChange] = 0
	}

	out.Confidence = clamp01(coverage * (0.5 + 0.5*richness) * temporal * environment)

	out.Factors[models.FactorCoverage] = coverage
	out.Factors[models.FactorEntropyRichness] = richness
	out.Factors[models.FactorTemporalDecay] = temporal
	out.Factors[models.FactorVisitCount] = float64(cmp.Candidate.SeenCount)
	out.Factors[models.FactorDaysSinceSeen] = math.Max(0, cmp.Now.Sub(cmp.Candidate.LastSeen).Hours()/24)
	out.Factors[models.FactorBrowserChanged] = 0
	if browserChanged(current.UserAgent, storedUserAgent(cmp.Candidate)) {
		out.Factors[models.FactorBrowserChanged] = 1
	}

	out.RiskIndicators = c.risks(cmp, scores)
	return out
}

// temporalFactor is 1 inside the fresh window, then decays linearly to the floor at MaxMatchAge.
func (c *Calculator) temporalFactor(age time.Duration) float64 {
	if age <= freshWindow {
		return 1
	}
	span := c.opts.MaxMatchAge - freshWindow
	if span <= 0 || age >= c.opts.MaxMatchAge {
		return temporalFloor
	}
	progress := float64(age-freshWindow) / float64(span)
	return 1 - (1-temporalFloor)*progress
}

func (c *Calculator) risks(cmp Comparison, scores map[models.Component]models.ComponentScore) []models.RiskIndicator {
	set := make(map[models.RiskIndicator]struct{})

	if AutomationDetected(cmp.Current) {
		set[models.RiskAutomationDetected] = struct{}{}
	}
	if SpoofingDetected(cmp.Current) {
		set[models.RiskSpoofingDetected] = struct{}{}
	}
	if unrealisticStability(scores) {
		set[models.RiskUnrealisticStability] = struct{}{}
	}
	if cmp.IdenticalCount > c.opts.IdenticalLimit {
		set[models.RiskMultipleIdentical] = struct{}{}
	}
	inferred := InferCategory(cmp.Current)
	stored := cmp.Candidate.DeviceCategory
	if inferred != models.DeviceUnknown && stored != "" && stored != models.DeviceUnknown && inferred != stored {
		set[models.RiskDeviceCategoryMismatch] = struct{}{}
	}

	out := make([]models.RiskIndicator, 0, len(set))
	for r := range set {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// unrealisticStability flags comparisons where even normally noisy components
// came back bit-for-bit identical.
func unrealisticStability(scores map[models.Component]models.ComponentScore) bool {
	if len(scores) == 0 {
		return false
	}
	noisy := 0
	for comp, cs := range scores {
		if cs.Score != 1 {
			return false
		}
		if Noisy(comp) {
			if !cs.Exact {
				return false
			}
			noisy++
		}
	}
	return noisy >= 2
}

func environmentChanged(a, b models.Fingerprint) bool {
	if len(a.Core.Fonts) > 0 && len(b.Core.Fonts) > 0 && len(a.Core.Fonts) != len(b.Core.Fonts) {
		return true
	}
	if len(a.Advanced.Plugins) > 0 && len(b.Advanced.Plugins) > 0 && len(a.Advanced.Plugins) != len(b.Advanced.Plugins) {
		return true
	}
	return false
}

func storedUserAgent(fp models.StoredFingerprint) string {
	if fp.Signals.UserAgent != "" {
		return fp.Signals.UserAgent
	}
	return fp.Metadata.UserAgent
}

func browserChanged(a, b string) bool {
	va, vb := extractBrowserVersion(a), extractBrowserVersion(b)
	if va == "" || vb == "" || va == "unknown" || vb == "unknown" {
		return false
	}
	return va != vb
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// ComputeCoreHash hashes the high-entropy core signals. Bundles sharing it are
// indistinguishable to the scorer on the components that matter most.
func ComputeCoreHash(f models.Fingerprint) string {
	var vendor, renderer string
	if f.Core.WebGL != nil {
		vendor, renderer = normalize(f.Core.WebGL.Vendor), normalize(f.Core.WebGL.Renderer)
	}
	parts := []string{
		f.Core.CanvasHash,
		vendor,
		renderer,
		f.Core.AudioHash,
		hashStringSlice(f.Core.Fonts),
	}

	combined := strings.Join(parts, "|")
	hash := sha256.Sum256([]byte(combined))
	return hex.EncodeToString(hash[:])
}

// hashStringSlice creates a consistent hash from a string slice.
func hashStringSlice(items []string) string {
	if len(items) == 0 {
		return "empty"
	}

	sorted := make([]string, len(items))
	copy(sorted, items)
	sort.Strings(sorted)

	combined := strings.Join(sorted, ",")
	hash := sha256.Sum256([]byte(combined))
	return hex.EncodeToString(hash[:8])
}

// extractBrowserVersion extracts browser name and major version from UA.
func extractBrowserVersion(ua string) string {
	if ua == "" {
		return ""
	}

	ua = strings.ToLower(ua)

	// order matters: Edge and Opera UAs also carry a chrome token
	browsers := []string{"edg", "opr", "firefox", "chrome", "safari"}
	for _, browser := range browsers {
		if idx := strings.Index(ua, browser+"/"); idx != -1 {
			rest := ua[idx+len(browser)+1:]
			end := strings.IndexFunc(rest, func(r rune) bool { return r < '0' || r > '9' })
			if end == -1 {
				end = len(rest)
			}
			if end > 0 {
				return browser + ":" + rest[:end]
			}
		}
	}

	return "unknown"
}
