package matcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/iamgideonidoko/signet-match/internal/models"
	"github.com/iamgideonidoko/signet-match/pkg/logger"
	"github.com/iamgideonidoko/signet-match/pkg/similarity"
)

const (
	AlgorithmVersion = "signet-match/2.0"
	maxAlternatives  = 4
)

// ErrMalformedCandidate marks candidate lists with missing or duplicate ids.
var ErrMalformedCandidate = errors.New("malformed candidate")

// Recorder receives per-call measurements. Implementations must be safe for concurrent use.
type Recorder interface {
	ObserveMatch(rec models.Recommendation, elapsed time.Duration, evaluated int)
	ObserveCacheLookup(hit bool)
}

type nopRecorder struct{}

func (nopRecorder) ObserveMatch(models.Recommendation, time.Duration, int) {}
func (nopRecorder) ObserveCacheLookup(bool)                                 {}

type Option func(*Matcher)

func WithLogger(l *logger.Logger) Option {
	return func(m *Matcher) { m.log = l }
}

// WithClock replaces time.Now for staleness and temporal decay.
func WithClock(now func() time.Time) Option {
	return func(m *Matcher) { m.now = now }
}

func WithMetrics(r Recorder) Option {
	return func(m *Matcher) { m.metrics = r }
}

// MatchOption adjusts a single FindMatches call.
type MatchOption func(*matchOptions)

type matchOptions struct {
	identicalRecords int
}

// WithIdenticalRecords passes how many stored records share the current core
// hash across the whole store. The larger of it and the count seen in the
// candidate list feeds the multiple_identical_fingerprints check.
func WithIdenticalRecords(n int) MatchOption {
	return func(o *matchOptions) { o.identicalRecords = n }
}

// state is swapped as a unit so one FindMatches call never mixes configurations.
type state struct {
	cfg   Config
	calc  *similarity.Calculator
	cache *scoreCache
}

func newState(cfg Config) *state {
	st := &state{
		cfg: cfg,
		calc: similarity.NewCalculator(similarity.Options{
			MinimumComponents: cfg.Quality.MinimumComponentsRequired,
			MinimumEntropy:    cfg.Quality.MinimumEntropy,
			MaxMatchAge:       cfg.Security.MaxMatchAge.Std(),
			IdenticalLimit:    cfg.Security.IdenticalFingerprintLimit,
		}),
	}
	if cfg.Performance.CacheResults {
		st.cache = newScoreCache(cfg.Performance.CacheSize, cfg.Performance.CacheTTL.Std())
	}
	return st
}

// Matcher recognizes a fingerprint bundle among stored candidates.
// It is safe for concurrent use.
type Matcher struct {
	state   atomic.Pointer[state]
	mu      sync.Mutex
	pool    *WorkerPool
	log     *logger.Logger
	now     func() time.Time
	metrics Recorder
}

// New validates cfg and starts the scoring pool. Call Close to stop it.
func New(cfg Config, opts ...Option) (*Matcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	m := &Matcher{
		log:     logger.Default(),
		now:     time.Now,
		metrics: nopRecorder{},
	}
	for _, opt := range opts {
		opt(m)
	}

	m.state.Store(newState(cfg))
	m.pool = NewWorkerPool(context.Background(), cfg.Performance.PoolSize(), m.log)
	return m, nil
}

// Config returns the active configuration.
func (m *Matcher) Config() Config {
	return m.state.Load().cfg
}

// UpdateConfig merges patch into the active config, validates the result and
// swaps it in together with an empty cache. The worker count is fixed.
func (m *Matcher) UpdateConfig(patch ConfigPatch) (Config, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current := m.state.Load().cfg
	next := patch.Apply(current)
	if err := next.Validate(); err != nil {
		return current, err
	}

	m.state.Store(newState(next))
	m.log.Info("Matcher config updated", map[string]any{
		"high_confidence_match": next.Thresholds.HighConfidenceMatch,
		"minimum_similarity":    next.Thresholds.MinimumSimilarity,
		"max_candidates":        next.Performance.MaxCandidatesEvaluated,
		"cache_results":         next.Performance.CacheResults,
	})
	return next, nil
}

// ClearCache drops every cached score.
func (m *Matcher) ClearCache() {
	m.state.Load().cache.Purge()
}

// CacheLen reports the number of cached scores.
func (m *Matcher) CacheLen() int {
	return m.state.Load().cache.Len()
}

func (m *Matcher) Close() {
	m.pool.Close()
}

// FindMatches never fails: low quality input, malformed candidates, cancellation
// and internal panics all come back as a structured result.
func (m *Matcher) FindMatches(ctx context.Context, current models.Fingerprint, candidates []models.StoredFingerprint, opts ...MatchOption) (result models.MatchResult) {
	start := time.Now()
	st := m.state.Load()

	var o matchOptions
	for _, opt := range opts {
		opt(&o)
	}

	details := models.AnalysisDetails{
		CandidatesProvided: len(candidates),
		AlgorithmVersion:   AlgorithmVersion,
	}

	defer func() {
		if r := recover(); r != nil {
			result = m.degraded(details, fmt.Errorf("panic: %v", r))
		}
		elapsed := time.Since(start)
		result.AnalysisDetails.ProcessingTimeMs = float64(elapsed.Microseconds()) / 1000
		m.metrics.ObserveMatch(result.Recommendation, elapsed, result.AnalysisDetails.CandidatesEvaluated)
	}()

	details.InputQualityScore = similarity.AssessQuality(current)
	if details.InputQualityScore < st.cfg.Quality.MinimumQualityScore {
		m.log.Debug("Fingerprint quality below minimum", map[string]any{
			"quality":    details.InputQualityScore,
			"minimum":    st.cfg.Quality.MinimumQualityScore,
			"components": similarity.CountComponents(current),
		})
		return models.MatchResult{
			AlternativeMatches: []models.Match{},
			IsNewDevice:        true,
			Recommendation:     models.RecommendReject,
			AnalysisDetails:    details,
		}
	}

	result, err := m.match(ctx, st, current, candidates, o, &details)
	if err != nil {
		return m.degraded(details, err)
	}
	return result
}

func (m *Matcher) match(ctx context.Context, st *state, current models.Fingerprint, candidates []models.StoredFingerprint, o matchOptions, details *models.AnalysisDetails) (models.MatchResult, error) {
	if err := validateCandidates(candidates); err != nil {
		return models.MatchResult{}, err
	}

	now := m.now()
	identical := max(countIdentical(current, candidates), o.identicalRecords)
	filtered := Prefilter(current, candidates, st.cfg, now)
	details.CandidatesEvaluated = len(filtered)

	if len(filtered) == 0 {
		return newDevice(*details), nil
	}

	scored, hits, err := m.score(ctx, st, current, filtered, identical, now)
	details.CacheHits = hits
	if err != nil {
		return models.MatchResult{}, err
	}

	ranked := Rank(scored, st.cfg)
	if len(ranked) == 0 {
		return newDevice(*details), nil
	}

	primary := ranked[0]
	alternatives := make([]models.Match, 0, maxAlternatives)
	for _, s := range ranked[1:min(len(ranked), 1+maxAlternatives)] {
		alternatives = append(alternatives, toMatch(s))
	}

	pm := toMatch(primary)
	return models.MatchResult{
		PrimaryMatch:          &pm,
		AlternativeMatches:    alternatives,
		RecognitionConfidence: primary.Score.Combined(),
		Recommendation:        Recommend(primary, current, st.cfg),
		AnalysisDetails:       *details,
	}, nil
}

type scoreResult struct {
	index  int
	scored Scored
	hit    bool
	err    error
}

type scoreJob struct {
	m           *Matcher
	st          *state
	current     models.Fingerprint
	currentJSON []byte
	candidate   models.StoredFingerprint
	identical   int
	now         time.Time
	index       int
	results     chan<- scoreResult
}

func (j *scoreJob) Execute(context.Context) error {
	res := scoreResult{index: j.index}
	defer func() {
		if r := recover(); r != nil {
			res.err = fmt.Errorf("scoring candidate %s: panic: %v", j.candidate.FingerprintID, r)
		}
		j.results <- res
	}()

	res.scored, res.hit, res.err = j.m.scoreOne(j.st, j.current, j.currentJSON, j.candidate, j.identical, j.now)
	return nil
}

func (m *Matcher) score(ctx context.Context, st *state, current models.Fingerprint, candidates []models.StoredFingerprint, identical int, now time.Time) ([]Scored, int, error) {
	var currentJSON []byte
	if st.cache != nil {
		var err error
		if currentJSON, err = json.Marshal(current); err != nil {
			return nil, 0, fmt.Errorf("encode current fingerprint: %w", err)
		}
	}

	out := make([]Scored, len(candidates))
	hits := 0

	if !st.cfg.Performance.EnableParallelProcessing || len(candidates) == 1 {
		for i, c := range candidates {
			if err := ctx.Err(); err != nil {
				return nil, hits, err
			}
			s, hit, err := m.scoreOne(st, current, currentJSON, c, identical, now)
			if err != nil {
				return nil, hits, err
			}
			if hit {
				hits++
			}
			out[i] = s
		}
		return out, hits, nil
	}

	// buffered to len so workers never block on a collector that has given up
	results := make(chan scoreResult, len(candidates))
	submitted := 0
	for i, c := range candidates {
		job := &scoreJob{
			m: m, st: st, current: current, currentJSON: currentJSON,
			candidate: c, identical: identical, now: now, index: i, results: results,
		}
		if err := m.pool.Submit(ctx, job); err != nil {
			return nil, hits, fmt.Errorf("submit scoring job: %w", err)
		}
		submitted++
	}

	for n := 0; n < submitted; n++ {
		select {
		case <-ctx.Done():
			return nil, hits, ctx.Err()
		case <-m.pool.Done():
			return nil, hits, ErrPoolClosed
		case r := <-results:
			if r.err != nil {
				return nil, hits, r.err
			}
			if r.hit {
				hits++
			}
			out[r.index] = r.scored
		}
	}
	return out, hits, nil
}

func (m *Matcher) scoreOne(st *state, current models.Fingerprint, currentJSON []byte, candidate models.StoredFingerprint, identical int, now time.Time) (Scored, bool, error) {
	var key string
	if st.cache != nil {
		var err error
		if key, err = cacheKey(currentJSON, candidate, identical); err != nil {
			return Scored{}, false, fmt.Errorf("cache key for %s: %w", candidate.FingerprintID, err)
		}
		if cached, ok := st.cache.Get(key); ok {
			m.metrics.ObserveCacheLookup(true)
			return Scored{Candidate: candidate, Score: cached}, true, nil
		}
		m.metrics.ObserveCacheLookup(false)
	}

	score := st.calc.Compare(similarity.Comparison{
		Current:        current,
		Candidate:      candidate,
		Now:            now,
		IdenticalCount: identical,
	})

	if st.cache != nil {
		st.cache.Add(key, score)
	}
	return Scored{Candidate: candidate, Score: score}, false, nil
}

func (m *Matcher) degraded(details models.AnalysisDetails, err error) models.MatchResult {
	m.log.Error("Matching failed, treating device as unrecognized", map[string]any{
		"error":      err.Error(),
		"candidates": details.CandidatesProvided,
	})
	details.Error = err.Error()
	return models.MatchResult{
		AlternativeMatches: []models.Match{},
		IsNewDevice:        true,
		Recommendation:     models.RecommendReject,
		AnalysisDetails:    details,
	}
}

func newDevice(details models.AnalysisDetails) models.MatchResult {
	return models.MatchResult{
		AlternativeMatches: []models.Match{},
		IsNewDevice:        true,
		Recommendation:     models.RecommendNewDevice,
		AnalysisDetails:    details,
	}
}

func toMatch(s Scored) models.Match {
	return models.Match{
		FingerprintID:  s.Candidate.FingerprintID,
		UserID:         s.Candidate.UserID,
		DeviceCategory: s.Candidate.DeviceCategory,
		LastSeen:       s.Candidate.LastSeen,
		Similarity:     s.Score,
		Combined:       s.Score.Combined(),
	}
}

func validateCandidates(candidates []models.StoredFingerprint) error {
	seen := make(map[string]struct{}, len(candidates))
	for i, c := range candidates {
		if c.FingerprintID == "" {
			return fmt.Errorf("%w: candidate %d has no fingerprint id", ErrMalformedCandidate, i)
		}
		if _, dup := seen[c.FingerprintID]; dup {
			return fmt.Errorf("%w: duplicate fingerprint id %s", ErrMalformedCandidate, c.FingerprintID)
		}
		seen[c.FingerprintID] = struct{}{}
	}
	return nil
}

// countIdentical counts stored records sharing the current core hash. Ids are
// already unique, so each hit is a distinct record.
func countIdentical(current models.Fingerprint, candidates []models.StoredFingerprint) int {
	hash := similarity.ComputeCoreHash(current)
	n := 0
	for _, c := range candidates {
		if similarity.ComputeCoreHash(c.Signals) == hash {
			n++
		}
	}
	return n
}
