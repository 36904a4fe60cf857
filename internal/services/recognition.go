package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/iamgideonidoko/signet-match/internal/models"
	"github.com/iamgideonidoko/signet-match/internal/repository"
	"github.com/iamgideonidoko/signet-match/pkg/logger"
	"github.com/iamgideonidoko/signet-match/pkg/matcher"
	"github.com/iamgideonidoko/signet-match/pkg/similarity"
)

// FingerprintStore is the persistence the service needs; *repository.Repository satisfies it.
type FingerprintStore interface {
	FindCandidates(ctx context.Context, tenantID string, since time.Time, limit int) ([]models.StoredFingerprint, error)
	Get(ctx context.Context, fingerprintID string) (*models.StoredFingerprint, error)
	Create(ctx context.Context, fp *models.StoredFingerprint) error
	Touch(ctx context.Context, fingerprintID string, signals models.Fingerprint, metadata models.FingerprintMetadata, seenAt time.Time) error
	CountByCoreHash(ctx context.Context, tenantID, coreHash string) (int, error)
	Count(ctx context.Context) (int64, error)
}

// poolStats is implemented by stores backed by a database/sql pool.
type poolStats interface {
	Stats() sql.DBStats
}

// Counters tracks outcome totals; *cache.Cache satisfies it.
type Counters interface {
	IncrementMetric(ctx context.Context, metric string) error
	GetMetric(ctx context.Context, metric string) (int64, error)
}

// HintCache maps a tenant's core hash to the fingerprint it last resolved to.
type HintCache interface {
	GetFingerprintHint(ctx context.Context, tenantID, coreHash string) (string, error)
	SetFingerprintHint(ctx context.Context, tenantID, coreHash, fingerprintID string) error
}

// NopCounters discards counts. Used when no Redis is configured.
type NopCounters struct{}

func (NopCounters) IncrementMetric(context.Context, string) error    { return nil }
func (NopCounters) GetMetric(context.Context, string) (int64, error) { return 0, nil }

var recommendations = []models.Recommendation{
	models.RecommendAccept,
	models.RecommendReview,
	models.RecommendReject,
	models.RecommendNewDevice,
}

type RecognitionService struct {
	store          FingerprintStore
	counters       Counters
	hints          HintCache
	matcher        *matcher.Matcher
	candidateLimit int
	log            *logger.Logger
	now            func() time.Time
}

type ServiceOption func(*RecognitionService)

// WithHints enables the core hash shortcut.
func WithHints(h HintCache) ServiceOption {
	return func(s *RecognitionService) { s.hints = h }
}

func WithServiceLogger(l *logger.Logger) ServiceOption {
	return func(s *RecognitionService) { s.log = l }
}

func WithServiceClock(now func() time.Time) ServiceOption {
	return func(s *RecognitionService) { s.now = now }
}

// NewRecognitionService wires the matcher to storage. A candidateLimit of zero
// loads twice the matcher's current evaluation cap, following config patches.
func NewRecognitionService(store FingerprintStore, counters Counters, m *matcher.Matcher, candidateLimit int, opts ...ServiceOption) *RecognitionService {
	if counters == nil {
		counters = NopCounters{}
	}
	s := &RecognitionService{
		store:          store,
		counters:       counters,
		matcher:        m,
		candidateLimit: candidateLimit,
		log:            logger.Default(),
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RecognitionService) limit(cfg matcher.Config) int {
	if s.candidateLimit > 0 {
		return s.candidateLimit
	}
	return 2 * cfg.Performance.MaxCandidatesEvaluated
}

// Recognize matches the request's bundle against the tenant's stored devices
// and records the outcome: an accepted match is touched, a new device is stored.
func (s *RecognitionService) Recognize(ctx context.Context, req models.RecognizeRequest) (*models.RecognizeResponse, error) {
	now := s.now()
	cfg := s.matcher.Config()
	coreHash := similarity.ComputeCoreHash(req.Fingerprint)

	candidates, err := s.store.FindCandidates(ctx, req.TenantID, now.Add(-cfg.Security.MaxMatchAge.Std()), s.limit(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to load candidates: %w", err)
	}
	candidates = s.withHinted(ctx, req.TenantID, coreHash, candidates)

	var matchOpts []matcher.MatchOption
	if identical, err := s.store.CountByCoreHash(ctx, req.TenantID, coreHash); err != nil {
		s.log.Warn("Failed to count identical fingerprints", map[string]any{"error": err.Error()})
	} else {
		matchOpts = append(matchOpts, matcher.WithIdenticalRecords(identical))
	}

	result := s.matcher.FindMatches(ctx, req.Fingerprint, candidates, matchOpts...)

	resp := &models.RecognizeResponse{
		RequestID:      uuid.NewString(),
		IsNew:          result.IsNewDevice,
		Recommendation: result.Recommendation,
		Confidence:     result.RecognitionConfidence,
		Result:         result,
	}
	if result.PrimaryMatch != nil {
		resp.FingerprintID = result.PrimaryMatch.FingerprintID
	}

	metadata := models.FingerprintMetadata{
		UserAgent:    req.Fingerprint.UserAgent,
		Location:     req.Location,
		SessionCount: 1,
	}
	if req.IPAddress != "" {
		ip := req.IPAddress
		metadata.IPAddress = &ip
	}

	switch result.Recommendation {
	case models.RecommendAccept:
		id := result.PrimaryMatch.FingerprintID
		if prior := findByID(candidates, id); prior != nil {
			metadata.SessionCount = prior.Metadata.SessionCount + 1
		}
		if err := s.store.Touch(ctx, id, req.Fingerprint, metadata, now); err != nil {
			return nil, fmt.Errorf("failed to update fingerprint %s: %w", id, err)
		}
		s.remember(ctx, req.TenantID, coreHash, id)

	case models.RecommendNewDevice:
		fp := &models.StoredFingerprint{
			FingerprintID:  uuid.NewString(),
			TenantID:       req.TenantID,
			UserID:         req.UserID,
			Signals:        req.Fingerprint,
			DeviceCategory: similarity.InferCategory(req.Fingerprint),
			CreatedAt:      now,
			LastSeen:       now,
			SeenCount:      1,
			Metadata:       metadata,
		}
		if err := s.store.Create(ctx, fp); err != nil {
			return nil, fmt.Errorf("failed to store new fingerprint: %w", err)
		}
		resp.FingerprintID = fp.FingerprintID
		s.remember(ctx, req.TenantID, coreHash, fp.FingerprintID)
	}

	if err := s.counters.IncrementMetric(ctx, string(result.Recommendation)); err != nil {
		s.log.Warn("Failed to count recognition", map[string]any{
			"recommendation": result.Recommendation,
			"error":          err.Error(),
		})
	}

	s.log.Debug("Recognition complete", map[string]any{
		"tenant_id":      req.TenantID,
		"request_id":     resp.RequestID,
		"recommendation": result.Recommendation,
		"confidence":     result.RecognitionConfidence,
		"candidates":     len(candidates),
	})
	return resp, nil
}

// withHinted appends the hinted record when the time-windowed load missed it.
// Hint failures only cost the shortcut.
func (s *RecognitionService) withHinted(ctx context.Context, tenantID, coreHash string, candidates []models.StoredFingerprint) []models.StoredFingerprint {
	if s.hints == nil {
		return candidates
	}
	id, err := s.hints.GetFingerprintHint(ctx, tenantID, coreHash)
	if err != nil {
		s.log.Warn("Fingerprint hint lookup failed", map[string]any{"error": err.Error()})
		return candidates
	}
	if id == "" || findByID(candidates, id) != nil {
		return candidates
	}

	fp, err := s.store.Get(ctx, id)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			s.log.Warn("Failed to load hinted fingerprint", map[string]any{
				"fingerprint_id": id,
				"error":          err.Error(),
			})
		}
		return candidates
	}
	if fp.TenantID != tenantID {
		return candidates
	}
	return append(candidates, *fp)
}

func (s *RecognitionService) remember(ctx context.Context, tenantID, coreHash, fingerprintID string) {
	if s.hints == nil {
		return
	}
	if err := s.hints.SetFingerprintHint(ctx, tenantID, coreHash, fingerprintID); err != nil {
		s.log.Warn("Failed to store fingerprint hint", map[string]any{"error": err.Error()})
	}
}

// Match runs the matcher over caller-supplied candidates without touching storage.
func (s *RecognitionService) Match(ctx context.Context, req models.MatchRequest) models.MatchResult {
	return s.matcher.FindMatches(ctx, req.Current, req.Candidates)
}

// Stats reads outcome counters, the stored fingerprint total and, when the
// store exposes one, its connection pool.
func (s *RecognitionService) Stats(ctx context.Context) (*models.StatsResponse, error) {
	stats := &models.StatsResponse{Recognitions: make(map[models.Recommendation]int64, len(recommendations))}
	for _, rec := range recommendations {
		n, err := s.counters.GetMetric(ctx, string(rec))
		if err != nil {
			return nil, fmt.Errorf("failed to read %s counter: %w", rec, err)
		}
		stats.Recognitions[rec] = n
	}

	stored, err := s.store.Count(ctx)
	if err != nil {
		return nil, err
	}
	stats.Stored = stored

	if ps, ok := s.store.(poolStats); ok {
		db := ps.Stats()
		stats.Database = &models.DatabasePool{
			OpenConnections: db.OpenConnections,
			InUse:           db.InUse,
			Idle:            db.Idle,
			WaitCount:       db.WaitCount,
		}
	}
	return stats, nil
}

func findByID(candidates []models.StoredFingerprint, id string) *models.StoredFingerprint {
	for i := range candidates {
		if candidates[i].FingerprintID == id {
			return &candidates[i]
		}
	}
	return nil
}
