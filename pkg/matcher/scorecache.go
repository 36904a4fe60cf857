package matcher

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/iamgideonidoko/signet-match/internal/models"
)

// scoreCache is a size and TTL bounded map of comparison key to score.
// Scores are copied in and out, so callers own what they get back.
type scoreCache struct {
	lru *expirable.LRU[string, models.SimilarityScore]
}

func newScoreCache(size int, ttl time.Duration) *scoreCache {
	return &scoreCache{lru: expirable.NewLRU[string, models.SimilarityScore](size, nil, ttl)}
}

func (c *scoreCache) Get(key string) (models.SimilarityScore, bool) {
	if c == nil {
		return models.SimilarityScore{}, false
	}
	score, ok := c.lru.Get(key)
	if !ok {
		return models.SimilarityScore{}, false
	}
	return score.Clone(), true
}

func (c *scoreCache) Add(key string, score models.SimilarityScore) {
	if c == nil {
		return
	}
	c.lru.Add(key, score.Clone())
}

func (c *scoreCache) Purge() {
	if c == nil {
		return
	}
	c.lru.Purge()
}

func (c *scoreCache) Len() int {
	if c == nil {
		return 0
	}
	return c.lru.Len()
}

type cacheKeyInput struct {
	CandidateID    string                `json:"candidate_id"`
	Candidate      models.Fingerprint    `json:"candidate"`
	LastSeen       time.Time             `json:"last_seen"`
	SeenCount      int                   `json:"seen_count"`
	DeviceCategory models.DeviceCategory `json:"device_category"`
	IdenticalCount int                   `json:"identical_count"`
}

// cacheKey hashes every input that can change a comparison's score.
// encoding/json sorts map keys, so equal inputs always produce equal keys.
func cacheKey(currentJSON []byte, candidate models.StoredFingerprint, identical int) (string, error) {
	payload, err := json.Marshal(cacheKeyInput{
		CandidateID:    candidate.FingerprintID,
		Candidate:      candidate.Signals,
		LastSeen:       candidate.LastSeen.UTC(),
		SeenCount:      candidate.SeenCount,
		DeviceCategory: candidate.DeviceCategory,
		IdenticalCount: identical,
	})
	if err != nil {
		return "", err
	}

	h := sha256.New()
	h.Write(currentJSON)
	h.Write([]byte{0})
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil)), nil
}
