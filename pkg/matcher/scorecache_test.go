package matcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iamgideonidoko/signet-match/internal/models"
)

func TestScoreCache_ReturnsCopies(t *testing.T) {
	c := newScoreCache(8, time.Minute)
	score := models.SimilarityScore{
		Overall:    0.9,
		Confidence: 0.8,
		ComponentScores: map[models.Component]models.ComponentScore{
			models.ComponentCanvas: {Score: 1, Weight: 1},
		},
		Factors:        map[string]float64{models.FactorEnvironmentChange: 0},
		RiskIndicators: make([]models.RiskIndicator, 0, 4),
	}
	c.Add("k", score)

	// the caller's value no longer aliases the cached one
	score.Factors[models.FactorEnvironmentChange] = 1

	first, ok := c.Get("k")
	require.True(t, ok)
	first.ComponentScores[models.ComponentCanvas] = models.ComponentScore{}
	first.Factors[models.FactorEnvironmentChange] = 1
	first.RiskIndicators = append(first.RiskIndicators, models.RiskMultipleIdentical)

	second, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, 1.0, second.ComponentScores[models.ComponentCanvas].Score)
	assert.Equal(t, 0.0, second.Factors[models.FactorEnvironmentChange])
	assert.Empty(t, second.RiskIndicators)
	assert.Equal(t, 0.9, second.Overall)
}

func TestScoreCache_NilIsDisabled(t *testing.T) {
	var c *scoreCache
	c.Add("k", models.SimilarityScore{Overall: 1})
	_, ok := c.Get("k")
	assert.False(t, ok)
	assert.Zero(t, c.Len())
	assert.NotPanics(t, c.Purge)
}
