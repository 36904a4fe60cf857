package matcher

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/iamgideonidoko/signet-match/internal/models"
	"github.com/iamgideonidoko/signet-match/pkg/logger"
)

func benchCandidates(n int) []models.StoredFingerprint {
	out := make([]models.StoredFingerprint, 0, n)
	for i := 0; i < n; i++ {
		fp := models.SampleFingerprint()
		fp.Core.CanvasHash = fmt.Sprintf("%08x", i)
		out = append(out, candidate(fmt.Sprintf("fp-%d", i), fp, time.Duration(i+1)*time.Minute))
	}
	return out
}

func benchmarkFindMatches(b *testing.B, parallel, cached bool) {
	cfg := DefaultConfig()
	cfg.Performance.EnableParallelProcessing = parallel
	cfg.Performance.CacheResults = cached

	m, err := New(cfg, WithClock(func() time.Time { return testNow }), WithLogger(logger.Nop()))
	if err != nil {
		b.Fatal(err)
	}
	defer m.Close()

	ctx := context.Background()
	current := models.SampleFingerprint()
	candidates := benchCandidates(500)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = m.FindMatches(ctx, current, candidates)
	}
}

func BenchmarkFindMatches_Sequential(b *testing.B) { benchmarkFindMatches(b, false, false) }
func BenchmarkFindMatches_Parallel(b *testing.B)   { benchmarkFindMatches(b, true, false) }
func BenchmarkFindMatches_Cached(b *testing.B)     { benchmarkFindMatches(b, true, true) }
