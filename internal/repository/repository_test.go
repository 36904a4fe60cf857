package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iamgideonidoko/signet-match/internal/models"
	"github.com/iamgideonidoko/signet-match/pkg/similarity"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestRepository(t *testing.T) *Repository {
	t.Helper()
	repo, err := NewRepository(DriverSQLite, ":memory:", 1, 1)
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	require.NoError(t, repo.Migrate(context.Background()))
	return repo
}

func stored(id, tenant string, lastSeen time.Time) *models.StoredFingerprint {
	return &models.StoredFingerprint{
		FingerprintID:  id,
		TenantID:       tenant,
		Signals:        models.SampleFingerprint(),
		DeviceCategory: models.DeviceDesktop,
		CreatedAt:      lastSeen,
		LastSeen:       lastSeen,
		SeenCount:      1,
		Metadata: models.FingerprintMetadata{
			UserAgent:    models.SampleFingerprint().UserAgent,
			SessionCount: 1,
		},
	}
}

func TestCreateAndGet(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	fp := stored("fp-1", "acme", baseTime)
	user := "user-42"
	fp.UserID = &user
	require.NoError(t, repo.Create(ctx, fp))

	got, err := repo.Get(ctx, "fp-1")
	require.NoError(t, err)
	assert.Equal(t, "acme", got.TenantID)
	require.NotNil(t, got.UserID)
	assert.Equal(t, "user-42", *got.UserID)
	assert.Equal(t, models.DeviceDesktop, got.DeviceCategory)
	assert.True(t, got.LastSeen.Equal(baseTime))
	assert.Equal(t, fp.Signals, got.Signals)
	assert.Equal(t, fp.Metadata.UserAgent, got.Metadata.UserAgent)
}

func TestGet_NotFound(t *testing.T) {
	repo := newTestRepository(t)

	_, err := repo.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreate_DuplicateID(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, stored("dup", "acme", baseTime)))
	assert.Error(t, repo.Create(ctx, stored("dup", "acme", baseTime)))
}

func TestFindCandidates(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("fp-%d", i)
		require.NoError(t, repo.Create(ctx, stored(id, "acme", baseTime.Add(-time.Duration(i)*24*time.Hour))))
	}
	require.NoError(t, repo.Create(ctx, stored("other-tenant", "globex", baseTime)))
	require.NoError(t, repo.Create(ctx, stored("ancient", "acme", baseTime.Add(-200*24*time.Hour))))

	got, err := repo.FindCandidates(ctx, "acme", baseTime.Add(-90*24*time.Hour), 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "fp-0", got[0].FingerprintID)
	assert.Equal(t, "fp-1", got[1].FingerprintID)
	assert.Equal(t, "fp-2", got[2].FingerprintID)

	got, err = repo.FindCandidates(ctx, "acme", baseTime.Add(-90*24*time.Hour), 100)
	require.NoError(t, err)
	assert.Len(t, got, 5)
}

func TestFindCandidates_SkipsUnreadableRows(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, stored("fp-good", "acme", baseTime)))
	require.NoError(t, repo.Create(ctx, stored("fp-bad", "acme", baseTime.Add(time.Minute))))
	_, err := repo.db.ExecContext(ctx, `UPDATE fingerprints SET signals = '{not json' WHERE fingerprint_id = 'fp-bad'`)
	require.NoError(t, err)

	got, err := repo.FindCandidates(ctx, "acme", baseTime.Add(-time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "fp-good", got[0].FingerprintID)

	_, err = repo.Get(ctx, "fp-bad")
	assert.Error(t, err)
}

func TestTouch(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, stored("fp-1", "acme", baseTime)))

	updated := models.SampleFingerprint()
	updated.Core.Fonts = append(updated.Core.Fonts, "Menlo")
	meta := models.FingerprintMetadata{UserAgent: updated.UserAgent, SessionCount: 2}

	require.NoError(t, repo.Touch(ctx, "fp-1", updated, meta, baseTime.Add(time.Hour)))

	got, err := repo.Get(ctx, "fp-1")
	require.NoError(t, err)
	assert.Equal(t, 2, got.SeenCount)
	assert.True(t, got.LastSeen.Equal(baseTime.Add(time.Hour)))
	assert.Contains(t, got.Signals.Core.Fonts, "Menlo")
	assert.Equal(t, 2, got.Metadata.SessionCount)

	// an out-of-order sighting still counts but never rewinds last_seen
	require.NoError(t, repo.Touch(ctx, "fp-1", updated, meta, baseTime.Add(-time.Hour)))
	got, err = repo.Get(ctx, "fp-1")
	require.NoError(t, err)
	assert.Equal(t, 3, got.SeenCount)
	assert.True(t, got.LastSeen.Equal(baseTime.Add(time.Hour)))
}

func TestTouch_NotFound(t *testing.T) {
	repo := newTestRepository(t)

	err := repo.Touch(context.Background(), "missing", models.SampleFingerprint(), models.FingerprintMetadata{}, baseTime)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCountByCoreHash(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, stored("a", "acme", baseTime)))
	require.NoError(t, repo.Create(ctx, stored("b", "acme", baseTime)))
	require.NoError(t, repo.Create(ctx, stored("c", "globex", baseTime)))

	n, err := repo.CountByCoreHash(ctx, "acme", similarity.ComputeCoreHash(models.SampleFingerprint()))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	total, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
}

func TestHealthCheck(t *testing.T) {
	repo := newTestRepository(t)
	assert.NoError(t, repo.HealthCheck(context.Background()))
	assert.Equal(t, DriverSQLite, repo.Driver())
	assert.Equal(t, 1, repo.Stats().MaxOpenConnections)
}

func TestWithRetry(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 3, InitialWait: time.Millisecond, MaxWait: 2 * time.Millisecond, Multiplier: 2}

	t.Run("eventual success", func(t *testing.T) {
		calls := 0
		err := WithRetry(context.Background(), cfg, func() error {
			calls++
			if calls < 3 {
				return errors.New("transient")
			}
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("exhausted", func(t *testing.T) {
		calls := 0
		err := WithRetry(context.Background(), cfg, func() error {
			calls++
			return errors.New("down")
		})
		assert.ErrorIs(t, err, ErrMaxRetries)
		assert.Equal(t, 3, calls)
	})

	t.Run("not found is permanent", func(t *testing.T) {
		calls := 0
		err := WithRetry(context.Background(), cfg, func() error {
			calls++
			return ErrNotFound
		})
		assert.ErrorIs(t, err, ErrNotFound)
		assert.Equal(t, 1, calls)
	})
}

func TestOpen(t *testing.T) {
	repo, err := Open(context.Background(), DriverSQLite, ":memory:", 1, 1, DefaultRetryConfig)
	require.NoError(t, err)
	defer repo.Close()

	n, err := repo.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}
