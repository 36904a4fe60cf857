package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iamgideonidoko/signet-match/pkg/logger"
)

var (
	ErrNoConnection = errors.New("no database connection")
	ErrMaxRetries   = errors.New("max retries exceeded")
)

type RetryConfig struct {
	MaxAttempts int
	InitialWait time.Duration
	MaxWait     time.Duration
	Multiplier  float64
}

var DefaultRetryConfig = RetryConfig{
	MaxAttempts: 5,
	InitialWait: 100 * time.Millisecond,
	MaxWait:     5 * time.Second,
	Multiplier:  2.0,
}

// permanent reports errors that a retry cannot fix.
func permanent(err error) bool {
	return errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, sql.ErrNoRows) ||
		errors.Is(err, ErrNotFound)
}

// WithRetry runs operation with exponential backoff until it succeeds,
// fails permanently or runs out of attempts.
func WithRetry(ctx context.Context, config RetryConfig, operation func() error) error {
	var lastErr error
	wait := config.InitialWait

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		err := operation()
		if err == nil {
			return nil
		}
		lastErr = err

		if permanent(err) {
			return err
		}
		if attempt >= config.MaxAttempts {
			break
		}

		logger.Warn("Database operation failed, retrying", map[string]any{
			"attempt": attempt,
			"max":     config.MaxAttempts,
			"wait_ms": wait.Milliseconds(),
			"error":   err.Error(),
		})

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}

		wait = min(time.Duration(float64(wait)*config.Multiplier), config.MaxWait)
	}

	return fmt.Errorf("%w: %v", ErrMaxRetries, lastErr)
}

// Open connects with retries and applies the schema. Startup uses it so a
// database that comes up after the service does not abort the boot.
func Open(ctx context.Context, driver, dsn string, maxConns, maxIdleConns int, retry RetryConfig) (*Repository, error) {
	var repo *Repository
	err := WithRetry(ctx, retry, func() error {
		r, err := NewRepository(driver, dsn, maxConns, maxIdleConns)
		if err != nil {
			return err
		}
		repo = r
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoConnection, err)
	}

	if err := repo.Migrate(ctx); err != nil {
		_ = repo.Close()
		return nil, err
	}
	return repo, nil
}

// HealthCheck verifies database connectivity.
func (r *Repository) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return r.db.PingContext(ctx)
}

// Stats returns database connection pool statistics.
func (r *Repository) Stats() sql.DBStats {
	return r.db.Stats()
}
