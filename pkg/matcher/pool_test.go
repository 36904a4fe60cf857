package matcher

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iamgideonidoko/signet-match/pkg/logger"
)

type funcJob func(ctx context.Context) error

func (f funcJob) Execute(ctx context.Context) error { return f(ctx) }

func TestWorkerPool_RunsJobs(t *testing.T) {
	pool := NewWorkerPool(context.Background(), 3, logger.Nop())
	defer pool.Close()
	assert.Equal(t, 3, pool.Size())

	var ran atomic.Int32
	done := make(chan struct{}, 20)
	for i := 0; i < 20; i++ {
		err := pool.Submit(context.Background(), funcJob(func(context.Context) error {
			ran.Add(1)
			done <- struct{}{}
			return nil
		}))
		require.NoError(t, err)
	}

	for i := 0; i < 20; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for jobs")
		}
	}
	assert.Equal(t, int32(20), ran.Load())
}

func TestWorkerPool_JobErrorDoesNotStopWorker(t *testing.T) {
	pool := NewWorkerPool(context.Background(), 1, logger.Nop())
	defer pool.Close()

	done := make(chan struct{})
	require.NoError(t, pool.Submit(context.Background(), funcJob(func(context.Context) error {
		return errors.New("boom")
	})))
	require.NoError(t, pool.Submit(context.Background(), funcJob(func(context.Context) error {
		close(done)
		return nil
	})))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker stopped after a failed job")
	}
}

func TestWorkerPool_SubmitAfterClose(t *testing.T) {
	pool := NewWorkerPool(context.Background(), 2, logger.Nop())
	pool.Close()
	pool.Close()

	err := pool.Submit(context.Background(), funcJob(func(context.Context) error { return nil }))
	assert.ErrorIs(t, err, ErrPoolClosed)

	select {
	case <-pool.Done():
	default:
		t.Fatal("Done should be closed after Close")
	}
}

func TestWorkerPool_MinimumSize(t *testing.T) {
	pool := NewWorkerPool(context.Background(), 0, logger.Nop())
	defer pool.Close()
	assert.Equal(t, 1, pool.Size())
}
