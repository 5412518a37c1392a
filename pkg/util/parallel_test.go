package util

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParallelRunsEveryInput(t *testing.T) {
	var sum atomic.Int64
	inputs := []int{1, 2, 3, 4, 5}

	err := Parallel(context.Background(), inputs, 3, func(ctx context.Context, n int) error {
		sum.Add(int64(n))
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, int64(15), sum.Load())
}

func TestParallelEmptyInput(t *testing.T) {
	err := Parallel(context.Background(), nil, 3, func(ctx context.Context, n int) error {
		t.Fatal("must not be called")
		return nil
	})
	require.NoError(t, err)
}

func TestParallelReturnsFirstError(t *testing.T) {
	boom := errors.New("boom")

	err := Parallel(context.Background(), []int{1, 2, 3}, 1, func(ctx context.Context, n int) error {
		if n == 2 {
			return boom
		}
		return nil
	})

	assert.ErrorIs(t, err, boom)
}

func TestParallelClampsWorkerLimit(t *testing.T) {
	var count atomic.Int64
	err := Parallel(context.Background(), []int{1, 2, 3}, 0, func(ctx context.Context, n int) error {
		count.Add(1)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), count.Load())
}
