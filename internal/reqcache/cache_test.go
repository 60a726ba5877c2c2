package reqcache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestCoalescing: N concurrent Get(k, gen) calls on an empty cache run
// gen exactly once and all observe the same value.
func TestCoalescing(t *testing.T) {
	c := New[string, int]()
	var calls int32

	const n = 50
	var wg sync.WaitGroup
	results := make([]int, n)
	start := make(chan struct{})

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			v, err := c.Get(context.Background(), "k", func(ctx context.Context) (int, error) {
				atomic.AddInt32(&calls, 1)
				return 42, nil
			})
			require.NoError(t, err)
			results[i] = v
		}(i)
	}
	close(start)
	wg.Wait()

	assert.EqualValues(t, 1, calls)
	for _, v := range results {
		assert.Equal(t, 42, v)
	}
}

func TestPutOverridesCell(t *testing.T) {
	c := New[string, int]()
	c.Put("k", 7)

	v, err := c.Get(context.Background(), "k", func(ctx context.Context) (int, error) {
		t.Fatal("generator should not run after Put")
		return 0, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}

func TestErrorsAreCached(t *testing.T) {
	c := New[string, int]()
	var calls int32
	genErr := assert.AnError

	for i := 0; i < 3; i++ {
		_, err := c.Get(context.Background(), "k", func(ctx context.Context) (int, error) {
			atomic.AddInt32(&calls, 1)
			return 0, genErr
		})
		assert.ErrorIs(t, err, genErr)
	}
	assert.EqualValues(t, 1, calls)
}
