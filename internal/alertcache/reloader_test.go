package alertcache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blockingTarget counts reloads and optionally blocks them until released.
type blockingTarget struct {
	calls    atomic.Int32
	finished atomic.Int32
	gate     chan struct{}
	err      error
}

func (b *blockingTarget) ReloadCachesForAgent(ctx context.Context, _ uint) (Stats, error) {
	b.calls.Add(1)
	if b.gate != nil {
		<-b.gate
	}
	b.finished.Add(1)
	if ctx.Err() != nil {
		return Stats{}, ctx.Err()
	}
	return Stats{Created: 3}, b.err
}

func TestAgentReloader_ConcurrentRequestsShareOneReload(t *testing.T) {
	t.Parallel()

	target := &blockingTarget{gate: make(chan struct{})}
	r := NewAgentReloader(target, ReloaderConfig{}, testLogger())

	const waiters = 5
	results := make([]ReloadResult, waiters)
	var wg sync.WaitGroup
	for i := range waiters {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := r.Reload(context.Background(), 1, true)
			assert.NoError(t, err)
			results[i] = res
		}()
	}

	require.Eventually(t, func() bool { return target.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	// let the remaining waiters join the in-flight call
	time.Sleep(50 * time.Millisecond)
	close(target.gate)
	wg.Wait()

	assert.Equal(t, int32(1), target.calls.Load())
	for _, res := range results {
		assert.Equal(t, 3, res.Stats.Created)
		assert.True(t, res.Shared)
	}
}

func TestAgentReloader_Debounce(t *testing.T) {
	t.Parallel()

	target := &blockingTarget{}
	r := NewAgentReloader(target, ReloaderConfig{Debounce: time.Minute}, testLogger())
	ctx := context.Background()

	res, err := r.Reload(ctx, 1, false)
	require.NoError(t, err)
	assert.False(t, res.Skipped)

	res, err = r.Reload(ctx, 1, false)
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Equal(t, int32(1), target.calls.Load())

	// other agents are not affected
	res, err = r.Reload(ctx, 2, false)
	require.NoError(t, err)
	assert.False(t, res.Skipped)

	res, err = r.Reload(ctx, 1, true)
	require.NoError(t, err)
	assert.False(t, res.Skipped)

	r.Forget(1)
	res, err = r.Reload(ctx, 1, false)
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	assert.Equal(t, int32(4), target.calls.Load())
}

func TestAgentReloader_FailedReloadIsNotDebounced(t *testing.T) {
	t.Parallel()

	target := &blockingTarget{err: errQueryFailed}
	r := NewAgentReloader(target, ReloaderConfig{Debounce: time.Minute}, testLogger())

	_, err := r.Reload(context.Background(), 1, false)
	require.ErrorIs(t, err, errQueryFailed)

	target.err = nil
	res, err := r.Reload(context.Background(), 1, false)
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	assert.Equal(t, int32(2), target.calls.Load())
}

func TestAgentReloader_TimeoutLeavesReloadRunning(t *testing.T) {
	t.Parallel()

	target := &blockingTarget{gate: make(chan struct{})}
	r := NewAgentReloader(target, ReloaderConfig{Timeout: 20 * time.Millisecond}, testLogger())

	_, err := r.Reload(context.Background(), 1, true)
	require.ErrorIs(t, err, ErrReloadTimeout)
	assert.Zero(t, target.finished.Load())

	close(target.gate)
	assert.Eventually(t, func() bool { return target.finished.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestAgentReloader_CallerCancellation(t *testing.T) {
	t.Parallel()

	target := &blockingTarget{gate: make(chan struct{})}
	r := NewAgentReloader(target, ReloaderConfig{}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := r.Reload(ctx, 1, true)
		done <- err
	}()

	require.Eventually(t, func() bool { return target.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	// the detached reload does not observe the cancellation
	close(target.gate)
	require.Eventually(t, func() bool { return target.finished.Load() == 1 }, time.Second, 5*time.Millisecond)

	res, err := r.Reload(context.Background(), 1, true)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Stats.Created)
}

func TestAgentReloader_DrivesCache(t *testing.T) {
	t.Parallel()

	src := newFakeSource(thresholdRow(1, 1, 10, 42, ">", 80), thresholdRow(2, 2, 20, 50, ">", 80))
	c := newTestCache(src, &recordingSink{})
	r := NewAgentReloader(c, ReloaderConfig{Timeout: time.Second, Rate: 100}, testLogger())

	res, err := r.Reload(context.Background(), 2, false)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Stats.Created)

	_, ok := c.ConditionState(2)
	assert.True(t, ok)
	_, ok = c.ConditionState(1)
	assert.False(t, ok)

	src.failOnCall = src.calls + 1
	_, err = r.Reload(context.Background(), 2, false)
	require.ErrorIs(t, err, errQueryFailed)
}
