package async

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func blockingWork(release <-chan struct{}, v any) Work {
	return func() (any, error) {
		<-release
		return v, nil
	}
}

func TestSubmitReturnsResult(t *testing.T) {
	p := NewPool()
	defer p.Shutdown()

	f := p.Submit(func() (any, error) { return 42, nil }, nil)
	v, err := f.Get()
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.True(t, f.IsDone())
}

func TestSubmitWrapsFailure(t *testing.T) {
	p := NewPool()
	defer p.Shutdown()

	cause := errors.New("connection reset")
	_, err := p.Submit(func() (any, error) { return nil, cause }, nil).Get()

	var taskErr *TaskError
	require.ErrorAs(t, err, &taskErr)
	assert.ErrorIs(t, err, cause)
}

func TestSubmitRecoversPanic(t *testing.T) {
	p := NewPool()
	defer p.Shutdown()

	_, err := p.Submit(func() (any, error) { panic("boom") }, nil).Get()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")

	v, err := p.Submit(func() (any, error) { return "ok", nil }, nil).Get()
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}

func TestSaturation(t *testing.T) {
	p := NewPool()
	release := make(chan struct{})

	futures := []*Future{
		p.Submit(blockingWork(release, 1), nil),
		p.Submit(blockingWork(release, 2), nil),
	}
	assert.Equal(t, Stats{Workers: 1, Busy: 1, Queued: 1}, p.Stats())

	// The queue is full and no worker is idle: the pool grows instead of
	// queuing further.
	futures = append(futures, p.Submit(blockingWork(release, 3), nil))
	stats := p.Stats()
	assert.Equal(t, 2, stats.Workers)
	assert.Equal(t, 1, stats.Queued)

	for i := 4; i <= 6; i++ {
		futures = append(futures, p.Submit(blockingWork(release, i), nil))
	}
	assert.Equal(t, MaxWorkers, p.Stats().Workers)

	rejected := p.Submit(blockingWork(release, 7), nil)
	require.True(t, rejected.IsDone())

	_, err := rejected.Get()
	var taskErr *TaskError
	require.ErrorAs(t, err, &taskErr)
	assert.ErrorIs(t, err, ErrSaturated)

	close(release)
	for i, f := range futures {
		v, err := f.Get()
		require.NoError(t, err)
		assert.Equal(t, i+1, v)
	}
	p.Shutdown()
}

func TestSurplusWorkersRetire(t *testing.T) {
	p := NewPool(WithKeepAlive(20 * time.Millisecond))
	defer p.Shutdown()

	release := make(chan struct{})
	for i := 0; i < 4; i++ {
		p.Submit(blockingWork(release, i), nil)
	}
	require.Equal(t, 3, p.Stats().Workers)

	close(release)
	assert.Eventually(t, func() bool {
		return p.Stats().Workers == CoreWorkers
	}, time.Second, 5*time.Millisecond)
}

func TestCallbackRunsAfterResolution(t *testing.T) {
	p := NewPool()
	defer p.Shutdown()

	release := make(chan struct{})
	called := make(chan *Future, 1)
	var calls atomic.Int32

	f := p.Submit(blockingWork(release, "done"), func(f *Future) {
		calls.Add(1)
		called <- f
	})

	select {
	case <-called:
		t.Fatal("callback ran before the work completed")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	got := <-called
	assert.Same(t, f, got)
	assert.True(t, got.IsDone())

	v, err := got.Get()
	require.NoError(t, err)
	assert.Equal(t, "done", v)
	assert.Equal(t, int32(1), calls.Load())
}

func TestCallbackDoesNotOccupyWorker(t *testing.T) {
	p := NewPool()
	defer p.Shutdown()

	hold := make(chan struct{})
	defer close(hold)

	first := p.Submit(func() (any, error) { return 1, nil }, func(*Future) { <-hold })
	_, err := first.Get()
	require.NoError(t, err)

	v, err := p.Submit(func() (any, error) { return 2, nil }, nil).Get()
	require.NoError(t, err)
	assert.Equal(t, 2, v)
}

func TestCallbackOnRejection(t *testing.T) {
	p := NewPool()
	p.Shutdown()

	called := make(chan error, 1)
	p.Submit(func() (any, error) { return nil, nil }, func(f *Future) {
		_, err := f.Get()
		called <- err
	})

	select {
	case err := <-called:
		assert.ErrorIs(t, err, ErrShutdown)
	case <-time.After(time.Second):
		t.Fatal("callback not invoked")
	}
}
