package comm

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSingleGroup(t *testing.T) {
	g := NewSingleGroup()

	assert.Equal(t, 0, g.Rank())
	assert.Equal(t, 1, g.Size())

	v, err := g.Broadcast(context.Background(), 42, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(42), v)

	require.NoError(t, g.Barrier(context.Background()))
	require.NoError(t, g.Close())
}

func TestSingleGroupCancelledContext(t *testing.T) {
	g := NewSingleGroup()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := g.Broadcast(ctx, 1, 0)
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, g.Barrier(ctx), context.Canceled)
}

func TestMemoryBroadcast(t *testing.T) {
	const size = 3
	hub := NewMemoryHub(size)

	got := make([]int64, size)
	var wg sync.WaitGroup
	errs := make(chan error, size)

	for rank := 0; rank < size; rank++ {
		wg.Add(1)
		go func(rank int) {
			defer wg.Done()
			g := hub.Group(rank)
			v, err := g.Broadcast(context.Background(), 42, 0)
			if err != nil {
				errs <- err
				return
			}
			got[rank] = v
		}(rank)
	}

	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	for rank := 0; rank < size; rank++ {
		assert.Equal(t, int64(42), got[rank], "rank %d", rank)
	}
}

func TestMemoryBroadcastOrdering(t *testing.T) {
	const size = 2
	hub := NewMemoryHub(size)

	var wg sync.WaitGroup
	errs := make(chan error, size)
	var followerGot []int64

	wg.Add(2)
	go func() {
		defer wg.Done()
		g := hub.Group(0)
		for _, v := range []int64{1, 2, 3} {
			if _, err := g.Broadcast(context.Background(), v, 0); err != nil {
				errs <- err
				return
			}
		}
	}()
	go func() {
		defer wg.Done()
		g := hub.Group(1)
		for i := 0; i < 3; i++ {
			v, err := g.Broadcast(context.Background(), 0, 0)
			if err != nil {
				errs <- err
				return
			}
			followerGot = append(followerGot, v)
		}
	}()

	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	assert.Equal(t, []int64{1, 2, 3}, followerGot)
}

func TestMemoryBarrierReleasesTogether(t *testing.T) {
	const size = 3
	hub := NewMemoryHub(size)

	var entered atomic.Int32
	var wg sync.WaitGroup
	errs := make(chan error, size)

	for rank := 0; rank < size; rank++ {
		wg.Add(1)
		go func(rank int) {
			defer wg.Done()
			// Stagger arrivals so an early release would be visible.
			time.Sleep(time.Duration(rank) * 20 * time.Millisecond)
			entered.Add(1)
			g := hub.Group(rank)
			if err := g.Barrier(context.Background()); err != nil {
				errs <- err
				return
			}
			if n := entered.Load(); n != size {
				t.Errorf("rank %d released with %d/%d ranks arrived", rank, n, size)
			}
		}(rank)
	}

	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
}

func TestMemoryBarrierReusable(t *testing.T) {
	const size = 2
	const rounds = 5
	hub := NewMemoryHub(size)

	var wg sync.WaitGroup
	errs := make(chan error, size)

	for rank := 0; rank < size; rank++ {
		wg.Add(1)
		go func(rank int) {
			defer wg.Done()
			g := hub.Group(rank)
			for i := 0; i < rounds; i++ {
				if err := g.Barrier(context.Background()); err != nil {
					errs <- err
					return
				}
			}
		}(rank)
	}

	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
}

func TestMemoryCloseUnblocksBarrier(t *testing.T) {
	hub := NewMemoryHub(2)

	errCh := make(chan error, 1)
	go func() {
		errCh <- hub.Group(1).Barrier(context.Background())
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, hub.Group(0).Close())

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrGroupClosed)
	case <-time.After(time.Second):
		t.Fatal("barrier did not unblock after close")
	}
}

func TestMemoryBarrierContextCancel(t *testing.T) {
	hub := NewMemoryHub(2)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := hub.Group(0).Barrier(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
