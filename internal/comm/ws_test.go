package comm

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWSGroupCollectives(t *testing.T) {
	const size = 3

	leader, err := NewWSLeader(size, "127.0.0.1:0")
	require.NoError(t, err)
	defer leader.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	errs := make(chan error, size)

	// Followers mirror the leader's sequence of collectives.
	for rank := 1; rank < size; rank++ {
		wg.Add(1)
		go func(rank int) {
			defer wg.Done()
			g, err := NewWSFollower(ctx, rank, size, leader.Addr())
			if err != nil {
				errs <- err
				return
			}
			defer g.Close()

			for _, want := range []int64{5, 7} {
				v, err := g.Broadcast(ctx, 0, 0)
				if err != nil {
					errs <- err
					return
				}
				if v != want {
					t.Errorf("rank %d got broadcast %d, want %d", rank, v, want)
				}
				if err := g.Barrier(ctx); err != nil {
					errs <- err
					return
				}
			}

			v, err := g.Broadcast(ctx, 0, 0)
			if err != nil {
				errs <- err
				return
			}
			if v != -1 {
				t.Errorf("rank %d got final broadcast %d, want -1", rank, v)
			}
		}(rank)
	}

	for _, v := range []int64{5, 7} {
		got, err := leader.Broadcast(ctx, v, 0)
		require.NoError(t, err)
		assert.Equal(t, v, got)
		require.NoError(t, leader.Barrier(ctx))
	}
	_, err = leader.Broadcast(ctx, -1, 0)
	require.NoError(t, err)

	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
}

func TestWSFollowerDialTimeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	// Nothing listens on this port.
	_, err := NewWSFollower(ctx, 1, 2, "127.0.0.1:1")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWSBroadcastRootMustBeLeader(t *testing.T) {
	leader, err := NewWSLeader(1, "127.0.0.1:0")
	require.NoError(t, err)
	defer leader.Close()

	_, err = leader.Broadcast(context.Background(), 1, 1)
	assert.Error(t, err)
}

func TestWSBarrierContextCancel(t *testing.T) {
	leader, err := NewWSLeader(2, "127.0.0.1:0")
	require.NoError(t, err)
	defer leader.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	// No follower ever joins, so the barrier cannot complete.
	err = leader.Barrier(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWSSingleRankGroup(t *testing.T) {
	leader, err := NewWSLeader(1, "127.0.0.1:0")
	require.NoError(t, err)
	defer leader.Close()

	ctx := context.Background()
	v, err := leader.Broadcast(ctx, 9, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(9), v)
	require.NoError(t, leader.Barrier(ctx))
}

func TestWSClosedGroupFails(t *testing.T) {
	leader, err := NewWSLeader(1, "127.0.0.1:0")
	require.NoError(t, err)
	require.NoError(t, leader.Close())

	_, err = leader.Broadcast(context.Background(), 1, 0)
	assert.ErrorIs(t, err, ErrGroupClosed)
}
