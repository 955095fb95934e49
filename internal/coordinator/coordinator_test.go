package coordinator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"ckptbench/internal/comm"
	"ckptbench/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mechanismCall struct {
	epoch int
	step  int
}

// fakeMechanism records checkpoint calls instead of writing files.
type fakeMechanism struct {
	mu            sync.Mutex
	calls         []mechanismCall
	current       int
	maxConcurrent int
	delay         time.Duration
	failStep      int
	finalized     bool
}

func (m *fakeMechanism) Checkpoint(ctx context.Context, epoch, step int) error {
	m.mu.Lock()
	m.current++
	if m.current > m.maxConcurrent {
		m.maxConcurrent = m.current
	}
	m.mu.Unlock()

	if m.delay > 0 {
		time.Sleep(m.delay)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.current--
	if m.failStep != 0 && step == m.failStep {
		return errors.New("simulated checkpoint failure")
	}
	m.calls = append(m.calls, mechanismCall{epoch: epoch, step: step})
	return nil
}

func (m *fakeMechanism) Finalize() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finalized = true
	return nil
}

func (m *fakeMechanism) recorded() []mechanismCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mechanismCall(nil), m.calls...)
}

func (m *fakeMechanism) wasFinalized() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.finalized
}

func mustProfile(t *testing.T, name string) model.Profile {
	t.Helper()
	p, err := model.LookupProfile(name)
	require.NoError(t, err)
	return p
}

func TestDoCheckpointSingleGroup(t *testing.T) {
	mech := &fakeMechanism{}
	c := New(comm.NewSingleGroup(), mech, mustProfile(t, "megatron"))
	require.NoError(t, c.Setup(context.Background()))

	res, err := c.DoCheckpoint(context.Background(), model.CheckpointRequest{Step: 1, PassNum: 1})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Step)
	assert.Equal(t, 1, res.PassNum)
	assert.Equal(t, 1, res.CommSize)
	assert.Equal(t, 44, res.NumLayers)
	assert.GreaterOrEqual(t, res.CheckpointTime, 0.0)

	assert.Equal(t, []mechanismCall{{epoch: 1, step: 1}}, mech.recorded())
}

func TestDoCheckpointRequiresControlRank(t *testing.T) {
	hub := comm.NewMemoryHub(2)
	c := New(hub.Group(1), &fakeMechanism{}, mustProfile(t, "megatron"))

	_, err := c.DoCheckpoint(context.Background(), model.CheckpointRequest{Step: 1, PassNum: 1})
	assert.Error(t, err)
}

func TestDoCheckpointRejectsNonPositiveStep(t *testing.T) {
	c := New(comm.NewSingleGroup(), &fakeMechanism{}, mustProfile(t, "megatron"))

	_, err := c.DoCheckpoint(context.Background(), model.CheckpointRequest{Step: 0, PassNum: 1})
	assert.Error(t, err)
}

func TestDoCheckpointTimesAreFresh(t *testing.T) {
	mech := &fakeMechanism{delay: 5 * time.Millisecond}
	c := New(comm.NewSingleGroup(), mech, mustProfile(t, "megatron"))

	for step := 1; step <= 3; step++ {
		res, err := c.DoCheckpoint(context.Background(), model.CheckpointRequest{Step: step, PassNum: 1})
		require.NoError(t, err)
		assert.Greater(t, res.CheckpointTime, 0.0)
	}

	s := c.Summary()
	assert.Equal(t, 3, s.Count)
	assert.Greater(t, s.Min, 0.0)
}

func TestCheckpointErrorPropagates(t *testing.T) {
	mech := &fakeMechanism{failStep: 2}
	c := New(comm.NewSingleGroup(), mech, mustProfile(t, "megatron"))

	_, err := c.DoCheckpoint(context.Background(), model.CheckpointRequest{Step: 1, PassNum: 1})
	require.NoError(t, err)

	_, err = c.DoCheckpoint(context.Background(), model.CheckpointRequest{Step: 2, PassNum: 1})
	require.Error(t, err)

	// The failed call leaves no measurement behind.
	assert.Equal(t, 1, c.Summary().Count)
}

func TestDoCheckpointSerializesRequests(t *testing.T) {
	mech := &fakeMechanism{delay: 20 * time.Millisecond}
	c := New(comm.NewSingleGroup(), mech, mustProfile(t, "megatron"))

	var wg sync.WaitGroup
	for step := 1; step <= 4; step++ {
		wg.Add(1)
		go func(step int) {
			defer wg.Done()
			_, err := c.DoCheckpoint(context.Background(), model.CheckpointRequest{Step: step, PassNum: 1})
			assert.NoError(t, err)
		}(step)
	}
	wg.Wait()

	assert.Equal(t, 1, mech.maxConcurrent)
	assert.Equal(t, 4, c.Summary().Count)
}

// TestAllRanksCheckpointTogether drives a four-rank group: after the
// control rank's call returns, every rank must have checkpointed the
// broadcast step.
func TestAllRanksCheckpointTogether(t *testing.T) {
	const size = 4
	hub := comm.NewMemoryHub(size)
	profile := mustProfile(t, "llama3-7b")

	mechs := make([]*fakeMechanism, size)
	coords := make([]*Coordinator, size)
	for rank := 0; rank < size; rank++ {
		mechs[rank] = &fakeMechanism{}
		coords[rank] = New(hub.Group(rank), mechs[rank], profile)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var setup sync.WaitGroup
	for rank := 0; rank < size; rank++ {
		setup.Add(1)
		go func(rank int) {
			defer setup.Done()
			assert.NoError(t, coords[rank].Setup(ctx))
		}(rank)
	}
	setup.Wait()

	followerErrs := make(chan error, size-1)
	var followers sync.WaitGroup
	for rank := 1; rank < size; rank++ {
		followers.Add(1)
		go func(rank int) {
			defer followers.Done()
			followerErrs <- coords[rank].RunFollower(ctx)
		}(rank)
	}

	res, err := coords[0].DoCheckpoint(ctx, model.CheckpointRequest{Step: 5, PassNum: 1})
	require.NoError(t, err)
	assert.Equal(t, size, res.CommSize)
	assert.Equal(t, 5, res.Step)

	// The reply only returns after the post-checkpoint barrier, so
	// every rank has already checkpointed step 5.
	for rank := 0; rank < size; rank++ {
		assert.Equal(t, []mechanismCall{{epoch: 1, step: 5}}, mechs[rank].recorded(), "rank %d", rank)
	}

	require.NoError(t, coords[0].Finalize(ctx))

	followers.Wait()
	close(followerErrs)
	for err := range followerErrs {
		assert.NoError(t, err)
	}
	for rank := 0; rank < size; rank++ {
		assert.True(t, mechs[rank].wasFinalized(), "rank %d", rank)
	}
}

func TestFinalizeIsIdempotent(t *testing.T) {
	mech := &fakeMechanism{}
	c := New(comm.NewSingleGroup(), mech, mustProfile(t, "megatron"))

	require.NoError(t, c.Finalize(context.Background()))
	require.NoError(t, c.Finalize(context.Background()))
	assert.True(t, mech.wasFinalized())

	_, err := c.DoCheckpoint(context.Background(), model.CheckpointRequest{Step: 1, PassNum: 1})
	assert.Error(t, err)
}

func TestRunFollowerStopsOnCancel(t *testing.T) {
	hub := comm.NewMemoryHub(2)
	mech := &fakeMechanism{}
	c := New(hub.Group(1), mech, mustProfile(t, "megatron"))

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- c.RunFollower(ctx)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("follower did not stop on cancellation")
	}
	assert.True(t, mech.wasFinalized())
}

func TestRunFollowerRejectsControlRank(t *testing.T) {
	c := New(comm.NewSingleGroup(), &fakeMechanism{}, mustProfile(t, "megatron"))
	assert.Error(t, c.RunFollower(context.Background()))
}
