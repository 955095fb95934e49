package comm

import (
	"context"
	"fmt"
	"sync"
)

// MemoryHub backs an in-process rank group. Each rank runs in its own
// goroutine and gets a MemoryGroup handle from Group. The hub is the
// shared meeting point for barriers and broadcasts.
type MemoryHub struct {
	size    int
	inboxes []chan int64

	mu      sync.Mutex
	arrived int
	release chan struct{}

	closeOnce sync.Once
	done      chan struct{}
}

// NewMemoryHub creates a hub for a group of size ranks.
func NewMemoryHub(size int) *MemoryHub {
	if size < 1 {
		panic(fmt.Sprintf("comm: group size %d", size))
	}
	inboxes := make([]chan int64, size)
	for i := range inboxes {
		inboxes[i] = make(chan int64, 1)
	}
	return &MemoryHub{
		size:    size,
		inboxes: inboxes,
		release: make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Group returns the handle rank uses for collective calls.
func (h *MemoryHub) Group(rank int) *MemoryGroup {
	if rank < 0 || rank >= h.size {
		panic(fmt.Sprintf("comm: rank %d out of range for size %d", rank, h.size))
	}
	return &MemoryGroup{hub: h, rank: rank}
}

func (h *MemoryHub) await(ctx context.Context) error {
	h.mu.Lock()
	h.arrived++
	if h.arrived == h.size {
		h.arrived = 0
		close(h.release)
		h.release = make(chan struct{})
		h.mu.Unlock()
		return nil
	}
	release := h.release
	h.mu.Unlock()

	select {
	case <-release:
		return nil
	case <-h.done:
		return ErrGroupClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *MemoryHub) close() {
	h.closeOnce.Do(func() {
		close(h.done)
	})
}

// MemoryGroup is one rank's view of a MemoryHub.
type MemoryGroup struct {
	hub  *MemoryHub
	rank int
}

func (g *MemoryGroup) Rank() int { return g.rank }

func (g *MemoryGroup) Size() int { return g.hub.size }

func (g *MemoryGroup) Broadcast(ctx context.Context, value int64, root int) (int64, error) {
	if root < 0 || root >= g.hub.size {
		return 0, fmt.Errorf("broadcast root %d out of range for size %d", root, g.hub.size)
	}
	if g.rank == root {
		for i, inbox := range g.hub.inboxes {
			if i == root {
				continue
			}
			select {
			case inbox <- value:
			case <-g.hub.done:
				return 0, ErrGroupClosed
			case <-ctx.Done():
				return 0, ctx.Err()
			}
		}
		return value, nil
	}

	select {
	case v := <-g.hub.inboxes[g.rank]:
		return v, nil
	case <-g.hub.done:
		return 0, ErrGroupClosed
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (g *MemoryGroup) Barrier(ctx context.Context) error {
	return g.hub.await(ctx)
}

// Close releases the whole hub; any rank blocked in a collective
// returns ErrGroupClosed.
func (g *MemoryGroup) Close() error {
	g.hub.close()
	return nil
}
