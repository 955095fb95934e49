// Package comm provides the rank groups a benchmark runs on: a
// trivial single-process group, an in-memory group for tests, and a
// socket rendezvous group for real multi-process runs.
package comm

import (
	"context"
	"errors"
	"fmt"

	"ckptbench/pkg/config"
	"ckptbench/pkg/interfaces"
)

// ErrGroupClosed is returned by collective calls after Close.
var ErrGroupClosed = errors.New("process group is closed")

// BuildGroup constructs the process group described by cfg. For the
// rendezvous kind, rank 0 listens and the other ranks dial until the
// leader is up or ctx expires.
func BuildGroup(ctx context.Context, cfg config.GroupConfig) (interfaces.ProcessGroup, error) {
	switch cfg.Kind {
	case "", "single":
		return NewSingleGroup(), nil
	case "ws":
		if cfg.Rank == 0 {
			return NewWSLeader(cfg.Size, fmt.Sprintf(":%d", cfg.RendezvousPort))
		}
		host := cfg.RendezvousHost
		if host == "" {
			host = "127.0.0.1"
		}
		return NewWSFollower(ctx, cfg.Rank, cfg.Size, fmt.Sprintf("%s:%d", host, cfg.RendezvousPort))
	default:
		return nil, fmt.Errorf("unknown group kind %q", cfg.Kind)
	}
}
