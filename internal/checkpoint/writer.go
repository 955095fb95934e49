// Package checkpoint writes synthetic training state to disk. The
// writer produces the same volume of bytes a real checkpoint of the
// configured workload would, so its wall-clock time tracks storage
// performance without needing a training framework.
package checkpoint

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"ckptbench/internal/model"
	"ckptbench/pkg/logger"
)

// bytesPerElement assumes half-precision tensors.
const bytesPerElement = 2

// writeChunkSize is how much is written per syscall.
const writeChunkSize = 1 << 20

// Writer writes one rank's shard of model and optimizer state for
// each checkpoint. Each (epoch, step) pair gets its own directory so
// successive checkpoints never overwrite each other's files while a
// measurement is in flight.
type Writer struct {
	dir     string
	profile model.Profile
	rank    int
	size    int

	chunk []byte

	checkpoints  int
	writtenBytes int64
}

// NewWriter creates the checkpoint directory and returns a writer for
// this rank's shard of the profile's state.
func NewWriter(dir string, p model.Profile, rank, size int) (*Writer, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create checkpoint dir: %w", err)
	}

	chunk := make([]byte, writeChunkSize)
	for i := range chunk {
		chunk[i] = byte(i * 31)
	}

	return &Writer{
		dir:     dir,
		profile: p,
		rank:    rank,
		size:    size,
		chunk:   chunk,
	}, nil
}

// shardElements returns how many model and optimizer elements this
// rank writes per checkpoint. Layers are split across pipeline stages
// and each layer across tensor-parallel ranks; optimizer groups are
// already per-shard sizes.
func (w *Writer) shardElements() (modelElems, optElems int64) {
	var layerElems int64
	for _, p := range w.profile.LayerParameters {
		layerElems += p
	}

	layersPerStage := w.profile.NumLayers
	if w.profile.PipelineParallelism > 0 {
		layersPerStage = w.profile.NumLayers / w.profile.PipelineParallelism
		if layersPerStage < 1 {
			layersPerStage = 1
		}
	}

	modelElems = layerElems * int64(layersPerStage)
	if w.profile.TensorParallelism > 0 {
		modelElems /= int64(w.profile.TensorParallelism)
	}

	for _, g := range w.profile.OptimizationGroups {
		optElems += g
	}
	return modelElems, optElems
}

// Checkpoint writes this rank's model and optimizer shards for one
// (epoch, step) pair and syncs them to disk.
func (w *Writer) Checkpoint(ctx context.Context, epoch, step int) error {
	subdir := filepath.Join(w.dir, fmt.Sprintf("%s-epoch-%d-step-%d", w.profile.Name, epoch, step))
	if err := os.MkdirAll(subdir, 0755); err != nil {
		return fmt.Errorf("create checkpoint subdir: %w", err)
	}

	modelElems, optElems := w.shardElements()

	files := []struct {
		name  string
		bytes int64
	}{
		{fmt.Sprintf("model-%d-of-%d.bin", w.rank, w.size), modelElems * bytesPerElement},
		{fmt.Sprintf("optimizer-%d-of-%d.bin", w.rank, w.size), optElems * bytesPerElement},
	}

	for _, f := range files {
		if err := w.writeFile(ctx, filepath.Join(subdir, f.name), f.bytes); err != nil {
			return err
		}
	}

	w.checkpoints++
	logger.Debugf("rank %d wrote checkpoint epoch=%d step=%d (%d bytes)",
		w.rank, epoch, step, (modelElems+optElems)*bytesPerElement)
	return nil
}

func (w *Writer) writeFile(ctx context.Context, path string, size int64) error {
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	remaining := size
	for remaining > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		n := int64(len(w.chunk))
		if remaining < n {
			n = remaining
		}
		written, err := file.Write(w.chunk[:n])
		if err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
		remaining -= int64(written)
		w.writtenBytes += int64(written)
	}

	// Flush to disk so the measured time covers real IO, not just the
	// page cache.
	if err := file.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", path, err)
	}
	return nil
}

// Finalize logs what the writer produced. The files themselves are
// left for inspection.
func (w *Writer) Finalize() error {
	logger.Infof("rank %d finished: %d checkpoints, %d bytes written", w.rank, w.checkpoints, w.writtenBytes)
	return nil
}

// WrittenBytes returns the total bytes written so far.
func (w *Writer) WrittenBytes() int64 {
	return w.writtenBytes
}
