// Package output persists a benchmark run: the checkpoint result
// table, the device-utilization table and a run manifest, all under
// one timestamped directory.
package output

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"ckptbench/internal/coordinator"
	"ckptbench/internal/iostat"
	"ckptbench/internal/model"
	"ckptbench/pkg/config"
	"ckptbench/pkg/logger"

	"github.com/google/uuid"
)

const (
	resultsFileName = "checkpoint_bench_results.csv"
	iostatFileName  = "iostat.csv"
	runInfoFileName = "run.json"
)

// Artifacts owns one run's output directory.
type Artifacts struct {
	dir   string
	runID string
}

// NewArtifacts creates results_dir/<timestamp>/ and assigns the run
// its identifier.
func NewArtifacts(resultsDir string) (*Artifacts, error) {
	dir := filepath.Join(resultsDir, time.Now().Format("20060102-150405"))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create run directory: %w", err)
	}

	a := &Artifacts{
		dir:   dir,
		runID: uuid.NewString(),
	}
	logger.Infof("run %s writing to %s", a.runID, dir)
	return a, nil
}

// Dir returns the run's output directory.
func (a *Artifacts) Dir() string {
	return a.dir
}

// RunID returns the run's identifier.
func (a *Artifacts) RunID() string {
	return a.runID
}

// WriteResults writes the checkpoint result table. An empty result
// log is an error and produces no file: a benchmark that measured
// nothing has no table worth writing.
func (a *Artifacts) WriteResults(results []model.CheckpointResult) error {
	if len(results) == 0 {
		return fmt.Errorf("no checkpoint results to write")
	}

	path := filepath.Join(a.dir, resultsFileName)
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	if err := w.Write(model.ResultColumns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i := range results {
		if err := w.Write(results[i].Record()); err != nil {
			return fmt.Errorf("write record %d: %w", i, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush results: %w", err)
	}

	logger.Infof("wrote %d results to %s", len(results), path)
	return nil
}

// WriteIostat writes the device-utilization table. A run that
// captured no samples gets a warning instead of an empty file.
func (a *Artifacts) WriteIostat(report *iostat.Report) error {
	if report == nil || report.Header == nil {
		logger.Warnf("no iostat samples captured, skipping %s", iostatFileName)
		return nil
	}

	path := filepath.Join(a.dir, iostatFileName)
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	if err := w.Write(report.Header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, row := range report.Rows {
		if err := w.Write(row); err != nil {
			return fmt.Errorf("write row %d: %w", i, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush iostat: %w", err)
	}

	logger.Infof("wrote %d iostat rows to %s", len(report.Rows), path)
	return nil
}

// RunInfo is the manifest written next to the tables.
type RunInfo struct {
	RunID       string                    `json:"run_id"`
	StartedAt   time.Time                 `json:"started_at"`
	FinishedAt  time.Time                 `json:"finished_at"`
	Interrupted bool                      `json:"interrupted"`
	Records     int                       `json:"records"`
	Summary     *coordinator.TimesSummary `json:"summary,omitempty"`
	Config      *config.Config            `json:"config,omitempty"`
}

// WriteRunInfo writes the run manifest. Secrets in the config are
// blanked before serialization.
func (a *Artifacts) WriteRunInfo(info RunInfo) error {
	info.RunID = a.runID
	if info.Config != nil {
		redacted := *info.Config
		redacted.Server.APIKey = ""
		redacted.History.Password = ""
		info.Config = &redacted
	}

	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal run info: %w", err)
	}

	path := filepath.Join(a.dir, runInfoFileName)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
