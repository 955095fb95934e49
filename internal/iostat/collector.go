// Package iostat runs the system iostat tool as a background sampler
// and turns its textual reports into a device-utilization table.
package iostat

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"ckptbench/pkg/logger"
)

// Report is the parsed output of a sampling run: the tool's own
// device-header tokens and one row per device per sampling interval.
type Report struct {
	Header []string
	Rows   [][]string
}

// Collector samples extended device statistics for the duration of a
// benchmark run. Start launches iostat in the background; Stop
// interrupts it and parses everything it printed. The sampler is
// independent of the timing loop and never blocks it.
type Collector struct {
	binary   string
	interval int // seconds

	cmd    *exec.Cmd
	stdout bytes.Buffer
	stderr bytes.Buffer
}

// NewCollector returns a collector sampling every interval seconds.
func NewCollector(interval int) *Collector {
	return &Collector{
		binary:   "iostat",
		interval: interval,
	}
}

// Start launches the sampling process. A missing tool or a failed
// spawn is fatal here, before the timing loop begins.
func (c *Collector) Start(ctx context.Context) error {
	if c.cmd != nil {
		return fmt.Errorf("iostat collector already started")
	}

	path, err := exec.LookPath(c.binary)
	if err != nil {
		return fmt.Errorf("iostat not available: %w", err)
	}

	cmd := exec.CommandContext(ctx, path, "-dx", fmt.Sprintf("%d", c.interval))
	cmd.Stdout = &c.stdout
	cmd.Stderr = &c.stderr
	// On cancellation ask iostat to stop the way a terminal would, so
	// it can flush its last report; escalate only if it lingers.
	cmd.Cancel = func() error {
		return cmd.Process.Signal(os.Interrupt)
	}
	cmd.WaitDelay = 5 * time.Second

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start iostat: %w", err)
	}

	c.cmd = cmd
	logger.Infof("iostat sampling every %ds (pid %d)", c.interval, cmd.Process.Pid)
	return nil
}

// Stop interrupts the sampler and parses whatever it captured. If the
// process already died mid-run, the output captured up to that point
// is still parsed and returned.
func (c *Collector) Stop() (*Report, error) {
	if c.cmd == nil {
		return nil, fmt.Errorf("iostat collector was not started")
	}

	if err := c.cmd.Process.Signal(os.Interrupt); err != nil {
		logger.Warnf("interrupting iostat: %v", err)
	}
	if err := c.cmd.Wait(); err != nil {
		// Exiting on our interrupt is the normal path; anything else
		// is worth a note, but the captured output is still usable.
		if c.stderr.Len() > 0 {
			logger.Warnf("iostat exited: %v (%s)", err, strings.TrimSpace(c.stderr.String()))
		}
	}
	c.cmd = nil

	report := parseReport(c.stdout.String())
	logger.Infof("iostat captured %d device samples", len(report.Rows))
	return report, nil
}

// parseReport extracts the device table from iostat output. The first
// line whose first token is "Device" is the header; repeats of it at
// each interval are dropped, and everything before it (the sysstat
// banner) is ignored.
func parseReport(output string) *Report {
	report := &Report{}
	for _, line := range strings.Split(output, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if fields[0] == "Device" || strings.HasPrefix(fields[0], "Device:") {
			if report.Header == nil {
				report.Header = fields
			}
			continue
		}
		if report.Header == nil {
			continue
		}
		// The interrupt can cut the last line short; a row narrower
		// than the header is not a sample.
		if len(fields) != len(report.Header) {
			continue
		}
		report.Rows = append(report.Rows, fields)
	}
	return report
}
