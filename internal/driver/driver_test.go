package driver

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"ckptbench/app/handler"
	"ckptbench/app/router"
	"ckptbench/internal/comm"
	"ckptbench/internal/coordinator"
	"ckptbench/internal/model"
	"ckptbench/internal/output"
	"ckptbench/pkg/config"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// stubMechanism counts checkpoint calls and defers to an optional
// hook; the hook receives the 1-based call number.
type stubMechanism struct {
	n            int32
	onCheckpoint func(call, epoch, step int) error
}

func (m *stubMechanism) Checkpoint(ctx context.Context, epoch, step int) error {
	call := int(atomic.AddInt32(&m.n, 1))
	if m.onCheckpoint != nil {
		return m.onCheckpoint(call, epoch, step)
	}
	return nil
}

func (m *stubMechanism) Finalize() error { return nil }

func (m *stubMechanism) calls() int { return int(atomic.LoadInt32(&m.n)) }

// newBenchServer serves the real control API over a single-process
// group and the given mechanism.
func newBenchServer(t *testing.T, mech *stubMechanism, apiKey string) *httptest.Server {
	t.Helper()

	profile, err := model.LookupProfile("megatron")
	require.NoError(t, err)

	coord := coordinator.New(comm.NewSingleGroup(), mech, profile)
	require.NoError(t, coord.Setup(context.Background()))

	engine := gin.New()
	router.NewRouter(handler.NewCheckpointHandler(coord), apiKey).Setup(engine)

	srv := httptest.NewServer(engine)
	t.Cleanup(srv.Close)
	return srv
}

// driverConfig points a default config at the test server with
// everything optional switched off.
func driverConfig(t *testing.T, serverURL string, steps, passes int) *config.Config {
	t.Helper()

	u, err := url.Parse(serverURL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)

	cfg := config.Default()
	cfg.Server.Host = u.Hostname()
	cfg.Server.Port = port
	cfg.Run.NumSteps = steps
	cfg.Run.NumPasses = passes
	cfg.Run.InterCheckpointSleep = 0
	cfg.Run.ResultsDir = t.TempDir()
	cfg.Iostat.Enabled = false
	cfg.History.Enabled = false
	return cfg
}

func readResultTable(t *testing.T, dir string) [][]string {
	t.Helper()

	f, err := os.Open(filepath.Join(dir, "checkpoint_bench_results.csv"))
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestRunProducesOrderedResults(t *testing.T) {
	mech := &stubMechanism{}
	srv := newBenchServer(t, mech, "")
	d := New(driverConfig(t, srv.URL, 3, 2))

	require.NoError(t, d.Run(context.Background()))

	results := d.Results()
	require.Len(t, results, 6)
	assert.Equal(t, 6, mech.calls())

	wantPass := []int{1, 1, 1, 2, 2, 2}
	wantStep := []int{1, 2, 3, 1, 2, 3}
	for i, r := range results {
		assert.Equal(t, wantPass[i], r.PassNum)
		assert.Equal(t, wantStep[i], r.Step)
		assert.Equal(t, 1, r.CommSize)
		assert.Equal(t, 3, r.NumSteps)
		assert.Equal(t, 2, r.NumPasses)
		assert.GreaterOrEqual(t, r.CheckpointTime, 0.0)
	}
}

func TestRunWritesResultTable(t *testing.T) {
	srv := newBenchServer(t, &stubMechanism{}, "")
	d := New(driverConfig(t, srv.URL, 2, 1))

	require.NoError(t, d.Run(context.Background()))

	rows := readResultTable(t, d.Artifacts().Dir())
	require.Len(t, rows, 3)
	assert.Equal(t, model.ResultColumns, rows[0])

	results := d.Results()
	for i, r := range results {
		assert.Equal(t, r.Record(), rows[1+i])
	}
}

func TestRunWritesManifest(t *testing.T) {
	srv := newBenchServer(t, &stubMechanism{}, "")
	cfg := driverConfig(t, srv.URL, 1, 1)
	cfg.Server.APIKey = ""
	cfg.History.Password = "hunter2"
	d := New(cfg)

	require.NoError(t, d.Run(context.Background()))

	data, err := os.ReadFile(filepath.Join(d.Artifacts().Dir(), "run.json"))
	require.NoError(t, err)

	var info output.RunInfo
	require.NoError(t, json.Unmarshal(data, &info))
	assert.Equal(t, d.Artifacts().RunID(), info.RunID)
	assert.False(t, info.Interrupted)
	assert.Equal(t, 1, info.Records)
	require.NotNil(t, info.Summary)
	assert.Equal(t, 1, info.Summary.Count)
	require.NotNil(t, info.Config)
	assert.Empty(t, info.Config.History.Password)
}

func TestInterruptKeepsCompletedRows(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mech := &stubMechanism{}
	mech.onCheckpoint = func(call, epoch, step int) error {
		if call == 3 {
			cancel()
			time.Sleep(50 * time.Millisecond)
		}
		return nil
	}
	srv := newBenchServer(t, mech, "")
	d := New(driverConfig(t, srv.URL, 3, 2))

	err := d.Run(ctx)
	require.Error(t, err)

	require.Len(t, d.Results(), 2)

	rows := readResultTable(t, d.Artifacts().Dir())
	assert.Len(t, rows, 3) // header + the two completed checkpoints

	data, readErr := os.ReadFile(filepath.Join(d.Artifacts().Dir(), "run.json"))
	require.NoError(t, readErr)
	var info output.RunInfo
	require.NoError(t, json.Unmarshal(data, &info))
	assert.True(t, info.Interrupted)
	assert.Equal(t, 2, info.Records)
}

func TestEmptyRunWritesNoTable(t *testing.T) {
	mech := &stubMechanism{
		onCheckpoint: func(call, epoch, step int) error {
			return errors.New("disk full")
		},
	}
	srv := newBenchServer(t, mech, "")
	d := New(driverConfig(t, srv.URL, 2, 1))

	err := d.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")

	assert.Empty(t, d.Results())
	_, statErr := os.Stat(filepath.Join(d.Artifacts().Dir(), "checkpoint_bench_results.csv"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestPacingBetweenCheckpoints(t *testing.T) {
	srv := newBenchServer(t, &stubMechanism{}, "")

	cfg := driverConfig(t, srv.URL, 2, 1)
	cfg.Run.InterCheckpointSleep = 0.08
	start := time.Now()
	require.NoError(t, New(cfg).Run(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)

	// A single checkpoint is the run's last: no sleep after it.
	cfg = driverConfig(t, srv.URL, 1, 1)
	cfg.Run.InterCheckpointSleep = 5
	start = time.Now()
	require.NoError(t, New(cfg).Run(context.Background()))
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestAuthenticatedRun(t *testing.T) {
	srv := newBenchServer(t, &stubMechanism{}, "sesame")

	cfg := driverConfig(t, srv.URL, 1, 1)
	err := New(cfg).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unauthorized")

	cfg = driverConfig(t, srv.URL, 1, 1)
	cfg.Server.APIKey = "sesame"
	assert.NoError(t, New(cfg).Run(context.Background()))
}

func TestTeardownRunsOnce(t *testing.T) {
	srv := newBenchServer(t, &stubMechanism{}, "")
	d := New(driverConfig(t, srv.URL, 1, 1))

	require.NoError(t, d.Run(context.Background()))

	// A second teardown returns the first outcome without rewriting
	// anything.
	before := d.Artifacts().Dir()
	require.NoError(t, d.Teardown(context.Background()))
	assert.Equal(t, before, d.Artifacts().Dir())
}
