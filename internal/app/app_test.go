package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	"github.com/MJE43/lotto-desk/internal/config"
	"github.com/MJE43/lotto-desk/internal/fair"
	"github.com/MJE43/lotto-desk/internal/history"
	"github.com/MJE43/lotto-desk/internal/matrix"
	"github.com/MJE43/lotto-desk/internal/reveal"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.App.DataDir = t.TempDir()
	cfg.Storage.Backend = "memory"
	cfg.Storage.Archive = true
	cfg.Simulation.Interval = 5 * time.Millisecond
	cfg.Simulation.Cooldown = 5 * time.Millisecond
	return cfg
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestBuildMemoryRuntime(t *testing.T) {
	rt, err := Build(context.Background(), testConfig(t), quiet())
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })

	assert.NotNil(t, rt.Archive)
	assert.Nil(t, rt.Dealer)

	e, err := rt.Session.Predict(context.Background(), matrix.Powerball, "")
	require.NoError(t, err)
	assert.Len(t, e.Numbers, 5)
	assert.NotNil(t, e.SpecialNumber)
	assert.Equal(t, 1, rt.Session.Len())
}

func TestBuildRecordsSimulations(t *testing.T) {
	cfg := testConfig(t)
	cfg.Simulation.Record = true
	rt, err := Build(context.Background(), cfg, quiet())
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })

	_, started, err := rt.Scheduler.Start(matrix.Lotto649)
	require.NoError(t, err)
	require.True(t, started)

	require.Eventually(t, func() bool {
		return rt.Session.Len() == 1 && rt.Scheduler.Snapshot().State == reveal.StateIdle
	}, 2*time.Second, 5*time.Millisecond)

	entries := rt.Session.History(history.Filter{})
	assert.Equal(t, history.OriginSimulation, entries[0].Origin)
	_, hasCurrent := rt.Session.Current()
	assert.False(t, hasCurrent)
}

func TestRecordedFairSimulationCitesItsOwnNonce(t *testing.T) {
	keyring.MockInit()
	cfg := testConfig(t)
	cfg.Simulation.Record = true
	cfg.Simulation.Source = "fair"
	cfg.Simulation.Interval = 20 * time.Millisecond
	cfg.Fair.Service = "lotto-desk-app-test"
	rt, err := Build(context.Background(), cfg, quiet())
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })
	require.NotNil(t, rt.Dealer)
	start := rt.Dealer.Nonce()

	_, started, err := rt.Scheduler.Start(matrix.Lotto645)
	require.NoError(t, err)
	require.True(t, started)

	// a one-shot draw while the sequence is still revealing
	_, err = rt.Sampler.Sample(matrix.MustLookup(matrix.Powerball))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return rt.Session.Len() == 1 }, 2*time.Second, 5*time.Millisecond)
	entry := rt.Session.History(history.Filter{})[0]
	assert.Contains(t, entry.Analysis, fmt.Sprintf("nonce %d,", start+1))

	rot, err := rt.Dealer.Rotate()
	require.NoError(t, err)
	verified, err := fair.Verify(rot.PreviousSeed, cfg.Fair.ClientSeed, start+1, matrix.MustLookup(matrix.Lotto645))
	require.NoError(t, err)
	assert.Equal(t, verified.Numbers, entry.Numbers)
}

func TestBuildScriptPredictor(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pick.js")
	script := `function predict(input) {
  return {numbers: [1, 2, 3, 4, 5, 6], analysis: "fixed picks for " + input.matrix.type};
}`
	require.NoError(t, os.WriteFile(path, []byte(script), 0o644))

	cfg := testConfig(t)
	cfg.Predictor.Kind = "script"
	cfg.Predictor.ScriptPath = path
	rt, err := Build(context.Background(), cfg, quiet())
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })
	require.NotNil(t, rt.Script)

	e, err := rt.Session.Predict(context.Background(), matrix.Lotto645, "")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6}, e.Numbers)
	assert.Equal(t, "fixed picks for Lotto 6/45", e.Analysis)
}

func TestBuildSQLitePersists(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.Backend = "sqlite"

	rt, err := Build(context.Background(), cfg, quiet())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(cfg.App.DataDir, "history.db"), rt.Config.Storage.SQLitePath)
	_, err = rt.Session.Predict(context.Background(), matrix.Lotto649, "")
	require.NoError(t, err)
	require.NoError(t, rt.Close())

	rt, err = Build(context.Background(), cfg, quiet())
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })
	assert.Equal(t, 1, rt.Session.Len())
}

func TestBuildMissingScript(t *testing.T) {
	cfg := testConfig(t)
	cfg.Predictor.Kind = "script"
	cfg.Predictor.ScriptPath = filepath.Join(t.TempDir(), "missing.js")
	_, err := Build(context.Background(), cfg, quiet())
	assert.Error(t, err)
}
