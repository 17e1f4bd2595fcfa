package bindings

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/MJE43/lotto-desk/internal/app"
	"github.com/MJE43/lotto-desk/internal/config"
	"github.com/MJE43/lotto-desk/internal/reveal"
)

type recorder struct {
	mu     sync.Mutex
	events map[string]int
	last   map[string]any
}

func (r *recorder) emit(_ context.Context, name string, data ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events[name]++
	if len(data) > 0 {
		r.last[name] = data[0]
	}
}

func (r *recorder) count(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[name]
}

func newTestApp(t *testing.T, mutate ...func(*config.Config)) (*App, *recorder) {
	t.Helper()
	cfg := config.Default()
	cfg.App.DataDir = t.TempDir()
	cfg.Storage.Backend = "memory"
	cfg.Storage.Archive = false
	cfg.Simulation.Interval = 5 * time.Millisecond
	cfg.Simulation.Cooldown = 5 * time.Millisecond
	for _, m := range mutate {
		m(&cfg)
	}

	rt, err := app.Build(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("build runtime: %v", err)
	}
	t.Cleanup(func() { _ = rt.Close() })

	rec := &recorder{events: map[string]int{}, last: map[string]any{}}
	a := New(rt)
	a.emit = rec.emit
	if err := a.Startup(context.Background()); err != nil {
		t.Fatalf("startup: %v", err)
	}
	return a, rec
}

func TestPredictEmitsHistoryChanged(t *testing.T) {
	a, rec := newTestApp(t)

	p, err := a.Predict("lotto 6/49", " lucky ")
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if len(p.Entry.Numbers) != 6 {
		t.Errorf("numbers = %v", p.Entry.Numbers)
	}
	if p.Stats.Entries != 1 {
		t.Errorf("stats entries = %d", p.Stats.Entries)
	}
	if got := rec.count(EventHistoryChanged); got != 1 {
		t.Errorf("history:changed emitted %d times", got)
	}
	if cur := a.GetCurrent(); cur == nil || cur.ID != p.Entry.ID {
		t.Errorf("current = %+v", cur)
	}
}

func TestPredictUnknownMatrix(t *testing.T) {
	a, rec := newTestApp(t)
	if _, err := a.Predict("keno", ""); err == nil {
		t.Fatal("expected error")
	}
	if rec.count(EventHistoryChanged) != 0 {
		t.Error("history:changed emitted on failure")
	}
}

func TestSimulationEmitsReveals(t *testing.T) {
	a, rec := newTestApp(t)

	start, err := a.StartSimulation("powerball")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if !start.Started {
		t.Fatal("sequence did not start")
	}

	again, err := a.StartSimulation("powerball")
	if err != nil {
		t.Fatalf("second start: %v", err)
	}
	if again.Started {
		t.Error("second start began a new sequence")
	}

	deadline := time.Now().Add(2 * time.Second)
	for a.GetSimulation().State != reveal.StateIdle || !a.GetSimulation().Complete {
		if time.Now().After(deadline) {
			t.Fatalf("never settled: %+v", a.GetSimulation())
		}
		time.Sleep(5 * time.Millisecond)
	}

	// start + 6 reveals + cooldown
	if got := rec.count(EventReveal); got < 8 {
		t.Errorf("simulation:reveal emitted %d times, want at least 8", got)
	}

	snap, err := a.ResetSimulation()
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if snap.Step != 0 || len(snap.Numbers) != 0 {
		t.Errorf("after reset = %+v", snap)
	}
}

func TestHistoryRoundTrip(t *testing.T) {
	a, _ := newTestApp(t)
	for i := 0; i < 2; i++ {
		if _, err := a.Predict("mega millions", ""); err != nil {
			t.Fatalf("predict: %v", err)
		}
	}
	doc, err := a.ExportHistory()
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if err := a.ClearHistory(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if list, _ := a.GetHistory(""); len(list) != 0 {
		t.Fatalf("history after clear = %d", len(list))
	}
	n, err := a.ImportHistory(doc)
	if err != nil || n != 2 {
		t.Fatalf("import = %d, %v", n, err)
	}
	list, err := a.GetHistory("megamillions")
	if err != nil || len(list) != 2 {
		t.Fatalf("filtered history = %d, %v", len(list), err)
	}
	if err := a.DeleteEntry(list[0].ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := a.RestoreEntry(list[0].ID); err == nil {
		t.Error("restore of deleted entry succeeded")
	}
	if _, err := a.RestoreEntry(list[1].ID); err != nil {
		t.Errorf("restore: %v", err)
	}
}

func TestFairInfoDisabled(t *testing.T) {
	a, _ := newTestApp(t)
	if info := a.GetFairInfo(); info.Enabled {
		t.Errorf("fair info = %+v", info)
	}
	if info := a.GetAPIInfo(); info.Enabled {
		t.Errorf("api info = %+v", info)
	}
	if _, err := a.VerifyFairDraw("s", "c", 1, "lotto645"); err != nil {
		t.Errorf("verify: %v", err)
	}
}

func TestScriptLogs(t *testing.T) {
	a, _ := newTestApp(t)
	if logs := a.GetScriptLogs(); len(logs) != 0 {
		t.Errorf("local predictor logs = %+v", logs)
	}

	path := filepath.Join(t.TempDir(), "pick.js")
	script := `function predict(input) {
  log("picking for", input.matrix.type);
  return {numbers: [1, 2, 3, 4, 5, 6]};
}`
	if err := os.WriteFile(path, []byte(script), 0o600); err != nil {
		t.Fatal(err)
	}
	a, _ = newTestApp(t, func(c *config.Config) {
		c.Predictor.Kind = "script"
		c.Predictor.ScriptPath = path
	})
	if _, err := a.Predict("lotto645", ""); err != nil {
		t.Fatalf("predict: %v", err)
	}
	logs := a.GetScriptLogs()
	if len(logs) != 1 || logs[0].Message != "picking for Lotto 6/45" {
		t.Errorf("logs = %+v", logs)
	}
}

func TestMatricesCatalog(t *testing.T) {
	a, _ := newTestApp(t)
	playable := 0
	for _, m := range a.GetMatrices() {
		if m.Playable {
			playable++
		}
	}
	if playable != 4 {
		t.Errorf("playable = %d, want 4", playable)
	}
}
