// Package bindings exposes the runtime to the Wails frontend.
package bindings

import (
	"context"
	"strings"
	"sync"

	wruntime "github.com/wailsapp/wails/v2/pkg/runtime"

	"github.com/MJE43/lotto-desk/internal/app"
	"github.com/MJE43/lotto-desk/internal/draw"
	"github.com/MJE43/lotto-desk/internal/fair"
	"github.com/MJE43/lotto-desk/internal/history"
	"github.com/MJE43/lotto-desk/internal/matrix"
	"github.com/MJE43/lotto-desk/internal/reveal"
	"github.com/MJE43/lotto-desk/internal/scripting"
)

// Frontend event names.
const (
	EventReveal         = "simulation:reveal"
	EventHistoryChanged = "history:changed"
)

// App is bound to Wails. Every exported method is callable from the frontend.
type App struct {
	rt *app.Runtime

	mu   sync.RWMutex
	ctx  context.Context
	emit func(ctx context.Context, name string, data ...any)
}

func New(rt *app.Runtime) *App {
	a := &App{rt: rt, emit: wruntime.EventsEmit}
	rt.Scheduler.SetEmitter(a)
	rt.Session.SetOnChange(a.historyChanged)
	return a
}

// Startup stores the Wails context and starts the optional HTTP API.
func (a *App) Startup(ctx context.Context) error {
	a.mu.Lock()
	a.ctx = ctx
	a.mu.Unlock()
	return a.rt.StartHTTP()
}

// Shutdown detaches from the window. Storage is closed by the owner of the
// runtime.
func (a *App) Shutdown() {
	a.mu.Lock()
	a.ctx = nil
	a.mu.Unlock()
}

// EmitReveal forwards scheduler transitions to the frontend.
func (a *App) EmitReveal(s reveal.Snapshot) {
	a.send(EventReveal, s)
}

func (a *App) historyChanged() {
	a.send(EventHistoryChanged, a.rt.Session.Stats())
}

func (a *App) send(name string, data any) {
	a.mu.RLock()
	ctx, emit := a.ctx, a.emit
	a.mu.RUnlock()
	if ctx == nil {
		return
	}
	emit(ctx, name, data)
}

// MatrixInfo is a catalog entry as shown in the matrix picker.
type MatrixInfo struct {
	matrix.Config
	TotalSteps int  `json:"totalSteps"`
	Playable   bool `json:"playable"`
}

func (a *App) GetMatrices() []MatrixInfo {
	all := matrix.List()
	out := make([]MatrixInfo, 0, len(all))
	for _, c := range all {
		out = append(out, MatrixInfo{Config: c, TotalSteps: c.TotalSteps(), Playable: c.Validate() == nil})
	}
	return out
}

// Prediction is the result of one Predict call with the refreshed report.
type Prediction struct {
	Entry history.Entry  `json:"entry"`
	Stats history.Report `json:"stats"`
}

func (a *App) Predict(matrixType, userContext string) (Prediction, error) {
	t, err := matrix.Parse(matrixType)
	if err != nil {
		return Prediction{}, err
	}
	e, err := a.rt.Session.Predict(a.context(), t, strings.TrimSpace(userContext))
	if err != nil {
		return Prediction{}, err
	}
	return Prediction{Entry: e, Stats: a.rt.Session.Stats()}, nil
}

// SimulationStart reports whether a new sequence began.
type SimulationStart struct {
	Started  bool            `json:"started"`
	Snapshot reveal.Snapshot `json:"snapshot"`
}

func (a *App) StartSimulation(matrixType string) (SimulationStart, error) {
	t, err := matrix.Parse(matrixType)
	if err != nil {
		return SimulationStart{}, err
	}
	snap, started, err := a.rt.Scheduler.Start(t)
	if err != nil {
		return SimulationStart{}, err
	}
	return SimulationStart{Started: started, Snapshot: snap}, nil
}

func (a *App) ResetSimulation() (reveal.Snapshot, error) {
	return a.rt.Scheduler.Reset()
}

func (a *App) GetSimulation() reveal.Snapshot {
	return a.rt.Scheduler.Snapshot()
}

// GetHistory lists entries for matrixType, or all of them for "" or "All".
func (a *App) GetHistory(matrixType string) ([]history.Entry, error) {
	f := history.Filter{}
	if matrixType != "" && matrixType != history.All {
		t, err := matrix.Parse(matrixType)
		if err != nil {
			return nil, err
		}
		f.MatrixType = string(t)
	}
	return a.rt.Session.History(f), nil
}

// GetCurrent returns the entry under analysis, or nil.
func (a *App) GetCurrent() *history.Entry {
	e, ok := a.rt.Session.Current()
	if !ok {
		return nil
	}
	return &e
}

func (a *App) RestoreEntry(id string) (Prediction, error) {
	e, err := a.rt.Session.Restore(id)
	if err != nil {
		return Prediction{}, err
	}
	return Prediction{Entry: e, Stats: a.rt.Session.Stats()}, nil
}

func (a *App) DeleteEntry(id string) error {
	return a.rt.Session.Delete(a.context(), id)
}

func (a *App) ClearHistory() error {
	return a.rt.Session.Clear(a.context())
}

func (a *App) GetStats() history.Report {
	return a.rt.Session.Stats()
}

func (a *App) ExportHistory() (string, error) {
	b, err := a.rt.Session.Export()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (a *App) ImportHistory(doc string) (int, error) {
	return a.rt.Session.Import(a.context(), []byte(doc))
}

// FairInfo is the public side of the fair-draw dealer.
type FairInfo struct {
	Enabled        bool          `json:"enabled"`
	ServerSeedHash string        `json:"serverSeedHash,omitempty"`
	ClientSeed     string        `json:"clientSeed,omitempty"`
	Nonce          uint64        `json:"nonce"`
	LastReceipt    *fair.Receipt `json:"lastReceipt,omitempty"`
}

func (a *App) GetFairInfo() FairInfo {
	d := a.rt.Dealer
	if d == nil {
		return FairInfo{}
	}
	info := FairInfo{
		Enabled:        true,
		ServerSeedHash: d.Commitment(),
		ClientSeed:     d.ClientSeed(),
		Nonce:          d.Nonce(),
	}
	if rc, ok := d.LastReceipt(); ok {
		info.LastReceipt = &rc
	}
	return info
}

func (a *App) VerifyFairDraw(serverSeed, clientSeed string, nonce uint64, matrixType string) (draw.Draw, error) {
	t, err := matrix.Parse(matrixType)
	if err != nil {
		return draw.Draw{}, err
	}
	cfg, err := matrix.Lookup(t)
	if err != nil {
		return draw.Draw{}, err
	}
	return fair.Verify(serverSeed, clientSeed, nonce, cfg)
}

// GetScriptLogs returns what the script predictor wrote with log(). It is
// empty when the local predictor is in use.
func (a *App) GetScriptLogs() []scripting.LogEntry {
	if a.rt.Script == nil {
		return []scripting.LogEntry{}
	}
	return a.rt.Script.Logs()
}

// APIInfo describes the local HTTP API.
type APIInfo struct {
	Enabled bool   `json:"enabled"`
	URL     string `json:"url,omitempty"`
}

func (a *App) GetAPIInfo() APIInfo {
	cfg := a.rt.Config.HTTP
	if !cfg.Enabled {
		return APIInfo{}
	}
	return APIInfo{Enabled: true, URL: "http://" + cfg.Addr}
}

func (a *App) context() context.Context {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.ctx == nil {
		return context.Background()
	}
	return a.ctx
}
