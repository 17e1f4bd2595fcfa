// Package app assembles the services described by a config.Config. Both the
// desktop shell and the CLI build their runtime here.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/MJE43/lotto-desk/internal/api"
	"github.com/MJE43/lotto-desk/internal/archive"
	"github.com/MJE43/lotto-desk/internal/config"
	"github.com/MJE43/lotto-desk/internal/draw"
	"github.com/MJE43/lotto-desk/internal/fair"
	"github.com/MJE43/lotto-desk/internal/history"
	"github.com/MJE43/lotto-desk/internal/kvstore"
	"github.com/MJE43/lotto-desk/internal/matrix"
	"github.com/MJE43/lotto-desk/internal/predict"
	"github.com/MJE43/lotto-desk/internal/reveal"
	"github.com/MJE43/lotto-desk/internal/scripting"
	"github.com/MJE43/lotto-desk/internal/session"
)

// Runtime owns every long-lived service. Dealer and Archive are nil when
// disabled.
type Runtime struct {
	Config    config.Config
	Store     kvstore.KVStore
	Archive   *archive.Store
	Session   *session.Session
	Scheduler *reveal.Scheduler
	Sampler   draw.Sampler
	Dealer    *fair.Dealer
	Script    *scripting.Predictor
	API       *api.Server

	logger  *slog.Logger
	closers []func() error
}

// Build opens storage and wires the services. Emitter may be nil and set
// later through Runtime.Scheduler.SetEmitter.
func Build(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Runtime, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.ResolvePaths()
	rt := &Runtime{Config: cfg, logger: logger}
	if err := rt.build(ctx); err != nil {
		_ = rt.Close()
		return nil, err
	}
	return rt, nil
}

func (rt *Runtime) build(ctx context.Context) error {
	cfg := rt.Config
	if cfg.Storage.Backend != kvstore.BackendMemory {
		if err := os.MkdirAll(cfg.App.DataDir, 0o755); err != nil {
			return fmt.Errorf("app: create data dir: %w", err)
		}
	}

	path := cfg.Storage.SQLitePath
	if cfg.Storage.Backend == kvstore.BackendBadger {
		path = cfg.Storage.BadgerDir
	}
	kv, err := kvstore.Open(cfg.Storage.Backend, path)
	if err != nil {
		return fmt.Errorf("app: open %s store: %w", cfg.Storage.Backend, err)
	}
	rt.Store = kv
	rt.closers = append(rt.closers, kv.Close)

	if cfg.Storage.Archive {
		if err := rt.openArchive(ctx, kv); err != nil {
			return err
		}
	}

	rt.Sampler = draw.SourceSampler{Source: draw.NewMathSource()}
	if cfg.Simulation.Source == "fair" {
		vault := fair.NewVault(cfg.Fair.Service, cfg.Fair.FallbackPath)
		dealer, err := fair.NewDealer(vault, cfg.Fair.ClientSeed)
		if err != nil {
			return fmt.Errorf("app: fair dealer: %w", err)
		}
		rt.Dealer = dealer
		rt.Sampler = dealer
	}

	p, name, err := rt.predictor()
	if err != nil {
		return err
	}

	opts := session.Options{
		Store:         history.NewKVStore(kv),
		Predictor:     p,
		PredictorName: name,
		Logger:        rt.logger,
	}
	if rt.Archive != nil {
		opts.Archive = rt.Archive
	}
	sess, err := session.Open(ctx, opts)
	if err != nil {
		return err
	}
	rt.Session = sess

	schedOpts := reveal.Options{
		Interval: cfg.Simulation.Interval,
		Cooldown: cfg.Simulation.Cooldown,
		Sampler:  rt.Sampler,
		Logger:   rt.logger,
	}
	if cfg.Simulation.Record {
		schedOpts.OnComplete = rt.recordSimulation
	}
	rt.Scheduler = reveal.NewScheduler(schedOpts)
	rt.closers = append(rt.closers, func() error { rt.Scheduler.Close(); return nil })

	deps := api.Deps{
		Session:     rt.Session,
		Scheduler:   rt.Scheduler,
		Sampler:     rt.Sampler,
		Dealer:      rt.Dealer,
		Logger:      rt.logger,
		CORSOrigins: cfg.HTTP.CORSOrigins,
	}
	if rt.Archive != nil {
		deps.Archive = rt.Archive
	}
	if rt.Script != nil {
		deps.Script = rt.Script
	}
	rt.API = api.NewServer(deps)
	return nil
}

// openArchive shares the history database when it is SQLite and opens a
// sibling archive.db otherwise.
func (rt *Runtime) openArchive(ctx context.Context, kv kvstore.KVStore) error {
	var sqlStore *kvstore.SQLiteStore
	if s, ok := kv.(*kvstore.SQLiteStore); ok {
		sqlStore = s
	} else {
		path := ":memory:"
		if rt.Config.Storage.Backend != kvstore.BackendMemory {
			path = filepath.Join(rt.Config.App.DataDir, "archive.db")
		}
		s, err := kvstore.NewSQLiteStore(path)
		if err != nil {
			return fmt.Errorf("app: open archive db: %w", err)
		}
		rt.closers = append(rt.closers, s.Close)
		sqlStore = s
	}
	a, err := archive.New(ctx, sqlStore.DB())
	if err != nil {
		return fmt.Errorf("app: prepare archive: %w", err)
	}
	rt.Archive = a
	return nil
}

func (rt *Runtime) predictor() (predict.Predictor, string, error) {
	cfg := rt.Config.Predictor
	var (
		p    predict.Predictor
		name string
	)
	switch cfg.Kind {
	case "script":
		s, err := scripting.Load(cfg.ScriptPath, scripting.Options{Logger: rt.logger})
		if err != nil {
			return nil, "", err
		}
		rt.Script = s
		p, name = s, "script"
	default:
		p, name = predict.NewLocal(nil), "local"
	}
	return predict.Instrumented(predict.WithTimeout(p, cfg.Timeout), name), name, nil
}

// recordSimulation commits a finished sequence. The receipt comes from the
// sample call that produced d, so draws made while the sequence was running
// cannot change it.
func (rt *Runtime) recordSimulation(t matrix.Type, d draw.Draw, proof any) {
	analysis := ""
	if rc, ok := proof.(fair.Receipt); ok {
		analysis = fmt.Sprintf("Fair %s draw, %s.", t, rc)
	}
	if _, err := rt.Session.CommitDraw(context.Background(), t, d, analysis); err != nil {
		rt.logger.Warn("recording simulation failed", "matrix", t, "error", err)
	}
}

// StartHTTP starts the API when enabled in config.
func (rt *Runtime) StartHTTP() error {
	if !rt.Config.HTTP.Enabled {
		return nil
	}
	return rt.API.Start(rt.Config.HTTP.Addr)
}

// Close stops the API and releases storage in reverse order of opening.
func (rt *Runtime) Close() error {
	var errs []error
	if rt.API != nil {
		errs = append(errs, rt.API.Shutdown(context.Background()))
	}
	for i := len(rt.closers) - 1; i >= 0; i-- {
		errs = append(errs, rt.closers[i]())
	}
	rt.closers = nil
	return errors.Join(errs...)
}
