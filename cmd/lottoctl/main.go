// Command lottoctl drives the lotto desk services from a terminal.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/MJE43/lotto-desk/internal/app"
	"github.com/MJE43/lotto-desk/internal/config"
	"github.com/MJE43/lotto-desk/internal/logger"
)

type globalFlags struct {
	configPath string
	backend    string
	logLevel   string
	jsonOut    bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "lottoctl",
		Short:         "Lottery picks, draw simulation and history statistics",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&g.configPath, "config", os.Getenv("LOTTO_CONFIG"), "YAML config file")
	root.PersistentFlags().StringVar(&g.backend, "backend", "", "storage backend override (sqlite|badger|memory)")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "log level override")
	root.PersistentFlags().BoolVar(&g.jsonOut, "json", false, "print JSON")

	root.AddCommand(
		newMatricesCmd(g),
		newSampleCmd(g),
		newSimulateCmd(g),
		newPredictCmd(g),
		newHistoryCmd(g),
		newStatsCmd(g),
		newClearCmd(g),
		newDeleteCmd(g),
		newExportCmd(g),
		newImportCmd(g),
		newArchiveCmd(g),
		newServeCmd(g),
		newFairCmd(g),
	)
	return root
}

// load reads the config and applies flag overrides.
func (g *globalFlags) load() (config.Config, *slog.Logger, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return cfg, nil, err
	}
	if g.backend != "" {
		cfg.Storage.Backend = g.backend
	}
	if g.logLevel != "" {
		cfg.App.LogLevel = g.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return cfg, nil, err
	}
	log := logger.Init(logger.Options{Level: logger.ParseLevel(cfg.App.LogLevel)})
	return cfg, log, nil
}

// withRuntime builds the runtime, runs fn and closes the runtime. mutate may
// adjust the config first.
func (g *globalFlags) withRuntime(ctx context.Context, mutate func(*config.Config), fn func(*app.Runtime) error) error {
	cfg, log, err := g.load()
	if err != nil {
		return err
	}
	if mutate != nil {
		mutate(&cfg)
	}
	rt, err := app.Build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := rt.Close(); cerr != nil {
			log.Warn("close runtime", "error", cerr)
		}
	}()
	return fn(rt)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (g *globalFlags) print(w io.Writer, v any, text func(io.Writer)) error {
	if g.jsonOut {
		return printJSON(w, v)
	}
	text(w)
	return nil
}

func formatNumbers(numbers []int, special *int, label string) string {
	s := fmt.Sprint(numbers)
	if special != nil {
		if label == "" {
			label = "special"
		}
		s += fmt.Sprintf(" + %s %d", label, *special)
	}
	return s
}
