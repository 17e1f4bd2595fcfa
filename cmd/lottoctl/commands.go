package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/MJE43/lotto-desk/internal/app"
	"github.com/MJE43/lotto-desk/internal/config"
	"github.com/MJE43/lotto-desk/internal/draw"
	"github.com/MJE43/lotto-desk/internal/history"
	"github.com/MJE43/lotto-desk/internal/matrix"
	"github.com/MJE43/lotto-desk/internal/reveal"
)

func newMatricesCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "matrices",
		Short: "List the supported lottery matrices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			all := matrix.List()
			return g.print(cmd.OutOrStdout(), all, func(w io.Writer) {
				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "TYPE\tSLUG\tMAIN\tSPECIAL\tPLAYABLE")
				for _, c := range all {
					special := "-"
					if c.HasSpecial() {
						special = fmt.Sprintf("%s 1-%d", c.SpecialLabel, c.SpecialRange)
					}
					fmt.Fprintf(tw, "%s\t%s\t%d of 1-%d\t%s\t%v\n", c.Type, c.Slug, c.MainCount, c.MainRange, special, c.Validate() == nil)
				}
				tw.Flush()
			})
		},
	}
}

func newSampleCmd(g *globalFlags) *cobra.Command {
	var (
		count int
		seed  uint64
	)
	cmd := &cobra.Command{
		Use:   "sample <matrix>",
		Short: "Draw numbers without touching history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := playableConfig(args[0])
			if err != nil {
				return err
			}
			var src draw.Source = draw.NewMathSource()
			if cmd.Flags().Changed("seed") {
				src = draw.NewSeededSource(seed, seed^0x9e3779b97f4a7c15)
			}
			draws := make([]draw.Draw, 0, count)
			for i := 0; i < count; i++ {
				d, err := draw.Sample(cfg, src)
				if err != nil {
					return err
				}
				draws = append(draws, d)
			}
			return g.print(cmd.OutOrStdout(), draws, func(w io.Writer) {
				for _, d := range draws {
					fmt.Fprintf(w, "%s  sum %d\n", formatNumbers(d.Numbers, d.Special, cfg.SpecialLabel), d.Sum())
				}
			})
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 1, "number of draws")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "seed for a reproducible sequence")
	return cmd
}

// revealPrinter prints scheduler transitions and signals when the sequence
// returns to idle.
type revealPrinter struct {
	w     io.Writer
	label string
	once  sync.Once
	done  chan struct{}
}

func (p *revealPrinter) EmitReveal(s reveal.Snapshot) {
	switch s.State {
	case reveal.StateRunning:
		if s.Step == 0 {
			fmt.Fprintf(p.w, "revealing %d numbers for %s\n", s.TotalSteps, s.Matrix)
			return
		}
		fmt.Fprintf(p.w, "  [%d/%d] %s\n", s.Step, s.TotalSteps, formatNumbers(s.Numbers, s.Special, p.label))
	case reveal.StateSettling:
		fmt.Fprintf(p.w, "  [%d/%d] %s\n", s.Step, s.TotalSteps, formatNumbers(s.Numbers, s.Special, p.label))
		fmt.Fprintln(p.w, "complete")
	case reveal.StateIdle:
		p.once.Do(func() { close(p.done) })
	}
}

func newSimulateCmd(g *globalFlags) *cobra.Command {
	var (
		record   bool
		interval time.Duration
		cooldown time.Duration
	)
	cmd := &cobra.Command{
		Use:   "simulate <matrix>",
		Short: "Reveal a local draw one number at a time",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mcfg, err := playableConfig(args[0])
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			mutate := func(c *config.Config) {
				if cmd.Flags().Changed("record") {
					c.Simulation.Record = record
				}
				if interval > 0 {
					c.Simulation.Interval = interval
				}
				if cooldown > 0 {
					c.Simulation.Cooldown = cooldown
				}
			}
			return g.withRuntime(ctx, mutate, func(rt *app.Runtime) error {
				p := &revealPrinter{w: cmd.OutOrStdout(), label: mcfg.SpecialLabel, done: make(chan struct{})}
				rt.Scheduler.SetEmitter(p)
				if _, _, err := rt.Scheduler.Start(mcfg.Type); err != nil {
					return err
				}
				select {
				case <-p.done:
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			})
		},
	}
	cmd.Flags().BoolVar(&record, "record", false, "commit the finished draw to history")
	cmd.Flags().DurationVar(&interval, "interval", 0, "delay between reveals")
	cmd.Flags().DurationVar(&cooldown, "cooldown", 0, "settle time after the last reveal")
	return cmd
}

func newPredictCmd(g *globalFlags) *cobra.Command {
	var userContext string
	cmd := &cobra.Command{
		Use:   "predict <matrix>",
		Short: "Generate numbers with the configured predictor and record them",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mcfg, err := playableConfig(args[0])
			if err != nil {
				return err
			}
			return g.withRuntime(cmd.Context(), nil, func(rt *app.Runtime) error {
				e, err := rt.Session.Predict(cmd.Context(), mcfg.Type, userContext)
				if err != nil {
					return err
				}
				report := rt.Session.Stats()
				out := map[string]any{"entry": e, "stats": report}
				return g.print(cmd.OutOrStdout(), out, func(w io.Writer) {
					fmt.Fprintf(w, "%s  %s\n", e.ID, formatNumbers(e.Numbers, e.SpecialNumber, mcfg.SpecialLabel))
					fmt.Fprintln(w, e.Analysis)
					printCurrentStats(w, report)
				})
			})
		},
	}
	cmd.Flags().StringVarP(&userContext, "context", "c", "", "free text passed to the predictor")
	return cmd
}

func newHistoryCmd(g *globalFlags) *cobra.Command {
	var matrixType string
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded results, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := parseFilter(matrixType)
			if err != nil {
				return err
			}
			return g.withRuntime(cmd.Context(), nil, func(rt *app.Runtime) error {
				entries := rt.Session.History(f)
				return g.print(cmd.OutOrStdout(), entries, func(w io.Writer) {
					printEntries(w, entries)
				})
			})
		},
	}
	cmd.Flags().StringVarP(&matrixType, "type", "t", history.All, "matrix filter")
	return cmd
}

func newStatsCmd(g *globalFlags) *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show history statistics, optionally against one entry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.withRuntime(cmd.Context(), nil, func(rt *app.Runtime) error {
				if id != "" {
					if _, err := rt.Session.Restore(id); err != nil {
						return err
					}
				}
				report := rt.Session.Stats()
				return g.print(cmd.OutOrStdout(), report, func(w io.Writer) {
					fmt.Fprintf(w, "entries: %d\n", report.Entries)
					fmt.Fprintf(w, "parity (even:odd): %s  %s\n", report.Parity.Ratio, report.Parity.Percent)
					fmt.Fprintln(w, "top numbers:")
					for _, nc := range report.Frequency {
						fmt.Fprintf(w, "  %2d  x%d\n", nc.Number, nc.Count)
					}
					printCurrentStats(w, report)
				})
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "history entry to analyse")
	return cmd
}

func newClearCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every history entry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.withRuntime(cmd.Context(), nil, func(rt *app.Runtime) error {
				n := rt.Session.Len()
				if err := rt.Session.Clear(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "cleared %d entries\n", n)
				return nil
			})
		},
	}
}

func newDeleteCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Remove one history entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withRuntime(cmd.Context(), nil, func(rt *app.Runtime) error {
				return rt.Session.Delete(cmd.Context(), args[0])
			})
		},
	}
}

func newExportCmd(g *globalFlags) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write history as a JSON document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.withRuntime(cmd.Context(), nil, func(rt *app.Runtime) error {
				doc, err := rt.Session.Export()
				if err != nil {
					return err
				}
				if out == "" || out == "-" {
					_, err = fmt.Fprintln(cmd.OutOrStdout(), string(doc))
					return err
				}
				return os.WriteFile(out, doc, 0o644)
			})
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default stdout)")
	return cmd
}

func newImportCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Replace history with a previously exported document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			return g.withRuntime(cmd.Context(), nil, func(rt *app.Runtime) error {
				n, err := rt.Session.Import(cmd.Context(), raw)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "imported %d entries\n", n)
				return nil
			})
		},
	}
}

func newArchiveCmd(g *globalFlags) *cobra.Command {
	var (
		matrixType string
		limit      int
		offset     int
	)
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "List entries that left history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := parseFilter(matrixType)
			if err != nil {
				return err
			}
			return g.withRuntime(cmd.Context(), nil, func(rt *app.Runtime) error {
				if rt.Archive == nil {
					return fmt.Errorf("archive is disabled in config")
				}
				records, err := rt.Archive.List(cmd.Context(), f, limit, offset)
				if err != nil {
					return err
				}
				total, err := rt.Archive.Count(cmd.Context(), f)
				if err != nil {
					return err
				}
				out := map[string]any{"records": records, "total": total}
				return g.print(cmd.OutOrStdout(), out, func(w io.Writer) {
					tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
					fmt.Fprintln(tw, "ID\tTYPE\tNUMBERS\tREASON\tARCHIVED")
					for _, r := range records {
						fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.Entry.ID, r.Entry.MatrixType,
							formatNumbers(r.Entry.Numbers, r.Entry.SpecialNumber, ""), r.Reason, r.ArchivedAt.Local().Format(time.DateTime))
					}
					tw.Flush()
					fmt.Fprintf(w, "%d of %d archived entries\n", len(records), total)
				})
			})
		},
	}
	cmd.Flags().StringVarP(&matrixType, "type", "t", history.All, "matrix filter")
	cmd.Flags().IntVar(&limit, "limit", 50, "max records")
	cmd.Flags().IntVar(&offset, "offset", 0, "records to skip")
	return cmd
}

func newServeCmd(g *globalFlags) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API without the desktop window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			mutate := func(c *config.Config) {
				c.HTTP.Enabled = true
				if addr != "" {
					c.HTTP.Addr = addr
				}
			}
			return g.withRuntime(ctx, mutate, func(rt *app.Runtime) error {
				if err := rt.StartHTTP(); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "serving on http://%s\n", rt.Config.HTTP.Addr)
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return rt.API.Shutdown(shutdownCtx)
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address")
	return cmd
}

func playableConfig(s string) (matrix.Config, error) {
	t, err := matrix.Parse(s)
	if err != nil {
		return matrix.Config{}, err
	}
	cfg := matrix.MustLookup(t)
	if err := cfg.Validate(); err != nil {
		return matrix.Config{}, err
	}
	return cfg, nil
}

func parseFilter(s string) (history.Filter, error) {
	if s == "" || s == history.All {
		return history.Filter{}, nil
	}
	t, err := matrix.Parse(s)
	if err != nil {
		return history.Filter{}, err
	}
	return history.Filter{MatrixType: string(t)}, nil
}

func printEntries(w io.Writer, entries []history.Entry) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\tNUMBERS\tORIGIN\tTIME")
	for _, e := range entries {
		label := ""
		if cfg, err := matrix.Lookup(e.MatrixType); err == nil {
			label = cfg.SpecialLabel
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", e.ID, e.MatrixType,
			formatNumbers(e.Numbers, e.SpecialNumber, label), e.Origin,
			time.UnixMilli(e.Timestamp).Local().Format(time.DateTime))
	}
	tw.Flush()
}

func printCurrentStats(w io.Writer, r history.Report) {
	if r.Sums != nil {
		if r.Sums.HasBaseline {
			fmt.Fprintf(w, "sum %d (average %d)\n", r.Sums.Sum, r.Sums.AverageSum)
		} else {
			fmt.Fprintf(w, "sum %d (no baseline yet)\n", r.Sums.Sum)
		}
	}
	if r.Overlap != nil {
		fmt.Fprintf(w, "seen in recent draws: %d (%d%%)\n", r.Overlap.Matches, r.Overlap.Percent)
	}
	if r.CurrentParity != nil {
		fmt.Fprintf(w, "odd:even %s\n", r.CurrentParity.Label)
	}
}
