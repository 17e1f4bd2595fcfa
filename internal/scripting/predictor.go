// Package scripting runs user-written JavaScript prediction strategies in a
// goja sandbox.
//
// A script defines predict(input) and returns
// {numbers: [...], specialNumber: n, analysis: "..."}. The globals matrix,
// history, randint(lo, hi) and log(...) are available; require, fetch, eval
// and Function are not.
package scripting

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"strings"
	"time"

	"github.com/dop251/goja"

	"github.com/MJE43/lotto-desk/internal/draw"
	"github.com/MJE43/lotto-desk/internal/matrix"
	"github.com/MJE43/lotto-desk/internal/predict"
)

// ErrTimeout is returned when a script runs past its time limit. It matches
// predict.ErrTimeout under errors.Is.
var ErrTimeout = fmt.Errorf("scripting: %w", predict.ErrTimeout)

const (
	DefaultTimeout = time.Second
	maxLogs        = 500
)

// Options configures a Predictor.
type Options struct {
	Name    string
	Timeout time.Duration
	Source  draw.Source
	Logger  *slog.Logger
}

// Predictor evaluates a compiled script in a fresh runtime for every call,
// so no state leaks between predictions.
type Predictor struct {
	name    string
	program *goja.Program
	timeout time.Duration
	src     draw.Source
	logger  *slog.Logger
	logs    *logBuffer
}

// New compiles source. Syntax errors are reported here rather than on the
// first prediction.
func New(source string, opts Options) (*Predictor, error) {
	if opts.Name == "" {
		opts.Name = "script"
	}
	program, err := goja.Compile(opts.Name, source, true)
	if err != nil {
		return nil, fmt.Errorf("scripting: compile %s: %w", opts.Name, err)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Source == nil {
		opts.Source = draw.NewMathSource()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Predictor{
		name:    opts.Name,
		program: program,
		timeout: opts.Timeout,
		src:     opts.Source,
		logger:  opts.Logger.With("component", "scripting", "script", opts.Name),
		logs:    &logBuffer{max: maxLogs},
	}, nil
}

// Load reads and compiles the script at path.
func Load(path string, opts Options) (*Predictor, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("scripting: read %s: %w", path, err)
	}
	if opts.Name == "" {
		opts.Name = path
	}
	return New(string(raw), opts)
}

// Logs returns the recent messages scripts wrote with log().
func (p *Predictor) Logs() []LogEntry { return p.logs.snapshot() }

type scriptOutput struct {
	Numbers       []float64      `json:"numbers"`
	SpecialNumber *float64       `json:"specialNumber"`
	Analysis      string         `json:"analysis"`
	Stats         *predict.Stats `json:"stats"`
}

func (p *Predictor) Predict(ctx context.Context, req predict.Request) (predict.Result, error) {
	cfg, err := matrix.Lookup(req.Matrix)
	if err != nil {
		return predict.Result{}, err
	}
	if err := cfg.Validate(); err != nil {
		return predict.Result{}, err
	}

	m := map[string]any{
		"type":         string(cfg.Type),
		"mainCount":    cfg.MainCount,
		"mainRange":    cfg.MainRange,
		"specialRange": cfg.SpecialRange,
		"specialLabel": cfg.SpecialLabel,
	}
	hist := make([]any, 0, len(req.History))
	for _, e := range req.History {
		var special any
		if e.SpecialNumber != nil {
			special = *e.SpecialNumber
		}
		hist = append(hist, map[string]any{
			"numbers":       intsToAny(e.Numbers),
			"specialNumber": special,
			"type":          string(e.MatrixType),
			"timestamp":     e.Timestamp,
		})
	}
	input := map[string]any{"matrix": m, "history": hist, "context": req.Context}

	v := newVM(p.src, p.logs)
	v.set("matrix", m)
	v.set("history", hist)

	var out goja.Value
	start := time.Now()
	err = v.runWithTimeout(ctx.Done(), p.timeout, func() error {
		if err := v.execute(p.program); err != nil {
			return err
		}
		res, err := v.callPredict(input)
		out = res
		return err
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ErrTimeout) {
			err = ctxErr
		}
		p.logger.Warn("script prediction failed", "matrix", cfg.Type, "error", err)
		return predict.Result{}, err
	}
	p.logger.Debug("script prediction", "matrix", cfg.Type, "elapsed", time.Since(start))

	return decodeOutput(out)
}

func decodeOutput(v goja.Value) (predict.Result, error) {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return predict.Result{}, fmt.Errorf("%w: predict() returned nothing", predict.ErrInvalidResult)
	}
	raw, err := json.Marshal(v.Export())
	if err != nil {
		return predict.Result{}, fmt.Errorf("%w: %v", predict.ErrInvalidResult, err)
	}
	var so scriptOutput
	if err := json.Unmarshal(raw, &so); err != nil {
		return predict.Result{}, fmt.Errorf("%w: %v", predict.ErrInvalidResult, err)
	}

	res := predict.Result{Analysis: strings.TrimSpace(so.Analysis), Stats: so.Stats}
	for _, f := range so.Numbers {
		n, ok := wholeNumber(f)
		if !ok {
			return predict.Result{}, fmt.Errorf("%w: %v is not a whole number", predict.ErrInvalidResult, f)
		}
		res.Numbers = append(res.Numbers, n)
	}
	if so.SpecialNumber != nil {
		n, ok := wholeNumber(*so.SpecialNumber)
		if !ok {
			return predict.Result{}, fmt.Errorf("%w: special %v is not a whole number", predict.ErrInvalidResult, *so.SpecialNumber)
		}
		res.SpecialNumber = &n
	}
	if res.Analysis == "" {
		res.Analysis = "Generated by a user script."
	}
	return res, nil
}

func intsToAny(ns []int) []any {
	out := make([]any, len(ns))
	for i, n := range ns {
		out[i] = n
	}
	return out
}

func wholeNumber(f float64) (int, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	return int(f), true
}

var _ predict.Predictor = (*Predictor)(nil)
