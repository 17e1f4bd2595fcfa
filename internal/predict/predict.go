// Package predict defines the prediction capability the session calls and
// ships an offline implementation of it.
package predict

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/MJE43/lotto-desk/internal/draw"
	"github.com/MJE43/lotto-desk/internal/history"
	"github.com/MJE43/lotto-desk/internal/matrix"
	"github.com/MJE43/lotto-desk/internal/metrics"
)

var (
	// ErrInvalidResult is returned when a predictor produces numbers that do
	// not fit the requested matrix.
	ErrInvalidResult = errors.New("predict: invalid result")
	// ErrTimeout is returned by WithTimeout when the deadline passes first.
	ErrTimeout = errors.New("predict: timed out")
)

// Request asks for one prediction. History is the log most recent first,
// for predictors that weigh past results.
type Request struct {
	Matrix  matrix.Type     `json:"matrix"`
	Context string          `json:"context,omitempty"`
	History []history.Entry `json:"-"`
}

// Stats are the optional figures a predictor reports with its numbers.
type Stats struct {
	HotScore      float64 `json:"hotScore"`
	RarityPercent float64 `json:"rarityPercent"`
}

// Result is a predictor's answer.
type Result struct {
	Numbers       []int  `json:"numbers"`
	SpecialNumber *int   `json:"specialNumber,omitempty"`
	Analysis      string `json:"analysis"`
	Stats         *Stats `json:"stats,omitempty"`
}

// Predictor produces numbers for a matrix.
type Predictor interface {
	Predict(ctx context.Context, req Request) (Result, error)
}

// Func adapts a plain function to Predictor.
type Func func(ctx context.Context, req Request) (Result, error)

func (f Func) Predict(ctx context.Context, req Request) (Result, error) { return f(ctx, req) }

// Error reports a failed prediction.
type Error struct {
	Predictor string
	Matrix    matrix.Type
	Err       error
}

func (e *Error) Error() string {
	return fmt.Sprintf("predict: %s for %s: %v", e.Predictor, e.Matrix, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsInvalidResult reports whether err came from output that failed validation.
func IsInvalidResult(err error) bool { return errors.Is(err, ErrInvalidResult) }

// Validate checks r against cfg. Numbers need not be sorted.
func Validate(cfg matrix.Config, r Result) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := draw.CheckNumbers(cfg, r.Numbers, r.SpecialNumber); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidResult, err)
	}
	if strings.TrimSpace(r.Analysis) == "" {
		return fmt.Errorf("%w: empty analysis", ErrInvalidResult)
	}
	return nil
}

// Sorted returns a copy of r with ascending numbers.
func (r Result) Sorted() Result {
	out := r
	out.Numbers = slices.Clone(r.Numbers)
	slices.Sort(out.Numbers)
	if r.SpecialNumber != nil {
		v := *r.SpecialNumber
		out.SpecialNumber = &v
	}
	if r.Stats != nil {
		s := *r.Stats
		out.Stats = &s
	}
	return out
}

// WithTimeout bounds every call to p by d. A non-positive d returns p.
func WithTimeout(p Predictor, d time.Duration) Predictor {
	if d <= 0 {
		return p
	}
	return Func(func(ctx context.Context, req Request) (Result, error) {
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()

		type outcome struct {
			res Result
			err error
		}
		done := make(chan outcome, 1)
		go func() {
			res, err := p.Predict(ctx, req)
			done <- outcome{res, err}
		}()

		select {
		case o := <-done:
			return o.res, o.err
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return Result{}, fmt.Errorf("%w after %s", ErrTimeout, d)
			}
			return Result{}, ctx.Err()
		}
	})
}

// Instrumented records the outcome and latency of every call under name.
func Instrumented(p Predictor, name string) Predictor {
	return Func(func(ctx context.Context, req Request) (Result, error) {
		start := time.Now()
		res, err := p.Predict(ctx, req)
		metrics.RecordPrediction(string(req.Matrix), name, time.Since(start), err)
		return res, err
	})
}
