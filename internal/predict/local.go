package predict

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/MJE43/lotto-desk/internal/draw"
	"github.com/MJE43/lotto-desk/internal/history"
	"github.com/MJE43/lotto-desk/internal/matrix"
)

const defaultHotBoost = 2

// Local predicts without leaving the process. Each main number starts with
// weight 1 and gains HotBoost for every appearance in same-matrix history;
// numbers are then drawn by weight without replacement. The special number
// is uniform.
type Local struct {
	Source   draw.Source
	HotBoost int
}

// NewLocal returns a Local predictor using src, or a fresh PCG source when
// src is nil.
func NewLocal(src draw.Source) *Local {
	if src == nil {
		src = draw.NewMathSource()
	}
	return &Local{Source: src, HotBoost: defaultHotBoost}
}

func (l *Local) Predict(ctx context.Context, req Request) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	cfg, err := matrix.Lookup(req.Matrix)
	if err != nil {
		return Result{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Result{}, err
	}
	src := l.Source
	if src == nil {
		src = draw.NewMathSource()
	}
	boost := l.HotBoost
	if boost <= 0 {
		boost = defaultHotBoost
	}

	past := make([]history.Entry, 0, len(req.History))
	counts := make(map[int]int)
	for _, e := range req.History {
		if e.MatrixType != cfg.Type {
			continue
		}
		past = append(past, e)
		for _, n := range e.Numbers {
			counts[n]++
		}
	}

	weights := make([]int, cfg.MainRange)
	total := 0
	for i := range weights {
		weights[i] = 1 + boost*counts[i+1]
		total += weights[i]
	}

	numbers := make([]int, 0, cfg.MainCount)
	for len(numbers) < cfg.MainCount {
		pick := src.IntN(total)
		for i, w := range weights {
			if pick < w {
				numbers = append(numbers, i+1)
				total -= w
				weights[i] = 0
				break
			}
			pick -= w
		}
	}
	slices.Sort(numbers)

	res := Result{Numbers: numbers}
	if cfg.HasSpecial() {
		s := src.IntN(cfg.SpecialRange) + 1
		res.SpecialNumber = &s
	}

	hot := make(map[int]struct{})
	for _, nc := range history.FrequencyRanking(past) {
		hot[nc.Number] = struct{}{}
	}
	var hotPicks []int
	unseen := 0
	for _, n := range numbers {
		if _, ok := hot[n]; ok {
			hotPicks = append(hotPicks, n)
		}
		if counts[n] == 0 {
			unseen++
		}
	}
	res.Stats = &Stats{
		HotScore:      percent(len(hotPicks), len(numbers)),
		RarityPercent: percent(unseen, len(numbers)),
	}
	res.Analysis = analysis(cfg, len(past), numbers, hotPicks, req.Context)
	return res, nil
}

func analysis(cfg matrix.Config, pastCount int, numbers, hotPicks []int, userContext string) string {
	var b strings.Builder
	if pastCount == 0 {
		fmt.Fprintf(&b, "No past %s results yet, so every number was weighted equally.", cfg.Type)
	} else {
		fmt.Fprintf(&b, "Frequency-weighted pick over %d past %s results: %d of %d numbers are hot",
			pastCount, cfg.Type, len(hotPicks), len(numbers))
		if len(hotPicks) > 0 {
			fmt.Fprintf(&b, " (%s)", joinInts(hotPicks))
		}
		b.WriteString(".")
	}
	p := history.ParityOf(history.Entry{Numbers: numbers})
	fmt.Fprintf(&b, " Sum %d with %d odd / %d even.", draw.Draw{Numbers: numbers}.Sum(), p.Odd, p.Even)
	if c := strings.TrimSpace(userContext); c != "" {
		fmt.Fprintf(&b, " Context noted: %q.", c)
	}
	return b.String()
}

func joinInts(ns []int) string {
	parts := make([]string, len(ns))
	for i, n := range ns {
		parts[i] = fmt.Sprint(n)
	}
	return strings.Join(parts, ", ")
}

// percent returns part/whole as a percentage with one decimal place.
func percent(part, whole int) float64 {
	if whole == 0 {
		return 0
	}
	return decimal.NewFromInt(int64(part) * 100).
		Div(decimal.NewFromInt(int64(whole))).
		Round(1).
		InexactFloat64()
}
