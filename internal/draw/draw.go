// Package draw samples lottery draws for a matrix configuration.
package draw

import (
	"fmt"
	"slices"

	"github.com/MJE43/lotto-desk/internal/matrix"
)

// ErrInvalidConfig aliases the catalog error so callers can match either.
var ErrInvalidConfig = matrix.ErrInvalidConfig

// Draw is one sampled outcome. Numbers are distinct and ascending.
type Draw struct {
	Numbers []int `json:"numbers"`
	Special *int  `json:"special,omitempty"`
}

// Sample draws cfg.MainCount distinct numbers from [1, MainRange] by
// rejection sampling and, when the matrix has one, an independent special
// number from [1, SpecialRange].
func Sample(cfg matrix.Config, src Source) (Draw, error) {
	if err := cfg.Validate(); err != nil {
		return Draw{}, err
	}
	if src == nil {
		return Draw{}, fmt.Errorf("draw: nil source")
	}

	seen := make(map[int]struct{}, cfg.MainCount)
	numbers := make([]int, 0, cfg.MainCount)
	for len(numbers) < cfg.MainCount {
		n := src.IntN(cfg.MainRange) + 1
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		numbers = append(numbers, n)
	}
	slices.Sort(numbers)

	d := Draw{Numbers: numbers}
	if cfg.HasSpecial() {
		s := src.IntN(cfg.SpecialRange) + 1
		d.Special = &s
	}
	return d, nil
}

// Clone returns a deep copy of d.
func (d Draw) Clone() Draw {
	out := Draw{Numbers: slices.Clone(d.Numbers)}
	if d.Special != nil {
		s := *d.Special
		out.Special = &s
	}
	return out
}

// Elements returns the reveal order: main numbers ascending, special last.
func (d Draw) Elements() []int {
	out := make([]int, 0, len(d.Numbers)+1)
	out = append(out, d.Numbers...)
	if d.Special != nil {
		out = append(out, *d.Special)
	}
	return out
}

// Sum adds up the main numbers.
func (d Draw) Sum() int {
	total := 0
	for _, n := range d.Numbers {
		total += n
	}
	return total
}

// Validate checks that d has the shape cfg requires.
func (d Draw) Validate(cfg matrix.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	return CheckNumbers(cfg, d.Numbers, d.Special)
}

// CheckNumbers validates main and special numbers against cfg without
// requiring them to be sorted.
func CheckNumbers(cfg matrix.Config, numbers []int, special *int) error {
	if len(numbers) != cfg.MainCount {
		return fmt.Errorf("draw: %s needs %d numbers, got %d", cfg.Type, cfg.MainCount, len(numbers))
	}
	seen := make(map[int]struct{}, len(numbers))
	for _, n := range numbers {
		if n < 1 || n > cfg.MainRange {
			return fmt.Errorf("draw: number %d outside 1-%d", n, cfg.MainRange)
		}
		if _, dup := seen[n]; dup {
			return fmt.Errorf("draw: duplicate number %d", n)
		}
		seen[n] = struct{}{}
	}
	switch {
	case cfg.HasSpecial() && special == nil:
		return fmt.Errorf("draw: %s requires a special number", cfg.Type)
	case !cfg.HasSpecial() && special != nil:
		return fmt.Errorf("draw: %s has no special number", cfg.Type)
	case special != nil && (*special < 1 || *special > cfg.SpecialRange):
		return fmt.Errorf("draw: special number %d outside 1-%d", *special, cfg.SpecialRange)
	}
	return nil
}
