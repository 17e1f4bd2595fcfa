// Package history keeps the bounded result log and derives statistics from it.
package history

import (
	"fmt"
	"slices"

	"github.com/MJE43/lotto-desk/internal/draw"
	"github.com/MJE43/lotto-desk/internal/matrix"
)

// Origin records how an entry was produced.
type Origin string

const (
	OriginPrediction Origin = "prediction"
	OriginSimulation Origin = "simulation"
)

// Entry is one committed result. Timestamp is Unix milliseconds.
type Entry struct {
	ID            string      `json:"id"`
	Numbers       []int       `json:"numbers"`
	SpecialNumber *int        `json:"specialNumber,omitempty"`
	Analysis      string      `json:"analysis"`
	Timestamp     int64       `json:"timestamp"`
	MatrixType    matrix.Type `json:"type"`
	Origin        Origin      `json:"origin,omitempty"`
}

// Validate checks the entry against its matrix. Entries recorded under the
// degenerate Custom matrix only need distinct positive numbers.
func (e Entry) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("history: entry has no id")
	}
	cfg, err := matrix.Lookup(e.MatrixType)
	if err != nil {
		return fmt.Errorf("history: entry %s: %w", e.ID, err)
	}
	if cfg.Validate() == nil {
		if err := draw.CheckNumbers(cfg, e.Numbers, e.SpecialNumber); err != nil {
			return fmt.Errorf("history: entry %s: %w", e.ID, err)
		}
		return nil
	}
	if len(e.Numbers) == 0 {
		return fmt.Errorf("history: entry %s has no numbers", e.ID)
	}
	seen := make(map[int]struct{}, len(e.Numbers))
	for _, n := range e.Numbers {
		if _, dup := seen[n]; dup || n < 1 {
			return fmt.Errorf("history: entry %s has invalid number %d", e.ID, n)
		}
		seen[n] = struct{}{}
	}
	return nil
}

// Clone returns a deep copy.
func (e Entry) Clone() Entry {
	out := e
	out.Numbers = slices.Clone(e.Numbers)
	if e.SpecialNumber != nil {
		v := *e.SpecialNumber
		out.SpecialNumber = &v
	}
	return out
}

// Sum adds up the main numbers.
func (e Entry) Sum() int {
	total := 0
	for _, n := range e.Numbers {
		total += n
	}
	return total
}

func cloneAll(entries []Entry) []Entry {
	out := make([]Entry, len(entries))
	for i, e := range entries {
		out[i] = e.Clone()
	}
	return out
}
