package history

import (
	"fmt"
	"slices"

	"github.com/shopspring/decimal"
)

const (
	// TopNumbers is the length of the frequency ranking.
	TopNumbers = 10
	// RecentWindow is how many recent entries the overlap check looks at.
	RecentWindow = 10
)

// NumberCount is one row of the frequency ranking.
type NumberCount struct {
	Number int `json:"num"`
	Count  int `json:"count"`
}

// Parity summarises even and odd main numbers across the log.
type Parity struct {
	Even    int    `json:"even"`
	Odd     int    `json:"odd"`
	EvenPct int    `json:"evenPct"`
	OddPct  int    `json:"oddPct"`
	Ratio   string `json:"ratio"`
	Percent string `json:"percent"`
}

// SumStats compares the current entry's sum with the same-matrix baseline.
// AverageSum is 0 and HasBaseline false when no entry shares the matrix.
type SumStats struct {
	Sum         int  `json:"sum"`
	AverageSum  int  `json:"avgSum"`
	HasBaseline bool `json:"hasBaseline"`
}

// Overlap counts current numbers seen in the most recent entries.
type Overlap struct {
	Matches int `json:"appearanceCount"`
	Percent int `json:"appearanceRate"`
}

// CurrentParity is the odd/even split of a single entry.
type CurrentParity struct {
	Odd   int    `json:"odd"`
	Even  int    `json:"even"`
	Label string `json:"label"`
}

// Report bundles every statistic. The current-entry fields are nil when there
// is no current entry.
type Report struct {
	Frequency     []NumberCount  `json:"frequency"`
	Parity        Parity         `json:"parity"`
	Sums          *SumStats      `json:"sums,omitempty"`
	Overlap       *Overlap       `json:"overlap,omitempty"`
	CurrentParity *CurrentParity `json:"currentParity,omitempty"`
	Entries       int            `json:"entries"`
}

// FrequencyRanking counts main numbers across entries and returns the ten
// most frequent, count descending, ties by ascending number.
func FrequencyRanking(entries []Entry) []NumberCount {
	counts := make(map[int]int)
	for _, e := range entries {
		for _, n := range e.Numbers {
			counts[n]++
		}
	}

	out := make([]NumberCount, 0, len(counts))
	for n, c := range counts {
		out = append(out, NumberCount{Number: n, Count: c})
	}
	slices.SortFunc(out, func(a, b NumberCount) int {
		if a.Count != b.Count {
			return b.Count - a.Count
		}
		return a.Number - b.Number
	})
	if len(out) > TopNumbers {
		out = out[:TopNumbers]
	}
	return out
}

// ParityRatio returns the even:odd split of all main numbers. Empty input
// yields the 0:0 sentinel.
func ParityRatio(entries []Entry) Parity {
	var even, total int
	for _, e := range entries {
		for _, n := range e.Numbers {
			total++
			if n%2 == 0 {
				even++
			}
		}
	}
	if total == 0 {
		return Parity{Ratio: "0:0", Percent: "0/0"}
	}

	odd := total - even
	evenPct := roundRatio(int64(even)*100, int64(total))
	oddPct := 100 - evenPct
	return Parity{
		Even:    even,
		Odd:     odd,
		EvenPct: evenPct,
		OddPct:  oddPct,
		Ratio:   fmt.Sprintf("%d:%d", even, odd),
		Percent: fmt.Sprintf("%d%% / %d%%", evenPct, oddPct),
	}
}

// Sums computes the current entry's sum and the rounded average sum of the
// entries recorded under the same matrix.
func Sums(current Entry, entries []Entry) SumStats {
	out := SumStats{Sum: current.Sum()}
	var total, count int64
	for _, e := range entries {
		if e.MatrixType != current.MatrixType {
			continue
		}
		total += int64(e.Sum())
		count++
	}
	if count > 0 {
		out.AverageSum = roundRatio(total, count)
		out.HasBaseline = true
	}
	return out
}

// RecencyOverlap counts how many of current's numbers appear in the newest
// RecentWindow entries, as a rounded share of current's main numbers.
func RecencyOverlap(current Entry, entries []Entry) Overlap {
	recent := make(map[int]struct{})
	for _, e := range entries[:min(len(entries), RecentWindow)] {
		for _, n := range e.Numbers {
			recent[n] = struct{}{}
		}
	}

	var out Overlap
	for _, n := range current.Numbers {
		if _, ok := recent[n]; ok {
			out.Matches++
		}
	}
	if len(current.Numbers) > 0 {
		out.Percent = roundRatio(int64(out.Matches)*100, int64(len(current.Numbers)))
	}
	return out
}

// ParityOf returns the odd:even split of a single entry.
func ParityOf(e Entry) CurrentParity {
	var odd, even int
	for _, n := range e.Numbers {
		if n%2 == 0 {
			even++
		} else {
			odd++
		}
	}
	return CurrentParity{Odd: odd, Even: even, Label: fmt.Sprintf("%d:%d", odd, even)}
}

// Analyze computes the full report. current may be nil.
func Analyze(current *Entry, entries []Entry) Report {
	r := Report{
		Frequency: FrequencyRanking(entries),
		Parity:    ParityRatio(entries),
		Entries:   len(entries),
	}
	if current != nil {
		sums := Sums(*current, entries)
		overlap := RecencyOverlap(*current, entries)
		parity := ParityOf(*current)
		r.Sums, r.Overlap, r.CurrentParity = &sums, &overlap, &parity
	}
	return r
}

// roundRatio divides and rounds half up. Inputs are non-negative.
func roundRatio(num, den int64) int {
	return int(decimal.NewFromInt(num).Div(decimal.NewFromInt(den)).Round(0).IntPart())
}
