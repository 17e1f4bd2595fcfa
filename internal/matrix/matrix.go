// Package matrix holds the static catalog of supported lottery configurations.
package matrix

import (
	"errors"
	"fmt"
	"strings"
)

// Type identifies a lottery matrix. The values double as display names.
type Type string

const (
	Lotto645     Type = "Lotto 6/45"
	Lotto649     Type = "Lotto 6/49"
	Powerball    Type = "Powerball"
	MegaMillions Type = "Mega Millions"
	Custom       Type = "Custom"
)

var (
	// ErrUnknownMatrix is returned for identifiers that are not in the catalog.
	ErrUnknownMatrix = errors.New("matrix: unknown matrix type")
	// ErrInvalidConfig is returned for configurations that cannot be sampled,
	// including the degenerate Custom entry.
	ErrInvalidConfig = errors.New("matrix: invalid configuration")
)

// Config describes one lottery matrix. SpecialRange is zero when the matrix
// has no special ball.
type Config struct {
	Type         Type   `json:"type"`
	Slug         string `json:"slug"`
	MainCount    int    `json:"mainCount"`
	MainRange    int    `json:"mainRange"`
	SpecialRange int    `json:"specialRange,omitempty"`
	SpecialLabel string `json:"specialLabel,omitempty"`
}

var catalog = []Config{
	{Type: Lotto645, Slug: "lotto645", MainCount: 6, MainRange: 45},
	{Type: Lotto649, Slug: "lotto649", MainCount: 6, MainRange: 49},
	{Type: Powerball, Slug: "powerball", MainCount: 5, MainRange: 69, SpecialRange: 26, SpecialLabel: "Powerball"},
	{Type: MegaMillions, Slug: "megamillions", MainCount: 5, MainRange: 70, SpecialRange: 25, SpecialLabel: "Mega Ball"},
	{Type: Custom, Slug: "custom"},
}

// Lookup returns the configuration for t.
func Lookup(t Type) (Config, error) {
	for _, c := range catalog {
		if c.Type == t {
			return c, nil
		}
	}
	return Config{}, fmt.Errorf("%w: %q", ErrUnknownMatrix, string(t))
}

// MustLookup is like Lookup but panics on an unknown identifier.
func MustLookup(t Type) Config {
	c, err := Lookup(t)
	if err != nil {
		panic(err)
	}
	return c
}

// Parse resolves a display name or slug, case-insensitively.
func Parse(s string) (Type, error) {
	key := normalize(s)
	for _, c := range catalog {
		if key == normalize(string(c.Type)) || key == c.Slug {
			return c.Type, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMatrix, s)
}

func normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	r := strings.NewReplacer(" ", "", "/", "", "-", "", "_", "")
	return r.Replace(s)
}

// List returns every catalog entry in display order, Custom included.
func List() []Config {
	out := make([]Config, len(catalog))
	copy(out, catalog)
	return out
}

// Playable returns the entries that can be sampled.
func Playable() []Config {
	out := make([]Config, 0, len(catalog))
	for _, c := range catalog {
		if c.Validate() == nil {
			out = append(out, c)
		}
	}
	return out
}

// Validate reports whether c can be sampled without exhausting its range.
func (c Config) Validate() error {
	if c.MainCount <= 0 || c.MainRange <= 0 {
		return fmt.Errorf("%w: %s has no main numbers", ErrInvalidConfig, c.name())
	}
	if c.MainCount >= c.MainRange {
		return fmt.Errorf("%w: %s main count %d must be below range %d", ErrInvalidConfig, c.name(), c.MainCount, c.MainRange)
	}
	if c.SpecialRange < 0 {
		return fmt.Errorf("%w: %s special range %d is negative", ErrInvalidConfig, c.name(), c.SpecialRange)
	}
	return nil
}

// HasSpecial reports whether the matrix draws a special ball.
func (c Config) HasSpecial() bool { return c.SpecialRange > 0 }

// TotalSteps is the number of reveals needed to show a full draw.
func (c Config) TotalSteps() int {
	if c.HasSpecial() {
		return c.MainCount + 1
	}
	return c.MainCount
}

func (c Config) name() string {
	if c.Type == "" {
		return "matrix"
	}
	return string(c.Type)
}
