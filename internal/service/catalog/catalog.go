// Package catalog holds the tiered profanity word lists and the process-wide
// sensitivity level that selects which tiers are active.
package catalog

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// Sensitivity bounds. Level 1 is the strictest (severe words only), level 3
// the broadest.
const (
	MinSensitivity     = 1
	MaxSensitivity     = 3
	DefaultSensitivity = 2
)

// ErrInvalidSensitivity is returned for levels outside 1..3.
var ErrInvalidSensitivity = errors.New("sensitivity must be 1, 2, or 3")

// Tiers holds the phrase list of each severity tier, most severe first.
type Tiers [MaxSensitivity][]string

// DefaultTiers returns the built-in Korean tier lists.
func DefaultTiers() Tiers {
	return Tiers{
		{"씨발", "시발", "병신", "좆", "썅", "개새끼", "씨팔", "시팔"},
		{"새끼", "지랄", "엿", "개놈", "개년", "아가리", "ㅗ", "ㅅㅂ", "짜증", "멍청", "멍청이", "바보"},
		{"미친", "빡치", "꺼져", "닥쳐", "ㅄ", "ㅆㅂ", "개", "죽어", "등신", "또라이"},
	}
}

// Validate checks that the most severe tier is populated.
func (t Tiers) Validate() error {
	if len(t[0]) == 0 {
		return errors.New("tier 1 must contain at least one phrase")
	}
	for i, tier := range t {
		for j, p := range tier {
			if p == "" {
				return fmt.Errorf("tier %d phrase %d is empty", i+1, j)
			}
		}
	}
	return nil
}

// PatternsFor returns the cumulative phrase list for a level: tier 1, then
// tier 2 when level >= 2, then tier 3 when level >= 3.
func (t Tiers) PatternsFor(level int) ([]string, error) {
	if level < MinSensitivity || level > MaxSensitivity {
		return nil, ErrInvalidSensitivity
	}
	var n int
	for i := 0; i < level; i++ {
		n += len(t[i])
	}
	out := make([]string, 0, n)
	for i := 0; i < level; i++ {
		out = append(out, t[i]...)
	}
	return out, nil
}

// PatternsFor returns the cumulative phrase list of the built-in tiers.
func PatternsFor(level int) ([]string, error) {
	return DefaultTiers().PatternsFor(level)
}

// snapshot is never mutated once published.
type snapshot struct {
	level    int
	patterns []string
}

// Catalog is the process-wide pattern source. Readers get an immutable
// snapshot, so a concurrent SetSensitivity is observed entirely or not at all.
type Catalog struct {
	tiers  Tiers
	active atomic.Pointer[snapshot]

	// mu serializes writers so observers see levels in swap order.
	mu       sync.Mutex
	onChange func(level int)
}

// New creates a catalog over tiers with the given initial level.
func New(tiers Tiers, level int) (*Catalog, error) {
	if err := tiers.Validate(); err != nil {
		return nil, err
	}
	c := &Catalog{tiers: tiers}
	if err := c.SetSensitivity(level); err != nil {
		return nil, err
	}
	return c, nil
}

// NewDefault creates a catalog over the built-in tiers at the default level.
func NewDefault() *Catalog {
	c, err := New(DefaultTiers(), DefaultSensitivity)
	if err != nil {
		panic(err)
	}
	return c
}

// SetSensitivity swaps the active pattern set. Out-of-range levels return
// ErrInvalidSensitivity and leave the current set in place.
func (c *Catalog) SetSensitivity(level int) error {
	patterns, err := c.tiers.PatternsFor(level)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active.Store(&snapshot{level: level, patterns: patterns})
	if c.onChange != nil {
		c.onChange(level)
	}
	return nil
}

// OnChange registers fn to be called with every level that becomes active,
// starting with the current one. Calls are serialized with SetSensitivity.
func (c *Catalog) OnChange(fn func(level int)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onChange = fn
	if fn != nil {
		fn(c.active.Load().level)
	}
}

// Sensitivity returns the active level.
func (c *Catalog) Sensitivity() int {
	return c.active.Load().level
}

// Active returns the active pattern set. The slice is shared and must not be
// modified.
func (c *Catalog) Active() []string {
	return c.active.Load().patterns
}

// Snapshot returns the active level and its pattern set from a single load.
func (c *Catalog) Snapshot() (int, []string) {
	s := c.active.Load()
	return s.level, s.patterns
}
