package fileops

import (
	"fmt"
	"sort"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/bunnypak/buck2/internal/cellpath"
)

// IgnoreSet holds the ignore patterns of a single cell. Patterns use
// doublestar glob syntax and match against cell-relative paths.
type IgnoreSet struct {
	patterns []string
}

// NewIgnoreSet validates the given glob patterns.
func NewIgnoreSet(patterns []string) (*IgnoreSet, error) {
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid ignore pattern %q", p)
		}
	}
	copied := append([]string(nil), patterns...)
	sort.Strings(copied)
	return &IgnoreSet{patterns: copied}, nil
}

// Match returns the first pattern matching path, or "" if none match.
func (s *IgnoreSet) Match(path cellpath.CellRelPath) string {
	if s == nil {
		return ""
	}
	for _, p := range s.patterns {
		// Patterns are pre-validated, so a match error cannot occur.
		if ok, _ := doublestar.Match(p, string(path)); ok {
			return p
		}
	}
	return ""
}

// Equal reports whether two sets hold the same patterns.
func (s *IgnoreSet) Equal(o *IgnoreSet) bool {
	if s == nil || o == nil {
		return s == o
	}
	if len(s.patterns) != len(o.patterns) {
		return false
	}
	for i, p := range s.patterns {
		if o.patterns[i] != p {
			return false
		}
	}
	return true
}

// CellIgnores maps each cell to its ignore set.
type CellIgnores struct {
	byCell map[cellpath.CellName]*IgnoreSet
}

// NewCellIgnores builds the per-cell ignore table.
func NewCellIgnores(byCell map[cellpath.CellName]*IgnoreSet) *CellIgnores {
	copied := make(map[cellpath.CellName]*IgnoreSet, len(byCell))
	for cell, set := range byCell {
		copied[cell] = set
	}
	return &CellIgnores{byCell: copied}
}

// Check returns the matching pattern when path is ignored in its cell, or ""
// otherwise.
func (c *CellIgnores) Check(path cellpath.CellPath) string {
	if c == nil {
		return ""
	}
	return c.byCell[path.Cell].Match(path.Path)
}

// Equal reports whether two tables hold the same patterns for every cell.
func (c *CellIgnores) Equal(o *CellIgnores) bool {
	if c == nil || o == nil {
		return c == o
	}
	if len(c.byCell) != len(o.byCell) {
		return false
	}
	for cell, set := range c.byCell {
		if !set.Equal(o.byCell[cell]) {
			return false
		}
	}
	return true
}
