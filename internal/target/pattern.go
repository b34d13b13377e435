package target

import (
	"fmt"
	"strings"

	"github.com/bunnypak/buck2/internal/cellpath"
)

// Pattern is a parsed target pattern: either a single target or every target
// of a package ("cell//pkg:").
type Pattern struct {
	Cell    cellpath.CellName
	Package cellpath.CellRelPath
	// Name is the target name; empty means the whole package.
	Name string
	// All is true for "pkg:" patterns selecting every target.
	All bool
}

func (p Pattern) String() string {
	if p.All {
		return fmt.Sprintf("%s//%s:", p.Cell, p.Package)
	}
	return Label{Cell: p.Cell, Package: p.Package, Name: p.Name}.String()
}

// ParsePattern parses a target-pattern string. Supported shapes:
// "cell//pkg:name", "//pkg:name", "cell//pkg:" (all targets in package).
func ParsePattern(s string, defaultCell cellpath.CellName) (Pattern, error) {
	cellPart, rest, ok := strings.Cut(s, "//")
	if !ok {
		return Pattern{}, fmt.Errorf("invalid target pattern %q: missing //", s)
	}
	cell := defaultCell
	if cellPart != "" {
		cell = cellpath.CellName(cellPart)
	}
	pkgPart, name, ok := strings.Cut(rest, ":")
	if !ok {
		return Pattern{}, fmt.Errorf("invalid target pattern %q: missing :", s)
	}
	pkg, err := cellpath.NewCellRelPath(pkgPart)
	if err != nil {
		return Pattern{}, fmt.Errorf("invalid target pattern %q: %w", s, err)
	}
	if name == "" {
		return Pattern{Cell: cell, Package: pkg, All: true}, nil
	}
	return Pattern{Cell: cell, Package: pkg, Name: name}, nil
}

// ParsePatterns parses each pattern, preserving order.
func ParsePatterns(patterns []string, defaultCell cellpath.CellName) ([]Pattern, error) {
	out := make([]Pattern, 0, len(patterns))
	for _, s := range patterns {
		p, err := ParsePattern(s, defaultCell)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}
