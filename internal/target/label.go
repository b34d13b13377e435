// Package target holds the core build model: labels, target patterns, rule
// types, configurations, and provider collections. It is pure data with no
// engine dependencies.
package target

import (
	"fmt"
	"strings"

	"github.com/bunnypak/buck2/internal/cellpath"
)

// Label names an unconfigured target: cell//package:name.
type Label struct {
	Cell    cellpath.CellName
	Package cellpath.CellRelPath
	Name    string
}

func (l Label) String() string {
	return fmt.Sprintf("%s//%s:%s", l.Cell, l.Package, l.Name)
}

// ParseLabel parses "cell//pkg:name" with defaultCell applied when the cell
// part is empty ("//pkg:name").
func ParseLabel(s string, defaultCell cellpath.CellName) (Label, error) {
	cellPart, rest, ok := strings.Cut(s, "//")
	if !ok {
		return Label{}, fmt.Errorf("invalid target label %q: missing //", s)
	}
	pkgPart, name, ok := strings.Cut(rest, ":")
	if !ok || name == "" {
		return Label{}, fmt.Errorf("invalid target label %q: missing target name", s)
	}
	cell := defaultCell
	if cellPart != "" {
		cell = cellpath.CellName(cellPart)
	}
	pkg, err := cellpath.NewCellRelPath(pkgPart)
	if err != nil {
		return Label{}, fmt.Errorf("invalid target label %q: %w", s, err)
	}
	return Label{Cell: cell, Package: pkg, Name: name}, nil
}

// ConfigurationData identifies an effective configuration. Equality is
// structural; the hash distinguishes configurations sharing a name.
type ConfigurationData struct {
	Name string
	Hash string
}

// UnspecifiedConfiguration is the placeholder before any constructor runs.
func UnspecifiedConfiguration() ConfigurationData {
	return ConfigurationData{Name: "<unspecified>"}
}

func (c ConfigurationData) String() string {
	if c.Hash == "" {
		return c.Name
	}
	return c.Name + "#" + c.Hash
}

// ConfiguredLabel is a target label pinned to a configuration.
type ConfiguredLabel struct {
	Label Label
	Cfg   ConfigurationData
}

func (l ConfiguredLabel) String() string {
	return fmt.Sprintf("%s (%s)", l.Label, l.Cfg)
}

// ProvidersLabel optionally selects a named provider subset of a target.
// An empty Providers selects the default collection.
type ProvidersLabel struct {
	Target    Label
	Providers string
}

func (l ProvidersLabel) String() string {
	if l.Providers == "" {
		return l.Target.String()
	}
	return l.Target.String() + "[" + l.Providers + "]"
}

// ConfiguredProvidersLabel pins a providers label to a configuration.
type ConfiguredProvidersLabel struct {
	Label ProvidersLabel
	Cfg   ConfigurationData
}

func (l ConfiguredProvidersLabel) String() string { return l.Label.String() }

// RuleType names the rule that produced a target.
type RuleType struct {
	Name string
}

func (r RuleType) String() string { return r.Name }
