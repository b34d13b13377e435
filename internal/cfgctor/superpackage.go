// Package cfgctor implements the configuration-transform subsystem: the
// PACKAGE-file state accumulated along a directory chain and the two-level
// memoized constructor that turns (configuration, modifiers, rule type) into
// an effective configuration.
package cfgctor

import (
	"context"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/bunnypak/buck2/internal/cellpath"
	"github.com/bunnypak/buck2/internal/dice"
	"github.com/bunnypak/buck2/internal/dicefs"
	"github.com/bunnypak/buck2/internal/services"
	"github.com/bunnypak/buck2/internal/target"
)

// PackageFileName is the fixed name of package files.
const PackageFileName = "PACKAGE"

// Constructor transforms a configuration under a set of modifiers. The
// implementation lives above the engine and is installed through the
// capability table.
type Constructor interface {
	// ModifierKey names the package/target metadata entry holding modifiers
	// for this constructor.
	ModifierKey() string

	// Eval produces the effective configuration.
	Eval(ctx context.Context, tx *dice.Tx, cfg target.ConfigurationData,
		packageModifiers, targetModifiers string, cliModifiers []string,
		rule target.RuleType) (target.ConfigurationData, error)
}

// SuperPackage is the accumulated PACKAGE-file state a directory inherits:
// package values merged along the chain, plus the name of the configured cfg
// constructor, if any.
type SuperPackage struct {
	// Values maps package-value keys to their canonical string form. Child
	// entries shadow parent entries.
	Values map[string]string
	// CfgConstructorName selects a Constructor from the capability table.
	// Empty means none installed.
	CfgConstructorName string
}

// PackageValue reads a package value.
func (s *SuperPackage) PackageValue(key string) (string, bool) {
	if s == nil {
		return "", false
	}
	v, ok := s.Values[key]
	return v, ok
}

// Equal is structural.
func (s *SuperPackage) Equal(o *SuperPackage) bool {
	if s == nil || o == nil {
		return s == o
	}
	if s.CfgConstructorName != o.CfgConstructorName || len(s.Values) != len(o.Values) {
		return false
	}
	for k, v := range s.Values {
		if ov, ok := o.Values[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

// packageFile is the on-disk shape of a PACKAGE file.
type packageFile struct {
	CfgConstructor string            `yaml:"cfg_constructor"`
	Values         map[string]string `yaml:"values"`
}

// PackageFileKey computes the super-package of a directory: its own PACKAGE
// file merged over the parent chain. Equality is structural so unrelated
// PACKAGE edits do not cascade.
type PackageFileKey struct {
	Dir cellpath.CellPath
}

func (k PackageFileKey) String() string { return fmt.Sprintf("PackageFileKey(%s)", k.Dir) }

func (k PackageFileKey) Compute(ctx context.Context, tx *dice.Tx) (any, error) {
	inherited := &SuperPackage{}
	if parent, ok := k.Dir.Parent(); ok {
		v, err := tx.Compute(ctx, PackageFileKey{Dir: parent})
		if err != nil {
			return nil, err
		}
		inherited = v.(*SuperPackage)
	}

	name, err := cellpath.NewFileName(PackageFileName)
	if err != nil {
		return nil, err
	}
	content, ok, err := dicefs.Computations{}.ReadFileIfExists(ctx, tx, k.Dir.Join(name))
	if err != nil {
		return nil, err
	}
	if !ok {
		return inherited, nil
	}

	var parsed packageFile
	if err := yaml.Unmarshal([]byte(content), &parsed); err != nil {
		return nil, fmt.Errorf("parsing %s in %s: %w", PackageFileName, k.Dir, err)
	}

	merged := &SuperPackage{
		Values:             make(map[string]string, len(inherited.Values)+len(parsed.Values)),
		CfgConstructorName: inherited.CfgConstructorName,
	}
	for key, v := range inherited.Values {
		merged.Values[key] = v
	}
	for key, v := range parsed.Values {
		merged.Values[key] = v
	}
	if parsed.CfgConstructor != "" {
		merged.CfgConstructorName = parsed.CfgConstructor
	}
	return merged, nil
}

func (PackageFileKey) ValueEqual(x, y any) bool {
	a, okA := x.(*SuperPackage)
	b, okB := y.(*SuperPackage)
	return okA && okB && a.Equal(b)
}

// EvalPackageFile computes the super-package for a directory through the
// graph.
func EvalPackageFile(ctx context.Context, tx *dice.Tx, dir cellpath.CellPath) (*SuperPackage, error) {
	v, err := tx.Compute(ctx, PackageFileKey{Dir: dir})
	if err != nil {
		return nil, err
	}
	return v.(*SuperPackage), nil
}

// GlobalCapabilityTable is the engine global-data id the capability table is
// attached under.
const GlobalCapabilityTable = "cfgctor.capabilities"

// Attach installs the capability table on an engine.
func Attach(eng *dice.Engine, table *services.Table) {
	eng.SetGlobal(GlobalCapabilityTable, table)
}

func capabilityTable(tx *dice.Tx) (*services.Table, error) {
	v, ok := tx.Global(GlobalCapabilityTable)
	if !ok {
		return nil, fmt.Errorf("internal error: capability table not attached to engine")
	}
	return v.(*services.Table), nil
}
