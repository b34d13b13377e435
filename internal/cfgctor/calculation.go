package cfgctor

import (
	"context"
	"fmt"
	"strings"

	"github.com/bunnypak/buck2/internal/cellpath"
	"github.com/bunnypak/buck2/internal/dice"
	"github.com/bunnypak/buck2/internal/dicefs"
	"github.com/bunnypak/buck2/internal/services"
	"github.com/bunnypak/buck2/internal/target"
)

// GetCfgConstructorKey resolves the session's constructor from the root
// cell's PACKAGE file. The constructor is identity-only, so equality is
// always false: any invalidation re-resolves it.
type GetCfgConstructorKey struct{}

func (GetCfgConstructorKey) String() string { return "GetCfgConstructorKey" }

func (GetCfgConstructorKey) Compute(ctx context.Context, tx *dice.Tx) (any, error) {
	stateAny, ok := tx.Global(dicefs.GlobalProjectState)
	if !ok {
		return nil, fmt.Errorf("internal error: project state not attached to engine")
	}
	rootCell := stateAny.(*dicefs.ProjectState).Cells.RootCell()

	super, err := EvalPackageFile(ctx, tx, cellpath.New(rootCell, ""))
	if err != nil {
		return nil, err
	}
	if super.CfgConstructorName == "" {
		return (Constructor)(nil), nil
	}
	table, err := capabilityTable(tx)
	if err != nil {
		return nil, err
	}
	ctor, err := services.Get[Constructor](table, ConstructorCapability(super.CfgConstructorName))
	if err != nil {
		return nil, fmt.Errorf("resolving cfg constructor %q: %w", super.CfgConstructorName, err)
	}
	return ctor, nil
}

// ConstructorCapability is the capability id a named constructor registers
// under.
func ConstructorCapability(name string) string {
	return "cfg-constructor:" + name
}

func (GetCfgConstructorKey) ValueEqual(x, y any) bool { return false }

// InvocationKey memoizes one constructor invocation. The identity is the full
// modifier state; the value is the effective configuration. Failures are
// never cached.
type InvocationKey struct {
	PackageModifiers string
	TargetModifiers  string
	Cfg              target.ConfigurationData
	// CliModifiers is the CLI modifier list in order, joined with \x00 so
	// the key stays comparable.
	CliModifiers string
	RuleType     target.RuleType
}

func (k InvocationKey) String() string { return "CfgConstructorInvocationKey" }

func (k InvocationKey) Compute(ctx context.Context, tx *dice.Tx) (any, error) {
	v, err := tx.Compute(ctx, GetCfgConstructorKey{})
	if err != nil {
		return nil, err
	}
	ctor, _ := v.(Constructor)
	if ctor == nil {
		return nil, fmt.Errorf("internal error: cfg constructor disappeared during invocation")
	}
	return ctor.Eval(ctx, tx, k.Cfg, k.PackageModifiers, k.TargetModifiers, splitCliModifiers(k.CliModifiers), k.RuleType)
}

func (InvocationKey) ValueEqual(x, y any) bool {
	a, okA := x.(target.ConfigurationData)
	b, okB := y.(target.ConfigurationData)
	return okA && okB && a == b
}

func joinCliModifiers(mods []string) string { return strings.Join(mods, "\x00") }

func splitCliModifiers(joined string) []string {
	if joined == "" {
		return nil
	}
	return strings.Split(joined, "\x00")
}

// EvalCfgConstructor produces the effective configuration for a target.
//
// Fast path: when no constructor is installed, or when all three modifier
// sources are empty, the input configuration is returned unchanged without
// touching the invocation key. The empty-modifier shortcut is rollout
// behavior; the uniform alternative is to always go through the graph.
func EvalCfgConstructor(
	ctx context.Context,
	tx *dice.Tx,
	targetMetadata map[string]string,
	superPackage *SuperPackage,
	cfg target.ConfigurationData,
	cliModifiers []string,
	rule target.RuleType,
) (target.ConfigurationData, error) {
	v, err := tx.Compute(ctx, GetCfgConstructorKey{})
	if err != nil {
		return target.ConfigurationData{}, err
	}
	ctor, _ := v.(Constructor)
	if ctor == nil {
		return cfg, nil
	}

	modifierKey := ctor.ModifierKey()
	packageModifiers, _ := superPackage.PackageValue(modifierKey)
	targetModifiers := targetMetadata[modifierKey]

	if packageModifiers == "" && targetModifiers == "" && len(cliModifiers) == 0 {
		return cfg, nil
	}

	key := InvocationKey{
		PackageModifiers: packageModifiers,
		TargetModifiers:  targetModifiers,
		Cfg:              cfg,
		CliModifiers:     joinCliModifiers(cliModifiers),
		RuleType:         rule,
	}
	out, err := tx.Compute(ctx, key)
	if err != nil {
		return target.ConfigurationData{}, err
	}
	return out.(target.ConfigurationData), nil
}
