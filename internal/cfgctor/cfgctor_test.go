package cfgctor

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bunnypak/buck2/internal/cellpath"
	"github.com/bunnypak/buck2/internal/dice"
	"github.com/bunnypak/buck2/internal/dicefs"
	"github.com/bunnypak/buck2/internal/fileops"
	"github.com/bunnypak/buck2/internal/services"
	"github.com/bunnypak/buck2/internal/target"
)

// memIo serves PACKAGE files from a map.
type memIo struct {
	mu    sync.Mutex
	files map[cellpath.ProjectRelPath]string
}

func (m *memIo) ReadFileIfExists(ctx context.Context, path cellpath.ProjectRelPath) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	content, ok := m.files[path]
	return content, ok, nil
}

func (m *memIo) ReadDir(ctx context.Context, path cellpath.ProjectRelPath) ([]fileops.RawDirEntry, error) {
	return nil, nil
}

func (m *memIo) ReadPathMetadataIfExists(ctx context.Context, path cellpath.ProjectRelPath) (fileops.RawPathMetadata[cellpath.ProjectRelPath], bool, error) {
	return fileops.RawPathMetadata[cellpath.ProjectRelPath]{}, false, nil
}

// countingConstructor suffixes the configuration name per invocation.
type countingConstructor struct {
	mu    sync.Mutex
	calls int
	fail  error
}

func (c *countingConstructor) ModifierKey() string { return "buck.cfg_modifiers" }

func (c *countingConstructor) Eval(ctx context.Context, tx *dice.Tx, cfg target.ConfigurationData,
	packageModifiers, targetModifiers string, cliModifiers []string, rule target.RuleType) (target.ConfigurationData, error) {
	c.mu.Lock()
	c.calls++
	fail := c.fail
	c.mu.Unlock()
	if fail != nil {
		return target.ConfigurationData{}, fail
	}
	return target.ConfigurationData{Name: cfg.Name + "+modified", Hash: "h1"}, nil
}

func (c *countingConstructor) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type fixture struct {
	eng  *dice.Engine
	io   *memIo
	ctor *countingConstructor
}

func newFixture(t *testing.T, packageFiles map[cellpath.ProjectRelPath]string, installCtor bool) *fixture {
	t.Helper()
	cells, err := cellpath.NewCellResolver(map[cellpath.CellName]cellpath.ProjectRelPath{
		"root": "",
	}, "root")
	require.NoError(t, err)

	io := &memIo{files: packageFiles}
	if io.files == nil {
		io.files = make(map[cellpath.ProjectRelPath]string)
	}
	eng := dice.New()
	dicefs.Attach(eng, io, &dicefs.ProjectState{Cells: cells, Ignores: fileops.NewCellIgnores(nil)})

	table := services.NewTable()
	ctor := &countingConstructor{}
	if installCtor {
		require.NoError(t, table.Register(ConstructorCapability("modifiers"), Constructor(ctor)))
	}
	table.Seal()
	Attach(eng, table)
	return &fixture{eng: eng, io: io, ctor: ctor}
}

const rootPackage = "cfg_constructor: modifiers\n"

func baseCfg() target.ConfigurationData {
	return target.ConfigurationData{Name: "base", Hash: "h0"}
}

func TestFastPathNoConstructorInstalled(t *testing.T) {
	fx := newFixture(t, nil, false)
	tx := fx.eng.Current()
	defer tx.Close()

	cfg := baseCfg()
	out, err := EvalCfgConstructor(context.Background(), tx, nil, &SuperPackage{}, cfg, nil, target.RuleType{Name: "cxx_library"})
	require.NoError(t, err)
	assert.Equal(t, cfg, out)
	assert.Equal(t, 0, fx.ctor.callCount())
}

func TestFastPathEmptyModifiers(t *testing.T) {
	fx := newFixture(t, map[cellpath.ProjectRelPath]string{"PACKAGE": rootPackage}, true)
	tx := fx.eng.Current()
	defer tx.Close()

	cfg := baseCfg()
	out, err := EvalCfgConstructor(context.Background(), tx, nil, &SuperPackage{}, cfg, nil, target.RuleType{Name: "cxx_library"})
	require.NoError(t, err)

	assert.Equal(t, cfg, out, "configuration returned unchanged")
	assert.Equal(t, 0, fx.ctor.callCount(), "constructor not invoked")
	assert.False(t, fx.eng.HasNode(InvocationKey{Cfg: cfg, RuleType: target.RuleType{Name: "cxx_library"}}),
		"no invocation key enters the graph")
}

func TestModifiersInvokeConstructorOnce(t *testing.T) {
	fx := newFixture(t, map[cellpath.ProjectRelPath]string{"PACKAGE": rootPackage}, true)
	tx := fx.eng.Current()
	defer tx.Close()
	ctx := context.Background()

	cfg := baseCfg()
	rule := target.RuleType{Name: "cxx_library"}
	meta := map[string]string{"buck.cfg_modifiers": `["opt"]`}

	out, err := EvalCfgConstructor(ctx, tx, meta, &SuperPackage{}, cfg, nil, rule)
	require.NoError(t, err)
	assert.Equal(t, "base+modified", out.Name)
	assert.Equal(t, 1, fx.ctor.callCount())

	// The invocation is memoized on its full modifier state.
	again, err := EvalCfgConstructor(ctx, tx, meta, &SuperPackage{}, cfg, nil, rule)
	require.NoError(t, err)
	assert.Equal(t, out, again)
	assert.Equal(t, 1, fx.ctor.callCount())
}

func TestCliModifiersAloneInvokeConstructor(t *testing.T) {
	fx := newFixture(t, map[cellpath.ProjectRelPath]string{"PACKAGE": rootPackage}, true)
	tx := fx.eng.Current()
	defer tx.Close()

	_, err := EvalCfgConstructor(context.Background(), tx, nil, &SuperPackage{}, baseCfg(), []string{"release"}, target.RuleType{Name: "rust_binary"})
	require.NoError(t, err)
	assert.Equal(t, 1, fx.ctor.callCount())
}

func TestFailedInvocationNotCached(t *testing.T) {
	fx := newFixture(t, map[cellpath.ProjectRelPath]string{"PACKAGE": rootPackage}, true)
	tx := fx.eng.Current()
	defer tx.Close()
	ctx := context.Background()
	fx.ctor.fail = errors.New("constructor exploded")

	_, err := EvalCfgConstructor(ctx, tx, nil, &SuperPackage{}, baseCfg(), []string{"release"}, target.RuleType{Name: "rust_binary"})
	require.Error(t, err)
	_, err = EvalCfgConstructor(ctx, tx, nil, &SuperPackage{}, baseCfg(), []string{"release"}, target.RuleType{Name: "rust_binary"})
	require.Error(t, err)
	assert.Equal(t, 2, fx.ctor.callCount(), "failures are never cached")
}

func TestPackageModifiersReadFromSuperPackage(t *testing.T) {
	fx := newFixture(t, map[cellpath.ProjectRelPath]string{"PACKAGE": rootPackage}, true)
	tx := fx.eng.Current()
	defer tx.Close()

	super := &SuperPackage{Values: map[string]string{"buck.cfg_modifiers": `["asan"]`}}
	out, err := EvalCfgConstructor(context.Background(), tx, nil, super, baseCfg(), nil, target.RuleType{Name: "cxx_library"})
	require.NoError(t, err)
	assert.Equal(t, "base+modified", out.Name)
	assert.Equal(t, 1, fx.ctor.callCount())
}

func TestPackageFileChainMerging(t *testing.T) {
	fx := newFixture(t, map[cellpath.ProjectRelPath]string{
		"PACKAGE":         "cfg_constructor: modifiers\nvalues:\n  a: root\n  b: root\n",
		"sub/PACKAGE":     "values:\n  b: sub\n",
		"sub/sub2/unused": "",
	}, true)
	tx := fx.eng.Current()
	defer tx.Close()
	ctx := context.Background()

	super, err := EvalPackageFile(ctx, tx, cellpath.New("root", "sub/sub2"))
	require.NoError(t, err)

	a, ok := super.PackageValue("a")
	require.True(t, ok)
	assert.Equal(t, "root", a)
	b, ok := super.PackageValue("b")
	require.True(t, ok)
	assert.Equal(t, "sub", b, "child values shadow parent values")
	assert.Equal(t, "modifiers", super.CfgConstructorName, "constructor inherited along the chain")
}

func TestPackageFileInvalidation(t *testing.T) {
	fx := newFixture(t, map[cellpath.ProjectRelPath]string{
		"PACKAGE": "values:\n  a: one\n",
	}, false)
	ctx := context.Background()
	pkgPath := cellpath.New("root", "PACKAGE")

	tx := fx.eng.Current()
	super, err := EvalPackageFile(ctx, tx, cellpath.New("root", ""))
	require.NoError(t, err)
	a, _ := super.PackageValue("a")
	require.Equal(t, "one", a)
	tx.Close()

	fx.io.mu.Lock()
	fx.io.files["PACKAGE"] = "values:\n  a: two\n"
	fx.io.mu.Unlock()
	tracker := dicefs.NewFileChangeTracker()
	tracker.FileChanged(pkgPath)
	up := fx.eng.Update()
	tracker.WriteToDice(up)
	tx2 := up.Commit()
	defer tx2.Close()

	super, err = EvalPackageFile(ctx, tx2, cellpath.New("root", ""))
	require.NoError(t, err)
	a, _ = super.PackageValue("a")
	assert.Equal(t, "two", a)
}
