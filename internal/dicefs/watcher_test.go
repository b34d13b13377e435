package dicefs

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bunnypak/buck2/internal/cellpath"
	"github.com/bunnypak/buck2/internal/dice"
	"github.com/bunnypak/buck2/internal/fileops"
)

func TestWatcherFlushesChangesIntoGraph(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("one"), 0o644))

	cells, err := cellpath.NewCellResolver(map[cellpath.CellName]cellpath.ProjectRelPath{
		"root": "",
	}, "root")
	require.NoError(t, err)

	eng := dice.New()
	Attach(eng, fileops.NewFsIoProvider(root), &ProjectState{Cells: cells, Ignores: fileops.NewCellIgnores(nil)})

	w, err := NewWatcher(eng, root, cells, zap.NewNop())
	require.NoError(t, err)

	commits := make(chan *dice.Tx, 16)
	w.OnCommit = func(tx *dice.Tx) { commits <- tx }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	// Prime the graph at version 0.
	tx := eng.Current()
	content, err := Computations{}.ReadFile(ctx, tx, cellpath.New("root", "a.txt"))
	require.NoError(t, err)
	require.Equal(t, "one", content)
	tx.Close()

	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("two"), 0o644))

	select {
	case committed := <-commits:
		defer committed.Close()
		assert.Greater(t, committed.Version(), uint64(0))
		content, err := Computations{}.ReadFile(ctx, committed, cellpath.New("root", "a.txt"))
		require.NoError(t, err)
		assert.Equal(t, "two", content)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher never flushed the change")
	}
}
