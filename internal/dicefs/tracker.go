package dicefs

import (
	"github.com/bunnypak/buck2/internal/cellpath"
	"github.com/bunnypak/buck2/internal/dice"
)

// FileChangeTracker batches observed filesystem mutations into the
// invalidation sets the graph needs. It is single-owner between observation
// and flush; WriteToDice consumes it.
//
// File content changes do not alter directory listings, so the parent is
// dirtied only for additions and removals. A cell root has no parent inside
// its cell and the enclosing cell's listing is deliberately left alone.
type FileChangeTracker struct {
	filesToDirty map[ReadFileKey]struct{}
	dirsToDirty  map[ReadDirKey]struct{}
	pathsToDirty map[PathMetadataKey]struct{}
}

// NewFileChangeTracker returns an empty tracker.
func NewFileChangeTracker() *FileChangeTracker {
	return &FileChangeTracker{
		filesToDirty: make(map[ReadFileKey]struct{}),
		dirsToDirty:  make(map[ReadDirKey]struct{}),
		pathsToDirty: make(map[PathMetadataKey]struct{}),
	}
}

// WriteToDice hands all accumulated sets to the update transaction. The
// tracker is spent afterwards.
func (t *FileChangeTracker) WriteToDice(up *dice.Update) {
	for k := range t.filesToDirty {
		up.Changed(k)
	}
	for k := range t.dirsToDirty {
		up.Changed(k)
	}
	for k := range t.pathsToDirty {
		up.Changed(k)
	}
	t.filesToDirty = nil
	t.dirsToDirty = nil
	t.pathsToDirty = nil
}

func (t *FileChangeTracker) fileContentsModify(path cellpath.CellPath) {
	t.filesToDirty[ReadFileKey{Path: path}] = struct{}{}
	t.pathsToDirty[PathMetadataKey{Path: path}] = struct{}{}
}

func (t *FileChangeTracker) fileAddedOrRemoved(path cellpath.CellPath) {
	t.fileContentsModify(path)
	if parent, ok := path.Parent(); ok {
		t.dirsToDirty[ReadDirKey{Path: parent}] = struct{}{}
	}
}

func (t *FileChangeTracker) dirAddedOrRemoved(path cellpath.CellPath) {
	t.pathsToDirty[PathMetadataKey{Path: path}] = struct{}{}
	t.dirsToDirty[ReadDirKey{Path: path}] = struct{}{}
	if parent, ok := path.Parent(); ok {
		t.dirsToDirty[ReadDirKey{Path: parent}] = struct{}{}
	}
}

// FileChanged records an in-place content modification.
func (t *FileChangeTracker) FileChanged(path cellpath.CellPath) {
	t.fileContentsModify(path)
}

// FileAdded records a new file.
func (t *FileChangeTracker) FileAdded(path cellpath.CellPath) {
	t.fileAddedOrRemoved(path)
}

// FileRemoved records a deleted file.
func (t *FileChangeTracker) FileRemoved(path cellpath.CellPath) {
	t.fileAddedOrRemoved(path)
}

// DirChanged records a directory whose listing changed.
func (t *FileChangeTracker) DirChanged(path cellpath.CellPath) {
	t.pathsToDirty[PathMetadataKey{Path: path}] = struct{}{}
	t.dirsToDirty[ReadDirKey{Path: path}] = struct{}{}
}

// DirAdded records a new directory.
func (t *FileChangeTracker) DirAdded(path cellpath.CellPath) {
	t.dirAddedOrRemoved(path)
}

// DirRemoved records a deleted directory.
func (t *FileChangeTracker) DirRemoved(path cellpath.CellPath) {
	t.dirAddedOrRemoved(path)
}
