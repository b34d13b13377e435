// Package dicefs mediates all filesystem access through the incremental
// computation graph. Three keys cover the surface: file reads, directory
// listings, and path metadata. Invalidation arrives from the
// FileChangeTracker; values flow out with the precise equality semantics each
// key needs for change propagation.
package dicefs

import (
	"context"
	"fmt"

	"github.com/bunnypak/buck2/internal/cellpath"
	"github.com/bunnypak/buck2/internal/dice"
	"github.com/bunnypak/buck2/internal/fileops"
)

// Engine global-data ids consumed by this package.
const (
	// GlobalIoProvider must hold a fileops.IoProvider.
	GlobalIoProvider = "dicefs.io"
	// GlobalProjectState must hold a *ProjectState.
	GlobalProjectState = "dicefs.project"
)

// ProjectState is the session's cell layout and ignore configuration. When it
// is swapped, the caller must mark FileOpsKey changed on an update
// transaction so dependents re-resolve.
type ProjectState struct {
	Cells   *cellpath.CellResolver
	Ignores *fileops.CellIgnores
}

// Attach installs the io provider and project state on an engine.
func Attach(eng *dice.Engine, io fileops.IoProvider, state *ProjectState) {
	eng.SetGlobal(GlobalIoProvider, io)
	eng.SetGlobal(GlobalProjectState, state)
}

// FileOpsKey computes the session's cell-aware FileOps delegate. The value is
// a single graph node so that every filesystem key shares one delegate and
// re-resolves it on project-state changes.
type FileOpsKey struct{}

func (FileOpsKey) String() string { return "FileOpsKey" }

func (FileOpsKey) Compute(ctx context.Context, tx *dice.Tx) (any, error) {
	ioAny, ok := tx.Global(GlobalIoProvider)
	if !ok {
		return nil, fmt.Errorf("internal error: io provider not attached to engine")
	}
	stateAny, ok := tx.Global(GlobalProjectState)
	if !ok {
		return nil, fmt.Errorf("internal error: project state not attached to engine")
	}
	io := ioAny.(fileops.IoProvider)
	state := stateAny.(*ProjectState)
	return fileops.NewCellAwareFileOps(io, state.Cells, state.Ignores), nil
}

// ValueEqual compares cell resolver and ignores; the raw io provider is
// identity-only because it does not change during a session.
func (FileOpsKey) ValueEqual(x, y any) bool {
	a, okA := x.(*fileops.CellAwareFileOps)
	b, okB := y.(*fileops.CellAwareFileOps)
	return okA && okB && a.Equal(b)
}

func fileOpsFor(ctx context.Context, tx *dice.Tx) (*fileops.CellAwareFileOps, error) {
	v, err := tx.Compute(ctx, FileOpsKey{})
	if err != nil {
		return nil, err
	}
	return v.(*fileops.CellAwareFileOps), nil
}

// FileToken is the value of a ReadFileKey. It carries only the path: file
// contents are never stored in the graph's cache, so consumers re-read
// through the delegate every time they are asked.
type FileToken struct {
	Path cellpath.CellPath
}

// ReadIfExists reads the file the token stands for.
func (t FileToken) ReadIfExists(ctx context.Context, ops fileops.FileOps) (string, bool, error) {
	return ops.ReadFileIfExists(ctx, t.Path)
}

// ReadFileKey invalidates file content. Its value is a FileToken whose
// equality is always false: dirtying the key forces every dependent to
// recompute, while the cache itself never holds file bytes.
type ReadFileKey struct {
	Path cellpath.CellPath
}

func (k ReadFileKey) String() string { return fmt.Sprintf("ReadFileKey(%s)", k.Path) }

func (k ReadFileKey) Compute(ctx context.Context, tx *dice.Tx) (any, error) {
	return FileToken{Path: k.Path}, nil
}

// ValueEqual is always false; see FileToken.
func (ReadFileKey) ValueEqual(x, y any) bool { return false }

// ReadDirKey lists a directory through the cell-aware delegate. Equality is
// structural over the sorted, filtered listing.
type ReadDirKey struct {
	Path cellpath.CellPath
}

func (k ReadDirKey) String() string { return fmt.Sprintf("ReadDirKey(%s)", k.Path) }

func (k ReadDirKey) Compute(ctx context.Context, tx *dice.Tx) (any, error) {
	ops, err := fileOpsFor(ctx, tx)
	if err != nil {
		return nil, err
	}
	return ops.ReadDir(ctx, k.Path)
}

func (ReadDirKey) ValueEqual(x, y any) bool {
	a, okA := x.(fileops.ReadDirOutput)
	b, okB := y.(fileops.ReadDirOutput)
	return okA && okB && a.Equal(b)
}

// PathMetadata is the value of a PathMetadataKey: metadata when the path
// exists, Exists=false otherwise. Equality is structural.
type PathMetadata struct {
	Exists bool
	Meta   fileops.RawPathMetadata[cellpath.CellPath]
}

// PathMetadataKey stats a path. When the path is a symlink, the compute
// additionally requests ReadFileKey on the symlink's location so that a
// change to the link's on-disk content invalidates this metadata.
type PathMetadataKey struct {
	Path cellpath.CellPath
}

func (k PathMetadataKey) String() string { return fmt.Sprintf("PathMetadataKey(%s)", k.Path) }

func (k PathMetadataKey) Compute(ctx context.Context, tx *dice.Tx) (any, error) {
	ops, err := fileOpsFor(ctx, tx)
	if err != nil {
		return nil, err
	}
	meta, ok, err := ops.ReadPathMetadataIfExists(ctx, k.Path)
	if err != nil {
		return nil, err
	}
	if !ok {
		return PathMetadata{}, nil
	}
	if meta.Kind == fileops.PathKindSymlink {
		if _, err := tx.Compute(ctx, ReadFileKey{Path: meta.At}); err != nil {
			return nil, err
		}
	}
	return PathMetadata{Exists: true, Meta: meta}, nil
}

func (PathMetadataKey) ValueEqual(x, y any) bool {
	a, okA := x.(PathMetadata)
	b, okB := y.(PathMetadata)
	return okA && okB && a == b
}

// Computations bundles the typed read-through operations over a transaction.
type Computations struct{}

// ReadFileIfExists reads a file through the graph. The content itself is
// transient: only the token is cached.
func (Computations) ReadFileIfExists(ctx context.Context, tx *dice.Tx, path cellpath.CellPath) (string, bool, error) {
	v, err := tx.Compute(ctx, ReadFileKey{Path: path})
	if err != nil {
		return "", false, err
	}
	ops, err := fileOpsFor(ctx, tx)
	if err != nil {
		return "", false, err
	}
	return v.(FileToken).ReadIfExists(ctx, ops)
}

// ReadFile reads a file that must exist.
func (c Computations) ReadFile(ctx context.Context, tx *dice.Tx, path cellpath.CellPath) (string, error) {
	content, ok, err := c.ReadFileIfExists(ctx, tx, path)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%w: %s", fileops.ErrFileNotFound, path)
	}
	return content, nil
}

// ReadDir lists a directory through the graph.
func (Computations) ReadDir(ctx context.Context, tx *dice.Tx, path cellpath.CellPath) (fileops.ReadDirOutput, error) {
	v, err := tx.Compute(ctx, ReadDirKey{Path: path})
	if err != nil {
		return fileops.ReadDirOutput{}, err
	}
	return v.(fileops.ReadDirOutput), nil
}

// ReadPathMetadataIfExists stats a path through the graph.
func (Computations) ReadPathMetadataIfExists(ctx context.Context, tx *dice.Tx, path cellpath.CellPath) (PathMetadata, error) {
	v, err := tx.Compute(ctx, PathMetadataKey{Path: path})
	if err != nil {
		return PathMetadata{}, err
	}
	return v.(PathMetadata), nil
}
