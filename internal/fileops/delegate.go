package fileops

import (
	"context"
	"fmt"
	"sort"

	"github.com/bunnypak/buck2/internal/cellpath"
	"github.com/bunnypak/buck2/internal/console"
)

// CellAwareFileOps implements FileOps on top of a raw IoProvider. It resolves
// cell paths through the CellResolver, applies per-cell ignore patterns, and
// makes directory listings deterministic.
type CellAwareFileOps struct {
	io      IoProvider
	cells   *cellpath.CellResolver
	ignores *CellIgnores
}

// NewCellAwareFileOps wires the three collaborators together.
func NewCellAwareFileOps(io IoProvider, cells *cellpath.CellResolver, ignores *CellIgnores) *CellAwareFileOps {
	return &CellAwareFileOps{io: io, cells: cells, ignores: ignores}
}

// Equal compares the cell resolver and ignore configuration. The raw provider
// is identity-only: it does not change during a session.
func (f *CellAwareFileOps) Equal(o *CellAwareFileOps) bool {
	if f == nil || o == nil {
		return f == o
	}
	return f.cells.Equal(o.cells) && f.ignores.Equal(o.ignores)
}

func (f *CellAwareFileOps) ReadFileIfExists(ctx context.Context, path cellpath.CellPath) (string, bool, error) {
	project, err := f.cells.Resolve(path)
	if err != nil {
		return "", false, err
	}
	return f.io.ReadFileIfExists(ctx, project)
}

func (f *CellAwareFileOps) ReadDir(ctx context.Context, path cellpath.CellPath) (ReadDirOutput, error) {
	if pattern := f.ignores.Check(path); pattern != "" {
		return ReadDirOutput{}, fmt.Errorf("%w: dir %s matches ignore pattern %q", ErrIgnoredDir, path, pattern)
	}
	project, err := f.cells.Resolve(path)
	if err != nil {
		return ReadDirOutput{}, err
	}
	entries, err := f.io.ReadDir(ctx, project)
	if err != nil {
		return ReadDirOutput{}, fmt.Errorf("listing dir %s: %w", path, err)
	}

	// The raw provider gives no ordering guarantee.
	sort.Slice(entries, func(i, j int) bool { return entries[i].FileName < entries[j].FileName })

	included := make([]SimpleDirEntry, 0, len(entries))
	for _, e := range entries {
		child := cellpath.CellPath{Cell: path.Cell, Path: childPath(path.Path, e.FileName)}
		if f.ignores.Check(child) != "" {
			continue
		}
		name, err := cellpath.NewFileName(e.FileName)
		if err != nil {
			console.Messagef(ctx, "File name %q is not valid. Add the path to the ignore patterns to mute this message", e.FileName)
			continue
		}
		included = append(included, SimpleDirEntry{FileName: name, FileType: e.FileType})
	}
	return ReadDirOutput{Included: included}, nil
}

func (f *CellAwareFileOps) ReadPathMetadataIfExists(ctx context.Context, path cellpath.CellPath) (RawPathMetadata[cellpath.CellPath], bool, error) {
	var zero RawPathMetadata[cellpath.CellPath]
	project, err := f.cells.Resolve(path)
	if err != nil {
		return zero, false, err
	}
	meta, ok, err := f.io.ReadPathMetadataIfExists(ctx, project)
	if err != nil {
		return zero, false, fmt.Errorf("accessing metadata for %s: %w", path, err)
	}
	if !ok {
		return zero, false, nil
	}
	mapped, err := MapPathMetadata(meta, f.cells.CellForProjectPath)
	if err != nil {
		return zero, false, err
	}
	return mapped, true, nil
}

func (f *CellAwareFileOps) IsIgnored(ctx context.Context, path cellpath.CellPath) (bool, error) {
	return f.ignores.Check(path) != "", nil
}

// childPath joins a raw (not yet validated) entry name onto a directory path.
func childPath(dir cellpath.CellRelPath, name string) cellpath.CellRelPath {
	if dir == "" {
		return cellpath.CellRelPath(name)
	}
	return cellpath.CellRelPath(string(dir) + "/" + name)
}
