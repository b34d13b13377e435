// Package fileops provides filesystem access for the build engine.
//
// Two layers are exposed: IoProvider works on raw project-relative paths and
// knows nothing about cells or ignores; FileOps is the cell-aware view that
// every computation goes through. FileOps results are deterministic: directory
// listings are sorted and filtered before they leave this package.
package fileops

import (
	"context"
	"errors"
	"fmt"

	"github.com/bunnypak/buck2/internal/cellpath"
)

// ErrFileNotFound reports a read of a path that must exist but does not.
var ErrFileNotFound = errors.New("file not found")

// ErrIgnoredDir reports a directory read on a path matched by an ignore
// pattern. This is a user error: the build referenced a path the project
// configuration excludes.
var ErrIgnoredDir = errors.New("directory is ignored")

// FileType classifies a directory entry.
type FileType uint8

const (
	FileTypeFile FileType = iota
	FileTypeDir
	FileTypeSymlink
)

func (t FileType) String() string {
	switch t {
	case FileTypeFile:
		return "file"
	case FileTypeDir:
		return "dir"
	case FileTypeSymlink:
		return "symlink"
	default:
		return fmt.Sprintf("filetype(%d)", t)
	}
}

// RawDirEntry is an unvalidated entry as returned by the raw provider.
type RawDirEntry struct {
	FileName string
	FileType FileType
}

// SimpleDirEntry is a validated entry of a cell-aware directory listing.
type SimpleDirEntry struct {
	FileName cellpath.FileName
	FileType FileType
}

// ReadDirOutput is the ordered, filtered listing of a directory. Included is
// sorted lexicographically by file name and never contains ignored entries.
type ReadDirOutput struct {
	Included []SimpleDirEntry
}

// Equal reports element-wise equality of two listings.
func (o ReadDirOutput) Equal(other ReadDirOutput) bool {
	if len(o.Included) != len(other.Included) {
		return false
	}
	for i, e := range o.Included {
		if e != other.Included[i] {
			return false
		}
	}
	return true
}

// Digest is the content hash of a file.
type Digest [32]byte

func (d Digest) String() string { return fmt.Sprintf("%x", d[:]) }

// PathKind discriminates RawPathMetadata.
type PathKind uint8

const (
	PathKindFile PathKind = iota
	PathKindDir
	PathKindSymlink
)

// RawPathMetadata describes what sits at a path. It is parameterized over the
// path representation so it can be mapped from project-relative to
// cell-relative form. Equality is structural.
type RawPathMetadata[P comparable] struct {
	Kind PathKind

	// File fields.
	Digest Digest
	Size   uint64

	// Symlink fields: At is where the symlink itself lives, To is the
	// resolved target outside the mapped path space.
	At P
	To string
}

// FileMetadata builds metadata for a regular file.
func FileMetadata[P comparable](digest Digest, size uint64) RawPathMetadata[P] {
	return RawPathMetadata[P]{Kind: PathKindFile, Digest: digest, Size: size}
}

// DirMetadata builds metadata for a directory.
func DirMetadata[P comparable]() RawPathMetadata[P] {
	return RawPathMetadata[P]{Kind: PathKindDir}
}

// SymlinkMetadata builds metadata for a symlink at the given path resolving
// to target.
func SymlinkMetadata[P comparable](at P, to string) RawPathMetadata[P] {
	return RawPathMetadata[P]{Kind: PathKindSymlink, At: at, To: to}
}

// MapPathMetadata converts the path representation of m through f.
func MapPathMetadata[A, B comparable](m RawPathMetadata[A], f func(A) (B, error)) (RawPathMetadata[B], error) {
	out := RawPathMetadata[B]{
		Kind:   m.Kind,
		Digest: m.Digest,
		Size:   m.Size,
		To:     m.To,
	}
	if m.Kind == PathKindSymlink {
		at, err := f(m.At)
		if err != nil {
			return RawPathMetadata[B]{}, err
		}
		out.At = at
	}
	return out, nil
}

// IoProvider is the raw filesystem capability. Paths are project-relative;
// read_dir results are unsorted and unfiltered. Implementations must be safe
// for concurrent use.
type IoProvider interface {
	// ReadFileIfExists returns the file's content, or ok=false if the path
	// does not exist.
	ReadFileIfExists(ctx context.Context, path cellpath.ProjectRelPath) (content string, ok bool, err error)

	// ReadDir lists the directory without any ordering guarantee.
	ReadDir(ctx context.Context, path cellpath.ProjectRelPath) ([]RawDirEntry, error)

	// ReadPathMetadataIfExists stats the path without following symlinks.
	// Returns ok=false if the path does not exist.
	ReadPathMetadataIfExists(ctx context.Context, path cellpath.ProjectRelPath) (RawPathMetadata[cellpath.ProjectRelPath], bool, error)
}

// FileOps is the cell-aware filesystem capability used by computations.
type FileOps interface {
	ReadFileIfExists(ctx context.Context, path cellpath.CellPath) (content string, ok bool, err error)
	ReadDir(ctx context.Context, path cellpath.CellPath) (ReadDirOutput, error)
	ReadPathMetadataIfExists(ctx context.Context, path cellpath.CellPath) (RawPathMetadata[cellpath.CellPath], bool, error)
	IsIgnored(ctx context.Context, path cellpath.CellPath) (bool, error)
}

// ReadFile reads a file that must exist.
func ReadFile(ctx context.Context, ops FileOps, path cellpath.CellPath) (string, error) {
	content, ok, err := ops.ReadFileIfExists(ctx, path)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrFileNotFound, path)
	}
	return content, nil
}
