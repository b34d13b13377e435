package fileops

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/bunnypak/buck2/internal/cellpath"
)

// FsIoProvider implements IoProvider over the real filesystem rooted at a
// project directory. It does not change during a session; callers treat two
// providers as interchangeable when they share a root.
type FsIoProvider struct {
	root string
}

// NewFsIoProvider returns a provider rooted at the absolute project root.
func NewFsIoProvider(projectRoot string) *FsIoProvider {
	return &FsIoProvider{root: projectRoot}
}

// ProjectRoot returns the absolute root this provider reads under.
func (p *FsIoProvider) ProjectRoot() string { return p.root }

func (p *FsIoProvider) abs(path cellpath.ProjectRelPath) string {
	if path == "" {
		return p.root
	}
	return filepath.Join(p.root, filepath.FromSlash(string(path)))
}

func (p *FsIoProvider) ReadFileIfExists(ctx context.Context, path cellpath.ProjectRelPath) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	content, err := os.ReadFile(p.abs(path))
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("reading file %q: %w", path, err)
	}
	return string(content), true, nil
}

func (p *FsIoProvider) ReadDir(ctx context.Context, path cellpath.ProjectRelPath) ([]RawDirEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(p.abs(path))
	if err != nil {
		return nil, fmt.Errorf("listing dir %q: %w", path, err)
	}
	out := make([]RawDirEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, RawDirEntry{
			FileName: e.Name(),
			FileType: fileTypeOf(e.Type()),
		})
	}
	return out, nil
}

func (p *FsIoProvider) ReadPathMetadataIfExists(ctx context.Context, path cellpath.ProjectRelPath) (RawPathMetadata[cellpath.ProjectRelPath], bool, error) {
	var zero RawPathMetadata[cellpath.ProjectRelPath]
	if err := ctx.Err(); err != nil {
		return zero, false, err
	}
	abs := p.abs(path)
	info, err := os.Lstat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return zero, false, nil
		}
		return zero, false, fmt.Errorf("accessing metadata for %q: %w", path, err)
	}
	switch {
	case info.Mode()&fs.ModeSymlink != 0:
		target, err := os.Readlink(abs)
		if err != nil {
			return zero, false, fmt.Errorf("reading symlink %q: %w", path, err)
		}
		return SymlinkMetadata(path, target), true, nil
	case info.IsDir():
		return DirMetadata[cellpath.ProjectRelPath](), true, nil
	default:
		digest, err := digestFile(abs)
		if err != nil {
			return zero, false, fmt.Errorf("hashing file %q: %w", path, err)
		}
		return FileMetadata[cellpath.ProjectRelPath](digest, uint64(info.Size())), true, nil
	}
}

func fileTypeOf(mode fs.FileMode) FileType {
	switch {
	case mode&fs.ModeSymlink != 0:
		return FileTypeSymlink
	case mode.IsDir():
		return FileTypeDir
	default:
		return FileTypeFile
	}
}

func digestFile(abs string) (Digest, error) {
	content, err := os.ReadFile(abs)
	if err != nil {
		return Digest{}, err
	}
	return sha256.Sum256(content), nil
}
