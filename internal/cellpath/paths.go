// Package cellpath models project-relative and cell-qualified paths.
//
// A project is a tree on disk; a cell is a named root inside it. All paths
// here are forward-slash, relative, and normalized; conversion to and from
// on-disk paths happens at the filesystem boundary only.
package cellpath

import (
	"fmt"
	"path"
	"strings"
)

// CellName identifies a cell within the project.
type CellName string

// ProjectRelPath is a normalized path relative to the project root.
// The empty string is the project root itself.
type ProjectRelPath string

// CellRelPath is a normalized path relative to a cell root.
// The empty string is the cell root itself.
type CellRelPath string

// NewProjectRelPath validates and normalizes p.
func NewProjectRelPath(p string) (ProjectRelPath, error) {
	n, err := normalizeRel(p)
	if err != nil {
		return "", fmt.Errorf("invalid project-relative path %q: %w", p, err)
	}
	return ProjectRelPath(n), nil
}

// NewCellRelPath validates and normalizes p.
func NewCellRelPath(p string) (CellRelPath, error) {
	n, err := normalizeRel(p)
	if err != nil {
		return "", fmt.Errorf("invalid cell-relative path %q: %w", p, err)
	}
	return CellRelPath(n), nil
}

func normalizeRel(p string) (string, error) {
	if strings.ContainsRune(p, '\x00') {
		return "", fmt.Errorf("contains NUL")
	}
	if strings.HasPrefix(p, "/") {
		return "", fmt.Errorf("must be relative")
	}
	if strings.Contains(p, "\\") {
		return "", fmt.Errorf("must use forward slashes")
	}
	cleaned := path.Clean(p)
	if cleaned == "." {
		return "", nil
	}
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("escapes the root")
	}
	return cleaned, nil
}

// Join appends a file name to p.
func (p ProjectRelPath) Join(name FileName) ProjectRelPath {
	if p == "" {
		return ProjectRelPath(name)
	}
	return ProjectRelPath(string(p) + "/" + string(name))
}

// JoinRel appends a cell-relative path to p.
func (p ProjectRelPath) JoinRel(rel CellRelPath) ProjectRelPath {
	if rel == "" {
		return p
	}
	if p == "" {
		return ProjectRelPath(rel)
	}
	return ProjectRelPath(string(p) + "/" + string(rel))
}

func (p ProjectRelPath) String() string { return string(p) }

// Join appends a file name to p.
func (p CellRelPath) Join(name FileName) CellRelPath {
	if p == "" {
		return CellRelPath(name)
	}
	return CellRelPath(string(p) + "/" + string(name))
}

// Parent returns the containing directory of p. The second result is false
// when p is the cell root.
func (p CellRelPath) Parent() (CellRelPath, bool) {
	if p == "" {
		return "", false
	}
	dir := path.Dir(string(p))
	if dir == "." {
		return "", true
	}
	return CellRelPath(dir), true
}

func (p CellRelPath) String() string { return string(p) }

// CellPath is a path qualified by the cell that contains it.
// Equality is structural.
type CellPath struct {
	Cell CellName
	Path CellRelPath
}

// New returns a CellPath for the given cell and cell-relative path.
func New(cell CellName, p CellRelPath) CellPath {
	return CellPath{Cell: cell, Path: p}
}

// Join appends a file name.
func (c CellPath) Join(name FileName) CellPath {
	return CellPath{Cell: c.Cell, Path: c.Path.Join(name)}
}

// Parent returns the containing directory. The second result is false when c
// is a cell root: the parent would live in an enclosing cell (or outside the
// project) and is deliberately not representable here.
func (c CellPath) Parent() (CellPath, bool) {
	p, ok := c.Path.Parent()
	if !ok {
		return CellPath{}, false
	}
	return CellPath{Cell: c.Cell, Path: p}, true
}

func (c CellPath) String() string {
	return fmt.Sprintf("%s//%s", c.Cell, c.Path)
}

// FileName is a single validated path component.
type FileName string

// NewFileName validates name as a single path component.
func NewFileName(name string) (FileName, error) {
	if name == "" {
		return "", fmt.Errorf("file name is empty")
	}
	if name == "." || name == ".." {
		return "", fmt.Errorf("file name %q is reserved", name)
	}
	if strings.ContainsAny(name, "/\\") {
		return "", fmt.Errorf("file name %q contains a path separator", name)
	}
	if strings.ContainsRune(name, '\x00') {
		return "", fmt.Errorf("file name %q contains NUL", name)
	}
	return FileName(name), nil
}

func (n FileName) String() string { return string(n) }
