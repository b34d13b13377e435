package cellpath

import (
	"fmt"
	"sort"
	"strings"
)

// CellResolver maps cell names to their project-relative roots. It is built
// once from project configuration and immutable afterwards.
type CellResolver struct {
	roots    map[CellName]ProjectRelPath
	rootCell CellName
	// byDepth caches cell names ordered by decreasing root length so that
	// CellForProjectPath picks the innermost matching cell.
	byDepth []CellName
}

// NewCellResolver builds a resolver. rootCell must be present in roots and
// anchored at the project root; cell roots must be distinct.
func NewCellResolver(roots map[CellName]ProjectRelPath, rootCell CellName) (*CellResolver, error) {
	if len(roots) == 0 {
		return nil, fmt.Errorf("no cells configured")
	}
	if _, ok := roots[rootCell]; !ok {
		return nil, fmt.Errorf("root cell %q is not configured", rootCell)
	}
	seen := make(map[ProjectRelPath]CellName, len(roots))
	copied := make(map[CellName]ProjectRelPath, len(roots))
	names := make([]CellName, 0, len(roots))
	for name, root := range roots {
		if prev, dup := seen[root]; dup {
			return nil, fmt.Errorf("cells %q and %q share root %q", prev, name, root)
		}
		seen[root] = name
		copied[name] = root
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		a, b := copied[names[i]], copied[names[j]]
		if len(a) != len(b) {
			return len(a) > len(b)
		}
		return names[i] < names[j]
	})
	return &CellResolver{roots: copied, rootCell: rootCell, byDepth: names}, nil
}

// RootCell returns the name of the root cell.
func (r *CellResolver) RootCell() CellName { return r.rootCell }

// CellRoot returns the project-relative root of the named cell.
func (r *CellResolver) CellRoot(name CellName) (ProjectRelPath, error) {
	root, ok := r.roots[name]
	if !ok {
		return "", fmt.Errorf("unknown cell %q", name)
	}
	return root, nil
}

// Cells returns all configured cell names, sorted.
func (r *CellResolver) Cells() []CellName {
	out := make([]CellName, 0, len(r.roots))
	for name := range r.roots {
		out = append(out, name)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Resolve converts a cell-qualified path to a project-relative one.
func (r *CellResolver) Resolve(p CellPath) (ProjectRelPath, error) {
	root, err := r.CellRoot(p.Cell)
	if err != nil {
		return "", err
	}
	return root.JoinRel(p.Path), nil
}

// CellForProjectPath maps a project-relative path back into the innermost
// cell that contains it.
func (r *CellResolver) CellForProjectPath(p ProjectRelPath) (CellPath, error) {
	for _, name := range r.byDepth {
		root := r.roots[name]
		if root == "" {
			return CellPath{Cell: name, Path: CellRelPath(p)}, nil
		}
		if p == root {
			return CellPath{Cell: name, Path: ""}, nil
		}
		if strings.HasPrefix(string(p), string(root)+"/") {
			rel := CellRelPath(strings.TrimPrefix(string(p), string(root)+"/"))
			return CellPath{Cell: name, Path: rel}, nil
		}
	}
	return CellPath{}, fmt.Errorf("path %q is not inside any cell", p)
}

// Equal reports whether two resolvers describe the same cell layout.
func (r *CellResolver) Equal(o *CellResolver) bool {
	if r == o {
		return true
	}
	if r == nil || o == nil {
		return false
	}
	if r.rootCell != o.rootCell || len(r.roots) != len(o.roots) {
		return false
	}
	for name, root := range r.roots {
		if other, ok := o.roots[name]; !ok || other != root {
			return false
		}
	}
	return true
}
