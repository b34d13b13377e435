// Package project loads the repository configuration: cell layout, ignore
// patterns, and the standard output locations.
package project

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/bunnypak/buck2/internal/cellpath"
	"github.com/bunnypak/buck2/internal/daemondir"
	"github.com/bunnypak/buck2/internal/fileops"
)

// ConfigFileName sits at the project root.
const ConfigFileName = "buckconfig.yaml"

// buckOutName is the output tree directory under the project root.
const buckOutName = "buck-out"

// configFile is the on-disk configuration shape.
type configFile struct {
	RootCell string              `yaml:"root_cell"`
	Cells    map[string]string   `yaml:"cells"`
	Ignores  map[string][]string `yaml:"ignores"`
}

// Project is the loaded configuration of one repository.
type Project struct {
	Root    string
	Cells   *cellpath.CellResolver
	Ignores *fileops.CellIgnores
}

// Load reads the project configuration from root. A missing config file
// yields a single-cell project.
func Load(root string) (*Project, error) {
	cfg := configFile{}
	data, err := os.ReadFile(filepath.Join(root, ConfigFileName))
	switch {
	case os.IsNotExist(err):
		cfg.RootCell = "root"
		cfg.Cells = map[string]string{"root": ""}
	case err != nil:
		return nil, fmt.Errorf("reading %s: %w", ConfigFileName, err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", ConfigFileName, err)
		}
	}

	if cfg.RootCell == "" {
		return nil, fmt.Errorf("%s: root_cell is required", ConfigFileName)
	}
	roots := make(map[cellpath.CellName]cellpath.ProjectRelPath, len(cfg.Cells))
	for name, rel := range cfg.Cells {
		p, err := cellpath.NewProjectRelPath(rel)
		if err != nil {
			return nil, fmt.Errorf("%s: cell %q: %w", ConfigFileName, name, err)
		}
		roots[cellpath.CellName(name)] = p
	}
	cells, err := cellpath.NewCellResolver(roots, cellpath.CellName(cfg.RootCell))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", ConfigFileName, err)
	}

	byCell := make(map[cellpath.CellName]*fileops.IgnoreSet, len(cfg.Ignores))
	for name, patterns := range cfg.Ignores {
		set, err := fileops.NewIgnoreSet(patterns)
		if err != nil {
			return nil, fmt.Errorf("%s: ignores for cell %q: %w", ConfigFileName, name, err)
		}
		byCell[cellpath.CellName(name)] = set
	}

	return &Project{
		Root:    root,
		Cells:   cells,
		Ignores: fileops.NewCellIgnores(byCell),
	}, nil
}

// BuckOut returns the absolute output tree path.
func (p *Project) BuckOut() string {
	return filepath.Join(p.Root, buckOutName)
}

// DaemonDir returns the daemon directory for this repository, resolved
// against the given absolute base path (e.g. ~/.buckd).
func (p *Project) DaemonDir(base string) daemondir.DaemonDir {
	repo := filepath.ToSlash(p.Root)
	mangled := ""
	for _, r := range repo {
		if r == '/' || r == ':' {
			mangled += ","
		} else {
			mangled += string(r)
		}
	}
	return daemondir.DaemonDir{Path: filepath.Join(base, mangled)}
}
