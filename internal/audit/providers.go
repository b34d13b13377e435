// Package audit implements the audit subcommands over the computation graph.
package audit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/bunnypak/buck2/internal/cellpath"
	"github.com/bunnypak/buck2/internal/dice"
	"github.com/bunnypak/buck2/internal/target"
)

// ErrAtLeastOneFailed aggregates per-target provider failures at the command
// boundary. Per-target diagnostics were already streamed to stderr; error
// metadata beyond the first failure is not preserved here.
var ErrAtLeastOneFailed = errors.New("evaluation of at least one target providers failed")

// Calculation is the rule-analysis collaborator: it expands packages to
// target names and produces provider collections for configured targets. The
// implementation lives above the engine and is installed at startup.
type Calculation interface {
	// PackageTargets lists the target names of a package, for ":" patterns.
	PackageTargets(ctx context.Context, tx *dice.Tx, cell cellpath.CellName, pkg cellpath.CellRelPath) ([]string, error)

	// ConfiguredProviders configures the label and evaluates its providers.
	ConfiguredProviders(ctx context.Context, tx *dice.Tx, label target.ProvidersLabel) (target.ConfiguredProvidersLabel, *target.ProviderCollection, error)
}

// ProvidersFlags selects the output format.
type ProvidersFlags struct {
	Quiet      bool
	List       bool
	PrintDebug bool
}

// providersResult pairs a label with its evaluation outcome.
type providersResult struct {
	label     target.ConfiguredProvidersLabel
	providers *target.ProviderCollection
	err       error
}

// Providers evaluates the providers of every target matched by patterns,
// streaming results in pattern order: successes to stdout, failure
// diagnostics to stderr. It fails with ErrAtLeastOneFailed when any target
// could not be evaluated.
func Providers(
	ctx context.Context,
	tx *dice.Tx,
	calc Calculation,
	patterns []string,
	defaultCell cellpath.CellName,
	flags ProvidersFlags,
	stdout, stderr io.Writer,
) error {
	parsed, err := target.ParsePatterns(patterns, defaultCell)
	if err != nil {
		return err
	}

	var labels []target.ProvidersLabel
	for _, p := range parsed {
		if p.All {
			names, err := calc.PackageTargets(ctx, tx, p.Cell, p.Package)
			if err != nil {
				return err
			}
			for _, name := range names {
				labels = append(labels, target.ProvidersLabel{
					Target: target.Label{Cell: p.Cell, Package: p.Package, Name: name},
				})
			}
			continue
		}
		labels = append(labels, target.ProvidersLabel{
			Target: target.Label{Cell: p.Cell, Package: p.Package, Name: p.Name},
		})
	}

	closures := make([]dice.Closure, len(labels))
	for i, label := range labels {
		label := label
		closures[i] = func(ctx context.Context, tx *dice.Tx) (any, error) {
			configured, providers, err := calc.ConfiguredProviders(ctx, tx, label)
			if configured.Label.Target.Name == "" {
				configured = target.ConfiguredProvidersLabel{Label: label}
			}
			return providersResult{label: configured, providers: providers, err: err}, nil
		}
	}
	handles := tx.ComputeManyClosures(ctx, closures)

	var firstErr error
	failed := 0
	for _, h := range handles {
		v, err := h.Wait(ctx)
		if err != nil {
			return err
		}
		res := v.(providersResult)
		if res.err != nil {
			fmt.Fprintf(stderr, "%s: failed:\n%s", res.label, indent("  ", res.err.Error()+"\n"))
			if firstErr == nil {
				firstErr = res.err
			}
			failed++
			continue
		}
		switch {
		case flags.Quiet:
			fmt.Fprintf(stdout, "%s\n", res.label)
		case flags.List:
			var names strings.Builder
			for _, name := range res.providers.ProviderNames() {
				fmt.Fprintf(&names, "- %s\n", name)
			}
			fmt.Fprintf(stdout, "%s:\n%s", res.label, indent("  ", names.String()))
		case flags.PrintDebug:
			fmt.Fprintf(stdout, "%s:\n%s", res.label, indent("  ", res.providers.DebugRender()))
		default:
			fmt.Fprintf(stdout, "%s:\n%s", res.label, indent("  ", res.providers.Render()))
		}
	}

	if failed > 0 {
		return fmt.Errorf("%w: first failure: %v (%d of %d targets failed)", ErrAtLeastOneFailed, firstErr, failed, len(labels))
	}
	return nil
}

// indent prefixes every non-empty line of s.
func indent(prefix, s string) string {
	if s == "" {
		return s
	}
	lines := strings.Split(strings.TrimSuffix(s, "\n"), "\n")
	var b strings.Builder
	for _, line := range lines {
		if line != "" {
			b.WriteString(prefix)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}
