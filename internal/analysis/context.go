package analysis

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/bunnypak/buck2/internal/deferred"
	"github.com/bunnypak/buck2/internal/target"
)

// promiseRounds bounds the fixed-point loop. A well-formed analysis settles
// in a handful of rounds; hitting the bound means the promise graph is not
// shrinking.
const promiseRounds = 1000

// Actions owns the analysis registry on behalf of rule code. Ownership
// transfers out exactly once through TakeState; any later use is an internal
// error rather than silent reuse of stale state.
type Actions struct {
	state *Registry
}

// NewActions wraps a fresh registry.
func NewActions(owner target.ConfiguredLabel) *Actions {
	return &Actions{state: NewRegistry(owner)}
}

// State returns the live registry.
func (a *Actions) State() (*Registry, error) {
	if a.state == nil {
		return nil, fmt.Errorf("internal error: analysis state already taken")
	}
	return a.state, nil
}

// TakeState consumes the registry. The Actions value is unusable afterwards.
func (a *Actions) TakeState() (*Registry, error) {
	state, err := a.State()
	if err != nil {
		return nil, err
	}
	a.state = nil
	return state, nil
}

// RunPromises drives promise resolution to a fixed point: drain the
// outstanding promises, resolve them in parallel, and loop while resolution
// produced new ones. Afterwards every short-path assertion is checked against
// the now-known artifact.
func (a *Actions) RunPromises(ctx context.Context, description string) error {
	state, err := a.State()
	if err != nil {
		return err
	}
	for round := 0; ; round++ {
		promises := state.TakePromises()
		if len(promises) == 0 {
			break
		}
		if round >= promiseRounds {
			return fmt.Errorf("%w: %s still producing promises after %d rounds", ErrPromisesNotConverged, description, round)
		}
		g, gctx := errgroup.WithContext(ctx)
		for _, p := range promises {
			p := p
			g.Go(func() error { return p.resolve(gctx) })
		}
		if err := g.Wait(); err != nil {
			return err
		}
	}
	return state.checkShortPaths()
}

func (r *Registry) checkShortPaths() error {
	for _, a := range r.assertions {
		v, ok := a.promise.Get()
		if !ok {
			return fmt.Errorf("internal error: short-path assertion on unresolved promise %q", a.promise.Description())
		}
		artifact, ok := v.(*deferred.Artifact)
		if !ok {
			return fmt.Errorf("internal error: promise %q resolved to %T, expected an artifact", a.promise.Description(), v)
		}
		if artifact.ShortPath() != a.shortPath {
			return fmt.Errorf("%w: promised %q, artifact has %q", ErrShortPathAssertion, a.shortPath, artifact.ShortPath())
		}
	}
	return nil
}

// AssertNoPromises is the final-handoff debug invariant.
func (a *Actions) AssertNoPromises() error {
	state, err := a.State()
	if err != nil {
		return err
	}
	if n := state.OutstandingPromises(); n > 0 {
		return fmt.Errorf("%w: %d outstanding", ErrPromisesRemain, n)
	}
	return nil
}

// Context is the scoped bundle a target's analysis consumes. Label is nil
// when analysis runs in a dynamic-output context.
type Context struct {
	Attrs   map[string]any
	Actions *Actions
	Label   *target.ConfiguredProvidersLabel
	Plugins map[string]any
}

// NewContext assembles an analysis context.
func NewContext(owner target.ConfiguredLabel, attrs map[string]any, label *target.ConfiguredProvidersLabel, plugins map[string]any) *Context {
	return &Context{
		Attrs:   attrs,
		Actions: NewActions(owner),
		Label:   label,
		Plugins: plugins,
	}
}
