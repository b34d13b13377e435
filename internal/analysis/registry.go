// Package analysis holds the per-target analysis state: the registries
// collecting actions and dynamic lambdas, the promises produced while rules
// run, and the context handed to rule implementations.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/bunnypak/buck2/internal/deferred"
	"github.com/bunnypak/buck2/internal/target"
)

// ErrShortPathAssertion reports a promised artifact whose resolved short path
// does not match what the consumer declared. User error.
var ErrShortPathAssertion = errors.New("short-path assertion violated")

// ErrPromisesNotConverged reports a promise graph that kept producing new
// promises without shrinking.
var ErrPromisesNotConverged = errors.New("promise graph did not converge")

// ErrPromisesRemain reports leftover promises at final handoff; a debug
// invariant, not a user-visible state.
var ErrPromisesRemain = errors.New("internal error: unresolved promises at end of analysis")

// Promise is a value produced during analysis whose resolution may itself
// schedule further work.
type Promise struct {
	description string
	run         func(ctx context.Context) (any, error)
	value       any
	resolved    bool
}

// Description returns the promise's display name.
func (p *Promise) Description() string { return p.description }

// Get returns the resolved value.
func (p *Promise) Get() (any, bool) { return p.value, p.resolved }

func (p *Promise) resolve(ctx context.Context) error {
	if p.resolved {
		return nil
	}
	v, err := p.run(ctx)
	if err != nil {
		return fmt.Errorf("resolving promise %q: %w", p.description, err)
	}
	p.value = v
	p.resolved = true
	return nil
}

// shortPathAssertion records a consumer's claim about where a promised
// artifact will land in the output tree.
type shortPathAssertion struct {
	promise   *Promise
	shortPath string
}

// Registry accumulates everything a target's analysis produces. It is
// single-owner: the Actions handle hands it off exactly once.
type Registry struct {
	owner    target.ConfiguredLabel
	Deferred *deferred.Registry
	Dynamic  *deferred.DynamicRegistry

	// mu guards promises and assertions: resolution runs in parallel and may
	// stage new promises concurrently.
	mu         sync.Mutex
	promises   []*Promise
	assertions []shortPathAssertion
}

// NewRegistry creates the analysis state for owner.
func NewRegistry(owner target.ConfiguredLabel) *Registry {
	return &Registry{
		owner:    owner,
		Deferred: deferred.NewRegistry(owner),
		Dynamic:  deferred.NewDynamicRegistry(owner),
	}
}

// Owner returns the configured target being analyzed.
func (r *Registry) Owner() target.ConfiguredLabel { return r.owner }

// DeclareOutput declares a fresh output artifact at shortPath.
func (r *Registry) DeclareOutput(shortPath string) *deferred.Artifact {
	return deferred.NewArtifact(r.owner, shortPath)
}

// NewPromise stages run to be driven by the promise loop.
func (r *Registry) NewPromise(description string, run func(ctx context.Context) (any, error)) *Promise {
	p := &Promise{description: description, run: run}
	r.mu.Lock()
	r.promises = append(r.promises, p)
	r.mu.Unlock()
	return p
}

// AssertShortPath records that the artifact promise must resolve to an
// artifact claiming shortPath.
func (r *Registry) AssertShortPath(p *Promise, shortPath string) {
	r.mu.Lock()
	r.assertions = append(r.assertions, shortPathAssertion{promise: p, shortPath: shortPath})
	r.mu.Unlock()
}

// TakePromises drains the outstanding promises. Promises created during
// resolution land in the next drain.
func (r *Registry) TakePromises() []*Promise {
	r.mu.Lock()
	defer r.mu.Unlock()
	ps := r.promises
	r.promises = nil
	return ps
}

// OutstandingPromises reports how many promises are staged.
func (r *Registry) OutstandingPromises() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.promises)
}

// EnsureBound finalizes the dynamic registry against the fetched analysis
// values.
func (r *Registry) EnsureBound(fetcher deferred.ValueFetcher) error {
	return r.Dynamic.EnsureBound(r.Deferred, fetcher)
}
