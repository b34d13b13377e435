package deferred

import (
	"errors"
	"fmt"

	"github.com/bunnypak/buck2/internal/target"
)

// ErrMissingImpl reports that ensure_bound found no user implementation for a
// reserved lambda id.
var ErrMissingImpl = errors.New("Key is missing in analysis value fetcher")

// ErrIncorrectType reports an implementation value of the wrong shape.
// Internal error: the value was produced by the engine itself.
var ErrIncorrectType = errors.New("internal error: incorrect type for dynamic lambda implementation")

// LambdaImpl is the user-provided body of a dynamic lambda. It runs after
// analysis, once the lambda's dynamic inputs have materialized.
type LambdaImpl interface {
	Description() string
}

// DynamicLambda is deferred work whose full input set is only known after
// other actions run. Outputs are bound to action keys at registration time,
// before any body exists.
type DynamicLambda struct {
	owner   target.ConfiguredLabel
	dynamic []*Artifact
	inputs  []*Artifact
	outputs []*Artifact
	impl    LambdaImpl
}

// NewDynamicLambda builds an unbound lambda.
func NewDynamicLambda(owner target.ConfiguredLabel, dynamic, inputs, outputs []*Artifact) *DynamicLambda {
	return &DynamicLambda{owner: owner, dynamic: dynamic, inputs: inputs, outputs: outputs}
}

// DeferredDescription implements Data.
func (l *DynamicLambda) DeferredDescription() string {
	return fmt.Sprintf("dynamic lambda of %s (%d outputs)", l.owner, len(l.outputs))
}

// Owner returns the analysis that registered the lambda.
func (l *DynamicLambda) Owner() target.ConfiguredLabel { return l.owner }

// DynamicInputs are the artifacts whose contents the body will inspect.
func (l *DynamicLambda) DynamicInputs() []*Artifact { return l.dynamic }

// Inputs are the statically known input artifacts.
func (l *DynamicLambda) Inputs() []*Artifact { return l.inputs }

// Outputs are the bound output artifacts, in declaration order.
func (l *DynamicLambda) Outputs() []*Artifact { return l.outputs }

// Impl returns the bound body, if any.
func (l *DynamicLambda) Impl() (LambdaImpl, bool) {
	return l.impl, l.impl != nil
}

func (l *DynamicLambda) bindImpl(v any) error {
	impl, ok := v.(LambdaImpl)
	if !ok || impl == nil {
		return fmt.Errorf("%w: got %T", ErrIncorrectType, v)
	}
	l.impl = impl
	return nil
}

// DynamicAction stands in for one output of a dynamic lambda: the action key
// an output artifact binds to before the lambda body is known.
type DynamicAction struct {
	Lambda      ID
	OutputIndex int
}

// DeferredDescription implements Data.
func (a DynamicAction) DeferredDescription() string {
	return fmt.Sprintf("dynamic action %v[%d]", a.Lambda, a.OutputIndex)
}

// ValueFetcher resolves reserved ids to the user-provided implementation
// values collected at the end of analysis.
type ValueFetcher interface {
	Get(id ID) (any, bool, error)
}

// DynamicRegistry is the per-analysis staging area for dynamic lambdas.
type DynamicRegistry struct {
	owner   target.ConfiguredLabel
	pending []pendingLambda
}

type pendingLambda struct {
	reservation *Reservation
	lambda      *DynamicLambda
}

// NewDynamicRegistry creates an empty staging area for the given owner.
func NewDynamicRegistry(owner target.ConfiguredLabel) *DynamicRegistry {
	return &DynamicRegistry{owner: owner}
}

// Register reserves an identity for a lambda, binds each output artifact (in
// declaration order) to a DynamicAction of that identity, and stages the
// lambda for later binding. It returns the lambda's id and the bound base
// artifacts.
func (d *DynamicRegistry) Register(
	dynamic []*Artifact,
	inputs []*Artifact,
	outputs []*OutputArtifact,
	registry *Registry,
) (ID, []*Artifact, error) {
	reserved := registry.Reserve()
	bound := make([]*Artifact, 0, len(outputs))
	for i, output := range outputs {
		actionID := registry.Defer(DynamicAction{Lambda: reserved.ID(), OutputIndex: i})
		artifact, err := output.Bind(ActionKey{Owner: d.owner, Deferred: actionID})
		if err != nil {
			return 0, nil, err
		}
		bound = append(bound, artifact)
	}
	lambda := NewDynamicLambda(d.owner, dynamic, inputs, bound)
	d.pending = append(d.pending, pendingLambda{reservation: reserved, lambda: lambda})
	return reserved.ID(), bound, nil
}

// PendingCount returns the number of staged lambdas.
func (d *DynamicRegistry) PendingCount() int { return len(d.pending) }

// EnsureBound attaches the user implementation to every staged lambda, in
// registration order, and commits each reservation so the registry resolves
// the id to the bound lambda. The registry consumes itself: a second call
// has nothing to bind.
func (d *DynamicRegistry) EnsureBound(registry *Registry, fetcher ValueFetcher) error {
	pending := d.pending
	d.pending = nil
	for _, p := range pending {
		id := p.reservation.ID()
		v, ok, err := fetcher.Get(id)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %v", ErrMissingImpl, id)
		}
		if err := p.lambda.bindImpl(v); err != nil {
			return fmt.Errorf("binding lambda %v: %w", id, err)
		}
		if err := registry.Bind(p.reservation, p.lambda); err != nil {
			return err
		}
	}
	return nil
}
