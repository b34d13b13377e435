package analysis

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bunnypak/buck2/internal/deferred"
	"github.com/bunnypak/buck2/internal/target"
)

func testOwner() target.ConfiguredLabel {
	return target.ConfiguredLabel{
		Label: target.Label{Cell: "root", Package: "pkg", Name: "tgt"},
		Cfg:   target.UnspecifiedConfiguration(),
	}
}

func TestTakeStateIsOneShot(t *testing.T) {
	actions := NewActions(testOwner())

	state, err := actions.TakeState()
	require.NoError(t, err)
	require.NotNil(t, state)

	_, err = actions.TakeState()
	assert.Error(t, err)
	_, err = actions.State()
	assert.Error(t, err)
	assert.Error(t, actions.RunPromises(context.Background(), "after take"))
}

func TestRunPromisesFixedPoint(t *testing.T) {
	actions := NewActions(testOwner())
	state, err := actions.State()
	require.NoError(t, err)

	var resolved atomic.Int32
	// The first promise stages a second one while resolving; the loop must
	// pick it up in the next round.
	state.NewPromise("outer", func(ctx context.Context) (any, error) {
		resolved.Add(1)
		state.NewPromise("inner", func(ctx context.Context) (any, error) {
			resolved.Add(1)
			return "inner-value", nil
		})
		return "outer-value", nil
	})

	require.NoError(t, actions.RunPromises(context.Background(), "test analysis"))
	assert.Equal(t, int32(2), resolved.Load())
	assert.NoError(t, actions.AssertNoPromises())
}

func TestRunPromisesDetectsDivergence(t *testing.T) {
	actions := NewActions(testOwner())
	state, err := actions.State()
	require.NoError(t, err)

	var stage func()
	stage = func() {
		state.NewPromise("again", func(ctx context.Context) (any, error) {
			stage()
			return nil, nil
		})
	}
	stage()

	err = actions.RunPromises(context.Background(), "diverging analysis")
	assert.ErrorIs(t, err, ErrPromisesNotConverged)
}

func TestShortPathAssertionHolds(t *testing.T) {
	owner := testOwner()
	actions := NewActions(owner)
	state, err := actions.State()
	require.NoError(t, err)

	p := state.NewPromise("artifact", func(ctx context.Context) (any, error) {
		return state.DeclareOutput("gen/lib.a"), nil
	})
	state.AssertShortPath(p, "gen/lib.a")

	assert.NoError(t, actions.RunPromises(context.Background(), "test"))
}

func TestShortPathAssertionViolated(t *testing.T) {
	owner := testOwner()
	actions := NewActions(owner)
	state, err := actions.State()
	require.NoError(t, err)

	p := state.NewPromise("artifact", func(ctx context.Context) (any, error) {
		return state.DeclareOutput("gen/other.a"), nil
	})
	state.AssertShortPath(p, "gen/lib.a")

	err = actions.RunPromises(context.Background(), "test")
	assert.ErrorIs(t, err, ErrShortPathAssertion)
}

func TestAssertNoPromisesFailsWhenStaged(t *testing.T) {
	actions := NewActions(testOwner())
	state, err := actions.State()
	require.NoError(t, err)
	state.NewPromise("leftover", func(ctx context.Context) (any, error) { return nil, nil })

	assert.ErrorIs(t, actions.AssertNoPromises(), ErrPromisesRemain)
}

type implStub struct{}

func (implStub) Description() string { return "stub" }

type fetcherStub map[deferred.ID]any

func (f fetcherStub) Get(id deferred.ID) (any, bool, error) {
	v, ok := f[id]
	return v, ok, nil
}

func TestAnalysisEndToEndDynamicBinding(t *testing.T) {
	owner := testOwner()
	ctx := NewContext(owner, map[string]any{"srcs": []string{"a.c"}}, &target.ConfiguredProvidersLabel{
		Label: target.ProvidersLabel{Target: owner.Label},
		Cfg:   owner.Cfg,
	}, nil)

	state, err := ctx.Actions.State()
	require.NoError(t, err)

	out := state.DeclareOutput("gen/out.txt")
	id, bound, err := state.Dynamic.Register(nil, nil, []*deferred.OutputArtifact{out.AsOutput()}, state.Deferred)
	require.NoError(t, err)
	require.Len(t, bound, 1)

	require.NoError(t, ctx.Actions.RunPromises(context.Background(), "end to end"))

	final, err := ctx.Actions.TakeState()
	require.NoError(t, err)
	require.NoError(t, final.EnsureBound(fetcherStub{id: implStub{}}))

	data, err := final.Deferred.Lookup(id)
	require.NoError(t, err)
	lambda := data.(*deferred.DynamicLambda)
	impl, ok := lambda.Impl()
	require.True(t, ok)
	assert.Equal(t, "stub", impl.Description())
}
