package deferred

import (
	"fmt"

	"github.com/bunnypak/buck2/internal/target"
)

// ActionKey names the action that produces an artifact: an index into the
// owning analysis's registry, never a pointer.
type ActionKey struct {
	Owner    target.ConfiguredLabel
	Deferred ID
}

func (k ActionKey) String() string {
	return fmt.Sprintf("%s/%v", k.Owner, k.Deferred)
}

// Artifact is a reference to a file the build will produce. It starts
// unbound; binding attaches the producing action exactly once.
type Artifact struct {
	owner target.ConfiguredLabel
	// ShortPath is the stable, human-readable path the artifact claims
	// within the build output tree.
	shortPath string
	action    *ActionKey
}

// NewArtifact declares an artifact with the given short path.
func NewArtifact(owner target.ConfiguredLabel, shortPath string) *Artifact {
	return &Artifact{owner: owner, shortPath: shortPath}
}

// Owner returns the analysis that declared the artifact.
func (a *Artifact) Owner() target.ConfiguredLabel { return a.owner }

// ShortPath returns the declared output-tree path.
func (a *Artifact) ShortPath() string { return a.shortPath }

// Action returns the bound producing action.
func (a *Artifact) Action() (ActionKey, bool) {
	if a.action == nil {
		return ActionKey{}, false
	}
	return *a.action, true
}

func (a *Artifact) String() string {
	return fmt.Sprintf("artifact(%s, %s)", a.owner, a.shortPath)
}

// OutputArtifact is the declare-time view of an artifact: the side that gets
// bound to its producing action.
type OutputArtifact struct {
	artifact *Artifact
}

// AsOutput views the artifact as a bindable output.
func (a *Artifact) AsOutput() *OutputArtifact { return &OutputArtifact{artifact: a} }

// Bind attaches the producing action. Binding twice to a different action is
// an internal error.
func (o *OutputArtifact) Bind(key ActionKey) (*Artifact, error) {
	a := o.artifact
	if a.action != nil {
		if *a.action != key {
			return nil, fmt.Errorf("internal error: artifact %s already bound to %s, cannot rebind to %s", a, *a.action, key)
		}
		return a, nil
	}
	a.action = &key
	return a, nil
}

// Artifact returns the underlying artifact.
func (o *OutputArtifact) Artifact() *Artifact { return o.artifact }
