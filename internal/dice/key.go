// Package dice implements the incremental computation graph at the core of
// the build engine: a keyed, memoizing, async dependency graph with versioned
// transactions, fine-grained invalidation, cancellation, and equality-based
// change propagation.
//
// Compute functions must be referentially transparent: for a fixed version,
// computing a key any number of times must produce equal values. The engine
// relies on this to evaluate independent keys in any order and to join
// concurrent requests for the same key onto a single execution.
package dice

import (
	"context"
	"errors"
	"fmt"
)

// Key identifies a node in the graph. Implementations must be comparable
// values (they are used as map keys): plain structs of comparable fields,
// cheap to copy.
//
// A key may additionally implement KeyEquality and KeyValidity to customize
// change propagation; without them values are treated as never equal and
// any non-error value as valid.
type Key interface {
	fmt.Stringer

	// Compute produces the value for this key. Dependencies are recorded by
	// resolving them through the supplied transaction. The context carries
	// cancellation; a cancelled compute must return promptly with ctx.Err()
	// and the engine will publish nothing.
	Compute(ctx context.Context, tx *Tx) (any, error)
}

// KeyEquality lets a key declare when two of its values are interchangeable,
// enabling early cutoff in dependents. Only valid values are ever compared.
type KeyEquality interface {
	ValueEqual(x, y any) bool
}

// KeyValidity lets a key mark values that must never be cached and never
// feed early cutoff. Errors are always invalid regardless of this interface.
type KeyValidity interface {
	ValueValid(v any) bool
}

func keyValueEqual(k Key, x, y any) bool {
	if eq, ok := k.(KeyEquality); ok {
		return eq.ValueEqual(x, y)
	}
	return false
}

func keyValueValid(k Key, v any, err error) bool {
	if err != nil {
		return false
	}
	if val, ok := k.(KeyValidity); ok {
		return val.ValueValid(v)
	}
	return true
}

// ErrTransactionClosed reports use of a transaction after Close.
var ErrTransactionClosed = errors.New("dice: transaction is closed")
