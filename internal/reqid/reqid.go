// Package reqid correlates everything a single command invocation produces:
// log lines, console events, and trace spans share one random id carried in
// the context.
package reqid

import (
	"context"
	"math/rand"
)

// key is the context key for the invocation ID.
type key struct{}

// NewContext returns a copy of parent with a new random invocation ID stored.
// It also returns the generated ID.
func NewContext(parent context.Context) (context.Context, int64) {
	id := rand.Int63()
	return context.WithValue(parent, key{}, id), id
}

// FromContext extracts the invocation ID from ctx.
// It returns the ID and whether it was present.
func FromContext(ctx context.Context) (int64, bool) {
	v := ctx.Value(key{})
	id, ok := v.(int64)
	return id, ok
}
