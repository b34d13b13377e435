// Package services is the process-wide capability table. Lower layers invoke
// into implementations registered by higher layers at daemon startup, without
// a compile-time dependency on them. The table is populated once and
// read-only afterwards; a missing capability is reported as an error, never a
// panic.
package services

import (
	"fmt"
	"sync"
)

// Capability ids installed by the daemon at startup.
const (
	// CfgConstructorCalculation resolves to a cfgctor calculation
	// implementation.
	CfgConstructorCalculation = "cfg-constructor-calculation"
	// PromisedArtifactResolver resolves promised artifacts at the end of
	// analysis.
	PromisedArtifactResolver = "promised-artifact-resolver"
	// QueryFrontend evaluates query-language expressions.
	QueryFrontend = "query-frontend"
	// RuleAnalysis expands packages and evaluates target providers.
	RuleAnalysis = "rule-analysis"
)

// Table maps capability ids to implementations.
type Table struct {
	mu     sync.RWMutex
	sealed bool
	caps   map[string]any
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{caps: make(map[string]any)}
}

// Register installs impl under id. Registering after Seal or registering an
// id twice is an internal error.
func (t *Table) Register(id string, impl any) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sealed {
		return fmt.Errorf("internal error: capability table sealed, cannot register %q", id)
	}
	if _, dup := t.caps[id]; dup {
		return fmt.Errorf("internal error: capability %q registered twice", id)
	}
	t.caps[id] = impl
	return nil
}

// Seal freezes the table. Called once at the end of startup.
func (t *Table) Seal() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sealed = true
}

// Lookup reads the raw implementation for id.
func (t *Table) Lookup(id string) (any, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	impl, ok := t.caps[id]
	if !ok {
		return nil, fmt.Errorf("capability %q not installed", id)
	}
	return impl, nil
}

// Get reads the implementation for id as type T.
func Get[T any](t *Table, id string) (T, error) {
	var zero T
	impl, err := t.Lookup(id)
	if err != nil {
		return zero, err
	}
	typed, ok := impl.(T)
	if !ok {
		return zero, fmt.Errorf("internal error: capability %q has type %T, wanted %T", id, impl, zero)
	}
	return typed, nil
}

// Default is the process table the daemon populates at startup.
var Default = NewTable()
