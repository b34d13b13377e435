// Package deferred owns all postponed work produced during analysis: actions,
// dynamic lambdas, and the artifacts they bind. The registry is an arena and
// the sole owner of every entry; everything else refers to entries by id, so
// reference cycles between artifacts and actions cannot form.
package deferred

import (
	"errors"
	"fmt"

	"github.com/bunnypak/buck2/internal/target"
)

// ErrMissingEntry reports a lookup of an id the registry has no entry for.
// This is an internal error: the engine produced an id it never registered.
var ErrMissingEntry = errors.New("internal error: missing deferred entry")

// ErrNotBound reports a lookup of an entry that was reserved but never bound.
var ErrNotBound = errors.New("internal error: deferred entry was never bound")

// ID identifies an entry within one registry. Ids are dense indices assigned
// in registration order.
type ID uint32

func (id ID) String() string { return fmt.Sprintf("deferred(%d)", id) }

// Data is the payload of a deferred entry.
type Data interface {
	DeferredDescription() string
}

type slotState uint8

const (
	slotReserved slotState = iota
	slotBound
)

type slot struct {
	state slotState
	data  Data
}

// Registry is the per-analysis arena of deferred entries.
type Registry struct {
	owner target.ConfiguredLabel
	slots []slot
}

// NewRegistry creates an empty registry owned by the given analysis.
func NewRegistry(owner target.ConfiguredLabel) *Registry {
	return &Registry{owner: owner}
}

// Owner returns the analysis this registry belongs to.
func (r *Registry) Owner() target.ConfiguredLabel { return r.owner }

// Reservation is a stable id handed out before its data exists. It must be
// bound exactly once.
type Reservation struct {
	id    ID
	bound bool
}

// ID returns the reserved id.
func (res *Reservation) ID() ID { return res.id }

// Reserve allocates an id whose data will be provided later.
func (r *Registry) Reserve() *Reservation {
	id := ID(len(r.slots))
	r.slots = append(r.slots, slot{state: slotReserved})
	return &Reservation{id: id}
}

// Defer registers data immediately and returns its id.
func (r *Registry) Defer(data Data) ID {
	id := ID(len(r.slots))
	r.slots = append(r.slots, slot{state: slotBound, data: data})
	return id
}

// Bind commits a reservation with its data.
func (r *Registry) Bind(res *Reservation, data Data) error {
	if res.bound {
		return fmt.Errorf("internal error: reservation %v bound twice", res.id)
	}
	s := &r.slots[res.id]
	if s.state != slotReserved {
		return fmt.Errorf("internal error: slot %v is not reserved", res.id)
	}
	res.bound = true
	s.state = slotBound
	s.data = data
	return nil
}

// Lookup resolves an id to its bound data.
func (r *Registry) Lookup(id ID) (Data, error) {
	if int(id) >= len(r.slots) {
		return nil, fmt.Errorf("%w: %v", ErrMissingEntry, id)
	}
	s := r.slots[id]
	if s.state != slotBound {
		return nil, fmt.Errorf("%w: %v", ErrNotBound, id)
	}
	return s.data, nil
}

// Len returns the number of allocated entries.
func (r *Registry) Len() int { return len(r.slots) }
