package dice

import (
	"math"
	"sync"
)

const openVersion = math.MaxUint64

// Engine owns the node table and the version counter. All synchronization is
// internal; callers never lock anything themselves.
type Engine struct {
	mu      sync.Mutex
	nodes   map[Key]*node
	version uint64
	// active counts live read transactions per version so value history can
	// be pruned down to what some transaction can still observe.
	active map[uint64]int

	globalsMu sync.RWMutex
	globals   map[string]any
}

// New creates an empty engine at version 0.
func New() *Engine {
	return &Engine{
		nodes:  make(map[Key]*node),
		active: make(map[uint64]int),
	}
}

// entry is a value together with the version range over which it is valid.
// to is inclusive and openVersion while the value is current.
type entry struct {
	value any
	err   error
	from  uint64
	to    uint64
	deps  []depRecord
}

func (e *entry) covers(v uint64) bool { return e.from <= v && v <= e.to }

// depRecord remembers a dependency and the value observed for it, for the
// early-cutoff re-check.
type depRecord struct {
	key   Key
	value any
	err   error
}

// call is a single in-flight computation of (key, version). Concurrent
// requesters wait on done; published is false when the computation was
// cancelled and produced nothing.
type call struct {
	done      chan struct{}
	value     any
	err       error
	published bool
}

type node struct {
	key     Key
	entries []*entry
	// forces records versions at which this key was directly marked changed;
	// a forced key must re-run its compute, early cutoff does not apply.
	forces []uint64
	// dirties records versions at which an invalidation sweep reached this
	// node, so a computation that straddles a commit stores a capped entry.
	dirties   []uint64
	inflight  *call
	inflightV uint64
	rdeps     map[Key]struct{}
}

func (n *node) covering(v uint64) *entry {
	for i := len(n.entries) - 1; i >= 0; i-- {
		if n.entries[i].covers(v) {
			return n.entries[i]
		}
	}
	return nil
}

// latestBefore returns the most recent entry that ended before v.
func (n *node) latestBefore(v uint64) *entry {
	var best *entry
	for _, e := range n.entries {
		if e.to < v && (best == nil || e.to > best.to) {
			best = e
		}
	}
	return best
}

// forcedIn reports whether the key was directly changed in (after, v].
func (n *node) forcedIn(after, v uint64) bool {
	for _, f := range n.forces {
		if f > after && f <= v {
			return true
		}
	}
	return false
}

// firstDirtyAfter returns the earliest sweep version > v, or openVersion.
func (n *node) firstDirtyAfter(v uint64) uint64 {
	first := uint64(openVersion)
	for _, d := range n.dirties {
		if d > v && d < first {
			first = d
		}
	}
	return first
}

func (e *Engine) getNodeLocked(k Key) *node {
	n, ok := e.nodes[k]
	if !ok {
		n = &node{key: k, rdeps: make(map[Key]struct{})}
		e.nodes[k] = n
	}
	return n
}

// Current opens a read transaction pinned at the current version. The caller
// must Close it when done so value history can be reclaimed.
func (e *Engine) Current() *Tx {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.active[e.version]++
	return &Tx{eng: e, version: e.version, root: true}
}

func (e *Engine) release(v uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.active[v]--
	if e.active[v] <= 0 {
		delete(e.active, v)
	}
	e.pruneLocked()
}

// minObservableLocked is the lowest version any live transaction can read.
func (e *Engine) minObservableLocked() uint64 {
	min := e.version
	for v := range e.active {
		if v < min {
			min = v
		}
	}
	return min
}

func (e *Engine) pruneLocked() {
	min := e.minObservableLocked()
	for _, n := range e.nodes {
		// The most recent entry is kept even when no transaction can read it:
		// it is the early-cutoff candidate for the next demand of the key, so
		// the forces after it are kept as well.
		var latest *entry
		for _, en := range n.entries {
			if latest == nil || en.to > latest.to {
				latest = en
			}
		}
		keepForcesFrom := min
		if latest != nil && latest.to < keepForcesFrom {
			keepForcesFrom = latest.to + 1
		}
		kept := n.entries[:0]
		for _, en := range n.entries {
			if en.to == openVersion || en.to >= min || en == latest {
				kept = append(kept, en)
			}
		}
		n.entries = kept
		n.forces = pruneVersions(n.forces, keepForcesFrom)
		n.dirties = pruneVersions(n.dirties, min)
	}
}

func pruneVersions(vs []uint64, min uint64) []uint64 {
	kept := vs[:0]
	for _, v := range vs {
		if v >= min {
			kept = append(kept, v)
		}
	}
	return kept
}

// NodeCount reports how many keys have nodes in the table. Intended for
// tests and diagnostics.
func (e *Engine) NodeCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.nodes)
}

// HasNode reports whether a node exists for k. Intended for tests and
// diagnostics.
func (e *Engine) HasNode(k Key) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.nodes[k]
	return ok
}

// Update opens an update transaction. Invalidations accumulate until Commit,
// which applies them atomically as a single new version.
type Update struct {
	eng       *Engine
	changed   map[Key]struct{}
	committed bool
}

// Update starts collecting invalidations for the next version.
func (e *Engine) Update() *Update {
	return &Update{eng: e, changed: make(map[Key]struct{})}
}

// Changed marks keys as changed starting from the next version.
func (u *Update) Changed(keys ...Key) {
	for _, k := range keys {
		u.changed[k] = struct{}{}
	}
}

// Commit applies all recorded changes, producing a new version, and returns a
// read transaction pinned at it. Subsequent reads see either all of the
// changes or none (transactions opened before Commit keep their snapshot).
func (u *Update) Commit() *Tx {
	e := u.eng
	e.mu.Lock()
	defer e.mu.Unlock()
	if u.committed {
		panic("dice: update committed twice")
	}
	u.committed = true

	next := e.version + 1
	for k := range u.changed {
		n := e.getNodeLocked(k)
		n.forces = append(n.forces, next)
		e.sweepLocked(n, next)
	}
	e.version = next
	e.pruneLocked()
	e.active[next]++
	return &Tx{eng: e, version: next, root: true}
}

// sweepLocked caps the node's current value at sweep-1 and propagates through
// reverse dependencies. Nodes without an open entry were already swept (or
// never computed), so recursion stops there.
func (e *Engine) sweepLocked(n *node, sweep uint64) {
	for i := len(n.dirties) - 1; i >= 0; i-- {
		if n.dirties[i] == sweep {
			return
		}
	}
	capped := false
	for _, en := range n.entries {
		if en.to == openVersion {
			en.to = sweep - 1
			capped = true
		}
	}
	n.dirties = append(n.dirties, sweep)
	if !capped {
		return
	}
	for dep := range n.rdeps {
		if rn, ok := e.nodes[dep]; ok {
			e.sweepLocked(rn, sweep)
		}
	}
}
