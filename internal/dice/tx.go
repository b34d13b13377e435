package dice

import (
	"context"
	"sync"
)

// Tx is a read transaction pinned at a version. Within it every key resolves
// to the unique value valid at that version; re-reading a key returns the
// identical value. Transactions handed to Compute functions additionally
// record every resolved key as a dependency of the computing node.
type Tx struct {
	eng     *Engine
	version uint64
	deps    *depCollector
	root    bool
	closed  bool
	mu      sync.Mutex
}

// Version returns the version this transaction is pinned at.
func (tx *Tx) Version() uint64 { return tx.version }

// Close releases the transaction's pin on its version. Only root
// transactions (from Engine.Current or Update.Commit) need closing.
func (tx *Tx) Close() {
	if !tx.root {
		return
	}
	tx.mu.Lock()
	if tx.closed {
		tx.mu.Unlock()
		return
	}
	tx.closed = true
	tx.mu.Unlock()
	tx.eng.release(tx.version)
}

// depCollector accumulates the dependencies observed by one computation.
type depCollector struct {
	mu      sync.Mutex
	records []depRecord
}

func (c *depCollector) add(r depRecord) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.records = append(c.records, r)
	c.mu.Unlock()
}

func (c *depCollector) take() []depRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.records
	c.records = nil
	return out
}

// Compute returns the memoized value for k at this transaction's version,
// evaluating it on first demand. Concurrent requests for the same key share
// a single execution. The returned error is the computed value's failure;
// failures are always invalid, so they are never memoized and a later demand
// runs the compute again.
func (tx *Tx) Compute(ctx context.Context, k Key) (any, error) {
	value, err := tx.resolve(ctx, k)
	if ctx.Err() != nil && err != nil {
		// Cancellation is not a computed value; do not record it.
		return nil, err
	}
	tx.deps.add(depRecord{key: k, value: value, err: err})
	return value, err
}

func (tx *Tx) resolve(ctx context.Context, k Key) (any, error) {
	if tx.root {
		tx.mu.Lock()
		closed := tx.closed
		tx.mu.Unlock()
		if closed {
			return nil, ErrTransactionClosed
		}
	}
	e := tx.eng
	v := tx.version
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		e.mu.Lock()
		n := e.getNodeLocked(k)
		if en := n.covering(v); en != nil {
			e.mu.Unlock()
			return en.value, en.err
		}
		if n.inflight != nil && n.inflightV == v {
			c := n.inflight
			e.mu.Unlock()
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-c.done:
			}
			if c.published {
				return c.value, c.err
			}
			// The winner was cancelled without publishing; retry.
			continue
		}
		c := &call{done: make(chan struct{})}
		n.inflight = c
		n.inflightV = v
		candidate := n.latestBefore(v)
		forced := candidate != nil && n.forcedIn(candidate.to, v)
		e.mu.Unlock()

		return tx.run(ctx, k, n, c, candidate, forced)
	}
}

// run drives the single execution for (k, version): early cutoff first, then
// the compute function.
func (tx *Tx) run(ctx context.Context, k Key, n *node, c *call, candidate *entry, forced bool) (any, error) {
	e := tx.eng
	v := tx.version

	if candidate != nil && !forced && len(candidate.deps) > 0 {
		if tx.depsUnchanged(ctx, candidate.deps) {
			// All recorded dependencies evaluate equal: promote the previous
			// value to this version without re-running the compute. The gap
			// versions between the candidate and v stay uncovered; a
			// dependency may have briefly held a different value there.
			e.mu.Lock()
			en := &entry{value: candidate.value, err: candidate.err, from: v, to: openVersion, deps: candidate.deps}
			if first := n.firstDirtyAfter(v); first != openVersion {
				en.to = first - 1
			}
			n.entries = append(n.entries, en)
			n.inflight = nil
			c.value, c.err, c.published = en.value, en.err, true
			close(c.done)
			e.mu.Unlock()
			return en.value, en.err
		}
		if err := ctx.Err(); err != nil {
			tx.abandon(n, c)
			return nil, err
		}
	}

	collector := &depCollector{}
	child := &Tx{eng: e, version: v, deps: collector}
	value, err := k.Compute(ctx, child)

	if ctx.Err() != nil && err != nil {
		// Cancelled computations must not poison the cache: publish nothing
		// and let surviving waiters retry.
		tx.abandon(n, c)
		return nil, err
	}

	e.mu.Lock()
	n.inflight = nil
	if keyValueValid(k, value, err) {
		en := &entry{value: value, err: err, from: v, to: openVersion, deps: collector.take()}
		if first := n.firstDirtyAfter(v); first != openVersion {
			en.to = first - 1
		}
		n.entries = append(n.entries, en)
		for _, d := range en.deps {
			e.getNodeLocked(d.key).rdeps[k] = struct{}{}
		}
	}
	c.value, c.err, c.published = value, err, true
	close(c.done)
	e.mu.Unlock()
	return value, err
}

func (tx *Tx) abandon(n *node, c *call) {
	tx.eng.mu.Lock()
	n.inflight = nil
	close(c.done)
	tx.eng.mu.Unlock()
}

// depsUnchanged re-evaluates each recorded dependency and reports whether
// every one produced a value equal to what was recorded. Invalid values never
// satisfy the check.
func (tx *Tx) depsUnchanged(ctx context.Context, deps []depRecord) bool {
	bare := &Tx{eng: tx.eng, version: tx.version}
	for _, d := range deps {
		if d.err != nil {
			return false
		}
		value, err := bare.resolve(ctx, d.key)
		if !keyValueValid(d.key, value, err) {
			return false
		}
		if !keyValueEqual(d.key, d.value, value) {
			return false
		}
	}
	return true
}

// Handle is one pending result of ComputeMany.
type Handle struct {
	done  chan struct{}
	value any
	err   error
}

// Wait blocks until the computation finishes or ctx is cancelled.
func (h *Handle) Wait(ctx context.Context) (any, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-h.done:
		return h.value, h.err
	}
}

// Closure is an async block scheduled by the engine with per-node dependency
// accounting, for work that pairs a computation with its inputs.
type Closure func(ctx context.Context, tx *Tx) (any, error)

// ComputeMany requests all keys concurrently. Handles may be polled in any
// order; the engine guarantees at most one concurrent computation per key
// per version.
func (tx *Tx) ComputeMany(ctx context.Context, keys []Key) []*Handle {
	closures := make([]Closure, len(keys))
	for i, k := range keys {
		k := k
		closures[i] = func(ctx context.Context, t *Tx) (any, error) {
			return t.Compute(ctx, k)
		}
	}
	return tx.ComputeManyClosures(ctx, closures)
}

// ComputeManyClosures schedules each closure on its own task. Dependencies
// the closures resolve are recorded against the calling computation.
func (tx *Tx) ComputeManyClosures(ctx context.Context, closures []Closure) []*Handle {
	handles := make([]*Handle, len(closures))
	for i, f := range closures {
		h := &Handle{done: make(chan struct{})}
		handles[i] = h
		child := &Tx{eng: tx.eng, version: tx.version, deps: tx.deps}
		go func(f Closure) {
			h.value, h.err = f(ctx, child)
			close(h.done)
		}(f)
	}
	return handles
}
