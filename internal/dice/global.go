package dice

// Global data is session-scoped state attached to the engine rather than the
// node table: the io provider, project configuration, and similar
// collaborators that computations need but that are not themselves computed.
// Entries are set during engine construction and read-only afterwards; a
// compute observing global data that can change must depend on a key that is
// invalidated alongside it.

// SetGlobal attaches a value under id. Later sets overwrite.
func (e *Engine) SetGlobal(id string, v any) {
	e.globalsMu.Lock()
	defer e.globalsMu.Unlock()
	if e.globals == nil {
		e.globals = make(map[string]any)
	}
	e.globals[id] = v
}

// Global reads a value attached with SetGlobal.
func (e *Engine) Global(id string) (any, bool) {
	e.globalsMu.RLock()
	defer e.globalsMu.RUnlock()
	v, ok := e.globals[id]
	return v, ok
}

// Global reads engine global data from within a computation.
func (tx *Tx) Global(id string) (any, bool) {
	return tx.eng.Global(id)
}
