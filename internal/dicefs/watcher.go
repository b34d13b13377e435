package dicefs

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/bunnypak/buck2/internal/cellpath"
	"github.com/bunnypak/buck2/internal/dice"
)

// Watcher observes the project tree and feeds batched invalidations into the
// graph. Raw fsnotify events are debounced, translated into FileChangeTracker
// calls, and flushed as a single update transaction per quiet period.
type Watcher struct {
	eng      *dice.Engine
	cells    *cellpath.CellResolver
	root     string
	logger   *zap.Logger
	debounce time.Duration

	// OnCommit, when set, receives the read transaction pinned at each
	// flushed version. The receiver owns closing it.
	OnCommit func(tx *dice.Tx)

	mu      sync.Mutex
	ws      *fsnotify.Watcher
	pending *FileChangeTracker
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewWatcher creates a watcher for the project rooted at root.
func NewWatcher(eng *dice.Engine, root string, cells *cellpath.CellResolver, logger *zap.Logger) (*Watcher, error) {
	ws, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		eng:      eng,
		cells:    cells,
		root:     root,
		logger:   logger,
		debounce: 100 * time.Millisecond,
		ws:       ws,
		pending:  NewFileChangeTracker(),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Start registers the project tree and begins observing. Non-blocking.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	err := filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.ws.Add(path)
		}
		return nil
	})
	if err != nil {
		return err
	}

	go w.loop(ctx)
	return nil
}

// Stop ends observation and waits for the event loop to drain.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()
	close(w.stopCh)
	<-w.doneCh
	_ = w.ws.Close()
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.doneCh)
	var flush <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			w.flush(ctx)
			return
		case event, ok := <-w.ws.Events:
			if !ok {
				return
			}
			w.observe(ctx, event)
			flush = time.After(w.debounce)
		case err, ok := <-w.ws.Errors:
			if !ok {
				return
			}
			w.logger.Warn("filesystem watcher error", zap.Error(err))
		case <-flush:
			flush = nil
			w.flush(ctx)
		}
	}
}

func (w *Watcher) observe(ctx context.Context, event fsnotify.Event) {
	rel, err := filepath.Rel(w.root, event.Name)
	if err != nil || rel == "." {
		return
	}
	project, err := cellpath.NewProjectRelPath(filepath.ToSlash(rel))
	if err != nil {
		return
	}
	cell, err := w.cells.CellForProjectPath(project)
	if err != nil {
		w.logger.Debug("event outside any cell", zap.String("path", string(project)))
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	switch {
	case event.Has(fsnotify.Create):
		info, err := os.Lstat(event.Name)
		if err == nil && info.IsDir() {
			w.pending.DirAdded(cell)
			_ = w.ws.Add(event.Name)
		} else {
			w.pending.FileAdded(cell)
		}
	case event.Has(fsnotify.Write):
		w.pending.FileChanged(cell)
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		// The entry is gone, so its kind cannot be observed anymore; dirty
		// both shapes. Over-dirtying is safe, missing one is not.
		w.pending.FileRemoved(cell)
		w.pending.DirRemoved(cell)
	case event.Has(fsnotify.Chmod):
		w.pending.FileChanged(cell)
	}
}

func (w *Watcher) flush(ctx context.Context) {
	w.mu.Lock()
	tracker := w.pending
	w.pending = NewFileChangeTracker()
	w.mu.Unlock()

	if len(tracker.filesToDirty) == 0 && len(tracker.dirsToDirty) == 0 && len(tracker.pathsToDirty) == 0 {
		return
	}
	up := w.eng.Update()
	tracker.WriteToDice(up)
	tx := up.Commit()
	w.logger.Debug("flushed filesystem changes", zap.Uint64("version", tx.Version()))
	if w.OnCommit != nil {
		w.OnCommit(tx)
	} else {
		tx.Close()
	}
}
