// Package clean deletes generated files and caches. A full clean also kills
// the daemon and wipes its directory; a stale clean deletes only artifacts
// older than a cutoff and leaves the daemon running.
package clean

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/bunnypak/buck2/internal/daemondir"
	"github.com/bunnypak/buck2/internal/procctl"
)

// lifecycleLockTimeout bounds how long clean waits for exclusive access to
// the daemon.
const lifecycleLockTimeout = 10 * time.Second

// Options selects the clean behavior.
type Options struct {
	DryRun bool
	// KeepSince, when set, switches to a stale clean deleting entries last
	// modified before it.
	KeepSince *time.Time
	// TrackedOnly limits a stale clean to tracked artifact directories.
	TrackedOnly bool
}

// Run executes the clean command against the given buck-out and daemon
// directories, listing removed (or to-be-removed) paths on stderr.
func Run(ctx context.Context, buckOut string, daemon daemondir.DaemonDir, opts Options, stderr io.Writer, logger *zap.Logger) error {
	if opts.KeepSince != nil {
		return cleanStale(ctx, buckOut, *opts.KeepSince, opts.TrackedOnly, opts.DryRun, stderr, logger)
	}
	if opts.DryRun {
		return fullClean(ctx, buckOut, daemon, nil, stderr, logger)
	}

	// Kill the daemon and hold the lifecycle lock across all mutations so no
	// new daemon spins up while directories are being deleted.
	lockCtx, cancel := context.WithTimeout(ctx, lifecycleLockTimeout)
	defer cancel()
	lock, err := daemondir.AcquireLifecycleLock(lockCtx, daemon)
	if err != nil {
		return fmt.Errorf("locking daemon lifecycle: %w", err)
	}
	defer lock.Release()

	if err := killDaemon(daemon, logger); err != nil {
		return err
	}
	return fullClean(ctx, buckOut, daemon, lock, stderr, logger)
}

// killDaemon terminates the daemon recorded in buckd.info, waiting until it
// is observed gone.
func killDaemon(daemon daemondir.DaemonDir, logger *zap.Logger) error {
	info, ok, err := daemon.ReadInfo()
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	handle, err := procctl.Kill(procctl.Pid(info.Pid))
	if err != nil {
		return fmt.Errorf("killing daemon pid %d: %w", info.Pid, err)
	}
	if handle == nil {
		return nil
	}
	logger.Info("killed daemon", zap.Int("pid", info.Pid))
	deadline := time.Now().Add(10 * time.Second)
	for {
		exited, err := handle.HasExited()
		if err != nil {
			return err
		}
		if exited {
			return nil
		}
		if time.Now().After(deadline) {
			status, _ := handle.Status()
			return fmt.Errorf("daemon pid %d did not exit (status: %s)", info.Pid, status)
		}
		time.Sleep(100 * time.Millisecond)
	}
}

// fullClean removes buck-out and the daemon directory contents. A nil lock
// means dry run: nothing is mutated, the doomed paths are only listed.
func fullClean(ctx context.Context, buckOut string, daemon daemondir.DaemonDir, lock *daemondir.LifecycleLock, stderr io.Writer, logger *zap.Logger) error {
	var pathsToClean []string
	if _, err := os.Stat(buckOut); err == nil {
		paths, err := collectPathsToClean(buckOut)
		if err != nil {
			return err
		}
		pathsToClean = paths
		if lock != nil {
			if err := cleanBuckOutWithRetry(ctx, buckOut, logger); err != nil {
				return err
			}
		}
	}

	if daemon.Exists() {
		pathsToClean = append(pathsToClean, daemon.Path)
		if lock != nil {
			if err := lock.CleanDaemonDir(); err != nil {
				return err
			}
		}
	}

	for _, p := range pathsToClean {
		fmt.Fprintln(stderr, p)
	}
	return nil
}

// collectPathsToClean lists the top-level entries of buck-out.
func collectPathsToClean(buckOut string) ([]string, error) {
	entries, err := os.ReadDir(buckOut)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", buckOut, err)
	}
	paths := make([]string, 0, len(entries))
	for _, e := range entries {
		paths = append(paths, filepath.Join(buckOut, e.Name()))
	}
	return paths, nil
}

// cleanBuckOutWithRetry retries the whole walk once. Immediately after a
// daemon kill, deletes on Windows can fail with a sharing violation; a single
// retry absorbs it.
func cleanBuckOutWithRetry(ctx context.Context, buckOut string, logger *zap.Logger) error {
	err := cleanBuckOut(ctx, buckOut)
	if err == nil {
		return nil
	}
	logger.Info("retrying buck-out clean", zap.Error(err))
	return cleanBuckOut(ctx, buckOut)
}

// cleanBuckOut deletes files on a worker pool, then directories bottom-up.
// The buck-out root itself is kept. The pool's first error wins; later
// errors are discarded deliberately, the first is the most actionable.
func cleanBuckOut(ctx context.Context, buckOut string) error {
	var files []string
	var dirs []string
	err := filepath.WalkDir(buckOut, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			dirs = append(dirs, path)
		} else {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("walking %s: %w", buckOut, err)
	}

	g := &errgroup.Group{}
	g.SetLimit(runtime.NumCPU())
	for _, f := range files {
		f := f
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := os.Remove(f); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("removing %s: %w", f, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	// Children sort after their parents, so delete in reverse. The first
	// entry is the buck-out root and stays.
	sort.Strings(dirs)
	for i := len(dirs) - 1; i >= 1; i-- {
		if err := os.Remove(dirs[i]); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing dir %s: %w", dirs[i], err)
		}
	}
	return nil
}
