// Package daemondir models the per-repository daemon directory and the
// lifecycle lock that serializes mutating operations against a running
// daemon.
package daemondir

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
)

// File names inside the daemon directory. Fixed by protocol.
const (
	InfoFileName   = "buckd.info"
	StdoutFileName = "buckd.stdout"
	StderrFileName = "buckd.stderr"
	PidFileName    = "buckd.pid"
	lockFileName   = "lifecycle.lock"
)

// DaemonDir is the daemon state directory for one repository, resolved
// against an absolute base path supplied by the client.
type DaemonDir struct {
	Path string
}

func (d DaemonDir) String() string { return d.Path }

// Info is the path to buckd.info.
func (d DaemonDir) Info() string { return filepath.Join(d.Path, InfoFileName) }

// Stdout is the path to buckd.stdout.
func (d DaemonDir) Stdout() string { return filepath.Join(d.Path, StdoutFileName) }

// Stderr is the path to buckd.stderr.
func (d DaemonDir) Stderr() string { return filepath.Join(d.Path, StderrFileName) }

// PidFile is the path to buckd.pid.
func (d DaemonDir) PidFile() string { return filepath.Join(d.Path, PidFileName) }

// Exists reports whether the directory is present on disk.
func (d DaemonDir) Exists() bool {
	info, err := os.Stat(d.Path)
	return err == nil && info.IsDir()
}

// DaemonInfo is the content of buckd.info.
type DaemonInfo struct {
	Pid       int    `json:"pid"`
	SessionID string `json:"session_id"`
}

// WriteInfo persists the daemon's pid with a fresh session id.
func (d DaemonDir) WriteInfo(pid int) (DaemonInfo, error) {
	info := DaemonInfo{Pid: pid, SessionID: uuid.NewString()}
	data, err := json.Marshal(info)
	if err != nil {
		return DaemonInfo{}, err
	}
	if err := os.WriteFile(d.Info(), data, 0o644); err != nil {
		return DaemonInfo{}, fmt.Errorf("writing %s: %w", d.Info(), err)
	}
	return info, nil
}

// ReadInfo loads buckd.info, reporting ok=false when absent.
func (d DaemonDir) ReadInfo() (DaemonInfo, bool, error) {
	data, err := os.ReadFile(d.Info())
	if err != nil {
		if os.IsNotExist(err) {
			return DaemonInfo{}, false, nil
		}
		return DaemonInfo{}, false, fmt.Errorf("reading %s: %w", d.Info(), err)
	}
	var info DaemonInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return DaemonInfo{}, false, fmt.Errorf("parsing %s: %w", d.Info(), err)
	}
	return info, true, nil
}

// LifecycleLock guards daemon lifecycle transitions. While held, no daemon
// may start or stop for this repository.
type LifecycleLock struct {
	dir  DaemonDir
	lock *flock.Flock
}

// AcquireLifecycleLock takes the lock, giving up at the context deadline.
func AcquireLifecycleLock(ctx context.Context, dir DaemonDir) (*LifecycleLock, error) {
	if err := os.MkdirAll(dir.Path, 0o755); err != nil {
		return nil, fmt.Errorf("creating daemon dir %s: %w", dir.Path, err)
	}
	lock := flock.New(filepath.Join(dir.Path, lockFileName))
	ok, err := lock.TryLockContext(ctx, 100*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("locking daemon lifecycle for %s: %w", dir.Path, err)
	}
	if !ok {
		return nil, fmt.Errorf("timed out locking daemon lifecycle for %s", dir.Path)
	}
	return &LifecycleLock{dir: dir, lock: lock}, nil
}

// DaemonDir returns the locked directory.
func (l *LifecycleLock) DaemonDir() DaemonDir { return l.dir }

// CleanDaemonDir removes everything in the daemon directory except the lock
// file itself. The lock must still be held.
func (l *LifecycleLock) CleanDaemonDir() error {
	entries, err := os.ReadDir(l.dir.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("listing daemon dir %s: %w", l.dir.Path, err)
	}
	for _, e := range entries {
		if e.Name() == lockFileName {
			continue
		}
		if err := os.RemoveAll(filepath.Join(l.dir.Path, e.Name())); err != nil {
			return fmt.Errorf("removing %s: %w", e.Name(), err)
		}
	}
	return nil
}

// Release drops the lock.
func (l *LifecycleLock) Release() error {
	return l.lock.Unlock()
}
