// Package procctl is cross-platform process existence, termination, and
// status inspection. Unix sends SIGKILL; Windows calls TerminateProcess. The
// returned handle observes the kill: on Unix the answer is immediate, on
// Windows callers poll with bounded retry.
package procctl

import (
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// Pid is an OS process id.
type Pid int32

// ProcessExists reports whether a process with the given pid is alive.
func ProcessExists(pid Pid) (bool, error) {
	return processExists(pid)
}

// Kill terminates the process. It returns nil when the process was already
// gone, otherwise a handle for observing the termination.
func Kill(pid Pid) (*KilledProcessHandle, error) {
	h, err := kill(pid)
	if err != nil {
		return nil, err
	}
	return h, nil
}

// KilledProcessHandle observes a process after Kill.
type KilledProcessHandle struct {
	impl killedHandleImpl
}

// HasExited reports whether the killed process is gone.
func (h *KilledProcessHandle) HasExited() (bool, error) {
	return h.impl.hasExited()
}

// Status returns a human-readable status of the process, if still
// observable.
func (h *KilledProcessHandle) Status() (string, bool) {
	return h.impl.status()
}

// ProcessCreationTime returns when the process started.
func ProcessCreationTime(pid Pid) (time.Time, error) {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return time.Time{}, fmt.Errorf("process %d: %w", pid, err)
	}
	ms, err := p.CreateTime()
	if err != nil {
		return time.Time{}, fmt.Errorf("creation time of process %d: %w", pid, err)
	}
	return time.UnixMilli(ms), nil
}

// SysinfoStatus returns a textual status snapshot for pid, taken via a fresh
// refresh scoped to that single process. ok is false when the process is not
// observable.
func SysinfoStatus(pid Pid) (string, bool) {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return "", false
	}
	statuses, err := p.Status()
	if err != nil || len(statuses) == 0 {
		return "", false
	}
	name, _ := p.Name()
	return fmt.Sprintf("%s (%s)", name, statuses[0]), true
}
