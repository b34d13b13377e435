//go:build unix

package procctl

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/shirou/gopsutil/v4/process"
)

func processExists(pid Pid) (bool, error) {
	err := unix.Kill(int(pid), 0)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, unix.ESRCH):
		return false, nil
	case errors.Is(err, unix.EPERM):
		// The process exists but belongs to someone else.
		return true, nil
	default:
		return false, fmt.Errorf("checking process %d: %w", pid, err)
	}
}

func kill(pid Pid) (*KilledProcessHandle, error) {
	err := unix.Kill(int(pid), unix.SIGKILL)
	switch {
	case err == nil:
		return &KilledProcessHandle{impl: killedHandleImpl{pid: pid}}, nil
	case errors.Is(err, unix.ESRCH):
		return nil, nil
	default:
		return nil, fmt.Errorf("killing process %d: %w", pid, err)
	}
}

type killedHandleImpl struct {
	pid Pid
}

// hasExited is immediate on Unix: SIGKILL cannot be caught, so once the pid
// stops existing (or only a zombie remains) the process is done.
func (h killedHandleImpl) hasExited() (bool, error) {
	exists, err := processExists(h.pid)
	if err != nil {
		return false, err
	}
	if !exists {
		return true, nil
	}
	// A zombie still occupies the pid until reaped; treat it as exited.
	p, err := process.NewProcess(int32(h.pid))
	if err != nil {
		return true, nil
	}
	statuses, err := p.Status()
	if err != nil {
		return true, nil
	}
	for _, s := range statuses {
		if s == process.Zombie {
			return true, nil
		}
	}
	return false, nil
}

func (h killedHandleImpl) status() (string, bool) {
	return SysinfoStatus(h.pid)
}
