//go:build windows

package procctl

import (
	"errors"
	"fmt"

	"golang.org/x/sys/windows"
)

func processExists(pid Pid) (bool, error) {
	handle, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, uint32(pid))
	if err != nil {
		if errors.Is(err, windows.ERROR_INVALID_PARAMETER) {
			return false, nil
		}
		if errors.Is(err, windows.ERROR_ACCESS_DENIED) {
			return true, nil
		}
		return false, fmt.Errorf("checking process %d: %w", pid, err)
	}
	defer windows.CloseHandle(handle)

	var code uint32
	if err := windows.GetExitCodeProcess(handle, &code); err != nil {
		return false, fmt.Errorf("checking process %d: %w", pid, err)
	}
	return code == windows.STILL_ACTIVE, nil
}

func kill(pid Pid) (*KilledProcessHandle, error) {
	handle, err := windows.OpenProcess(
		windows.PROCESS_TERMINATE|windows.PROCESS_QUERY_LIMITED_INFORMATION, false, uint32(pid))
	if err != nil {
		if errors.Is(err, windows.ERROR_INVALID_PARAMETER) {
			// Already gone.
			return nil, nil
		}
		return nil, fmt.Errorf("opening process %d: %w", pid, err)
	}
	if err := windows.TerminateProcess(handle, 1); err != nil {
		windows.CloseHandle(handle)
		if errors.Is(err, windows.ERROR_ACCESS_DENIED) {
			// Termination already in progress.
			return &KilledProcessHandle{impl: killedHandleImpl{pid: pid, handle: 0}}, nil
		}
		return nil, fmt.Errorf("terminating process %d: %w", pid, err)
	}
	return &KilledProcessHandle{impl: killedHandleImpl{pid: pid, handle: handle}}, nil
}

type killedHandleImpl struct {
	pid    Pid
	handle windows.Handle
}

// hasExited polls the exit code. TerminateProcess is asynchronous, so callers
// retry with a bound.
func (h killedHandleImpl) hasExited() (bool, error) {
	if h.handle == 0 {
		exists, err := processExists(h.pid)
		return !exists, err
	}
	var code uint32
	if err := windows.GetExitCodeProcess(h.handle, &code); err != nil {
		return false, fmt.Errorf("polling process %d: %w", h.pid, err)
	}
	return code != windows.STILL_ACTIVE, nil
}

func (h killedHandleImpl) status() (string, bool) {
	return SysinfoStatus(h.pid)
}
