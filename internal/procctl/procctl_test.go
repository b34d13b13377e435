//go:build unix

package procctl

import (
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startSleeper(t *testing.T) (*exec.Cmd, Pid) {
	t.Helper()
	cmd := exec.Command("sleep", "10000")
	require.NoError(t, cmd.Start())
	return cmd, Pid(cmd.Process.Pid)
}

func TestProcessExistsAndKill(t *testing.T) {
	cmd, pid := startSleeper(t)

	for i := 0; i < 5; i++ {
		exists, err := ProcessExists(pid)
		require.NoError(t, err)
		require.True(t, exists)
	}

	handle, err := Kill(pid)
	require.NoError(t, err)
	require.NotNil(t, handle)

	// Reap the child so the pid does not linger as a zombie forever.
	_ = cmd.Wait()

	deadline := time.Now().Add(20 * time.Second)
	for {
		exited, err := handle.HasExited()
		require.NoError(t, err)
		if exited {
			break
		}
		require.True(t, time.Now().Before(deadline), "timed out waiting for process to die")
		time.Sleep(100 * time.Millisecond)
	}
}

func TestKillMissingProcessReturnsNil(t *testing.T) {
	// Spawn and fully reap a process so its pid is very likely free.
	cmd, pid := startSleeper(t)
	_, err := Kill(pid)
	require.NoError(t, err)
	_ = cmd.Wait()

	deadline := time.Now().Add(5 * time.Second)
	for {
		exists, err := ProcessExists(pid)
		require.NoError(t, err)
		if !exists {
			break
		}
		require.True(t, time.Now().Before(deadline))
		time.Sleep(50 * time.Millisecond)
	}

	handle, err := Kill(pid)
	require.NoError(t, err)
	assert.Nil(t, handle, "killing a dead process yields no handle")
}

func TestProcessCreationTime(t *testing.T) {
	cmd, pid := startSleeper(t)
	defer func() {
		_, _ = Kill(pid)
		_ = cmd.Wait()
	}()

	created, err := ProcessCreationTime(pid)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), created, time.Minute)
}

func TestSysinfoStatus(t *testing.T) {
	cmd, pid := startSleeper(t)
	defer func() {
		_, _ = Kill(pid)
		_ = cmd.Wait()
	}()

	status, ok := SysinfoStatus(pid)
	require.True(t, ok)
	assert.Contains(t, status, "sleep")
}
