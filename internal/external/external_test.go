package external

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Cosh/internal/streams"
)

func requireBinaries(t *testing.T, names ...string) {
	t.Helper()
	for _, name := range names {
		if _, err := exec.LookPath(name); err != nil {
			t.Skipf("%s not available: %v", name, err)
		}
	}
}

func devNull(t *testing.T) streams.StreamSet {
	t.Helper()
	null, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = null.Close() })
	return streams.Inherit(null, null, null)
}

func TestStart_WiresStreams(t *testing.T) {
	requireBinaries(t, "sh")

	dir := t.TempDir()
	out, err := os.Create(filepath.Join(dir, "out"))
	require.NoError(t, err)
	defer out.Close()
	errOut, err := os.Create(filepath.Join(dir, "err"))
	require.NoError(t, err)
	defer errOut.Close()

	p, err := Start(context.Background(), []string{"sh", "-c", "echo out; echo err >&2; exit 3"},
		streams.Inherit(nil, out, errOut), true)
	require.NoError(t, err)

	status, err := p.Wait()
	require.NoError(t, err)
	assert.Equal(t, 3, status)

	data, err := os.ReadFile(out.Name())
	require.NoError(t, err)
	assert.Equal(t, "out\n", string(data))

	data, err = os.ReadFile(errOut.Name())
	require.NoError(t, err)
	assert.Equal(t, "err\n", string(data))
}

func TestStart_NotFound(t *testing.T) {
	_, err := Start(context.Background(), []string{"cosh-no-such-program"}, devNull(t), true)

	var launchErr *LaunchError
	require.ErrorAs(t, err, &launchErr)
	assert.Equal(t, StatusNotFound, launchErr.Status)
	assert.EqualError(t, err, "cosh-no-such-program: command not found")
	assert.NotErrorIs(t, err, ErrForkFailed)
}

func TestStart_NotFoundByPath(t *testing.T) {
	_, err := Start(context.Background(), []string{"/no/such/dir/program"}, devNull(t), true)

	var launchErr *LaunchError
	require.ErrorAs(t, err, &launchErr)
	assert.Equal(t, StatusNotFound, launchErr.Status)
}

func TestStart_NotExecutable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "script")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"), 0o644))

	_, err := Start(context.Background(), []string{path}, devNull(t), true)

	var launchErr *LaunchError
	require.ErrorAs(t, err, &launchErr)
	assert.Equal(t, StatusNotExecutable, launchErr.Status)
	assert.ErrorIs(t, err, syscall.EACCES)
}

func TestStart_Empty(t *testing.T) {
	_, err := Start(context.Background(), nil, devNull(t), true)
	assert.ErrorIs(t, err, ErrEmptyCommand)
}

func TestWait_OnlyOnce(t *testing.T) {
	requireBinaries(t, "true")

	p, err := Start(context.Background(), []string{"true"}, devNull(t), true)
	require.NoError(t, err)

	status, err := p.Wait()
	require.NoError(t, err)
	assert.Equal(t, 0, status)

	_, err = p.Wait()
	assert.ErrorIs(t, err, ErrAlreadyWaited)
}

func TestClose_TerminatesAttached(t *testing.T) {
	requireBinaries(t, "sleep")

	p, err := Start(context.Background(), []string{"sleep", "30"}, devNull(t), true)
	require.NoError(t, err)
	assert.True(t, p.Attached())

	require.NoError(t, p.Close())
	assert.False(t, p.Attached())
	require.NoError(t, p.Close(), "close is idempotent")

	status, err := p.Wait()
	require.NoError(t, err)
	assert.Equal(t, 128+int(syscall.SIGTERM), status)
}

func TestClose_AfterExitIsNoop(t *testing.T) {
	requireBinaries(t, "true")

	p, err := Start(context.Background(), []string{"true"}, devNull(t), true)
	require.NoError(t, err)

	_, err = p.Wait()
	require.NoError(t, err)
	assert.NoError(t, p.Close())
}

func TestDetach_DisarmsClose(t *testing.T) {
	requireBinaries(t, "sleep")

	p, err := Start(context.Background(), []string{"sleep", "30"}, devNull(t), true)
	require.NoError(t, err)

	p.Detach()
	assert.False(t, p.Attached())
	require.NoError(t, p.Close())

	// Still running: Close did not signal it.
	assert.NoError(t, syscall.Kill(p.Pid(), 0))

	require.NoError(t, syscall.Kill(p.Pid(), syscall.SIGKILL))
	status, err := p.Wait()
	require.NoError(t, err)
	assert.Equal(t, 128+int(syscall.SIGKILL), status)
}

func TestStart_DetachedGetsOwnProcessGroup(t *testing.T) {
	requireBinaries(t, "sleep")

	p, err := Start(context.Background(), []string{"sleep", "30"}, devNull(t), false)
	require.NoError(t, err)
	defer func() {
		_ = syscall.Kill(p.Pid(), syscall.SIGKILL)
		_, _ = p.Wait()
	}()

	assert.False(t, p.Attached())
	assert.Equal(t, []string{"sleep", "30"}, p.Args())

	pgid, err := syscall.Getpgid(p.Pid())
	require.NoError(t, err)
	assert.Equal(t, p.Pid(), pgid)
}

func TestWait_ReturnsWhenProcessExits(t *testing.T) {
	requireBinaries(t, "sleep")

	p, err := Start(context.Background(), []string{"sleep", "0.1"}, devNull(t), true)
	require.NoError(t, err)

	start := time.Now()
	status, err := p.Wait()
	require.NoError(t, err)
	assert.Equal(t, 0, status)
	assert.Less(t, time.Since(start), 5*time.Second)
}
