package builtin

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Cosh/internal/executor"
)

type fakeJobs []executor.Job

func (f fakeJobs) Jobs() []executor.Job { return f }

func newEnv() (Env, *bytes.Buffer, *bytes.Buffer) {
	var stdout, stderr bytes.Buffer
	return Env{Stdout: &stdout, Stderr: &stderr}, &stdout, &stderr
}

func run(t *testing.T, env Env, args ...string) (int, error) {
	t.Helper()
	fn, ok := Lookup(args[0])
	require.True(t, ok, args[0])
	return fn(context.Background(), env, args)
}

func startSleep(t *testing.T) *exec.Cmd {
	t.Helper()
	if _, err := exec.LookPath("sleep"); err != nil {
		t.Skipf("sleep not available: %v", err)
	}
	cmd := exec.Command("sleep", "30")
	require.NoError(t, cmd.Start())
	t.Cleanup(func() {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	})
	return cmd
}

func TestLookup(t *testing.T) {
	for _, name := range []string{"cd", "cd..", "exit", "jobs", "kill"} {
		_, ok := Lookup(name)
		assert.True(t, ok, name)
	}
	for _, name := range []string{"echo", "pwd", "ps", ""} {
		_, ok := Lookup(name)
		assert.False(t, ok, name)
	}
	assert.Equal(t, []string{"cd", "cd..", "exit", "jobs", "kill"}, Names())
}

func TestChangeDirectory(t *testing.T) {
	start := t.TempDir()
	chdir(t, start)
	require.NoError(t, os.Mkdir(filepath.Join(start, "sub"), 0o755))

	env, _, stderr := newEnv()

	status, err := run(t, env, "cd", "sub")
	require.NoError(t, err)
	assert.Equal(t, 0, status)
	assertCwd(t, filepath.Join(start, "sub"))

	status, err = run(t, env, "cd..")
	require.NoError(t, err)
	assert.Equal(t, 0, status)
	assertCwd(t, start)

	status, err = run(t, env, "cd", "missing")
	require.NoError(t, err)
	assert.Equal(t, 1, status)
	assert.Contains(t, stderr.String(), "cosh: cd: missing: No such file or directory")
	assertCwd(t, start)

	status, err = run(t, env, "cd", "a", "b")
	require.NoError(t, err)
	assert.Equal(t, 1, status)
	assert.Contains(t, stderr.String(), "cd: too many arguments")
}

func TestChangeDirectory_Home(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	chdir(t, t.TempDir())
	require.NoError(t, os.Mkdir(filepath.Join(home, "docs"), 0o755))

	env, _, stderr := newEnv()

	_, err := run(t, env, "cd")
	require.NoError(t, err)
	assertCwd(t, home)

	_, err = run(t, env, "cd", "~/docs")
	require.NoError(t, err)
	assertCwd(t, filepath.Join(home, "docs"))

	// Extra arguments are rejected even after "~".
	status, err := run(t, env, "cd", "~", "extra")
	require.NoError(t, err)
	assert.Equal(t, 1, status)
	assert.Contains(t, stderr.String(), "cd: too many arguments")
	assertCwd(t, filepath.Join(home, "docs"))
}

func assertCwd(t *testing.T, want string) {
	t.Helper()
	got, err := os.Getwd()
	require.NoError(t, err)

	wantReal, err := filepath.EvalSymlinks(want)
	require.NoError(t, err)
	gotReal, err := filepath.EvalSymlinks(got)
	require.NoError(t, err)

	assert.Equal(t, wantReal, gotReal)
}

func TestExit(t *testing.T) {
	tests := []struct {
		name   string
		args   []string
		last   int
		status int
		exits  bool
	}{
		{"last status", []string{"exit"}, 3, 3, true},
		{"explicit", []string{"exit", "7"}, 0, 7, true},
		{"wraps", []string{"exit", "257"}, 0, 1, true},
		{"not a number", []string{"exit", "x"}, 0, StatusUsage, true},
		{"too many", []string{"exit", "1", "2"}, 0, 1, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			env, _, _ := newEnv()
			env.LastStatus = tc.last

			status, err := run(t, env, tc.args...)
			assert.Equal(t, tc.status, status)

			var req *ExitRequest
			if tc.exits {
				require.True(t, errors.As(err, &req))
				assert.Equal(t, tc.status, req.Status)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestJobs(t *testing.T) {
	cmd := startSleep(t)

	// A pid that no longer exists is skipped.
	gone := exec.Command("true")
	if err := gone.Run(); err != nil {
		t.Skipf("true not available: %v", err)
	}

	env, stdout, _ := newEnv()
	env.Jobs = fakeJobs{
		{Pid: cmd.Process.Pid, Args: []string{"sleep", "30"}},
		{Pid: gone.Process.Pid, Args: []string{"true"}},
	}

	status, err := run(t, env, "jobs")
	require.NoError(t, err)
	assert.Equal(t, 0, status)
	assert.Contains(t, stdout.String(), strconv.Itoa(cmd.Process.Pid))
	assert.Contains(t, stdout.String(), "sleep 30")
	assert.NotContains(t, stdout.String(), "true")
}

func TestJobs_NoLister(t *testing.T) {
	env, stdout, _ := newEnv()

	status, err := run(t, env, "jobs")
	require.NoError(t, err)
	assert.Equal(t, 0, status)
	assert.Empty(t, stdout.String())
}

func TestKill(t *testing.T) {
	tests := []struct {
		name   string
		flag   []string
		signal syscall.Signal
	}{
		{"default", nil, syscall.SIGTERM},
		{"number", []string{"-9"}, syscall.SIGKILL},
		{"name", []string{"-INT"}, syscall.SIGINT},
		{"prefixed name", []string{"-SIGHUP"}, syscall.SIGHUP},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cmd := startSleep(t)
			env, _, stderr := newEnv()

			args := append([]string{"kill"}, tc.flag...)
			args = append(args, strconv.Itoa(cmd.Process.Pid))

			status, err := run(t, env, args...)
			require.NoError(t, err)
			assert.Equal(t, 0, status, stderr.String())

			state, _ := cmd.Process.Wait()
			ws, ok := state.Sys().(syscall.WaitStatus)
			require.True(t, ok)
			require.True(t, ws.Signaled())
			assert.Equal(t, tc.signal, ws.Signal())
		})
	}
}

func TestKill_Errors(t *testing.T) {
	tests := []struct {
		name   string
		args   []string
		status int
		msg    string
	}{
		{"no pid", []string{"kill"}, StatusUsage, "kill: usage"},
		{"bad signal", []string{"kill", "-BOGUS", "1"}, 1, "kill: BOGUS: invalid signal specification"},
		{"not a pid", []string{"kill", "abc"}, 1, "kill: abc: arguments must be process IDs"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			env, _, stderr := newEnv()

			status, err := run(t, env, tc.args...)
			require.NoError(t, err)
			assert.Equal(t, tc.status, status)
			assert.Contains(t, stderr.String(), tc.msg)
		})
	}
}
