// Package builtin implements the commands the shell runs itself instead of
// starting a process: cd, exit, jobs and kill. They only make sense when they
// affect the shell, so the shell honours them only when a whole line is one
// simple command; anywhere else the names are run as ordinary programs.
package builtin

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"syscall"

	ps "github.com/mitchellh/go-ps"

	"Cosh/internal/ctxlog"
	"Cosh/internal/executor"
)

// StatusUsage is returned for malformed builtin arguments.
const StatusUsage = 2

// ExitRequest is returned by exit. The shell should stop with Status.
type ExitRequest struct {
	Status int
}

func (e *ExitRequest) Error() string {
	return fmt.Sprintf("exit %d", e.Status)
}

// JobLister reports the shell's background processes.
type JobLister interface {
	Jobs() []executor.Job
}

// Env is what a builtin may see of the shell.
type Env struct {
	Stdout     io.Writer
	Stderr     io.Writer
	Jobs       JobLister
	LastStatus int
}

// Func runs a builtin with its full argument vector and returns its exit
// status. The error is non-nil only for an *ExitRequest.
type Func func(ctx context.Context, env Env, args []string) (int, error)

var builtins = map[string]Func{
	"cd":   changeDirectory,
	"cd..": changeDirectory,
	"exit": exit,
	"jobs": jobs,
	"kill": kill,
}

// Lookup returns the builtin called name.
func Lookup(name string) (Func, bool) {
	fn, ok := builtins[name]
	return fn, ok
}

// Names returns the builtin names in sorted order.
func Names() []string {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// fail writes a diagnostic for a builtin and returns status.
func fail(env Env, status int, format string, args ...any) (int, error) {
	_, _ = fmt.Fprintf(env.Stderr, "cosh: "+format+"\n", args...)
	return status, nil
}

// changeDirectory changes the shell's working directory. Without an argument,
// or with "~", it goes to $HOME; "cd.." is accepted as "cd ..".
func changeDirectory(ctx context.Context, env Env, args []string) (int, error) {

	var dir string

	switch {
	case len(args) > 2:
		return fail(env, 1, "cd: too many arguments")
	case len(args) == 1 && args[0] == "cd..":
		dir = ".."
	case len(args) == 1 || args[1] == "~":
		dir = os.Getenv("HOME")
	default:
		dir = args[1]
	}

	if strings.HasPrefix(dir, "~/") {
		dir = os.Getenv("HOME") + dir[1:]
	}

	if err := os.Chdir(dir); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fail(env, 1, "cd: %s: No such file or directory", dir)
		}
		return fail(env, 1, "cd: %v", err)
	}

	ctxlog.Debug(ctx, "changed directory", "dir", dir)
	return 0, nil
}

// exit asks the shell to stop, with the given status or the last one.
func exit(_ context.Context, env Env, args []string) (int, error) {

	switch len(args) {
	case 1:
		return env.LastStatus, &ExitRequest{Status: env.LastStatus}
	case 2:
		status, err := strconv.Atoi(args[1])
		if err != nil {
			_, _ = fmt.Fprintf(env.Stderr, "cosh: exit: %s: numeric argument required\n", args[1])
			return StatusUsage, &ExitRequest{Status: StatusUsage}
		}
		status &= 0xff
		return status, &ExitRequest{Status: status}
	default:
		return fail(env, 1, "exit: too many arguments")
	}

}

// jobs lists the background processes that are still alive, one per line:
// pid, executable name as the OS reports it, and the command line.
func jobs(_ context.Context, env Env, _ []string) (int, error) {

	if env.Jobs == nil {
		return 0, nil
	}

	list := env.Jobs.Jobs()
	sort.Slice(list, func(i, j int) bool { return list[i].Pid < list[j].Pid })

	for _, job := range list {

		proc, err := ps.FindProcess(job.Pid)
		if err != nil {
			return fail(env, 1, "jobs: %v", err)
		}
		if proc == nil {
			continue
		}

		if _, err := fmt.Fprintf(env.Stdout, "%7d %-12s %s\n", job.Pid, proc.Executable(), strings.Join(job.Args, " ")); err != nil {
			return fail(env, 1, "jobs: write operation failed: %v", err)
		}

	}

	return 0, nil
}

// kill sends a signal, SIGTERM unless given as -NUM or -NAME, to each pid.
func kill(ctx context.Context, env Env, args []string) (int, error) {

	args = args[1:]
	sig := syscall.SIGTERM

	if len(args) > 0 && strings.HasPrefix(args[0], "-") {
		parsed, ok := parseSignal(args[0][1:])
		if !ok {
			return fail(env, 1, "kill: %s: invalid signal specification", args[0][1:])
		}
		sig = parsed
		args = args[1:]
	}

	if len(args) == 0 {
		return fail(env, StatusUsage, "kill: usage: kill [-signum | -sigspec] pid ...")
	}

	status := 0
	for _, arg := range args {

		pid, err := strconv.Atoi(arg)
		if err != nil || pid <= 0 {
			status, _ = fail(env, 1, "kill: %s: arguments must be process IDs", arg)
			continue
		}

		if err := syscall.Kill(pid, sig); err != nil {
			status, _ = fail(env, 1, "kill: (%d) - %v", pid, err)
			continue
		}

		ctxlog.Debug(ctx, "sent signal", "pid", pid, "signal", sig.String())

	}

	return status, nil
}

var signalNames = map[string]syscall.Signal{
	"HUP":  syscall.SIGHUP,
	"INT":  syscall.SIGINT,
	"QUIT": syscall.SIGQUIT,
	"KILL": syscall.SIGKILL,
	"USR1": syscall.SIGUSR1,
	"USR2": syscall.SIGUSR2,
	"TERM": syscall.SIGTERM,
	"CONT": syscall.SIGCONT,
	"STOP": syscall.SIGSTOP,
}

func parseSignal(spec string) (syscall.Signal, bool) {

	if n, err := strconv.Atoi(spec); err == nil {
		return syscall.Signal(n), n > 0 && n < 65
	}

	sig, ok := signalNames[strings.TrimPrefix(strings.ToUpper(spec), "SIG")]
	return sig, ok
}
