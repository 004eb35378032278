// Package external starts external programs and owns their lifecycle. Each
// Process wraps exactly one OS process. An attached Process that is discarded
// with Close before it has exited is sent SIGTERM; Detach turns that off for
// good, letting background processes outlive their handle.
package external

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"

	"Cosh/internal/ctxlog"
	"Cosh/internal/streams"
)

const (
	// StatusNotFound is reported when the executable cannot be found.
	StatusNotFound = 127
	// StatusNotExecutable is reported when the executable exists but cannot be run.
	StatusNotExecutable = 126
	// signalBase is added to the signal number of a process killed by a signal.
	signalBase = 128
)

var (
	// ErrForkFailed is returned when no new process could be created at all.
	ErrForkFailed = errors.New("could not create process")
	// ErrAlreadyWaited is returned by a second Wait on the same Process.
	ErrAlreadyWaited = errors.New("process already waited on")
	// ErrEmptyCommand is returned by Start when args is empty.
	ErrEmptyCommand = errors.New("empty command")
)

// LaunchError reports that a program could not be run. It only affects the
// command that triggered it; Status is the exit status to report for it.
type LaunchError struct {
	Name   string
	Status int
	Err    error
}

func (e *LaunchError) Error() string {
	if e.Status == StatusNotFound {
		return fmt.Sprintf("%s: command not found", e.Name)
	}
	return fmt.Sprintf("%s: %v", e.Name, e.Err)
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}

// Process is a handle on one running program.
type Process struct {
	mu       sync.Mutex
	proc     *os.Process
	args     []string
	attached bool
	waited   bool // Wait has been called
	exited   bool // Wait has returned
}

// Start launches args[0] with args as its argument vector and the set's
// channels as its standard streams. A name without a slash is looked up in
// PATH. When attached is false the process is detached and placed in its own
// process group, out of reach of terminal interrupts.
//
// Start does not release set; the caller keeps ownership of it.
func Start(ctx context.Context, args []string, set streams.StreamSet, attached bool) (*Process, error) {

	if len(args) == 0 {
		return nil, ErrEmptyCommand
	}

	path, err := resolve(args[0])
	if err != nil {
		return nil, err
	}

	attr := &os.ProcAttr{Files: set.Files()}
	if !attached {
		attr.Sys = &syscall.SysProcAttr{Setpgid: true}
	}

	proc, err := os.StartProcess(path, args, attr)
	if err != nil {
		return nil, classify(args[0], err)
	}

	ctxlog.Debug(ctx, "process started", "pid", proc.Pid, "args", args, "attached", attached)

	p := &Process{proc: proc, args: append([]string(nil), args...), attached: true}
	if !attached {
		p.Detach()
	}

	return p, nil
}

// resolve finds the executable for name.
func resolve(name string) (string, error) {

	if strings.Contains(name, "/") {
		return name, nil
	}

	path, err := exec.LookPath(name)
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return "", &LaunchError{Name: name, Status: StatusNotFound, Err: err}
		}
		return "", &LaunchError{Name: name, Status: StatusNotExecutable, Err: err}
	}

	return path, nil
}

// classify separates failures to create a process, which are fatal, from
// failures to run the program in it, which only concern this command.
func classify(name string, err error) error {

	var errno syscall.Errno
	if !errors.As(err, &errno) {
		return fmt.Errorf("%w: %s: %w", ErrForkFailed, name, err)
	}

	switch errno {
	case syscall.EAGAIN, syscall.ENOMEM, syscall.ENOSYS:
		return fmt.Errorf("%w: %s: %w", ErrForkFailed, name, err)
	case syscall.ENOENT:
		return &LaunchError{Name: name, Status: StatusNotFound, Err: err}
	default:
		return &LaunchError{Name: name, Status: StatusNotExecutable, Err: errno}
	}
}

// Pid returns the OS process id.
func (p *Process) Pid() int {
	return p.proc.Pid
}

// Args returns the argument vector the process was started with.
func (p *Process) Args() []string {
	return p.args
}

// Attached reports whether Close would still signal the process.
func (p *Process) Attached() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attached
}

// Detach stops Close from signalling the process. It cannot be undone.
func (p *Process) Detach() {
	p.mu.Lock()
	p.attached = false
	p.mu.Unlock()
}

// Wait blocks until the process exits and returns its status: the exit code
// for a normal exit, 128 plus the signal number for a process killed by a
// signal. A Process can be waited on only once.
func (p *Process) Wait() (int, error) {

	p.mu.Lock()
	if p.waited {
		p.mu.Unlock()
		return -1, ErrAlreadyWaited
	}
	p.waited = true
	p.mu.Unlock()

	state, err := p.proc.Wait()

	p.mu.Lock()
	p.exited = true
	p.mu.Unlock()

	if err != nil {
		return -1, fmt.Errorf("wait for %s (pid %d): %w", p.args[0], p.proc.Pid, err)
	}

	return ExitStatus(state), nil
}

// Close discards the handle. An attached process that has not exited yet is
// sent SIGTERM; Close does not wait for it to die. Calling Close more than
// once, or on a detached or exited process, does nothing.
func (p *Process) Close() error {

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.attached || p.exited {
		return nil
	}
	p.attached = false

	if err := p.proc.Signal(syscall.SIGTERM); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("terminate %s (pid %d): %w", p.args[0], p.proc.Pid, err)
	}

	return nil
}

// ExitStatus converts a process state into a shell exit status.
func ExitStatus(state *os.ProcessState) int {
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return signalBase + int(ws.Signal())
	}
	return state.ExitCode()
}
