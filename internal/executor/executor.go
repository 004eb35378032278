// Package executor runs command trees as OS processes. Execute walks the tree,
// wires each subtree's streams (pipes, redirection files, inherited
// descriptors), starts the processes and returns a Completion that resolves
// to the exit status of the whole expression.
//
// Launch and redirection failures only affect the subtree that hit them: a
// diagnostic is written to that subtree's error channel and it completes with
// a nonzero status. Only a failure to create a process at all is returned as
// an error from Completion.Wait.
package executor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/hashicorp/go-multierror"

	"Cosh/internal/ast"
	"Cosh/internal/ctxlog"
	"Cosh/internal/external"
	"Cosh/internal/streams"
)

const (
	// StatusSuccess is the status of a command that succeeded, including Nil.
	StatusSuccess = 0
	// StatusFailure is reported for redirection and pipe failures.
	StatusFailure = 1
	// StatusFatal accompanies a fatal error from Completion.Wait.
	StatusFatal = -1

	diagnosticPrefix = "cosh: "
)

// Job is a detached process still running in the background.
type Job struct {
	Pid  int
	Args []string
}

// Engine executes command trees and keeps track of the background processes
// they leave running.
type Engine struct {
	mu         sync.Mutex                // protects jobs
	jobs       map[int]*external.Process // detached processes not yet reaped
	background sync.WaitGroup            // one per command started by Fork
}

// New returns an Engine with no background jobs.
func New() *Engine {
	return &Engine{jobs: make(map[int]*external.Process)}
}

// Run executes cmd with set and waits for its exit status.
func (e *Engine) Run(ctx context.Context, cmd ast.Command, set streams.StreamSet) (int, error) {
	return e.Execute(ctx, cmd, set).Wait()
}

// Execute starts cmd with set and returns its completion. It takes ownership
// of set. Cancelling ctx terminates the attached processes of this execution
// that are still running; background commands are not affected and keep
// running to the end.
func (e *Engine) Execute(ctx context.Context, cmd ast.Command, set streams.StreamSet) *Completion {
	return e.execute(ctx, cmd, set, true)
}

func (e *Engine) execute(ctx context.Context, cmd ast.Command, set streams.StreamSet, attached bool) *Completion {

	switch c := cmd.(type) {
	case ast.Single:
		return e.single(ctx, c, set, attached)
	case ast.BinaryExpr:
		return e.binary(ctx, c, set, attached)
	case ast.FileInput:
		return e.fileInput(ctx, c, set, attached)
	case ast.FileOutput:
		return e.fileOutput(ctx, c, set, attached)
	default:
		release(ctx, set)
		return resolved(StatusSuccess, nil)
	}

}

// single starts one process. The parent's references to the set are dropped
// as soon as the child has its own copies of the descriptors.
func (e *Engine) single(ctx context.Context, cmd ast.Single, set streams.StreamSet, attached bool) *Completion {

	defer release(ctx, set)

	proc, err := external.Start(ctx, cmd.Args, set, attached)
	if err != nil {
		var launchErr *external.LaunchError
		if errors.As(err, &launchErr) {
			report(ctx, set, launchErr)
			return resolved(launchErr.Status, nil)
		}
		ctxlog.Error(ctx, "failed to create process", "args", cmd.Args, "error", err)
		return resolved(StatusFatal, err)
	}

	if !attached {
		e.track(proc)
	}

	return async(func() (int, error) {

		// Discarding the handle on cancellation signals the process if it is
		// still attached; after Wait returns it is a no-op.
		stop := context.AfterFunc(ctx, func() { _ = proc.Close() })
		defer stop()
		defer proc.Close() //nolint:errcheck

		status, err := proc.Wait()
		if !attached {
			e.untrack(proc)
		}

		ctxlog.Debug(ctx, "process exited", "pid", proc.Pid(), "status", status)

		if err != nil {
			return StatusFatal, err
		}
		return status, nil
	})
}

func (e *Engine) binary(ctx context.Context, cmd ast.BinaryExpr, set streams.StreamSet, attached bool) *Completion {

	ctxlog.Debug(ctx, "executing", "op", cmd.Op.String(), "command", cmd.String())

	switch cmd.Op {
	case ast.Fork:
		return e.fork(ctx, cmd, set, attached)
	case ast.Pipe:
		return e.pipe(ctx, cmd, set, attached)
	case ast.LogAnd:
		return e.gated(ctx, cmd, set, attached, func(status int) bool { return status == StatusSuccess })
	case ast.LogOr:
		return e.gated(ctx, cmd, set, attached, func(status int) bool { return status != StatusSuccess })
	default:
		return e.gated(ctx, cmd, set, attached, func(int) bool { return true })
	}

}

// gated runs First to completion, then runs Second only if proceed accepts
// First's status and the execution has not been cancelled. Seq always
// proceeds. The result is Second's status, or First's when Second is skipped.
func (e *Engine) gated(ctx context.Context, cmd ast.BinaryExpr, set streams.StreamSet, attached bool, proceed func(int) bool) *Completion {
	return async(func() (int, error) {

		status, err := e.execute(ctx, cmd.First, set.Clone(), attached).Wait()
		if err != nil || ctx.Err() != nil || !proceed(status) {
			release(ctx, set)
			if err == nil {
				ctxlog.Debug(ctx, "not running second command", "op", cmd.Op.String(), "status", status)
			}
			return status, err
		}

		return e.execute(ctx, cmd.Second, set, attached).Wait()
	})
}

// fork launches First detached in the background and returns Second's
// completion without waiting for First. First outlives the execution that
// started it, so it runs without ctx's cancellation.
func (e *Engine) fork(ctx context.Context, cmd ast.BinaryExpr, set streams.StreamSet, attached bool) *Completion {

	left, right := set.SplitForFork()

	job := e.execute(context.WithoutCancel(ctx), cmd.First, left, false)
	e.background.Add(1)
	go func() {
		defer e.background.Done()
		if _, err := job.Wait(); err != nil {
			ctxlog.Warn(ctx, "background command failed", "command", cmd.First.String(), "error", err)
		}
	}()

	return e.execute(ctx, cmd.Second, right, attached)
}

// pipe connects First's output to Second's input. Both sides are started
// before either is waited on. The status is Second's.
func (e *Engine) pipe(ctx context.Context, cmd ast.BinaryExpr, set streams.StreamSet, attached bool) *Completion {

	left, right, err := set.SplitForPipe()
	if err != nil {
		report(ctx, set, err)
		release(ctx, set)
		return resolved(StatusFailure, nil)
	}

	first := e.execute(ctx, cmd.First, left, attached)
	second := e.execute(ctx, cmd.Second, right, attached)

	return async(func() (int, error) {

		var result *multierror.Error

		_, firstErr := first.Wait()
		if firstErr != nil {
			result = multierror.Append(result, firstErr)
		}

		status, secondErr := second.Wait()
		if secondErr != nil {
			result = multierror.Append(result, secondErr)
		}

		if err := result.ErrorOrNil(); err != nil {
			return StatusFatal, err
		}
		return status, nil
	})
}

func (e *Engine) fileInput(ctx context.Context, cmd ast.FileInput, set streams.StreamSet, attached bool) *Completion {

	f, err := os.Open(cmd.Src)
	if err != nil {
		report(ctx, set, err)
		release(ctx, set)
		return resolved(StatusFailure, nil)
	}

	return e.execute(ctx, cmd.Dst, set.WithInput(f), attached)
}

func (e *Engine) fileOutput(ctx context.Context, cmd ast.FileOutput, set streams.StreamSet, attached bool) *Completion {

	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if cmd.Append {
		flags = os.O_WRONLY | os.O_CREATE | os.O_APPEND
	}

	f, err := os.OpenFile(cmd.Dst, flags, 0o666)
	if err != nil {
		report(ctx, set, err)
		release(ctx, set)
		return resolved(StatusFailure, nil)
	}

	return e.execute(ctx, cmd.Src, set.WithOutput(f), attached)
}

// Jobs returns the detached processes that are still running.
func (e *Engine) Jobs() []Job {

	e.mu.Lock()
	defer e.mu.Unlock()

	jobs := make([]Job, 0, len(e.jobs))
	for pid, proc := range e.jobs {
		jobs = append(jobs, Job{Pid: pid, Args: proc.Args()})
	}

	return jobs
}

// WaitBackground blocks until every background command has finished.
func (e *Engine) WaitBackground() {
	e.background.Wait()
}

func (e *Engine) track(proc *external.Process) {
	e.mu.Lock()
	e.jobs[proc.Pid()] = proc
	e.mu.Unlock()
}

func (e *Engine) untrack(proc *external.Process) {
	e.mu.Lock()
	delete(e.jobs, proc.Pid())
	e.mu.Unlock()
}

// report writes a diagnostic to the subtree's error channel.
func report(ctx context.Context, set streams.StreamSet, err error) {
	ctxlog.Debug(ctx, "command failed", "error", err)
	if _, writeErr := fmt.Fprintf(set.Stderr(), "%s%v\n", diagnosticPrefix, err); writeErr != nil {
		ctxlog.Warn(ctx, "failed to write diagnostic", "error", writeErr)
	}
}

func release(ctx context.Context, set streams.StreamSet) {
	if err := set.Release(); err != nil {
		ctxlog.Warn(ctx, "failed to close descriptors", "error", err)
	}
}
