// Package cosh contains the shell front end: the interactive loop and the
// non-interactive runners. It wires together configuration, the readline
// terminal, the lexer and parser, front-end builtins and the execution
// engine, and turns SIGINT into cancellation of the line being run.
package cosh

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"

	"github.com/chzyer/readline"

	"Cosh/internal/ast"
	"Cosh/internal/builtin"
	"Cosh/internal/completer"
	"Cosh/internal/config"
	"Cosh/internal/ctxlog"
	"Cosh/internal/executor"
	"Cosh/internal/lexer"
	"Cosh/internal/painter"
	"Cosh/internal/parser"
	"Cosh/internal/prompt"
	"Cosh/internal/streams"
)

const (
	// StatusFailure is reported for a line that hit a fatal engine error.
	StatusFailure = 1
	// StatusSyntax is reported for a line that could not be parsed.
	StatusSyntax = 2
)

var (
	// ErrSyntax is returned for a line that could not be lexed or parsed.
	// Nothing of such a line is run.
	ErrSyntax = errors.New("syntax error")
	// ErrExit is returned when the exit builtin asks the shell to stop.
	ErrExit = errors.New("exit requested")
)

// Shell holds the runtime state shared by the lines it runs: the engine with
// its background jobs, the status of the last line and the cancel function
// of the line currently running.
type Shell struct {
	mu     sync.Mutex         // protects cancel
	cancel context.CancelFunc // cancels the running line, nil between lines
	cfg    *config.Config
	engine *executor.Engine
	stdin  *os.File
	stdout *os.File
	stderr *os.File
	status int
}

// New returns a Shell whose commands inherit stdin, stdout and stderr.
func New(cfg *config.Config, stdin, stdout, stderr *os.File) *Shell {
	if cfg == nil {
		cfg = config.Default()
	}
	return &Shell{
		cfg:    cfg,
		engine: executor.New(),
		stdin:  stdin,
		stdout: stdout,
		stderr: stderr,
	}
}

// Status returns the exit status of the last line run.
func (s *Shell) Status() int {
	return s.status
}

// WaitBackground blocks until every background command has finished.
func (s *Shell) WaitBackground() {
	s.engine.WaitBackground()
}

// Interrupt cancels the line currently running, if any. Its attached
// processes are sent SIGTERM; background jobs are left alone.
func (s *Shell) Interrupt() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()
}

func (s *Shell) running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

func (s *Shell) setCancel(cancel context.CancelFunc) {
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()
}

// RunLine lexes, parses and runs one line and returns its exit status.
// Diagnostics are written to the shell's stderr. The error wraps ErrSyntax
// when nothing was run, is ErrExit when the exit builtin ran, and is the
// engine's fatal error otherwise.
func (s *Shell) RunLine(ctx context.Context, line string) (int, error) {

	cmd, err := s.parse(line)
	if err != nil {
		s.reportErrors(err)
		s.status = StatusSyntax
		return s.status, fmt.Errorf("%w: %w", ErrSyntax, err)
	}

	ctxlog.Debug(ctx, "parsed line", "line", line, "command", cmd.String())

	if single, ok := cmd.(ast.Single); ok {
		if fn, ok := builtin.Lookup(single.Args[0]); ok {
			return s.runBuiltin(ctx, fn, single.Args)
		}
	}

	lineCtx, cancel := context.WithCancel(ctx)
	s.setCancel(cancel)
	defer func() {
		s.setCancel(nil)
		cancel()
	}()

	status, err := s.engine.Run(lineCtx, cmd, streams.Inherit(s.stdin, s.stdout, s.stderr))
	if err != nil {
		s.reportErrors(err)
		s.status = StatusFailure
		return s.status, err
	}

	s.status = status
	return status, nil
}

func (s *Shell) parse(line string) (ast.Command, error) {

	tokens, err := lexer.Lex(line)
	if err != nil {
		return nil, err
	}

	return parser.Parse(tokens)
}

func (s *Shell) runBuiltin(ctx context.Context, fn builtin.Func, args []string) (int, error) {

	env := builtin.Env{
		Stdout:     s.stdout,
		Stderr:     s.stderr,
		Jobs:       s.engine,
		LastStatus: s.status,
	}

	status, err := fn(ctx, env, args)
	s.status = status

	var exit *builtin.ExitRequest
	if errors.As(err, &exit) {
		s.status = exit.Status
		return s.status, ErrExit
	}

	return status, err
}

// RunScript runs r line by line and returns the status of the last line.
// Blank lines and lines starting with "#" are skipped. It stops at the first
// syntax error or fatal error, and at exit.
func (s *Shell) RunScript(ctx context.Context, r io.Reader) (int, error) {

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {

		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		status, err := s.RunLine(ctx, line)
		if errors.Is(err, ErrExit) {
			return status, nil
		}
		if err != nil {
			return status, err
		}

	}

	if err := scanner.Err(); err != nil {
		return StatusFailure, fmt.Errorf("failed to read script: %w", err)
	}

	return s.status, nil
}

// Interactive runs the read-eval loop on the terminal until EOF or exit.
// SIGINT at the prompt discards the line being edited; while a line runs it
// cancels that line.
func (s *Shell) Interactive(ctx context.Context) error {

	comp := completer.New(s.engine)
	paint := painter.New(s.cfg.Prompt)

	terminal, err := readline.NewEx(&readline.Config{
		HistoryFile:     s.cfg.Terminal.HistoryFile,
		HistoryLimit:    s.cfg.Terminal.HistoryLimit,
		InterruptPrompt: s.cfg.Terminal.InterruptPrompt,
		EOFPrompt:       "\n" + s.cfg.Terminal.EOFPrompt,
		AutoComplete:    comp,
		Stdout:          s.stdout,
		Stderr:          s.stderr,
	})
	if err != nil {
		return fmt.Errorf("failed to create new terminal instance: %w", err)
	}
	defer terminal.Close() //nolint:errcheck

	defer s.HandleInterrupts()()

	for {

		comp.Update()
		terminal.SetPrompt(prompt.Update(paint, s.status))

		line, err := terminal.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			} else if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("failed to read line: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if _, err := s.RunLine(ctx, line); errors.Is(err, ErrExit) {
			return nil
		}

	}

}

// HandleInterrupts turns SIGINT into Interrupt until the returned function
// is called. While it is in effect SIGINT no longer terminates the shell.
func (s *Shell) HandleInterrupts() (stop func()) {

	sigCh := make(chan os.Signal, 1)
	stopCh := make(chan struct{})

	signal.Notify(sigCh, os.Interrupt)
	go s.interruptHandler(sigCh, stopCh)

	return func() {
		signal.Stop(sigCh)
		close(stopCh)
	}
}

// interruptHandler forwards signals to Interrupt until stopCh is closed.
func (s *Shell) interruptHandler(sigCh <-chan os.Signal, stopCh <-chan struct{}) {
	for {
		select {
		case <-stopCh:
			return
		case <-sigCh:
			s.Interrupt()
		}
	}
}

// reportErrors writes err to the shell's stderr.
func (s *Shell) reportErrors(err error) {
	if err != nil {
		_, _ = fmt.Fprintf(s.stderr, "cosh: %v\n", err)
	}
}
