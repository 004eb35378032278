package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"Cosh/internal/config"
	"Cosh/internal/cosh"
	"Cosh/internal/ctxlog"
)

const statusNotFound = 127

var (
	cfgPath    string
	command    string
	exitStatus int
)

// rootCmd runs a command line, a script, or the interactive shell.
var rootCmd = &cobra.Command{
	Use:   "cosh [flags] [script]",
	Short: "A small command-language shell",
	Long: `cosh runs command lines built from programs, sequencing (;), background
jobs (&), pipes (|), short-circuit logic (&& and ||), parentheses and file
redirection (<, > and >>).

With -c it runs one line, with a script argument it runs the file line by
line, and otherwise it starts an interactive session.`,
	Args:          cobra.MaximumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

// Execute runs the root command and returns the process exit status.
func Execute() int {
	exitStatus = 0
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "cosh: %v\n", err)
		if exitStatus == 0 {
			exitStatus = 1
		}
	}
	return exitStatus
}

func init() {
	flags := rootCmd.Flags()
	flags.StringVarP(&command, "command", "c", "", "run one command line and exit")
	flags.StringVar(&cfgPath, "config", "", "config file (default cosh.* in $HOME/.config/cosh or .)")
	flags.String("log-level", "warn", "log level: debug, info, warn or error")
	flags.String("log-format", "text", "log format: text or json")
}

func run(cmd *cobra.Command, args []string) error {

	cfg, err := config.Load(cfgPath, cmd.Flags())
	if err != nil {
		fmt.Fprintf(os.Stderr, "cosh: %v\n", err)
	}

	ctxlog.LevelVar.Set(ctxlog.ParseLevel(cfg.Log.Level))
	ctx := ctxlog.New(cmd.Context(), ctxlog.NewLogger(os.Stderr, cfg.Log.Format))

	shell := cosh.New(cfg, os.Stdin, os.Stdout, os.Stderr)

	switch {
	case command != "":
		exitStatus = runNonInteractive(ctx, shell, func(ctx context.Context) (int, error) {
			return shell.RunLine(ctx, command)
		})
		return nil

	case len(args) == 1:
		script, err := os.Open(args[0])
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				exitStatus = statusNotFound
			}
			return err
		}
		defer script.Close() //nolint:errcheck

		exitStatus = runNonInteractive(ctx, shell, func(ctx context.Context) (int, error) {
			return shell.RunScript(ctx, script)
		})
		return nil

	default:
		err := shell.Interactive(ctx)
		shell.WaitBackground()
		if err != nil {
			return err
		}
		exitStatus = shell.Status()
		return nil
	}

}

// runNonInteractive runs fn with SIGINT cancelling the running line. The
// shell has already reported any error, so only the status matters here.
// Background commands are driven from this process, so it waits for them
// before returning.
func runNonInteractive(ctx context.Context, shell *cosh.Shell, fn func(context.Context) (int, error)) int {

	defer shell.HandleInterrupts()()

	status, err := fn(ctx)
	if err != nil && !errors.Is(err, cosh.ErrExit) {
		ctxlog.Debug(ctx, "stopped", "status", status, "error", err)
	}

	shell.WaitBackground()

	return status
}
