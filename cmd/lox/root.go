package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/spf13/cobra"
	"github.com/tliron/commonlog"

	lox "github.com/xirelogy/go-lox"
	"github.com/xirelogy/go-lox/internal/config"
)

var log = commonlog.GetLogger("lox.cli")

// Exit codes follow the BSD sysexits convention.
const (
	exitOK       = 0
	exitUsage    = 64
	exitDataErr  = 65
	exitSoftware = 70
	exitIOErr    = 74
)

type usageError struct {
	err error
}

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

type cliOptions struct {
	configPath  string
	trace       bool
	disassemble bool
	gcStress    bool
	verbosity   int
}

// loadConfig reads --config or the nearest lox.toml, then applies flag overrides.
func (o *cliOptions) loadConfig() (*config.Config, error) {
	var cfg *config.Config
	var err error
	if o.configPath != "" {
		cfg, err = config.Load(o.configPath)
	} else {
		var wd string
		if wd, err = os.Getwd(); err == nil {
			cfg, err = config.FindAndLoad(wd)
		}
	}
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = config.Default()
	} else {
		log.Infof("using configuration %s", cfg.Path)
	}

	if o.trace {
		cfg.Debug.Trace = true
	}
	if o.disassemble {
		cfg.Debug.Disassemble = true
	}
	if o.gcStress {
		cfg.GC.Stress = true
	}
	if o.verbosity > cfg.Log.Verbosity {
		cfg.Log.Verbosity = o.verbosity
	}
	commonlog.Configure(cfg.Log.Verbosity, nil)
	return cfg, nil
}

func (o *cliOptions) newInterpreter(cmd *cobra.Command) (*lox.Interpreter, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	return lox.New(lox.Options{
		Config: cfg,
		Stdout: cmd.OutOrStdout(),
		Debug:  cmd.ErrOrStderr(),
	})
}

func newRootCmd() *cobra.Command {
	opts := &cliOptions{}
	root := &cobra.Command{
		Use:           "lox [script]",
		Short:         "Run Lox scripts and bytecode images",
		Long:          "lox compiles Lox source to bytecode and runs it on a garbage-collected VM.\nWith no script it starts an interactive prompt.",
		Args:          maxArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				return runFile(cmd, opts, args[0])
			}
			return runREPL(cmd, opts)
		},
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &usageError{err: err}
	})

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "path to lox.toml (default: search upwards from the working directory)")
	flags.BoolVar(&opts.trace, "trace", false, "print the stack and each instruction as it executes")
	flags.BoolVar(&opts.disassemble, "disassemble", false, "print the bytecode listing before running")
	flags.BoolVar(&opts.gcStress, "gc-stress", false, "collect garbage before every allocation")
	flags.CountVarP(&opts.verbosity, "verbose", "v", "increase log verbosity (repeatable)")

	root.AddCommand(newRunCmd(opts), newCompileCmd(opts), newDisasmCmd(opts))
	return root
}

func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(n)(cmd, args); err != nil {
			return &usageError{err: err}
		}
		return nil
	}
}

func maxArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.MaximumNArgs(n)(cmd, args); err != nil {
			return &usageError{err: err}
		}
		return nil
	}
}

// execute runs the command line and returns the process exit code.
func execute(args []string, stdout, stderr io.Writer) int {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	err := root.Execute()
	if err == nil {
		return exitOK
	}
	fmt.Fprintln(stderr, err)
	return exitCode(err)
}

func exitCode(err error) int {
	var (
		usage   *usageError
		compile *lox.CompileError
		runtime *lox.RuntimeError
		pathErr *fs.PathError
	)
	switch {
	case err == nil:
		return exitOK
	case errors.As(err, &usage):
		return exitUsage
	case errors.As(err, &compile):
		return exitDataErr
	case errors.As(err, &runtime):
		return exitSoftware
	case errors.As(err, &pathErr):
		return exitIOErr
	default:
		return exitSoftware
	}
}
