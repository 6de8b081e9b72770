package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	flags "github.com/jessevdk/go-flags"

	"github.com/core-tools/hsu-procset/pkg/descriptor"
	"github.com/core-tools/hsu-procset/pkg/errors"
	"github.com/core-tools/hsu-procset/pkg/logging"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitConfig  = 2
)

type globalOptions struct {
	Config    string `short:"c" long:"config" env:"PROCSET_CONFIG" description:"descriptor file; the builtin set is used when empty"`
	LogLevel  string `long:"log-level" env:"PROCSET_LOG_LEVEL" default:"info" choice:"debug" choice:"info" choice:"warn" choice:"error" description:"log level"`
	LogFormat string `long:"log-format" env:"PROCSET_LOG_FORMAT" default:"console" choice:"console" choice:"json" description:"log format"`
	LogOutput string `long:"log-output" default:"stderr" description:"stderr, stdout or a file path"`
}

// app is shared by all commands: parsed global flags, the logger built from
// them and where command output goes.
type app struct {
	opts   globalOptions
	stdout io.Writer
	ctx    context.Context
	logger logging.Logger
}

func logPrefix(module string) string {
	return fmt.Sprintf("module: %s , ", module)
}

// loadSet returns the configured descriptor set and a label for where it came from
func (a *app) loadSet() (*descriptor.Set, string, error) {
	if a.opts.Config == "" {
		return descriptor.LoadBuiltin(), "builtin", nil
	}
	set, err := descriptor.LoadFile(a.opts.Config)
	if err != nil {
		return nil, a.opts.Config, err
	}
	return set, a.opts.Config, nil
}

func newParser(a *app) *flags.Parser {
	parser := flags.NewParser(&a.opts, flags.HelpFlag|flags.PassDoubleDash)
	parser.ShortDescription = "process set descriptor toolkit"
	parser.LongDescription = "Loads a declarative set of long-running processes and hands it to a supervisor."

	mustAddCommand(parser, "validate", "Validate the descriptor", "Loads the descriptor and reports the first problem found.", &validateCommand{app: a})
	mustAddCommand(parser, "list", "List processes", "Prints every process in the set.", &listCommand{app: a})
	mustAddCommand(parser, "render", "Render supervisor configuration", "Translates the set into pm2, supervisord, systemd or runit files.", &renderCommand{app: a})
	mustAddCommand(parser, "exec", "Run one process in the foreground", "Applies the startup delay and readiness gate, then runs the process until it exits.", &execCommand{app: a})
	mustAddCommand(parser, "wait", "Wait for a dependency", "Blocks until the dependency answers or the timeout elapses.", &waitCommand{app: a})
	mustAddCommand(parser, "status", "Show process state from PID files", "Reports whether each process recorded by exec --write-pid is running.", &statusCommand{app: a})
	mustAddCommand(parser, "serve", "Serve the set over HTTP", "Exposes the set read-only; with --watch the descriptor file is followed.", &serveCommand{app: a})
	mustAddCommand(parser, "watch", "Re-render on descriptor changes", "Renders the set and rewrites the output whenever the descriptor file changes.", &watchCommand{app: a})

	// the logger depends on global flags, so it is built once they are parsed
	parser.CommandHandler = func(command flags.Commander, args []string) error {
		if command == nil {
			return nil
		}
		zapLogger, closeOutput, err := logging.NewZapLogger(logging.ZapConfig{
			Level:  a.opts.LogLevel,
			Format: a.opts.LogFormat,
			Output: a.opts.LogOutput,
		})
		if err != nil {
			return errors.NewValidationError("failed to set up logging", err)
		}
		defer closeOutput()
		defer func() { _ = zapLogger.Sync() }()

		a.logger = logging.FromZap(zapLogger)
		return command.Execute(args)
	}
	return parser
}

func mustAddCommand(parser *flags.Parser, name, short, long string, data interface{}) {
	if _, err := parser.AddCommand(name, short, long, data); err != nil {
		panic(fmt.Sprintf("failed to register command %s: %v", name, err))
	}
}

// run parses argv, executes the selected command and maps the result to an exit code
func run(ctx context.Context, argv []string, stdout io.Writer) int {
	a := &app{stdout: stdout, ctx: ctx, logger: logging.Nop()}
	parser := newParser(a)

	_, err := parser.ParseArgs(argv)
	if err == nil {
		return exitOK
	}

	var flagsErr *flags.Error
	if stderrors.As(err, &flagsErr) {
		if flagsErr.Type == flags.ErrHelp {
			fmt.Fprintln(stdout, flagsErr.Message)
			return exitOK
		}
		fmt.Fprintf(os.Stderr, "Command line flags parsing failed: %v\n", err)
		return exitFailure
	}

	fmt.Fprintf(os.Stderr, "procset: %v\n", err)
	return exitCode(err)
}

func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	if code, ok := errors.ExitCode(err); ok && code > 0 {
		return code
	}
	if errors.IsConfigError(err) {
		return exitConfig
	}
	return exitFailure
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout)
	stop()
	os.Exit(code)
}
