package process

import (
	"context"
	stderrors "errors"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/core-tools/hsu-procset/pkg/descriptor"
	"github.com/core-tools/hsu-procset/pkg/errors"
	"github.com/core-tools/hsu-procset/pkg/logging"
	"github.com/core-tools/hsu-procset/pkg/readiness"
)

const DefaultWaitDelay = 10 * time.Second

// Options tune how a single descriptor entry is launched
type Options struct {
	Stdout io.Writer
	Stderr io.Writer

	// WaitDelay is how long to wait after the termination signal before killing
	WaitDelay time.Duration

	// SkipDelay and SkipGate launch immediately, e.g. when the caller already waited
	SkipDelay bool
	SkipGate  bool

	// OnStart and OnExit bracket the child's lifetime, e.g. to keep a PID file
	OnStart func(pid int)
	OnExit  func(pid int)
}

// NewCommand builds the command for a descriptor entry. The startup delay and
// the readiness gate are not part of it.
func NewCommand(ctx context.Context, spec descriptor.ProcessSpec, options Options) *exec.Cmd {
	argv := spec.Argv()

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = spec.Cwd
	cmd.Env = append(os.Environ(), spec.EnvList()...)

	cmd.Stdout = options.Stdout
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stdout
	}
	cmd.Stderr = options.Stderr
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}

	// Platform-specific setup is handled in execute_windows.go or execute_unix.go
	setupProcessAttributes(cmd)

	// wait after sending the termination signal, before sending the kill signal
	cmd.WaitDelay = options.WaitDelay
	if cmd.WaitDelay == 0 {
		cmd.WaitDelay = DefaultWaitDelay
	}

	return cmd
}

// Run launches one descriptor entry in the foreground and blocks until it
// exits. It applies the startup delay and the readiness gate first. A start
// failure is a LaunchError, a non-zero exit is a CrashExit. Restarting is left
// to the supervisor that invoked us.
func Run(ctx context.Context, spec descriptor.ProcessSpec, options Options, logger logging.Logger) error {
	if ctx == nil {
		return errors.NewValidationError("context cannot be nil", nil).WithContext("name", spec.Name)
	}

	if spec.StartupDelay > 0 && !options.SkipDelay {
		logger.Infof("Delaying start, name: %s, delay: %v", spec.Name, spec.StartupDelay)
		timer := time.NewTimer(spec.StartupDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.NewCancelledError("cancelled during startup delay", ctx.Err()).WithContext("name", spec.Name)
		case <-timer.C:
		}
	}

	if spec.WaitFor != nil && !options.SkipGate {
		if err := readiness.Wait(ctx, *spec.WaitFor, logger); err != nil {
			return errors.NewLaunchError("dependency gate failed", err).WithContext("name", spec.Name)
		}
	}

	cmd := NewCommand(ctx, spec, options)

	logger.Debugf("Executing process, name: %s, argv: %v, working directory: '%s'", spec.Name, cmd.Args, cmd.Dir)

	if err := cmd.Start(); err != nil {
		return errors.NewLaunchError("failed to start the process", err).
			WithContext("name", spec.Name).
			WithContext("executable", cmd.Path)
	}

	pid := cmd.Process.Pid
	logger.Infof("Started process, name: %s, PID: %d", spec.Name, pid)
	if options.OnStart != nil {
		options.OnStart(pid)
	}

	err := cmd.Wait()
	if options.OnExit != nil {
		options.OnExit(pid)
	}
	if ctx.Err() != nil {
		logger.Infof("Process stopped on request, name: %s, PID: %d", spec.Name, pid)
		return errors.NewCancelledError("process stopped on request", ctx.Err()).WithContext("name", spec.Name)
	}

	if err != nil {
		var exitErr *exec.ExitError
		if stderrors.As(err, &exitErr) {
			code := exitErr.ExitCode()
			logger.Warnf("Process exited unexpectedly, name: %s, PID: %d, exit code: %d", spec.Name, pid, code)
			return errors.NewCrashExitError("process exited unexpectedly", code, err).
				WithContext("name", spec.Name).
				WithContext("pid", pid)
		}
		return errors.NewInternalError("failed to wait for the process", err).WithContext("name", spec.Name)
	}

	logger.Infof("Process exited, name: %s, PID: %d", spec.Name, pid)
	return nil
}
