package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/core-tools/hsu-procset/pkg/api"
	"github.com/core-tools/hsu-procset/pkg/descriptor"
	"github.com/core-tools/hsu-procset/pkg/errors"
	"github.com/core-tools/hsu-procset/pkg/logging"
	"github.com/core-tools/hsu-procset/pkg/process"
	"github.com/core-tools/hsu-procset/pkg/processfile"
	"github.com/core-tools/hsu-procset/pkg/processstate"
	"github.com/core-tools/hsu-procset/pkg/readiness"
	"github.com/core-tools/hsu-procset/pkg/render"
	"github.com/core-tools/hsu-procset/pkg/watch"
)

const shutdownTimeout = 5 * time.Second

// renderFlags are shared by every command that produces supervisor files
type renderFlags struct {
	ExecConfig string `long:"exec-config" description:"render every command as 'procset exec --config FILE NAME'"`
	Binary     string `long:"binary" default:"procset" description:"how the supervisor invokes this tool"`
	UnitPrefix string `long:"unit-prefix" description:"prefix for systemd unit names"`
	User       string `long:"user" description:"run processes as this user (supervisord, systemd, runit)"`
}

func (f renderFlags) options() render.Options {
	return render.Options{
		Binary:     f.Binary,
		ExecConfig: f.ExecConfig,
		UnitPrefix: f.UnitPrefix,
		User:       f.User,
	}
}

type pidFileFlags struct {
	PIDDir     string `long:"pid-dir" description:"directory for PID files; OS default for the context when empty"`
	PIDContext string `long:"pid-context" default:"user" choice:"system" choice:"user" choice:"session" description:"service context selecting the default PID directory"`
}

func (f pidFileFlags) manager(logger logging.Logger) (*processfile.ProcessFileManager, error) {
	serviceContext, err := processfile.ParseServiceContext(f.PIDContext)
	if err != nil {
		return nil, err
	}
	return processfile.NewProcessFileManager(processfile.ProcessFileConfig{
		BaseDirectory:   f.PIDDir,
		ServiceContext:  serviceContext,
		UseSubdirectory: f.PIDDir == "",
	}, logger), nil
}

// ===== validate =====

type validateCommand struct {
	app *app

	CheckPaths bool `long:"check-paths" description:"verify that log files named in commands can be written"`
}

func (c *validateCommand) Execute(args []string) error {
	set, source, err := c.app.loadSet()
	if err != nil {
		return err
	}

	if c.CheckPaths {
		collection := errors.NewErrorCollection()
		for _, spec := range set.Specs() {
			if err := process.CheckLogFiles(spec); err != nil {
				collection.Add(err)
				fmt.Fprintf(c.app.stdout, "%s: %v\n", spec.Name, err)
			}
		}
		if collection.HasErrors() {
			return collection
		}
	}

	fmt.Fprintf(c.app.stdout, "%s: %d processes OK\n", source, set.Len())
	return nil
}

// ===== list =====

type listCommand struct {
	app *app

	Format string `short:"f" long:"format" default:"text" choice:"text" choice:"json" choice:"yaml" description:"output format"`
}

func (c *listCommand) Execute(args []string) error {
	set, _, err := c.app.loadSet()
	if err != nil {
		return err
	}

	switch c.Format {
	case "json":
		specs := set.Specs()
		if specs == nil {
			specs = []descriptor.ProcessSpec{}
		}
		data, err := json.MarshalIndent(specs, "", "  ")
		if err != nil {
			return errors.NewInternalError("failed to encode processes", err)
		}
		fmt.Fprintln(c.app.stdout, string(data))
	case "yaml":
		data, err := descriptor.Marshal(set)
		if err != nil {
			return err
		}
		fmt.Fprint(c.app.stdout, string(data))
	default:
		w := tabwriter.NewWriter(c.app.stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tAUTORESTART\tWATCH\tDELAY\tGATE\tCOMMAND")
		for _, spec := range set.Specs() {
			gate := "-"
			if spec.WaitFor != nil {
				gate = spec.WaitFor.String()
			}
			fmt.Fprintf(w, "%s\t%t\t%t\t%s\t%s\t%s\n",
				spec.Name, spec.AutoRestart, spec.WatchFiles, spec.StartupDelay, gate, spec.Invocation)
		}
		return w.Flush()
	}
	return nil
}

// ===== render =====

type renderCommand struct {
	app *app
	renderFlags

	Target string   `short:"t" long:"target" required:"true" choice:"pm2" choice:"supervisord" choice:"systemd" choice:"runit" description:"supervisor to render for"`
	Out    string   `short:"o" long:"out" description:"output directory; files are printed when empty"`
	Only   []string `long:"only" description:"render only the named process (repeatable)"`
}

func (c *renderCommand) Execute(args []string) error {
	set, _, err := c.app.loadSet()
	if err != nil {
		return err
	}
	if len(c.Only) > 0 {
		if set, err = set.Select(c.Only...); err != nil {
			return err
		}
	}

	target, err := render.ParseTarget(c.Target)
	if err != nil {
		return err
	}
	files, err := render.Render(set, target, c.options())
	if err != nil {
		return err
	}

	if c.Out == "" {
		for _, file := range files {
			fmt.Fprintf(c.app.stdout, "# ==> %s <==\n%s", file.Path, file.Content)
		}
		return nil
	}

	if err := render.WriteFiles(c.Out, files); err != nil {
		return err
	}
	c.app.logger.Infof("Rendered %d files, target: %s, directory: %s", len(files), target, c.Out)
	return nil
}

// ===== exec =====

type execCommand struct {
	app *app
	pidFileFlags

	NoDelay     bool          `long:"no-delay" description:"skip the startup delay"`
	NoGate      bool          `long:"no-gate" description:"skip the readiness gate"`
	StopTimeout time.Duration `long:"stop-timeout" default:"10s" description:"how long to wait after SIGTERM before killing"`
	WritePID    bool          `long:"write-pid" description:"keep a PID file while the process runs"`

	Args struct {
		Name string `positional-arg-name:"NAME" description:"process to run"`
	} `positional-args:"yes" required:"yes"`
}

func (c *execCommand) Execute(args []string) error {
	set, _, err := c.app.loadSet()
	if err != nil {
		return err
	}
	spec, ok := set.Lookup(c.Args.Name)
	if !ok {
		return errors.NewNotFoundError("process not found: "+c.Args.Name, nil).WithContext("names", strings.Join(set.Names(), ", "))
	}

	logger := logging.WithPrefix(c.app.logger, fmt.Sprintf("process: %s , ", spec.Name))
	options := process.Options{
		WaitDelay: c.StopTimeout,
		SkipDelay: c.NoDelay,
		SkipGate:  c.NoGate,
	}

	if c.WritePID {
		pidFiles, err := c.manager(logger)
		if err != nil {
			return err
		}
		options.OnStart = func(pid int) {
			if err := pidFiles.WritePIDFile(spec.Name, pid); err != nil {
				logger.Warnf("Failed to write PID file: %v", err)
			}
		}
		options.OnExit = func(int) {
			if err := pidFiles.RemovePIDFile(spec.Name); err != nil {
				logger.Warnf("Failed to remove PID file: %v", err)
			}
		}
	}

	err = process.Run(c.app.ctx, spec, options, logger)
	if errors.IsCancelledError(err) {
		logger.Infof("Stopped: %v", err)
		return nil
	}
	return err
}

// ===== wait =====

type waitCommand struct {
	app *app

	Type     string        `long:"type" required:"true" choice:"tcp" choice:"http" choice:"grpc" choice:"exec" description:"probe type"`
	Address  string        `long:"address" description:"host:port for tcp and grpc"`
	URL      string        `long:"url" description:"URL for http"`
	Service  string        `long:"service" description:"gRPC health service name"`
	Interval time.Duration `long:"interval" description:"time between attempts (default 1s)"`
	Timeout  time.Duration `long:"timeout" description:"give up after this long (default 60s)"`
}

// Execute takes the exec probe's command from the arguments after --
func (c *waitCommand) Execute(args []string) error {
	gate := readiness.Gate{
		Type:     readiness.GateType(c.Type),
		Address:  c.Address,
		URL:      c.URL,
		Service:  c.Service,
		Command:  args,
		Interval: c.Interval,
		Timeout:  c.Timeout,
	}
	if err := gate.Validate(); err != nil {
		return err
	}
	return readiness.Wait(c.app.ctx, gate, c.app.logger)
}

// ===== status =====

type statusCommand struct {
	app *app
	pidFileFlags

	Format string `short:"f" long:"format" default:"text" choice:"text" choice:"json" description:"output format"`
}

type processStatus struct {
	Name    string             `json:"name"`
	State   processstate.State `json:"state"`
	PID     int                `json:"pid,omitempty"`
	PIDFile string             `json:"pid_file"`
	Error   string             `json:"error,omitempty"`
}

func (c *statusCommand) Execute(args []string) error {
	set, _, err := c.app.loadSet()
	if err != nil {
		return err
	}
	pidFiles, err := c.manager(c.app.logger)
	if err != nil {
		return err
	}

	statuses := make([]processStatus, 0, set.Len())
	for _, name := range set.Names() {
		status := processStatus{Name: name, State: processstate.StateUnknown, PIDFile: pidFiles.PIDFilePath(name)}
		pid, err := pidFiles.ReadPIDFile(name)
		if err == nil {
			status.PID = pid
			status.State, err = processstate.StateOf(pid)
		}
		if err != nil {
			status.Error = err.Error()
		}
		statuses = append(statuses, status)
	}

	if c.Format == "json" {
		data, err := json.MarshalIndent(statuses, "", "  ")
		if err != nil {
			return errors.NewInternalError("failed to encode status", err)
		}
		fmt.Fprintln(c.app.stdout, string(data))
		return nil
	}

	w := tabwriter.NewWriter(c.app.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSTATE\tPID\tPID FILE")
	for _, status := range statuses {
		pid := "-"
		if status.PID > 0 {
			pid = strconv.Itoa(status.PID)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", status.Name, status.State, pid, status.PIDFile)
	}
	return w.Flush()
}

// ===== serve =====

type serveCommand struct {
	app *app
	renderFlags

	Listen string `short:"l" long:"listen" default:"127.0.0.1:8080" description:"address to listen on"`
	Watch  bool   `long:"watch" description:"reload the descriptor file when it changes"`
}

func (c *serveCommand) Execute(args []string) error {
	set, source, err := c.app.loadSet()
	if err != nil {
		return err
	}
	server := api.NewServer(set, source, c.options(), c.app.logger)

	if c.Watch {
		if c.app.opts.Config == "" {
			return errors.NewValidationError("--watch requires --config", nil)
		}
		watcher, err := watch.New(watch.Config{
			Path:     c.app.opts.Config,
			OnChange: func(set *descriptor.Set) { server.SetDescriptors(set, source) },
			OnError: func(err error) {
				c.app.logger.Warnf("Keeping previous descriptor set: %v", err)
			},
		}, c.app.logger)
		if err != nil {
			return err
		}
		if err := watcher.Start(c.app.ctx); err != nil {
			return err
		}
		defer func() { _ = watcher.Stop(watch.DefaultGrace) }()
	}

	listener, err := net.Listen("tcp", c.Listen)
	if err != nil {
		return errors.NewIOError("failed to listen", err).WithContext("address", c.Listen)
	}

	httpServer := &http.Server{
		Handler:           server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- httpServer.Serve(listener)
	}()
	c.app.logger.Infof("Serving descriptor set, address: %s, processes: %d", listener.Addr(), set.Len())

	select {
	case err := <-serveErr:
		return errors.NewIOError("HTTP server failed", err)
	case <-c.app.ctx.Done():
	}

	c.app.logger.Infof("Shutting down HTTP server...")
	// the command context is already done; shutdown gets a fresh deadline
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		return errors.NewInternalError("failed to shut down HTTP server", err)
	}
	return nil
}

// ===== watch =====

type watchCommand struct {
	app *app
	renderFlags

	Target string `short:"t" long:"target" required:"true" choice:"pm2" choice:"supervisord" choice:"systemd" choice:"runit" description:"supervisor to render for"`
	Out    string `short:"o" long:"out" required:"true" description:"output directory"`
}

func (c *watchCommand) Execute(args []string) error {
	if c.app.opts.Config == "" {
		return errors.NewValidationError("watch requires --config", nil)
	}
	target, err := render.ParseTarget(c.Target)
	if err != nil {
		return err
	}

	watcher, err := watch.New(watch.Config{
		Path: c.app.opts.Config,
		OnChange: func(set *descriptor.Set) {
			if err := c.renderTo(set, target); err != nil {
				c.app.logger.Errorf("Render failed, previous files kept: %v", err)
			}
		},
		OnError: func(err error) {
			c.app.logger.Warnf("Keeping previous descriptor set: %v", err)
		},
	}, c.app.logger)
	if err != nil {
		return err
	}

	if err := c.renderTo(watcher.Current(), target); err != nil {
		return err
	}
	if err := watcher.Start(c.app.ctx); err != nil {
		return err
	}

	<-c.app.ctx.Done()
	return watcher.Stop(watch.DefaultGrace)
}

func (c *watchCommand) renderTo(set *descriptor.Set, target render.Target) error {
	files, err := render.Render(set, target, c.options())
	if err != nil {
		return err
	}
	if err := render.WriteFiles(c.Out, files); err != nil {
		return err
	}
	c.app.logger.Infof("Rendered %d files, target: %s, directory: %s", len(files), target, c.Out)
	return nil
}
