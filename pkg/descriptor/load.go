package descriptor

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/core-tools/hsu-procset/pkg/errors"
	"github.com/core-tools/hsu-procset/pkg/readiness"
)

// envKey is a name every target can export without quoting
var envKey = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

//go:embed ecosystem.yaml
var builtinDescriptor []byte

// descriptorFile is the on-disk shape. Field names follow the pm2 ecosystem
// file; JSON ecosystem files parse unchanged.
type descriptorFile struct {
	Apps []appEntry `yaml:"apps"`
}

type appEntry struct {
	Name        string `yaml:"name"`
	Script      string `yaml:"script,omitempty"`
	Watch       *bool  `yaml:"watch,omitempty"`       // unset means false
	AutoRestart *bool  `yaml:"autorestart,omitempty"` // unset means true

	// Structured alternative to Script
	Exec         string        `yaml:"exec,omitempty"`
	Args         []string      `yaml:"args,omitempty"`
	StartupDelay time.Duration `yaml:"startup_delay,omitempty"`

	Cwd     string            `yaml:"cwd,omitempty"`
	Env     map[string]string `yaml:"env,omitempty"`
	WaitFor *readiness.Gate   `yaml:"wait_for,omitempty"`

	Ignored pm2Fields `yaml:",inline"`
}

// pm2Fields are pm2 ecosystem keys accepted so that pm2 files load, but
// ignored: they tune pm2's own runtime and have no equivalent here.
type pm2Fields struct {
	Instances        *yaml.Node `yaml:"instances,omitempty"`
	ExecMode         *yaml.Node `yaml:"exec_mode,omitempty"`
	Interpreter      *yaml.Node `yaml:"interpreter,omitempty"`
	InterpreterArgs  *yaml.Node `yaml:"interpreter_args,omitempty"`
	MaxMemoryRestart *yaml.Node `yaml:"max_memory_restart,omitempty"`
	MaxRestarts      *yaml.Node `yaml:"max_restarts,omitempty"`
	MinUptime        *yaml.Node `yaml:"min_uptime,omitempty"`
	RestartDelay     *yaml.Node `yaml:"restart_delay,omitempty"`
	KillTimeout      *yaml.Node `yaml:"kill_timeout,omitempty"`
	IgnoreWatch      *yaml.Node `yaml:"ignore_watch,omitempty"`
	EnvProduction    *yaml.Node `yaml:"env_production,omitempty"`
	OutFile          *yaml.Node `yaml:"out_file,omitempty"`
	ErrorFile        *yaml.Node `yaml:"error_file,omitempty"`
	LogDateFormat    *yaml.Node `yaml:"log_date_format,omitempty"`
	MergeLogs        *yaml.Node `yaml:"merge_logs,omitempty"`
}

// Load parses a descriptor document into an immutable Set. Any malformed
// entry fails the whole document with a ConfigError and a nil Set.
func Load(data []byte) (*Set, error) {
	var file descriptorFile

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&file); err != nil && err != io.EOF {
		return nil, errors.NewConfigError("failed to parse descriptor", err)
	}

	specs := make([]ProcessSpec, 0, len(file.Apps))
	seen := make(map[string]int, len(file.Apps))
	for i, entry := range file.Apps {
		spec, err := buildSpec(entry)
		if err != nil {
			return nil, errors.NewConfigError(
				fmt.Sprintf("invalid process entry at index %d", i),
				err,
			).WithContext("name", entry.Name).WithContext("index", i)
		}

		if prevIndex, exists := seen[spec.Name]; exists {
			return nil, errors.NewConfigError(
				fmt.Sprintf("duplicate process name '%s' found at indices %d and %d", spec.Name, prevIndex, i),
				nil,
			).WithContext("name", spec.Name)
		}
		seen[spec.Name] = i

		specs = append(specs, spec)
	}

	return newSet(specs), nil
}

// LoadFile reads and loads a descriptor file
func LoadFile(path string) (*Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewIOError("failed to read descriptor file", err).WithContext("path", path)
	}

	set, err := Load(data)
	if err != nil {
		return nil, errors.NewConfigError("invalid descriptor file", err).WithContext("path", path)
	}
	return set, nil
}

// LoadBuiltin returns the set shipped with the binary: the web server, the
// task-queue worker and the scheduler.
func LoadBuiltin() *Set {
	set, err := Load(builtinDescriptor)
	if err != nil {
		panic(fmt.Sprintf("builtin descriptor is invalid: %v", err))
	}
	return set
}

// BuiltinDocument returns the embedded descriptor source
func BuiltinDocument() []byte {
	return append([]byte(nil), builtinDescriptor...)
}

func buildSpec(entry appEntry) (ProcessSpec, error) {
	if err := ValidateName(entry.Name); err != nil {
		return ProcessSpec{}, err
	}

	spec := ProcessSpec{
		Name:        entry.Name,
		WatchFiles:  entry.Watch != nil && *entry.Watch,
		AutoRestart: entry.AutoRestart == nil || *entry.AutoRestart,
		Cwd:         entry.Cwd,
	}

	if entry.StartupDelay < 0 {
		return ProcessSpec{}, errors.NewConfigError("startup delay cannot be negative", nil)
	}
	if entry.StartupDelay%time.Second != 0 {
		return ProcessSpec{}, errors.NewConfigError(
			fmt.Sprintf("startup delay must be whole seconds, got %v", entry.StartupDelay),
			nil,
		)
	}

	script := entry.Script
	switch {
	case entry.Script != "" && entry.Exec != "":
		return ProcessSpec{}, errors.NewConfigError("only one of script and exec may be set", nil)
	case entry.Exec != "":
		script = renderScript(entry.StartupDelay, append([]string{entry.Exec}, entry.Args...))
	case len(entry.Args) > 0:
		return ProcessSpec{}, errors.NewConfigError("args require exec", nil)
	}

	if script == "" {
		return ProcessSpec{}, errors.NewConfigError("command cannot be empty", nil)
	}

	inv, err := parseScript(script)
	if err != nil {
		return ProcessSpec{}, err
	}
	if entry.Exec != "" {
		inv.executable = entry.Exec
		inv.args = append([]string(nil), entry.Args...)
	}
	if entry.Script != "" && entry.StartupDelay > 0 {
		if inv.delay > 0 {
			return ProcessSpec{}, errors.NewConfigError("startup delay is given both in script and startup_delay", nil)
		}
		inv.delay = entry.StartupDelay
		script = fmt.Sprintf("sleep %d && %s", entry.StartupDelay/time.Second, script)
	}

	spec.Command = script
	spec.StartupDelay = inv.delay
	spec.Invocation = inv.body
	spec.Executable = inv.executable
	spec.Args = inv.args
	spec.LogFiles = inv.logFiles

	if len(entry.Env) > 0 {
		spec.Env = make(map[string]string, len(entry.Env))
		for k, v := range entry.Env {
			if !envKey.MatchString(k) {
				return ProcessSpec{}, errors.NewConfigError(
					fmt.Sprintf("invalid environment variable name %q", k),
					nil,
				)
			}
			spec.Env[k] = v
		}
	}

	if entry.WaitFor != nil {
		if err := entry.WaitFor.Validate(); err != nil {
			return ProcessSpec{}, errors.NewConfigError("invalid wait_for gate", err)
		}
		gate := *entry.WaitFor
		spec.WaitFor = &gate
	}

	return spec, nil
}
