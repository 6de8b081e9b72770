package descriptor

import (
	"time"

	"github.com/core-tools/hsu-procset/pkg/readiness"
)

// DefaultShell runs invocations that cannot be expressed as a plain argv
const DefaultShell = "/bin/sh"

// ProcessSpec is one managed process: its name, how it is launched and the
// restart/watch policy the supervisor applies to it.
type ProcessSpec struct {
	Name string `json:"name" yaml:"name"`

	// Command is the literal shell invocation handed to the supervisor,
	// including a "sleep N &&" startup delay prefix when there is one.
	Command string `json:"script" yaml:"script"`

	WatchFiles  bool `json:"watch" yaml:"watch"`
	AutoRestart bool `json:"autorestart" yaml:"autorestart"`

	// StartupDelay staggers dependent processes. It is a fixed timer, not a
	// readiness signal; see WaitFor for the latter.
	StartupDelay time.Duration `json:"startup_delay,omitempty" yaml:"startup_delay,omitempty"`

	// Invocation is Command without the delay prefix.
	Invocation string `json:"invocation" yaml:"invocation"`

	// Executable and Args are the split Invocation. Both are empty when the
	// invocation needs a shell.
	Executable string   `json:"exec,omitempty" yaml:"exec,omitempty"`
	Args       []string `json:"args,omitempty" yaml:"args,omitempty"`

	// LogFiles lists log paths embedded in the invocation's flags.
	LogFiles []string `json:"log_files,omitempty" yaml:"log_files,omitempty"`

	Cwd     string            `json:"cwd,omitempty" yaml:"cwd,omitempty"`
	Env     map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
	WaitFor *readiness.Gate   `json:"wait_for,omitempty" yaml:"wait_for,omitempty"`
}

// StartupDelaySeconds returns the delay as the whole seconds it is encoded with
func (s ProcessSpec) StartupDelaySeconds() int {
	return int(s.StartupDelay / time.Second)
}

// RequiresShell reports whether the invocation uses shell syntax beyond plain words
func (s ProcessSpec) RequiresShell() bool {
	return s.Executable == ""
}

// Script is the shell string for a supervisor that runs commands through a shell
func (s ProcessSpec) Script() string {
	return s.Command
}

// Argv is the argument vector that runs the invocation without the delay
func (s ProcessSpec) Argv() []string {
	if s.RequiresShell() {
		return []string{DefaultShell, "-c", s.Invocation}
	}
	return append([]string{s.Executable}, s.Args...)
}

// EnvList returns Env as sorted KEY=VALUE pairs
func (s ProcessSpec) EnvList() []string {
	keys := sortedKeys(s.Env)
	env := make([]string, 0, len(keys))
	for _, key := range keys {
		env = append(env, key+"="+s.Env[key])
	}
	return env
}

func (s ProcessSpec) clone() ProcessSpec {
	c := s
	if s.Args != nil {
		c.Args = append([]string(nil), s.Args...)
	}
	if s.LogFiles != nil {
		c.LogFiles = append([]string(nil), s.LogFiles...)
	}
	if s.Env != nil {
		c.Env = make(map[string]string, len(s.Env))
		for k, v := range s.Env {
			c.Env[k] = v
		}
	}
	if s.WaitFor != nil {
		gate := *s.WaitFor
		if gate.Command != nil {
			gate.Command = append([]string(nil), gate.Command...)
		}
		c.WaitFor = &gate
	}
	return c
}
