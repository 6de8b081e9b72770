package render

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/alessio/shellescape"
	"github.com/google/renameio/v2"

	"github.com/core-tools/hsu-procset/pkg/descriptor"
	"github.com/core-tools/hsu-procset/pkg/errors"
)

// Target is an external supervisor whose native schema we can produce
type Target string

const (
	TargetPM2         Target = "pm2"
	TargetSupervisord Target = "supervisord"
	TargetSystemd     Target = "systemd"
	TargetRunit       Target = "runit"
)

const (
	DefaultBinary = "procset"
	FileMode      = 0o644
	ExecMode      = 0o755
)

// Targets lists the supported targets in a stable order
func Targets() []Target {
	return []Target{TargetPM2, TargetSupervisord, TargetSystemd, TargetRunit}
}

func ParseTarget(name string) (Target, error) {
	for _, target := range Targets() {
		if string(target) == strings.ToLower(name) {
			return target, nil
		}
	}
	return "", errors.NewValidationError(
		fmt.Sprintf("unsupported render target: %q", name),
		nil,
	).WithContext("supported_targets", "pm2, supervisord, systemd, runit")
}

// Options tune the rendered commands
type Options struct {
	// Binary is how the supervisor invokes this tool for gates and exec mode
	Binary string

	// ExecConfig, when set, renders every command as
	// `procset exec --config <ExecConfig> <name>`
	ExecConfig string

	// UnitPrefix is prepended to systemd unit names
	UnitPrefix string

	// User runs the processes under another account (supervisord, systemd)
	User string
}

func (o Options) binary() string {
	if o.Binary == "" {
		return DefaultBinary
	}
	return o.Binary
}

// File is one rendered artifact, relative to the output directory
type File struct {
	Path    string
	Mode    os.FileMode
	Content []byte
}

// Render translates the set into the target's native configuration.
// Entries the target cannot express fail the whole set with a ConfigError.
func Render(set *descriptor.Set, target Target, options Options) ([]File, error) {
	switch target {
	case TargetPM2:
		return renderPM2(set, options)
	case TargetSupervisord:
		return renderSupervisord(set, options)
	case TargetSystemd:
		return renderSystemd(set, options)
	case TargetRunit:
		return renderRunit(set, options)
	default:
		_, err := ParseTarget(string(target))
		return nil, err
	}
}

// Command is the shell string the supervisor runs for one entry. The startup
// delay stays first, a readiness gate runs after it. Nothing in the entry's
// invocation runs when the gate fails.
func Command(spec descriptor.ProcessSpec, options Options) string {
	if options.ExecConfig != "" {
		return shellescape.QuoteCommand([]string{options.binary(), "exec", "--config", options.ExecConfig, spec.Name})
	}
	if spec.WaitFor == nil {
		return spec.Script()
	}

	gate := shellescape.QuoteCommand(append([]string{options.binary(), "wait"}, spec.WaitFor.Args()...))
	invocation := spec.Invocation
	if spec.RequiresShell() {
		// A bare "||" or ";" would bind looser than the gate's "&&"
		invocation = shellescape.QuoteCommand([]string{descriptor.DefaultShell, "-c", invocation})
	}
	command := gate + " && " + invocation
	if spec.StartupDelay > 0 {
		command = fmt.Sprintf("sleep %d && %s", spec.StartupDelaySeconds(), command)
	}
	return command
}

// WriteFiles writes rendered files under dir. Each file is replaced
// atomically, so a supervisor never reads a half-written config.
func WriteFiles(dir string, files []File) error {
	for _, file := range files {
		path := filepath.Join(dir, file.Path)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return errors.NewIOError("failed to create output directory", err).WithContext("path", path)
		}
		if err := renameio.WriteFile(path, file.Content, file.Mode); err != nil {
			return errors.NewIOError("failed to write rendered file", err).WithContext("path", path)
		}
	}
	return nil
}

func rejectWatch(set *descriptor.Set, target Target) error {
	for _, spec := range set.Specs() {
		if spec.WatchFiles {
			return errors.NewConfigError(
				fmt.Sprintf("%s has no file watching, cannot render watch: true", target),
				nil,
			).WithContext("name", spec.Name)
		}
	}
	return nil
}
