package readiness

import (
	"fmt"
	"net"
	"net/url"
	"time"

	"github.com/core-tools/hsu-procset/pkg/errors"
)

type GateType string

const (
	GateTypeTCP  GateType = "tcp"
	GateTypeHTTP GateType = "http"
	GateTypeGRPC GateType = "grpc"
	GateTypeExec GateType = "exec"
)

const (
	DefaultInterval = 1 * time.Second
	DefaultTimeout  = 60 * time.Second
)

// Gate describes a dependency that must answer before a process is launched.
// It is the explicit alternative to a fixed startup sleep.
type Gate struct {
	Type     GateType      `yaml:"type" json:"type"`
	Address  string        `yaml:"address,omitempty" json:"address,omitempty"` // tcp, grpc
	URL      string        `yaml:"url,omitempty" json:"url,omitempty"`         // http
	Service  string        `yaml:"service,omitempty" json:"service,omitempty"` // grpc, empty means overall server health
	Command  []string      `yaml:"command,omitempty" json:"command,omitempty"` // exec
	Interval time.Duration `yaml:"interval,omitempty" json:"interval,omitempty"`
	Timeout  time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

// WithDefaults returns a copy with zero interval and timeout filled in
func (g Gate) WithDefaults() Gate {
	if g.Interval == 0 {
		g.Interval = DefaultInterval
	}
	if g.Timeout == 0 {
		g.Timeout = DefaultTimeout
	}
	if g.Command != nil {
		g.Command = append([]string(nil), g.Command...)
	}
	return g
}

// Validate checks the type-specific fields
func (g Gate) Validate() error {
	if g.Interval < 0 {
		return errors.NewValidationError("gate interval cannot be negative", nil)
	}
	if g.Timeout < 0 {
		return errors.NewValidationError("gate timeout cannot be negative", nil)
	}

	switch g.Type {
	case GateTypeTCP, GateTypeGRPC:
		if g.Address == "" {
			return errors.NewValidationError(fmt.Sprintf("address is required for %s gate", g.Type), nil)
		}
		if _, _, err := net.SplitHostPort(g.Address); err != nil {
			return errors.NewValidationError("invalid gate address: "+g.Address, err)
		}
	case GateTypeHTTP:
		if g.URL == "" {
			return errors.NewValidationError("url is required for http gate", nil)
		}
		u, err := url.Parse(g.URL)
		if err != nil {
			return errors.NewValidationError("invalid gate url: "+g.URL, err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return errors.NewValidationError("gate url must use http or https: "+g.URL, nil)
		}
	case GateTypeExec:
		if len(g.Command) == 0 || g.Command[0] == "" {
			return errors.NewValidationError("command is required for exec gate", nil)
		}
	default:
		return errors.NewValidationError(
			fmt.Sprintf("unsupported gate type: %q", g.Type),
			nil,
		).WithContext("supported_types", "tcp, http, grpc, exec")
	}

	return nil
}

// Args renders the gate as arguments of the `wait` command, so a supervisor
// can run the gate in front of the real command.
func (g Gate) Args() []string {
	args := []string{"--type", string(g.Type)}
	if g.Address != "" {
		args = append(args, "--address", g.Address)
	}
	if g.URL != "" {
		args = append(args, "--url", g.URL)
	}
	if g.Service != "" {
		args = append(args, "--service", g.Service)
	}
	if g.Interval != 0 {
		args = append(args, "--interval", g.Interval.String())
	}
	if g.Timeout != 0 {
		args = append(args, "--timeout", g.Timeout.String())
	}
	if len(g.Command) > 0 {
		args = append(args, "--")
		args = append(args, g.Command...)
	}
	return args
}

func (g Gate) String() string {
	switch g.Type {
	case GateTypeHTTP:
		return "http " + g.URL
	case GateTypeExec:
		return fmt.Sprintf("exec %v", g.Command)
	case GateTypeGRPC:
		if g.Service != "" {
			return "grpc " + g.Address + " (" + g.Service + ")"
		}
		return "grpc " + g.Address
	default:
		return string(g.Type) + " " + g.Address
	}
}
