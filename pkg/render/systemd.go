package render

import (
	"github.com/core-tools/hsu-procset/pkg/descriptor"
)

// StartLimitIntervalSec=0 disables the start rate limit so restarts stay unconditional
var systemdTemplate = parseTemplate("systemd", `# {{ header }}
[Unit]
Description={{ .Name }} (procset)
After=network.target
StartLimitIntervalSec=0

[Service]
Type=simple
ExecStart={{ .Shell }} -c {{ systemdExec .Command }}
{{- if .Cwd }}
WorkingDirectory={{ .Cwd }}
{{- end }}
{{- if .User }}
User={{ .User }}
{{- end }}
{{- range .Env }}
Environment={{ systemdValue (printf "%s=%s" .Key .Value) }}
{{- end }}
Restart={{ ternary "always" "no" .AutoRestart }}
KillMode=control-group

[Install]
WantedBy=multi-user.target
`)

func renderSystemd(set *descriptor.Set, options Options) ([]File, error) {
	if err := rejectWatch(set, TargetSystemd); err != nil {
		return nil, err
	}

	files := make([]File, 0, set.Len())
	for _, spec := range set.Specs() {
		prog := newProgram(spec, options)
		content, err := execute(systemdTemplate, prog)
		if err != nil {
			return nil, err
		}
		files = append(files, File{Path: prog.Unit, Mode: FileMode, Content: content})
	}
	return files, nil
}
