package render

import (
	"path"

	"github.com/core-tools/hsu-procset/pkg/descriptor"
)

var runitRunTemplate = parseTemplate("runit-run", `#!/bin/sh
# {{ header }}
exec 2>&1
{{- if .Cwd }}
cd {{ shellquote .Cwd }} || exit 1
{{- end }}
{{- range .Env }}
export {{ .Key }}={{ shellquote .Value }}
{{- end }}
exec {{ if .User }}chpst -u {{ shellquote .User }} {{ end }}{{ .Shell }} -c {{ shellquote .Command }}
`)

// runsv restarts unconditionally, so a finish script takes the service down
var runitFinishTemplate = parseTemplate("runit-finish", `#!/bin/sh
# {{ header }}
exec sv down .
`)

func renderRunit(set *descriptor.Set, options Options) ([]File, error) {
	if err := rejectWatch(set, TargetRunit); err != nil {
		return nil, err
	}

	files := make([]File, 0, set.Len())
	for _, spec := range set.Specs() {
		prog := newProgram(spec, options)
		run, err := execute(runitRunTemplate, prog)
		if err != nil {
			return nil, err
		}
		files = append(files, File{Path: path.Join(spec.Name, "run"), Mode: ExecMode, Content: run})

		if !spec.AutoRestart {
			finish, err := execute(runitFinishTemplate, prog)
			if err != nil {
				return nil, err
			}
			files = append(files, File{Path: path.Join(spec.Name, "finish"), Mode: ExecMode, Content: finish})
		}
	}
	return files, nil
}
