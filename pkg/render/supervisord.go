package render

import (
	"github.com/core-tools/hsu-procset/pkg/descriptor"
)

const SupervisordFile = "procset.conf"

var supervisordTemplate = parseTemplate("supervisord", `; {{ header }}
{{- range . }}

[program:{{ .Name }}]
command={{ .Shell }} -c {{ shellquote .Command | supervisordEscape }}
{{- if .Cwd }}
directory={{ supervisordEscape .Cwd }}
{{- end }}
{{- if .User }}
user={{ .User }}
{{- end }}
{{- if .Env }}
environment={{ range $i, $e := .Env }}{{ if $i }},{{ end }}{{ $e.Key }}={{ quote $e.Value | supervisordEscape }}{{ end }}
{{- end }}
autostart=true
autorestart={{ .AutoRestart }}
startsecs=0
stopasgroup=true
killasgroup=true
{{- end }}
`)

func renderSupervisord(set *descriptor.Set, options Options) ([]File, error) {
	if err := rejectWatch(set, TargetSupervisord); err != nil {
		return nil, err
	}

	programs := make([]program, 0, set.Len())
	for _, spec := range set.Specs() {
		programs = append(programs, newProgram(spec, options))
	}

	content, err := execute(supervisordTemplate, programs)
	if err != nil {
		return nil, err
	}
	return []File{{Path: SupervisordFile, Mode: FileMode, Content: content}}, nil
}
