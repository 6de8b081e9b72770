package render

import (
	"bytes"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/alessio/shellescape"

	"github.com/core-tools/hsu-procset/pkg/descriptor"
	"github.com/core-tools/hsu-procset/pkg/errors"
)

const generatedHeader = "Generated by procset. Changes are overwritten on the next render."

type envVar struct {
	Key   string
	Value string
}

// program is the template view of one descriptor entry
type program struct {
	Name        string
	Unit        string
	Shell       string
	Command     string
	AutoRestart bool
	Cwd         string
	User        string
	Env         []envVar
}

func newProgram(spec descriptor.ProcessSpec, options Options) program {
	env := make([]envVar, 0, len(spec.Env))
	for _, pair := range spec.EnvList() {
		key, value, _ := strings.Cut(pair, "=")
		env = append(env, envVar{Key: key, Value: value})
	}
	return program{
		Name:        spec.Name,
		Unit:        options.UnitPrefix + spec.Name + ".service",
		Shell:       descriptor.DefaultShell,
		Command:     Command(spec, options),
		AutoRestart: spec.AutoRestart,
		Cwd:         spec.Cwd,
		User:        options.User,
		Env:         env,
	}
}

func funcMap() template.FuncMap {
	funcs := sprig.TxtFuncMap()
	funcs["header"] = func() string { return generatedHeader }
	funcs["shellquote"] = shellescape.Quote
	funcs["supervisordEscape"] = supervisordEscape
	funcs["systemdExec"] = systemdExec
	funcs["systemdValue"] = systemdValue
	return funcs
}

func parseTemplate(name, text string) *template.Template {
	return template.Must(template.New(name).Funcs(funcMap()).Option("missingkey=error").Parse(text))
}

func execute(tmpl *template.Template, data interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, errors.NewInternalError("failed to execute template", err).WithContext("template", tmpl.Name())
	}
	return buf.Bytes(), nil
}

// supervisord expands %(name)s in most values
func supervisordEscape(s string) string {
	return strings.ReplaceAll(s, "%", "%%")
}

// systemdValue quotes a value for a unit file: C escapes and % specifiers
func systemdValue(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`, "%", "%%")
	return `"` + r.Replace(s) + `"`
}

// systemdExec additionally protects $ from systemd's own variable expansion
func systemdExec(s string) string {
	return systemdValue(strings.ReplaceAll(s, "$", "$$"))
}
