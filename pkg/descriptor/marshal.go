package descriptor

import (
	"bytes"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"gopkg.in/yaml.v3"

	"github.com/core-tools/hsu-procset/pkg/errors"
)

// Marshal writes the set back as a descriptor document that loads into an
// equivalent set. Entries keep their literal script unless re-splitting it
// would change the argument vector.
func Marshal(set *Set) ([]byte, error) {
	file := descriptorFile{Apps: make([]appEntry, 0, set.Len())}
	for _, spec := range set.Specs() {
		file.Apps = append(file.Apps, toEntry(spec))
	}

	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(file); err != nil {
		return nil, errors.NewInternalError("failed to encode descriptor", err)
	}
	if err := encoder.Close(); err != nil {
		return nil, errors.NewInternalError("failed to encode descriptor", err)
	}
	return buf.Bytes(), nil
}

func toEntry(spec ProcessSpec) appEntry {
	watch := spec.WatchFiles
	autoRestart := spec.AutoRestart
	entry := appEntry{
		Name:        spec.Name,
		Watch:       &watch,
		AutoRestart: &autoRestart,
		Cwd:         spec.Cwd,
		Env:         spec.Env,
		WaitFor:     spec.WaitFor,
	}

	if inv, err := parseScript(spec.Command); err == nil &&
		inv.executable == spec.Executable &&
		cmp.Equal(inv.args, spec.Args, cmpopts.EquateEmpty()) {
		entry.Script = spec.Command
		return entry
	}

	entry.Exec = spec.Executable
	entry.Args = spec.Args
	entry.StartupDelay = spec.StartupDelay
	return entry
}
