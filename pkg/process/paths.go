package process

import (
	"os"
	"path/filepath"

	"github.com/core-tools/hsu-procset/pkg/descriptor"
	"github.com/core-tools/hsu-procset/pkg/errors"
)

// CheckLogFiles verifies that every log file embedded in the entry's command
// can be written by the current user. Nothing is created besides a probe file
// that is removed right away.
func CheckLogFiles(spec descriptor.ProcessSpec) error {
	collection := errors.NewErrorCollection()
	for _, path := range spec.LogFiles {
		collection.Add(checkWritable(spec, path))
	}
	return collection.ToError()
}

func checkWritable(spec descriptor.ProcessSpec, path string) error {
	if !filepath.IsAbs(path) && spec.Cwd != "" {
		path = filepath.Join(spec.Cwd, path)
	}
	dir := filepath.Dir(path)

	info, err := os.Stat(dir)
	if err != nil {
		return errors.NewIOError("log directory does not exist", err).
			WithContext("name", spec.Name).
			WithContext("path", path)
	}
	if !info.IsDir() {
		return errors.NewIOError("log directory is not a directory", nil).
			WithContext("name", spec.Name).
			WithContext("path", path)
	}

	if info, err := os.Stat(path); err == nil {
		if info.IsDir() {
			return errors.NewIOError("log file is a directory", nil).WithContext("name", spec.Name).WithContext("path", path)
		}
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0)
		if err != nil {
			return errors.NewIOError("log file is not writable", err).WithContext("name", spec.Name).WithContext("path", path)
		}
		return f.Close()
	}

	probe, err := os.CreateTemp(dir, ".procset-probe-*")
	if err != nil {
		return errors.NewIOError("log directory is not writable", err).
			WithContext("name", spec.Name).
			WithContext("path", path)
	}
	probe.Close()
	return os.Remove(probe.Name())
}
