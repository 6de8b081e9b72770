package render

import (
	"encoding/json"

	"github.com/core-tools/hsu-procset/pkg/descriptor"
	"github.com/core-tools/hsu-procset/pkg/errors"
)

const PM2File = "ecosystem.config.json"

type pm2App struct {
	Name        string            `json:"name"`
	Script      string            `json:"script"`
	Watch       bool              `json:"watch"`
	AutoRestart bool              `json:"autorestart"`
	Cwd         string            `json:"cwd,omitempty"`
	Env         map[string]string `json:"env,omitempty"`
}

type pm2Ecosystem struct {
	Apps []pm2App `json:"apps"`
}

// pm2 understands every descriptor field natively, watch included
func renderPM2(set *descriptor.Set, options Options) ([]File, error) {
	ecosystem := pm2Ecosystem{Apps: make([]pm2App, 0, set.Len())}
	for _, spec := range set.Specs() {
		ecosystem.Apps = append(ecosystem.Apps, pm2App{
			Name:        spec.Name,
			Script:      Command(spec, options),
			Watch:       spec.WatchFiles,
			AutoRestart: spec.AutoRestart,
			Cwd:         spec.Cwd,
			Env:         spec.Env,
		})
	}

	data, err := json.MarshalIndent(ecosystem, "", "  ")
	if err != nil {
		return nil, errors.NewInternalError("failed to encode pm2 ecosystem", err)
	}
	return []File{{Path: PM2File, Mode: FileMode, Content: append(data, '\n')}}, nil
}
