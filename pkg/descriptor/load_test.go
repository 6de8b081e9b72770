package descriptor

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/core-tools/hsu-procset/pkg/errors"
	"github.com/core-tools/hsu-procset/pkg/readiness"
)

const threeApps = `
apps:
  - name: gunicorn
    script: gunicorn SE8.wsgi -b 127.0.0.1:8000 --capture-output
    watch: false
    autorestart: true
  - name: celery-worker
    script: sleep 20 && celery -A SE8 worker -l INFO -E --logfile /opt/server/vol/logs/celery-worker.log
    autorestart: true
  - name: celery-beat
    script: sleep 20 && celery -A SE8 beat -l INFO --scheduler django_celery_beat.schedulers:DatabaseScheduler --logfile /opt/server/vol/logs/celery-event.log
    autorestart: true
`

const threeAppsReordered = `
apps:
  - name: celery-beat
    script: sleep 20 && celery -A SE8 beat -l INFO --scheduler django_celery_beat.schedulers:DatabaseScheduler --logfile /opt/server/vol/logs/celery-event.log
    autorestart: true
  - name: gunicorn
    script: gunicorn SE8.wsgi -b 127.0.0.1:8000 --capture-output
    watch: false
    autorestart: true
  - name: celery-worker
    script: sleep 20 && celery -A SE8 worker -l INFO -E --logfile /opt/server/vol/logs/celery-worker.log
    autorestart: true
`

func TestLoadBuiltin(t *testing.T) {
	set := LoadBuiltin()

	require.Equal(t, 3, set.Len())
	assert.Equal(t, []string{"gunicorn", "celery-worker", "celery-beat"}, set.Names())

	for _, spec := range set.Specs() {
		assert.True(t, spec.AutoRestart, spec.Name)
		assert.False(t, spec.WatchFiles, spec.Name)
		assert.Nil(t, spec.WaitFor, spec.Name)
	}

	web, ok := set.Lookup("gunicorn")
	require.True(t, ok)
	assert.Zero(t, web.StartupDelay)
	assert.Equal(t, "gunicorn", web.Executable)
	assert.Equal(t, []string{"SE8.wsgi", "-b", "127.0.0.1:8000", "--capture-output"}, web.Args)
	assert.Empty(t, web.LogFiles)

	worker, ok := set.Lookup("celery-worker")
	require.True(t, ok)
	assert.Equal(t, 20*time.Second, worker.StartupDelay)
	assert.Equal(t, 20, worker.StartupDelaySeconds())
	assert.Equal(t, "celery", worker.Executable)
	assert.Equal(t, []string{"/opt/server/vol/logs/celery-worker.log"}, worker.LogFiles)
	assert.Equal(t, "celery -A SE8 worker -l INFO -E --logfile /opt/server/vol/logs/celery-worker.log", worker.Invocation)

	beat, ok := set.Lookup("celery-beat")
	require.True(t, ok)
	assert.Equal(t, 20*time.Second, beat.StartupDelay)
	assert.Contains(t, beat.Args, "django_celery_beat.schedulers:DatabaseScheduler")
	assert.Equal(t, []string{"/opt/server/vol/logs/celery-event.log"}, beat.LogFiles)
}

func TestLoad_PreservesLiteralCommand(t *testing.T) {
	set, err := Load([]byte(threeApps))
	require.NoError(t, err)

	worker, _ := set.Lookup("celery-worker")
	assert.Equal(t,
		"sleep 20 && celery -A SE8 worker -l INFO -E --logfile /opt/server/vol/logs/celery-worker.log",
		worker.Script())
	assert.Equal(t, append([]string{"celery"}, worker.Args...), worker.Argv())
}

func TestLoad_Idempotent(t *testing.T) {
	first, err := Load([]byte(threeApps))
	require.NoError(t, err)
	second, err := Load([]byte(threeApps))
	require.NoError(t, err)

	if diff := cmp.Diff(first.Specs(), second.Specs()); diff != "" {
		t.Errorf("loading twice differs (-first +second):\n%s", diff)
	}
	assert.True(t, first.Equivalent(second))
}

func TestLoad_OrderIndependent(t *testing.T) {
	original, err := Load([]byte(threeApps))
	require.NoError(t, err)
	reordered, err := Load([]byte(threeAppsReordered))
	require.NoError(t, err)

	assert.True(t, original.Equivalent(reordered))
	assert.True(t, reordered.Equivalent(original))
	assert.Equal(t, []string{"celery-beat", "gunicorn", "celery-worker"}, reordered.Names())
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{
			name: "missing name",
			yaml: "apps:\n  - script: gunicorn app\n",
		},
		{
			name: "empty command",
			yaml: "apps:\n  - name: web\n    script: \"\"\n",
		},
		{
			name: "blank command",
			yaml: "apps:\n  - name: web\n    script: \"   \"\n",
		},
		{
			name: "nothing after delay",
			yaml: "apps:\n  - name: web\n    script: \"sleep 5 && \"\n",
		},
		{
			name: "duplicate name",
			yaml: threeApps + "  - name: gunicorn\n    script: gunicorn other.wsgi\n",
		},
		{
			name: "script and exec",
			yaml: "apps:\n  - name: web\n    script: gunicorn app\n    exec: gunicorn\n",
		},
		{
			name: "args without exec",
			yaml: "apps:\n  - name: web\n    args: [app]\n",
		},
		{
			name: "negative delay",
			yaml: "apps:\n  - name: web\n    exec: gunicorn\n    startup_delay: -5s\n",
		},
		{
			name: "fractional delay",
			yaml: "apps:\n  - name: web\n    exec: gunicorn\n    startup_delay: 1500ms\n",
		},
		{
			name: "delay given twice",
			yaml: "apps:\n  - name: web\n    script: sleep 5 && gunicorn app\n    startup_delay: 5s\n",
		},
		{
			name: "unbalanced quote",
			yaml: "apps:\n  - name: web\n    script: gunicorn \"app\n",
		},
		{
			name: "unknown field",
			yaml: "apps:\n  - name: web\n    script: gunicorn app\n    replicas: 4\n",
		},
		{
			name: "env key with space",
			yaml: "apps:\n  - name: web\n    script: gunicorn app\n    env:\n      \"BAD KEY\": x\n",
		},
		{
			name: "env key with semicolon",
			yaml: "apps:\n  - name: web\n    script: gunicorn app\n    env:\n      \"A;rm -rf /\": x\n",
		},
		{
			name: "env key starting with digit",
			yaml: "apps:\n  - name: web\n    script: gunicorn app\n    env:\n      1ST: x\n",
		},
		{
			name: "invalid name",
			yaml: "apps:\n  - name: web server\n    script: gunicorn app\n",
		},
		{
			name: "invalid gate",
			yaml: "apps:\n  - name: web\n    script: gunicorn app\n    wait_for:\n      type: tcp\n",
		},
		{
			name: "not yaml",
			yaml: "apps: [",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set, err := Load([]byte(tt.yaml))
			require.Error(t, err)
			assert.True(t, errors.IsConfigError(err), "expected ConfigError, got %v", err)
			assert.Nil(t, set)
			assert.Zero(t, set.Len())
		})
	}
}

func TestLoad_DuplicateFailsWholeSet(t *testing.T) {
	doc := `
apps:
  - name: gunicorn
    script: gunicorn SE8.wsgi
  - name: celery-worker
    script: celery -A SE8 worker
  - name: gunicorn
    script: gunicorn SE8.wsgi -b 0.0.0.0:8000
`
	set, err := Load([]byte(doc))
	require.Error(t, err)
	assert.True(t, errors.IsConfigError(err))
	assert.Contains(t, err.Error(), "duplicate process name 'gunicorn' found at indices 0 and 2")
	assert.Empty(t, set.Specs())
}

func TestLoad_Defaults(t *testing.T) {
	set, err := Load([]byte("apps:\n  - name: web\n    script: gunicorn app\n"))
	require.NoError(t, err)

	spec, ok := set.Lookup("web")
	require.True(t, ok)
	assert.True(t, spec.AutoRestart)
	assert.False(t, spec.WatchFiles)
}

func TestLoad_Pm2JSON(t *testing.T) {
	doc := `{
  "apps": [
    {"name": "gunicorn", "script": "gunicorn SE8.wsgi -b 127.0.0.1:8000 --capture-output", "watch": false, "autorestart": true},
    {"name": "celery-worker", "script": "sleep 20 && celery -A SE8 worker -l INFO", "autorestart": false}
  ]
}`
	set, err := Load([]byte(doc))
	require.NoError(t, err)
	require.Equal(t, 2, set.Len())

	worker, _ := set.Lookup("celery-worker")
	assert.False(t, worker.AutoRestart)
	assert.Equal(t, 20*time.Second, worker.StartupDelay)
}

func TestLoad_IgnoresPm2OnlyFields(t *testing.T) {
	doc := `{
  "apps": [
    {"name": "web", "script": "gunicorn SE8.wsgi", "instances": 4, "exec_mode": "fork",
     "interpreter": "none", "max_memory_restart": "300M", "env_production": {"DEBUG": "0"}}
  ]
}`
	set, err := Load([]byte(doc))
	require.NoError(t, err)

	spec, ok := set.Lookup("web")
	require.True(t, ok)
	assert.Equal(t, "gunicorn SE8.wsgi", spec.Command)
	assert.Empty(t, spec.Env)

	out, err := Marshal(set)
	require.NoError(t, err)
	assert.NotContains(t, string(out), "instances")
}

func TestLoad_StructuredEntry(t *testing.T) {
	doc := `
apps:
  - name: celery-worker
    exec: celery
    args: [-A, SE8, worker, --logfile=/var/log/worker.log, "--hostname", "w1@%h"]
    startup_delay: 20s
    cwd: /srv/app
    env:
      DJANGO_SETTINGS_MODULE: SE8.settings
    wait_for:
      type: tcp
      address: 127.0.0.1:6379
`
	set, err := Load([]byte(doc))
	require.NoError(t, err)

	spec, _ := set.Lookup("celery-worker")
	assert.Equal(t, "sleep 20 && celery -A SE8 worker --logfile=/var/log/worker.log --hostname w1@%h", spec.Command)
	assert.Equal(t, 20*time.Second, spec.StartupDelay)
	assert.Equal(t, "celery", spec.Executable)
	assert.Equal(t, []string{"/var/log/worker.log"}, spec.LogFiles)
	assert.Equal(t, "/srv/app", spec.Cwd)
	assert.Equal(t, []string{"DJANGO_SETTINGS_MODULE=SE8.settings"}, spec.EnvList())
	require.NotNil(t, spec.WaitFor)
	assert.Equal(t, readiness.GateTypeTCP, spec.WaitFor.Type)
}

func TestLoad_StructuredQuotesArguments(t *testing.T) {
	doc := `
apps:
  - name: report
    exec: /usr/bin/report
    args: ["--title", "nightly run", "--filter", "a;b"]
`
	set, err := Load([]byte(doc))
	require.NoError(t, err)

	spec, _ := set.Lookup("report")
	assert.Equal(t, "/usr/bin/report --title 'nightly run' --filter 'a;b'", spec.Command)
	assert.False(t, spec.RequiresShell())
	assert.Equal(t, []string{"/usr/bin/report", "--title", "nightly run", "--filter", "a;b"}, spec.Argv())
}

func TestLoad_StartupDelayPrependedToScript(t *testing.T) {
	set, err := Load([]byte("apps:\n  - name: beat\n    script: celery -A SE8 beat\n    startup_delay: 20s\n"))
	require.NoError(t, err)

	spec, _ := set.Lookup("beat")
	assert.Equal(t, "sleep 20 && celery -A SE8 beat", spec.Command)
	assert.Equal(t, "celery -A SE8 beat", spec.Invocation)
}

func TestLoad_ShellInvocation(t *testing.T) {
	set, err := Load([]byte("apps:\n  - name: job\n    script: sleep 5 && cd /srv && ./run.sh | tee /var/log/job.log\n"))
	require.NoError(t, err)

	spec, _ := set.Lookup("job")
	assert.True(t, spec.RequiresShell())
	assert.Equal(t, 5*time.Second, spec.StartupDelay)
	assert.Equal(t, []string{DefaultShell, "-c", "cd /srv && ./run.sh | tee /var/log/job.log"}, spec.Argv())
}

func TestLoad_ShellOnlyFirstWord(t *testing.T) {
	tests := []struct {
		name   string
		script string
		shell  bool
	}{
		{name: "env assignment", script: "FOO=bar true", shell: true},
		{name: "home directory", script: "~/bin/worker --queue default", shell: true},
		{name: "equals after slash", script: "./bin/a=b run", shell: false},
		{name: "equals in argument", script: "gunicorn --bind=127.0.0.1:8000 app", shell: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set, err := Load([]byte("apps:\n  - name: job\n    script: " + tt.script + "\n"))
			require.NoError(t, err)

			spec, _ := set.Lookup("job")
			assert.Equal(t, tt.shell, spec.RequiresShell())
			if tt.shell {
				assert.Equal(t, []string{DefaultShell, "-c", tt.script}, spec.Argv())
			}
		})
	}
}

func TestLoad_EmptyDocument(t *testing.T) {
	set, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, 0, set.Len())

	set, err = Load([]byte("apps: []\n"))
	require.NoError(t, err)
	assert.Equal(t, 0, set.Len())
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "ecosystem.yaml")
	require.NoError(t, os.WriteFile(path, []byte(threeApps), 0o644))
	set, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 3, set.Len())

	_, err = LoadFile(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
	assert.True(t, errors.IsIOError(err))

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("apps:\n  - name: x\n"), 0o644))
	_, err = LoadFile(bad)
	require.Error(t, err)
	assert.True(t, errors.IsConfigError(err))
}

func TestBuiltinDocumentMatchesLoadBuiltin(t *testing.T) {
	set, err := Load(BuiltinDocument())
	require.NoError(t, err)
	assert.True(t, set.Equivalent(LoadBuiltin()))
}

func TestShippedDescriptors(t *testing.T) {
	set, err := LoadFile(filepath.Join("..", "..", "configs", "ecosystem.yaml"))
	require.NoError(t, err)
	assert.True(t, set.Equivalent(LoadBuiltin()))

	gated, err := LoadFile(filepath.Join("..", "..", "configs", "ecosystem.readiness.yaml"))
	require.NoError(t, err)
	assert.Equal(t, set.Names(), gated.Names())
	for _, spec := range gated.Specs() {
		assert.Zero(t, spec.StartupDelay, spec.Name)
		assert.True(t, spec.AutoRestart, spec.Name)
	}
}
