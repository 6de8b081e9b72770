package descriptor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/core-tools/hsu-procset/pkg/errors"
	"github.com/core-tools/hsu-procset/pkg/readiness"
)

func TestSet_SpecsAreCopies(t *testing.T) {
	set := LoadBuiltin()

	specs := set.Specs()
	specs[1].Args[0] = "mutated"
	specs[1].LogFiles[0] = "/tmp/elsewhere.log"
	specs[0].Name = "renamed"

	worker, ok := set.Lookup("celery-worker")
	require.True(t, ok)
	assert.Equal(t, "-A", worker.Args[0])
	assert.Equal(t, "/opt/server/vol/logs/celery-worker.log", worker.LogFiles[0])
	assert.Equal(t, "gunicorn", set.Names()[0])
}

func TestSet_LookupCopiesGate(t *testing.T) {
	set, err := Load([]byte(`
apps:
  - name: beat
    exec: celery
    wait_for:
      type: exec
      command: [pg_isready, -h, db]
`))
	require.NoError(t, err)

	spec, _ := set.Lookup("beat")
	spec.WaitFor.Command[0] = "true"
	spec.WaitFor.Type = readiness.GateTypeTCP

	again, _ := set.Lookup("beat")
	assert.Equal(t, readiness.GateTypeExec, again.WaitFor.Type)
	assert.Equal(t, "pg_isready", again.WaitFor.Command[0])
}

func TestSet_LookupMissing(t *testing.T) {
	_, ok := LoadBuiltin().Lookup("flower")
	assert.False(t, ok)
}

func TestSet_Select(t *testing.T) {
	set := LoadBuiltin()

	subset, err := set.Select("celery-beat", "gunicorn", "gunicorn")
	require.NoError(t, err)
	assert.Equal(t, []string{"gunicorn", "celery-beat"}, subset.Names())
	assert.Equal(t, 3, set.Len())

	_, err = set.Select("gunicorn", "flower")
	require.Error(t, err)
	assert.True(t, errors.IsNotFoundError(err))

	empty, err := set.Select()
	require.NoError(t, err)
	assert.Equal(t, 0, empty.Len())
}

func TestSet_NilSet(t *testing.T) {
	var set *Set

	assert.Equal(t, 0, set.Len())
	assert.Nil(t, set.Specs())
	assert.Nil(t, set.Names())
	_, ok := set.Lookup("gunicorn")
	assert.False(t, ok)
	assert.True(t, set.Equivalent(&Set{}))
}

func TestSet_EquivalentDetectsDifferences(t *testing.T) {
	base := LoadBuiltin()

	changedPolicy, err := Load([]byte(`
apps:
  - name: gunicorn
    script: gunicorn SE8.wsgi -b 127.0.0.1:8000 --capture-output
    autorestart: false
  - name: celery-worker
    script: sleep 20 && celery -A SE8 worker -l INFO -E --logfile /opt/server/vol/logs/celery-worker.log
  - name: celery-beat
    script: sleep 20 && celery -A SE8 beat -l INFO --scheduler django_celery_beat.schedulers:DatabaseScheduler --logfile /opt/server/vol/logs/celery-event.log
`))
	require.NoError(t, err)
	assert.False(t, base.Equivalent(changedPolicy))

	subset, err := Load([]byte("apps:\n  - name: gunicorn\n    script: gunicorn SE8.wsgi -b 127.0.0.1:8000 --capture-output\n"))
	require.NoError(t, err)
	assert.False(t, base.Equivalent(subset))
}

func TestValidateName(t *testing.T) {
	valid := []string{"gunicorn", "celery-worker", "celery_beat", "web.1"}
	for _, name := range valid {
		assert.NoError(t, ValidateName(name), name)
	}

	invalid := []string{"", "with space", "a/b", ".hidden", "..", string(make([]byte, 65))}
	for _, name := range invalid {
		assert.Error(t, ValidateName(name), name)
	}
}
