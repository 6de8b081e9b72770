package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/core-tools/hsu-procset/pkg/descriptor"
	"github.com/core-tools/hsu-procset/pkg/logging"
	"github.com/core-tools/hsu-procset/pkg/render"
)

func newTestServer() *Server {
	return NewServer(descriptor.LoadBuiltin(), "builtin", render.Options{}, logging.Nop())
}

func get(t *testing.T, server *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func TestHealth(t *testing.T) {
	rec := get(t, newTestServer(), "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)

	var health HealthResponse
	decode(t, rec, &health)
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, 3, health.Processes)
}

func TestListProcesses(t *testing.T) {
	rec := get(t, newTestServer(), "/processes")
	require.Equal(t, http.StatusOK, rec.Code)

	var list struct {
		Source    string                   `json:"source"`
		Processes []map[string]interface{} `json:"processes"`
	}
	decode(t, rec, &list)
	assert.Equal(t, "builtin", list.Source)
	require.Len(t, list.Processes, 3)

	beat := list.Processes[2]
	assert.Equal(t, "celery-beat", beat["name"])
	assert.Equal(t, "sleep 20 && celery -A SE8 beat -l INFO --scheduler django_celery_beat.schedulers:DatabaseScheduler --logfile /opt/server/vol/logs/celery-event.log", beat["script"])
	assert.Equal(t, false, beat["watch"])
	assert.Equal(t, true, beat["autorestart"])
}

func TestGetProcess(t *testing.T) {
	server := newTestServer()

	rec := get(t, server, "/processes/celery-worker")
	require.Equal(t, http.StatusOK, rec.Code)
	var spec descriptor.ProcessSpec
	decode(t, rec, &spec)
	assert.Equal(t, "celery-worker", spec.Name)
	assert.Equal(t, "celery", spec.Executable)

	rec = get(t, server, "/processes/flower")
	require.Equal(t, http.StatusNotFound, rec.Code)
	var errResp ErrorResponse
	decode(t, rec, &errResp)
	assert.Equal(t, "Process not found: flower", errResp.Message)
}

func TestRenderProcess(t *testing.T) {
	server := newTestServer()

	rec := get(t, server, "/processes/celery-beat/render/systemd")
	require.Equal(t, http.StatusOK, rec.Code)

	var rendered RenderResponse
	decode(t, rec, &rendered)
	assert.Equal(t, render.TargetSystemd, rendered.Target)
	require.Len(t, rendered.Files, 1)
	assert.Equal(t, "celery-beat.service", rendered.Files[0].Path)
	assert.Contains(t, rendered.Files[0].Content, "Restart=always")

	rec = get(t, server, "/processes/celery-beat/render/upstart")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = get(t, server, "/processes/flower/render/pm2")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRenderProcess_WatchRejected(t *testing.T) {
	set, err := descriptor.Load([]byte("apps:\n  - name: web\n    script: gunicorn app\n    watch: true\n"))
	require.NoError(t, err)
	server := NewServer(set, "test", render.Options{}, logging.Nop())

	rec := get(t, server, "/processes/web/render/runit")
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = get(t, server, "/processes/web/render/pm2")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `\"watch\": true`))
}

func TestSetDescriptors(t *testing.T) {
	server := newTestServer()

	set, err := descriptor.Load([]byte("apps:\n  - name: web\n    script: gunicorn app\n"))
	require.NoError(t, err)
	server.SetDescriptors(set, "/etc/procset/ecosystem.yaml")
	assert.Same(t, set, server.Descriptors())

	var list ListResponse
	decode(t, get(t, server, "/processes"), &list)
	assert.Equal(t, "/etc/procset/ecosystem.yaml", list.Source)
	require.Len(t, list.Processes, 1)
	assert.Equal(t, "web", list.Processes[0].Name)

	assert.Equal(t, http.StatusNotFound, get(t, server, "/processes/gunicorn").Code)
}

func TestEmptySetListsNoProcesses(t *testing.T) {
	server := NewServer(nil, "empty", render.Options{}, logging.Nop())

	rec := get(t, server, "/processes")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"processes":[]`)
}

func TestMethodNotAllowed(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/processes", nil)
	rec := httptest.NewRecorder()
	newTestServer().Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
