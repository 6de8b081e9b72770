package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/core-tools/hsu-procset/pkg/descriptor"
	"github.com/core-tools/hsu-procset/pkg/errors"
	"github.com/core-tools/hsu-procset/pkg/logging"
	"github.com/core-tools/hsu-procset/pkg/render"
)

// Server exposes the current descriptor set read-only over HTTP. The set is
// replaced whole by SetDescriptors, never mutated.
type Server struct {
	logger        logging.Logger
	renderOptions render.Options
	router        *mux.Router

	mu       sync.RWMutex
	set      *descriptor.Set
	source   string
	loadedAt time.Time
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type HealthResponse struct {
	Status    string `json:"status"`
	Processes int    `json:"processes"`
}

type ListResponse struct {
	Source    string                   `json:"source"`
	LoadedAt  time.Time                `json:"loaded_at"`
	Processes []descriptor.ProcessSpec `json:"processes"`
}

type RenderedFile struct {
	Path    string `json:"path"`
	Mode    string `json:"mode"`
	Content string `json:"content"`
}

type RenderResponse struct {
	Target render.Target  `json:"target"`
	Files  []RenderedFile `json:"files"`
}

func NewServer(set *descriptor.Set, source string, renderOptions render.Options, logger logging.Logger) *Server {
	s := &Server{
		logger:        logger,
		renderOptions: renderOptions,
	}
	s.SetDescriptors(set, source)

	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.health).Methods(http.MethodGet)
	r.HandleFunc("/processes", s.listProcesses).Methods(http.MethodGet)
	r.HandleFunc("/processes/{name}", s.getProcess).Methods(http.MethodGet)
	r.HandleFunc("/processes/{name}/render/{target}", s.renderProcess).Methods(http.MethodGet)

	r.Use(s.recovery)
	r.Use(s.logging)

	s.router = r
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// SetDescriptors swaps the served set, e.g. after the descriptor file changed
func (s *Server) SetDescriptors(set *descriptor.Set, source string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.set = set
	s.source = source
	s.loadedAt = time.Now().UTC()
}

func (s *Server) Descriptors() *descriptor.Set {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.set
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Processes: s.Descriptors().Len()})
}

func (s *Server) listProcesses(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	response := ListResponse{
		Source:    s.source,
		LoadedAt:  s.loadedAt,
		Processes: s.set.Specs(),
	}
	s.mu.RUnlock()

	if response.Processes == nil {
		response.Processes = []descriptor.ProcessSpec{}
	}
	s.writeJSON(w, http.StatusOK, response)
}

func (s *Server) getProcess(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	spec, ok := s.Descriptors().Lookup(name)
	if !ok {
		s.writeError(w, http.StatusNotFound, errors.NewNotFoundError("process not found", nil), "Process not found: "+name)
		return
	}
	s.writeJSON(w, http.StatusOK, spec)
}

func (s *Server) renderProcess(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	name := vars["name"]

	target, err := render.ParseTarget(vars["target"])
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err, "Unsupported render target: "+vars["target"])
		return
	}

	subset, err := s.Descriptors().Select(name)
	if err != nil {
		s.writeError(w, http.StatusNotFound, err, "Process not found: "+name)
		return
	}

	files, err := render.Render(subset, target, s.renderOptions)
	if err != nil {
		if errors.IsConfigError(err) {
			s.writeError(w, http.StatusUnprocessableEntity, err, "Process cannot be rendered for "+string(target))
			return
		}
		s.writeError(w, http.StatusInternalServerError, err, "Failed to render process")
		return
	}

	response := RenderResponse{Target: target, Files: make([]RenderedFile, 0, len(files))}
	for _, file := range files {
		response.Files = append(response.Files, RenderedFile{
			Path:    file.Path,
			Mode:    file.Mode.String(),
			Content: string(file.Content),
		})
	}
	s.writeJSON(w, http.StatusOK, response)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Errorf("Error encoding JSON response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error, message string) {
	s.writeJSON(w, status, ErrorResponse{
		Error:   err.Error(),
		Message: message,
	})
}
