package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/core-tools/hsu-procset/pkg/errors"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		s.logger.Debugf("HTTP request, method: %s, path: %s, status: %d, duration: %v",
			r.Method, r.URL.Path, recorder.status, time.Since(start))
	})
}

func (s *Server) recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if recovered := recover(); recovered != nil {
				s.logger.Errorf("Panic in HTTP handler, path: %s, panic: %v", r.URL.Path, recovered)
				err := errors.NewInternalError(fmt.Sprintf("panic: %v", recovered), nil)
				s.writeError(w, http.StatusInternalServerError, err, "Internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}
