// Package endpoints serves the admin HTTP surface devfarmd exposes
// alongside the scheduler loop: a health check and a stats dump.
// Adapted from the scoot common/endpoints TwitterServer.
package endpoints

import (
	"fmt"
	"net/http"

	"github.com/twitter/devfarm/common/log"
	"github.com/twitter/devfarm/common/stats"
)

// Server serves /health and /admin/metrics.json for a running scheduler.
type Server struct {
	Addr  string
	Stats stats.StatsReceiver
}

func NewServer(addr string, stat stats.StatsReceiver) *Server {
	return &Server{Addr: addr, Stats: stat}
}

// Mux builds the admin mux this server answers on. Exposed so a
// binary (cmd/devfarmd) can register additional routes - the
// scheduler control API - onto the same mux before serving it.
func (s *Server) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", helpHandler)
	mux.HandleFunc("/health", healthHandler)
	mux.HandleFunc("/admin/metrics.json", s.statsHandler)
	return mux
}

func (s *Server) Serve() error {
	log.Infof("Serving admin endpoints on %s", s.Addr)
	return http.ListenAndServe(s.Addr, s.Mux())
}

func helpHandler(w http.ResponseWriter, r *http.Request) {
	http.Error(w, "Common paths: '/health', '/admin/metrics.json'", http.StatusNotImplemented)
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	fmt.Fprint(w, "ok")
}

func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	pretty := r.URL.Query().Get("pretty") == "true"
	if _, err := w.Write(s.Stats.Render(pretty)); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
