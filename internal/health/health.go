// Package health exposes the /health and /metrics HTTP endpoints for a
// running Loader. It lives apart from internal/metrics so that metrics
// (which internal/loader depends on for Collectors) never has to depend
// back on internal/loader.
package health

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/withobsrvr/pgbulkload/internal/loader"
)

// Server exposes /health (JSON status) and /metrics (Prometheus exposition)
// for one Loader.
type Server struct {
	ld   *loader.Loader
	reg  *prometheus.Registry
	port int
	log  *logrus.Entry
}

// Response is the JSON body served from /health.
type Response struct {
	Status        string `json:"status"`
	Commits       int64  `json:"commits"`
	CommittedRows int64  `json:"committed_rows"`
	Errors        int64  `json:"errors"`
	CopyInvoked   bool   `json:"copy_invoked"`
}

// NewServer creates a health/metrics server for ld, serving the Collectors
// already registered on reg.
func NewServer(ld *loader.Loader, reg *prometheus.Registry, port int, log *logrus.Entry) *Server {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Server{ld: ld, reg: reg, port: port, log: log}
}

// Start starts the HTTP server; it blocks until the server errors or the
// process is terminated.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.HandlerFor(s.reg, promhttp.HandlerOpts{}))

	addr := fmt.Sprintf(":%d", s.port)
	s.log.Infof("health server listening on %s", addr)
	return http.ListenAndServe(addr, mux)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats := s.ld.Statistics()

	resp := Response{
		Status:        "healthy",
		Commits:       stats.Commits,
		CommittedRows: stats.CommittedRows,
		Errors:        stats.Errors,
		CopyInvoked:   stats.CopyInvoked,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
