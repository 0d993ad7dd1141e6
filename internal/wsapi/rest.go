package wsapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/nodewatch/storj-node-monitor/internal/stats"
)

// These REST endpoints serve a dashboard's initial page load, before its
// WebSocket connection is established and subscribed to a view. They mirror
// a subset of the frame-based queries in handlers.go against the same
// collaborators, for clients that just need a one-shot snapshot.

func (s *Server) registerRESTRoutes(r *mux.Router) {
	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/nodes", s.handleRESTNodes).Methods(http.MethodGet)
	api.HandleFunc("/alerts", s.handleRESTActiveAlerts).Methods(http.MethodGet)
	api.HandleFunc("/stats", s.handleRESTStats).Methods(http.MethodGet)
}

func (s *Server) handleRESTNodes(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, len(s.nodes))
	for _, n := range s.nodes {
		names = append(names, n.Name)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"nodes": names})
}

func (s *Server) handleRESTActiveAlerts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	nodeName := r.URL.Query().Get("node_name")
	alerts, err := s.store.ActiveAlerts(ctx, nodeName)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"alerts": alerts})
}

func (s *Server) handleRESTStats(w http.ResponseWriter, r *http.Request) {
	v := stats.NewView(nil)
	vs, ok := s.engine.Get(v.Key())
	if !ok {
		writeJSON(w, http.StatusOK, map[string]interface{}{})
		return
	}
	writeJSON(w, http.StatusOK, vs.ToPayload(time.Now(), s.statsWindowMinutes))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
