package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/kineintra/kineintra/internal/metrics"
	"github.com/kineintra/kineintra/internal/protocol"
)

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+s.config.WSPath, s.handleWebSocket)
	mux.Handle("GET /metrics", metrics.Handler(s.registry))
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /sessions", s.handleSessions)
	mux.HandleFunc("POST /sessions/{id}/fault", s.handleFault)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": s.GetActiveConnections(),
	})
}

func (s *Server) handleSessions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.Sessions())
}

// handleFault injects an ERROR into one session's device. The code and aux
// query parameters accept decimal or 0x-prefixed hex; code defaults to
// SENSOR_FAULT.
func (s *Server) handleFault(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	code := uint64(protocol.ErrCodeSensorFault)
	var aux uint64

	q := r.URL.Query()
	if v := q.Get("code"); v != "" {
		n, err := strconv.ParseUint(v, 0, 8)
		if err != nil {
			http.Error(w, "invalid code: "+err.Error(), http.StatusBadRequest)
			return
		}
		code = n
	}
	if v := q.Get("aux"); v != "" {
		n, err := strconv.ParseUint(v, 0, 16)
		if err != nil {
			http.Error(w, "invalid aux: "+err.Error(), http.StatusBadRequest)
			return
		}
		aux = n
	}

	if err := s.InjectFault(id, protocol.ErrorCode(code), uint16(aux)); err != nil {
		if errors.Is(err, ErrUnknownSession) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.log.Info("Fault injected",
		zap.String("session", id),
		zap.Stringer("code", protocol.ErrorCode(code)),
		zap.Uint64("aux", aux),
	)
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
