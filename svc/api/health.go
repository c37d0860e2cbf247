package api

import (
	"encoding/json"
	"net/http"
	"os"

	"livepaste/svc/util"
)

type HealthResponse struct {
	Status string `json:"status"`
}
type ReadyResponse struct {
	Ready   bool   `json:"ready"`
	Storage string `json:"storage"`
}

func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(HealthResponse{Status: "ok"})
}

// Ready probes that the data directory is still writable; the store
// and the history log both live there.
func (s *Server) Ready(w http.ResponseWriter, r *http.Request) {
	resp := ReadyResponse{Ready: true, Storage: "up"}
	f, err := os.CreateTemp(s.cfg.DataDir, ".readyz-*")
	if err != nil {
		util.Error().Err(err).Msg("data dir not writable")
		resp.Ready = false
		resp.Storage = "down"
	} else {
		name := f.Name()
		f.Close()
		os.Remove(name)
	}
	w.Header().Set("Content-Type", "application/json")
	if !resp.Ready {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	json.NewEncoder(w).Encode(resp)
}
