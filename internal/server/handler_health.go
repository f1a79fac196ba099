package server

import (
	"net/http"
	"runtime"
	"time"
)

type healthResponse struct {
	Status    string `json:"status"`
	GoVersion string `json:"go_version"`
	Uptime    string `json:"uptime"`
	RunID     string `json:"run_id,omitempty"`
	Mode      string `json:"mode,omitempty"`
	State     string `json:"state"`
	Store     string `json:"store"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	resp := healthResponse{
		Status:    "healthy",
		GoVersion: runtime.Version(),
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
		RunID:     s.runID,
		Mode:      string(s.mode),
		State:     "idle",
		Store:     "disabled",
	}
	if s.source != nil {
		if snap := s.source.Latest(); snap != nil {
			resp.State = snap.State.String()
		} else {
			resp.State = "starting"
		}
	}
	if s.store != nil {
		resp.Store = "sqlite"
	}
	respondOK(w, reqID, resp)
}
