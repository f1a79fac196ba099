package server

import "net/http"

type endpointInfo struct {
	Path        string   `json:"path"`
	Methods     []string `json:"methods"`
	Description string   `json:"description"`
}

type discoveryResponse struct {
	Name        string         `json:"name"`
	Version     string         `json:"version"`
	Description string         `json:"description"`
	Endpoints   []endpointInfo `json:"endpoints"`
}

func (s *Server) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	respondOK(w, reqID, discoveryResponse{
		Name:        "oss status API",
		Version:     "v1",
		Description: "Read-only view of the scheduler simulation's process table and audit trail",
		Endpoints: []endpointInfo{
			{"/api/v1/health", []string{"GET"}, "Server health and attached run"},
			{"/api/v1/table", []string{"GET"}, "Latest process-table snapshot of the active run"},
			{"/api/v1/runs", []string{"GET"}, "Stored runs, newest first"},
			{"/api/v1/runs/{id}", []string{"GET"}, "Single stored run"},
			{"/api/v1/runs/{id}/snapshots", []string{"GET"}, "Process-table snapshots of a run"},
			{"/api/v1/runs/{id}/events", []string{"GET"}, "Message and lifecycle events of a run"},
			{"/ui/", []string{"GET"}, "HTML dashboard of the live table and stored runs"},
		},
	})
}
