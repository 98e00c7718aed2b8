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
		Name:        "omicsx API",
		Version:     "v1",
		Description: "Read-only run listing and cost reports for HealthOmics workflow runs",
		Endpoints: []endpointInfo{
			{"/api/v1/runs", []string{"GET"}, "List runs. Accepts ?status= and ?name="},
			{"/api/v1/runs/{id}", []string{"GET"}, "Run detail with tasks and durations"},
			{"/api/v1/runs/{id}/cost", []string{"GET"}, "Run cost breakdown. Accepts ?min_storage_gib="},
			{"/api/v1/health", []string{"GET"}, "Server health and version"},
			{"/metrics", []string{"GET"}, "Prometheus metrics"},
		},
	})
}
