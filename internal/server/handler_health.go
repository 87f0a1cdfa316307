package server

import (
	"net/http"
	"runtime"
	"time"
)

// Version is reported by /health.
var Version = "0.1.0"

type healthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	GoVersion string `json:"go_version"`
	Uptime    string `json:"uptime"`
	Templates int    `json:"templates"`
	Store     string `json:"store"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	store := "disabled"
	if s.store != nil {
		store = "sqlite"
	}
	respondOK(w, reqID, healthResponse{
		Status:    "healthy",
		Version:   Version,
		GoVersion: runtime.Version(),
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
		Templates: s.templates.Len(),
		Store:     store,
	})
}
