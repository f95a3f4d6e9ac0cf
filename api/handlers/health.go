package handlers

import (
	"net/http"
	"time"
)

// version is stamped at build time with -ldflags.
var version = "dev"

// HealthHandler answers liveness probes and the root banner.
type HealthHandler struct{}

// NewHealthHandler creates the handler.
func NewHealthHandler() *HealthHandler { return &HealthHandler{} }

// HandleHealth handles GET /health.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	})
}

// HandleRoot handles GET /, a small service banner.
func (h *HealthHandler) HandleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		WriteErrorMessage(w, http.StatusNotFound, "not found", "")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"service": "llm-gateway",
		"version": version,
		"docs":    "/v1/providers",
	})
}
