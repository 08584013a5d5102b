package handler

import (
	"encoding/json"
	"net/http"

	"dumpgw/internal/plugin"
)

// AdminHandler reports the registered handler builders and the chain the
// gateway was started with.
type AdminHandler struct {
	registry plugin.Registry
	active   []plugin.Spec
}

func NewAdminHandler(r plugin.Registry, active []plugin.Spec) *AdminHandler {
	return &AdminHandler{registry: r, active: active}
}

// HandlersResponse is the body of GET /admin/handlers.
type HandlersResponse struct {
	Available []plugin.Descriptor `json:"available"`
	Active    []plugin.Spec       `json:"active"`
}

func (a *AdminHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(HandlersResponse{
		Available: a.registry.List(),
		Active:    a.active,
	})
}
