package api

import (
	"net/http"

	"github.com/vigneshbarani24/kiro-aws-SAP-Resurrector-sub000/internal/domain"
)

type hookListResponse struct {
	Hooks []domain.HookRule `json:"hooks"`
}

type hookToggleResponse struct {
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
}

// ListHooks handles GET /api/hooks.
func (h *Handlers) ListHooks(w http.ResponseWriter, r *http.Request) {
	rules := []domain.HookRule{}
	if h.hooks != nil {
		rules = h.hooks.Snapshot()
	}
	h.respondJSON(w, http.StatusOK, hookListResponse{Hooks: rules})
}

// EnableHook handles POST /api/hooks/{name}/enable.
func (h *Handlers) EnableHook(w http.ResponseWriter, r *http.Request) {
	h.setHookEnabled(w, r, true)
}

// DisableHook handles POST /api/hooks/{name}/disable. The toggle lives in
// memory only; the next rules file reload resets it.
func (h *Handlers) DisableHook(w http.ResponseWriter, r *http.Request) {
	h.setHookEnabled(w, r, false)
}

func (h *Handlers) setHookEnabled(w http.ResponseWriter, r *http.Request, enabled bool) {
	if h.hooks == nil {
		h.respondError(w, domain.E(domain.CodeUnavailable, "api.hooks", "hook rules are not configured", nil))
		return
	}
	name := r.PathValue("name")
	if err := h.hooks.SetEnabled(name, enabled); err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, hookToggleResponse{Name: name, Enabled: enabled})
}
