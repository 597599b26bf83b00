package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/ignite/courier/internal/channel"
	"github.com/ignite/courier/internal/routing"
	"github.com/ignite/courier/internal/service/dispatch"
	"github.com/ignite/courier/internal/service/template"
)

// Handlers contains all HTTP handlers.
type Handlers struct {
	dispatch  *dispatch.Service
	templates *template.Service
	adapters  []channel.Adapter
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(dispatchSvc *dispatch.Service, templateSvc *template.Service, adapters []channel.Adapter) *Handlers {
	return &Handlers{
		dispatch:  dispatchSvc,
		templates: templateSvc,
		adapters:  adapters,
	}
}

// HealthCheck reports service liveness plus per-channel adapter health.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	type channelHealth struct {
		Channel  string `json:"channel"`
		Provider string `json:"provider"`
		Active   bool   `json:"active"`
		Healthy  bool   `json:"healthy"`
		Error    string `json:"error,omitempty"`
	}

	channels := make([]channelHealth, 0, len(h.adapters))
	for _, a := range h.adapters {
		ch := channelHealth{Channel: a.Name(), Provider: a.ProviderID(), Active: a.IsActive()}
		if a.IsActive() {
			if err := a.HealthCheck(r.Context()); err != nil {
				ch.Error = err.Error()
			} else {
				ch.Healthy = true
			}
		}
		channels = append(channels, ch)
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
		"channels":  channels,
	})
}

// Response helpers

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondServiceError maps service sentinels onto HTTP status codes.
func respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, dispatch.ErrMessageNotFound),
		errors.Is(err, dispatch.ErrTemplateNotFound),
		errors.Is(err, template.ErrNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, template.ErrDuplicateName),
		errors.Is(err, template.ErrActiveDelete):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, dispatch.ErrInvalidRecipient),
		errors.Is(err, dispatch.ErrContentRequired),
		errors.Is(err, dispatch.ErrNotCancellable),
		errors.Is(err, routing.ErrNoActiveChannels),
		errors.Is(err, routing.ErrNoCompatibleChannels):
		respondError(w, http.StatusBadRequest, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}
