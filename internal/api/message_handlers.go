package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/courier/internal/domain"
	"github.com/ignite/courier/internal/service/dispatch"
)

// SendMessage queues a single message and attempts immediate delivery.
func (h *Handlers) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req dispatch.SendRequest
	if !decodeBody(w, r, &req) {
		return
	}

	resp, err := h.dispatch.SendMessage(r.Context(), req)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, resp)
}

// SendBulkMessages fans a template out to many recipients.
func (h *Handlers) SendBulkMessages(w http.ResponseWriter, r *http.Request) {
	var req dispatch.BulkSendRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.Recipients) == 0 {
		respondError(w, http.StatusBadRequest, "at least one recipient is required")
		return
	}

	resp, err := h.dispatch.SendBulkMessages(r.Context(), req)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, resp)
}

// ProcessPending runs one pending-message sweep.
func (h *Handlers) ProcessPending(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Limit int `json:"limit"`
	}
	if r.ContentLength > 0 && !decodeBody(w, r, &req) {
		return
	}

	processed, err := h.dispatch.ProcessPendingMessages(r.Context(), req.Limit)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"processed": processed})
}

// GetMessage returns one message with its delivery history.
func (h *Handlers) GetMessage(w http.ResponseWriter, r *http.Request) {
	msg, err := h.dispatch.GetMessage(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, msg)
}

// ListMessages returns a filtered page of messages.
func (h *Handlers) ListMessages(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := dispatch.MessageFilter{
		Status:    domain.Status(q.Get("status")),
		Channel:   q.Get("channel"),
		Priority:  domain.Priority(q.Get("priority")),
		Recipient: q.Get("recipient"),
		BatchID:   q.Get("batch_id"),
	}
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))
	filter.Offset, _ = strconv.Atoi(q.Get("offset"))

	messages, total, err := h.dispatch.ListMessages(r.Context(), filter)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"messages": messages,
		"total":    total,
	})
}

// CancelMessage cancels a draft, queued, or failed message.
func (h *Handlers) CancelMessage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.dispatch.CancelMessage(r.Context(), id); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"id": id, "status": string(domain.StatusCancelled)})
}
