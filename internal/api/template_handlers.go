package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/courier/internal/domain"
	"github.com/ignite/courier/internal/service/template"
)

// templateView is the JSON projection of a template.
type templateView struct {
	ID               string                    `json:"id"`
	Name             string                    `json:"name"`
	Type             domain.TemplateType       `json:"type"`
	Category         domain.TemplateCategory   `json:"category"`
	Subject          string                    `json:"subject"`
	Body             string                    `json:"body"`
	Variables        []domain.TemplateVariable `json:"variables"`
	Version          string                    `json:"version"`
	Description      string                    `json:"description,omitempty"`
	Tags             []string                  `json:"tags,omitempty"`
	IsActive         bool                      `json:"is_active"`
	ApprovalRequired bool                      `json:"approval_required"`
	IsApproved       bool                      `json:"is_approved"`
	ApprovedBy       string                    `json:"approved_by,omitempty"`
	CreatedAt        string                    `json:"created_at"`
	UpdatedAt        string                    `json:"updated_at"`
}

func toTemplateView(t *domain.Template) templateView {
	meta := t.Meta()
	return templateView{
		ID:               t.ID,
		Name:             t.Name,
		Type:             t.Type,
		Category:         t.Category,
		Subject:          t.Subject(),
		Body:             t.Body(),
		Variables:        t.Variables(),
		Version:          meta.Version,
		Description:      meta.Description,
		Tags:             meta.Tags,
		IsActive:         t.IsActive(),
		ApprovalRequired: t.RequiresApproval(),
		IsApproved:       t.IsApproved(),
		ApprovedBy:       meta.ApprovedBy,
		CreatedAt:        t.CreatedAt().UTC().Format("2006-01-02T15:04:05Z07:00"),
		UpdatedAt:        t.UpdatedAt().UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
}

// CreateTemplate stores a new template.
func (h *Handlers) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	var req template.CreateRequest
	if !decodeBody(w, r, &req) {
		return
	}

	tpl, err := h.templates.Create(r.Context(), req)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, toTemplateView(tpl))
}

// UpdateTemplate applies a content update.
func (h *Handlers) UpdateTemplate(w http.ResponseWriter, r *http.Request) {
	var req template.UpdateRequest
	if !decodeBody(w, r, &req) {
		return
	}

	tpl, err := h.templates.Update(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toTemplateView(tpl))
}

// GetTemplate returns one template by id, or by name via ?name=.
func (h *Handlers) GetTemplate(w http.ResponseWriter, r *http.Request) {
	tpl, err := h.templates.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toTemplateView(tpl))
}

// ListTemplates returns a filtered page of templates.
func (h *Handlers) ListTemplates(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if name := q.Get("name"); name != "" {
		tpl, err := h.templates.GetByName(r.Context(), name, domain.TemplateType(q.Get("type")))
		if err != nil {
			respondServiceError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"templates": []templateView{toTemplateView(tpl)},
			"total":     1,
		})
		return
	}

	filter := template.ListFilter{
		Type:     domain.TemplateType(q.Get("type")),
		Category: domain.TemplateCategory(q.Get("category")),
	}
	if active := q.Get("active"); active != "" {
		b := active == "true"
		filter.Active = &b
	}
	if tags := q.Get("tags"); tags != "" {
		filter.Tags = strings.Split(tags, ",")
	}
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))
	filter.Offset, _ = strconv.Atoi(q.Get("offset"))

	templates, total, err := h.templates.List(r.Context(), filter)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	views := make([]templateView, 0, len(templates))
	for _, t := range templates {
		views = append(views, toTemplateView(t))
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"templates": views,
		"total":     total,
	})
}

// DeleteTemplate removes an inactive template.
func (h *Handlers) DeleteTemplate(w http.ResponseWriter, r *http.Request) {
	if err := h.templates.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ActivateTemplate marks a template renderable.
func (h *Handlers) ActivateTemplate(w http.ResponseWriter, r *http.Request) {
	if err := h.templates.Activate(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"active": true})
}

// DeactivateTemplate withdraws a template from rendering.
func (h *Handlers) DeactivateTemplate(w http.ResponseWriter, r *http.Request) {
	if err := h.templates.Deactivate(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"active": false})
}

// ApproveTemplate records the approver on an approval-gated template.
func (h *Handlers) ApproveTemplate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ApprovedBy string `json:"approved_by"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.ApprovedBy == "" {
		respondError(w, http.StatusBadRequest, "approved_by is required")
		return
	}

	if err := h.templates.Approve(r.Context(), chi.URLParam(r, "id"), req.ApprovedBy); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"approved_by": req.ApprovedBy})
}

// PreviewTemplate renders a template with the supplied variables.
func (h *Handlers) PreviewTemplate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Variables map[string]any `json:"variables"`
	}
	if r.ContentLength > 0 && !decodeBody(w, r, &req) {
		return
	}

	resp, err := h.templates.Preview(r.Context(), chi.URLParam(r, "id"), req.Variables)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

// ValidateTemplate checks template structure and variables.
func (h *Handlers) ValidateTemplate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Variables map[string]any `json:"variables"`
	}
	if r.ContentLength > 0 && !decodeBody(w, r, &req) {
		return
	}

	result, err := h.templates.Validate(r.Context(), chi.URLParam(r, "id"), req.Variables)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// DuplicateTemplate copies a template under a new name.
func (h *Handlers) DuplicateTemplate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Name == "" {
		respondError(w, http.StatusBadRequest, "name is required")
		return
	}

	tpl, err := h.templates.Duplicate(r.Context(), chi.URLParam(r, "id"), req.Name)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, toTemplateView(tpl))
}

// PendingApprovals lists approval-gated templates awaiting review.
func (h *Handlers) PendingApprovals(w http.ResponseWriter, r *http.Request) {
	templates, err := h.templates.PendingApprovals(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}
	views := make([]templateView, 0, len(templates))
	for _, t := range templates {
		views = append(views, toTemplateView(t))
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"templates": views})
}
