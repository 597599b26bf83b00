package template

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/ignite/courier/internal/domain"
	"github.com/ignite/courier/internal/pkg/logger"
)

// Service coordinates template lifecycle operations over a Repository.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// CreateRequest holds the fields for creating a template.
type CreateRequest struct {
	Name             string                    `json:"name"`
	Type             domain.TemplateType       `json:"type"`
	Category         domain.TemplateCategory   `json:"category"`
	Subject          string                    `json:"subject,omitempty"`
	Body             string                    `json:"body"`
	Variables        []domain.TemplateVariable `json:"variables,omitempty"`
	Attachments      []AttachmentInput         `json:"attachments,omitempty"`
	Description      string                    `json:"description,omitempty"`
	Author           string                    `json:"author,omitempty"`
	Tags             []string                  `json:"tags,omitempty"`
	ApprovalRequired bool                      `json:"approval_required,omitempty"`
}

// UpdateRequest holds the fields for updating template content. Nil or
// empty fields keep the current value.
type UpdateRequest struct {
	Subject     *string                   `json:"subject,omitempty"`
	Body        *string                   `json:"body,omitempty"`
	Variables   []domain.TemplateVariable `json:"variables,omitempty"`
	Attachments []AttachmentInput         `json:"attachments,omitempty"`
}

// AttachmentInput is one file attached to a template.
type AttachmentInput struct {
	Filename    string `json:"filename"`
	Content     []byte `json:"content"`
	ContentType string `json:"content_type"`
}

// PreviewResponse is a best-effort render of a template with the given
// variables. When rendering fails, the raw subject and body are returned
// alongside the validation errors.
type PreviewResponse struct {
	Subject          string                    `json:"subject"`
	Body             string                    `json:"body"`
	Variables        []domain.TemplateVariable `json:"variables"`
	MissingVariables []string                  `json:"missing_variables"`
	ValidationErrors []string                  `json:"validation_errors"`
}

// ValidationResult reports structural and variable problems for a template.
type ValidationResult struct {
	IsValid          bool     `json:"is_valid"`
	Errors           []string `json:"errors"`
	Warnings         []string `json:"warnings"`
	MissingVariables []string `json:"missing_variables"`
	UnusedVariables  []string `json:"unused_variables"`
}

// Create builds and stores a new template. Name and type together must be
// unique. Approval-gated templates start inactive; others activate
// immediately.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*domain.Template, error) {
	if _, err := s.repo.FindByName(ctx, req.Name, req.Type); err == nil {
		return nil, fmt.Errorf("%w: %s/%s", ErrDuplicateName, req.Name, req.Type)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	attachments, err := buildAttachments(req.Attachments)
	if err != nil {
		return nil, err
	}

	meta := &domain.TemplateMetadata{
		Description:      req.Description,
		Author:           req.Author,
		Tags:             req.Tags,
		ApprovalRequired: req.ApprovalRequired,
		IsActive:         false,
	}
	tpl, err := domain.NewTemplate(uuid.New().String(), req.Name, req.Type, req.Category,
		req.Subject, req.Body, req.Variables, attachments, meta)
	if err != nil {
		return nil, err
	}

	if !tpl.RequiresApproval() {
		if err := tpl.Activate(); err != nil {
			return nil, err
		}
	}

	if err := s.repo.Save(ctx, tpl); err != nil {
		return nil, fmt.Errorf("save template: %w", err)
	}
	logger.Debug("template created", "template_id", tpl.ID, "name", tpl.Name, "type", string(tpl.Type))
	return tpl, nil
}

// Update applies a content change. The domain entity bumps the patch
// version and clears approval when gated.
func (s *Service) Update(ctx context.Context, id string, req UpdateRequest) (*domain.Template, error) {
	tpl, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	subject := tpl.Subject()
	if req.Subject != nil {
		subject = *req.Subject
	}
	body := tpl.Body()
	if req.Body != nil {
		body = *req.Body
	}
	attachments, err := buildAttachments(req.Attachments)
	if err != nil {
		return nil, err
	}

	if err := tpl.UpdateContent(subject, body, req.Variables, attachments); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, tpl); err != nil {
		return nil, fmt.Errorf("save template: %w", err)
	}
	logger.Debug("template updated", "template_id", id, "version", tpl.Meta().Version)
	return tpl, nil
}

// Get returns a template by id.
func (s *Service) Get(ctx context.Context, id string) (*domain.Template, error) {
	return s.repo.FindByID(ctx, id)
}

// GetByName returns a template by name, optionally narrowed by type.
func (s *Service) GetByName(ctx context.Context, name string, typ domain.TemplateType) (*domain.Template, error) {
	return s.repo.FindByName(ctx, name, typ)
}

// List returns a filtered page of templates plus the total count.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]*domain.Template, int, error) {
	return s.repo.FindMany(ctx, filter)
}

// ActiveTemplates returns active templates, optionally narrowed by type and
// category.
func (s *Service) ActiveTemplates(ctx context.Context, typ domain.TemplateType, category domain.TemplateCategory) ([]*domain.Template, error) {
	active := true
	out, _, err := s.repo.FindMany(ctx, ListFilter{Type: typ, Category: category, Active: &active})
	return out, err
}

// Activate marks a template renderable. Approval-gated templates must be
// approved first.
func (s *Service) Activate(ctx context.Context, id string) error {
	tpl, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if err := tpl.Activate(); err != nil {
		return err
	}
	return s.repo.Save(ctx, tpl)
}

// Deactivate withdraws a template from rendering.
func (s *Service) Deactivate(ctx context.Context, id string) error {
	tpl, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	tpl.Deactivate()
	return s.repo.Save(ctx, tpl)
}

// Approve records the approver on an approval-gated template.
func (s *Service) Approve(ctx context.Context, id, approvedBy string) error {
	tpl, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if err := tpl.Approve(approvedBy); err != nil {
		return err
	}
	logger.Debug("template approved", "template_id", id, "approved_by", approvedBy)
	return s.repo.Save(ctx, tpl)
}

// Preview renders the template with the given variables. Render failures do
// not error the call; they are reported in ValidationErrors with the raw
// template text returned instead.
func (s *Service) Preview(ctx context.Context, id string, variables map[string]any) (*PreviewResponse, error) {
	tpl, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if variables == nil {
		variables = map[string]any{}
	}

	resp := &PreviewResponse{
		Variables:        tpl.Variables(),
		MissingVariables: tpl.MissingVariables(variables),
		ValidationErrors: []string{},
	}

	content, err := tpl.Render(variables)
	if err != nil {
		resp.Subject = tpl.Subject()
		resp.Body = tpl.Body()
		resp.ValidationErrors = append(resp.ValidationErrors, err.Error())
		return resp, nil
	}

	resp.Subject = content.Subject()
	resp.Body = content.Body()
	return resp, nil
}

// Validate checks a template's structure and, when variables are given,
// the variable map against the declarations. Placeholders with no matching
// declaration are errors; declarations never referenced are warnings.
func (s *Service) Validate(ctx context.Context, id string, variables map[string]any) (*ValidationResult, error) {
	tpl, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	result := &ValidationResult{
		Errors:           []string{},
		Warnings:         []string{},
		MissingVariables: []string{},
		UnusedVariables:  []string{},
	}

	declared := make(map[string]bool, len(tpl.Variables()))
	for _, v := range tpl.Variables() {
		declared[v.Name] = true
	}

	if variables != nil {
		result.MissingVariables = tpl.MissingVariables(variables)
		for name := range variables {
			if !declared[name] {
				result.UnusedVariables = append(result.UnusedVariables, name)
			}
		}
		if err := tpl.ValidateInput(variables); err != nil &&
			!strings.Contains(err.Error(), "required variable missing") {
			result.Errors = append(result.Errors, err.Error())
		}
	}
	used := tpl.Placeholders()
	usedSet := make(map[string]bool, len(used))
	for _, name := range used {
		usedSet[name] = true
	}

	var undefined []string
	for _, name := range used {
		if !declared[name] {
			undefined = append(undefined, name)
		}
	}
	if len(undefined) > 0 {
		result.Errors = append(result.Errors, "undefined variables in template: "+strings.Join(undefined, ", "))
	}

	var unreferenced []string
	for _, v := range tpl.Variables() {
		if !usedSet[v.Name] {
			unreferenced = append(unreferenced, v.Name)
		}
	}
	if len(unreferenced) > 0 {
		result.Warnings = append(result.Warnings, "unused variable definitions: "+strings.Join(unreferenced, ", "))
	}

	result.IsValid = len(result.Errors) == 0
	return result, nil
}

// Delete removes a template. Active templates refuse deletion.
func (s *Service) Delete(ctx context.Context, id string) error {
	tpl, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if tpl.IsActive() {
		return ErrActiveDelete
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	logger.Debug("template deleted", "template_id", id)
	return nil
}

// PendingApprovals returns approval-gated templates awaiting approval.
func (s *Service) PendingApprovals(ctx context.Context) ([]*domain.Template, error) {
	return s.repo.FindPendingApproval(ctx)
}

// Duplicate copies a template under a new name, preserving content,
// variables, tags, and the approval requirement.
func (s *Service) Duplicate(ctx context.Context, id, newName string) (*domain.Template, error) {
	src, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	attachments := make([]AttachmentInput, 0, len(src.Attachments()))
	for _, att := range src.Attachments() {
		attachments = append(attachments, AttachmentInput{
			Filename:    att.Filename(),
			Content:     att.Content(),
			ContentType: att.ContentType(),
		})
	}

	return s.Create(ctx, CreateRequest{
		Name:             newName,
		Type:             src.Type,
		Category:         src.Category,
		Subject:          src.Subject(),
		Body:             src.Body(),
		Variables:        src.Variables(),
		Attachments:      attachments,
		Description:      fmt.Sprintf("Duplicate of %s", src.Name),
		Tags:             src.Meta().Tags,
		ApprovalRequired: src.RequiresApproval(),
	})
}

func buildAttachments(inputs []AttachmentInput) ([]domain.Attachment, error) {
	if len(inputs) == 0 {
		return nil, nil
	}
	out := make([]domain.Attachment, 0, len(inputs))
	for _, in := range inputs {
		att, err := domain.NewAttachment(in.Filename, in.Content, in.ContentType)
		if err != nil {
			return nil, err
		}
		out = append(out, att)
	}
	return out, nil
}
