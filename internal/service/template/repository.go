package template

import (
	"context"

	"github.com/ignite/courier/internal/domain"
)

// ListFilter narrows a template listing. Zero values mean "no constraint".
type ListFilter struct {
	Type     domain.TemplateType
	Category domain.TemplateCategory
	Active   *bool
	Tags     []string
	Limit    int
	Offset   int
}

// Repository is the persistence surface the template service needs.
type Repository interface {
	// Save inserts or replaces a template by id.
	Save(ctx context.Context, t *domain.Template) error

	// FindByID returns the template or ErrNotFound.
	FindByID(ctx context.Context, id string) (*domain.Template, error)

	// FindByName returns the template with the given name and type, or
	// ErrNotFound. An empty type matches any type.
	FindByName(ctx context.Context, name string, typ domain.TemplateType) (*domain.Template, error)

	// FindMany returns a filtered page of templates, newest first, plus the
	// total count before pagination.
	FindMany(ctx context.Context, filter ListFilter) ([]*domain.Template, int, error)

	// FindPendingApproval returns approval-gated templates not yet approved.
	FindPendingApproval(ctx context.Context) ([]*domain.Template, error)

	// Delete removes a template by id. Missing ids return ErrNotFound.
	Delete(ctx context.Context, id string) error
}
