package dispatch

import (
	"context"

	"github.com/ignite/courier/internal/domain"
)

// MessageRepository defines the data access contract for messages.
// Implementations must be safe for concurrent use.
type MessageRepository interface {
	// Save inserts or updates a message with its full delivery history.
	Save(ctx context.Context, m *domain.Message) error

	// FindByID returns a single message. Returns ErrMessageNotFound if it
	// doesn't exist.
	FindByID(ctx context.Context, id string) (*domain.Message, error)

	// FindMany returns messages matching the filter, newest first, plus the
	// total count before pagination.
	FindMany(ctx context.Context, filter MessageFilter) ([]*domain.Message, int, error)

	// FindPending returns up to limit queued or failed messages whose
	// next-attempt time has passed. With priorityOrder the page is ordered
	// by processing score, otherwise oldest first.
	FindPending(ctx context.Context, limit int, priorityOrder bool) ([]*domain.Message, error)

	// UpdateStatus transitions a message's persisted status directly.
	UpdateStatus(ctx context.Context, id string, status domain.Status) error

	// Delete removes a message.
	Delete(ctx context.Context, id string) error

	// Count returns how many messages match the filter.
	Count(ctx context.Context, filter MessageFilter) (int, error)
}

// TemplateRepository is the slice of template access the dispatch path
// needs: resolving a template for rendering.
type TemplateRepository interface {
	// FindByID returns a template. Returns ErrTemplateNotFound if it
	// doesn't exist.
	FindByID(ctx context.Context, id string) (*domain.Template, error)
}

// UnitOfWork provides transactional repository access. WithTransaction runs
// fn with a context whose repository calls share one transaction; if fn
// returns an error the transaction rolls back.
type UnitOfWork interface {
	Messages() MessageRepository
	Templates() TemplateRepository
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// MessageFilter controls filtering and pagination for message lists.
type MessageFilter struct {
	Status    domain.Status
	Channel   string
	Priority  domain.Priority
	Recipient string
	BatchID   string
	Limit     int
	Offset    int
}
