package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ignite/courier/internal/domain"
	"github.com/ignite/courier/internal/service/dispatch"
	"github.com/ignite/courier/internal/service/template"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type txKey struct{}

// q resolves the active transaction from the context, falling back to the
// plain connection pool.
func q(ctx context.Context, db *sql.DB) querier {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return db
}

// UnitOfWork implements dispatch.UnitOfWork over a shared *sql.DB. The
// transaction started by WithTransaction travels in the context, so the
// repositories transparently join it.
type UnitOfWork struct {
	db        *sql.DB
	messages  *MessageRepo
	templates *TemplateRepo
}

// NewUnitOfWork creates the Postgres unit of work.
func NewUnitOfWork(db *sql.DB) *UnitOfWork {
	return &UnitOfWork{
		db:        db,
		messages:  NewMessageRepo(db),
		templates: NewTemplateRepo(db),
	}
}

func (u *UnitOfWork) Messages() dispatch.MessageRepository { return u.messages }

func (u *UnitOfWork) Templates() dispatch.TemplateRepository {
	return dispatchTemplates{repo: u.templates}
}

// WithTransaction runs fn inside a database transaction. A fn invoked while
// a transaction is already active joins it instead of nesting.
func (u *UnitOfWork) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return fn(ctx)
	}

	tx, err := u.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// dispatchTemplates narrows TemplateRepo to the dispatch-side interface and
// maps the not-found sentinel.
type dispatchTemplates struct {
	repo *TemplateRepo
}

func (d dispatchTemplates) FindByID(ctx context.Context, id string) (*domain.Template, error) {
	tpl, err := d.repo.FindByID(ctx, id)
	if errors.Is(err, template.ErrNotFound) {
		return nil, dispatch.ErrTemplateNotFound
	}
	return tpl, err
}

// EnsureSchema creates the communication tables and indexes if missing.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if err := ensureMessageSchema(ctx, db); err != nil {
		return err
	}
	return ensureTemplateSchema(ctx, db)
}
