package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/ignite/courier/internal/domain"
	"github.com/ignite/courier/internal/service/template"
)

// TemplateRepo implements template.Repository against PostgreSQL.
type TemplateRepo struct{ db *sql.DB }

// NewTemplateRepo creates a Postgres-backed template repository.
func NewTemplateRepo(db *sql.DB) *TemplateRepo { return &TemplateRepo{db: db} }

func (r *TemplateRepo) Save(ctx context.Context, t *domain.Template) error {
	variables, err := json.Marshal(t.Variables())
	if err != nil {
		return fmt.Errorf("marshal template variables: %w", err)
	}
	attachments, err := json.Marshal(t.Attachments())
	if err != nil {
		return fmt.Errorf("marshal template attachments: %w", err)
	}
	meta := t.Meta()

	_, err = q(ctx, r.db).ExecContext(ctx, `
		INSERT INTO communication_templates
			(id, name, type, category, subject, body, variables, attachments,
			 version, author, description, tags, is_active, approval_required,
			 approved_by, approved_at, last_modified, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		ON CONFLICT (id) DO UPDATE SET
			subject = EXCLUDED.subject,
			body = EXCLUDED.body,
			variables = EXCLUDED.variables,
			attachments = EXCLUDED.attachments,
			version = EXCLUDED.version,
			description = EXCLUDED.description,
			tags = EXCLUDED.tags,
			is_active = EXCLUDED.is_active,
			approval_required = EXCLUDED.approval_required,
			approved_by = EXCLUDED.approved_by,
			approved_at = EXCLUDED.approved_at,
			last_modified = EXCLUDED.last_modified,
			updated_at = EXCLUDED.updated_at
	`, t.ID, t.Name, t.Type, t.Category, t.Subject(), t.Body(), variables, attachments,
		meta.Version, meta.Author, meta.Description, pq.Array(meta.Tags),
		meta.IsActive, meta.ApprovalRequired, meta.ApprovedBy, meta.ApprovedAt,
		meta.LastModified, t.CreatedAt(), t.UpdatedAt())
	if err != nil {
		return fmt.Errorf("save template: %w", err)
	}
	return nil
}

const templateColumns = `id, name, type, category, subject, body, variables, attachments,
	version, COALESCE(author,''), COALESCE(description,''), tags, is_active,
	approval_required, COALESCE(approved_by,''), approved_at, last_modified,
	created_at, updated_at`

func (r *TemplateRepo) FindByID(ctx context.Context, id string) (*domain.Template, error) {
	row := q(ctx, r.db).QueryRowContext(ctx,
		"SELECT "+templateColumns+" FROM communication_templates WHERE id = $1", id)
	return scanTemplate(row)
}

func (r *TemplateRepo) FindByName(ctx context.Context, name string, typ domain.TemplateType) (*domain.Template, error) {
	query := "SELECT " + templateColumns + " FROM communication_templates WHERE name = $1"
	args := []interface{}{name}
	if typ != "" {
		query += " AND type = $2"
		args = append(args, typ)
	}
	query += " LIMIT 1"
	return scanTemplate(q(ctx, r.db).QueryRowContext(ctx, query, args...))
}

func (r *TemplateRepo) FindMany(ctx context.Context, f template.ListFilter) ([]*domain.Template, int, error) {
	where := ""
	args := []interface{}{}
	idx := 1
	add := func(clause string, val interface{}) {
		if where == "" {
			where = " WHERE "
		} else {
			where += " AND "
		}
		where += fmt.Sprintf(clause, idx)
		args = append(args, val)
		idx++
	}

	if f.Type != "" {
		add("type = $%d", f.Type)
	}
	if f.Category != "" {
		add("category = $%d", f.Category)
	}
	if f.Active != nil {
		add("is_active = $%d", *f.Active)
	}
	if len(f.Tags) > 0 {
		add("tags && $%d", pq.Array(f.Tags))
	}

	var total int
	if err := q(ctx, r.db).QueryRowContext(ctx,
		"SELECT COUNT(*) FROM communication_templates"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count templates: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf("SELECT %s FROM communication_templates%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d",
		templateColumns, where, idx, idx+1)
	args = append(args, limit, f.Offset)

	rows, err := q(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	var out []*domain.Template
	for rows.Next() {
		tpl, err := scanTemplateRow(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, tpl)
	}
	return out, total, rows.Err()
}

func (r *TemplateRepo) FindPendingApproval(ctx context.Context) ([]*domain.Template, error) {
	rows, err := q(ctx, r.db).QueryContext(ctx,
		"SELECT "+templateColumns+` FROM communication_templates
		WHERE approval_required = true AND (approved_by IS NULL OR approved_by = '')
		ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("find pending approvals: %w", err)
	}
	defer rows.Close()

	var out []*domain.Template
	for rows.Next() {
		tpl, err := scanTemplateRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tpl)
	}
	return out, rows.Err()
}

func (r *TemplateRepo) Delete(ctx context.Context, id string) error {
	res, err := q(ctx, r.db).ExecContext(ctx,
		"DELETE FROM communication_templates WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete template: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return template.ErrNotFound
	}
	return nil
}

// scanner covers *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanTemplate(row *sql.Row) (*domain.Template, error) {
	tpl, err := scanTemplateRow(row)
	if err == sql.ErrNoRows {
		return nil, template.ErrNotFound
	}
	return tpl, err
}

func scanTemplateRow(s scanner) (*domain.Template, error) {
	var (
		id, name, typ, category, subject, body string
		variablesJSON, attachmentsJSON         []byte
		meta                                   domain.TemplateMetadata
		approvedAt                             sql.NullTime
		tags                                   []string
		createdAt, updatedAt                   time.Time
	)
	err := s.Scan(&id, &name, &typ, &category, &subject, &body,
		&variablesJSON, &attachmentsJSON,
		&meta.Version, &meta.Author, &meta.Description, pq.Array(&tags),
		&meta.IsActive, &meta.ApprovalRequired, &meta.ApprovedBy, &approvedAt,
		&meta.LastModified, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan template: %w", err)
	}

	var variables []domain.TemplateVariable
	if len(variablesJSON) > 0 {
		if err := json.Unmarshal(variablesJSON, &variables); err != nil {
			return nil, fmt.Errorf("unmarshal template variables: %w", err)
		}
	}
	var attachments []domain.Attachment
	if len(attachmentsJSON) > 0 {
		if err := json.Unmarshal(attachmentsJSON, &attachments); err != nil {
			return nil, fmt.Errorf("unmarshal template attachments: %w", err)
		}
	}

	meta.Tags = tags
	if approvedAt.Valid {
		t := approvedAt.Time
		meta.ApprovedAt = &t
	}

	return domain.RestoreTemplate(id, name, domain.TemplateType(typ), domain.TemplateCategory(category),
		subject, body, variables, attachments, meta, createdAt, updatedAt), nil
}

// ensureTemplateSchema creates the templates table and a uniqueness guard
// on (name, type).
func ensureTemplateSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS communication_templates (
			id UUID PRIMARY KEY,
			name VARCHAR(200) NOT NULL,
			type VARCHAR(20) NOT NULL,
			category VARCHAR(30) NOT NULL,
			subject VARCHAR(200) NOT NULL,
			body TEXT NOT NULL,
			variables JSONB NOT NULL DEFAULT '[]',
			attachments JSONB NOT NULL DEFAULT '[]',
			version VARCHAR(20) NOT NULL DEFAULT '1.0.0',
			author VARCHAR(200),
			description TEXT,
			tags TEXT[] DEFAULT '{}',
			is_active BOOLEAN NOT NULL DEFAULT false,
			approval_required BOOLEAN NOT NULL DEFAULT false,
			approved_by VARCHAR(200),
			approved_at TIMESTAMP WITH TIME ZONE,
			last_modified TIMESTAMP WITH TIME ZONE NOT NULL,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL,
			updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
			UNIQUE (name, type)
		)
	`)
	if err != nil {
		return fmt.Errorf("ensure template schema: %w", err)
	}
	return nil
}
