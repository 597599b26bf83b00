package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"

	"github.com/ignite/courier/internal/domain"
	"github.com/ignite/courier/internal/service/dispatch"
)

// MessageRepo implements dispatch.MessageRepository against PostgreSQL.
// The full aggregate lives in a JSONB payload column; the hot query fields
// (status, channel, priority, recipient, batch id, next attempt) are
// duplicated into indexed columns.
type MessageRepo struct{ db *sql.DB }

// NewMessageRepo creates a Postgres-backed message repository.
func NewMessageRepo(db *sql.DB) *MessageRepo { return &MessageRepo{db: db} }

func (r *MessageRepo) Save(ctx context.Context, m *domain.Message) error {
	payload, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	var batchID string
	if v, ok := m.Context.Metadata("batchId"); ok {
		batchID, _ = v.(string)
	}

	_, err = q(ctx, r.db).ExecContext(ctx, `
		INSERT INTO communication_messages
			(id, status, channel, priority, recipient_type, recipient, batch_id,
			 tags, retry_count, next_attempt_at, payload, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			channel = EXCLUDED.channel,
			priority = EXCLUDED.priority,
			retry_count = EXCLUDED.retry_count,
			next_attempt_at = EXCLUDED.next_attempt_at,
			payload = EXCLUDED.payload,
			updated_at = EXCLUDED.updated_at
	`, m.ID, m.Status(), m.Channel, m.Priority, m.Recipient.Type(), m.Recipient.Identifier(),
		batchID, pq.Array(m.Metadata.Tags), m.RetryCount(), m.NextAttemptAt(), payload,
		m.CreatedAt(), m.UpdatedAt())
	if err != nil {
		return fmt.Errorf("save message: %w", err)
	}
	return nil
}

func (r *MessageRepo) FindByID(ctx context.Context, id string) (*domain.Message, error) {
	var payload []byte
	err := q(ctx, r.db).QueryRowContext(ctx, `
		SELECT payload FROM communication_messages WHERE id = $1
	`, id).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, dispatch.ErrMessageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}
	return unmarshalMessage(payload)
}

func (r *MessageRepo) FindMany(ctx context.Context, f dispatch.MessageFilter) ([]*domain.Message, int, error) {
	where, args := messageFilterClauses(f)

	var total int
	countQ := "SELECT COUNT(*) FROM communication_messages" + where
	if err := q(ctx, r.db).QueryRowContext(ctx, countQ, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count messages: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	listQ := fmt.Sprintf("SELECT payload FROM communication_messages%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d",
		where, len(args)+1, len(args)+2)
	args = append(args, limit, f.Offset)

	rows, err := q(ctx, r.db).QueryContext(ctx, listQ, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	out, err := scanMessages(rows)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// FindPending returns queued or failed messages whose next attempt time has
// passed, ordered by priority weight then age when priorityOrder is set.
func (r *MessageRepo) FindPending(ctx context.Context, limit int, priorityOrder bool) ([]*domain.Message, error) {
	if limit <= 0 {
		limit = 100
	}

	order := "created_at ASC"
	if priorityOrder {
		order = `CASE priority
			WHEN 'urgent' THEN 4
			WHEN 'high' THEN 3
			WHEN 'normal' THEN 2
			ELSE 1
		END DESC, created_at ASC`
	}

	rows, err := q(ctx, r.db).QueryContext(ctx, fmt.Sprintf(`
		SELECT payload FROM communication_messages
		WHERE status IN ('queued', 'failed')
		  AND (next_attempt_at IS NULL OR next_attempt_at <= NOW())
		ORDER BY %s
		LIMIT $1
	`, order), limit)
	if err != nil {
		return nil, fmt.Errorf("find pending messages: %w", err)
	}
	defer rows.Close()

	return scanMessages(rows)
}

func (r *MessageRepo) UpdateStatus(ctx context.Context, id string, status domain.Status) error {
	res, err := q(ctx, r.db).ExecContext(ctx, `
		UPDATE communication_messages
		SET status = $1, payload = jsonb_set(payload, '{status}', to_jsonb($1::text)), updated_at = NOW()
		WHERE id = $2
	`, status, id)
	if err != nil {
		return fmt.Errorf("update message status: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return dispatch.ErrMessageNotFound
	}
	return nil
}

func (r *MessageRepo) Delete(ctx context.Context, id string) error {
	res, err := q(ctx, r.db).ExecContext(ctx, `
		DELETE FROM communication_messages WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return dispatch.ErrMessageNotFound
	}
	return nil
}

func (r *MessageRepo) Count(ctx context.Context, f dispatch.MessageFilter) (int, error) {
	where, args := messageFilterClauses(f)
	var total int
	if err := q(ctx, r.db).QueryRowContext(ctx, "SELECT COUNT(*) FROM communication_messages"+where, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return total, nil
}

func messageFilterClauses(f dispatch.MessageFilter) (string, []interface{}) {
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

	if f.Status != "" {
		add("status = $%d", f.Status)
	}
	if f.Channel != "" {
		add("channel = $%d", f.Channel)
	}
	if f.Priority != "" {
		add("priority = $%d", f.Priority)
	}
	if f.Recipient != "" {
		add("recipient = $%d", f.Recipient)
	}
	if f.BatchID != "" {
		add("batch_id = $%d", f.BatchID)
	}
	return where, args
}

func scanMessages(rows *sql.Rows) ([]*domain.Message, error) {
	var out []*domain.Message
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m, err := unmarshalMessage(payload)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func unmarshalMessage(payload []byte) (*domain.Message, error) {
	var m domain.Message
	if err := json.Unmarshal(payload, &m); err != nil {
		return nil, fmt.Errorf("unmarshal message: %w", err)
	}
	return &m, nil
}

// ensureMessageSchema creates the messages table and its hot-path indexes.
func ensureMessageSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS communication_messages (
			id UUID PRIMARY KEY,
			status VARCHAR(20) NOT NULL,
			channel VARCHAR(50) NOT NULL,
			priority VARCHAR(20) NOT NULL,
			recipient_type VARCHAR(20) NOT NULL,
			recipient VARCHAR(500) NOT NULL,
			batch_id VARCHAR(100) DEFAULT '',
			tags TEXT[] DEFAULT '{}',
			retry_count INT NOT NULL DEFAULT 0,
			next_attempt_at TIMESTAMP WITH TIME ZONE,
			payload JSONB NOT NULL,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL,
			updated_at TIMESTAMP WITH TIME ZONE NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_comm_messages_pending
			ON communication_messages (status, next_attempt_at)
			WHERE status IN ('queued', 'failed');
		CREATE INDEX IF NOT EXISTS idx_comm_messages_batch
			ON communication_messages (batch_id) WHERE batch_id <> ''
	`)
	if err != nil {
		return fmt.Errorf("ensure message schema: %w", err)
	}
	return nil
}
