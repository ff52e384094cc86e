package storepg

import (
	"context"
	"database/sql"
	"time"

	"github.com/flowctl/core/pkg/errx"
	"github.com/flowctl/core/pkg/kernel"
	"github.com/flowctl/core/pkg/store"
	"github.com/lib/pq"
)

type conversationRepo struct{ conn namedExecer }

type conversationRow struct {
	ID           string         `db:"id"`
	TenantID     string         `db:"tenant_id"`
	Type         string         `db:"type"`
	ParentID     sql.NullString `db:"parent_id"`
	Participants pq.StringArray `db:"participants"`
	CreatedAt    time.Time      `db:"created_at"`
}

func (r *conversationRepo) Find(ctx context.Context, id string) (*store.Conversation, error) {
	var row conversationRow
	const q = `SELECT * FROM conversations WHERE id = $1`
	if err := r.conn.GetContext(ctx, &row, q, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errx.New("conversation not found", errx.TypeNotFound)
		}
		return nil, errx.Wrap(err, "failed to find conversation", errx.TypeInternal)
	}
	return rowToConversation(row), nil
}

func (r *conversationRepo) Create(ctx context.Context, c store.Conversation) error {
	row := conversationToRow(c)
	const q = `
		INSERT INTO conversations (id, tenant_id, type, parent_id, participants, created_at)
		VALUES (:id, :tenant_id, :type, :parent_id, :participants, :created_at)`
	_, err := r.conn.NamedExecContext(ctx, q, row)
	if err != nil {
		return errx.Wrap(err, "failed to create conversation", errx.TypeInternal)
	}
	return nil
}

func (r *conversationRepo) AppendMessage(ctx context.Context, m store.Message) error {
	const q = `
		INSERT INTO messages (id, conversation_id, role, content, created_at)
		VALUES (:id, :conversation_id, :role, :content, :created_at)`
	_, err := r.conn.NamedExecContext(ctx, q, m)
	if err != nil {
		return errx.Wrap(err, "failed to append message", errx.TypeInternal)
	}
	return nil
}

func (r *conversationRepo) Messages(ctx context.Context, conversationID string) ([]*store.Message, error) {
	var rows []store.Message
	const q = `SELECT * FROM messages WHERE conversation_id = $1 ORDER BY created_at ASC`
	if err := r.conn.SelectContext(ctx, &rows, q, conversationID); err != nil {
		return nil, errx.Wrap(err, "failed to load messages", errx.TypeInternal)
	}
	out := make([]*store.Message, len(rows))
	for i := range rows {
		out[i] = &rows[i]
	}
	return out, nil
}

func rowToConversation(row conversationRow) *store.Conversation {
	c := &store.Conversation{
		ID:           row.ID,
		TenantID:     kernel.NewTenantID(row.TenantID),
		Type:         store.ConversationType(row.Type),
		Participants: []string(row.Participants),
		CreatedAt:    row.CreatedAt,
	}
	if row.ParentID.Valid {
		c.ParentID = &row.ParentID.String
	}
	return c
}

func conversationToRow(c store.Conversation) conversationRow {
	row := conversationRow{
		ID:           c.ID,
		TenantID:     c.TenantID.String(),
		Type:         string(c.Type),
		Participants: pq.StringArray(c.Participants),
		CreatedAt:    c.CreatedAt,
	}
	if c.ParentID != nil {
		row.ParentID = sql.NullString{String: *c.ParentID, Valid: true}
	}
	return row
}
