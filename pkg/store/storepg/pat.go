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

type patRepo struct{ conn namedExecer }

type patRow struct {
	ID          string         `db:"id"`
	UserID      string         `db:"user_id"`
	Name        string         `db:"name"`
	TokenPrefix string         `db:"token_prefix"`
	TokenHash   string         `db:"token_hash"`
	Scopes      pq.StringArray `db:"scopes"`
	AgentIDs    pq.StringArray `db:"agent_ids"`
	CompanyIDs  pq.StringArray `db:"company_ids"`
	ExpiresAt   sql.NullTime   `db:"expires_at"`
	IsRevoked   bool           `db:"is_revoked"`
	LastUsedAt  sql.NullTime   `db:"last_used_at"`
	CreatedAt   time.Time      `db:"created_at"`
}

func (row patRow) toDomain() *store.PersonalAccessToken {
	p := &store.PersonalAccessToken{
		ID:          row.ID,
		UserID:      kernel.NewUserID(row.UserID),
		Name:        row.Name,
		TokenPrefix: row.TokenPrefix,
		TokenHash:   row.TokenHash,
		Scopes:      []string(row.Scopes),
		AgentIDs:    []string(row.AgentIDs),
		CompanyIDs:  []string(row.CompanyIDs),
		IsRevoked:   row.IsRevoked,
		CreatedAt:   row.CreatedAt,
	}
	if row.ExpiresAt.Valid {
		p.ExpiresAt = &row.ExpiresAt.Time
	}
	if row.LastUsedAt.Valid {
		p.LastUsedAt = &row.LastUsedAt.Time
	}
	return p
}

func patToRow(p store.PersonalAccessToken) patRow {
	row := patRow{
		ID:          p.ID,
		UserID:      p.UserID.String(),
		Name:        p.Name,
		TokenPrefix: p.TokenPrefix,
		TokenHash:   p.TokenHash,
		Scopes:      pq.StringArray(p.Scopes),
		AgentIDs:    pq.StringArray(p.AgentIDs),
		CompanyIDs:  pq.StringArray(p.CompanyIDs),
		IsRevoked:   p.IsRevoked,
		CreatedAt:   p.CreatedAt,
	}
	if p.ExpiresAt != nil {
		row.ExpiresAt = sql.NullTime{Time: *p.ExpiresAt, Valid: true}
	}
	if p.LastUsedAt != nil {
		row.LastUsedAt = sql.NullTime{Time: *p.LastUsedAt, Valid: true}
	}
	return row
}

func (r *patRepo) Create(ctx context.Context, pat store.PersonalAccessToken) error {
	const q = `
		INSERT INTO personal_access_tokens (
			id, user_id, name, token_prefix, token_hash, scopes, agent_ids,
			company_ids, expires_at, is_revoked, last_used_at, created_at
		) VALUES (
			:id, :user_id, :name, :token_prefix, :token_hash, :scopes, :agent_ids,
			:company_ids, :expires_at, :is_revoked, :last_used_at, :created_at
		)`
	_, err := r.conn.NamedExecContext(ctx, q, patToRow(pat))
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return errx.New("a PAT with that name already exists", errx.TypeConflict)
		}
		return errx.Wrap(err, "failed to create PAT", errx.TypeInternal)
	}
	return nil
}

func (r *patRepo) FindByID(ctx context.Context, id string, userID kernel.UserID) (*store.PersonalAccessToken, error) {
	var row patRow
	const q = `SELECT * FROM personal_access_tokens WHERE id = $1 AND user_id = $2`
	if err := r.conn.GetContext(ctx, &row, q, id, userID.String()); err != nil {
		if err == sql.ErrNoRows {
			return nil, errx.New("PAT not found", errx.TypeNotFound)
		}
		return nil, errx.Wrap(err, "failed to find PAT by id", errx.TypeInternal)
	}
	return row.toDomain(), nil
}

func (r *patRepo) FindByHash(ctx context.Context, tokenHash string) (*store.PersonalAccessToken, error) {
	var row patRow
	const q = `SELECT * FROM personal_access_tokens WHERE token_hash = $1`
	if err := r.conn.GetContext(ctx, &row, q, tokenHash); err != nil {
		if err == sql.ErrNoRows {
			return nil, errx.New("PAT not found", errx.TypeNotFound)
		}
		return nil, errx.Wrap(err, "failed to find PAT by hash", errx.TypeInternal)
	}
	return row.toDomain(), nil
}

func (r *patRepo) FindByUser(ctx context.Context, userID kernel.UserID) ([]*store.PersonalAccessToken, error) {
	var rows []patRow
	const q = `SELECT * FROM personal_access_tokens WHERE user_id = $1 ORDER BY created_at DESC`
	if err := r.conn.SelectContext(ctx, &rows, q, userID.String()); err != nil {
		return nil, errx.Wrap(err, "failed to find PATs by user", errx.TypeInternal)
	}
	out := make([]*store.PersonalAccessToken, len(rows))
	for i, row := range rows {
		out[i] = row.toDomain()
	}
	return out, nil
}

func (r *patRepo) Update(ctx context.Context, pat store.PersonalAccessToken) error {
	const q = `
		UPDATE personal_access_tokens SET
			name = :name, token_prefix = :token_prefix, token_hash = :token_hash,
			scopes = :scopes, agent_ids = :agent_ids, company_ids = :company_ids,
			expires_at = :expires_at, is_revoked = :is_revoked
		WHERE id = :id`
	res, err := r.conn.NamedExecContext(ctx, q, patToRow(pat))
	if err != nil {
		return errx.Wrap(err, "failed to update PAT", errx.TypeInternal)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errx.New("PAT not found", errx.TypeNotFound)
	}
	return nil
}

func (r *patRepo) UpdateLastUsed(ctx context.Context, id string, at time.Time) error {
	const q = `UPDATE personal_access_tokens SET last_used_at = $2 WHERE id = $1`
	_, err := r.conn.ExecContext(ctx, q, id, at)
	if err != nil {
		return errx.Wrap(err, "failed to update PAT last_used_at", errx.TypeInternal)
	}
	return nil
}

func (r *patRepo) Delete(ctx context.Context, id string, userID kernel.UserID) error {
	const q = `DELETE FROM personal_access_tokens WHERE id = $1 AND user_id = $2`
	res, err := r.conn.ExecContext(ctx, q, id, userID.String())
	if err != nil {
		return errx.Wrap(err, "failed to delete PAT", errx.TypeInternal)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errx.New("PAT not found", errx.TypeNotFound)
	}
	return nil
}
