package storepg

import (
	"context"
	"database/sql"
	"time"

	"github.com/flowctl/core/pkg/errx"
	"github.com/flowctl/core/pkg/kernel"
	"github.com/flowctl/core/pkg/store"
)

type oauthRepo struct{ conn namedExecer }

type oauthRow struct {
	UserID         string       `db:"user_id"`
	ProviderID     string       `db:"provider_id"`
	AccountName    string       `db:"account_name"`
	AccessToken    string       `db:"access_token"`
	RefreshToken   string       `db:"refresh_token"`
	TokenExpiresAt sql.NullTime `db:"token_expires_at"`
}

func (row oauthRow) toDomain() *store.UserOAuth {
	o := &store.UserOAuth{
		UserID:       kernel.NewUserID(row.UserID),
		ProviderID:   row.ProviderID,
		AccountName:  row.AccountName,
		AccessToken:  row.AccessToken,
		RefreshToken: row.RefreshToken,
	}
	if row.TokenExpiresAt.Valid {
		o.TokenExpiresAt = &row.TokenExpiresAt.Time
	}
	return o
}

func toOAuthRow(o store.UserOAuth) oauthRow {
	row := oauthRow{
		UserID:       o.UserID.String(),
		ProviderID:   o.ProviderID,
		AccountName:  o.AccountName,
		AccessToken:  o.AccessToken,
		RefreshToken: o.RefreshToken,
	}
	if o.TokenExpiresAt != nil {
		row.TokenExpiresAt = sql.NullTime{Time: *o.TokenExpiresAt, Valid: true}
	}
	return row
}

func (r *oauthRepo) Find(ctx context.Context, userID kernel.UserID, providerID string) (*store.UserOAuth, error) {
	var row oauthRow
	const q = `SELECT * FROM user_oauth WHERE user_id = $1 AND provider_id = $2`
	if err := r.conn.GetContext(ctx, &row, q, userID.String(), providerID); err != nil {
		if err == sql.ErrNoRows {
			return nil, errx.New("oauth credential not found", errx.TypeNotFound)
		}
		return nil, errx.Wrap(err, "failed to find oauth credential", errx.TypeInternal)
	}
	return row.toDomain(), nil
}

// Upsert is writer-wins: concurrent refreshes of the same row are safe
// because both write the newer token (§5 Shared-resource policy).
func (r *oauthRepo) Upsert(ctx context.Context, o store.UserOAuth) error {
	const q = `
		INSERT INTO user_oauth (user_id, provider_id, account_name, access_token, refresh_token, token_expires_at)
		VALUES (:user_id, :provider_id, :account_name, :access_token, :refresh_token, :token_expires_at)
		ON CONFLICT (user_id, provider_id) DO UPDATE SET
			account_name = EXCLUDED.account_name,
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			token_expires_at = EXCLUDED.token_expires_at`
	_, err := r.conn.NamedExecContext(ctx, q, toOAuthRow(o))
	if err != nil {
		return errx.Wrap(err, "failed to upsert oauth credential", errx.TypeInternal)
	}
	return nil
}

func (r *oauthRepo) FindExpiringBefore(ctx context.Context, before time.Time) ([]*store.UserOAuth, error) {
	var rows []oauthRow
	const q = `SELECT * FROM user_oauth WHERE token_expires_at IS NOT NULL AND token_expires_at <= $1`
	if err := r.conn.SelectContext(ctx, &rows, q, before); err != nil {
		return nil, errx.Wrap(err, "failed to find expiring oauth credentials", errx.TypeInternal)
	}
	out := make([]*store.UserOAuth, len(rows))
	for i, row := range rows {
		out[i] = row.toDomain()
	}
	return out, nil
}

func (r *oauthRepo) DeleteExpiredBefore(ctx context.Context, before time.Time) (int64, error) {
	const q = `DELETE FROM user_oauth WHERE token_expires_at IS NOT NULL AND token_expires_at < $1`
	res, err := r.conn.ExecContext(ctx, q, before)
	if err != nil {
		return 0, errx.Wrap(err, "failed to purge expired oauth credentials", errx.TypeInternal)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
