package storepg

import (
	"context"
	"time"

	"github.com/flowctl/core/pkg/errx"
)

type blacklistRepo struct{ conn namedExecer }

func (r *blacklistRepo) Add(ctx context.Context, token string, expiresAt time.Time) error {
	const q = `INSERT INTO token_blacklist (token, expires_at) VALUES ($1, $2) ON CONFLICT (token) DO NOTHING`
	_, err := r.conn.ExecContext(ctx, q, token, expiresAt)
	if err != nil {
		return errx.Wrap(err, "failed to blacklist token", errx.TypeInternal)
	}
	return nil
}

func (r *blacklistRepo) Contains(ctx context.Context, token string) (bool, error) {
	var exists bool
	const q = `SELECT EXISTS(SELECT 1 FROM token_blacklist WHERE token = $1)`
	if err := r.conn.GetContext(ctx, &exists, q, token); err != nil {
		return false, errx.Wrap(err, "failed to check token blacklist", errx.TypeInternal)
	}
	return exists, nil
}

// PurgeExpired is run by the background maintenance task named in §3.
func (r *blacklistRepo) PurgeExpired(ctx context.Context) (int64, error) {
	const q = `DELETE FROM token_blacklist WHERE expires_at < NOW()`
	res, err := r.conn.ExecContext(ctx, q)
	if err != nil {
		return 0, errx.Wrap(err, "failed to purge expired blacklist entries", errx.TypeInternal)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
