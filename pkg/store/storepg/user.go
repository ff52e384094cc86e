package storepg

import (
	"context"
	"database/sql"

	"github.com/flowctl/core/pkg/errx"
	"github.com/flowctl/core/pkg/kernel"
	"github.com/flowctl/core/pkg/store"
	"github.com/lib/pq"
)

type userRepo struct{ conn namedExecer }

func (r *userRepo) Create(ctx context.Context, u store.User) error {
	const q = `
		INSERT INTO users (id, email, mfa_seed, is_active, created_at)
		VALUES (:id, :email, :mfa_seed, :is_active, :created_at)`
	_, err := r.conn.NamedExecContext(ctx, q, u)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return errx.New("email already registered", errx.TypeConflict).WithDetail("email", u.Email)
		}
		return errx.Wrap(err, "failed to create user", errx.TypeInternal)
	}
	return nil
}

func (r *userRepo) FindByID(ctx context.Context, id kernel.UserID) (*store.User, error) {
	var u store.User
	const q = `SELECT id, email, mfa_seed, is_active, created_at FROM users WHERE id = $1`
	if err := r.conn.GetContext(ctx, &u, q, id.String()); err != nil {
		if err == sql.ErrNoRows {
			return nil, errx.New("user not found", errx.TypeNotFound)
		}
		return nil, errx.Wrap(err, "failed to find user by id", errx.TypeInternal)
	}
	return &u, nil
}

func (r *userRepo) FindByEmail(ctx context.Context, email string) (*store.User, error) {
	var u store.User
	const q = `SELECT id, email, mfa_seed, is_active, created_at FROM users WHERE email = $1`
	if err := r.conn.GetContext(ctx, &u, q, email); err != nil {
		if err == sql.ErrNoRows {
			return nil, errx.New("user not found", errx.TypeNotFound)
		}
		return nil, errx.Wrap(err, "failed to find user by email", errx.TypeInternal)
	}
	return &u, nil
}

func (r *userRepo) Update(ctx context.Context, u store.User) error {
	const q = `UPDATE users SET email = :email, mfa_seed = :mfa_seed, is_active = :is_active WHERE id = :id`
	res, err := r.conn.NamedExecContext(ctx, q, u)
	if err != nil {
		return errx.Wrap(err, "failed to update user", errx.TypeInternal)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errx.New("user not found", errx.TypeNotFound)
	}
	return nil
}

func (r *userRepo) SetActive(ctx context.Context, id kernel.UserID, active bool) error {
	const q = `UPDATE users SET is_active = $1 WHERE id = $2`
	_, err := r.conn.ExecContext(ctx, q, active, id.String())
	if err != nil {
		return errx.Wrap(err, "failed to set user active state", errx.TypeInternal)
	}
	return nil
}
