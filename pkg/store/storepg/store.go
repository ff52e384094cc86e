// Package storepg is the Postgres implementation of pkg/store, grounded on
// the teacher's apikeyinfra/postgres.go idiom: sqlx named-exec statements,
// pq.Error unique-violation translation, and thin persistence structs where
// array columns need pq.StringArray.
package storepg

import (
	"context"
	"database/sql"

	"github.com/flowctl/core/pkg/errx"
	"github.com/flowctl/core/pkg/store"
	"github.com/jmoiron/sqlx"
)

// PostgresStore implements store.Store over a single *sqlx.DB.
type PostgresStore struct {
	db *sqlx.DB
	store.Session
}

// New builds a PostgresStore and its default (non-transactional) session.
func New(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{
		db:      db,
		Session: newSession(db),
	}
}

// WithTx runs fn inside a single Postgres transaction; all repositories
// returned by the Session passed to fn share that transaction. Used by
// invitation acceptance, tenant deletion, and billing debit+ledger insert
// (§4.2).
func (s *PostgresStore) WithTx(ctx context.Context, fn func(tx store.Session) error) error {
	sqlTx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errx.Wrap(err, "failed to begin transaction", errx.TypeInternal)
	}

	txSession := newSession(sqlTx)

	if err := fn(txSession); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil {
			return errx.Wrap(rbErr, "failed to rollback after error: "+err.Error(), errx.TypeInternal)
		}
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return errx.Wrap(err, "failed to commit transaction", errx.TypeInternal)
	}
	return nil
}

type session struct {
	conn sqlx.ExtContext

	users         store.UserRepository
	tenants       store.TenantRepository
	memberships   store.MembershipRepository
	scopes        store.ScopeRepository
	blacklist     store.TokenBlacklistRepository
	pats          store.PATRepository
	oauth         store.UserOAuthRepository
	invitations   store.InvitationRepository
	usage         store.TokenUsageRepository
	chains        store.ChainRepository
	conversations store.ConversationRepository
}

// namedExecer is satisfied by both *sqlx.DB and *sqlx.Tx.
type namedExecer interface {
	sqlx.ExtContext
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	NamedExecContext(ctx context.Context, query string, arg interface{}) (sql.Result, error)
}

type sqlResult interface {
	RowsAffected() (int64, error)
}

func newSession(conn namedExecer) store.Session {
	return &session{
		conn:          conn,
		users:         &userRepo{conn},
		tenants:       &tenantRepo{conn},
		memberships:   &membershipRepo{conn},
		scopes:        &scopeRepo{conn},
		blacklist:     &blacklistRepo{conn},
		pats:          &patRepo{conn},
		oauth:         &oauthRepo{conn},
		invitations:   &invitationRepo{conn},
		usage:         &usageRepo{conn},
		chains:        &chainRepo{conn},
		conversations: &conversationRepo{conn},
	}
}

func (s *session) Users() store.UserRepository                 { return s.users }
func (s *session) Tenants() store.TenantRepository             { return s.tenants }
func (s *session) Memberships() store.MembershipRepository     { return s.memberships }
func (s *session) Scopes() store.ScopeRepository               { return s.scopes }
func (s *session) Blacklist() store.TokenBlacklistRepository   { return s.blacklist }
func (s *session) PATs() store.PATRepository                   { return s.pats }
func (s *session) OAuth() store.UserOAuthRepository            { return s.oauth }
func (s *session) Invitations() store.InvitationRepository     { return s.invitations }
func (s *session) Usage() store.TokenUsageRepository           { return s.usage }
func (s *session) Chains() store.ChainRepository               { return s.chains }
func (s *session) Conversations() store.ConversationRepository { return s.conversations }
