// Package patmanager is C10 PATManager: issuance, validation, and
// lifecycle management of "agixt_"-prefixed personal access tokens.
// Grounded on the teacher's pkg/iam/apikey/apikeysrv service shape
// (create validates the creator, list/get/revoke stay scoped to the
// owning user, validate hashes then checks liveness before touching
// last_used_at).
package patmanager

import (
	"context"
	"net/http"
	"time"

	"github.com/flowctl/core/pkg/crypto"
	"github.com/flowctl/core/pkg/errx"
	"github.com/flowctl/core/pkg/kernel"
	"github.com/flowctl/core/pkg/scopes"
	"github.com/flowctl/core/pkg/store"
	"github.com/google/uuid"
)

var ErrRegistry = errx.NewRegistry("PAT")

var (
	CodeScopeNotOwned    = ErrRegistry.Register("SCOPE_NOT_OWNED", errx.TypeAuthorization, http.StatusForbidden, "requested scope exceeds creator's own scopes")
	CodeUnreachable      = ErrRegistry.Register("UNREACHABLE", errx.TypeAuthorization, http.StatusForbidden, "requested agent or tenant is outside the creator's reach")
	CodeNotFound         = ErrRegistry.Register("NOT_FOUND", errx.TypeNotFound, http.StatusNotFound, "personal access token not found")
	CodeRevokedOrExpired = ErrRegistry.Register("REVOKED_OR_EXPIRED", errx.TypeAuthorization, http.StatusUnauthorized, "token is revoked or expired")
	CodeInvalidExpiry    = ErrRegistry.Register("INVALID_EXPIRY", errx.TypeValidation, http.StatusBadRequest, "unrecognized expiration shorthand")
)

func ErrScopeNotOwned(scope string) *errx.Error {
	return ErrRegistry.New(CodeScopeNotOwned).WithDetail("scope", scope)
}
func ErrUnreachable(kind, id string) *errx.Error {
	return ErrRegistry.New(CodeUnreachable).WithDetail("kind", kind).WithDetail("id", id)
}
func ErrNotFound() *errx.Error         { return ErrRegistry.New(CodeNotFound) }
func ErrRevokedOrExpired() *errx.Error { return ErrRegistry.New(CodeRevokedOrExpired) }
func ErrInvalidExpiry(shorthand string) *errx.Error {
	return ErrRegistry.New(CodeInvalidExpiry).WithDetail("expires_in", shorthand)
}

// Manager issues and validates personal access tokens.
type Manager struct {
	pats   store.PATRepository
	engine *scopes.Engine
	hasher *crypto.PATHasher
}

func New(pats store.PATRepository, engine *scopes.Engine, hasher *crypto.PATHasher) *Manager {
	return &Manager{pats: pats, engine: engine, hasher: hasher}
}

// CreateRequest describes a PAT the caller wants minted on their own
// behalf. Scopes, AgentIDs and TenantIDs are restriction lists, not
// grants: every entry must already be something the creator can reach.
type CreateRequest struct {
	Name      string
	Scopes    []string
	AgentIDs  []string
	TenantIDs []string
	ExpiresIn string // shorthand or ISO-8601; "" means never
}

// Created is returned once at creation time; Token is never retrievable
// again.
type Created struct {
	PAT   store.PersonalAccessToken
	Token string
}

// Create mints a new PAT for creatorID, scoped to tenantID for the
// reachability check on req.TenantIDs/req.AgentIDs. Every requested scope
// must already be held by the creator in tenantID (strict subset); every
// requested tenant id must be within the creator's reach via CanAccess,
// checked by the caller's tenanttree wiring and passed in as reachable.
func (m *Manager) Create(ctx context.Context, creatorID kernel.UserID, tenantID kernel.TenantID, req CreateRequest, reachableTenants, reachableAgents map[string]bool) (*Created, error) {
	for _, s := range req.Scopes {
		ok, err := m.engine.Has(ctx, creatorID, tenantID, s)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrScopeNotOwned(s)
		}
	}
	for _, t := range req.TenantIDs {
		if reachableTenants != nil && !reachableTenants[t] {
			return nil, ErrUnreachable("tenant", t)
		}
	}
	for _, a := range req.AgentIDs {
		if reachableAgents != nil && !reachableAgents[a] {
			return nil, ErrUnreachable("agent", a)
		}
	}

	expiresAt, err := ParseExpiry(req.ExpiresIn)
	if err != nil {
		return nil, err
	}

	generated, err := m.hasher.Generate()
	if err != nil {
		return nil, err
	}
	hash, err := m.hasher.Hash(generated.Token)
	if err != nil {
		return nil, err
	}

	pat := store.PersonalAccessToken{
		ID:          uuid.NewString(),
		UserID:      creatorID,
		Name:        req.Name,
		TokenPrefix: generated.Prefix,
		TokenHash:   hash,
		Scopes:      req.Scopes,
		AgentIDs:    req.AgentIDs,
		CompanyIDs:  req.TenantIDs,
		ExpiresAt:   expiresAt,
		CreatedAt:   time.Now(),
	}
	if err := m.pats.Create(ctx, pat); err != nil {
		return nil, errx.Wrap(err, "failed to create personal access token", errx.TypeInternal)
	}
	return &Created{PAT: pat, Token: generated.Token}, nil
}

// Validated is the downstream-usable shape of a validated PAT: the
// effective restriction overlay a caller intersects with the user's
// current scopes.
type Validated struct {
	UserID    kernel.UserID
	Scopes    []string
	AgentIDs  []string
	TenantIDs []string
	TokenName string
}

// Validate hashes token, fetches the owning row, rejects revoked/expired
// tokens, and records last_used_at. The returned restriction lists are
// intersected by the caller with the user's live scope set — PATManager
// itself never computes that intersection.
func (m *Manager) Validate(ctx context.Context, token string) (*Validated, error) {
	rows, err := m.findCandidate(ctx, token)
	if err != nil {
		return nil, err
	}
	if rows == nil || !rows.IsValid() {
		return nil, ErrRevokedOrExpired()
	}

	now := time.Now()
	_ = m.pats.UpdateLastUsed(ctx, rows.ID, now)

	return &Validated{
		UserID:    rows.UserID,
		Scopes:    rows.Scopes,
		AgentIDs:  rows.AgentIDs,
		TenantIDs: rows.CompanyIDs,
		TokenName: rows.Name,
	}, nil
}

func (m *Manager) findCandidate(ctx context.Context, token string) (*store.PersonalAccessToken, error) {
	digest, err := m.hasher.Hash(token)
	if err != nil {
		return nil, err
	}
	return m.pats.FindByHash(ctx, digest)
}

// Regenerate revokes the existing PAT and mints a fresh secret with the
// same name, scopes, and restriction lists, without allocating a new id.
func (m *Manager) Regenerate(ctx context.Context, id string, userID kernel.UserID) (*Created, error) {
	existing, err := m.pats.FindByID(ctx, id, userID)
	if err != nil || existing == nil {
		return nil, ErrNotFound()
	}

	generated, err := m.hasher.Generate()
	if err != nil {
		return nil, err
	}
	hash, err := m.hasher.Hash(generated.Token)
	if err != nil {
		return nil, err
	}

	existing.TokenPrefix = generated.Prefix
	existing.TokenHash = hash
	existing.IsRevoked = false
	existing.LastUsedAt = nil
	if err := m.pats.Update(ctx, *existing); err != nil {
		return nil, errx.Wrap(err, "failed to regenerate personal access token", errx.TypeInternal)
	}
	return &Created{PAT: *existing, Token: generated.Token}, nil
}

// List returns every PAT owned by userID. Raw token values are never
// present on the returned rows.
func (m *Manager) List(ctx context.Context, userID kernel.UserID) ([]*store.PersonalAccessToken, error) {
	return m.pats.FindByUser(ctx, userID)
}

// Get returns one PAT owned by userID.
func (m *Manager) Get(ctx context.Context, id string, userID kernel.UserID) (*store.PersonalAccessToken, error) {
	pat, err := m.pats.FindByID(ctx, id, userID)
	if err != nil || pat == nil {
		return nil, ErrNotFound()
	}
	return pat, nil
}

// Revoke marks a PAT terminal. Regenerate is the only path back to
// "active" and it mints a new hash, so a revoked token's secret is
// permanently dead.
func (m *Manager) Revoke(ctx context.Context, id string, userID kernel.UserID) error {
	pat, err := m.pats.FindByID(ctx, id, userID)
	if err != nil || pat == nil {
		return ErrNotFound()
	}
	pat.IsRevoked = true
	if err := m.pats.Update(ctx, *pat); err != nil {
		return errx.Wrap(err, "failed to revoke personal access token", errx.TypeInternal)
	}
	return nil
}

// ParseExpiry accepts the shorthand forms named in §4.10, plus raw
// ISO-8601, plus "never" (nil, nil).
func ParseExpiry(shorthand string) (*time.Time, error) {
	now := time.Now()
	switch shorthand {
	case "", "never":
		return nil, nil
	case "1_day":
		t := now.AddDate(0, 0, 1)
		return &t, nil
	case "7_days":
		t := now.AddDate(0, 0, 7)
		return &t, nil
	case "30_days":
		t := now.AddDate(0, 0, 30)
		return &t, nil
	case "90_days":
		t := now.AddDate(0, 0, 90)
		return &t, nil
	case "1_year":
		t := now.AddDate(1, 0, 0)
		return &t, nil
	}
	if t, err := time.Parse(time.RFC3339, shorthand); err == nil {
		return &t, nil
	}
	return nil, ErrInvalidExpiry(shorthand)
}
