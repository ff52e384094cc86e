// Package storemem is an in-process, map-backed store.Store implementation
// used by unit tests, grounded on the teacher's vstmemory in-memory vector
// store: a single mutex-guarded core holding maps, with every write taking a
// defensive copy so callers can never mutate state through a returned
// pointer. One thin repository wrapper per aggregate mirrors storepg's
// layout so the two implementations stay structurally comparable.
package storemem

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/flowctl/core/pkg/errx"
	"github.com/flowctl/core/pkg/kernel"
	"github.com/flowctl/core/pkg/store"
)

type core struct {
	mu sync.RWMutex

	users         map[string]store.User
	tenants       map[string]store.Tenant
	memberships   map[string]store.Membership // key: userID+"/"+tenantID
	defaultScopes map[int][]string
	customRoles   map[string]store.CustomRole
	roleScopes    map[string][]string  // custom role ID -> scopes
	userRoles     map[string][]string  // userID+"/"+tenantID -> custom role IDs
	extensions    map[string][]string  // tenantID -> extension names
	blacklist     map[string]time.Time // token -> expiry
	pats          map[string]store.PersonalAccessToken
	oauth         map[string]store.UserOAuth // key: userID+"/"+providerID
	invitations   map[string]store.Invitation
	usage         []store.TokenUsage
	usageSeq      int64
	chains        map[string]store.Chain
	steps         map[string][]store.Step // chainID -> steps
	conversations map[string]store.Conversation
	messages      map[string][]store.Message // conversationID -> messages
}

// MemoryStore implements store.Store entirely in memory.
type MemoryStore struct {
	c *core

	users         userRepo
	tenants       tenantRepo
	memberships   membershipRepo
	scopes        scopeRepo
	blacklist     blacklistRepo
	pats          patRepo
	oauth         oauthRepo
	invitations   invitationRepo
	usage         usageRepo
	chains        chainRepo
	conversations conversationRepo
}

// New returns an empty MemoryStore.
func New() *MemoryStore {
	c := &core{
		users:         make(map[string]store.User),
		tenants:       make(map[string]store.Tenant),
		memberships:   make(map[string]store.Membership),
		defaultScopes: make(map[int][]string),
		customRoles:   make(map[string]store.CustomRole),
		roleScopes:    make(map[string][]string),
		userRoles:     make(map[string][]string),
		extensions:    make(map[string][]string),
		blacklist:     make(map[string]time.Time),
		pats:          make(map[string]store.PersonalAccessToken),
		oauth:         make(map[string]store.UserOAuth),
		invitations:   make(map[string]store.Invitation),
		chains:        make(map[string]store.Chain),
		steps:         make(map[string][]store.Step),
		conversations: make(map[string]store.Conversation),
		messages:      make(map[string][]store.Message),
	}
	return &MemoryStore{
		c:             c,
		users:         userRepo{c},
		tenants:       tenantRepo{c},
		memberships:   membershipRepo{c},
		scopes:        scopeRepo{c},
		blacklist:     blacklistRepo{c},
		pats:          patRepo{c},
		oauth:         oauthRepo{c},
		invitations:   invitationRepo{c},
		usage:         usageRepo{c},
		chains:        chainRepo{c},
		conversations: conversationRepo{c},
	}
}

func membershipKey(userID kernel.UserID, tenantID kernel.TenantID) string {
	return userID.String() + "/" + tenantID.String()
}

func oauthKey(userID kernel.UserID, providerID string) string {
	return userID.String() + "/" + providerID
}

// WithTx runs fn against the same store under each repository's own lock:
// there is no real transaction isolation in memory, so atomicity here is
// just "single critical sections per call", which is all the contract
// (§4.2) requires of a test double.
func (m *MemoryStore) WithTx(ctx context.Context, fn func(tx store.Session) error) error {
	return fn(m)
}

func (m *MemoryStore) Users() store.UserRepository                 { return m.users }
func (m *MemoryStore) Tenants() store.TenantRepository             { return m.tenants }
func (m *MemoryStore) Memberships() store.MembershipRepository     { return m.memberships }
func (m *MemoryStore) Scopes() store.ScopeRepository               { return m.scopes }
func (m *MemoryStore) Blacklist() store.TokenBlacklistRepository   { return m.blacklist }
func (m *MemoryStore) PATs() store.PATRepository                   { return m.pats }
func (m *MemoryStore) OAuth() store.UserOAuthRepository            { return m.oauth }
func (m *MemoryStore) Invitations() store.InvitationRepository     { return m.invitations }
func (m *MemoryStore) Usage() store.TokenUsageRepository           { return m.usage }
func (m *MemoryStore) Chains() store.ChainRepository               { return m.chains }
func (m *MemoryStore) Conversations() store.ConversationRepository { return m.conversations }

// Seed* helpers populate fixtures without a Postgres connection; they are
// not part of any store.* interface.

func (m *MemoryStore) SeedDefaultScopes(roleID int, scopes ...string) {
	m.c.mu.Lock()
	defer m.c.mu.Unlock()
	m.c.defaultScopes[roleID] = scopes
}

func (m *MemoryStore) SeedCustomRole(userID kernel.UserID, tenantID kernel.TenantID, role store.CustomRole, scopes ...string) {
	m.c.mu.Lock()
	defer m.c.mu.Unlock()
	m.c.customRoles[role.ID] = role
	m.c.roleScopes[role.ID] = scopes
	key := membershipKey(userID, tenantID)
	m.c.userRoles[key] = append(m.c.userRoles[key], role.ID)
}

func (m *MemoryStore) SeedExtension(tenantID kernel.TenantID, name string) {
	m.c.mu.Lock()
	defer m.c.mu.Unlock()
	m.c.extensions[tenantID.String()] = append(m.c.extensions[tenantID.String()], name)
}

// ---- userRepo ----

type userRepo struct{ c *core }

func (r userRepo) Create(ctx context.Context, u store.User) error {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	for _, existing := range r.c.users {
		if existing.Email == u.Email {
			return errx.New("email already registered", errx.TypeConflict)
		}
	}
	r.c.users[u.ID.String()] = u
	return nil
}

func (r userRepo) FindByID(ctx context.Context, id kernel.UserID) (*store.User, error) {
	r.c.mu.RLock()
	defer r.c.mu.RUnlock()
	u, ok := r.c.users[id.String()]
	if !ok {
		return nil, errx.New("user not found", errx.TypeNotFound)
	}
	return &u, nil
}

func (r userRepo) FindByEmail(ctx context.Context, email string) (*store.User, error) {
	r.c.mu.RLock()
	defer r.c.mu.RUnlock()
	for _, u := range r.c.users {
		if u.Email == email {
			uc := u
			return &uc, nil
		}
	}
	return nil, errx.New("user not found", errx.TypeNotFound)
}

func (r userRepo) Update(ctx context.Context, u store.User) error {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	if _, ok := r.c.users[u.ID.String()]; !ok {
		return errx.New("user not found", errx.TypeNotFound)
	}
	r.c.users[u.ID.String()] = u
	return nil
}

func (r userRepo) SetActive(ctx context.Context, id kernel.UserID, active bool) error {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	u, ok := r.c.users[id.String()]
	if !ok {
		return errx.New("user not found", errx.TypeNotFound)
	}
	u.IsActive = active
	r.c.users[id.String()] = u
	return nil
}

// ---- tenantRepo ----

type tenantRepo struct{ c *core }

func (r tenantRepo) Create(ctx context.Context, t store.Tenant) error {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	r.c.tenants[t.ID.String()] = t
	return nil
}

func (r tenantRepo) FindByID(ctx context.Context, id kernel.TenantID) (*store.Tenant, error) {
	r.c.mu.RLock()
	defer r.c.mu.RUnlock()
	t, ok := r.c.tenants[id.String()]
	if !ok {
		return nil, errx.New("tenant not found", errx.TypeNotFound)
	}
	return &t, nil
}

func (r tenantRepo) FindChildren(ctx context.Context, parentID kernel.TenantID) ([]*store.Tenant, error) {
	r.c.mu.RLock()
	defer r.c.mu.RUnlock()
	var out []*store.Tenant
	for _, t := range r.c.tenants {
		if t.ParentID != nil && *t.ParentID == parentID {
			tc := t
			out = append(out, &tc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r tenantRepo) Update(ctx context.Context, t store.Tenant) error {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	if _, ok := r.c.tenants[t.ID.String()]; !ok {
		return errx.New("tenant not found", errx.TypeNotFound)
	}
	r.c.tenants[t.ID.String()] = t
	return nil
}

func (r tenantRepo) UpdateBalance(ctx context.Context, id kernel.TenantID, delta int64, tokensUsedDelta int64) error {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	t, ok := r.c.tenants[id.String()]
	if !ok {
		return errx.New("tenant not found", errx.TypeNotFound)
	}
	t.TokenBalance += delta
	t.TokensUsedTotal += tokensUsedDelta
	r.c.tenants[id.String()] = t
	return nil
}

func (r tenantRepo) ClearParent(ctx context.Context, id kernel.TenantID) error {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	for k, t := range r.c.tenants {
		if t.ParentID != nil && *t.ParentID == id {
			t.ParentID = nil
			r.c.tenants[k] = t
		}
	}
	return nil
}

func (r tenantRepo) Delete(ctx context.Context, id kernel.TenantID) error {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	delete(r.c.tenants, id.String())
	return nil
}

// ---- membershipRepo ----

type membershipRepo struct{ c *core }

func (r membershipRepo) Create(ctx context.Context, ms store.Membership) error {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	r.c.memberships[membershipKey(ms.UserID, ms.TenantID)] = ms
	return nil
}

func (r membershipRepo) Find(ctx context.Context, userID kernel.UserID, tenantID kernel.TenantID) (*store.Membership, error) {
	r.c.mu.RLock()
	defer r.c.mu.RUnlock()
	ms, ok := r.c.memberships[membershipKey(userID, tenantID)]
	if !ok {
		return nil, errx.New("membership not found", errx.TypeNotFound)
	}
	return &ms, nil
}

func (r membershipRepo) FindByUser(ctx context.Context, userID kernel.UserID) ([]*store.Membership, error) {
	r.c.mu.RLock()
	defer r.c.mu.RUnlock()
	var out []*store.Membership
	for _, ms := range r.c.memberships {
		if ms.UserID == userID {
			msc := ms
			out = append(out, &msc)
		}
	}
	return out, nil
}

func (r membershipRepo) FindByTenant(ctx context.Context, tenantID kernel.TenantID) ([]*store.Membership, error) {
	r.c.mu.RLock()
	defer r.c.mu.RUnlock()
	var out []*store.Membership
	for _, ms := range r.c.memberships {
		if ms.TenantID == tenantID {
			msc := ms
			out = append(out, &msc)
		}
	}
	return out, nil
}

func (r membershipRepo) CountByTenant(ctx context.Context, tenantID kernel.TenantID) (int, error) {
	r.c.mu.RLock()
	defer r.c.mu.RUnlock()
	n := 0
	for _, ms := range r.c.memberships {
		if ms.TenantID == tenantID {
			n++
		}
	}
	return n, nil
}

func (r membershipRepo) UpdateRole(ctx context.Context, userID kernel.UserID, tenantID kernel.TenantID, roleID int) error {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	key := membershipKey(userID, tenantID)
	ms, ok := r.c.memberships[key]
	if !ok {
		return errx.New("membership not found", errx.TypeNotFound)
	}
	ms.RoleID = roleID
	r.c.memberships[key] = ms
	return nil
}

func (r membershipRepo) Delete(ctx context.Context, userID kernel.UserID, tenantID kernel.TenantID) error {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	delete(r.c.memberships, membershipKey(userID, tenantID))
	return nil
}

// ---- scopeRepo ----

type scopeRepo struct{ c *core }

func (r scopeRepo) DefaultScopesForRole(ctx context.Context, roleID int) ([]string, error) {
	r.c.mu.RLock()
	defer r.c.mu.RUnlock()
	return append([]string(nil), r.c.defaultScopes[roleID]...), nil
}

func (r scopeRepo) CustomRolesForUser(ctx context.Context, userID kernel.UserID, tenantID kernel.TenantID) ([]store.CustomRole, error) {
	r.c.mu.RLock()
	defer r.c.mu.RUnlock()
	var out []store.CustomRole
	for _, id := range r.c.userRoles[membershipKey(userID, tenantID)] {
		if cr, ok := r.c.customRoles[id]; ok && cr.IsActive {
			out = append(out, cr)
		}
	}
	return out, nil
}

func (r scopeRepo) ScopesForCustomRole(ctx context.Context, customRoleID string) ([]string, error) {
	r.c.mu.RLock()
	defer r.c.mu.RUnlock()
	return append([]string(nil), r.c.roleScopes[customRoleID]...), nil
}

func (r scopeRepo) InstalledExtensions(ctx context.Context, tenantID kernel.TenantID) ([]string, error) {
	r.c.mu.RLock()
	defer r.c.mu.RUnlock()
	return append([]string(nil), r.c.extensions[tenantID.String()]...), nil
}

// ---- blacklistRepo ----

type blacklistRepo struct{ c *core }

func (r blacklistRepo) Add(ctx context.Context, token string, expiresAt time.Time) error {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	r.c.blacklist[token] = expiresAt
	return nil
}

func (r blacklistRepo) Contains(ctx context.Context, token string) (bool, error) {
	r.c.mu.RLock()
	defer r.c.mu.RUnlock()
	_, ok := r.c.blacklist[token]
	return ok, nil
}

func (r blacklistRepo) PurgeExpired(ctx context.Context) (int64, error) {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	var n int64
	now := time.Now()
	for token, exp := range r.c.blacklist {
		if exp.Before(now) {
			delete(r.c.blacklist, token)
			n++
		}
	}
	return n, nil
}

// ---- patRepo ----

type patRepo struct{ c *core }

func (r patRepo) Create(ctx context.Context, pat store.PersonalAccessToken) error {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	for _, existing := range r.c.pats {
		if existing.UserID == pat.UserID && existing.Name == pat.Name {
			return errx.New("a PAT with that name already exists", errx.TypeConflict)
		}
	}
	r.c.pats[pat.ID] = pat
	return nil
}

func (r patRepo) FindByID(ctx context.Context, id string, userID kernel.UserID) (*store.PersonalAccessToken, error) {
	r.c.mu.RLock()
	defer r.c.mu.RUnlock()
	pat, ok := r.c.pats[id]
	if !ok || pat.UserID != userID {
		return nil, errx.New("PAT not found", errx.TypeNotFound)
	}
	return &pat, nil
}

func (r patRepo) FindByHash(ctx context.Context, tokenHash string) (*store.PersonalAccessToken, error) {
	r.c.mu.RLock()
	defer r.c.mu.RUnlock()
	for _, pat := range r.c.pats {
		if pat.TokenHash == tokenHash {
			pc := pat
			return &pc, nil
		}
	}
	return nil, errx.New("PAT not found", errx.TypeNotFound)
}

func (r patRepo) FindByUser(ctx context.Context, userID kernel.UserID) ([]*store.PersonalAccessToken, error) {
	r.c.mu.RLock()
	defer r.c.mu.RUnlock()
	var out []*store.PersonalAccessToken
	for _, pat := range r.c.pats {
		if pat.UserID == userID {
			pc := pat
			out = append(out, &pc)
		}
	}
	return out, nil
}

func (r patRepo) Update(ctx context.Context, pat store.PersonalAccessToken) error {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	if _, ok := r.c.pats[pat.ID]; !ok {
		return errx.New("PAT not found", errx.TypeNotFound)
	}
	r.c.pats[pat.ID] = pat
	return nil
}

func (r patRepo) UpdateLastUsed(ctx context.Context, id string, at time.Time) error {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	pat, ok := r.c.pats[id]
	if !ok {
		return errx.New("PAT not found", errx.TypeNotFound)
	}
	pat.LastUsedAt = &at
	r.c.pats[id] = pat
	return nil
}

func (r patRepo) Delete(ctx context.Context, id string, userID kernel.UserID) error {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	pat, ok := r.c.pats[id]
	if !ok || pat.UserID != userID {
		return errx.New("PAT not found", errx.TypeNotFound)
	}
	delete(r.c.pats, id)
	return nil
}

// ---- oauthRepo ----

type oauthRepo struct{ c *core }

func (r oauthRepo) Find(ctx context.Context, userID kernel.UserID, providerID string) (*store.UserOAuth, error) {
	r.c.mu.RLock()
	defer r.c.mu.RUnlock()
	o, ok := r.c.oauth[oauthKey(userID, providerID)]
	if !ok {
		return nil, errx.New("oauth credential not found", errx.TypeNotFound)
	}
	return &o, nil
}

func (r oauthRepo) Upsert(ctx context.Context, o store.UserOAuth) error {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	r.c.oauth[oauthKey(o.UserID, o.ProviderID)] = o
	return nil
}

func (r oauthRepo) FindExpiringBefore(ctx context.Context, before time.Time) ([]*store.UserOAuth, error) {
	r.c.mu.RLock()
	defer r.c.mu.RUnlock()
	var out []*store.UserOAuth
	for _, o := range r.c.oauth {
		if o.TokenExpiresAt != nil && !o.TokenExpiresAt.After(before) {
			oc := o
			out = append(out, &oc)
		}
	}
	return out, nil
}

func (r oauthRepo) DeleteExpiredBefore(ctx context.Context, before time.Time) (int64, error) {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	var n int64
	for k, o := range r.c.oauth {
		if o.TokenExpiresAt != nil && o.TokenExpiresAt.Before(before) {
			delete(r.c.oauth, k)
			n++
		}
	}
	return n, nil
}

// ---- invitationRepo ----

type invitationRepo struct{ c *core }

func (r invitationRepo) Create(ctx context.Context, inv store.Invitation) error {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	r.c.invitations[inv.ID] = inv
	return nil
}

func (r invitationRepo) FindByID(ctx context.Context, id string) (*store.Invitation, error) {
	r.c.mu.RLock()
	defer r.c.mu.RUnlock()
	inv, ok := r.c.invitations[id]
	if !ok {
		return nil, errx.New("invitation not found", errx.TypeNotFound)
	}
	return &inv, nil
}

func (r invitationRepo) FindPendingByEmail(ctx context.Context, email string) ([]*store.Invitation, error) {
	r.c.mu.RLock()
	defer r.c.mu.RUnlock()
	var out []*store.Invitation
	for _, inv := range r.c.invitations {
		if inv.Email == email && !inv.IsAccepted {
			ic := inv
			out = append(out, &ic)
		}
	}
	return out, nil
}

func (r invitationRepo) FindByTenant(ctx context.Context, tenantID kernel.TenantID) ([]*store.Invitation, error) {
	r.c.mu.RLock()
	defer r.c.mu.RUnlock()
	var out []*store.Invitation
	for _, inv := range r.c.invitations {
		if inv.TenantID == tenantID {
			ic := inv
			out = append(out, &ic)
		}
	}
	return out, nil
}

func (r invitationRepo) MarkAccepted(ctx context.Context, id string) error {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	inv, ok := r.c.invitations[id]
	if !ok {
		return errx.New("invitation not found", errx.TypeNotFound)
	}
	inv.IsAccepted = true
	r.c.invitations[id] = inv
	return nil
}

// ---- usageRepo ----

type usageRepo struct{ c *core }

func (r usageRepo) Append(ctx context.Context, row store.TokenUsage) error {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	r.c.usageSeq++
	row.ID = r.c.usageSeq
	r.c.usage = append(r.c.usage, row)
	return nil
}

func (r usageRepo) SumForTenant(ctx context.Context, tenantID kernel.TenantID, since time.Time) (int64, error) {
	r.c.mu.RLock()
	defer r.c.mu.RUnlock()
	var sum int64
	for _, row := range r.c.usage {
		if row.TenantID == tenantID && !row.Timestamp.Before(since) {
			sum += row.TotalTokens
		}
	}
	return sum, nil
}

// ---- chainRepo ----

type chainRepo struct{ c *core }

func (r chainRepo) FindByName(ctx context.Context, tenantID kernel.TenantID, name string) (*store.Chain, error) {
	r.c.mu.RLock()
	defer r.c.mu.RUnlock()
	for _, c := range r.c.chains {
		if c.TenantID == tenantID && c.Name == name {
			cc := c
			return &cc, nil
		}
	}
	return nil, errx.New("chain not found", errx.TypeNotFound)
}

func (r chainRepo) Steps(ctx context.Context, chainID string) ([]*store.Step, error) {
	r.c.mu.RLock()
	defer r.c.mu.RUnlock()
	steps := append([]store.Step(nil), r.c.steps[chainID]...)
	sort.Slice(steps, func(i, j int) bool { return steps[i].StepNumber < steps[j].StepNumber })
	out := make([]*store.Step, len(steps))
	for i := range steps {
		out[i] = &steps[i]
	}
	return out, nil
}

func (r chainRepo) Create(ctx context.Context, c store.Chain) error {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	for _, existing := range r.c.chains {
		if existing.TenantID == c.TenantID && existing.Name == c.Name {
			return errx.New("a chain with that name already exists", errx.TypeConflict)
		}
	}
	r.c.chains[c.ID] = c
	return nil
}

func (r chainRepo) AddStep(ctx context.Context, s store.Step) error {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	existing := r.c.steps[s.ChainID]
	for i, e := range existing {
		if e.StepNumber == s.StepNumber {
			existing[i] = s
			r.c.steps[s.ChainID] = existing
			return nil
		}
	}
	r.c.steps[s.ChainID] = append(existing, s)
	return nil
}

func (r chainRepo) Delete(ctx context.Context, chainID string) error {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	if _, ok := r.c.chains[chainID]; !ok {
		return errx.New("chain not found", errx.TypeNotFound)
	}
	delete(r.c.chains, chainID)
	delete(r.c.steps, chainID)
	return nil
}

// ---- conversationRepo ----

type conversationRepo struct{ c *core }

func (r conversationRepo) Find(ctx context.Context, id string) (*store.Conversation, error) {
	r.c.mu.RLock()
	defer r.c.mu.RUnlock()
	c, ok := r.c.conversations[id]
	if !ok {
		return nil, errx.New("conversation not found", errx.TypeNotFound)
	}
	return &c, nil
}

func (r conversationRepo) Create(ctx context.Context, c store.Conversation) error {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	r.c.conversations[c.ID] = c
	return nil
}

func (r conversationRepo) AppendMessage(ctx context.Context, msg store.Message) error {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	if _, ok := r.c.conversations[msg.ConversationID]; !ok {
		return errx.New("conversation not found", errx.TypeNotFound)
	}
	r.c.messages[msg.ConversationID] = append(r.c.messages[msg.ConversationID], msg)
	return nil
}

func (r conversationRepo) Messages(ctx context.Context, conversationID string) ([]*store.Message, error) {
	r.c.mu.RLock()
	defer r.c.mu.RUnlock()
	msgs := r.c.messages[conversationID]
	out := make([]*store.Message, len(msgs))
	for i := range msgs {
		mc := msgs[i]
		out[i] = &mc
	}
	return out, nil
}
