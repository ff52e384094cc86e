// Package agentrouter is C12 AgentRouter: pre-dispatch resolution of which
// agent a chat turn targets. It scans the last user message for an
// `@AgentName` or `@"Agent Name"` mention over the caller's reachable agent
// set, strips (but does not reroute through) a mention that names an agent
// outside the conversation's own tenant, and blocks agent-response requests
// inside user-to-user DMs. Grounded on C4 ScopeEngine's wildcard precedence
// matcher for the "pick the most specific candidate" shape, generalized from
// scope strings to agent-name prefixes.
package agentrouter

import (
	"context"
	"net/http"
	"regexp"
	"sort"
	"strings"

	"github.com/flowctl/core/pkg/asyncx"
	"github.com/flowctl/core/pkg/errx"
	"github.com/flowctl/core/pkg/kernel"
	"github.com/flowctl/core/pkg/logx"
	"github.com/flowctl/core/pkg/store"
	"github.com/flowctl/core/pkg/tenanttree"
)

var ErrRegistry = errx.NewRegistry("AGENTROUTER")

var CodeDMAgentResponse = ErrRegistry.Register("DM_AGENT_RESPONSE", errx.TypeValidation, http.StatusBadRequest, "cannot trigger agent response in user-to-user DM")

func ErrDMAgentResponse() *errx.Error {
	return ErrRegistry.New(CodeDMAgentResponse)
}

var (
	quotedMention   = regexp.MustCompile(`@"([^"]+)"`)
	barewordMention = regexp.MustCompile(`@(\S+)`)
)

// AgentInfo names a tenant's default agent, the only agent shape this entity
// model carries (see DESIGN.md: there is no standalone Agent row).
type AgentInfo struct {
	Name     string
	TenantID kernel.TenantID
}

// Router resolves @mentions against a caller's reachable agents.
type Router struct {
	tenants       store.TenantRepository
	memberships   store.MembershipRepository
	conversations store.ConversationRepository
	tree          *tenanttree.Tree
	logger        *logx.Logger
}

func New(tenants store.TenantRepository, memberships store.MembershipRepository, conversations store.ConversationRepository, tree *tenanttree.Tree, logger *logx.Logger) *Router {
	return &Router{tenants: tenants, memberships: memberships, conversations: conversations, tree: tree, logger: logger}
}

// ReachableAgents lists the default agent of every tenant userID can reach:
// every tenant of a direct membership, plus every descendant tenant of a
// tenant where the membership is an admin one.
// ReachableAgents fans the per-membership tenant lookup and, for admin
// memberships, the descendant-tree walk out across goroutines with
// asyncx.Map — a caller with a dozen memberships would otherwise pay a dozen
// sequential round trips to resolve its reachable-agent set on every turn.
func (r *Router) ReachableAgents(ctx context.Context, userID kernel.UserID) ([]AgentInfo, error) {
	memberships, err := r.memberships.FindByUser(ctx, userID)
	if err != nil {
		return nil, errx.Wrap(err, "failed to load memberships", errx.TypeInternal)
	}

	tenants, err := asyncx.Map(ctx, memberships, func(ctx context.Context, m *store.Membership) (*store.Tenant, error) {
		return r.tenants.FindByID(ctx, m.TenantID)
	})
	if err != nil {
		return nil, errx.Wrap(err, "failed to load tenant", errx.TypeInternal)
	}

	adminMemberships := make([]*store.Membership, 0, len(memberships))
	for _, m := range memberships {
		if m.IsAdmin() {
			adminMemberships = append(adminMemberships, m)
		}
	}
	descendantSets, err := asyncx.Map(ctx, adminMemberships, func(ctx context.Context, m *store.Membership) ([]*store.Tenant, error) {
		return r.tree.Descendants(ctx, m.TenantID)
	})
	if err != nil {
		return nil, err
	}

	seen := map[kernel.TenantID]struct{}{}
	var out []AgentInfo
	add := func(t *store.Tenant) {
		if t == nil {
			return
		}
		if _, ok := seen[t.ID]; ok {
			return
		}
		seen[t.ID] = struct{}{}
		out = append(out, AgentInfo{Name: t.AgentName, TenantID: t.ID})
	}

	for _, t := range tenants {
		add(t)
	}
	for _, descendants := range descendantSets {
		for _, d := range descendants {
			add(d)
		}
	}
	return out, nil
}

// Result is the outcome of routing a single chat turn.
type Result struct {
	Message            string
	AgentName          string
	Rerouted           bool
	CrossTenantBlocked bool
}

// Route resolves the agent a chat turn should dispatch to. conv is the
// conversation the turn belongs to; parent is conv's parent conversation
// when conv is a thread, or nil otherwise.
func (r *Router) Route(ctx context.Context, userID kernel.UserID, conv store.Conversation, parent *store.Conversation, message string) (*Result, error) {
	if isBlockedDM(conv, parent) {
		return nil, ErrDMAgentResponse()
	}

	tenant, err := r.tenants.FindByID(ctx, conv.TenantID)
	if err != nil {
		return nil, errx.Wrap(err, "failed to load conversation tenant", errx.TypeInternal)
	}
	result := &Result{Message: message, AgentName: tenant.AgentName}

	agents, err := r.ReachableAgents(ctx, userID)
	if err != nil {
		return nil, err
	}

	match, span := findMention(message, agents)
	if match == nil {
		return result, nil
	}

	if match.TenantID != conv.TenantID {
		result.Message = strings.TrimSpace(message[:span[0]] + message[span[1]:])
		result.CrossTenantBlocked = true
		if r.logger != nil {
			r.logger.WithField("agent", match.Name).
				WithField("agent_tenant_id", match.TenantID.String()).
				WithField("conversation_tenant_id", conv.TenantID.String()).
				Warn("agentrouter: stripped cross-tenant mention")
		}
		return result, nil
	}

	result.AgentName = match.Name
	result.Rerouted = true
	return result, nil
}

// isBlockedDM implements §4.12 rule 3: a dm, or a thread whose parent is a
// dm, may not trigger an agent response unless an agent is already a
// participant.
func isBlockedDM(conv store.Conversation, parent *store.Conversation) bool {
	if conv.HasAgentParticipant() {
		return false
	}
	if conv.Type == store.ConversationDM {
		return true
	}
	return conv.Type == store.ConversationThread && parent != nil && parent.Type == store.ConversationDM
}

// findMention scans message for the first @mention — quoted form first,
// since its boundaries are unambiguous, then bareword — and resolves it
// against candidates by longest-match: the longest candidate name that is a
// case-insensitive prefix of the mentioned text wins, so a shorter name can
// never steal a match that belongs to a longer one. It returns the matched
// agent and the byte span of the full "@..." mention in message, for
// stripping.
func findMention(message string, candidates []AgentInfo) (*AgentInfo, [2]int) {
	if loc := quotedMention.FindStringSubmatchIndex(message); loc != nil {
		name := message[loc[2]:loc[3]]
		for i := range candidates {
			if strings.EqualFold(candidates[i].Name, name) {
				return &candidates[i], [2]int{loc[0], loc[1]}
			}
		}
	}

	loc := barewordMention.FindStringSubmatchIndex(message)
	if loc == nil {
		return nil, [2]int{}
	}
	token := message[loc[2]:loc[3]]

	sorted := make([]AgentInfo, len(candidates))
	copy(sorted, candidates)
	sort.Slice(sorted, func(i, j int) bool { return len(sorted[i].Name) > len(sorted[j].Name) })

	for i := range sorted {
		name := sorted[i].Name
		if name == "" || len(name) > len(token) {
			continue
		}
		if strings.EqualFold(token[:len(name)], name) {
			return &sorted[i], [2]int{loc[0], loc[2] + len(name)}
		}
	}
	return nil, [2]int{}
}
