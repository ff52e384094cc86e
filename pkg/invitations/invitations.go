// Package invitations is C11 Invitations: issue, accept, and reactivate
// tenant invitations. Grounded on the teacher's pkg/iam/invitation service
// shape (issue validates the inviter's own role/scope reach before minting,
// acceptance is a single transactional unit), generalized to the tenant-tree
// reachability rules and the default-agent-conversation provisioning named
// for acceptance.
package invitations

import (
	"context"
	"net/http"
	"time"

	"github.com/flowctl/core/pkg/billing"
	"github.com/flowctl/core/pkg/errx"
	"github.com/flowctl/core/pkg/kernel"
	"github.com/flowctl/core/pkg/notifx"
	"github.com/flowctl/core/pkg/scopes"
	"github.com/flowctl/core/pkg/store"
	"github.com/flowctl/core/pkg/tenanttree"
	"github.com/google/uuid"
)

var ErrRegistry = errx.NewRegistry("INVITATIONS")

var (
	CodeForbidden        = ErrRegistry.Register("FORBIDDEN", errx.TypeAuthorization, http.StatusForbidden, "caller may not invite into this tenant at this role")
	CodeRoleTooHigh      = ErrRegistry.Register("ROLE_TOO_HIGH", errx.TypeAuthorization, http.StatusForbidden, "assigned role may not outrank the inviter")
	CodeNotFound         = ErrRegistry.Register("NOT_FOUND", errx.TypeNotFound, http.StatusNotFound, "invitation not found")
	CodeAlreadyAccepted  = ErrRegistry.Register("ALREADY_ACCEPTED", errx.TypeConflict, http.StatusConflict, "invitation link has already been used")
	CodeTenantFull       = ErrRegistry.Register("TENANT_FULL", errx.TypeBusiness, http.StatusPaymentRequired, "tenant has reached its seat or capacity limit")
)

func ErrForbidden() *errx.Error   { return ErrRegistry.New(CodeForbidden) }
func ErrRoleTooHigh() *errx.Error { return ErrRegistry.New(CodeRoleTooHigh) }
func ErrNotFound() *errx.Error    { return ErrRegistry.New(CodeNotFound) }
func ErrAlreadyAccepted() *errx.Error {
	return ErrRegistry.New(CodeAlreadyAccepted)
}
func ErrTenantFull() *errx.Error { return ErrRegistry.New(CodeTenantFull) }

// Service issues and resolves tenant invitations.
type Service struct {
	store    store.Store
	tree     *tenanttree.Tree
	engine   *scopes.Engine
	billing  *billing.Gate
	notifier notifx.Notifier
	appURI   string
}

func New(s store.Store, tree *tenanttree.Tree, engine *scopes.Engine, gate *billing.Gate, notifier notifx.Notifier, appURI string) *Service {
	return &Service{store: s, tree: tree, engine: engine, billing: gate, notifier: notifier, appURI: appURI}
}

// IssueRequest describes a pending invite to create.
type IssueRequest struct {
	Email    string
	TenantID kernel.TenantID
	RoleID   int
}

// Issue mints a pending invitation. The inviter must hold users:write in
// tenantID (directly or via an ancestor admin membership, per CanAccess),
// and the assigned role must not outrank the inviter's own membership role
// in tenantID (numerically ≥, since lower role ids are more privileged).
func (s *Service) Issue(ctx context.Context, inviterID kernel.UserID, req IssueRequest) (*store.Invitation, error) {
	if err := s.engine.Require(ctx, inviterID, req.TenantID, "users:write"); err != nil {
		return nil, err
	}

	inviterMembership, err := s.store.Memberships().Find(ctx, inviterID, req.TenantID)
	if err != nil {
		var xe *errx.Error
		if !errx.As(err, &xe) || xe.Type != errx.TypeNotFound {
			return nil, errx.Wrap(err, "failed to load inviter membership", errx.TypeInternal)
		}
		inviterMembership = nil
	}
	inviterRole := store.RoleUser
	if inviterMembership != nil {
		inviterRole = inviterMembership.RoleID
	}
	if req.RoleID < inviterRole {
		return nil, ErrRoleTooHigh()
	}

	inv := store.Invitation{
		ID:         uuid.NewString(),
		Email:      req.Email,
		TenantID:   req.TenantID,
		RoleID:     req.RoleID,
		InviterID:  inviterID,
		IsAccepted: false,
		CreatedAt:  time.Now(),
	}
	if err := s.store.Invitations().Create(ctx, inv); err != nil {
		return nil, errx.Wrap(err, "failed to create invitation", errx.TypeInternal)
	}

	tenant, err := s.store.Tenants().FindByID(ctx, req.TenantID)
	if err == nil && tenant != nil {
		_ = s.notifier.SendEmail(ctx, notifx.EmailMessage{
			To:       []string{req.Email},
			Subject:  "You've been invited to " + tenant.Name,
			TextBody: "Accept your invitation at " + s.appURI + "/invitations/" + inv.ID,
		})
	}
	return &inv, nil
}

// Accepted is returned from a successful Accept: the membership created (or
// restored) and whether the underlying user account was reactivated.
type Accepted struct {
	Membership   store.Membership
	Reactivated  bool
	Conversation store.Conversation
}

// Accept resolves invitationID for userID. If the invited user account is
// inactive it is reactivated in the same transaction as the membership
// insert. A default conversation seeded with the tenant's agent as a
// participant is created so the new member has somewhere to talk to it
// immediately. The invitation is marked accepted so the link cannot be
// replayed.
func (s *Service) Accept(ctx context.Context, invitationID string, userID kernel.UserID) (*Accepted, error) {
	var result Accepted

	err := s.store.WithTx(ctx, func(tx store.Session) error {
		inv, err := tx.Invitations().FindByID(ctx, invitationID)
		if err != nil {
			return ErrNotFound()
		}
		if inv.IsAccepted {
			return ErrAlreadyAccepted()
		}

		user, err := tx.Users().FindByID(ctx, userID)
		if err != nil {
			return errx.Wrap(err, "failed to load invited user", errx.TypeInternal)
		}
		if user != nil && !user.IsActive {
			if err := tx.Users().SetActive(ctx, userID, true); err != nil {
				return errx.Wrap(err, "failed to reactivate user", errx.TypeInternal)
			}
			result.Reactivated = true
		}

		directTenant, err := tx.Tenants().FindByID(ctx, inv.TenantID)
		if err != nil {
			return errx.Wrap(err, "failed to load invitation tenant", errx.TypeInternal)
		}
		admit, err := s.billing.CanAdmitMember(ctx, directTenant, tx.Memberships())
		if err != nil {
			return err
		}
		if !admit {
			return ErrTenantFull()
		}

		membership := store.Membership{
			UserID:    userID,
			TenantID:  inv.TenantID,
			RoleID:    inv.RoleID,
			CreatedAt: time.Now(),
		}
		if err := tx.Memberships().Create(ctx, membership); err != nil {
			return errx.Wrap(err, "failed to create membership", errx.TypeInternal)
		}
		result.Membership = membership

		if err := tx.Invitations().MarkAccepted(ctx, invitationID); err != nil {
			return err
		}

		conv := store.Conversation{
			ID:           uuid.NewString(),
			TenantID:     inv.TenantID,
			Type:         store.ConversationSingle,
			Participants: []string{userID.String(), "agent:" + directTenant.AgentName},
			CreatedAt:    time.Now(),
		}
		if err := tx.Conversations().Create(ctx, conv); err != nil {
			return errx.Wrap(err, "failed to provision default agent conversation", errx.TypeInternal)
		}
		result.Conversation = conv
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}
