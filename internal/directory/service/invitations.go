package service

import (
	"context"
	"errors"

	"github.com/louisbranch/tenantry/internal/directory/invitation"
	"github.com/louisbranch/tenantry/internal/directory/role"
	"github.com/louisbranch/tenantry/internal/directory/storage"
	apperrors "github.com/louisbranch/tenantry/internal/platform/errors"
)

// InviteMemberRequest creates a pending invitation.
type InviteMemberRequest struct {
	ActorUserID       string
	OrganizationID    string
	InviteeIdentifier string
	IdentifierType    string
	Role              string
	TeamID            string
	InviterName       string
	Message           string
}

// InvitationWithGrant pairs an invitation with its signed accept grant. The
// grant is empty when the service has no signing key.
type InvitationWithGrant struct {
	Invitation invitation.Invitation
	Grant      string
}

// InviteMember creates a pending invitation. At most one pending invitation
// per identifier may exist in an organization. Requires the admin role.
func (s *Service) InviteMember(ctx context.Context, req InviteMemberRequest) (result InvitationWithGrant, err error) {
	ctx, span := s.startSpan(ctx, "directory.InviteMember")
	defer func() { finishSpan(span, err) }()

	if _, err := s.requireRole(ctx, req.OrganizationID, req.ActorUserID, role.Admin); err != nil {
		return InvitationWithGrant{}, err
	}
	return s.inviteMember(ctx, req)
}

func (s *Service) inviteMember(ctx context.Context, req InviteMemberRequest) (InvitationWithGrant, error) {
	// Accepting would mint a second owner; the owner role is only reachable
	// through ownership transfer.
	if role.Normalize(req.Role) == role.Owner {
		return InvitationWithGrant{}, apperrors.New(apperrors.CodeMemberInvalidRole,
			"the owner role is granted through ownership transfer")
	}

	inv, err := invitation.CreateInvitation(invitation.CreateInvitationInput{
		OrganizationID:    req.OrganizationID,
		InviteeIdentifier: req.InviteeIdentifier,
		IdentifierType:    req.IdentifierType,
		Role:              req.Role,
		TeamID:            req.TeamID,
		InviterUserID:     req.ActorUserID,
		InviterName:       req.InviterName,
		Message:           req.Message,
	}, s.clock, s.idGenerator)
	if err != nil {
		return InvitationWithGrant{}, err
	}

	created, err := s.store.CreateInvitation(ctx, inv)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrAlreadyExists):
			return InvitationWithGrant{}, apperrors.New(apperrors.CodeInvitationDuplicatePending,
				"a pending invitation already exists for this identifier")
		case errors.Is(err, storage.ErrCrossOrgTeam):
			return InvitationWithGrant{}, apperrors.New(apperrors.CodeTeamCrossOrg,
				"invitation team belongs to another organization")
		}
		return InvitationWithGrant{}, notFound(err, "organization not found")
	}

	result := InvitationWithGrant{Invitation: created}
	if s.grants.PrivateKey != nil {
		grant, err := invitation.MintGrant(created, s.grants)
		if err != nil {
			return result, err
		}
		result.Grant = grant
	}
	return result, nil
}

// BulkInviteMembersRequest creates several invitations in one call.
type BulkInviteMembersRequest struct {
	ActorUserID    string
	OrganizationID string
	Items          []BulkInviteItem
}

// BulkInviteItem is one identifier of a bulk invite.
type BulkInviteItem struct {
	InviteeIdentifier string
	IdentifierType    string
	Role              string
	TeamID            string
}

// BulkInviteMembersResult reports per-item outcomes.
type BulkInviteMembersResult struct {
	Invited []InvitationWithGrant
	Errors  []BulkItemError
}

// BulkInviteMembers creates each invitation independently; one failing item
// does not abort the batch. Requires the admin role once for the whole batch.
func (s *Service) BulkInviteMembers(ctx context.Context, req BulkInviteMembersRequest) (result BulkInviteMembersResult, err error) {
	ctx, span := s.startSpan(ctx, "directory.BulkInviteMembers")
	defer func() { finishSpan(span, err) }()

	if _, err := s.requireRole(ctx, req.OrganizationID, req.ActorUserID, role.Admin); err != nil {
		return BulkInviteMembersResult{}, err
	}

	for _, item := range req.Items {
		invited, itemErr := s.inviteMember(ctx, InviteMemberRequest{
			ActorUserID:       req.ActorUserID,
			OrganizationID:    req.OrganizationID,
			InviteeIdentifier: item.InviteeIdentifier,
			IdentifierType:    item.IdentifierType,
			Role:              item.Role,
			TeamID:            item.TeamID,
		})
		if itemErr != nil {
			result.Errors = append(result.Errors, bulkError(item.InviteeIdentifier, itemErr))
			continue
		}
		result.Invited = append(result.Invited, invited)
	}
	return result, nil
}

// GetInvitation returns one invitation. Expired reports whether the
// invitation is past its expiry even if the stored status has not flipped
// yet.
func (s *Service) GetInvitation(ctx context.Context, invitationID string) (invitation.Invitation, bool, error) {
	inv, err := s.store.GetInvitation(ctx, invitationID)
	if err != nil {
		return invitation.Invitation{}, false, notFound(err, "invitation not found")
	}
	expired := inv.Status == invitation.StatusExpired ||
		(inv.Status == invitation.StatusPending && inv.IsExpired(s.now()))
	return inv, expired, nil
}

// ListInvitationsRequest selects one page of invitations.
type ListInvitationsRequest struct {
	ActorUserID    string
	OrganizationID string
	// Filter is an AIP-160 expression over status, role, invitee_identifier,
	// identifier_type, team_id, inviter_user_id, expires_at.
	Filter    string
	PageSize  int
	PageToken string
}

// ListInvitations returns one page of the organization's invitations.
// Requires the admin role.
func (s *Service) ListInvitations(ctx context.Context, req ListInvitationsRequest) (storage.InvitationPage, error) {
	if _, err := s.requireRole(ctx, req.OrganizationID, req.ActorUserID, role.Admin); err != nil {
		return storage.InvitationPage{}, err
	}
	return s.store.ListInvitations(ctx, req.OrganizationID, req.Filter, clampPageSize(req.PageSize), req.PageToken)
}

// GetPendingInvitationsForIdentifier returns the invitee's pending
// invitations across all organizations, for surfacing at sign-in.
func (s *Service) GetPendingInvitationsForIdentifier(ctx context.Context, identifier string) ([]invitation.Invitation, error) {
	return s.store.ListPendingInvitationsForIdentifier(ctx, identifier)
}

// AcceptInvitationRequest accepts an invitation on behalf of a user.
type AcceptInvitationRequest struct {
	InvitationID string
	UserID       string
	// Grant is the signed accept grant. Verified when the service holds a
	// public key; callers that authenticate the invitee another way leave it
	// empty only if no key is configured.
	Grant string
}

// AcceptInvitation turns a pending invitation into a membership, joining the
// invitation's team when one is set. A lapsed invitation fails and its status
// flips to expired even though the accept fails.
func (s *Service) AcceptInvitation(ctx context.Context, req AcceptInvitationRequest) (accepted storage.AcceptedInvitation, err error) {
	ctx, span := s.startSpan(ctx, "directory.AcceptInvitation")
	defer func() { finishSpan(span, err) }()

	inv, err := s.store.GetInvitation(ctx, req.InvitationID)
	if err != nil {
		return storage.AcceptedInvitation{}, notFound(err, "invitation not found")
	}

	if s.grants.PublicKey != nil {
		if _, err := invitation.ValidateGrant(req.Grant, invitation.GrantExpectation{
			OrganizationID:    inv.OrganizationID,
			InvitationID:      inv.ID,
			InviteeIdentifier: inv.InviteeIdentifier,
		}, s.grants); err != nil {
			return storage.AcceptedInvitation{}, err
		}
	}

	memberID, err := s.newID()
	if err != nil {
		return storage.AcceptedInvitation{}, err
	}
	teamMemberID, err := s.newID()
	if err != nil {
		return storage.AcceptedInvitation{}, err
	}

	accepted, err = s.store.AcceptInvitation(ctx, storage.AcceptInvitationParams{
		InvitationID: req.InvitationID,
		UserID:       req.UserID,
		MemberID:     memberID,
		TeamMemberID: teamMemberID,
		Now:          s.now(),
	})
	if err != nil {
		return storage.AcceptedInvitation{}, acceptError(err)
	}

	teamID := ""
	if accepted.TeamMembership != nil {
		teamID = accepted.TeamMembership.TeamID
	}
	if err := s.syncer.InvitationAccepted(ctx, inv.OrganizationID, req.UserID, accepted.Member.Role, teamID); err != nil {
		return accepted, err
	}
	return accepted, nil
}

func acceptError(err error) error {
	var stateErr *storage.InvitationStateError
	switch {
	case errors.Is(err, storage.ErrInvitationExpired):
		return invitation.ErrExpired
	case errors.As(err, &stateErr):
		return invitation.NotPendingError(stateErr.Status)
	case errors.Is(err, storage.ErrAlreadyExists):
		return apperrors.New(apperrors.CodeMemberAlreadyExists,
			"user is already a member of this organization")
	}
	return notFound(err, "invitation not found")
}

// InvitationActionRequest resolves a pending invitation.
type InvitationActionRequest struct {
	ActorUserID  string
	InvitationID string
}

// ResendInvitation refreshes the invitation for re-delivery and re-mints its
// accept grant. The expiry window is not extended. Requires the admin role.
func (s *Service) ResendInvitation(ctx context.Context, req InvitationActionRequest) (result InvitationWithGrant, err error) {
	ctx, span := s.startSpan(ctx, "directory.ResendInvitation")
	defer func() { finishSpan(span, err) }()

	inv, err := s.store.GetInvitation(ctx, req.InvitationID)
	if err != nil {
		return InvitationWithGrant{}, notFound(err, "invitation not found")
	}
	if _, err := s.requireRole(ctx, inv.OrganizationID, req.ActorUserID, role.Admin); err != nil {
		return InvitationWithGrant{}, err
	}

	resent, err := s.store.PrepareResend(ctx, req.InvitationID, s.now())
	if err != nil {
		return InvitationWithGrant{}, acceptError(err)
	}

	result = InvitationWithGrant{Invitation: resent}
	if s.grants.PrivateKey != nil {
		grant, err := invitation.MintGrant(resent, s.grants)
		if err != nil {
			return result, err
		}
		result.Grant = grant
	}
	return result, nil
}

// CancelInvitation cancels a pending invitation. Requires the admin role.
func (s *Service) CancelInvitation(ctx context.Context, req InvitationActionRequest) (cancelled invitation.Invitation, err error) {
	ctx, span := s.startSpan(ctx, "directory.CancelInvitation")
	defer func() { finishSpan(span, err) }()

	inv, err := s.store.GetInvitation(ctx, req.InvitationID)
	if err != nil {
		return invitation.Invitation{}, notFound(err, "invitation not found")
	}
	if _, err := s.requireRole(ctx, inv.OrganizationID, req.ActorUserID, role.Admin); err != nil {
		return invitation.Invitation{}, err
	}

	cancelled, err = s.store.CancelInvitation(ctx, req.InvitationID, s.now())
	if err != nil {
		return invitation.Invitation{}, acceptError(err)
	}
	return cancelled, nil
}
