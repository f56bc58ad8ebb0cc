package service

import (
	"context"
	"errors"

	"github.com/louisbranch/tenantry/internal/directory/member"
	"github.com/louisbranch/tenantry/internal/directory/role"
	"github.com/louisbranch/tenantry/internal/directory/storage"
	apperrors "github.com/louisbranch/tenantry/internal/platform/errors"
)

// AddMemberRequest adds a user to an organization directly.
type AddMemberRequest struct {
	ActorUserID    string
	OrganizationID string
	UserID         string
	Role           string
}

// AddMember creates the membership and grants its role. Requires the admin
// role; the owner role can only be granted through TransferOwnership.
func (s *Service) AddMember(ctx context.Context, req AddMemberRequest) (added member.Member, err error) {
	ctx, span := s.startSpan(ctx, "directory.AddMember")
	defer func() { finishSpan(span, err) }()

	if _, err := s.requireRole(ctx, req.OrganizationID, req.ActorUserID, role.Admin); err != nil {
		return member.Member{}, err
	}
	return s.addMember(ctx, req.OrganizationID, req.UserID, req.Role)
}

func (s *Service) addMember(ctx context.Context, orgID, userID, memberRole string) (member.Member, error) {
	if role.Normalize(memberRole) == role.Owner {
		return member.Member{}, apperrors.New(apperrors.CodeMemberInvalidRole,
			"the owner role is granted through ownership transfer")
	}

	m, err := member.CreateMember(member.CreateMemberInput{
		OrganizationID: orgID,
		UserID:         userID,
		Role:           memberRole,
	}, s.clock, s.idGenerator)
	if err != nil {
		return member.Member{}, err
	}

	created, err := s.store.CreateMember(ctx, m)
	if err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return member.Member{}, apperrors.New(apperrors.CodeMemberAlreadyExists,
				"user is already a member of this organization")
		}
		return member.Member{}, notFound(err, "organization not found")
	}

	if err := s.syncer.MemberAdded(ctx, orgID, created.UserID, created.Role); err != nil {
		return created, err
	}
	return created, nil
}

// GetMember returns one membership.
func (s *Service) GetMember(ctx context.Context, orgID, userID string) (member.Member, error) {
	m, err := s.store.GetMember(ctx, orgID, userID)
	if err != nil {
		return member.Member{}, notFound(err, "member not found")
	}
	return m, nil
}

// ListMembersRequest selects one page of memberships.
type ListMembersRequest struct {
	OrganizationID string
	// Filter is an AIP-160 expression over user_id, role, status, joined_at.
	Filter    string
	PageSize  int
	PageToken string
}

// ListMembers returns one page of memberships.
func (s *Service) ListMembers(ctx context.Context, req ListMembersRequest) (storage.MemberPage, error) {
	return s.store.ListMembers(ctx, req.OrganizationID, req.Filter, clampPageSize(req.PageSize), req.PageToken)
}

// PermissionCheck reports the outcome of CheckMemberPermission.
type PermissionCheck struct {
	HasPermission bool
	// CurrentRole is empty when the user is not a member.
	CurrentRole string
}

// CheckMemberPermission reports whether the user's role ranks at or above
// minRole. Non-membership is a negative answer, not an error, so the query is
// safe to call for arbitrary users.
func (s *Service) CheckMemberPermission(ctx context.Context, orgID, userID, minRole string) (PermissionCheck, error) {
	m, err := s.store.GetMember(ctx, orgID, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return PermissionCheck{}, nil
		}
		return PermissionCheck{}, err
	}
	if m.Status == member.StatusSuspended {
		return PermissionCheck{CurrentRole: m.Role}, nil
	}
	return PermissionCheck{
		HasPermission: role.HasAtLeast(m.Role, minRole),
		CurrentRole:   m.Role,
	}, nil
}

// UpdateMemberRoleRequest changes a member's role.
type UpdateMemberRoleRequest struct {
	ActorUserID    string
	OrganizationID string
	UserID         string
	NewRole        string
}

// UpdateMemberRole changes the member's role and re-syncs the grant, revoking
// the old role before assigning the new one. Promoting to owner is an
// ownership transfer and therefore owner-only.
func (s *Service) UpdateMemberRole(ctx context.Context, req UpdateMemberRoleRequest) (changed member.Member, err error) {
	ctx, span := s.startSpan(ctx, "directory.UpdateMemberRole")
	defer func() { finishSpan(span, err) }()

	newRole := role.Normalize(req.NewRole)
	if !role.IsValid(newRole) {
		return member.Member{}, member.ErrInvalidRole
	}

	if newRole == role.Owner {
		transfer, err := s.TransferOwnership(ctx, TransferOwnershipRequest{
			ActorUserID:    req.ActorUserID,
			OrganizationID: req.OrganizationID,
			NewOwnerUserID: req.UserID,
		})
		if err != nil {
			return member.Member{}, err
		}
		return transfer.NewOwner, nil
	}

	if _, err := s.requireRole(ctx, req.OrganizationID, req.ActorUserID, role.Admin); err != nil {
		return member.Member{}, err
	}

	change, err := s.store.UpdateMemberRole(ctx, req.OrganizationID, req.UserID, newRole, s.now())
	if err != nil {
		if errors.Is(err, storage.ErrOwnerProtected) {
			return member.Member{}, apperrors.New(apperrors.CodeMemberOwnerProtected,
				"the owner role changes through ownership transfer")
		}
		return member.Member{}, notFound(err, "member not found")
	}

	if change.OldRole != change.Member.Role {
		if err := s.syncer.RoleChanged(ctx, req.OrganizationID, req.UserID, change.OldRole, change.Member.Role); err != nil {
			return change.Member, err
		}
	}
	return change.Member, nil
}

// MemberStatusRequest suspends or reinstates a member.
type MemberStatusRequest struct {
	ActorUserID    string
	OrganizationID string
	UserID         string
}

// SuspendMember marks the membership suspended. The role grant is retained;
// only the directory status changes. Requires the admin role.
func (s *Service) SuspendMember(ctx context.Context, req MemberStatusRequest) (member.Member, error) {
	return s.setMemberStatus(ctx, req, member.StatusSuspended)
}

// UnsuspendMember reinstates a suspended membership. Requires the admin role.
func (s *Service) UnsuspendMember(ctx context.Context, req MemberStatusRequest) (member.Member, error) {
	return s.setMemberStatus(ctx, req, member.StatusActive)
}

func (s *Service) setMemberStatus(ctx context.Context, req MemberStatusRequest, status member.Status) (updated member.Member, err error) {
	ctx, span := s.startSpan(ctx, "directory.SetMemberStatus")
	defer func() { finishSpan(span, err) }()

	if _, err := s.requireRole(ctx, req.OrganizationID, req.ActorUserID, role.Admin); err != nil {
		return member.Member{}, err
	}

	organization, err := s.store.GetOrganization(ctx, req.OrganizationID)
	if err != nil {
		return member.Member{}, notFound(err, "organization not found")
	}
	if status == member.StatusSuspended && organization.OwnerUserID == req.UserID {
		return member.Member{}, apperrors.New(apperrors.CodeMemberOwnerProtected,
			"the organization owner cannot be suspended")
	}

	updated, err = s.store.SetMemberStatus(ctx, req.OrganizationID, req.UserID, status, s.now())
	if err != nil {
		return member.Member{}, notFound(err, "member not found")
	}
	return updated, nil
}

// RemoveMemberRequest removes a membership.
type RemoveMemberRequest struct {
	ActorUserID    string
	OrganizationID string
	UserID         string
}

// RemoveMember drops the member's team memberships and membership, then
// revokes the matching authorization facts: team relations first, then the
// organization role. Requires the admin role; the owner cannot be removed.
func (s *Service) RemoveMember(ctx context.Context, req RemoveMemberRequest) (err error) {
	ctx, span := s.startSpan(ctx, "directory.RemoveMember")
	defer func() { finishSpan(span, err) }()

	if _, err := s.requireRole(ctx, req.OrganizationID, req.ActorUserID, role.Admin); err != nil {
		return err
	}
	return s.removeMember(ctx, req.OrganizationID, req.UserID, false)
}

// LeaveOrganizationRequest removes the caller's own membership.
type LeaveOrganizationRequest struct {
	ActorUserID    string
	OrganizationID string
}

// LeaveOrganization removes the caller's own membership. The sole owner must
// transfer ownership first.
func (s *Service) LeaveOrganization(ctx context.Context, req LeaveOrganizationRequest) (err error) {
	ctx, span := s.startSpan(ctx, "directory.LeaveOrganization")
	defer func() { finishSpan(span, err) }()

	return s.removeMember(ctx, req.OrganizationID, req.ActorUserID, true)
}

func (s *Service) removeMember(ctx context.Context, orgID, userID string, asLeave bool) error {
	var (
		removed storage.RemovedMember
		err     error
	)
	if asLeave {
		removed, err = s.store.LeaveOrganization(ctx, orgID, userID)
	} else {
		removed, err = s.store.RemoveMember(ctx, orgID, userID)
	}
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrOwnerProtected):
			return apperrors.New(apperrors.CodeMemberOwnerProtected,
				"the organization owner must transfer ownership first")
		case errors.Is(err, storage.ErrSoleOwner):
			return apperrors.New(apperrors.CodeMemberSoleOwner,
				"the sole owner must transfer ownership before leaving")
		}
		return notFound(err, "member not found")
	}

	teamIDs := make([]string, 0, len(removed.TeamMemberships))
	for _, tm := range removed.TeamMemberships {
		teamIDs = append(teamIDs, tm.TeamID)
	}
	return s.syncer.MemberRemoved(ctx, orgID, userID, removed.Member.Role, teamIDs)
}

// BulkItemError reports one failed item of a bulk operation.
type BulkItemError struct {
	Identifier string
	Code       apperrors.Code
	Message    string
}

func bulkError(identifier string, err error) BulkItemError {
	return BulkItemError{
		Identifier: identifier,
		Code:       apperrors.GetCode(err),
		Message:    err.Error(),
	}
}

// BulkAddMembersRequest adds several users in one call.
type BulkAddMembersRequest struct {
	ActorUserID    string
	OrganizationID string
	Items          []BulkMemberItem
}

// BulkMemberItem is one user/role pair of a bulk add.
type BulkMemberItem struct {
	UserID string
	Role   string
}

// BulkAddMembersResult reports per-item outcomes.
type BulkAddMembersResult struct {
	Added  []member.Member
	Errors []BulkItemError
}

// BulkAddMembers adds each item independently; one failing item does not
// abort the batch. Requires the admin role once for the whole batch.
func (s *Service) BulkAddMembers(ctx context.Context, req BulkAddMembersRequest) (result BulkAddMembersResult, err error) {
	ctx, span := s.startSpan(ctx, "directory.BulkAddMembers")
	defer func() { finishSpan(span, err) }()

	if _, err := s.requireRole(ctx, req.OrganizationID, req.ActorUserID, role.Admin); err != nil {
		return BulkAddMembersResult{}, err
	}

	for _, item := range req.Items {
		added, itemErr := s.addMember(ctx, req.OrganizationID, item.UserID, item.Role)
		if itemErr != nil {
			result.Errors = append(result.Errors, bulkError(item.UserID, itemErr))
			continue
		}
		result.Added = append(result.Added, added)
	}
	return result, nil
}

// BulkRemoveMembersRequest removes several users in one call.
type BulkRemoveMembersRequest struct {
	ActorUserID    string
	OrganizationID string
	UserIDs        []string
}

// BulkRemoveMembersResult reports per-item outcomes.
type BulkRemoveMembersResult struct {
	Removed []string
	Errors  []BulkItemError
}

// BulkRemoveMembers removes each user independently; one failing item does
// not abort the batch. Requires the admin role once for the whole batch.
func (s *Service) BulkRemoveMembers(ctx context.Context, req BulkRemoveMembersRequest) (result BulkRemoveMembersResult, err error) {
	ctx, span := s.startSpan(ctx, "directory.BulkRemoveMembers")
	defer func() { finishSpan(span, err) }()

	if _, err := s.requireRole(ctx, req.OrganizationID, req.ActorUserID, role.Admin); err != nil {
		return BulkRemoveMembersResult{}, err
	}

	for _, userID := range req.UserIDs {
		if itemErr := s.removeMember(ctx, req.OrganizationID, userID, false); itemErr != nil {
			result.Errors = append(result.Errors, bulkError(userID, itemErr))
			continue
		}
		result.Removed = append(result.Removed, userID)
	}
	return result, nil
}
