// Package authz mirrors directory role and team relationships into an
// external authorization service.
package authz

import (
	"context"

	apperrors "github.com/louisbranch/tenantry/internal/platform/errors"
)

// Relation names a team-scoped relationship.
const (
	// RelationTeamMember links a user to a team.
	RelationTeamMember = "team_member"
)

// Client is the authorization service surface the directory writes to.
// Implementations must be idempotent: repeating an assign or revoke after a
// partial failure converges to the same state.
type Client interface {
	// AssignRole grants an organization-scoped role to a user.
	AssignRole(ctx context.Context, orgID, userID, role string) error
	// RevokeRole removes an organization-scoped role from a user.
	RevokeRole(ctx context.Context, orgID, userID, role string) error
	// AddRelation records a team-scoped relationship.
	AddRelation(ctx context.Context, teamID, userID, relation string) error
	// RemoveRelation removes a team-scoped relationship.
	RemoveRelation(ctx context.Context, teamID, userID, relation string) error
	// Check reports whether the user holds the role in the organization.
	Check(ctx context.Context, orgID, userID, role string) (bool, error)
}

// Require fails with a forbidden error when the user does not hold the role
// in the organization. It lets callers layer fine-grained checks on top of
// the directory's coarse role hierarchy.
func Require(ctx context.Context, client Client, orgID, userID, role string) error {
	ok, err := client.Check(ctx, orgID, userID, role)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeAuthzSyncFailed, "authorization check failed", err)
	}
	if !ok {
		return apperrors.WithMetadata(apperrors.CodeMemberRoleInsufficient,
			"user does not hold the required role",
			map[string]string{"RequiredRole": role})
	}
	return nil
}

// Syncer applies directory mutations to the authorization service in a fixed
// order, so a failure leaves a deterministic partial state the next retry can
// converge from. Sync failures surface after the directory write committed;
// the directory remains the source of truth.
type Syncer struct {
	client Client
}

// NewSyncer builds a Syncer over the given client.
func NewSyncer(client Client) *Syncer {
	return &Syncer{client: client}
}

func (s *Syncer) failed(err error, op string) error {
	return apperrors.WrapWithMetadata(apperrors.CodeAuthzSyncFailed,
		"authorization sync failed", map[string]string{"Operation": op}, err)
}

// MemberAdded grants the member's organization role.
func (s *Syncer) MemberAdded(ctx context.Context, orgID, userID, role string) error {
	if err := s.client.AssignRole(ctx, orgID, userID, role); err != nil {
		return s.failed(err, "assign_role")
	}
	return nil
}

// RoleChanged revokes the old role before assigning the new one, so a crash
// between the two leaves the user with fewer grants, never more.
func (s *Syncer) RoleChanged(ctx context.Context, orgID, userID, oldRole, newRole string) error {
	if err := s.client.RevokeRole(ctx, orgID, userID, oldRole); err != nil {
		return s.failed(err, "revoke_role")
	}
	if err := s.client.AssignRole(ctx, orgID, userID, newRole); err != nil {
		return s.failed(err, "assign_role")
	}
	return nil
}

// MemberRemoved clears the member's team relations before revoking the
// organization role.
func (s *Syncer) MemberRemoved(ctx context.Context, orgID, userID, role string, teamIDs []string) error {
	for _, teamID := range teamIDs {
		if err := s.client.RemoveRelation(ctx, teamID, userID, RelationTeamMember); err != nil {
			return s.failed(err, "remove_relation")
		}
	}
	if err := s.client.RevokeRole(ctx, orgID, userID, role); err != nil {
		return s.failed(err, "revoke_role")
	}
	return nil
}

// OwnershipTransferred demotes the old owner before promoting the new one.
func (s *Syncer) OwnershipTransferred(ctx context.Context, orgID, oldOwnerID, newOwnerID, newOwnerOldRole string) error {
	if err := s.RoleChanged(ctx, orgID, oldOwnerID, "owner", "admin"); err != nil {
		return err
	}
	return s.RoleChanged(ctx, orgID, newOwnerID, newOwnerOldRole, "owner")
}

// TeamMemberAdded records the team relation.
func (s *Syncer) TeamMemberAdded(ctx context.Context, teamID, userID string) error {
	if err := s.client.AddRelation(ctx, teamID, userID, RelationTeamMember); err != nil {
		return s.failed(err, "add_relation")
	}
	return nil
}

// TeamMemberRemoved removes the team relation.
func (s *Syncer) TeamMemberRemoved(ctx context.Context, teamID, userID string) error {
	if err := s.client.RemoveRelation(ctx, teamID, userID, RelationTeamMember); err != nil {
		return s.failed(err, "remove_relation")
	}
	return nil
}

// TeamDeleted removes every relation held on the team.
func (s *Syncer) TeamDeleted(ctx context.Context, teamID string, userIDs []string) error {
	for _, userID := range userIDs {
		if err := s.client.RemoveRelation(ctx, teamID, userID, RelationTeamMember); err != nil {
			return s.failed(err, "remove_relation")
		}
	}
	return nil
}

// InvitationAccepted grants the new member's role and optional team relation.
func (s *Syncer) InvitationAccepted(ctx context.Context, orgID, userID, role, teamID string) error {
	if err := s.client.AssignRole(ctx, orgID, userID, role); err != nil {
		return s.failed(err, "assign_role")
	}
	if teamID != "" {
		if err := s.client.AddRelation(ctx, teamID, userID, RelationTeamMember); err != nil {
			return s.failed(err, "add_relation")
		}
	}
	return nil
}

// TeamRelation identifies one team relation to revoke.
type TeamRelation struct {
	TeamID string
	UserID string
}

// RoleGrant identifies one organization role to revoke.
type RoleGrant struct {
	UserID string
	Role   string
}

// OrganizationDeleted revokes all grants for a deleted organization: team
// relations first, then organization roles.
func (s *Syncer) OrganizationDeleted(ctx context.Context, orgID string, relations []TeamRelation, grants []RoleGrant) error {
	for _, relation := range relations {
		if err := s.client.RemoveRelation(ctx, relation.TeamID, relation.UserID, RelationTeamMember); err != nil {
			return s.failed(err, "remove_relation")
		}
	}
	for _, grant := range grants {
		if err := s.client.RevokeRole(ctx, orgID, grant.UserID, grant.Role); err != nil {
			return s.failed(err, "revoke_role")
		}
	}
	return nil
}
