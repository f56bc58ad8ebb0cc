// Package storage defines persistence contracts for directory state.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/louisbranch/tenantry/internal/directory/invitation"
	"github.com/louisbranch/tenantry/internal/directory/member"
	"github.com/louisbranch/tenantry/internal/directory/org"
	"github.com/louisbranch/tenantry/internal/directory/team"
)

var (
	// ErrNotFound indicates a requested directory record is missing.
	ErrNotFound = errors.New("record not found")
	// ErrAlreadyExists indicates a uniqueness constraint violation.
	ErrAlreadyExists = errors.New("record already exists")
	// ErrOwnerProtected indicates an attempt to remove the organization owner.
	ErrOwnerProtected = errors.New("organization owner cannot be removed")
	// ErrSoleOwner indicates the sole owner attempted to leave.
	ErrSoleOwner = errors.New("sole owner cannot leave the organization")
	// ErrNotOrgMember indicates a team operation for a user without a
	// membership in the team's organization.
	ErrNotOrgMember = errors.New("user is not an organization member")
	// ErrSelfParent indicates a team referencing itself as parent.
	ErrSelfParent = errors.New("team cannot be its own parent")
	// ErrParentCycle indicates a parent change that would close a loop.
	ErrParentCycle = errors.New("team parent would create a cycle")
	// ErrCrossOrgParent indicates a parent team in a different organization.
	ErrCrossOrgParent = errors.New("parent team belongs to a different organization")
	// ErrCrossOrgTeam indicates a team outside the expected organization.
	ErrCrossOrgTeam = errors.New("team belongs to a different organization")
	// ErrInvitationExpired indicates an invitation past its expiry; the store
	// flips the stored status before returning it.
	ErrInvitationExpired = errors.New("invitation has expired")
)

// InvitationStateError indicates an invitation outside the pending state.
type InvitationStateError struct {
	Status invitation.Status
}

func (e *InvitationStateError) Error() string {
	return fmt.Sprintf("invitation is %s", invitation.StatusLabel(e.Status))
}

// OrganizationPage stores one page of organizations.
type OrganizationPage struct {
	Organizations []org.Organization
	NextPageToken string
}

// MemberPage stores one page of organization members.
type MemberPage struct {
	Members       []member.Member
	NextPageToken string
}

// TeamPage stores one page of teams.
type TeamPage struct {
	Teams         []team.Team
	NextPageToken string
}

// InvitationPage stores one page of invitations.
type InvitationPage struct {
	Invitations   []invitation.Invitation
	NextPageToken string
}

// RoleChange reports a member role mutation for authorization sync.
type RoleChange struct {
	Member  member.Member
	OldRole string
}

// OwnershipTransfer reports the members touched by a transfer.
type OwnershipTransfer struct {
	Organization org.Organization
	// OldOwner is the demoted member (now admin).
	OldOwner member.Member
	// NewOwner is the promoted member (now owner).
	NewOwner member.Member
	// NewOwnerPreviousRole is the role the promoted member held before the
	// transfer, for authorization sync.
	NewOwnerPreviousRole string
}

// RemovedMember reports the records dropped by a member removal or leave.
type RemovedMember struct {
	Member member.Member
	// TeamMemberships are the rows removed across the organization's teams.
	TeamMemberships []team.TeamMember
}

// DeletedTeam reports the records touched by a team deletion.
type DeletedTeam struct {
	Team team.Team
	// Memberships are the removed TeamMember rows.
	Memberships []team.TeamMember
	// ReparentedChildIDs are teams moved to the deleted team's parent.
	ReparentedChildIDs []string
}

// DeletedOrganization reports the cascading deletion of one organization.
type DeletedOrganization struct {
	Organization    org.Organization
	Members         []member.Member
	Teams           []team.Team
	TeamMemberships []team.TeamMember
	Invitations     []invitation.Invitation
}

// AcceptInvitationParams carries pre-generated IDs into the accept
// transaction so the store never invents identifiers.
type AcceptInvitationParams struct {
	InvitationID string
	UserID       string
	// MemberID is used if a Member row is created.
	MemberID string
	// TeamMemberID is used if the invitation targets a team.
	TeamMemberID string
	Now          time.Time
}

// AcceptedInvitation reports the records created by an acceptance.
type AcceptedInvitation struct {
	Invitation invitation.Invitation
	Member     member.Member
	// TeamMembership is set when the invitation targeted a team and the
	// membership row was created (nil when it already existed or no team).
	TeamMembership *team.TeamMember
}

// OrganizationStore persists organizations and ownership.
type OrganizationStore interface {
	// CreateOrganization atomically persists the organization and its owner
	// member, allocating the final slug from org.Slug as candidate.
	CreateOrganization(ctx context.Context, organization org.Organization, owner member.Member) (org.Organization, error)
	GetOrganization(ctx context.Context, orgID string) (org.Organization, error)
	GetOrganizationBySlug(ctx context.Context, slug string) (org.Organization, error)
	ListUserOrganizations(ctx context.Context, userID string, pageSize int, pageToken string) (OrganizationPage, error)
	UpdateOrganization(ctx context.Context, organization org.Organization) (org.Organization, error)
	// TransferOwnership atomically demotes the current owner to admin,
	// promotes the target member to owner, and repoints the organization.
	TransferOwnership(ctx context.Context, orgID, newOwnerUserID string, now time.Time) (OwnershipTransfer, error)
	// DeleteOrganization removes team memberships, teams, invitations,
	// members, then the organization, in one transaction.
	DeleteOrganization(ctx context.Context, orgID string) (DeletedOrganization, error)
}

// MemberStore persists organization memberships.
type MemberStore interface {
	CreateMember(ctx context.Context, m member.Member) (member.Member, error)
	GetMember(ctx context.Context, orgID, userID string) (member.Member, error)
	ListMembers(ctx context.Context, orgID string, filter string, pageSize int, pageToken string) (MemberPage, error)
	UpdateMemberRole(ctx context.Context, orgID, userID, newRole string, now time.Time) (RoleChange, error)
	SetMemberStatus(ctx context.Context, orgID, userID string, status member.Status, now time.Time) (member.Member, error)
	// RemoveMember drops the member's team memberships and the member row.
	// The organization owner is protected.
	RemoveMember(ctx context.Context, orgID, userID string) (RemovedMember, error)
	// LeaveOrganization is RemoveMember invoked by the member itself; the
	// sole holder of the owner role is additionally rejected.
	LeaveOrganization(ctx context.Context, orgID, userID string) (RemovedMember, error)
}

// TeamStore persists teams and team memberships.
type TeamStore interface {
	// CreateTeam allocates the per-organization slug from t.Slug as candidate
	// and validates the parent inside the transaction.
	CreateTeam(ctx context.Context, t team.Team) (team.Team, error)
	GetTeam(ctx context.Context, teamID string) (team.Team, error)
	ListTeams(ctx context.Context, orgID string, parentTeamID *string, filter string, pageSize int, pageToken string) (TeamPage, error)
	// ListAllTeams returns every team of the organization, for tree assembly.
	ListAllTeams(ctx context.Context, orgID string) ([]team.Team, error)
	// UpdateTeam re-validates the parent chain inside the transaction.
	UpdateTeam(ctx context.Context, t team.Team) (team.Team, error)
	// DeleteTeam re-parents children to the deleted team's parent and drops
	// its membership rows.
	DeleteTeam(ctx context.Context, teamID string) (DeletedTeam, error)
	// AddTeamMember requires an organization membership for the same user.
	AddTeamMember(ctx context.Context, tm team.TeamMember) (team.TeamMember, error)
	RemoveTeamMember(ctx context.Context, teamID, userID string) (team.TeamMember, error)
	UpdateTeamMemberRole(ctx context.Context, teamID, userID, newRole string, now time.Time) (team.TeamMember, error)
	IsTeamMember(ctx context.Context, teamID, userID string) (bool, error)
	ListTeamMembers(ctx context.Context, teamID string) ([]team.TeamMember, error)
}

// InvitationStore persists invitations and drives their state machine.
type InvitationStore interface {
	// CreateInvitation enforces the single-pending-per-identifier invariant.
	CreateInvitation(ctx context.Context, inv invitation.Invitation) (invitation.Invitation, error)
	GetInvitation(ctx context.Context, invitationID string) (invitation.Invitation, error)
	ListInvitations(ctx context.Context, orgID string, filter string, pageSize int, pageToken string) (InvitationPage, error)
	ListPendingInvitationsForIdentifier(ctx context.Context, identifier string) ([]invitation.Invitation, error)
	// AcceptInvitation transitions pending→accepted, creating the member and
	// optional team membership in the same transaction. A lapsed invitation
	// is flipped to expired and ErrInvitationExpired returned.
	AcceptInvitation(ctx context.Context, params AcceptInvitationParams) (AcceptedInvitation, error)
	// CancelInvitation transitions pending→cancelled, with the same lazy
	// expiry flip.
	CancelInvitation(ctx context.Context, invitationID string, now time.Time) (invitation.Invitation, error)
	// PrepareResend verifies the invitation is pending and unexpired,
	// flipping the stored status if the expiry lapsed. It does not extend
	// the expiry.
	PrepareResend(ctx context.Context, invitationID string, now time.Time) (invitation.Invitation, error)
}

// Store is the full directory persistence contract.
type Store interface {
	OrganizationStore
	MemberStore
	TeamStore
	InvitationStore
	Close() error
}
