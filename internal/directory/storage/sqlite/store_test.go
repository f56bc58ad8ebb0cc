package sqlite

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/louisbranch/tenantry/internal/directory/invitation"
	"github.com/louisbranch/tenantry/internal/directory/member"
	"github.com/louisbranch/tenantry/internal/directory/org"
	"github.com/louisbranch/tenantry/internal/directory/role"
	"github.com/louisbranch/tenantry/internal/directory/storage"
	"github.com/louisbranch/tenantry/internal/directory/team"
)

var testBase = time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "directory.db")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

func testOrganization(id, name, ownerUserID string) org.Organization {
	return org.Organization{
		ID:          id,
		Name:        name,
		Slug:        name,
		Settings:    org.DefaultSettings(),
		OwnerUserID: ownerUserID,
		Status:      org.StatusActive,
		CreatedAt:   testBase,
		UpdatedAt:   testBase,
	}
}

func testMember(id, orgID, userID, memberRole string) member.Member {
	joined := testBase
	return member.Member{
		ID:             id,
		OrganizationID: orgID,
		UserID:         userID,
		Role:           memberRole,
		Status:         member.StatusActive,
		JoinedAt:       &joined,
		CreatedAt:      testBase,
		UpdatedAt:      testBase,
	}
}

func mustCreateOrg(t *testing.T, store *Store, id, name, ownerUserID string) org.Organization {
	t.Helper()
	created, err := store.CreateOrganization(
		context.Background(),
		testOrganization(id, name, ownerUserID),
		testMember(id+"-owner", id, ownerUserID, role.Owner),
	)
	if err != nil {
		t.Fatalf("create organization: %v", err)
	}
	return created
}

func TestCreateOrganizationAllocatesSlug(t *testing.T) {
	store := newTestStore(t)

	first := mustCreateOrg(t, store, "org-1", "Acme Corp", "user-1")
	if first.Slug != "acme-corp" {
		t.Fatalf("expected slug acme-corp, got %q", first.Slug)
	}

	second := mustCreateOrg(t, store, "org-2", "Acme Corp", "user-2")
	if second.Slug != "acme-corp-1" {
		t.Fatalf("expected slug acme-corp-1, got %q", second.Slug)
	}

	owner, err := store.GetMember(context.Background(), "org-1", "user-1")
	if err != nil {
		t.Fatalf("get owner member: %v", err)
	}
	if owner.Role != role.Owner {
		t.Fatalf("expected owner role, got %q", owner.Role)
	}

	bySlug, err := store.GetOrganizationBySlug(context.Background(), "acme-corp-1")
	if err != nil {
		t.Fatalf("get organization by slug: %v", err)
	}
	if bySlug.ID != "org-2" {
		t.Fatalf("expected org-2, got %q", bySlug.ID)
	}
}

func TestGetOrganizationNotFound(t *testing.T) {
	store := newTestStore(t)

	if _, err := store.GetOrganization(context.Background(), "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListUserOrganizationsPaginates(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		mustCreateOrg(t, store, fmt.Sprintf("org-%d", i), fmt.Sprintf("Org %d", i), "user-1")
	}

	page, err := store.ListUserOrganizations(ctx, "user-1", 2, "")
	if err != nil {
		t.Fatalf("list organizations: %v", err)
	}
	if len(page.Organizations) != 2 {
		t.Fatalf("expected 2 organizations, got %d", len(page.Organizations))
	}
	if page.NextPageToken == "" {
		t.Fatal("expected next page token")
	}

	rest, err := store.ListUserOrganizations(ctx, "user-1", 2, page.NextPageToken)
	if err != nil {
		t.Fatalf("list organizations: %v", err)
	}
	if len(rest.Organizations) != 1 {
		t.Fatalf("expected 1 organization, got %d", len(rest.Organizations))
	}
	if rest.NextPageToken != "" {
		t.Fatalf("expected empty next page token, got %q", rest.NextPageToken)
	}
}

func TestTransferOwnership(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	mustCreateOrg(t, store, "org-1", "Acme", "user-1")
	if _, err := store.CreateMember(ctx, testMember("m-2", "org-1", "user-2", role.Member)); err != nil {
		t.Fatalf("create member: %v", err)
	}

	transfer, err := store.TransferOwnership(ctx, "org-1", "user-2", testBase.Add(time.Hour))
	if err != nil {
		t.Fatalf("transfer ownership: %v", err)
	}
	if transfer.OldOwner.Role != role.Admin {
		t.Fatalf("expected demoted admin, got %q", transfer.OldOwner.Role)
	}
	if transfer.NewOwner.Role != role.Owner {
		t.Fatalf("expected promoted owner, got %q", transfer.NewOwner.Role)
	}
	if transfer.Organization.OwnerUserID != "user-2" {
		t.Fatalf("expected owner user-2, got %q", transfer.Organization.OwnerUserID)
	}

	organization, err := store.GetOrganization(ctx, "org-1")
	if err != nil {
		t.Fatalf("get organization: %v", err)
	}
	if organization.OwnerUserID != "user-2" {
		t.Fatalf("expected persisted owner user-2, got %q", organization.OwnerUserID)
	}
}

func TestTransferOwnershipToNonMember(t *testing.T) {
	store := newTestStore(t)

	mustCreateOrg(t, store, "org-1", "Acme", "user-1")
	_, err := store.TransferOwnership(context.Background(), "org-1", "stranger", testBase)
	if !errors.Is(err, storage.ErrNotOrgMember) {
		t.Fatalf("expected ErrNotOrgMember, got %v", err)
	}
}

func TestUpdateMemberRoleProtectsOwner(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	mustCreateOrg(t, store, "org-1", "Acme", "user-1")
	if _, err := store.UpdateMemberRole(ctx, "org-1", "user-1", role.Member, testBase); !errors.Is(err, storage.ErrOwnerProtected) {
		t.Fatalf("expected ErrOwnerProtected, got %v", err)
	}

	if _, err := store.CreateMember(ctx, testMember("m-2", "org-1", "user-2", role.Member)); err != nil {
		t.Fatalf("create member: %v", err)
	}
	change, err := store.UpdateMemberRole(ctx, "org-1", "user-2", role.Admin, testBase.Add(time.Minute))
	if err != nil {
		t.Fatalf("update member role: %v", err)
	}
	if change.OldRole != role.Member {
		t.Fatalf("expected old role member, got %q", change.OldRole)
	}
	if change.Member.Role != role.Admin {
		t.Fatalf("expected new role admin, got %q", change.Member.Role)
	}
}

func TestRemoveMemberClearsTeamMemberships(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	mustCreateOrg(t, store, "org-1", "Acme", "user-1")
	if _, err := store.CreateMember(ctx, testMember("m-2", "org-1", "user-2", role.Member)); err != nil {
		t.Fatalf("create member: %v", err)
	}
	mustCreateTeam(t, store, "team-1", "org-1", "Platform", "")
	if _, err := store.AddTeamMember(ctx, testTeamMember("tm-1", "team-1", "user-2")); err != nil {
		t.Fatalf("add team member: %v", err)
	}

	removed, err := store.RemoveMember(ctx, "org-1", "user-2")
	if err != nil {
		t.Fatalf("remove member: %v", err)
	}
	if len(removed.TeamMemberships) != 1 {
		t.Fatalf("expected 1 removed team membership, got %d", len(removed.TeamMemberships))
	}

	isMember, err := store.IsTeamMember(ctx, "team-1", "user-2")
	if err != nil {
		t.Fatalf("check team member: %v", err)
	}
	if isMember {
		t.Fatal("expected team membership removed")
	}
	if _, err := store.GetMember(ctx, "org-1", "user-2"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRemoveMemberProtectsOwner(t *testing.T) {
	store := newTestStore(t)

	mustCreateOrg(t, store, "org-1", "Acme", "user-1")
	if _, err := store.RemoveMember(context.Background(), "org-1", "user-1"); !errors.Is(err, storage.ErrOwnerProtected) {
		t.Fatalf("expected ErrOwnerProtected, got %v", err)
	}
}

func TestLeaveOrganizationSoleOwner(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	mustCreateOrg(t, store, "org-1", "Acme", "user-1")
	if _, err := store.LeaveOrganization(ctx, "org-1", "user-1"); !errors.Is(err, storage.ErrSoleOwner) {
		t.Fatalf("expected ErrSoleOwner, got %v", err)
	}

	if _, err := store.CreateMember(ctx, testMember("m-2", "org-1", "user-2", role.Member)); err != nil {
		t.Fatalf("create member: %v", err)
	}
	if _, err := store.LeaveOrganization(ctx, "org-1", "user-2"); err != nil {
		t.Fatalf("leave organization: %v", err)
	}
}

func TestSetMemberStatusSuspends(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	mustCreateOrg(t, store, "org-1", "Acme", "user-1")
	if _, err := store.CreateMember(ctx, testMember("m-2", "org-1", "user-2", role.Member)); err != nil {
		t.Fatalf("create member: %v", err)
	}

	suspended, err := store.SetMemberStatus(ctx, "org-1", "user-2", member.StatusSuspended, testBase.Add(time.Hour))
	if err != nil {
		t.Fatalf("suspend member: %v", err)
	}
	if suspended.Status != member.StatusSuspended {
		t.Fatalf("expected suspended status, got %v", suspended.Status)
	}
	if suspended.SuspendedAt == nil {
		t.Fatal("expected suspended_at set")
	}

	restored, err := store.SetMemberStatus(ctx, "org-1", "user-2", member.StatusActive, testBase.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("unsuspend member: %v", err)
	}
	if restored.Status != member.StatusActive {
		t.Fatalf("expected active status, got %v", restored.Status)
	}
	if restored.SuspendedAt != nil {
		t.Fatal("expected suspended_at cleared")
	}
}

func TestListMembersFilter(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	mustCreateOrg(t, store, "org-1", "Acme", "user-1")
	if _, err := store.CreateMember(ctx, testMember("m-2", "org-1", "user-2", role.Admin)); err != nil {
		t.Fatalf("create member: %v", err)
	}
	if _, err := store.CreateMember(ctx, testMember("m-3", "org-1", "user-3", role.Member)); err != nil {
		t.Fatalf("create member: %v", err)
	}

	page, err := store.ListMembers(ctx, "org-1", `role = "admin"`, 10, "")
	if err != nil {
		t.Fatalf("list members: %v", err)
	}
	if len(page.Members) != 1 {
		t.Fatalf("expected 1 admin, got %d", len(page.Members))
	}
	if page.Members[0].UserID != "user-2" {
		t.Fatalf("expected user-2, got %q", page.Members[0].UserID)
	}

	if _, err := store.ListMembers(ctx, "org-1", `bogus = "x"`, 10, ""); err == nil {
		t.Fatal("expected filter error for unknown field")
	}
}

func testTeam(id, orgID, name, parentID string) team.Team {
	return team.Team{
		ID:             id,
		OrganizationID: orgID,
		Name:           name,
		Slug:           name,
		ParentTeamID:   parentID,
		CreatedAt:      testBase,
		UpdatedAt:      testBase,
	}
}

func testTeamMember(id, teamID, userID string) team.TeamMember {
	return team.TeamMember{
		ID:        id,
		TeamID:    teamID,
		UserID:    userID,
		CreatedAt: testBase,
		UpdatedAt: testBase,
	}
}

func mustCreateTeam(t *testing.T, store *Store, id, orgID, name, parentID string) team.Team {
	t.Helper()
	created, err := store.CreateTeam(context.Background(), testTeam(id, orgID, name, parentID))
	if err != nil {
		t.Fatalf("create team: %v", err)
	}
	return created
}

func TestCreateTeamAllocatesScopedSlug(t *testing.T) {
	store := newTestStore(t)

	mustCreateOrg(t, store, "org-1", "Acme", "user-1")
	mustCreateOrg(t, store, "org-2", "Beta", "user-2")

	first := mustCreateTeam(t, store, "team-1", "org-1", "Platform", "")
	if first.Slug != "platform" {
		t.Fatalf("expected slug platform, got %q", first.Slug)
	}
	second := mustCreateTeam(t, store, "team-2", "org-1", "Platform", "")
	if second.Slug != "platform-1" {
		t.Fatalf("expected slug platform-1, got %q", second.Slug)
	}
	// Same slug is free in another organization.
	other := mustCreateTeam(t, store, "team-3", "org-2", "Platform", "")
	if other.Slug != "platform" {
		t.Fatalf("expected slug platform, got %q", other.Slug)
	}
}

func TestUpdateTeamRejectsCycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	mustCreateOrg(t, store, "org-1", "Acme", "user-1")
	parent := mustCreateTeam(t, store, "team-1", "org-1", "Parent", "")
	child := mustCreateTeam(t, store, "team-2", "org-1", "Child", parent.ID)
	grandchild := mustCreateTeam(t, store, "team-3", "org-1", "Grandchild", child.ID)

	parent.ParentTeamID = grandchild.ID
	parent.UpdatedAt = testBase.Add(time.Hour)
	if _, err := store.UpdateTeam(ctx, parent); !errors.Is(err, storage.ErrParentCycle) {
		t.Fatalf("expected ErrParentCycle, got %v", err)
	}

	parent.ParentTeamID = parent.ID
	if _, err := store.UpdateTeam(ctx, parent); !errors.Is(err, storage.ErrSelfParent) {
		t.Fatalf("expected ErrSelfParent, got %v", err)
	}
}

func TestCreateTeamRejectsCrossOrgParent(t *testing.T) {
	store := newTestStore(t)

	mustCreateOrg(t, store, "org-1", "Acme", "user-1")
	mustCreateOrg(t, store, "org-2", "Beta", "user-2")
	foreign := mustCreateTeam(t, store, "team-1", "org-2", "Platform", "")

	_, err := store.CreateTeam(context.Background(), testTeam("team-2", "org-1", "Infra", foreign.ID))
	if !errors.Is(err, storage.ErrCrossOrgParent) {
		t.Fatalf("expected ErrCrossOrgParent, got %v", err)
	}
}

func TestDeleteTeamReparentsChildren(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	mustCreateOrg(t, store, "org-1", "Acme", "user-1")
	root := mustCreateTeam(t, store, "team-1", "org-1", "Root", "")
	middle := mustCreateTeam(t, store, "team-2", "org-1", "Middle", root.ID)
	leaf := mustCreateTeam(t, store, "team-3", "org-1", "Leaf", middle.ID)
	if _, err := store.AddTeamMember(ctx, testTeamMember("tm-1", middle.ID, "user-1")); err != nil {
		t.Fatalf("add team member: %v", err)
	}

	deleted, err := store.DeleteTeam(ctx, middle.ID)
	if err != nil {
		t.Fatalf("delete team: %v", err)
	}
	if len(deleted.ReparentedChildIDs) != 1 || deleted.ReparentedChildIDs[0] != leaf.ID {
		t.Fatalf("expected reparented child %q, got %v", leaf.ID, deleted.ReparentedChildIDs)
	}
	if len(deleted.Memberships) != 1 {
		t.Fatalf("expected 1 removed membership, got %d", len(deleted.Memberships))
	}

	moved, err := store.GetTeam(ctx, leaf.ID)
	if err != nil {
		t.Fatalf("get team: %v", err)
	}
	if moved.ParentTeamID != root.ID {
		t.Fatalf("expected parent %q, got %q", root.ID, moved.ParentTeamID)
	}
}

func TestAddTeamMemberRequiresOrgMembership(t *testing.T) {
	store := newTestStore(t)

	mustCreateOrg(t, store, "org-1", "Acme", "user-1")
	mustCreateTeam(t, store, "team-1", "org-1", "Platform", "")

	_, err := store.AddTeamMember(context.Background(), testTeamMember("tm-1", "team-1", "stranger"))
	if !errors.Is(err, storage.ErrNotOrgMember) {
		t.Fatalf("expected ErrNotOrgMember, got %v", err)
	}
}

func testInvitation(id, orgID, identifier string) invitation.Invitation {
	return invitation.Invitation{
		ID:                id,
		OrganizationID:    orgID,
		InviteeIdentifier: identifier,
		IdentifierType:    invitation.IdentifierTypeEmail,
		Role:              role.Member,
		InviterUserID:     "user-1",
		Status:            invitation.StatusPending,
		ExpiresAt:         testBase.Add(invitation.DefaultTTL),
		CreatedAt:         testBase,
		UpdatedAt:         testBase,
	}
}

func TestCreateInvitationRejectsDuplicatePending(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	mustCreateOrg(t, store, "org-1", "Acme", "user-1")
	if _, err := store.CreateInvitation(ctx, testInvitation("inv-1", "org-1", "new@example.com")); err != nil {
		t.Fatalf("create invitation: %v", err)
	}
	_, err := store.CreateInvitation(ctx, testInvitation("inv-2", "org-1", "new@example.com"))
	if !errors.Is(err, storage.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestCreateInvitationExpiresStalePending(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	mustCreateOrg(t, store, "org-1", "Acme", "user-1")
	if _, err := store.CreateInvitation(ctx, testInvitation("inv-1", "org-1", "new@example.com")); err != nil {
		t.Fatalf("create invitation: %v", err)
	}

	// A lapsed pending invitation no longer blocks a fresh one.
	replacement := testInvitation("inv-2", "org-1", "new@example.com")
	replacement.CreatedAt = testBase.Add(invitation.DefaultTTL + time.Hour)
	replacement.UpdatedAt = replacement.CreatedAt
	replacement.ExpiresAt = replacement.CreatedAt.Add(invitation.DefaultTTL)
	if _, err := store.CreateInvitation(ctx, replacement); err != nil {
		t.Fatalf("create replacement invitation: %v", err)
	}

	stale, err := store.GetInvitation(ctx, "inv-1")
	if err != nil {
		t.Fatalf("get invitation: %v", err)
	}
	if stale.Status != invitation.StatusExpired {
		t.Fatalf("expected expired status, got %v", stale.Status)
	}
}

func TestAcceptInvitationCreatesMembership(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	mustCreateOrg(t, store, "org-1", "Acme", "user-1")
	mustCreateTeam(t, store, "team-1", "org-1", "Platform", "")
	inv := testInvitation("inv-1", "org-1", "new@example.com")
	inv.TeamID = "team-1"
	inv.Role = role.Admin
	if _, err := store.CreateInvitation(ctx, inv); err != nil {
		t.Fatalf("create invitation: %v", err)
	}

	accepted, err := store.AcceptInvitation(ctx, storage.AcceptInvitationParams{
		InvitationID: "inv-1",
		UserID:       "user-9",
		MemberID:     "m-9",
		TeamMemberID: "tm-9",
		Now:          testBase.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("accept invitation: %v", err)
	}
	if accepted.Invitation.Status != invitation.StatusAccepted {
		t.Fatalf("expected accepted status, got %v", accepted.Invitation.Status)
	}
	if accepted.Member.Role != role.Admin {
		t.Fatalf("expected admin role from invitation, got %q", accepted.Member.Role)
	}
	if accepted.TeamMembership == nil {
		t.Fatal("expected team membership created")
	}

	isMember, err := store.IsTeamMember(ctx, "team-1", "user-9")
	if err != nil {
		t.Fatalf("check team member: %v", err)
	}
	if !isMember {
		t.Fatal("expected team membership persisted")
	}
}

func TestAcceptInvitationLazyExpiry(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	mustCreateOrg(t, store, "org-1", "Acme", "user-1")
	if _, err := store.CreateInvitation(ctx, testInvitation("inv-1", "org-1", "new@example.com")); err != nil {
		t.Fatalf("create invitation: %v", err)
	}

	_, err := store.AcceptInvitation(ctx, storage.AcceptInvitationParams{
		InvitationID: "inv-1",
		UserID:       "user-9",
		MemberID:     "m-9",
		Now:          testBase.Add(invitation.DefaultTTL + time.Minute),
	})
	if !errors.Is(err, storage.ErrInvitationExpired) {
		t.Fatalf("expected ErrInvitationExpired, got %v", err)
	}

	// The failed acceptance persisted the expired status.
	stored, err := store.GetInvitation(ctx, "inv-1")
	if err != nil {
		t.Fatalf("get invitation: %v", err)
	}
	if stored.Status != invitation.StatusExpired {
		t.Fatalf("expected expired status, got %v", stored.Status)
	}

	// A second attempt reports the terminal state, not expiry.
	_, err = store.AcceptInvitation(ctx, storage.AcceptInvitationParams{
		InvitationID: "inv-1",
		UserID:       "user-9",
		MemberID:     "m-10",
		Now:          testBase.Add(invitation.DefaultTTL + 2*time.Minute),
	})
	var stateErr *storage.InvitationStateError
	if !errors.As(err, &stateErr) {
		t.Fatalf("expected InvitationStateError, got %v", err)
	}
	if stateErr.Status != invitation.StatusExpired {
		t.Fatalf("expected expired state, got %v", stateErr.Status)
	}
}

func TestAcceptInvitationConcurrentExpiry(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	mustCreateOrg(t, store, "org-1", "Acme", "user-1")
	if _, err := store.CreateInvitation(ctx, testInvitation("inv-1", "org-1", "new@example.com")); err != nil {
		t.Fatalf("create invitation: %v", err)
	}

	// Both accepts race on the same lapsed invitation; the status UPDATE is
	// guarded on the pending state so only one performs the flip.
	results := make(chan error, 2)
	var wg sync.WaitGroup
	wg.Add(2)
	for i := range 2 {
		go func() {
			defer wg.Done()
			_, err := store.AcceptInvitation(ctx, storage.AcceptInvitationParams{
				InvitationID: "inv-1",
				UserID:       "user-9",
				MemberID:     fmt.Sprintf("m-%d", i),
				Now:          testBase.Add(invitation.DefaultTTL + time.Minute),
			})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var expired, terminal int
	for err := range results {
		if err == nil {
			t.Fatal("expected both accepts to fail on a lapsed invitation")
		}
		var stateErr *storage.InvitationStateError
		switch {
		case errors.Is(err, storage.ErrInvitationExpired):
			expired++
		case errors.As(err, &stateErr) && stateErr.Status == invitation.StatusExpired:
			terminal++
		default:
			t.Fatalf("unexpected accept error: %v", err)
		}
	}
	if expired != 1 || terminal != 1 {
		t.Fatalf("expected one expiry flip and one terminal report, got %d and %d", expired, terminal)
	}

	stored, err := store.GetInvitation(ctx, "inv-1")
	if err != nil {
		t.Fatalf("get invitation: %v", err)
	}
	if stored.Status != invitation.StatusExpired {
		t.Fatalf("expected expired status, got %v", stored.Status)
	}
	if _, err := store.GetMember(ctx, "org-1", "user-9"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected no member row, got %v", err)
	}
}

func TestCancelInvitation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	mustCreateOrg(t, store, "org-1", "Acme", "user-1")
	if _, err := store.CreateInvitation(ctx, testInvitation("inv-1", "org-1", "new@example.com")); err != nil {
		t.Fatalf("create invitation: %v", err)
	}

	cancelled, err := store.CancelInvitation(ctx, "inv-1", testBase.Add(time.Hour))
	if err != nil {
		t.Fatalf("cancel invitation: %v", err)
	}
	if cancelled.Status != invitation.StatusCancelled {
		t.Fatalf("expected cancelled status, got %v", cancelled.Status)
	}

	_, err = store.CancelInvitation(ctx, "inv-1", testBase.Add(2*time.Hour))
	var stateErr *storage.InvitationStateError
	if !errors.As(err, &stateErr) {
		t.Fatalf("expected InvitationStateError, got %v", err)
	}
}

func TestDeleteOrganizationCascades(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	mustCreateOrg(t, store, "org-1", "Acme", "user-1")
	if _, err := store.CreateMember(ctx, testMember("m-2", "org-1", "user-2", role.Member)); err != nil {
		t.Fatalf("create member: %v", err)
	}
	mustCreateTeam(t, store, "team-1", "org-1", "Platform", "")
	if _, err := store.AddTeamMember(ctx, testTeamMember("tm-1", "team-1", "user-2")); err != nil {
		t.Fatalf("add team member: %v", err)
	}
	if _, err := store.CreateInvitation(ctx, testInvitation("inv-1", "org-1", "new@example.com")); err != nil {
		t.Fatalf("create invitation: %v", err)
	}

	deleted, err := store.DeleteOrganization(ctx, "org-1")
	if err != nil {
		t.Fatalf("delete organization: %v", err)
	}
	if len(deleted.Members) != 2 {
		t.Fatalf("expected 2 deleted members, got %d", len(deleted.Members))
	}
	if len(deleted.Teams) != 1 {
		t.Fatalf("expected 1 deleted team, got %d", len(deleted.Teams))
	}
	if len(deleted.TeamMemberships) != 1 {
		t.Fatalf("expected 1 deleted team membership, got %d", len(deleted.TeamMemberships))
	}
	if len(deleted.Invitations) != 1 {
		t.Fatalf("expected 1 deleted invitation, got %d", len(deleted.Invitations))
	}

	if _, err := store.GetOrganization(ctx, "org-1"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := store.GetTeam(ctx, "team-1"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	// The slug frees up for reuse.
	recreated := mustCreateOrg(t, store, "org-9", "Acme", "user-1")
	if recreated.Slug != "acme" {
		t.Fatalf("expected slug acme, got %q", recreated.Slug)
	}
}
