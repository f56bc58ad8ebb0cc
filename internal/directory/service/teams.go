package service

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/louisbranch/tenantry/internal/directory/member"
	"github.com/louisbranch/tenantry/internal/directory/role"
	"github.com/louisbranch/tenantry/internal/directory/storage"
	"github.com/louisbranch/tenantry/internal/directory/team"
	apperrors "github.com/louisbranch/tenantry/internal/platform/errors"
)

// CreateTeamRequest creates a team, optionally nested under a parent.
type CreateTeamRequest struct {
	ActorUserID    string
	OrganizationID string
	Name           string
	// Slug is the slug candidate; the name is used when empty. The store
	// allocates the final value, unique within the organization.
	Slug         string
	ParentTeamID string
	Description  string
	Metadata     map[string]any
}

// CreateTeam creates a team. The team name seeds the slug; the store
// allocates a unique value within the organization. Requires the admin role.
func (s *Service) CreateTeam(ctx context.Context, req CreateTeamRequest) (created team.Team, err error) {
	ctx, span := s.startSpan(ctx, "directory.CreateTeam")
	defer func() { finishSpan(span, err) }()

	if _, err := s.requireRole(ctx, req.OrganizationID, req.ActorUserID, role.Admin); err != nil {
		return team.Team{}, err
	}

	t, err := team.CreateTeam(team.CreateTeamInput{
		OrganizationID: req.OrganizationID,
		Name:           req.Name,
		ParentTeamID:   req.ParentTeamID,
		Description:    req.Description,
		Metadata:       req.Metadata,
	}, s.clock, s.idGenerator)
	if err != nil {
		return team.Team{}, err
	}
	t.Slug = strings.TrimSpace(req.Slug)
	if t.Slug == "" {
		t.Slug = t.Name
	}

	created, err = s.store.CreateTeam(ctx, t)
	if err != nil {
		return team.Team{}, teamWriteError(err)
	}
	return created, nil
}

func teamWriteError(err error) error {
	switch {
	case errors.Is(err, storage.ErrSelfParent):
		return apperrors.New(apperrors.CodeTeamSelfParent, "a team cannot be its own parent")
	case errors.Is(err, storage.ErrParentCycle):
		return apperrors.New(apperrors.CodeTeamParentCycle, "team parent would create a cycle")
	case errors.Is(err, storage.ErrCrossOrgParent):
		return apperrors.New(apperrors.CodeTeamParentCrossOrg, "parent team belongs to another organization")
	}
	return notFound(err, "team not found")
}

// GetTeam returns one team.
func (s *Service) GetTeam(ctx context.Context, teamID string) (team.Team, error) {
	t, err := s.store.GetTeam(ctx, teamID)
	if err != nil {
		return team.Team{}, notFound(err, "team not found")
	}
	return t, nil
}

// ListTeamsRequest selects one page of teams.
type ListTeamsRequest struct {
	OrganizationID string
	// ParentTeamID narrows the listing: nil lists every team, a pointer to
	// the empty string lists root teams, any other value lists the direct
	// children of that team.
	ParentTeamID *string
	// Filter is an AIP-160 expression over name, slug, parent_team_id.
	Filter    string
	PageSize  int
	PageToken string
}

// ListTeams returns one page of teams.
func (s *Service) ListTeams(ctx context.Context, req ListTeamsRequest) (storage.TeamPage, error) {
	return s.store.ListTeams(ctx, req.OrganizationID, req.ParentTeamID, req.Filter,
		clampPageSize(req.PageSize), req.PageToken)
}

// TeamNode is one team with its children, as returned by ListTeamsAsTree.
type TeamNode struct {
	Team     team.Team
	Children []*TeamNode
}

// ListTeamsAsTree returns every team of the organization arranged by parent.
// Siblings are ordered by slug.
func (s *Service) ListTeamsAsTree(ctx context.Context, orgID string) ([]*TeamNode, error) {
	teams, err := s.store.ListAllTeams(ctx, orgID)
	if err != nil {
		return nil, err
	}

	nodes := make(map[string]*TeamNode, len(teams))
	for _, t := range teams {
		nodes[t.ID] = &TeamNode{Team: t}
	}

	var roots []*TeamNode
	for _, t := range teams {
		node := nodes[t.ID]
		if parent, ok := nodes[t.ParentTeamID]; ok {
			parent.Children = append(parent.Children, node)
			continue
		}
		roots = append(roots, node)
	}

	var sortNodes func(ns []*TeamNode)
	sortNodes = func(ns []*TeamNode) {
		sort.Slice(ns, func(i, j int) bool { return ns[i].Team.Slug < ns[j].Team.Slug })
		for _, n := range ns {
			sortNodes(n.Children)
		}
	}
	sortNodes(roots)
	return roots, nil
}

// UpdateTeamRequest patches a team. Nil fields are left unchanged.
type UpdateTeamRequest struct {
	ActorUserID  string
	TeamID       string
	Name         *string
	ParentTeamID *string
	Description  *string
	Metadata     map[string]any
}

// UpdateTeam patches the team. Renaming re-allocates the slug; re-parenting
// is validated against self-parenting and cycles. Requires the admin role.
func (s *Service) UpdateTeam(ctx context.Context, req UpdateTeamRequest) (updated team.Team, err error) {
	ctx, span := s.startSpan(ctx, "directory.UpdateTeam")
	defer func() { finishSpan(span, err) }()

	existing, err := s.store.GetTeam(ctx, req.TeamID)
	if err != nil {
		return team.Team{}, notFound(err, "team not found")
	}
	if _, err := s.requireRole(ctx, existing.OrganizationID, req.ActorUserID, role.Admin); err != nil {
		return team.Team{}, err
	}

	if req.Name != nil {
		if *req.Name == "" {
			return team.Team{}, team.ErrEmptyName
		}
		existing.Name = *req.Name
		existing.Slug = *req.Name
	}
	if req.ParentTeamID != nil {
		existing.ParentTeamID = *req.ParentTeamID
	}
	if req.Description != nil {
		existing.Description = *req.Description
	}
	if req.Metadata != nil {
		existing.Metadata = req.Metadata
	}
	existing.UpdatedAt = s.now()

	updated, err = s.store.UpdateTeam(ctx, existing)
	if err != nil {
		return team.Team{}, teamWriteError(err)
	}
	return updated, nil
}

// DeleteTeamRequest deletes a team.
type DeleteTeamRequest struct {
	ActorUserID string
	TeamID      string
}

// DeleteTeam removes the team, re-parents its children onto the deleted
// team's parent, and revokes the members' team relations. Requires the admin
// role.
func (s *Service) DeleteTeam(ctx context.Context, req DeleteTeamRequest) (err error) {
	ctx, span := s.startSpan(ctx, "directory.DeleteTeam")
	defer func() { finishSpan(span, err) }()

	existing, err := s.store.GetTeam(ctx, req.TeamID)
	if err != nil {
		return notFound(err, "team not found")
	}
	if _, err := s.requireRole(ctx, existing.OrganizationID, req.ActorUserID, role.Admin); err != nil {
		return err
	}

	deleted, err := s.store.DeleteTeam(ctx, req.TeamID)
	if err != nil {
		return notFound(err, "team not found")
	}

	userIDs := make([]string, 0, len(deleted.Memberships))
	for _, tm := range deleted.Memberships {
		userIDs = append(userIDs, tm.UserID)
	}
	return s.syncer.TeamDeleted(ctx, req.TeamID, userIDs)
}

// AddTeamMemberRequest adds an organization member to a team.
type AddTeamMemberRequest struct {
	ActorUserID string
	TeamID      string
	UserID      string
	Role        string
}

// AddTeamMember adds the user to the team and records the team relation. The
// user must already belong to the team's organization. Requires the admin
// role.
func (s *Service) AddTeamMember(ctx context.Context, req AddTeamMemberRequest) (added team.TeamMember, err error) {
	ctx, span := s.startSpan(ctx, "directory.AddTeamMember")
	defer func() { finishSpan(span, err) }()

	existing, err := s.store.GetTeam(ctx, req.TeamID)
	if err != nil {
		return team.TeamMember{}, notFound(err, "team not found")
	}
	if _, err := s.requireRole(ctx, existing.OrganizationID, req.ActorUserID, role.Admin); err != nil {
		return team.TeamMember{}, err
	}

	tm, err := team.CreateTeamMember(team.CreateTeamMemberInput{
		TeamID: req.TeamID,
		UserID: req.UserID,
		Role:   req.Role,
	}, s.clock, s.idGenerator)
	if err != nil {
		return team.TeamMember{}, err
	}

	added, err = s.store.AddTeamMember(ctx, tm)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrNotOrgMember):
			return team.TeamMember{}, apperrors.New(apperrors.CodeMemberNotInOrg,
				"user is not a member of the team's organization")
		case errors.Is(err, storage.ErrAlreadyExists):
			return team.TeamMember{}, apperrors.New(apperrors.CodeTeamMemberAlreadyExists,
				"user is already a member of this team")
		}
		return team.TeamMember{}, notFound(err, "team not found")
	}

	if err := s.syncer.TeamMemberAdded(ctx, req.TeamID, req.UserID); err != nil {
		return added, err
	}
	return added, nil
}

// RemoveTeamMemberRequest removes a user from a team.
type RemoveTeamMemberRequest struct {
	ActorUserID string
	TeamID      string
	UserID      string
}

// RemoveTeamMember removes the user from the team and revokes the team
// relation. The organization membership is untouched. Requires the admin
// role.
func (s *Service) RemoveTeamMember(ctx context.Context, req RemoveTeamMemberRequest) (err error) {
	ctx, span := s.startSpan(ctx, "directory.RemoveTeamMember")
	defer func() { finishSpan(span, err) }()

	existing, err := s.store.GetTeam(ctx, req.TeamID)
	if err != nil {
		return notFound(err, "team not found")
	}
	if _, err := s.requireRole(ctx, existing.OrganizationID, req.ActorUserID, role.Admin); err != nil {
		return err
	}

	if _, err := s.store.RemoveTeamMember(ctx, req.TeamID, req.UserID); err != nil {
		return notFound(err, "team member not found")
	}
	return s.syncer.TeamMemberRemoved(ctx, req.TeamID, req.UserID)
}

// UpdateTeamMemberRoleRequest changes a user's role within a team.
type UpdateTeamMemberRoleRequest struct {
	ActorUserID string
	TeamID      string
	UserID      string
	NewRole     string
}

// UpdateTeamMemberRole changes the team-scoped role. Team roles do not carry
// authorization grants, so no sync is needed. Requires the admin role.
func (s *Service) UpdateTeamMemberRole(ctx context.Context, req UpdateTeamMemberRoleRequest) (updated team.TeamMember, err error) {
	ctx, span := s.startSpan(ctx, "directory.UpdateTeamMemberRole")
	defer func() { finishSpan(span, err) }()

	existing, err := s.store.GetTeam(ctx, req.TeamID)
	if err != nil {
		return team.TeamMember{}, notFound(err, "team not found")
	}
	if _, err := s.requireRole(ctx, existing.OrganizationID, req.ActorUserID, role.Admin); err != nil {
		return team.TeamMember{}, err
	}

	newRole := role.Normalize(req.NewRole)
	if newRole == role.Owner {
		return team.TeamMember{}, member.ErrInvalidRole
	}

	updated, err = s.store.UpdateTeamMemberRole(ctx, req.TeamID, req.UserID, newRole, s.now())
	if err != nil {
		return team.TeamMember{}, notFound(err, "team member not found")
	}
	return updated, nil
}

// IsTeamMember reports whether the user belongs to the team.
func (s *Service) IsTeamMember(ctx context.Context, teamID, userID string) (bool, error) {
	return s.store.IsTeamMember(ctx, teamID, userID)
}

// ListTeamMembers returns every membership of the team.
func (s *Service) ListTeamMembers(ctx context.Context, teamID string) ([]team.TeamMember, error) {
	members, err := s.store.ListTeamMembers(ctx, teamID)
	if err != nil {
		return nil, notFound(err, "team not found")
	}
	return members, nil
}
