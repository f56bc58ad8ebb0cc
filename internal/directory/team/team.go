// Package team provides hierarchical team management within an organization.
package team

import (
	"fmt"
	"strings"
	"time"

	apperrors "github.com/louisbranch/tenantry/internal/platform/errors"
	"github.com/louisbranch/tenantry/internal/platform/id"
)

var (
	// ErrEmptyName indicates a missing team name.
	ErrEmptyName = apperrors.New(apperrors.CodeTeamNameEmpty, "team name is required")
	// ErrEmptyOrganizationID indicates a missing organization ID.
	ErrEmptyOrganizationID = apperrors.New(apperrors.CodeNotFound, "organization id is required")
	// ErrSelfParent indicates a team referencing itself as parent.
	ErrSelfParent = apperrors.New(apperrors.CodeTeamSelfParent, "team cannot be its own parent")
	// ErrParentCycle indicates a parent change that would close a loop.
	ErrParentCycle = apperrors.New(apperrors.CodeTeamParentCycle, "team parent would create a cycle")
)

// Team represents a named sub-grouping within an organization, optionally
// nested under a parent team in the same organization.
type Team struct {
	ID             string
	OrganizationID string
	Name           string
	// Slug is unique within the organization.
	Slug         string
	ParentTeamID string
	Description  string
	Metadata     map[string]any
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TeamMember represents a user's association with one team. The user must
// hold an organization membership when the row is created.
type TeamMember struct {
	ID     string
	TeamID string
	UserID string
	// Role is free-form and not part of the organization role hierarchy.
	Role      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CreateTeamInput describes the metadata needed to create a team.
type CreateTeamInput struct {
	OrganizationID string
	Name           string
	ParentTeamID   string
	Description    string
	Metadata       map[string]any
}

// CreateTeam creates a new team with a generated ID and timestamps.
// The slug is allocated later, inside the store transaction, and the parent
// is validated there against the cycle and same-organization invariants.
func CreateTeam(input CreateTeamInput, now func() time.Time, idGenerator func() (string, error)) (Team, error) {
	if now == nil {
		now = time.Now
	}
	if idGenerator == nil {
		idGenerator = id.NewID
	}

	input.OrganizationID = strings.TrimSpace(input.OrganizationID)
	if input.OrganizationID == "" {
		return Team{}, ErrEmptyOrganizationID
	}
	input.Name = strings.TrimSpace(input.Name)
	if input.Name == "" {
		return Team{}, ErrEmptyName
	}

	teamID, err := idGenerator()
	if err != nil {
		return Team{}, fmt.Errorf("generate team id: %w", err)
	}

	createdAt := now().UTC()
	return Team{
		ID:             teamID,
		OrganizationID: input.OrganizationID,
		Name:           input.Name,
		ParentTeamID:   strings.TrimSpace(input.ParentTeamID),
		Description:    strings.TrimSpace(input.Description),
		Metadata:       input.Metadata,
		CreatedAt:      createdAt,
		UpdatedAt:      createdAt,
	}, nil
}

// CreateTeamMemberInput describes the metadata needed to add a team member.
type CreateTeamMemberInput struct {
	TeamID string
	UserID string
	Role   string
}

// CreateTeamMember creates a new team membership with a generated ID and timestamps.
func CreateTeamMember(input CreateTeamMemberInput, now func() time.Time, idGenerator func() (string, error)) (TeamMember, error) {
	if now == nil {
		now = time.Now
	}
	if idGenerator == nil {
		idGenerator = id.NewID
	}

	input.TeamID = strings.TrimSpace(input.TeamID)
	if input.TeamID == "" {
		return TeamMember{}, apperrors.New(apperrors.CodeNotFound, "team id is required")
	}
	input.UserID = strings.TrimSpace(input.UserID)
	if input.UserID == "" {
		return TeamMember{}, apperrors.New(apperrors.CodeMemberNotInOrg, "user id is required")
	}

	teamMemberID, err := idGenerator()
	if err != nil {
		return TeamMember{}, fmt.Errorf("generate team member id: %w", err)
	}

	createdAt := now().UTC()
	return TeamMember{
		ID:        teamMemberID,
		TeamID:    input.TeamID,
		UserID:    input.UserID,
		Role:      strings.TrimSpace(input.Role),
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}, nil
}

// ParentLookup resolves a team's parent ID. It returns "" when the team has
// no parent.
type ParentLookup func(teamID string) (string, error)

// ValidateParentChange walks the proposed parent's ancestor chain and rejects
// self-parenting and cycles. maxDepth bounds the walk; the organization team
// count is a safe bound since a valid chain can never be longer.
//
// The caller must run this inside the same transaction as the parent write so
// two concurrent re-parents cannot jointly introduce a cycle.
func ValidateParentChange(teamID, newParentID string, maxDepth int, lookup ParentLookup) error {
	teamID = strings.TrimSpace(teamID)
	newParentID = strings.TrimSpace(newParentID)
	if newParentID == "" {
		return nil
	}
	if teamID == newParentID {
		return ErrSelfParent
	}
	if lookup == nil {
		return fmt.Errorf("parent lookup is required")
	}

	current := newParentID
	for depth := 0; depth <= maxDepth; depth++ {
		parent, err := lookup(current)
		if err != nil {
			return fmt.Errorf("resolve parent of %s: %w", current, err)
		}
		if parent == "" {
			return nil
		}
		if parent == teamID {
			return ErrParentCycle
		}
		current = parent
	}
	// Walk exceeded the organization team count: the chain already loops.
	return ErrParentCycle
}
