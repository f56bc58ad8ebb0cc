// Package member provides organization membership management.
package member

import (
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/tenantry/internal/directory/role"
	apperrors "github.com/louisbranch/tenantry/internal/platform/errors"
	"github.com/louisbranch/tenantry/internal/platform/id"
)

// Status represents the lifecycle status of a membership.
type Status int

const (
	// StatusUnspecified represents an invalid membership status.
	StatusUnspecified Status = iota
	// StatusActive indicates the membership is in good standing.
	StatusActive
	// StatusSuspended indicates the membership is suspended.
	StatusSuspended
)

var (
	// ErrInvalidRole indicates a role outside the owner/admin/member hierarchy.
	ErrInvalidRole = apperrors.New(apperrors.CodeMemberInvalidRole, "member role is not valid")
	// ErrEmptyOrganizationID indicates a missing organization ID.
	ErrEmptyOrganizationID = apperrors.New(apperrors.CodeNotFound, "organization id is required")
	// ErrEmptyUserID indicates a missing user ID.
	ErrEmptyUserID = apperrors.New(apperrors.CodeMemberNotInOrg, "user id is required")
)

// Member represents a user's role-bearing association with one organization.
type Member struct {
	ID             string
	OrganizationID string
	UserID         string
	// Role is hierarchy-comparable; see the role package.
	Role        string
	Status      Status
	SuspendedAt *time.Time
	JoinedAt    *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// CreateMemberInput describes the metadata needed to create a membership.
type CreateMemberInput struct {
	OrganizationID string
	UserID         string
	Role           string
}

// CreateMember creates a new active membership with a generated ID and timestamps.
func CreateMember(input CreateMemberInput, now func() time.Time, idGenerator func() (string, error)) (Member, error) {
	if now == nil {
		now = time.Now
	}
	if idGenerator == nil {
		idGenerator = id.NewID
	}

	input.OrganizationID = strings.TrimSpace(input.OrganizationID)
	if input.OrganizationID == "" {
		return Member{}, ErrEmptyOrganizationID
	}
	input.UserID = strings.TrimSpace(input.UserID)
	if input.UserID == "" {
		return Member{}, ErrEmptyUserID
	}
	input.Role = role.Normalize(input.Role)
	if !role.IsValid(input.Role) {
		return Member{}, ErrInvalidRole
	}

	memberID, err := idGenerator()
	if err != nil {
		return Member{}, fmt.Errorf("generate member id: %w", err)
	}

	createdAt := now().UTC()
	joinedAt := createdAt
	return Member{
		ID:             memberID,
		OrganizationID: input.OrganizationID,
		UserID:         input.UserID,
		Role:           input.Role,
		Status:         StatusActive,
		JoinedAt:       &joinedAt,
		CreatedAt:      createdAt,
		UpdatedAt:      createdAt,
	}, nil
}

// StatusLabel returns the string label for a membership status.
func StatusLabel(status Status) string {
	switch status {
	case StatusActive:
		return "ACTIVE"
	case StatusSuspended:
		return "SUSPENDED"
	default:
		return "UNSPECIFIED"
	}
}

// StatusFromLabel converts a status label to a Status value.
func StatusFromLabel(label string) Status {
	switch strings.ToUpper(strings.TrimSpace(label)) {
	case "ACTIVE":
		return StatusActive
	case "SUSPENDED":
		return StatusSuspended
	default:
		return StatusUnspecified
	}
}
