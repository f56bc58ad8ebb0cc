// Package invitation provides organization invitation management.
package invitation

import (
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/tenantry/internal/directory/role"
	apperrors "github.com/louisbranch/tenantry/internal/platform/errors"
	"github.com/louisbranch/tenantry/internal/platform/id"
)

// DefaultTTL is the invitation lifetime applied when no expiry is given.
const DefaultTTL = 48 * time.Hour

// IdentifierTypeEmail is the default invitee identifier type.
const IdentifierTypeEmail = "email"

// Status represents the lifecycle status of an invitation.
type Status int

const (
	// StatusUnspecified represents an invalid invitation status.
	StatusUnspecified Status = iota
	// StatusPending indicates an invitation is open to accept.
	StatusPending
	// StatusAccepted indicates an invitation has been accepted.
	StatusAccepted
	// StatusCancelled indicates an invitation has been cancelled.
	StatusCancelled
	// StatusExpired indicates an invitation passed its expiry unaccepted.
	StatusExpired
)

var (
	// ErrEmptyOrganizationID indicates a missing organization ID.
	ErrEmptyOrganizationID = apperrors.New(apperrors.CodeNotFound, "organization id is required")
	// ErrEmptyIdentifier indicates a missing invitee identifier.
	ErrEmptyIdentifier = apperrors.New(apperrors.CodeInvitationIdentifierEmpty, "invitee identifier is required")
	// ErrInvalidRole indicates a role outside the organization hierarchy.
	ErrInvalidRole = apperrors.New(apperrors.CodeMemberInvalidRole, "invitation role is not valid")
	// ErrExpired indicates an invitation past its expiry.
	ErrExpired = apperrors.New(apperrors.CodeInvitationExpired, "invitation has expired")
)

// Invitation represents an email/identifier-based invitation into one
// organization, optionally targeting a team.
type Invitation struct {
	ID                string
	OrganizationID    string
	InviteeIdentifier string
	IdentifierType    string
	Role              string
	TeamID            string
	InviterUserID     string
	InviterName       string
	Message           string
	Status            Status
	ExpiresAt         time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// IsExpired reports whether the invitation is past its expiry at the given
// time. It is a derived predicate; the stored status flips lazily on the
// next mutating inspection.
func (inv Invitation) IsExpired(now time.Time) bool {
	return now.After(inv.ExpiresAt)
}

// IsTerminal reports whether the status permits no further transitions.
func (s Status) IsTerminal() bool {
	return s == StatusAccepted || s == StatusCancelled || s == StatusExpired
}

// CreateInvitationInput describes the metadata needed to create an invitation.
type CreateInvitationInput struct {
	OrganizationID    string
	InviteeIdentifier string
	IdentifierType    string
	Role              string
	TeamID            string
	InviterUserID     string
	InviterName       string
	Message           string
	// ExpiresAt overrides the default now+48h expiry when non-zero.
	ExpiresAt time.Time
}

// CreateInvitation creates a new pending invitation with a generated ID and
// timestamps.
func CreateInvitation(input CreateInvitationInput, now func() time.Time, idGenerator func() (string, error)) (Invitation, error) {
	if now == nil {
		now = time.Now
	}
	if idGenerator == nil {
		idGenerator = id.NewID
	}

	input.OrganizationID = strings.TrimSpace(input.OrganizationID)
	if input.OrganizationID == "" {
		return Invitation{}, ErrEmptyOrganizationID
	}
	input.InviteeIdentifier = strings.TrimSpace(input.InviteeIdentifier)
	if input.InviteeIdentifier == "" {
		return Invitation{}, ErrEmptyIdentifier
	}
	input.Role = role.Normalize(input.Role)
	if !role.IsValid(input.Role) {
		return Invitation{}, ErrInvalidRole
	}
	identifierType := strings.TrimSpace(input.IdentifierType)
	if identifierType == "" {
		identifierType = IdentifierTypeEmail
	}
	if identifierType == IdentifierTypeEmail {
		input.InviteeIdentifier = strings.ToLower(input.InviteeIdentifier)
	}

	invitationID, err := idGenerator()
	if err != nil {
		return Invitation{}, fmt.Errorf("generate invitation id: %w", err)
	}

	createdAt := now().UTC()
	expiresAt := input.ExpiresAt
	if expiresAt.IsZero() {
		expiresAt = createdAt.Add(DefaultTTL)
	}

	return Invitation{
		ID:                invitationID,
		OrganizationID:    input.OrganizationID,
		InviteeIdentifier: input.InviteeIdentifier,
		IdentifierType:    identifierType,
		Role:              input.Role,
		TeamID:            strings.TrimSpace(input.TeamID),
		InviterUserID:     strings.TrimSpace(input.InviterUserID),
		InviterName:       strings.TrimSpace(input.InviterName),
		Message:           strings.TrimSpace(input.Message),
		Status:            StatusPending,
		ExpiresAt:         expiresAt.UTC(),
		CreatedAt:         createdAt,
		UpdatedAt:         createdAt,
	}, nil
}

// NotPendingError builds the InvalidState error naming the current status.
func NotPendingError(status Status) error {
	return apperrors.WithMetadata(
		apperrors.CodeInvitationNotPending,
		fmt.Sprintf("invitation is %s", strings.ToLower(StatusLabel(status))),
		map[string]string{"Status": strings.ToLower(StatusLabel(status))},
	)
}

// StatusLabel returns the string label for an invitation status.
func StatusLabel(status Status) string {
	switch status {
	case StatusPending:
		return "PENDING"
	case StatusAccepted:
		return "ACCEPTED"
	case StatusCancelled:
		return "CANCELLED"
	case StatusExpired:
		return "EXPIRED"
	default:
		return "UNSPECIFIED"
	}
}

// StatusFromLabel converts a status label to a Status value.
func StatusFromLabel(label string) Status {
	switch strings.ToUpper(strings.TrimSpace(label)) {
	case "PENDING":
		return StatusPending
	case "ACCEPTED":
		return StatusAccepted
	case "CANCELLED":
		return StatusCancelled
	case "EXPIRED":
		return StatusExpired
	default:
		return StatusUnspecified
	}
}
