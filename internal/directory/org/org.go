// Package org provides organization metadata management.
package org

import (
	"fmt"
	"strings"
	"time"

	apperrors "github.com/louisbranch/tenantry/internal/platform/errors"
	"github.com/louisbranch/tenantry/internal/platform/id"
)

// Status describes the lifecycle of an organization.
type Status int

const (
	// StatusUnspecified represents an invalid organization status value.
	StatusUnspecified Status = iota
	// StatusActive indicates the organization is active.
	StatusActive
	// StatusSuspended indicates the organization is suspended.
	StatusSuspended
	// StatusArchived indicates the organization is archived.
	StatusArchived
)

var (
	// ErrEmptyName indicates a missing organization name.
	ErrEmptyName = apperrors.New(apperrors.CodeOrgNameEmpty, "organization name is required")
	// ErrInvalidStatus indicates a missing or invalid organization status.
	ErrInvalidStatus = apperrors.New(apperrors.CodeOrgInvalidStatus, "organization status is not valid")
)

// Settings holds per-organization signup policy knobs.
type Settings struct {
	AllowPublicSignup       bool
	RequireInvitationToJoin bool
}

// DefaultSettings returns the signup policy applied to new organizations.
func DefaultSettings() Settings {
	return Settings{
		AllowPublicSignup:       false,
		RequireInvitationToJoin: true,
	}
}

// Organization represents a tenant: an isolated namespace owning members,
// teams, and invitations.
type Organization struct {
	ID   string
	Name string
	// Slug is the globally unique URL-safe identifier.
	Slug    string
	LogoURL string
	// Metadata is an opaque blob passed through without interpretation.
	Metadata       map[string]any
	Settings       Settings
	AllowedDomains []string
	// OwnerUserID is the single current owner. The matching Member row always
	// holds the owner role.
	OwnerUserID string
	Status      Status
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// CreateOrganizationInput describes the metadata needed to create an organization.
type CreateOrganizationInput struct {
	Name           string
	LogoURL        string
	Metadata       map[string]any
	Settings       *Settings
	AllowedDomains []string
	OwnerUserID    string
}

// CreateOrganization creates a new organization with a generated ID and
// timestamps. The slug is allocated later, inside the store transaction.
func CreateOrganization(input CreateOrganizationInput, now func() time.Time, idGenerator func() (string, error)) (Organization, error) {
	if now == nil {
		now = time.Now
	}
	if idGenerator == nil {
		idGenerator = id.NewID
	}

	input.Name = strings.TrimSpace(input.Name)
	if input.Name == "" {
		return Organization{}, ErrEmptyName
	}
	input.OwnerUserID = strings.TrimSpace(input.OwnerUserID)
	if input.OwnerUserID == "" {
		return Organization{}, apperrors.New(apperrors.CodeMemberNotInOrg, "owner user id is required")
	}

	orgID, err := idGenerator()
	if err != nil {
		return Organization{}, fmt.Errorf("generate organization id: %w", err)
	}

	settings := DefaultSettings()
	if input.Settings != nil {
		settings = *input.Settings
	}

	createdAt := now().UTC()
	return Organization{
		ID:             orgID,
		Name:           input.Name,
		LogoURL:        strings.TrimSpace(input.LogoURL),
		Metadata:       input.Metadata,
		Settings:       settings,
		AllowedDomains: input.AllowedDomains,
		OwnerUserID:    input.OwnerUserID,
		Status:         StatusActive,
		CreatedAt:      createdAt,
		UpdatedAt:      createdAt,
	}, nil
}

// StatusLabel returns the string label for an organization status.
func StatusLabel(status Status) string {
	switch status {
	case StatusActive:
		return "ACTIVE"
	case StatusSuspended:
		return "SUSPENDED"
	case StatusArchived:
		return "ARCHIVED"
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
	case "ARCHIVED":
		return StatusArchived
	default:
		return StatusUnspecified
	}
}
