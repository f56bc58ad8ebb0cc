package service

import (
	"context"
	"errors"
	"strings"

	"github.com/louisbranch/tenantry/internal/authz"
	"github.com/louisbranch/tenantry/internal/directory/member"
	"github.com/louisbranch/tenantry/internal/directory/org"
	"github.com/louisbranch/tenantry/internal/directory/role"
	"github.com/louisbranch/tenantry/internal/directory/storage"
	apperrors "github.com/louisbranch/tenantry/internal/platform/errors"
)

// CreateOrganizationRequest describes a new organization. The actor becomes
// the owner.
type CreateOrganizationRequest struct {
	ActorUserID string
	Name        string
	// Slug is the slug candidate; the name is used when empty. The store
	// allocates the final unique value.
	Slug           string
	LogoURL        string
	Metadata       map[string]any
	Settings       *org.Settings
	AllowedDomains []string
}

// CreateOrganization creates the organization and its owner membership, then
// grants the owner role in the authorization subsystem.
func (s *Service) CreateOrganization(ctx context.Context, req CreateOrganizationRequest) (created org.Organization, err error) {
	ctx, span := s.startSpan(ctx, "directory.CreateOrganization")
	defer func() { finishSpan(span, err) }()

	organization, err := org.CreateOrganization(org.CreateOrganizationInput{
		Name:           req.Name,
		LogoURL:        req.LogoURL,
		Metadata:       req.Metadata,
		Settings:       req.Settings,
		AllowedDomains: req.AllowedDomains,
		OwnerUserID:    req.ActorUserID,
	}, s.clock, s.idGenerator)
	if err != nil {
		return org.Organization{}, err
	}
	organization.Slug = strings.TrimSpace(req.Slug)
	if organization.Slug == "" {
		organization.Slug = organization.Name
	}

	owner, err := member.CreateMember(member.CreateMemberInput{
		OrganizationID: organization.ID,
		UserID:         organization.OwnerUserID,
		Role:           role.Owner,
	}, s.clock, s.idGenerator)
	if err != nil {
		return org.Organization{}, err
	}

	created, err = s.store.CreateOrganization(ctx, organization, owner)
	if err != nil {
		return org.Organization{}, err
	}

	if err := s.syncer.MemberAdded(ctx, created.ID, owner.UserID, owner.Role); err != nil {
		return created, err
	}
	return created, nil
}

// GetOrganization returns one organization by ID.
func (s *Service) GetOrganization(ctx context.Context, orgID string) (org.Organization, error) {
	organization, err := s.store.GetOrganization(ctx, orgID)
	if err != nil {
		return org.Organization{}, notFound(err, "organization not found")
	}
	return organization, nil
}

// GetOrganizationBySlug returns one organization by its slug.
func (s *Service) GetOrganizationBySlug(ctx context.Context, slug string) (org.Organization, error) {
	organization, err := s.store.GetOrganizationBySlug(ctx, slug)
	if err != nil {
		return org.Organization{}, notFound(err, "organization not found")
	}
	return organization, nil
}

// ListUserOrganizationsRequest selects one page of a user's organizations.
type ListUserOrganizationsRequest struct {
	UserID    string
	PageSize  int
	PageToken string
}

// ListUserOrganizations returns one page of organizations the user belongs to.
func (s *Service) ListUserOrganizations(ctx context.Context, req ListUserOrganizationsRequest) (storage.OrganizationPage, error) {
	return s.store.ListUserOrganizations(ctx, req.UserID, clampPageSize(req.PageSize), req.PageToken)
}

// UpdateOrganizationRequest patches mutable organization fields. Nil fields
// are left unchanged.
type UpdateOrganizationRequest struct {
	ActorUserID    string
	OrganizationID string
	Name           *string
	LogoURL        *string
	Metadata       map[string]any
	Settings       *org.Settings
	AllowedDomains *[]string
	Status         *string
}

// UpdateOrganization applies the patch. Requires the admin role.
func (s *Service) UpdateOrganization(ctx context.Context, req UpdateOrganizationRequest) (updated org.Organization, err error) {
	ctx, span := s.startSpan(ctx, "directory.UpdateOrganization")
	defer func() { finishSpan(span, err) }()

	if _, err := s.requireRole(ctx, req.OrganizationID, req.ActorUserID, role.Admin); err != nil {
		return org.Organization{}, err
	}

	organization, err := s.store.GetOrganization(ctx, req.OrganizationID)
	if err != nil {
		return org.Organization{}, notFound(err, "organization not found")
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return org.Organization{}, org.ErrEmptyName
		}
		organization.Name = name
	}
	if req.LogoURL != nil {
		organization.LogoURL = strings.TrimSpace(*req.LogoURL)
	}
	if req.Metadata != nil {
		organization.Metadata = req.Metadata
	}
	if req.Settings != nil {
		organization.Settings = *req.Settings
	}
	if req.AllowedDomains != nil {
		organization.AllowedDomains = *req.AllowedDomains
	}
	if req.Status != nil {
		status := org.StatusFromLabel(*req.Status)
		if status == org.StatusUnspecified {
			return org.Organization{}, org.ErrInvalidStatus
		}
		organization.Status = status
	}
	organization.UpdatedAt = s.now()

	updated, err = s.store.UpdateOrganization(ctx, organization)
	if err != nil {
		return org.Organization{}, notFound(err, "organization not found")
	}
	return updated, nil
}

// TransferOwnershipRequest moves ownership to another member.
type TransferOwnershipRequest struct {
	ActorUserID    string
	OrganizationID string
	NewOwnerUserID string
}

// TransferOwnership atomically demotes the current owner to admin and
// promotes the target member to owner. Owner-only.
func (s *Service) TransferOwnership(ctx context.Context, req TransferOwnershipRequest) (transfer storage.OwnershipTransfer, err error) {
	ctx, span := s.startSpan(ctx, "directory.TransferOwnership")
	defer func() { finishSpan(span, err) }()

	actor, err := s.requireRole(ctx, req.OrganizationID, req.ActorUserID, role.Owner)
	if err != nil {
		if apperrors.IsCode(err, apperrors.CodeMemberRoleInsufficient) {
			return storage.OwnershipTransfer{}, apperrors.New(apperrors.CodeOrgOwnerOnly,
				"only the organization owner can transfer ownership")
		}
		return storage.OwnershipTransfer{}, err
	}
	newOwnerUserID := strings.TrimSpace(req.NewOwnerUserID)
	if newOwnerUserID == actor.UserID {
		return storage.OwnershipTransfer{}, apperrors.New(apperrors.CodeOrgTransferToSelf,
			"cannot transfer ownership to the current owner")
	}

	transfer, err = s.store.TransferOwnership(ctx, req.OrganizationID, newOwnerUserID, s.now())
	if err != nil {
		if errors.Is(err, storage.ErrNotOrgMember) {
			return storage.OwnershipTransfer{}, apperrors.New(apperrors.CodeOrgTransferMissing,
				"new owner is not a member of this organization")
		}
		return storage.OwnershipTransfer{}, notFound(err, "organization not found")
	}

	if err := s.syncer.OwnershipTransferred(ctx, req.OrganizationID,
		transfer.OldOwner.UserID, transfer.NewOwner.UserID, transfer.NewOwnerPreviousRole); err != nil {
		return transfer, err
	}
	return transfer, nil
}

// DeleteOrganizationRequest removes an organization and everything it owns.
type DeleteOrganizationRequest struct {
	ActorUserID    string
	OrganizationID string
}

// DeleteOrganization cascades the delete through team memberships, teams,
// invitations, and members, then revokes every authorization fact the
// organization held. Owner-only.
func (s *Service) DeleteOrganization(ctx context.Context, req DeleteOrganizationRequest) (deleted storage.DeletedOrganization, err error) {
	ctx, span := s.startSpan(ctx, "directory.DeleteOrganization")
	defer func() { finishSpan(span, err) }()

	if _, err := s.requireRole(ctx, req.OrganizationID, req.ActorUserID, role.Owner); err != nil {
		if apperrors.IsCode(err, apperrors.CodeMemberRoleInsufficient) {
			return storage.DeletedOrganization{}, apperrors.New(apperrors.CodeOrgOwnerOnly,
				"only the organization owner can delete the organization")
		}
		return storage.DeletedOrganization{}, err
	}

	deleted, err = s.store.DeleteOrganization(ctx, req.OrganizationID)
	if err != nil {
		return storage.DeletedOrganization{}, notFound(err, "organization not found")
	}

	relations := make([]authz.TeamRelation, 0, len(deleted.TeamMemberships))
	for _, tm := range deleted.TeamMemberships {
		relations = append(relations, authz.TeamRelation{TeamID: tm.TeamID, UserID: tm.UserID})
	}
	grants := make([]authz.RoleGrant, 0, len(deleted.Members))
	for _, m := range deleted.Members {
		grants = append(grants, authz.RoleGrant{UserID: m.UserID, Role: m.Role})
	}
	if err := s.syncer.OrganizationDeleted(ctx, req.OrganizationID, relations, grants); err != nil {
		return deleted, err
	}
	return deleted, nil
}
