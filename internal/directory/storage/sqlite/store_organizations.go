package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/tenantry/internal/directory/member"
	"github.com/louisbranch/tenantry/internal/directory/org"
	"github.com/louisbranch/tenantry/internal/directory/role"
	"github.com/louisbranch/tenantry/internal/directory/slug"
	"github.com/louisbranch/tenantry/internal/directory/storage"
)

const organizationColumns = `id, name, slug, logo_url, metadata, allow_public_signup,
	require_invitation_to_join, allowed_domains, owner_user_id, status, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrganization(row rowScanner) (org.Organization, error) {
	var (
		organization            org.Organization
		metadata                string
		allowPublicSignup       int64
		requireInvitationToJoin int64
		allowedDomains          string
		status                  string
		createdAt               int64
		updatedAt               int64
	)
	if err := row.Scan(
		&organization.ID,
		&organization.Name,
		&organization.Slug,
		&organization.LogoURL,
		&metadata,
		&allowPublicSignup,
		&requireInvitationToJoin,
		&allowedDomains,
		&organization.OwnerUserID,
		&status,
		&createdAt,
		&updatedAt,
	); err != nil {
		return org.Organization{}, err
	}
	decoded, err := decodeMetadata(metadata)
	if err != nil {
		return org.Organization{}, err
	}
	organization.Metadata = decoded
	domains, err := decodeStrings(allowedDomains)
	if err != nil {
		return org.Organization{}, err
	}
	organization.AllowedDomains = domains
	organization.Settings = org.Settings{
		AllowPublicSignup:       allowPublicSignup != 0,
		RequireInvitationToJoin: requireInvitationToJoin != 0,
	}
	organization.Status = org.StatusFromLabel(status)
	organization.CreatedAt = fromMillis(createdAt)
	organization.UpdatedAt = fromMillis(updatedAt)
	return organization, nil
}

func boolToInt(value bool) int64 {
	if value {
		return 1
	}
	return 0
}

func insertOrganization(ctx context.Context, q dbtx, organization org.Organization) error {
	metadata, err := encodeJSON(organization.Metadata)
	if err != nil {
		return err
	}
	domains, err := encodeStrings(organization.AllowedDomains)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(
		ctx,
		`INSERT INTO organizations (`+organizationColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		organization.ID,
		organization.Name,
		organization.Slug,
		organization.LogoURL,
		metadata,
		boolToInt(organization.Settings.AllowPublicSignup),
		boolToInt(organization.Settings.RequireInvitationToJoin),
		domains,
		organization.OwnerUserID,
		org.StatusLabel(organization.Status),
		toMillis(organization.CreatedAt),
		toMillis(organization.UpdatedAt),
	)
	return err
}

// CreateOrganization persists the organization and its owner membership in one
// transaction. The stored slug is allocated from organization.Slug as the
// candidate, probing numeric suffixes on collision.
func (s *Store) CreateOrganization(ctx context.Context, organization org.Organization, owner member.Member) (org.Organization, error) {
	if err := ctx.Err(); err != nil {
		return org.Organization{}, err
	}
	if s == nil || s.sqlDB == nil {
		return org.Organization{}, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(organization.ID) == "" {
		return org.Organization{}, fmt.Errorf("organization id is required")
	}
	if owner.OrganizationID != organization.ID {
		return org.Organization{}, fmt.Errorf("owner member organization mismatch")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return org.Organization{}, fmt.Errorf("start transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	allocated, err := slug.Allocate(organization.Slug, func(candidate string) (bool, error) {
		var one int64
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM organizations WHERE slug = ?`, candidate).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		return true, nil
	})
	if err != nil {
		return org.Organization{}, fmt.Errorf("allocate slug: %w", err)
	}
	organization.Slug = allocated

	if err := insertOrganization(ctx, tx, organization); err != nil {
		if isUniqueViolation(err) {
			return org.Organization{}, storage.ErrAlreadyExists
		}
		return org.Organization{}, fmt.Errorf("insert organization: %w", err)
	}
	if err := insertMember(ctx, tx, owner); err != nil {
		if isUniqueViolation(err) {
			return org.Organization{}, storage.ErrAlreadyExists
		}
		return org.Organization{}, fmt.Errorf("insert owner member: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return org.Organization{}, fmt.Errorf("commit organization: %w", err)
	}
	return organization, nil
}

// GetOrganization returns one organization by ID.
func (s *Store) GetOrganization(ctx context.Context, orgID string) (org.Organization, error) {
	if err := ctx.Err(); err != nil {
		return org.Organization{}, err
	}
	if s == nil || s.sqlDB == nil {
		return org.Organization{}, fmt.Errorf("storage is not configured")
	}
	orgID = strings.TrimSpace(orgID)
	if orgID == "" {
		return org.Organization{}, fmt.Errorf("organization id is required")
	}
	return getOrganization(ctx, s.sqlDB, orgID)
}

func getOrganization(ctx context.Context, q dbtx, orgID string) (org.Organization, error) {
	row := q.QueryRowContext(
		ctx,
		`SELECT `+organizationColumns+` FROM organizations WHERE id = ?`,
		orgID,
	)
	organization, err := scanOrganization(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return org.Organization{}, storage.ErrNotFound
		}
		return org.Organization{}, fmt.Errorf("get organization: %w", err)
	}
	return organization, nil
}

// GetOrganizationBySlug returns one organization by its slug.
func (s *Store) GetOrganizationBySlug(ctx context.Context, slugValue string) (org.Organization, error) {
	if err := ctx.Err(); err != nil {
		return org.Organization{}, err
	}
	if s == nil || s.sqlDB == nil {
		return org.Organization{}, fmt.Errorf("storage is not configured")
	}
	slugValue = strings.TrimSpace(slugValue)
	if slugValue == "" {
		return org.Organization{}, fmt.Errorf("slug is required")
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT `+organizationColumns+` FROM organizations WHERE slug = ?`,
		slugValue,
	)
	organization, err := scanOrganization(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return org.Organization{}, storage.ErrNotFound
		}
		return org.Organization{}, fmt.Errorf("get organization by slug: %w", err)
	}
	return organization, nil
}

// ListUserOrganizations returns one page of organizations the user belongs to.
func (s *Store) ListUserOrganizations(ctx context.Context, userID string, pageSize int, pageToken string) (storage.OrganizationPage, error) {
	if err := ctx.Err(); err != nil {
		return storage.OrganizationPage{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.OrganizationPage{}, fmt.Errorf("storage is not configured")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return storage.OrganizationPage{}, fmt.Errorf("user id is required")
	}
	if pageSize <= 0 {
		return storage.OrganizationPage{}, fmt.Errorf("page size must be greater than zero")
	}

	page := storage.OrganizationPage{
		Organizations: make([]org.Organization, 0, pageSize),
	}
	pageToken = strings.TrimSpace(pageToken)

	query := `SELECT o.id, o.name, o.slug, o.logo_url, o.metadata, o.allow_public_signup,
		o.require_invitation_to_join, o.allowed_domains, o.owner_user_id, o.status, o.created_at, o.updated_at
		 FROM organizations o
		 JOIN members m ON m.organization_id = o.id
		 WHERE m.user_id = ?`
	args := []any{userID}
	if pageToken != "" {
		query += ` AND o.id > ?`
		args = append(args, pageToken)
	}
	query += ` ORDER BY o.id ASC LIMIT ?`
	args = append(args, pageSize+1)

	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return storage.OrganizationPage{}, fmt.Errorf("list user organizations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		organization, err := scanOrganization(rows)
		if err != nil {
			return storage.OrganizationPage{}, fmt.Errorf("list user organizations: %w", err)
		}
		page.Organizations = append(page.Organizations, organization)
	}
	if err := rows.Err(); err != nil {
		return storage.OrganizationPage{}, fmt.Errorf("list user organizations: %w", err)
	}
	if len(page.Organizations) > pageSize {
		page.NextPageToken = page.Organizations[pageSize-1].ID
		page.Organizations = page.Organizations[:pageSize]
	}

	return page, nil
}

// UpdateOrganization persists mutable organization fields. The slug and owner
// are immutable here; ownership moves through TransferOwnership.
func (s *Store) UpdateOrganization(ctx context.Context, organization org.Organization) (org.Organization, error) {
	if err := ctx.Err(); err != nil {
		return org.Organization{}, err
	}
	if s == nil || s.sqlDB == nil {
		return org.Organization{}, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(organization.ID) == "" {
		return org.Organization{}, fmt.Errorf("organization id is required")
	}

	metadata, err := encodeJSON(organization.Metadata)
	if err != nil {
		return org.Organization{}, err
	}
	domains, err := encodeStrings(organization.AllowedDomains)
	if err != nil {
		return org.Organization{}, err
	}

	result, err := s.sqlDB.ExecContext(
		ctx,
		`UPDATE organizations SET
		   name = ?, logo_url = ?, metadata = ?, allow_public_signup = ?,
		   require_invitation_to_join = ?, allowed_domains = ?, status = ?, updated_at = ?
		 WHERE id = ?`,
		organization.Name,
		organization.LogoURL,
		metadata,
		boolToInt(organization.Settings.AllowPublicSignup),
		boolToInt(organization.Settings.RequireInvitationToJoin),
		domains,
		org.StatusLabel(organization.Status),
		toMillis(organization.UpdatedAt),
		organization.ID,
	)
	if err != nil {
		return org.Organization{}, fmt.Errorf("update organization: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return org.Organization{}, fmt.Errorf("update organization: %w", err)
	}
	if affected == 0 {
		return org.Organization{}, storage.ErrNotFound
	}
	return s.GetOrganization(ctx, organization.ID)
}

// TransferOwnership demotes the current owner to admin, promotes the target
// member to owner, and repoints the organization, in one transaction.
func (s *Store) TransferOwnership(ctx context.Context, orgID, newOwnerUserID string, now time.Time) (storage.OwnershipTransfer, error) {
	if err := ctx.Err(); err != nil {
		return storage.OwnershipTransfer{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.OwnershipTransfer{}, fmt.Errorf("storage is not configured")
	}
	orgID = strings.TrimSpace(orgID)
	newOwnerUserID = strings.TrimSpace(newOwnerUserID)
	if orgID == "" {
		return storage.OwnershipTransfer{}, fmt.Errorf("organization id is required")
	}
	if newOwnerUserID == "" {
		return storage.OwnershipTransfer{}, fmt.Errorf("new owner user id is required")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return storage.OwnershipTransfer{}, fmt.Errorf("start transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	organization, err := getOrganization(ctx, tx, orgID)
	if err != nil {
		return storage.OwnershipTransfer{}, err
	}

	newOwner, err := getMember(ctx, tx, orgID, newOwnerUserID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return storage.OwnershipTransfer{}, storage.ErrNotOrgMember
		}
		return storage.OwnershipTransfer{}, err
	}
	oldOwner, err := getMember(ctx, tx, orgID, organization.OwnerUserID)
	if err != nil {
		return storage.OwnershipTransfer{}, err
	}

	millis := toMillis(now)
	if _, err := tx.ExecContext(
		ctx,
		`UPDATE members SET role = ?, updated_at = ? WHERE organization_id = ? AND user_id = ?`,
		role.Admin, millis, orgID, oldOwner.UserID,
	); err != nil {
		return storage.OwnershipTransfer{}, fmt.Errorf("demote owner: %w", err)
	}
	if _, err := tx.ExecContext(
		ctx,
		`UPDATE members SET role = ?, updated_at = ? WHERE organization_id = ? AND user_id = ?`,
		role.Owner, millis, orgID, newOwner.UserID,
	); err != nil {
		return storage.OwnershipTransfer{}, fmt.Errorf("promote member: %w", err)
	}
	if _, err := tx.ExecContext(
		ctx,
		`UPDATE organizations SET owner_user_id = ?, updated_at = ? WHERE id = ?`,
		newOwner.UserID, millis, orgID,
	); err != nil {
		return storage.OwnershipTransfer{}, fmt.Errorf("repoint organization owner: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return storage.OwnershipTransfer{}, fmt.Errorf("commit ownership transfer: %w", err)
	}

	previousRole := newOwner.Role
	oldOwner.Role = role.Admin
	oldOwner.UpdatedAt = fromMillis(millis)
	newOwner.Role = role.Owner
	newOwner.UpdatedAt = fromMillis(millis)
	organization.OwnerUserID = newOwner.UserID
	organization.UpdatedAt = fromMillis(millis)

	return storage.OwnershipTransfer{
		Organization:         organization,
		OldOwner:             oldOwner,
		NewOwner:             newOwner,
		NewOwnerPreviousRole: previousRole,
	}, nil
}

// DeleteOrganization removes team memberships, teams, invitations, members,
// then the organization, in one transaction, and reports the deleted records.
func (s *Store) DeleteOrganization(ctx context.Context, orgID string) (storage.DeletedOrganization, error) {
	if err := ctx.Err(); err != nil {
		return storage.DeletedOrganization{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.DeletedOrganization{}, fmt.Errorf("storage is not configured")
	}
	orgID = strings.TrimSpace(orgID)
	if orgID == "" {
		return storage.DeletedOrganization{}, fmt.Errorf("organization id is required")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return storage.DeletedOrganization{}, fmt.Errorf("start transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	organization, err := getOrganization(ctx, tx, orgID)
	if err != nil {
		return storage.DeletedOrganization{}, err
	}

	deleted := storage.DeletedOrganization{Organization: organization}

	deleted.TeamMemberships, err = listOrgTeamMembers(ctx, tx, orgID)
	if err != nil {
		return storage.DeletedOrganization{}, err
	}
	deleted.Teams, err = listAllTeams(ctx, tx, orgID)
	if err != nil {
		return storage.DeletedOrganization{}, err
	}
	deleted.Members, err = listAllMembers(ctx, tx, orgID)
	if err != nil {
		return storage.DeletedOrganization{}, err
	}
	deleted.Invitations, err = listAllInvitations(ctx, tx, orgID)
	if err != nil {
		return storage.DeletedOrganization{}, err
	}

	steps := []struct {
		name  string
		query string
	}{
		{"delete team members", `DELETE FROM team_members WHERE team_id IN (SELECT id FROM teams WHERE organization_id = ?)`},
		{"delete teams", `DELETE FROM teams WHERE organization_id = ?`},
		{"delete invitations", `DELETE FROM invitations WHERE organization_id = ?`},
		{"delete members", `DELETE FROM members WHERE organization_id = ?`},
		{"delete organization", `DELETE FROM organizations WHERE id = ?`},
	}
	for _, step := range steps {
		if _, err := tx.ExecContext(ctx, step.query, orgID); err != nil {
			return storage.DeletedOrganization{}, fmt.Errorf("%s: %w", step.name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return storage.DeletedOrganization{}, fmt.Errorf("commit organization delete: %w", err)
	}
	return deleted, nil
}

var _ storage.OrganizationStore = (*Store)(nil)
