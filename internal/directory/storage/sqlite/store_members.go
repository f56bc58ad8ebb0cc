package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/tenantry/internal/directory/member"
	"github.com/louisbranch/tenantry/internal/directory/role"
	"github.com/louisbranch/tenantry/internal/directory/storage"
	"github.com/louisbranch/tenantry/internal/directory/team"
)

const memberColumns = `id, organization_id, user_id, role, status, suspended_at, joined_at, created_at, updated_at`

func scanMember(row rowScanner) (member.Member, error) {
	var (
		m           member.Member
		status      string
		suspendedAt sql.NullInt64
		joinedAt    sql.NullInt64
		createdAt   int64
		updatedAt   int64
	)
	if err := row.Scan(
		&m.ID,
		&m.OrganizationID,
		&m.UserID,
		&m.Role,
		&status,
		&suspendedAt,
		&joinedAt,
		&createdAt,
		&updatedAt,
	); err != nil {
		return member.Member{}, err
	}
	m.Status = member.StatusFromLabel(status)
	m.SuspendedAt = fromNullMillis(suspendedAt)
	m.JoinedAt = fromNullMillis(joinedAt)
	m.CreatedAt = fromMillis(createdAt)
	m.UpdatedAt = fromMillis(updatedAt)
	return m, nil
}

func insertMember(ctx context.Context, q dbtx, m member.Member) error {
	_, err := q.ExecContext(
		ctx,
		`INSERT INTO members (`+memberColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID,
		m.OrganizationID,
		m.UserID,
		m.Role,
		member.StatusLabel(m.Status),
		toNullMillis(m.SuspendedAt),
		toNullMillis(m.JoinedAt),
		toMillis(m.CreatedAt),
		toMillis(m.UpdatedAt),
	)
	return err
}

func getMember(ctx context.Context, q dbtx, orgID, userID string) (member.Member, error) {
	row := q.QueryRowContext(
		ctx,
		`SELECT `+memberColumns+` FROM members WHERE organization_id = ? AND user_id = ?`,
		orgID,
		userID,
	)
	m, err := scanMember(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return member.Member{}, storage.ErrNotFound
		}
		return member.Member{}, fmt.Errorf("get member: %w", err)
	}
	return m, nil
}

func listAllMembers(ctx context.Context, q dbtx, orgID string) ([]member.Member, error) {
	rows, err := q.QueryContext(
		ctx,
		`SELECT `+memberColumns+` FROM members WHERE organization_id = ? ORDER BY user_id ASC`,
		orgID,
	)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var members []member.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("list members: %w", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	return members, nil
}

// CreateMember persists one organization membership.
func (s *Store) CreateMember(ctx context.Context, m member.Member) (member.Member, error) {
	if err := ctx.Err(); err != nil {
		return member.Member{}, err
	}
	if s == nil || s.sqlDB == nil {
		return member.Member{}, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(m.ID) == "" {
		return member.Member{}, fmt.Errorf("member id is required")
	}

	if _, err := getOrganization(ctx, s.sqlDB, m.OrganizationID); err != nil {
		return member.Member{}, err
	}
	if err := insertMember(ctx, s.sqlDB, m); err != nil {
		if isUniqueViolation(err) {
			return member.Member{}, storage.ErrAlreadyExists
		}
		return member.Member{}, fmt.Errorf("insert member: %w", err)
	}
	return m, nil
}

// GetMember returns one membership by organization and user.
func (s *Store) GetMember(ctx context.Context, orgID, userID string) (member.Member, error) {
	if err := ctx.Err(); err != nil {
		return member.Member{}, err
	}
	if s == nil || s.sqlDB == nil {
		return member.Member{}, fmt.Errorf("storage is not configured")
	}
	orgID = strings.TrimSpace(orgID)
	userID = strings.TrimSpace(userID)
	if orgID == "" {
		return member.Member{}, fmt.Errorf("organization id is required")
	}
	if userID == "" {
		return member.Member{}, fmt.Errorf("user id is required")
	}
	return getMember(ctx, s.sqlDB, orgID, userID)
}

// ListMembers returns one page of memberships, optionally narrowed by an
// AIP-160 filter over user_id, role, status, and joined_at.
func (s *Store) ListMembers(ctx context.Context, orgID string, filter string, pageSize int, pageToken string) (storage.MemberPage, error) {
	if err := ctx.Err(); err != nil {
		return storage.MemberPage{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.MemberPage{}, fmt.Errorf("storage is not configured")
	}
	orgID = strings.TrimSpace(orgID)
	if orgID == "" {
		return storage.MemberPage{}, fmt.Errorf("organization id is required")
	}
	if pageSize <= 0 {
		return storage.MemberPage{}, fmt.Errorf("page size must be greater than zero")
	}

	condition, err := parseFilter(filter, memberFilterSchema())
	if err != nil {
		return storage.MemberPage{}, fmt.Errorf("member filter: %w", err)
	}

	page := storage.MemberPage{
		Members: make([]member.Member, 0, pageSize),
	}
	pageToken = strings.TrimSpace(pageToken)

	query := `SELECT ` + memberColumns + ` FROM members WHERE organization_id = ?`
	args := []any{orgID}
	if condition.Clause != "" {
		query += ` AND ` + condition.Clause
		args = append(args, condition.Params...)
	}
	if pageToken != "" {
		query += ` AND user_id > ?`
		args = append(args, pageToken)
	}
	query += ` ORDER BY user_id ASC LIMIT ?`
	args = append(args, pageSize+1)

	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return storage.MemberPage{}, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return storage.MemberPage{}, fmt.Errorf("list members: %w", err)
		}
		page.Members = append(page.Members, m)
	}
	if err := rows.Err(); err != nil {
		return storage.MemberPage{}, fmt.Errorf("list members: %w", err)
	}
	if len(page.Members) > pageSize {
		page.NextPageToken = page.Members[pageSize-1].UserID
		page.Members = page.Members[:pageSize]
	}

	return page, nil
}

// UpdateMemberRole persists a role change and reports the previous role. The
// organization owner's role can only change through TransferOwnership.
func (s *Store) UpdateMemberRole(ctx context.Context, orgID, userID, newRole string, now time.Time) (storage.RoleChange, error) {
	if err := ctx.Err(); err != nil {
		return storage.RoleChange{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.RoleChange{}, fmt.Errorf("storage is not configured")
	}
	orgID = strings.TrimSpace(orgID)
	userID = strings.TrimSpace(userID)
	newRole = role.Normalize(newRole)
	if orgID == "" {
		return storage.RoleChange{}, fmt.Errorf("organization id is required")
	}
	if userID == "" {
		return storage.RoleChange{}, fmt.Errorf("user id is required")
	}
	if !role.IsValid(newRole) {
		return storage.RoleChange{}, fmt.Errorf("invalid role %q", newRole)
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return storage.RoleChange{}, fmt.Errorf("start transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	organization, err := getOrganization(ctx, tx, orgID)
	if err != nil {
		return storage.RoleChange{}, err
	}
	if organization.OwnerUserID == userID {
		return storage.RoleChange{}, storage.ErrOwnerProtected
	}

	m, err := getMember(ctx, tx, orgID, userID)
	if err != nil {
		return storage.RoleChange{}, err
	}

	change := storage.RoleChange{OldRole: m.Role}
	if _, err := tx.ExecContext(
		ctx,
		`UPDATE members SET role = ?, updated_at = ? WHERE organization_id = ? AND user_id = ?`,
		newRole, toMillis(now), orgID, userID,
	); err != nil {
		return storage.RoleChange{}, fmt.Errorf("update member role: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return storage.RoleChange{}, fmt.Errorf("commit role change: %w", err)
	}

	m.Role = newRole
	m.UpdatedAt = now.UTC()
	change.Member = m
	return change, nil
}

// SetMemberStatus persists a suspension or reinstatement.
func (s *Store) SetMemberStatus(ctx context.Context, orgID, userID string, status member.Status, now time.Time) (member.Member, error) {
	if err := ctx.Err(); err != nil {
		return member.Member{}, err
	}
	if s == nil || s.sqlDB == nil {
		return member.Member{}, fmt.Errorf("storage is not configured")
	}
	orgID = strings.TrimSpace(orgID)
	userID = strings.TrimSpace(userID)
	if orgID == "" {
		return member.Member{}, fmt.Errorf("organization id is required")
	}
	if userID == "" {
		return member.Member{}, fmt.Errorf("user id is required")
	}

	var suspendedAt sql.NullInt64
	if status == member.StatusSuspended {
		suspendedAt = sql.NullInt64{Int64: toMillis(now), Valid: true}
	}

	result, err := s.sqlDB.ExecContext(
		ctx,
		`UPDATE members SET status = ?, suspended_at = ?, updated_at = ?
		 WHERE organization_id = ? AND user_id = ?`,
		member.StatusLabel(status),
		suspendedAt,
		toMillis(now),
		orgID,
		userID,
	)
	if err != nil {
		return member.Member{}, fmt.Errorf("set member status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return member.Member{}, fmt.Errorf("set member status: %w", err)
	}
	if affected == 0 {
		return member.Member{}, storage.ErrNotFound
	}
	return getMember(ctx, s.sqlDB, orgID, userID)
}

// RemoveMember drops the member's team memberships and the member row. The
// organization owner is protected.
func (s *Store) RemoveMember(ctx context.Context, orgID, userID string) (storage.RemovedMember, error) {
	return s.removeMember(ctx, orgID, userID, false)
}

// LeaveOrganization is member-initiated removal; the sole holder of the owner
// role is additionally rejected.
func (s *Store) LeaveOrganization(ctx context.Context, orgID, userID string) (storage.RemovedMember, error) {
	return s.removeMember(ctx, orgID, userID, true)
}

func (s *Store) removeMember(ctx context.Context, orgID, userID string, asLeave bool) (storage.RemovedMember, error) {
	if err := ctx.Err(); err != nil {
		return storage.RemovedMember{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.RemovedMember{}, fmt.Errorf("storage is not configured")
	}
	orgID = strings.TrimSpace(orgID)
	userID = strings.TrimSpace(userID)
	if orgID == "" {
		return storage.RemovedMember{}, fmt.Errorf("organization id is required")
	}
	if userID == "" {
		return storage.RemovedMember{}, fmt.Errorf("user id is required")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return storage.RemovedMember{}, fmt.Errorf("start transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	organization, err := getOrganization(ctx, tx, orgID)
	if err != nil {
		return storage.RemovedMember{}, err
	}

	m, err := getMember(ctx, tx, orgID, userID)
	if err != nil {
		return storage.RemovedMember{}, err
	}

	if organization.OwnerUserID == userID || m.Role == role.Owner {
		if asLeave {
			var owners int64
			if err := tx.QueryRowContext(
				ctx,
				`SELECT COUNT(*) FROM members WHERE organization_id = ? AND role = ?`,
				orgID, role.Owner,
			).Scan(&owners); err != nil {
				return storage.RemovedMember{}, fmt.Errorf("count owners: %w", err)
			}
			if owners <= 1 {
				return storage.RemovedMember{}, storage.ErrSoleOwner
			}
		} else {
			return storage.RemovedMember{}, storage.ErrOwnerProtected
		}
	}

	removed := storage.RemovedMember{Member: m}
	removed.TeamMemberships, err = listUserTeamMembers(ctx, tx, orgID, userID)
	if err != nil {
		return storage.RemovedMember{}, err
	}

	if _, err := tx.ExecContext(
		ctx,
		`DELETE FROM team_members
		 WHERE user_id = ? AND team_id IN (SELECT id FROM teams WHERE organization_id = ?)`,
		userID, orgID,
	); err != nil {
		return storage.RemovedMember{}, fmt.Errorf("delete team memberships: %w", err)
	}
	if _, err := tx.ExecContext(
		ctx,
		`DELETE FROM members WHERE organization_id = ? AND user_id = ?`,
		orgID, userID,
	); err != nil {
		return storage.RemovedMember{}, fmt.Errorf("delete member: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return storage.RemovedMember{}, fmt.Errorf("commit member removal: %w", err)
	}
	return removed, nil
}

func listUserTeamMembers(ctx context.Context, q dbtx, orgID, userID string) ([]team.TeamMember, error) {
	rows, err := q.QueryContext(
		ctx,
		`SELECT tm.id, tm.team_id, tm.user_id, tm.role, tm.created_at, tm.updated_at
		 FROM team_members tm
		 JOIN teams t ON t.id = tm.team_id
		 WHERE tm.user_id = ? AND t.organization_id = ?
		 ORDER BY tm.team_id ASC`,
		userID,
		orgID,
	)
	if err != nil {
		return nil, fmt.Errorf("list user team memberships: %w", err)
	}
	defer rows.Close()

	var memberships []team.TeamMember
	for rows.Next() {
		tm, err := scanTeamMember(rows)
		if err != nil {
			return nil, fmt.Errorf("list user team memberships: %w", err)
		}
		memberships = append(memberships, tm)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list user team memberships: %w", err)
	}
	return memberships, nil
}

var _ storage.MemberStore = (*Store)(nil)
