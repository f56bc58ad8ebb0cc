package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/tenantry/internal/directory/slug"
	"github.com/louisbranch/tenantry/internal/directory/storage"
	"github.com/louisbranch/tenantry/internal/directory/team"
)

const teamColumns = `id, organization_id, name, slug, description, metadata, parent_team_id, created_at, updated_at`

const teamMemberColumns = `id, team_id, user_id, role, created_at, updated_at`

func scanTeam(row rowScanner) (team.Team, error) {
	var (
		t         team.Team
		metadata  string
		createdAt int64
		updatedAt int64
	)
	if err := row.Scan(
		&t.ID,
		&t.OrganizationID,
		&t.Name,
		&t.Slug,
		&t.Description,
		&metadata,
		&t.ParentTeamID,
		&createdAt,
		&updatedAt,
	); err != nil {
		return team.Team{}, err
	}
	decoded, err := decodeMetadata(metadata)
	if err != nil {
		return team.Team{}, err
	}
	t.Metadata = decoded
	t.CreatedAt = fromMillis(createdAt)
	t.UpdatedAt = fromMillis(updatedAt)
	return t, nil
}

func scanTeamMember(row rowScanner) (team.TeamMember, error) {
	var (
		tm        team.TeamMember
		createdAt int64
		updatedAt int64
	)
	if err := row.Scan(
		&tm.ID,
		&tm.TeamID,
		&tm.UserID,
		&tm.Role,
		&createdAt,
		&updatedAt,
	); err != nil {
		return team.TeamMember{}, err
	}
	tm.CreatedAt = fromMillis(createdAt)
	tm.UpdatedAt = fromMillis(updatedAt)
	return tm, nil
}

func getTeam(ctx context.Context, q dbtx, teamID string) (team.Team, error) {
	row := q.QueryRowContext(
		ctx,
		`SELECT `+teamColumns+` FROM teams WHERE id = ?`,
		teamID,
	)
	t, err := scanTeam(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return team.Team{}, storage.ErrNotFound
		}
		return team.Team{}, fmt.Errorf("get team: %w", err)
	}
	return t, nil
}

func listAllTeams(ctx context.Context, q dbtx, orgID string) ([]team.Team, error) {
	rows, err := q.QueryContext(
		ctx,
		`SELECT `+teamColumns+` FROM teams WHERE organization_id = ? ORDER BY slug ASC`,
		orgID,
	)
	if err != nil {
		return nil, fmt.Errorf("list teams: %w", err)
	}
	defer rows.Close()

	var teams []team.Team
	for rows.Next() {
		t, err := scanTeam(rows)
		if err != nil {
			return nil, fmt.Errorf("list teams: %w", err)
		}
		teams = append(teams, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list teams: %w", err)
	}
	return teams, nil
}

func listOrgTeamMembers(ctx context.Context, q dbtx, orgID string) ([]team.TeamMember, error) {
	rows, err := q.QueryContext(
		ctx,
		`SELECT tm.id, tm.team_id, tm.user_id, tm.role, tm.created_at, tm.updated_at
		 FROM team_members tm
		 JOIN teams t ON t.id = tm.team_id
		 WHERE t.organization_id = ?
		 ORDER BY tm.team_id ASC, tm.user_id ASC`,
		orgID,
	)
	if err != nil {
		return nil, fmt.Errorf("list organization team memberships: %w", err)
	}
	defer rows.Close()

	var memberships []team.TeamMember
	for rows.Next() {
		tm, err := scanTeamMember(rows)
		if err != nil {
			return nil, fmt.Errorf("list organization team memberships: %w", err)
		}
		memberships = append(memberships, tm)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list organization team memberships: %w", err)
	}
	return memberships, nil
}

// validateParent checks the parent exists, shares the organization, and does
// not close a cycle. It must run inside the mutating transaction.
func validateParent(ctx context.Context, tx dbtx, t team.Team) error {
	parentID := strings.TrimSpace(t.ParentTeamID)
	if parentID == "" {
		return nil
	}
	if parentID == t.ID {
		return storage.ErrSelfParent
	}

	parent, err := getTeam(ctx, tx, parentID)
	if err != nil {
		return err
	}
	if parent.OrganizationID != t.OrganizationID {
		return storage.ErrCrossOrgParent
	}

	var teamCount int64
	if err := tx.QueryRowContext(
		ctx,
		`SELECT COUNT(*) FROM teams WHERE organization_id = ?`,
		t.OrganizationID,
	).Scan(&teamCount); err != nil {
		return fmt.Errorf("count teams: %w", err)
	}

	lookup := func(teamID string) (string, error) {
		var parentTeamID string
		err := tx.QueryRowContext(
			ctx,
			`SELECT parent_team_id FROM teams WHERE id = ?`,
			teamID,
		).Scan(&parentTeamID)
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		if err != nil {
			return "", err
		}
		return parentTeamID, nil
	}
	err = team.ValidateParentChange(t.ID, parentID, int(teamCount), lookup)
	switch {
	case errors.Is(err, team.ErrSelfParent):
		return storage.ErrSelfParent
	case errors.Is(err, team.ErrParentCycle):
		return storage.ErrParentCycle
	}
	return err
}

func allocateTeamSlug(ctx context.Context, tx dbtx, orgID, candidate, excludeTeamID string) (string, error) {
	return slug.Allocate(candidate, func(probe string) (bool, error) {
		var one int64
		err := tx.QueryRowContext(
			ctx,
			`SELECT 1 FROM teams WHERE organization_id = ? AND slug = ? AND id != ?`,
			orgID, probe, excludeTeamID,
		).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		return true, nil
	})
}

// CreateTeam persists one team, allocating its per-organization slug and
// validating the parent inside the transaction.
func (s *Store) CreateTeam(ctx context.Context, t team.Team) (team.Team, error) {
	if err := ctx.Err(); err != nil {
		return team.Team{}, err
	}
	if s == nil || s.sqlDB == nil {
		return team.Team{}, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(t.ID) == "" {
		return team.Team{}, fmt.Errorf("team id is required")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return team.Team{}, fmt.Errorf("start transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := getOrganization(ctx, tx, t.OrganizationID); err != nil {
		return team.Team{}, err
	}
	if err := validateParent(ctx, tx, t); err != nil {
		return team.Team{}, err
	}

	allocated, err := allocateTeamSlug(ctx, tx, t.OrganizationID, t.Slug, t.ID)
	if err != nil {
		return team.Team{}, fmt.Errorf("allocate team slug: %w", err)
	}
	t.Slug = allocated

	metadata, err := encodeJSON(t.Metadata)
	if err != nil {
		return team.Team{}, err
	}
	if _, err := tx.ExecContext(
		ctx,
		`INSERT INTO teams (`+teamColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID,
		t.OrganizationID,
		t.Name,
		t.Slug,
		t.Description,
		metadata,
		strings.TrimSpace(t.ParentTeamID),
		toMillis(t.CreatedAt),
		toMillis(t.UpdatedAt),
	); err != nil {
		if isUniqueViolation(err) {
			return team.Team{}, storage.ErrAlreadyExists
		}
		return team.Team{}, fmt.Errorf("insert team: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return team.Team{}, fmt.Errorf("commit team: %w", err)
	}
	return t, nil
}

// GetTeam returns one team by ID.
func (s *Store) GetTeam(ctx context.Context, teamID string) (team.Team, error) {
	if err := ctx.Err(); err != nil {
		return team.Team{}, err
	}
	if s == nil || s.sqlDB == nil {
		return team.Team{}, fmt.Errorf("storage is not configured")
	}
	teamID = strings.TrimSpace(teamID)
	if teamID == "" {
		return team.Team{}, fmt.Errorf("team id is required")
	}
	return getTeam(ctx, s.sqlDB, teamID)
}

// ListTeams returns one page of teams. parentTeamID narrows to direct
// children when non-nil; a pointer to "" selects root teams.
func (s *Store) ListTeams(ctx context.Context, orgID string, parentTeamID *string, filter string, pageSize int, pageToken string) (storage.TeamPage, error) {
	if err := ctx.Err(); err != nil {
		return storage.TeamPage{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.TeamPage{}, fmt.Errorf("storage is not configured")
	}
	orgID = strings.TrimSpace(orgID)
	if orgID == "" {
		return storage.TeamPage{}, fmt.Errorf("organization id is required")
	}
	if pageSize <= 0 {
		return storage.TeamPage{}, fmt.Errorf("page size must be greater than zero")
	}

	condition, err := parseFilter(filter, teamFilterSchema())
	if err != nil {
		return storage.TeamPage{}, fmt.Errorf("team filter: %w", err)
	}

	page := storage.TeamPage{
		Teams: make([]team.Team, 0, pageSize),
	}
	pageToken = strings.TrimSpace(pageToken)

	query := `SELECT ` + teamColumns + ` FROM teams WHERE organization_id = ?`
	args := []any{orgID}
	if parentTeamID != nil {
		query += ` AND parent_team_id = ?`
		args = append(args, strings.TrimSpace(*parentTeamID))
	}
	if condition.Clause != "" {
		query += ` AND ` + condition.Clause
		args = append(args, condition.Params...)
	}
	if pageToken != "" {
		query += ` AND slug > ?`
		args = append(args, pageToken)
	}
	query += ` ORDER BY slug ASC LIMIT ?`
	args = append(args, pageSize+1)

	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return storage.TeamPage{}, fmt.Errorf("list teams: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		t, err := scanTeam(rows)
		if err != nil {
			return storage.TeamPage{}, fmt.Errorf("list teams: %w", err)
		}
		page.Teams = append(page.Teams, t)
	}
	if err := rows.Err(); err != nil {
		return storage.TeamPage{}, fmt.Errorf("list teams: %w", err)
	}
	if len(page.Teams) > pageSize {
		page.NextPageToken = page.Teams[pageSize-1].Slug
		page.Teams = page.Teams[:pageSize]
	}

	return page, nil
}

// ListAllTeams returns every team of the organization for tree assembly.
func (s *Store) ListAllTeams(ctx context.Context, orgID string) ([]team.Team, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	orgID = strings.TrimSpace(orgID)
	if orgID == "" {
		return nil, fmt.Errorf("organization id is required")
	}
	return listAllTeams(ctx, s.sqlDB, orgID)
}

// UpdateTeam persists mutable team fields, re-validating the parent chain and
// re-allocating the slug when it changed.
func (s *Store) UpdateTeam(ctx context.Context, t team.Team) (team.Team, error) {
	if err := ctx.Err(); err != nil {
		return team.Team{}, err
	}
	if s == nil || s.sqlDB == nil {
		return team.Team{}, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(t.ID) == "" {
		return team.Team{}, fmt.Errorf("team id is required")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return team.Team{}, fmt.Errorf("start transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	existing, err := getTeam(ctx, tx, t.ID)
	if err != nil {
		return team.Team{}, err
	}
	t.OrganizationID = existing.OrganizationID
	t.CreatedAt = existing.CreatedAt

	if err := validateParent(ctx, tx, t); err != nil {
		return team.Team{}, err
	}

	if t.Slug != existing.Slug {
		allocated, err := allocateTeamSlug(ctx, tx, t.OrganizationID, t.Slug, t.ID)
		if err != nil {
			return team.Team{}, fmt.Errorf("allocate team slug: %w", err)
		}
		t.Slug = allocated
	}

	metadata, err := encodeJSON(t.Metadata)
	if err != nil {
		return team.Team{}, err
	}
	if _, err := tx.ExecContext(
		ctx,
		`UPDATE teams SET
		   name = ?, slug = ?, description = ?, metadata = ?, parent_team_id = ?, updated_at = ?
		 WHERE id = ?`,
		t.Name,
		t.Slug,
		t.Description,
		metadata,
		strings.TrimSpace(t.ParentTeamID),
		toMillis(t.UpdatedAt),
		t.ID,
	); err != nil {
		return team.Team{}, fmt.Errorf("update team: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return team.Team{}, fmt.Errorf("commit team update: %w", err)
	}
	return t, nil
}

// DeleteTeam re-parents children to the deleted team's parent, drops its
// membership rows, then the team, in one transaction.
func (s *Store) DeleteTeam(ctx context.Context, teamID string) (storage.DeletedTeam, error) {
	if err := ctx.Err(); err != nil {
		return storage.DeletedTeam{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.DeletedTeam{}, fmt.Errorf("storage is not configured")
	}
	teamID = strings.TrimSpace(teamID)
	if teamID == "" {
		return storage.DeletedTeam{}, fmt.Errorf("team id is required")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return storage.DeletedTeam{}, fmt.Errorf("start transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	t, err := getTeam(ctx, tx, teamID)
	if err != nil {
		return storage.DeletedTeam{}, err
	}

	deleted := storage.DeletedTeam{Team: t}

	childRows, err := tx.QueryContext(
		ctx,
		`SELECT id FROM teams WHERE parent_team_id = ? ORDER BY id ASC`,
		teamID,
	)
	if err != nil {
		return storage.DeletedTeam{}, fmt.Errorf("list child teams: %w", err)
	}
	for childRows.Next() {
		var childID string
		if err := childRows.Scan(&childID); err != nil {
			_ = childRows.Close()
			return storage.DeletedTeam{}, fmt.Errorf("list child teams: %w", err)
		}
		deleted.ReparentedChildIDs = append(deleted.ReparentedChildIDs, childID)
	}
	if err := childRows.Err(); err != nil {
		_ = childRows.Close()
		return storage.DeletedTeam{}, fmt.Errorf("list child teams: %w", err)
	}
	_ = childRows.Close()

	deleted.Memberships, err = s.listTeamMembers(ctx, tx, teamID)
	if err != nil {
		return storage.DeletedTeam{}, err
	}

	if _, err := tx.ExecContext(
		ctx,
		`UPDATE teams SET parent_team_id = ? WHERE parent_team_id = ?`,
		strings.TrimSpace(t.ParentTeamID), teamID,
	); err != nil {
		return storage.DeletedTeam{}, fmt.Errorf("reparent child teams: %w", err)
	}
	if _, err := tx.ExecContext(
		ctx,
		`DELETE FROM team_members WHERE team_id = ?`,
		teamID,
	); err != nil {
		return storage.DeletedTeam{}, fmt.Errorf("delete team memberships: %w", err)
	}
	if _, err := tx.ExecContext(
		ctx,
		`DELETE FROM teams WHERE id = ?`,
		teamID,
	); err != nil {
		return storage.DeletedTeam{}, fmt.Errorf("delete team: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return storage.DeletedTeam{}, fmt.Errorf("commit team delete: %w", err)
	}
	return deleted, nil
}

// AddTeamMember persists one team membership. The user must already hold a
// membership in the team's organization.
func (s *Store) AddTeamMember(ctx context.Context, tm team.TeamMember) (team.TeamMember, error) {
	if err := ctx.Err(); err != nil {
		return team.TeamMember{}, err
	}
	if s == nil || s.sqlDB == nil {
		return team.TeamMember{}, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(tm.ID) == "" {
		return team.TeamMember{}, fmt.Errorf("team member id is required")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return team.TeamMember{}, fmt.Errorf("start transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	t, err := getTeam(ctx, tx, tm.TeamID)
	if err != nil {
		return team.TeamMember{}, err
	}
	if _, err := getMember(ctx, tx, t.OrganizationID, tm.UserID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return team.TeamMember{}, storage.ErrNotOrgMember
		}
		return team.TeamMember{}, err
	}

	if _, err := tx.ExecContext(
		ctx,
		`INSERT INTO team_members (`+teamMemberColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		tm.ID,
		tm.TeamID,
		tm.UserID,
		tm.Role,
		toMillis(tm.CreatedAt),
		toMillis(tm.UpdatedAt),
	); err != nil {
		if isUniqueViolation(err) {
			return team.TeamMember{}, storage.ErrAlreadyExists
		}
		return team.TeamMember{}, fmt.Errorf("insert team member: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return team.TeamMember{}, fmt.Errorf("commit team member: %w", err)
	}
	return tm, nil
}

// RemoveTeamMember deletes one team membership and returns the removed row.
func (s *Store) RemoveTeamMember(ctx context.Context, teamID, userID string) (team.TeamMember, error) {
	if err := ctx.Err(); err != nil {
		return team.TeamMember{}, err
	}
	if s == nil || s.sqlDB == nil {
		return team.TeamMember{}, fmt.Errorf("storage is not configured")
	}
	teamID = strings.TrimSpace(teamID)
	userID = strings.TrimSpace(userID)
	if teamID == "" {
		return team.TeamMember{}, fmt.Errorf("team id is required")
	}
	if userID == "" {
		return team.TeamMember{}, fmt.Errorf("user id is required")
	}

	tm, err := s.getTeamMember(ctx, s.sqlDB, teamID, userID)
	if err != nil {
		return team.TeamMember{}, err
	}
	if _, err := s.sqlDB.ExecContext(
		ctx,
		`DELETE FROM team_members WHERE team_id = ? AND user_id = ?`,
		teamID, userID,
	); err != nil {
		return team.TeamMember{}, fmt.Errorf("delete team member: %w", err)
	}
	return tm, nil
}

// UpdateTeamMemberRole persists a team-scoped role change.
func (s *Store) UpdateTeamMemberRole(ctx context.Context, teamID, userID, newRole string, now time.Time) (team.TeamMember, error) {
	if err := ctx.Err(); err != nil {
		return team.TeamMember{}, err
	}
	if s == nil || s.sqlDB == nil {
		return team.TeamMember{}, fmt.Errorf("storage is not configured")
	}
	teamID = strings.TrimSpace(teamID)
	userID = strings.TrimSpace(userID)
	if teamID == "" {
		return team.TeamMember{}, fmt.Errorf("team id is required")
	}
	if userID == "" {
		return team.TeamMember{}, fmt.Errorf("user id is required")
	}

	result, err := s.sqlDB.ExecContext(
		ctx,
		`UPDATE team_members SET role = ?, updated_at = ? WHERE team_id = ? AND user_id = ?`,
		strings.TrimSpace(newRole), toMillis(now), teamID, userID,
	)
	if err != nil {
		return team.TeamMember{}, fmt.Errorf("update team member role: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return team.TeamMember{}, fmt.Errorf("update team member role: %w", err)
	}
	if affected == 0 {
		return team.TeamMember{}, storage.ErrNotFound
	}
	return s.getTeamMember(ctx, s.sqlDB, teamID, userID)
}

// IsTeamMember reports whether the user holds a membership in the team.
func (s *Store) IsTeamMember(ctx context.Context, teamID, userID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if s == nil || s.sqlDB == nil {
		return false, fmt.Errorf("storage is not configured")
	}
	teamID = strings.TrimSpace(teamID)
	userID = strings.TrimSpace(userID)
	if teamID == "" {
		return false, fmt.Errorf("team id is required")
	}
	if userID == "" {
		return false, fmt.Errorf("user id is required")
	}

	var one int64
	err := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT 1 FROM team_members WHERE team_id = ? AND user_id = ?`,
		teamID, userID,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check team member: %w", err)
	}
	return true, nil
}

// ListTeamMembers returns every membership of one team.
func (s *Store) ListTeamMembers(ctx context.Context, teamID string) ([]team.TeamMember, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	teamID = strings.TrimSpace(teamID)
	if teamID == "" {
		return nil, fmt.Errorf("team id is required")
	}
	return s.listTeamMembers(ctx, s.sqlDB, teamID)
}

func (s *Store) listTeamMembers(ctx context.Context, q dbtx, teamID string) ([]team.TeamMember, error) {
	rows, err := q.QueryContext(
		ctx,
		`SELECT `+teamMemberColumns+` FROM team_members WHERE team_id = ? ORDER BY user_id ASC`,
		teamID,
	)
	if err != nil {
		return nil, fmt.Errorf("list team members: %w", err)
	}
	defer rows.Close()

	var memberships []team.TeamMember
	for rows.Next() {
		tm, err := scanTeamMember(rows)
		if err != nil {
			return nil, fmt.Errorf("list team members: %w", err)
		}
		memberships = append(memberships, tm)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list team members: %w", err)
	}
	return memberships, nil
}

func (s *Store) getTeamMember(ctx context.Context, q dbtx, teamID, userID string) (team.TeamMember, error) {
	row := q.QueryRowContext(
		ctx,
		`SELECT `+teamMemberColumns+` FROM team_members WHERE team_id = ? AND user_id = ?`,
		teamID, userID,
	)
	tm, err := scanTeamMember(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return team.TeamMember{}, storage.ErrNotFound
		}
		return team.TeamMember{}, fmt.Errorf("get team member: %w", err)
	}
	return tm, nil
}

var _ storage.TeamStore = (*Store)(nil)
