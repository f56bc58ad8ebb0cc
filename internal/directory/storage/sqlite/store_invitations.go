package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/tenantry/internal/directory/invitation"
	"github.com/louisbranch/tenantry/internal/directory/member"
	"github.com/louisbranch/tenantry/internal/directory/storage"
	"github.com/louisbranch/tenantry/internal/directory/team"
)

const invitationColumns = `id, organization_id, invitee_identifier, identifier_type, role, team_id,
	inviter_user_id, inviter_name, message, status, expires_at, created_at, updated_at`

func scanInvitation(row rowScanner) (invitation.Invitation, error) {
	var (
		inv       invitation.Invitation
		status    string
		expiresAt int64
		createdAt int64
		updatedAt int64
	)
	if err := row.Scan(
		&inv.ID,
		&inv.OrganizationID,
		&inv.InviteeIdentifier,
		&inv.IdentifierType,
		&inv.Role,
		&inv.TeamID,
		&inv.InviterUserID,
		&inv.InviterName,
		&inv.Message,
		&status,
		&expiresAt,
		&createdAt,
		&updatedAt,
	); err != nil {
		return invitation.Invitation{}, err
	}
	inv.Status = invitation.StatusFromLabel(status)
	inv.ExpiresAt = fromMillis(expiresAt)
	inv.CreatedAt = fromMillis(createdAt)
	inv.UpdatedAt = fromMillis(updatedAt)
	return inv, nil
}

func getInvitation(ctx context.Context, q dbtx, invitationID string) (invitation.Invitation, error) {
	row := q.QueryRowContext(
		ctx,
		`SELECT `+invitationColumns+` FROM invitations WHERE id = ?`,
		invitationID,
	)
	inv, err := scanInvitation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return invitation.Invitation{}, storage.ErrNotFound
		}
		return invitation.Invitation{}, fmt.Errorf("get invitation: %w", err)
	}
	return inv, nil
}

func listAllInvitations(ctx context.Context, q dbtx, orgID string) ([]invitation.Invitation, error) {
	rows, err := q.QueryContext(
		ctx,
		`SELECT `+invitationColumns+` FROM invitations WHERE organization_id = ? ORDER BY id ASC`,
		orgID,
	)
	if err != nil {
		return nil, fmt.Errorf("list invitations: %w", err)
	}
	defer rows.Close()

	var invitations []invitation.Invitation
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, fmt.Errorf("list invitations: %w", err)
		}
		invitations = append(invitations, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list invitations: %w", err)
	}
	return invitations, nil
}

// CreateInvitation persists one pending invitation. A lapsed pending
// invitation for the same invitee is flipped to expired first, so only a live
// pending invitation trips the single-pending constraint.
func (s *Store) CreateInvitation(ctx context.Context, inv invitation.Invitation) (invitation.Invitation, error) {
	if err := ctx.Err(); err != nil {
		return invitation.Invitation{}, err
	}
	if s == nil || s.sqlDB == nil {
		return invitation.Invitation{}, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(inv.ID) == "" {
		return invitation.Invitation{}, fmt.Errorf("invitation id is required")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return invitation.Invitation{}, fmt.Errorf("start transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := getOrganization(ctx, tx, inv.OrganizationID); err != nil {
		return invitation.Invitation{}, err
	}
	if inv.TeamID != "" {
		t, err := getTeam(ctx, tx, inv.TeamID)
		if err != nil {
			return invitation.Invitation{}, err
		}
		if t.OrganizationID != inv.OrganizationID {
			return invitation.Invitation{}, storage.ErrCrossOrgTeam
		}
	}

	nowMillis := toMillis(inv.CreatedAt)
	if _, err := tx.ExecContext(
		ctx,
		`UPDATE invitations SET status = ?, updated_at = ?
		 WHERE organization_id = ? AND invitee_identifier = ? AND status = ? AND expires_at <= ?`,
		invitation.StatusLabel(invitation.StatusExpired),
		nowMillis,
		inv.OrganizationID,
		inv.InviteeIdentifier,
		invitation.StatusLabel(invitation.StatusPending),
		nowMillis,
	); err != nil {
		return invitation.Invitation{}, fmt.Errorf("expire stale invitations: %w", err)
	}

	if _, err := tx.ExecContext(
		ctx,
		`INSERT INTO invitations (`+invitationColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inv.ID,
		inv.OrganizationID,
		inv.InviteeIdentifier,
		inv.IdentifierType,
		inv.Role,
		inv.TeamID,
		inv.InviterUserID,
		inv.InviterName,
		inv.Message,
		invitation.StatusLabel(inv.Status),
		toMillis(inv.ExpiresAt),
		toMillis(inv.CreatedAt),
		toMillis(inv.UpdatedAt),
	); err != nil {
		if isUniqueViolation(err) {
			return invitation.Invitation{}, storage.ErrAlreadyExists
		}
		return invitation.Invitation{}, fmt.Errorf("insert invitation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return invitation.Invitation{}, fmt.Errorf("commit invitation: %w", err)
	}
	return inv, nil
}

// GetInvitation returns one invitation by ID without mutating its status.
// Callers derive expiry with IsExpired.
func (s *Store) GetInvitation(ctx context.Context, invitationID string) (invitation.Invitation, error) {
	if err := ctx.Err(); err != nil {
		return invitation.Invitation{}, err
	}
	if s == nil || s.sqlDB == nil {
		return invitation.Invitation{}, fmt.Errorf("storage is not configured")
	}
	invitationID = strings.TrimSpace(invitationID)
	if invitationID == "" {
		return invitation.Invitation{}, fmt.Errorf("invitation id is required")
	}
	return getInvitation(ctx, s.sqlDB, invitationID)
}

// ListInvitations returns one page of invitations, optionally narrowed by an
// AIP-160 filter.
func (s *Store) ListInvitations(ctx context.Context, orgID string, filter string, pageSize int, pageToken string) (storage.InvitationPage, error) {
	if err := ctx.Err(); err != nil {
		return storage.InvitationPage{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.InvitationPage{}, fmt.Errorf("storage is not configured")
	}
	orgID = strings.TrimSpace(orgID)
	if orgID == "" {
		return storage.InvitationPage{}, fmt.Errorf("organization id is required")
	}
	if pageSize <= 0 {
		return storage.InvitationPage{}, fmt.Errorf("page size must be greater than zero")
	}

	condition, err := parseFilter(filter, invitationFilterSchema())
	if err != nil {
		return storage.InvitationPage{}, fmt.Errorf("invitation filter: %w", err)
	}

	page := storage.InvitationPage{
		Invitations: make([]invitation.Invitation, 0, pageSize),
	}
	pageToken = strings.TrimSpace(pageToken)

	query := `SELECT ` + invitationColumns + ` FROM invitations WHERE organization_id = ?`
	args := []any{orgID}
	if condition.Clause != "" {
		query += ` AND ` + condition.Clause
		args = append(args, condition.Params...)
	}
	if pageToken != "" {
		query += ` AND id > ?`
		args = append(args, pageToken)
	}
	query += ` ORDER BY id ASC LIMIT ?`
	args = append(args, pageSize+1)

	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return storage.InvitationPage{}, fmt.Errorf("list invitations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return storage.InvitationPage{}, fmt.Errorf("list invitations: %w", err)
		}
		page.Invitations = append(page.Invitations, inv)
	}
	if err := rows.Err(); err != nil {
		return storage.InvitationPage{}, fmt.Errorf("list invitations: %w", err)
	}
	if len(page.Invitations) > pageSize {
		page.NextPageToken = page.Invitations[pageSize-1].ID
		page.Invitations = page.Invitations[:pageSize]
	}

	return page, nil
}

// ListPendingInvitationsForIdentifier returns pending invitations across all
// organizations for one invitee identifier.
func (s *Store) ListPendingInvitationsForIdentifier(ctx context.Context, identifier string) ([]invitation.Invitation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, fmt.Errorf("invitee identifier is required")
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT `+invitationColumns+` FROM invitations
		 WHERE invitee_identifier = ? AND status = ?
		 ORDER BY id ASC`,
		identifier,
		invitation.StatusLabel(invitation.StatusPending),
	)
	if err != nil {
		return nil, fmt.Errorf("list pending invitations: %w", err)
	}
	defer rows.Close()

	var invitations []invitation.Invitation
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, fmt.Errorf("list pending invitations: %w", err)
		}
		invitations = append(invitations, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list pending invitations: %w", err)
	}
	return invitations, nil
}

// requirePending verifies the invitation is pending and unexpired at now.
// A lapsed pending invitation is flipped to expired and committed even though
// the surrounding operation fails, so the stored state converges.
func (s *Store) requirePending(ctx context.Context, tx *sql.Tx, invitationID string, now time.Time) (invitation.Invitation, error) {
	inv, err := getInvitation(ctx, tx, invitationID)
	if err != nil {
		return invitation.Invitation{}, err
	}
	if inv.Status != invitation.StatusPending {
		return invitation.Invitation{}, &storage.InvitationStateError{Status: inv.Status}
	}
	if inv.IsExpired(now) {
		if _, err := tx.ExecContext(
			ctx,
			`UPDATE invitations SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
			invitation.StatusLabel(invitation.StatusExpired),
			toMillis(now),
			invitationID,
			invitation.StatusLabel(invitation.StatusPending),
		); err != nil {
			return invitation.Invitation{}, fmt.Errorf("expire invitation: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return invitation.Invitation{}, fmt.Errorf("commit invitation expiry: %w", err)
		}
		return invitation.Invitation{}, storage.ErrInvitationExpired
	}
	return inv, nil
}

// AcceptInvitation transitions pending→accepted and creates the membership
// records in the same transaction.
func (s *Store) AcceptInvitation(ctx context.Context, params storage.AcceptInvitationParams) (storage.AcceptedInvitation, error) {
	if err := ctx.Err(); err != nil {
		return storage.AcceptedInvitation{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.AcceptedInvitation{}, fmt.Errorf("storage is not configured")
	}
	invitationID := strings.TrimSpace(params.InvitationID)
	userID := strings.TrimSpace(params.UserID)
	if invitationID == "" {
		return storage.AcceptedInvitation{}, fmt.Errorf("invitation id is required")
	}
	if userID == "" {
		return storage.AcceptedInvitation{}, fmt.Errorf("user id is required")
	}
	if strings.TrimSpace(params.MemberID) == "" {
		return storage.AcceptedInvitation{}, fmt.Errorf("member id is required")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return storage.AcceptedInvitation{}, fmt.Errorf("start transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	inv, err := s.requirePending(ctx, tx, invitationID, params.Now)
	if err != nil {
		return storage.AcceptedInvitation{}, err
	}

	if _, err := getMember(ctx, tx, inv.OrganizationID, userID); err == nil {
		return storage.AcceptedInvitation{}, storage.ErrAlreadyExists
	} else if !errors.Is(err, storage.ErrNotFound) {
		return storage.AcceptedInvitation{}, err
	}

	now := params.Now.UTC()
	joinedAt := now
	m := member.Member{
		ID:             params.MemberID,
		OrganizationID: inv.OrganizationID,
		UserID:         userID,
		Role:           inv.Role,
		Status:         member.StatusActive,
		JoinedAt:       &joinedAt,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := insertMember(ctx, tx, m); err != nil {
		if isUniqueViolation(err) {
			return storage.AcceptedInvitation{}, storage.ErrAlreadyExists
		}
		return storage.AcceptedInvitation{}, fmt.Errorf("insert member: %w", err)
	}

	accepted := storage.AcceptedInvitation{Member: m}

	if inv.TeamID != "" {
		// The team may have been deleted after the invitation was sent;
		// acceptance still succeeds without the team membership.
		_, err := getTeam(ctx, tx, inv.TeamID)
		switch {
		case err == nil:
			if strings.TrimSpace(params.TeamMemberID) == "" {
				return storage.AcceptedInvitation{}, fmt.Errorf("team member id is required")
			}
			tm := team.TeamMember{
				ID:        params.TeamMemberID,
				TeamID:    inv.TeamID,
				UserID:    userID,
				CreatedAt: now,
				UpdatedAt: now,
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
				if !isUniqueViolation(err) {
					return storage.AcceptedInvitation{}, fmt.Errorf("insert team member: %w", err)
				}
			} else {
				accepted.TeamMembership = &tm
			}
		case errors.Is(err, storage.ErrNotFound):
		default:
			return storage.AcceptedInvitation{}, err
		}
	}

	if _, err := tx.ExecContext(
		ctx,
		`UPDATE invitations SET status = ?, updated_at = ? WHERE id = ?`,
		invitation.StatusLabel(invitation.StatusAccepted),
		toMillis(now),
		invitationID,
	); err != nil {
		return storage.AcceptedInvitation{}, fmt.Errorf("accept invitation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return storage.AcceptedInvitation{}, fmt.Errorf("commit invitation acceptance: %w", err)
	}

	inv.Status = invitation.StatusAccepted
	inv.UpdatedAt = now
	accepted.Invitation = inv
	return accepted, nil
}

// CancelInvitation transitions pending→cancelled.
func (s *Store) CancelInvitation(ctx context.Context, invitationID string, now time.Time) (invitation.Invitation, error) {
	if err := ctx.Err(); err != nil {
		return invitation.Invitation{}, err
	}
	if s == nil || s.sqlDB == nil {
		return invitation.Invitation{}, fmt.Errorf("storage is not configured")
	}
	invitationID = strings.TrimSpace(invitationID)
	if invitationID == "" {
		return invitation.Invitation{}, fmt.Errorf("invitation id is required")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return invitation.Invitation{}, fmt.Errorf("start transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	inv, err := s.requirePending(ctx, tx, invitationID, now)
	if err != nil {
		return invitation.Invitation{}, err
	}

	if _, err := tx.ExecContext(
		ctx,
		`UPDATE invitations SET status = ?, updated_at = ? WHERE id = ?`,
		invitation.StatusLabel(invitation.StatusCancelled),
		toMillis(now),
		invitationID,
	); err != nil {
		return invitation.Invitation{}, fmt.Errorf("cancel invitation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return invitation.Invitation{}, fmt.Errorf("commit invitation cancel: %w", err)
	}

	inv.Status = invitation.StatusCancelled
	inv.UpdatedAt = now.UTC()
	return inv, nil
}

// PrepareResend verifies the invitation is pending and unexpired. The expiry
// window is not extended; only updated_at records the resend.
func (s *Store) PrepareResend(ctx context.Context, invitationID string, now time.Time) (invitation.Invitation, error) {
	if err := ctx.Err(); err != nil {
		return invitation.Invitation{}, err
	}
	if s == nil || s.sqlDB == nil {
		return invitation.Invitation{}, fmt.Errorf("storage is not configured")
	}
	invitationID = strings.TrimSpace(invitationID)
	if invitationID == "" {
		return invitation.Invitation{}, fmt.Errorf("invitation id is required")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return invitation.Invitation{}, fmt.Errorf("start transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	inv, err := s.requirePending(ctx, tx, invitationID, now)
	if err != nil {
		return invitation.Invitation{}, err
	}

	if _, err := tx.ExecContext(
		ctx,
		`UPDATE invitations SET updated_at = ? WHERE id = ?`,
		toMillis(now),
		invitationID,
	); err != nil {
		return invitation.Invitation{}, fmt.Errorf("touch invitation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return invitation.Invitation{}, fmt.Errorf("commit invitation resend: %w", err)
	}

	inv.UpdatedAt = now.UTC()
	return inv, nil
}

var _ storage.InvitationStore = (*Store)(nil)
