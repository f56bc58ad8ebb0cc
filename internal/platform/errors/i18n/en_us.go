package i18n

// Error codes must match the codes defined in internal/platform/errors/codes.go.
// These are duplicated as strings to avoid an import cycle.
const (
	CodeOrgNameEmpty       = "ORG_NAME_EMPTY"
	CodeOrgInvalidStatus   = "ORG_INVALID_STATUS"
	CodeOrgOwnerOnly       = "ORG_OWNER_ONLY"
	CodeOrgTransferToSelf  = "ORG_TRANSFER_TO_SELF"
	CodeOrgTransferMissing = "ORG_TRANSFER_TARGET_MISSING"

	CodeMemberInvalidRole      = "MEMBER_INVALID_ROLE"
	CodeMemberAlreadyExists    = "MEMBER_ALREADY_EXISTS"
	CodeMemberRoleInsufficient = "MEMBER_ROLE_INSUFFICIENT"
	CodeMemberNotInOrg         = "MEMBER_NOT_IN_ORGANIZATION"
	CodeMemberOwnerProtected   = "MEMBER_OWNER_PROTECTED"
	CodeMemberSoleOwner        = "MEMBER_SOLE_OWNER"

	CodeTeamNameEmpty           = "TEAM_NAME_EMPTY"
	CodeTeamSelfParent          = "TEAM_SELF_PARENT"
	CodeTeamParentCycle         = "TEAM_PARENT_CYCLE"
	CodeTeamParentCrossOrg      = "TEAM_PARENT_CROSS_ORGANIZATION"
	CodeTeamCrossOrg            = "TEAM_CROSS_ORGANIZATION"
	CodeTeamMemberAlreadyExists = "TEAM_MEMBER_ALREADY_EXISTS"

	CodeInvitationIdentifierEmpty  = "INVITATION_IDENTIFIER_EMPTY"
	CodeInvitationDuplicatePending = "INVITATION_DUPLICATE_PENDING"
	CodeInvitationNotPending       = "INVITATION_NOT_PENDING"
	CodeInvitationExpired          = "INVITATION_EXPIRED"
	CodeInvitationGrantInvalid     = "INVITATION_GRANT_INVALID"
	CodeInvitationGrantExpired     = "INVITATION_GRANT_EXPIRED"
	CodeInvitationGrantMismatch    = "INVITATION_GRANT_MISMATCH"

	CodeNotFound = "NOT_FOUND"

	CodeAuthzSyncFailed = "AUTHZ_SYNC_FAILED"
	CodeAuthzDenied     = "AUTHZ_DENIED"
)

var enUSCatalog = &Catalog{
	locale: "en-US",
	messages: map[Code]string{
		// Organization errors
		CodeOrgNameEmpty:       "Organization name cannot be empty",
		CodeOrgInvalidStatus:   "Invalid organization status specified",
		CodeOrgOwnerOnly:       "Only the organization owner can perform this action",
		CodeOrgTransferToSelf:  "Ownership cannot be transferred to the current owner",
		CodeOrgTransferMissing: "The user receiving ownership is not a member of this organization",

		// Member errors
		CodeMemberInvalidRole:      "Invalid member role specified",
		CodeMemberAlreadyExists:    "User is already a member of this organization",
		CodeMemberRoleInsufficient: "This action requires the {{.RequiredRole}} role or higher",
		CodeMemberNotInOrg:         "User is not a member of this organization",
		CodeMemberOwnerProtected:   "The organization owner cannot be removed; transfer ownership first",
		CodeMemberSoleOwner:        "The sole owner cannot leave the organization; transfer ownership first",

		// Team errors
		CodeTeamNameEmpty:           "Team name cannot be empty",
		CodeTeamSelfParent:          "A team cannot be its own parent",
		CodeTeamParentCycle:         "Setting this parent would create a cycle in the team hierarchy",
		CodeTeamParentCrossOrg:      "Parent team belongs to a different organization",
		CodeTeamCrossOrg:            "Team belongs to a different organization",
		CodeTeamMemberAlreadyExists: "User is already a member of this team",

		// Invitation errors
		CodeInvitationIdentifierEmpty:  "Invitee identifier cannot be empty",
		CodeInvitationDuplicatePending: "A pending invitation already exists for {{.Identifier}}",
		CodeInvitationNotPending:       "Invitation is {{.Status}} and can no longer be modified",
		CodeInvitationExpired:          "Invitation has expired",
		CodeInvitationGrantInvalid:     "Invitation grant is invalid",
		CodeInvitationGrantExpired:     "Invitation grant has expired",
		CodeInvitationGrantMismatch:    "Invitation grant does not match this invitation",

		// Storage errors
		CodeNotFound: "The requested resource was not found",

		// Authorization subsystem errors
		CodeAuthzSyncFailed: "Directory change saved, but the authorization update failed; retry the sync",
		CodeAuthzDenied:     "You do not have permission to perform this action",
	},
}
