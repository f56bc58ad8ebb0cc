package errors

import "google.golang.org/grpc/codes"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Organization errors
	CodeOrgNameEmpty       Code = "ORG_NAME_EMPTY"
	CodeOrgInvalidStatus   Code = "ORG_INVALID_STATUS"
	CodeOrgOwnerOnly       Code = "ORG_OWNER_ONLY"
	CodeOrgTransferToSelf  Code = "ORG_TRANSFER_TO_SELF"
	CodeOrgTransferMissing Code = "ORG_TRANSFER_TARGET_MISSING"

	// Member errors
	CodeMemberInvalidRole      Code = "MEMBER_INVALID_ROLE"
	CodeMemberAlreadyExists    Code = "MEMBER_ALREADY_EXISTS"
	CodeMemberRoleInsufficient Code = "MEMBER_ROLE_INSUFFICIENT"
	CodeMemberNotInOrg         Code = "MEMBER_NOT_IN_ORGANIZATION"
	CodeMemberOwnerProtected   Code = "MEMBER_OWNER_PROTECTED"
	CodeMemberSoleOwner        Code = "MEMBER_SOLE_OWNER"

	// Team errors
	CodeTeamNameEmpty           Code = "TEAM_NAME_EMPTY"
	CodeTeamSelfParent          Code = "TEAM_SELF_PARENT"
	CodeTeamParentCycle         Code = "TEAM_PARENT_CYCLE"
	CodeTeamParentCrossOrg      Code = "TEAM_PARENT_CROSS_ORGANIZATION"
	CodeTeamCrossOrg            Code = "TEAM_CROSS_ORGANIZATION"
	CodeTeamMemberAlreadyExists Code = "TEAM_MEMBER_ALREADY_EXISTS"

	// Invitation errors
	CodeInvitationIdentifierEmpty  Code = "INVITATION_IDENTIFIER_EMPTY"
	CodeInvitationDuplicatePending Code = "INVITATION_DUPLICATE_PENDING"
	CodeInvitationNotPending       Code = "INVITATION_NOT_PENDING"
	CodeInvitationExpired          Code = "INVITATION_EXPIRED"
	CodeInvitationGrantInvalid     Code = "INVITATION_GRANT_INVALID"
	CodeInvitationGrantExpired     Code = "INVITATION_GRANT_EXPIRED"
	CodeInvitationGrantMismatch    Code = "INVITATION_GRANT_MISMATCH"

	// Storage errors
	CodeNotFound Code = "NOT_FOUND"

	// Authorization subsystem errors
	CodeAuthzSyncFailed Code = "AUTHZ_SYNC_FAILED"
	CodeAuthzDenied     Code = "AUTHZ_DENIED"
)

// GRPCCode maps domain codes to gRPC status codes.
func (c Code) GRPCCode() codes.Code {
	switch c {
	// InvalidArgument - validation failures, bad input
	case CodeOrgNameEmpty,
		CodeOrgInvalidStatus,
		CodeOrgTransferToSelf,
		CodeMemberInvalidRole,
		CodeTeamNameEmpty,
		CodeTeamSelfParent,
		CodeTeamParentCycle,
		CodeInvitationIdentifierEmpty,
		CodeInvitationGrantInvalid,
		CodeInvitationGrantMismatch:
		return codes.InvalidArgument

	// FailedPrecondition - state doesn't allow operation
	case CodeInvitationNotPending,
		CodeInvitationExpired,
		CodeInvitationGrantExpired:
		return codes.FailedPrecondition

	// PermissionDenied - role hierarchy or protection rules
	case CodeOrgOwnerOnly,
		CodeMemberRoleInsufficient,
		CodeMemberNotInOrg,
		CodeMemberOwnerProtected,
		CodeMemberSoleOwner,
		CodeTeamParentCrossOrg,
		CodeTeamCrossOrg,
		CodeAuthzDenied:
		return codes.PermissionDenied

	// NotFound - resource doesn't exist
	case CodeNotFound,
		CodeOrgTransferMissing:
		return codes.NotFound

	// AlreadyExists - unique resource constraint
	case CodeMemberAlreadyExists,
		CodeTeamMemberAlreadyExists,
		CodeInvitationDuplicatePending:
		return codes.AlreadyExists

	// Unavailable - the authorization subsystem write did not land
	case CodeAuthzSyncFailed:
		return codes.Unavailable

	default:
		return codes.Internal
	}
}
