package errors

import (
	"errors"
	"fmt"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestErrorIsMatchesByCode(t *testing.T) {
	base := New(CodeMemberAlreadyExists, "duplicate member")
	wrapped := fmt.Errorf("add member: %w", base)

	if !errors.Is(wrapped, New(CodeMemberAlreadyExists, "other message")) {
		t.Fatal("expected code match through wrapping")
	}
	if errors.Is(wrapped, New(CodeNotFound, "nope")) {
		t.Fatal("did not expect match for a different code")
	}
}

func TestGetCode(t *testing.T) {
	if got := GetCode(New(CodeTeamParentCycle, "cycle")); got != CodeTeamParentCycle {
		t.Fatalf("GetCode = %s, want %s", got, CodeTeamParentCycle)
	}
	if got := GetCode(errors.New("plain")); got != CodeUnknown {
		t.Fatalf("GetCode = %s, want %s", got, CodeUnknown)
	}
}

func TestHandleErrorMapsTaxonomy(t *testing.T) {
	cases := []struct {
		code Code
		want codes.Code
	}{
		{CodeNotFound, codes.NotFound},
		{CodeMemberAlreadyExists, codes.AlreadyExists},
		{CodeMemberOwnerProtected, codes.PermissionDenied},
		{CodeTeamParentCycle, codes.InvalidArgument},
		{CodeInvitationNotPending, codes.FailedPrecondition},
		{CodeInvitationExpired, codes.FailedPrecondition},
		{CodeAuthzSyncFailed, codes.Unavailable},
	}
	for _, tc := range cases {
		err := HandleError(New(tc.code, "boom"), "")
		st, ok := status.FromError(err)
		if !ok {
			t.Fatalf("%s: expected grpc status", tc.code)
		}
		if st.Code() != tc.want {
			t.Fatalf("%s: grpc code = %s, want %s", tc.code, st.Code(), tc.want)
		}
	}
}

func TestHandleErrorUnknown(t *testing.T) {
	err := HandleError(errors.New("disk on fire"), "en-US")
	st, ok := status.FromError(err)
	if !ok {
		t.Fatal("expected grpc status")
	}
	if st.Code() != codes.Internal {
		t.Fatalf("grpc code = %s, want %s", st.Code(), codes.Internal)
	}
	if st.Message() == "disk on fire" {
		t.Fatal("internal error detail must not leak to clients")
	}
}

func TestHandleErrorNil(t *testing.T) {
	if HandleError(nil, "en-US") != nil {
		t.Fatal("expected nil for nil error")
	}
}
