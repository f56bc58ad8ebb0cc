package invitation

import (
	"errors"
	"testing"
	"time"

	apperrors "github.com/louisbranch/tenantry/internal/platform/errors"
)

func fixedClock() time.Time {
	return time.Date(2026, time.March, 1, 10, 0, 0, 0, time.UTC)
}

func TestCreateInvitationDefaults(t *testing.T) {
	inv, err := CreateInvitation(CreateInvitationInput{
		OrganizationID:    "org-1",
		InviteeIdentifier: " Bob@Example.com ",
		Role:              "admin",
		InviterUserID:     "alice",
	}, fixedClock, func() (string, error) { return "inv-1", nil })
	if err != nil {
		t.Fatalf("create invitation: %v", err)
	}

	if inv.Status != StatusPending {
		t.Fatalf("status = %v, want pending", inv.Status)
	}
	if inv.InviteeIdentifier != "bob@example.com" {
		t.Fatalf("identifier = %q, want lowercased email", inv.InviteeIdentifier)
	}
	if inv.IdentifierType != IdentifierTypeEmail {
		t.Fatalf("identifier type = %q, want email default", inv.IdentifierType)
	}
	wantExpiry := fixedClock().Add(DefaultTTL)
	if !inv.ExpiresAt.Equal(wantExpiry) {
		t.Fatalf("expiresAt = %v, want %v", inv.ExpiresAt, wantExpiry)
	}
}

func TestCreateInvitationExpiryOverride(t *testing.T) {
	custom := fixedClock().Add(2 * time.Hour)
	inv, err := CreateInvitation(CreateInvitationInput{
		OrganizationID:    "org-1",
		InviteeIdentifier: "bob@example.com",
		Role:              "member",
		ExpiresAt:         custom,
	}, fixedClock, func() (string, error) { return "inv-2", nil })
	if err != nil {
		t.Fatalf("create invitation: %v", err)
	}
	if !inv.ExpiresAt.Equal(custom) {
		t.Fatalf("expiresAt = %v, want override %v", inv.ExpiresAt, custom)
	}
}

func TestCreateInvitationValidation(t *testing.T) {
	if _, err := CreateInvitation(CreateInvitationInput{InviteeIdentifier: "x", Role: "member"}, fixedClock, nil); !errors.Is(err, ErrEmptyOrganizationID) {
		t.Fatalf("missing org: err = %v", err)
	}
	if _, err := CreateInvitation(CreateInvitationInput{OrganizationID: "org-1", Role: "member"}, fixedClock, nil); !errors.Is(err, ErrEmptyIdentifier) {
		t.Fatalf("missing identifier: err = %v", err)
	}
	if _, err := CreateInvitation(CreateInvitationInput{OrganizationID: "org-1", InviteeIdentifier: "x", Role: "root"}, fixedClock, nil); !errors.Is(err, ErrInvalidRole) {
		t.Fatalf("bad role: err = %v", err)
	}
}

func TestIsExpired(t *testing.T) {
	inv := Invitation{ExpiresAt: fixedClock()}
	if inv.IsExpired(fixedClock()) {
		t.Fatal("expiry boundary should not count as expired")
	}
	if !inv.IsExpired(fixedClock().Add(time.Second)) {
		t.Fatal("expected expired one second past expiry")
	}
}

func TestStatusTerminality(t *testing.T) {
	if StatusPending.IsTerminal() {
		t.Fatal("pending must not be terminal")
	}
	for _, s := range []Status{StatusAccepted, StatusCancelled, StatusExpired} {
		if !s.IsTerminal() {
			t.Fatalf("%s must be terminal", StatusLabel(s))
		}
	}
}

func TestNotPendingErrorNamesStatus(t *testing.T) {
	err := NotPendingError(StatusCancelled)
	if !apperrors.IsCode(err, apperrors.CodeInvitationNotPending) {
		t.Fatalf("unexpected code for %v", err)
	}
	meta := apperrors.GetMetadata(err)
	if meta["Status"] != "cancelled" {
		t.Fatalf("metadata status = %q, want cancelled", meta["Status"])
	}
}

func TestStatusLabelsRoundTrip(t *testing.T) {
	for _, status := range []Status{StatusPending, StatusAccepted, StatusCancelled, StatusExpired} {
		if got := StatusFromLabel(StatusLabel(status)); got != status {
			t.Fatalf("round trip for %v gave %v", status, got)
		}
	}
}
