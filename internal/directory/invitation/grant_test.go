package invitation

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"testing"
	"time"

	apperrors "github.com/louisbranch/tenantry/internal/platform/errors"
)

func testGrantConfig(t *testing.T) GrantConfig {
	t.Helper()
	public, private, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return GrantConfig{
		Issuer:     "tenantry-directory",
		Audience:   "tenantry-accept",
		PublicKey:  public,
		PrivateKey: private,
		Now:        fixedClock,
	}
}

func testInvitation() Invitation {
	return Invitation{
		ID:                "inv-1",
		OrganizationID:    "org-1",
		InviteeIdentifier: "bob@example.com",
		ExpiresAt:         fixedClock().Add(DefaultTTL),
	}
}

func TestMintAndValidateGrant(t *testing.T) {
	cfg := testGrantConfig(t)

	grant, err := MintGrant(testInvitation(), cfg)
	if err != nil {
		t.Fatalf("mint grant: %v", err)
	}

	claims, err := ValidateGrant(grant, GrantExpectation{
		OrganizationID:    "org-1",
		InvitationID:      "inv-1",
		InviteeIdentifier: "bob@example.com",
	}, cfg)
	if err != nil {
		t.Fatalf("validate grant: %v", err)
	}
	if claims.InvitationID != "inv-1" || claims.OrganizationID != "org-1" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if claims.JWTID == "" {
		t.Fatal("expected a jti")
	}
}

func TestValidateGrantMismatch(t *testing.T) {
	cfg := testGrantConfig(t)
	grant, err := MintGrant(testInvitation(), cfg)
	if err != nil {
		t.Fatalf("mint grant: %v", err)
	}

	_, err = ValidateGrant(grant, GrantExpectation{
		OrganizationID:    "org-1",
		InvitationID:      "inv-other",
		InviteeIdentifier: "bob@example.com",
	}, cfg)
	if !apperrors.IsCode(err, apperrors.CodeInvitationGrantMismatch) {
		t.Fatalf("err = %v, want grant mismatch", err)
	}
}

func TestValidateGrantExpired(t *testing.T) {
	cfg := testGrantConfig(t)
	grant, err := MintGrant(testInvitation(), cfg)
	if err != nil {
		t.Fatalf("mint grant: %v", err)
	}

	cfg.Now = func() time.Time { return fixedClock().Add(DefaultTTL + time.Hour) }
	_, err = ValidateGrant(grant, GrantExpectation{
		OrganizationID:    "org-1",
		InvitationID:      "inv-1",
		InviteeIdentifier: "bob@example.com",
	}, cfg)
	if !apperrors.IsCode(err, apperrors.CodeInvitationGrantExpired) {
		t.Fatalf("err = %v, want grant expired", err)
	}
}

func TestValidateGrantWrongKey(t *testing.T) {
	cfg := testGrantConfig(t)
	grant, err := MintGrant(testInvitation(), cfg)
	if err != nil {
		t.Fatalf("mint grant: %v", err)
	}

	other := testGrantConfig(t)
	other.Issuer = cfg.Issuer
	other.Audience = cfg.Audience
	_, err = ValidateGrant(grant, GrantExpectation{
		OrganizationID:    "org-1",
		InvitationID:      "inv-1",
		InviteeIdentifier: "bob@example.com",
	}, other)
	if !apperrors.IsCode(err, apperrors.CodeInvitationGrantInvalid) {
		t.Fatalf("err = %v, want grant invalid", err)
	}
}

func TestLoadGrantConfigFromEnv(t *testing.T) {
	public, private, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	t.Setenv("TENANTRY_INVITATION_GRANT_ISSUER", "tenantry-directory")
	t.Setenv("TENANTRY_INVITATION_GRANT_AUDIENCE", "tenantry-accept")
	t.Setenv("TENANTRY_INVITATION_GRANT_PUBLIC_KEY", base64.RawStdEncoding.EncodeToString(public))
	t.Setenv("TENANTRY_INVITATION_GRANT_PRIVATE_KEY", base64.RawStdEncoding.EncodeToString(private))

	cfg, err := LoadGrantConfigFromEnv(fixedClock)
	if err != nil {
		t.Fatalf("load grant config: %v", err)
	}
	if cfg.Issuer != "tenantry-directory" {
		t.Fatalf("issuer = %q", cfg.Issuer)
	}
	if len(cfg.PrivateKey) != ed25519.PrivateKeySize {
		t.Fatal("expected private key to load")
	}
}

func TestLoadGrantConfigMissingIssuer(t *testing.T) {
	t.Setenv("TENANTRY_INVITATION_GRANT_ISSUER", "")
	t.Setenv("TENANTRY_INVITATION_GRANT_AUDIENCE", "aud")
	t.Setenv("TENANTRY_INVITATION_GRANT_PUBLIC_KEY", "ignored")

	if _, err := LoadGrantConfigFromEnv(nil); err == nil {
		t.Fatal("expected error for missing issuer")
	}
}
