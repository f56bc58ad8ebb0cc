package invitation

import (
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/louisbranch/tenantry/internal/platform/errors"
	"github.com/louisbranch/tenantry/internal/platform/id"
)

// grantEnv holds raw env values before post-parse validation.
type grantEnv struct {
	Issuer     string `env:"TENANTRY_INVITATION_GRANT_ISSUER"`
	Audience   string `env:"TENANTRY_INVITATION_GRANT_AUDIENCE"`
	PublicKey  string `env:"TENANTRY_INVITATION_GRANT_PUBLIC_KEY"`
	PrivateKey string `env:"TENANTRY_INVITATION_GRANT_PRIVATE_KEY"`
}

// GrantConfig defines how invitation accept grants are minted and verified.
// PrivateKey may be nil on processes that only verify.
type GrantConfig struct {
	Issuer     string
	Audience   string
	PublicKey  ed25519.PublicKey
	PrivateKey ed25519.PrivateKey
	Now        func() time.Time
}

// GrantExpectation defines the expected identity for an accept grant.
type GrantExpectation struct {
	OrganizationID    string
	InvitationID      string
	InviteeIdentifier string
}

// GrantClaims captures validated accept grant claims.
type GrantClaims struct {
	Issuer            string
	Audience          []string
	ExpiresAt         time.Time
	IssuedAt          time.Time
	JWTID             string
	OrganizationID    string
	InvitationID      string
	InviteeIdentifier string
}

// grantClaims is the internal claims type used for JWT parsing.
type grantClaims struct {
	jwt.RegisteredClaims
	OrganizationID    string `json:"organization_id"`
	InvitationID      string `json:"invitation_id"`
	InviteeIdentifier string `json:"invitee_identifier"`
}

// LoadGrantConfigFromEnv reads accept grant configuration. The private key is
// optional; verification-only processes omit it.
func LoadGrantConfigFromEnv(now func() time.Time) (GrantConfig, error) {
	var raw grantEnv
	if err := env.Parse(&raw); err != nil {
		return GrantConfig{}, fmt.Errorf("parse invitation grant env: %w", err)
	}
	issuer := strings.TrimSpace(raw.Issuer)
	audience := strings.TrimSpace(raw.Audience)
	publicKey := strings.TrimSpace(raw.PublicKey)
	if issuer == "" {
		return GrantConfig{}, fmt.Errorf("TENANTRY_INVITATION_GRANT_ISSUER is required")
	}
	if audience == "" {
		return GrantConfig{}, fmt.Errorf("TENANTRY_INVITATION_GRANT_AUDIENCE is required")
	}
	if publicKey == "" {
		return GrantConfig{}, fmt.Errorf("TENANTRY_INVITATION_GRANT_PUBLIC_KEY is required")
	}
	publicBytes, err := decodeBase64(publicKey)
	if err != nil {
		return GrantConfig{}, fmt.Errorf("decode invitation grant public key: %w", err)
	}
	if len(publicBytes) != ed25519.PublicKeySize {
		return GrantConfig{}, fmt.Errorf("invitation grant public key must be %d bytes", ed25519.PublicKeySize)
	}
	cfg := GrantConfig{
		Issuer:    issuer,
		Audience:  audience,
		PublicKey: ed25519.PublicKey(publicBytes),
		Now:       now,
	}
	if privateKey := strings.TrimSpace(raw.PrivateKey); privateKey != "" {
		privateBytes, err := decodeBase64(privateKey)
		if err != nil {
			return GrantConfig{}, fmt.Errorf("decode invitation grant private key: %w", err)
		}
		if len(privateBytes) != ed25519.PrivateKeySize {
			return GrantConfig{}, fmt.Errorf("invitation grant private key must be %d bytes", ed25519.PrivateKeySize)
		}
		cfg.PrivateKey = ed25519.PrivateKey(privateBytes)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return cfg, nil
}

// MintGrant signs an accept grant for one invitation. The grant expires with
// the invitation so a leaked token cannot outlive it.
func MintGrant(inv Invitation, cfg GrantConfig) (string, error) {
	if len(cfg.PrivateKey) != ed25519.PrivateKeySize {
		return "", errors.New("invitation grant signer is not configured")
	}
	if cfg.Issuer == "" || cfg.Audience == "" {
		return "", errors.New("invitation grant signer is not configured")
	}
	now := time.Now
	if cfg.Now != nil {
		now = cfg.Now
	}

	jwtID, err := id.NewID()
	if err != nil {
		return "", fmt.Errorf("generate grant id: %w", err)
	}

	issuedAt := now().UTC()
	claims := grantClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			Audience:  jwt.ClaimStrings{cfg.Audience},
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(inv.ExpiresAt),
			ID:        jwtID,
		},
		OrganizationID:    inv.OrganizationID,
		InvitationID:      inv.ID,
		InviteeIdentifier: inv.InviteeIdentifier,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	signed, err := token.SignedString(cfg.PrivateKey)
	if err != nil {
		return "", fmt.Errorf("sign invitation grant: %w", err)
	}
	return signed, nil
}

// ValidateGrant verifies an accept grant token and validates expected claims.
func ValidateGrant(grant string, expected GrantExpectation, cfg GrantConfig) (GrantClaims, error) {
	grant = strings.TrimSpace(grant)
	if grant == "" {
		return GrantClaims{}, apperrors.New(apperrors.CodeInvitationGrantInvalid, "invitation grant is required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Issuer == "" || cfg.Audience == "" || len(cfg.PublicKey) != ed25519.PublicKeySize {
		return GrantClaims{}, errors.New("invitation grant verifier is not configured")
	}

	var parsed grantClaims
	_, err := jwt.ParseWithClaims(grant, &parsed, func(token *jwt.Token) (any, error) {
		return cfg.PublicKey, nil
	},
		jwt.WithValidMethods([]string{"EdDSA"}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return GrantClaims{}, mapJWTError(err)
	}

	if parsed.Issuer == "" || parsed.Issuer != cfg.Issuer {
		return GrantClaims{}, apperrors.WithMetadata(
			apperrors.CodeInvitationGrantMismatch,
			"invitation grant issuer mismatch",
			map[string]string{"Field": "issuer"},
		)
	}
	if !audienceContains(parsed.Audience, cfg.Audience) {
		return GrantClaims{}, apperrors.WithMetadata(
			apperrors.CodeInvitationGrantMismatch,
			"invitation grant audience mismatch",
			map[string]string{"Field": "audience"},
		)
	}

	if parsed.ID == "" {
		return GrantClaims{}, apperrors.New(apperrors.CodeInvitationGrantInvalid, "invitation grant jti is required")
	}
	if parsed.ExpiresAt == nil {
		return GrantClaims{}, apperrors.New(apperrors.CodeInvitationGrantInvalid, "invitation grant exp is required")
	}

	now := cfg.Now().UTC()
	exp := parsed.ExpiresAt.Time.UTC()
	if !exp.After(now) {
		return GrantClaims{}, apperrors.New(apperrors.CodeInvitationGrantExpired, "invitation grant is expired")
	}

	if strings.TrimSpace(parsed.OrganizationID) == "" || parsed.OrganizationID != expected.OrganizationID {
		return GrantClaims{}, apperrors.WithMetadata(
			apperrors.CodeInvitationGrantMismatch,
			"invitation grant organization mismatch",
			map[string]string{"Field": "organization_id"},
		)
	}
	if strings.TrimSpace(parsed.InvitationID) == "" || parsed.InvitationID != expected.InvitationID {
		return GrantClaims{}, apperrors.WithMetadata(
			apperrors.CodeInvitationGrantMismatch,
			"invitation grant invitation mismatch",
			map[string]string{"Field": "invitation_id"},
		)
	}
	if strings.TrimSpace(parsed.InviteeIdentifier) == "" || parsed.InviteeIdentifier != expected.InviteeIdentifier {
		return GrantClaims{}, apperrors.WithMetadata(
			apperrors.CodeInvitationGrantMismatch,
			"invitation grant invitee mismatch",
			map[string]string{"Field": "invitee_identifier"},
		)
	}

	claims := GrantClaims{
		Issuer:            parsed.Issuer,
		Audience:          []string(parsed.Audience),
		ExpiresAt:         exp,
		JWTID:             parsed.ID,
		OrganizationID:    parsed.OrganizationID,
		InvitationID:      parsed.InvitationID,
		InviteeIdentifier: parsed.InviteeIdentifier,
	}
	if parsed.IssuedAt != nil {
		claims.IssuedAt = parsed.IssuedAt.Time.UTC()
	}
	return claims, nil
}

// mapJWTError translates jwt library errors to application errors.
func mapJWTError(err error) error {
	if errors.Is(err, jwt.ErrTokenSignatureInvalid) || errors.Is(err, jwt.ErrEd25519Verification) {
		return apperrors.New(apperrors.CodeInvitationGrantInvalid, "invitation grant signature is invalid")
	}
	if errors.Is(err, jwt.ErrTokenUnverifiable) {
		return apperrors.New(apperrors.CodeInvitationGrantInvalid, "invitation grant alg is invalid")
	}
	return apperrors.New(apperrors.CodeInvitationGrantInvalid, "invitation grant is invalid")
}

// audienceContains reports whether the audience list contains the given value.
func audienceContains(aud jwt.ClaimStrings, value string) bool {
	for _, item := range aud {
		if item == value {
			return true
		}
	}
	return false
}

func decodeBase64(value string) ([]byte, error) {
	if value == "" {
		return nil, errors.New("empty base64 value")
	}
	if decoded, err := base64.RawStdEncoding.DecodeString(value); err == nil {
		return decoded, nil
	}
	return base64.StdEncoding.DecodeString(value)
}
