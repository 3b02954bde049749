// Package auth verifies the bearer access grants players present when
// connecting. Grants are Ed25519-signed JWTs minted by the platform's auth
// service; this package only checks them and extracts the identity.
package auth

import (
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/louisbranch/volley.zone/internal/platform/errors"
)

// Env var names for grant verification.
const (
	EnvGrantIssuer    = "VOLLEY_ZONE_GRANT_ISSUER"
	EnvGrantAudience  = "VOLLEY_ZONE_GRANT_AUDIENCE"
	EnvGrantPublicKey = "VOLLEY_ZONE_GRANT_PUBLIC_KEY"
)

// grantEnv holds raw env values before post-parse validation.
type grantEnv struct {
	Issuer    string `env:"VOLLEY_ZONE_GRANT_ISSUER"`
	Audience  string `env:"VOLLEY_ZONE_GRANT_AUDIENCE" envDefault:"arena"`
	PublicKey string `env:"VOLLEY_ZONE_GRANT_PUBLIC_KEY"`
}

// Config defines how access grants are verified.
type Config struct {
	Issuer   string
	Audience string
	Key      ed25519.PublicKey
	Now      func() time.Time
}

// Grant is the verified identity extracted from an access grant. DisplayName
// falls back to a generated one and Locale to English when the grant omits
// the claim.
type Grant struct {
	UserID      int64
	DisplayName string
	Locale      string
}

// grantClaims is the internal claims type used for JWT parsing.
type grantClaims struct {
	jwt.RegisteredClaims
	DisplayName string `json:"name"`
	Locale      string `json:"locale"`
}

// LoadConfigFromEnv reads grant verification configuration.
func LoadConfigFromEnv(now func() time.Time) (Config, error) {
	var raw grantEnv
	if err := env.Parse(&raw); err != nil {
		return Config{}, fmt.Errorf("parse grant env: %w", err)
	}
	issuer := strings.TrimSpace(raw.Issuer)
	audience := strings.TrimSpace(raw.Audience)
	publicKey := strings.TrimSpace(raw.PublicKey)
	if issuer == "" {
		return Config{}, fmt.Errorf("%s is required", EnvGrantIssuer)
	}
	if audience == "" {
		return Config{}, fmt.Errorf("%s is required", EnvGrantAudience)
	}
	if publicKey == "" {
		return Config{}, fmt.Errorf("%s is required", EnvGrantPublicKey)
	}
	keyBytes, err := decodeBase64(publicKey)
	if err != nil {
		return Config{}, fmt.Errorf("decode grant public key: %w", err)
	}
	if len(keyBytes) != ed25519.PublicKeySize {
		return Config{}, fmt.Errorf("grant public key must be %d bytes", ed25519.PublicKeySize)
	}
	if now == nil {
		now = time.Now
	}
	return Config{
		Issuer:   issuer,
		Audience: audience,
		Key:      ed25519.PublicKey(keyBytes),
		Now:      now,
	}, nil
}

// GrantVerifier validates access grants against a fixed configuration.
type GrantVerifier struct {
	cfg Config
}

// NewGrantVerifier builds a verifier for the given configuration.
func NewGrantVerifier(cfg Config) *GrantVerifier {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &GrantVerifier{cfg: cfg}
}

// Verify checks the token signature and claims and extracts the identity.
func (v *GrantVerifier) Verify(token string) (Grant, error) {
	cfg := v.cfg
	token = strings.TrimSpace(token)
	if token == "" {
		return Grant{}, apperrors.New(apperrors.CodeGrantInvalid, "access grant is required")
	}
	if cfg.Issuer == "" || cfg.Audience == "" || len(cfg.Key) != ed25519.PublicKeySize {
		return Grant{}, errors.New("grant verifier is not configured")
	}

	var parsed grantClaims
	_, err := jwt.ParseWithClaims(token, &parsed, func(token *jwt.Token) (any, error) {
		return cfg.Key, nil
	},
		jwt.WithValidMethods([]string{"EdDSA"}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return Grant{}, mapJWTError(err)
	}

	if parsed.Issuer == "" || parsed.Issuer != cfg.Issuer {
		return Grant{}, apperrors.WithMetadata(
			apperrors.CodeGrantMismatch,
			"access grant issuer mismatch",
			map[string]string{"Field": "issuer"},
		)
	}
	if !audienceContains(parsed.Audience, cfg.Audience) {
		return Grant{}, apperrors.WithMetadata(
			apperrors.CodeGrantMismatch,
			"access grant audience mismatch",
			map[string]string{"Field": "audience"},
		)
	}

	if parsed.ExpiresAt == nil {
		return Grant{}, apperrors.New(apperrors.CodeGrantInvalid, "access grant exp is required")
	}
	now := cfg.Now().UTC()
	if !parsed.ExpiresAt.Time.UTC().After(now) {
		return Grant{}, apperrors.New(apperrors.CodeGrantExpired, "access grant is expired")
	}
	if parsed.NotBefore != nil && now.Before(parsed.NotBefore.Time.UTC()) {
		return Grant{}, apperrors.New(apperrors.CodeGrantInvalid, "access grant not active yet")
	}

	subject := strings.TrimSpace(parsed.Subject)
	if subject == "" {
		return Grant{}, apperrors.New(apperrors.CodeGrantInvalid, "access grant sub is required")
	}
	userID, err := strconv.ParseInt(subject, 10, 64)
	if err != nil || userID <= 0 {
		return Grant{}, apperrors.New(apperrors.CodeGrantInvalid, "access grant sub must be a positive user id")
	}

	grant := Grant{
		UserID:      userID,
		DisplayName: strings.TrimSpace(parsed.DisplayName),
		Locale:      strings.TrimSpace(parsed.Locale),
	}
	if grant.DisplayName == "" {
		grant.DisplayName = fmt.Sprintf("Player %d", userID)
	}
	if grant.Locale == "" {
		grant.Locale = "en"
	}
	return grant, nil
}

// mapJWTError translates jwt library errors to application errors. The
// library error stays wrapped so logs keep the parse detail.
func mapJWTError(err error) error {
	if errors.Is(err, jwt.ErrTokenSignatureInvalid) || errors.Is(err, jwt.ErrEd25519Verification) {
		return apperrors.Wrap(apperrors.CodeGrantInvalid, "access grant signature is invalid", err)
	}
	if errors.Is(err, jwt.ErrTokenUnverifiable) {
		return apperrors.Wrap(apperrors.CodeGrantInvalid, "access grant alg is invalid", err)
	}
	return apperrors.Wrap(apperrors.CodeGrantInvalid, "access grant is invalid", err)
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
	decoded, err := base64.RawStdEncoding.DecodeString(value)
	if err == nil {
		return decoded, nil
	}
	return base64.StdEncoding.DecodeString(value)
}
