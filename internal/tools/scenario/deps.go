package scenario

import (
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// grantSigner mints access grants for scripted players.
type grantSigner interface {
	Grant(userID int64, displayName, locale string) (string, error)
}

// runnerDeps bundles injectable dependencies for runner construction.
type runnerDeps struct {
	addr   string
	grants grantSigner
}

// keyGrantSigner signs grants with the arena's Ed25519 grant key, the same
// key the target server verifies against.
type keyGrantSigner struct {
	issuer   string
	audience string
	ttl      time.Duration
	key      ed25519.PrivateKey
}

func newKeyGrantSigner(issuer, audience, encodedKey string) (*keyGrantSigner, error) {
	if issuer == "" {
		return nil, errors.New("grant issuer is required")
	}
	if audience == "" {
		return nil, errors.New("grant audience is required")
	}
	keyBytes, err := decodeBase64(encodedKey)
	if err != nil {
		return nil, fmt.Errorf("decode grant key: %w", err)
	}
	if len(keyBytes) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("grant key must be %d bytes", ed25519.PrivateKeySize)
	}
	return &keyGrantSigner{
		issuer:   issuer,
		audience: audience,
		ttl:      time.Hour,
		key:      ed25519.PrivateKey(keyBytes),
	}, nil
}

func (s *keyGrantSigner) Grant(userID int64, displayName, locale string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"iss": s.issuer,
		"aud": s.audience,
		"sub": strconv.FormatInt(userID, 10),
		"iat": now.Unix(),
		"exp": now.Add(s.ttl).Unix(),
	}
	if displayName != "" {
		claims["name"] = displayName
	}
	if locale != "" {
		claims["locale"] = locale
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("sign grant: %w", err)
	}
	return signed, nil
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
