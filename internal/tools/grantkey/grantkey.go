// Package grantkey generates the Ed25519 keypair arena access grants are
// signed with, and can mint a signed development grant against the fresh
// private key.
package grantkey

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Config holds grant key generation configuration.
type Config struct {
	// MintUserID mints a signed grant for this user when positive.
	MintUserID  int64
	DisplayName string
	Locale      string
	Issuer      string
	Audience    string
	TTL         time.Duration
}

// ParseConfig parses flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := Config{
		Issuer:   "volley-auth",
		Audience: "arena",
		TTL:      24 * time.Hour,
	}
	fs.Int64Var(&cfg.MintUserID, "mint-user", cfg.MintUserID, "also mint a grant for this user id (0 skips)")
	fs.StringVar(&cfg.DisplayName, "name", cfg.DisplayName, "display name claim for the minted grant")
	fs.StringVar(&cfg.Locale, "locale", cfg.Locale, "locale claim for the minted grant")
	fs.StringVar(&cfg.Issuer, "issuer", cfg.Issuer, "issuer claim for the minted grant")
	fs.StringVar(&cfg.Audience, "audience", cfg.Audience, "audience claim for the minted grant")
	fs.DurationVar(&cfg.TTL, "ttl", cfg.TTL, "lifetime of the minted grant")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run generates a grant keypair, writes exports, and optionally mints a
// development grant signed with the new private key.
func Run(cfg Config, out io.Writer, reader io.Reader) error {
	if out == nil {
		return errors.New("output is required")
	}
	if reader == nil {
		reader = rand.Reader
	}
	publicKey, privateKey, err := ed25519.GenerateKey(reader)
	if err != nil {
		return fmt.Errorf("generate grant key: %w", err)
	}
	if _, err := fmt.Fprintf(out, "export VOLLEY_ZONE_GRANT_PRIVATE_KEY=%s\n", base64.RawStdEncoding.EncodeToString(privateKey)); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(out, "export VOLLEY_ZONE_GRANT_PUBLIC_KEY=%s\n", base64.RawStdEncoding.EncodeToString(publicKey)); err != nil {
		return err
	}

	if cfg.MintUserID <= 0 {
		return nil
	}
	grant, err := mintGrant(cfg, privateKey)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "export VOLLEY_ZONE_DEV_GRANT=%s\n", grant)
	return err
}

func mintGrant(cfg Config, key ed25519.PrivateKey) (string, error) {
	if cfg.TTL <= 0 {
		return "", errors.New("grant ttl must be positive")
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"iss": cfg.Issuer,
		"aud": cfg.Audience,
		"sub": strconv.FormatInt(cfg.MintUserID, 10),
		"iat": now.Unix(),
		"exp": now.Add(cfg.TTL).Unix(),
	}
	if cfg.DisplayName != "" {
		claims["name"] = cfg.DisplayName
	}
	if cfg.Locale != "" {
		claims["locale"] = cfg.Locale
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(key)
	if err != nil {
		return "", fmt.Errorf("sign grant: %w", err)
	}
	return signed, nil
}
