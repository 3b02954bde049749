// Package scenario parses scenario command flags and runs scripted smoke
// flows against a live arena.
package scenario

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"time"

	entrypoint "github.com/louisbranch/volley.zone/internal/platform/cmd"
	"github.com/louisbranch/volley.zone/internal/tools/scenario"
)

// Config holds scenario command configuration. The grant settings must match
// the arena under test, which verifies the same issuer and audience against
// the public half of the key.
type Config struct {
	Addr        string        `env:"VOLLEY_ZONE_SCENARIO_ADDR"       envDefault:"localhost:8080"`
	Scenario    string        `env:"VOLLEY_ZONE_SCENARIO_FILE"`
	GrantKey    string        `env:"VOLLEY_ZONE_GRANT_PRIVATE_KEY"`
	Issuer      string        `env:"VOLLEY_ZONE_GRANT_ISSUER"`
	Audience    string        `env:"VOLLEY_ZONE_GRANT_AUDIENCE"      envDefault:"arena"`
	FirstUserID int64         `env:"VOLLEY_ZONE_SCENARIO_FIRST_USER" envDefault:"9100"`
	Assertions  bool          `env:"VOLLEY_ZONE_SCENARIO_ASSERT"     envDefault:"true"`
	Verbose     bool          `env:"VOLLEY_ZONE_SCENARIO_VERBOSE"`
	Timeout     time.Duration `env:"VOLLEY_ZONE_SCENARIO_TIMEOUT"    envDefault:"15s"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "arena server address")
	fs.StringVar(&cfg.Scenario, "scenario", cfg.Scenario, "path to scenario lua file")
	fs.StringVar(&cfg.GrantKey, "grant-key", cfg.GrantKey, "base64 Ed25519 private grant key")
	fs.StringVar(&cfg.Issuer, "grant-issuer", cfg.Issuer, "issuer written into minted grants")
	fs.StringVar(&cfg.Audience, "grant-audience", cfg.Audience, "audience written into minted grants")
	fs.Int64Var(&cfg.FirstUserID, "first-user", cfg.FirstUserID, "user id of the first scripted player")
	fs.BoolVar(&cfg.Assertions, "assert", cfg.Assertions, "enable assertions (disable to log expectations)")
	fs.BoolVar(&cfg.Verbose, "verbose", cfg.Verbose, "enable verbose logging")
	fs.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "timeout per step")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run executes the scenario command.
func Run(ctx context.Context, cfg Config, out io.Writer, errOut io.Writer) error {
	if out == nil {
		out = io.Discard
	}
	if errOut == nil {
		errOut = io.Discard
	}
	if cfg.Scenario == "" {
		return errors.New("scenario path is required")
	}
	if cfg.GrantKey == "" {
		return errors.New("grant private key is required")
	}
	if cfg.Issuer == "" {
		return errors.New("grant issuer is required")
	}

	mode := scenario.AssertionStrict
	if !cfg.Assertions {
		mode = scenario.AssertionLogOnly
	}

	logger := log.New(errOut, "", 0)
	if err := scenario.RunFile(ctx, scenario.Config{
		Addr:        cfg.Addr,
		GrantKey:    cfg.GrantKey,
		Issuer:      cfg.Issuer,
		Audience:    cfg.Audience,
		FirstUserID: cfg.FirstUserID,
		Timeout:     cfg.Timeout,
		Assertions:  mode,
		Verbose:     cfg.Verbose,
		Logger:      logger,
	}, cfg.Scenario); err != nil {
		return err
	}
	fmt.Fprintln(out, "scenario passed")
	return nil
}
