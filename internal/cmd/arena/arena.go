// Package arena parses arena command flags and composes the service
// entrypoint.
package arena

import (
	"context"
	"flag"
	"fmt"

	entrypoint "github.com/louisbranch/volley.zone/internal/platform/cmd"
	server "github.com/louisbranch/volley.zone/internal/services/arena/app"
	"github.com/louisbranch/volley.zone/internal/services/arena/auth"
)

// Config holds arena command configuration. Grant verification settings load
// separately from their own env vars at run time.
type Config struct {
	HTTPAddr string `env:"VOLLEY_ZONE_ARENA_HTTP_ADDR" envDefault:":8080"`
	DBPath   string `env:"VOLLEY_ZONE_ARENA_DB_PATH"   envDefault:"arena.db"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "arena HTTP listen address")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "sqlite database path, empty disables persistence")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run builds the arena app and serves it until the context ends.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceArena, func(context.Context) error {
		grants, err := auth.LoadConfigFromEnv(nil)
		if err != nil {
			return fmt.Errorf("load grant config: %w", err)
		}
		if err := server.Run(ctx, server.Config{
			HTTPAddr: cfg.HTTPAddr,
			DBPath:   cfg.DBPath,
			Grants:   grants,
		}); err != nil {
			return fmt.Errorf("serve arena: %w", err)
		}
		return nil
	})
}
