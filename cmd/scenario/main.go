// Package main runs Lua scenario scripts against a live arena server.
//
// It drives real WebSocket connections through matchmaking, play, and
// tournaments, and reports the first expectation that fails.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/louisbranch/volley.zone/internal/platform/config"

	scenariocmd "github.com/louisbranch/volley.zone/internal/cmd/scenario"
)

func main() {
	cfg, err := scenariocmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		config.Exitf("parse flags: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := scenariocmd.Run(ctx, cfg, os.Stdout, os.Stderr); err != nil {
		config.Exitf("run scenario: %v", err)
	}
}
