// Package main provides a one-shot utility for arena grant key generation.
//
// It emits the Ed25519 keypair access grants are signed with and can mint a
// development grant for local testing.
package main

import (
	"flag"
	"os"

	"github.com/louisbranch/volley.zone/internal/platform/config"
	"github.com/louisbranch/volley.zone/internal/tools/grantkey"
)

func main() {
	cfg, err := grantkey.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		config.Exitf("parse flags: %v", err)
	}
	if err := grantkey.Run(cfg, os.Stdout, nil); err != nil {
		config.Exitf("generate grant key: %v", err)
	}
}
