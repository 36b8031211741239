// Package main provides a one-shot utility for challenge secret generation.
package main

import (
	"flag"
	"os"

	"github.com/louisbranch/keywarden/internal/platform/config"
	"github.com/louisbranch/keywarden/internal/tools/challengekey"
)

func main() {
	cfg, err := challengekey.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		config.Exitf("parse flags: %v", err)
	}
	if err := challengekey.Run(cfg, os.Stdout, nil, nil); err != nil {
		config.Exitf("generate secret: %v", err)
	}
}
