// Package main provides a one-shot utility for grant keypair generation.
//
// It emits the asymmetric keypair that signs session grants.
package main

import (
	"os"

	"github.com/louisbranch/keywarden/internal/platform/config"
	"github.com/louisbranch/keywarden/internal/tools/grantkey"
)

func main() {
	if err := grantkey.Run(os.Stdout, nil); err != nil {
		config.Exitf("generate grant key: %v", err)
	}
}
