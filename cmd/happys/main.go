package main

import (
	"os"

	"github.com/leeroybrun/happy-stacks/internal/cli"
)

// Version is set at build time via ldflags.
var Version = "dev"

func main() {
	cli.SetVersion(Version)
	os.Exit(cli.Execute())
}
