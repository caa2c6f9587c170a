package main

import (
	"github.com/hyperterse/hypercluster/core/cli"
	"github.com/hyperterse/hypercluster/core/cli/cmd"
)

// Version can be set at build time using -ldflags
var Version = "dev"

func init() {
	// Set the version in cmd package so it can be accessed by commands
	cmd.SetVersion(Version)
}

func main() {
	cli.Exit(cli.Execute())
}
