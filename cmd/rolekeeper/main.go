package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"

	"github.com/rolekeeper/rolekeeper/cmd/rolekeeper/cli"
)

// Set via -ldflags at build time
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := cli.Execute(version, commit, date); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("Error:"), err)
		os.Exit(1)
	}
}
