package main

import (
	"os"

	"jobshell.dev/internal/cli"
	"jobshell.dev/shell"
)

// Set at build time via -ldflags
var version = "dev"

func main() {
	// A re-executed subshell runs its closure here and never returns.
	if shell.Init() {
		return
	}
	os.Exit(cli.Execute(version))
}
