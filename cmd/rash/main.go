// Command rash executes declarative shell scripts: YAML task lists with an
// embedded docopt interface, rendered through a Jinja-dialect template
// engine and run against the local host.
package main

import (
	"os"

	"github.com/rashlabs/rash/cmd/rash/commands"
)

// Build information, injected at link time.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	os.Exit(commands.Execute(version, commit))
}
