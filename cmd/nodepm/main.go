// Command nodepm is a thin CLI front-end over nodepm's resolver, planner,
// store, and installer, mirroring cmd/depot's kong-driven command surface.
package main

import (
	"fmt"

	"github.com/a-h/nodepm/cmd/globals"
	"github.com/alecthomas/kong"
)

type CLI struct {
	globals.Globals
	Version VersionCmd `cmd:"" help:"Show version information"`
	Install InstallCmd `cmd:"" help:"Install dependencies from package.json into node_modules"`
	Update  UpdateCmd  `cmd:"" help:"Recompute and write the lockfile without installing"`
	Add     AddCmd     `cmd:"" help:"Add one or more dependencies to package.json and install"`
	Remove  RemoveCmd  `cmd:"" help:"Remove one or more dependencies from package.json and install"`
	Upgrade UpgradeCmd `cmd:"" help:"Re-resolve every direct dependency to its latest version"`
	Run     RunCmd     `cmd:"" help:"Run a package.json script"`
	Exec    ExecCmd    `cmd:"" help:"Execute a command with node_modules/.bin on PATH"`
	Clean   CleanCmd   `cmd:"" help:"Remove the store and node_modules"`
	Why     WhyCmd     `cmd:"" help:"Trace why a package is in the dependency graph"`
}

var Version = "dev"

type VersionCmd struct{}

func (cmd *VersionCmd) Run(globals *globals.Globals) error {
	fmt.Printf("%s", Version)
	return nil
}

func main() {
	cli := CLI{
		Globals: globals.Globals{},
	}

	ctx := kong.Parse(&cli,
		kong.Name("nodepm"),
		kong.Description("Resolve, plan, and install package.json dependencies"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
	)
	err := ctx.Run(&cli.Globals)
	ctx.FatalIfErrorf(err)
}
